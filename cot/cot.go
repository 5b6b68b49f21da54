// Package cot builds Cursor-on-Target event documents from validated
// position reports.
package cot

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"time"

	"github.com/c360/mavcot/errors"
	"github.com/c360/mavcot/position"
)

// Fixed event attributes.
const (
	Version   = "2.0"
	TypeUAV   = "a-f-A-M-F-Q" // friendly airborne, military, fixed wing, UAV
	HowGPS    = "m-g"
	StaleTime = 60 * time.Second

	circularError = "10.0"
	linearError   = "3.0"
	fixedSpeed    = "0.00"

	timeLayout = "2006-01-02T15:04:05Z"
)

// Event is the root <event> element.
type Event struct {
	XMLName xml.Name `xml:"event"`
	Version string   `xml:"version,attr"`
	UID     string   `xml:"uid,attr"`
	Type    string   `xml:"type,attr"`
	Time    string   `xml:"time,attr"`
	Start   string   `xml:"start,attr"`
	Stale   string   `xml:"stale,attr"`
	How     string   `xml:"how,attr"`
	Point   Point    `xml:"point"`
	Detail  Detail   `xml:"detail"`
}

// Point carries position and error estimates, pre-formatted.
type Point struct {
	Lat string `xml:"lat,attr"`
	Lon string `xml:"lon,attr"`
	Hae string `xml:"hae,attr"`
	CE  string `xml:"ce,attr"`
	LE  string `xml:"le,attr"`
}

// Detail is the <detail> block.
type Detail struct {
	Contact Contact `xml:"contact"`
	Track   Track   `xml:"track"`
	// Dir duplicates the course for icon orientation.
	Dir     string `xml:"__dir"`
	Remarks string `xml:"remarks"`
}

// Contact names the track on the map.
type Contact struct {
	Callsign string `xml:"callsign,attr"`
}

// Track is course over ground and speed.
type Track struct {
	Course string `xml:"course,attr"`
	Speed  string `xml:"speed,attr"`
}

// Encoder renders events for one aircraft identity.
type Encoder struct {
	identifier string
}

// NewEncoder returns an encoder whose uid and callsign are identifier.
func NewEncoder(identifier string) *Encoder {
	return &Encoder{identifier: identifier}
}

// Build assembles the event without serializing it.
func (e *Encoder) Build(r position.Report, now time.Time) Event {
	now = now.UTC()
	heading := f1(r.Heading)

	return Event{
		Version: Version,
		UID:     e.identifier,
		Type:    TypeUAV,
		Time:    now.Format(timeLayout),
		Start:   now.Format(timeLayout),
		Stale:   now.Add(StaleTime).Format(timeLayout),
		How:     HowGPS,
		Point: Point{
			Lat: strconv.FormatFloat(r.Lat, 'f', 6, 64),
			Lon: strconv.FormatFloat(r.Lon, 'f', 6, 64),
			Hae: f1(r.Alt),
			CE:  circularError,
			LE:  linearError,
		},
		Detail: Detail{
			Contact: Contact{Callsign: e.identifier},
			Track:   Track{Course: heading, Speed: fixedSpeed},
			Dir:     heading,
			Remarks: fmt.Sprintf("%s - Altitude: %sm, Heading: %s°", e.identifier, f1(r.Alt), heading),
		},
	}
}

// Encode serializes the event for r at now as a single UTF-8 <event> document.
// A failure here indicates a broken invariant, reported as ErrEncoding.
func (e *Encoder) Encode(r position.Report, now time.Time) ([]byte, error) {
	out, err := xml.Marshal(e.Build(r, now))
	if err != nil {
		return nil, errors.WrapFatal(fmt.Errorf("%w: %v", errors.ErrEncoding, err), "Encoder", "Encode", "marshal event")
	}
	return out, nil
}

// Parse decodes a document produced by Encode.
func Parse(data []byte) (Event, error) {
	var ev Event
	if err := xml.Unmarshal(data, &ev); err != nil {
		return Event{}, errors.WrapInvalid(err, "cot", "Parse", "unmarshal event")
	}
	return ev, nil
}

func f1(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}
