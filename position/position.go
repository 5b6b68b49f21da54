// Package position turns decoded MAVLink position frames into validated
// reports in engineering units.
package position

import (
	"time"

	"github.com/c360/mavcot/errors"
)

// Wire field names of GLOBAL_POSITION_INT, in the order they are required.
const (
	FieldLat = "lat"
	FieldLon = "lon"
	FieldAlt = "alt"
	FieldHdg = "hdg"
)

// RequiredFields lists the fields a frame must carry to be converted.
var RequiredFields = []string{FieldLat, FieldLon, FieldAlt, FieldHdg}

// Inclusive bounds applied after conversion. Heading excludes 360.
const (
	MinLat     = -90.0
	MaxLat     = 90.0
	MinLon     = -180.0
	MaxLon     = 180.0
	MinAlt     = -1000.0
	MaxAlt     = 60000.0
	MinHeading = 0.0
	MaxHeading = 360.0
)

// RawMessage is a decoded frame before validation. Fields holds the raw
// fixed-point integers keyed by wire field name.
type RawMessage struct {
	Type     string
	Fields   map[string]int64
	Source   string
	Received time.Time
}

// Report is a validated position in degrees and meters.
type Report struct {
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Alt       float64   `json:"alt"`
	Heading   float64   `json:"heading"`
	Timestamp time.Time `json:"timestamp"`
}

// Clock renders the report time as HH:MM:SS in UTC.
func (r Report) Clock() string {
	return r.Timestamp.UTC().Format("15:04:05")
}

// Validate checks presence, converts fixed-point values and range checks them.
// now stamps the resulting report. Errors are *errors.ValidationError.
func Validate(msg RawMessage, now time.Time) (Report, error) {
	var missing []string
	for _, f := range RequiredFields {
		if _, ok := msg.Fields[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return Report{}, errors.NewMissingFields(missing)
	}

	r := Report{
		Lat:       float64(msg.Fields[FieldLat]) / 1e7,
		Lon:       float64(msg.Fields[FieldLon]) / 1e7,
		Alt:       float64(msg.Fields[FieldAlt]) / 1000,
		Heading:   convertHeading(msg.Fields[FieldHdg]),
		Timestamp: now,
	}

	if !inRange(r) {
		return Report{}, errors.NewOutOfRange(r.Lat, r.Lon, r.Alt, r.Heading)
	}
	return r, nil
}

// A raw heading of 0 is due north, not "unknown".
func convertHeading(raw int64) float64 {
	if raw == 0 {
		return 0
	}
	return float64(raw) / 100
}

func inRange(r Report) bool {
	return r.Lat >= MinLat && r.Lat <= MaxLat &&
		r.Lon >= MinLon && r.Lon <= MaxLon &&
		r.Alt >= MinAlt && r.Alt <= MaxAlt &&
		r.Heading >= MinHeading && r.Heading < MaxHeading
}
