// Package errors classifies failures for the MAVLink-to-CoT bridge.
//
// Errors fall into three classes: Transient (temporary, skip or retry), Invalid
// (bad input, drop the message) and Fatal (stop the operation). Classification
// works through errors.Is and errors.As, so wrapped chains keep their class.
//
// The pipeline taxonomy maps onto those classes:
//
//	ErrBindFailed, ErrHandshakeTimeout   fatal to Start, session never runs
//	ErrReceiveTimeout                    transient, expected, never logged
//	*ValidationError                     invalid, message dropped, one diagnostic
//	ErrEncoding                          fatal contract violation, message dropped
//	ErrTransmission                      transient, message dropped
//
// Wrap produces the "component.method: action failed: cause" form:
//
//	if err := conn.Close(); err != nil {
//	    return errors.Wrap(err, "Connection", "Close", "release socket")
//	}
//
// WrapTransient, WrapInvalid and WrapFatal attach a class as well.
package errors
