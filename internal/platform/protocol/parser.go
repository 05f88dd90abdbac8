// Package protocol parses raw analyzer message streams (ASTM and HL7v2)
// into normalized observations. Parsers are pure and stateless: missing
// fields default to empty values and never abort a message, so partial
// information is preferred over total rejection.
package protocol

import (
	"errors"
	"fmt"
	"time"
)

// Result abnormality flags.
const (
	FlagHigh     = "HIGH"
	FlagLow      = "LOW"
	FlagAbnormal = "ABNORMAL"
)

// ErrUnsupportedProtocol is returned when no parser exists for a device's
// configured protocol (e.g. CUSTOM).
var ErrUnsupportedProtocol = errors.New("unsupported device protocol")

// Observation is one parsed result unit extracted from a raw device message.
// It is ephemeral: consumed by the reconciler and kept only as the JSON
// snapshot stored on the queue entry.
type Observation struct {
	MessageType    string    `json:"messageType"`
	PatientID      string    `json:"patientId,omitempty"`
	PatientName    string    `json:"patientName,omitempty"`
	TestCode       string    `json:"testCode,omitempty"`
	Result         string    `json:"result,omitempty"`
	Unit           string    `json:"unit,omitempty"`
	ReferenceRange string    `json:"referenceRange,omitempty"`
	Flags          []string  `json:"flags,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	Barcode        string    `json:"barcode,omitempty"`
}

// Parser transforms one raw message into zero or more observations.
type Parser interface {
	Parse(raw string) []Observation
}

// ForProtocol returns the parser for the given protocol name.
// CUSTOM and unrecognized protocols have no parser.
func ForProtocol(name string) (Parser, error) {
	switch name {
	case "ASTM":
		return ASTMParser{}, nil
	case "HL7":
		return HL7Parser{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProtocol, name)
	}
}

// parseClinicalTimestamp parses the 14-digit YYYYMMDDHHmmss timestamp shared
// by ASTM and HL7 result records. Absent or malformed values fall back to now.
func parseClinicalTimestamp(s string, now func() time.Time) time.Time {
	if len(s) >= 14 {
		t, err := time.ParseInLocation("20060102150405", s[:14], time.Local)
		if err == nil {
			return t
		}
	}
	return now()
}

// field returns fields[i] or "" when the record is too short.
func field(fields []string, i int) string {
	if i < 0 || i >= len(fields) {
		return ""
	}
	return fields[i]
}

// component returns the idx-th caret-delimited component of an HL7 field.
func component(f string, idx int) string {
	start := 0
	for i := 0; i < len(f); i++ {
		if f[i] == '^' {
			if idx == 0 {
				return f[start:i]
			}
			idx--
			start = i + 1
		}
	}
	if idx == 0 {
		return f[start:]
	}
	return ""
}
