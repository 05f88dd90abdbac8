package protocol

import (
	"strings"
	"time"
)

// HL7Parser parses HL7v2 ORU-style segment streams. Segments are delimited
// by CR (LF and CRLF are tolerated), tagged by their first three characters:
// MSH (header), PID (patient), ORC (order), OBR (observation request),
// OBX (result). Fields are pipe-delimited with caret-delimited components.
type HL7Parser struct {
	// Now overrides the clock used for defaulted timestamps. Nil means
	// time.Now.
	Now func() time.Time
}

func (p HL7Parser) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p HL7Parser) Parse(raw string) []Observation {
	var results []Observation

	var currentPatient, currentOrder Observation
	for _, segment := range splitRecords(raw) {
		if len(segment) < 3 {
			continue
		}

		switch segment[:3] {
		case "MSH":
			// Header only.
		case "PID":
			currentPatient = parsePID(segment)
		case "ORC":
			currentOrder = parseORC(segment)
		case "OBR":
			// OBR refines the order context; a non-empty ORC barcode is
			// kept when OBR-2 is absent.
			obr := parseOBR(segment)
			if obr.Barcode != "" {
				currentOrder.Barcode = obr.Barcode
			}
			if obr.TestCode != "" {
				currentOrder.TestCode = obr.TestCode
			}
		case "OBX":
			obs := p.parseOBX(segment)
			obs.PatientID = currentPatient.PatientID
			obs.PatientName = currentPatient.PatientName
			obs.Barcode = currentOrder.Barcode
			results = append(results, obs)
		}
	}

	return results
}

func parsePID(segment string) Observation {
	fields := strings.Split(segment, "|")
	last := component(field(fields, 5), 0)
	first := component(field(fields, 5), 1)
	return Observation{
		MessageType: "PID",
		PatientID:   component(field(fields, 3), 0),
		PatientName: strings.TrimSpace(first + " " + last),
	}
}

func parseORC(segment string) Observation {
	fields := strings.Split(segment, "|")
	return Observation{
		MessageType: "ORC",
		Barcode:     field(fields, 2),
	}
}

func parseOBR(segment string) Observation {
	fields := strings.Split(segment, "|")
	return Observation{
		MessageType: "OBR",
		TestCode:    component(field(fields, 4), 0),
		Barcode:     field(fields, 2),
	}
}

func (p HL7Parser) parseOBX(segment string) Observation {
	fields := strings.Split(segment, "|")
	return Observation{
		MessageType:    "OBX",
		TestCode:       component(field(fields, 3), 0),
		Result:         field(fields, 5),
		Unit:           field(fields, 6),
		ReferenceRange: field(fields, 7),
		Timestamp:      parseClinicalTimestamp(field(fields, 14), p.now),
	}
}
