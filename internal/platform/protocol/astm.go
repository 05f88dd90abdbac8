package protocol

import (
	"strings"
	"time"
)

// ASTMParser parses ASTM E1394-style record streams. Records are delimited
// by CR/LF and tagged by their first character: H (header), P (patient),
// O (order), R (result), L (terminator). Fields within a record are
// pipe-delimited. Patient and order context is carried forward onto each
// subsequent result record until superseded.
type ASTMParser struct {
	// Now overrides the clock used for defaulted timestamps. Nil means
	// time.Now.
	Now func() time.Time
}

func (p ASTMParser) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p ASTMParser) Parse(raw string) []Observation {
	var results []Observation

	var currentPatient, currentOrder Observation
	for _, line := range splitRecords(raw) {
		switch line[0] {
		case 'H':
			// Header carries delimiters and sender info only.
		case 'P':
			currentPatient = parseASTMPatient(line)
		case 'O':
			currentOrder = parseASTMOrder(line)
			currentOrder.PatientID = currentPatient.PatientID
			currentOrder.PatientName = currentPatient.PatientName
		case 'R':
			obs := p.parseASTMResult(line)
			if currentOrder.TestCode != "" {
				obs.TestCode = currentOrder.TestCode
			}
			obs.Barcode = currentOrder.Barcode
			obs.PatientID = currentPatient.PatientID
			obs.PatientName = currentPatient.PatientName
			results = append(results, obs)
		case 'L':
			// Terminator.
		}
	}

	return results
}

// splitRecords splits a raw message on any line-ending style and drops
// blank records.
func splitRecords(raw string) []string {
	raw = strings.ReplaceAll(raw, "\r\n", "\r")
	raw = strings.ReplaceAll(raw, "\n", "\r")

	var records []string
	for _, line := range strings.Split(raw, "\r") {
		if strings.TrimSpace(line) != "" {
			records = append(records, line)
		}
	}
	return records
}

func parseASTMPatient(line string) Observation {
	fields := strings.Split(line, "|")
	// Field 3 is the laboratory-assigned patient id; field 2 is the
	// practice-assigned id some analyzers use instead.
	id := field(fields, 3)
	if id == "" {
		id = field(fields, 2)
	}
	obs := Observation{
		MessageType: "P",
		PatientID:   id,
	}
	if last := field(fields, 5); last != "" {
		name := last + "^" + field(fields, 6)
		obs.PatientName = strings.TrimSpace(strings.ReplaceAll(name, "^", " "))
	}
	return obs
}

func parseASTMOrder(line string) Observation {
	fields := strings.Split(line, "|")
	barcode := field(fields, 2)
	if barcode == "" {
		barcode = field(fields, 3)
	}
	return Observation{
		MessageType: "O",
		Barcode:     barcode,
		TestCode:    field(fields, 4),
	}
}

func (p ASTMParser) parseASTMResult(line string) Observation {
	fields := strings.Split(line, "|")

	var flags []string
	if f := field(fields, 10); f != "" {
		if strings.Contains(f, "H") {
			flags = append(flags, FlagHigh)
		}
		if strings.Contains(f, "L") {
			flags = append(flags, FlagLow)
		}
		if strings.Contains(f, "A") {
			flags = append(flags, FlagAbnormal)
		}
	}

	return Observation{
		MessageType:    "R",
		TestCode:       field(fields, 2),
		Result:         field(fields, 3),
		Unit:           field(fields, 4),
		ReferenceRange: field(fields, 5),
		Flags:          flags,
		Timestamp:      parseClinicalTimestamp(field(fields, 12), p.now),
	}
}
