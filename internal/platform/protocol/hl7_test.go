package protocol

import (
	"testing"
	"time"
)

const hl7Sample = "MSH|^~\\&|Analyzer|Lab|LIS|Lab|20240101093000||ORU^R01|MSG001|P|2.3\r" +
	"PID|1||PID123||Doe^John\r" +
	"ORC|NW|BC001\r" +
	"OBR|1|BC001||GLU^Glucose\r" +
	"OBX|1|NM|GLU^Glucose||95|mg/dL|70-100|N|||F|||20240101093000"

func TestHL7Parse_FullMessage(t *testing.T) {
	obs := HL7Parser{Now: fixedClock}.Parse(hl7Sample)
	if len(obs) != 1 {
		t.Fatalf("expected 1 observation, got %d", len(obs))
	}
	o := obs[0]
	if o.PatientID != "PID123" {
		t.Errorf("expected patient id PID123, got %q", o.PatientID)
	}
	if o.PatientName != "John Doe" {
		t.Errorf("expected patient name 'John Doe', got %q", o.PatientName)
	}
	if o.Barcode != "BC001" {
		t.Errorf("expected barcode BC001, got %q", o.Barcode)
	}
	if o.TestCode != "GLU" {
		t.Errorf("expected test code GLU, got %q", o.TestCode)
	}
	if o.Result != "95" {
		t.Errorf("expected result 95, got %q", o.Result)
	}
	if o.Unit != "mg/dL" {
		t.Errorf("expected unit mg/dL, got %q", o.Unit)
	}
	if o.ReferenceRange != "70-100" {
		t.Errorf("expected reference range 70-100, got %q", o.ReferenceRange)
	}
}

func TestHL7Parse_ORCBarcodeSurvivesEmptyOBR(t *testing.T) {
	raw := "PID|1||P9||Roe^Jane\r" +
		"ORC|NW|BC555\r" +
		"OBR|1|||ALB^Albumin\r" +
		"OBX|1|NM|ALB^Albumin||4.2|g/dL|3.5-5.0"

	obs := HL7Parser{Now: fixedClock}.Parse(raw)
	if len(obs) != 1 {
		t.Fatalf("expected 1 observation, got %d", len(obs))
	}
	if obs[0].Barcode != "BC555" {
		t.Errorf("expected ORC barcode BC555 to survive, got %q", obs[0].Barcode)
	}
	if obs[0].TestCode != "ALB" {
		t.Errorf("expected OBX test code ALB, got %q", obs[0].TestCode)
	}
}

func TestHL7Parse_OBXTimestamp(t *testing.T) {
	obs := HL7Parser{Now: fixedClock}.Parse(hl7Sample)
	if len(obs) != 1 {
		t.Fatalf("expected 1 observation, got %d", len(obs))
	}
	want := time.Date(2024, 1, 1, 9, 30, 0, 0, time.Local)
	if !obs[0].Timestamp.Equal(want) {
		t.Errorf("expected %s, got %s", want, obs[0].Timestamp)
	}
}

func TestHL7Parse_MissingTimestampDefaultsToNow(t *testing.T) {
	raw := "OBX|1|NM|GLU^Glucose||95|mg/dL"
	obs := HL7Parser{Now: fixedClock}.Parse(raw)
	if len(obs) != 1 {
		t.Fatalf("expected 1 observation, got %d", len(obs))
	}
	if !obs[0].Timestamp.Equal(fixedNow) {
		t.Errorf("expected fallback to now, got %s", obs[0].Timestamp)
	}
}

func TestHL7Parse_MultipleOBX(t *testing.T) {
	raw := "PID|1||P7||Doe^Jane\r" +
		"ORC|NW|BC7\r" +
		"OBX|1|NM|GLU^Glucose||95|mg/dL\r" +
		"OBX|2|NM|CRE^Creatinine||1.2|mg/dL"

	obs := HL7Parser{Now: fixedClock}.Parse(raw)
	if len(obs) != 2 {
		t.Fatalf("expected 2 observations, got %d", len(obs))
	}
	if obs[0].TestCode != "GLU" || obs[1].TestCode != "CRE" {
		t.Errorf("unexpected test codes: %q, %q", obs[0].TestCode, obs[1].TestCode)
	}
	for i, o := range obs {
		if o.PatientID != "P7" || o.Barcode != "BC7" {
			t.Errorf("observation %d missing inherited context: %+v", i, o)
		}
	}
}

func TestHL7Parse_ShortSegmentsIgnored(t *testing.T) {
	raw := "X\rPI\rOBX|1|NM|GLU^Glucose||95"
	obs := HL7Parser{Now: fixedClock}.Parse(raw)
	if len(obs) != 1 {
		t.Fatalf("expected 1 observation, got %d", len(obs))
	}
}

func TestHL7Parse_EmptyMessage(t *testing.T) {
	if obs := (HL7Parser{Now: fixedClock}).Parse(""); len(obs) != 0 {
		t.Errorf("expected no observations, got %d", len(obs))
	}
}

func TestForProtocol(t *testing.T) {
	if _, err := ForProtocol("ASTM"); err != nil {
		t.Errorf("expected ASTM parser, got error %v", err)
	}
	if _, err := ForProtocol("HL7"); err != nil {
		t.Errorf("expected HL7 parser, got error %v", err)
	}
	for _, name := range []string{"CUSTOM", "", "astm", "DICOM"} {
		if _, err := ForProtocol(name); err == nil {
			t.Errorf("expected error for protocol %q", name)
		}
	}
}
