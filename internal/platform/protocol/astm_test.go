package protocol

import (
	"testing"
	"time"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.Local)

func fixedClock() time.Time { return fixedNow }

func TestASTMParse_FullMessage(t *testing.T) {
	raw := "H|\\^&|||Analyzer\r" +
		"P|1||PID123||Doe^John\r" +
		"O|1|BC001||GLU\r" +
		"R|1|GLU|95|mg/dL|70-100||N||||20240101093000\r" +
		"L|1|N"

	p := ASTMParser{Now: fixedClock}
	obs := p.Parse(raw)

	if len(obs) != 1 {
		t.Fatalf("expected 1 observation, got %d", len(obs))
	}
	o := obs[0]
	if o.PatientID != "PID123" {
		t.Errorf("expected patient id PID123, got %q", o.PatientID)
	}
	if o.PatientName != "Doe John" {
		t.Errorf("expected patient name 'Doe John', got %q", o.PatientName)
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

func TestASTMParse_CRLFAndLFDelimiters(t *testing.T) {
	for name, raw := range map[string]string{
		"crlf": "P|1||PID1\r\nO|1|BC1||ALB\r\nR|1|ALB|4.1|g/dL\r\n",
		"lf":   "P|1||PID1\nO|1|BC1||ALB\nR|1|ALB|4.1|g/dL\n",
	} {
		t.Run(name, func(t *testing.T) {
			obs := ASTMParser{Now: fixedClock}.Parse(raw)
			if len(obs) != 1 {
				t.Fatalf("expected 1 observation, got %d", len(obs))
			}
			if obs[0].Barcode != "BC1" || obs[0].Result != "4.1" {
				t.Errorf("unexpected observation: %+v", obs[0])
			}
		})
	}
}

func TestASTMParse_OrderTestCodeOverridesResultField(t *testing.T) {
	raw := "O|1|BC9||NA\rR|1|SODIUM|140|mmol/L"

	obs := ASTMParser{Now: fixedClock}.Parse(raw)
	if len(obs) != 1 {
		t.Fatalf("expected 1 observation, got %d", len(obs))
	}
	if obs[0].TestCode != "NA" {
		t.Errorf("expected order test code NA to win, got %q", obs[0].TestCode)
	}
}

func TestASTMParse_OrderBarcodeFallbackField(t *testing.T) {
	// O-2 empty, O-3 carries the barcode.
	raw := "O|1||BC777|K\rR|1|K|4.5|mmol/L"

	obs := ASTMParser{Now: fixedClock}.Parse(raw)
	if len(obs) != 1 {
		t.Fatalf("expected 1 observation, got %d", len(obs))
	}
	if obs[0].Barcode != "BC777" {
		t.Errorf("expected barcode BC777, got %q", obs[0].Barcode)
	}
}

func TestASTMParse_Flags(t *testing.T) {
	raw := "R|1|GLU|210|mg/dL|70-100|||||HA"

	obs := ASTMParser{Now: fixedClock}.Parse(raw)
	if len(obs) != 1 {
		t.Fatalf("expected 1 observation, got %d", len(obs))
	}
	flags := obs[0].Flags
	if len(flags) != 2 || flags[0] != FlagHigh || flags[1] != FlagAbnormal {
		t.Errorf("expected [HIGH ABNORMAL], got %v", flags)
	}
}

func TestASTMParse_Timestamp(t *testing.T) {
	raw := "R|1|GLU|95|mg/dL|70-100||N|||||20240101093000"

	obs := ASTMParser{Now: fixedClock}.Parse(raw)
	if len(obs) != 1 {
		t.Fatalf("expected 1 observation, got %d", len(obs))
	}
	want := time.Date(2024, 1, 1, 9, 30, 0, 0, time.Local)
	if !obs[0].Timestamp.Equal(want) {
		t.Errorf("expected %s, got %s", want, obs[0].Timestamp)
	}
}

func TestASTMParse_MalformedTimestampFallsBackToNow(t *testing.T) {
	for name, raw := range map[string]string{
		"short":   "R|1|GLU|95|mg/dL|70-100||N|||||2024",
		"garbage": "R|1|GLU|95|mg/dL|70-100||N|||||notatimestamp99",
		"absent":  "R|1|GLU|95",
	} {
		t.Run(name, func(t *testing.T) {
			obs := ASTMParser{Now: fixedClock}.Parse(raw)
			if len(obs) != 1 {
				t.Fatalf("expected 1 observation, got %d", len(obs))
			}
			if !obs[0].Timestamp.Equal(fixedNow) {
				t.Errorf("expected fallback to now, got %s", obs[0].Timestamp)
			}
		})
	}
}

func TestASTMParse_MissingFieldsNeverPanic(t *testing.T) {
	for _, raw := range []string{"", "R", "R|", "P|1", "O|1\rR", "L", "H"} {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("Parse(%q) panicked: %v", raw, r)
				}
			}()
			ASTMParser{Now: fixedClock}.Parse(raw)
		}()
	}
}

func TestASTMParse_NoResultRecords(t *testing.T) {
	raw := "H|\\^&\rP|1||PID1\rL|1|N"
	obs := ASTMParser{Now: fixedClock}.Parse(raw)
	if len(obs) != 0 {
		t.Errorf("expected no observations, got %d", len(obs))
	}
}

func TestASTMParse_MultipleResultsShareContext(t *testing.T) {
	raw := "P|1||PID5||Smith^Anna\r" +
		"O|1|BC5||PANEL\r" +
		"R|1|GLU|95|mg/dL\r" +
		"R|2|CRE|1.1|mg/dL\r" +
		"L|1|N"

	obs := ASTMParser{Now: fixedClock}.Parse(raw)
	if len(obs) != 2 {
		t.Fatalf("expected 2 observations, got %d", len(obs))
	}
	for i, o := range obs {
		if o.PatientID != "PID5" {
			t.Errorf("observation %d: expected inherited patient PID5, got %q", i, o.PatientID)
		}
		if o.Barcode != "BC5" {
			t.Errorf("observation %d: expected inherited barcode BC5, got %q", i, o.Barcode)
		}
	}
}
