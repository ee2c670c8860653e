package report

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/forPelevin/accentscan/internal/types"
)

func sampleRows() []types.Classification {
	return []types.Classification{
		{Start: 0, End: 5, Label: "us", Confidence: 91.23456},
		{Start: 5, End: 10, Label: types.ErrorLabel, Confidence: 0},
		{Start: 10, End: 15, Label: "england, uk", Confidence: 100},
	}
}

func TestRender_Format(t *testing.T) {
	b, err := Render(sampleRows())
	if err != nil {
		t.Fatal(err)
	}
	want := "Time Interval,Predicted Accent,Confidence\r\n" +
		"0-5s,us,91.23%\r\n" +
		"5-10s,Error,0.00%\r\n" +
		"10-15s,\"england, uk\",100.00%\r\n"
	if string(b) != want {
		t.Fatalf("unexpected csv:\n%s\nwant:\n%s", b, want)
	}
}

func TestRender_RowCountAndHeader(t *testing.T) {
	rows := sampleRows()
	b, err := Render(rows)
	if err != nil {
		t.Fatal(err)
	}
	recs, err := csv.NewReader(bytes.NewReader(b)).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(recs) != len(rows)+1 {
		t.Fatalf("expected %d records, got %d", len(rows)+1, len(recs))
	}
	for i, h := range Header {
		if recs[0][i] != h {
			t.Fatalf("header[%d]=%q, want %q", i, recs[0][i], h)
		}
	}
}

func TestRender_Deterministic(t *testing.T) {
	a, err := Render(sampleRows())
	if err != nil {
		t.Fatal(err)
	}
	b, err := Render(sampleRows())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("expected identical output")
	}
}

func TestRender_EmptyTableHasHeaderOnly(t *testing.T) {
	b, err := Render(nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "Time Interval,Predicted Accent,Confidence\r\n" {
		t.Fatalf("unexpected csv: %q", b)
	}
}

func TestFormatConfidence(t *testing.T) {
	tests := map[float64]string{
		0:        "0.00%",
		12.346:   "12.35%",
		99.999:   "100.00%",
		87.10000: "87.10%",
	}
	for in, want := range tests {
		if got := FormatConfidence(in); got != want {
			t.Fatalf("FormatConfidence(%v) = %q, want %q", in, got, want)
		}
	}
}
