package pdfutil

import "testing"

func TestExtractLinesRejectsGarbage(t *testing.T) {
	if _, err := ExtractLines([]byte("definitely not a pdf")); err == nil {
		t.Fatalf("expected error for non-pdf input")
	}
}
