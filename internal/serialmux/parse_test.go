package serialmux

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestClassifyLine(t *testing.T) {
	cases := map[string]LineKind{
		"":            LineEmpty,
		"   ":         LineEmpty,
		"# rate=1000": LineStatus,
		"0.1,0.2":     LineSample,
		"-3,4":        LineSample,
		".5 .6":       LineSample,
		"hello":       LineUnknown,
		"  12,13\r":   LineSample,
	}
	for line, want := range cases {
		if got := ClassifyLine(line); got != want {
			t.Errorf("ClassifyLine(%q) = %v, want %v", line, got, want)
		}
	}
}

func TestParseSample(t *testing.T) {
	got, err := ParseSample("1, -2.5,3e-1\r", nil)
	if err != nil {
		t.Fatalf("ParseSample: %v", err)
	}
	if diff := cmp.Diff([]float64{1, -2.5, 0.3}, got); diff != "" {
		t.Errorf("ParseSample mismatch (-want +got):\n%s", diff)
	}

	buf := make([]float64, 0, 8)
	got, err = ParseSample("4 5\t6", buf)
	if err != nil {
		t.Fatalf("ParseSample: %v", err)
	}
	if &got[0] != &buf[:1][0] {
		t.Error("ParseSample did not reuse dst")
	}

	if _, err := ParseSample("1,x,3", nil); err == nil {
		t.Error("expected error for non-numeric channel")
	}
	for _, line := range []string{"0.1,NaN", "0.1,NaN,Inf", "-inf,2", "1,+Inf"} {
		if ClassifyLine(line) != LineSample {
			continue
		}
		if _, err := ParseSample(line, nil); err == nil {
			t.Errorf("ParseSample(%q): expected error for non-finite channel", line)
		}
	}
	if _, err := ParseSample(" , ", nil); err == nil {
		t.Error("expected error for empty line")
	}
}
