package metrics

import (
	"math"
	"testing"
)

func TestCompressionRatio(t *testing.T) {
	cases := []struct {
		name   string
		input  int64
		output int64
		want   float64
	}{
		{"typical reduction", 1_000_000, 150_000, 85.0},
		{"output grew", 100, 120, -20.0},
		{"no change", 500, 500, 0.0},
		{"empty output", 1000, 0, 100.0},
		{"zero input", 0, 120, 0.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CompressionRatio(tc.input, tc.output)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("CompressionRatio(%d, %d) = %v, want %v", tc.input, tc.output, got, tc.want)
			}
		})
	}
}

func TestFormatRatio(t *testing.T) {
	if got := FormatRatio(85.0); got != "85.0%" {
		t.Fatalf("FormatRatio = %q", got)
	}
	if got := FormatRatio(-20.0); got != "-20.0%" {
		t.Fatalf("FormatRatio = %q", got)
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		seconds float64
		want    string
	}{
		{0, "N/A"},
		{-5, "N/A"},
		{59, "0:59"},
		{75, "1:15"},
		{600, "10:00"},
		{3599, "59:59"},
		{3600, "1:00:00"},
		{3725, "1:02:05"},
		{7322.9, "2:02:02"},
	}
	for _, tc := range cases {
		if got := FormatDuration(tc.seconds); got != tc.want {
			t.Fatalf("FormatDuration(%v) = %q, want %q", tc.seconds, got, tc.want)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	cases := []struct {
		bytes int64
		want  string
	}{
		{512, "512 B"},
		{2048, "2.0 KiB"},
		{157286400, "150.0 MiB"},
	}
	for _, tc := range cases {
		if got := FormatBytes(tc.bytes); got != tc.want {
			t.Fatalf("FormatBytes(%d) = %q, want %q", tc.bytes, got, tc.want)
		}
	}
}
