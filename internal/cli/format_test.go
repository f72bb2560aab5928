package cli

import (
	"testing"
	"time"
)

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1234, "1,234"},
		{-1234567, "-1,234,567"},
	}
	for _, tt := range tests {
		if got := FormatNumber(tt.n); got != tt.want {
			t.Errorf("FormatNumber(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestFormatAge(t *testing.T) {
	if got := FormatAge(time.Time{}); got != "never" {
		t.Errorf("FormatAge(zero) = %q", got)
	}
	if got := FormatAge(time.Now().Add(-3 * 24 * time.Hour)); got != "3 days ago" {
		t.Errorf("FormatAge(3 days) = %q", got)
	}
}

func TestFormatBytes(t *testing.T) {
	if got := FormatBytes(1500); got != "1.5 kB" {
		t.Errorf("FormatBytes(1500) = %q", got)
	}
	if got := FormatBytes(-1); got != "0 B" {
		t.Errorf("FormatBytes(-1) = %q", got)
	}
}

func TestPadRight(t *testing.T) {
	if got := padRight("ab", 4); got != "ab  " {
		t.Errorf("padRight = %q", got)
	}
	if got := padRight("é-long", 3); got != "é-l" {
		t.Errorf("padRight truncation = %q", got)
	}
}
