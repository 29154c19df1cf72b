package utils

import (
	"testing"
	"time"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1 << 20, "1.0 MB"},
		{5 << 30, "5.0 GB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.bytes); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.bytes, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{90 * time.Second, "1m30s"},
		{2*time.Second + 500*time.Millisecond, "2.5s"},
		{2*time.Hour + 5*time.Minute + 3*time.Second, "2h5m3s"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.d); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestFormatThroughput(t *testing.T) {
	if got := FormatThroughput(10<<20, 2*time.Second); got != "5.0 MB/s" {
		t.Errorf("FormatThroughput = %q, want 5.0 MB/s", got)
	}
	if got := FormatThroughput(100, 0); got != "-" {
		t.Errorf("FormatThroughput with zero duration = %q, want -", got)
	}
}
