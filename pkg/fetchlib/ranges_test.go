package fetchlib

import (
	"strings"
	"testing"
)

func TestRangeString(t *testing.T) {
	tests := []struct {
		ranges []ByteRange
		want   string
	}{
		{[]ByteRange{{0, 99}}, "0-99"},
		{[]ByteRange{{500, OpenEnded}}, "500-"},
		{[]ByteRange{{0, 99}, {200, 299}, {1000, OpenEnded}}, "0-99,200-299,1000-"},
		{[]ByteRange{{7, 7}}, "7-7"},
	}
	for _, tt := range tests {
		if err := checkRanges(tt.ranges); err != nil {
			t.Errorf("checkRanges(%v): %v", tt.ranges, err)
		}
		if got := rangeString(tt.ranges); got != tt.want {
			t.Errorf("rangeString(%v) = %q, want %q", tt.ranges, got, tt.want)
		}
	}
}

func TestCheckRanges_Rejects(t *testing.T) {
	tests := map[string][]ByteRange{
		"empty":            nil,
		"negative start":   {{-1, 5}},
		"open not last":    {{0, OpenEnded}, {10, 20}},
		"high below low":   {{10, 5}},
		"later high < low": {{0, 1}, {9, 3}},
	}
	for name, ranges := range tests {
		if err := checkRanges(ranges); err == nil {
			t.Errorf("%s: expected error for %v", name, ranges)
		}
	}
}

func TestParseByteRanges(t *testing.T) {
	got, err := ParseByteRanges("0-99, 200-")
	if err != nil {
		t.Fatalf("ParseByteRanges: %v", err)
	}
	if len(got) != 2 || got[0] != (ByteRange{0, 99}) || got[1] != (ByteRange{200, OpenEnded}) {
		t.Errorf("ranges = %v", got)
	}
	for _, in := range []string{"", "abc", "1-x", "5-1", "0-,3-4"} {
		if _, err := ParseByteRanges(in); err == nil {
			t.Errorf("ParseByteRanges(%q) should fail", in)
		}
	}
}

func TestSetByteRanges(t *testing.T) {
	req, _ := newTestRequest(t, "example.com/file", KindGet, nil)
	req.SetByteRanges(ByteRange{0, 9}, ByteRange{20, OpenEnded})
	if req.ByteRanges() != "0-9,20-" {
		t.Errorf("ByteRanges = %q", req.ByteRanges())
	}

	mustPanic(t, "open-ended but not last", func() {
		req.SetByteRanges(ByteRange{0, OpenEnded}, ByteRange{5, 6})
	})
	mustPanic(t, "ends before it starts", func() {
		req.SetByteRanges(ByteRange{9, 1})
	})

	ftpReq, _ := newTestRequest(t, "ftp://example.com/f", KindFTPDownload, &RequestOpts{Destination: "/out/f"})
	mustPanic(t, "single range", func() {
		ftpReq.SetByteRanges(ByteRange{0, 1}, ByteRange{4, 5})
	})
	if got := strings.Count(req.ByteRanges(), ","); got != 1 {
		t.Errorf("failed SetByteRanges must not change ranges, got %q", req.ByteRanges())
	}
}
