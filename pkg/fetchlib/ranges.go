package fetchlib

import (
	"fmt"
	"strconv"
	"strings"
)

// OpenEnded is the Hi value of a ByteRange without an upper bound.
const OpenEnded int64 = -1

// ByteRange is an inclusive byte range. Hi may be OpenEnded.
type ByteRange struct {
	Lo int64
	Hi int64
}

func (r ByteRange) String() string {
	if r.Hi == OpenEnded {
		return strconv.FormatInt(r.Lo, 10) + "-"
	}
	return strconv.FormatInt(r.Lo, 10) + "-" + strconv.FormatInt(r.Hi, 10)
}

// checkRanges reports the first range violating the ordering rules: bounds
// are non-negative, Hi >= Lo and only the last range may be open-ended.
func checkRanges(ranges []ByteRange) error {
	if len(ranges) == 0 {
		return fmt.Errorf("no byte ranges given")
	}
	for i, r := range ranges {
		switch {
		case r.Lo < 0:
			return fmt.Errorf("range %d has a negative start", i)
		case r.Hi == OpenEnded && i != len(ranges)-1:
			return fmt.Errorf("range %d is open-ended but not last", i)
		case r.Hi != OpenEnded && r.Hi < r.Lo:
			return fmt.Errorf("range %d ends before it starts", i)
		}
	}
	return nil
}

// rangeString renders ranges to the comma separated wire form.
func rangeString(ranges []ByteRange) string {
	parts := make([]string, len(ranges))
	for i, r := range ranges {
		parts[i] = r.String()
	}
	return strings.Join(parts, ",")
}

// ParseByteRanges parses a wire form such as "0-99,200-".
func ParseByteRanges(s string) ([]ByteRange, error) {
	var out []ByteRange
	for _, part := range strings.Split(s, ",") {
		lo, hi, ok := strings.Cut(strings.TrimSpace(part), "-")
		if !ok {
			return nil, fmt.Errorf("malformed byte range %q", part)
		}
		r := ByteRange{Hi: OpenEnded}
		var err error
		if r.Lo, err = strconv.ParseInt(lo, 10, 64); err != nil {
			return nil, fmt.Errorf("malformed byte range %q", part)
		}
		if hi != "" {
			if r.Hi, err = strconv.ParseInt(hi, 10, 64); err != nil {
				return nil, fmt.Errorf("malformed byte range %q", part)
			}
		}
		out = append(out, r)
	}
	if err := checkRanges(out); err != nil {
		return nil, err
	}
	return out, nil
}
