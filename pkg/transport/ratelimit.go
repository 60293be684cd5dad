package transport

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Size units accepted by ParseSpeedLimit.
const (
	B  int64 = 1
	KB       = 1024 * B
	MB       = 1024 * KB
	GB       = 1024 * MB
)

// RateLimitedReader wraps an io.Reader and limits the read rate.
// A limit of 0 or negative means unlimited (no throttling).
type RateLimitedReader struct {
	r        io.Reader
	limit    int64 // bytes per second, 0 or negative = unlimited
	mu       sync.Mutex
	lastRead time.Time
	tokens   int64 // available tokens (bytes)
}

// NewRateLimitedReader creates a rate-limited reader.
// limit is in bytes per second. 0 or negative means unlimited.
func NewRateLimitedReader(r io.Reader, limit int64) *RateLimitedReader {
	return &RateLimitedReader{
		r:        r,
		limit:    limit,
		lastRead: time.Now(),
	}
}

func (r *RateLimitedReader) refill() {
	now := time.Now()
	elapsed := now.Sub(r.lastRead)
	r.lastRead = now
	r.tokens += int64(float64(r.limit) * elapsed.Seconds())
	// at most one second worth of burst
	if r.tokens > r.limit {
		r.tokens = r.limit
	}
}

// Read implements io.Reader with rate limiting using a token bucket algorithm.
func (r *RateLimitedReader) Read(b []byte) (n int, err error) {
	if r.limit <= 0 {
		return r.r.Read(b)
	}

	r.mu.Lock()
	r.refill()

	wantToRead := int64(len(b))
	if wantToRead > r.limit {
		wantToRead = r.limit
	}

	if r.tokens < wantToRead {
		needed := wantToRead - r.tokens
		waitTime := time.Duration(float64(time.Second) * float64(needed) / float64(r.limit))
		if waitTime > 0 {
			r.mu.Unlock()
			time.Sleep(waitTime)
			r.mu.Lock()
			r.refill()
		}
	}

	readSize := int(wantToRead)
	if r.tokens > 0 && int64(readSize) > r.tokens {
		readSize = int(r.tokens)
	}
	if readSize <= 0 {
		readSize = 1
	}
	r.mu.Unlock()

	n, err = r.r.Read(b[:readSize])

	r.mu.Lock()
	r.tokens -= int64(n)
	r.mu.Unlock()
	return n, err
}

// SetLimit updates the rate limit dynamically.
// 0 or negative means unlimited.
func (r *RateLimitedReader) SetLimit(limit int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limit = limit
	if limit > 0 && r.tokens > limit {
		r.tokens = limit
	}
}

// GetLimit returns the current rate limit in bytes per second.
func (r *RateLimitedReader) GetLimit() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.limit
}

// limitReader wraps r unless limit is unlimited.
func limitReader(r io.Reader, limit int64) io.Reader {
	if r == nil || limit <= 0 {
		return r
	}
	return NewRateLimitedReader(r, limit)
}

// ParseSpeedLimit parses a human-readable speed limit string.
// Returns bytes per second. 0 means unlimited.
//
// Supported formats:
//   - Plain bytes: "100", "1024"
//   - With B suffix: "100B", "1024B"
//   - Kilobytes: "512KB", "512k"
//   - Megabytes: "1MB", "1.5m"
//   - Gigabytes: "1GB", "2.5g"
func ParseSpeedLimit(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty speed limit")
	}
	if s == "0" {
		return 0, nil
	}

	s = strings.ToUpper(s)
	numStr, unit := s, ""
	for i, c := range s {
		if (c < '0' || c > '9') && c != '.' && c != '-' {
			numStr = s[:i]
			unit = s[i:]
			break
		}
	}
	if numStr == "" {
		return 0, fmt.Errorf("invalid speed limit: no numeric value in %q", s)
	}
	if strings.HasPrefix(numStr, "-") {
		return 0, fmt.Errorf("invalid speed limit: negative value not allowed in %q", s)
	}
	num, err := strconv.ParseFloat(numStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid speed limit: %q is not a valid number", numStr)
	}

	var multiplier int64
	switch unit {
	case "", "B":
		multiplier = B
	case "KB", "K":
		multiplier = KB
	case "MB", "M":
		multiplier = MB
	case "GB", "G":
		multiplier = GB
	default:
		return 0, fmt.Errorf("invalid speed limit unit: %q (use B, KB, MB, or GB)", unit)
	}
	return int64(num * float64(multiplier)), nil
}
