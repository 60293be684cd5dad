package fetchlib

import "strings"

const (
	// Header keys
	UserAgentKey = "User-Agent"
	AcceptKey    = "Accept"
)

// Headers is an ordered list of header lines with case-insensitive names.
type Headers []Header

// Header represents a key-value pair.
type Header struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// String renders the header as a "Key: value" line.
func (h Header) String() string {
	return h.Key + ": " + h.Value
}

// Get returns the index of the first header named key, compared
// case-insensitively. If the header is not found, the second return value
// is false.
func (h Headers) Get(key string) (index int, have bool) {
	for i, x := range h {
		if !strings.EqualFold(x.Key, key) {
			continue
		}
		index = i
		have = true
		break
	}
	return
}

// Value returns the value of the header named key and whether it exists.
func (h Headers) Value(key string) (string, bool) {
	i, ok := h.Get(key)
	if !ok {
		return "", false
	}
	return h[i].Value, true
}

// InitOrUpdate initializes the header with the given key and value.
// If the header is already present, it is not updated.
func (h *Headers) InitOrUpdate(key, value string) {
	if _, ok := h.Get(key); ok {
		return
	}
	*h = append(*h, Header{key, value})
}

// Update updates the header with the given key and value.
// If the header is not present, it is initialized.
func (h *Headers) Update(key, value string) {
	i, ok := h.Get(key)
	if ok {
		(*h)[i] = Header{(*h)[i].Key, value}
		return
	}
	*h = append(*h, Header{key, value})
}

// Fold merges value into the header named key. An existing header is never
// replaced: both values are split on commas and the union is kept in
// first-seen order without case-insensitive duplicates.
func (h *Headers) Fold(key, value string) {
	i, ok := h.Get(key)
	if !ok {
		*h = append(*h, Header{key, foldValues("", value)})
		return
	}
	(*h)[i].Value = foldValues((*h)[i].Value, value)
}

// Add appends a new header line even when the name already exists.
func (h *Headers) Add(key, value string) {
	*h = append(*h, Header{key, value})
}

// Lines renders every header as a "Key: value" line.
func (h Headers) Lines() []string {
	out := make([]string, len(h))
	for i, x := range h {
		out[i] = x.String()
	}
	return out
}

func foldValues(existing, add string) string {
	var (
		seen = make(map[string]bool)
		out  []string
	)
	for _, part := range append(strings.Split(existing, ","), strings.Split(add, ",")...) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k := strings.ToLower(part)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, part)
	}
	return strings.Join(out, ", ")
}

// parseHeaderLine splits a raw "Key: value" line. Status lines and lines
// without a name are rejected.
func parseHeaderLine(line string) (key, value string, ok bool) {
	key, value, ok = strings.Cut(line, ":")
	if !ok {
		return "", "", false
	}
	key = strings.TrimSpace(key)
	if key == "" || strings.ContainsAny(key, " \t") {
		return "", "", false
	}
	return key, strings.TrimSpace(value), true
}
