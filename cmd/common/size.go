package common

import "strconv"

const (
	B  int64 = 1
	KB       = B << 10
	MB       = KB << 10
	GB       = MB << 10
	TB       = GB << 10
)

type sizeUnit struct {
	val int64
	fmt string
}

var sizeUnits = []sizeUnit{
	{TB, "TB"},
	{GB, "GB"},
	{MB, "MB"},
	{KB, "KB"},
}

// FormatSize renders n bytes in the largest unit it fills, with one
// decimal. Negative sizes are unknown.
func FormatSize(n int64) string {
	if n < 0 {
		return "undefined"
	}
	for _, u := range sizeUnits {
		if n >= u.val {
			return strconv.FormatFloat(float64(n)/float64(u.val), 'f', 1, 64) + " " + u.fmt
		}
	}
	return strconv.FormatInt(n, 10) + " Bytes"
}
