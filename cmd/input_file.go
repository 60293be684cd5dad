package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Sentinel errors for URL list parsing.
var (
	ErrInputFileNotFound   = errors.New("batch file not found")
	ErrInputFilePermission = errors.New("permission denied reading batch file")
	ErrInputFileEmpty      = errors.New("batch file contains no valid URLs")
)

// InputFileError wraps batch file errors with the file path.
type InputFileError struct {
	Path string
	Err  error
}

func (e *InputFileError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Path)
}

func (e *InputFileError) Unwrap() error {
	return e.Err
}

func NewInputFileError(path string, err error) *InputFileError {
	return &InputFileError{Path: path, Err: err}
}

// InvalidLine is a line of a URL list that is not a fetchable URL.
type InvalidLine struct {
	// LineNumber is 1-indexed.
	LineNumber int
	Content    string
	Reason     string
}

// ParseResult holds the result of parsing a URL list.
type ParseResult struct {
	URLs []string
	// SkippedLines counts comment lines.
	SkippedLines int
	TotalLines   int
	InvalidLines []InvalidLine
}

var urlSchemes = map[string]bool{
	"http":  true,
	"https": true,
	"ftp":   true,
	"ftps":  true,
}

// ParseInputFile reads a URL list, one URL per line. Empty lines and
// lines starting with # are skipped. A URL without a scheme is kept and
// fetched over HTTP.
//
// Errors returned:
//   - ErrInputFileNotFound: file does not exist
//   - ErrInputFilePermission: cannot read file due to permissions
//   - ErrInputFileEmpty: no line holds a valid URL; the result is still
//     returned
func ParseInputFile(filePath string) (*ParseResult, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, wrapInputFileError(filePath, err)
	}

	lines := strings.Split(string(data), "\n")
	result := &ParseResult{
		TotalLines: len(lines),
	}
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "#") {
			result.SkippedLines++
			continue
		}
		if reason := checkURLLine(trimmed); reason != "" {
			result.InvalidLines = append(result.InvalidLines, InvalidLine{
				LineNumber: i + 1,
				Content:    trimmed,
				Reason:     reason,
			})
			continue
		}
		result.URLs = append(result.URLs, trimmed)
	}

	if len(result.URLs) == 0 {
		return result, NewInputFileError(filePath, ErrInputFileEmpty)
	}
	return result, nil
}

// checkURLLine returns why s is not a URL warpfetch can fetch, or "".
func checkURLLine(s string) string {
	if scheme, _, ok := strings.Cut(s, "://"); ok {
		if !urlSchemes[strings.ToLower(scheme)] {
			return fmt.Sprintf("unsupported scheme %q", scheme)
		}
		return ""
	}
	if strings.HasPrefix(s, "/") || strings.HasPrefix(s, ".") {
		return "local paths are not URLs"
	}
	host, _, _ := strings.Cut(s, "/")
	if _, port, ok := strings.Cut(host, ":"); ok && strings.Trim(port, "0123456789") != "" {
		return "unsupported scheme"
	}
	return ""
}

// wrapInputFileError converts OS-level errors to domain-specific errors.
func wrapInputFileError(path string, err error) error {
	if os.IsNotExist(err) {
		return NewInputFileError(path, ErrInputFileNotFound)
	}
	if os.IsPermission(err) {
		return NewInputFileError(path, ErrInputFilePermission)
	}
	return NewInputFileError(path, err)
}
