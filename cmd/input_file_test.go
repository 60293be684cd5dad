package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestParseInputFile_BasicURLs(t *testing.T) {
	content := `https://example.com/file1.zip
  ftp://mirror.example.com/pub/file2.tar.gz
example.com:8080/file3.iso`

	result, err := ParseInputFile(createTempInputFile(t, content))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []string{
		"https://example.com/file1.zip",
		"ftp://mirror.example.com/pub/file2.tar.gz",
		"example.com:8080/file3.iso",
	}
	if len(result.URLs) != len(expected) {
		t.Fatalf("expected %d URLs, got %v", len(expected), result.URLs)
	}
	for i, url := range result.URLs {
		if url != expected[i] {
			t.Errorf("URL %d: expected %q, got %q", i, expected[i], url)
		}
	}
}

func TestParseInputFile_CommentsAndInvalidLines(t *testing.T) {
	content := `# mirrors
https://example.com/file1.zip
  # indented comment
sftp://example.com/file.zip

/local/path/file.zip
magnet:?xt=urn:btih:abc123
ftps://example.com/file2.zip`

	result, err := ParseInputFile(createTempInputFile(t, content))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.URLs) != 2 {
		t.Errorf("expected 2 URLs, got %v", result.URLs)
	}
	if result.SkippedLines != 2 {
		t.Errorf("expected 2 skipped comment lines, got %d", result.SkippedLines)
	}
	if result.TotalLines != 8 {
		t.Errorf("expected 8 lines, got %d", result.TotalLines)
	}

	wantInvalid := []InvalidLine{
		{LineNumber: 4, Content: "sftp://example.com/file.zip"},
		{LineNumber: 6, Content: "/local/path/file.zip"},
		{LineNumber: 7, Content: "magnet:?xt=urn:btih:abc123"},
	}
	if len(result.InvalidLines) != len(wantInvalid) {
		t.Fatalf("expected %d invalid lines, got %+v", len(wantInvalid), result.InvalidLines)
	}
	for i, want := range wantInvalid {
		got := result.InvalidLines[i]
		if got.LineNumber != want.LineNumber || got.Content != want.Content {
			t.Errorf("invalid line %d = %+v, want line %d %q", i, got, want.LineNumber, want.Content)
		}
		if got.Reason == "" {
			t.Errorf("invalid line %d has no reason", i)
		}
	}
}

func TestParseInputFile_Errors(t *testing.T) {
	tmpDir := t.TempDir()
	unreadable := filepath.Join(tmpDir, "unreadable.txt")
	if err := os.WriteFile(unreadable, []byte("https://example.com"), 0000); err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}

	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{"not found", filepath.Join(tmpDir, "missing.txt"), ErrInputFileNotFound},
		{"empty", createTempInputFile(t, ""), ErrInputFileEmpty},
		{"only comments", createTempInputFile(t, "# one\n\n# two\n"), ErrInputFileEmpty},
		{"only invalid", createTempInputFile(t, "/tmp/a\nsmb://host/share\n"), ErrInputFileEmpty},
	}
	if os.Geteuid() != 0 {
		tests = append(tests, struct {
			name    string
			path    string
			wantErr error
		}{"permission", unreadable, ErrInputFilePermission})
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseInputFile(tt.path)
			var inputFileErr *InputFileError
			if !errors.As(err, &inputFileErr) {
				t.Fatalf("expected InputFileError, got %T (%v)", err, err)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, inputFileErr.Err)
			}
			if inputFileErr.Path != tt.path {
				t.Errorf("Path = %q, want %q", inputFileErr.Path, tt.path)
			}
		})
	}
}

func TestParseInputFile_EmptyStillReturnsResult(t *testing.T) {
	result, err := ParseInputFile(createTempInputFile(t, "# a\n# b\n./relative\n"))
	if !errors.Is(err, ErrInputFileEmpty) {
		t.Fatalf("expected ErrInputFileEmpty, got %v", err)
	}
	if result == nil {
		t.Fatal("expected result alongside the empty error")
	}
	if result.SkippedLines != 2 || len(result.InvalidLines) != 1 {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestInputFileError_Error(t *testing.T) {
	err := NewInputFileError("/path/to/file.txt", ErrInputFileNotFound)
	if err.Error() != "batch file not found: /path/to/file.txt" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if err.Unwrap() != ErrInputFileNotFound {
		t.Errorf("expected ErrInputFileNotFound, got %v", err.Unwrap())
	}
}

func createTempInputFile(t *testing.T, content string) string {
	t.Helper()
	tmpFile := filepath.Join(t.TempDir(), "urls.txt")
	if err := os.WriteFile(tmpFile, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	return tmpFile
}
