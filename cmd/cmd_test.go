package cmd

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/warpdl/warpfetch/cmd/common"
	"github.com/warpdl/warpfetch/pkg/logger"
	"github.com/warpdl/warpfetch/pkg/transport"
)

var testBuild = BuildArgs{Version: "1.2.3", BuildType: "test", Date: "2026-01-01", Commit: "abc123"}

// withNetEngine runs commands against the real engine with an in-memory
// filesystem and captured output.
func withNetEngine(t *testing.T) *testEnv {
	t.Helper()
	env := newTestEnv(t, nil)
	newEngine = func(log logger.Logger, fs afero.Fs) transport.Engine {
		return transport.NewNetEngine(&transport.EngineOpts{Logger: log, Fs: fs})
	}
	return env
}

func TestExecute_Version(t *testing.T) {
	if err := Execute([]string{"warpfetch", "version"}, testBuild); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(common.VersionCmdStr, "warpfetch 1.2.3-test") ||
		!strings.Contains(common.VersionCmdStr, "2026-01-01=abc123") {
		t.Errorf("VersionCmdStr = %q", common.VersionCmdStr)
	}
}

func TestExecute_Get(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Trace") != "t-1" {
			http.Error(w, "missing trace", http.StatusBadRequest)
			return
		}
		w.Write([]byte("pong"))
	}))
	defer srv.Close()
	env := withNetEngine(t)

	args := []string{"warpfetch", "get", "-H", "X-Trace: t-1", "--fail", srv.URL + "/ping"}
	if err := Execute(args, testBuild); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if env.out.String() != "pong" {
		t.Errorf("stdout = %q", env.out.String())
	}
}

func TestExecute_GetFailOnError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	withNetEngine(t)

	err := Execute([]string{"warpfetch", "get", "--fail", srv.URL + "/missing"}, testBuild)
	if err == nil || !strings.Contains(err.Error(), "get[send]") {
		t.Fatalf("expected a send error, got %v", err)
	}
}

func TestExecute_Batch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.TrimPrefix(r.URL.Path, "/")))
	}))
	defer srv.Close()
	env := withNetEngine(t)

	batchFile := filepath.Join(t.TempDir(), "jobs.yaml")
	content := "requests:\n" +
		"  - url: " + srv.URL + "/one\n" +
		"    kind: get\n" +
		"    output: /out/one.txt\n" +
		"  - url: " + srv.URL + "/two\n" +
		"    output: /out/two.txt\n"
	if err := os.WriteFile(batchFile, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := Execute([]string{"warpfetch", "batch", "--no-progress", batchFile}, testBuild); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	for name, want := range map[string]string{"/out/one.txt": "one", "/out/two.txt": "two"} {
		data, err := afero.ReadFile(env.fs, name)
		if err != nil || string(data) != want {
			t.Errorf("%s = %q, %v", name, data, err)
		}
	}
	if !strings.Contains(env.out.String(), "Batch Summary") {
		t.Errorf("summary not printed: %q", env.out.String())
	}
}

func TestExecute_BatchReportsFailures(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	withNetEngine(t)

	list := createTempInputFile(t, srv.URL+"/a\n"+srv.URL+"/b\n")
	err := Execute([]string{"warpfetch", "batch", "--no-progress", list}, testBuild)
	if err != nil {
		t.Fatalf("404 without fail_on_error is a completed request: %v", err)
	}

	yamlFile := filepath.Join(t.TempDir(), "strict.yaml")
	content := "requests:\n  - url: " + srv.URL + "/a\n    fail_on_error: true\n"
	if err := os.WriteFile(yamlFile, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	err = Execute([]string{"warpfetch", "batch", "--no-progress", yamlFile}, testBuild)
	if err == nil || !strings.Contains(err.Error(), "batch[run]") {
		t.Fatalf("expected a run error, got %v", err)
	}
}
