package cmd

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/warpdl/warpfetch/pkg/fetchlib"
	"github.com/warpdl/warpfetch/pkg/transport/transporttest"
)

func TestRunBatch_MixedOutcomes(t *testing.T) {
	env := newTestEnv(t, byURL(map[string]transporttest.Result{
		"https://example.com/a": transporttest.OK(200, "alpha"),
		"https://example.com/b": transporttest.Fail("connection reset"),
	}))

	cfg := &BatchConfig{
		MaxConcurrent: 2,
		Requests: []RequestSpec{
			{URL: "https://example.com/a", Kind: "get", Output: "/out/a.txt"},
			{URL: "https://example.com/b"},
			{URL: "https://example.com/c", Headers: []string{"broken"}},
			{URL: "https://example.com/d", Output: "/out/d.bin"},
		},
	}
	res, err := RunBatch(context.Background(), cfg, io.Discard)
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if res.Total != 4 || res.Succeeded != 2 || res.Failed != 2 {
		t.Fatalf("result = %+v", res)
	}
	if res.IsSuccess() {
		t.Error("IsSuccess with failures")
	}
	if data, _ := afero.ReadFile(env.fs, "/out/a.txt"); string(data) != "alpha" {
		t.Errorf("a.txt = %q", data)
	}
	if exists, _ := afero.Exists(env.fs, "/out/d.bin"); !exists {
		t.Error("download destination not created")
	}
	if got := len(env.engine.Executed()); got != 3 {
		t.Errorf("expected 3 transfers, got %d", got)
	}
	if env.engine.OpenHandles() != 0 {
		t.Error("handles left open after the batch")
	}

	summary := res.String()
	for _, want := range []string{"Batch Summary", "https://example.com/b", "connection reset", "https://example.com/c", "invalid header"} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}
}

func TestRunBatch_NoneSucceeded(t *testing.T) {
	newTestEnv(t, respondWith(transporttest.Fail("down")))

	cfg := &BatchConfig{Requests: []RequestSpec{{URL: "https://a"}, {URL: "https://b"}}}
	res, err := RunBatch(context.Background(), cfg, io.Discard)
	if !errors.Is(err, fetchlib.ErrNoneSucceeded) {
		t.Fatalf("expected ErrNoneSucceeded, got %v", err)
	}
	if res == nil || res.Failed != 2 {
		t.Fatalf("result = %+v", res)
	}
}

func TestRunBatch_SharedCookies(t *testing.T) {
	env := newTestEnv(t, nil)

	cfg := &BatchConfig{
		Cookies:   true,
		CookieDir: "/cookies",
		TimeLimit: time.Minute,
		Requests: []RequestSpec{
			{URL: "https://example.com/login"},
			{URL: "https://example.com/fresh", ResetCookies: true},
			{URL: "ftp://example.com/pub/"},
		},
	}
	if _, err := RunBatch(context.Background(), cfg, io.Discard); err != nil {
		t.Fatalf("RunBatch: %v", err)
	}

	runs := env.engine.Executed()
	if len(runs) != 3 {
		t.Fatalf("expected 3 transfers, got %d", len(runs))
	}
	var shared string
	for _, opts := range runs {
		switch opts.URL {
		case "https://example.com/login":
			shared = opts.CookieFile
			if opts.CookieSession {
				t.Error("login request reset the cookie session")
			}
		case "https://example.com/fresh":
			if !opts.CookieSession {
				t.Error("fresh request kept the cookie session")
			}
		case "ftp://example.com/pub/":
			if opts.CookieFile != "" {
				t.Error("FTP request was given a cookie store")
			}
		}
	}
	if !strings.HasPrefix(shared, "/cookies/") {
		t.Errorf("cookie store %q not in the cookie directory", shared)
	}
	if exists, _ := afero.Exists(env.fs, shared); exists {
		t.Error("cookie store left behind after the batch")
	}
}

func TestRunBatch_CanceledContext(t *testing.T) {
	newTestEnv(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RunBatch(ctx, &BatchConfig{Requests: []RequestSpec{{URL: "https://a"}}}, io.Discard)
	if !errors.Is(err, fetchlib.ErrSessionAborted) {
		t.Fatalf("expected ErrSessionAborted, got %v", err)
	}
}

func TestBatchResultString_Skipped(t *testing.T) {
	res := NewBatchResult(1)
	res.AddSuccess()
	res.Skipped = []InvalidLine{{LineNumber: 3, Content: "/tmp/x", Reason: "local paths are not URLs"}}
	out := res.String()
	if !strings.Contains(out, "line 3") || !strings.Contains(out, "local paths are not URLs") {
		t.Errorf("summary missing skipped line:\n%s", out)
	}
	if !res.IsSuccess() {
		t.Error("expected success")
	}
}

func TestRunBatch_LogFile(t *testing.T) {
	env := newTestEnv(t, nil)
	cfg := &BatchConfig{
		LogFile:  "/logs/batch.log",
		Requests: []RequestSpec{{URL: "https://example.com/a"}},
	}
	if _, err := RunBatch(context.Background(), cfg, io.Discard); err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	data, err := afero.ReadFile(env.fs, "/logs/batch.log")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "starting 1 requests") {
		t.Errorf("log file = %q", data)
	}
	if !strings.Contains(env.errOut.String(), "starting 1 requests") {
		t.Errorf("console log missing: %q", env.errOut.String())
	}
}
