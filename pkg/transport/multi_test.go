package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// drain drives m until every registered transfer has completed and returns
// the completion messages.
func drain(t *testing.T, m Multi) []Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var msgs []Message
	for {
		code, running := m.Perform()
		if code != CodeOK {
			t.Fatalf("Perform: %s", code)
		}
		for {
			msg, ok := m.InfoRead()
			if !ok {
				break
			}
			msgs = append(msgs, msg)
		}
		if running == 0 {
			return msgs
		}
		if _, err := m.Wait(ctx, time.Second); err != nil && !errors.Is(err, ErrWaitAgain) {
			t.Fatalf("Wait: %v", err)
		}
	}
}

func TestMulti_RunsTransfersConcurrently(t *testing.T) {
	var active, peak atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		if n == 3 {
			close(release)
		}
		select {
		case <-release:
		case <-time.After(5 * time.Second):
		}
		active.Add(-1)
		fmt.Fprint(w, r.URL.Path)
	}))
	defer srv.Close()

	e := NewNetEngine(nil)
	m, _ := e.NewMulti()
	defer m.Close()

	handles := make(map[Handle]string)
	for i := 0; i < 3; i++ {
		h, _ := e.NewHandle()
		defer h.Close()
		path := fmt.Sprintf("/%d", i)
		if err := h.SetOptions(Options{URL: srv.URL + path}); err != nil {
			t.Fatalf("SetOptions: %v", err)
		}
		if code := m.Add(h); code != CodeOK {
			t.Fatalf("Add: %s", code)
		}
		handles[h] = path
	}

	msgs := drain(t, m)
	if len(msgs) != 3 {
		t.Fatalf("expected 3 completions, got %d", len(msgs))
	}
	for _, msg := range msgs {
		if msg.Err != nil {
			t.Errorf("transfer failed: %v", msg.Err)
		}
		if got := string(msg.Handle.Output()); got != handles[msg.Handle] {
			t.Errorf("body = %q, want %q", got, handles[msg.Handle])
		}
		if code := m.Remove(msg.Handle); code != CodeOK {
			t.Errorf("Remove: %s", code)
		}
	}
	if peak.Load() != 3 {
		t.Errorf("expected 3 concurrent transfers, peak was %d", peak.Load())
	}
}

func TestMulti_MaxTotalConnections(t *testing.T) {
	var active, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := active.Add(1)
		if n > peak.Load() {
			peak.Store(n)
		}
		time.Sleep(20 * time.Millisecond)
		active.Add(-1)
	}))
	defer srv.Close()

	e := NewNetEngine(nil)
	m, _ := e.NewMulti()
	defer m.Close()
	if code := m.SetOption(MultiMaxTotalConnections, 1); code != CodeOK {
		t.Fatalf("SetOption: %s", code)
	}
	for i := 0; i < 4; i++ {
		h, _ := e.NewHandle()
		defer h.Close()
		h.SetOptions(Options{URL: srv.URL})
		m.Add(h)
	}
	if msgs := drain(t, m); len(msgs) != 4 {
		t.Fatalf("expected 4 completions, got %d", len(msgs))
	}
	if peak.Load() != 1 {
		t.Errorf("cap of 1 exceeded, peak %d", peak.Load())
	}
}

func TestMulti_ReportsFailuresPerHandle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	e := NewNetEngine(nil)
	m, _ := e.NewMulti()
	defer m.Close()
	good, _ := e.NewHandle()
	bad, _ := e.NewHandle()
	good.SetOptions(Options{URL: srv.URL + "/good", FailOnError: true})
	bad.SetOptions(Options{URL: srv.URL + "/bad", FailOnError: true})
	m.Add(good)
	m.Add(bad)

	for _, msg := range drain(t, m) {
		switch msg.Handle {
		case good:
			if msg.Err != nil {
				t.Errorf("good transfer failed: %v", msg.Err)
			}
		case bad:
			if msg.Err == nil {
				t.Error("bad transfer should fail")
			}
		}
	}
}

func TestMulti_HandleRules(t *testing.T) {
	e := NewNetEngine(nil)
	m, _ := e.NewMulti()
	h, _ := e.NewHandle()

	if code := m.Add(h); code != CodeBadEasyHandle {
		t.Errorf("unconfigured handle: got %s", code)
	}
	h.SetOptions(Options{URL: "http://127.0.0.1:1/"})
	if code := m.Add(h); code != CodeOK {
		t.Fatalf("Add: %s", code)
	}
	if code := m.Add(h); code != CodeAddedAlready {
		t.Errorf("second Add: got %s", code)
	}
	if err := h.SetOptions(Options{URL: "http://127.0.0.1:1/"}); !errors.Is(err, ErrHandleBusy) {
		t.Errorf("SetOptions while registered: got %v", err)
	}
	if _, err := h.Exec(context.Background()); !errors.Is(err, ErrHandleBusy) {
		t.Errorf("Exec while registered: got %v", err)
	}
	if code := m.SetOption(MultiOption(99), 1); code != CodeUnknownOption {
		t.Errorf("unknown option: got %s", code)
	}
	if code := m.SetOption(MultiMaxTotalConnections, -1); code != CodeBadArgument {
		t.Errorf("negative option: got %s", code)
	}

	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := h.Close(); !errors.Is(err, ErrHandleReleased) {
		t.Errorf("second Close: got %v", err)
	}
	if _, running := m.Perform(); running != 0 {
		t.Errorf("closed handle should leave the multi, running = %d", running)
	}

	if err := m.Close(); err != nil {
		t.Fatalf("multi Close: %v", err)
	}
	if err := m.Close(); !errors.Is(err, ErrHandleReleased) {
		t.Errorf("second multi Close: got %v", err)
	}
	if code, _ := m.Perform(); code != CodeBadHandle {
		t.Errorf("Perform after Close: got %s", code)
	}
}

func TestMulti_RemoveAbortsRunningTransfer(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	e := NewNetEngine(nil)
	m, _ := e.NewMulti()
	defer m.Close()
	h, _ := e.NewHandle()
	defer h.Close()
	h.SetOptions(Options{URL: srv.URL})
	m.Add(h)
	m.Perform()

	done := make(chan Code)
	go func() { done <- m.Remove(h) }()
	select {
	case code := <-done:
		if code != CodeOK {
			t.Errorf("Remove: %s", code)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Remove did not abort the running transfer")
	}
	if _, ok := m.InfoRead(); ok {
		t.Error("removed transfer must not report a completion")
	}
}

func TestMulti_WaitTimeoutAndContext(t *testing.T) {
	m, _ := NewNetEngine(nil).NewMulti()
	defer m.Close()

	n, err := m.Wait(context.Background(), 10*time.Millisecond)
	if n != 0 || err != nil {
		t.Errorf("timeout wait = %d, %v", n, err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.Wait(ctx, 0); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled wait = %v", err)
	}
}

func TestCode_String(t *testing.T) {
	tests := map[Code]string{
		CodeOK:               "no error",
		CodeCallMultiPerform: "please call perform again",
		CodeAddedAlready:     "the handle is already added to a multi handle",
		Code(42):             "unknown error (42)",
	}
	for code, want := range tests {
		if got := code.String(); got != want {
			t.Errorf("Code(%d).String() = %q, want %q", int(code), got, want)
		}
	}
}
