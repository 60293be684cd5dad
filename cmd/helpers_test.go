package cmd

import (
	"bytes"
	"testing"

	"github.com/spf13/afero"
	"github.com/warpdl/warpfetch/pkg/credman"
	"github.com/warpdl/warpfetch/pkg/logger"
	"github.com/warpdl/warpfetch/pkg/transport"
	"github.com/warpdl/warpfetch/pkg/transport/transporttest"
)

// testEnv swaps the engine, filesystem, output streams and password
// source of the commands for the duration of a test.
type testEnv struct {
	engine *transporttest.Engine
	fs     afero.Fs
	out    *bytes.Buffer
	errOut *bytes.Buffer
	creds  fakeCreds
}

func newTestEnv(t *testing.T, respond func(transport.Options) transporttest.Result) *testEnv {
	t.Helper()
	env := &testEnv{
		engine: transporttest.NewEngine(respond),
		fs:     afero.NewMemMapFs(),
		out:    &bytes.Buffer{},
		errOut: &bytes.Buffer{},
		creds:  fakeCreds{},
	}
	origEngine, origFs, origOut, origErr, origCreds := newEngine, commandFs, stdout, stderr, credSource
	newEngine = func(logger.Logger, afero.Fs) transport.Engine { return env.engine }
	commandFs = env.fs
	stdout = env.out
	stderr = env.errOut
	credSource = func() passwordSource { return env.creds }
	t.Cleanup(func() {
		newEngine, commandFs, stdout, stderr, credSource = origEngine, origFs, origOut, origErr, origCreds
	})
	return env
}

// executed returns the options of the only transfer run so far.
func (env *testEnv) executed(t *testing.T) transport.Options {
	t.Helper()
	runs := env.engine.Executed()
	if len(runs) != 1 {
		t.Fatalf("expected 1 transfer, got %d", len(runs))
	}
	return runs[0]
}

// fakeCreds maps user@host to a password.
type fakeCreds map[string]string

func (f fakeCreds) Password(user, host string) (string, error) {
	p, ok := f[user+"@"+host]
	if !ok {
		return "", credman.ErrNotFound
	}
	return p, nil
}

func byURL(results map[string]transporttest.Result) func(transport.Options) transporttest.Result {
	return func(opts transport.Options) transporttest.Result {
		if r, ok := results[opts.URL]; ok {
			return r
		}
		return transporttest.OK(200, "")
	}
}

func containsLine(lines []string, want string) bool {
	for _, l := range lines {
		if l == want {
			return true
		}
	}
	return false
}
