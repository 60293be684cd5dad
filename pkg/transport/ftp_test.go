package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	ftpserver "github.com/fclairamb/ftpserverlib"
	"github.com/spf13/afero"
)

// testFTPDriver implements ftpserver.MainDriver over an in-memory fs.
type testFTPDriver struct {
	fs       afero.Fs
	listener net.Listener
}

func (d *testFTPDriver) GetSettings() (*ftpserver.Settings, error) {
	return &ftpserver.Settings{
		Listener:    d.listener,
		IdleTimeout: 30,
	}, nil
}

func (d *testFTPDriver) ClientConnected(_ ftpserver.ClientContext) (string, error) {
	return "Welcome to test FTP server", nil
}

func (d *testFTPDriver) ClientDisconnected(_ ftpserver.ClientContext) {}

func (d *testFTPDriver) AuthUser(_ ftpserver.ClientContext, user, pass string) (ftpserver.ClientDriver, error) {
	if (user == "anonymous" && pass == "anonymous") || (user == "testuser" && pass == "testpass") {
		return afero.NewBasePathFs(d.fs, "/"), nil
	}
	return nil, fmt.Errorf("invalid credentials")
}

func (d *testFTPDriver) GetTLSConfig() (*tls.Config, error) {
	return nil, nil
}

// startFTPServer starts an FTP server over memFs and returns its address.
func startFTPServer(t *testing.T, memFs afero.Fs) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	server := ftpserver.NewFtpServer(&testFTPDriver{fs: memFs, listener: listener})
	go server.ListenAndServe()
	time.Sleep(100 * time.Millisecond)
	t.Cleanup(func() { server.Stop() })
	return listener.Addr().String()
}

func newFTPFixture(t *testing.T) (afero.Fs, string) {
	t.Helper()
	memFs := afero.NewMemMapFs()
	if err := afero.WriteFile(memFs, "/pub/testfile.bin", bytes.Repeat([]byte{0xAB}, 1024), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	if err := afero.WriteFile(memFs, "/pub/readme.txt", []byte("0123456789"), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	return memFs, startFTPServer(t, memFs)
}

func TestFTPExec_Retrieve(t *testing.T) {
	_, addr := newFTPFixture(t)
	h, body, err := execHandle(t, NewNetEngine(nil), Options{
		URL: "ftp://" + addr + "/pub/testfile.bin",
		Op:  OpRetrieve,
	})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if !bytes.Equal(body, bytes.Repeat([]byte{0xAB}, 1024)) {
		t.Errorf("unexpected body of %d bytes", len(body))
	}
	info := h.Info()
	if info[InfoResponseCode] != int64(226) {
		t.Errorf("response code = %v", info[InfoResponseCode])
	}
	if info[InfoContentLength] != int64(1024) {
		t.Errorf("content length = %v", info[InfoContentLength])
	}
}

func TestFTPExec_RetrieveRange(t *testing.T) {
	_, addr := newFTPFixture(t)
	e := NewNetEngine(nil)

	_, body, err := execHandle(t, e, Options{URL: "ftp://" + addr + "/pub/readme.txt", Op: OpRetrieve, Range: "3-5"})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if string(body) != "345" {
		t.Errorf("closed range body = %q", body)
	}

	_, body, err = execHandle(t, e, Options{URL: "ftp://" + addr + "/pub/readme.txt", Op: OpRetrieve, Range: "7-"})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if string(body) != "789" {
		t.Errorf("open range body = %q", body)
	}
}

func TestFTPExec_List(t *testing.T) {
	_, addr := newFTPFixture(t)
	_, body, err := execHandle(t, NewNetEngine(nil), Options{
		URL:      "ftp://" + addr + "/pub/",
		Op:       OpList,
		Username: "testuser",
		Password: "testpass",
	})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	for _, name := range []string{"testfile.bin", "readme.txt"} {
		if !strings.Contains(string(body), name) {
			t.Errorf("listing %q misses %s", body, name)
		}
	}
}

func TestFTPExec_StoreCreatesDirsAndAppends(t *testing.T) {
	memFs, addr := newFTPFixture(t)
	e := NewNetEngine(nil)

	h, _, err := execHandle(t, e, Options{
		URL:           "ftp://" + addr + "/up/load/new.txt",
		Op:            OpStore,
		Upload:        strings.NewReader("hello"),
		FTPCreateDirs: true,
	})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if h.Info()[InfoSizeUpload] != int64(5) {
		t.Errorf("size_upload = %v", h.Info()[InfoSizeUpload])
	}

	if _, _, err := execHandle(t, e, Options{
		URL:       "ftp://" + addr + "/up/load/new.txt",
		Op:        OpStore,
		Upload:    strings.NewReader(" world"),
		FTPAppend: true,
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	data, err := afero.ReadFile(memFs, "/up/load/new.txt")
	if err != nil {
		t.Fatalf("read stored file: %v", err)
	}
	if string(data) != "hello world" {
		t.Errorf("stored = %q", data)
	}
}

func TestFTPExec_QuoteCommands(t *testing.T) {
	memFs, addr := newFTPFixture(t)
	_, _, err := execHandle(t, NewNetEngine(nil), Options{
		URL:          "ftp://" + addr + "/pub/readme.txt",
		Op:           OpRetrieve,
		FTPQuote:     []string{"MKD /made", "*DELE /does-not-exist"},
		FTPPostQuote: []string{"RNFR /pub/readme.txt", "RNTO /pub/done.txt"},
	})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if ok, _ := afero.DirExists(memFs, "/made"); !ok {
		t.Error("pre-transfer MKD not run")
	}
	if ok, _ := afero.Exists(memFs, "/pub/done.txt"); !ok {
		t.Error("post-transfer rename not run")
	}
}

func TestFTPExec_LoginFailure(t *testing.T) {
	_, addr := newFTPFixture(t)
	h, _, err := execHandle(t, NewNetEngine(nil), Options{
		URL:      "ftp://" + addr + "/pub/readme.txt",
		Op:       OpRetrieve,
		Username: "testuser",
		Password: "wrong",
	})
	var te *TransferError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransferError, got %v", err)
	}
	if te.Op != "login" || te.Code != 530 {
		t.Errorf("TransferError = %+v", te)
	}
	if h.Info()[InfoResponseCode] != int64(530) {
		t.Errorf("response code = %v", h.Info()[InfoResponseCode])
	}
}

func TestFTPExec_ConnectOnly(t *testing.T) {
	_, addr := newFTPFixture(t)
	h, body, err := execHandle(t, NewNetEngine(nil), Options{
		URL:         "ftp://" + addr + "/pub/readme.txt",
		Op:          OpRetrieve,
		ConnectOnly: true,
	})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if len(body) != 0 {
		t.Errorf("connect-only returned a body: %q", body)
	}
	if h.Info()[InfoResponseCode] != int64(230) {
		t.Errorf("response code = %v", h.Info()[InfoResponseCode])
	}
}

func TestFTPExec_TimeoutAbortsTransfer(t *testing.T) {
	// A listener that accepts but never greets.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			defer c.Close()
		}
	}()

	start := time.Now()
	_, _, err = execHandle(t, NewNetEngine(nil), Options{
		URL:     "ftp://" + ln.Addr().String() + "/x",
		Op:      OpRetrieve,
		Timeout: 200 * time.Millisecond,
	})
	if err == nil {
		t.Fatal("expected a timeout error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Errorf("timeout not honoured, took %s", time.Since(start))
	}
}
