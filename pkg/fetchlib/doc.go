// Package fetchlib schedules HTTP, HTTPS, FTP and FTPS requests on top of
// a transport.Engine.
//
// A Request describes one operation and owns one transport handle. It can
// be sent on its own with Send, or added to a Session which runs many
// requests with bounded parallelism. Session callbacks run on the goroutine
// that called Start and may add further requests, which is how request
// chains and pagination are expressed:
//
//	s := fetchlib.NewSession(engine, &fetchlib.SessionOpts{MaxConcurrent: 4})
//	req, err := fetchlib.NewRequest(engine, "example.com/page/1", fetchlib.KindGet, nil)
//	if err != nil {
//		return err
//	}
//	s.AddRequest(req, func(ok bool, body []byte, req *fetchlib.Request, s *fetchlib.Session) {
//		// inspect body, s.AddRequest(next, ...)
//	}, false)
//	err = s.Start(ctx)
//
// Setter misuse, such as setting an HTTP header on an FTP request, is a
// programming error and panics. Transfer failures are reported through
// errors and the Failed/ErrMessage accessors.
//
// The Session cookie store lives on the Session filesystem while the
// engine reads and writes it through its own; both must be the same
// filesystem.
package fetchlib
