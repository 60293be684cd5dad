// Package cookies implements the cookie store shared by the requests of one
// warpfetch session.
//
// The store is a Netscape-format text file (the format curl and wget use for
// cookie jars). A Jar loads the file, serves it to net/http as an
// http.CookieJar during one transfer, and merges the cookies the transfer
// changed back into the file when flushed. Several jars may be open on the
// same file at once; the caller supplies the lock that serialises the
// load/merge/save cycle.
//
// Cookies can also be imported from Firefox and Chrome SQLite stores to seed
// a session's store. Cookie values are never logged.
package cookies
