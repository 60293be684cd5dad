// Package types holds the records persisted by the credential vault.
package types

import (
	"strings"
	"time"
)

// Credential is one sealed secret of the fallback vault.
type Credential struct {
	Account string
	Sealed  []byte
	Updated time.Time
}

// Account names the secret of user on host, as user@host. Hosts are
// compared case-insensitively.
func Account(user, host string) string {
	return user + "@" + strings.ToLower(host)
}
