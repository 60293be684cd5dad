package fetchlib

import (
	"fmt"
	"strings"

	"github.com/warpdl/warpfetch/pkg/transport"
)

// Kind selects the operation a Request performs.
type Kind int

const (
	KindGet Kind = iota
	// KindDownload is a GET whose body is written to the destination file.
	KindDownload
	// KindPost posts form fields set through SetPostFields.
	KindPost
	// KindPostUpload posts the upload file as the request body.
	KindPostUpload
	// KindPutUpload PUTs the upload file.
	KindPutUpload
	KindDelete
	KindHead
	KindFTPList
	KindFTPDownload
	KindFTPUpload
	// KindAnyDownload downloads over HTTP or FTP depending on the URL scheme.
	KindAnyDownload
)

var kindNames = [...]string{
	KindGet:         "get",
	KindDownload:    "download",
	KindPost:        "post",
	KindPostUpload:  "post-upload",
	KindPutUpload:   "put-upload",
	KindDelete:      "delete",
	KindHead:        "head",
	KindFTPList:     "ftp-list",
	KindFTPDownload: "ftp-download",
	KindFTPUpload:   "ftp-upload",
	KindAnyDownload: "any-download",
}

func (k Kind) String() string {
	if !k.valid() {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind maps a kind name as printed by String back to its Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if strings.EqualFold(s, name) {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown request kind %q", s)
}

func (k Kind) valid() bool {
	return k >= KindGet && k <= KindAnyDownload
}

// NeedsDestination reports whether the kind writes its body to a file.
func (k Kind) NeedsDestination() bool {
	return k == KindDownload || k == KindFTPDownload || k == KindAnyDownload
}

// Uploads reports whether the kind sends a file or buffer.
func (k Kind) Uploads() bool {
	return k == KindPostUpload || k == KindPutUpload || k == KindFTPUpload
}

// Protocol is the protocol family of a request.
type Protocol int

const (
	ProtocolHTTP Protocol = iota
	ProtocolFTP
)

func (p Protocol) String() string {
	if p == ProtocolFTP {
		return "FTP"
	}
	return "HTTP"
}

func (p Protocol) defaultScheme() string {
	if p == ProtocolFTP {
		return "ftp"
	}
	return "http"
}

func (p Protocol) accepts(scheme string) bool {
	if p == ProtocolFTP {
		return scheme == "ftp" || scheme == "ftps"
	}
	return scheme == "http" || scheme == "https"
}

// protocolFor derives the protocol family of k. scheme is only consulted
// for KindAnyDownload; an empty scheme means HTTP.
func protocolFor(k Kind, scheme string) Protocol {
	switch k {
	case KindFTPList, KindFTPDownload, KindFTPUpload:
		return ProtocolFTP
	case KindAnyDownload:
		if scheme == "ftp" || scheme == "ftps" {
			return ProtocolFTP
		}
	}
	return ProtocolHTTP
}

func (k Kind) op(p Protocol) transport.Op {
	switch k {
	case KindPost, KindPostUpload:
		return transport.OpPost
	case KindPutUpload:
		return transport.OpPut
	case KindDelete:
		return transport.OpDelete
	case KindHead:
		return transport.OpHead
	case KindFTPList:
		return transport.OpList
	case KindFTPDownload:
		return transport.OpRetrieve
	case KindFTPUpload:
		return transport.OpStore
	case KindAnyDownload:
		if p == ProtocolFTP {
			return transport.OpRetrieve
		}
	}
	return transport.OpGet
}
