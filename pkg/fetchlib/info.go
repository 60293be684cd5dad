package fetchlib

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/warpdl/warpfetch/pkg/transport"
)

func (r *Request) mustCompleted(accessor string) {
	if r.state != StateCompletedOK {
		panic(fmt.Sprintf("fetchlib: %s requires a successfully completed request, state is %s", accessor, r.state))
	}
}

// Body returns the body of a completed request.
func (r *Request) Body() []byte {
	r.mustCompleted("Body")
	return r.body
}

func (r *Request) infoInt(key string) int64 {
	switch v := r.info[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case bool:
		if v {
			return 1
		}
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	}
	return 0
}

func (r *Request) infoFloat(key string) float64 {
	switch v := r.info[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	}
	return 0
}

func (r *Request) infoBool(key string) bool {
	switch v := r.info[key].(type) {
	case bool:
		return v
	case int64:
		return v != 0
	case int:
		return v != 0
	case float64:
		return v != 0
	}
	return false
}

func (r *Request) infoString(key string) string {
	switch v := r.info[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// InfoInt returns the integer metric key of a completed request, or 0 when
// it is absent.
func (r *Request) InfoInt(key string) int64 {
	r.mustCompleted("InfoInt")
	return r.infoInt(key)
}

// InfoFloat returns the numeric metric key, or 0 when it is absent.
func (r *Request) InfoFloat(key string) float64 {
	r.mustCompleted("InfoFloat")
	return r.infoFloat(key)
}

// InfoBool returns the boolean metric key, or false when it is absent.
// Numbers are true when non-zero.
func (r *Request) InfoBool(key string) bool {
	r.mustCompleted("InfoBool")
	return r.infoBool(key)
}

// InfoString returns the metric key formatted as text, or "" when absent.
func (r *Request) InfoString(key string) string {
	r.mustCompleted("InfoString")
	return r.infoString(key)
}

// Info returns a copy of every metric of a completed request.
func (r *Request) Info() transport.Info {
	r.mustCompleted("Info")
	if r.info == nil {
		return transport.Info{}
	}
	return r.info.Clone()
}

// ResponseCode returns the HTTP status or the last FTP reply code.
func (r *Request) ResponseCode() int {
	r.mustCompleted("ResponseCode")
	return int(r.infoInt(transport.InfoResponseCode))
}

func (r *Request) ContentType() string {
	r.mustCompleted("ContentType")
	return r.infoString(transport.InfoContentType)
}

// EffectiveURL returns the last URL used, after redirects.
func (r *Request) EffectiveURL() string {
	r.mustCompleted("EffectiveURL")
	return r.infoString(transport.InfoEffectiveURL)
}

func seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}

func (r *Request) TotalTime() time.Duration {
	r.mustCompleted("TotalTime")
	return seconds(r.infoFloat(transport.InfoTotalTime))
}

func (r *Request) ConnectTime() time.Duration {
	r.mustCompleted("ConnectTime")
	return seconds(r.infoFloat(transport.InfoConnectTime))
}

func (r *Request) NameLookupTime() time.Duration {
	r.mustCompleted("NameLookupTime")
	return seconds(r.infoFloat(transport.InfoNameLookupTime))
}

// StartTransferTime returns the time until the first response byte.
func (r *Request) StartTransferTime() time.Duration {
	r.mustCompleted("StartTransferTime")
	return seconds(r.infoFloat(transport.InfoStartTransferTime))
}

func (r *Request) RedirectCount() int {
	r.mustCompleted("RedirectCount")
	return int(r.infoInt(transport.InfoRedirectCount))
}

// DownloadSize returns the number of body bytes received.
func (r *Request) DownloadSize() int64 {
	r.mustCompleted("DownloadSize")
	return r.infoInt(transport.InfoSizeDownload)
}

// UploadSize returns the number of body bytes sent.
func (r *Request) UploadSize() int64 {
	r.mustCompleted("UploadSize")
	return r.infoInt(transport.InfoSizeUpload)
}

// DownloadSpeed returns the average download rate in bytes per second.
func (r *Request) DownloadSpeed() float64 {
	r.mustCompleted("DownloadSpeed")
	return r.infoFloat(transport.InfoSpeedDownload)
}

// ContentLength returns the announced body length, -1 when unknown.
func (r *Request) ContentLength() int64 {
	r.mustCompleted("ContentLength")
	if _, ok := r.info[transport.InfoContentLength]; !ok {
		return -1
	}
	return r.infoInt(transport.InfoContentLength)
}

func (r *Request) HeaderSize() int64 {
	r.mustCompleted("HeaderSize")
	return r.infoInt(transport.InfoHeaderSize)
}

func (r *Request) PrimaryIP() string {
	r.mustCompleted("PrimaryIP")
	return r.infoString(transport.InfoPrimaryIP)
}

func (r *Request) PrimaryPort() int {
	r.mustCompleted("PrimaryPort")
	return int(r.infoInt(transport.InfoPrimaryPort))
}

// SSLVerified reports whether the server certificate was verified.
func (r *Request) SSLVerified() bool {
	r.mustCompleted("SSLVerified")
	return r.infoBool(transport.InfoSSLVerifyResult)
}

// HasHeader reports whether the response carried the header name.
func (r *Request) HasHeader(name string) bool {
	r.mustCompleted("HasHeader")
	_, ok := r.respHeaders.Get(name)
	return ok
}

// Header returns the folded value of the response header name. It panics
// if the header is absent; check with HasHeader first.
func (r *Request) Header(name string) string {
	r.mustCompleted("Header")
	v, ok := r.respHeaders.Value(name)
	if !ok {
		panic(fmt.Sprintf("fetchlib: response has no %q header", name))
	}
	return v
}

// ResponseHeaders returns the folded response headers.
func (r *Request) ResponseHeaders() Headers {
	r.mustCompleted("ResponseHeaders")
	return append(Headers(nil), r.respHeaders...)
}

// HeaderLines returns the status line followed by the response header
// lines sorted by name.
func (r *Request) HeaderLines() []string {
	r.mustCompleted("HeaderLines")
	return append([]string(nil), r.headerLines...)
}
