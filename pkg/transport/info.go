package transport

// Info holds the summary metrics of one transfer. Integer metrics are
// int64, times are float64 seconds.
type Info map[string]any

// Info keys.
const (
	InfoResponseCode      = "response_code"
	InfoHTTPCode          = "http_code"
	InfoEffectiveURL      = "effective_url"
	InfoContentType       = "content_type"
	InfoTotalTime         = "total_time"
	InfoNameLookupTime    = "namelookup_time"
	InfoConnectTime       = "connect_time"
	InfoAppConnectTime    = "appconnect_time"
	InfoStartTransferTime = "starttransfer_time"
	InfoRedirectCount     = "redirect_count"
	InfoRedirectURL       = "redirect_url"
	InfoSizeDownload      = "size_download"
	InfoSizeUpload        = "size_upload"
	InfoSpeedDownload     = "speed_download"
	InfoSpeedUpload       = "speed_upload"
	InfoContentLength     = "download_content_length"
	InfoHeaderSize        = "header_size"
	InfoRequestSize       = "request_size"
	InfoPrimaryIP         = "primary_ip"
	InfoPrimaryPort       = "primary_port"
	InfoLocalIP           = "local_ip"
	InfoLocalPort         = "local_port"
	InfoSSLVerifyResult   = "ssl_verify_result"
	InfoScheme            = "scheme"
)

// Clone returns a shallow copy of i.
func (i Info) Clone() Info {
	out := make(Info, len(i))
	for k, v := range i {
		out[k] = v
	}
	return out
}
