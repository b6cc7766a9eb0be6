package fetcher

import (
	"crypto/tls"
	"net/http"

	"golang.org/x/net/http2"
)

// newHTTPClient builds the shared client used for every mirror: a plain
// http.Transport upgraded to also speak HTTP/2 in-process via
// http2.ConfigureTransport, so https mirrors that support it avoid opening
// a new TCP connection per concurrent request.
func newHTTPClient() *http.Client {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
	}
	_ = http2.ConfigureTransport(transport)
	return &http.Client{Transport: transport}
}
