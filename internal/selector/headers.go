package selector

import "net/http"

// hopByHopHeaders must be stripped crossing either direction of the proxy to
// avoid framing corruption: the upstream connection has its own framing,
// distinct from the one the downstream client negotiated.
var hopByHopHeaders = []string{
	"Host",
	"Content-Length",
	"Connection",
	"Content-Encoding",
	"Transfer-Encoding",
}

func stripHopByHop(h http.Header) {
	for _, name := range hopByHopHeaders {
		h.Del(name)
	}
}

// buildUpstreamHeaders applies caller-supplied headers in insertion order,
// then overlays the endpoint's configured headers (which always win on key
// collision), and strips hop-by-hop/framing headers from the result.
func buildUpstreamHeaders(caller http.Header, endpointHeaders map[string]string) http.Header {
	out := make(http.Header, len(caller)+len(endpointHeaders))
	for k, values := range caller {
		for _, v := range values {
			out.Add(k, v)
		}
	}
	for k, v := range endpointHeaders {
		out.Set(k, v)
	}
	stripHopByHop(out)
	return out
}
