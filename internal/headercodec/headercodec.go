// Package headercodec serializes and deserializes an HTTP header
// collection to and from the compact JSON text form stored in the
// metadata database.
package headercodec

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/AdguardTeam/golibs/log"
)

// Encode serializes headers to a JSON object, comma-joining repeated
// values for the same canonical name as HTTP permits (a JSON object
// cannot carry duplicate keys). Returns "" on failure instead of
// propagating an error, matching the encode-side failure policy.
func Encode(headers http.Header) string {
	flat := make(map[string]string, len(headers))
	for name, values := range headers {
		flat[name] = strings.Join(values, ", ")
	}

	data, err := json.Marshal(flat)
	if err != nil {
		log.Debug("headercodec: encode failed: %v", err)
		return ""
	}
	return string(data)
}

// Decode deserializes a JSON object into a single-valued header
// collection keyed case-insensitively (via http.Header's canonical
// key form). Malformed or non-object JSON yields an empty collection
// and never panics or returns an error.
func Decode(headerJSON string) http.Header {
	headers := make(http.Header)
	if headerJSON == "" {
		return headers
	}

	var flat map[string]string
	if err := json.Unmarshal([]byte(headerJSON), &flat); err != nil {
		log.Debug("headercodec: decode failed: %v", err)
		return make(http.Header)
	}

	for name, value := range flat {
		headers.Set(name, value)
	}
	return headers
}
