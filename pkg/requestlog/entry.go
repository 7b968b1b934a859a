package requestlog

import (
	"time"
	"unicode/utf8"
)

// MaxBodyLength bounds the request body kept per entry.
const MaxBodyLength = 10 << 10

// Entry is one served request.
type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`

	Method      string              `json:"method"`
	Path        string              `json:"path"`
	QueryString string              `json:"queryString,omitempty"`
	Headers     map[string][]string `json:"headers,omitempty"`

	// Body is truncated to MaxBodyLength; BodySize is the original length.
	Body       string `json:"body,omitempty"`
	BodySize   int    `json:"bodySize"`
	RemoteAddr string `json:"remoteAddr,omitempty"`

	// MatchedMappingID is empty for unmatched requests.
	MatchedMappingID string  `json:"matchedMappingId,omitempty"`
	Score            float64 `json:"score,omitempty"`
	Partial          bool    `json:"partial,omitempty"`

	ResponseStatus int   `json:"responseStatus"`
	DurationMs     int64 `json:"durationMs"`

	Error string `json:"error,omitempty"`

	// NearMisses lists the closest mappings of an unmatched request.
	NearMisses []NearMissInfo `json:"nearMisses,omitempty"`
}

// Matched reports whether a mapping answered the request.
func (e *Entry) Matched() bool {
	return e.MatchedMappingID != ""
}

// TruncateBody returns body as a string of at most MaxBodyLength bytes,
// cut on a rune boundary.
func TruncateBody(body []byte) string {
	if len(body) <= MaxBodyLength {
		return string(body)
	}
	cut := MaxBodyLength
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return string(body[:cut])
}
