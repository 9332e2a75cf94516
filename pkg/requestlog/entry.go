package requestlog

import (
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxPayloadSize caps the request body kept on an entry.
const MaxPayloadSize = 10 * 1024

// Entry describes one answered request. It is never mutated once published.
type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`

	// Endpoint is the index of the matched endpoint; nil when nothing matched.
	Endpoint *int `json:"endpoint"`

	Method     string `json:"method"`
	Path       string `json:"path"`
	Query      string `json:"query,omitempty"`
	Status     int    `json:"status"`
	DurationMs int64  `json:"duration_ms"`
	Scenario   string `json:"scenario,omitempty"`

	// Payload is the request body, truncated to MaxPayloadSize.
	Payload string `json:"payload,omitempty"`
}

// NewEntry returns an entry with a fresh ID and the current time.
func NewEntry(service, method, path string) *Entry {
	return &Entry{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Service:   service,
		Method:    method,
		Path:      path,
	}
}

// SetPayload stores body, truncated to MaxPayloadSize. The cut never splits
// a UTF-8 sequence.
func (e *Entry) SetPayload(body []byte) {
	if len(body) > MaxPayloadSize {
		cut := MaxPayloadSize
		for i := 0; i < utf8.UTFMax && cut > 0 && !utf8.RuneStart(body[cut]); i++ {
			cut--
		}
		body = body[:cut]
	}
	e.Payload = string(body)
}

// Matched reports whether the request hit a declared endpoint.
func (e *Entry) Matched() bool { return e.Endpoint != nil }
