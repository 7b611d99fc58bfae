// Package harlog reads and writes StreamQueue transaction logs.
//
// A transaction log is a HAR-shaped JSON container holding the captured
// extension traffic: audio-chunk uploads and speaker-activity updates.
// The package parses entries into typed call records and serializes
// synthesized entries back into the same format, so generated logs
// round-trip through the loader.
package harlog

import (
	"time"
)

// URL substring markers used to classify entries.
const (
	AudioURLMarker    = "/extension/audio"
	SpeakersURLMarker = "/extension/speakers"
)

// Timestamp layouts accepted in startedDateTime. Captures carry RFC 3339
// with a zone; generated logs may omit the zone.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
}

// NameValuePair is a single name/value element of a queryString or
// headers list.
type NameValuePair struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// PostData holds a request body as log text. The text is a byte-preserving
// latin-1 rendition of the raw body; see DecodeBodyText.
type PostData struct {
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text"`
}

// Request is the captured HTTP request of one entry.
type Request struct {
	Method      string          `json:"method"`
	URL         string          `json:"url"`
	QueryString []NameValuePair `json:"queryString"`
	Headers     []NameValuePair `json:"headers"`
	PostData    *PostData       `json:"postData,omitempty"`
}

// Entry is one captured transaction.
type Entry struct {
	StartedDateTime string  `json:"startedDateTime"`
	Request         Request `json:"request"`
}

// Creator identifies the tool that produced an archive.
type Creator struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Log is the entry container inside an archive.
type Log struct {
	Version string   `json:"version"`
	Creator *Creator `json:"creator,omitempty"`
	Entries []Entry  `json:"entries"`
}

// Archive is the top-level transaction log object. Log must be present;
// its absence is a format error.
type Archive struct {
	Log *Log `json:"log"`
}

// FormatTimestamp renders a time as a startedDateTime value.
func FormatTimestamp(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

// ParseTimestamp parses a startedDateTime value.
func ParseTimestamp(s string) (time.Time, error) {
	var err error
	for _, layout := range timestampLayouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

// Time returns the entry's parsed timestamp, or the zero time if it does
// not parse.
func (e Entry) Time() time.Time {
	t, err := ParseTimestamp(e.StartedDateTime)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Query returns the entry's query parameters as a map. Later duplicates
// win, matching how the capture tooling flattened them.
func (e Entry) Query() map[string]string {
	q := make(map[string]string, len(e.Request.QueryString))
	for _, p := range e.Request.QueryString {
		q[p.Name] = p.Value
	}
	return q
}

// HeaderMap returns the entry's headers as a map.
func (e Entry) HeaderMap() map[string]string {
	h := make(map[string]string, len(e.Request.Headers))
	for _, p := range e.Request.Headers {
		h[p.Name] = p.Value
	}
	return h
}
