package harlog

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind tags a call record as audio or speakers.
type Kind string

const (
	KindAudio    Kind = "audio"
	KindSpeakers Kind = "speakers"
)

// Classify reports the kind of call an entry URL represents. The second
// return is false for URLs that are neither, which the loader ignores.
func Classify(url string) (Kind, bool) {
	switch {
	case strings.Contains(url, AudioURLMarker):
		return KindAudio, true
	case strings.Contains(url, SpeakersURLMarker):
		return KindSpeakers, true
	default:
		return "", false
	}
}

// Call is the base captured-call record shared by both variants.
// Timestamp is immutable once parsed; ordering logic reorders sequences,
// never records.
type Call struct {
	Method    string
	URL       string
	Headers   map[string]string
	Query     map[string]string
	Body      []byte
	Timestamp time.Time
}

// AudioCall is one audio chunk upload. ChunkIndex, ConnectionID and
// MeetingID come from the i, connection_id and meeting_id query
// parameters and are all required.
type AudioCall struct {
	Call
	ChunkIndex   int
	ConnectionID string
	MeetingID    string
}

// SpeakersCall is one speaker-activity update. MeetingID is required;
// ConnectionID is optional (absent means a global update); CallName is
// an optional label.
type SpeakersCall struct {
	Call
	MeetingID    string
	ConnectionID string
	CallName     string
	Speakers     []SpeakerState
}

// SpeakerState is one (speaker_name, meta_bits) pair from a speakers
// call body. MetaBits is a bitstring; the fraction of '1' characters
// encodes whether the speaker is talking.
type SpeakerState struct {
	Name     string
	MetaBits string
}

// ActiveFraction returns the fraction of '1' characters in MetaBits.
func (s SpeakerState) ActiveFraction() float64 {
	if len(s.MetaBits) == 0 {
		return 0
	}
	ones := 0
	for _, c := range s.MetaBits {
		if c == '1' {
			ones++
		}
	}
	return float64(ones) / float64(len(s.MetaBits))
}

// Active reports whether the speaker is talking (active fraction > 0.5).
func (s SpeakerState) Active() bool {
	return s.ActiveFraction() > 0.5
}

// newCall builds the base record from an entry.
func newCall(e Entry) (Call, error) {
	ts, err := ParseTimestamp(e.StartedDateTime)
	if err != nil {
		return Call{}, fmt.Errorf("bad startedDateTime %q: %w", e.StartedDateTime, err)
	}

	var body []byte
	if e.Request.PostData != nil {
		body, err = DecodeBodyText(e.Request.PostData.Text)
		if err != nil {
			return Call{}, err
		}
	}

	return Call{
		Method:    e.Request.Method,
		URL:       e.Request.URL,
		Headers:   e.HeaderMap(),
		Query:     e.Query(),
		Body:      body,
		Timestamp: ts,
	}, nil
}

// ParseAudioCall builds an AudioCall from an entry. It fails if any of
// the required query parameters is missing or the chunk index is not an
// integer.
func ParseAudioCall(e Entry) (*AudioCall, error) {
	base, err := newCall(e)
	if err != nil {
		return nil, err
	}

	rawIndex, ok := base.Query["i"]
	if !ok {
		return nil, fmt.Errorf("audio call missing query parameter %q", "i")
	}
	index, err := strconv.Atoi(rawIndex)
	if err != nil {
		return nil, fmt.Errorf("audio call chunk index %q is not an integer", rawIndex)
	}
	if index < 0 {
		return nil, fmt.Errorf("audio call chunk index %d is negative", index)
	}

	connectionID, ok := base.Query["connection_id"]
	if !ok || connectionID == "" {
		return nil, fmt.Errorf("audio call missing query parameter %q", "connection_id")
	}
	meetingID, ok := base.Query["meeting_id"]
	if !ok || meetingID == "" {
		return nil, fmt.Errorf("audio call missing query parameter %q", "meeting_id")
	}

	return &AudioCall{
		Call:         base,
		ChunkIndex:   index,
		ConnectionID: connectionID,
		MeetingID:    meetingID,
	}, nil
}

// ParseSpeakersCall builds a SpeakersCall from an entry. meeting_id is
// required; connection_id and call_name are optional. A body, when
// present, must decode as a JSON list of [name, meta_bits] string pairs.
func ParseSpeakersCall(e Entry) (*SpeakersCall, error) {
	base, err := newCall(e)
	if err != nil {
		return nil, err
	}

	meetingID := base.Query["meeting_id"]
	if meetingID == "" {
		return nil, fmt.Errorf("speakers call missing query parameter %q", "meeting_id")
	}

	var speakers []SpeakerState
	if len(base.Body) > 0 {
		speakers, err = DecodeSpeakerStates(base.Body)
		if err != nil {
			return nil, err
		}
	}

	return &SpeakersCall{
		Call:         base,
		MeetingID:    meetingID,
		ConnectionID: base.Query["connection_id"],
		CallName:     base.Query["call_name"],
		Speakers:     speakers,
	}, nil
}

// DecodeSpeakerStates parses a speakers-call body. Pairs with extra
// trailing elements are accepted; pairs with fewer than two are not.
func DecodeSpeakerStates(body []byte) ([]SpeakerState, error) {
	var raw [][]string
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("speakers body is not a [name, meta] pair list: %w", err)
	}
	states := make([]SpeakerState, 0, len(raw))
	for i, pair := range raw {
		if len(pair) < 2 {
			return nil, fmt.Errorf("speakers body pair %d has %d elements, want 2", i, len(pair))
		}
		states = append(states, SpeakerState{Name: pair[0], MetaBits: pair[1]})
	}
	return states, nil
}

// EncodeSpeakerStates serializes speaker states back into the wire pair
// list. DecodeSpeakerStates(EncodeSpeakerStates(s)) round-trips.
func EncodeSpeakerStates(states []SpeakerState) ([]byte, error) {
	raw := make([][]string, len(states))
	for i, s := range states {
		raw[i] = []string{s.Name, s.MetaBits}
	}
	return json.Marshal(raw)
}

// Record is one classified call in file order, tagged by kind. Exactly
// one of Audio and Speakers is set.
type Record struct {
	Kind     Kind
	Audio    *AudioCall
	Speakers *SpeakersCall
}

// Time returns the record's capture timestamp.
func (r Record) Time() time.Time {
	if r.Kind == KindAudio {
		return r.Audio.Timestamp
	}
	return r.Speakers.Timestamp
}

// CallLog is the loader's output: classified records in original file
// order plus the non-fatal warnings produced while reading.
type CallLog struct {
	Records  []Record
	Warnings []string
}

// AudioCalls returns the audio records in file order.
func (l *CallLog) AudioCalls() []*AudioCall {
	var calls []*AudioCall
	for _, r := range l.Records {
		if r.Kind == KindAudio {
			calls = append(calls, r.Audio)
		}
	}
	return calls
}

// SpeakerCalls returns the speakers records in file order.
func (l *CallLog) SpeakerCalls() []*SpeakersCall {
	var calls []*SpeakersCall
	for _, r := range l.Records {
		if r.Kind == KindSpeakers {
			calls = append(calls, r.Speakers)
		}
	}
	return calls
}
