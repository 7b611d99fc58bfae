package synth

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"

	sqrerrors "github.com/otherjamesbrown/sqr-cli/pkg/errors"
	"github.com/otherjamesbrown/sqr-cli/pkg/harlog"
	"github.com/otherjamesbrown/sqr-cli/pkg/logging"
)

// Default meeting parameters, matching typical extension behavior.
const (
	DefaultMeetingDuration       = 30 * time.Minute
	DefaultNumUsers              = 2
	DefaultSpeakerUpdateInterval = 500 * time.Millisecond
	defaultMeetingChunkDuration  = time.Second
)

// Speaker is one meeting speaker (not necessarily a user) with its
// speaking intervals in seconds from meeting start.
type Speaker struct {
	Name      string
	Intervals []Interval
}

// ActiveAt reports whether the speaker is talking at t seconds.
func (s Speaker) ActiveAt(t float64) bool {
	for _, iv := range s.Intervals {
		if iv.Start <= t && t <= iv.End {
			return true
		}
	}
	return false
}

// User is one synthetic client/participant identity.
type User struct {
	UserID       string
	ConnectionID string
}

// MeetingConfig describes one synthetic meeting.
type MeetingConfig struct {
	MeetingID             string
	Duration              time.Duration
	NumUsers              int
	ChunkDuration         time.Duration
	SpeakerUpdateInterval time.Duration
	StartTime             time.Time

	// Speakers, when empty, are derived from the template's activity
	// timelines.
	Speakers []Speaker
}

// NewMeetingConfig returns a MeetingConfig with a fresh meeting id and
// default parameters.
func NewMeetingConfig() MeetingConfig {
	return MeetingConfig{
		MeetingID:             uuid.NewString(),
		Duration:              DefaultMeetingDuration,
		NumUsers:              DefaultNumUsers,
		ChunkDuration:         defaultMeetingChunkDuration,
		SpeakerUpdateInterval: DefaultSpeakerUpdateInterval,
		StartTime:             time.Now(),
	}
}

// Validate checks the config is generable.
func (c *MeetingConfig) Validate() error {
	if c.MeetingID == "" {
		return fmt.Errorf("meeting config: meeting id is required")
	}
	if c.Duration <= 0 {
		return fmt.Errorf("meeting config: duration must be positive")
	}
	if c.NumUsers < 1 {
		return fmt.Errorf("meeting config: at least one user is required")
	}
	if c.ChunkDuration <= 0 {
		return fmt.Errorf("meeting config: chunk duration must be positive")
	}
	if c.SpeakerUpdateInterval <= 0 {
		return fmt.Errorf("meeting config: speaker update interval must be positive")
	}
	return nil
}

// Generator fabricates synthetic meetings from an extracted template.
type Generator struct {
	tmpl   *Template
	logger logging.Logger
}

// NewGenerator creates a Generator over an extracted template.
func NewGenerator(tmpl *Template, logger logging.Logger) *Generator {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Generator{tmpl: tmpl, logger: logger}
}

// SynthesizeSpeakers derives meeting speakers from the template's
// activity timelines: each timeline is tiled end to end (period = its
// maximum end time) until the duration is covered, clipping the final
// repetition. Names are freshly generated so concurrent scenarios built
// from the same template never collide.
func (g *Generator) SynthesizeSpeakers(duration time.Duration) []Speaker {
	total := duration.Seconds()
	var speakers []Speaker

	for _, name := range g.tmpl.SpeakerNames() {
		timeline := g.tmpl.Timelines[name]
		period := 0.0
		for _, iv := range timeline {
			period = math.Max(period, iv.End)
		}
		if period <= 0 {
			continue
		}

		var intervals []Interval
		repeats := int(total/period) + 1
		for r := 0; r < repeats; r++ {
			offset := float64(r) * period
			for _, iv := range timeline {
				if offset+iv.Start >= total {
					continue
				}
				intervals = append(intervals, Interval{
					Start: offset + iv.Start,
					End:   math.Min(total, offset+iv.End),
				})
			}
		}

		speakers = append(speakers, Speaker{
			Name:      "Speaker_" + strconv.Itoa(len(speakers)+1),
			Intervals: intervals,
		})
	}

	return speakers
}

// GenerateMeeting fabricates the call entries for one synthetic meeting.
//
// Chunks are distributed evenly across users (integer floor; remainder
// chunks are dropped). Per connection, chunk indices are contiguous and
// zero-based by construction, so generated output always passes the
// chunk-sequence validator.
func (g *Generator) GenerateMeeting(cfg MeetingConfig) ([]harlog.Entry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if g.tmpl == nil || len(g.tmpl.Patterns) == 0 {
		return nil, fmt.Errorf("generating meeting %s: %w", cfg.MeetingID, sqrerrors.ErrNoPatterns)
	}

	users := make([]User, cfg.NumUsers)
	for i := range users {
		users[i] = User{UserID: uuid.NewString(), ConnectionID: uuid.NewString()}
	}

	speakers := cfg.Speakers
	if len(speakers) == 0 {
		speakers = g.SynthesizeSpeakers(cfg.Duration)
	}

	totalChunks := int(cfg.Duration / cfg.ChunkDuration)
	chunksPerUser := totalChunks / cfg.NumUsers

	updateEvery := int(cfg.SpeakerUpdateInterval / cfg.ChunkDuration)
	if updateEvery < 1 {
		updateEvery = 1
	}

	chunkSec := cfg.ChunkDuration.Seconds()
	current := cfg.StartTime
	var entries []harlog.Entry

	for _, user := range users {
		for slot := 0; slot < chunksPerUser; slot++ {
			relTime := float64(slot) * chunkSec
			pattern := g.selectPattern(relTime, slot, chunkSec)

			entries = append(entries, audioEntry(cfg, user, slot, pattern, current))

			if slot%updateEvery == 0 {
				for _, speaker := range speakers {
					if !speaker.ActiveAt(relTime) {
						continue
					}
					entry, err := speakerEntry(cfg, user, speaker, pattern, current)
					if err != nil {
						return nil, err
					}
					entries = append(entries, entry)
				}
			}

			current = current.Add(cfg.ChunkDuration)
		}
	}

	g.logger.Info("generated synthetic meeting",
		logging.F("meeting_id", cfg.MeetingID),
		logging.F("users", cfg.NumUsers),
		logging.F("entries", len(entries)))
	return entries, nil
}

// selectPattern picks the template pattern nearest t, falling back to
// round-robin when no pattern is within one chunk duration.
func (g *Generator) selectPattern(t float64, slot int, chunkSec float64) Pattern {
	for _, p := range g.tmpl.Patterns {
		if math.Abs(p.RelativeTime-t) < chunkSec {
			return p
		}
	}
	return g.tmpl.Patterns[slot%len(g.tmpl.Patterns)]
}

// audioEntry builds one audio chunk upload entry.
func audioEntry(cfg MeetingConfig, user User, index int, pattern Pattern, at time.Time) harlog.Entry {
	return harlog.Entry{
		StartedDateTime: harlog.FormatTimestamp(at),
		Request: harlog.Request{
			Method: "PUT",
			URL:    harlog.AudioURLMarker,
			QueryString: []harlog.NameValuePair{
				{Name: "i", Value: strconv.Itoa(index)},
				{Name: "connection_id", Value: user.ConnectionID},
				{Name: "meeting_id", Value: cfg.MeetingID},
			},
			Headers:  []harlog.NameValuePair{},
			PostData: &harlog.PostData{Text: harlog.EncodeBodyText(pattern.Chunk)},
		},
	}
}

// speakerEntry builds one speaker-activity entry: a template speaker
// state with the name, user, meeting and timestamp overwritten.
func speakerEntry(cfg MeetingConfig, user User, speaker Speaker, pattern Pattern, at time.Time) (harlog.Entry, error) {
	meta := "1111"
	if len(pattern.Speakers) > 0 {
		meta = pattern.Speakers[0].MetaBits
	}

	body, err := harlog.EncodeSpeakerStates([]harlog.SpeakerState{
		{Name: speaker.Name, MetaBits: meta},
	})
	if err != nil {
		return harlog.Entry{}, fmt.Errorf("encoding speaker states: %w", err)
	}

	return harlog.Entry{
		StartedDateTime: harlog.FormatTimestamp(at),
		Request: harlog.Request{
			Method: "PUT",
			URL:    harlog.SpeakersURLMarker,
			QueryString: []harlog.NameValuePair{
				{Name: "connection_id", Value: user.ConnectionID},
				{Name: "meeting_id", Value: cfg.MeetingID},
				{Name: "user_id", Value: user.UserID},
			},
			Headers:  []harlog.NameValuePair{},
			PostData: &harlog.PostData{Text: harlog.EncodeBodyText(body)},
		},
	}, nil
}
