// Package synth learns audio/speaker co-occurrence patterns from a
// captured template log and fabricates new call sequences that mimic it.
package synth

import (
	"sort"
	"time"

	sqrerrors "github.com/otherjamesbrown/sqr-cli/pkg/errors"
	"github.com/otherjamesbrown/sqr-cli/pkg/harlog"
	"github.com/otherjamesbrown/sqr-cli/pkg/logging"
)

// DefaultChunkDuration is the nominal duration assigned to each template
// audio chunk. Pattern timing accumulates by this value per chunk rather
// than following the template's wall clock.
const DefaultChunkDuration = 500 * time.Millisecond

// Interval is one (start, end) speaking period in seconds from template
// or meeting start.
type Interval struct {
	Start float64
	End   float64
}

// Pattern pairs one template audio chunk with the speaker states
// observed before the next audio chunk.
type Pattern struct {
	// Chunk is the raw audio payload.
	Chunk []byte

	// ChunkIndex is the template's chunk index for this payload.
	ChunkIndex int

	// Speakers are the active speaker states attached to this pattern.
	Speakers []harlog.SpeakerState

	// RelativeTime is seconds from template start, accumulated by the
	// nominal chunk duration.
	RelativeTime float64

	// Duration is the nominal chunk duration in seconds.
	Duration float64
}

// Template is the extractor's output: the learned patterns plus each
// speaker's activity timeline.
type Template struct {
	Patterns  []Pattern
	Timelines map[string][]Interval
}

// SpeakerNames returns the template speaker names sorted.
func (t *Template) SpeakerNames() []string {
	names := make([]string, 0, len(t.Timelines))
	for name := range t.Timelines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ExtractorOptions configures an Extractor.
type ExtractorOptions struct {
	// ChunkDuration is the nominal per-chunk duration. Zero means
	// DefaultChunkDuration.
	ChunkDuration time.Duration
}

// Extractor scans a template log for audio/speaker patterns.
type Extractor struct {
	opts   ExtractorOptions
	logger logging.Logger
}

// NewExtractor creates an Extractor.
func NewExtractor(opts ExtractorOptions, logger logging.Logger) *Extractor {
	if opts.ChunkDuration <= 0 {
		opts.ChunkDuration = DefaultChunkDuration
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Extractor{opts: opts, logger: logger}
}

// accumulator is the in-progress pattern during the linear scan. The
// scan is an explicit two-state machine: no open pattern, or
// accumulating into one. A pattern is flushed when the next audio entry
// arrives or the scan ends, and only stored if it gathered at least one
// speaker state.
type accumulator struct {
	open     bool
	chunk    []byte
	index    int
	speakers map[string]harlog.SpeakerState
	relTime  float64
	duration float64
}

// flush closes the open pattern into the template, if it qualifies.
func (a *accumulator) flush(tmpl *Template) {
	if !a.open || len(a.speakers) == 0 {
		return
	}

	names := make([]string, 0, len(a.speakers))
	for name := range a.speakers {
		names = append(names, name)
	}
	sort.Strings(names)

	states := make([]harlog.SpeakerState, 0, len(names))
	for _, name := range names {
		states = append(states, a.speakers[name])
	}

	tmpl.Patterns = append(tmpl.Patterns, Pattern{
		Chunk:        a.chunk,
		ChunkIndex:   a.index,
		Speakers:     states,
		RelativeTime: a.relTime,
		Duration:     a.duration,
	})
}

// Extract scans the log in file order and returns the learned template.
// It fails with ErrNoPatterns if no audio entry ever pairs with a
// speaker state.
func (e *Extractor) Extract(log *harlog.CallLog) (*Template, error) {
	tmpl := &Template{Timelines: make(map[string][]Interval)}

	chunkSec := e.opts.ChunkDuration.Seconds()
	var acc accumulator
	relTime := 0.0

	for _, rec := range log.Records {
		switch rec.Kind {
		case harlog.KindAudio:
			acc.flush(tmpl)
			acc = accumulator{
				open:     true,
				chunk:    rec.Audio.Body,
				index:    rec.Audio.ChunkIndex,
				speakers: make(map[string]harlog.SpeakerState),
				relTime:  relTime,
				duration: chunkSec,
			}
			relTime += chunkSec

		case harlog.KindSpeakers:
			if !acc.open {
				continue
			}
			for _, state := range rec.Speakers.Speakers {
				if !state.Active() {
					continue
				}
				acc.speakers[state.Name] = state
				tmpl.Timelines[state.Name] = append(tmpl.Timelines[state.Name],
					Interval{Start: relTime, End: relTime + chunkSec})
			}
		}
	}
	acc.flush(tmpl)

	if len(tmpl.Patterns) == 0 {
		return nil, sqrerrors.ErrNoPatterns
	}

	e.logger.Info("extracted template patterns",
		logging.F("patterns", len(tmpl.Patterns)),
		logging.F("speakers", len(tmpl.Timelines)))
	return tmpl, nil
}
