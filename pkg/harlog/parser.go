package harlog

import (
	"encoding/json"
	"fmt"
	"os"

	sqrerrors "github.com/otherjamesbrown/sqr-cli/pkg/errors"
	"github.com/otherjamesbrown/sqr-cli/pkg/logging"
)

// Mode selects how the loader treats audio entries with missing required
// query fields.
type Mode int

const (
	// ModeStrict fails the whole load on the first invalid audio entry.
	// This is the replay path: replaying a log we cannot fully model is
	// worse than refusing it.
	ModeStrict Mode = iota

	// ModeTolerant drops invalid audio entries with a warning. This is
	// the template/self-check path used by the generator.
	ModeTolerant
)

// Options configures a Loader.
type Options struct {
	Mode Mode
}

// Loader parses transaction logs into call records. A Loader holds no
// per-load state: parsing the same input twice yields identical results.
type Loader struct {
	opts   Options
	logger logging.Logger
}

// NewLoader creates a Loader.
func NewLoader(opts Options, logger logging.Logger) *Loader {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Loader{opts: opts, logger: logger}
}

// LoadFile reads and parses a transaction log file.
func (l *Loader) LoadFile(path string) (*CallLog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading transaction log: %w", err)
	}
	return l.Parse(data)
}

// Parse parses a serialized transaction log.
//
// Entries that match neither endpoint are ignored. Speaker entries with
// an undecodable body or missing meeting_id are dropped with a warning
// in both modes. Invalid audio entries fail the load in ModeStrict and
// are dropped with a warning in ModeTolerant.
func (l *Loader) Parse(data []byte) (*CallLog, error) {
	var arch Archive
	if err := json.Unmarshal(data, &arch); err != nil {
		return nil, parseError(data, err)
	}
	if arch.Log == nil {
		return nil, fmt.Errorf("%w: missing %q container", sqrerrors.ErrFormat, "log")
	}

	log := &CallLog{}
	for i, entry := range arch.Log.Entries {
		kind, ok := Classify(entry.Request.URL)
		if !ok {
			continue
		}

		switch kind {
		case KindAudio:
			call, err := ParseAudioCall(entry)
			if err != nil {
				if l.opts.Mode == ModeStrict {
					return nil, fmt.Errorf("entry %d: %w", i, err)
				}
				l.warn(log, fmt.Sprintf("dropping audio entry %d: %v", i, err))
				continue
			}
			log.Records = append(log.Records, Record{Kind: KindAudio, Audio: call})

		case KindSpeakers:
			call, err := ParseSpeakersCall(entry)
			if err != nil {
				l.warn(log, fmt.Sprintf("dropping speakers entry %d: %v", i, err))
				continue
			}
			log.Records = append(log.Records, Record{Kind: KindSpeakers, Speakers: call})
		}
	}

	return log, nil
}

// warn records a non-fatal load problem on the result and logs it.
func (l *Loader) warn(log *CallLog, msg string) {
	log.Warnings = append(log.Warnings, msg)
	l.logger.Warn(msg)
}

// parseError wraps a json decoding failure with position context.
func parseError(data []byte, err error) error {
	switch e := err.(type) {
	case *json.SyntaxError:
		return sqrerrors.NewParseError(data, e.Offset, err)
	case *json.UnmarshalTypeError:
		return sqrerrors.NewParseError(data, e.Offset, err)
	default:
		return sqrerrors.NewParseError(data, 0, err)
	}
}
