package replay

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/otherjamesbrown/sqr-cli/pkg/harlog"
	"github.com/otherjamesbrown/sqr-cli/pkg/logging"
)

// Sender dispatches call records to the service. The scheduler never
// inspects transport details, only success or failure.
type Sender interface {
	SendAudio(ctx context.Context, call *harlog.AudioCall) error
	SendSpeakers(ctx context.Context, call *harlog.SpeakersCall) error
}

// DispatchOrder selects how records are ordered before dispatch.
type DispatchOrder string

const (
	// OrderTimestamp dispatches records by capture timestamp ascending,
	// ties broken by file order. This is the primary contract.
	OrderTimestamp DispatchOrder = "timestamp"

	// OrderFile preserves original file order (still validated).
	OrderFile DispatchOrder = "file"
)

// State is the scheduler lifecycle state.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateValidating
	StateReplaying
	StateCompleted
	StateAborted
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateValidating:
		return "validating"
	case StateReplaying:
		return "replaying"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Options configures a Scheduler.
type Options struct {
	// PreserveTiming reproduces inter-call delays when true; when false
	// every delay is zero.
	PreserveTiming bool

	// TimeScale multiplies reproduced delays (2.0 = half speed).
	// Values <= 0 are replaced with 1.0.
	TimeScale float64

	// Order selects dispatch ordering.
	Order DispatchOrder

	// ChunkDir, when non-empty, enables per-connection accumulation
	// files (<dir>/<connection_id>.bin) holding concatenated chunk
	// payloads in send order. Purely a side channel for inspection.
	ChunkDir string
}

// CallFailure records one per-call send failure. Failures never abort a
// replay; they are collected alongside the dispatched counts.
type CallFailure struct {
	Kind         harlog.Kind
	ConnectionID string
	MeetingID    string
	ChunkIndex   int
	Err          error
}

// Result is the outcome of one replay run.
type Result struct {
	AudioSent    int
	SpeakersSent int
	Failures     []CallFailure

	// Missing maps connection id to the expected chunk indices that were
	// not successfully sent, computed by the closing audit.
	Missing map[string][]int

	// Warnings are the non-fatal problems observed (validator gaps,
	// empty bodies, accumulation write failures).
	Warnings []string
}

// FullySent reports whether every connection verified clean.
func (r *Result) FullySent() bool {
	return len(r.Failures) == 0 && len(r.Missing) == 0
}

// Scheduler replays call records one at a time. It is strictly
// sequential: at most one call is in flight, and the only suspension
// point is the reproduced inter-call delay. Not safe for concurrent use.
type Scheduler struct {
	sender  Sender
	opts    Options
	metrics *Metrics
	logger  logging.Logger
	tracer  trace.Tracer
	state   State

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewScheduler creates a Scheduler. metrics may be nil.
func NewScheduler(sender Sender, opts Options, metrics *Metrics, logger logging.Logger) *Scheduler {
	if opts.TimeScale <= 0 {
		opts.TimeScale = 1.0
	}
	if opts.Order == "" {
		opts.Order = OrderTimestamp
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Scheduler{
		sender:  sender,
		opts:    opts,
		metrics: metrics,
		logger:  logger.With(logging.F("component", "replay")),
		tracer:  otel.Tracer("sqr/replay"),
		state:   StateIdle,
		sleep:   sleepContext,
	}
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	return s.state
}

// RunFile loads a transaction log with the given loader, then validates
// and replays it.
func (s *Scheduler) RunFile(ctx context.Context, loader *harlog.Loader, path string) (*Result, error) {
	s.state = StateLoading
	log, err := loader.LoadFile(path)
	if err != nil {
		s.state = StateAborted
		return nil, err
	}
	return s.Run(ctx, log)
}

// Run validates the log and replays it against the Sender.
//
// A chunk-sequence violation aborts before any dispatch. Per-call send
// failures are collected in the result and never stop the run. After the
// sequence completes, a closing audit reports any connection whose sent
// chunk set is missing expected indices.
func (s *Scheduler) Run(ctx context.Context, log *harlog.CallLog) (*Result, error) {
	result := &Result{Missing: make(map[string][]int)}
	result.Warnings = append(result.Warnings, log.Warnings...)

	s.state = StateValidating
	audio := log.AudioCalls()
	warnings, err := ValidateChunks(audio)
	result.Warnings = append(result.Warnings, warnings...)
	for _, w := range warnings {
		s.logger.Warn(w)
	}
	if err != nil {
		s.state = StateAborted
		return result, err
	}

	records := make([]harlog.Record, len(log.Records))
	copy(records, log.Records)
	if s.opts.Order == OrderTimestamp {
		sort.SliceStable(records, func(i, j int) bool {
			return records[i].Time().Before(records[j].Time())
		})
	}

	s.state = StateReplaying
	if len(records) == 0 {
		s.logger.Info("transaction log holds no replayable calls")
		s.state = StateCompleted
		return result, nil
	}

	expected := expectedIndices(audio)
	sent := make(map[string]map[int]struct{}, len(expected))

	previous := records[0].Time()
	for _, rec := range records {
		current := rec.Time()
		if delay := s.delayFor(current, previous); delay > 0 {
			s.logger.Debug("waiting before next call", logging.F("delay", delay))
			if err := s.sleep(ctx, delay); err != nil {
				s.state = StateAborted
				return result, err
			}
		}

		s.dispatch(ctx, rec, result, sent)
		previous = current
	}

	s.audit(expected, sent, result)
	s.state = StateCompleted
	return result, nil
}

// delayFor computes the reproduced inter-call delay.
func (s *Scheduler) delayFor(current, previous time.Time) time.Duration {
	if !s.opts.PreserveTiming {
		return 0
	}
	gap := current.Sub(previous)
	if gap <= 0 {
		return 0
	}
	return time.Duration(float64(gap) * s.opts.TimeScale)
}

// dispatch sends one record, recording success or failure on the result.
func (s *Scheduler) dispatch(ctx context.Context, rec harlog.Record, result *Result, sent map[string]map[int]struct{}) {
	switch rec.Kind {
	case harlog.KindAudio:
		call := rec.Audio
		ctx, span := s.tracer.Start(ctx, "replay.send_audio", trace.WithAttributes(
			attribute.String("connection_id", call.ConnectionID),
			attribute.Int("chunk_index", call.ChunkIndex),
		))
		defer span.End()

		if len(call.Body) == 0 {
			s.warn(result, fmt.Sprintf("audio chunk %d on connection %s has an empty body",
				call.ChunkIndex, call.ConnectionID))
		} else if s.opts.ChunkDir != "" {
			if err := s.appendChunk(call); err != nil {
				s.warn(result, fmt.Sprintf("accumulating chunk %d for connection %s: %v",
					call.ChunkIndex, call.ConnectionID, err))
			}
		}

		s.logger.Info("sending audio chunk",
			logging.F("connection_id", call.ConnectionID),
			logging.F("chunk_index", call.ChunkIndex))
		if err := s.sender.SendAudio(ctx, call); err != nil {
			span.RecordError(err)
			s.recordFailure(result, CallFailure{
				Kind:         harlog.KindAudio,
				ConnectionID: call.ConnectionID,
				MeetingID:    call.MeetingID,
				ChunkIndex:   call.ChunkIndex,
				Err:          err,
			})
			return
		}
		result.AudioSent++
		s.metrics.callSent(string(harlog.KindAudio))
		if sent[call.ConnectionID] == nil {
			sent[call.ConnectionID] = make(map[int]struct{})
		}
		sent[call.ConnectionID][call.ChunkIndex] = struct{}{}

	case harlog.KindSpeakers:
		call := rec.Speakers
		ctx, span := s.tracer.Start(ctx, "replay.send_speakers", trace.WithAttributes(
			attribute.String("meeting_id", call.MeetingID),
		))
		defer span.End()

		s.logger.Info("sending speakers update", logging.F("meeting_id", call.MeetingID))
		if err := s.sender.SendSpeakers(ctx, call); err != nil {
			span.RecordError(err)
			s.recordFailure(result, CallFailure{
				Kind:         harlog.KindSpeakers,
				ConnectionID: call.ConnectionID,
				MeetingID:    call.MeetingID,
				ChunkIndex:   -1,
				Err:          err,
			})
			return
		}
		result.SpeakersSent++
		s.metrics.callSent(string(harlog.KindSpeakers))
	}
}

// recordFailure logs a per-call failure and continues the run.
func (s *Scheduler) recordFailure(result *Result, f CallFailure) {
	result.Failures = append(result.Failures, f)
	s.metrics.callFailed(string(f.Kind))
	s.logger.Error("call failed, continuing replay",
		logging.F("kind", string(f.Kind)),
		logging.F("connection_id", f.ConnectionID),
		logging.F("chunk_index", f.ChunkIndex),
		logging.Err(f.Err))
}

func (s *Scheduler) warn(result *Result, msg string) {
	result.Warnings = append(result.Warnings, msg)
	s.logger.Warn(msg)
}

// appendChunk appends the chunk payload to the connection's accumulation
// file.
func (s *Scheduler) appendChunk(call *harlog.AudioCall) error {
	if err := os.MkdirAll(s.opts.ChunkDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(s.opts.ChunkDir, call.ConnectionID+".bin")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(call.Body); err != nil {
		return err
	}
	s.metrics.chunkBytes(len(call.Body))
	return nil
}

// audit compares expected and sent chunk index sets per connection.
func (s *Scheduler) audit(expected map[string]map[int]struct{}, sent map[string]map[int]struct{}, result *Result) {
	connections := make([]string, 0, len(expected))
	for id := range expected {
		connections = append(connections, id)
	}
	sort.Strings(connections)

	for _, id := range connections {
		var missing []int
		for index := range expected[id] {
			if _, ok := sent[id][index]; !ok {
				missing = append(missing, index)
			}
		}
		if len(missing) == 0 {
			s.logger.Info("connection fully sent", logging.F("connection_id", id))
			continue
		}
		sort.Ints(missing)
		result.Missing[id] = missing
		s.logger.Warn("connection has unsent chunks",
			logging.F("connection_id", id),
			logging.F("missing", fmt.Sprint(missing)))
	}
}

// expectedIndices collects the chunk index set per connection.
func expectedIndices(calls []*harlog.AudioCall) map[string]map[int]struct{} {
	expected := make(map[string]map[int]struct{})
	for _, c := range calls {
		if expected[c.ConnectionID] == nil {
			expected[c.ConnectionID] = make(map[int]struct{})
		}
		expected[c.ConnectionID][c.ChunkIndex] = struct{}{}
	}
	return expected
}

// sleepContext sleeps for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
