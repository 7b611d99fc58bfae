package replay

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sqrerrors "github.com/otherjamesbrown/sqr-cli/pkg/errors"
	"github.com/otherjamesbrown/sqr-cli/pkg/harlog"
)

// fakeSender records dispatched calls and fails the ones listed in
// failAudio by chunk index.
type fakeSender struct {
	audio     []*harlog.AudioCall
	speakers  []*harlog.SpeakersCall
	failAudio map[int]bool
}

func (f *fakeSender) SendAudio(_ context.Context, call *harlog.AudioCall) error {
	if f.failAudio[call.ChunkIndex] {
		return fmt.Errorf("send refused")
	}
	f.audio = append(f.audio, call)
	return nil
}

func (f *fakeSender) SendSpeakers(_ context.Context, call *harlog.SpeakersCall) error {
	f.speakers = append(f.speakers, call)
	return nil
}

// recordSleeps replaces the scheduler's sleep with one that records
// requested delays without waiting.
func recordSleeps(s *Scheduler) *[]time.Duration {
	var slept []time.Duration
	s.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return &slept
}

func testLog(t0 time.Time) *harlog.CallLog {
	return &harlog.CallLog{Records: []harlog.Record{
		{Kind: harlog.KindAudio, Audio: audioCall("a", 0, t0)},
		{Kind: harlog.KindSpeakers, Speakers: &harlog.SpeakersCall{
			Call:      harlog.Call{Timestamp: t0.Add(5 * time.Second)},
			MeetingID: "meeting-1",
			Speakers:  []harlog.SpeakerState{{Name: "Alice", MetaBits: "1111"}},
		}},
		{Kind: harlog.KindAudio, Audio: audioCall("a", 1, t0.Add(10*time.Second))},
		{Kind: harlog.KindAudio, Audio: audioCall("a", 2, t0.Add(12*time.Second))},
	}}
}

func TestSchedulerRunSendsEverything(t *testing.T) {
	sender := &fakeSender{}
	s := NewScheduler(sender, Options{}, nil, nil)
	recordSleeps(s)

	result, err := s.Run(context.Background(), testLog(time.Now()))
	require.NoError(t, err)

	assert.Equal(t, 3, result.AudioSent)
	assert.Equal(t, 1, result.SpeakersSent)
	assert.Empty(t, result.Failures)
	assert.Empty(t, result.Missing)
	assert.True(t, result.FullySent())
	assert.Equal(t, StateCompleted, s.State())

	require.Len(t, sender.audio, 3)
	assert.Equal(t, 0, sender.audio[0].ChunkIndex)
	assert.Equal(t, 1, sender.audio[1].ChunkIndex)
	assert.Equal(t, 2, sender.audio[2].ChunkIndex)
}

func TestSchedulerPreservesScaledTiming(t *testing.T) {
	sender := &fakeSender{}
	s := NewScheduler(sender, Options{PreserveTiming: true, TimeScale: 2.0}, nil, nil)
	slept := recordSleeps(s)

	_, err := s.Run(context.Background(), testLog(time.Now()))
	require.NoError(t, err)

	// Gaps 5s, 5s, 2s doubled by the time scale.
	require.Len(t, *slept, 3)
	assert.Equal(t, 10*time.Second, (*slept)[0])
	assert.Equal(t, 10*time.Second, (*slept)[1])
	assert.Equal(t, 4*time.Second, (*slept)[2])
}

func TestSchedulerNoTimingNeverSleeps(t *testing.T) {
	sender := &fakeSender{}
	s := NewScheduler(sender, Options{PreserveTiming: false}, nil, nil)
	slept := recordSleeps(s)

	_, err := s.Run(context.Background(), testLog(time.Now()))
	require.NoError(t, err)
	assert.Empty(t, *slept)
}

func TestSchedulerAbortsOnValidationFailure(t *testing.T) {
	sender := &fakeSender{}
	s := NewScheduler(sender, Options{}, nil, nil)
	recordSleeps(s)

	t0 := time.Now()
	log := &harlog.CallLog{Records: []harlog.Record{
		{Kind: harlog.KindAudio, Audio: audioCall("a", 1, t0)},
		{Kind: harlog.KindAudio, Audio: audioCall("a", 2, t0.Add(time.Second))},
	}}

	result, err := s.Run(context.Background(), log)
	require.Error(t, err)
	assert.ErrorIs(t, err, sqrerrors.ErrValidation)
	assert.Equal(t, StateAborted, s.State())
	assert.Equal(t, 0, result.AudioSent)
	assert.Empty(t, sender.audio)
}

func TestSchedulerCollectsFailuresAndContinues(t *testing.T) {
	sender := &fakeSender{failAudio: map[int]bool{1: true}}
	s := NewScheduler(sender, Options{}, nil, nil)
	recordSleeps(s)

	result, err := s.Run(context.Background(), testLog(time.Now()))
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, s.State())

	assert.Equal(t, 2, result.AudioSent)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, harlog.KindAudio, result.Failures[0].Kind)
	assert.Equal(t, 1, result.Failures[0].ChunkIndex)

	require.Contains(t, result.Missing, "a")
	assert.Equal(t, []int{1}, result.Missing["a"])
	assert.False(t, result.FullySent())
}

func TestSchedulerFileOrderSkipsSort(t *testing.T) {
	t0 := time.Now()
	log := &harlog.CallLog{Records: []harlog.Record{
		{Kind: harlog.KindAudio, Audio: audioCall("a", 0, t0.Add(10*time.Second))},
		{Kind: harlog.KindAudio, Audio: audioCall("a", 1, t0)},
	}}

	sender := &fakeSender{}
	s := NewScheduler(sender, Options{Order: OrderFile}, nil, nil)
	recordSleeps(s)

	_, err := s.Run(context.Background(), log)
	require.NoError(t, err)

	require.Len(t, sender.audio, 2)
	assert.Equal(t, 0, sender.audio[0].ChunkIndex)
	assert.Equal(t, 1, sender.audio[1].ChunkIndex)
}

func TestSchedulerCancelledContext(t *testing.T) {
	sender := &fakeSender{}
	s := NewScheduler(sender, Options{PreserveTiming: true}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := s.Run(ctx, testLog(time.Now()))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateAborted, s.State())
	assert.Equal(t, 1, result.AudioSent)
}

func TestSchedulerChunkAccumulation(t *testing.T) {
	dir := t.TempDir()
	sender := &fakeSender{}
	s := NewScheduler(sender, Options{ChunkDir: dir}, nil, nil)
	recordSleeps(s)

	t0 := time.Now()
	log := &harlog.CallLog{Records: []harlog.Record{
		{Kind: harlog.KindAudio, Audio: &harlog.AudioCall{
			Call:         harlog.Call{Body: []byte{0x01, 0x02}, Timestamp: t0},
			ChunkIndex:   0,
			ConnectionID: "conn",
			MeetingID:    "m",
		}},
		{Kind: harlog.KindAudio, Audio: &harlog.AudioCall{
			Call:         harlog.Call{Body: []byte{0x03}, Timestamp: t0.Add(time.Second)},
			ChunkIndex:   1,
			ConnectionID: "conn",
			MeetingID:    "m",
		}},
	}}

	_, err := s.Run(context.Background(), log)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "conn.bin"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, data)
}

func TestSchedulerEmptyBodyWarns(t *testing.T) {
	t0 := time.Now()
	log := &harlog.CallLog{Records: []harlog.Record{
		{Kind: harlog.KindAudio, Audio: &harlog.AudioCall{
			Call:         harlog.Call{Timestamp: t0},
			ChunkIndex:   0,
			ConnectionID: "conn",
			MeetingID:    "m",
		}},
	}}

	sender := &fakeSender{}
	s := NewScheduler(sender, Options{}, nil, nil)
	recordSleeps(s)

	result, err := s.Run(context.Background(), log)
	require.NoError(t, err)
	assert.Equal(t, 1, result.AudioSent)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "empty body")
}

func TestSchedulerRunFileMissingFile(t *testing.T) {
	s := NewScheduler(&fakeSender{}, Options{}, nil, nil)
	loader := harlog.NewLoader(harlog.Options{}, nil)

	_, err := s.RunFile(context.Background(), loader, filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.Equal(t, StateAborted, s.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "replaying", StateReplaying.String())
	assert.Equal(t, "aborted", StateAborted.String())
	assert.Equal(t, "unknown", State(99).String())
}
