package synth

import (
	"fmt"
	"time"

	"github.com/otherjamesbrown/sqr-cli/pkg/harlog"
	"github.com/otherjamesbrown/sqr-cli/pkg/logging"
	"github.com/otherjamesbrown/sqr-cli/pkg/replay"
)

// Scenario stagger and gap defaults.
const (
	// ConcurrentStagger is how far apart concurrent meetings start.
	ConcurrentStagger = 5 * time.Minute

	// ExtendedGap is the silence between segments of an extended meeting.
	ExtendedGap = 10 * time.Minute
)

// BuildScenario generates every configured meeting and merges the
// entries into one archive, globally ordered by timestamp. Entries from
// different meetings interleave wherever their clocks overlap.
func (g *Generator) BuildScenario(configs []MeetingConfig) (*harlog.Archive, error) {
	if len(configs) == 0 {
		return nil, fmt.Errorf("scenario has no meetings")
	}

	var entries []harlog.Entry
	for i, cfg := range configs {
		meeting, err := g.GenerateMeeting(cfg)
		if err != nil {
			return nil, fmt.Errorf("meeting %d: %w", i, err)
		}
		entries = append(entries, meeting...)
	}

	harlog.SortEntriesByTime(entries)
	g.logger.Info("built scenario",
		logging.F("meetings", len(configs)),
		logging.F("entries", len(entries)))
	return harlog.NewArchive(entries), nil
}

// WriteScenario builds the scenario and writes it to path.
func (g *Generator) WriteScenario(path string, configs []MeetingConfig) error {
	arch, err := g.BuildScenario(configs)
	if err != nil {
		return err
	}
	return harlog.WriteFile(path, arch)
}

// ConcurrentMeetingConfigs returns n meeting configs with staggered
// start times, each derived from base with a fresh meeting id.
func ConcurrentMeetingConfigs(base MeetingConfig, n int) []MeetingConfig {
	configs := make([]MeetingConfig, n)
	for i := range configs {
		cfg := base
		cfg.MeetingID = ""
		cfg = withFreshID(cfg)
		cfg.StartTime = base.StartTime.Add(time.Duration(i) * ConcurrentStagger)
		configs[i] = cfg
	}
	return configs
}

// ExtendedMeetingConfigs splits one long meeting into segments separated
// by silent gaps. Every segment reuses the same meeting id, so the
// service sees one meeting resuming after each pause. A gap of 0 falls
// back to ExtendedGap.
func ExtendedMeetingConfigs(base MeetingConfig, segments int, gap time.Duration) []MeetingConfig {
	if segments < 1 {
		segments = 1
	}
	if gap <= 0 {
		gap = ExtendedGap
	}
	segDuration := base.Duration / time.Duration(segments)

	configs := make([]MeetingConfig, segments)
	start := base.StartTime
	for i := range configs {
		cfg := base
		cfg.Duration = segDuration
		cfg.StartTime = start
		configs[i] = cfg
		start = start.Add(segDuration + gap)
	}
	return configs
}

// LoadMeetingConfigs returns n meetings all starting at the same time,
// each with a fresh meeting id. Unlike ConcurrentMeetingConfigs there
// is no stagger, so the service takes the full burst at once.
func LoadMeetingConfigs(base MeetingConfig, n int) []MeetingConfig {
	configs := make([]MeetingConfig, n)
	for i := range configs {
		cfg := base
		cfg.MeetingID = ""
		configs[i] = withFreshID(cfg)
	}
	return configs
}

func withFreshID(cfg MeetingConfig) MeetingConfig {
	fresh := NewMeetingConfig()
	cfg.MeetingID = fresh.MeetingID
	return cfg
}

// SelfCheck round-trips the archive through the loader and the
// chunk-sequence validator. Generated scenarios must always pass; a
// failure here means the generator itself is broken.
func SelfCheck(arch *harlog.Archive, logger logging.Logger) error {
	data, err := arch.Marshal()
	if err != nil {
		return err
	}

	loader := harlog.NewLoader(harlog.Options{Mode: harlog.ModeTolerant}, logger)
	log, err := loader.Parse(data)
	if err != nil {
		return fmt.Errorf("self-check reload: %w", err)
	}
	if len(log.Warnings) > 0 {
		return fmt.Errorf("self-check reload produced %d warnings, first: %s",
			len(log.Warnings), log.Warnings[0])
	}

	if _, err := replay.ValidateChunks(log.AudioCalls()); err != nil {
		return fmt.Errorf("self-check validation: %w", err)
	}
	return nil
}
