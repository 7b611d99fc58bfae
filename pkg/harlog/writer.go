package harlog

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/otherjamesbrown/sqr-cli/pkg/buildinfo"
)

// ArchiveVersion is the HAR format version written by the scenario
// builder.
const ArchiveVersion = "1.2"

// NewArchive wraps entries in a transaction log container consumable by
// the Loader.
func NewArchive(entries []Entry) *Archive {
	return &Archive{
		Log: &Log{
			Version: ArchiveVersion,
			Creator: &Creator{
				Name:    "sqr synthetic scenario builder",
				Version: buildinfo.Version,
			},
			Entries: entries,
		},
	}
}

// SortEntriesByTime stable-sorts entries by startedDateTime ascending.
// Entries with equal timestamps keep their original relative order.
func SortEntriesByTime(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Time().Before(entries[j].Time())
	})
}

// Marshal serializes the archive as indented JSON.
func (a *Archive) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding transaction log: %w", err)
	}
	return data, nil
}

// WriteFile serializes the archive to a file.
func WriteFile(path string, a *Archive) error {
	data, err := a.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing transaction log: %w", err)
	}
	return nil
}
