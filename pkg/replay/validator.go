// Package replay drives a validated transaction log against a Sender,
// reproducing original inter-call timing. It also houses the chunk
// sequence validator that gates every replay.
package replay

import (
	"fmt"
	"sort"

	sqrerrors "github.com/otherjamesbrown/sqr-cli/pkg/errors"
	"github.com/otherjamesbrown/sqr-cli/pkg/harlog"
)

// ValidateChunks checks per-connection audio chunk-index integrity.
//
// The first chunk of every connection must have index 0; a violation is
// fatal and aborts the replay before any dispatch. Gaps elsewhere in the
// index range are returned as warnings: out-of-order capture commonly
// loses individual chunks, and replaying around a gap is still useful.
func ValidateChunks(calls []*harlog.AudioCall) ([]string, error) {
	byConnection := make(map[string][]int)
	for _, c := range calls {
		byConnection[c.ConnectionID] = append(byConnection[c.ConnectionID], c.ChunkIndex)
	}

	connections := make([]string, 0, len(byConnection))
	for id := range byConnection {
		connections = append(connections, id)
	}
	sort.Strings(connections)

	var warnings []string
	for _, id := range connections {
		indices := byConnection[id]
		sort.Ints(indices)

		if indices[0] != 0 {
			return warnings, fmt.Errorf("%w: connection %s starts at chunk %d, want 0",
				sqrerrors.ErrValidation, id, indices[0])
		}

		if missing, total := missingIndices(indices); total > 0 {
			if total > len(missing) {
				warnings = append(warnings,
					fmt.Sprintf("connection %s is missing %d chunk indices, first %v",
						id, total, missing))
			} else {
				warnings = append(warnings,
					fmt.Sprintf("connection %s is missing chunk indices %v", id, missing))
			}
		}
	}

	return warnings, nil
}

// maxReportedGaps bounds how many missing indices a single warning
// enumerates. A corrupted index can put the observed maximum in the
// billions; the warning must stay proportional to the call count, not
// to the largest index.
const maxReportedGaps = 20

// missingIndices returns up to maxReportedGaps indices absent from
// {0..max(observed)} plus the total number absent. observed must be
// sorted ascending and non-empty.
func missingIndices(observed []int) (missing []int, total int) {
	prev := observed[0]
	for _, i := range observed[1:] {
		if i <= prev+1 {
			prev = i
			continue
		}
		total += i - prev - 1
		for m := prev + 1; m < i && len(missing) < maxReportedGaps; m++ {
			missing = append(missing, m)
		}
		prev = i
	}
	return missing, total
}
