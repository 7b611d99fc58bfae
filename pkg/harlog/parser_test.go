package harlog

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sqrerrors "github.com/otherjamesbrown/sqr-cli/pkg/errors"
)

func marshalArchive(t *testing.T, entries []Entry) []byte {
	t.Helper()
	data, err := json.Marshal(Archive{Log: &Log{Version: ArchiveVersion, Entries: entries}})
	require.NoError(t, err)
	return data
}

func TestParseClassifiesEntries(t *testing.T) {
	entries := []Entry{
		audioEntry("0", "conn-1", "meeting-1"),
		{
			StartedDateTime: "2026-02-10T14:30:01+00:00",
			Request: Request{
				Method:      "PUT",
				URL:         "https://svc.example.com/api/v1/extension/speakers",
				QueryString: []NameValuePair{{Name: "meeting_id", Value: "meeting-1"}},
			},
		},
		{
			StartedDateTime: "2026-02-10T14:30:02+00:00",
			Request:         Request{Method: "GET", URL: "https://svc.example.com/api/v1/users/me"},
		},
	}

	log, err := NewLoader(Options{Mode: ModeStrict}, nil).Parse(marshalArchive(t, entries))
	require.NoError(t, err)

	require.Len(t, log.Records, 2)
	assert.Equal(t, KindAudio, log.Records[0].Kind)
	assert.Equal(t, KindSpeakers, log.Records[1].Kind)
	assert.Empty(t, log.Warnings)

	assert.Len(t, log.AudioCalls(), 1)
	assert.Len(t, log.SpeakerCalls(), 1)
}

func TestParseMissingLogContainer(t *testing.T) {
	_, err := NewLoader(Options{}, nil).Parse([]byte(`{"entries": []}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, sqrerrors.ErrFormat)
}

func TestParseMalformedJSON(t *testing.T) {
	_, err := NewLoader(Options{}, nil).Parse([]byte("{\n  \"log\": {\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, sqrerrors.ErrParse)

	var perr *sqrerrors.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Greater(t, perr.Line, 0)
}

func TestParseStrictFailsOnBadAudio(t *testing.T) {
	entries := []Entry{
		audioEntry("0", "conn-1", "meeting-1"),
		audioEntry("not-a-number", "conn-1", "meeting-1"),
	}

	_, err := NewLoader(Options{Mode: ModeStrict}, nil).Parse(marshalArchive(t, entries))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entry 1")
}

func TestParseTolerantDropsBadAudio(t *testing.T) {
	entries := []Entry{
		audioEntry("0", "conn-1", "meeting-1"),
		audioEntry("not-a-number", "conn-1", "meeting-1"),
		audioEntry("1", "conn-1", "meeting-1"),
	}

	log, err := NewLoader(Options{Mode: ModeTolerant}, nil).Parse(marshalArchive(t, entries))
	require.NoError(t, err)
	assert.Len(t, log.AudioCalls(), 2)
	require.Len(t, log.Warnings, 1)
	assert.Contains(t, log.Warnings[0], "entry 1")
}

func TestParseDropsBadSpeakersInBothModes(t *testing.T) {
	bad := Entry{
		StartedDateTime: "2026-02-10T14:30:01+00:00",
		Request: Request{
			Method: "PUT",
			URL:    "https://svc.example.com/api/v1/extension/speakers",
		},
	}

	for _, mode := range []Mode{ModeStrict, ModeTolerant} {
		log, err := NewLoader(Options{Mode: mode}, nil).Parse(marshalArchive(t, []Entry{bad}))
		require.NoError(t, err)
		assert.Empty(t, log.Records)
		assert.Len(t, log.Warnings, 1)
	}
}

func TestParseIsRepeatable(t *testing.T) {
	data := marshalArchive(t, []Entry{audioEntry("0", "conn-1", "meeting-1")})
	loader := NewLoader(Options{Mode: ModeStrict}, nil)

	first, err := loader.Parse(data)
	require.NoError(t, err)
	second, err := loader.Parse(data)
	require.NoError(t, err)

	assert.Equal(t, len(first.Records), len(second.Records))
	assert.Equal(t, first.Records[0].Audio.ChunkIndex, second.Records[0].Audio.ChunkIndex)
}

func TestSortEntriesByTimeStable(t *testing.T) {
	base := time.Date(2026, 2, 10, 14, 30, 0, 0, time.UTC)
	entries := []Entry{
		{StartedDateTime: FormatTimestamp(base.Add(2 * time.Second)), Request: Request{URL: "late"}},
		{StartedDateTime: FormatTimestamp(base), Request: Request{URL: "first-tie"}},
		{StartedDateTime: FormatTimestamp(base), Request: Request{URL: "second-tie"}},
	}

	SortEntriesByTime(entries)
	assert.Equal(t, "first-tie", entries[0].Request.URL)
	assert.Equal(t, "second-tie", entries[1].Request.URL)
	assert.Equal(t, "late", entries[2].Request.URL)
}

func TestWriteFileRoundTrip(t *testing.T) {
	arch := NewArchive([]Entry{audioEntry("0", "conn-1", "meeting-1")})
	path := t.TempDir() + "/log.json"
	require.NoError(t, WriteFile(path, arch))

	log, err := NewLoader(Options{Mode: ModeStrict}, nil).LoadFile(path)
	require.NoError(t, err)
	require.Len(t, log.AudioCalls(), 1)
	assert.Equal(t, "conn-1", log.AudioCalls()[0].ConnectionID)
}
