package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/sqr-cli/pkg/harlog"
)

// setupCommandTest isolates the config dir and resets the global flag
// overrides so tests do not leak into each other.
func setupCommandTest(t *testing.T) {
	t.Helper()
	t.Setenv("SQR_CONFIG_DIR", t.TempDir())
	SetGlobalFlags("", 0, "", false)
}

// testAudioEntry builds a captured audio upload entry.
func testAudioEntry(ts time.Time, conn, meeting string, index int, body []byte) harlog.Entry {
	return harlog.Entry{
		StartedDateTime: harlog.FormatTimestamp(ts),
		Request: harlog.Request{
			Method: "PUT",
			URL:    fmt.Sprintf("https://capture.example.com/extension/audio?i=%d", index),
			QueryString: []harlog.NameValuePair{
				{Name: "i", Value: fmt.Sprintf("%d", index)},
				{Name: "connection_id", Value: conn},
				{Name: "meeting_id", Value: meeting},
			},
			PostData: &harlog.PostData{MimeType: "application/octet-stream", Text: harlog.EncodeBodyText(body)},
		},
	}
}

// testSpeakersEntry builds a captured speaker-activity entry.
func testSpeakersEntry(ts time.Time, conn, meeting string, states []harlog.SpeakerState) harlog.Entry {
	body, _ := harlog.EncodeSpeakerStates(states)
	return harlog.Entry{
		StartedDateTime: harlog.FormatTimestamp(ts),
		Request: harlog.Request{
			Method: "PUT",
			URL:    "https://capture.example.com/extension/speakers",
			QueryString: []harlog.NameValuePair{
				{Name: "connection_id", Value: conn},
				{Name: "meeting_id", Value: meeting},
			},
			PostData: &harlog.PostData{Text: string(body)},
		},
	}
}

// writeTestLog writes a transaction log holding the given entries and
// returns its path.
func writeTestLog(t *testing.T, entries []harlog.Entry) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.json")
	require.NoError(t, harlog.WriteFile(path, harlog.NewArchive(entries)))
	return path
}

// testCaptureEntries builds a small clean capture: two chunks on one
// connection with a speaker update between them.
func testCaptureEntries(t *testing.T) []harlog.Entry {
	t.Helper()
	base := time.Date(2026, 2, 10, 14, 30, 0, 0, time.UTC)
	return []harlog.Entry{
		testAudioEntry(base, "conn-1", "meeting-1", 0, []byte{0x01, 0x02}),
		testSpeakersEntry(base.Add(200*time.Millisecond), "conn-1", "meeting-1",
			[]harlog.SpeakerState{{Name: "Alice", MetaBits: "1111"}}),
		testAudioEntry(base.Add(500*time.Millisecond), "conn-1", "meeting-1", 1, []byte{0x03, 0x04}),
	}
}

func runCommandTest(t *testing.T, cmd *cobra.Command, args []string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	// cobra always executes from the root command, so prepend the path of
	// subcommand names leading to cmd and set everything on the root.
	var path []string
	for c := cmd; c.HasParent(); c = c.Parent() {
		path = append([]string{c.Name()}, path...)
	}
	root := cmd.Root()
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(append(path, args...))
	err := root.Execute()
	return buf.String(), err
}

func TestValidateCleanLog(t *testing.T) {
	setupCommandTest(t)
	path := writeTestLog(t, testCaptureEntries(t))

	out, err := runCommandTest(t, ValidateCmd, []string{path})
	require.NoError(t, err)
	assert.Contains(t, out, "2 audio calls, 1 speaker calls")
	assert.Contains(t, out, "Log is valid.")
}

func TestValidateNonZeroStartFails(t *testing.T) {
	setupCommandTest(t)
	base := time.Date(2026, 2, 10, 14, 30, 0, 0, time.UTC)
	path := writeTestLog(t, []harlog.Entry{
		testAudioEntry(base, "conn-1", "meeting-1", 1, []byte{0x01}),
		testAudioEntry(base.Add(500*time.Millisecond), "conn-1", "meeting-1", 2, []byte{0x02}),
	})

	_, err := runCommandTest(t, ValidateCmd, []string{path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "starts at chunk 1")
}

func TestValidateGapWarnsButPasses(t *testing.T) {
	setupCommandTest(t)
	base := time.Date(2026, 2, 10, 14, 30, 0, 0, time.UTC)
	path := writeTestLog(t, []harlog.Entry{
		testAudioEntry(base, "conn-1", "meeting-1", 0, []byte{0x01}),
		testAudioEntry(base.Add(time.Second), "conn-1", "meeting-1", 2, []byte{0x02}),
	})

	out, err := runCommandTest(t, ValidateCmd, []string{path})
	require.NoError(t, err)
	assert.Contains(t, out, "warning:")
	assert.Contains(t, out, "Log is valid.")
}

func TestValidateJSONOutput(t *testing.T) {
	setupCommandTest(t)
	SetGlobalFlags("", 0, "json", false)
	t.Cleanup(func() { SetGlobalFlags("", 0, "", false) })

	path := writeTestLog(t, testCaptureEntries(t))
	out, err := runCommandTest(t, ValidateCmd, []string{path})
	require.NoError(t, err)

	var result struct {
		Valid        bool `json:"valid"`
		AudioCalls   int  `json:"audio_calls"`
		SpeakerCalls int  `json:"speaker_calls"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.True(t, result.Valid)
	assert.Equal(t, 2, result.AudioCalls)
	assert.Equal(t, 1, result.SpeakerCalls)
}

func TestValidateMissingFile(t *testing.T) {
	setupCommandTest(t)
	_, err := runCommandTest(t, ValidateCmd, []string{filepath.Join(t.TempDir(), "absent.json")})
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
