package sessionsource

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acastellana/clawcondos-sub001/pkg/types"
)

func writeSession(t *testing.T, dir, key string, lines ...string) {
	t.Helper()
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, key+".jsonl"), []byte(content), 0644))
}

func testSource(t *testing.T) (*JSONLSource, string) {
	t.Helper()
	dir := t.TempDir()
	return NewJSONLSource(dir, slog.New(slog.DiscardHandler)), dir
}

func TestListSessionsMissingDir(t *testing.T) {
	source := NewJSONLSource(filepath.Join(t.TempDir(), "nope"), slog.New(slog.DiscardHandler))
	descriptors, err := source.ListSessions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, descriptors)
}

func TestListSessions(t *testing.T) {
	source, dir := testSource(t)

	writeSession(t, dir, "bravo",
		`{"role":"user","text":"plain session"}`)
	writeSession(t, dir, "alpha",
		`{"meta":{"display_name":"Alpha Session","labels":["proj-x"],"is_subagent":true}}`,
		`{"role":"user","text":"hello"}`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	descriptors, err := source.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, descriptors, 2)

	// Sorted by key; metadata comes from the meta line when present.
	assert.Equal(t, "alpha", descriptors[0].Key)
	assert.Equal(t, "Alpha Session", descriptors[0].DisplayName)
	assert.Equal(t, []string{"proj-x"}, descriptors[0].Labels)
	assert.True(t, descriptors[0].IsSubagent)

	assert.Equal(t, "bravo", descriptors[1].Key)
	assert.Equal(t, "bravo", descriptors[1].DisplayName)
	assert.False(t, descriptors[1].IsSubagent)
}

func TestDescriptorMetadata(t *testing.T) {
	meta := Descriptor{Key: "k", Labels: []string{"a"}, IsSubagent: true}.Metadata()
	assert.Equal(t, "k", meta.DisplayName) // falls back to the key
	assert.Equal(t, []string{"a"}, meta.ProjectLabels)
	assert.True(t, meta.IsSubagent)

	named := Descriptor{Key: "k", DisplayName: "Pretty"}.Metadata()
	assert.Equal(t, "Pretty", named.DisplayName)
}

func TestPreviewSessions(t *testing.T) {
	source, dir := testSource(t)

	writeSession(t, dir, "chat",
		`{"meta":{"display_name":"Chat"}}`,
		`{"role":"user","text":"first question"}`,
		`not valid json`,
		`{"text":"missing role"}`,
		`{"role":"assistant","text":"the answer"}`)

	previews, err := source.PreviewSessions(context.Background(), []string{"chat", "ghost"}, 10, 1000)
	require.NoError(t, err)
	require.Len(t, previews, 1)
	assert.NotContains(t, previews, "ghost")

	msgs := previews["chat"]
	require.Len(t, msgs, 2)
	assert.Equal(t, types.RoleUser, msgs[0].Role)
	assert.Equal(t, "first question", msgs[0].Text)
	assert.Equal(t, types.RoleAssistant, msgs[1].Role)
}

func TestPreviewSessionsMessageCap(t *testing.T) {
	source, dir := testSource(t)

	lines := make([]string, 10)
	for i := range lines {
		lines[i] = `{"role":"user","text":"message ` + string(rune('0'+i)) + `"}`
	}
	writeSession(t, dir, "long", lines...)

	previews, err := source.PreviewSessions(context.Background(), []string{"long"}, 3, 10000)
	require.NoError(t, err)

	msgs := previews["long"]
	require.Len(t, msgs, 3)
	// The trailing messages survive, not the leading ones.
	assert.Equal(t, "message 7", msgs[0].Text)
	assert.Equal(t, "message 9", msgs[2].Text)
}

func TestTailWindowCharCap(t *testing.T) {
	msgs := []types.Message{
		{Role: types.RoleUser, Text: "aaaaaaaaaa"},
		{Role: types.RoleUser, Text: "bbbbbbbbbb"},
		{Role: types.RoleUser, Text: "cccccccccc"},
	}

	trimmed := tailWindow(msgs, 10, 25)
	require.Len(t, trimmed, 2)
	assert.Equal(t, "bbbbbbbbbb", trimmed[0].Text)

	// The last message survives but its text is cut to the budget.
	tiny := tailWindow(msgs, 10, 5)
	require.Len(t, tiny, 1)
	assert.Equal(t, "ccccc", tiny[0].Text)

	// Zero caps mean no trimming.
	assert.Len(t, tailWindow(msgs, 0, 0), 3)
}

func TestTailWindowTruncatesOversizedMessage(t *testing.T) {
	huge := strings.Repeat("z", 100000)
	msgs := []types.Message{{Role: types.RoleUser, Text: huge}}

	trimmed := tailWindow(msgs, 10, 4000)
	require.Len(t, trimmed, 1)
	assert.Len(t, trimmed[0].Text, 4000)
	// The original slice is left untouched.
	assert.Len(t, msgs[0].Text, 100000)
}

func TestTailWindowDropsThenTruncates(t *testing.T) {
	msgs := []types.Message{
		{Role: types.RoleUser, Text: "0123456789"},
		{Role: types.RoleAssistant, Text: "abcdefghijklmnopqrst"},
	}

	// Whole messages drop from the front first; the lone survivor still
	// exceeds the budget and keeps only its trailing characters.
	trimmed := tailWindow(msgs, 10, 15)
	require.Len(t, trimmed, 1)
	assert.Equal(t, "fghijklmnopqrst", trimmed[0].Text)
}
