package sessionsource

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/acastellana/clawcondos-sub001/pkg/types"
)

// maxLineBytes bounds a single transcript line; longer lines are truncated
// by the scanner and reported as malformed.
const maxLineBytes = 1024 * 1024

// JSONLSource reads session transcripts from a directory of <key>.jsonl
// files. Each line is a JSON object with "role" and "text" fields; an
// optional leading line carries a "meta" object with display name, labels
// and the subagent flag. Malformed lines are skipped, not fatal.
type JSONLSource struct {
	dir    string
	logger *slog.Logger
}

type transcriptLine struct {
	Role string    `json:"role"`
	Text string    `json:"text"`
	Meta *metaLine `json:"meta"`
}

type metaLine struct {
	DisplayName string   `json:"display_name"`
	Labels      []string `json:"labels"`
	IsSubagent  bool     `json:"is_subagent"`
}

// NewJSONLSource creates a source over dir. The directory does not have to
// exist yet; an absent directory lists zero sessions.
func NewJSONLSource(dir string, logger *slog.Logger) *JSONLSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &JSONLSource{dir: dir, logger: logger}
}

func (s *JSONLSource) ListSessions(ctx context.Context) ([]Descriptor, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session directory %s: %w", s.dir, err)
	}

	descriptors := make([]Descriptor, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		key := strings.TrimSuffix(entry.Name(), ".jsonl")
		desc := Descriptor{Key: key, DisplayName: key}
		if meta := s.readMeta(filepath.Join(s.dir, entry.Name())); meta != nil {
			if meta.DisplayName != "" {
				desc.DisplayName = meta.DisplayName
			}
			desc.Labels = meta.Labels
			desc.IsSubagent = meta.IsSubagent
		}
		descriptors = append(descriptors, desc)
	}

	sort.Slice(descriptors, func(i, j int) bool {
		return descriptors[i].Key < descriptors[j].Key
	})
	return descriptors, nil
}

// readMeta parses the optional meta object from the first line of a
// transcript file. Any parse problem just means no metadata.
func (s *JSONLSource) readMeta(path string) *metaLine {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	if !scanner.Scan() {
		return nil
	}
	var line transcriptLine
	if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
		return nil
	}
	return line.Meta
}

func (s *JSONLSource) PreviewSessions(ctx context.Context, keys []string, maxMessages, maxChars int) (map[string][]types.Message, error) {
	previews := make(map[string][]types.Message, len(keys))
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		msgs, err := s.readTranscript(filepath.Join(s.dir, key+".jsonl"))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read session %s: %w", key, err)
		}
		previews[key] = tailWindow(msgs, maxMessages, maxChars)
	}
	return previews, nil
}

func (s *JSONLSource) readTranscript(path string) ([]types.Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var msgs []types.Message
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var line transcriptLine
		if err := json.Unmarshal([]byte(raw), &line); err != nil {
			s.logger.Warn("skipping malformed transcript line",
				"file", filepath.Base(path), "line", lineNo, "error", err)
			continue
		}
		if line.Meta != nil {
			continue
		}
		if line.Role == "" {
			s.logger.Warn("skipping transcript line without role",
				"file", filepath.Base(path), "line", lineNo)
			continue
		}
		msgs = append(msgs, types.Message{
			Role: types.Role(line.Role),
			Text: line.Text,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}
	return msgs, nil
}

// tailWindow keeps the trailing maxMessages messages, then trims from the
// front until the total text length fits maxChars: whole messages first,
// then the oldest survivor's text absorbs any remaining excess, so a
// single oversized message still honors the character budget.
func tailWindow(msgs []types.Message, maxMessages, maxChars int) []types.Message {
	if maxMessages > 0 && len(msgs) > maxMessages {
		msgs = msgs[len(msgs)-maxMessages:]
	}
	if maxChars <= 0 {
		return msgs
	}
	total := 0
	for _, m := range msgs {
		total += utf8.RuneCountInString(m.Text)
	}
	for len(msgs) > 1 && total > maxChars {
		total -= utf8.RuneCountInString(msgs[0].Text)
		msgs = msgs[1:]
	}
	if total <= maxChars {
		return msgs
	}

	out := make([]types.Message, len(msgs))
	copy(out, msgs)
	runes := []rune(out[0].Text)
	keep := len(runes) - (total - maxChars)
	if keep < 0 {
		keep = 0
	}
	out[0].Text = string(runes[len(runes)-keep:])
	return out
}
