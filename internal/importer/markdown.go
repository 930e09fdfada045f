// Package importer turns Markdown notes into memory records. YAML frontmatter
// carries the record metadata (topic, tags, emotion, weight, trust, pinning);
// the note body becomes the record text.
package importer

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lethehq/lethe/pkg/types"
)

// frontmatter is the metadata block accepted at the top of a note.
type frontmatter struct {
	ID          string   `yaml:"id"`
	Topic       string   `yaml:"topic"`
	Tags        []string `yaml:"tags"`
	Emotion     string   `yaml:"emotion"`
	Weight      *float64 `yaml:"weight"`
	Trust       *float64 `yaml:"trust"`
	Pinned      bool     `yaml:"pinned"`
	PinPriority float64  `yaml:"pin_priority"`
	Date        string   `yaml:"date"`
}

// ParseNote parses one Markdown note into a record. name is used for error
// context and, via its first directory segment, as the topic fallback when
// the frontmatter names none.
func ParseNote(content []byte, name string) (*types.Record, error) {
	fm, body, err := splitFrontmatter(string(content))
	if err != nil {
		return nil, fmt.Errorf("importer: %s: %w", name, err)
	}

	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("importer: %s: note body is empty", name)
	}

	record := &types.Record{
		ID:          fm.ID,
		Text:        body,
		Topic:       fm.Topic,
		Tags:        fm.Tags,
		Emotion:     fm.Emotion,
		Pinned:      fm.Pinned,
		PinPriority: fm.PinPriority,
	}
	if record.Topic == "" {
		record.Topic = topicFromPath(name)
	}
	if fm.Weight != nil {
		record.Weight = *fm.Weight
	}
	if fm.Trust != nil {
		record.Trust = *fm.Trust
	}
	if fm.Date != "" {
		ts, err := parseDate(fm.Date)
		if err != nil {
			return nil, fmt.Errorf("importer: %s: %w", name, err)
		}
		record.CreatedAt = ts
		record.UpdatedAt = ts
	}

	return record, nil
}

// LoadDir parses every Markdown file under dir into records, walking
// subdirectories. File order is the deterministic filepath.WalkDir order.
func LoadDir(dir string) ([]*types.Record, error) {
	var records []*types.Record
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isMarkdown(path) {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = path
		}
		record, err := ParseNote(content, rel)
		if err != nil {
			return err
		}
		records = append(records, record)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func isMarkdown(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return true
	}
	return false
}

// splitFrontmatter separates the YAML block between --- delimiters from the
// note body. A note without frontmatter is all body.
func splitFrontmatter(text string) (frontmatter, string, error) {
	var fm frontmatter

	lines := strings.Split(text, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return fm, text, nil
	}

	closeIdx := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			closeIdx = i
			break
		}
	}
	if closeIdx == -1 {
		return fm, text, nil
	}

	block := strings.Join(lines[1:closeIdx], "\n")
	if err := yaml.Unmarshal([]byte(block), &fm); err != nil {
		return fm, "", fmt.Errorf("invalid frontmatter: %w", err)
	}
	return fm, strings.Join(lines[closeIdx+1:], "\n"), nil
}

// topicFromPath uses the first directory segment of a relative path as the
// topic. Notes at the root of the import tree get no topic.
func topicFromPath(rel string) string {
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) > 1 {
		return strings.ToLower(strings.TrimSpace(parts[0]))
	}
	return ""
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}
