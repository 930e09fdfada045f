// Package export writes CSV snapshots of an evaluation run: the record set
// before and after the batch, and the audit trail. Snapshots are the
// operator-facing artifact for answering "what did this run change and why".
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lethehq/lethe/pkg/types"
)

// Exporter writes run snapshots into a target directory. Each run gets its
// own timestamped subdirectory; old runs are pruned per the keep count.
type Exporter struct {
	dir  string
	keep int
}

// NewExporter returns an exporter rooted at dir, creating it if needed.
// keep bounds how many run directories are retained; zero or negative
// disables pruning.
func NewExporter(dir string, keep int) (*Exporter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("export: failed to create %s: %w", dir, err)
	}
	return &Exporter{dir: dir, keep: keep}, nil
}

// RunFiles names the three snapshot files produced by WriteRun.
type RunFiles struct {
	Before string
	After  string
	Audit  string
}

// WriteRun writes the before/after record snapshots and the audit trail for
// one evaluation run into a fresh run directory and returns the file paths.
func (e *Exporter) WriteRun(before, after []*types.Record, audit []types.AuditEntry) (RunFiles, error) {
	runDir := filepath.Join(e.dir, runDirPrefix+time.Now().UTC().Format(runDirTimeLayout))
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return RunFiles{}, fmt.Errorf("export: failed to create %s: %w", runDir, err)
	}

	files := RunFiles{
		Before: filepath.Join(runDir, "lethe_before.csv"),
		After:  filepath.Join(runDir, "lethe_after.csv"),
		Audit:  filepath.Join(runDir, "lethe_audit.csv"),
	}

	if err := e.WriteRecords(files.Before, before, false); err != nil {
		return files, err
	}
	if err := e.WriteRecords(files.After, after, true); err != nil {
		return files, err
	}
	if err := e.WriteAudit(files.Audit, audit); err != nil {
		return files, err
	}

	if err := e.applyRetention(); err != nil {
		return files, err
	}
	return files, nil
}

// WriteRecords writes a record snapshot. The after-snapshot form includes a
// flags column so shield/pin/remove transitions are visible in a diff.
func (e *Exporter) WriteRecords(path string, records []*types.Record, withFlags bool) error {
	header := []string{"id", "topic", "tags", "weight", "trust", "updated_at", "text"}
	if withFlags {
		header = []string{"id", "topic", "tags", "weight", "trust", "updated_at", "flags", "text"}
	}

	rows := make([][]string, 0, len(records))
	for _, r := range records {
		row := []string{
			r.ID,
			r.Topic,
			strings.Join(r.Tags, ";"),
			formatWeight(r.Weight),
			formatWeight(r.Trust),
			r.UpdatedAt.Format(time.RFC3339),
		}
		if withFlags {
			row = append(row, recordFlags(r))
		}
		row = append(row, shorten(r.Text))
		rows = append(rows, row)
	}

	return writeCSV(path, header, rows)
}

// WriteAudit writes the audit trail in append order.
func (e *Exporter) WriteAudit(path string, entries []types.AuditEntry) error {
	header := []string{"at", "rule_id", "record_id", "action", "weight_before", "weight_after", "outcome", "detail"}

	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, []string{
			entry.Timestamp.Format(time.RFC3339),
			entry.RuleID,
			entry.RecordID,
			string(entry.Action),
			formatWeight(entry.WeightBefore),
			formatWeight(entry.WeightAfter),
			string(entry.Outcome),
			entry.Detail,
		})
	}

	return writeCSV(path, header, rows)
}

func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("export: failed to write header to %s: %w", path, err)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return fmt.Errorf("export: failed to write row to %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("export: failed to flush %s: %w", path, err)
	}
	return f.Close()
}

func recordFlags(r *types.Record) string {
	var flags []string
	if r.Shielded {
		flags = append(flags, "shielded")
	}
	if r.Pinned {
		flags = append(flags, "pinned")
	}
	if r.Removed {
		flags = append(flags, "removed")
	}
	return strings.Join(flags, "|")
}

func formatWeight(w float64) string {
	return strconv.FormatFloat(w, 'f', 4, 64)
}

// shorten collapses newlines and truncates long text so snapshot rows stay
// readable in a spreadsheet.
func shorten(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
	const max = 80
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
