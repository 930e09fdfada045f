package export

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	runDirPrefix = "run_"

	// Fixed-width timestamp so lexicographic order is chronological order.
	runDirTimeLayout = "20060102T150405.000000000"
)

// listRuns returns the run directory names under the export root, newest
// first.
func (e *Exporter) listRuns() ([]string, error) {
	entries, err := os.ReadDir(e.dir)
	if err != nil {
		return nil, fmt.Errorf("export: failed to read %s: %w", e.dir, err)
	}

	var runs []string
	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), runDirPrefix) {
			runs = append(runs, entry.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(runs)))
	return runs, nil
}

// applyRetention deletes run directories beyond the configured keep count.
func (e *Exporter) applyRetention() error {
	if e.keep <= 0 {
		return nil
	}

	runs, err := e.listRuns()
	if err != nil {
		return err
	}
	if len(runs) <= e.keep {
		return nil
	}

	var lastErr error
	for _, name := range runs[e.keep:] {
		if err := os.RemoveAll(filepath.Join(e.dir, name)); err != nil {
			lastErr = err
		}
	}
	if lastErr != nil {
		return fmt.Errorf("export: failed to prune old runs: %w", lastErr)
	}
	return nil
}
