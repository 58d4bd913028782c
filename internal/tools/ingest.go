package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kbengine/personalkb/internal/ingest"
)

func isGlobPath(path string) bool {
	return strings.ContainsAny(path, "*?[")
}

func expandUser(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			if path == "~" {
				return home
			}
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// KBIngest resolves path — absolute, CWD-relative, ~-expanded, or
// glob-patterned — and dispatches to the Ingester, grounded on
// _examples/original_source/src/personal_kb/tools/kb_ingest.py.
func (s *Server) KBIngest(ctx context.Context, path, projectRef string, dryRun, recursive bool) string {
	if s.queryLLM == nil {
		return "Error: No LLM available for ingestion. Configure an LLM provider."
	}

	if isGlobPath(path) {
		base, err := os.Getwd()
		if err != nil {
			return fmt.Sprintf("Error: %s", err)
		}
		matches, err := filepath.Glob(filepath.Join(base, path))
		if err != nil {
			return fmt.Sprintf("Error: %s", err)
		}
		var files []string
		for _, m := range matches {
			info, err := os.Stat(m)
			if err == nil && !info.IsDir() {
				files = append(files, m)
			}
		}
		if len(files) == 0 {
			return fmt.Sprintf("Error: No files matched pattern: %s", path)
		}
		sort.Strings(files)

		var results []ingest.FileResult
		for _, f := range files {
			results = append(results, s.ingester.IngestFile(ctx, f, base, projectRef, dryRun))
		}
		return formatIngestResults(results, dryRun)
	}

	target := expandUser(path)
	if !filepath.IsAbs(target) {
		if abs, err := filepath.Abs(target); err == nil {
			target = abs
		}
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Sprintf("Error: Path does not exist: %s", target)
	}

	if !info.IsDir() {
		r := s.ingester.IngestFile(ctx, target, filepath.Dir(target), projectRef, dryRun)
		prefix := ""
		if dryRun {
			prefix = "[DRY RUN] "
		}
		line := prefix + formatFileResult(r)
		if r.Summary != "" {
			line += fmt.Sprintf("\n  Summary: %s", r.Summary)
		}
		return line
	}

	dirResult := s.ingester.IngestDirectory(ctx, target, projectRef, recursive, dryRun)
	return formatDirectoryResult(dirResult, dryRun)
}

func formatFileResult(r ingest.FileResult) string {
	line := fmt.Sprintf("  %s: %s", r.Action, r.Path)
	if r.Reason != "" {
		line += fmt.Sprintf(" — %s", r.Reason)
	}
	if r.EntryCount > 0 {
		line += fmt.Sprintf(" (%d entries)", r.EntryCount)
	}
	if len(r.EntryIDs) > 0 {
		line += fmt.Sprintf(" [%s]", strings.Join(r.EntryIDs, ", "))
	}
	return line
}

func formatIngestResults(results []ingest.FileResult, dryRun bool) string {
	var dr ingest.DirectoryResult
	for _, r := range results {
		dr.TotalFiles++
		dr.FileResults = append(dr.FileResults, r)
		tallyFileResult(&dr, r)
	}
	return formatDirectoryResult(dr, dryRun)
}

func tallyFileResult(dr *ingest.DirectoryResult, r ingest.FileResult) {
	switch r.Action {
	case "ingested":
		dr.Ingested++
		dr.EntriesCreated += r.EntryCount
	case "skipped":
		dr.Skipped++
	case "flagged":
		dr.Flagged++
	case "error":
		dr.Errors++
	case "unchanged":
		dr.Unchanged++
	case "dry_run":
		dr.Ingested++
		dr.EntriesCreated += r.EntryCount
	}
}

func formatDirectoryResult(r ingest.DirectoryResult, dryRun bool) string {
	prefix := ""
	if dryRun {
		prefix = "[DRY RUN] "
	}
	lines := []string{prefix + "Ingestion complete\n"}
	lines = append(lines, fmt.Sprintf("Files: %d total, %d ingested, %d skipped, %d flagged, %d unchanged, %d errors",
		r.TotalFiles, r.Ingested, r.Skipped, r.Flagged, r.Unchanged, r.Errors))
	lines = append(lines, fmt.Sprintf("Entries: %d created\n", r.EntriesCreated))

	var skipped int
	for _, fr := range r.FileResults {
		if fr.Action != "skipped" {
			lines = append(lines, formatFileResult(fr))
		} else {
			skipped++
		}
	}
	if skipped > 0 {
		lines = append(lines, fmt.Sprintf("\n  (%d files skipped — unsupported type or deny-list)", skipped))
	}

	return strings.Join(lines, "\n")
}
