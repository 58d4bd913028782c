package tools

import (
	"context"
	"fmt"

	"github.com/kbengine/personalkb/internal/format"
)

const maxGetIDs = 20

// KBGet fully renders one or more entries by id, touching last_accessed for
// found-and-active ids only, grounded on
// _examples/original_source/src/personal_kb/tools/kb_get.py.
func (s *Server) KBGet(ctx context.Context, ids []string) string {
	if len(ids) > maxGetIDs {
		return fmt.Sprintf("Error: Maximum %d IDs per request (got %d).", maxGetIDs, len(ids))
	}

	formatted := make([]string, 0, len(ids))
	var accessed []string
	for _, id := range ids {
		e, err := s.entries.GetEntry(ctx, id)
		if err != nil {
			log.Warn().Err(err).Str("entry_id", id).Msg("get failed")
			formatted = append(formatted, fmt.Sprintf("[%s] not found", id))
			continue
		}
		if e == nil || !e.IsActive {
			formatted = append(formatted, fmt.Sprintf("[%s] not found", id))
			continue
		}
		formatted = append(formatted, format.EntryFull(e, format.EntryFullOptions{}))
		accessed = append(accessed, id)
	}

	if len(accessed) > 0 {
		if err := s.entries.TouchAccessed(ctx, accessed); err != nil {
			log.Warn().Err(err).Msg("failed to touch last_accessed")
		}
	}

	return format.ResultList(formatted, "", "")
}
