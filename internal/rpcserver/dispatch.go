package rpcserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kbengine/personalkb/internal/tools"
)

type toolHandler func(ctx context.Context, srv *tools.Server, raw json.RawMessage) (string, error)

// handlers is the fixed mapping between the eight tool names spec.md §6
// names and the rpcserver-local decode+call glue for each. Every handler
// hands back whatever string the tools.Server method produced — including
// its own "Error: ..." lines — as Response.Result, never Response.Error;
// only argument decoding failures surface as envelope-level errors.
var handlers = map[string]toolHandler{
	"kb_store":       handleStore,
	"kb_store_batch": handleStoreBatch,
	"kb_search":      handleSearch,
	"kb_get":         handleGet,
	"kb_ask":         handleAsk,
	"kb_summarize":   handleSummarize,
	"kb_ingest":      handleIngest,
	"kb_maintain":    handleMaintain,
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decoding args: %w", err)
	}
	return nil
}

func handleStore(ctx context.Context, srv *tools.Server, raw json.RawMessage) (string, error) {
	var a storeArgs
	if err := decode(raw, &a); err != nil {
		return "", err
	}
	return srv.KBStore(ctx, tools.StoreParams{
		ShortTitle:        a.ShortTitle,
		LongTitle:         a.LongTitle,
		KnowledgeDetails:  a.KnowledgeDetails,
		EntryType:         a.EntryType,
		ProjectRef:        a.ProjectRef,
		SourceContext:     a.SourceContext,
		ConfidenceLevel:   a.confidence(),
		Tags:              a.Tags,
		Hints:             a.Hints,
		UpdateEntryID:     a.UpdateEntryID,
		DeactivateEntryID: a.DeactivateEntryID,
		ChangeReason:      a.ChangeReason,
	}), nil
}

func handleStoreBatch(ctx context.Context, srv *tools.Server, raw json.RawMessage) (string, error) {
	var a storeBatchArgs
	if err := decode(raw, &a); err != nil {
		return "", err
	}
	entries := make([]tools.BatchEntryInput, 0, len(a.Entries))
	for _, e := range a.Entries {
		entries = append(entries, tools.BatchEntryInput{
			ShortTitle:       e.ShortTitle,
			LongTitle:        e.LongTitle,
			KnowledgeDetails: e.KnowledgeDetails,
			EntryType:        e.EntryType,
			ProjectRef:       e.ProjectRef,
			SourceContext:    e.SourceContext,
			ConfidenceLevel:  e.confidence(),
			Tags:             e.Tags,
			Hints:            e.Hints,
		})
	}
	return srv.KBStoreBatch(ctx, entries), nil
}

func handleSearch(ctx context.Context, srv *tools.Server, raw json.RawMessage) (string, error) {
	var a searchArgs
	if err := decode(raw, &a); err != nil {
		return "", err
	}
	limit := a.Limit
	if limit <= 0 {
		limit = 10
	}
	if limit > 50 {
		limit = 50
	}
	return srv.KBSearch(ctx, tools.SearchParams{
		Query:        a.Query,
		ProjectRef:   a.ProjectRef,
		EntryType:    a.EntryType,
		Tags:         a.Tags,
		Limit:        limit,
		IncludeStale: a.IncludeStale,
	}), nil
}

func handleGet(ctx context.Context, srv *tools.Server, raw json.RawMessage) (string, error) {
	var a getArgs
	if err := decode(raw, &a); err != nil {
		return "", err
	}
	return srv.KBGet(ctx, []string(a.EntryID)), nil
}

func handleAsk(ctx context.Context, srv *tools.Server, raw json.RawMessage) (string, error) {
	var a askArgs
	if err := decode(raw, &a); err != nil {
		return "", err
	}
	return srv.KBAsk(ctx, tools.AskParams{
		Question:            a.Question,
		Strategy:            a.Strategy,
		Scope:               a.Scope,
		Target:              a.Target,
		IncludeGraphContext: a.includeGraphContext(),
		Limit:               a.Limit,
	}), nil
}

func handleSummarize(ctx context.Context, srv *tools.Server, raw json.RawMessage) (string, error) {
	var a summarizeArgs
	if err := decode(raw, &a); err != nil {
		return "", err
	}
	return srv.KBSummarize(ctx, a.Question, a.Scope, a.Limit), nil
}

func handleIngest(ctx context.Context, srv *tools.Server, raw json.RawMessage) (string, error) {
	var a ingestArgs
	if err := decode(raw, &a); err != nil {
		return "", err
	}
	return srv.KBIngest(ctx, a.Path, a.ProjectRef, a.DryRun, a.recursive()), nil
}

func handleMaintain(ctx context.Context, srv *tools.Server, raw json.RawMessage) (string, error) {
	var a maintainArgs
	if err := decode(raw, &a); err != nil {
		return "", err
	}
	return srv.KBMaintain(ctx, tools.MaintainParams{
		Action:       a.Action,
		EntryID:      a.EntryID,
		DaysInactive: a.DaysInactive,
		Force:        a.Force,
		Confirm:      a.Confirm,
	}), nil
}
