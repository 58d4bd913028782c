package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kbengine/personalkb/internal/llm"
	"github.com/kbengine/personalkb/internal/llmjson"
	"github.com/kbengine/personalkb/internal/logx"
)

var extractLog = logx.Component("ingest.extractor")

const maxContentChars = 100_000
const maxEntriesPerFile = 10

var validExtractedTypes = map[string]bool{
	"factual_reference": true, "decision": true, "pattern_convention": true, "lesson_learned": true,
}

const summarizeSystemPrompt = `You are a knowledge base assistant. Given a file's path and content, write a 2-3 sentence summary describing what knowledge this file contains and why it might be useful to recall later.

Be specific and factual. Focus on WHAT the file teaches, not how it's formatted. Return ONLY the summary text, no JSON, no markdown formatting.`

const extractSystemPrompt = `You are a knowledge extraction system. Given a file, extract discrete knowledge entries suitable for a personal knowledge base.

Return ONLY a JSON array. Each object has:
- "short_title": brief identifier (3-8 words)
- "long_title": descriptive title (1 sentence)
- "knowledge_details": the actual knowledge content (detailed, self-contained)
- "entry_type": one of: factual_reference, decision, pattern_convention, lesson_learned
- "tags": list of lowercase tag strings (2-5 tags)

Rules:
- Extract 1-10 entries per file. Only extract genuinely useful knowledge.
- Each entry must be SELF-CONTAINED, understandable without the source file.
- Prefer specific, actionable knowledge over vague summaries.
- entry_type must be one of: factual_reference, decision, pattern_convention, lesson_learned.
- Skip boilerplate, TODOs, and trivial content.
- Return [] if the file has no extractable knowledge.`

// ExtractedEntry is a knowledge entry extracted from a file by the LLM.
type ExtractedEntry struct {
	ShortTitle       string
	LongTitle        string
	KnowledgeDetails string
	EntryType        string
	Tags             []string
}

func truncate(content string) string {
	if len(content) > maxContentChars {
		return content[:maxContentChars]
	}
	return content
}

// SummarizeFile generates a 2-3 sentence summary of a file's knowledge
// content. Returns "", false if the LLM is unavailable or fails.
func SummarizeFile(ctx context.Context, provider llm.Provider, filePath, content string) (string, bool) {
	if provider == nil || !provider.IsAvailable(ctx) {
		return "", false
	}
	prompt := fmt.Sprintf("File: %s\n\n%s", filePath, truncate(content))
	return provider.Generate(ctx, summarizeSystemPrompt, prompt)
}

// ExtractEntries extracts structured knowledge entries from a file. Returns
// an empty slice if the LLM is unavailable or extraction fails.
func ExtractEntries(ctx context.Context, provider llm.Provider, filePath, content string) []ExtractedEntry {
	if provider == nil || !provider.IsAvailable(ctx) {
		return nil
	}
	prompt := fmt.Sprintf("File: %s\n\n%s", filePath, truncate(content))
	raw, ok := provider.Generate(ctx, extractSystemPrompt, prompt)
	if !ok {
		return nil
	}
	return parseExtractedEntries(raw)
}

func parseExtractedEntries(raw string) []ExtractedEntry {
	cleaned := llmjson.Clean(raw)
	span := llmjson.ExtractArray(cleaned)
	if span == "" {
		extractLog.Warn().Msg("no JSON array found in extraction response")
		return nil
	}

	var items []map[string]any
	if err := json.Unmarshal([]byte(span), &items); err != nil {
		extractLog.Warn().Err(err).Msg("malformed JSON in extraction response")
		return nil
	}

	var results []ExtractedEntry
	for _, item := range items {
		shortTitle, ok1 := item["short_title"].(string)
		longTitle, ok2 := item["long_title"].(string)
		details, ok3 := item["knowledge_details"].(string)
		entryType, ok4 := item["entry_type"].(string)
		if !ok1 || !ok2 || !ok3 || !ok4 {
			continue
		}
		if !validExtractedTypes[entryType] {
			continue
		}

		var tags []string
		if rawTags, ok := item["tags"].([]any); ok {
			for _, t := range rawTags {
				if s, ok := t.(string); ok {
					tags = append(tags, strings.ToLower(s))
				}
			}
		}

		results = append(results, ExtractedEntry{
			ShortTitle:       shortTitle,
			LongTitle:        longTitle,
			KnowledgeDetails: details,
			EntryType:        entryType,
			Tags:             tags,
		})
		if len(results) >= maxEntriesPerFile {
			break
		}
	}
	return results
}
