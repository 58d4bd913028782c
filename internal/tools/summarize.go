package tools

import (
	"context"
	"fmt"
)

const synthesisSystemPrompt = `You are a knowledge base assistant. Given a question and a set of retrieved knowledge entries, synthesize a clear, concise answer.

Rules:
- Answer ONLY from the provided entries. Do not use outside knowledge.
- Cite entry IDs in [kb-XXXXX] format when referencing specific entries.
- If entries contain conflicting information, note the conflict and cite both.
- If no entries are relevant to the question, say so clearly.
- Be concise. Prefer bullet points for multi-part answers.
- Do not repeat the question back.`

// KBSummarize retrieves via the auto strategy and synthesizes an answer via
// the query LLM, falling back to raw results on failure, grounded on
// _examples/original_source/src/personal_kb/tools/kb_summarize.py.
func (s *Server) KBSummarize(ctx context.Context, question, scope string, limit int) string {
	if limit <= 0 {
		limit = 20
	}

	raw, err := s.strategy.AutoSearch(ctx, question, scope, true, limit)
	if err != nil {
		return "Error: " + err.Error()
	}
	if raw == "No results found." {
		return "No entries found matching your question."
	}

	if s.queryLLM != nil && s.queryLLM.IsAvailable(ctx) {
		prompt := fmt.Sprintf("Question: %s\n\nRetrieved entries:\n%s", question, raw)
		synthesis, ok := s.queryLLM.Generate(ctx, synthesisSystemPrompt, prompt)
		if ok {
			return synthesis
		}
		return fmt.Sprintf("(LLM synthesis failed — showing raw results)\n\n%s", raw)
	}

	return fmt.Sprintf("(LLM unavailable — showing raw results)\n\n%s", raw)
}
