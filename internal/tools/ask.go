package tools

import "context"

// AskParams mirrors spec.md §6's kb_ask row.
type AskParams struct {
	Question            string
	Strategy            string
	Scope               string
	Target              string
	IncludeGraphContext bool
	Limit               int
}

// KBAsk dispatches to the Strategy Executor, grounded on
// _examples/original_source/src/personal_kb/tools/kb_ask.py.
func (s *Server) KBAsk(ctx context.Context, p AskParams) string {
	strategyName := p.Strategy
	if strategyName == "" {
		strategyName = "auto"
	}
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	out, err := s.strategy.Ask(ctx, p.Question, strategyName, p.Scope, p.Target, p.IncludeGraphContext, limit)
	if err != nil {
		return "Error: " + err.Error()
	}
	return out
}
