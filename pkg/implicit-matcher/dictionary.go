// Package implicitmatcher provides a runtime dictionary over the graph's
// known entity names, used to find deterministic mentions of already-known
// person/tool/concept/technology nodes in an entry's text before handing
// the entry to the LLM-driven enricher (spec.md's graph subsystem:
// "deterministic + LLM-driven enrichment"). A single Aho-Corasick automaton
// serves as both dictionary lookup and text scanner — adapted from the
// teacher's narrative-entity (character/place/faction) dictionary to the
// four graph node kinds this engine actually tracks.
package implicitmatcher

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/coregx/ahocorasick"
	"github.com/orsinium-labs/stopwords"
)

// enStopwords backs TokenizeNorm's filtering with a maintained English
// stopword list, with the small hand-picked StopWords map below as a
// fallback for anything it misses — grounded on the teacher's
// pkg/scanner/discovery/registry.go, which pairs the same library with its
// own dafsa stopwords map the same way.
var enStopwords = stopwords.MustGet("en")

// ============================================================================
// UNIFIED CANONICALIZER - Used for BOTH pattern compilation AND document scanning
// ============================================================================

// isJoiner returns true for punctuation that commonly appears INSIDE names/terms.
// These are preserved during canonicalization to keep multiword entities coherent.
// Examples: "O'Brien", "Jean-Luc", "AT&T", "Node.js".
func isJoiner(r rune) bool {
	switch r {
	case '\'', '’', '‘', // apostrophe, curly apostrophe variants
		'-', '–', '—', // hyphen, en-dash, em-dash
		'·', '.', '_', '/', '#', '&': // middle dot, period, underscore, etc.
		return true
	default:
		return false
	}
}

// isSeparator returns true for characters that split tokens.
// Everything that's not a letter, digit, or joiner is a separator.
func isSeparator(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) || isJoiner(r) {
		return false
	}
	return true
}

// CanonicalizeForMatch transforms text into a normalized form for Aho-Corasick matching.
// This is THE function used by both pattern compilation and document scanning.
// Rules:
// - Fold to lowercase
// - Preserve letters, digits, and joiners (apostrophe, hyphen, period, etc.)
// - Replace all other characters with a single space
// - Collapse multiple spaces into one
// - Trim leading/trailing spaces
//
// This allows multiword patterns like "Jean-Luc" to match correctly.
func CanonicalizeForMatch(s string) string {
	var out strings.Builder
	out.Grow(len(s))

	lastWasSpace := true // Start true to trim leading spaces

	for _, ch := range s {
		c := unicode.ToLower(ch)

		// Normalize curly apostrophe to straight
		if c == '’' || c == '‘' {
			c = '\''
		}
		// Normalize en-dash/em-dash to hyphen
		if c == '–' || c == '—' {
			c = '-'
		}

		if unicode.IsLetter(c) || unicode.IsDigit(c) || isJoiner(c) {
			out.WriteRune(c)
			lastWasSpace = false
		} else {
			// Replace any separator with a single space (collapse runs)
			if !lastWasSpace {
				out.WriteRune(' ')
				lastWasSpace = true
			}
		}
	}

	result := out.String()
	// Trim trailing space
	if len(result) > 0 && result[len(result)-1] == ' ' {
		result = result[:len(result)-1]
	}
	return result
}

// ============================================================================
// TOKEN WITH OFFSETS
// ============================================================================

// Tok represents a token with its position in the original text.
type Tok struct {
	Text  string // The token text (canonicalized)
	Start int    // Byte offset in original string
	End   int    // Byte offset (exclusive)
}

// TokenizeWithOffsets splits text into tokens while preserving byte offsets.
func TokenizeWithOffsets(s string) []Tok {
	out := make([]Tok, 0, 64)

	i := 0
	for i < len(s) {
		// Skip separators
		for i < len(s) {
			r, w := utf8.DecodeRuneInString(s[i:])
			if !isSeparator(r) {
				break
			}
			i += w
		}
		start := i

		// Consume token characters
		for i < len(s) {
			r, w := utf8.DecodeRuneInString(s[i:])
			if isSeparator(r) {
				break
			}
			i += w
		}
		end := i

		if start < end {
			tokenText := CanonicalizeForMatch(s[start:end])
			out = append(out, Tok{Text: tokenText, Start: start, End: end})
		}
	}

	return out
}

// StopWords filters common words when generating auto-aliases.
var StopWords = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true,
	"the": true, "of": true, "and": true, "a": true, "an": true,
	"to": true, "in": true, "on": true, "for": true, "at": true, "by": true,
	"is": true, "it": true, "as": true, "be": true, "was": true,
	"are": true, "been": true, "with": true, "from": true, "into": true,
	"that": true, "this": true, "has": true, "have": true, "had": true,
	"its": true, "their": true,
}

// TokenizeNorm splits and normalizes, filtering stop words.
func TokenizeNorm(text string) []string {
	normalized := CanonicalizeForMatch(text)
	words := strings.Fields(normalized)

	result := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) == 0 {
			continue
		}
		if enStopwords.Contains(w) || StopWords[w] {
			continue
		}
		result = append(result, w)
	}
	return result
}

// ============================================================================
// Entity Kinds — the four node types the graph tracks (models.go)
// ============================================================================

// EntityKind mirrors graph.NodeType's four enrichable kinds.
type EntityKind int

const (
	KindPerson EntityKind = iota
	KindTool
	KindConcept
	KindTechnology
	KindOther
)

// Priority returns the matching priority when several entities share a
// pattern (higher wins) — people outrank generic concepts.
func (k EntityKind) Priority() int {
	switch k {
	case KindPerson:
		return 10
	case KindTool, KindTechnology:
		return 7
	case KindConcept:
		return 3
	default:
		return 2
	}
}

func (k EntityKind) String() string {
	names := []string{"PERSON", "TOOL", "CONCEPT", "TECHNOLOGY", "OTHER"}
	if int(k) < len(names) {
		return names[k]
	}
	return "OTHER"
}

// ParseKind parses a graph.NodeType string (e.g. "person") to an EntityKind.
func ParseKind(s string) EntityKind {
	switch strings.ToLower(s) {
	case "person":
		return KindPerson
	case "tool":
		return KindTool
	case "concept":
		return KindConcept
	case "technology":
		return KindTechnology
	default:
		return KindOther
	}
}

// EntityInfo holds entity metadata resolvable from a dictionary match.
type EntityInfo struct {
	ID    string // graph node id, e.g. "person:ada-lovelace"
	Label string
	Kind  EntityKind
}

// RegisteredEntity is input for dictionary compilation — one known graph
// node and its surface forms.
type RegisteredEntity struct {
	ID      string
	Label   string
	Aliases []string
	Kind    string // graph.NodeType string
}

// ============================================================================
// RuntimeDictionary - Dual-Purpose Aho-Corasick
// ============================================================================

// RuntimeDictionary uses one AC automaton for both dictionary lookup and
// full-text scanning.
type RuntimeDictionary struct {
	ac           *ahocorasick.Automaton
	patternToIDs [][]string
	patternIndex map[string]int
	idToInfo     map[string]*EntityInfo
	patterns     []string
}

// NewRuntimeDictionary creates an empty dictionary.
func NewRuntimeDictionary() *RuntimeDictionary {
	return &RuntimeDictionary{
		patternToIDs: [][]string{},
		patternIndex: make(map[string]int),
		idToInfo:     make(map[string]*EntityInfo),
		patterns:     []string{},
	}
}

// Compile builds a RuntimeDictionary from the graph's known entity nodes.
func Compile(entities []RegisteredEntity) (*RuntimeDictionary, error) {
	dict := NewRuntimeDictionary()

	for _, e := range entities {
		k := ParseKind(e.Kind)

		dict.idToInfo[e.ID] = &EntityInfo{ID: e.ID, Label: e.Label, Kind: k}

		surfaces := []string{e.Label}
		surfaces = append(surfaces, e.Aliases...)
		surfaces = append(surfaces, generateAutoAliases(e.Label, k)...)

		for _, surface := range surfaces {
			key := CanonicalizeForMatch(surface)
			if key == "" {
				continue
			}

			if idx, exists := dict.patternIndex[key]; exists {
				dict.patternToIDs[idx] = appendUnique(dict.patternToIDs[idx], e.ID)
			} else {
				idx := len(dict.patterns)
				dict.patterns = append(dict.patterns, key)
				dict.patternIndex[key] = idx
				dict.patternToIDs = append(dict.patternToIDs, []string{e.ID})
			}
		}
	}

	if len(dict.patterns) == 0 {
		return dict, nil
	}

	automaton, err := ahocorasick.NewBuilder().
		AddStrings(dict.patterns).
		SetMatchKind(ahocorasick.LeftmostLongest).
		SetPrefilter(true).
		Build()
	if err != nil {
		return nil, err
	}
	dict.ac = automaton

	return dict, nil
}

// Lookup finds entities matching a surface form (exact dictionary lookup).
func (d *RuntimeDictionary) Lookup(surface string) []*EntityInfo {
	key := CanonicalizeForMatch(surface)
	idx, exists := d.patternIndex[key]
	if !exists {
		return nil
	}

	ids := d.patternToIDs[idx]
	result := make([]*EntityInfo, 0, len(ids))
	for _, id := range ids {
		if info, ok := d.idToInfo[id]; ok {
			result = append(result, info)
		}
	}
	return result
}

// IsKnownEntity checks if a token matches any known entity.
func (d *RuntimeDictionary) IsKnownEntity(token string) bool {
	key := CanonicalizeForMatch(token)
	_, exists := d.patternIndex[key]
	return exists
}

// GetInfo retrieves entity info by ID.
func (d *RuntimeDictionary) GetInfo(id string) *EntityInfo {
	return d.idToInfo[id]
}

// Match represents one detected entity mention in text.
type Match struct {
	Start       int    // Byte offset start in ORIGINAL text
	End         int    // Byte offset end in ORIGINAL text
	MatchedText string // Original text slice (preserves casing)
	PatternIdx  int    // Index into patterns slice
}

// Scan finds all entity mentions in text (O(n) via AC).
func (d *RuntimeDictionary) Scan(text string) []Match {
	if d.ac == nil {
		return nil
	}

	canonicalized := CanonicalizeForMatch(text)
	haystack := []byte(canonicalized)
	canonToOrig := buildOffsetMap(text)

	matches := d.ac.FindAllOverlapping(haystack)
	result := make([]Match, 0, len(matches))

	for _, m := range matches {
		origStart := mapOffset(m.Start, canonToOrig, len(text))
		origEnd := mapOffset(m.End, canonToOrig, len(text))

		if origStart >= len(text) || origEnd > len(text) || origStart >= origEnd {
			continue
		}

		result = append(result, Match{
			Start:       origStart,
			End:         origEnd,
			MatchedText: text[origStart:origEnd],
			PatternIdx:  m.PatternID,
		})
	}

	return result
}

// buildOffsetMap maps canonicalized byte positions back to original positions.
func buildOffsetMap(original string) []int {
	mapping := make([]int, 0, len(original)+1)

	lastWasSpace := true
	origPos := 0

	for _, ch := range original {
		runeLen := utf8.RuneLen(ch)
		c := unicode.ToLower(ch)

		if c == '’' || c == '‘' {
			c = '\''
		}
		if c == '–' || c == '—' {
			c = '-'
		}

		if unicode.IsLetter(c) || unicode.IsDigit(c) || isJoiner(c) {
			canonLen := utf8.RuneLen(c)
			for i := 0; i < canonLen; i++ {
				mapping = append(mapping, origPos)
			}
			lastWasSpace = false
		} else {
			if !lastWasSpace {
				mapping = append(mapping, origPos)
				lastWasSpace = true
			}
		}

		origPos += runeLen
	}

	mapping = append(mapping, origPos)
	return mapping
}

func mapOffset(canonOffset int, mapping []int, originalLen int) int {
	if canonOffset >= len(mapping) {
		return originalLen
	}
	if canonOffset < 0 {
		return 0
	}
	return mapping[canonOffset]
}

// EntitiesFor resolves the entities registered under one Match.
func (d *RuntimeDictionary) EntitiesFor(m Match) []*EntityInfo {
	ids := d.patternToIDs[m.PatternIdx]
	entities := make([]*EntityInfo, 0, len(ids))
	for _, id := range ids {
		if info := d.idToInfo[id]; info != nil {
			entities = append(entities, info)
		}
	}
	return entities
}

// SelectBest picks the highest-priority entity among several matched IDs.
func (d *RuntimeDictionary) SelectBest(ids []string) *EntityInfo {
	var best *EntityInfo
	for _, id := range ids {
		info := d.idToInfo[id]
		if info == nil {
			continue
		}
		if best == nil || info.Kind.Priority() > best.Kind.Priority() {
			best = info
		}
	}
	return best
}

// ============================================================================
// Auto-Alias Generation
// ============================================================================

// generateAutoAliases derives extra surface forms so a full name still
// matches on a shortened mention later in the text — "Ada Lovelace" also
// registers "Lovelace" for person nodes, and acronym-style aliases for
// multi-word tool/technology names ("Large Language Model" -> "llm").
func generateAutoAliases(label string, kind EntityKind) []string {
	tokens := TokenizeNorm(label)
	if len(tokens) <= 1 {
		return nil
	}

	first := tokens[0]
	last := tokens[len(tokens)-1]
	var out []string

	if kind == KindPerson {
		if len(last) >= 3 {
			out = append(out, last)
		}
		if len(tokens) >= 3 && first != last {
			out = append(out, first+" "+last)
		}
	}

	if kind == KindTool || kind == KindTechnology {
		var acronym strings.Builder
		for _, tok := range tokens {
			if len(tok) > 0 {
				acronym.WriteByte(tok[0])
			}
		}
		if acronym.Len() >= 2 && acronym.Len() <= 5 {
			out = append(out, acronym.String())
		}
	}

	return out
}

func appendUnique(slice []string, item string) []string {
	for _, s := range slice {
		if s == item {
			return slice
		}
	}
	return append(slice, item)
}
