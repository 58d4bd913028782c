// Package safety implements the ingestion safety pipeline (spec.md §4.11):
// deny-list matching, secret detection, and PII redaction. Grounded on
// _examples/original_source/src/personal_kb/ingest/safety.py, with the
// secret scanner adapted from the teacher's
// pkg/implicit-matcher/dictionary.go dual-purpose Aho-Corasick idiom
// (prefix scan via coregx/ahocorasick, then a confirming regex per type —
// SPEC_FULL.md §C "Secret detector patterns").
package safety

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/coregx/ahocorasick"
	"github.com/gobwas/glob"
)

// denyPatterns are filename globs that must never be ingested (private
// keys, credentials, binaries, media, databases).
var denyPatterns = []string{
	"*.pem", "*.key", "*.p12", "*.pfx", "*.crt", "*.cer",
	"id_rsa", "id_rsa.*", "id_ed25519", "id_ed25519.*", "id_dsa", "id_ecdsa",
	".env", ".env.*", "*.env",
	"wg*.conf",
	"*.keychain", "*.keychain-db", "credentials.json", "token.json",
	"*.zip", "*.tar", "*.tar.gz", "*.tgz", "*.gz", "*.bz2", "*.xz", "*.7z", "*.rar",
	"*.exe", "*.dll", "*.so", "*.dylib", "*.bin", "*.o", "*.a", "*.class", "*.jar",
	"*.pyc", "*.pyo", "*.wasm",
	"*.png", "*.jpg", "*.jpeg", "*.gif", "*.bmp", "*.ico", "*.svg", "*.webp",
	"*.mp3", "*.mp4", "*.wav", "*.avi", "*.mov",
	"*.sqlite", "*.sqlite3", "*.db",
}

var compiledDenyGlobs []glob.Glob

func init() {
	compiledDenyGlobs = make([]glob.Glob, len(denyPatterns))
	for i, p := range denyPatterns {
		compiledDenyGlobs[i] = glob.MustCompile(p)
	}
}

// CheckDenyList reports the matching deny-list pattern for path, or "" if
// it is allowed.
func CheckDenyList(path string) string {
	name := filepath.Base(path)
	lower := strings.ToLower(name)
	for i, g := range compiledDenyGlobs {
		if g.Match(name) || g.Match(lower) {
			return denyPatterns[i]
		}
	}
	return ""
}

// secretPrefix is one Aho-Corasick prefix token that, if found, triggers a
// confirming regex for its secret type.
type secretPrefix struct {
	prefix string
	typ    string
}

var secretPrefixes = []secretPrefix{
	{"AKIA", "aws_access_key"},
	{"-----BEGIN", "private_key"},
	{"ghp_", "github_token"},
	{"gho_", "github_token"},
	{"ghs_", "github_token"},
	{"api_key", "keyword_assignment"},
	{"api-key", "keyword_assignment"},
	{"secret", "keyword_assignment"},
	{"token", "keyword_assignment"},
}

var secretAutomaton *ahocorasick.Automaton

func init() {
	patterns := make([]string, len(secretPrefixes))
	for i, p := range secretPrefixes {
		patterns[i] = p.prefix
	}
	automaton, err := ahocorasick.NewBuilder().
		AddStrings(patterns).
		SetMatchKind(ahocorasick.LeftmostLongest).
		SetPrefilter(true).
		Build()
	if err != nil {
		panic(err)
	}
	secretAutomaton = automaton
}

var (
	awsKeyRe      = regexp.MustCompile(`AKIA[0-9A-Z]{16}`)
	privateKeyRe  = regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`)
	githubTokenRe = regexp.MustCompile(`gh[pos]_[A-Za-z0-9]{20,}`)
	assignmentRe  = regexp.MustCompile(`(?i)(api[_-]?key|secret|token)\s*[:=]\s*["']?[A-Za-z0-9_\-]{16,}["']?`)
)

// DetectSecrets scans content for secret-shaped substrings, returning the
// distinct set of types found (preserving first-seen order), or nil if
// none. Each Aho-Corasick prefix hit is confirmed by a type-specific regex
// to avoid false positives on bare words like "token" in prose.
func DetectSecrets(content string) []string {
	matches := secretAutomaton.FindAllOverlapping([]byte(strings.ToLower(content)))
	if len(matches) == 0 {
		return nil
	}

	hitTypes := map[string]bool{}
	for _, m := range matches {
		hitTypes[secretPrefixes[m.PatternID].typ] = true
	}

	var found []string
	seen := map[string]bool{}
	add := func(typ string) {
		if !seen[typ] {
			seen[typ] = true
			found = append(found, typ)
		}
	}

	if hitTypes["aws_access_key"] && awsKeyRe.MatchString(content) {
		add("aws_access_key")
	}
	if hitTypes["private_key"] && privateKeyRe.MatchString(content) {
		add("private_key")
	}
	if hitTypes["github_token"] && githubTokenRe.MatchString(content) {
		add("github_token")
	}
	if hitTypes["keyword_assignment"] && assignmentRe.MatchString(content) {
		add("keyword_assignment")
	}

	return found
}

var (
	emailRe      = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phoneRe      = regexp.MustCompile(`\b(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`)
	creditCardRe = regexp.MustCompile(`\b(?:\d[ -]?){13,16}\b`)
)

// RedactPII replaces emails, phone numbers, and credit-card-like digit runs
// with [REDACTED_<TYPE>] markers, returning the cleaned content and the
// distinct set of types redacted (SPEC_FULL.md §C "PII redaction types").
func RedactPII(content string) (string, []string) {
	var types []string
	seen := map[string]bool{}
	note := func(typ string) {
		if !seen[typ] {
			seen[typ] = true
			types = append(types, typ)
		}
	}

	cleaned := content
	if emailRe.MatchString(cleaned) {
		note("EMAIL")
		cleaned = emailRe.ReplaceAllString(cleaned, "[REDACTED_EMAIL]")
	}
	if creditCardRe.MatchString(cleaned) {
		note("CREDIT_CARD")
		cleaned = creditCardRe.ReplaceAllString(cleaned, "[REDACTED_CREDIT_CARD]")
	}
	if phoneRe.MatchString(cleaned) {
		note("PHONE")
		cleaned = phoneRe.ReplaceAllString(cleaned, "[REDACTED_PHONE]")
	}

	return cleaned, types
}

// Action is the outcome of running the pipeline on a file.
type Action string

const (
	Allow Action = "allow"
	Skip  Action = "skip"
	Flag  Action = "flag"
)

// Result is the outcome of Run.
type Result struct {
	Action     Action
	Content    string
	Reason     string
	Redactions []string
}

// Run executes the full safety pipeline: deny-list, then secret detection,
// then PII redaction (spec.md §4.11 "run_safety_pipeline").
func Run(path, content string) Result {
	if denied := CheckDenyList(path); denied != "" {
		return Result{Action: Skip, Content: content, Reason: "Matches deny-list pattern: " + denied}
	}

	if secrets := DetectSecrets(content); len(secrets) > 0 {
		return Result{Action: Flag, Content: content, Reason: "Secrets detected: " + strings.Join(secrets, ", ")}
	}

	cleaned, piiTypes := RedactPII(content)
	return Result{Action: Allow, Content: cleaned, Redactions: piiTypes}
}
