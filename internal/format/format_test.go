package format

import (
	"strings"
	"testing"

	"github.com/kbengine/personalkb/internal/entrystore"
)

func sampleEntry() *entrystore.Entry {
	return &entrystore.Entry{
		ID: "kb-00082", EntryType: entrystore.LessonLearned, ShortTitle: "Use context deadlines",
		KnowledgeDetails: "Always propagate context.Context with a deadline on outbound calls.",
		Tags:             []string{"golang", "http"}, ProjectRef: "kitt",
	}
}

func TestEntryHeaderFormat(t *testing.T) {
	got := EntryHeader(sampleEntry(), 0.9)
	want := "[kb-00082] lesson_learned | Use context deadlines (90%)"
	if got != want {
		t.Errorf("EntryHeader() = %q, want %q", got, want)
	}
}

func TestEntryMetaWithTagsProjectAndStale(t *testing.T) {
	got := EntryMeta(sampleEntry(), "stale warning")
	if !strings.Contains(got, "#golang") || !strings.Contains(got, "#http") {
		t.Errorf("EntryMeta() = %q, want tags present", got)
	}
	if !strings.Contains(got, "kitt") {
		t.Errorf("EntryMeta() = %q, want project present", got)
	}
	if !strings.HasSuffix(got, "[STALE]") {
		t.Errorf("EntryMeta() = %q, want trailing [STALE]", got)
	}
}

func TestEntryMetaEmptyFieldsYieldsEmptyString(t *testing.T) {
	e := &entrystore.Entry{ID: "kb-00001", EntryType: entrystore.Decision, ShortTitle: "t"}
	if got := EntryMeta(e, ""); got != "" {
		t.Errorf("EntryMeta() = %q, want empty string with no tags/project/staleness", got)
	}
}

func TestEntryMetaStaleOnlyNoLeadingSeparator(t *testing.T) {
	e := &entrystore.Entry{ID: "kb-00001", EntryType: entrystore.Decision, ShortTitle: "t"}
	got := EntryMeta(e, "stale")
	if got != "[STALE]" {
		t.Errorf("EntryMeta() = %q, want bare [STALE]", got)
	}
}

func TestEntryCompactOmitsMetaLineWhenEmpty(t *testing.T) {
	e := &entrystore.Entry{ID: "kb-00001", EntryType: entrystore.Decision, ShortTitle: "t"}
	got := EntryCompact(e, 1.0, "")
	if strings.Contains(got, "\n") {
		t.Errorf("EntryCompact() = %q, want single line when meta is empty", got)
	}
}

func TestEntryFullIncludesContextAndDetails(t *testing.T) {
	effective := 0.75
	warning := ""
	got := EntryFull(sampleEntry(), EntryFullOptions{
		Context: "from kb_ask", EffectiveConfidence: &effective, StaleWarningOverride: &warning,
	})
	if !strings.Contains(got, "(75%)") {
		t.Errorf("EntryFull() = %q, want overridden confidence 75%%", got)
	}
	if !strings.Contains(got, "↳ from kb_ask") {
		t.Errorf("EntryFull() = %q, want context line", got)
	}
	if !strings.Contains(got, "Always propagate context.Context") {
		t.Errorf("EntryFull() = %q, want knowledge_details", got)
	}
}

func TestResultListEmpty(t *testing.T) {
	if got := ResultList(nil, "header", ""); got != "No results found." {
		t.Errorf("ResultList(nil) = %q, want \"No results found.\"", got)
	}
}

func TestResultListIncludesCountAndNote(t *testing.T) {
	got := ResultList([]string{"entry one", "entry two"}, "Search Results", "2 more graph hints available")
	if !strings.Contains(got, "2 result(s)") {
		t.Errorf("ResultList() = %q, want count line", got)
	}
	if !strings.Contains(got, "Note: 2 more graph hints available") {
		t.Errorf("ResultList() = %q, want note line", got)
	}
	if !strings.Contains(got, "entry one") || !strings.Contains(got, "entry two") {
		t.Errorf("ResultList() = %q, want both entries joined", got)
	}
}
