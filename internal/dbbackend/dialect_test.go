package dbbackend

import "testing"

func TestRewritePositionalNumbersPlaceholdersInOrder(t *testing.T) {
	got := RewritePositional("SELECT * FROM entries WHERE id = ? AND project_ref = ?")
	want := "SELECT * FROM entries WHERE id = $1 AND project_ref = $2"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRewritePositionalIgnoresQuestionMarksInsideStringLiterals(t *testing.T) {
	got := RewritePositional("SELECT ? FROM t WHERE note = 'is this ok?'")
	want := "SELECT $1 FROM t WHERE note = 'is this ok?'"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRewritePositionalNoPlaceholdersIsUnchanged(t *testing.T) {
	got := RewritePositional("SELECT 1")
	if got != "SELECT 1" {
		t.Errorf("got %q, want unchanged query", got)
	}
}

func TestRewritePositionalManyPlaceholders(t *testing.T) {
	got := RewritePositional("INSERT INTO t VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
	want := "INSERT INTO t VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
