package pool

import "testing"

func TestGetBuilderIsResetEvenAfterPriorUse(t *testing.T) {
	b := GetBuilder()
	b.WriteString("leftover")
	PutBuilder(b)

	got := GetBuilder()
	if got.Len() != 0 {
		t.Errorf("expected reset builder, got length %d: %q", got.Len(), got.String())
	}
}

func TestGetBuilderWritesAccumulate(t *testing.T) {
	b := GetBuilder()
	b.WriteString("hello ")
	b.WriteString("world")
	if b.String() != "hello world" {
		t.Errorf("got %q, want %q", b.String(), "hello world")
	}
	PutBuilder(b)
}
