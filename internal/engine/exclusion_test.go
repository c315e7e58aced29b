package engine

import "testing"

func TestIsExcluded_ExplicitFlag(t *testing.T) {
	if !IsExcluded(true, "pay rent", "", false) {
		t.Fatalf("ai_excluded=true must always exclude")
	}
}

func TestIsExcluded_DotPrefixTitle(t *testing.T) {
	if !IsExcluded(false, ".meds", "", false) {
		t.Fatalf("a title starting with '.' must exclude")
	}
	if !IsExcluded(false, "  .meds", "", false) {
		t.Fatalf("leading whitespace before '.' must still exclude")
	}
}

func TestIsExcluded_DotPrefixNotesOnlyWhenAutoGenerated(t *testing.T) {
	if IsExcluded(false, "Smart task", ".private", false) {
		t.Fatalf("a dot-prefixed notes field should not exclude a manually-titled task")
	}
	if !IsExcluded(false, "Smart task", ".private", true) {
		t.Fatalf("a dot-prefixed notes field must exclude when the title was auto-generated")
	}
}

func TestIsExcluded_OrdinaryTaskNotExcluded(t *testing.T) {
	if IsExcluded(false, "write report", "due friday", false) {
		t.Fatalf("an ordinary task must not be excluded")
	}
}
