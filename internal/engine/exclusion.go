package engine

import "strings"

// IsExcluded implements the exclusion gate: a task is AI-excluded if
// the flag is set, or its stripped title begins with '.', or (for
// smart-added tasks whose title is auto-generated) its notes begin with '.'.
// This must run before any call to the inference adapter.
func IsExcluded(aiExcluded bool, title, notes string, titleIsAutoGenerated bool) bool {
	if aiExcluded {
		return true
	}
	if strings.HasPrefix(strings.TrimSpace(title), ".") {
		return true
	}
	if titleIsAutoGenerated && strings.HasPrefix(strings.TrimSpace(notes), ".") {
		return true
	}
	return false
}
