package types

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrProblemNotFound         = errors.New("problem not found")
	ErrPlanNotFound            = errors.New("plan not found")
	ErrUnauthenticated         = errors.New("user not authenticated")
	ErrResolutionNotesRequired = errors.New("resolution notes are required")
	ErrInvalidTransition       = errors.New("invalid status transition")
)

// ValidationError maps form field names to user-facing messages.
type ValidationError map[string]string

func (v ValidationError) Error() string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+v[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
