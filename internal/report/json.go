package report

import (
	"encoding/json"

	"obralog/pkg/types"
)

// JSON is the raw dump of the records with their photos and plans.
func JSON(problems []*types.Problem) ([]byte, error) {
	out := make([]*types.Problem, 0, len(problems))
	for _, p := range problems {
		if p != nil {
			out = append(out, p.Clone())
		}
	}
	return json.MarshalIndent(out, "", "  ")
}
