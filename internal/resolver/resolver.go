// Package resolver maps free-text edit requests onto catalog operations with
// extracted parameters and per-candidate confidence.
package resolver

import (
	"sort"
	"strings"

	"waveq/internal/catalog"
)

// Candidate is one recognized operation with extracted parameters.
type Candidate struct {
	Operation  string         `json:"operation"`
	Parameters map[string]any `json:"parameters"`
	Confidence float64        `json:"confidence"`
}

// Result is the outcome of resolving one text request. An empty candidate
// list is not an error; OverallConfidence is exactly 0 in that case.
type Result struct {
	Candidates        []Candidate `json:"candidates"`
	OverallConfidence float64     `json:"overall_confidence"`
}

const (
	nameConfidence  = 1.0
	aliasConfidence = 0.9
)

// Resolve scans text for catalog operations. A verbatim canonical-name hit
// scores 1.0; otherwise the first alias hit scores 0.9 and remaining aliases
// for that operation are skipped. Candidates are sorted descending by
// confidence, keeping registry order among ties. Resolve never fails:
// unparseable text yields an empty candidate list.
func Resolve(text string) Result {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return Result{}
	}

	var candidates []Candidate
	for _, op := range catalog.All() {
		confidence := 0.0
		switch {
		case strings.Contains(normalized, op.Name):
			confidence = nameConfidence
		default:
			for _, alias := range op.Aliases {
				if strings.Contains(normalized, alias) {
					confidence = aliasConfidence
					break
				}
			}
		}
		if confidence == 0 {
			continue
		}
		candidates = append(candidates, Candidate{
			Operation:  op.Name,
			Parameters: extractParameters(normalized, op.Name),
			Confidence: confidence,
		})
	}

	if len(candidates) == 0 {
		return Result{}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})

	total := 0.0
	for _, c := range candidates {
		total += c.Confidence
	}

	return Result{
		Candidates:        candidates,
		OverallConfidence: total / float64(len(candidates)),
	}
}
