// Package chain models ordered operation sequences and plans them into the
// canonical execution order.
package chain

import "waveq/internal/catalog"

// OperationSpec is one named operation with extracted parameters. Immutable
// once placed in a Chain.
type OperationSpec struct {
	Name       string         `json:"operation"`
	Parameters map[string]any `json:"parameters"`
}

// Chain is the ordered sequence of operations applied to one audio reference.
type Chain []OperationSpec

// precedence is the canonical total order over known operation names.
// Corrective transforms (denoise, level-setting) run before structural or
// destructive ones; format conversion is always last.
var precedence = []string{
	catalog.OpNoiseReduction,
	catalog.OpNormalize,
	catalog.OpEqualize,
	catalog.OpCompress,
	catalog.OpTrim,
	catalog.OpFadeIn,
	catalog.OpFadeOut,
	catalog.OpTimeStretch,
	catalog.OpSpeedChange,
	catalog.OpPitchChange,
	catalog.OpReverb,
	catalog.OpSplit,
	catalog.OpMerge,
	catalog.OpFormatConvert,
}

var precedenceRank = func() map[string]int {
	ranks := make(map[string]int, len(precedence))
	for i, name := range precedence {
		ranks[name] = i
	}
	return ranks
}()

// Plan orders candidate operations into the canonical chain. Known names are
// emitted in precedence order with input order breaking ties; unknown names
// are appended afterward in their original relative order. Plan performs no
// parameter validation.
func Plan(specs []OperationSpec) Chain {
	if len(specs) == 0 {
		return Chain{}
	}

	planned := make(Chain, 0, len(specs))
	for _, name := range precedence {
		for _, spec := range specs {
			if spec.Name == name {
				planned = append(planned, spec)
			}
		}
	}
	for _, spec := range specs {
		if _, known := precedenceRank[spec.Name]; !known {
			planned = append(planned, spec)
		}
	}
	return planned
}

// Names returns the operation names in chain order.
func (c Chain) Names() []string {
	names := make([]string, len(c))
	for i, spec := range c {
		names[i] = spec.Name
	}
	return names
}
