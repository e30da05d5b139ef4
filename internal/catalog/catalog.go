// Package catalog is the static registry of audio operations: canonical
// names, aliases, parameter schemas, and defaults. The resolver and planner
// both consume it; it has no dependencies of its own.
package catalog

import "strings"

// Operation names, canonical across the request lifecycle.
const (
	OpNoiseReduction = "noise-reduction"
	OpNormalize      = "normalize"
	OpEqualize       = "equalize"
	OpCompress       = "compress"
	OpTrim           = "trim"
	OpFadeIn         = "fade-in"
	OpFadeOut        = "fade-out"
	OpTimeStretch    = "time-stretch"
	OpSpeedChange    = "speed-change"
	OpPitchChange    = "pitch-change"
	OpReverb         = "reverb"
	OpSplit          = "split"
	OpMerge          = "merge"
	OpFormatConvert  = "format-convert"
)

// ParamKind describes the scalar type of an operation parameter.
type ParamKind string

const (
	KindFloat  ParamKind = "float"
	KindInt    ParamKind = "int"
	KindString ParamKind = "string"
	KindList   ParamKind = "list"
)

// Param describes one operation parameter and its default value. A nil
// Default means the parameter is omitted unless extracted from the request.
type Param struct {
	Name    string
	Kind    ParamKind
	Default any
}

// Operation is one catalog entry.
type Operation struct {
	Name        string
	Aliases     []string
	Description string
	Params      []Param
}

var operations = []Operation{
	{
		Name:        OpNoiseReduction,
		Aliases:     []string{"remove noise", "clean", "filter", "denoise"},
		Description: "Reduce background noise",
		Params: []Param{
			{Name: "strength", Kind: KindFloat, Default: 0.1},
		},
	},
	{
		Name:        OpNormalize,
		Aliases:     []string{"balance", "level", "adjust volume", "fix levels"},
		Description: "Normalize audio levels to target dB",
		Params: []Param{
			{Name: "target_db", Kind: KindFloat, Default: -20.0},
		},
	},
	{
		Name:        OpEqualize,
		Aliases:     []string{"eq", "equalizer", "bass", "treble"},
		Description: "Apply 3-band equalization",
		Params: []Param{
			{Name: "low_gain", Kind: KindFloat, Default: 1.0},
			{Name: "mid_gain", Kind: KindFloat, Default: 1.0},
			{Name: "high_gain", Kind: KindFloat, Default: 1.0},
		},
	},
	{
		Name:        OpCompress,
		Aliases:     []string{"compression", "dynamic range", "squash"},
		Description: "Apply dynamic range compression",
		Params: []Param{
			{Name: "threshold", Kind: KindFloat, Default: -20.0},
			{Name: "ratio", Kind: KindFloat, Default: 4.0},
			{Name: "attack", Kind: KindFloat, Default: 0.005},
			{Name: "release", Kind: KindFloat, Default: 0.1},
		},
	},
	{
		Name:        OpTrim,
		Aliases:     []string{"cut", "slice", "remove", "delete", "extract"},
		Description: "Trim audio to a time range",
		Params: []Param{
			{Name: "start_time", Kind: KindFloat, Default: nil},
			{Name: "end_time", Kind: KindFloat, Default: nil},
		},
	},
	{
		Name:        OpFadeIn,
		Aliases:     []string{"fade in", "smooth start", "gradual start"},
		Description: "Apply fade in effect",
		Params: []Param{
			{Name: "duration", Kind: KindFloat, Default: 1.0},
		},
	},
	{
		Name:        OpFadeOut,
		Aliases:     []string{"fade out", "fade end", "smooth end", "gradual end"},
		Description: "Apply fade out effect",
		Params: []Param{
			{Name: "duration", Kind: KindFloat, Default: 1.0},
		},
	},
	{
		Name:        OpTimeStretch,
		Aliases:     []string{"time stretch", "stretch", "tempo stretch"},
		Description: "Time stretch audio without changing pitch",
		Params: []Param{
			{Name: "rate", Kind: KindFloat, Default: 1.0},
		},
	},
	{
		Name:        OpSpeedChange,
		Aliases:     []string{"speed up", "slow down", "tempo", "pace"},
		Description: "Change audio playback speed",
		Params: []Param{
			{Name: "speed_factor", Kind: KindFloat, Default: 1.0},
		},
	},
	{
		Name:        OpPitchChange,
		Aliases:     []string{"pitch", "tune", "key", "semitone"},
		Description: "Change audio pitch in semitones",
		Params: []Param{
			{Name: "pitch_steps", Kind: KindInt, Default: 0},
		},
	},
	{
		Name:        OpReverb,
		Aliases:     []string{"echo", "room", "space"},
		Description: "Add reverb effect",
		Params: []Param{
			{Name: "room_size", Kind: KindFloat, Default: 0.5},
			{Name: "damping", Kind: KindFloat, Default: 0.5},
		},
	},
	{
		Name:        OpSplit,
		Aliases:     []string{"divide", "separate", "segment", "cut into"},
		Description: "Split audio into fixed-length segments",
		Params: []Param{
			{Name: "segment_duration", Kind: KindFloat, Default: 30.0},
		},
	},
	{
		Name:        OpMerge,
		Aliases:     []string{"combine", "join", "concatenate"},
		Description: "Merge additional audio files onto the source",
		Params: []Param{
			{Name: "additional_files", Kind: KindList, Default: nil},
		},
	},
	{
		Name:        OpFormatConvert,
		Aliases:     []string{"convert", "export", "save as", "format"},
		Description: "Convert audio to a different container format",
		Params: []Param{
			{Name: "target_format", Kind: KindString, Default: "mp3"},
			{Name: "quality", Kind: KindString, Default: "high"},
		},
	},
}

var byName = func() map[string]*Operation {
	index := make(map[string]*Operation, len(operations))
	for i := range operations {
		index[operations[i].Name] = &operations[i]
	}
	return index
}()

// All returns every catalog operation in registry order.
func All() []Operation {
	cp := make([]Operation, len(operations))
	copy(cp, operations)
	return cp
}

// Lookup returns the operation registered under the canonical name.
func Lookup(name string) (Operation, bool) {
	op, ok := byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Operation{}, false
	}
	return *op, true
}

// Known reports whether name is a canonical operation name.
func Known(name string) bool {
	_, ok := byName[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// Defaults returns the default parameter map for an operation. Parameters
// with no default are omitted.
func Defaults(name string) map[string]any {
	op, ok := Lookup(name)
	if !ok {
		return nil
	}
	defaults := make(map[string]any)
	for _, p := range op.Params {
		if p.Default != nil {
			defaults[p.Name] = p.Default
		}
	}
	return defaults
}
