package executor

import (
	"fmt"
	"math"
	"strings"

	"waveq/internal/catalog"
)

// sampleRate is assumed for pitch and speed filters. Resampling back to it
// keeps chained operations on a common clock.
const sampleRate = 44100

func baseArgs(inputRef string) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", inputRef,
	}
}

// buildArgs constructs the full ffmpeg argument list for one operation.
func buildArgs(opName string, params map[string]any, inputRef, outputRef string) ([]string, error) {
	switch opName {
	case catalog.OpNoiseReduction:
		strength := floatParam(params, "strength", 0.1)
		nr := math.Min(math.Max(strength*97, 0.01), 97)
		return withFilter(inputRef, outputRef, fmt.Sprintf("afftdn=nr=%s", trimFloat(nr))), nil

	case catalog.OpNormalize:
		target := floatParam(params, "target_db", -20.0)
		return withFilter(inputRef, outputRef, fmt.Sprintf("loudnorm=I=%s:TP=-1.5:LRA=11", trimFloat(target))), nil

	case catalog.OpEqualize:
		low := gainToDB(floatParam(params, "low_gain", 1.0))
		mid := gainToDB(floatParam(params, "mid_gain", 1.0))
		high := gainToDB(floatParam(params, "high_gain", 1.0))
		filter := fmt.Sprintf(
			"equalizer=f=100:t=q:w=1:g=%s,equalizer=f=1000:t=q:w=1:g=%s,equalizer=f=10000:t=q:w=1:g=%s",
			trimFloat(low), trimFloat(mid), trimFloat(high))
		return withFilter(inputRef, outputRef, filter), nil

	case catalog.OpCompress:
		threshold := floatParam(params, "threshold", -20.0)
		ratio := floatParam(params, "ratio", 4.0)
		attack := floatParam(params, "attack", 0.005) * 1000
		release := floatParam(params, "release", 0.1) * 1000
		filter := fmt.Sprintf("acompressor=threshold=%sdB:ratio=%s:attack=%s:release=%s",
			trimFloat(threshold), trimFloat(ratio), trimFloat(attack), trimFloat(release))
		return withFilter(inputRef, outputRef, filter), nil

	case catalog.OpTrim:
		parts := []string{"atrim"}
		clauses := make([]string, 0, 2)
		if start, ok := lookupFloat(params, "start_time"); ok {
			clauses = append(clauses, "start="+trimFloat(start))
		}
		if end, ok := lookupFloat(params, "end_time"); ok {
			clauses = append(clauses, "end="+trimFloat(end))
		}
		if len(clauses) == 0 {
			return nil, fmt.Errorf("trim requires start_time or end_time")
		}
		filter := parts[0] + "=" + strings.Join(clauses, ":") + ",asetpts=PTS-STARTPTS"
		return withFilter(inputRef, outputRef, filter), nil

	case catalog.OpFadeIn:
		duration := floatParam(params, "duration", 1.0)
		return withFilter(inputRef, outputRef, fmt.Sprintf("afade=t=in:st=0:d=%s", trimFloat(duration))), nil

	case catalog.OpFadeOut:
		// Reversing twice avoids probing the stream duration first.
		duration := floatParam(params, "duration", 1.0)
		filter := fmt.Sprintf("areverse,afade=t=in:st=0:d=%s,areverse", trimFloat(duration))
		return withFilter(inputRef, outputRef, filter), nil

	case catalog.OpTimeStretch:
		rate := floatParam(params, "rate", 1.0)
		filter, err := atempoChain(rate)
		if err != nil {
			return nil, err
		}
		return withFilter(inputRef, outputRef, filter), nil

	case catalog.OpSpeedChange:
		factor := floatParam(params, "speed_factor", 1.0)
		if factor <= 0 {
			return nil, fmt.Errorf("speed-change requires a positive speed_factor, got %v", factor)
		}
		filter := fmt.Sprintf("asetrate=%d*%s,aresample=%d", sampleRate, trimFloat(factor), sampleRate)
		return withFilter(inputRef, outputRef, filter), nil

	case catalog.OpPitchChange:
		steps := floatParam(params, "pitch_steps", 0)
		shift := math.Pow(2, steps/12)
		tempo, err := atempoChain(1 / shift)
		if err != nil {
			return nil, err
		}
		filter := fmt.Sprintf("asetrate=%d*%s,aresample=%d,%s", sampleRate, trimFloat(shift), sampleRate, tempo)
		return withFilter(inputRef, outputRef, filter), nil

	case catalog.OpReverb:
		roomSize := floatParam(params, "room_size", 0.5)
		damping := floatParam(params, "damping", 0.5)
		delay := math.Max(roomSize*100, 1)
		decay := math.Min(math.Max(1-damping, 0.05), 0.95)
		filter := fmt.Sprintf("aecho=0.8:0.9:%s:%s", trimFloat(delay), trimFloat(decay))
		return withFilter(inputRef, outputRef, filter), nil

	case catalog.OpSplit:
		segment := floatParam(params, "segment_duration", 30.0)
		if segment <= 0 {
			return nil, fmt.Errorf("split requires a positive segment_duration, got %v", segment)
		}
		args := baseArgs(inputRef)
		args = append(args, "-f", "segment", "-segment_time", trimFloat(segment), "-c", "copy", outputRef)
		return args, nil

	case catalog.OpMerge:
		extra := stringListParam(params, "additional_files")
		if len(extra) == 0 {
			return nil, fmt.Errorf("merge requires additional_files")
		}
		args := []string{"-y", "-hide_banner", "-loglevel", "error", "-i", inputRef}
		for _, file := range extra {
			args = append(args, "-i", file)
		}
		total := len(extra) + 1
		inputs := make([]string, 0, total)
		for i := 0; i < total; i++ {
			inputs = append(inputs, fmt.Sprintf("[%d:a]", i))
		}
		filter := fmt.Sprintf("%sconcat=n=%d:v=0:a=1[out]", strings.Join(inputs, ""), total)
		args = append(args, "-filter_complex", filter, "-map", "[out]", outputRef)
		return args, nil

	case catalog.OpFormatConvert:
		args := baseArgs(inputRef)
		target, _ := params["target_format"].(string)
		quality, _ := params["quality"].(string)
		if bitrate := bitrateFor(target, quality); bitrate != "" {
			args = append(args, "-b:a", bitrate)
		}
		args = append(args, outputRef)
		return args, nil

	default:
		return nil, fmt.Errorf("unsupported operation %q", opName)
	}
}

func withFilter(inputRef, outputRef, filter string) []string {
	args := baseArgs(inputRef)
	return append(args, "-af", filter, outputRef)
}

// atempoChain builds an atempo filter for the given rate. ffmpeg caps a
// single atempo stage between 0.5 and 2.0, so rates outside that range are
// expressed as a chain of stages.
func atempoChain(rate float64) (string, error) {
	if rate <= 0 {
		return "", fmt.Errorf("tempo rate must be positive, got %v", rate)
	}
	stages := make([]string, 0, 2)
	for rate > 2.0 {
		stages = append(stages, "atempo=2.0")
		rate /= 2.0
	}
	for rate < 0.5 {
		stages = append(stages, "atempo=0.5")
		rate /= 0.5
	}
	stages = append(stages, "atempo="+trimFloat(rate))
	return strings.Join(stages, ","), nil
}

func bitrateFor(format, quality string) string {
	switch strings.ToLower(format) {
	case "mp3", "aac", "ogg":
	default:
		return ""
	}
	switch strings.ToLower(quality) {
	case "low":
		return "128k"
	case "medium":
		return "192k"
	default:
		return "320k"
	}
}

// gainToDB converts a linear gain multiplier to decibels for the equalizer
// filter. A non-positive gain is treated as a heavy cut rather than an error.
func gainToDB(gain float64) float64 {
	if gain <= 0 {
		return -40
	}
	return 20 * math.Log10(gain)
}

func floatParam(params map[string]any, key string, fallback float64) float64 {
	if v, ok := lookupFloat(params, key); ok {
		return v
	}
	return fallback
}

func lookupFloat(params map[string]any, key string) (float64, bool) {
	switch v := params[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func stringListParam(params map[string]any, key string) []string {
	switch v := params[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// trimFloat formats a float without trailing zeros so filter strings stay
// readable in logs.
func trimFloat(v float64) string {
	s := fmt.Sprintf("%.4f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
