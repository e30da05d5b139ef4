package resolver

import (
	"regexp"
	"strconv"
	"strings"

	"waveq/internal/catalog"
)

// Pattern families used for parameter extraction. Quantities keep the bare
// numeric value without unit conversion, matching the established request
// format ("2 minutes" extracts 2).
var (
	timePattern     = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:seconds?|secs?|minutes?|mins?|hours?|hrs?)`)
	dbPattern       = regexp.MustCompile(`(-?\d+(?:\.\d+)?)\s*db`)
	ratioPattern    = regexp.MustCompile(`(\d+(?:\.\d+)?)x`)
	semitonePattern = regexp.MustCompile(`(\d+)\s*semitones?`)
	qualityPattern  = regexp.MustCompile(`(low|medium|high)\s*quality`)
	formatPattern   = regexp.MustCompile(`\b(wav|mp3|flac|aac|ogg)\b`)
)

// extractParameters pulls operation-specific parameters out of normalized
// text. Operations without a pattern family yield an empty map; the executor
// substitutes catalog defaults at run time.
func extractParameters(text, operation string) map[string]any {
	params := make(map[string]any)

	switch operation {
	case catalog.OpTrim:
		matches := timePattern.FindAllStringSubmatch(text, -1)
		switch {
		case len(matches) >= 2:
			params["start_time"] = parseFloat(matches[0][1])
			params["end_time"] = parseFloat(matches[1][1])
		case len(matches) == 1:
			if strings.Contains(text, "from") || strings.Contains(text, "start") {
				params["start_time"] = parseFloat(matches[0][1])
			} else if strings.Contains(text, "to") || strings.Contains(text, "end") {
				params["end_time"] = parseFloat(matches[0][1])
			}
		}

	case catalog.OpNormalize:
		if m := dbPattern.FindStringSubmatch(text); m != nil {
			params["target_db"] = parseFloat(m[1])
		} else {
			params["target_db"] = -20.0
		}

	case catalog.OpSpeedChange:
		if m := ratioPattern.FindStringSubmatch(text); m != nil {
			speed := parseFloat(m[1])
			if strings.Contains(text, "slow") || strings.Contains(text, "down") {
				speed = 1 / speed
			}
			params["speed_factor"] = speed
		} else if strings.Contains(text, "fast") || strings.Contains(text, "speed up") {
			params["speed_factor"] = 1.5
		} else if strings.Contains(text, "slow") {
			params["speed_factor"] = 0.8
		} else {
			params["speed_factor"] = 1.0
		}

	case catalog.OpTimeStretch:
		if m := ratioPattern.FindStringSubmatch(text); m != nil {
			params["rate"] = parseFloat(m[1])
		} else if strings.Contains(text, "half") {
			params["rate"] = 0.5
		} else if strings.Contains(text, "double") || strings.Contains(text, "twice") {
			params["rate"] = 2.0
		} else {
			params["rate"] = 1.0
		}

	case catalog.OpPitchChange:
		if m := semitonePattern.FindStringSubmatch(text); m != nil {
			steps := parseInt(m[1])
			if strings.Contains(text, "lower") || strings.Contains(text, "down") {
				steps = -steps
			}
			params["pitch_steps"] = steps
		} else {
			params["pitch_steps"] = 0
		}

	case catalog.OpFadeIn, catalog.OpFadeOut:
		if m := timePattern.FindStringSubmatch(text); m != nil {
			params["duration"] = parseFloat(m[1])
		} else {
			params["duration"] = 1.0
		}

	case catalog.OpFormatConvert:
		if m := formatPattern.FindStringSubmatch(text); m != nil {
			params["target_format"] = m[1]
		} else {
			params["target_format"] = "mp3"
		}
		if m := qualityPattern.FindStringSubmatch(text); m != nil {
			params["quality"] = m[1]
		} else {
			params["quality"] = "high"
		}
	}

	return params
}

func parseFloat(value string) float64 {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return f
}

func parseInt(value string) int {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return n
}
