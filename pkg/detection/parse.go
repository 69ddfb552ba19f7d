package detection

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/menta2k/image-annotator/pkg/types"
)

var (
	reBlock    = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLine     = regexp.MustCompile(`(?m)^\s*//.*$`)
	reInline   = regexp.MustCompile(`(?m)//.*$`)
	reTrailing = regexp.MustCompile(`,(\s*[}\]])`)
)

// ParseResult parses a model answer into a detection result. Answers that
// contain no usable JSON yield an empty result whose description says why.
func ParseResult(raw string) *types.DetectionResult {
	raw = SanitizeModelJSON(raw)

	if !strings.HasPrefix(raw, "{") {
		return &types.DetectionResult{Description: "Model returned non-JSON response"}
	}

	var result types.DetectionResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return &types.DetectionResult{Description: "Failed to parse model response"}
	}
	return &result
}

// SanitizeModelJSON removes code fences, comments, and trailing commas from JSON response
func SanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	raw = reBlock.ReplaceAllString(raw, "")
	raw = reLine.ReplaceAllString(raw, "")
	raw = reInline.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	// Keep only the outermost {...}
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}
