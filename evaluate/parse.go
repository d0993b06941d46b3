package evaluate

import (
	"encoding/json"
	"strings"

	"github.com/BaSui01/benchduo/types"
)

// ExtractJSONBlock recovers a JSON value from raw model output.
// Models often wrap JSON in prose or code fences, so after a failed direct
// parse the largest balanced {...} span is tried, then the largest [...]
// span. Returns a typed error when nothing parses.
func ExtractJSONBlock(raw string) (any, error) {
	raw = strings.TrimSpace(raw)

	var direct any
	if err := json.Unmarshal([]byte(raw), &direct); err == nil {
		return direct, nil
	}

	if span := largestSpan(raw, '{', '}'); span != "" {
		var obj any
		if err := json.Unmarshal([]byte(span), &obj); err == nil {
			return obj, nil
		}
	}

	if span := largestSpan(raw, '[', ']'); span != "" {
		var arr any
		if err := json.Unmarshal([]byte(span), &arr); err == nil {
			return arr, nil
		}
	}

	return nil, types.NewError(types.ErrEvaluationFailed, "model output is not valid JSON")
}

// largestSpan returns the widest open..close substring, or "" when absent.
func largestSpan(raw string, open, close byte) string {
	start := strings.IndexByte(raw, open)
	end := strings.LastIndexByte(raw, close)
	if start == -1 || end == -1 || end <= start {
		return ""
	}
	return raw[start : end+1]
}

// rawJudgeOutput mirrors the JSON shape judges are instructed to produce.
type rawJudgeOutput struct {
	Issues          []types.JudgeIssue `json:"issues"`
	CompletionScore *float64           `json:"completion_score"`
	RealisticScore  *float64           `json:"realistic_score"`
	Notes           string             `json:"notes"`
}

// NormalizeJudgeOutput coerces a parsed JSON value into a JudgeResult.
// A bare array is treated as the issues list with no scores. Any other
// shape than object/array is an error for the caller to absorb.
func NormalizeJudgeOutput(parsed any) (types.JudgeResult, error) {
	switch parsed.(type) {
	case []any:
		data, err := json.Marshal(parsed)
		if err != nil {
			return types.JudgeResult{}, types.NewError(types.ErrEvaluationFailed, "failed to re-encode judge output").WithCause(err)
		}
		var issues []types.JudgeIssue
		if err := json.Unmarshal(data, &issues); err != nil {
			return types.JudgeResult{}, types.NewError(types.ErrEvaluationFailed, "judge issue list has invalid shape").WithCause(err)
		}
		return types.JudgeResult{Issues: issues}, nil

	case map[string]any:
		data, err := json.Marshal(parsed)
		if err != nil {
			return types.JudgeResult{}, types.NewError(types.ErrEvaluationFailed, "failed to re-encode judge output").WithCause(err)
		}
		var out rawJudgeOutput
		if err := json.Unmarshal(data, &out); err != nil {
			return types.JudgeResult{}, types.NewError(types.ErrEvaluationFailed, "judge output has invalid shape").WithCause(err)
		}
		if out.Issues == nil {
			out.Issues = []types.JudgeIssue{}
		}
		return types.JudgeResult{
			Issues:          out.Issues,
			CompletionScore: out.CompletionScore,
			RealisticScore:  out.RealisticScore,
			Notes:           out.Notes,
		}, nil

	default:
		return types.JudgeResult{}, types.NewError(types.ErrEvaluationFailed,
			"judge output JSON must be an object or array")
	}
}
