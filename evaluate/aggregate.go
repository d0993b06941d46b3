package evaluate

import (
	"fmt"
	"math"

	"github.com/BaSui01/benchduo/types"
)

// CodeAggregate is the deterministic fallback aggregator. It always
// terminates with a usable report, even when every judge misbehaved.
//
// Scoring:
//
//	issuePenalty = min(0.5, issueCount*0.05 + highestSeverity*0.03)
//	overallScore = clamp(0, 1, 0.5*completionAvg/100 + 0.5*realisticAvg/100 - issuePenalty)
//
// Averages run only over judges that reported the score; parse-failed
// judges contribute zero issues and no scores.
func CodeAggregate(judgeResults []types.JudgeResult) types.AggregateReport {
	var flagged []types.JudgeIssue
	highestSeverity := 0
	var completionScores, realisticScores []float64

	for _, result := range judgeResults {
		for _, issue := range result.Issues {
			if issue.Severity > highestSeverity {
				highestSeverity = issue.Severity
			}
			tagged := issue
			tagged.JudgeModelID = result.JudgeModelID
			flagged = append(flagged, tagged)
		}
		if result.CompletionScore != nil {
			completionScores = append(completionScores, *result.CompletionScore)
		}
		if result.RealisticScore != nil {
			realisticScores = append(realisticScores, *result.RealisticScore)
		}
	}

	completionAvg := mean(completionScores)
	realisticAvg := mean(realisticScores)
	issuePenalty := math.Min(0.5, float64(len(flagged))*0.05+float64(highestSeverity)*0.03)
	baseScore := completionAvg/100.0*0.5 + realisticAvg/100.0*0.5
	overallScore := math.Max(0.0, math.Min(1.0, baseScore-issuePenalty))

	if flagged == nil {
		flagged = []types.JudgeIssue{}
	}

	return types.AggregateReport{
		Summary: fmt.Sprintf(
			"Total issues: %d; highest severity: %d; Completeness: %.1f; Realistic: %.1f.",
			len(flagged), highestSeverity, completionAvg, realisticAvg),
		OverallScore:    round(overallScore, 3),
		TotalIssues:     len(flagged),
		HighestSeverity: highestSeverity,
		CompletionScore: round(completionAvg, 1),
		RealisticScore:  round(realisticAvg, 1),
		Flagged:         flagged,
		Source:          "code",
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func round(v float64, decimals int) float64 {
	scale := math.Pow10(decimals)
	return math.Round(v*scale) / scale
}
