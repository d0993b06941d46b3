// =============================================================================
// ⚖️ 对话质量评估
// =============================================================================
// 多个裁判模型独立评审一份带行号的对话文本，主模型把裁判输出合成
// 最终报告；主模型输出不合规时退回确定性的代码聚合路径，保证评估
// 总能以可用分数收尾。裁判输出解析失败只贡献零问题，从不中断评估。
// =============================================================================

package evaluate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/BaSui01/benchduo/connector"
	"github.com/BaSui01/benchduo/connector/factory"
	"github.com/BaSui01/benchduo/internal/metrics"
	"github.com/BaSui01/benchduo/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	judgeMaxTokens      = 800
	aggregatorMaxTokens = 1000
)

// Evaluator 评估服务。
type Evaluator struct {
	db      *gorm.DB
	factory *factory.Factory
	metrics *metrics.Collector
	logger  *zap.Logger
}

// NewEvaluator 创建评估服务。
func NewEvaluator(db *gorm.DB, f *factory.Factory, m *metrics.Collector, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{
		db:      db,
		factory: f,
		metrics: m,
		logger:  logger.With(zap.String("component", "evaluator")),
	}
}

// RunJudge 调用一个裁判模型评审对话文本。
// 连接器错误向上传播；解析失败被就地吸收为 ParseFailed 结果。
func (e *Evaluator) RunJudge(ctx context.Context, judge *types.Model, conversationText string) (types.JudgeResult, error) {
	conn, err := e.factory.ForModel(judge)
	if err != nil {
		return types.JudgeResult{}, err
	}

	raw, err := conn.Chat(ctx, []connector.ChatMessage{
		{Role: connector.RoleUser, Content: JudgePrompt(conversationText)},
	}, connector.ChatSettings{
		Model:       judge.TargetModel(),
		Temperature: 0,
		MaxTokens:   judgeMaxTokens,
	})
	if err != nil {
		return types.JudgeResult{}, err
	}

	result := e.parseJudgeOutput(raw)
	result.JudgeModelID = judge.ID
	result.JudgeModelName = judge.Name
	return result, nil
}

func (e *Evaluator) parseJudgeOutput(raw string) types.JudgeResult {
	parsed, err := ExtractJSONBlock(raw)
	if err == nil {
		var result types.JudgeResult
		result, err = NormalizeJudgeOutput(parsed)
		if err == nil {
			if e.metrics != nil {
				e.metrics.RecordJudgeParse("ok")
			}
			return result
		}
	}

	e.logger.Warn("judge output unparseable, contributing zero issues", zap.Error(err))
	if e.metrics != nil {
		e.metrics.RecordJudgeParse("failed")
	}
	return types.JudgeResult{Issues: []types.JudgeIssue{}, ParseFailed: true}
}

// RunAggregator 让主模型合成裁判输出；输出不是合规对象时
// 退回 CodeAggregate。返回的报告总是可用的。
func (e *Evaluator) RunAggregator(ctx context.Context, main *types.Model,
	conversationText string, judgeResults []types.JudgeResult) types.AggregateReport {
	report, err := e.tryModelAggregate(ctx, main, conversationText, judgeResults)
	if err != nil {
		e.logger.Warn("aggregator model failed, using code aggregation",
			zap.Uint("main_model_id", main.ID), zap.Error(err))
		return CodeAggregate(judgeResults)
	}
	return report
}

func (e *Evaluator) tryModelAggregate(ctx context.Context, main *types.Model,
	conversationText string, judgeResults []types.JudgeResult) (types.AggregateReport, error) {
	conn, err := e.factory.ForModel(main)
	if err != nil {
		return types.AggregateReport{}, err
	}

	judgeJSON, err := json.Marshal(judgeResults)
	if err != nil {
		return types.AggregateReport{}, types.NewError(types.ErrInternalError,
			"failed to encode judge results").WithCause(err)
	}

	raw, err := conn.Chat(ctx, []connector.ChatMessage{
		{Role: connector.RoleUser, Content: AggregatorPrompt(conversationText, string(judgeJSON))},
	}, connector.ChatSettings{
		Model:       main.TargetModel(),
		Temperature: 0,
		MaxTokens:   aggregatorMaxTokens,
	})
	if err != nil {
		return types.AggregateReport{}, err
	}

	parsed, err := ExtractJSONBlock(raw)
	if err != nil {
		return types.AggregateReport{}, err
	}
	obj, ok := parsed.(map[string]any)
	if !ok {
		return types.AggregateReport{}, types.NewError(types.ErrEvaluationFailed,
			"aggregator output must be an object")
	}

	data, err := json.Marshal(obj)
	if err != nil {
		return types.AggregateReport{}, types.NewError(types.ErrInternalError,
			"failed to re-encode aggregator output").WithCause(err)
	}
	var report types.AggregateReport
	if err := json.Unmarshal(data, &report); err != nil {
		return types.AggregateReport{}, types.NewError(types.ErrEvaluationFailed,
			"aggregator output has invalid shape").WithCause(err)
	}
	if report.Flagged == nil {
		report.Flagged = []types.JudgeIssue{}
	}
	report.Source = "aggregator"
	return report, nil
}

// Evaluate 执行一个评估任务的完整流程并落库结果。
func (e *Evaluator) Evaluate(ctx context.Context, jobID uint) error {
	var job types.EvaluationJob
	if err := e.db.First(&job, jobID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return types.NewError(types.ErrNotFound, fmt.Sprintf("evaluation job %d not found", jobID))
		}
		return types.NewError(types.ErrDatabase, "failed to load evaluation job").WithCause(err)
	}

	var messages []types.Message
	if err := e.db.Where("conversation_id = ?", job.ConversationID).
		Order("created_at asc, id asc").Find(&messages).Error; err != nil {
		return e.fail(&job, types.NewError(types.ErrDatabase, "failed to load messages").WithCause(err))
	}

	var main types.Model
	if err := e.db.First(&main, job.MainModelID).Error; err != nil {
		return e.fail(&job, types.NewError(types.ErrNotFound,
			fmt.Sprintf("main model %d not found", job.MainModelID)))
	}

	var judges []types.Model
	if err := e.db.Where("id IN ?", []uint(job.JudgeModelIDs)).Find(&judges).Error; err != nil {
		return e.fail(&job, types.NewError(types.ErrDatabase, "failed to load judge models").WithCause(err))
	}
	if len(judges) != len(job.JudgeModelIDs) {
		return e.fail(&job, types.NewError(types.ErrNotFound, "one or more judge models were not found"))
	}

	if err := e.db.Model(&job).Update("status", types.EvaluationRunning).Error; err != nil {
		return types.NewError(types.ErrDatabase, "failed to mark evaluation running").WithCause(err)
	}

	transcript := RenderTranscript(messages)

	judgeResults := make([]types.JudgeResult, 0, len(judges))
	for i := range judges {
		result, err := e.RunJudge(ctx, &judges[i], transcript)
		if err != nil {
			return e.fail(&job, types.NewError(types.ErrEvaluationFailed,
				fmt.Sprintf("judge %q failed", judges[i].Name)).WithCause(err))
		}
		judgeResults = append(judgeResults, result)
	}

	report := e.RunAggregator(ctx, &main, transcript, judgeResults)
	report.FlaggedLines = flagLines(report.Flagged, messages)
	report.Scores = &types.ScoreBlock{
		Overall:         report.OverallScore,
		Completion:      report.CompletionScore,
		Realistic:       report.RealisticScore,
		HighestSeverity: report.HighestSeverity,
	}

	job.Status = types.EvaluationCompleted
	job.JudgeResults = judgeResults
	job.Report = &report
	// 必须走结构体写入：judge_results/report 的 JSON 序列化器对 map 式 Updates 不生效。
	if err := e.db.Save(&job).Error; err != nil {
		return types.NewError(types.ErrDatabase, "failed to persist evaluation report").WithCause(err)
	}

	if e.metrics != nil {
		e.metrics.RecordEvaluation(string(types.EvaluationCompleted), report.Source)
	}
	e.logger.Info("evaluation completed",
		zap.Uint("job_id", job.ID),
		zap.Float64("overall_score", report.OverallScore),
		zap.Int("total_issues", report.TotalIssues),
		zap.String("source", report.Source))
	return nil
}

// fail 把评估任务置为 failed 并透传原始错误。
func (e *Evaluator) fail(job *types.EvaluationJob, cause *types.Error) error {
	if err := e.db.Model(job).Updates(map[string]any{
		"status":        types.EvaluationFailed,
		"error_message": cause.Error(),
	}).Error; err != nil {
		e.logger.Error("failed to mark evaluation failed",
			zap.Uint("job_id", job.ID), zap.Error(err))
	}
	if e.metrics != nil {
		e.metrics.RecordEvaluation(string(types.EvaluationFailed), "")
	}
	return cause
}

// flagLines 把问题索引映射回具体消息；越界索引被静默丢弃。
func flagLines(flagged []types.JudgeIssue, messages []types.Message) []types.FlaggedLine {
	lines := make([]types.FlaggedLine, 0, len(flagged))
	for _, issue := range flagged {
		if issue.MessageIndex < 0 || issue.MessageIndex >= len(messages) {
			continue
		}
		reason := issue.Category
		if reason == "" {
			reason = "other"
		}
		lines = append(lines, types.FlaggedLine{
			MessageID:    messages[issue.MessageIndex].ID,
			MessageIndex: issue.MessageIndex,
			Reason:       reason,
			Excerpt:      issue.Excerpt,
			Severity:     issue.Severity,
		})
	}
	return lines
}
