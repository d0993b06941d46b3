package status

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/benchduo/connector"
	"github.com/BaSui01/benchduo/types"
	"go.uber.org/zap"
)

// warmTimeout 预热调用的上限。冷模型首次加载可能耗时数分钟。
const warmTimeout = 5 * time.Minute

// WarmModel 触发模型预热：先把 warm_status 置为 loading 落库，
// 再对后端发起一次最小对话把权重拉进引擎，最后按结果置 warm 或 error。
// 预热失败不返回 error 给调用方致命路径之外的场景；结果落在模型记录上。
func (s *Service) WarmModel(ctx context.Context, model *types.Model) error {
	model.WarmStatus = types.WarmLoading
	if err := s.db.Model(model).Update("warm_status", model.WarmStatus).Error; err != nil {
		return types.NewError(types.ErrDatabase, "failed to mark model loading").WithCause(err)
	}
	s.logs.Append(model.Name, "warm-up started for %s", model.TargetModel())

	conn, err := s.factory.ForModel(model)
	if err != nil {
		s.finishWarm(model, types.WarmError, err.Error())
		return err
	}

	warmCtx, cancel := context.WithTimeout(ctx, warmTimeout)
	defer cancel()

	start := time.Now()
	_, err = conn.Chat(warmCtx, []connector.ChatMessage{
		{Role: connector.RoleUser, Content: "."},
	}, connector.ChatSettings{
		Model:     model.TargetModel(),
		MaxTokens: 1,
		Timeout:   warmTimeout,
	})
	if err != nil {
		s.finishWarm(model, types.WarmError, err.Error())
		s.logger.Warn("model warm-up failed",
			zap.Uint("model_id", model.ID),
			zap.String("model", model.TargetModel()),
			zap.Error(err))
		return err
	}

	elapsed := time.Since(start)
	s.finishWarm(model, types.WarmWarm, fmt.Sprintf("warmed in %.1fs", elapsed.Seconds()))
	s.logger.Info("model warmed",
		zap.Uint("model_id", model.ID),
		zap.String("model", model.TargetModel()),
		zap.Duration("elapsed", elapsed))
	return nil
}

// finishWarm 落库预热结果并写日志环。
func (s *Service) finishWarm(model *types.Model, result types.WarmStatus, message string) {
	now := time.Now().UTC()
	model.WarmStatus = result
	model.LastLoadAttemptAt = &now
	model.LastLoadMessage = message

	updates := map[string]any{
		"warm_status":          result,
		"last_load_attempt_at": model.LastLoadAttemptAt,
		"last_load_message":    message,
	}
	if result == types.WarmWarm {
		model.LastWarmedAt = &now
		updates["last_warmed_at"] = model.LastWarmedAt
	}

	if err := s.db.Model(model).Updates(updates).Error; err != nil {
		s.logger.Warn("failed to persist warm result",
			zap.Uint("model_id", model.ID), zap.Error(err))
	}
	s.logs.Append(model.Name, "warm-up finished: %s (%s)", result, message)
}
