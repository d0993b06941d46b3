package handlers

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/BaSui01/benchduo/connector"
	"github.com/BaSui01/benchduo/evaluate"
	"github.com/BaSui01/benchduo/testutil/fixtures"
	"github.com/BaSui01/benchduo/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const judgeVerdictJSON = `{"issues": [], "completion_score": 95, "realistic_score": 90, "notes": "clean"}`

func newEvaluateHandler(t *testing.T) (*EvaluateHandler, *handlerEnv) {
	t.Helper()
	env := newHandlerEnv(t)
	ev := evaluate.NewEvaluator(env.db, env.factory, nil, nil)
	return NewEvaluateHandler(env.db, ev, nil), env
}

// seedFinishedConversation 落库一场带消息的已完成对话。
func seedFinishedConversation(t *testing.T, db *gorm.DB) (uint, uint) {
	t.Helper()
	a1, a2 := fixtures.SeedPair(t, db)

	conv := types.Conversation{Agent1ID: a1.ID, Agent2ID: a2.ID, TTL: 1, Status: types.ConversationFinished}
	require.NoError(t, db.Create(&conv).Error)
	for _, m := range []types.Message{
		{ConversationID: conv.ID, SenderRole: types.SenderUser, Content: "hi"},
		{ConversationID: conv.ID, SenderRole: types.SenderAgent1, Content: "hello"},
	} {
		msg := m
		require.NoError(t, db.Create(&msg).Error)
	}
	return conv.ID, a1.ModelID
}

func TestEvaluateCreate_CompletesSynchronously(t *testing.T) {
	h, env := newEvaluateHandler(t)
	convID, modelID := seedFinishedConversation(t, env.db)

	env.stub.ChatFunc = func(ctx context.Context, messages []connector.ChatMessage, settings connector.ChatSettings) (string, error) {
		if strings.Contains(messages[0].Content, "Judge Outputs:") {
			return "not valid aggregator output", nil
		}
		return judgeVerdictJSON, nil
	}

	rec := doJSON(t, h.HandleCreate, http.MethodPost, "/api/evaluate", map[string]any{
		"conversation_id": convID,
		"main_model_id":   modelID,
		"judge_model_ids": []uint{modelID},
	}, "")

	require.Equal(t, http.StatusCreated, rec.Code, "body: %s", rec.Body.String())
	data := decodeData[map[string]uint](t, rec)
	jobID := data["eval_job_id"]
	require.NotZero(t, jobID)

	var job types.EvaluationJob
	require.NoError(t, env.db.First(&job, jobID).Error)
	assert.Equal(t, types.EvaluationCompleted, job.Status)
	require.NotNil(t, job.Report)
	assert.Equal(t, "code", job.Report.Source)
	assert.Equal(t, 95.0, job.Report.CompletionScore)
}

func TestEvaluateCreate_MissingFields(t *testing.T) {
	h, _ := newEvaluateHandler(t)

	rec := doJSON(t, h.HandleCreate, http.MethodPost, "/api/evaluate", map[string]any{
		"conversation_id": 1,
	}, "")

	requireErrorCode(t, rec, http.StatusBadRequest, types.ErrInvalidRequest)
}

func TestEvaluateCreate_ConversationNotFound(t *testing.T) {
	h, env := newEvaluateHandler(t)
	model := fixtures.GreenModel("lonely-model")
	require.NoError(t, env.db.Create(&model).Error)

	rec := doJSON(t, h.HandleCreate, http.MethodPost, "/api/evaluate", map[string]any{
		"conversation_id": 404,
		"main_model_id":   model.ID,
		"judge_model_ids": []uint{model.ID},
	}, "")

	requireErrorCode(t, rec, http.StatusNotFound, types.ErrNotFound)
}

func TestEvaluateCreate_MissingJudgeModel(t *testing.T) {
	h, env := newEvaluateHandler(t)
	convID, modelID := seedFinishedConversation(t, env.db)

	rec := doJSON(t, h.HandleCreate, http.MethodPost, "/api/evaluate", map[string]any{
		"conversation_id": convID,
		"main_model_id":   modelID,
		"judge_model_ids": []uint{modelID, 888},
	}, "")

	requireErrorCode(t, rec, http.StatusNotFound, types.ErrNotFound)
}

func TestEvaluateGet_ReturnsReport(t *testing.T) {
	h, env := newEvaluateHandler(t)
	convID, modelID := seedFinishedConversation(t, env.db)

	env.stub.ChatFunc = func(ctx context.Context, messages []connector.ChatMessage, settings connector.ChatSettings) (string, error) {
		return judgeVerdictJSON, nil
	}

	rec := doJSON(t, h.HandleCreate, http.MethodPost, "/api/evaluate", map[string]any{
		"conversation_id": convID,
		"main_model_id":   modelID,
		"judge_model_ids": []uint{modelID},
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	getRec := doJSON(t, h.HandleGet, http.MethodGet, "/api/evaluate/1", nil, "1")
	require.Equal(t, http.StatusOK, getRec.Code)

	data := decodeData[map[string]any](t, getRec)
	assert.Equal(t, "completed", data["status"])
	assert.NotNil(t, data["aggregate_report"])
	assert.NotNil(t, data["judge_results"])
}

func TestEvaluateGet_NotFound(t *testing.T) {
	h, _ := newEvaluateHandler(t)

	rec := doJSON(t, h.HandleGet, http.MethodGet, "/api/evaluate/404", nil, "404")
	requireErrorCode(t, rec, http.StatusNotFound, types.ErrNotFound)
}
