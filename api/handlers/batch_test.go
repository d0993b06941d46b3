package handlers

import (
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/BaSui01/benchduo/batch"
	"github.com/BaSui01/benchduo/duel"
	"github.com/BaSui01/benchduo/testutil/fixtures"
	"github.com/BaSui01/benchduo/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBatchHandler(t *testing.T) (*BatchHandler, *handlerEnv) {
	t.Helper()
	env := newHandlerEnv(t)
	engine := duel.NewEngine(env.db, env.factory, nil, nil, nil, nil)
	scheduler := batch.NewSyncScheduler(env.db, engine, nil, nil)
	return NewBatchHandler(env.db, scheduler, nil), env
}

func TestBatchResponse_SnippetKeepsRunesIntact(t *testing.T) {
	job := &types.BatchJob{Prompt: strings.Repeat("辩", 100), NumRuns: 1}

	resp := toBatchResponse(job)

	assert.Equal(t, strings.Repeat("辩", 80), resp.PromptSnippet)
	assert.True(t, utf8.ValidString(resp.PromptSnippet))
}

func TestBatchCreate_RunsToCompletion(t *testing.T) {
	h, env := newBatchHandler(t)
	a1, a2 := fixtures.SeedPair(t, env.db)

	rec := doJSON(t, h.HandleCreate, http.MethodPost, "/api/batch_jobs", map[string]any{
		"agent1_id": a1.ID,
		"agent2_id": a2.ID,
		"prompt":    "discuss garbage collection",
		"ttl":       2,
		"num_runs":  2,
		"seed":      42,
	}, "")

	require.Equal(t, http.StatusCreated, rec.Code, "body: %s", rec.Body.String())
	resp := decodeData[batchResponse](t, rec)
	// 同步调度器在请求内跑完整个任务。
	assert.Equal(t, types.BatchCompleted, resp.Status)
	assert.Equal(t, 2, resp.Completed)
	assert.Equal(t, 2, resp.Total)
	require.NotNil(t, resp.Seed)
	assert.Equal(t, int64(42), *resp.Seed)
	require.NotNil(t, resp.AvgTime)
	assert.Equal(t, "discuss garbage collection", resp.PromptSnippet)
}

func TestBatchCreate_MissingFields(t *testing.T) {
	h, _ := newBatchHandler(t)

	rec := doJSON(t, h.HandleCreate, http.MethodPost, "/api/batch_jobs", map[string]any{
		"prompt": "no agents",
	}, "")

	requireErrorCode(t, rec, http.StatusBadRequest, types.ErrInvalidRequest)
}

func TestBatchCreate_AgentNotFound(t *testing.T) {
	h, env := newBatchHandler(t)
	a1, _ := fixtures.SeedPair(t, env.db)

	rec := doJSON(t, h.HandleCreate, http.MethodPost, "/api/batch_jobs", map[string]any{
		"agent1_id": a1.ID,
		"agent2_id": 999,
		"prompt":    "hi",
	}, "")

	requireErrorCode(t, rec, http.StatusNotFound, types.ErrNotFound)
}

func TestBatchCreate_ClampsRunsAndTTL(t *testing.T) {
	h, env := newBatchHandler(t)
	a1, a2 := fixtures.SeedPair(t, env.db)

	rec := doJSON(t, h.HandleCreate, http.MethodPost, "/api/batch_jobs", map[string]any{
		"agent1_id": a1.ID,
		"agent2_id": a2.ID,
		"prompt":    "hi",
		"ttl":       0,
		"num_runs":  0,
	}, "")

	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeData[batchResponse](t, rec)
	assert.Equal(t, 1, resp.TTL)
	assert.Equal(t, 1, resp.Total)
}

func TestBatchGet_Success(t *testing.T) {
	h, env := newBatchHandler(t)
	a1, a2 := fixtures.SeedPair(t, env.db)
	job := types.BatchJob{
		Agent1ID: a1.ID, Agent2ID: a2.ID,
		Prompt: "queued work", TTL: 1, NumRuns: 3,
		Status: types.BatchQueued,
	}
	require.NoError(t, env.db.Create(&job).Error)

	rec := doJSON(t, h.HandleGet, http.MethodGet, "/api/batch_jobs/1", nil, "1")

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeData[batchResponse](t, rec)
	assert.Equal(t, types.BatchQueued, resp.Status)
	assert.Equal(t, 3, resp.Total)
	assert.Nil(t, resp.AvgTime)
}

func TestBatchGet_NotFound(t *testing.T) {
	h, _ := newBatchHandler(t)

	rec := doJSON(t, h.HandleGet, http.MethodGet, "/api/batch_jobs/999", nil, "999")
	requireErrorCode(t, rec, http.StatusNotFound, types.ErrNotFound)
}

func TestBatchCancel_QueuedJob(t *testing.T) {
	h, env := newBatchHandler(t)
	a1, a2 := fixtures.SeedPair(t, env.db)
	job := types.BatchJob{
		Agent1ID: a1.ID, Agent2ID: a2.ID,
		Prompt: "to cancel", TTL: 1, NumRuns: 5,
		Status: types.BatchQueued,
	}
	require.NoError(t, env.db.Create(&job).Error)

	rec := doJSON(t, h.HandleCancel, http.MethodPost, "/api/batch_jobs/1/cancel", nil, "1")

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeData[batchResponse](t, rec)
	assert.Equal(t, types.BatchCancelled, resp.Status)
}

func TestBatchList_NewestFirst(t *testing.T) {
	h, env := newBatchHandler(t)
	a1, a2 := fixtures.SeedPair(t, env.db)
	for _, prompt := range []string{"first", "second"} {
		job := types.BatchJob{
			Agent1ID: a1.ID, Agent2ID: a2.ID,
			Prompt: prompt, TTL: 1, NumRuns: 1,
			Status: types.BatchQueued,
		}
		require.NoError(t, env.db.Create(&job).Error)
	}

	rec := doJSON(t, h.HandleList, http.MethodGet, "/api/batch_jobs", nil, "")

	require.Equal(t, http.StatusOK, rec.Code)
	resps := decodeData[[]batchResponse](t, rec)
	require.Len(t, resps, 2)
}
