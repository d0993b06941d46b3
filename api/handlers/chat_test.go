package handlers

import (
	"net/http"
	"testing"

	"github.com/BaSui01/benchduo/broadcast"
	"github.com/BaSui01/benchduo/duel"
	"github.com/BaSui01/benchduo/testutil/fixtures"
	"github.com/BaSui01/benchduo/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChatHandler(t *testing.T) (*ChatHandler, *handlerEnv) {
	t.Helper()
	env := newHandlerEnv(t)
	engine := duel.NewEngine(env.db, env.factory, nil, nil, nil, nil)
	return NewSyncChatHandler(env.db, engine, nil), env
}

func TestChatStart_RunsDuelToCompletion(t *testing.T) {
	h, env := newChatHandler(t)
	a1, a2 := fixtures.SeedPair(t, env.db)

	rec := doJSON(t, h.HandleStart, http.MethodPost, "/api/chat", map[string]any{
		"agent1_id": a1.ID,
		"agent2_id": a2.ID,
		"prompt":    "argue about tabs versus spaces",
		"ttl":       2,
	}, "")

	require.Equal(t, http.StatusCreated, rec.Code, "body: %s", rec.Body.String())
	data := decodeData[map[string]uint](t, rec)
	convID := data["conversation_id"]
	require.NotZero(t, convID)

	var conv types.Conversation
	require.NoError(t, env.db.First(&conv, convID).Error)
	assert.Equal(t, types.ConversationFinished, conv.Status)

	var count int64
	require.NoError(t, env.db.Model(&types.Message{}).
		Where("conversation_id = ?", convID).Count(&count).Error)
	assert.Equal(t, int64(3), count)
}

func TestChatStart_AddressesViewerSession(t *testing.T) {
	env := newHandlerEnv(t)
	recorder := &broadcast.Recorder{}
	engine := duel.NewEngine(env.db, env.factory, nil, recorder, nil, nil)
	h := NewSyncChatHandler(env.db, engine, nil)
	a1, a2 := fixtures.SeedPair(t, env.db)

	rec := doJSON(t, h.HandleStart, http.MethodPost, "/api/chat", map[string]any{
		"agent1_id": a1.ID,
		"agent2_id": a2.ID,
		"prompt":    "hi",
		"ttl":       1,
		"viewer_id": "viewer-7",
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code, "body: %s", rec.Body.String())

	// 请求携带的会话 id 一路透传到回合与收尾事件。
	turns, ends := recorder.Snapshot()
	require.Len(t, turns, 1)
	assert.Equal(t, "viewer-7", turns[0].ViewerID)
	require.Len(t, ends, 1)
	assert.Equal(t, "viewer-7", ends[0].ViewerID)
}

func TestChatStart_MissingFields(t *testing.T) {
	h, _ := newChatHandler(t)

	rec := doJSON(t, h.HandleStart, http.MethodPost, "/api/chat", map[string]any{
		"prompt": "no agents",
	}, "")

	requireErrorCode(t, rec, http.StatusBadRequest, types.ErrInvalidRequest)
}

func TestChatStart_AgentNotFound(t *testing.T) {
	h, env := newChatHandler(t)
	a1, _ := fixtures.SeedPair(t, env.db)

	rec := doJSON(t, h.HandleStart, http.MethodPost, "/api/chat", map[string]any{
		"agent1_id": a1.ID,
		"agent2_id": 777,
		"prompt":    "hi",
	}, "")

	requireErrorCode(t, rec, http.StatusNotFound, types.ErrNotFound)
}

func TestChatStart_TTLClampedToOne(t *testing.T) {
	h, env := newChatHandler(t)
	a1, a2 := fixtures.SeedPair(t, env.db)

	rec := doJSON(t, h.HandleStart, http.MethodPost, "/api/chat", map[string]any{
		"agent1_id": a1.ID,
		"agent2_id": a2.ID,
		"prompt":    "hi",
		"ttl":       0,
	}, "")

	require.Equal(t, http.StatusCreated, rec.Code)

	var conv types.Conversation
	require.NoError(t, env.db.Order("id desc").First(&conv).Error)
	assert.Equal(t, 1, conv.TTL)
}

func TestConversationGet_ReturnsTranscriptAndStats(t *testing.T) {
	h, env := newChatHandler(t)
	a1, a2 := fixtures.SeedPair(t, env.db)

	rec := doJSON(t, h.HandleStart, http.MethodPost, "/api/chat", map[string]any{
		"agent1_id": a1.ID,
		"agent2_id": a2.ID,
		"prompt":    "hi",
		"ttl":       2,
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	convID := decodeData[map[string]uint](t, rec)["conversation_id"]

	getRec := doJSON(t, h.HandleGet, http.MethodGet, "/api/conversations/1", nil, "1")
	require.Equal(t, http.StatusOK, getRec.Code)

	data := decodeData[struct {
		ID       uint            `json:"id"`
		Status   string          `json:"status"`
		Messages []types.Message `json:"messages"`
		Stats    map[string]int  `json:"stats"`
	}](t, getRec)

	assert.Equal(t, convID, data.ID)
	assert.Equal(t, "finished", data.Status)
	require.Len(t, data.Messages, 3)
	assert.Equal(t, types.SenderUser, data.Messages[0].SenderRole)
	assert.Equal(t, "reply:hi", data.Messages[1].Content)
	assert.Equal(t, 3, data.Stats["messages"])
	assert.Positive(t, data.Stats["tokens"])
}

func TestConversationGet_NotFound(t *testing.T) {
	h, _ := newChatHandler(t)

	rec := doJSON(t, h.HandleGet, http.MethodGet, "/api/conversations/404", nil, "404")
	requireErrorCode(t, rec, http.StatusNotFound, types.ErrNotFound)
}
