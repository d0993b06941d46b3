package batch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/BaSui01/benchduo/connector"
	"github.com/BaSui01/benchduo/connector/factory"
	"github.com/BaSui01/benchduo/duel"
	"github.com/BaSui01/benchduo/testutil"
	"github.com/BaSui01/benchduo/testutil/fixtures"
	"github.com/BaSui01/benchduo/testutil/mocks"
	"github.com/BaSui01/benchduo/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// newTestScheduler 组装内存库、桩连接器与同步调度器。
func newTestScheduler(t *testing.T) (*Scheduler, *gorm.DB, *mocks.StubConnector) {
	t.Helper()

	db := testutil.OpenDB(t)
	stub := mocks.NewStubConnector()
	f := factory.New(0, nil)
	f.Register(types.BackendOllama, func(host string, port int) connector.Connector {
		return stub
	})

	engine := duel.NewEngine(db, f, nil, nil, nil, nil)
	return NewSyncScheduler(db, engine, nil, nil), db, stub
}

func seedJob(t *testing.T, db *gorm.DB, numRuns int, seed *int64) *types.BatchJob {
	t.Helper()
	a1, a2 := fixtures.SeedPair(t, db)
	job := &types.BatchJob{
		Agent1ID: a1.ID,
		Agent2ID: a2.ID,
		Prompt:   "debate this",
		TTL:      2,
		NumRuns:  numRuns,
		Seed:     seed,
		Status:   types.BatchQueued,
	}
	require.NoError(t, db.Create(job).Error)
	return job
}

func TestSubmit_RunsAllRuns(t *testing.T) {
	s, db, stub := newTestScheduler(t)
	job := seedJob(t, db, 3, nil)

	require.NoError(t, s.Submit(context.Background(), job.ID))

	var done types.BatchJob
	require.NoError(t, db.First(&done, job.ID).Error)
	assert.Equal(t, types.BatchCompleted, done.Status)
	assert.Equal(t, 3, done.CompletedRuns)
	assert.Len(t, done.ConversationIDs, 3)
	assert.Equal(t, int64(3*2), done.TotalMessages)
	assert.Positive(t, done.TotalTokens)
	require.NotNil(t, done.StartTime)
	require.NotNil(t, done.EndTime)

	// 每轮 TTL=2 即两次后端调用。
	assert.Equal(t, 6, stub.CallCount())
}

func TestSubmit_PerRunSeedIncrements(t *testing.T) {
	s, db, stub := newTestScheduler(t)
	seed := int64(100)
	job := seedJob(t, db, 2, &seed)

	require.NoError(t, s.Submit(context.Background(), job.ID))

	calls := stub.Calls()
	require.Len(t, calls, 4)
	require.NotNil(t, calls[0].Settings.Seed)
	assert.Equal(t, int64(100), *calls[0].Settings.Seed)
	require.NotNil(t, calls[2].Settings.Seed)
	assert.Equal(t, int64(101), *calls[2].Settings.Seed)
}

func TestSubmit_ResumesFromCompletedRuns(t *testing.T) {
	s, db, stub := newTestScheduler(t)
	job := seedJob(t, db, 5, nil)
	// 模拟崩溃后的任务行：跑完两轮，状态停在 running。
	require.NoError(t, db.Model(job).Updates(map[string]any{
		"status":         types.BatchRunning,
		"completed_runs": 2,
	}).Error)

	require.NoError(t, s.Submit(context.Background(), job.ID))

	var done types.BatchJob
	require.NoError(t, db.First(&done, job.ID).Error)
	assert.Equal(t, types.BatchCompleted, done.Status)
	assert.Equal(t, 5, done.CompletedRuns)

	// 只补跑剩余三轮。
	assert.Equal(t, 3*2, stub.CallCount())
}

func TestSubmit_TerminalJobRejected(t *testing.T) {
	s, db, _ := newTestScheduler(t)
	job := seedJob(t, db, 1, nil)
	require.NoError(t, db.Model(job).Update("status", types.BatchCompleted).Error)

	err := s.Submit(context.Background(), job.ID)
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
}

func TestSubmit_NotFound(t *testing.T) {
	s, _, _ := newTestScheduler(t)

	err := s.Submit(context.Background(), 424242)
	require.Error(t, err)
	assert.Equal(t, types.ErrNotFound, types.GetErrorCode(err))
}

func TestSubmit_FailedRunIsTerminal(t *testing.T) {
	s, db, stub := newTestScheduler(t)
	job := seedJob(t, db, 3, nil)

	calls := 0
	stub.ChatFunc = func(ctx context.Context, messages []connector.ChatMessage, settings connector.ChatSettings) (string, error) {
		calls++
		// 第二轮的首回合失败。
		if calls == 3 {
			return "", errors.New("engine down")
		}
		return "ok", nil
	}

	require.NoError(t, s.Submit(context.Background(), job.ID))

	var done types.BatchJob
	require.NoError(t, db.First(&done, job.ID).Error)
	assert.Equal(t, types.BatchFailed, done.Status)
	assert.Equal(t, 1, done.CompletedRuns)
	assert.NotEmpty(t, done.ErrorMessage)
	require.NotNil(t, done.EndTime)

	// 终态任务不可重新提交。
	err := s.Submit(context.Background(), job.ID)
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
}

func TestExecuteRun_CheckpointRoundTrips(t *testing.T) {
	s, db, _ := newTestScheduler(t)
	job := seedJob(t, db, 2, nil)

	require.NoError(t, s.executeRun(context.Background(), job, 0))

	// 检查点必须能被后续的行重读解码回来。
	reloaded, err := s.reload(job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.CompletedRuns)
	require.Len(t, reloaded.ConversationIDs, 1)

	var conv types.Conversation
	require.NoError(t, db.First(&conv, reloaded.ConversationIDs[0]).Error)
	assert.Equal(t, types.ConversationFinished, conv.Status)
}

func TestProcess_CancelledContextLeavesJobResumable(t *testing.T) {
	s, db, stub := newTestScheduler(t)
	job := seedJob(t, db, 2, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.process(ctx, job.ID)

	// 关停中断不进终态，也不消耗轮次。
	var paused types.BatchJob
	require.NoError(t, db.First(&paused, job.ID).Error)
	assert.Equal(t, types.BatchRunning, paused.Status)
	assert.Equal(t, 0, paused.CompletedRuns)
	assert.Zero(t, stub.CallCount())

	require.NoError(t, s.Submit(context.Background(), job.ID))

	var done types.BatchJob
	require.NoError(t, db.First(&done, job.ID).Error)
	assert.Equal(t, types.BatchCompleted, done.Status)
	assert.Equal(t, 2, done.CompletedRuns)
}

func TestStop_CancelsInFlightRun(t *testing.T) {
	db := testutil.OpenDB(t)
	stub := mocks.NewStubConnector()
	f := factory.New(0, nil)
	f.Register(types.BackendOllama, func(host string, port int) connector.Connector {
		return stub
	})
	engine := duel.NewEngine(db, f, nil, nil, nil, nil)
	s := NewScheduler(db, engine, nil, nil)
	job := seedJob(t, db, 3, nil)

	started := make(chan struct{})
	var once sync.Once
	stub.ChatFunc = func(ctx context.Context, messages []connector.ChatMessage, settings connector.ChatSettings) (string, error) {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return "", ctx.Err()
	}

	s.Start(context.Background())
	require.NoError(t, s.Submit(context.Background(), job.ID))
	<-started

	// Stop 通过取消解除在途回合的阻塞，任务保持可续跑。
	s.Stop()

	var paused types.BatchJob
	require.NoError(t, db.First(&paused, job.ID).Error)
	assert.Equal(t, types.BatchRunning, paused.Status)
	assert.Equal(t, 0, paused.CompletedRuns)
}

func TestCancel_QueuedJobCancelsImmediately(t *testing.T) {
	s, db, _ := newTestScheduler(t)
	job := seedJob(t, db, 3, nil)

	require.NoError(t, s.Cancel(job.ID))

	var cancelled types.BatchJob
	require.NoError(t, db.First(&cancelled, job.ID).Error)
	assert.Equal(t, types.BatchCancelled, cancelled.Status)
	assert.True(t, cancelled.CancelRequested)
	require.NotNil(t, cancelled.EndTime)
}

func TestCancel_TakesEffectAtRunBoundary(t *testing.T) {
	s, db, stub := newTestScheduler(t)
	job := seedJob(t, db, 5, nil)

	// 首轮结束后从对局回调里写入取消请求，模拟并发取消。
	calls := 0
	stub.ChatFunc = func(ctx context.Context, messages []connector.ChatMessage, settings connector.ChatSettings) (string, error) {
		calls++
		if calls == 2 {
			require.NoError(t, db.Model(&types.BatchJob{}).Where("id = ?", job.ID).
				Update("cancel_requested", true).Error)
		}
		return "ok", nil
	}

	require.NoError(t, s.Submit(context.Background(), job.ID))

	var done types.BatchJob
	require.NoError(t, db.First(&done, job.ID).Error)
	assert.Equal(t, types.BatchCancelled, done.Status)
	// 在途轮次跑完后才停，首轮计入完成。
	assert.Equal(t, 1, done.CompletedRuns)
	assert.Equal(t, 2, stub.CallCount())
}

func TestCancel_TerminalJobIsNoop(t *testing.T) {
	s, db, _ := newTestScheduler(t)
	job := seedJob(t, db, 1, nil)
	require.NoError(t, s.Submit(context.Background(), job.ID))

	require.NoError(t, s.Cancel(job.ID))

	var done types.BatchJob
	require.NoError(t, db.First(&done, job.ID).Error)
	assert.Equal(t, types.BatchCompleted, done.Status)
	assert.False(t, done.CancelRequested)
}

func TestCancel_NotFound(t *testing.T) {
	s, _, _ := newTestScheduler(t)

	err := s.Cancel(424242)
	require.Error(t, err)
	assert.Equal(t, types.ErrNotFound, types.GetErrorCode(err))
}
