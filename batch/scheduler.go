// =============================================================================
// 📦 批量任务调度器
// =============================================================================
// 单消费者 FIFO 队列：一次只跑一个 BatchJob，一轮一场对话。
// 每轮开始前重新读取任务行，让另一线程写入的取消请求在下一个
// 轮次边界生效。CompletedRuns 是断点续跑的唯一事实来源。
// =============================================================================

package batch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BaSui01/benchduo/duel"
	"github.com/BaSui01/benchduo/internal/metrics"
	"github.com/BaSui01/benchduo/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// queueCapacity 等待执行的任务 id 上限。
const queueCapacity = 256

// Scheduler 批量任务调度器。
type Scheduler struct {
	db      *gorm.DB
	engine  *duel.Engine
	metrics *metrics.Collector
	logger  *zap.Logger

	jobs   chan uint
	closed atomic.Bool
	wg     sync.WaitGroup
	cancel context.CancelFunc

	// syncMode 为真时 Submit 内联执行完状态机再返回（测试用）。
	syncMode bool
}

// NewScheduler 创建批量调度器（尚未启动）。
func NewScheduler(db *gorm.DB, engine *duel.Engine, m *metrics.Collector, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		db:      db,
		engine:  engine,
		metrics: m,
		logger:  logger.With(zap.String("component", "batch_scheduler")),
		jobs:    make(chan uint, queueCapacity),
	}
}

// NewSyncScheduler 创建同步执行的调度器：Submit 绕过队列内联执行。
func NewSyncScheduler(db *gorm.DB, engine *duel.Engine, m *metrics.Collector, logger *zap.Logger) *Scheduler {
	s := NewScheduler(db, engine, m, logger)
	s.syncMode = true
	return s
}

// Start 启动后台工作协程。同步模式下为空操作。
func (s *Scheduler) Start(ctx context.Context) {
	if s.syncMode {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.worker(ctx)
	s.logger.Info("batch scheduler started")
}

// Stop 停止接收新任务并取消在途工作。运行中的任务在检查点停下，
// 保持非终态，重新提交后从 CompletedRuns 续跑。
func (s *Scheduler) Stop() {
	if s.syncMode {
		return
	}
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	close(s.jobs)
	s.wg.Wait()
	s.logger.Info("batch scheduler stopped")
}

// Submit 将任务 id 入队。终态任务直接拒绝；
// 非终态任务（含崩溃后重新提交的 running 任务）从 CompletedRuns 续跑。
func (s *Scheduler) Submit(ctx context.Context, jobID uint) error {
	var job types.BatchJob
	if err := s.db.First(&job, jobID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return types.NewError(types.ErrNotFound, fmt.Sprintf("batch job %d not found", jobID))
		}
		return types.NewError(types.ErrDatabase, "failed to load batch job").WithCause(err)
	}
	if job.Status.Terminal() {
		return types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("batch job %d is already %s", jobID, job.Status))
	}

	if s.syncMode {
		s.process(ctx, jobID)
		return nil
	}

	if s.closed.Load() {
		return types.NewError(types.ErrInternalError, "batch scheduler is stopped")
	}
	select {
	case s.jobs <- jobID:
		if s.metrics != nil {
			s.metrics.SetBatchQueueDepth(len(s.jobs))
		}
		return nil
	default:
		return types.NewError(types.ErrInternalError, "batch queue is full").WithRetryable(true)
	}
}

// Cancel 请求取消任务。仍在排队的任务立即转为 cancelled；
// 运行中的任务在下一个轮次边界生效，在途轮次总是跑完。
func (s *Scheduler) Cancel(jobID uint) error {
	var job types.BatchJob
	if err := s.db.First(&job, jobID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return types.NewError(types.ErrNotFound, fmt.Sprintf("batch job %d not found", jobID))
		}
		return types.NewError(types.ErrDatabase, "failed to load batch job").WithCause(err)
	}
	if job.Status.Terminal() {
		return nil
	}

	updates := map[string]any{"cancel_requested": true}
	if job.Status == types.BatchQueued {
		now := time.Now().UTC()
		updates["status"] = types.BatchCancelled
		updates["end_time"] = &now
	}
	if err := s.db.Model(&job).Updates(updates).Error; err != nil {
		return types.NewError(types.ErrDatabase, "failed to request cancellation").WithCause(err)
	}

	s.logger.Info("cancellation requested",
		zap.Uint("job_id", jobID),
		zap.String("status", string(job.Status)))
	return nil
}

func (s *Scheduler) worker(ctx context.Context) {
	defer s.wg.Done()

	for jobID := range s.jobs {
		if s.metrics != nil {
			s.metrics.SetBatchQueueDepth(len(s.jobs))
		}
		if ctx.Err() != nil {
			return
		}
		s.process(ctx, jobID)
	}
}

// process 执行一个任务的完整状态机。
func (s *Scheduler) process(ctx context.Context, jobID uint) {
	job, err := s.reload(jobID)
	if err != nil {
		s.logger.Error("failed to load batch job", zap.Uint("job_id", jobID), zap.Error(err))
		return
	}
	if job.Status.Terminal() {
		return
	}

	updates := map[string]any{"status": types.BatchRunning}
	if job.StartTime == nil {
		now := time.Now().UTC()
		updates["start_time"] = &now
	}
	if err := s.db.Model(job).Updates(updates).Error; err != nil {
		s.logger.Error("failed to mark job running", zap.Uint("job_id", jobID), zap.Error(err))
		return
	}

	s.logger.Info("batch job started",
		zap.Uint("job_id", jobID),
		zap.Int("completed_runs", job.CompletedRuns),
		zap.Int("num_runs", job.NumRuns))

	for run := job.CompletedRuns; run < job.NumRuns; run++ {
		// 调度器关停时任务保持 running，下次提交从检查点续跑。
		if ctx.Err() != nil {
			s.logger.Info("batch job interrupted at checkpoint",
				zap.Uint("job_id", jobID), zap.Int("completed_runs", run))
			return
		}

		// 每轮重读任务行，使外部写入的取消请求可见。
		job, err = s.reload(jobID)
		if err != nil {
			s.logger.Error("failed to reload batch job", zap.Uint("job_id", jobID), zap.Error(err))
			return
		}
		if job.CancelRequested {
			s.finish(job, types.BatchCancelled, "")
			return
		}

		if err := s.executeRun(ctx, job, run); err != nil {
			if ctx.Err() != nil {
				s.logger.Info("batch job interrupted mid-run",
					zap.Uint("job_id", jobID), zap.Int("completed_runs", run))
				return
			}
			s.finish(job, types.BatchFailed, err.Error())
			if s.metrics != nil {
				s.metrics.RecordBatchRun("failed")
			}
			return
		}
		if s.metrics != nil {
			s.metrics.RecordBatchRun("completed")
		}
	}

	s.finish(job, types.BatchCompleted, "")
}

// executeRun 执行一轮：建一场对话、跑满回合、把统计折叠进任务汇总。
func (s *Scheduler) executeRun(ctx context.Context, job *types.BatchJob, run int) error {
	var runSeed *int64
	if job.Seed != nil {
		seed := *job.Seed + int64(run)
		runSeed = &seed
	}

	conv := types.Conversation{
		Agent1ID:   job.Agent1ID,
		Agent2ID:   job.Agent2ID,
		TTL:        job.TTL,
		RandomSeed: runSeed,
		Status:     types.ConversationPending,
	}
	if err := s.db.Create(&conv).Error; err != nil {
		return types.NewError(types.ErrDatabase,
			fmt.Sprintf("failed to create conversation for run %d", run)).WithCause(err)
	}

	outcome, err := s.engine.RunConversation(ctx, conv.ID, job.Prompt)
	if err != nil {
		return types.NewError(types.ErrBatchRunFailed,
			fmt.Sprintf("run %d failed", run)).WithCause(err)
	}

	// 原子提交：轮次计数与统计在同一事务内累加后才考虑下一轮。
	return s.db.Transaction(func(tx *gorm.DB) error {
		var fresh types.BatchJob
		if err := tx.First(&fresh, job.ID).Error; err != nil {
			return err
		}
		fresh.CompletedRuns++
		fresh.TotalElapsedSeconds += outcome.Elapsed.Seconds()
		fresh.TotalTokens += int64(outcome.Tokens)
		fresh.TotalMessages += int64(outcome.Messages)
		fresh.ConversationIDs = append(fresh.ConversationIDs, conv.ID)
		// 必须走结构体写入：conversation_ids 的 JSON 序列化器对 map 式 Updates 不生效。
		// Select 限定列，避免覆盖并发写入的 cancel_requested。
		return tx.Model(&fresh).
			Select("completed_runs", "total_elapsed_seconds", "total_tokens", "total_messages", "conversation_ids").
			Updates(&fresh).Error
	})
}

// finish 将任务置为终态并记录终止时间。
func (s *Scheduler) finish(job *types.BatchJob, status types.BatchStatus, errMsg string) {
	now := time.Now().UTC()
	updates := map[string]any{
		"status":   status,
		"end_time": &now,
	}
	if errMsg != "" {
		updates["error_message"] = errMsg
	}
	if err := s.db.Model(job).Updates(updates).Error; err != nil {
		s.logger.Error("failed to finalize batch job",
			zap.Uint("job_id", job.ID), zap.Error(err))
		return
	}
	if s.metrics != nil {
		s.metrics.RecordBatchJob(string(status))
	}
	s.logger.Info("batch job finished",
		zap.Uint("job_id", job.ID),
		zap.String("status", string(status)),
		zap.Int("completed_runs", job.CompletedRuns))
}

func (s *Scheduler) reload(jobID uint) (*types.BatchJob, error) {
	var job types.BatchJob
	if err := s.db.First(&job, jobID).Error; err != nil {
		return nil, err
	}
	return &job, nil
}
