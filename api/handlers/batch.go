package handlers

import (
	"net/http"

	"github.com/BaSui01/benchduo/batch"
	"github.com/BaSui01/benchduo/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// =============================================================================
// 📦 批量任务接口 Handler
// =============================================================================

// BatchHandler 批量任务接口处理器
type BatchHandler struct {
	db        *gorm.DB
	scheduler *batch.Scheduler
	logger    *zap.Logger
}

// NewBatchHandler 创建批量任务处理器
func NewBatchHandler(db *gorm.DB, scheduler *batch.Scheduler, logger *zap.Logger) *BatchHandler {
	return &BatchHandler{db: db, scheduler: scheduler, logger: logger}
}

// createBatchRequest 批量任务创建请求体。
type createBatchRequest struct {
	Agent1ID uint   `json:"agent1_id"`
	Agent2ID uint   `json:"agent2_id"`
	Prompt   string `json:"prompt"`
	TTL      int    `json:"ttl"`
	NumRuns  int    `json:"num_runs"`
	Seed     *int64 `json:"seed"`
}

// batchResponse 批量任务响应载荷，带派生统计。
type batchResponse struct {
	ID            uint              `json:"id"`
	Status        types.BatchStatus `json:"status"`
	Completed     int               `json:"completed"`
	Total         int               `json:"total"`
	Agent1ID      uint              `json:"agent1_id"`
	Agent2ID      uint              `json:"agent2_id"`
	Prompt        string            `json:"prompt"`
	PromptSnippet string            `json:"prompt_snippet"`
	TTL           int               `json:"ttl"`
	Seed          *int64            `json:"seed"`
	AvgTime       *float64          `json:"avg_time"`
	TokensPerSec  *float64          `json:"tokens_per_sec"`
	TimeElapsed   float64           `json:"time_elapsed"`
	ErrorMessage  string            `json:"error_message,omitempty"`
	CreatedAt     any               `json:"created_at"`
	StartTime     any               `json:"start_time"`
	EndTime       any               `json:"end_time"`
}

func toBatchResponse(job *types.BatchJob) batchResponse {
	total := job.NumRuns
	if total < 1 {
		total = 1
	}
	// 按字符截断，多字节字符不能从中间劈开。
	snippet := job.Prompt
	if runes := []rune(snippet); len(runes) > 80 {
		snippet = string(runes[:80])
	}

	resp := batchResponse{
		ID:            job.ID,
		Status:        job.Status,
		Completed:     job.CompletedRuns,
		Total:         total,
		Agent1ID:      job.Agent1ID,
		Agent2ID:      job.Agent2ID,
		Prompt:        job.Prompt,
		PromptSnippet: snippet,
		TTL:           job.TTL,
		Seed:          job.Seed,
		TimeElapsed:   job.TotalElapsedSeconds,
		ErrorMessage:  job.ErrorMessage,
		CreatedAt:     job.CreatedAt,
		StartTime:     job.StartTime,
		EndTime:       job.EndTime,
	}
	if job.CompletedRuns > 0 {
		avg := job.TotalElapsedSeconds / float64(job.CompletedRuns)
		resp.AvgTime = &avg
	}
	if job.TotalElapsedSeconds > 0 {
		tps := float64(job.TotalTokens) / job.TotalElapsedSeconds
		resp.TokensPerSec = &tps
	}
	return resp
}

// HandleCreate POST /api/batch_jobs：创建任务并提交调度。
func (h *BatchHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createBatchRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.Agent1ID == 0 || req.Agent2ID == 0 || req.Prompt == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
			"agent1_id, agent2_id, and prompt are required", h.logger)
		return
	}

	var agent1, agent2 types.Agent
	if err := h.db.First(&agent1, req.Agent1ID).Error; err != nil {
		WriteError(w, types.NewError(types.ErrNotFound, "agent1_id does not exist"), h.logger)
		return
	}
	if err := h.db.First(&agent2, req.Agent2ID).Error; err != nil {
		WriteError(w, types.NewError(types.ErrNotFound, "agent2_id does not exist"), h.logger)
		return
	}

	ttl := req.TTL
	if ttl < 1 {
		ttl = 1
	}
	numRuns := req.NumRuns
	if numRuns < 1 {
		numRuns = 1
	}

	job := types.BatchJob{
		Agent1ID: agent1.ID,
		Agent2ID: agent2.ID,
		Prompt:   req.Prompt,
		TTL:      ttl,
		NumRuns:  numRuns,
		Seed:     req.Seed,
		Status:   types.BatchQueued,
	}
	if err := h.db.Create(&job).Error; err != nil {
		WriteError(w, types.NewError(types.ErrDatabase, "failed to create batch job").WithCause(err), h.logger)
		return
	}

	if err := h.scheduler.Submit(r.Context(), job.ID); err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	// 同步模式下任务可能已经跑完，返回最新状态。
	h.db.First(&job, job.ID)
	WriteCreated(w, toBatchResponse(&job))
}

// HandleList GET /api/batch_jobs
func (h *BatchHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	var jobs []types.BatchJob
	if err := h.db.Order("created_at desc").Find(&jobs).Error; err != nil {
		WriteError(w, types.NewError(types.ErrDatabase, "failed to list batch jobs").WithCause(err), h.logger)
		return
	}

	responses := make([]batchResponse, 0, len(jobs))
	for i := range jobs {
		responses = append(responses, toBatchResponse(&jobs[i]))
	}
	WriteSuccess(w, responses)
}

// HandleGet GET /api/batch_jobs/{id}
func (h *BatchHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	job, ok := h.loadJob(w, r)
	if !ok {
		return
	}
	WriteSuccess(w, toBatchResponse(job))
}

// HandleCancel POST /api/batch_jobs/{id}/cancel
func (h *BatchHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	job, ok := h.loadJob(w, r)
	if !ok {
		return
	}

	if err := h.scheduler.Cancel(job.ID); err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	h.db.First(job, job.ID)
	WriteSuccess(w, toBatchResponse(job))
}

func (h *BatchHandler) loadJob(w http.ResponseWriter, r *http.Request) (*types.BatchJob, bool) {
	var job types.BatchJob
	if err := h.db.First(&job, "id = ?", r.PathValue("id")).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			WriteError(w, types.NewError(types.ErrNotFound, "batch job not found"), h.logger)
		} else {
			WriteError(w, types.NewError(types.ErrDatabase, "failed to load batch job").WithCause(err), h.logger)
		}
		return nil, false
	}
	return &job, true
}
