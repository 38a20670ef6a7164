package controller

import (
	"encoding/json"

	"evalhub/internal/common/cache"
	"evalhub/internal/eval/dispatch"
	"evalhub/internal/eval/model"
	"evalhub/internal/eval/queue"
	appErr "evalhub/pkg/errors"
	"evalhub/pkg/utils/logger"
	"evalhub/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EvalController exposes dispatch and cancellation over HTTP. It is a
// thin wrapper; all decisions live in the dispatch package.
type EvalController struct {
	dispatcher *dispatch.Dispatcher
	canceller  *dispatch.CancellationController
	queue      *queue.Service
	bus        cache.Cache
}

// NewEvalController creates a controller. queueSvc may be nil when the
// embedded queue is not enabled.
func NewEvalController(dispatcher *dispatch.Dispatcher, canceller *dispatch.CancellationController, queueSvc *queue.Service, bus cache.Cache) *EvalController {
	return &EvalController{
		dispatcher: dispatcher,
		canceller:  canceller,
		queue:      queueSvc,
		bus:        bus,
	}
}

type submitRequest struct {
	EvalID        string            `json:"eval_id"`
	Code          string            `json:"code" binding:"required"`
	Language      string            `json:"language" binding:"required"`
	Priority      bool              `json:"priority"`
	TimeoutSec    int               `json:"timeout"`
	ExecutorImage string            `json:"executor_image"`
	MemoryLimitMB int               `json:"memory_limit_mb"`
	CPULimit      float64           `json:"cpu_limit"`
	Metadata      map[string]string `json:"metadata"`
}

type submitResponse struct {
	EvalID     string `json:"eval_id"`
	TaskID     string `json:"task_id,omitempty"`
	Dispatched bool   `json:"dispatched"`
	Lane       string `json:"lane"`
}

// Submit accepts an evaluation, announces it on the event bus and
// dispatches it to the broker.
func (h *EvalController) Submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid submit request: "+err.Error())
		return
	}
	if req.EvalID == "" {
		req.EvalID = uuid.NewString()
	}

	ctx := c.Request.Context()
	h.announceQueued(c, req)

	taskID, dispatched := h.dispatcher.Submit(ctx, dispatch.SubmitInput{
		EvalID:        req.EvalID,
		Code:          req.Code,
		Language:      req.Language,
		Priority:      req.Priority,
		TimeoutSec:    req.TimeoutSec,
		ExecutorImage: req.ExecutorImage,
		MemoryLimitMB: req.MemoryLimitMB,
		CPULimit:      req.CPULimit,
	})

	response.Success(c, submitResponse{
		EvalID:     req.EvalID,
		TaskID:     taskID,
		Dispatched: dispatched,
		Lane:       dispatch.Lane(req.Priority),
	})
}

func (h *EvalController) announceQueued(c *gin.Context, req submitRequest) {
	event := model.LifecycleEvent{
		EvalID:     req.EvalID,
		Code:       req.Code,
		Language:   req.Language,
		TimeoutSec: req.TimeoutSec,
		Metadata:   req.Metadata,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := h.bus.Publish(c.Request.Context(), model.ChannelQueued, string(payload)); err != nil {
		logger.Error(c.Request.Context(), "publish queued event failed",
			zap.String("eval_id", req.EvalID), zap.Error(err))
	}
}

type cancelRequest struct {
	Terminate bool `json:"terminate"`
}

// Cancel applies the cancellation decision procedure for one evaluation.
func (h *EvalController) Cancel(c *gin.Context) {
	evalID := c.Param("id")
	if evalID == "" {
		response.BadRequest(c, "Invalid evaluation id")
		return
	}
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		response.BadRequest(c, "Invalid cancel request: "+err.Error())
		return
	}
	outcome := h.canceller.Cancel(c.Request.Context(), evalID, req.Terminate)
	response.Success(c, outcome)
}

// TaskInfo returns the broker's view of the evaluation's task.
func (h *EvalController) TaskInfo(c *gin.Context) {
	evalID := c.Param("id")
	if evalID == "" {
		response.BadRequest(c, "Invalid evaluation id")
		return
	}
	info := h.canceller.TaskInfo(c.Request.Context(), evalID)
	if !info.Found {
		response.Error(c, appErr.Newf(appErr.TaskNotFound, "no task recorded for evaluation %s", evalID))
		return
	}
	response.Success(c, info)
}

// QueueStatus returns the embedded queue occupancy snapshot.
func (h *EvalController) QueueStatus(c *gin.Context) {
	if h.queue == nil {
		response.Error(c, appErr.New(appErr.ServiceUnavailable).WithMessage("embedded queue is not enabled"))
		return
	}
	response.Success(c, h.queue.StatusSnapshot())
}

// QueueClear empties the embedded queue. Administrative operation.
func (h *EvalController) QueueClear(c *gin.Context) {
	if h.queue == nil {
		response.Error(c, appErr.New(appErr.ServiceUnavailable).WithMessage("embedded queue is not enabled"))
		return
	}
	removed := h.queue.Clear()
	response.Success(c, gin.H{"removed": removed})
}
