package controllers

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/moyoez/splitsend-go/admission"
	"github.com/moyoez/splitsend-go/pipeline"
	"github.com/moyoez/splitsend-go/progress"
	"github.com/moyoez/splitsend-go/tool"
	"github.com/moyoez/splitsend-go/types"
)

// PipelineService is what the controllers need from the orchestrator.
type PipelineService interface {
	Run(ctx context.Context, job types.Job, status progress.StatusSink) (*types.JobResult, error)
	Registry() *pipeline.Registry
	Admission() *admission.Controller
	Cancel(requestID string) bool
}

type PipelineController struct {
	svc PipelineService
	// ctx bounds pipelines submitted over the API; it is the server lifetime.
	ctx context.Context
	wg  sync.WaitGroup
}

func NewPipelineController(ctx context.Context, svc PipelineService) *PipelineController {
	return &PipelineController{svc: svc, ctx: ctx}
}

// Wait blocks until every submitted pipeline has returned.
func (ctrl *PipelineController) Wait() {
	ctrl.wg.Wait()
}

// HandleList returns the running pipelines.
// GET /api/v1/pipelines
func (ctrl *PipelineController) HandleList(c *gin.Context) {
	c.JSON(http.StatusOK, tool.FastReturnSuccessWithData(ctrl.svc.Registry().Active()))
}

// HandleGet returns a running or recently finished pipeline.
// GET /api/v1/pipelines/:id
func (ctrl *PipelineController) HandleGet(c *gin.Context) {
	snap, ok := ctrl.svc.Registry().Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, tool.FastReturnError("Pipeline not found"))
		return
	}
	c.JSON(http.StatusOK, tool.FastReturnSuccessWithData(snap))
}

// HandleCancel aborts a running pipeline.
// POST /api/v1/pipelines/:id/cancel
func (ctrl *PipelineController) HandleCancel(c *gin.Context) {
	id := c.Param("id")
	tool.DefaultLogger.Infof("[Cancel] Received cancel request: requestId=%s", id)
	if !ctrl.svc.Cancel(id) {
		c.JSON(http.StatusNotFound, tool.FastReturnError("Pipeline not running"))
		return
	}
	c.JSON(http.StatusOK, tool.FastReturnSuccess())
}

// HandleSubmit starts a pipeline for a URL. The upload destination is the
// chat id in the request; progress is only visible through the pipeline
// endpoints and the websocket feed.
// POST /api/v1/jobs
func (ctrl *PipelineController) HandleSubmit(c *gin.Context) {
	var body types.SubmitJobRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError(err.Error()))
		return
	}
	if ctrl.svc.Admission().IsActorBusy(body.ActorID) {
		c.JSON(tool.FastReturnPipelineError(types.ErrAdmissionBusy))
		return
	}

	job := types.Job{
		RequestID:   tool.NewRequestID(),
		ActorID:     body.ActorID,
		Destination: body.Destination,
		URL:         body.URL,
		FormatID:    body.FormatID,
		Title:       body.Title,
	}
	tool.DefaultLogger.Infof("[Jobs] Accepted %s for actor %d: %s", job.RequestID, job.ActorID, job.URL)

	ctrl.wg.Add(1)
	go func() {
		defer ctrl.wg.Done()
		_, err := ctrl.svc.Run(ctrl.ctx, job, nil)
		if err != nil && !errors.Is(err, types.ErrCancelled) {
			tool.DefaultLogger.Warnf("[Jobs] %s ended: %v", job.RequestID, err)
		}
	}()

	c.JSON(http.StatusAccepted, tool.FastReturnSuccessWithData(gin.H{"requestId": job.RequestID}))
}
