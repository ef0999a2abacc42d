package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/moyoez/splitsend-go/tool"
	"github.com/moyoez/splitsend-go/types"
)

type StatusController struct {
	svc      PipelineService
	strategy string
	started  time.Time
}

func NewStatusController(svc PipelineService, strategy string) *StatusController {
	return &StatusController{svc: svc, strategy: strategy, started: time.Now()}
}

// HandleStatus reports admission capacity and load.
// GET /api/v1/status
func (ctrl *StatusController) HandleStatus(c *gin.Context) {
	adm := ctrl.svc.Admission()
	c.JSON(http.StatusOK, types.StatusResponse{
		Version:         tool.Version,
		Strategy:        ctrl.strategy,
		Capacity:        adm.Capacity(),
		Outstanding:     adm.Outstanding(),
		ActiveActors:    adm.ActiveActors(),
		ActivePipelines: ctrl.svc.Registry().Len(),
		Uptime:          time.Since(ctrl.started).Round(time.Second).String(),
	})
}

// HandleConfigGet returns the running config with secrets masked.
// GET /api/v1/config
func (ctrl *StatusController) HandleConfigGet(c *gin.Context) {
	cfg := *tool.GetCurrentConfig()
	if cfg.Telegram.Token != "" {
		cfg.Telegram.Token = "<redacted>"
	}
	c.JSON(http.StatusOK, cfg)
}
