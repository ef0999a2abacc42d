package tool

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/moyoez/splitsend-go/types"
)

func FastReturnError(msg string) gin.H {
	return gin.H{
		"error": msg,
	}
}

func FastReturnSuccess() gin.H {
	return gin.H{
		"status": "ok",
	}
}

func FastReturnSuccessWithData(data any) gin.H {
	return gin.H{
		"data": data,
	}
}

// FastReturnPipelineError maps a pipeline error to a status code and body.
func FastReturnPipelineError(err error) (int, gin.H) {
	switch {
	case errors.Is(err, types.ErrAdmissionBusy):
		return http.StatusConflict, FastReturnError(err.Error())
	case errors.Is(err, types.ErrCancelled):
		return http.StatusGone, FastReturnError(err.Error())
	case errors.Is(err, types.ErrSourceUnavailable):
		return http.StatusBadGateway, FastReturnError(err.Error())
	}
	return http.StatusInternalServerError, FastReturnError("Internal server error")
}
