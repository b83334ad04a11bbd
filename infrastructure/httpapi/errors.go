package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"dubbing-service/domain/pipeline"
)

// errorResponse is the one JSON shape every failure is reported in
type errorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	Stage     string `json:"stage,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

func statusFor(kind pipeline.ErrorKind) int {
	switch kind {
	case pipeline.KindBadRequest:
		return http.StatusBadRequest
	case pipeline.KindNotFound:
		return http.StatusNotFound
	case pipeline.KindConflict:
		return http.StatusConflict
	case pipeline.KindRecognition, pipeline.KindUnintelligibleAudio, pipeline.KindTranslation:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	var pe *pipeline.Error
	if !errors.As(err, &pe) {
		pe = &pipeline.Error{Kind: pipeline.KindInternal, Err: err}
	}
	if pe.SessionID != "" {
		c.Header(headerSessionID, pe.SessionID)
	}
	c.AbortWithStatusJSON(statusFor(pe.Kind), errorResponse{
		Error:     pe.Error(),
		Kind:      string(pe.Kind),
		Stage:     string(pe.Stage),
		SessionID: pe.SessionID,
	})
}

func badRequest(c *gin.Context, stage pipeline.Stage, msg string) {
	writeError(c, pipeline.BadRequest(stage, msg))
}

func tooLarge(c *gin.Context, stage pipeline.Stage, limit int64) {
	c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, errorResponse{
		Error: pipeline.BadRequest(stage, "upload exceeds "+formatBytes(limit)).Error(),
		Kind:  string(pipeline.KindBadRequest),
		Stage: string(stage),
	})
}
