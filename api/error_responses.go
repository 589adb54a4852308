package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"

	internalErrors "github.com/lippkg/lip-index/internal/errors"
)

// MessageInternalError is the only message a 500 response ever carries.
const MessageInternalError = "internal server error"

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// SendError sends a standardized error response
func SendError(c *gin.Context, statusCode int, message string) {
	c.AbortWithStatusJSON(statusCode, ErrorResponse{Code: statusCode, Message: message})
}

// SendBadRequest sends a 400 describing the violated constraint.
func SendBadRequest(c *gin.Context, err error) {
	SendError(c, http.StatusBadRequest, err.Error())
}

// SendNotFound sends a 404.
func SendNotFound(c *gin.Context, message string) {
	SendError(c, http.StatusNotFound, message)
}

// SendInternalError logs cause and sends the generic 500 body.
func SendInternalError(c *gin.Context, logger hclog.Logger, cause any) {
	logger.Error("unexpected error",
		"error", cause,
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"request_id", c.GetString(requestIDKey))
	SendError(c, http.StatusInternalServerError, MessageInternalError)
}

// handleError maps a service error onto its response.
func handleError(c *gin.Context, logger hclog.Logger, err error) {
	switch {
	case errors.Is(err, internalErrors.ErrBadRequest):
		var badRequest *internalErrors.BadRequestError
		if errors.As(err, &badRequest) {
			SendBadRequest(c, badRequest)
			return
		}
		SendBadRequest(c, err)
	case errors.Is(err, internalErrors.ErrToothNotFound), errors.Is(err, internalErrors.ErrJobNotFound):
		SendNotFound(c, notFoundMessage(err))
	default:
		SendInternalError(c, logger, err)
	}
}

func notFoundMessage(err error) string {
	var toothErr *internalErrors.ToothNotFoundError
	if errors.As(err, &toothErr) {
		return toothErr.Error()
	}
	var jobErr *internalErrors.JobNotFoundError
	if errors.As(err, &jobErr) {
		return jobErr.Error()
	}
	return "not found"
}
