package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/molx/pkg/errors"
)

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// writeError writes a structured error response with an explicit status.
func writeError(c *gin.Context, status int, code errors.ErrorCode, msg string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Code: string(code), Message: msg})
}

// writeAppError maps application errors to HTTP status codes through the
// error code table. Server side failures are masked.
func writeAppError(c *gin.Context, err error) {
	code := errors.GetCode(err)
	status := errors.HTTPStatusForCode(code)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		writeError(c, status, errors.ErrCodeInternal, "internal server error")
		return
	}

	resp := ErrorResponse{Code: string(code), Message: err.Error()}
	var ae *errors.AppError
	if errors.As(err, &ae) {
		resp.Message = ae.Message
		resp.Detail = ae.Detail
	}
	c.AbortWithStatusJSON(status, resp)
}

// intParam parses a path parameter as a non-negative int.
func intParam(c *gin.Context, name string) (int, error) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil || v < 0 {
		return 0, errors.Newf(errors.ErrCodeBadRequest, "%s must be a non-negative integer", name)
	}
	return v, nil
}

// intQuery parses an optional query parameter, returning def when absent.
func intQuery(c *gin.Context, name string, def int) (int, error) {
	s, ok := c.GetQuery(name)
	if !ok || s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Newf(errors.ErrCodeBadRequest, "%s must be an integer", name)
	}
	return v, nil
}
