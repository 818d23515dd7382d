package http

import (
	"errors"
	"net/http"
	"time"

	"superexam-session-service/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrCode identifies an API error independently of its message.
type ErrCode string

const (
	CodeInvalidPayload ErrCode = "INVALID_PAYLOAD"
	CodeValidation     ErrCode = "VALIDATION_ERROR"
	CodeNotFound       ErrCode = "NOT_FOUND"
	CodeInvalidState   ErrCode = "INVALID_STATE"
	CodeUnavailable    ErrCode = "DEPENDENCY_UNAVAILABLE"
	CodeInternal       ErrCode = "INTERNAL_ERROR"
)

const contextKeyRequestID = "request_id"

// Envelope is the body of every JSON response.
type Envelope struct {
	Data     interface{} `json:"data"`
	Error    *ErrorBody  `json:"error,omitempty"`
	Metadata Metadata    `json:"metadata"`
}

type ErrorBody struct {
	Code    ErrCode `json:"code"`
	Message string  `json:"message"`
}

type Metadata struct {
	RequestID string `json:"requestId"`
	Timestamp string `json:"timestamp"`
}

// requestID tags each request with X-Request-ID, generating one when the client sent none.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(contextKeyRequestID, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func success(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Envelope{Data: data, Metadata: metadata(c)})
}

func fail(c *gin.Context, status int, code ErrCode, message string) {
	c.AbortWithStatusJSON(status, Envelope{
		Error:    &ErrorBody{Code: code, Message: message},
		Metadata: metadata(c),
	})
}

// failFromError maps the engine's error kinds onto HTTP statuses. Only dependency and unknown
// failures are logged; the rest are caller mistakes.
func failFromError(c *gin.Context, log zerolog.Logger, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		fail(c, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidState):
		fail(c, http.StatusConflict, CodeInvalidState, err.Error())
	case errors.Is(err, domain.ErrValidation):
		fail(c, http.StatusBadRequest, CodeValidation, err.Error())
	case errors.Is(err, domain.ErrDependency):
		log.Error().Err(err).Str("request_id", requestIDOf(c)).Str("path", c.FullPath()).Msg("dependency failure")
		fail(c, http.StatusServiceUnavailable, CodeUnavailable, "a backing service is unavailable, retry later")
	default:
		log.Error().Err(err).Str("request_id", requestIDOf(c)).Str("path", c.FullPath()).Msg("unexpected error")
		fail(c, http.StatusInternalServerError, CodeInternal, "internal server error")
	}
}

func metadata(c *gin.Context) Metadata {
	return Metadata{
		RequestID: requestIDOf(c),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

func requestIDOf(c *gin.Context) string {
	if id, ok := c.Get(contextKeyRequestID); ok {
		if s, ok := id.(string); ok && s != "" {
			return s
		}
	}
	return uuid.NewString()
}
