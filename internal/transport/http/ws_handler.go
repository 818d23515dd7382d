package http

import (
	"context"
	"net/http"
	"time"

	"superexam-session-service/internal/app"
	"superexam-session-service/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const writeWait = 5 * time.Second

// TimerHandler streams a timed session's countdown over a websocket and auto-submits it at zero.
type TimerHandler struct {
	service  *app.ExamService
	interval time.Duration
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewTimerHandler(service *app.ExamService, interval time.Duration, allowedOrigins []string, log zerolog.Logger) *TimerHandler {
	return &TimerHandler{
		service:  service,
		interval: interval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		log: log.With().Str("component", "timer_ws").Logger(),
	}
}

type outboundMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type tickPayload struct {
	RemainingMs int64 `json:"remainingMs"`
}

type completedPayload struct {
	Result domain.Result `json:"result"`
	// AutoSubmitted is true when this channel's own zero reading triggered the submit.
	AutoSubmitted bool `json:"autoSubmitted"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeTimer handles GET /api/v1/sessions/:id/timer.
func (h *TimerHandler) ServeTimer(c *gin.Context) {
	sessionID := c.Param("id")
	state, err := h.service.LoadActiveSession(c.Request.Context(), sessionID)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}
	if !state.Session.TimerEnabled {
		fail(c, http.StatusBadRequest, CodeValidation, "session has no timer")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Str("session_id", sessionID).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	send := make(chan outboundMessage, 16)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range send {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug().Err(err).Str("session_id", sessionID).Msg("ws write failed")
				cancel()
				return
			}
		}
	}()
	push := func(msg outboundMessage) {
		select {
		case send <- msg:
		case <-ctx.Done():
		}
	}

	// The client never sends anything meaningful; reading detects the disconnect.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if state.Completed {
		push(outboundMessage{Type: "completed", Payload: completedPayload{Result: resultOf(state.Session)}})
	} else {
		driver := h.service.NewTimerDriver(state.Session, h.interval)
		driver.OnTick = func(remaining time.Duration) {
			push(outboundMessage{Type: "tick", Payload: tickPayload{RemainingMs: remaining.Milliseconds()}})
		}
		outcome, err := driver.Run(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			// client went away; the session is untouched
		case err != nil:
			h.log.Error().Err(err).Str("session_id", sessionID).Msg("timer loop failed")
			push(outboundMessage{Type: "error", Payload: errorPayload{Message: err.Error()}})
		case outcome.Submitted:
			push(outboundMessage{Type: "completed", Payload: completedPayload{Result: outcome.Result, AutoSubmitted: true}})
		default:
			h.pushStoredResult(ctx, sessionID, push)
		}
	}

	close(send)
	<-writerDone
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "timer finished"),
		time.Now().Add(writeWait))
}

// pushStoredResult reports a completion that happened through another path.
func (h *TimerHandler) pushStoredResult(ctx context.Context, sessionID string, push func(outboundMessage)) {
	state, err := h.service.LoadActiveSession(ctx, sessionID)
	if err != nil {
		if ctx.Err() == nil {
			push(outboundMessage{Type: "error", Payload: errorPayload{Message: err.Error()}})
		}
		return
	}
	push(outboundMessage{Type: "completed", Payload: completedPayload{Result: resultOf(state.Session)}})
}

func resultOf(session domain.Session) domain.Result {
	if session.Result == nil {
		return domain.Result{TotalQuestions: len(session.QuestionIDs)}
	}
	return *session.Result
}

// originChecker allows every origin when the list is empty.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
