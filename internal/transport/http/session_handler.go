package http

import (
	"net/http"
	"strconv"

	"superexam-session-service/internal/app"
	"superexam-session-service/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// SessionHandler exposes the exam engine over REST.
type SessionHandler struct {
	service *app.ExamService
	log     zerolog.Logger
}

func NewSessionHandler(service *app.ExamService, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		service: service,
		log:     log.With().Str("component", "session_handler").Logger(),
	}
}

// Create handles POST /api/v1/sessions.
func (h *SessionHandler) Create(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, CodeInvalidPayload, err.Error())
		return
	}
	randomize := true
	if req.Randomize != nil {
		randomize = *req.Randomize
	}
	session, err := h.service.CreateSession(c.Request.Context(), app.CreateSessionParams{
		DocumentID:    req.DocumentID,
		QuestionCount: req.QuestionCount,
		TimerEnabled:  req.TimerEnabled,
		TimerMinutes:  req.TimerMinutes,
		Randomize:     randomize,
	})
	if err != nil {
		failFromError(c, h.log, err)
		return
	}
	success(c, http.StatusCreated, newSessionResponse(session, h.service.Now()))
}

// List handles GET /api/v1/sessions?documentId=&status=&limit=.
func (h *SessionHandler) List(c *gin.Context) {
	filter := domain.SessionFilter{DocumentID: c.Query("documentId")}
	switch status := domain.SessionStatus(c.Query("status")); status {
	case domain.StatusAny, domain.StatusActive, domain.StatusCompleted:
		filter.Status = status
	default:
		fail(c, http.StatusBadRequest, CodeInvalidPayload, "status must be active or completed")
		return
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			fail(c, http.StatusBadRequest, CodeInvalidPayload, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}

	summaries, err := h.service.ListSessions(c.Request.Context(), filter)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}
	now := h.service.Now()
	out := make([]summaryResponse, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, summaryResponse{Session: newSessionResponse(s.Session, now), DocumentTitle: s.DocumentTitle})
	}
	success(c, http.StatusOK, out)
}

// Resume handles GET /api/v1/sessions/:id.
func (h *SessionHandler) Resume(c *gin.Context) {
	state, err := h.service.LoadActiveSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		failFromError(c, h.log, err)
		return
	}
	success(c, http.StatusOK, resumeResponse{
		Session:              newSessionResponse(state.Session, h.service.Now()),
		CurrentQuestionIndex: state.CurrentQuestionIndex,
		Completed:            state.Completed,
	})
}

// Questions handles GET /api/v1/sessions/:id/questions.
func (h *SessionHandler) Questions(c *gin.Context) {
	session, questions, err := h.service.SessionQuestions(c.Request.Context(), c.Param("id"))
	if err != nil {
		failFromError(c, h.log, err)
		return
	}
	success(c, http.StatusOK, newQuestionResponses(questions, session.IsTerminal()))
}

// SetAnswer handles PUT /api/v1/sessions/:id/answers/:questionId.
func (h *SessionHandler) SetAnswer(c *gin.Context) {
	var req positionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, CodeInvalidPayload, err.Error())
		return
	}
	questionID := c.Param("questionId")
	if err := h.service.SetAnswer(c.Request.Context(), c.Param("id"), questionID, *req.Position); err != nil {
		failFromError(c, h.log, err)
		return
	}
	success(c, http.StatusOK, answerResponse{QuestionID: questionID, Answer: domain.SingleAnswer(*req.Position)})
}

// ToggleAnswer handles POST /api/v1/sessions/:id/answers/:questionId/toggle.
func (h *SessionHandler) ToggleAnswer(c *gin.Context) {
	var req positionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, CodeInvalidPayload, err.Error())
		return
	}
	questionID := c.Param("questionId")
	answer, err := h.service.ToggleAnswer(c.Request.Context(), c.Param("id"), questionID, *req.Position)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}
	success(c, http.StatusOK, answerResponse{QuestionID: questionID, Answer: answer})
}

// UpdateCursor handles PUT /api/v1/sessions/:id/cursor.
func (h *SessionHandler) UpdateCursor(c *gin.Context) {
	var req cursorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, CodeInvalidPayload, err.Error())
		return
	}
	if err := h.service.UpdateCurrentQuestion(c.Request.Context(), c.Param("id"), *req.Index); err != nil {
		failFromError(c, h.log, err)
		return
	}
	success(c, http.StatusOK, gin.H{"currentQuestionIndex": *req.Index})
}

// Submit handles POST /api/v1/sessions/:id/submit. Repeating it returns the stored result.
func (h *SessionHandler) Submit(c *gin.Context) {
	result, err := h.service.Submit(c.Request.Context(), c.Param("id"))
	if err != nil {
		failFromError(c, h.log, err)
		return
	}
	success(c, http.StatusOK, result)
}

// Review handles GET /api/v1/sessions/:id/review.
func (h *SessionHandler) Review(c *gin.Context) {
	review, err := h.service.Review(c.Request.Context(), c.Param("id"))
	if err != nil {
		failFromError(c, h.log, err)
		return
	}
	success(c, http.StatusOK, review)
}
