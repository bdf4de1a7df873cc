package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/examind/examind-backend/internal/middleware"
	"github.com/examind/examind-backend/internal/model"
	"github.com/examind/examind-backend/internal/repository"
	"github.com/examind/examind-backend/internal/response"
	"github.com/examind/examind-backend/internal/service"
	"github.com/examind/examind-backend/internal/validator"
)

// StudentPortalHandler handles the student-facing entry and review endpoints.
type StudentPortalHandler struct {
	sessionService *service.SessionService
}

// NewStudentPortalHandler creates a new StudentPortalHandler.
func NewStudentPortalHandler(sessionService *service.SessionService) *StudentPortalHandler {
	return &StudentPortalHandler{sessionService: sessionService}
}

// Lobby godoc
// GET /api/v1/portal/lobby/:code
// Public pre-join view: title, class and availability window. Reveals
// nothing a student could not learn by attempting to join.
func (h *StudentPortalHandler) Lobby(c *gin.Context) {
	info, err := h.sessionService.Lobby(c.Request.Context(), c.Param("code"))
	if err != nil {
		if errors.Is(err, service.ErrExamNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrExamNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, info)
}

// Join godoc
// POST /api/v1/portal/join
// Validates code + security code and issues a session token. Resumes a
// snapshotted session when one exists for the same identity.
func (h *StudentPortalHandler) Join(c *gin.Context) {
	var req model.JoinExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.sessionService.Join(c.Request.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrExamNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrExamNotFound)
		case errors.Is(err, service.ErrExamNotOpen):
			response.Fail(c, http.StatusForbidden, response.ErrExamNotAvailable)
		case errors.Is(err, service.ErrInvalidSecurityCode):
			response.Fail(c, http.StatusUnauthorized, response.ErrInvalidSecurityCode)
		case errors.Is(err, service.ErrAttemptCompleted):
			response.Fail(c, http.StatusConflict, response.ErrAttemptCompleted)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, result)
}

// GetPaper godoc
// GET /api/v1/portal/paper
// Returns the sanitized exam payload for the token's session, questions in
// the session's shuffled order.
func (h *StudentPortalHandler) GetPaper(c *gin.Context) {
	key, ok := sessionKeyFromContext(c)
	if !ok {
		return
	}

	ctrl, err := h.sessionService.Attach(c.Request.Context(), key)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrSessionNotFound)
		return
	}

	exam, err := h.sessionService.LoadExam(c.Request.Context(), key.ExamID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	payload := service.SessionPayload(exam, ctrl.OrderedQuestions())

	response.Success(c, http.StatusOK, gin.H{"paper": payload, "state": ctrl.View()})
}

// GetState godoc
// GET /api/v1/portal/state
// Returns the live view for reload sync without re-sending the paper.
func (h *StudentPortalHandler) GetState(c *gin.Context) {
	key, ok := sessionKeyFromContext(c)
	if !ok {
		return
	}

	ctrl, err := h.sessionService.Attach(c.Request.Context(), key)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrSessionNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"state": ctrl.View()})
}

// GetResult godoc
// GET /api/v1/portal/result
// Returns the stored result for the token's identity. Available only when
// the exam allows review.
func (h *StudentPortalHandler) GetResult(c *gin.Context) {
	key, ok := sessionKeyFromContext(c)
	if !ok {
		return
	}

	exam, err := h.sessionService.LoadExam(c.Request.Context(), key.ExamID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if !exam.AllowReview {
		response.Fail(c, http.StatusForbidden, response.ErrActionForbidden)
		return
	}

	record, err := h.sessionService.GetResult(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": record})
}

func sessionKeyFromContext(c *gin.Context) (model.SessionKey, bool) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return model.SessionKey{}, false
	}
	key, err := claims.SessionKey()
	if err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
		return model.SessionKey{}, false
	}
	return key, true
}
