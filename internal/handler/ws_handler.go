package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/examind/examind-backend/internal/hint"
	"github.com/examind/examind-backend/internal/middleware"
	"github.com/examind/examind-backend/internal/model"
	"github.com/examind/examind-backend/internal/proctor"
	"github.com/examind/examind-backend/internal/service"
	"github.com/examind/examind-backend/internal/session"
	ws "github.com/examind/examind-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler runs the live exam stream: answers, navigation, proctoring
// signals, submission and server pushes, all over one socket.
type WSHandler struct {
	sessionService *service.SessionService
	hintService    *hint.Service // nil when hints are not configured
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessionService *service.SessionService, hintService *hint.Service, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessionService: sessionService,
		hintService:    hintService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/session/stream?token=...
// Upgrades to WebSocket and binds the connection to the token's session.
func (h *WSHandler) SessionStream(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	key, err := claims.SessionKey()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session identity"})
		return
	}

	rawConn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.Wrap(rawConn)
	defer conn.Close()

	ctrl, err := h.sessionService.Attach(c.Request.Context(), key)
	if err != nil {
		conn.WriteError("no live session for this token")
		return
	}

	exam, err := h.sessionService.LoadExam(c.Request.Context(), key.ExamID)
	if err != nil {
		conn.WriteError("exam definition unavailable")
		return
	}

	wsLog := h.log.With().
		Str("exam_id", key.ExamID.String()).
		Str("student", key.StudentName).
		Logger()

	// Server pushes (timer expiry, violation escalation from another tab,
	// persistence warnings) arrive through the notifier. The wrapped conn
	// serializes these against request replies.
	ctrl.SetNotifier(func(n session.Notification) {
		switch n.Kind {
		case "finalized":
			conn.WriteTyped(ws.GradedResponse{
				Event:   ws.EventGraded,
				Trigger: string(n.Record.Trigger),
				Record:  n.Record,
			})
			h.publishFinalized(key, n.Record)
		case "persist_warning":
			conn.WriteTyped(ws.GradedResponse{
				Event:          ws.EventGraded,
				Trigger:        string(model.TriggerSubmit),
				Record:         ctrl.Result(),
				PersistWarning: n.PersistWarning,
			})
		}
	})

	// Initial sync: the client rebuilds its view from this one message.
	conn.WriteTyped(ws.StateResponse{Event: ws.EventState, State: ctrl.View()})
	wsLog.Info().Msg("Student connected")

	for {
		raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}

		var envelope ws.RequestEnvelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			conn.WriteError("malformed message")
			continue
		}

		switch envelope.Action {
		case ws.ActionAnswer:
			h.handleAnswer(conn, ctrl, raw)
		case ws.ActionNavigate:
			h.handleNavigate(conn, ctrl, raw)
		case ws.ActionSignal:
			h.handleSignal(conn, ctrl, key, raw)
		case ws.ActionAck:
			ctrl.Acknowledge()
			conn.WriteTyped(ws.StateResponse{Event: ws.EventState, State: ctrl.View()})
		case ws.ActionSubmit:
			h.handleSubmit(conn, ctrl, key)
		case ws.ActionHint:
			h.handleHint(conn, ctrl, exam, raw)
		case ws.ActionPing:
			conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(envelope.Action)).Msg("Unknown action")
			conn.WriteError("unknown action: " + string(envelope.Action))
		}

		if ctrl.Finalized() {
			break
		}
	}
}

func (h *WSHandler) handleAnswer(conn *ws.Conn, ctrl *session.Controller, raw []byte) {
	var req ws.AnswerRequest
	if err := json.Unmarshal(raw, &req); err != nil || req.QuestionID == "" {
		conn.WriteError("question_id is required")
		return
	}

	err := ctrl.SetAnswer(context.Background(), req.QuestionID, model.Answer{
		Value: req.Value,
		Marks: req.Marks,
	})
	if err != nil {
		conn.WriteError(answerErrorMessage(err))
		return
	}

	conn.WriteTyped(ws.SavedResponse{
		Event:         ws.EventSaved,
		QuestionID:    req.QuestionID,
		AnsweredCount: ctrl.View().AnsweredCount,
	})
}

func (h *WSHandler) handleNavigate(conn *ws.Conn, ctrl *session.Controller, raw []byte) {
	var req ws.NavigateRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		conn.WriteError("malformed navigate request")
		return
	}

	if err := ctrl.Navigate(context.Background(), req.Index); err != nil {
		conn.WriteError(answerErrorMessage(err))
		return
	}

	conn.WriteTyped(ws.StateResponse{Event: ws.EventState, State: ctrl.View()})
}

func (h *WSHandler) handleSignal(conn *ws.Conn, ctrl *session.Controller, key model.SessionKey, raw []byte) {
	var req ws.SignalRequest
	if err := json.Unmarshal(raw, &req); err != nil || req.Signal == "" {
		conn.WriteError("signal is required")
		return
	}

	res, err := ctrl.RecordSignal(context.Background(), proctor.Signal(req.Signal))
	if err != nil {
		conn.WriteError("signal processing failed")
		return
	}

	switch res.Outcome {
	case proctor.OutcomeWarn, proctor.OutcomeEscalate, proctor.OutcomeDeterrence:
		h.sessionService.EnqueueViolation(context.Background(), &model.ViolationEvent{
			ExamID:         key.ExamID,
			StudentName:    key.StudentName,
			ClassName:      key.ClassName,
			Signal:         req.Signal,
			ViolationCount: res.ViolationCount,
			Escalated:      res.Outcome == proctor.OutcomeEscalate,
			Deterrence:     res.Outcome == proctor.OutcomeDeterrence,
			OccurredAt:     time.Now(),
		})
	}

	if res.Outcome == proctor.OutcomeWarn {
		conn.WriteTyped(ws.WarningResponse{
			Event:          ws.EventWarning,
			Signal:         req.Signal,
			ViolationCount: res.ViolationCount,
			MaxViolations:  res.MaxViolations,
		})
	}
	// The escalate path replies through the notifier's graded push.
}

func (h *WSHandler) handleSubmit(conn *ws.Conn, ctrl *session.Controller, key model.SessionKey) {
	record, err := ctrl.Submit(context.Background())
	if err != nil {
		conn.WriteError("submit failed")
		return
	}

	conn.WriteTyped(ws.GradedResponse{
		Event:   ws.EventGraded,
		Trigger: string(record.Trigger),
		Record:  record,
	})
	h.publishFinalized(key, record)
}

func (h *WSHandler) handleHint(conn *ws.Conn, ctrl *session.Controller, exam *model.Exam, raw []byte) {
	if h.hintService == nil || !exam.AllowHints {
		conn.WriteError("hints are disabled for this exam")
		return
	}

	var req ws.HintRequest
	if err := json.Unmarshal(raw, &req); err != nil || req.QuestionID == "" {
		conn.WriteError("question_id is required")
		return
	}

	// The session's order, so hint prompts list options as the student
	// sees them.
	var target *model.QuestionForStudent
	questions := service.SanitizeQuestions(ctrl.OrderedQuestions())
	for i := range questions {
		if questions[i].ID.String() == req.QuestionID {
			target = &questions[i]
			break
		}
	}
	if target == nil {
		conn.WriteError("question does not belong to this exam")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	text, err := h.hintService.ForQuestion(ctx, target)
	if err != nil {
		conn.WriteError("a hint is not available right now, try again shortly")
		return
	}

	conn.WriteTyped(ws.HintResponse{
		Event:      ws.EventHint,
		QuestionID: req.QuestionID,
		Hint:       text,
	})
}

func (h *WSHandler) publishFinalized(key model.SessionKey, record *model.ResultRecord) {
	h.sessionService.PublishMonitorEvent(context.Background(), &model.MonitorEvent{
		Kind:        "finalized",
		ExamID:      key.ExamID,
		StudentName: key.StudentName,
		ClassName:   key.ClassName,
		Trigger:     record.Trigger,
		At:          time.Now(),
	})
}

func answerErrorMessage(err error) string {
	switch {
	case errors.Is(err, session.ErrSessionBlocked):
		return "session is blocked, acknowledge the warning first"
	case errors.Is(err, session.ErrSessionClosed):
		return "session is already finalized"
	case errors.Is(err, session.ErrUnknownQuestion):
		return "question does not belong to this session"
	case errors.Is(err, session.ErrAnswerShape):
		return "answer shape does not match the question type"
	case errors.Is(err, session.ErrIndexOutOfRange):
		return "navigation index out of range"
	default:
		return "request failed"
	}
}
