package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/examind/examind-backend/internal/config"
	"github.com/examind/examind-backend/internal/model"
	"github.com/examind/examind-backend/internal/repository"
	"github.com/examind/examind-backend/internal/response"
	"github.com/examind/examind-backend/internal/session"
)

// Join errors.
var (
	ErrExamNotFound        = errors.New("no exam matches that code")
	ErrExamNotOpen         = errors.New("exam is not currently open")
	ErrInvalidSecurityCode = errors.New("security code is incorrect")
	ErrAttemptCompleted    = errors.New("attempt already completed")
)

// SessionService handles exam entry and the bridge between live controllers
// and durable storage.
type SessionService struct {
	examRepo      *repository.ExamRepository
	resultRepo    *repository.ResultRepository
	violationRepo *repository.ViolationRepository
	rdb           *redis.Client
	tokens        *TokenService
	manager       *session.Manager
	log           zerolog.Logger
}

// NewSessionService creates a new SessionService.
func NewSessionService(
	examRepo *repository.ExamRepository,
	resultRepo *repository.ResultRepository,
	violationRepo *repository.ViolationRepository,
	rdb *redis.Client,
	tokens *TokenService,
	manager *session.Manager,
	log zerolog.Logger,
) *SessionService {
	return &SessionService{
		examRepo:      examRepo,
		resultRepo:    resultRepo,
		violationRepo: violationRepo,
		rdb:           rdb,
		tokens:        tokens,
		manager:       manager,
		log:           log.With().Str("component", "session_service").Logger(),
	}
}

// JoinResult is handed back to a student who passed the entry gate.
type JoinResult struct {
	Token    string             `json:"token"`
	Restored bool               `json:"restored"`
	Payload  *model.ExamPayload `json:"payload"`
	State    session.View       `json:"state"`
}

// LobbyInfo is the pre-join headline of a published exam: enough for the
// student to see what they are about to enter and whether the window is open.
type LobbyInfo struct {
	Title           string                   `json:"title"`
	ClassName       string                   `json:"class_name,omitempty"`
	DurationMinutes int                      `json:"duration_minutes"`
	Availability    model.AvailabilityStatus `json:"availability"`
	AvailableFrom   *time.Time               `json:"available_from,omitempty"`
	AvailableUntil  *time.Time               `json:"available_until,omitempty"`
}

// Lobby looks up an exam by code without joining it. Unpublished exams are
// indistinguishable from missing ones.
func (s *SessionService) Lobby(ctx context.Context, code string) (*LobbyInfo, error) {
	exam, err := s.examRepo.GetByCode(ctx, strings.TrimSpace(code))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrExamNotFound
		}
		return nil, err
	}
	if exam.Status != model.ExamStatusPublished {
		return nil, ErrExamNotFound
	}

	return &LobbyInfo{
		Title:           exam.Title,
		ClassName:       exam.ClassName,
		DurationMinutes: exam.DurationMinutes,
		Availability:    exam.Availability(time.Now()),
		AvailableFrom:   exam.Grading.AvailableFrom,
		AvailableUntil:  exam.Grading.AvailableUntil,
	}, nil
}

// Join is the entry gate: code lookup, status and availability checks,
// security code verification, completed-attempt check, then token issuance
// and controller attach. Name and class are trimmed before they become part
// of the session identity so stray whitespace cannot fork a session.
func (s *SessionService) Join(ctx context.Context, req *model.JoinExamRequest) (*JoinResult, error) {
	exam, err := s.examRepo.GetByCode(ctx, strings.TrimSpace(req.Code))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrExamNotFound
		}
		return nil, err
	}

	if exam.Status != model.ExamStatusPublished {
		return nil, ErrExamNotOpen
	}
	if exam.Availability(time.Now()) != model.AvailabilityOpen {
		return nil, ErrExamNotOpen
	}

	if err := bcrypt.CompareHashAndPassword([]byte(exam.SecurityHash), []byte(req.SecurityCode)); err != nil {
		return nil, ErrInvalidSecurityCode
	}

	key := model.SessionKey{
		ExamID:      exam.ID,
		StudentName: strings.TrimSpace(req.StudentName),
		ClassName:   strings.TrimSpace(req.ClassName),
	}

	// A stored result blocks re-entry outright. A live or snapshotted
	// session, by contrast, is resumed.
	if _, err := s.resultRepo.GetByIdentity(ctx, key.ExamID, key.StudentName, key.ClassName); err == nil {
		return nil, ErrAttemptCompleted
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	ctrl, restored, err := s.manager.Attach(ctx, key, exam)
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.GenerateSessionToken(key)
	if err != nil {
		return nil, err
	}

	s.PublishMonitorEvent(ctx, &model.MonitorEvent{
		Kind:        "joined",
		ExamID:      key.ExamID,
		StudentName: key.StudentName,
		ClassName:   key.ClassName,
		At:          time.Now(),
	})

	s.log.Info().
		Str("exam_id", exam.ID.String()).
		Str("student", key.StudentName).
		Bool("restored", restored).
		Msg("Student joined exam")

	return &JoinResult{
		Token:    token,
		Restored: restored,
		Payload:  SessionPayload(exam, ctrl.OrderedQuestions()),
		State:    ctrl.View(),
	}, nil
}

// LoadExam reads the full exam definition, preferring the Redis cache warmed
// at publish time and falling back to PostgreSQL.
func (s *SessionService) LoadExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error) {
	raw, err := s.rdb.Get(ctx, config.CacheKey.ExamDefinitionKey(examID.String())).Result()
	if err == nil {
		var exam model.Exam
		if err := json.Unmarshal([]byte(raw), &exam); err == nil {
			return &exam, nil
		}
		s.log.Warn().Str("exam_id", examID.String()).Msg("Malformed cached definition, falling back to database")
	} else if !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Msg("Definition cache read failed, falling back to database")
	}
	return s.examRepo.GetByID(ctx, examID)
}

// Attach resumes (or lazily rebuilds) the live controller for a validated
// session identity. Used by the WebSocket stream after a reconnect, when the
// controller may have been lost to a server restart but the snapshot wasn't.
func (s *SessionService) Attach(ctx context.Context, key model.SessionKey) (*session.Controller, error) {
	if ctrl := s.manager.Get(key); ctrl != nil && !ctrl.Finalized() {
		return ctrl, nil
	}

	exam, err := s.LoadExam(ctx, key.ExamID)
	if err != nil {
		return nil, err
	}
	ctrl, _, err := s.manager.Attach(ctx, key, exam)
	return ctrl, err
}

// EnqueueViolation pushes one proctoring event (counted violation or
// audit-only deterrence) onto the durable queue and mirrors it to the live
// monitor channel. Both paths are fire-and-forget.
func (s *SessionService) EnqueueViolation(ctx context.Context, v *model.ViolationEvent) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistViolationsQueue, raw).Err(); err != nil {
		s.log.Error().Err(err).Msg("Failed to enqueue violation")
	}

	s.PublishMonitorEvent(ctx, &model.MonitorEvent{
		Kind:        "violation",
		ExamID:      v.ExamID,
		StudentName: v.StudentName,
		ClassName:   v.ClassName,
		Violation:   v,
		At:          v.OccurredAt,
	})
}

// PublishMonitorEvent fans one event out to the exam's PubSub channel.
// Failures are logged and swallowed: the live feed is best-effort.
func (s *SessionService) PublishMonitorEvent(ctx context.Context, ev *model.MonitorEvent) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return
	}
	channel := config.CacheKey.ExamMonitorChannel(ev.ExamID.String())
	if err := s.rdb.Publish(ctx, channel, raw).Err(); err != nil {
		s.log.Warn().Err(err).Str("channel", channel).Msg("Monitor publish failed")
	}
}

// ListResults retrieves stored results for one exam with pagination.
func (s *SessionService) ListResults(ctx context.Context, examID uuid.UUID, page, perPage int, className *string) ([]model.ResultRecord, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	if perPage > 100 {
		perPage = 100
	}

	records, total, err := s.resultRepo.ListByExam(ctx, examID, page, perPage, className)
	if err != nil {
		return nil, nil, err
	}
	if records == nil {
		records = []model.ResultRecord{}
	}

	pagination := &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: int(total),
		TotalPages: (int(total) + perPage - 1) / perPage,
	}
	return records, pagination, nil
}

// GetResult retrieves one stored result by session identity.
func (s *SessionService) GetResult(ctx context.Context, key model.SessionKey) (*model.ResultRecord, error) {
	return s.resultRepo.GetByIdentity(ctx, key.ExamID, key.StudentName, key.ClassName)
}

// ListViolations returns the stored proctoring trail for one exam, newest
// first. Counted violations and deterrence events share the listing; the
// deterrence flag tells them apart.
func (s *SessionService) ListViolations(ctx context.Context, examID uuid.UUID, limit int) ([]model.ViolationEvent, error) {
	if limit < 1 || limit > 500 {
		limit = 200
	}
	return s.violationRepo.ListByExam(ctx, examID, limit)
}

// RedisResultSink hands finalized results to the persistence queue. The
// controller calls Submit from a goroutine, so a slow Redis never stalls
// finalization.
type RedisResultSink struct {
	rdb *redis.Client
}

// NewRedisResultSink creates the queue-backed result sink.
func NewRedisResultSink(rdb *redis.Client) *RedisResultSink {
	return &RedisResultSink{rdb: rdb}
}

// Submit enqueues one result for the batch persistence worker.
func (s *RedisResultSink) Submit(ctx context.Context, record *model.ResultRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	return s.rdb.RPush(ctx, config.WorkerKey.PersistResultsQueue, raw).Err()
}
