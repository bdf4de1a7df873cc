package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/examind/examind-backend/internal/config"
	"github.com/examind/examind-backend/internal/model"
	"github.com/examind/examind-backend/internal/repository"
	"github.com/examind/examind-backend/internal/response"
)

// Domain Errors
var (
	ErrExamNotDraft     = errors.New("exam status is not DRAFT")
	ErrExamNotPublished = errors.New("exam status is not PUBLISHED")
	ErrNoQuestions      = errors.New("exam has no questions, cannot publish")
	ErrBadGroupShape    = errors.New("group question must have exactly four sub-items")
	ErrCodeTaken        = errors.New("exam code already in use")
)

// ExamService handles exam authoring, publication and Redis cache warming.
type ExamService struct {
	examRepo   *repository.ExamRepository
	rdb        *redis.Client
	bcryptCost int
	log        zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(examRepo *repository.ExamRepository, rdb *redis.Client, bcryptCost int, log zerolog.Logger) *ExamService {
	return &ExamService{
		examRepo:   examRepo,
		rdb:        rdb,
		bcryptCost: bcryptCost,
		log:        log.With().Str("component", "exam_service").Logger(),
	}
}

// GetByID retrieves an exam by its UUID.
func (s *ExamService) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	return s.examRepo.GetByID(ctx, id)
}

// List retrieves exam headers with pagination.
func (s *ExamService) List(ctx context.Context, page, perPage int) ([]model.Exam, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}

	exams, total, err := s.examRepo.ListPaginated(ctx, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, err
	}
	if exams == nil {
		exams = []model.Exam{}
	}

	pagination := &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: (total + perPage - 1) / perPage,
	}
	return exams, pagination, nil
}

// Create builds a DRAFT exam from the authoring request. The security code is
// bcrypt-hashed before it touches storage; the plaintext is never kept.
func (s *ExamService) Create(ctx context.Context, req *model.CreateExamRequest) (*model.Exam, error) {
	if _, err := s.examRepo.GetByCode(ctx, req.Code); err == nil {
		return nil, ErrCodeTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.SecurityCode), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash security code: %w", err)
	}

	questions, err := buildQuestions(req.Questions)
	if err != nil {
		return nil, err
	}

	exam := &model.Exam{
		Code:            req.Code,
		SecurityHash:    string(hash),
		Title:           req.Title,
		ClassName:       req.ClassName,
		DurationMinutes: req.DurationMinutes,
		MaxViolations:   req.MaxViolations,
		AllowHints:      req.AllowHints,
		AllowReview:     req.AllowReview,
		MixQuestions:    req.MixQuestions,
		Grading:         req.Grading,
		Questions:       questions,
		Status:          model.ExamStatusDraft,
	}
	if exam.Grading.GroupGradingMethod == "" {
		exam.Grading.GroupGradingMethod = model.GroupGradingProgressive
	}

	if err := s.examRepo.Create(ctx, exam); err != nil {
		return nil, err
	}
	s.log.Info().Str("exam_id", exam.ID.String()).Str("code", exam.Code).Msg("Exam created")
	return exam, nil
}

// Update rewrites a DRAFT exam's definition.
func (s *ExamService) Update(ctx context.Context, id uuid.UUID, req *model.UpdateExamRequest) (*model.Exam, error) {
	exam, err := s.examRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if exam.Status != model.ExamStatusDraft {
		return nil, ErrExamNotDraft
	}

	if req.Title != "" {
		exam.Title = req.Title
	}
	if req.ClassName != "" {
		exam.ClassName = req.ClassName
	}
	if req.DurationMinutes > 0 {
		exam.DurationMinutes = req.DurationMinutes
	}
	if req.MaxViolations != nil {
		exam.MaxViolations = *req.MaxViolations
	}
	if req.AllowHints != nil {
		exam.AllowHints = *req.AllowHints
	}
	if req.AllowReview != nil {
		exam.AllowReview = *req.AllowReview
	}
	if req.MixQuestions != nil {
		exam.MixQuestions = *req.MixQuestions
	}
	if req.Grading != nil {
		exam.Grading = *req.Grading
	}
	if len(req.Questions) > 0 {
		questions, err := buildQuestions(req.Questions)
		if err != nil {
			return nil, err
		}
		exam.Questions = questions
	}

	if err := s.examRepo.Update(ctx, exam); err != nil {
		return nil, err
	}
	return exam, nil
}

// Publish transitions an exam to PUBLISHED and warms the Redis cache with
// both the student-facing payload and the full definition.
func (s *ExamService) Publish(ctx context.Context, examID uuid.UUID) error {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return fmt.Errorf("get exam: %w", err)
	}
	if exam.Status != model.ExamStatusDraft {
		return ErrExamNotDraft
	}

	if err := s.WarmExamCache(ctx, exam); err != nil {
		return err
	}
	if err := s.examRepo.UpdateStatus(ctx, examID, model.ExamStatusPublished); err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	s.log.Info().Str("exam_id", examID.String()).Msg("Exam published")
	return nil
}

// Archive closes an exam to new sessions. Stored results stay readable.
func (s *ExamService) Archive(ctx context.Context, examID uuid.UUID) error {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return err
	}
	if exam.Status != model.ExamStatusPublished {
		return ErrExamNotPublished
	}

	if err := s.examRepo.UpdateStatus(ctx, examID, model.ExamStatusArchived); err != nil {
		return err
	}

	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, config.CacheKey.ExamPayloadKey(examID.String()))
	pipe.Del(ctx, config.CacheKey.ExamDefinitionKey(examID.String()))
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Failed to evict archived exam from cache")
	}
	return nil
}

// Delete removes a DRAFT exam entirely.
func (s *ExamService) Delete(ctx context.Context, examID uuid.UUID) error {
	return s.examRepo.Delete(ctx, examID)
}

// WarmExamCache loads an exam's payload and definition from PostgreSQL into
// Redis. Used by Publish and PrewarmAllCaches.
func (s *ExamService) WarmExamCache(ctx context.Context, exam *model.Exam) error {
	if len(exam.Questions) == 0 {
		return ErrNoQuestions
	}

	payload := SanitizePayload(exam)
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	definitionJSON, err := json.Marshal(exam)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.ExamPayloadKey(exam.ID.String()), payloadJSON, 0)
	pipe.Set(ctx, config.CacheKey.ExamDefinitionKey(exam.ID.String()), definitionJSON, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache to redis: %w", err)
	}

	s.log.Debug().
		Str("exam_id", exam.ID.String()).
		Int("questions", len(exam.Questions)).
		Msg("Cache warmed")
	return nil
}

// PrewarmAllCaches loads all published exams into Redis on application
// startup, so the first student never waits on a cold cache.
func (s *ExamService) PrewarmAllCaches(ctx context.Context) error {
	exams, err := s.examRepo.ListPublished(ctx)
	if err != nil {
		return fmt.Errorf("list published exams: %w", err)
	}
	if len(exams) == 0 {
		s.log.Info().Msg("No published exams to prewarm")
		return nil
	}

	warmed := 0
	for i := range exams {
		full, err := s.examRepo.GetByID(ctx, exams[i].ID)
		if err != nil {
			s.log.Warn().Err(err).Str("exam_id", exams[i].ID.String()).Msg("Failed to load exam, skipping")
			continue
		}
		if err := s.WarmExamCache(ctx, full); err != nil {
			s.log.Warn().Err(err).Str("exam_id", exams[i].ID.String()).Msg("Failed to warm exam, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().Int("warmed", warmed).Int("total", len(exams)).Msg("Exam caches prewarmed")
	return nil
}

// SanitizeQuestions strips correct answers, truth values and reference
// answers from a question list, keeping the list's order and any option
// permutation it already carries.
func SanitizeQuestions(questions []model.Question) []model.QuestionForStudent {
	sanitized := make([]model.QuestionForStudent, len(questions))
	for i, q := range questions {
		sq := model.QuestionForStudent{
			ID:           q.ID,
			Type:         q.Type,
			Prompt:       q.Prompt,
			Section:      q.Section,
			Image:        q.Image,
			Options:      q.Options,
			OptionImages: q.OptionImages,
		}
		for _, sub := range q.SubItems {
			sq.SubItems = append(sq.SubItems, model.SubItemForStudent{
				ID:      sub.ID,
				Content: sub.Content,
				Image:   sub.Image,
			})
		}
		sanitized[i] = sq
	}
	return sanitized
}

// SanitizePayload produces the student-facing payload in the authored
// question order. Session-bound callers use SessionPayload instead, so the
// per-session presentation order is what the student actually receives.
func SanitizePayload(exam *model.Exam) *model.ExamPayload {
	return &model.ExamPayload{
		ExamID:          exam.ID,
		Title:           exam.Title,
		DurationMinutes: exam.DurationMinutes,
		MaxViolations:   exam.MaxViolations,
		AllowHints:      exam.AllowHints,
		Questions:       SanitizeQuestions(exam.Questions),
	}
}

// SessionPayload sanitizes the exam in the session's persisted presentation
// order. The ordered list carries both the question shuffle and any mixed
// option order, neither of which survives sanitizing the authored questions.
func SessionPayload(exam *model.Exam, ordered []model.Question) *model.ExamPayload {
	payload := SanitizePayload(exam)
	payload.Questions = SanitizeQuestions(ordered)
	return payload
}

// buildQuestions converts authoring requests into stored questions, assigning
// IDs and enforcing the fixed group shape.
func buildQuestions(reqs []model.AddQuestionRequest) ([]model.Question, error) {
	questions := make([]model.Question, 0, len(reqs))
	for i, req := range reqs {
		q := model.Question{
			ID:      uuid.New(),
			Type:    model.QuestionType(req.Type),
			Prompt:  req.Prompt,
			Section: req.Section,
			Image:   req.Image,
		}
		switch q.Type {
		case model.QuestionTypeChoice:
			q.Options = req.Options
			q.OptionImages = req.OptionImages
			q.CorrectOption = req.CorrectOption
			q.MixOptions = req.MixOptions
			if len(q.Options) < 2 || q.CorrectOption == "" {
				return nil, fmt.Errorf("question %d: choice needs options and a correct option", i+1)
			}
		case model.QuestionTypeGroup:
			if len(req.SubItems) != model.GroupSize {
				return nil, fmt.Errorf("question %d: %w", i+1, ErrBadGroupShape)
			}
			for j, sub := range req.SubItems {
				q.SubItems = append(q.SubItems, model.SubItem{
					ID:      fmt.Sprintf("s%d", j+1),
					Content: sub.Content,
					Image:   sub.Image,
					IsTrue:  sub.IsTrue,
				})
			}
		case model.QuestionTypeText:
			if req.ReferenceAnswer == "" {
				return nil, fmt.Errorf("question %d: text needs a reference answer", i+1)
			}
			q.ReferenceAnswer = req.ReferenceAnswer
		}
		questions = append(questions, q)
	}
	return questions, nil
}
