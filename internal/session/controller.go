package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/examind/examind-backend/internal/model"
	"github.com/examind/examind-backend/internal/proctor"
	"github.com/examind/examind-backend/internal/scoring"
	"github.com/examind/examind-backend/internal/shuffle"
	"github.com/rs/zerolog"
)

// State enumerates the controller's lifecycle.
type State string

const (
	StateInitializing State = "initializing"
	StateActive       State = "active"
	StateFinalizing   State = "finalizing"
	StateFinalized    State = "finalized"
)

// Domain errors surfaced to the transport layer.
var (
	ErrSessionClosed   = errors.New("session is already finalized")
	ErrSessionBlocked  = errors.New("session is blocked pending violation acknowledgement")
	ErrUnknownQuestion = errors.New("question does not belong to this session")
	ErrAnswerShape     = errors.New("answer shape does not match the question type")
	ErrIndexOutOfRange = errors.New("navigation index out of range")
)

// ResultSink receives the finalized ResultRecord. The hand-off is
// fire-and-forget: the controller never retries and never rolls back
// finalization on sink failure.
type ResultSink interface {
	Submit(ctx context.Context, record *model.ResultRecord) error
}

// Notification is pushed to the transport when the session changes state
// outside a client request (timer expiry, violation escalation, persistence
// warning after the async hand-off).
type Notification struct {
	Kind           string               `json:"kind"` // "finalized" | "persist_warning"
	Record         *model.ResultRecord  `json:"record,omitempty"`
	PersistWarning string               `json:"persist_warning,omitempty"`
}

// Deps bundles the controller's collaborators. Now and Rand are injectable
// for tests; both default to wall clock and a time-seeded source.
type Deps struct {
	Store SnapshotStore
	Sink  ResultSink
	Now   func() time.Time
	Rand  *rand.Rand
	Log   zerolog.Logger
}

// Controller owns one student's exam session: the shuffled order, the answer
// map, the countdown, and the violation monitor. Every mutation is serialized
// under one mutex and written through to the snapshot store before it is
// acknowledged, which is what makes mid-exam crashes recoverable.
type Controller struct {
	mu sync.Mutex

	key  model.SessionKey
	exam *model.Exam

	store SnapshotStore
	sink  ResultSink
	now   func() time.Time
	log   zerolog.Logger

	state   State
	blocked bool

	ordered      []model.Question
	answers      model.AnswerMap
	currentIndex int
	remaining    int
	startedAt    time.Time

	monitor *proctor.Monitor
	result  *model.ResultRecord

	notify func(Notification)
}

// New builds a controller for the given session key. If a usable snapshot
// exists it is restored in full, shuffle included; otherwise a fresh order is
// computed and immediately persisted so a reload before the first answer
// still sees the same permutation. Returns whether the session was restored.
func New(ctx context.Context, key model.SessionKey, exam *model.Exam, deps Deps) (*Controller, bool, error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Rand == nil {
		deps.Rand = rand.New(rand.NewSource(deps.Now().UnixNano()))
	}

	c := &Controller{
		key:   key,
		exam:  exam,
		store: deps.Store,
		sink:  deps.Sink,
		now:   deps.Now,
		log: deps.Log.With().
			Str("component", "session_controller").
			Str("exam_id", key.ExamID.String()).
			Str("student", key.StudentName).
			Logger(),
		state:   StateInitializing,
		answers: make(model.AnswerMap),
		monitor: proctor.NewMonitor(exam.MaxViolations),
	}

	snap, err := c.store.Load(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("load snapshot: %w", err)
	}

	if snap != nil {
		c.ordered = snap.OrderedQuestions
		if snap.Answers != nil {
			c.answers = snap.Answers
		}
		c.currentIndex = snap.CurrentIndex
		c.remaining = snap.RemainingSeconds
		c.startedAt = snap.StartedAt
		c.monitor.Restore(snap.ViolationCount)
		c.state = StateActive
		c.log.Info().Int("remaining", c.remaining).Msg("Session restored from snapshot")
		return c, true, nil
	}

	if len(exam.Questions) == 0 {
		return nil, false, errors.New("exam has no questions")
	}

	c.ordered = shuffle.Order(exam.Questions, exam.MixQuestions, deps.Rand)
	c.remaining = exam.DurationMinutes * 60
	c.startedAt = c.now()
	c.state = StateActive

	if err := c.store.Save(ctx, key, c.snapshotLocked()); err != nil {
		return nil, false, fmt.Errorf("persist initial snapshot: %w", err)
	}

	c.log.Info().Int("questions", len(c.ordered)).Msg("Session started")
	return c, false, nil
}

// SetNotifier registers the transport callback for out-of-band events.
// Passing nil detaches the previous notifier.
func (c *Controller) SetNotifier(fn func(Notification)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notify = fn
}

// Key returns the composite session key.
func (c *Controller) Key() model.SessionKey {
	return c.key
}

// OrderedQuestions returns the persisted presentation order.
func (c *Controller) OrderedQuestions() []model.Question {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ordered
}

// SetAnswer records the student's answer for one question and writes the
// snapshot through before returning. Rejected while blocked or closed.
func (c *Controller) SetAnswer(ctx context.Context, questionID string, ans model.Answer) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.acceptingInputLocked(); err != nil {
		return err
	}

	q := c.questionLocked(questionID)
	if q == nil {
		return ErrUnknownQuestion
	}

	switch q.Type {
	case model.QuestionTypeGroup:
		if ans.Marks == nil || ans.Value != "" {
			return ErrAnswerShape
		}
		for subID := range ans.Marks {
			if !hasSubItem(q, subID) {
				return fmt.Errorf("%w: unknown sub-item %q", ErrAnswerShape, subID)
			}
		}
		// Merge with previously recorded sub-item booleans.
		prev := c.answers[questionID].Marks
		merged := make(map[string]bool, len(prev)+len(ans.Marks))
		for k, v := range prev {
			merged[k] = v
		}
		for k, v := range ans.Marks {
			merged[k] = v
		}
		c.answers[questionID] = model.Answer{Marks: merged}
	default:
		if ans.Marks != nil {
			return ErrAnswerShape
		}
		c.answers[questionID] = model.Answer{Value: ans.Value}
	}

	return c.store.Save(ctx, c.key, c.snapshotLocked())
}

// Navigate moves the current-question pointer.
func (c *Controller) Navigate(ctx context.Context, index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.acceptingInputLocked(); err != nil {
		return err
	}
	if index < 0 || index >= len(c.ordered) {
		return ErrIndexOutOfRange
	}

	c.currentIndex = index
	return c.store.Save(ctx, c.key, c.snapshotLocked())
}

// SignalResult reports what a proctoring signal did to the session.
type SignalResult struct {
	Outcome        proctor.Outcome
	ViolationCount int
	MaxViolations  int
	Record         *model.ResultRecord
}

// RecordSignal feeds one environment signal into the violation monitor.
// Below the ceiling the session enters the blocked sub-state (timer keeps
// running); at the ceiling it finalizes immediately, exactly once. Signals
// arriving after finalization has started are ignored.
func (c *Controller) RecordSignal(ctx context.Context, sig proctor.Signal) (SignalResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res := SignalResult{MaxViolations: c.exam.MaxViolations}

	if c.state != StateActive {
		res.ViolationCount = c.monitor.Count()
		return res, nil
	}

	res.Outcome = c.monitor.Record(sig)
	res.ViolationCount = c.monitor.Count()

	switch res.Outcome {
	case proctor.OutcomeEscalate:
		record, err := c.finalizeLocked(ctx, model.TriggerViolations)
		if err != nil {
			return res, err
		}
		res.Record = record
	case proctor.OutcomeWarn:
		c.blocked = true
		if err := c.store.Save(ctx, c.key, c.snapshotLocked()); err != nil {
			return res, err
		}
	}

	return res, nil
}

// Acknowledge clears the blocked sub-state once the student has re-entered
// supervised mode. Idempotent: acknowledging an unblocked session is a no-op,
// so a rejected fullscreen request can simply be retried.
func (c *Controller) Acknowledge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocked = false
}

// Tick advances the countdown by one second. remainingSeconds never drops
// below zero, and hitting zero finalizes the session exactly once. The timer
// keeps running while the session is blocked on a violation warning.
func (c *Controller) Tick(ctx context.Context) (*model.ResultRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateActive {
		return nil, nil
	}

	if c.remaining > 0 {
		c.remaining--
	}

	if c.remaining == 0 {
		return c.finalizeLocked(ctx, model.TriggerTimeout)
	}

	return nil, c.store.Save(ctx, c.key, c.snapshotLocked())
}

// Submit finalizes the session on the student's explicit confirmation.
func (c *Controller) Submit(ctx context.Context) (*model.ResultRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateActive {
		if c.result != nil {
			return c.result, nil
		}
		return nil, ErrSessionClosed
	}
	return c.finalizeLocked(ctx, model.TriggerSubmit)
}

// finalizeLocked performs the one-time active→finalizing→finalized
// transition: score synchronously, drop the snapshot, then hand the record to
// the sink without blocking the caller. A second trigger observes the state
// guard and gets the already-computed record.
func (c *Controller) finalizeLocked(ctx context.Context, trigger model.FinalizeTrigger) (*model.ResultRecord, error) {
	if c.state != StateActive {
		return c.result, nil
	}
	c.state = StateFinalizing
	c.blocked = false

	report := scoring.Score(c.ordered, c.answers, c.exam.Grading)

	record := &model.ResultRecord{
		ExamID:           c.key.ExamID,
		StudentName:      c.key.StudentName,
		ClassName:        c.key.ClassName,
		Score:            report.Score,
		TotalQuestions:   report.Total,
		Counts:           report.Counts,
		Choice:           report.Choice,
		Group:            report.Group,
		Text:             report.Text,
		TimeSpentSeconds: c.exam.DurationMinutes*60 - c.remaining,
		ViolationCount:   c.monitor.Count(),
		Answers:          c.answers,
		Trigger:          trigger,
		FinishedAt:       c.now(),
	}
	c.result = record

	if err := c.store.Delete(ctx, c.key); err != nil {
		// The result stands either way; a stale snapshot only risks a
		// re-entry attempt, which the completed-result check upstream blocks.
		c.log.Warn().Err(err).Msg("Failed to delete snapshot on finalize")
	}

	c.state = StateFinalized
	c.log.Info().
		Str("trigger", string(trigger)).
		Float64("score", record.Score).
		Int("violations", record.ViolationCount).
		Msg("Session finalized")

	notify := c.notify
	if notify != nil && trigger != model.TriggerSubmit {
		notify(Notification{Kind: "finalized", Record: record})
	}

	// Fire-and-forget persistence: the student sees the locally computed
	// result immediately; a sink failure surfaces later as a warning and is
	// never retried here.
	go func() {
		if err := c.sink.Submit(context.Background(), record); err != nil {
			c.log.Error().Err(err).Msg("Result hand-off failed")
			if notify != nil {
				notify(Notification{
					Kind:           "persist_warning",
					PersistWarning: "result could not be stored; your score above is final",
				})
			}
		}
	}()

	return record, nil
}

// View is the transport-facing snapshot of live session state.
type View struct {
	State            State           `json:"state"`
	Blocked          bool            `json:"blocked"`
	CurrentIndex     int             `json:"current_index"`
	RemainingSeconds int             `json:"remaining_seconds"`
	ViolationCount   int             `json:"violation_count"`
	MaxViolations    int             `json:"max_violations"`
	AnsweredCount    int             `json:"answered_count"`
	TotalQuestions   int             `json:"total_questions"`
	Answers          model.AnswerMap `json:"answers"`
}

// View returns the current state for the client (reload sync, progress bar,
// pre-submit unanswered count).
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	done := 0
	for i := range c.ordered {
		if c.answers.Answered(&c.ordered[i]) {
			done++
		}
	}

	return View{
		State:            c.state,
		Blocked:          c.blocked,
		CurrentIndex:     c.currentIndex,
		RemainingSeconds: c.remaining,
		ViolationCount:   c.monitor.Count(),
		MaxViolations:    c.exam.MaxViolations,
		AnsweredCount:    done,
		TotalQuestions:   len(c.ordered),
		Answers:          c.answers,
	}
}

// Finalized reports whether the session reached its terminal state.
func (c *Controller) Finalized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateFinalized
}

// Result returns the finalized record, or nil while the session is live.
func (c *Controller) Result() *model.ResultRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

func (c *Controller) acceptingInputLocked() error {
	switch {
	case c.state != StateActive:
		return ErrSessionClosed
	case c.blocked:
		return ErrSessionBlocked
	}
	return nil
}

func (c *Controller) questionLocked(id string) *model.Question {
	for i := range c.ordered {
		if c.ordered[i].ID.String() == id {
			return &c.ordered[i]
		}
	}
	return nil
}

func hasSubItem(q *model.Question, subID string) bool {
	for _, sub := range q.SubItems {
		if sub.ID == subID {
			return true
		}
	}
	return false
}

func (c *Controller) snapshotLocked() *model.Snapshot {
	return &model.Snapshot{
		Key:              c.key,
		OrderedQuestions: c.ordered,
		Answers:          c.answers,
		CurrentIndex:     c.currentIndex,
		RemainingSeconds: c.remaining,
		ViolationCount:   c.monitor.Count(),
		StartedAt:        c.startedAt,
		SavedAt:          c.now(),
	}
}
