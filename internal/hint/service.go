package hint

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/examind/examind-backend/internal/config"
	"github.com/examind/examind-backend/internal/model"
)

// ErrDisabled is returned when no API key is configured.
var ErrDisabled = errors.New("hint service is not configured")

const maxRetries = 3

const systemInstruction = `You are a patient exam tutor. Give the student a nudge toward the answer, never the answer itself.

Formatting rules:
1. Do NOT use LaTeX. Write formulas as plain text (write "n < 9", not "\( n < 9 \)").
2. Do NOT draw Markdown tables. Use bullet lists or prose instead.
3. Only basic Markdown: bold, italics, code blocks and headings.

Keep it short: two or three sentences.`

// Service generates AI hints for exam questions through the Gemini API.
// Every call passes through the shared limiter and a bounded retry loop with
// exponential backoff and jitter.
type Service struct {
	client  *genai.Client
	model   string
	limiter *Limiter
	log     zerolog.Logger
}

// NewService creates the hint service. Returns ErrDisabled when the API key
// is empty; callers treat that as "hints off" rather than a startup failure.
func NewService(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Service, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, ErrDisabled
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &Service{
		client:  client,
		model:   cfg.HintModel,
		limiter: NewLimiter(cfg.HintMinInterval),
		log:     log.With().Str("component", "hint_service").Logger(),
	}, nil
}

// ForQuestion generates a hint for one question. The prompt carries the
// question text and options but never the answer key, so a leaked response
// cannot reveal correctness.
func (s *Service) ForQuestion(ctx context.Context, q *model.QuestionForStudent) (string, error) {
	prompt := buildPrompt(q)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1))*time.Second +
				time.Duration(rand.Int63n(int64(time.Second)))
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		s.limiter.Wait()

		resp, err := s.client.Models.GenerateContent(ctx, s.model,
			genai.Text(prompt),
			&genai.GenerateContentConfig{
				SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
			})
		if err != nil {
			lastErr = err
			s.log.Warn().Err(err).Int("attempt", attempt+1).Msg("Hint generation failed")
			continue
		}

		text := resp.Text()
		if text == "" {
			lastErr = errors.New("empty response")
			continue
		}
		return text, nil
	}

	return "", fmt.Errorf("hint generation exhausted retries: %w", lastErr)
}

func buildPrompt(q *model.QuestionForStudent) string {
	prompt := fmt.Sprintf("The student is stuck on this question:\n\n%s", q.Prompt)
	if len(q.Options) > 0 {
		prompt += "\n\nOptions:"
		for _, opt := range q.Options {
			prompt += "\n- " + opt
		}
	}
	for _, sub := range q.SubItems {
		prompt += "\n- (true/false) " + sub.Content
	}
	return prompt
}
