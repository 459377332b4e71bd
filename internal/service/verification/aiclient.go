package verification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/swdgrade/similarity-service/internal/config"
	"github.com/swdgrade/similarity-service/internal/models"
)

// maxExcerptChars bounds how much of each document is sent to the model.
const maxExcerptChars = 3000

// Adjudicator judges whether two answer texts are plagiarized copies.
// Labels identify whose answer is whose in the prompt.
type Adjudicator interface {
	Judge(ctx context.Context, text1, text2, label1, label2 string, score float64) (*models.AIJudgment, error)
}

// OpenAIClient adjudicates pairs through the OpenAI chat completions
// API.
type OpenAIClient struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

func NewOpenAIClient(cfg config.OpenAIConfig, logger zerolog.Logger) *OpenAIClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIClient{
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

const systemPrompt = `You are an exam integrity reviewer. Two student answers were flagged as similar by an automated lexical comparison. Decide whether one is plagiarized from the other or both from a common source. Respond with strict JSON only, no markdown, using exactly these fields:
{"is_similar": bool, "confidence_score": number between 0 and 1, "summary": "one sentence verdict", "analysis": "short explanation of the overlapping and differing parts"}`

func (c *OpenAIClient) Judge(ctx context.Context, text1, text2, label1, label2 string, score float64) (*models.AIJudgment, error) {
	userPrompt := fmt.Sprintf(
		"Lexical similarity score: %.4f\n\n--- ANSWER OF %s ---\n%s\n\n--- ANSWER OF %s ---\n%s",
		score,
		strings.ToUpper(label1), truncate(text1, maxExcerptChars),
		strings.ToUpper(label2), truncate(text2, maxExcerptChars),
	)

	reqBody := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
		"temperature": 0.2,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAdjudicatorUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: completion API returned status %d", ErrAdjudicatorUnavailable, resp.StatusCode)
	}

	var completion struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return nil, fmt.Errorf("%w: failed to decode completion response: %v", ErrAdjudicatorUnavailable, err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("%w: completion response has no choices", ErrAdjudicatorUnavailable)
	}

	judgment := parseJudgment(completion.Choices[0].Message.Content)
	c.logger.Debug().
		Bool("is_similar", judgment.IsSimilar).
		Float64("confidence", judgment.Confidence).
		Msg("Adjudicator verdict received")

	return judgment, nil
}

// parseJudgment reads the model's reply. Models occasionally wrap the
// JSON in prose or code fences, so the outermost object is cut out
// before decoding. A reply without usable JSON degrades to a keyword
// verdict at half confidence.
func parseJudgment(content string) *models.AIJudgment {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		var judgment models.AIJudgment
		if err := json.Unmarshal([]byte(content[start:end+1]), &judgment); err == nil {
			return &judgment
		}
	}

	lowered := strings.ToLower(content)
	similar := strings.Contains(lowered, "plagiar") ||
		strings.Contains(lowered, "is similar") ||
		strings.Contains(lowered, "copied")
	return &models.AIJudgment{
		IsSimilar:  similar,
		Confidence: 0.5,
		Summary:    "verdict inferred from unstructured model reply",
		Analysis:   truncate(content, 500),
	}
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
