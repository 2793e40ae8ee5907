// Package llm decorates activity descriptions through an OpenAI-compatible
// chat completions endpoint. The enhancer is best-effort: it never propagates
// a failure, falling back to the activity's own description.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"boardfill/internal/domain"
)

// DefaultSystemPrompt matches the tone of the descriptions the tool writes.
const DefaultSystemPrompt = "Você é um assistente que escreve descrições de tasks de desenvolvimento de software " +
	"em português brasileiro, de forma concisa e técnica. " +
	"Escreva um parágrafo curto (2-4 frases) descrevendo a atividade realizada. " +
	"Use linguagem formal e mencione o impacto ou objetivo da atividade quando possível. " +
	"Não repita o título. Não use marcadores ou listas."

const maxAttempts = 5

// Enhancer calls the chat completions API with a bounded retry loop.
type Enhancer struct {
	BaseURL string
	Model   string
	APIKey  string

	// BaseDelay scales the exponential backoff; tests shrink it.
	BaseDelay  time.Duration
	HTTPClient *http.Client
}

func New(baseURL, model, apiKey string) *Enhancer {
	if apiKey == "" {
		apiKey = "ollama"
	}
	return &Enhancer{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Model:      model,
		APIKey:     apiKey,
		BaseDelay:  time.Second,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Enhance returns an enriched description for the activity, or the original
// description (possibly empty) on any failure. It retries transient errors
// with exponential backoff, honoring a Retry-After header on 429.
func (e *Enhancer) Enhance(ctx context.Context, a domain.Activity, systemPrompt string) string {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	desc := a.Description
	if desc == "" {
		desc = "(sem descrição)"
	}
	userMessage := fmt.Sprintf("Fonte: %s\nTítulo: %s\nData: %s\nHoras: %gh\nDescrição bruta: %s\n\nEscreva a descrição da task.",
		a.Source, a.Title, a.Date.Format("2006-01-02"), a.Hours, desc)

	payload, err := json.Marshal(chatRequest{
		Model: e.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userMessage},
		},
		MaxTokens:   300,
		Temperature: 0.3,
	})
	if err != nil {
		return a.Description
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		text, retryAfter, err := e.complete(ctx, payload)
		if err == nil {
			return text
		}
		if retryAfter < 0 {
			// Hard failure, no point retrying.
			return a.Description
		}
		delay := retryAfter
		if delay == 0 {
			delay = e.BaseDelay << attempt
		}
		if attempt == maxAttempts-1 || !sleep(ctx, delay) {
			return a.Description
		}
	}
	return a.Description
}

// complete makes one attempt. A negative retryAfter means the error is not
// retryable; zero means use the backoff schedule.
func (e *Enhancer) complete(ctx context.Context, payload []byte) (text string, retryAfter time.Duration, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", -1, err
	}
	req.Header.Set("Authorization", "Bearer "+e.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, err
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		after := time.Duration(0)
		if v := resp.Header.Get("Retry-After"); v != "" {
			if secs, convErr := strconv.ParseFloat(v, 64); convErr == nil {
				after = time.Duration(secs * float64(time.Second))
			}
		}
		return "", after, fmt.Errorf("llm: rate limited")
	}
	if resp.StatusCode != http.StatusOK {
		return "", -1, fmt.Errorf("llm: HTTP %d", resp.StatusCode)
	}
	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", 0, fmt.Errorf("llm: decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", 0, fmt.Errorf("llm: empty choices")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), 0, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
