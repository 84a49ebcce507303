// Package ollama is the inference gateway: a stateless HTTP adapter over an
// Ollama-compatible endpoint covering the chat, vision, embedding, and model
// listing capabilities. Each capability surfaces exactly one error kind.
package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/vivi-ai/backend/pkg/circuitbreaker"
	"github.com/vivi-ai/backend/pkg/logger"
	"github.com/vivi-ai/backend/pkg/retry"
)

var (
	ErrUnavailable     = errors.New("ai service unavailable")
	ErrAnalysisFailed  = errors.New("document processing failed")
	ErrEmbeddingFailed = errors.New("embedding generation failed")
	ErrModelListFailed = errors.New("model listing failed")
)

const (
	DefaultBaseURL       = "http://localhost:11434"
	DefaultTimeout       = 30 * time.Second
	DefaultVisionTimeout = 60 * time.Second
)

// visionPrompt is the fixed extraction instruction sent with document images.
const visionPrompt = `Analyze this document and extract all key information including:
1. Document type and purpose
2. Main topics and sections
3. Important facts, figures, and dates
4. Key people, organizations, or entities mentioned
5. Any questions that could be answered from this content

Format the response as structured JSON with clear categories.`

type Config struct {
	BaseURL        string
	ChatModel      string
	VisionModel    string
	EmbeddingModel string
	Timeout        time.Duration
	VisionTimeout  time.Duration
}

// Client carries only configuration; it holds no mutable state beyond the
// circuit breaker guarding the remote endpoint.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	chatModel      string
	visionModel    string
	embeddingModel string
	timeout        time.Duration
	visionTimeout  time.Duration
	cb             *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatResult struct {
	Content   string
	EvalCount int
}

type ModelInfo struct {
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	ModifiedAt string `json:"modified_at"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	TopK        int     `json:"top_k"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  chatOptions   `json:"options"`
}

type chatResponse struct {
	Message   ChatMessage `json:"message"`
	EvalCount int         `json:"eval_count"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Images  []string        `json:"images"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateResponse struct {
	Response string `json:"response"`
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

type tagsResponse struct {
	Models []ModelInfo `json:"models"`
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.VisionTimeout == 0 {
		cfg.VisionTimeout = DefaultVisionTimeout
	}

	cb := circuitbreaker.NewCircuitBreaker("ollama", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	logger.Info("Ollama client initialized",
		zap.String("base_url", cfg.BaseURL),
		zap.String("chat_model", cfg.ChatModel),
		zap.String("vision_model", cfg.VisionModel),
		zap.String("embedding_model", cfg.EmbeddingModel),
	)

	return &Client{
		httpClient:     &http.Client{},
		baseURL:        cfg.BaseURL,
		chatModel:      cfg.ChatModel,
		visionModel:    cfg.VisionModel,
		embeddingModel: cfg.EmbeddingModel,
		timeout:        cfg.Timeout,
		visionTimeout:  cfg.VisionTimeout,
		cb:             cb,
		retryConfig:    retryConfig,
	}
}

func (c *Client) ChatModel() string      { return c.chatModel }
func (c *Client) VisionModel() string    { return c.visionModel }
func (c *Client) EmbeddingModel() string { return c.embeddingModel }

// Chat sends a multi-turn conversation and returns the assistant reply plus
// the evaluation count used as token usage.
func (c *Client) Chat(ctx context.Context, model string, messages []ChatMessage) (*ChatResult, error) {
	if model == "" {
		model = c.chatModel
	}

	reqBody := chatRequest{
		Model:    model,
		Messages: messages,
		Stream:   false,
		Options: chatOptions{
			Temperature: 0.7,
			TopP:        0.9,
			TopK:        40,
		},
	}

	var result *ChatResult
	err := c.cb.Execute(ctx, func() error {
		var resp chatResponse
		if err := c.post(ctx, "/api/chat", c.timeout, reqBody, &resp); err != nil {
			return err
		}
		result = &ChatResult{
			Content:   resp.Message.Content,
			EvalCount: resp.EvalCount,
		}
		return nil
	})

	if err != nil {
		logger.Error("Ollama chat error", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return result, nil
}

// AnalyzeDocument sends file bytes to a vision-capable model with the fixed
// extraction instruction and returns the model's free-form reply. Callers
// must not assume the reply is valid JSON.
func (c *Client) AnalyzeDocument(ctx context.Context, model string, fileBytes []byte) (string, error) {
	if model == "" {
		model = c.visionModel
	}

	reqBody := generateRequest{
		Model:   model,
		Prompt:  visionPrompt,
		Images:  []string{base64.StdEncoding.EncodeToString(fileBytes)},
		Stream:  false,
		Options: generateOptions{Temperature: 0.3},
	}

	var resp generateResponse
	err := c.cb.Execute(ctx, func() error {
		return c.post(ctx, "/api/generate", c.visionTimeout, reqBody, &resp)
	})

	if err != nil {
		logger.Error("Ollama document processing error", zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
	}

	return resp.Response, nil
}

// Embed returns the embedding vector for the given text. Transient transport
// failures are retried with backoff; the wire contract is unchanged.
func (c *Client) Embed(ctx context.Context, model, text string) ([]float32, error) {
	if model == "" {
		model = c.embeddingModel
	}

	reqBody := embedRequest{Model: model, Prompt: text}

	var embedding []float32
	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			var resp embedResponse
			if err := c.post(ctx, "/api/embeddings", c.timeout, reqBody, &resp); err != nil {
				return err
			}
			embedding = make([]float32, len(resp.Embedding))
			for i, v := range resp.Embedding {
				embedding[i] = float32(v)
			}
			return nil
		})
	})

	if err != nil {
		logger.Error("Ollama embedding error", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	return embedding, nil
}

// ListModels returns the models available on the remote endpoint.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelListFailed, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Error("Failed to get available models", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrModelListFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrModelListFailed, resp.StatusCode)
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelListFailed, err)
	}

	return tags.Models, nil
}

func (c *Client) post(ctx context.Context, path string, timeout time.Duration, body, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("status %d: failed to read response", resp.StatusCode)
		}
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
