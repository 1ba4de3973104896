// Package ai is a rate-limited client for an OpenAI-compatible chat
// endpoint, used as an optional co-processor by the analyzers. Callers are
// expected to treat every failure as soft and fall back to heuristics.
package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	cerrors "github.com/reelforge/clip-engine/errors"
	"github.com/reelforge/clip-engine/log"
	"github.com/reelforge/clip-engine/metrics"
	"golang.org/x/time/rate"
)

type Config struct {
	BaseURL     *url.URL
	APIKey      string
	Model       string
	BackupModel string
	VisionModel string
	RateLimit   float64
	Timeout     time.Duration
}

// Client serializes all model calls behind a mutex and a rate limiter, so
// concurrent analyzers queue instead of bursting.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	backupModel string
	visionModel string

	mu         sync.Mutex
	limiter    *rate.Limiter
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	rps := cfg.RateLimit
	if rps <= 0 {
		rps = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	baseURL := ""
	if cfg.BaseURL != nil {
		baseURL = strings.TrimRight(cfg.BaseURL.String(), "/")
	}
	return &Client{
		baseURL:     baseURL,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		backupModel: cfg.BackupModel,
		visionModel: cfg.VisionModel,
		limiter:     rate.NewLimiter(rate.Limit(rps), 1),
		httpClient:  &http.Client{Timeout: timeout},
	}
}

var requestBackOff = defaultRequestBackOff

func defaultRequestBackOff() backoff.BackOff {
	backOff := backoff.NewExponentialBackOff()
	backOff.InitialInterval = 500 * time.Millisecond
	backOff.MaxInterval = 5 * time.Second
	backOff.MaxElapsedTime = 0 // don't impose a timeout as part of the retries
	backOff.Reset()
	return backoff.WithMaxRetries(backOff, 3)
}

// message content is either a plain string or a list of typed parts for
// vision requests.
type message struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageRef `json:"image_url,omitempty"`
}

type imageRef struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type CompletionRequest struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Complete sends a text prompt to the primary model, falling back to the
// backup model when the primary fails with an unretriable error.
func (c *Client) Complete(ctx context.Context, jobID string, req CompletionRequest) (string, error) {
	var msgs []message
	if req.System != "" {
		msgs = append(msgs, message{Role: "system", Content: req.System})
	}
	msgs = append(msgs, message{Role: "user", Content: req.Prompt})
	chatReq := chatRequest{Messages: msgs, Temperature: req.Temperature, MaxTokens: req.MaxTokens}

	text, err := c.send(ctx, jobID, c.model, chatReq)
	if err != nil && c.backupModel != "" && c.backupModel != c.model && cerrors.IsUnretriable(err) {
		log.Log(jobID, "model failed, trying backup", "model", c.model, "backup", c.backupModel, "err", err)
		return c.send(ctx, jobID, c.backupModel, chatReq)
	}
	return text, err
}

// Vision sends a text prompt plus one image to the vision model.
func (c *Client) Vision(ctx context.Context, jobID, prompt, imageURL string) (string, error) {
	model := c.visionModel
	if model == "" {
		model = c.model
	}
	return c.send(ctx, jobID, model, chatRequest{
		Messages: []message{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: prompt},
				{Type: "image_url", ImageURL: &imageRef{URL: imageURL}},
			},
		}},
		MaxTokens: 50,
	})
}

// send holds the single-flight lock for the whole retry loop so requests
// from concurrent callers never interleave.
func (c *Client) send(ctx context.Context, jobID, model string, req chatRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	req.Model = model
	var text string
	var lastErr error
	err := backoff.Retry(func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			lastErr = cerrors.Unretriable(err)
			return lastErr
		}
		text, lastErr = c.do(ctx, req)
		return lastErr
	}, backoff.WithContext(requestBackOff(), ctx))
	if err != nil {
		// lastErr keeps the unretriable marker that backoff strips
		return "", lastErr
	}
	return text, nil
}

func (c *Client) do(ctx context.Context, req chatRequest) (string, error) {
	body := bytes.Buffer{}
	if err := json.NewEncoder(&body).Encode(req); err != nil {
		return "", cerrors.Unretriable(fmt.Errorf("error encoding model request: %w", err))
	}
	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", &body)
	if err != nil {
		return "", cerrors.Unretriable(fmt.Errorf("error creating model request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := metrics.MonitorRequest(metrics.Metrics.ModelClient, c.httpClient, httpReq)
	if err != nil {
		return "", fmt.Errorf("error on model request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		err := fmt.Errorf("bad status code from model request: %d [%s]", resp.StatusCode, raw)
		// 429s and 5xx are worth retrying, other 4xx never recover
		if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			err = cerrors.Unretriable(err)
		}
		return "", err
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", cerrors.Unretriable(fmt.Errorf("error decoding model response: %w", err))
	}
	for _, choice := range out.Choices {
		if strings.TrimSpace(choice.Message.Content) != "" {
			return choice.Message.Content, nil
		}
	}
	return "", cerrors.Unretriable(fmt.Errorf("empty model response"))
}

// ImageDataURL wraps raw JPEG bytes as a data URL for vision requests.
func ImageDataURL(jpeg []byte) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpeg)
}
