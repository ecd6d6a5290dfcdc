// Package rest is the client for the question generation and catalog endpoints.
package rest

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

	"github.com/rs/zerolog/log"

	"entrevistas-live-client/internal/models"
	"entrevistas-live-client/internal/observability/metrics"
	"entrevistas-live-client/internal/schema"
)

const (
	generatePath = "/generar-entrevista"
	catalogPath  = "/api/preguntas"

	maxErrorBody = 64 * 1024
)

// APIError is a non-2xx answer. Message is the backend's detail, verbatim
// when it sent one.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
}

// Config holds the client settings.
type Config struct {
	GeneratorURL string
	CatalogURL   string
	Timeout      time.Duration
	HTTPClient   *http.Client
}

// Client calls the question endpoints.
type Client struct {
	generatorURL string
	catalogURL   string
	client       *http.Client
	validator    *schema.Validator
	metrics      *metrics.Metrics
}

// NewClient creates a client. Generation can take a minute when both
// searches are enabled, so the default timeout is generous.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		generatorURL: strings.TrimRight(cfg.GeneratorURL, "/"),
		catalogURL:   strings.TrimRight(cfg.CatalogURL, "/"),
		client:       hc,
		validator:    schema.New(),
		metrics:      metrics.DefaultMetrics,
	}
}

// Generate asks for interview questions about a job posting.
func (c *Client) Generate(ctx context.Context, req models.GenerateRequest) (*models.GenerateResponse, error) {
	if err := c.validator.Validate(req); err != nil {
		return nil, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var out models.GenerateResponse
	if err := c.do(ctx, "generate", http.MethodPost, c.generatorURL+generatePath, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Catalog returns the informational list of interview questions.
func (c *Client) Catalog(ctx context.Context) ([]models.CatalogQuestion, error) {
	var out []models.CatalogQuestion
	if err := c.do(ctx, "catalog", http.MethodGet, c.catalogURL+catalogPath, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, endpoint, method, url string, body []byte, out any) error {
	start := time.Now()
	status := "error"
	defer func() {
		c.metrics.RecordQuestionRequest(endpoint, status, time.Since(start).Seconds())
	}()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		log.Error().Err(err).Str("endpoint", endpoint).Msg("Question API request failed")
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	status = strconv.Itoa(resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: errorMessage(raw, resp.Status)}
		log.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("detail", apiErr.Message).
			Msg("Question API returned an error")
		return apiErr
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	// the catalog endpoint reports failures as {"error": ...} with status 200
	if len(raw) > 0 && raw[0] == '{' {
		var eb models.ErrorBody
		if json.Unmarshal(raw, &eb) == nil && eb.Error != "" && eb.Detail == "" {
			if _, isList := out.(*[]models.CatalogQuestion); isList {
				status = "api_error"
				return &APIError{StatusCode: resp.StatusCode, Message: eb.Error}
			}
		}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// errorMessage extracts the human readable detail of an error body.
func errorMessage(raw []byte, fallback string) string {
	var eb models.ErrorBody
	if err := json.Unmarshal(raw, &eb); err == nil {
		if eb.Detail != "" {
			return eb.Detail
		}
		if eb.Error != "" {
			return eb.Error
		}
	}
	if text := strings.TrimSpace(string(raw)); text != "" {
		return text
	}
	return fallback
}
