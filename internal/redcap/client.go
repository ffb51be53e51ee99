package redcap

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/a3tai/redcap-pdf-autofill/internal/fieldmap"
)

// DefaultTimeout bounds a single API call
const DefaultTimeout = 30 * time.Second

// maxResponseSize caps how much of an API response is read
const maxResponseSize = 32 << 20

// Config holds the project endpoint and credentials
type Config struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// Client talks to one REDCap project's API
type Client struct {
	url        string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a REDCap API client
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("REDCap API URL cannot be empty")
	}
	if cfg.Token == "" {
		return nil, errors.New("REDCap API token cannot be empty")
	}
	if _, err := url.ParseRequestURI(cfg.URL); err != nil {
		return nil, fmt.Errorf("invalid REDCap API URL: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		url:        cfg.URL,
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}, nil
}

// FetchRecord returns the single record whose variable equals id
func (c *Client) FetchRecord(ctx context.Context, variable, id string) (fieldmap.RawRecord, error) {
	filter, err := FilterLogic(variable, id)
	if err != nil {
		return nil, err
	}

	form := url.Values{
		"token":       {c.token},
		"content":     {"record"},
		"format":      {"json"},
		"type":        {"flat"},
		"filterLogic": {filter},
	}

	body, err := c.post(ctx, form)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch record %s: %w", id, err)
	}

	var rows []map[string]interface{}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode record response: %w", err)
	}

	switch len(rows) {
	case 0:
		return nil, fmt.Errorf("%w: no record where '%s' = %s", ErrRecordNotFound, variable, id)
	case 1:
	default:
		return nil, fmt.Errorf("%w: %d records where '%s' = %s (expected only 1)",
			ErrMultipleRecords, len(rows), variable, id)
	}

	record := make(fieldmap.RawRecord, len(rows[0]))
	for k, v := range rows[0] {
		if v == nil {
			record[k] = ""
			continue
		}
		record[k] = cast.ToString(v)
	}

	c.logger.Debug("Fetched record",
		zap.String("variable", variable),
		zap.String("id", id),
		zap.Int("variables", len(record)))

	return record, nil
}

// FetchMetadata returns the project's data dictionary
func (c *Client) FetchMetadata(ctx context.Context) (Metadata, error) {
	form := url.Values{
		"token":   {c.token},
		"content": {"metadata"},
		"format":  {"json"},
	}

	body, err := c.post(ctx, form)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch metadata: %w", err)
	}

	var md Metadata
	if err := json.Unmarshal(body, &md); err != nil {
		return nil, fmt.Errorf("failed to decode metadata response: %w", err)
	}

	c.logger.Debug("Fetched project metadata", zap.Int("fields", len(md)))
	return md, nil
}

// post sends a form-encoded API request and returns the body once it is
// known not to be an API error object
func (c *Client) post(ctx context.Context, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if msg, ok := apiErrorMessage(body); ok {
		return nil, &APIError{StatusCode: statusIfFailed(resp.StatusCode), Message: msg}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	return body, nil
}

// apiErrorMessage extracts the message of an {"error": "..."} response
func apiErrorMessage(body []byte) (string, bool) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return "", false
	}
	var obj struct {
		Error *string `json:"error"`
	}
	if err := json.Unmarshal(trimmed, &obj); err != nil || obj.Error == nil {
		return "", false
	}
	return *obj.Error, true
}

func statusIfFailed(code int) int {
	if code >= 200 && code <= 299 {
		return 0
	}
	return code
}

// FilterLogic builds the filter expression selecting variable == id
func FilterLogic(variable, id string) (string, error) {
	if variable == "" || strings.ContainsAny(variable, "[]'\"") {
		return "", fmt.Errorf("%w: variable name %q", ErrInvalidIdentifier, variable)
	}
	if id == "" || strings.ContainsAny(id, "'\n\r") {
		return "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, id)
	}
	return fmt.Sprintf("[%s] = '%s'", variable, id), nil
}
