package storageapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"evalhub/internal/eval/model"
	appErr "evalhub/pkg/errors"
)

const defaultTimeout = 15 * time.Second

// Client talks to the evaluation storage HTTP API. The physical
// persistence behind that API is not this service's concern.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a storage API client. timeout bounds every request; zero
// picks a default.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// GetEvaluation fetches one evaluation record.
func (c *Client) GetEvaluation(ctx context.Context, evalID string) (*model.Evaluation, error) {
	status, body, err := c.do(ctx, http.MethodGet, "/evaluations/"+evalID, nil)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.StorageError, "get evaluation failed")
	}
	switch status {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, appErr.Newf(appErr.EvaluationNotFound, "evaluation %s not found", evalID)
	default:
		return nil, appErr.Newf(appErr.StorageError, "get evaluation returned status %d", status)
	}
	var ev model.Evaluation
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, appErr.Wrapf(err, appErr.StorageError, "decode evaluation failed")
	}
	return &ev, nil
}

// UpdateEvaluation applies a partial-field update to one evaluation.
func (c *Client) UpdateEvaluation(ctx context.Context, evalID string, fields map[string]interface{}) error {
	payload, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal update fields failed: %w", err)
	}
	status, _, err := c.do(ctx, http.MethodPut, "/evaluations/"+evalID, payload)
	if err != nil {
		return appErr.Wrapf(err, appErr.StorageError, "update evaluation failed")
	}
	if status != http.StatusOK {
		return appErr.Newf(appErr.StorageError, "update evaluation returned status %d", status)
	}
	return nil
}

// CreateEvaluation creates an evaluation record. Creation is idempotent
// on the storage side, so replays of a queued event are harmless.
func (c *Client) CreateEvaluation(ctx context.Context, ev *model.Evaluation) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal evaluation failed: %w", err)
	}
	status, _, err := c.do(ctx, http.MethodPost, "/evaluations", payload)
	if err != nil {
		return appErr.Wrapf(err, appErr.StorageError, "create evaluation failed")
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return appErr.Newf(appErr.StorageError, "create evaluation returned status %d", status)
	}
	return nil
}

type logsRequest struct {
	Content   string `json:"content"`
	Append    bool   `json:"append"`
	Timestamp string `json:"timestamp"`
}

// AppendLogs appends log content to an evaluation's stored logs.
func (c *Client) AppendLogs(ctx context.Context, evalID, content string) error {
	payload, err := json.Marshal(logsRequest{
		Content:   content,
		Append:    true,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal logs request failed: %w", err)
	}
	status, _, err := c.do(ctx, http.MethodPost, "/evaluations/"+evalID+"/logs", payload)
	if err != nil {
		return appErr.Wrapf(err, appErr.LogWriteFailed, "append logs failed")
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return appErr.Newf(appErr.LogWriteFailed, "append logs returned status %d", status)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response body failed: %w", err)
	}
	return resp.StatusCode, data, nil
}
