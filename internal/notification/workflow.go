package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/schoolpay/internal/config"
	"github.com/smallbiznis/schoolpay/internal/observability/logger"
	"github.com/smallbiznis/schoolpay/internal/observability/tracing"
	"go.uber.org/zap"
)

// WorkflowDispatcher posts tasks to the n8n webhook named after the task kind.
type WorkflowDispatcher struct {
	baseURL string
	client  *http.Client
	log     *zap.Logger
}

func NewWorkflowDispatcher(cfg config.WorkflowConfig, log *zap.Logger) *WorkflowDispatcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WorkflowDispatcher{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		client:  tracing.WrapHTTPClient(&http.Client{Timeout: timeout}, "n8n"),
		log:     log.Named("notification.workflow"),
	}
}

// Enabled reports whether a workflow base URL is configured.
func (d *WorkflowDispatcher) Enabled() bool {
	return d.baseURL != ""
}

func (d *WorkflowDispatcher) Dispatch(ctx context.Context, task Task) error {
	if !d.Enabled() {
		logger.WithContext(ctx, d.log).Debug("workflow disabled, notification skipped",
			zap.String("kind", string(task.Kind)),
			zap.String("school_id", task.SchoolID.String()),
		)
		return nil
	}

	body, err := json.Marshal(task.Payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", task.Kind, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/"+string(task.Kind), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", task.Kind, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("post %s: unexpected status %d", task.Kind, resp.StatusCode)
	}
	return nil
}
