// Package ocr extracts text from images with the Azure Computer Vision Read API.
// Reading is asynchronous: the image is submitted once and the returned
// operation is polled until it succeeds, fails, or the attempts run out.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/mwiater/docchat/internal/appconfig"
	"github.com/mwiater/docchat/internal/logging"
	"github.com/mwiater/docchat/internal/svcerr"
)

const (
	serviceVision = "vision"
	analyzePath   = "/vision/v3.2/read/analyze"
	keyHeader     = "Ocp-Apim-Subscription-Key"
)

// ErrTimeout is returned when the read operation has not finished after every poll attempt.
var ErrTimeout = errors.New("ocr: timed out waiting for read result")

// Operation statuses reported by the Read API.
const (
	StatusNotStarted = "notStarted"
	StatusRunning    = "running"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
)

var resultSchema = gojsonschema.NewStringLoader(`{
  "type": "object",
  "required": ["status"],
  "properties": {
    "status": {"type": "string", "enum": ["notStarted", "running", "succeeded", "failed"]}
  },
  "if": {"properties": {"status": {"const": "succeeded"}}},
  "then": {
    "required": ["analyzeResult"],
    "properties": {
      "analyzeResult": {
        "type": "object",
        "required": ["readResults"],
        "properties": {
          "readResults": {
            "type": "array",
            "items": {
              "type": "object",
              "properties": {
                "lines": {
                  "type": "array",
                  "items": {
                    "type": "object",
                    "required": ["text"],
                    "properties": {"text": {"type": "string"}}
                  }
                }
              }
            }
          }
        }
      }
    }
  }
}`)

type readResult struct {
	Status        string `json:"status"`
	AnalyzeResult struct {
		ReadResults []struct {
			Lines []struct {
				Text string `json:"text"`
			} `json:"lines"`
		} `json:"readResults"`
	} `json:"analyzeResult"`
}

// Client submits images to the Read API and polls for the recognized text.
type Client struct {
	client   *http.Client
	endpoint string
	key      string
	attempts int
	interval time.Duration
}

// New constructs a Client from the application configuration.
func New(cfg *appconfig.Config) (*Client, error) {
	if strings.TrimSpace(cfg.OCREndpoint) == "" {
		return nil, errors.New("ocrEndpoint is not configured")
	}
	return NewClient(cfg.OCREndpoint, cfg.OCRKey(), cfg.OCRAttempts(), cfg.OCRInterval(), cfg.RequestTimeout()), nil
}

// NewClient constructs a Client with explicit polling limits.
func NewClient(endpoint, key string, attempts int, interval, timeout time.Duration) *Client {
	if attempts <= 0 {
		attempts = 1
	}
	return &Client{
		client:   &http.Client{Timeout: timeout},
		endpoint: strings.TrimRight(endpoint, "/"),
		key:      key,
		attempts: attempts,
		interval: interval,
	}
}

// ReadFile reads the image at path and returns its recognized text.
func (c *Client) ReadFile(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read image %q: %w", path, err)
	}
	return c.Read(ctx, data)
}

// Read submits image bytes and polls until the text is available. Recognized
// lines from every page are joined with newlines in reading order.
func (c *Client) Read(ctx context.Context, image []byte) (string, error) {
	operation, err := c.submit(ctx, image)
	if err != nil {
		return "", err
	}

	for attempt := 1; attempt <= c.attempts; attempt++ {
		result, err := c.poll(ctx, operation)
		if err != nil {
			return "", err
		}
		switch result.Status {
		case StatusSucceeded:
			return joinLines(result), nil
		case StatusFailed:
			return "", &svcerr.ServiceError{Service: serviceVision, Op: "read", Err: errors.New("read operation failed")}
		}
		logging.LogEvent("ocr: status=%s attempt=%d/%d", result.Status, attempt, c.attempts)

		timer := time.NewTimer(c.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	return "", ErrTimeout
}

func (c *Client) submit(ctx context.Context, image []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+analyzePath, bytes.NewReader(image))
	if err != nil {
		return "", err
	}
	req.Header.Set(keyHeader, c.key)
	req.Header.Set("Content-Type", "application/octet-stream")
	logging.LogRequest("DOCCHAT->VISION", c.endpoint, "", "analyze", image)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", svcerr.New(serviceVision, "analyze", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		raw, _ := io.ReadAll(resp.Body)
		return "", svcerr.Status(serviceVision, "analyze", resp.StatusCode, raw)
	}
	operation := resp.Header.Get("Operation-Location")
	if operation == "" {
		return "", svcerr.Malformed(serviceVision, "analyze", "missing Operation-Location header")
	}
	return operation, nil
}

func (c *Client) poll(ctx context.Context, operation string) (readResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, operation, nil)
	if err != nil {
		return readResult{}, err
	}
	req.Header.Set(keyHeader, c.key)

	resp, err := c.client.Do(req)
	if err != nil {
		return readResult{}, svcerr.New(serviceVision, "poll", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return readResult{}, svcerr.New(serviceVision, "poll", err)
	}
	logging.LogRequest("VISION->DOCCHAT", c.endpoint, "", "poll", raw)
	if resp.StatusCode != http.StatusOK {
		return readResult{}, svcerr.Status(serviceVision, "poll", resp.StatusCode, raw)
	}

	if err := validate(raw); err != nil {
		return readResult{}, svcerr.Malformed(serviceVision, "poll", err.Error())
	}
	var result readResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return readResult{}, svcerr.Malformed(serviceVision, "poll", err.Error())
	}
	return result, nil
}

func validate(raw []byte) error {
	result, err := gojsonschema.Validate(resultSchema, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}
	var errs []string
	for _, desc := range result.Errors() {
		errs = append(errs, desc.String())
	}
	return fmt.Errorf("JSON validation failed: %s", strings.Join(errs, ", "))
}

func joinLines(result readResult) string {
	var lines []string
	for _, page := range result.AnalyzeResult.ReadResults {
		for _, line := range page.Lines {
			lines = append(lines, line.Text)
		}
	}
	return strings.Join(lines, "\n")
}
