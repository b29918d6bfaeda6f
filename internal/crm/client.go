package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/AngelCh415/dealpipe/internal/utils"
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

func NewHTTPClient(timeout time.Duration) HTTPClient {
	return &http.Client{Timeout: timeout}
}

// APIError is a non-2xx answer from the CRM API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("crm api: non-2xx: %d body=%s", e.StatusCode, e.Body)
}

// IsAPIError reports whether err carries a CRM HTTP status.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

type Options struct {
	BaseURL string
	Token   string
	Retries int
	Backoff time.Duration
}

// Client talks to the CRM v3/v4 REST API with a private-app token.
type Client struct {
	c       HTTPClient
	baseURL string
	token   string
	backoff utils.Backoff
	log     *slog.Logger
}

func NewClient(c HTTPClient, opts Options, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	base := opts.Backoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	return &Client{
		c:       c,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		token:   opts.Token,
		backoff: utils.NewBackoff(base, opts.Retries).WithJitter(150 * time.Millisecond),
		log:     log,
	}
}

func (cl *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	if cl.baseURL == "" {
		return errors.New("crm: empty base url")
	}
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, cl.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cl.token != "" {
		req.Header.Set("Authorization", "Bearer "+cl.token)
	}
	resp, err := cl.c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// doJSONWithRetry retries transport errors and 5xx/429 answers. Only used
// for reads.
func (cl *Client) doJSONWithRetry(ctx context.Context, method, path string, in, out any) error {
	return cl.backoff.Do(ctx, func(i int) error {
		err := cl.doJSON(ctx, method, path, in, out)
		if err == nil {
			return nil
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode < 500 && apiErr.StatusCode != http.StatusTooManyRequests {
			return utils.Permanent(err)
		}
		if ctx.Err() != nil {
			return utils.Permanent(err)
		}
		if i < cl.backoff.MaxRetries() {
			cl.log.Warn("crm request failed, retrying", slog.String("path", path), slog.Int("attempt", i+1), slog.String("err", err.Error()))
		}
		return err
	})
}
