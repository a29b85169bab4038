package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aura-academy/backend/pkg/apperr"
)

// DefaultTimeout bounds every provider call when Config.Timeout is unset.
const DefaultTimeout = 15 * time.Second

// HTTPDoer describes the HTTP client used by the provider client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds provider API settings.
type Config struct {
	BaseURL   string // e.g. https://api.cloudflare.com/client/v4
	AccountID string
	APIToken  string
	Timeout   time.Duration
}

// Client is the HTTP client for the stream provider API.
type Client struct {
	baseURL   string
	accountID string
	token     string
	timeout   time.Duration
	http      HTTPDoer
	logger    *zap.Logger
}

// NewClient creates a provider client. A nil doer uses http.DefaultClient.
func NewClient(cfg Config, doer HTTPDoer, logger *zap.Logger) *Client {
	if doer == nil {
		doer = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:   strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		accountID: strings.TrimSpace(cfg.AccountID),
		token:     strings.TrimSpace(cfg.APIToken),
		timeout:   timeout,
		http:      doer,
		logger:    logger,
	}
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type envelope struct {
	Success bool            `json:"success"`
	Errors  []apiError      `json:"errors"`
	Result  json.RawMessage `json:"result"`
}

type videoResult struct {
	UID       string         `json:"uid"`
	Thumbnail string         `json:"thumbnail"`
	Duration  float64        `json:"duration"`
	Meta      map[string]any `json:"meta"`
	Status    struct {
		State           string    `json:"state"`
		PctComplete     flexFloat `json:"pctComplete"`
		ErrorReasonCode string    `json:"errorReasonCode"`
		ErrorReasonText string    `json:"errorReasonText"`
	} `json:"status"`
	Playback struct {
		HLS  string `json:"hls"`
		DASH string `json:"dash"`
	} `json:"playback"`
}

// flexFloat decodes a number the API sometimes sends as a JSON string.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parse number %q: %w", s, err)
	}
	*f = flexFloat(v)
	return nil
}

func (r videoResult) toStatus() (*Status, error) {
	state, err := ParseState(r.Status.State)
	if err != nil {
		return nil, err
	}
	pct := int(float64(r.Status.PctComplete))
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	st := &Status{
		State:           state,
		ProgressPercent: pct,
		PlaybackHLS:     r.Playback.HLS,
		PlaybackDASH:    r.Playback.DASH,
		ThumbnailURL:    r.Thumbnail,
		ErrorCode:       r.Status.ErrorReasonCode,
		ErrorText:       r.Status.ErrorReasonText,
		Meta:            r.Meta,
	}
	// The API reports -1 until the duration is known.
	if r.Duration > 0 {
		d := r.Duration
		st.DurationSeconds = &d
	}
	return st, nil
}

func (c *Client) videoURL(externalID string) string {
	return fmt.Sprintf("%s/accounts/%s/stream/%s", c.baseURL, c.accountID, externalID)
}

// GetStatus fetches the current state of one remote video.
func (c *Client) GetStatus(ctx context.Context, externalID string) (*Status, error) {
	if strings.TrimSpace(externalID) == "" {
		return nil, apperr.Invalid("provider get status", "external id required")
	}
	var result videoResult
	if _, err := c.do(ctx, http.MethodGet, c.videoURL(externalID), nil, &result); err != nil {
		return nil, err
	}
	return result.toStatus()
}

// DeleteVideo removes a remote video. A video the provider no longer knows is treated as deleted.
func (c *Client) DeleteVideo(ctx context.Context, externalID string) error {
	if strings.TrimSpace(externalID) == "" {
		return apperr.Invalid("provider delete", "external id required")
	}
	code, err := c.do(ctx, http.MethodDelete, c.videoURL(externalID), nil, nil)
	if err != nil && code == http.StatusNotFound {
		c.logger.Info("remote video already gone", zap.String("external_id", externalID))
		return nil
	}
	return err
}

// CopyFromURL asks the provider to ingest a video from sourceURL and returns its external id.
func (c *Client) CopyFromURL(ctx context.Context, sourceURL string, meta map[string]string) (string, error) {
	body, err := json.Marshal(map[string]any{"url": sourceURL, "meta": meta})
	if err != nil {
		return "", fmt.Errorf("marshal copy request: %w", err)
	}
	var result videoResult
	endpoint := fmt.Sprintf("%s/accounts/%s/stream/copy", c.baseURL, c.accountID)
	if _, err := c.do(ctx, http.MethodPost, endpoint, body, &result); err != nil {
		return "", err
	}
	if result.UID == "" {
		return "", apperr.Wrap(apperr.ErrExternalService, "provider copy", "response missing uid", nil)
	}
	return result.UID, nil
}

// do performs one bounded request. It returns the HTTP status code (0 when no response arrived).
func (c *Client) do(ctx context.Context, method, url string, body []byte, out any) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, fmt.Errorf("build provider request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	op := "provider " + strings.ToLower(method)
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return 0, apperr.Wrap(apperr.ErrExternalService, op, fmt.Sprintf("timed out after %s", c.timeout), err)
		}
		return 0, apperr.Wrap(apperr.ErrExternalService, op, "request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return resp.StatusCode, apperr.Wrap(apperr.ErrExternalService, op, "read response", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return resp.StatusCode, apperr.Wrap(apperr.ErrExternalService, op, fmt.Sprintf("status %d: %s", resp.StatusCode, firstError(raw)), nil)
	}
	if out == nil || len(raw) == 0 {
		return resp.StatusCode, nil
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return resp.StatusCode, apperr.Wrap(apperr.ErrExternalService, op, "decode envelope", err)
	}
	if !env.Success {
		return resp.StatusCode, apperr.Wrap(apperr.ErrExternalService, op, firstError(raw), nil)
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return resp.StatusCode, apperr.Wrap(apperr.ErrExternalService, op, "decode result", err)
	}
	return resp.StatusCode, nil
}

func firstError(raw []byte) string {
	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Errors) > 0 {
		return fmt.Sprintf("%d %s", env.Errors[0].Code, env.Errors[0].Message)
	}
	if len(raw) > 200 {
		raw = raw[:200]
	}
	return strings.TrimSpace(string(raw))
}
