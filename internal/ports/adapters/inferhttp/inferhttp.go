package inferhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/forPelevin/accentscan/internal/metrics"
	"github.com/forPelevin/accentscan/internal/types"
)

const DefaultTimeout = 60 * time.Second

// Adapter posts chunk files to a remote inference service exposing
// POST {baseURL}/classify.
type Adapter struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
}

func New(baseURL string, timeout time.Duration) (*Adapter, error) {
	if err := ValidateBaseURL(baseURL); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Adapter{baseURL: normalizeBaseURL(baseURL), timeout: timeout, client: &http.Client{}}, nil
}

func (a *Adapter) Classify(ctx context.Context, wavPath string) (types.Prediction, error) {
	start := time.Now()
	p, err := a.classify(ctx, wavPath)
	metrics.ObserveCommand("classifier_http", err, time.Since(start))
	return p, err
}

func (a *Adapter) classify(ctx context.Context, wavPath string) (types.Prediction, error) {
	body, contentType, err := multipartBody(wavPath)
	if err != nil {
		return types.Prediction{}, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, a.baseURL+"/classify", body)
	if err != nil {
		return types.Prediction{}, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		if ctx.Err() == nil && errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return types.Prediction{}, fmt.Errorf("classifier timeout after %s", a.timeout)
		}
		return types.Prediction{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rb, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if readErr != nil {
			return types.Prediction{}, fmt.Errorf("classifier status %d and read body failed: %v", resp.StatusCode, readErr)
		}
		return types.Prediction{}, fmt.Errorf("classifier status %d: %s", resp.StatusCode, truncate(string(rb), 400))
	}

	var out types.Prediction
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return types.Prediction{}, fmt.Errorf("decode classifier response: %w", err)
	}
	return out, nil
}

func multipartBody(path string) (*bytes.Buffer, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("open chunk: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, "", fmt.Errorf("read chunk: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
