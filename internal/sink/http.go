package sink

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

const defaultFormField = "file"

type HTTPConfig struct {
	URL       string
	Token     string
	FormField string
	Client    *http.Client
}

// HTTP uploads archives as a multipart/form-data POST.
type HTTP struct {
	cfg HTTPConfig
}

func NewHTTP(cfg HTTPConfig) (*HTTP, error) {
	if !strings.HasPrefix(cfg.URL, "http://") && !strings.HasPrefix(cfg.URL, "https://") {
		return nil, fmt.Errorf("http sink url %q must be absolute", cfg.URL)
	}
	if cfg.FormField == "" {
		cfg.FormField = defaultFormField
	}
	if cfg.Client == nil {
		cfg.Client = defaultClient
	}
	return &HTTP{cfg: cfg}, nil
}

func (h *HTTP) Name() string {
	return "http:" + h.cfg.URL
}

func (h *HTTP) Send(ctx context.Context, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		part, err := form.CreateFormFile(h.cfg.FormField, filepath.Base(path))
		if err == nil {
			_, err = io.Copy(part, file)
		}
		if err == nil {
			err = form.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.URL, pr)
	if err != nil {
		_ = pr.CloseWithError(err)
		return err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	if h.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+h.cfg.Token)
	}

	resp, err := h.cfg.Client.Do(req)
	if err != nil {
		_ = pr.CloseWithError(err)
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
