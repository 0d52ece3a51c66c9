package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ffa-tycoon/ffa-tycoon/internal/fileman"
	"github.com/ffa-tycoon/ffa-tycoon/internal/model"
)

const (
	screenshotTimeout = 2 * time.Minute
)

// Screenshotter renders park saves to PNG through the external screenshot
// service.
type Screenshotter struct {
	host   string
	client *http.Client
}

// NewScreenshotter returns a client for the service at host ("host:port").
func NewScreenshotter(host string) *Screenshotter {
	return &Screenshotter{
		host: host,
		client: &http.Client{
			Timeout: screenshotTimeout,
		},
	}
}

func (s *Screenshotter) Enabled() bool {
	return s != nil && s.host != ""
}

// Render uploads parkFile, writes the returned image to dir as
// "<kind>.png" and returns that file name.
func (s *Screenshotter) Render(ctx context.Context, parkFile, dir string, kind model.ImageKind) (string, error) {
	save, err := os.ReadFile(parkFile)
	if err != nil {
		return "", fmt.Errorf("read park file: %w", err)
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("park", filepath.Base(parkFile))
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(save); err != nil {
		return "", fmt.Errorf("write form file: %w", err)
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("close form: %w", err)
	}

	url := fmt.Sprintf("http://%s/upload?zoom=%d", s.host, kind.Zoom())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	start := time.Now()
	resp, err := s.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		log.Error().
			Err(err).
			Str("park", parkFile).
			Dur("elapsed", elapsed).
			Msg("screenshot request error")
		return "", fmt.Errorf("screenshot request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Error().
			Str("park", parkFile).
			Int("status", resp.StatusCode).
			Dur("elapsed", elapsed).
			Msg("screenshot failed")
		return "", fmt.Errorf("screenshot failed with status %d", resp.StatusCode)
	}

	image, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read screenshot: %w", err)
	}

	filename := string(kind) + ".png"
	target := filepath.Join(dir, filename)
	if err := fileman.RemoveIfExists(target); err != nil {
		return "", err
	}
	if err := os.WriteFile(target, image, 0o644); err != nil {
		return "", fmt.Errorf("write screenshot: %w", err)
	}

	log.Info().
		Str("park", parkFile).
		Str("image", filename).
		Dur("elapsed", elapsed).
		Msg("screenshot rendered")

	return filename, nil
}
