package stt

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Model download base URL (Hugging Face)
var modelBaseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main"

var knownModels = map[string]bool{
	"tiny":           true,
	"base":           true,
	"base.en":        true,
	"small":          true,
	"small.en":       true,
	"medium":         true,
	"medium.en":      true,
	"large-v3":       true,
	"large-v3-turbo": true,
}

// progressWriter tracks download progress
type progressWriter struct {
	total      int64
	downloaded int64
	lastLog    time.Time
	model      string
	log        zerolog.Logger
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n := len(p)
	pw.downloaded += int64(n)

	// Log progress every 2 seconds or when complete
	now := time.Now()
	if now.Sub(pw.lastLog) >= 2*time.Second || pw.downloaded >= pw.total {
		pw.lastLog = now
		pw.log.Info().
			Str("model", pw.model).
			Float64("percent", float64(pw.downloaded)/float64(pw.total)*100).
			Float64("downloaded_mb", float64(pw.downloaded)/1024/1024).
			Float64("total_mb", float64(pw.total)/1024/1024).
			Msg("Downloading model")
	}

	return n, nil
}

// modelPath is where model is stored inside dir
func modelPath(dir, model string) string {
	return filepath.Join(dir, "ggml-"+model+".bin")
}

// ensureModel returns the path of model under dir, downloading it first if
// it is missing
func ensureModel(ctx context.Context, dir, model string, log zerolog.Logger) (string, error) {
	path := modelPath(dir, model)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	} else if !os.IsNotExist(err) {
		return "", err
	}

	if err := downloadModel(ctx, model, path, log); err != nil {
		return "", fmt.Errorf("failed to download model: %w", err)
	}
	return path, nil
}

// downloadModel downloads a whisper.cpp model to destPath
func downloadModel(ctx context.Context, model, destPath string, log zerolog.Logger) error {
	if !knownModels[model] {
		return fmt.Errorf("unknown model: %s", model)
	}
	url := fmt.Sprintf("%s/ggml-%s.bin", modelBaseURL, model)

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create models directory: %w", err)
	}

	// Download to temp file first
	tmpPath := destPath + ".tmp"
	defer os.Remove(tmpPath)

	log.Info().Str("model", model).Str("url", url).Msg("Starting model download")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download model: HTTP %d", resp.StatusCode)
	}

	totalSize := resp.ContentLength
	if totalSize <= 0 {
		log.Warn().Str("model", model).Msg("Content-Length not provided, progress tracking unavailable")
	}

	out, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer out.Close()

	var writer io.Writer = out
	if totalSize > 0 {
		writer = io.MultiWriter(out, &progressWriter{
			total:   totalSize,
			model:   model,
			lastLog: time.Now(),
			log:     log,
		})
	}

	if _, err := io.Copy(writer, resp.Body); err != nil {
		return fmt.Errorf("failed to write model file: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to write model file: %w", err)
	}

	// Move to final location
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to move model file: %w", err)
	}

	log.Info().
		Str("model", model).
		Str("path", destPath).
		Float64("size_mb", float64(totalSize)/1024/1024).
		Msg("Model downloaded successfully")

	return nil
}

// TODO: Add SHA256 verification against the published model checksums
