// Package ocr turns captcha images into text guesses by delegating to an
// external recognizer, either a local command or an HTTP service.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"time"
)

// Recognizer returns the text shown in a captcha image.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

// CommandRecognizer runs an executable with the image on stdin and reads the
// guess from stdout.
type CommandRecognizer struct {
	Path string
	Args []string
}

// NewCommandRecognizer creates a recognizer from an argv slice.
func NewCommandRecognizer(argv []string) (*CommandRecognizer, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, fmt.Errorf("recognizer command is required")
	}
	return &CommandRecognizer{Path: argv[0], Args: argv[1:]}, nil
}

// Recognize implements Recognizer.
func (r *CommandRecognizer) Recognize(ctx context.Context, image []byte) (string, error) {
	cmd := exec.CommandContext(ctx, r.Path, r.Args...)
	cmd.Stdin = bytes.NewReader(image)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("recognizer command failed: %w: %s", err, msg)
		}
		return "", fmt.Errorf("recognizer command failed: %w", err)
	}

	return normalize(stdout.String())
}

// HTTPRecognizer posts the image to an OCR service. The service may answer
// with plain text or with a JSON object carrying a "text" or "result" field.
type HTTPRecognizer struct {
	Endpoint string
	Client   *http.Client
}

// NewHTTPRecognizer creates a recognizer for the given endpoint.
func NewHTTPRecognizer(endpoint string) *HTTPRecognizer {
	return &HTTPRecognizer{
		Endpoint: endpoint,
		Client:   &http.Client{Timeout: 15 * time.Second},
	}
}

// Recognize implements Recognizer.
func (r *HTTPRecognizer) Recognize(ctx context.Context, image []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.Endpoint, bytes.NewReader(image))
	if err != nil {
		return "", fmt.Errorf("failed to build recognizer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("recognizer request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return "", fmt.Errorf("failed to read recognizer response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("recognizer returned status %d", resp.StatusCode)
	}

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var payload struct {
			Text   string `json:"text"`
			Result string `json:"result"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return "", fmt.Errorf("failed to decode recognizer response: %w", err)
		}
		if payload.Text == "" {
			payload.Text = payload.Result
		}
		return normalize(payload.Text)
	}

	return normalize(string(body))
}

// New picks a recognizer from configuration: a command wins over an endpoint.
func New(command []string, endpoint string) (Recognizer, error) {
	if len(command) > 0 {
		return NewCommandRecognizer(command)
	}
	if endpoint != "" {
		return NewHTTPRecognizer(endpoint), nil
	}
	return nil, fmt.Errorf("no recognizer configured")
}

// normalize drops whitespace the recognizers tend to add around the guess.
func normalize(raw string) (string, error) {
	guess := strings.Join(strings.Fields(raw), "")
	if guess == "" {
		return "", fmt.Errorf("recognizer returned no text")
	}
	return guess, nil
}
