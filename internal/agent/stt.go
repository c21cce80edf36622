package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"clinical-scribe/internal/clinicerr"
)

// audio container format -> MIME type, matching what the transcription
// provider accepts.
var sttMimeTypes = map[string]string{
	"webm": "audio/webm",
	"wav":  "audio/wav",
	"mp3":  "audio/mpeg",
	"m4a":  "audio/mp4",
	"flac": "audio/flac",
	"ogg":  "audio/ogg",
	"oga":  "audio/ogg",
	"mp4":  "audio/mp4",
	"pcm":  "audio/pcm",
}

type STTClient interface {
	Transcribe(ctx context.Context, audio []byte, format string) (string, error)
}

type whisperClient struct {
	url        string
	httpClient *http.Client
}

// NewWhisperClient targets a Whisper-compatible transcription endpoint.
func NewWhisperClient(url string, timeout time.Duration) STTClient {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &whisperClient{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type sttResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

func (c *whisperClient) Transcribe(ctx context.Context, audio []byte, format string) (string, error) {
	if format == "" {
		format = "webm"
	}
	mimeType, ok := sttMimeTypes[format]
	if !ok {
		return "", &clinicerr.CapabilityError{
			Stage: "transcription",
			Err:   fmt.Errorf("unsupported audio format %q", format),
		}
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "audio."+format)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(audio); err != nil {
		return "", err
	}
	if err := writer.WriteField("content_type", mimeType); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &clinicerr.CapabilityError{Stage: "transcription", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", &clinicerr.CapabilityError{
			Stage: "transcription",
			Err:   fmt.Errorf("STT API error: %s - %s", resp.Status, string(respBody)),
		}
	}

	var result sttResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", &clinicerr.CapabilityError{Stage: "transcription", Err: err}
	}
	return result.Text, nil
}
