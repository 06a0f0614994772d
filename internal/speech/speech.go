// Package speech wraps the Azure Speech REST endpoints for text-to-speech and
// short-audio speech-to-text.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mwiater/docchat/internal/appconfig"
	"github.com/mwiater/docchat/internal/logging"
	"github.com/mwiater/docchat/internal/svcerr"
)

const (
	serviceSpeech = "speech"
	ttsPath       = "/cognitiveservices/v1"
	sttPath       = "/speech/recognition/conversation/cognitiveservices/v1"
	outputFormat  = "audio-16khz-32kbitrate-mono-mp3"
)

// Client calls the Azure Speech service.
type Client struct {
	client   *http.Client
	endpoint string
	key      string
	voice    string
	language string
}

// New constructs a Client from the application configuration.
func New(cfg *appconfig.Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpeechEndpoint) == "" {
		return nil, errors.New("speechEndpoint is not configured")
	}
	return NewClient(cfg.SpeechEndpoint, cfg.SpeechKey(), cfg.Voice(), cfg.Language(), cfg.RequestTimeout()), nil
}

// NewClient constructs a Client for the given endpoint, voice and recognition language.
func NewClient(endpoint, key, voice, language string, timeout time.Duration) *Client {
	return &Client{
		client:   &http.Client{Timeout: timeout},
		endpoint: strings.TrimRight(endpoint, "/"),
		key:      key,
		voice:    voice,
		language: language,
	}
}

// Synthesize renders text as mp3 audio with the configured voice.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	body := ssml(c.language, c.voice, text)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+ttsPath, strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.key)
	req.Header.Set("Content-Type", "application/ssml+xml")
	req.Header.Set("X-Microsoft-OutputFormat", outputFormat)
	req.Header.Set("User-Agent", "docchat")
	logging.LogRequest("DOCCHAT->SPEECH", c.endpoint, c.voice, "synthesize", body)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, svcerr.New(serviceSpeech, "synthesize", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, svcerr.New(serviceSpeech, "synthesize", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, svcerr.Status(serviceSpeech, "synthesize", resp.StatusCode, audio)
	}
	if len(audio) == 0 {
		return nil, svcerr.Malformed(serviceSpeech, "synthesize", "empty audio")
	}
	logging.LogRequest("SPEECH->DOCCHAT", c.endpoint, c.voice, "synthesize", audio)
	return audio, nil
}

type recognitionResponse struct {
	RecognitionStatus string `json:"RecognitionStatus"`
	DisplayText       string `json:"DisplayText"`
}

// Transcribe recognizes speech in a short WAV clip and returns the display text.
func (c *Client) Transcribe(ctx context.Context, audio []byte) (string, error) {
	endpoint := c.endpoint + sttPath + "?language=" + url.QueryEscape(c.language)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(audio))
	if err != nil {
		return "", err
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.key)
	req.Header.Set("Content-Type", "audio/wav")
	logging.LogRequest("DOCCHAT->SPEECH", c.endpoint, c.language, "transcribe", audio)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", svcerr.New(serviceSpeech, "transcribe", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", svcerr.New(serviceSpeech, "transcribe", err)
	}
	logging.LogRequest("SPEECH->DOCCHAT", c.endpoint, c.language, "transcribe", raw)
	if resp.StatusCode != http.StatusOK {
		return "", svcerr.Status(serviceSpeech, "transcribe", resp.StatusCode, raw)
	}

	var parsed recognitionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", svcerr.Malformed(serviceSpeech, "transcribe", err.Error())
	}
	if parsed.RecognitionStatus != "" && parsed.RecognitionStatus != "Success" {
		return "", &svcerr.ServiceError{Service: serviceSpeech, Op: "transcribe", Err: fmt.Errorf("recognition status %s", parsed.RecognitionStatus)}
	}
	return parsed.DisplayText, nil
}

func ssml(language, voice, text string) string {
	var escaped bytes.Buffer
	_ = xml.EscapeText(&escaped, []byte(text))
	return fmt.Sprintf("<speak version='1.0' xml:lang='%s'><voice xml:lang='%s' name='%s'>%s</voice></speak>",
		language, language, voice, escaped.String())
}
