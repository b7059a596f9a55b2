// Package speech 提供语音合成服务客户端
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"z-docs-voice-api/internal/application/rag"
	"z-docs-voice-api/internal/config"
	"z-docs-voice-api/internal/domain/entity"
)

var tracer = otel.Tracer("speech")

// voiceNames 语音风格到合成服务音色的映射
var voiceNames = map[string]string{
	rag.VoiceDefault: "alloy",
	rag.VoiceFemale:  "nova",
	rag.VoiceMale:    "onyx",
}

// Client 语音合成客户端，实现 rag.SpeechSynthesizer。
// 输出为 MP3 字节流，本服务不做进一步处理。
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// NewClient 创建语音合成客户端
func NewClient(cfg *config.SpeechConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
	}
}

type speechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
}

// Synthesize 将文本合成为语音
func (c *Client) Synthesize(ctx context.Context, text, voice string) (*entity.AudioArtifact, error) {
	ctx, span := tracer.Start(ctx, "speech.Synthesize",
		trace.WithAttributes(
			attribute.String("voice", voice),
			attribute.Int("text_len", len(text)),
		))
	defer span.End()

	name, ok := voiceNames[voice]
	if !ok {
		name = voiceNames[rag.VoiceDefault]
	}

	body, err := json.Marshal(speechRequest{
		Model:          c.model,
		Input:          text,
		Voice:          name,
		ResponseFormat: "mp3",
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode synthesis request: %v", rag.ErrSynthesisFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/speech", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to build request: %v", rag.ErrSynthesisFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: request to speech service failed: %v", rag.ErrSynthesisFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: speech service returned %d: %s", rag.ErrSynthesisFailed, resp.StatusCode, string(data))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: failed to read audio: %v", rag.ErrSynthesisFailed, err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("%w: speech service returned empty audio", rag.ErrSynthesisFailed)
	}

	span.SetAttributes(attribute.Int("audio_bytes", len(audio)))
	return &entity.AudioArtifact{MIME: "audio/mpeg", Data: audio}, nil
}
