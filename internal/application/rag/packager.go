package rag

import (
	"context"
	"time"

	"z-docs-voice-api/internal/domain/entity"
	"z-docs-voice-api/pkg/logger"
	"z-docs-voice-api/pkg/metrics"
	"z-docs-voice-api/pkg/tracer"
)

// VoiceDefault 及以下为支持的语音风格
const (
	VoiceDefault = "default"
	VoiceFemale  = "female"
	VoiceMale    = "male"
)

// NormalizeVoice 校验并归一化语音风格，空值回退到 default
func NormalizeVoice(voice string) (string, bool) {
	switch voice {
	case "":
		return VoiceDefault, true
	case VoiceDefault, VoiceFemale, VoiceMale:
		return voice, true
	default:
		return "", false
	}
}

// Packager 将文字回答打包为多模态响应。
// 语音是增强而非正确性要求：合成失败时降级为纯文字，不让整个请求失败。
type Packager struct {
	speech SpeechSynthesizer
}

func NewPackager(speech SpeechSynthesizer) *Packager {
	return &Packager{speech: speech}
}

// Package 合成语音并组装最终响应，Audio 为 nil 表示语音不可用
func (p *Packager) Package(ctx context.Context, answer *entity.Answer, voice string) *entity.SpokenAnswer {
	ctx, span := tracer.Start(ctx, "rag.Packager.Package")
	defer span.End()

	spoken := &entity.SpokenAnswer{Answer: *answer}
	if p == nil || p.speech == nil {
		return spoken
	}

	start := time.Now()
	audio, err := p.speech.Synthesize(ctx, answer.Text, voice)
	metrics.SpeechSynthesisDuration.WithLabelValues(voice).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SpeechSynthesisTotal.WithLabelValues(voice, "error").Inc()
		tracer.RecordError(span, err)
		logger.Warn(ctx, "speech synthesis failed, returning text-only response", "error", err.Error())
		return spoken
	}
	metrics.SpeechSynthesisTotal.WithLabelValues(voice, "ok").Inc()

	spoken.Audio = audio
	return spoken
}
