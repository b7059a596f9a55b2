package dto

import (
	"encoding/base64"

	"z-docs-voice-api/internal/domain/entity"
)

// QueryRequest 问答请求
type QueryRequest struct {
	Collection string `json:"collection" binding:"required"`
	Question   string `json:"question" binding:"required"`
	TopK       int    `json:"top_k" binding:"omitempty,min=1"`
	Voice      string `json:"voice" binding:"omitempty"`
}

// AudioPayload 合成音频载荷
type AudioPayload struct {
	MIME string `json:"mime"`
	Data string `json:"data"`
}

// QueryResponse 问答响应
type QueryResponse struct {
	Answer           string        `json:"answer"`
	Sources          []string      `json:"sources"`
	Grounded         bool          `json:"grounded"`
	Audio            *AudioPayload `json:"audio,omitempty"`
	AudioUnavailable bool          `json:"audio_unavailable,omitempty"`
}

// NewQueryResponse 从应答构建响应，音频以 base64 编码内联返回
func NewQueryResponse(spoken *entity.SpokenAnswer) QueryResponse {
	resp := QueryResponse{
		Answer:   spoken.Text,
		Sources:  spoken.Sources,
		Grounded: spoken.Grounded,
	}
	if resp.Sources == nil {
		resp.Sources = []string{}
	}
	if spoken.Audio != nil {
		resp.Audio = &AudioPayload{
			MIME: spoken.Audio.MIME,
			Data: base64.StdEncoding.EncodeToString(spoken.Audio.Data),
		}
	} else {
		resp.AudioUnavailable = true
	}
	return resp
}
