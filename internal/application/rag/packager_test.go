package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-docs-voice-api/internal/domain/entity"
)

func TestPackageAttachesAudio(t *testing.T) {
	speech := &fakeSpeech{}
	p := NewPackager(speech)
	answer := &entity.Answer{Text: "spoken text", Sources: []string{"https://d/p1"}, Grounded: true}

	got := p.Package(context.Background(), answer, VoiceFemale)
	require.NotNil(t, got.Audio)
	assert.Equal(t, "audio/mpeg", got.Audio.MIME)
	assert.NotEmpty(t, got.Audio.Data)
	assert.Equal(t, []string{VoiceFemale}, speech.voices)
}

func TestPackageDegradesToTextOnSynthesisFailure(t *testing.T) {
	p := NewPackager(&fakeSpeech{err: errors.New("tts unavailable")})
	answer := &entity.Answer{Text: "still here", Sources: []string{"https://d/p1"}, Grounded: true}

	got := p.Package(context.Background(), answer, VoiceDefault)
	assert.Nil(t, got.Audio, "synthesis failure degrades to text-only")
	assert.Equal(t, "still here", got.Text)
	assert.Equal(t, []string{"https://d/p1"}, got.Sources)
	assert.True(t, got.Grounded)
}

func TestPackageWithoutSynthesizer(t *testing.T) {
	p := NewPackager(nil)
	got := p.Package(context.Background(), &entity.Answer{Text: "text"}, VoiceDefault)
	assert.Nil(t, got.Audio)
	assert.Equal(t, "text", got.Text)
}

func TestNormalizeVoice(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"", VoiceDefault, true},
		{"default", VoiceDefault, true},
		{"female", VoiceFemale, true},
		{"male", VoiceMale, true},
		{"robot", "", false},
	}
	for _, tt := range tests {
		got, ok := NormalizeVoice(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
