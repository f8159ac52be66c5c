package perception

import (
	"context"
	"fmt"
	"strings"

	"ghostbot/internal/logging"
	"ghostbot/internal/prompt"
)

// Transcribe turns a voice note into text using the model's audio input.
func Transcribe(ctx context.Context, m Model, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("empty audio")
	}
	if mimeType == "" {
		mimeType = "audio/ogg"
	}
	timer := logging.StartTimer(logging.CategoryPerception, "Transcribe")
	defer timer.Stop()

	text, err := m.Generate(ctx, Request{
		Operation: "transcribe",
		Prompt:    prompt.Transcribe,
		Media:     []Media{{MIMEType: mimeType, Data: audio}},
	})
	if err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	text = strings.TrimSpace(text)
	logging.Perception("Transcribed %d bytes of audio into %d chars", len(audio), len(text))
	return text, nil
}
