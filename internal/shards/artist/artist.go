// Package artist turns a free-form image request into a generated image in
// three stages: description extraction, prompt refinement and synthesis.
// Each stage is announced with a status event before its network call and
// any stage may end the run with a text event explaining the failure.
package artist

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ghostbot/internal/logging"
	"ghostbot/internal/perception"
	"ghostbot/internal/prompt"
	"ghostbot/internal/tools/imaging"
	"ghostbot/internal/types"
)

const (
	OperationDescribe = "extract_description"
	OperationPrompt   = "image_prompt"
)

// User-facing failure texts.
const (
	NotUnderstoodText = "Saya tidak mengerti gambar apa yang Anda ingin saya buat."
	BusyText          = "🕒 Sistem sedang sibuk. Coba lagi nanti."
	TechnicalText     = "⚠️ Terjadi gangguan teknis."

	promptBusyText      = "🤖 Sistem sedang sibuk. Coba beberapa saat lagi."
	promptBlockedText   = "🔒 Respons diblokir karena kebijakan sistem."
	promptFailedText    = "⚠️ Terjadi kesalahan pada sistem."
	promptTechnicalText = "⚠️ Terjadi kesalahan teknis."
)

// failureMarkers in a refined prompt mean the refinement produced an error
// message instead of a prompt.
var failureMarkers = []string{"Error", "ERROR", "sibuk", "teknis"}

// Synthesizer is the image-synthesis collaborator.
type Synthesizer interface {
	Generate(ctx context.Context, prompt string) ([]byte, error)
}

// Emit delivers an event to the caller. A non-nil error stops the run.
type Emit func(types.StreamEvent) error

// Pipeline runs image requests.
type Pipeline struct {
	synth Synthesizer
}

// NewPipeline creates a Pipeline.
func NewPipeline(synth Synthesizer) *Pipeline {
	return &Pipeline{synth: synth}
}

// Run executes the pipeline for request. Stage failures are reported through
// emit and return nil; the returned error is non-nil only when emit fails or
// an unexpected panic was recovered after the technical notice was sent.
func (p *Pipeline) Run(ctx context.Context, model perception.Model, request string, emit Emit) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.ArtistWarn("Image pipeline panic: %v", r)
			if emitErr := emit(types.Text(TechnicalText)); emitErr != nil {
				err = emitErr
				return
			}
			err = fmt.Errorf("image pipeline panic: %v", r)
		}
	}()

	timer := logging.StartTimer(logging.CategoryArtist, "ImagePipeline")
	defer timer.Stop()

	// Stage 1: literal description.
	if err := emit(types.Status(types.StatusExtractingDescription)); err != nil {
		return err
	}
	description, err := perception.Complete(ctx, model, OperationDescribe, prompt.ExtractDescription(request))
	description = strings.TrimSpace(description)
	switch {
	case errors.Is(err, perception.ErrUnavailable):
		logging.ArtistWarn("Description extraction: %v", err)
		return emit(types.Text(BusyText))
	case err != nil && !errors.Is(err, perception.ErrBlocked) && !errors.Is(err, perception.ErrEmpty):
		logging.ArtistWarn("Description extraction failed: %v", err)
		return emit(types.Text(TechnicalText))
	case description == "" || strings.Contains(description, "ERROR"):
		logging.Artist("No image description found in %q", request)
		return emit(types.Text(NotUnderstoodText))
	}
	logging.Artist("Image description: %q", description)

	// Stage 2: photorealistic prompt.
	if err := emit(types.Status(types.StatusGeneratingPrompt)); err != nil {
		return err
	}
	refined, ok := p.refine(ctx, model, description)
	if !ok {
		return emit(types.Text("Gagal untuk: " + refined))
	}

	// Stage 3: synthesis.
	if err := emit(types.Status(types.StatusGeneratingImage)); err != nil {
		return err
	}
	image, err := p.synth.Generate(ctx, refined)
	if err != nil {
		return emit(types.Text("Gagal membuat gambar: " + imaging.UserMessage(err)))
	}
	logging.Artist("Image generated (%d bytes)", len(image))
	return emit(types.Image(image, description))
}

// refine returns the refined prompt, or a failure text with ok=false.
func (p *Pipeline) refine(ctx context.Context, model perception.Model, description string) (string, bool) {
	out, err := model.Generate(ctx, perception.Request{
		Operation: OperationPrompt,
		Prompt:    prompt.ImagePrompt(description),
		Safety:    true,
	})
	if err != nil {
		logging.ArtistWarn("Prompt refinement failed: %v", err)
		switch {
		case errors.Is(err, perception.ErrUnavailable):
			return promptBusyText, false
		case errors.Is(err, perception.ErrBlocked):
			return promptBlockedText, false
		case errors.Is(err, perception.ErrEmpty):
			return promptFailedText, false
		default:
			return promptTechnicalText, false
		}
	}
	out = strings.TrimSpace(out)
	for _, marker := range failureMarkers {
		if strings.Contains(out, marker) {
			logging.ArtistWarn("Refined prompt looks like a failure: %q", out)
			return out, false
		}
	}
	return out, true
}
