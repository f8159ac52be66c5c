package artist

import (
	"context"
	"errors"
	"testing"

	"ghostbot/internal/perception"
	"ghostbot/internal/perception/perceptiontest"
	"ghostbot/internal/tools/imaging"
	"ghostbot/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSynth struct {
	data   []byte
	err    error
	prompt string
	calls  int
}

func (f *fakeSynth) Generate(_ context.Context, prompt string) ([]byte, error) {
	f.calls++
	f.prompt = prompt
	return f.data, f.err
}

func collect(t *testing.T, p *Pipeline, model perception.Model, request string) []types.StreamEvent {
	t.Helper()
	var events []types.StreamEvent
	err := p.Run(context.Background(), model, request, func(ev types.StreamEvent) error {
		events = append(events, ev)
		return nil
	})
	require.NoError(t, err)
	return events
}

func statuses(events []types.StreamEvent) []types.StatusKind {
	var out []types.StatusKind
	for _, ev := range events {
		if ev.Kind == types.EventStatus {
			out = append(out, ev.Status)
		}
	}
	return out
}

func TestPipelineSuccess(t *testing.T) {
	model := perceptiontest.New().
		On(OperationDescribe, perceptiontest.Reply{Text: " kucing oranye di atap \n"}).
		On(OperationPrompt, perceptiontest.Reply{Text: "orange cat on a rooftop, photorealistic, 8k"})
	synth := &fakeSynth{data: []byte("jpeg")}

	events := collect(t, NewPipeline(synth), model, "tolong buatkan gambar kucing oranye di atap")

	assert.Equal(t, []types.StatusKind{
		types.StatusExtractingDescription,
		types.StatusGeneratingPrompt,
		types.StatusGeneratingImage,
	}, statuses(events))

	last := events[len(events)-1]
	assert.Equal(t, types.EventImage, last.Kind)
	assert.Equal(t, []byte("jpeg"), last.Image)
	assert.Equal(t, "kucing oranye di atap", last.Caption)
	assert.Equal(t, "orange cat on a rooftop, photorealistic, 8k", synth.prompt)

	req, ok := model.Last(OperationPrompt)
	require.True(t, ok)
	assert.True(t, req.Safety)
	assert.Contains(t, req.Prompt, `Deskripsi Pengguna: "kucing oranye di atap"`)

	req, _ = model.Last(OperationDescribe)
	assert.False(t, req.Safety)
}

func TestPipelineStageFailures(t *testing.T) {
	tests := []struct {
		name         string
		describe     perceptiontest.Reply
		refine       perceptiontest.Reply
		synthErr     error
		wantText     string
		wantStatuses int
		wantSynth    int
	}{
		{
			name:         "empty description",
			describe:     perceptiontest.Reply{Text: "   "},
			wantText:     NotUnderstoodText,
			wantStatuses: 1,
		},
		{
			name:         "blocked description",
			describe:     perceptiontest.Reply{Err: perception.ErrBlocked},
			wantText:     NotUnderstoodText,
			wantStatuses: 1,
		},
		{
			name:         "unavailable description",
			describe:     perceptiontest.Reply{Err: perception.ErrUnavailable},
			wantText:     BusyText,
			wantStatuses: 1,
		},
		{
			name:         "unexpected description error",
			describe:     perceptiontest.Reply{Err: errors.New("boom")},
			wantText:     TechnicalText,
			wantStatuses: 1,
		},
		{
			name:         "refinement blocked",
			describe:     perceptiontest.Reply{Text: "kucing"},
			refine:       perceptiontest.Reply{Err: perception.ErrBlocked},
			wantText:     "Gagal untuk: 🔒 Respons diblokir karena kebijakan sistem.",
			wantStatuses: 2,
		},
		{
			name:         "refinement returned failure text",
			describe:     perceptiontest.Reply{Text: "kucing"},
			refine:       perceptiontest.Reply{Text: "Sistem sedang sibuk"},
			wantText:     "Gagal untuk: Sistem sedang sibuk",
			wantStatuses: 2,
		},
		{
			name:         "model loading",
			describe:     perceptiontest.Reply{Text: "kucing"},
			refine:       perceptiontest.Reply{Text: "cat, photorealistic"},
			synthErr:     imaging.ErrModelLoading,
			wantText:     "Gagal membuat gambar: ⏳ Model sedang dimuat. Coba lagi.",
			wantStatuses: 3,
			wantSynth:    1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := perceptiontest.New().On(OperationDescribe, tt.describe).On(OperationPrompt, tt.refine)
			synth := &fakeSynth{data: []byte("img"), err: tt.synthErr}

			events := collect(t, NewPipeline(synth), model, "buat gambar")
			last := events[len(events)-1]
			assert.Equal(t, types.EventText, last.Kind)
			assert.Equal(t, tt.wantText, last.Text)
			assert.Len(t, statuses(events), tt.wantStatuses)
			assert.Equal(t, tt.wantSynth, synth.calls)
		})
	}
}

func TestPipelineStopsWhenEmitFails(t *testing.T) {
	model := perceptiontest.New()
	stop := errors.New("gone")
	err := NewPipeline(&fakeSynth{}).Run(context.Background(), model, "x", func(types.StreamEvent) error { return stop })
	assert.ErrorIs(t, err, stop)
	assert.Empty(t, model.Requests())
}

type panicSynth struct{}

func (panicSynth) Generate(context.Context, string) ([]byte, error) { panic("nil map") }

func TestPipelineRecoversPanic(t *testing.T) {
	model := perceptiontest.New().
		On(OperationDescribe, perceptiontest.Reply{Text: "kucing"}).
		On(OperationPrompt, perceptiontest.Reply{Text: "cat"})
	var events []types.StreamEvent
	err := NewPipeline(panicSynth{}).Run(context.Background(), model, "x", func(ev types.StreamEvent) error {
		events = append(events, ev)
		return nil
	})
	assert.Error(t, err)
	assert.Equal(t, TechnicalText, events[len(events)-1].Text)
}
