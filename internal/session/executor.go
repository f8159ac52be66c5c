// Package session runs one response flow per user message.
//
// A flow acquires a model, loads the user's conversation, classifies the
// request and dispatches it:
//
//	NEEDS_RESEARCH, or CODE_GENERATION without session files -> research, then answer
//	IMAGE_GENERATION                                       -> image pipeline
//	everything else                                        -> direct answer
//
// Every flow is exposed to the caller as a Stream of typed events. Failures
// surface as events rather than errors; the caller renders whatever arrives.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ghostbot/internal/logging"
	"ghostbot/internal/perception"
	"ghostbot/internal/prompt"
	"ghostbot/internal/shards/artist"
	"ghostbot/internal/shards/researcher"
	"ghostbot/internal/types"
	"ghostbot/internal/usage"

	"github.com/google/uuid"
)

// Operation labels for model calls made by the executor.
const (
	OperationStream    = "stream"
	OperationVision    = "vision"
	OperationSummarize = "summarize"
)

// User-facing texts.
const (
	NoKeysText        = "🕒 Sistem sedang sibuk karena semua kunci API gagal. Coba lagi beberapa saat lagi."
	GenericText       = "⚠️ Terjadi gangguan teknis. Coba lagi nanti."
	RestrictedText    = "Saya tidak dapat memberikan respons karena pembatasan sistem."
	VisionBusyText    = "🕒 Sistem sedang sibuk. Coba lagi beberapa saat lagi."
	VisionGenericText = "⚠️ Terjadi gangguan teknis saat menganalisis gambar."
	VisionEmptyText   = "Saya tidak dapat memberikan respons terkait gambar ini karena pembatasan sistem."
)

// Flow outcomes recorded in metrics.
const (
	outcomeOK        = "ok"
	outcomeBusy      = "busy"
	outcomeFailed    = "failed"
	outcomeStopped   = "stopped"
	outcomeEmpty     = "empty"
	outcomeNoResults = "no_results"
	outcomeImage     = "image"
)

// ModelSource hands out a working model for one flow.
type ModelSource interface {
	Acquire(ctx context.Context) (perception.Model, error)
}

// Store is the slice of the context store used by flows.
type Store interface {
	Get(ctx context.Context, userID int64) (*types.ConversationState, error)
	Save(ctx context.Context, userID int64, history []types.Turn, sessionName *string, files map[string]string) error
	AddWebResult(ctx context.Context, userID int64, query string, results []types.SearchResult) error
	SessionContext(ctx context.Context, userID int64) (string, bool, error)
}

// Researcher runs web research for one request.
type Researcher interface {
	Run(ctx context.Context, model perception.Model, utterance string, history []types.Turn, emit researcher.Emit) (researcher.Result, error)
}

// Artist runs the image pipeline for one request.
type Artist interface {
	Run(ctx context.Context, model perception.Model, request string, emit artist.Emit) error
}

// Config configures an Executor.
type Config struct {
	// Persona is the assistant name used in context-wrapped prompts.
	Persona string
}

// Executor produces response streams.
type Executor struct {
	models   ModelSource
	store    Store
	research Researcher
	artist   Artist
	persona  string
}

// NewExecutor creates an Executor.
func NewExecutor(models ModelSource, store Store, research Researcher, artist Artist, cfg Config) *Executor {
	persona := cfg.Persona
	if persona == "" {
		persona = prompt.DefaultPersona
	}
	return &Executor{
		models:   models,
		store:    store,
		research: research,
		artist:   artist,
		persona:  persona,
	}
}

// flow is the per-request state shared by the dispatch helpers.
type flow struct {
	userID int64
	stream *Stream
	log    *logging.RequestLogger
}

func (f *flow) emit(ev types.StreamEvent) error {
	return f.stream.emit(ev)
}

// start runs fn on its own goroutine behind a new Stream.
func (e *Executor) start(ctx context.Context, kind string, userID int64, fn func(ctx context.Context, f *flow) string) *Stream {
	s := newStream()
	f := &flow{
		userID: userID,
		stream: s,
		log:    logging.WithRequestID(logging.CategorySession, uuid.NewString()[:8]).WithField("user", userID),
	}
	usage.RecordFlowStart()
	go func() {
		started := time.Now()
		outcome := outcomeFailed
		defer close(s.done)
		defer close(s.events)
		defer func() {
			if r := recover(); r != nil {
				f.log.Error("%s flow panic: %v", kind, r)
				_ = f.emit(types.Fail(GenericText, fmt.Errorf("panic: %v", r)))
			}
			usage.RecordFlowEnd(kind, outcome, time.Since(started).Seconds())
			f.log.Debug("%s flow finished: %s in %v", kind, outcome, time.Since(started))
		}()
		outcome = fn(ctx, f)
	}()
	return s
}

// Respond answers a text message.
func (e *Executor) Respond(ctx context.Context, userID int64, utterance string) *Stream {
	return e.start(ctx, "text", userID, func(ctx context.Context, f *flow) string {
		return e.respond(ctx, f, utterance)
	})
}

func (e *Executor) respond(ctx context.Context, f *flow, utterance string) string {
	model, err := e.models.Acquire(ctx)
	if err != nil {
		f.log.Warn("No model available: %v", err)
		_ = f.emit(types.Text(NoKeysText))
		return outcomeBusy
	}

	state, err := e.store.Get(ctx, f.userID)
	if err != nil {
		f.log.Error("Load conversation failed: %v", err)
		_ = f.emit(types.Fail(GenericText, err))
		return outcomeFailed
	}

	strategy, err := perception.Classify(ctx, model, utterance, state.History, state.FileNames())
	if err != nil {
		f.log.Warn("Classification failed: %v", err)
		if perception.IsCredentialError(err) || errors.Is(err, perception.ErrUnavailable) {
			_ = f.emit(types.Text(NoKeysText))
			return outcomeBusy
		}
		_ = f.emit(types.Fail(GenericText, err))
		return outcomeFailed
	}
	f.log.Info("Strategy %s for %q", strategy, truncate(utterance, 60))

	switch {
	case strategy == perception.StrategyNeedsResearch,
		strategy == perception.StrategyCodeGeneration && len(state.SessionFiles) == 0:
		next, outcome := e.runResearch(ctx, f, model, utterance, state)
		if next == nil {
			return outcome
		}
		state = next
	case strategy == perception.StrategyImageGeneration:
		if err := e.artist.Run(ctx, model, utterance, f.emit); err != nil {
			if errors.Is(err, ErrStreamClosed) {
				return outcomeStopped
			}
			return outcomeFailed
		}
		return outcomeImage
	}

	if err := f.emit(types.Status(types.StatusGenerationStart)); err != nil {
		return outcomeStopped
	}

	final := utterance
	sessionContext, ok, err := e.store.SessionContext(ctx, f.userID)
	switch {
	case err != nil:
		f.log.Warn("Session context unavailable, answering without it: %v", err)
	case ok:
		final = prompt.WithContext(e.persona, sessionContext, utterance)
	}
	if strategy.Conversational() {
		final = prompt.AntiRepetition(utterance)
	}

	full, outcome := e.stream(ctx, f, model, perception.Request{
		Operation: OperationStream,
		Prompt:    final,
		Turns:     state.History,
		Safety:    true,
	}, GenericText)
	if outcome != outcomeOK {
		return outcome
	}
	if full == "" {
		_ = f.emit(types.Text(RestrictedText))
		return outcomeEmpty
	}
	return e.finish(ctx, f, state, utterance, full)
}

// runResearch returns the refreshed state, or nil with the flow outcome when
// the flow must end here.
func (e *Executor) runResearch(ctx context.Context, f *flow, model perception.Model, utterance string, state *types.ConversationState) (*types.ConversationState, string) {
	if err := f.emit(types.Status(types.StatusResearchStart)); err != nil {
		return nil, outcomeStopped
	}
	result, err := e.research.Run(ctx, model, utterance, state.History, f.emit)
	switch {
	case errors.Is(err, ErrStreamClosed):
		return nil, outcomeStopped
	case errors.Is(err, researcher.ErrNoResults):
		_ = f.emit(types.Text(researcher.NoResultsText))
		return nil, outcomeNoResults
	case err != nil:
		f.log.Error("Research failed: %v", err)
		_ = f.emit(types.Fail(GenericText, err))
		return nil, outcomeFailed
	}

	if err := e.store.AddWebResult(ctx, f.userID, result.QuerySummary(), result.Results); err != nil {
		f.log.Error("Store web results failed: %v", err)
		_ = f.emit(types.Fail(GenericText, err))
		return nil, outcomeFailed
	}
	// The web result may have started a session; reload so the save below
	// does not overwrite it.
	fresh, err := e.store.Get(ctx, f.userID)
	if err != nil {
		f.log.Error("Reload conversation failed: %v", err)
		_ = f.emit(types.Fail(GenericText, err))
		return nil, outcomeFailed
	}
	return fresh, outcomeOK
}

// stream forwards model deltas as text events and returns the accumulated
// answer. When the consumer goes away the model stream is drained in the
// background.
func (e *Executor) stream(ctx context.Context, f *flow, model perception.Model, req perception.Request, failure string) (string, string) {
	text, errs := model.Stream(ctx, req)
	var full strings.Builder
	for delta := range text {
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		if err := f.emit(types.Text(delta)); err != nil {
			go drain(text, errs)
			return "", outcomeStopped
		}
	}
	if err := <-errs; err != nil && !errors.Is(err, perception.ErrEmpty) {
		f.log.Warn("%s stream failed after %d chars: %v", req.Operation, full.Len(), err)
		if errors.Is(err, perception.ErrUnavailable) || perception.IsCredentialError(err) {
			failure = NoKeysText
		}
		_ = f.emit(types.Fail(failure, err))
		return "", outcomeFailed
	}
	return full.String(), outcomeOK
}

// finish appends the exchange to history, saves it and emits the end event.
func (e *Executor) finish(ctx context.Context, f *flow, state *types.ConversationState, userText, full string) string {
	history := make([]types.Turn, 0, len(state.History)+2)
	history = append(history, state.History...)
	history = append(history,
		types.NewTurn(types.RoleUser, userText),
		types.NewTurn(types.RoleModel, full),
	)
	if err := e.store.Save(ctx, f.userID, history, state.ActiveSessionName, state.SessionFiles); err != nil {
		f.log.Error("Save conversation failed: %v", err)
		_ = f.emit(types.Fail(GenericText, err))
		return outcomeFailed
	}
	if err := f.emit(types.StreamEnd(full)); err != nil {
		return outcomeStopped
	}
	return outcomeOK
}

// RespondToImage answers a photo. An empty prompt asks for a description.
func (e *Executor) RespondToImage(ctx context.Context, userID int64, userPrompt string, image perception.Media) *Stream {
	return e.start(ctx, "vision", userID, func(ctx context.Context, f *flow) string {
		return e.respondToImage(ctx, f, userPrompt, image)
	})
}

func (e *Executor) respondToImage(ctx context.Context, f *flow, userPrompt string, image perception.Media) string {
	if strings.TrimSpace(userPrompt) == "" {
		userPrompt = prompt.DefaultVisionPrompt
	}
	model, err := e.models.Acquire(ctx)
	if err != nil {
		f.log.Warn("No model available: %v", err)
		_ = f.emit(types.Text(VisionBusyText))
		return outcomeBusy
	}
	state, err := e.store.Get(ctx, f.userID)
	if err != nil {
		f.log.Error("Load conversation failed: %v", err)
		_ = f.emit(types.Fail(VisionGenericText, err))
		return outcomeFailed
	}
	if image.MIMEType == "" {
		image.MIMEType = "image/jpeg"
	}

	full, outcome := e.stream(ctx, f, model, perception.Request{
		Operation: OperationVision,
		Prompt:    userPrompt,
		Turns:     state.History,
		Media:     []perception.Media{image},
		Safety:    true,
	}, VisionGenericText)
	if outcome != outcomeOK {
		return outcome
	}
	if full == "" {
		_ = f.emit(types.Text(VisionEmptyText))
		return outcomeEmpty
	}
	return e.finish(ctx, f, state, prompt.VisionTurn(userPrompt), full)
}

// Summarize condenses text for display. It falls back to the input when the
// model fails or returns nothing.
func (e *Executor) Summarize(ctx context.Context, text string) string {
	timer := logging.StartTimer(logging.CategorySession, "Summarize")
	defer timer.Stop()

	model, err := e.models.Acquire(ctx)
	if err != nil {
		logging.SessionWarn("Summarize skipped, no model: %v", err)
		return text
	}
	out, err := model.Generate(ctx, perception.Request{
		Operation: OperationSummarize,
		Prompt:    prompt.Summarize(text),
		Safety:    true,
	})
	out = strings.TrimSpace(out)
	if err != nil || out == "" {
		logging.SessionWarn("Summarize failed, keeping %d chars: %v", len([]rune(text)), err)
		return text
	}
	logging.Session("Summarized %d chars into %d", len([]rune(text)), len([]rune(out)))
	return out
}

func drain(text <-chan string, errs <-chan error) {
	for range text {
	}
	<-errs
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
