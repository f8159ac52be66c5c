// Package articulation renders response streams into chat messages.
//
// A Renderer owns one placeholder message per response. It replaces the
// placeholder with status lines while the flow works, re-renders the growing
// answer at a bounded rate, and finally converts the answer to HTML and
// delivers it in as many messages as the transport limit requires.
package articulation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ghostbot/internal/logging"
	"ghostbot/internal/transport"
	"ghostbot/internal/types"
	"ghostbot/internal/usage"
	"ghostbot/internal/ux"

	"golang.org/x/net/html"
	"golang.org/x/time/rate"
)

// Source is a response stream. Close tells the producer to stop.
type Source interface {
	Events() <-chan types.StreamEvent
	Close()
}

// Summarizer condenses an over-long answer. It returns its input when it
// cannot do better.
type Summarizer interface {
	Summarize(ctx context.Context, text string) string
}

// Config configures a Renderer.
type Config struct {
	// EditInterval is the minimum time between interim renders.
	EditInterval time.Duration
	// SummaryThreshold is the answer length, in runes, above which the
	// answer is summarized before delivery.
	SummaryThreshold int
	// MessageLimit is the transport's per-message limit in runes.
	MessageLimit int
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		EditInterval:     1200 * time.Millisecond,
		SummaryThreshold: 3800,
		MessageLimit:     DefaultMessageLimit,
	}
}

// Renderer turns event streams into messages.
type Renderer struct {
	transport  transport.Transport
	cancels    *CancelRegistry
	summarizer Summarizer
	cfg        Config
}

// NewRenderer creates a Renderer. summarizer may be nil.
func NewRenderer(tr transport.Transport, cancels *CancelRegistry, summarizer Summarizer, cfg Config) *Renderer {
	def := DefaultConfig()
	if cfg.EditInterval <= 0 {
		cfg.EditInterval = def.EditInterval
	}
	if cfg.SummaryThreshold <= 0 {
		cfg.SummaryThreshold = def.SummaryThreshold
	}
	if cfg.MessageLimit <= 0 {
		cfg.MessageLimit = def.MessageLimit
	}
	if cancels == nil {
		cancels = NewCancelRegistry()
	}
	return &Renderer{transport: tr, cancels: cancels, summarizer: summarizer, cfg: cfg}
}

// Cancels returns the registry consulted for stop requests.
func (r *Renderer) Cancels() *CancelRegistry {
	return r.cancels
}

// Render consumes src into placeholder until a terminal event, a stop
// request or the end of the stream. The stop flag for the chat exists only
// for the duration of the call. src is always closed on return.
func (r *Renderer) Render(ctx context.Context, placeholder transport.MessageRef, src Source) (err error) {
	chatID := placeholder.ChatID
	release := r.cancels.Install(chatID)
	defer release()
	defer src.Close()
	defer func() {
		if rec := recover(); rec != nil {
			logging.ArticulationError("Render panic in chat %d: %v", chatID, rec)
			r.fail(ctx, placeholder)
			err = fmt.Errorf("render panic: %v", rec)
		}
	}()

	timer := logging.StartTimer(logging.CategoryArticulation, "Render")
	defer timer.Stop()

	limiter := rate.NewLimiter(rate.Every(r.cfg.EditInterval), 1)
	var buf strings.Builder

consume:
	for ev := range src.Events() {
		if r.cancels.Requested(chatID) {
			buf.WriteString(ux.StopNotice)
			logging.Articulation("Render in chat %d stopped by user", chatID)
			break
		}

		switch ev.Kind {
		case types.EventStatus:
			if line, ok := ux.StatusLine(ev.Status); ok {
				r.edit(ctx, placeholder, transport.HTMLText(line), "status")
			}
			continue
		case types.EventResearchQuery:
			r.edit(ctx, placeholder, transport.HTMLText(ux.SearchingLine(ev.Text)), "status")
			continue
		case types.EventImage:
			return r.deliverImage(ctx, placeholder, ev)
		case types.EventStreamEnd:
			buf.Reset()
			buf.WriteString(ev.Text)
			break consume
		case types.EventText:
			if ev.Err != nil {
				logging.ArticulationWarn("Failed payload in chat %d: %v", chatID, errors.Unwrap(ev.Err))
				buf.Reset()
				buf.WriteString(ev.Err.Error())
				break consume
			}
			buf.WriteString(ev.Text)
		}

		if buf.Len() > 0 && limiter.Allow() {
			interim := truncateRunes(buf.String(), r.cfg.MessageLimit-1) + ux.Cursor
			r.edit(ctx, placeholder, transport.PlainText(interim).WithKeyboard(ux.StopKeyboard(chatID)), "interim")
		}
	}

	return r.finalize(ctx, placeholder, buf.String())
}

// finalize summarizes, converts and delivers the final answer.
func (r *Renderer) finalize(ctx context.Context, placeholder transport.MessageRef, text string) error {
	if r.summarizer != nil && runes(text) > r.cfg.SummaryThreshold {
		if line, ok := ux.StatusLine(types.StatusSummarizing); ok {
			r.edit(ctx, placeholder, transport.PlainText(line), "status")
		}
		text = r.summarizer.Summarize(ctx, text)
	}

	markup := ToHTML(text)
	if markup == "" {
		logging.ArticulationWarn("Empty answer for chat %d", placeholder.ChatID)
		r.fail(ctx, placeholder)
		return nil
	}

	chunks := Split(markup, r.cfg.MessageLimit)
	for i, chunk := range chunks {
		msg := transport.HTMLText(chunk)
		if i == 0 {
			if err := r.deliverFirst(ctx, placeholder, msg); err != nil {
				logging.ArticulationError("Deliver first chunk to chat %d failed: %v", placeholder.ChatID, err)
				r.fail(ctx, placeholder)
				return fmt.Errorf("deliver first chunk: %w", err)
			}
			continue
		}
		if _, err := r.transport.Send(ctx, placeholder.ChatID, msg); err != nil {
			logging.ArticulationError("Send chunk %d/%d to chat %d failed: %v", i+1, len(chunks), placeholder.ChatID, err)
			r.fail(ctx, placeholder)
			return fmt.Errorf("send chunk %d: %w", i+1, err)
		}
		usage.RecordRenderEdit("chunk")
	}
	logging.ArticulationDebug("Delivered %d chunk(s) to chat %d", len(chunks), placeholder.ChatID)
	return nil
}

// deliverFirst puts the first chunk into the placeholder. A rejected HTML
// edit is retried as plain text; a vanished placeholder gets a new message.
func (r *Renderer) deliverFirst(ctx context.Context, placeholder transport.MessageRef, msg transport.Message) error {
	err := r.transport.Edit(ctx, placeholder, msg)
	if err == nil {
		usage.RecordRenderEdit("final")
		return nil
	}
	if errors.Is(err, transport.ErrNotFound) {
		if _, err := r.transport.Send(ctx, placeholder.ChatID, msg); err != nil {
			return fmt.Errorf("resend: %w", err)
		}
		usage.RecordRenderEdit("final")
		return nil
	}
	logging.ArticulationWarn("Final HTML edit in chat %d failed, retrying as plain text: %v", placeholder.ChatID, err)
	plain := transport.PlainText(html.UnescapeString(StripTags(msg.Text)))
	if err := r.transport.Edit(ctx, placeholder, plain); err != nil {
		return fmt.Errorf("plain edit: %w", err)
	}
	usage.RecordRenderEdit("final")
	return nil
}

func (r *Renderer) deliverImage(ctx context.Context, placeholder transport.MessageRef, ev types.StreamEvent) error {
	if err := r.transport.Delete(ctx, placeholder); err != nil {
		logging.ArticulationWarn("Delete placeholder in chat %d failed: %v", placeholder.ChatID, err)
	}
	if _, err := r.transport.SendPhoto(ctx, placeholder.ChatID, ev.Image, transport.HTMLText(ux.ImageCaption(ev.Caption))); err != nil {
		logging.ArticulationError("Send photo to chat %d failed: %v", placeholder.ChatID, err)
		if _, sendErr := r.transport.Send(ctx, placeholder.ChatID, transport.PlainText(ux.RenderFailed)); sendErr != nil {
			logging.ArticulationWarn("Failure notice to chat %d failed: %v", placeholder.ChatID, sendErr)
		}
		return fmt.Errorf("send photo: %w", err)
	}
	usage.RecordRenderEdit("image")
	return nil
}

// edit rewrites the placeholder. Failures are logged, never fatal.
func (r *Renderer) edit(ctx context.Context, placeholder transport.MessageRef, msg transport.Message, kind string) {
	if err := r.transport.Edit(ctx, placeholder, msg); err != nil {
		logging.ArticulationDebug("%s edit in chat %d failed: %v", kind, placeholder.ChatID, err)
		return
	}
	usage.RecordRenderEdit(kind)
}

func (r *Renderer) fail(ctx context.Context, placeholder transport.MessageRef) {
	r.edit(ctx, placeholder, transport.PlainText(ux.RenderFailed), "failure")
}

func truncateRunes(s string, n int) string {
	if n <= 0 || runes(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
