package main

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"ghostbot/internal/articulation"
	"ghostbot/internal/logging"
	"ghostbot/internal/perception"
	"ghostbot/internal/session"
	"ghostbot/internal/tools/documents"
	"ghostbot/internal/tools/research"
	"ghostbot/internal/transport"
	"ghostbot/internal/types"
	"ghostbot/internal/usage"
	"ghostbot/internal/ux"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
)

// Files downloads inbound attachments.
type Files interface {
	Download(ctx context.Context, fileID string) ([]byte, error)
}

// Responder starts response flows.
type Responder interface {
	Respond(ctx context.Context, userID int64, utterance string) *session.Stream
	RespondToImage(ctx context.Context, userID int64, prompt string, image perception.Media) *session.Stream
}

// Memory is the part of the context store the handlers touch directly.
type Memory interface {
	Get(ctx context.Context, userID int64) (*types.ConversationState, error)
	Reset(ctx context.Context, userID int64) (bool, error)
	EndSession(ctx context.Context, userID int64) (string, bool, error)
	AddFile(ctx context.Context, userID int64, name, content string) error
}

// Pages extracts readable text from a URL.
type Pages interface {
	Extract(ctx context.Context, url string) (research.Page, error)
}

// Documents extracts text from uploaded files.
type Documents interface {
	Allowed(size int64) bool
	Extract(name string, data []byte) (string, error)
}

// dispatcher routes Telegram updates to the response flows.
type dispatcher struct {
	tr       transport.Transport
	files    Files
	flows    Responder
	memory   Memory
	models   session.ModelSource
	pages    Pages
	docs     Documents
	renderer *articulation.Renderer
}

// handle processes one update. Errors never escape: each one is logged and,
// where possible, reported to the chat.
func (d *dispatcher) handle(ctx context.Context, update tgbotapi.Update) {
	log := logging.WithRequestID(logging.CategoryTransport, uuid.NewString()[:8])
	defer func() {
		if r := recover(); r != nil {
			log.Error("Update %d panicked: %v", update.UpdateID, r)
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		cq := update.CallbackQuery
		log.WithField("callback", cq.Data).Debug("Callback from %d", userOf(cq.From, 0))
		d.onCallback(ctx, cq)
	case update.Message != nil:
		msg := update.Message
		if msg.Chat == nil {
			return
		}
		ctx = usage.WithUser(ctx, userOf(msg.From, msg.Chat.ID))
		log.WithField("chat", msg.Chat.ID).Debug("Message %d", msg.MessageID)
		d.onMessage(ctx, msg)
	}
}

func userOf(u *tgbotapi.User, fallback int64) int64 {
	if u == nil {
		return fallback
	}
	return u.ID
}

func (d *dispatcher) onMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	userID := userOf(msg.From, chatID)

	switch {
	case msg.IsCommand() && msg.Command() == "start":
		d.onStart(ctx, chatID, userID)
	case msg.IsCommand() && msg.Command() == "menu":
		d.send(ctx, chatID, transport.HTMLText(ux.MenuText).WithKeyboard(ux.MainMenu()))
	case msg.Voice != nil:
		d.onVoice(ctx, chatID, userID, msg.Voice)
	case len(msg.Photo) > 0:
		d.onPhoto(ctx, chatID, userID, msg.Photo[len(msg.Photo)-1], msg.Caption)
	case msg.Document != nil:
		d.onDocument(ctx, chatID, userID, msg.Document)
	case msg.Text != "":
		d.onText(ctx, chatID, userID, msg.Text)
	}
}

func (d *dispatcher) onStart(ctx context.Context, chatID, userID int64) {
	if _, err := d.memory.Reset(ctx, userID); err != nil {
		logging.TransportWarn("Reset on /start for %d failed: %v", userID, err)
	}
	d.send(ctx, chatID, transport.HTMLText(ux.StartText))
}

func (d *dispatcher) onText(ctx context.Context, chatID, userID int64, text string) {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < 2 {
		d.send(ctx, chatID, transport.PlainText(ux.UnclearText))
		return
	}
	if link, ok := soleURL(text); ok {
		d.onURL(ctx, chatID, userID, link)
		return
	}
	d.respond(ctx, chatID, userID, text)
}

// respond streams a text answer into a fresh placeholder.
func (d *dispatcher) respond(ctx context.Context, chatID, userID int64, utterance string) {
	placeholder, ok := d.send(ctx, chatID, transport.PlainText(ux.ThinkingText))
	if !ok {
		return
	}
	d.render(ctx, placeholder, d.flows.Respond(ctx, userID, utterance))
}

func (d *dispatcher) render(ctx context.Context, placeholder transport.MessageRef, stream *session.Stream) {
	if err := d.renderer.Render(ctx, placeholder, stream); err != nil {
		logging.TransportWarn("Render in chat %d ended with error: %v", placeholder.ChatID, err)
	}
}

// soleURL reports whether text is nothing but an http(s) link.
func soleURL(text string) (string, bool) {
	if strings.ContainsAny(text, " \t\n") {
		return "", false
	}
	u, err := url.Parse(text)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", false
	}
	return text, true
}

func (d *dispatcher) onURL(ctx context.Context, chatID, userID int64, link string) {
	placeholder, ok := d.send(ctx, chatID, transport.HTMLText(ux.AnalyzingLink))
	if !ok {
		return
	}
	page, err := d.pages.Extract(ctx, link)
	if err != nil || strings.TrimSpace(page.Text) == "" {
		logging.TransportWarn("Link extraction for %s failed: %v", link, err)
		d.edit(ctx, placeholder, transport.PlainText(ux.LinkFailedText))
		return
	}
	if err := d.memory.AddFile(ctx, userID, ux.LinkFileName(page.Title, link), page.Text); err != nil {
		logging.TransportError("Storing link for %d failed: %v", userID, err)
		d.edit(ctx, placeholder, transport.PlainText(ux.LinkFailedText))
		return
	}
	title := page.Title
	if strings.TrimSpace(title) == "" {
		title = link
	}
	d.edit(ctx, placeholder, transport.HTMLText(ux.LinkAdded(title)))
}

func (d *dispatcher) onDocument(ctx context.Context, chatID, userID int64, doc *tgbotapi.Document) {
	if !d.docs.Allowed(int64(doc.FileSize)) {
		d.send(ctx, chatID, transport.PlainText(ux.FileTooLarge))
		return
	}
	name := doc.FileName
	if name == "" {
		name = doc.FileID
	}
	placeholder, ok := d.send(ctx, chatID, transport.HTMLText(ux.ProcessingFile(name)))
	if !ok {
		return
	}

	data, err := d.files.Download(ctx, doc.FileID)
	if err != nil {
		logging.TransportWarn("Download of %s failed: %v", name, err)
		d.edit(ctx, placeholder, transport.PlainText(ux.FileFailedText))
		return
	}
	text, err := d.docs.Extract(name, data)
	switch {
	case errors.Is(err, documents.ErrEmpty):
		d.edit(ctx, placeholder, transport.HTMLText(ux.FileEmpty(name)))
		return
	case errors.Is(err, documents.ErrTooLarge):
		d.edit(ctx, placeholder, transport.PlainText(ux.FileTooLarge))
		return
	case err != nil:
		logging.TransportWarn("Extraction of %s failed: %v", name, err)
		d.edit(ctx, placeholder, transport.PlainText(ux.FileFailedText))
		return
	}
	if err := d.memory.AddFile(ctx, userID, name, text); err != nil {
		logging.TransportError("Storing %s for %d failed: %v", name, userID, err)
		d.edit(ctx, placeholder, transport.PlainText(ux.FileFailedText))
		return
	}
	d.edit(ctx, placeholder, transport.HTMLText(ux.FileAdded(name)))
}

func (d *dispatcher) onVoice(ctx context.Context, chatID, userID int64, voice *tgbotapi.Voice) {
	placeholder, ok := d.send(ctx, chatID, transport.PlainText(ux.ProcessingVoice))
	if !ok {
		return
	}
	text, err := d.transcribe(ctx, voice)
	if err != nil || text == "" {
		logging.TransportWarn("Voice note in chat %d not transcribed: %v", chatID, err)
		d.edit(ctx, placeholder, transport.PlainText(ux.VoiceFailedText))
		return
	}
	d.edit(ctx, placeholder, transport.HTMLText(ux.Transcript(text)))
	d.respond(ctx, chatID, userID, text)
}

func (d *dispatcher) transcribe(ctx context.Context, voice *tgbotapi.Voice) (string, error) {
	audio, err := d.files.Download(ctx, voice.FileID)
	if err != nil {
		return "", err
	}
	model, err := d.models.Acquire(ctx)
	if err != nil {
		return "", err
	}
	return perception.Transcribe(ctx, model, audio, voice.MimeType)
}

func (d *dispatcher) onPhoto(ctx context.Context, chatID, userID int64, photo tgbotapi.PhotoSize, caption string) {
	placeholder, ok := d.send(ctx, chatID, transport.PlainText(ux.AnalyzingPhoto))
	if !ok {
		return
	}
	data, err := d.files.Download(ctx, photo.FileID)
	if err != nil {
		logging.TransportWarn("Photo download in chat %d failed: %v", chatID, err)
		d.edit(ctx, placeholder, transport.PlainText(session.VisionGenericText))
		return
	}
	image := perception.Media{MIMEType: "image/jpeg", Data: data}
	d.render(ctx, placeholder, d.flows.RespondToImage(ctx, userID, caption, image))
}

func (d *dispatcher) onCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	notice := ""
	defer func() {
		if err := d.tr.AnswerCallback(ctx, cq.ID, notice); err != nil {
			logging.TransportDebug("Answer callback %s failed: %v", cq.ID, err)
		}
	}()
	if cq.Message == nil || cq.Message.Chat == nil {
		return
	}
	ref := transport.MessageRef{ChatID: cq.Message.Chat.ID, MessageID: cq.Message.MessageID}
	userID := userOf(cq.From, ref.ChatID)

	if strings.HasPrefix(cq.Data, ux.StopPrefix) {
		chatID, err := strconv.ParseInt(strings.TrimPrefix(cq.Data, ux.StopPrefix), 10, 64)
		if err != nil || chatID != ref.ChatID {
			logging.TransportWarn("Ignoring stop %q from chat %d", cq.Data, ref.ChatID)
			return
		}
		if d.renderer.Cancels().Request(chatID) {
			notice = "⏹️ Menghentikan..."
		}
		return
	}

	switch cq.Data {
	case ux.CallbackSessionMenu:
		d.edit(ctx, ref, transport.HTMLText(ux.SessionMenuText).WithKeyboard(ux.SessionMenu()))
	case ux.CallbackResetMenu:
		d.edit(ctx, ref, transport.HTMLText(ux.ResetPromptText).WithKeyboard(ux.ResetMenu()))
	case ux.CallbackHelp:
		d.edit(ctx, ref, transport.HTMLText(ux.HelpText).WithKeyboard(ux.BackToMain()))
	case ux.CallbackClose:
		d.edit(ctx, ref, transport.PlainText(ux.MenuClosedText))
	case ux.CallbackBack:
		d.edit(ctx, ref, transport.HTMLText(ux.MenuBackText).WithKeyboard(ux.MainMenu()))
	case ux.CallbackActiveSession:
		state, err := d.memory.Get(ctx, userID)
		if err != nil {
			logging.TransportError("Session lookup for %d failed: %v", userID, err)
			return
		}
		d.edit(ctx, ref, transport.HTMLText(ux.ActiveSession(state.SessionName(), state.HasSession(), state.FileNames())).WithKeyboard(ux.BackToSession()))
	case ux.CallbackEndSession:
		name, ended, err := d.memory.EndSession(ctx, userID)
		if err != nil {
			logging.TransportError("Ending session for %d failed: %v", userID, err)
			return
		}
		text := ux.NoSessionToEnd
		if ended {
			text = ux.SessionEnded(name)
		}
		d.edit(ctx, ref, transport.HTMLText(text).WithKeyboard(ux.BackToSession()))
	case ux.CallbackResetConfirm:
		removed, err := d.memory.Reset(ctx, userID)
		if err != nil {
			logging.TransportError("Reset for %d failed: %v", userID, err)
			return
		}
		text := ux.ResetNothingText
		if removed {
			text = ux.ResetDoneText
		}
		d.edit(ctx, ref, transport.PlainText(text))
	default:
		prefix, action := ux.SplitCallback(cq.Data)
		logging.TransportDebug("Unhandled callback %s/%s", prefix, action)
	}
}

func (d *dispatcher) send(ctx context.Context, chatID int64, msg transport.Message) (transport.MessageRef, bool) {
	ref, err := d.tr.Send(ctx, chatID, msg)
	if err != nil {
		logging.TransportError("Send to chat %d failed: %v", chatID, err)
		return transport.MessageRef{}, false
	}
	return ref, true
}

func (d *dispatcher) edit(ctx context.Context, ref transport.MessageRef, msg transport.Message) {
	if err := d.tr.Edit(ctx, ref, msg); err != nil {
		logging.TransportWarn("Edit in chat %d failed: %v", ref.ChatID, err)
	}
}
