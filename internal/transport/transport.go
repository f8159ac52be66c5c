// Package transport defines the chat transport boundary used by the renderer
// and the update handlers. Implementations live in subpackages.
package transport

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned when the target message no longer exists.
var ErrNotFound = errors.New("message not found")

// MessageRef identifies a sent message.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// ParseMode selects how message text is interpreted.
type ParseMode string

const (
	Plain ParseMode = ""
	HTML  ParseMode = "HTML"
)

// Button is one inline action. Data is returned verbatim in the callback.
type Button struct {
	Text string
	Data string
}

// Keyboard is rows of inline buttons.
type Keyboard [][]Button

// Message is an outbound text payload. A nil Keyboard on an edit removes
// any existing keyboard.
type Message struct {
	Text      string
	ParseMode ParseMode
	Keyboard  Keyboard
}

// PlainText builds an unformatted message.
func PlainText(text string) Message {
	return Message{Text: text}
}

// HTMLText builds an HTML message.
func HTMLText(text string) Message {
	return Message{Text: text, ParseMode: HTML}
}

// WithKeyboard returns m with kb attached.
func (m Message) WithKeyboard(kb Keyboard) Message {
	m.Keyboard = kb
	return m
}

// Command is a registered bot command.
type Command struct {
	Name        string
	Description string
}

// Transport is the chat transport boundary.
type Transport interface {
	Send(ctx context.Context, chatID int64, msg Message) (MessageRef, error)
	// Edit replaces the text of ref. Editing to identical content is not an
	// error.
	Edit(ctx context.Context, ref MessageRef, msg Message) error
	Delete(ctx context.Context, ref MessageRef) error
	SendPhoto(ctx context.Context, chatID int64, photo []byte, caption Message) (MessageRef, error)
	SetCommands(ctx context.Context, commands []Command) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// EscapeHTML escapes the characters significant to HTML parse mode.
func EscapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}
