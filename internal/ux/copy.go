// Package ux holds the bot's user-facing copy (Indonesian) and its inline
// menus. Strings that interpolate user data escape it for HTML parse mode.
package ux

import (
	"fmt"
	"strings"

	"ghostbot/internal/transport"
	"ghostbot/internal/types"
)

// Conversation flow.
const (
	StartText       = "<b>🤖👋 Halo! Saya GHOST.</b>"
	UnclearText     = "🤖 Pertanyaan kurang jelas."
	ThinkingText    = "🤖💭 Berpikir..."
	AnalyzingPhoto  = "🤖🖼️ Menganalisis gambar..."
	ProcessingVoice = "🤖🎙️ Memproses pesan suara..."
	VoiceFailedText = "❌ Gagal memproses pesan suara."
	AnalyzingLink   = "🤖🔗 <i>Menganalisis tautan...</i>"
	LinkFailedText  = "⚠️ Tidak dapat mengambil konten dari tautan."
	FileTooLarge    = "📁 File terlalu besar (maks 5 MB)."
	FileFailedText  = "❌ Gagal memproses file."
)

// Stream rendering.
const (
	Cursor       = "▌"
	StopButton   = "⏹️ Hentikan"
	StopNotice   = "\n\n_Proses dihentikan oleh pengguna._"
	RenderFailed = "❗🤖 Terjadi kesalahan saat menampilkan respons."
)

// StopPrefix starts the callback data of the stop button.
const StopPrefix = "stop_"

var statusLines = map[types.StatusKind]string{
	types.StatusResearchStart:         "🤖🔍 Mencari informasi...",
	types.StatusGenerationStart:       "🤖💬 Memberikan respon...",
	types.StatusExtractingDescription: "🤖🖼️ Memproses permintaan gambar...",
	types.StatusGeneratingPrompt:      "🤖⏳ Memproses deskripsi...",
	types.StatusGeneratingImage:       "🤖🎨 Membuat gambar...",
	types.StatusSummarizing:           "🤖🔍 Menganalisis...",
}

// StatusLine returns the placeholder text for kind, or false when the kind
// has no display line.
func StatusLine(kind types.StatusKind) (string, bool) {
	line, ok := statusLines[kind]
	return line, ok
}

// SearchingLine is the placeholder text while one research query runs.
func SearchingLine(query string) string {
	if query == "" {
		query = "..."
	}
	return fmt.Sprintf("🤖🔎 Mencari: <i>\"%s\"</i>", transport.EscapeHTML(query))
}

// ImageCaption captions a generated image.
func ImageCaption(description string) string {
	return fmt.Sprintf("🖼️ <code>%s</code>", transport.EscapeHTML(description))
}

// StopKeyboard is attached to interim renders.
func StopKeyboard(chatID int64) transport.Keyboard {
	return transport.Keyboard{{{Text: StopButton, Data: fmt.Sprintf("%s%d", StopPrefix, chatID)}}}
}

// Transcript echoes a voice note transcription.
func Transcript(text string) string {
	return fmt.Sprintf("<b>📝 Transkripsi:</b>\n<i>\"%s\"</i>", transport.EscapeHTML(text))
}

// ProcessingFile is the placeholder while a document is extracted.
func ProcessingFile(name string) string {
	return fmt.Sprintf("📄 <i>Memproses <code>%s</code>...</i>", transport.EscapeHTML(name))
}

// FileEmpty reports a document without readable text.
func FileEmpty(name string) string {
	return fmt.Sprintf("⚠️ File <code>%s</code> kosong atau tidak dapat dibaca.", transport.EscapeHTML(name))
}

// FileAdded confirms a document was stored in the session.
func FileAdded(name string) string {
	return fmt.Sprintf("✅ Konten dari <code>%s</code> telah ditambahkan ke sesi.", transport.EscapeHTML(name))
}

// LinkAdded confirms a page was stored in the session.
func LinkAdded(title string) string {
	return fmt.Sprintf("✅ Konten dari <b>%s</b> telah ditambahkan ke sesi.", transport.EscapeHTML(title))
}

// LinkFileName is the session file name for an extracted page.
func LinkFileName(title, url string) string {
	if strings.TrimSpace(title) == "" {
		title = url
	}
	return "URL: " + title
}
