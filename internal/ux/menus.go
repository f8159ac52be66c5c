package ux

import (
	"fmt"
	"strings"

	"ghostbot/internal/transport"
)

// Callback data values.
const (
	CallbackSessionMenu   = "menu_sesi"
	CallbackResetMenu     = "menu_reset"
	CallbackHelp          = "menu_help"
	CallbackClose         = "menu_tutup"
	CallbackBack          = "menu_kembali"
	CallbackActiveSession = "sesi_aktif"
	CallbackEndSession    = "sesi_akhir"
	CallbackResetConfirm  = "reset_confirm"
)

// Menu texts.
const (
	MenuText         = "<b>⚙️ Menu GHOST</b>\n\nPilih fitur di bawah:"
	MenuBackText     = "<b>⚙️ Menu Fitur GHOST</b>\n\nPilih fitur di bawah ini:"
	MenuClosedText   = "✅ Menu ditutup"
	SessionMenuText  = "<b>📁 Menu Sesi</b>\n\nAtur sesi berdasarkan topik/file."
	ResetPromptText  = "<b>⚠️ Hapus Semua</b>\n\nIni akan menghapus semua riwayat & sesi. Data tak bisa dikembalikan. Lanjut?"
	ResetDoneText    = "✅ Semua riwayat telah dihapus."
	ResetNothingText = "ℹ️ Tidak ada riwayat untuk dihapus."
	NoSessionText    = "🔘 Tidak ada sesi aktif."
	NoSessionToEnd   = "❌ Tidak ada sesi aktif."
	EmptySessionText = "<i>Tidak ada file atau tautan dalam sesi ini.</i>"
)

// HelpText lists the bot's features.
const HelpText = "<b>📖 Bantuan & Fitur</b>\n\n" +
	"<b>🔹 Interaksi Dasar:</b>\n" +
	"• <b>Tanya Apapun:</b> Kirim pesan teks atau suara.\n" +
	"• <b>Analisis Gambar:</b> Kirim gambar dan ajukan pertanyaan.\n" +
	"• <b>Diskusi File/Tautan:</b> Kirim file atau URL untuk dibahas.\n\n" +
	"<b>🎨 Membuat Gambar:</b>\n" +
	"Minta saya untuk membuat gambar, contoh: <i>'buatkan gambar astronot di pantai'</i>.\n\n" +
	"<b>🔧 Menu Lanjutan:</b>\n" +
	"• <b>Kelola Sesi:</b> Lihat konteks aktif atau akhiri sesi.\n" +
	"• <b>Hapus Riwayat:</b> Mulai dari awal."

// Commands registered with the transport.
var Commands = []transport.Command{
	{Name: "menu", Description: "Tampilkan menu fitur"},
}

// MainMenu is the /menu keyboard.
func MainMenu() transport.Keyboard {
	return transport.Keyboard{
		{{Text: "⚙️ Kelola", Data: CallbackSessionMenu}, {Text: "🗑️ Hapus", Data: CallbackResetMenu}},
		{{Text: "📖 Bantuan", Data: CallbackHelp}, {Text: "❎ Tutup", Data: CallbackClose}},
	}
}

// SessionMenu manages the active session.
func SessionMenu() transport.Keyboard {
	return transport.Keyboard{
		{{Text: "🟢 Sesi Aktif", Data: CallbackActiveSession}, {Text: "🔴 Akhiri Sesi", Data: CallbackEndSession}},
		{{Text: "⬅️ Kembali", Data: CallbackBack}},
	}
}

// ResetMenu confirms a full reset.
func ResetMenu() transport.Keyboard {
	return transport.Keyboard{
		{{Text: "🗑️ Hapus", Data: CallbackResetConfirm}, {Text: "⬅️ Kembali", Data: CallbackBack}},
	}
}

// BackToMain returns to the main menu.
func BackToMain() transport.Keyboard {
	return transport.Keyboard{{{Text: "⬅️ Kembali ke Menu", Data: CallbackBack}}}
}

// BackToSession returns to the session menu.
func BackToSession() transport.Keyboard {
	return transport.Keyboard{{{Text: "⬅️ Kembali", Data: CallbackSessionMenu}}}
}

// ActiveSession describes the active session and its files.
func ActiveSession(name string, hasSession bool, files []string) string {
	if !hasSession {
		return NoSessionText
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>🟢 Sesi Aktif: '%s'</b>\n\n", transport.EscapeHTML(name))
	if len(files) == 0 {
		sb.WriteString(EmptySessionText)
		return sb.String()
	}
	sb.WriteString("<b>📁 Konteks dalam Sesi:</b>\n")
	for i, f := range files {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "• <code>%s</code>", transport.EscapeHTML(f))
	}
	return sb.String()
}

// SessionEnded confirms the end of a session.
func SessionEnded(name string) string {
	return fmt.Sprintf("⏹️ Sesi '<b>%s</b>' telah diakhiri.", transport.EscapeHTML(name))
}

// SplitCallback splits callback data on the first underscore into a route
// prefix and an action.
func SplitCallback(data string) (prefix, action string) {
	prefix, action, _ = strings.Cut(data, "_")
	return prefix, action
}
