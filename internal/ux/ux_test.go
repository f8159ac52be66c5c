package ux

import (
	"testing"

	"ghostbot/internal/types"

	"github.com/stretchr/testify/assert"
)

func TestStatusLine(t *testing.T) {
	line, ok := StatusLine(types.StatusResearchStart)
	assert.True(t, ok)
	assert.Equal(t, "🤖🔍 Mencari informasi...", line)

	_, ok = StatusLine(types.StatusKind("UNMAPPED"))
	assert.False(t, ok)
}

func TestEscaping(t *testing.T) {
	assert.Equal(t, `🤖🔎 Mencari: <i>"a &lt;b&gt; &amp; c"</i>`, SearchingLine("a <b> & c"))
	assert.Equal(t, `🤖🔎 Mencari: <i>"..."</i>`, SearchingLine(""))
	assert.Equal(t, "🖼️ <code>x&lt;y</code>", ImageCaption("x<y"))
	assert.Equal(t, "✅ Konten dari <code>a&amp;b.pdf</code> telah ditambahkan ke sesi.", FileAdded("a&b.pdf"))
}

func TestActiveSession(t *testing.T) {
	assert.Equal(t, NoSessionText, ActiveSession("", false, nil))
	assert.Equal(t, "<b>🟢 Sesi Aktif: 'Riset'</b>\n\n"+EmptySessionText, ActiveSession("Riset", true, nil))
	assert.Equal(t,
		"<b>🟢 Sesi Aktif: 'Riset'</b>\n\n<b>📁 Konteks dalam Sesi:</b>\n• <code>a.pdf</code>\n• <code>URL: b</code>",
		ActiveSession("Riset", true, []string{"a.pdf", "URL: b"}))
}

func TestSplitCallback(t *testing.T) {
	tests := []struct{ in, prefix, action string }{
		{"menu_sesi", "menu", "sesi"},
		{"stop_12345", "stop", "12345"},
		{"reset_confirm", "reset", "confirm"},
		{"stop_-100_2", "stop", "-100_2"},
		{"plain", "plain", ""},
	}
	for _, tt := range tests {
		p, a := SplitCallback(tt.in)
		assert.Equal(t, tt.prefix, p, tt.in)
		assert.Equal(t, tt.action, a, tt.in)
	}
}

func TestStopKeyboard(t *testing.T) {
	kb := StopKeyboard(-100)
	assert.Equal(t, "stop_-100", kb[0][0].Data)
	assert.Equal(t, StopButton, kb[0][0].Text)
}

func TestMenusRouteToKnownPrefixes(t *testing.T) {
	known := map[string]bool{"menu": true, "sesi": true, "reset": true}
	all := append(append(append(MainMenu(), SessionMenu()...), ResetMenu()...), BackToMain()...)
	all = append(all, BackToSession()...)
	for _, row := range all {
		for _, btn := range row {
			prefix, action := SplitCallback(btn.Data)
			assert.True(t, known[prefix], btn.Data)
			assert.NotEmpty(t, action, btn.Data)
		}
	}
}

func TestLinkFileName(t *testing.T) {
	assert.Equal(t, "URL: Judul", LinkFileName("Judul", "https://x"))
	assert.Equal(t, "URL: https://x", LinkFileName("  ", "https://x"))
}
