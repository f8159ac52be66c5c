package prompt

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClockFormat(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Jakarta")
	require.NoError(t, err)

	clock := Clock{Location: loc, Label: "WIB"}
	at := time.Date(2026, 10, 16, 2, 30, 5, 0, time.UTC)

	assert.Equal(t, "Friday, 16 October 2026, 09:30:05 WIB", clock.Format(at))
}

func TestSystemIsFreshlyStamped(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	clock := Clock{Location: time.UTC, Label: "UTC", Now: func() time.Time { return now }}

	got := System("", clock)
	assert.Contains(t, got, `"GHOST"`)
	assert.Contains(t, got, "Thursday, 02 January 2025, 03:04:05 UTC")

	now = now.Add(time.Hour)
	assert.Contains(t, System("NOVA", clock), "04:04:05 UTC")
	assert.Contains(t, System("NOVA", clock), `"NOVA"`)
}

func TestImagePromptEmbedsDescription(t *testing.T) {
	got := ImagePrompt("a cat on a roof")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(got), `"a cat on a roof"`))
	assert.Contains(t, got, "photorealistic")
}

func TestStrategyIncludesManifest(t *testing.T) {
	got := Strategy("apa isi file?", "user: halo\n", []string{"a.pdf", "URL: Berita"})
	assert.Contains(t, got, "`a.pdf`, `URL: Berita`")
	assert.Contains(t, got, "CASUAL_CONVERSATION")

	bare := Strategy("halo", "user: halo\n", nil)
	assert.NotContains(t, bare, "Konteks Sesi Saat Ini")
}

func TestQueryDedupEncodesJSON(t *testing.T) {
	got := QueryDedup([]string{`go "generics"`, "go iterators"})
	assert.Contains(t, got, `["go \"generics\"","go iterators"]`)
}
