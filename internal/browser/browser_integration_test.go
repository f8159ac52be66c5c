//go:build integration

package browser_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ghostbot/internal/browser"

	"github.com/stretchr/testify/require"
)

func TestSessionManager_RenderHTML_Integration(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `<html><body><div id="app"></div>
<script>document.getElementById("app").innerHTML = "<p>Rendered by script</p>";</script>
</body></html>`)
	}))
	defer ts.Close()

	cfg := browser.DefaultConfig()
	cfg.NavigationTimeoutMs = 10000

	sm := browser.NewSessionManager(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	defer func() { _ = sm.Shutdown(context.Background()) }()

	html, err := sm.RenderHTML(ctx, ts.URL)
	require.NoError(t, err)
	require.Contains(t, html, "Rendered by script")
	require.True(t, sm.IsConnected())
	require.Empty(t, sm.Active())
}
