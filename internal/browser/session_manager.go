// Package browser renders JavaScript-heavy pages in a headless Chrome so the
// page extractor can read text that only exists after client-side rendering.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"ghostbot/internal/logging"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
)

// ErrClosed is returned after Shutdown.
var ErrClosed = errors.New("browser closed")

// Config holds browser configuration.
type Config struct {
	DebuggerURL         string   // connect to an existing Chrome instead of launching
	Launch              []string // binary followed by extra flags
	Headless            bool
	ViewportWidth       int
	ViewportHeight      int
	NavigationTimeoutMs int
	MaxPages            int // concurrent renders
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Headless:            true,
		ViewportWidth:       1366,
		ViewportHeight:      900,
		NavigationTimeoutMs: 30000,
		MaxPages:            2,
	}
}

// NavigationTimeout returns the navigation timeout.
func (c Config) NavigationTimeout() time.Duration {
	if c.NavigationTimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.NavigationTimeoutMs) * time.Millisecond
}

// Render describes one in-flight render.
type Render struct {
	ID        string
	URL       string
	StartedAt time.Time
}

// SessionManager owns the Chrome instance. The browser is started lazily on
// the first render and each render gets its own incognito context.
type SessionManager struct {
	cfg        Config
	mu         sync.RWMutex
	browser    *rod.Browser
	controlURL string
	renders    map[string]Render
	slots      chan struct{}
	closed     bool
}

// NewSessionManager creates a new session manager.
func NewSessionManager(cfg Config) *SessionManager {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 2
	}
	return &SessionManager{
		cfg:     cfg,
		renders: make(map[string]Render),
		slots:   make(chan struct{}, cfg.MaxPages),
	}
}

// Start connects to an existing Chrome or launches a new one.
func (m *SessionManager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	// If we already have a browser, verify it's still alive
	if m.browser != nil {
		if _, err := m.browser.Version(); err == nil {
			return nil
		}
		logging.BrowserWarn("Stale browser connection detected, reconnecting")
		_ = m.browser.Close()
		m.browser = nil
		m.controlURL = ""
	}

	controlURL := m.cfg.DebuggerURL
	if controlURL == "" && len(m.cfg.Launch) > 0 {
		launch := launcher.New().Bin(m.cfg.Launch[0]).Headless(m.cfg.Headless)
		for _, rawFlag := range m.cfg.Launch[1:] {
			name, val, hasVal := strings.Cut(strings.TrimLeft(rawFlag, "-"), "=")
			if hasVal {
				launch = launch.Set(flags.Flag(name), val)
			} else {
				launch = launch.Set(flags.Flag(name))
			}
		}
		url, err := launch.Launch()
		if err != nil {
			return fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = url
	}

	if controlURL == "" {
		url, err := launcher.New().Headless(m.cfg.Headless).Launch()
		if err != nil {
			return fmt.Errorf("no debugger_url and failed to launch: %w", err)
		}
		controlURL = url
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}

	m.browser = browser
	m.controlURL = controlURL
	logging.Browser("Headless browser connected")
	return nil
}

func (m *SessionManager) ensureStarted(ctx context.Context) (*rod.Browser, error) {
	m.mu.RLock()
	b, closed := m.browser, m.closed
	m.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	if b != nil {
		return b, nil
	}
	if err := m.Start(context.WithoutCancel(ctx)); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser, nil
}

// IsConnected returns whether the browser is connected.
func (m *SessionManager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser != nil
}

// Active lists renders in flight.
func (m *SessionManager) Active() []Render {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Render, 0, len(m.renders))
	for _, r := range m.renders {
		out = append(out, r)
	}
	return out
}

// RenderHTML loads url in a fresh incognito page, waits for the load event
// and returns the resulting document HTML.
func (m *SessionManager) RenderHTML(ctx context.Context, url string) (string, error) {
	select {
	case m.slots <- struct{}{}:
		defer func() { <-m.slots }()
	case <-ctx.Done():
		return "", ctx.Err()
	}

	b, err := m.ensureStarted(ctx)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	m.track(Render{ID: id, URL: url, StartedAt: time.Now()})
	defer m.untrack(id)

	timer := logging.StartTimer(logging.CategoryBrowser, "RenderHTML")
	defer timer.Stop()

	incognito, err := b.Incognito()
	if err != nil {
		return "", fmt.Errorf("incognito context: %w", err)
	}
	defer func() { _ = incognito.Close() }()

	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", fmt.Errorf("create page: %w", err)
	}
	defer func() { _ = page.Close() }()

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             m.cfg.ViewportWidth,
		Height:            m.cfg.ViewportHeight,
		DeviceScaleFactor: 1.0,
	}).Call(page); err != nil {
		logging.BrowserDebug("Failed to set viewport: %v", err)
	}

	page = page.Context(ctx).Timeout(m.cfg.NavigationTimeout())
	if err := page.Navigate(url); err != nil {
		return "", fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return "", fmt.Errorf("wait load %s: %w", url, err)
	}
	// Let late XHR-driven content settle.
	_ = page.WaitIdle(2 * time.Second)

	html, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("read html: %w", err)
	}
	logging.BrowserDebug("Rendered %s (%d bytes)", url, len(html))
	return html, nil
}

func (m *SessionManager) track(r Render) {
	m.mu.Lock()
	m.renders[r.ID] = r
	m.mu.Unlock()
}

func (m *SessionManager) untrack(id string) {
	m.mu.Lock()
	delete(m.renders, id)
	m.mu.Unlock()
}

// Shutdown closes the browser. Further renders fail with ErrClosed.
func (m *SessionManager) Shutdown(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	var err error
	if m.browser != nil {
		err = m.browser.Close()
		m.browser = nil
	}
	m.controlURL = ""
	return err
}
