// Package browser owns the shared headless Chrome instance used for the
// render acquisition path and for screenshots.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/phrazzld/showhn-judge/internal/config"
)

// ErrNavigationFailed wraps any failure to load the target page.
var ErrNavigationFailed = errors.New("navigation failed")

// RenderResult is the outcome of one rendered page visit.
type RenderResult struct {
	// Text is the visible body text, whitespace-collapsed.
	Text string

	// Screenshot is the viewport PNG, nil unless requested.
	Screenshot []byte
}

// Session wraps one headless Chrome process. The browser is started
// lazily on first use and restarted transparently if it dies. Renders
// are serialized; each one runs in its own fresh tab so pages cannot
// leak state into each other.
type Session struct {
	logger *slog.Logger

	viewportWidth  int
	viewportHeight int

	navigateTimeout time.Duration
	settleTimeout   time.Duration
	settleDelay     time.Duration

	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// NewSession creates a Session. No browser process is started until the
// first Render call.
func NewSession(logger *slog.Logger, acquireCfg config.AcquireConfig, captureCfg config.CaptureConfig) (*Session, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &Session{
		logger:          logger,
		viewportWidth:   captureCfg.ViewportWidth,
		viewportHeight:  captureCfg.ViewportHeight,
		navigateTimeout: acquireCfg.NavigateTimeout,
		settleTimeout:   acquireCfg.SettleTimeout,
		settleDelay:     acquireCfg.SettleDelay,
	}, nil
}

// Render navigates to pageURL in a fresh tab, waits for the page to
// settle, and returns its visible text, plus a viewport screenshot when
// requested. Exactly one render runs at a time.
func (s *Session) Render(ctx context.Context, pageURL string, screenshot bool) (*RenderResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ensureBrowserLocked(); err != nil {
		return nil, err
	}

	tabCtx, cancel := chromedp.NewContext(s.browserCtx)
	defer cancel()

	// The listener must be registered before navigation starts or the
	// networkIdle event can slip past it.
	idle := make(chan struct{}, 1)
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		if e, ok := ev.(*page.EventLifecycleEvent); ok && e.Name == "networkIdle" {
			select {
			case idle <- struct{}{}:
			default:
			}
		}
	})

	navCtx, navCancel := context.WithTimeout(tabCtx, s.navigateTimeout)
	defer navCancel()
	err := chromedp.Run(navCtx,
		chromedp.EmulateViewport(int64(s.viewportWidth), int64(s.viewportHeight)),
		enableLifecycleEvents(),
		chromedp.Navigate(pageURL),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNavigationFailed, pageURL, err)
	}

	// Best effort; plenty of pages never go network-idle.
	select {
	case <-idle:
	case <-time.After(s.settleTimeout):
		s.logger.DebugContext(ctx, "page never went network-idle, proceeding", "url", pageURL)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if s.settleDelay > 0 {
		select {
		case <-time.After(s.settleDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	var text string
	if err := chromedp.Run(tabCtx,
		chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &text),
	); err != nil {
		return nil, fmt.Errorf("extracting page text from %s: %w", pageURL, err)
	}

	result := &RenderResult{Text: collapseWhitespace(text)}

	if screenshot {
		if err := chromedp.Run(tabCtx, chromedp.CaptureScreenshot(&result.Screenshot)); err != nil {
			return nil, fmt.Errorf("capturing screenshot of %s: %w", pageURL, err)
		}
	}

	return result, nil
}

// Close shuts the browser process down. The session can still be used
// afterwards; the next Render starts a fresh browser.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

func (s *Session) ensureBrowserLocked() error {
	if s.browserCtx != nil && s.browserCtx.Err() == nil {
		return nil
	}
	s.closeLocked()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("mute-audio", true),
		chromedp.WindowSize(s.viewportWidth, s.viewportHeight),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Run with no actions starts the process now, so a missing or broken
	// Chrome install surfaces here instead of mid-navigation.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("starting browser: %w", err)
	}

	s.logger.Info("browser started",
		"viewport_width", s.viewportWidth,
		"viewport_height", s.viewportHeight)

	s.allocCancel = allocCancel
	s.browserCtx = browserCtx
	s.browserCancel = browserCancel
	return nil
}

func (s *Session) closeLocked() {
	if s.browserCancel != nil {
		s.browserCancel()
		s.browserCancel = nil
	}
	if s.allocCancel != nil {
		s.allocCancel()
		s.allocCancel = nil
	}
	s.browserCtx = nil
}

func enableLifecycleEvents() chromedp.ActionFunc {
	return func(ctx context.Context) error {
		if err := page.Enable().Do(ctx); err != nil {
			return err
		}
		return page.SetLifecycleEventsEnabled(true).Do(ctx)
	}
}

// collapseWhitespace folds runs of whitespace into single spaces and
// trims the result. Rendered innerText is full of blank lines and
// indentation that would waste the judge's content budget.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
