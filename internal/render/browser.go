package render

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/IshaanNene/postharvest/internal/config"
	"github.com/IshaanNene/postharvest/internal/types"
)

const (
	jsScrollHeight   = `() => document.body.scrollHeight`
	jsScrollToBottom = `() => window.scrollTo(0, document.body.scrollHeight)`
)

// BrowserSource implements Source with a Chromium page driven through Rod.
type BrowserSource struct {
	browser  *rod.Browser
	page     *rod.Page
	cfg      config.BrowserConfig
	launched *launcher.Launcher
	logger   *slog.Logger
	mu       sync.Mutex
	closed   bool
}

// NewBrowserSource launches Chromium, or connects to cfg.ControlURL, and opens
// the page every query is loaded into.
func NewBrowserSource(cfg config.BrowserConfig, logger *slog.Logger) (*BrowserSource, error) {
	bs := &BrowserSource{
		cfg:    cfg,
		logger: logger.With("component", "browser_source"),
	}

	controlURL := cfg.ControlURL
	if controlURL == "" {
		l := newLauncher(cfg, cfg.Headless)
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		bs.launched = l
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		bs.cleanupLauncher()
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	bs.browser = browser

	var err error
	if cfg.Stealth {
		bs.page, err = stealth.Page(browser)
	} else {
		bs.page, err = browser.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		bs.Close()
		return nil, fmt.Errorf("open page: %w", err)
	}

	bs.logger.Info("browser source ready",
		"headless", cfg.Headless,
		"stealth", cfg.Stealth,
		"user_data_dir", cfg.UserDataDir,
		"remote", cfg.ControlURL != "",
	)
	return bs, nil
}

// newLauncher builds the Chromium launcher with the flags used for every run.
func newLauncher(cfg config.BrowserConfig, headless bool) *launcher.Launcher {
	l := launcher.New().
		Headless(headless).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("disable-blink-features", "AutomationControlled")
	if cfg.Bin != "" {
		l = l.Bin(cfg.Bin)
	}
	if cfg.UserDataDir != "" {
		// The persistent profile carries the authenticated session.
		l = l.UserDataDir(cfg.UserDataDir)
	}
	return l
}

// Load navigates to url, retrying failed navigations up to the configured
// number of attempts.
func (bs *BrowserSource) Load(ctx context.Context, url string) error {
	page, err := bs.activePage()
	if err != nil {
		return err
	}

	err = retry.Do(
		func() error {
			p := page.Context(ctx).Timeout(bs.cfg.NavigateTimeout)
			if err := p.Navigate(url); err != nil {
				return fmt.Errorf("navigate: %w", err)
			}
			if err := p.WaitLoad(); err != nil {
				return fmt.Errorf("wait load: %w", err)
			}
			return nil
		},
		retry.Attempts(uint(bs.cfg.LoadAttempts)),
		retry.Delay(2*time.Second),
		retry.MaxJitter(time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			bs.logger.Warn("retrying page load", "attempt", n+1, "url", url, "error", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("load %s: %w", url, err)
	}
	return nil
}

// ScrollToBottom scrolls the window to the current end of the document.
func (bs *BrowserSource) ScrollToBottom(ctx context.Context) error {
	page, err := bs.activePage()
	if err != nil {
		return err
	}
	_, err = page.Context(ctx).Eval(jsScrollToBottom)
	return err
}

// CurrentMarkup returns the serialized DOM.
func (bs *BrowserSource) CurrentMarkup(ctx context.Context) (string, error) {
	page, err := bs.activePage()
	if err != nil {
		return "", err
	}
	return page.Context(ctx).HTML()
}

// GrowthSignal returns document.body.scrollHeight.
func (bs *BrowserSource) GrowthSignal(ctx context.Context) (int, error) {
	page, err := bs.activePage()
	if err != nil {
		return 0, err
	}
	res, err := page.Context(ctx).Eval(jsScrollHeight)
	if err != nil {
		return 0, err
	}
	return res.Value.Int(), nil
}

// Close closes the browser and, when it was launched here, the Chromium process.
func (bs *BrowserSource) Close() error {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	if bs.closed {
		return nil
	}
	bs.closed = true

	var err error
	if bs.browser != nil {
		err = bs.browser.Close()
	}
	bs.cleanupLauncher()
	bs.logger.Debug("browser source closed")
	return err
}

func (bs *BrowserSource) activePage() (*rod.Page, error) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	if bs.closed || bs.page == nil {
		return nil, types.ErrSourceClosed
	}
	return bs.page, nil
}

func (bs *BrowserSource) cleanupLauncher() {
	if bs.launched != nil {
		bs.launched.Kill()
		bs.launched = nil
	}
}

// Login opens the login page in a visible browser bound to cfg.UserDataDir and
// blocks until a line is read from confirm. Later headless runs with the same
// profile reuse the session.
func Login(ctx context.Context, cfg config.BrowserConfig, confirm io.Reader, logger *slog.Logger) error {
	if cfg.UserDataDir == "" {
		return fmt.Errorf("browser.user_data_dir must be set to keep the session")
	}
	logger = logger.With("component", "login")

	l := newLauncher(cfg, false)
	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	defer l.Kill()

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect browser: %w", err)
	}
	defer browser.Close()

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}
	if err := page.Context(ctx).Navigate(cfg.LoginURL); err != nil {
		return fmt.Errorf("navigate to login: %w", err)
	}

	logger.Info("log in in the opened browser window, then press Enter here", "url", cfg.LoginURL, "profile", cfg.UserDataDir)

	done := make(chan error, 1)
	go func() {
		_, err := bufio.NewReader(confirm).ReadString('\n')
		if err == io.EOF {
			err = nil
		}
		done <- err
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("read confirmation: %w", err)
		}
	}

	logger.Info("session saved", "profile", cfg.UserDataDir)
	return nil
}
