package extract

import (
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// BrowserConfig defines headless browser configuration.
type BrowserConfig struct {
	Headless       bool          `json:"headless" yaml:"headless"`
	Timeout        time.Duration `json:"timeout" yaml:"timeout"`
	UserAgent      string        `json:"user_agent" yaml:"user_agent"`
	ViewportWidth  int           `json:"viewport_width" yaml:"viewport_width"`
	ViewportHeight int           `json:"viewport_height" yaml:"viewport_height"`
	Stealth        bool          `json:"stealth" yaml:"stealth"`
}

// DefaultBrowserConfig returns default browser configuration.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		Headless:       true,
		Timeout:        30 * time.Second,
		UserAgent:      "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		Stealth:        true,
	}
}

// stealthScript masks the most common automation markers before any page
// script runs.
const stealthScript = `() => {
	Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
	window.chrome = window.chrome || { runtime: {} };
	Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });
}`

// Browser wraps a Rod browser instance.
type Browser struct {
	browser *rod.Browser
	config  BrowserConfig
}

// NewBrowser launches and connects a browser.
func NewBrowser(config BrowserConfig) (*Browser, error) {
	l := launcher.New().
		Headless(config.Headless).
		Set("no-sandbox").
		Set("disable-dev-shm-usage")

	if config.Stealth {
		l = l.Set("disable-blink-features", "AutomationControlled")
	}

	url, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(url)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	return &Browser{
		browser: browser,
		config:  config,
	}, nil
}

// NewPage opens a blank page with the configured user agent, viewport,
// and stealth script applied.
func (b *Browser) NewPage() (*rod.Page, error) {
	page, err := b.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	if b.config.UserAgent != "" {
		_ = page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent: b.config.UserAgent,
		})
	}

	if b.config.ViewportWidth > 0 && b.config.ViewportHeight > 0 {
		_ = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             b.config.ViewportWidth,
			Height:            b.config.ViewportHeight,
			DeviceScaleFactor: 1,
		})
	}

	if b.config.Stealth {
		_, _ = page.EvalOnNewDocument(stealthScript)
	}

	return page, nil
}

// Close releases the browser and its pages.
func (b *Browser) Close() error {
	return b.browser.Close()
}
