// Package portal drives the certificate portal in a real browser.
//
// Every verification gets its own incognito browser context so cookies and
// CAPTCHA state never leak between sessions. The page stays open until the
// session decides and closes it.
package portal

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/use-agent/certcheck/config"
	"github.com/use-agent/certcheck/models"
	"github.com/use-agent/certcheck/session"
)

// settleTimeout caps the wait for the portal DOM to stop changing.
const settleTimeout = 10 * time.Second

// Browser owns the Chromium process. It is safe for concurrent use.
type Browser struct {
	browser   *rod.Browser
	portalCfg config.PortalConfig
	openPages atomic.Int32
	logger    *slog.Logger
}

// Launch starts Chromium and connects to it.
func Launch(browserCfg config.BrowserConfig, portalCfg config.PortalConfig) (*Browser, error) {
	l := launcher.New().
		Headless(browserCfg.Headless).
		NoSandbox(browserCfg.NoSandbox)

	if browserCfg.BrowserBin != "" {
		l = l.Bin(browserCfg.BrowserBin)
	}
	if browserCfg.Proxy != "" {
		l = l.Proxy(browserCfg.Proxy)
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "TranslateUI")
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("no-first-run"))
	l.Set(flags.Flag("lang"), "pt-BR")

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewAPIError(
			models.ErrCodeBrowserCrash,
			"failed to launch browser",
			err,
		)
	}
	slog.Info("browser launched", "controlURL", controlURL, "headless", browserCfg.Headless)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, models.NewAPIError(
			models.ErrCodeBrowserCrash,
			"failed to connect to browser",
			err,
		)
	}

	return &Browser{
		browser:   browser,
		portalCfg: portalCfg,
		logger:    slog.Default(),
	}, nil
}

// OpenPages is the number of portal pages not yet closed.
func (b *Browser) OpenPages() int {
	return int(b.openPages.Load())
}

// Open creates an incognito context, loads the portal form in it and waits
// for the form to render.
//
// Lifecycle:
//
//  1. Incognito context   – isolated cookies and storage per session
//  2. Stealth injection   – before navigation, or it has no effect
//  3. Extra headers       – Portuguese Accept-Language
//  4. Hijack mount        – block fonts/media and ad domains
//  5. Navigate            – bounded by NavigationTimeout
//  6. Wait                – DOM stable, then the fill delay for the SPA router
//
// The whole sequence runs under one deadline from openBudget.
func (b *Browser) Open(ctx context.Context) (session.Page, error) {
	ctx, cancel := context.WithTimeout(ctx, openBudget(b.portalCfg))
	defer cancel()

	// ── 1. Incognito context ─────────────────────────────────────────
	incognito, err := b.browser.Incognito()
	if err != nil {
		return nil, models.NewAPIError(
			models.ErrCodeBrowserCrash,
			"failed to create browser context",
			err,
		)
	}

	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = incognito.Close()
		return nil, models.NewAPIError(
			models.ErrCodeBrowserCrash,
			"failed to create page",
			err,
		)
	}
	p := &Page{page: page, context: incognito, url: b.portalCfg.URL, owner: b}
	b.openPages.Add(1)

	// ── 2. Stealth injection ─────────────────────────────────────────
	if b.portalCfg.Stealth {
		if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
			b.logger.Warn("stealth injection failed, proceeding without stealth",
				"error", evalErr,
			)
		}
	}

	// ── 3. Extra headers ─────────────────────────────────────────────
	_ = proto.NetworkSetExtraHTTPHeaders{
		Headers: toHeadersMap(map[string]string{
			"Accept-Language": "pt-BR,pt;q=0.9,en;q=0.8",
		}),
	}.Call(page)

	// ── 4. Hijack mount ──────────────────────────────────────────────
	p.router = setupHijack(page, b.portalCfg.BlockedResourceTypes, b.portalCfg.BlockAds)

	// ── 5. Navigate ──────────────────────────────────────────────────
	if navErr := page.Context(ctx).Timeout(b.portalCfg.NavigationTimeout).Navigate(b.portalCfg.URL); navErr != nil {
		_ = p.Close()
		return nil, categorizeError(navErr, "navigation to portal failed")
	}

	// ── 6. Wait ──────────────────────────────────────────────────────
	live := page.Context(ctx)
	if stableErr := live.Timeout(settleTimeout).WaitDOMStable(300*time.Millisecond, 0.1); stableErr != nil {
		b.logger.Debug("WaitDOMStable did not converge, proceeding with current DOM",
			"error", stableErr,
		)
	}
	if err := sleepCtx(ctx, b.portalCfg.FillDelay); err != nil {
		_ = p.Close()
		return nil, categorizeError(err, "portal page did not settle")
	}
	if _, err := live.Activate(); err != nil {
		b.logger.Debug("could not bring portal page to front", "error", err)
	}

	return p, nil
}

// Close kills the browser process. Pages still open die with it.
func (b *Browser) Close() {
	slog.Info("browser shutting down", "open_pages", b.OpenPages())
	if err := b.browser.Close(); err != nil {
		slog.Warn("browser close failed", "error", err)
	}
}

// openBudget is the longest Open may take: navigation, the DOM settle wait
// and the fill delay, back to back.
func openBudget(cfg config.PortalConfig) time.Duration {
	return cfg.NavigationTimeout + settleTimeout + cfg.FillDelay
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
