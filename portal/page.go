package portal

import (
	"context"
	"errors"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"github.com/use-agent/certcheck/cleaner"
)

// Page is one portal tab inside its own incognito context.
type Page struct {
	page    *rod.Page
	context *rod.Browser
	router  *rod.HijackRouter
	url     string
	owner   *Browser

	closeOnce sync.Once
	closeErr  error
}

// Text returns the rendered text of the body. When innerText cannot be
// evaluated the serialized DOM is flattened instead.
func (p *Page) Text(ctx context.Context) (string, bool) {
	res, err := p.page.Context(ctx).Eval(`() => document.body ? document.body.innerText : ""`)
	if err == nil {
		return res.Value.Str(), true
	}
	html, ok := p.HTML(ctx)
	if !ok {
		return "", false
	}
	return cleaner.VisibleText(html), true
}

// HTML returns the serialized DOM of the top-level document.
func (p *Page) HTML(ctx context.Context) (string, bool) {
	html, err := p.page.Context(ctx).HTML()
	if err != nil {
		return "", false
	}
	return html, true
}

// Screenshot captures the full page as PNG.
func (p *Page) Screenshot(ctx context.Context) ([]byte, bool) {
	png, err := p.page.Context(ctx).Screenshot(true, nil)
	if err != nil {
		return nil, false
	}
	return png, true
}

// Close stops request interception and disposes the incognito context,
// which closes the tab with it. Later calls return the first result.
func (p *Page) Close() error {
	p.closeOnce.Do(func() {
		var errs []error
		if p.router != nil {
			errs = append(errs, p.router.Stop())
		}
		errs = append(errs, p.page.Close(), p.context.Close())
		p.closeErr = errors.Join(errs...)
		if p.owner != nil {
			p.owner.openPages.Add(-1)
		}
	})
	return p.closeErr
}

// frames returns the top document followed by every iframe document that
// could be entered.
func (p *Page) frames(ctx context.Context) []*rod.Page {
	top := p.page.Context(ctx)
	out := []*rod.Page{top}

	iframes, err := top.Elements("iframe")
	if err != nil {
		return out
	}
	for _, el := range iframes {
		if f, err := el.Frame(); err == nil {
			out = append(out, f)
		}
	}
	return out
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}
