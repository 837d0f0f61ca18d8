package portal

import (
	"context"
	"log/slog"

	"github.com/go-rod/rod"

	"github.com/use-agent/certcheck/session"
)

// CodeSelectors are tried in order to find the verification code field.
var CodeSelectors = []string{
	"input[name*='chave' i]",
	"#chave",
	"input[id*='chave' i]",
	"input[name*='codigo' i]",
	"#codigo",
	"input[id*='codigo' i]",
}

// setValueJS assigns the value directly and fires the events the portal's
// framework listens for.
const setValueJS = `(v) => {
	this.value = v;
	this.dispatchEvent(new Event('input', { bubbles: true }));
	this.dispatchEvent(new Event('change', { bubbles: true }));
}`

// Filler types the verification code into the portal form.
type Filler struct {
	selectors []string
	logger    *slog.Logger
}

// NewFiller creates a Filler using CodeSelectors.
func NewFiller() *Filler {
	return &Filler{selectors: CodeSelectors, logger: slog.Default()}
}

// FillCode looks for the code field in the page and then in each iframe,
// and fills the first match. scope must be a page returned by Browser.Open.
func (f *Filler) FillCode(ctx context.Context, scope session.Page, code string) bool {
	p, ok := scope.(*Page)
	if !ok {
		return false
	}
	for _, frame := range p.frames(ctx) {
		if f.fillFrame(frame, code) {
			return true
		}
	}
	return false
}

func (f *Filler) fillFrame(frame *rod.Page, code string) bool {
	for _, sel := range f.selectors {
		has, el, err := frame.Has(sel)
		if err != nil || !has {
			continue
		}
		if err = el.Input(code); err == nil {
			return true
		}
		f.logger.Debug("typing into code field failed, assigning value", "selector", sel, "error", err)
		if _, err = el.Eval(setValueJS, code); err == nil {
			return true
		}
	}
	return false
}
