// Package browser drives headless Chrome for unsubscribe pages.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"inboxsweep/internal/unsub"
)

// Options configure the Chrome process.
type Options struct {
	Headless  bool
	ExecPath  string // empty means locate Chrome on PATH
	UserAgent string
	Settle    time.Duration // wait after a click for the page to react
}

// Launcher starts one Chrome process per session.
type Launcher struct {
	opts Options
	log  *zap.Logger
}

// NewLauncher returns a Launcher using opts.
func NewLauncher(opts Options, log *zap.Logger) *Launcher {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Settle <= 0 {
		opts.Settle = 1500 * time.Millisecond
	}
	return &Launcher{opts: opts, log: log}
}

// Launch starts Chrome and opens a blank tab. The returned session must be
// closed to stop the process.
func (l *Launcher) Launch(ctx context.Context) (unsub.Session, error) {
	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts, chromedp.Flag("headless", l.opts.Headless))
	if l.opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(l.opts.ExecPath))
	}
	if l.opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(l.opts.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(l.log.Sugar().Debugf))

	// The first Run starts the browser and must use the long-lived context.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}
	l.log.Debug("chrome started", zap.Bool("headless", l.opts.Headless))
	return &Session{
		ctx:         browserCtx,
		cancel:      browserCancel,
		allocCancel: allocCancel,
		settle:      l.opts.Settle,
	}, nil
}

// Session is one Chrome tab.
type Session struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	settle      time.Duration
	closeOnce   sync.Once
}

var _ unsub.Session = (*Session)(nil)

// run executes actions on the tab, bounded by the deadline and cancellation
// of the caller's ctx.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	var runCtx context.Context
	var cancel context.CancelFunc
	if dl, ok := ctx.Deadline(); ok {
		runCtx, cancel = context.WithDeadline(s.ctx, dl)
	} else {
		runCtx, cancel = context.WithCancel(s.ctx)
	}
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (s *Session) Open(ctx context.Context, url string) error {
	return s.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

type jsElement struct {
	Found bool   `json:"found"`
	Ref   string `json:"ref"`
	Text  string `json:"text"`
	Href  string `json:"href"`
}

func (s *Session) FindByTextOrHref(ctx context.Context, patterns []string) (unsub.Element, bool, error) {
	var res jsElement
	if err := s.run(ctx, chromedp.Evaluate(findScript(patterns), &res)); err != nil {
		return unsub.Element{}, false, err
	}
	if !res.Found {
		return unsub.Element{}, false, nil
	}
	return unsub.Element{Ref: res.Ref, Text: res.Text, Href: res.Href}, true, nil
}

func (s *Session) Activate(ctx context.Context, el unsub.Element) error {
	return s.run(ctx,
		chromedp.Click(refSelector(el.Ref), chromedp.ByQuery),
		chromedp.Sleep(s.settle),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

func (s *Session) CheckByLabel(ctx context.Context, patterns []string) (int, error) {
	var n int
	err := s.run(ctx, chromedp.Evaluate(checkScript(patterns), &n))
	return n, err
}

func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var loc string
	err := s.run(ctx, chromedp.Location(&loc))
	return loc, err
}

func (s *Session) Content(ctx context.Context) (string, error) {
	var html string
	err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

// Close stops the tab and the Chrome process.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.allocCancel()
	})
	return nil
}

const refAttr = "data-inboxsweep-ref"

func refSelector(ref string) string {
	return fmt.Sprintf(`[%s=%q]`, refAttr, ref)
}

// findScript builds the page-side matcher. Patterns are tried in order over
// visible clickable elements; the first hit is tagged so Activate can find it.
func findScript(patterns []string) string {
	arg, _ := json.Marshal(lowered(patterns))
	return fmt.Sprintf(`(function(patterns) {
  const nodes = Array.from(document.querySelectorAll('a, button, input[type=submit], input[type=button], [role=button]'));
  const visible = el => !!(el.offsetWidth || el.offsetHeight || el.getClientRects().length);
  let seq = 0;
  for (const p of patterns) {
    for (const el of nodes) {
      if (!visible(el)) continue;
      const label = String(el.innerText || el.value || el.getAttribute('aria-label') || '').trim();
      const href = String(el.getAttribute('href') || '');
      if (label.toLowerCase().includes(p) || href.toLowerCase().includes(p)) {
        const ref = 'r' + Date.now() + '-' + (seq++);
        el.setAttribute('%s', ref);
        return {found: true, ref: ref, text: label, href: href};
      }
    }
  }
  return {found: false};
})(%s)`, refAttr, arg)
}

// checkScript ticks unticked, enabled checkboxes whose label matches one of
// patterns. The label is taken from associated <label> elements, else the
// text right after the box, else the parent's text.
func checkScript(patterns []string) string {
	arg, _ := json.Marshal(lowered(patterns))
	return fmt.Sprintf(`(function(patterns) {
  let n = 0;
  for (const el of document.querySelectorAll('input[type=checkbox]')) {
    if (el.checked || el.disabled) continue;
    let label = '';
    if (el.labels && el.labels.length) label = Array.from(el.labels).map(l => l.innerText).join(' ');
    if (!label && el.nextSibling) label = String(el.nextSibling.textContent || '');
    if (!label && el.parentElement) label = String(el.parentElement.innerText || '');
    label = (label + ' ' + (el.name || '')).toLowerCase();
    if (patterns.some(p => label.includes(p))) {
      el.click();
      n++;
    }
  }
  return n;
})(%s)`, arg)
}

func lowered(patterns []string) []string {
	out := make([]string, len(patterns))
	for i, p := range patterns {
		out[i] = strings.ToLower(p)
	}
	return out
}
