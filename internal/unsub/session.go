package unsub

import "context"

// Element is a handle to a page element returned by a Session. Ref is
// meaningful only to the Session that produced it.
type Element struct {
	Ref  string
	Text string
	Href string
}

// Session is a scripted browser page. A Session is used by one goroutine.
type Session interface {
	// Open navigates to url and waits for the page to be ready.
	Open(ctx context.Context, url string) error
	// FindByTextOrHref returns the first visible clickable element whose text,
	// value or href contains one of patterns, tried in order.
	FindByTextOrHref(ctx context.Context, patterns []string) (Element, bool, error)
	// Activate clicks el.
	Activate(ctx context.Context, el Element) error
	// CheckByLabel ticks every unticked checkbox whose label contains one
	// of patterns and returns how many it ticked.
	CheckByLabel(ctx context.Context, patterns []string) (int, error)
	// CurrentURL returns the page URL after redirects.
	CurrentURL(ctx context.Context) (string, error)
	// Content returns the page HTML.
	Content(ctx context.Context) (string, error)
	// Close releases the browser. It is safe to call more than once.
	Close() error
}

// Launcher starts browser sessions.
type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}
