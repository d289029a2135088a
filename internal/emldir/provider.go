// Package emldir serves a directory of exported .eml files as a mailbox.
// It is handy for dry runs against a saved export and for tests.
package emldir

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jhillyerd/enmime"

	"inboxsweep/internal/extract"
	"inboxsweep/internal/mailbox"
)

// Provider reads messages from Dir. Message ids are file names.
type Provider struct {
	Dir string
}

var _ mailbox.Provider = (*Provider)(nil)

// NewProvider returns a provider over dir.
func NewProvider(dir string) *Provider {
	return &Provider{Dir: dir}
}

type entry struct {
	name    string
	modTime time.Time
}

func (p *Provider) entries() ([]entry, error) {
	des, err := os.ReadDir(p.Dir)
	if err != nil {
		return nil, fmt.Errorf("read eml dir: %w", err)
	}
	var out []entry
	for _, de := range des {
		if de.IsDir() || !strings.EqualFold(filepath.Ext(de.Name()), ".eml") {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		out = append(out, entry{name: de.Name(), modTime: info.ModTime()})
	}
	return out, nil
}

// ListMessages returns up to max file names, newest modification first.
func (p *Provider) ListMessages(ctx context.Context, _ string, max int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	es, err := p.entries()
	if err != nil {
		return nil, err
	}
	sort.Slice(es, func(i, j int) bool {
		if !es[i].modTime.Equal(es[j].modTime) {
			return es[i].modTime.After(es[j].modTime)
		}
		return es[i].name < es[j].name
	})
	if max > 0 && len(es) > max {
		es = es[:max]
	}
	ids := make([]string, len(es))
	for i, e := range es {
		ids[i] = e.name
	}
	return ids, nil
}

// GetMessage parses one file with enmime. When the message has no text
// part enmime renders one from the HTML.
func (p *Provider) GetMessage(ctx context.Context, id string) (extract.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return extract.RawMessage{}, err
	}
	if id == "" || filepath.Base(id) != id {
		return extract.RawMessage{}, fmt.Errorf("invalid message id %q", id)
	}
	path := filepath.Join(p.Dir, id)
	f, err := os.Open(path)
	if err != nil {
		return extract.RawMessage{}, fmt.Errorf("open %s: %w", id, err)
	}
	defer f.Close()

	env, err := enmime.ReadEnvelope(f)
	if err != nil {
		return extract.RawMessage{}, fmt.Errorf("%w: parse %s: %v", extract.ErrMalformedMessage, id, err)
	}

	msg := extract.RawMessage{
		ID:       id,
		Headers:  make(map[string]string),
		BodyText: env.Text,
		BodyHTML: env.HTML,
	}
	for _, key := range []string{"From", "Subject", "Date", "List-Unsubscribe", "List-Unsubscribe-Post"} {
		if v := env.GetHeader(key); v != "" {
			msg.Headers[key] = v
		}
	}
	if info, err := f.Stat(); err == nil {
		msg.InternalDate = info.ModTime().UTC()
	}
	return msg, nil
}

// TotalMessages counts the .eml files in the directory.
func (p *Provider) TotalMessages(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	es, err := p.entries()
	if err != nil {
		return 0, err
	}
	return len(es), nil
}
