// Package imapbox reads newsletter candidates from an IMAP mailbox.
package imapbox

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"go.uber.org/zap"

	"inboxsweep/internal/extract"
	"inboxsweep/internal/mailbox"
)

// Config holds the connection settings for one IMAP account.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	TLS      bool   // implicit TLS; otherwise STARTTLS
	Mailbox  string // defaults to INBOX
}

func (c Config) addr() string {
	port := c.Port
	if port == 0 {
		port = 993
		if !c.TLS {
			port = 143
		}
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// Provider implements mailbox.Provider over a single lazily opened IMAP
// connection. Bodies fetched while listing are cached so GetMessage does
// not round-trip per message.
type Provider struct {
	cfg Config
	log *zap.Logger

	mu     sync.Mutex
	client *imapclient.Client
	total  int
	cache  map[string]cachedMessage
}

type cachedMessage struct {
	raw      []byte
	received time.Time
}

var _ mailbox.Provider = (*Provider)(nil)

// NewProvider returns a provider for cfg. No connection is made until the
// first call.
func NewProvider(cfg Config, log *zap.Logger) *Provider {
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Provider{cfg: cfg, log: log, cache: make(map[string]cachedMessage)}
}

// connect establishes the connection and selects the mailbox. Callers hold mu.
func (p *Provider) connect(ctx context.Context) (*imapclient.Client, error) {
	if p.client != nil {
		return p.client, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	addr := p.cfg.addr()
	var (
		client *imapclient.Client
		err    error
	)
	if p.cfg.TLS {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	if err := client.Login(p.cfg.Username, p.cfg.Password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, fmt.Errorf("authentication failed for %s: %w", p.cfg.Username, err)
	}

	sel, err := client.Select(p.cfg.Mailbox, &imap.SelectOptions{ReadOnly: true}).Wait()
	if err != nil {
		_ = client.Logout().Wait()
		return nil, fmt.Errorf("selecting %s: %w", p.cfg.Mailbox, err)
	}
	p.total = int(sel.NumMessages)
	p.client = client
	p.log.Debug("imap connected", zap.String("addr", addr), zap.Int("messages", p.total))
	return client, nil
}

// Close logs out and drops the connection.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil {
		return nil
	}
	err := p.client.Logout().Wait()
	p.client.Close()
	p.client = nil
	return err
}

// ListMessages searches for messages whose body mentions unsubscribe and
// returns up to max UIDs, newest first. The matching bodies are fetched in
// one command and cached.
func (p *Provider) ListMessages(ctx context.Context, _ string, max int) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	client, err := p.connect(ctx)
	if err != nil {
		return nil, err
	}

	criteria := &imap.SearchCriteria{Body: []string{"unsubscribe"}}
	data, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching messages: %w", err)
	}
	uids := data.AllUIDs()
	sort.Slice(uids, func(i, j int) bool { return uids[i] > uids[j] })
	if max > 0 && len(uids) > max {
		uids = uids[:max]
	}
	if len(uids) == 0 {
		return nil, nil
	}

	if err := p.fetch(ctx, client, uids); err != nil {
		return nil, err
	}

	ids := make([]string, len(uids))
	for i, uid := range uids {
		ids[i] = strconv.FormatUint(uint64(uid), 10)
	}
	return ids, nil
}

// fetch pulls full bodies for uids into the cache. Callers hold mu.
func (p *Provider) fetch(ctx context.Context, client *imapclient.Client, uids []imap.UID) error {
	section := &imap.FetchItemBodySection{Peek: true}
	opts := &imap.FetchOptions{
		UID:          true,
		InternalDate: true,
		BodySection:  []*imap.FetchItemBodySection{section},
	}

	cmd := client.Fetch(imap.UIDSetNum(uids...), opts)
	defer cmd.Close()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := cmd.Next()
		if msg == nil {
			break
		}
		buf, err := msg.Collect()
		if err != nil {
			p.log.Warn("imap fetch item failed", zap.Error(err))
			continue
		}
		p.cache[strconv.FormatUint(uint64(buf.UID), 10)] = cachedMessage{
			raw:      buf.FindBodySection(section),
			received: buf.InternalDate,
		}
	}
	if err := cmd.Close(); err != nil {
		return fmt.Errorf("fetching messages: %w", err)
	}
	return nil
}

// GetMessage parses the message with the given UID, fetching it when it
// was not cached by ListMessages.
func (p *Provider) GetMessage(ctx context.Context, id string) (extract.RawMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cached, ok := p.cache[id]
	if !ok {
		uid, err := strconv.ParseUint(id, 10, 32)
		if err != nil {
			return extract.RawMessage{}, fmt.Errorf("invalid IMAP uid %q: %w", id, err)
		}
		client, err := p.connect(ctx)
		if err != nil {
			return extract.RawMessage{}, err
		}
		if err := p.fetch(ctx, client, []imap.UID{imap.UID(uid)}); err != nil {
			return extract.RawMessage{}, err
		}
		if cached, ok = p.cache[id]; !ok {
			return extract.RawMessage{}, fmt.Errorf("message UID %s not found", id)
		}
	}
	return parseMessage(id, cached.raw, cached.received)
}

// TotalMessages returns the message count reported when the mailbox was
// selected.
func (p *Provider) TotalMessages(ctx context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.connect(ctx); err != nil {
		return 0, err
	}
	return p.total, nil
}
