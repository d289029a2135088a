package unsub

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"inboxsweep/internal/model"
)

// fakePage is one scripted page: its HTML, the clickable controls and
// checkbox labels on it, and the HTML shown after a control is clicked.
type fakePage struct {
	landing    string // URL after redirects, defaults to the opened URL
	content    string
	controls   []Element
	checkboxes []string
	after      string
}

type fakeSession struct {
	mu      sync.Mutex
	pages   map[string]fakePage
	current fakePage
	url     string
	opened  []string
	clicks  []string
	closed  int
	openErr error
	panicOn string
}

func (s *fakeSession) Open(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panicOn != "" && s.panicOn == url {
		panic("renderer crashed")
	}
	s.opened = append(s.opened, url)
	if s.openErr != nil {
		return s.openErr
	}
	p, ok := s.pages[url]
	if !ok {
		return errors.New("net::ERR_NAME_NOT_RESOLVED")
	}
	s.current = p
	s.url = url
	if p.landing != "" {
		s.url = p.landing
	}
	return nil
}

func (s *fakeSession) FindByTextOrHref(_ context.Context, patterns []string) (Element, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range patterns {
		for _, c := range s.current.controls {
			if strings.Contains(strings.ToLower(c.Text), p) || strings.Contains(strings.ToLower(c.Href), p) {
				return c, true, nil
			}
		}
	}
	return Element{}, false, nil
}

func (s *fakeSession) Activate(_ context.Context, el Element) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clicks = append(s.clicks, el.Text)
	if s.current.after != "" {
		s.current = fakePage{content: s.current.after}
	}
	return nil
}

// CheckByLabel records ticks in clicks as "tick:<label>" so tests can
// assert their order relative to button clicks.
func (s *fakeSession) CheckByLabel(_ context.Context, patterns []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, label := range s.current.checkboxes {
		for _, p := range patterns {
			if strings.Contains(strings.ToLower(label), p) {
				s.clicks = append(s.clicks, "tick:"+label)
				n++
				break
			}
		}
	}
	return n, nil
}

func (s *fakeSession) CurrentURL(context.Context) (string, error) { return s.url, nil }

func (s *fakeSession) Content(context.Context) (string, error) { return s.current.content, nil }

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

type fakeLauncher struct {
	sess     *fakeSession
	err      error
	launches int
}

func (l *fakeLauncher) Launch(context.Context) (Session, error) {
	l.launches++
	if l.err != nil {
		return nil, l.err
	}
	return l.sess, nil
}

// testEngine returns an engine without pacing so tests run fast.
func testEngine(t *testing.T, l Launcher) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.RequestTimeout = 2 * time.Second
	cfg.PageTimeout = 2 * time.Second
	cfg.ElementTimeout = 200 * time.Millisecond
	e := NewEngine(cfg, l, zaptest.NewLogger(t))
	e.pacer = newPacer(0)
	return e
}

func headerRecord(id, link string) model.TieredRecord {
	return model.TieredRecord{
		CandidateRecord: model.CandidateRecord{
			ID:                id,
			SenderEmail:       id + "@news.example.com",
			SenderName:        "News " + id,
			UnsubscribeLink:   link,
			UnsubscribeOrigin: model.OriginHeader,
		},
		Difficulty: model.DifficultyEasy,
	}
}

func bodyRecord(id, link string) model.TieredRecord {
	return model.TieredRecord{
		CandidateRecord: model.CandidateRecord{
			ID:                id,
			SenderEmail:       id + "@news.example.com",
			UnsubscribeLink:   link,
			UnsubscribeOrigin: model.OriginBody,
			BodyLink:          link,
		},
		Difficulty: model.DifficultyMedium,
	}
}
