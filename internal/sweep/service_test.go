package sweep

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"inboxsweep/internal/classify"
	"inboxsweep/internal/extract"
	"inboxsweep/internal/model"
	"inboxsweep/internal/store"
	"inboxsweep/internal/unsub"
)

type fakeProvider struct {
	order    []string
	messages map[string]extract.RawMessage
	total    int
	totalErr error
	listErr  error
}

func (p *fakeProvider) ListMessages(_ context.Context, _ string, max int) ([]string, error) {
	if p.listErr != nil {
		return nil, p.listErr
	}
	ids := p.order
	if max > 0 && len(ids) > max {
		ids = ids[:max]
	}
	return append([]string(nil), ids...), nil
}

func (p *fakeProvider) GetMessage(_ context.Context, id string) (extract.RawMessage, error) {
	m, ok := p.messages[id]
	if !ok {
		return extract.RawMessage{}, fmt.Errorf("message %s gone", id)
	}
	return m, nil
}

func (p *fakeProvider) TotalMessages(context.Context) (int, error) {
	return p.total, p.totalErr
}

func (p *fakeProvider) add(m extract.RawMessage) {
	if p.messages == nil {
		p.messages = make(map[string]extract.RawMessage)
	}
	p.order = append(p.order, m.ID)
	p.messages[m.ID] = m
}

type recordingExecutor struct {
	mu      sync.Mutex
	batches [][]model.TieredRecord
}

func (e *recordingExecutor) Execute(_ context.Context, batch []model.TieredRecord, progress unsub.ProgressFunc) model.AggregateOutcome {
	e.mu.Lock()
	e.batches = append(e.batches, batch)
	e.mu.Unlock()
	agg := model.AggregateOutcome{BatchID: "batch-1"}
	for i, rec := range batch {
		status := model.StatusAutoSuccess
		if rec.Whitelisted {
			status = model.StatusSkipped
		}
		o := model.OutcomeRecord{ID: rec.ID, SenderEmail: rec.SenderEmail, Status: status, Method: model.MethodHeaderRequest}
		agg.Outcomes = append(agg.Outcomes, o)
		if progress != nil {
			progress(i+1, len(batch), o)
		}
	}
	agg.Tally()
	return agg
}

func testAllowList(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "allow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func inbox() *fakeProvider {
	p := &fakeProvider{total: 5000}
	p.add(extract.RawMessage{ID: "h1", Headers: map[string]string{
		"From":             "Daily <daily@news.example>",
		"List-Unsubscribe": "<https://news.example/u/1>",
	}})
	p.add(extract.RawMessage{ID: "b1", Headers: map[string]string{
		"From": "Shop <deals@shop.example>",
	}, BodyHTML: `<a href="https://shop.example/unsubscribe">Unsubscribe</a>`})
	p.add(extract.RawMessage{ID: "bad", Headers: map[string]string{"Subject": "no sender"}})
	p.add(extract.RawMessage{ID: "plain", Headers: map[string]string{
		"From": "friend@example.org",
	}, BodyText: "see you soon"})
	p.add(extract.RawMessage{ID: "li", Headers: map[string]string{
		"From": "Medium Daily Digest <noreply@medium.com>",
	}, BodyHTML: `<a href="https://medium.com/me/settings/unsubscribe">Unsubscribe</a>`})
	return p
}

func TestScanClassifiesInMailboxOrder(t *testing.T) {
	allow := testAllowList(t)
	svc := NewService(classify.NewDefault(), allow, &recordingExecutor{}, 4, zaptest.NewLogger(t))
	acct := NewAccount("me", inbox())

	_, err := allow.Add(context.Background(), "deals@shop.example", "Shop")
	require.NoError(t, err)

	res, err := svc.Scan(context.Background(), acct, 0)
	require.NoError(t, err)

	ids := make([]string, len(res.Candidates))
	for i, c := range res.Candidates {
		ids[i] = c.ID
	}
	assert.Equal(t, []string{"h1", "b1", "plain", "li"}, ids)
	assert.Equal(t, 1, res.Malformed)

	assert.Equal(t, model.DifficultyEasy, res.Candidates[0].Difficulty)
	assert.Equal(t, model.DifficultyWhitelisted, res.Candidates[1].Difficulty)
	assert.True(t, res.Candidates[1].Whitelisted)
	assert.Equal(t, model.DifficultyMedium, res.Candidates[2].Difficulty)
	assert.Equal(t, model.DifficultyHard, res.Candidates[3].Difficulty)

	assert.Equal(t, 1, res.CategoryCounts[model.DifficultyEasy])
	assert.Equal(t, 1, res.CategoryCounts[model.DifficultyMedium])
	assert.Equal(t, 0, res.CategoryCounts[model.DifficultyUnknown])
	assert.Len(t, res.CategoryCounts, len(model.Difficulties))

	assert.Equal(t, 5000, res.Stats.TotalEmails)
	assert.Equal(t, 5, res.Stats.ScannedEmails)
	assert.Equal(t, 4, res.Stats.FoundNewsletters)
	assert.Equal(t, 4000, res.Stats.EstimatedNewsletters)
	assert.Equal(t, 50, res.Stats.RecommendedLimit)

	last, _, ok := acct.LastScan()
	require.True(t, ok)
	assert.Len(t, last.Candidates, 4)
}

func TestScanReplacesPreviousCandidates(t *testing.T) {
	p := inbox()
	svc := NewService(nil, testAllowList(t), &recordingExecutor{}, 0, zaptest.NewLogger(t))
	acct := NewAccount("me", p)

	_, err := svc.Scan(context.Background(), acct, 0)
	require.NoError(t, err)
	res, err := svc.Scan(context.Background(), acct, 1)
	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)

	_, err = svc.ManualLink(acct, "b1")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestScanTotalFallsBackToListed(t *testing.T) {
	p := inbox()
	p.totalErr = errors.New("quota exceeded")
	svc := NewService(nil, nil, nil, 2, zaptest.NewLogger(t))

	res, err := svc.Scan(context.Background(), NewAccount("me", p), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Stats.TotalEmails)
	assert.Equal(t, 2, res.Stats.ScannedEmails)
}

func TestScanListError(t *testing.T) {
	p := &fakeProvider{listErr: errors.New("401 unauthorized")}
	svc := NewService(nil, nil, nil, 2, zaptest.NewLogger(t))

	_, err := svc.Scan(context.Background(), NewAccount("me", p), 10)
	require.Error(t, err)
	_, _, ok := NewAccount("me", p).LastScan()
	assert.False(t, ok)
}

func TestScanCancelled(t *testing.T) {
	svc := NewService(nil, nil, nil, 2, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Scan(ctx, NewAccount("me", inbox()), 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUnsubscribeReportsUnknownIDsInOrder(t *testing.T) {
	exec := &recordingExecutor{}
	svc := NewService(nil, testAllowList(t), exec, 2, zaptest.NewLogger(t))
	acct := NewAccount("me", inbox())
	_, err := svc.Scan(context.Background(), acct, 0)
	require.NoError(t, err)

	var progressed []int
	agg, err := svc.Unsubscribe(context.Background(), acct, []string{"h1", "ghost", "li"}, func(done, total int, _ model.OutcomeRecord) {
		assert.Equal(t, 3, total)
		progressed = append(progressed, done)
	})
	require.NoError(t, err)

	require.Len(t, agg.Outcomes, 3)
	assert.Equal(t, "h1", agg.Outcomes[0].ID)
	assert.Equal(t, "ghost", agg.Outcomes[1].ID)
	assert.Equal(t, model.StatusFailed, agg.Outcomes[1].Status)
	assert.Equal(t, "record not found", agg.Outcomes[1].Message)
	assert.Equal(t, "li", agg.Outcomes[2].ID)
	assert.Equal(t, 2, agg.AutoSuccess)
	assert.Equal(t, 1, agg.Failed)
	assert.Equal(t, "batch-1", agg.BatchID)
	assert.ElementsMatch(t, []int{1, 2, 3}, progressed)

	require.Len(t, exec.batches, 1)
	assert.Len(t, exec.batches[0], 2)
}

func TestUnsubscribeRechecksWhitelist(t *testing.T) {
	allow := testAllowList(t)
	exec := &recordingExecutor{}
	svc := NewService(nil, allow, exec, 2, zaptest.NewLogger(t))
	acct := NewAccount("me", inbox())
	ctx := context.Background()
	_, err := svc.Scan(ctx, acct, 0)
	require.NoError(t, err)

	changed, err := svc.ToggleWhitelist(ctx, "Daily@News.example", "Daily", true)
	require.NoError(t, err)
	assert.True(t, changed)

	agg, err := svc.Unsubscribe(ctx, acct, []string{"h1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, agg.Skipped)
	require.Len(t, exec.batches, 1)
	assert.Equal(t, model.DifficultyWhitelisted, exec.batches[0][0].Difficulty)
}

func TestUnsubscribeWithoutScan(t *testing.T) {
	svc := NewService(nil, nil, &recordingExecutor{}, 2, zaptest.NewLogger(t))
	agg, err := svc.Unsubscribe(context.Background(), NewAccount("me", inbox()), []string{"h1"}, nil)
	require.NoError(t, err)
	require.Len(t, agg.Outcomes, 1)
	assert.Equal(t, model.StatusFailed, agg.Outcomes[0].Status)
	assert.Equal(t, "record not found", agg.Outcomes[0].Message)
}

func TestUnsubscribeWithEngine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	p := &fakeProvider{total: 1}
	p.add(extract.RawMessage{ID: "x", Headers: map[string]string{
		"From":             "news@example.com",
		"List-Unsubscribe": "<" + srv.URL + "/unsub>",
	}})
	engine := unsub.NewEngine(unsub.Config{}, nil, zaptest.NewLogger(t))
	svc := NewService(nil, testAllowList(t), engine, 1, zaptest.NewLogger(t))
	acct := NewAccount("me", p)

	_, err := svc.Scan(context.Background(), acct, 0)
	require.NoError(t, err)
	agg, err := svc.Unsubscribe(context.Background(), acct, []string{"x"}, nil)
	require.NoError(t, err)
	require.Len(t, agg.Outcomes, 1)
	assert.Equal(t, model.StatusAutoSuccess, agg.Outcomes[0].Status)
	assert.Equal(t, model.MethodHeaderRequest, agg.Outcomes[0].Method)
	assert.NotEmpty(t, agg.BatchID)
}

func TestToggleWhitelist(t *testing.T) {
	svc := NewService(nil, testAllowList(t), nil, 1, zaptest.NewLogger(t))
	ctx := context.Background()

	_, err := svc.ToggleWhitelist(ctx, "  ", "", true)
	assert.Error(t, err)

	changed, err := svc.ToggleWhitelist(ctx, "a@b.com", "A", true)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = svc.ToggleWhitelist(ctx, "a@b.com", "A", true)
	require.NoError(t, err)
	assert.False(t, changed)

	entries, err := svc.Whitelist(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	changed, err = svc.ToggleWhitelist(ctx, "A@B.COM", "", false)
	require.NoError(t, err)
	assert.True(t, changed)

	_, err = svc.ToggleWhitelist(ctx, "c@d.com", "", true)
	require.NoError(t, err)
	n, err := svc.ClearWhitelist(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestRetierAfterToggle(t *testing.T) {
	svc := NewService(nil, testAllowList(t), nil, 1, zaptest.NewLogger(t))
	acct := NewAccount("me", inbox())
	ctx := context.Background()

	_, err := svc.Retier(ctx, acct)
	assert.Error(t, err)

	_, err = svc.Scan(ctx, acct, 0)
	require.NoError(t, err)
	_, err = svc.ToggleWhitelist(ctx, "noreply@medium.com", "", true)
	require.NoError(t, err)

	res, err := svc.Retier(ctx, acct)
	require.NoError(t, err)
	assert.Equal(t, 0, res.CategoryCounts[model.DifficultyHard])
	assert.Equal(t, 1, res.CategoryCounts[model.DifficultyWhitelisted])
}

func TestManualLink(t *testing.T) {
	svc := NewService(nil, nil, nil, 1, zaptest.NewLogger(t))
	acct := NewAccount("me", inbox())
	_, err := svc.Scan(context.Background(), acct, 0)
	require.NoError(t, err)

	link, err := svc.ManualLink(acct, "h1")
	require.NoError(t, err)
	assert.Equal(t, "https://news.example/u/1", link)

	_, err = svc.ManualLink(acct, "plain")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrRecordNotFound)

	_, err = svc.ManualLink(acct, "nope")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}
