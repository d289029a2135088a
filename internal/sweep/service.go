// Package sweep exposes the scan, unsubscribe and allow-list operations
// over the extraction, classification and unsubscribe packages.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"inboxsweep/internal/classify"
	"inboxsweep/internal/estimate"
	"inboxsweep/internal/extract"
	"inboxsweep/internal/model"
	"inboxsweep/internal/store"
	"inboxsweep/internal/unsub"
	"inboxsweep/internal/util"
)

// ErrRecordNotFound is returned when an id is not part of the account's
// last scan.
var ErrRecordNotFound = errors.New("record not found")

// DefaultWorkers bounds concurrent message fetches during a scan.
const DefaultWorkers = 16

// Executor runs an unsubscribe batch. *unsub.Engine implements it.
type Executor interface {
	Execute(ctx context.Context, batch []model.TieredRecord, progress unsub.ProgressFunc) model.AggregateOutcome
}

// Service wires the scan and unsubscribe pipelines together.
type Service struct {
	classifier *classify.Classifier
	allow      store.AllowList
	engine     Executor
	workers    int
	log        *zap.Logger
	now        func() time.Time
}

// NewService returns a Service. workers <= 0 uses DefaultWorkers.
func NewService(classifier *classify.Classifier, allow store.AllowList, engine Executor, workers int, log *zap.Logger) *Service {
	if classifier == nil {
		classifier = classify.NewDefault()
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		classifier: classifier,
		allow:      allow,
		engine:     engine,
		workers:    workers,
		log:        log,
		now:        time.Now,
	}
}

// Scan lists up to maxResults messages (maxResults <= 0 scans everything),
// extracts and classifies them in mailbox order and replaces the account's
// previous candidates.
func (s *Service) Scan(ctx context.Context, acct *Account, maxResults int) (model.ScanResult, error) {
	log := s.log.With(zap.String("account", acct.ID))

	ids, err := acct.Provider.ListMessages(ctx, acct.ID, maxResults)
	if err != nil {
		return model.ScanResult{}, fmt.Errorf("listing messages: %w", err)
	}
	total, err := acct.Provider.TotalMessages(ctx)
	if err != nil {
		log.Warn("total message count unavailable, using scanned count", zap.Error(err))
		total = len(ids)
	}

	batch, err := extract.ExtractAll(ctx, ids, acct.Provider.GetMessage, s.workers, log)
	if err != nil {
		return model.ScanResult{}, fmt.Errorf("extracting messages: %w", err)
	}

	res := model.ScanResult{
		Candidates:     make([]model.TieredRecord, 0, len(batch.Records)),
		CategoryCounts: make(map[model.Difficulty]int, len(model.Difficulties)),
		Malformed:      batch.Malformed,
	}
	for _, d := range model.Difficulties {
		res.CategoryCounts[d] = 0
	}
	for _, rec := range batch.Records {
		tiered, err := s.tier(ctx, rec)
		if err != nil {
			return model.ScanResult{}, err
		}
		if tiered.Warning != "" {
			log.Warn("classification warning", zap.String("id", rec.ID), zap.String("warning", tiered.Warning))
		}
		res.Candidates = append(res.Candidates, tiered)
		res.CategoryCounts[tiered.Difficulty]++
	}
	res.Stats = estimate.Estimate(total, len(ids), len(batch.Records))

	acct.replace(res, s.now())
	log.Info("scan finished",
		zap.Int("listed", len(ids)),
		zap.Int("candidates", len(res.Candidates)),
		zap.Int("malformed", batch.Malformed),
		zap.Int("fetch_failed", batch.FetchFailed),
		zap.Int("recommended_limit", res.Stats.RecommendedLimit),
	)
	return res, nil
}

func (s *Service) tier(ctx context.Context, rec model.CandidateRecord) (model.TieredRecord, error) {
	whitelisted := false
	if s.allow != nil {
		var err error
		whitelisted, err = s.allow.IsWhitelisted(ctx, rec.SenderEmail)
		if err != nil {
			return model.TieredRecord{}, fmt.Errorf("checking whitelist for %s: %w", rec.SenderEmail, err)
		}
	}
	return s.classifier.Tier(rec, whitelisted), nil
}

// Retier reclassifies the last scan against the current allow-list without
// contacting the mailbox.
func (s *Service) Retier(ctx context.Context, acct *Account) (model.ScanResult, error) {
	prev, at, ok := acct.LastScan()
	if !ok {
		return model.ScanResult{}, fmt.Errorf("account %s has not been scanned", acct.ID)
	}
	res := prev
	res.Candidates = make([]model.TieredRecord, 0, len(prev.Candidates))
	res.CategoryCounts = make(map[model.Difficulty]int, len(model.Difficulties))
	for _, d := range model.Difficulties {
		res.CategoryCounts[d] = 0
	}
	for _, c := range prev.Candidates {
		tiered, err := s.tier(ctx, c.CandidateRecord)
		if err != nil {
			return model.ScanResult{}, err
		}
		res.Candidates = append(res.Candidates, tiered)
		res.CategoryCounts[tiered.Difficulty]++
	}
	acct.replace(res, at)
	return res, nil
}

// Unsubscribe attempts every selected id in the order given. Ids missing
// from the last scan are reported as failed with "record not found". The
// allow-list is consulted again so senders whitelisted since the scan are
// skipped.
func (s *Service) Unsubscribe(ctx context.Context, acct *Account, ids []string, progress unsub.ProgressFunc) (model.AggregateOutcome, error) {
	if s.engine == nil {
		return model.AggregateOutcome{}, errors.New("unsubscribe engine not configured")
	}

	type slot struct {
		found bool
		out   model.OutcomeRecord
	}
	slots := make([]slot, len(ids))
	var batch []model.TieredRecord
	missing := 0
	for i, id := range ids {
		rec, ok := acct.record(id)
		if !ok {
			slots[i].out = model.OutcomeRecord{
				ID:      id,
				Status:  model.StatusFailed,
				Method:  model.MethodNone,
				Message: ErrRecordNotFound.Error(),
			}
			missing++
			if progress != nil {
				progress(missing, len(ids), slots[i].out)
			}
			continue
		}
		tiered, err := s.tier(ctx, rec.CandidateRecord)
		if err != nil {
			s.log.Warn("whitelist recheck failed, using scan-time tier", zap.String("id", id), zap.Error(err))
			tiered = rec
		}
		slots[i].found = true
		batch = append(batch, tiered)
	}

	var inner unsub.ProgressFunc
	if progress != nil {
		inner = func(done, _ int, o model.OutcomeRecord) {
			progress(missing+done, len(ids), o)
		}
	}
	res := s.engine.Execute(ctx, batch, inner)

	agg := model.AggregateOutcome{
		BatchID:  res.BatchID,
		Outcomes: make([]model.OutcomeRecord, 0, len(ids)),
	}
	next := 0
	for _, sl := range slots {
		if !sl.found {
			agg.Outcomes = append(agg.Outcomes, sl.out)
			continue
		}
		if next < len(res.Outcomes) {
			agg.Outcomes = append(agg.Outcomes, res.Outcomes[next])
		}
		next++
	}
	agg.Tally()
	return agg, nil
}

// ToggleWhitelist adds or removes a sender and reports whether the stored
// state changed.
func (s *Service) ToggleWhitelist(ctx context.Context, email, name string, add bool) (bool, error) {
	if s.allow == nil {
		return false, errors.New("whitelist store not configured")
	}
	key := util.NormalizeEmail(email)
	if key == "" {
		return false, errors.New("sender email is required")
	}
	if add {
		changed, err := s.allow.Add(ctx, key, name)
		if err != nil {
			return false, fmt.Errorf("whitelisting %s: %w", key, err)
		}
		s.log.Info("whitelist add", zap.String("sender", key), zap.Bool("changed", changed))
		return changed, nil
	}
	changed, err := s.allow.Remove(ctx, key)
	if err != nil {
		return false, fmt.Errorf("removing %s from whitelist: %w", key, err)
	}
	s.log.Info("whitelist remove", zap.String("sender", key), zap.Bool("changed", changed))
	return changed, nil
}

// Whitelist returns every allow-listed sender.
func (s *Service) Whitelist(ctx context.Context) ([]model.AllowEntry, error) {
	if s.allow == nil {
		return nil, errors.New("whitelist store not configured")
	}
	return s.allow.List(ctx)
}

// ClearWhitelist removes every allow-listed sender.
func (s *Service) ClearWhitelist(ctx context.Context) (int64, error) {
	if s.allow == nil {
		return 0, errors.New("whitelist store not configured")
	}
	n, err := s.allow.Clear(ctx)
	if err != nil {
		return 0, err
	}
	s.log.Info("whitelist cleared", zap.Int64("removed", n))
	return n, nil
}

// ManualLink returns the link a user should follow to unsubscribe by hand.
func (s *Service) ManualLink(acct *Account, id string) (string, error) {
	rec, ok := acct.record(id)
	if !ok {
		return "", fmt.Errorf("%s: %w", id, ErrRecordNotFound)
	}
	if rec.UnsubscribeLink != "" {
		return rec.UnsubscribeLink, nil
	}
	if rec.BodyLink != "" {
		return rec.BodyLink, nil
	}
	return "", fmt.Errorf("no unsubscribe link for %s", id)
}
