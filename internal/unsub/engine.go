// Package unsub runs the unsubscribe strategy cascade over a batch of
// tiered records.
package unsub

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"inboxsweep/internal/classify"
	"inboxsweep/internal/extract"
	"inboxsweep/internal/model"
	"inboxsweep/internal/util"
)

// Config tunes the engine. Zero values take the defaults.
type Config struct {
	RequestTimeout time.Duration // per HTTP request
	PageTimeout    time.Duration // page load plus clicks
	ElementTimeout time.Duration // affordance search
	RateDelay      time.Duration // never below MinRateDelay
	UserAgent      string
	Detector       Detector
	HTTPClient     *http.Client
}

// DefaultUserAgent is sent on header requests.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// DefaultConfig returns the stock timeouts and heuristics.
func DefaultConfig() Config {
	return Config{
		RequestTimeout: 10 * time.Second,
		PageTimeout:    20 * time.Second,
		ElementTimeout: 5 * time.Second,
		RateDelay:      MinRateDelay,
		UserAgent:      DefaultUserAgent,
		Detector:       DefaultDetector(classify.NewDomainSet(classify.DefaultLoginRequired)),
	}
}

// ProgressFunc is called after each record with its outcome.
type ProgressFunc func(done, total int, o model.OutcomeRecord)

// Engine executes unsubscribe batches. One Engine may serve many batches;
// each Execute call owns its own browser session.
type Engine struct {
	cfg         Config
	client      *http.Client
	launcher    Launcher
	pacer       *Pacer
	log         *zap.Logger
	now         func() time.Time
	transitions map[state]step
}

// NewEngine builds an engine. launcher may be nil, in which case every
// browser-based attempt fails with a resource error.
func NewEngine(cfg Config, launcher Launcher, log *zap.Logger) *Engine {
	def := DefaultConfig()
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = def.PageTimeout
	}
	if cfg.ElementTimeout <= 0 {
		cfg.ElementTimeout = def.ElementTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if len(cfg.Detector.Affordances) == 0 {
		cfg.Detector = def.Detector
	}
	if log == nil {
		log = zap.NewNop()
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{
			// A redirect is a terminal answer from the unsubscribe endpoint.
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		}
	}
	e := &Engine{
		cfg:      cfg,
		client:   client,
		launcher: launcher,
		pacer:    NewPacer(cfg.RateDelay),
		log:      log,
		now:      time.Now,
	}
	e.transitions = map[state]step{
		stateStart:           e.start,
		stateHeaderAttempted: e.headerStrategy,
		stateBodyAttempted:   e.bodyStrategy,
	}
	return e
}

// Execute runs the cascade for every record of batch, strictly in order,
// and returns one outcome per record in the same order. Cancelling ctx stops
// new attempts; the records left over are reported as not attempted.
func (e *Engine) Execute(ctx context.Context, batch []model.TieredRecord, progress ProgressFunc) model.AggregateOutcome {
	agg := model.AggregateOutcome{
		BatchID:  uuid.NewString(),
		Outcomes: make([]model.OutcomeRecord, 0, len(batch)),
	}
	log := e.log.With(zap.String("batch", agg.BatchID))
	run := &batchRun{engine: e, log: log}
	defer run.close()

	log.Info("unsubscribe batch started", zap.Int("records", len(batch)))
	for i, rec := range batch {
		var out model.OutcomeRecord
		if ctx.Err() != nil {
			out = notAttempted(rec)
		} else {
			out = e.runRecord(ctx, run, rec)
		}
		log.Info("unsubscribe outcome",
			zap.String("id", out.ID),
			zap.String("sender", out.SenderEmail),
			zap.String("status", string(out.Status)),
			zap.String("method", string(out.Method)),
		)
		agg.Outcomes = append(agg.Outcomes, out)
		if progress != nil {
			progress(i+1, len(batch), out)
		}
	}
	agg.Tally()
	log.Info("unsubscribe batch finished",
		zap.Int("auto_success", agg.AutoSuccess),
		zap.Int("manual_required", agg.ManualRequired),
		zap.Int("failed", agg.Failed),
		zap.Int("not_attempted", agg.NotAttempted),
		zap.Int("skipped", agg.Skipped),
	)
	return agg
}

func (e *Engine) runRecord(ctx context.Context, run *batchRun, rec model.TieredRecord) (out model.OutcomeRecord) {
	a := &attempt{rec: rec}
	defer func() {
		if r := recover(); r != nil {
			run.log.Error("strategy panicked", zap.String("id", rec.ID), zap.Any("panic", r))
			out = outcome(rec, model.StatusFailed, model.MethodNone, "unexpected error while unsubscribing", "")
		}
	}()

	st := stateStart
	for st != stateTerminal {
		next, ok := e.transitions[st]
		if !ok {
			return outcome(rec, model.StatusFailed, model.MethodNone, fmt.Sprintf("no strategy for state %s", st), "")
		}
		st = next(ctx, run, a)
	}
	if a.interrupted {
		return notAttempted(rec)
	}
	return a.out
}

// batchRun is the per-Execute state: the lazily launched browser session
// and the launch failure, if any, shared by every later body attempt.
type batchRun struct {
	engine    *Engine
	log       *zap.Logger
	sess      Session
	launchErr error
}

func (r *batchRun) session(ctx context.Context) (Session, error) {
	if r.sess != nil {
		return r.sess, nil
	}
	if r.launchErr != nil {
		return nil, r.launchErr
	}
	if r.engine.launcher == nil {
		r.launchErr = &StrategyError{Kind: KindResourceExhausted, Msg: "browser automation is not available; unsubscribe manually"}
		return nil, r.launchErr
	}
	sess, err := r.engine.launcher.Launch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.log.Error("launch browser", zap.Error(err))
		r.launchErr = &StrategyError{Kind: KindResourceExhausted, Msg: "could not start the browser for this batch; unsubscribe manually", Err: err}
		return nil, r.launchErr
	}
	r.sess = sess
	return sess, nil
}

func (r *batchRun) close() {
	if r.sess == nil {
		return
	}
	if err := r.sess.Close(); err != nil {
		r.log.Warn("close browser", zap.Error(err))
	}
	r.sess = nil
}

func notAttempted(rec model.TieredRecord) model.OutcomeRecord {
	return outcome(rec, model.StatusNotAttempted, model.MethodNone, "batch cancelled before this sender was attempted", "")
}

func outcome(rec model.TieredRecord, status model.Status, method model.Method, msg, manualURL string) model.OutcomeRecord {
	return model.OutcomeRecord{
		ID:          rec.ID,
		SenderEmail: rec.SenderEmail,
		SenderName:  rec.SenderName,
		Status:      status,
		Method:      method,
		Message:     msg,
		ManualURL:   manualURL,
	}
}

// bodyTarget returns the http(s) link body automation should open, or "".
func bodyTarget(rec model.TieredRecord) string {
	if rec.UnsubscribeOrigin != model.OriginHeader && extract.IsHTTP(rec.UnsubscribeLink) {
		return rec.UnsubscribeLink
	}
	if extract.IsHTTP(rec.BodyLink) {
		return rec.BodyLink
	}
	return ""
}

// senderLabel names the sender in outcome messages. Senders without a
// display name get one derived from the address local part.
func senderLabel(rec model.TieredRecord) string {
	if rec.SenderName != "" {
		return rec.SenderName
	}
	if name := util.NameFromAddress(rec.SenderEmail); name != "" && name != rec.SenderEmail {
		return fmt.Sprintf("%s <%s>", name, rec.SenderEmail)
	}
	return rec.SenderEmail
}
