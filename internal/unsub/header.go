package unsub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"inboxsweep/internal/model"
)

const oneClickBody = "List-Unsubscribe=One-Click"

func (e *Engine) headerStrategy(ctx context.Context, run *batchRun, a *attempt) state {
	link := a.rec.UnsubscribeLink
	confirmed, err := e.headerRequest(ctx, run, link, a.rec.OneClick)
	if err == nil {
		msg := fmt.Sprintf("Unsubscribed from %s via List-Unsubscribe request", senderLabel(a.rec))
		if !confirmed {
			msg = fmt.Sprintf("List-Unsubscribe request for %s completed, confirmation unclear", senderLabel(a.rec))
		}
		return a.finish(model.StatusAutoSuccess, model.MethodHeaderRequest, msg, "")
	}
	if ctx.Err() != nil {
		return a.interrupt()
	}
	run.log.Info("header request failed", zap.String("id", a.rec.ID), zap.Error(err))
	if bodyTarget(a.rec) != "" {
		return stateBodyAttempted
	}
	return a.finish(model.StatusFailed, model.MethodHeaderRequest, userMessage(err, "unsubscribe request failed"), "")
}

// headerRequest issues the unsubscribe request for link. GET is tried first
// unless the sender advertises one-click POST; a method-not-allowed answer
// switches to the other method. The result reports whether the response body
// carries a success phrase.
func (e *Engine) headerRequest(ctx context.Context, run *batchRun, link string, oneClick bool) (bool, error) {
	if expired(link, e.now()) {
		return false, &StrategyError{Kind: KindRejected, Msg: "unsubscribe link has expired"}
	}
	methods := []string{http.MethodGet, http.MethodPost}
	if oneClick {
		methods = []string{http.MethodPost, http.MethodGet}
	}
	var lastStatus int
	var lastBody string
	for i, method := range methods {
		status, body, err := e.send(ctx, run, method, link)
		if err != nil {
			return false, err
		}
		lastStatus, lastBody = status, body
		if (status == http.StatusMethodNotAllowed || status == http.StatusNotImplemented) && i == 0 {
			continue
		}
		break
	}
	if err := statusError(lastStatus); err != nil {
		return false, err
	}
	return e.cfg.Detector.Succeeded(InspectPage(lastBody)), nil
}

func (e *Engine) send(ctx context.Context, run *batchRun, method, link string) (int, string, error) {
	if err := e.pacer.Wait(ctx); err != nil {
		return 0, "", err
	}
	defer e.pacer.Done()
	reqCtx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
	defer cancel()

	var body io.Reader
	if method == http.MethodPost {
		body = strings.NewReader(oneClickBody)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, link, body)
	if err != nil {
		return 0, "", &StrategyError{Kind: KindNetwork, Msg: "unsubscribe link is not a valid URL", Err: err}
	}
	req.Header.Set("User-Agent", e.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	run.log.Debug("header request", zap.String("method", method), zap.String("url", link))
	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, "", ctx.Err()
		}
		return 0, "", transportError(err, e.cfg.RequestTimeout)
	}
	defer resp.Body.Close()
	// A body cut short still tells whether the page reads as a success.
	page, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return resp.StatusCode, string(page), nil
}

func transportError(err error, timeout time.Duration) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return &StrategyError{Kind: KindTimeout, Msg: fmt.Sprintf("unsubscribe server did not answer within %s", timeout), Err: err}
	}
	return &StrategyError{Kind: KindNetwork, Msg: "could not reach the unsubscribe server", Err: err}
}

func statusError(status int) error {
	switch {
	case status >= 200 && status < 400:
		return nil
	case status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable:
		return &StrategyError{Kind: KindRejected, Msg: fmt.Sprintf("rate limited by server (status %d), try again later", status)}
	default:
		return &StrategyError{Kind: KindRejected, Msg: fmt.Sprintf("unsubscribe request failed with status %d", status)}
	}
}

// expired reports links carrying an expiry timestamp (exp, expires or
// valid_until, in Unix seconds) that lies in the past.
func expired(link string, now time.Time) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	q := u.Query()
	for _, key := range []string{"exp", "expires", "valid_until"} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		ts, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		if time.Unix(ts, 0).Before(now) {
			return true
		}
	}
	return false
}
