package unsub

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"inboxsweep/internal/extract"
	"inboxsweep/internal/model"
)

func (e *Engine) bodyStrategy(ctx context.Context, run *batchRun, a *attempt) state {
	target := bodyTarget(a.rec)
	label := senderLabel(a.rec)

	// Known login walls are reported without spending a page load.
	if e.cfg.Detector.LoginDomains.Match(extract.Host(target)) {
		return a.finish(model.StatusManualRequired, model.MethodLoginRequired,
			fmt.Sprintf("Sign-in required to unsubscribe from %s", label), target)
	}

	sess, err := run.session(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return a.interrupt()
		}
		return a.finish(model.StatusFailed, model.MethodBodyAutomation, userMessage(err, "browser automation unavailable"), "")
	}

	res, err := e.automate(ctx, run, sess, target)
	if err != nil {
		if ctx.Err() != nil {
			return a.interrupt()
		}
		run.log.Info("body automation failed", zap.String("id", a.rec.ID), zap.Error(err))
		return a.finish(model.StatusFailed, model.MethodBodyAutomation, userMessage(err, "browser automation failed"), "")
	}

	switch res.method {
	case model.MethodLoginRequired:
		return a.finish(model.StatusManualRequired, model.MethodLoginRequired,
			fmt.Sprintf("Sign-in required to unsubscribe from %s (%s)", label, res.reason), target)
	case model.MethodComplexFlow:
		return a.finish(model.StatusManualRequired, model.MethodComplexFlow,
			fmt.Sprintf("Finish unsubscribing from %s manually: %s", label, res.reason), target)
	}
	if !res.activated {
		return a.finish(model.StatusFailed, model.MethodBodyAutomation, "no unsubscribe button found on the page", "")
	}
	msg := fmt.Sprintf("Unsubscribed from %s via browser automation", label)
	if !res.confirmed {
		msg = fmt.Sprintf("Browser automation completed for %s, confirmation unclear", label)
	}
	return a.finish(model.StatusAutoSuccess, model.MethodBodyAutomation, msg, "")
}

type automationResult struct {
	method    model.Method // login or complex flow when the page needs a human
	reason    string
	activated bool
	confirmed bool // page text confirms the unsubscribe
}

// automate loads target and clicks through the unsubscribe affordance.
func (e *Engine) automate(ctx context.Context, run *batchRun, sess Session, target string) (automationResult, error) {
	det := e.cfg.Detector
	var res automationResult

	if err := e.pacer.Wait(ctx); err != nil {
		return res, err
	}
	defer e.pacer.Done()
	pageCtx, cancel := context.WithTimeout(ctx, e.cfg.PageTimeout)
	defer cancel()

	if err := sess.Open(pageCtx, target); err != nil {
		return res, automationError(pageCtx, err, "unsubscribe page did not load")
	}
	landing, err := sess.CurrentURL(pageCtx)
	if err != nil {
		return res, automationError(pageCtx, err, "could not read the unsubscribe page")
	}
	content, err := sess.Content(pageCtx)
	if err != nil {
		return res, automationError(pageCtx, err, "could not read the unsubscribe page")
	}
	page := InspectPage(content)
	run.log.Debug("page loaded", zap.String("url", landing), zap.Int("checkboxes", page.Checkboxes))

	if reason := det.LoginReason(landing, page); reason != "" {
		res.method, res.reason = model.MethodLoginRequired, reason
		return res, nil
	}
	if reason := det.ChallengeReason(page); reason != "" {
		res.method, res.reason = model.MethodComplexFlow, reason
		return res, nil
	}
	if reason := det.ComplexReason(page); reason != "" {
		res.method, res.reason = model.MethodComplexFlow, reason
		return res, nil
	}

	ticked, err := sess.CheckByLabel(pageCtx, det.CheckboxLabels)
	if err != nil {
		return res, automationError(pageCtx, err, "could not tick the unsubscribe checkbox")
	}
	if ticked > 0 {
		run.log.Debug("ticked unsubscribe checkboxes", zap.Int("count", ticked))
	}

	el, ok, err := e.find(pageCtx, sess, det.Affordances)
	if err != nil {
		return res, automationError(pageCtx, err, "could not search the unsubscribe page")
	}
	if !ok {
		return res, nil
	}
	if err := sess.Activate(pageCtx, el); err != nil {
		return res, automationError(pageCtx, err, "could not click the unsubscribe button")
	}
	res.activated = true

	// Some pages ask for a second confirmation click.
	if confirm, ok, err := e.find(pageCtx, sess, det.Confirmations); err == nil && ok {
		if err := sess.Activate(pageCtx, confirm); err != nil {
			return res, automationError(pageCtx, err, "could not click the confirmation button")
		}
	}

	if after, err := sess.Content(pageCtx); err == nil {
		res.confirmed = det.Succeeded(InspectPage(after))
	}
	return res, nil
}

// find bounds one element search by the element timeout.
func (e *Engine) find(ctx context.Context, sess Session, patterns []string) (Element, bool, error) {
	findCtx, cancel := context.WithTimeout(ctx, e.cfg.ElementTimeout)
	defer cancel()
	el, ok, err := sess.FindByTextOrHref(findCtx, patterns)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		// Search bound elapsed without a match.
		return Element{}, false, nil
	}
	return el, ok, err
}

func automationError(ctx context.Context, err error, msg string) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &StrategyError{Kind: KindTimeout, Msg: msg + " (timed out)", Err: err}
	}
	return &StrategyError{Kind: KindAutomation, Msg: msg, Err: err}
}
