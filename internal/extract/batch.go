package extract

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"inboxsweep/internal/model"
)

// FetchFunc loads one message by id.
type FetchFunc func(ctx context.Context, id string) (RawMessage, error)

// BatchResult holds the candidates extracted from one page of ids, in the
// order the ids were given.
type BatchResult struct {
	Records     []model.CandidateRecord
	Malformed   int // extraction failed, message skipped
	FetchFailed int // provider could not return the message
}

// ExtractAll fetches and extracts ids with at most workers in flight.
// Failures on individual messages are counted and skipped; only
// cancellation of ctx aborts the batch.
func ExtractAll(ctx context.Context, ids []string, fetch FetchFunc, workers int, log *zap.Logger) (BatchResult, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if workers <= 0 {
		workers = 1
	}

	type slot struct {
		rec       model.CandidateRecord
		ok        bool
		malformed bool
	}
	slots := make([]slot, len(ids))

	var g errgroup.Group
	g.SetLimit(workers)
	for i, id := range ids {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			raw, err := fetch(ctx, id)
			if err != nil {
				log.Warn("fetch message", zap.String("id", id), zap.Error(err))
				return nil
			}
			rec, err := Extract(raw)
			if err != nil {
				log.Debug("skip message", zap.String("id", id), zap.Error(err))
				slots[i].malformed = errors.Is(err, ErrMalformedMessage)
				return nil
			}
			slots[i] = slot{rec: rec, ok: true}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return BatchResult{}, err
	}

	var res BatchResult
	for _, s := range slots {
		switch {
		case s.ok:
			res.Records = append(res.Records, s.rec)
		case s.malformed:
			res.Malformed++
		default:
			res.FetchFailed++
		}
	}
	return res, nil
}
