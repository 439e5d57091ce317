package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	"telescribe/internal/metrics"
	"telescribe/internal/model"
	"telescribe/internal/pace"
	"telescribe/internal/resolver"
	"telescribe/internal/tgclient"
	"telescribe/internal/throttle"
)

// Source is the slice of the platform API the pipeline drains.
type Source interface {
	OpenHistory(conv model.Conversation) tgclient.Cursor
}

// Pipeline turns one conversation's remote stream into an ExportRecord.
// One conversation is fully drained before the next begins; the message
// gate and the resolver (with its cache) are shared across the whole run.
type Pipeline struct {
	src     Source
	users   *resolver.Resolver
	msgGate *pace.Gate
}

func NewPipeline(src Source, users *resolver.Resolver, msgGate *pace.Gate) *Pipeline {
	return &Pipeline{src: src, users: users, msgGate: msgGate}
}

// Run drains conv newest first, consuming at most budget messages. A
// Throttled signal mid-stream is waited out and iteration resumes on the
// same cursor, so the accumulated sequence is identical to an unthrottled
// run; throttling shows up only in timing. Any other stream failure stops
// this conversation and returns the messages accumulated so far alongside
// the error: partial export beats no export.
func (p *Pipeline) Run(ctx context.Context, conv model.Conversation, budget int, resolveSenders bool) (model.ExportRecord, error) {
	rec := model.ExportRecord{Conversation: conv, ExportedAt: time.Now().UTC()}
	if budget <= 0 {
		return rec, nil
	}
	cur := p.src.OpenHistory(conv)
	for len(rec.Messages) < budget {
		if err := p.msgGate.Wait(ctx); err != nil {
			return rec, err
		}
		msg, err := cur.Next(ctx)
		if errors.Is(err, tgclient.ErrEndOfHistory) {
			break
		}
		if err != nil {
			if wait, ok := throttle.RetryAfter(err); ok {
				if serr := throttle.Sleep(ctx, "fetch_history", wait); serr != nil {
					return rec, serr
				}
				continue // same cursor: nothing consumed, nothing lost
			}
			return rec, fmt.Errorf("history stream for chat %d: %w", conv.ID, err)
		}
		if msg.FromID != 0 && resolveSenders {
			prof, err := p.users.Resolve(ctx, msg.FromID)
			if err != nil {
				return rec, err
			}
			msg.From = prof
		}
		rec.Messages = append(rec.Messages, msg)
		metrics.MessagesExported.Inc()
	}
	return rec, nil
}
