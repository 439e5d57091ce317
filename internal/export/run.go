package export

import (
	"context"
	"time"

	"telescribe/internal/ledger"
	"telescribe/internal/logging"
	"telescribe/internal/metrics"
	"telescribe/internal/model"
	"telescribe/internal/writer"
)

// Options carries the per-run knobs the pipeline and writer consume.
type Options struct {
	Budget         int
	ResolveSenders bool
	Format         string
	Dir            string
}

// Result summarizes one written export.
type Result struct {
	File     string
	Messages int
	Partial  bool
}

// RunAndWrite drains one conversation, writes whatever accumulated, and
// records the run in the ledger when one is configured. A stream failure
// still writes and records the partial record; the error is returned so the
// caller can report it.
func RunAndWrite(ctx context.Context, p *Pipeline, led *ledger.Ledger, conv model.Conversation, opts Options) (Result, error) {
	start := time.Now()
	metrics.ExportRuns.Inc()
	rec, runErr := p.Run(ctx, conv, opts.Budget, opts.ResolveSenders)
	if runErr != nil {
		metrics.ExportErrors.Inc()
		if len(rec.Messages) == 0 {
			return Result{}, runErr
		}
		logging.Warn("export_partial", map[string]any{"chat_id": conv.ID, "messages": len(rec.Messages), "error": runErr.Error()})
	}
	path, err := writer.Write(rec, opts.Format, opts.Dir)
	if err != nil {
		return Result{}, err
	}
	res := Result{File: path, Messages: len(rec.Messages), Partial: runErr != nil}
	if led != nil {
		if _, err := led.Record(ctx, ledger.Run{
			ChatID:     conv.ID,
			ChatName:   conv.Name,
			Format:     opts.Format,
			File:       path,
			Messages:   res.Messages,
			Partial:    res.Partial,
			StartedAt:  start.UTC(),
			FinishedAt: time.Now().UTC(),
		}); err != nil {
			logging.Error("ledger_record_failed", map[string]any{"chat_id": conv.ID, "error": err.Error()})
		}
	}
	logging.Info("export_done", map[string]any{"chat_id": conv.ID, "file": path, "messages": res.Messages, "partial": res.Partial})
	metrics.ObserveExportDuration(start)
	return res, runErr
}
