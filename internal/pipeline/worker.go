package pipeline

import (
	"context"
	"log/slog"
)

// Worker processes a single document job.
type Worker struct {
	ingester *Ingester
	log      *slog.Logger
}

func NewWorker(ingester *Ingester, log *slog.Logger) *Worker {
	return &Worker{ingester: ingester, log: log}
}

// Process runs the full ingest pipeline for a job.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "doc_id", job.DocID)

	phase := StatusQueued
	res, err := w.ingester.Ingest(ctx, Request{
		Filename: job.Filename,
		Data:     job.FileData(),
		DocID:    job.DocID,
		Source:   job.Source,
		Title:    job.Title,
		OnStatus: func(status JobStatus, total int) {
			phase = status
			if total > 0 {
				job.SetTotalChunks(total)
			}
			job.SetStatus(status, string(status))
		},
	})
	// Release the upload once it has been parsed or rejected.
	job.SetFileData(nil)
	if err != nil {
		log.Error("ingest failed", "phase", phase, "error", err)
		job.AddError(err.Error())
		job.SetStatus(StatusFailed, string(phase))
		return
	}
	job.Complete(res)
	log.Info("job complete", "records", res.Records)
}
