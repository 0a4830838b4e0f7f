// Package ingest runs the background document pipeline: chunking, embedding,
// pattern learning, and template extraction, driven by a durable job queue.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/recruitdesk/offergen/internal/chunker"
	"github.com/recruitdesk/offergen/internal/retrieval"
	"github.com/recruitdesk/offergen/internal/storage"
	"github.com/recruitdesk/offergen/internal/templates"
)

// JobTypeDocumentIngest is the queue type for document processing jobs.
const JobTypeDocumentIngest = "document_ingest"

// Polling cadence for the job queue and the stuck-document sweep.
const (
	DefaultPollInterval  = 2 * time.Second
	DefaultSweepInterval = time.Minute
	DefaultStuckAfter    = 5 * time.Minute
)

// ingestPayload is the job payload for document ingestion.
type ingestPayload struct {
	DocumentID string `json:"document_id"`
}

// Queue is the job-queue slice of storage the worker drives.
type Queue interface {
	EnqueueJob(job storage.Job) error
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
}

// DocumentStore is the document slice of storage the worker updates.
type DocumentStore interface {
	GetDocument(id string) (storage.Document, error)
	UpdateDocumentStatus(id, status, errMsg string) error
	UpdateDocumentChunkCount(id string, count int) error
	StuckDocumentIDs(olderThan time.Duration) ([]string, error)
}

// PatternExtractor learns structured facts from a processed document.
// Implementations must be non-fatal: they log failures internally.
type PatternExtractor interface {
	Extract(ctx context.Context, doc storage.Document)
}

// TemplateExtractor derives a document's template structure and sections.
type TemplateExtractor interface {
	Extract(ctx context.Context, text string) (templates.Structure, []templates.Section, error)
}

// ProfileMatcher files an extracted structure under a template profile.
type ProfileMatcher interface {
	CreateOrUpdate(s templates.Structure, documentID string, sections []templates.Section) (templates.MatchResult, error)
}

// Worker polls the job queue and processes one document at a time. A second
// ticker sweeps for documents stranded in "processing" by a crash and
// re-queues them.
type Worker struct {
	queue     Queue
	docs      DocumentStore
	chunker   *chunker.Chunker
	embedder  *retrieval.Embedder
	vectors   retrieval.VectorStore
	patterns  PatternExtractor
	templates TemplateExtractor
	profiles  ProfileMatcher
	logger    *slog.Logger

	pollInterval  time.Duration
	sweepInterval time.Duration
	stuckAfter    time.Duration
}

// NewWorker wires a Worker. The pattern, template, and profile collaborators
// may be nil to skip those stages (used in tests).
func NewWorker(
	queue Queue,
	docs DocumentStore,
	ch *chunker.Chunker,
	embedder *retrieval.Embedder,
	vectors retrieval.VectorStore,
	patterns PatternExtractor,
	tmpl TemplateExtractor,
	profiles ProfileMatcher,
) *Worker {
	return &Worker{
		queue:         queue,
		docs:          docs,
		chunker:       ch,
		embedder:      embedder,
		vectors:       vectors,
		patterns:      patterns,
		templates:     tmpl,
		profiles:      profiles,
		logger:        slog.Default(),
		pollInterval:  DefaultPollInterval,
		sweepInterval: DefaultSweepInterval,
		stuckAfter:    DefaultStuckAfter,
	}
}

// Enqueue creates the document's ingestion job. The upload handler calls
// this right after inserting the pending Document row.
func (w *Worker) Enqueue(documentID string) error {
	payload, err := json.Marshal(ingestPayload{DocumentID: documentID})
	if err != nil {
		return fmt.Errorf("marshaling ingest payload: %w", err)
	}
	return w.queue.EnqueueJob(storage.Job{
		ID:          uuid.New().String(),
		Type:        JobTypeDocumentIngest,
		PayloadJSON: string(payload),
	})
}

// Run processes jobs until the context is canceled.
func (w *Worker) Run(ctx context.Context) {
	poll := time.NewTicker(w.pollInterval)
	defer poll.Stop()
	sweep := time.NewTicker(w.sweepInterval)
	defer sweep.Stop()

	w.logger.Info("ingest worker started", "poll_interval", w.pollInterval)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("ingest worker stopped")
			return
		case <-sweep.C:
			w.recoverStuckDocuments()
		case <-poll.C:
			for {
				job, err := w.queue.ClaimNextJob([]string{JobTypeDocumentIngest})
				if err != nil {
					w.logger.Error("failed to claim job", "error", err)
					break
				}
				if job == nil {
					break
				}
				w.handleJob(ctx, job)
				if ctx.Err() != nil {
					return
				}
			}
		}
	}
}

// recoverStuckDocuments re-queues documents left in "processing" with no
// live job, which happens when the process died mid-ingestion.
func (w *Worker) recoverStuckDocuments() {
	ids, err := w.docs.StuckDocumentIDs(w.stuckAfter)
	if err != nil {
		w.logger.Error("stuck document sweep failed", "error", err)
		return
	}
	for _, id := range ids {
		w.logger.Warn("re-queueing stuck document", "document_id", id)
		if err := w.docs.UpdateDocumentStatus(id, storage.StatusPending, ""); err != nil {
			w.logger.Error("failed to reset stuck document", "document_id", id, "error", err)
			continue
		}
		if err := w.Enqueue(id); err != nil {
			w.logger.Error("failed to re-queue stuck document", "document_id", id, "error", err)
		}
	}
}

func (w *Worker) handleJob(ctx context.Context, job *storage.Job) {
	var payload ingestPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		w.logger.Error("invalid job payload", "job_id", job.ID, "error", err)
		if err := w.queue.FailJob(job.ID, fmt.Sprintf("invalid payload: %v", err)); err != nil {
			w.logger.Error("failed to fail job", "job_id", job.ID, "error", err)
		}
		return
	}

	if err := w.processDocument(ctx, payload.DocumentID); err != nil {
		w.logger.Error("document ingestion failed", "document_id", payload.DocumentID, "error", err)
		if err := w.docs.UpdateDocumentStatus(payload.DocumentID, storage.StatusFailed, err.Error()); err != nil {
			w.logger.Error("failed to mark document failed", "document_id", payload.DocumentID, "error", err)
		}
		if err := w.queue.FailJob(job.ID, err.Error()); err != nil {
			w.logger.Error("failed to fail job", "job_id", job.ID, "error", err)
		}
		return
	}

	if err := w.queue.CompleteJob(job.ID); err != nil {
		w.logger.Error("failed to complete job", "job_id", job.ID, "error", err)
	}
}

// processDocument runs the full pipeline for one document. Chunking and
// embedding failures are fatal to the document; pattern and template
// extraction are best-effort.
func (w *Worker) processDocument(ctx context.Context, documentID string) error {
	doc, err := w.docs.GetDocument(documentID)
	if err != nil {
		return fmt.Errorf("loading document: %w", err)
	}

	if err := w.docs.UpdateDocumentStatus(doc.ID, storage.StatusProcessing, ""); err != nil {
		return fmt.Errorf("marking document processing: %w", err)
	}

	chunks := w.chunker.Split(doc.RawText)
	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		vectors, err := w.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("embedding chunks: %w", err)
		}

		// Replace any chunks from an earlier attempt before inserting.
		if err := w.vectors.DeleteByDocument(doc.ID); err != nil {
			return fmt.Errorf("clearing previous chunks: %w", err)
		}
		records := make([]retrieval.Record, len(chunks))
		now := time.Now().UTC()
		for i, c := range chunks {
			records[i] = retrieval.Record{
				ID:         uuid.New().String(),
				DocumentID: doc.ID,
				ChunkIndex: c.Index,
				ChunkText:  c.Text,
				Embedding:  vectors[i],
				CreatedAt:  now,
			}
		}
		if err := w.vectors.Insert(records); err != nil {
			return fmt.Errorf("storing chunk embeddings: %w", err)
		}
	}
	if err := w.docs.UpdateDocumentChunkCount(doc.ID, len(chunks)); err != nil {
		return fmt.Errorf("updating chunk count: %w", err)
	}

	if w.patterns != nil {
		w.patterns.Extract(ctx, doc)
	}

	if w.templates != nil && w.profiles != nil {
		structure, sections, err := w.templates.Extract(ctx, doc.RawText)
		if err != nil {
			w.logger.Warn("template extraction skipped", "document_id", doc.ID, "error", err)
		} else {
			if _, err := w.profiles.CreateOrUpdate(structure, doc.ID, sections); err != nil {
				w.logger.Warn("template profiling failed", "document_id", doc.ID, "error", err)
			}
		}
	}

	if err := w.docs.UpdateDocumentStatus(doc.ID, storage.StatusCompleted, ""); err != nil {
		return fmt.Errorf("marking document completed: %w", err)
	}
	w.logger.Info("document ingested", "document_id", doc.ID, "chunks", len(chunks))
	return nil
}
