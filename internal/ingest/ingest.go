// Package ingest runs the upload pipeline: keep the paper, extract its text,
// structure it and persist the resulting exam.
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/pavelanni/exampaper/internal/model"
	"github.com/pavelanni/exampaper/internal/pdftext"
	"github.com/pavelanni/exampaper/internal/storage"
	"github.com/pavelanni/exampaper/internal/structurer"
)

// ErrEmptyDocument is returned when no text could be extracted. It matches
// structurer.ErrStructuring so callers treat it as a processing failure.
var ErrEmptyDocument = fmt.Errorf("%w: no text could be extracted from the document", structurer.ErrStructuring)

// Store persists a structured exam.
type Store interface {
	CreateExam(ctx context.Context, exam model.Exam, questions []model.Question) (model.ExamView, error)
}

// Structurer converts raw text into an exam structure.
type Structurer interface {
	Structure(ctx context.Context, rawText string) (model.StructuredExam, error)
}

// Ingester wires the pipeline stages together.
type Ingester struct {
	blobs      storage.BlobStore
	extractor  pdftext.Extractor
	structurer Structurer
	store      Store
}

// New creates an Ingester. blobs may be nil, in which case uploads are not kept.
func New(blobs storage.BlobStore, e pdftext.Extractor, st Structurer, s Store) *Ingester {
	return &Ingester{blobs: blobs, extractor: e, structurer: st, store: s}
}

// Ingest processes one uploaded paper for ownerID. On any failure nothing is
// persisted and the stored blob is removed.
func (in *Ingester) Ingest(ctx context.Context, ownerID int64, filename string, data []byte) (model.ExamView, error) {
	log := slog.With("owner_id", ownerID, "filename", filename, "bytes", len(data))

	var fileKey string
	if in.blobs != nil {
		key := fmt.Sprintf("exams/%d/%s.pdf", ownerID, uuid.NewString())
		k, err := in.blobs.Put(key, bytes.NewReader(data))
		if err != nil {
			return model.ExamView{}, fmt.Errorf("store upload: %w", err)
		}
		fileKey = k
	}
	cleanup := func() {
		if fileKey == "" {
			return
		}
		if err := in.blobs.Delete(fileKey); err != nil {
			log.Warn("failed to remove stored upload", "key", fileKey, "error", err)
		}
	}

	text := in.extractor.Extract(ctx, data)
	if strings.TrimSpace(text) == "" {
		cleanup()
		log.Warn("no text extracted from upload")
		return model.ExamView{}, ErrEmptyDocument
	}
	log.Debug("extracted text", "chars", len(text))

	structured, err := in.structurer.Structure(ctx, text)
	if err != nil {
		cleanup()
		return model.ExamView{}, err
	}

	questions := make([]model.Question, 0, len(structured.Questions))
	for _, q := range structured.Questions {
		questions = append(questions, model.Question{
			QuestionNumber: q.QuestionNumber,
			Text:           q.Text,
			Marks:          q.Marks,
			Type:           q.Type,
		})
	}

	view, err := in.store.CreateExam(ctx, model.Exam{
		Title:   structured.Title,
		Subject: structured.Subject,
		OwnerID: ownerID,
		FileKey: fileKey,
	}, questions)
	if err != nil {
		cleanup()
		return model.ExamView{}, fmt.Errorf("save exam: %w", err)
	}

	log.Info("exam ingested", "exam_id", view.Exam.ID, "questions", len(view.Questions), "total_marks", view.TotalMarks())
	return view, nil
}
