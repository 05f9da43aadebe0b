// File: internal/usecase/analysis_uc.go
package usecase

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Gumbees/homebase-intake/internal/domain"
	"github.com/Gumbees/homebase-intake/internal/domain/model"
	"github.com/Gumbees/homebase-intake/internal/domain/ports/adapter"
	"github.com/Gumbees/homebase-intake/internal/extract"
)

// Compile-time check
var _ AnalysisUseCase = (*analysisUC)(nil)

const extractionPrompt = `Analyze this purchase document (receipt, invoice or bill).
Extract the vendor, transaction date, amounts, every line item, any event the
document refers to (tickets, reservations), people named on it, and digital
goods. Respond with a single JSON object matching the provided schema. Use
null for fields you cannot read; do not guess dates.`

type EnqueueDocumentRequest struct {
	Data     []byte
	Filename string
	MIME     string
	Provider string
}

type AnalysisUseCase interface {
	// EnqueueDocument runs the full intake pipeline: store the bytes, send
	// them to the chosen provider, normalize whatever comes back and submit
	// the result for human review. Provider failures still produce a task,
	// parked in ai_analysis_failed with the error preserved.
	EnqueueDocument(ctx context.Context, req EnqueueDocumentRequest) (*model.Task, error)
}

type analysisUC struct {
	store      adapter.AttachmentStore
	dispatcher adapter.InferenceDispatcher
	normalizer *extract.Normalizer
	intake     IntakeUseCase
	log        *zerolog.Logger
}

func NewAnalysisUseCase(
	store adapter.AttachmentStore,
	dispatcher adapter.InferenceDispatcher,
	normalizer *extract.Normalizer,
	intake IntakeUseCase,
	logger *zerolog.Logger,
) *analysisUC {
	return &analysisUC{store: store, dispatcher: dispatcher, normalizer: normalizer, intake: intake, log: logger}
}

func (u *analysisUC) EnqueueDocument(ctx context.Context, req EnqueueDocumentRequest) (*model.Task, error) {
	if len(req.Data) == 0 {
		return nil, fmt.Errorf("%w: empty document", domain.ErrInvalidArgument)
	}
	if req.Provider == "" {
		return nil, fmt.Errorf("%w: provider required", domain.ErrInvalidArgument)
	}

	ref, err := u.store.SaveAttachment(ctx, req.Data, req.MIME)
	if err != nil {
		return nil, fmt.Errorf("store attachment: %w", err)
	}

	var extraction model.CanonicalExtraction
	res, err := u.dispatcher.Dispatch(ctx, req.Provider, adapter.ProcessRequest{
		Prompt:    extractionPrompt,
		Image:     req.Data,
		ImageMIME: req.MIME,
		Schema:    extract.BuildExtractionSchema(),
	})
	switch {
	case err != nil:
		// The document is not lost: it lands in ai_analysis_failed with the
		// provider error preserved for the reviewer.
		u.log.Error().Err(err).Str("provider", req.Provider).Msg("document analysis failed")
		extraction = model.CanonicalExtraction{
			VendorName: "Unknown Vendor",
			LineItems:  []model.LineItem{},
			Confidence: extract.FallbackConfidence,
			ParseError: err.Error(),
		}
	default:
		extraction = *u.normalizer.Normalize(res.RawContent)
	}

	task, err := u.intake.Submit(ctx, SubmitRequest{
		AttachmentRef: ref,
		Filename:      req.Filename,
		Provider:      req.Provider,
		Extraction:    extraction,
	})
	if err != nil {
		return nil, err
	}
	u.log.Info().
		Str("task_id", task.ID).
		Str("attachment", ref).
		Str("provider", req.Provider).
		Msg("document analyzed and enqueued")
	return task, nil
}
