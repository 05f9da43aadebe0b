//go:build !integration

package usecase_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Gumbees/homebase-intake/internal/domain"
	"github.com/Gumbees/homebase-intake/internal/domain/model"
	"github.com/Gumbees/homebase-intake/internal/domain/ports/adapter"
	"github.com/Gumbees/homebase-intake/internal/extract"
	"github.com/Gumbees/homebase-intake/internal/usecase"
)

type fakeStore struct{ saved [][]byte }

func (f *fakeStore) SaveAttachment(_ context.Context, data []byte, _ string) (string, error) {
	f.saved = append(f.saved, data)
	return "att-fake.png", nil
}

type fakeDispatcher struct {
	DispatchFunc func(ctx context.Context, provider string, req adapter.ProcessRequest) (*adapter.ProcessResult, error)
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, provider string, req adapter.ProcessRequest) (*adapter.ProcessResult, error) {
	return f.DispatchFunc(ctx, provider, req)
}

func newAnalysisUC(t *testing.T, d *fakeDispatcher) (usecase.AnalysisUseCase, *intakeDeps) {
	t.Helper()
	intake, deps := newIntakeUC(t)
	norm := extract.NewNormalizer(&testLogger)
	uc := usecase.NewAnalysisUseCase(&fakeStore{}, d, norm, intake, &testLogger)
	return uc, deps
}

func TestEnqueueDocument_HappyPath(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	raw := "```json\n" + `{"vendor_name":"Costco","date":"2025-03-04","total_amount":88.20,"is_bill":false,"line_items":[],"confidence":0.93}` + "\n```"
	d := &fakeDispatcher{DispatchFunc: func(_ context.Context, provider string, req adapter.ProcessRequest) (*adapter.ProcessResult, error) {
		if provider != "openai" {
			t.Errorf("provider = %q", provider)
		}
		if len(req.Image) == 0 || req.Schema == nil {
			t.Error("dispatch must carry image bytes and the extraction schema")
		}
		return &adapter.ProcessResult{RawContent: raw}, nil
	}}
	uc, _ := newAnalysisUC(t, d)

	task, err := uc.EnqueueDocument(ctx, usecase.EnqueueDocumentRequest{
		Data: []byte("img"), Filename: "receipt.png", MIME: "image/png", Provider: "openai",
	})
	if err != nil {
		t.Fatalf("EnqueueDocument: %v", err)
	}
	if task.Status != model.TaskStatusPendingReview {
		t.Fatalf("status = %s, want pending_review", task.Status)
	}

	var p usecase.DocumentPayload
	if err := json.Unmarshal(task.Payload, &p); err != nil {
		t.Fatal(err)
	}
	if p.Extraction.VendorName != "Costco" || p.AttachmentRef != "att-fake.png" {
		t.Fatalf("payload = %+v", p)
	}
}

func TestEnqueueDocument_ProviderFailureParksTask(t *testing.T) {
	t.Parallel()
	d := &fakeDispatcher{DispatchFunc: func(context.Context, string, adapter.ProcessRequest) (*adapter.ProcessResult, error) {
		return nil, domain.ErrProviderUnavailable
	}}
	uc, _ := newAnalysisUC(t, d)

	task, err := uc.EnqueueDocument(context.Background(), usecase.EnqueueDocumentRequest{
		Data: []byte("img"), MIME: "image/png", Provider: "openai",
	})
	if err != nil {
		t.Fatalf("EnqueueDocument: %v", err)
	}
	if task.Status != model.TaskStatusAnalysisFailed {
		t.Fatalf("status = %s, want ai_analysis_failed", task.Status)
	}
	var p usecase.DocumentPayload
	if err := json.Unmarshal(task.Payload, &p); err != nil {
		t.Fatal(err)
	}
	if p.Extraction.ParseError == "" {
		t.Fatal("provider error must be preserved on the extraction")
	}
}

func TestEnqueueDocument_Validation(t *testing.T) {
	t.Parallel()
	uc, _ := newAnalysisUC(t, &fakeDispatcher{})
	if _, err := uc.EnqueueDocument(context.Background(), usecase.EnqueueDocumentRequest{Provider: "openai"}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("empty data: err = %v", err)
	}
	if _, err := uc.EnqueueDocument(context.Background(), usecase.EnqueueDocumentRequest{Data: []byte("x")}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("missing provider: err = %v", err)
	}
}
