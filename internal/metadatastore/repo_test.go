package metadatastore

import (
	"context"
	"testing"
	"time"

	"github.com/graphbrain/kgqa/internal/domain"
	"github.com/graphbrain/kgqa/internal/domainerr"
	"github.com/graphbrain/kgqa/internal/pkg/dbctx"
	"github.com/graphbrain/kgqa/internal/platform/logger"
)

func testService(t *testing.T) *Service {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	svc, err := New(log, ":memory:")
	if err != nil {
		t.Fatalf("metadatastore.New: %v", err)
	}
	return svc
}

func TestBrainRepoCreateGetDelete(t *testing.T) {
	svc := testService(t)
	repo := NewBrainRepo(svc.DB())
	dbc := dbctx.Context{Ctx: context.Background()}

	b := domain.Brain{BrainID: "brain-1", Name: "test brain", CreatedAt: time.Now().UTC(), DeployMode: "local"}
	if err := repo.Create(dbc, b); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.Get(dbc, "brain-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != b.Name {
		t.Fatalf("Get: expected name %q, got %q", b.Name, got.Name)
	}

	if err := repo.Delete(dbc, "brain-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.Get(dbc, "brain-1"); !domainerr.IsKind(err, domainerr.KindResourceNotFound) {
		t.Fatalf("Get after delete: expected ResourceNotFound, got %v", err)
	}
}

func TestSourceRepoCreateGetTitlesByIDs(t *testing.T) {
	svc := testService(t)
	repo := NewSourceRepo(svc.DB())
	dbc := dbctx.Context{Ctx: context.Background()}

	pdf, err := repo.Create(dbc, domain.Source{BrainID: "brain-1", Kind: domain.SourceKindPDF, Title: "a pdf", Text: "hello"})
	if err != nil {
		t.Fatalf("Create pdf: %v", err)
	}
	memo, err := repo.Create(dbc, domain.Source{BrainID: "brain-1", Kind: domain.SourceKindMemo, Title: "a memo", Text: "world"})
	if err != nil {
		t.Fatalf("Create memo: %v", err)
	}
	if pdf.SourceID == memo.SourceID {
		t.Fatalf("expected distinct source ids across kinds, got %d and %d", pdf.SourceID, memo.SourceID)
	}

	titles, err := repo.TitlesByIDs(dbc, []int64{pdf.SourceID, memo.SourceID})
	if err != nil {
		t.Fatalf("TitlesByIDs: %v", err)
	}
	if titles[pdf.SourceID] != "a pdf" || titles[memo.SourceID] != "a memo" {
		t.Fatalf("TitlesByIDs: unexpected result: %+v", titles)
	}

	list, err := repo.ListByBrain(dbc, "brain-1", domain.SourceKindPDF)
	if err != nil {
		t.Fatalf("ListByBrain: %v", err)
	}
	if len(list) != 1 || list[0].SourceID != pdf.SourceID {
		t.Fatalf("ListByBrain: unexpected result: %+v", list)
	}

	if err := repo.Delete(dbc, domain.SourceKindPDF, pdf.SourceID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.Get(dbc, domain.SourceKindPDF, pdf.SourceID); !domainerr.IsKind(err, domainerr.KindResourceNotFound) {
		t.Fatalf("Get after delete: expected ResourceNotFound, got %v", err)
	}
}

func TestChatRepoSaveMintsIncrementingIDs(t *testing.T) {
	svc := testService(t)
	sessions := NewChatSessionRepo(svc.DB())
	chats := NewChatRepo(svc.DB())
	dbc := dbctx.Context{Ctx: context.Background()}

	session := domain.ChatSession{SessionID: "session-1", Name: "s", BrainID: "brain-1", CreatedAt: time.Now().UTC()}
	if err := sessions.Create(dbc, session); err != nil {
		t.Fatalf("Create session: %v", err)
	}

	first, err := chats.Save(dbc, domain.ChatMessage{
		SessionID: "session-1",
		IsAI:      false,
		Message:   "what is this brain about?",
	})
	if err != nil {
		t.Fatalf("Save first: %v", err)
	}
	second, err := chats.Save(dbc, domain.ChatMessage{
		SessionID: "session-1",
		IsAI:      true,
		Message:   "it is about testing",
		ReferencedNodes: []domain.ReferencedNode{
			{Name: "testing", SourceIDs: []domain.ReferencedSource{{ID: "1", Title: "a pdf"}}},
		},
		Accuracy: 0.9,
	})
	if err != nil {
		t.Fatalf("Save second: %v", err)
	}
	if second.ChatID <= first.ChatID {
		t.Fatalf("expected monotonically increasing chat ids, got %d then %d", first.ChatID, second.ChatID)
	}

	list, err := chats.ListBySession(dbc, "session-1")
	if err != nil {
		t.Fatalf("ListBySession: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("ListBySession: expected 2 messages, got %d", len(list))
	}
	if len(list[1].ReferencedNodes) != 1 || list[1].ReferencedNodes[0].Name != "testing" {
		t.Fatalf("ListBySession: referenced nodes not round-tripped: %+v", list[1].ReferencedNodes)
	}

	got, err := chats.Get(dbc, first.ChatID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Message != first.Message {
		t.Fatalf("Get: message mismatch: %+v", got)
	}
}
