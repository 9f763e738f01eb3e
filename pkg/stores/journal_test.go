package stores

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/panelflow/panelflow/pkg/engine"
	"github.com/panelflow/panelflow/pkg/telemetry"
)

type mapLoader map[string]*engine.Template

func (m mapLoader) Load(path string) (*engine.Template, error) {
	if t, ok := m[path]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("%s: %w", path, engine.ErrTemplateNotFound)
}

func TestJournalRecordsPanelSystem(t *testing.T) {
	store := setupTestStore(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	journal, err := NewJournal(ctx, store, zerolog.Nop(), 64)
	if err != nil {
		t.Fatalf("NewJournal failed: %v", err)
	}

	bus := telemetry.NewBus(telemetry.EventsConfig{BufferSize: 64, EnableAsync: true}, zerolog.Nop())
	defer func() { _ = bus.Shutdown(context.Background()) }()
	if _, err := bus.Subscribe(ctx, engine.EventFilter{}, journal.HandleEvent); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	sys := engine.New(mapLoader{
		"ui/bag": {Path: "ui/bag", Layer: 10, UseMask: true},
	}, engine.WithObserver(journal), engine.WithPublisher(bus))
	if err := sys.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if _, err := sys.Show("ui/bag", false, nil).Wait(ctx); err != nil {
		t.Fatalf("Show failed: %v", err)
	}
	if _, err := sys.Show("ui/missing", false, nil).Wait(ctx); err != nil {
		t.Fatalf("Show missing failed: %v", err)
	}
	if _, err := sys.Close("ui/bag", false).Wait(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := sys.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if err := bus.Flush(ctx); err != nil {
		t.Fatalf("Bus flush failed: %v", err)
	}
	if err := journal.Flush(ctx); err != nil {
		t.Fatalf("Journal flush failed: %v", err)
	}

	ops, err := store.ListOperations(ctx, OperationFilter{SessionID: journal.Session()})
	if err != nil {
		t.Fatalf("ListOperations failed: %v", err)
	}
	if len(ops) != 3 {
		t.Fatalf("Expected 3 operation records, got %d", len(ops))
	}
	if ops[0].Type != "show" || ops[0].Path != "ui/bag" || ops[0].State != "completed" {
		t.Errorf("Unexpected first record: %+v", ops[0])
	}
	if ops[2].Type != "close" {
		t.Errorf("Expected close record last, got %s", ops[2].Type)
	}

	created, err := store.ListEvents(ctx, EventFilter{SessionID: journal.Session(), Type: string(engine.EventPanelCreated)})
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(created) != 1 || created[0].Path != "ui/bag" {
		t.Errorf("Expected one created event for ui/bag, got %+v", created)
	}

	if err := journal.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := journal.Flush(ctx); err != ErrJournalClosed {
		t.Errorf("Expected ErrJournalClosed, got %v", err)
	}

	sessions, err := store.ListSessions(ctx, 1, 0)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 1 || sessions[0].EndedAt == nil {
		t.Errorf("Expected ended session, got %+v", sessions)
	}
}

func TestJournalDropsWhenFull(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	journal, err := NewJournal(ctx, store, zerolog.Nop(), 1)
	if err != nil {
		t.Fatalf("NewJournal failed: %v", err)
	}

	// Block the writer so the buffer fills.
	release := make(chan struct{})
	journal.records <- func(context.Context) { <-release }
	for i := 0; i < 5; i++ {
		journal.HandleEvent(ctx, &engine.Event{ID: fmt.Sprint(i), Type: engine.EventPanelShown, Level: "info"})
	}
	close(release)

	if journal.Dropped() == 0 {
		t.Error("Expected dropped records")
	}
	if err := journal.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}
