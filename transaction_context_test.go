package frost

import (
	"context"
	"errors"
	"testing"

	"github.com/pbaumard/FROST-Server/internal/expression"
	"github.com/pbaumard/FROST-Server/internal/model"
	"github.com/pbaumard/FROST-Server/internal/persistence"
)

var errAbort = errors.New("abort write for test")

func auditCounter(t *testing.T, s *Service) int {
	t.Helper()
	var counter int
	if err := s.DB().Raw(`SELECT "COUNTER" FROM "AUDIT"`).Scan(&counter).Error; err != nil {
		t.Fatalf("Failed to read audit counter: %v", err)
	}
	return counter
}

func countThings(t *testing.T, s *Service, thing *EntityType) int {
	t.Helper()
	set, err := s.Query(context.Background(), thing, Query{})
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	return set.Len()
}

func TestTransactionFromContext_Outside(t *testing.T) {
	if tx, ok := TransactionFromContext(context.Background()); ok || tx != nil {
		t.Errorf("Expected no transaction in a plain context, got %v", tx)
	}
}

func TestChangeHook_RollsBackOnAbort(t *testing.T) {
	s := newTestService(t, Config{})
	if err := s.DB().Exec(`CREATE TABLE "AUDIT" ("COUNTER" INTEGER)`).Error; err != nil {
		t.Fatalf("Failed to create audit table: %v", err)
	}
	if err := s.DB().Exec(`INSERT INTO "AUDIT" ("COUNTER") VALUES (0)`).Error; err != nil {
		t.Fatalf("Failed to seed audit table: %v", err)
	}

	var observed []persistence.EventType
	abort := false
	s.OnChange(func(ctx context.Context, msg *ChangeMessage) error {
		tx, ok := TransactionFromContext(ctx)
		if !ok {
			return errors.New("transaction not available in context")
		}
		if _, err := tx.ExecContext(ctx, `UPDATE "AUDIT" SET "COUNTER" = "COUNTER" + 1`); err != nil {
			return err
		}
		observed = append(observed, msg.Event)
		if abort {
			return errAbort
		}
		return nil
	})

	ctx := context.Background()
	thing := mustEntityType(t, s, "Thing")
	station := newThing(t, thing, "Station", "Roof")
	if err := s.Insert(ctx, station); err != nil {
		t.Fatalf("Insert() error: %v", err)
	}
	if got := auditCounter(t, s); got != 1 {
		t.Errorf("Expected the hook write to commit, counter=%d", got)
	}

	abort = true
	update := model.NewEntityWithID(thing, station.ID())
	if err := update.SetProperty(model.EPName, "Renamed"); err != nil {
		t.Fatalf("Failed to set name: %v", err)
	}
	if _, err := s.Update(ctx, update); !errors.Is(err, errAbort) {
		t.Fatalf("Expected the hook error, got %v", err)
	}
	if got := auditCounter(t, s); got != 1 {
		t.Errorf("Expected the hook write to roll back, counter=%d", got)
	}
	set, err := s.Query(ctx, thing, Query{Filter: expression.Eq(expression.NewPath("name"), expression.StringConstant{V: "Station"})})
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if set.Len() != 1 {
		t.Error("Expected the aborted update to roll back")
	}

	if len(observed) != 2 || observed[0] != persistence.EventCreate || observed[1] != persistence.EventUpdate {
		t.Errorf("Expected create and update events, got %v", observed)
	}
}

func TestInsert_RestoresIDOnAbort(t *testing.T) {
	ctx := context.Background()
	abortAll := func(context.Context, *ChangeMessage) error { return errAbort }

	t.Run("generated long", func(t *testing.T) {
		s := newTestService(t, Config{})
		s.OnChange(abortAll)
		thing := mustEntityType(t, s, "Thing")
		e := newThing(t, thing, "Station", "Roof")
		if err := s.Insert(ctx, e); !errors.Is(err, errAbort) {
			t.Fatalf("Expected the hook error, got %v", err)
		}
		if e.ID() != nil || e.IsSetProperty(model.EPID) {
			t.Errorf("Expected no id after the rollback, got %v", e.ID())
		}
	})

	t.Run("generated string", func(t *testing.T) {
		s := newTestService(t, Config{IDType: "STRING"})
		s.OnChange(abortAll)
		thing := mustEntityType(t, s, "Thing")
		e := newThing(t, thing, "Station", "Roof")
		if err := s.Insert(ctx, e); !errors.Is(err, errAbort) {
			t.Fatalf("Expected the hook error, got %v", err)
		}
		if e.ID() != nil || e.IsSetProperty(model.EPID) {
			t.Errorf("Expected no id after the rollback, got %v", e.ID())
		}
		if got := countThings(t, s, thing); got != 0 {
			t.Errorf("Expected no stored things, got %d", got)
		}
	})

	t.Run("client id", func(t *testing.T) {
		s := newTestService(t, Config{IDType: "STRING", IDGeneration: ServerAndClientGenerated})
		s.OnChange(abortAll)
		thing := mustEntityType(t, s, "Thing")
		e := newThing(t, thing, "Station", "Roof").SetID(model.IDString("thing-1"))
		if err := s.Insert(ctx, e); !errors.Is(err, errAbort) {
			t.Fatalf("Expected the hook error, got %v", err)
		}
		if e.ID() != model.IDString("thing-1") {
			t.Errorf("Expected the client id to survive, got %v", e.ID())
		}
	})
}

func TestService_Transaction(t *testing.T) {
	s := newTestService(t, Config{})
	ctx := context.Background()
	thing := mustEntityType(t, s, "Thing")

	err := s.Transaction(ctx, func(ctx context.Context) error {
		for _, name := range []string{"A", "B"} {
			if err := s.Insert(ctx, newThing(t, thing, name, "x")); err != nil {
				return err
			}
		}
		set, err := s.Query(ctx, thing, Query{})
		if err != nil {
			return err
		}
		if set.Len() != 2 {
			t.Errorf("Expected both inserts to be visible inside the transaction, got %d", set.Len())
		}
		return errAbort
	})
	if !errors.Is(err, errAbort) {
		t.Fatalf("Expected the transaction error, got %v", err)
	}
	if got := countThings(t, s, thing); got != 0 {
		t.Errorf("Expected the inserts to roll back, got %d things", got)
	}

	err = s.Transaction(ctx, func(ctx context.Context) error {
		return s.Insert(ctx, newThing(t, thing, "C", "x"))
	})
	if err != nil {
		t.Fatalf("Transaction() error: %v", err)
	}
	if got := countThings(t, s, thing); got != 1 {
		t.Errorf("Expected the committed insert, got %d things", got)
	}
}
