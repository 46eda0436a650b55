//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/database"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}
	if container == nil {
		t.Skip("Docker not available, skipping integration test")
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dbURL := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	cfg := &config.DatabaseConfig{
		URL:          dbURL,
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, err := NewPool(cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create pool: %v", err)
	}

	// Run migrations
	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}

	return pool, cleanup
}

func TestEmbeddingRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewEmbeddingRepository(pool, database.ModelPrimary)
	cross := NewEmbeddingRepository(pool, database.ModelCrossValidation)

	newEmb := func(identity string, value float64) database.EnrolledEmbedding {
		v := make([]float64, 128)
		for i := range v {
			v[i] = value
		}
		emb, err := database.NewEnrolledEmbedding(identity, database.ModelPrimary, v, "img/"+identity, 0.9)
		if err != nil {
			t.Fatalf("NewEnrolledEmbedding: %v", err)
		}
		return emb
	}

	t.Run("AddAndGet", func(t *testing.T) {
		if err := repo.Add(ctx, newEmb("alice", 0.25)); err != nil {
			t.Fatalf("Failed to add embedding: %v", err)
		}
		if err := repo.Add(ctx, newEmb("alice", 0.5)); err != nil {
			t.Fatalf("Failed to add embedding: %v", err)
		}

		got, err := repo.Get(ctx, "alice")
		if err != nil {
			t.Fatalf("Failed to get embeddings: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("Expected 2 embeddings, got %d", len(got))
		}
		if len(got[0].Vector) != 128 || got[0].Vector[0] != 0.25 {
			t.Errorf("Unexpected vector round trip: len=%d first=%v", len(got[0].Vector), got[0].Vector[0])
		}
		if got[0].ImageRef != "img/alice" || got[0].Model != database.ModelPrimary {
			t.Errorf("Unexpected metadata: %+v", got[0])
		}
	})

	t.Run("GetUnknown", func(t *testing.T) {
		got, err := repo.Get(ctx, "nobody")
		if err != nil {
			t.Fatalf("Failed to get: %v", err)
		}
		if got != nil {
			t.Errorf("Expected nil, got %+v", got)
		}
	})

	t.Run("ModelScoping", func(t *testing.T) {
		count, err := cross.Count(ctx, "alice")
		if err != nil {
			t.Fatalf("Failed to count: %v", err)
		}
		if count != 0 {
			t.Errorf("Cross store sees %d primary samples", count)
		}
	})

	t.Run("GetAllAndIdentities", func(t *testing.T) {
		if err := repo.Add(ctx, newEmb("bob", 0.9)); err != nil {
			t.Fatalf("Failed to add: %v", err)
		}

		all, err := repo.GetAll(ctx)
		if err != nil {
			t.Fatalf("Failed to get all: %v", err)
		}
		if len(all) != 2 || all[0].Identity != "alice" || len(all[0].Embeddings) != 2 || all[1].Identity != "bob" {
			t.Errorf("Unexpected GetAll result: %+v", all)
		}

		summaries, err := repo.Identities(ctx)
		if err != nil {
			t.Fatalf("Failed to list identities: %v", err)
		}
		if len(summaries) != 2 || summaries[0].Count != 2 || summaries[1].Count != 1 {
			t.Errorf("Unexpected identities: %+v", summaries)
		}
	})

	t.Run("ConcurrentAdds", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := repo.Add(ctx, newEmb("carol", float64(i)/10)); err != nil {
					t.Errorf("Failed to add: %v", err)
				}
			}()
		}
		wg.Wait()

		count, _ := repo.Count(ctx, "carol")
		if count != 8 {
			t.Errorf("Expected 8, got %d", count)
		}
	})

	t.Run("AddWithLimitAcrossReplicas", func(t *testing.T) {
		other := NewEmbeddingRepository(pool, database.ModelPrimary)
		const limit = 3

		var wg sync.WaitGroup
		var mu sync.Mutex
		added := 0
		for i := range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				r := repo
				if i%2 == 1 {
					r = other
				}
				_, ok, err := r.AddWithLimit(ctx, newEmb("dave", float64(i)/10), limit)
				if err != nil {
					t.Errorf("Failed to add: %v", err)
					return
				}
				if ok {
					mu.Lock()
					added++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		count, _ := repo.Count(ctx, "dave")
		if count != limit || added != limit {
			t.Errorf("Expected %d stored and accepted, got count=%d accepted=%d", limit, count, added)
		}

		got, ok, err := repo.AddWithLimit(ctx, newEmb("dave", 0.99), limit)
		if err != nil || ok || got != limit {
			t.Errorf("Expected rejection at limit, got count=%d ok=%v err=%v", got, ok, err)
		}
	})

	t.Run("ClearAndClearAll", func(t *testing.T) {
		if err := repo.Clear(ctx, "alice"); err != nil {
			t.Fatalf("Failed to clear: %v", err)
		}
		if got, _ := repo.Get(ctx, "alice"); got != nil {
			t.Errorf("Expected alice to be cleared, got %d samples", len(got))
		}
		if err := repo.ClearAll(ctx); err != nil {
			t.Fatalf("Failed to clear all: %v", err)
		}
		all, _ := repo.GetAll(ctx)
		if len(all) != 0 {
			t.Errorf("Expected empty store, got %+v", all)
		}
	})
}

func TestLedgerRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewLedgerRepository(pool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	session := &database.AttendanceSession{
		ID:        uuid.New(),
		ClassRef:  "bio-2",
		Date:      time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
		StartTime: now.Add(-2 * time.Hour),
		EndTime:   now.Add(-time.Hour),
		Active:    true,
		CreatedAt: now,
	}

	t.Run("CreateAndGetSession", func(t *testing.T) {
		if err := repo.CreateSession(ctx, session); err != nil {
			t.Fatalf("Failed to create session: %v", err)
		}
		if err := repo.CreateSession(ctx, session); err == nil {
			t.Error("Expected duplicate session error")
		}

		got, err := repo.GetSession(ctx, session.ID)
		if err != nil {
			t.Fatalf("Failed to get session: %v", err)
		}
		if got == nil || got.ClassRef != "bio-2" || !got.Active || got.EndTime.IsZero() {
			t.Errorf("Unexpected session: %+v", got)
		}

		missing, err := repo.GetSession(ctx, uuid.New())
		if err != nil || missing != nil {
			t.Errorf("Expected nil, nil for unknown session, got %+v, %v", missing, err)
		}
	})

	t.Run("UpsertRecord", func(t *testing.T) {
		first, err := repo.UpsertRecord(ctx, &database.AttendanceRecord{
			ID: uuid.New(), SessionID: session.ID, Identity: "alice",
			Status: database.StatusPresent, Confidence: 0.6, CreatedAt: now, UpdatedAt: now,
		})
		if err != nil {
			t.Fatalf("Failed to upsert: %v", err)
		}

		later := now.Add(time.Minute)
		second, err := repo.UpsertRecord(ctx, &database.AttendanceRecord{
			ID: uuid.New(), SessionID: session.ID, Identity: "alice",
			Status: database.StatusPresent, Confidence: 0.8, CreatedAt: later, UpdatedAt: later,
		})
		if err != nil {
			t.Fatalf("Failed to upsert: %v", err)
		}

		if second.ID != first.ID {
			t.Errorf("Upsert changed record ID: %s -> %s", first.ID, second.ID)
		}
		if second.Confidence != 0.8 {
			t.Errorf("Expected confidence 0.8, got %v", second.Confidence)
		}

		records, err := repo.ListRecords(ctx, session.ID)
		if err != nil {
			t.Fatalf("Failed to list records: %v", err)
		}
		if len(records) != 1 {
			t.Errorf("Expected exactly 1 record, got %d", len(records))
		}
	})

	t.Run("DeactivateExpired", func(t *testing.T) {
		ids, err := repo.DeactivateExpired(ctx, now)
		if err != nil {
			t.Fatalf("Failed to deactivate expired: %v", err)
		}
		if len(ids) != 1 || ids[0] != session.ID {
			t.Errorf("Expected [%s], got %v", session.ID, ids)
		}
		if err := repo.DeactivateSession(ctx, uuid.New()); !errors.Is(err, database.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})
}
