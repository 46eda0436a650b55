package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/vecmath"
)

// EmbeddingRepository provides PostgreSQL-backed embedding storage for one model
type EmbeddingRepository struct {
	pool  *Pool
	model string
}

// NewEmbeddingRepository creates a new PostgreSQL embedding repository
func NewEmbeddingRepository(pool *Pool, model string) *EmbeddingRepository {
	return &EmbeddingRepository{pool: pool, model: model}
}

func scanEmbeddings(rows *sql.Rows) ([]database.EnrolledEmbedding, error) {
	var result []database.EnrolledEmbedding
	for rows.Next() {
		var emb database.EnrolledEmbedding
		var vec pgvector.Vector
		if err := rows.Scan(&emb.ID, &emb.Identity, &emb.Model, &vec, &emb.ImageRef, &emb.Score, &emb.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		emb.Vector = vecmath.FromFloat32(vec.Slice())
		result = append(result, emb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embeddings: %w", err)
	}
	return result, nil
}

// Get retrieves all samples of an identity, returns nil if the identity is unknown
func (r *EmbeddingRepository) Get(ctx context.Context, identity string) ([]database.EnrolledEmbedding, error) {
	query := `
		SELECT id, identity, model, embedding, image_ref, score, created_at
		FROM enrolled_embeddings
		WHERE model = $1 AND identity = $2
		ORDER BY id
	`

	rows, err := r.pool.Query(ctx, query, r.model, identity)
	if err != nil {
		return nil, database.NewStoreError("get", identity, err)
	}
	defer rows.Close()

	result, err := scanEmbeddings(rows)
	if err != nil {
		return nil, database.NewStoreError("get", identity, err)
	}
	return result, nil
}

// GetAll returns every identity of the model sorted by label
func (r *EmbeddingRepository) GetAll(ctx context.Context) ([]database.IdentityEmbeddings, error) {
	query := `
		SELECT id, identity, model, embedding, image_ref, score, created_at
		FROM enrolled_embeddings
		WHERE model = $1
		ORDER BY identity, id
	`

	rows, err := r.pool.Query(ctx, query, r.model)
	if err != nil {
		return nil, database.NewStoreError("get all", "", err)
	}
	defer rows.Close()

	embeddings, err := scanEmbeddings(rows)
	if err != nil {
		return nil, database.NewStoreError("get all", "", err)
	}

	var result []database.IdentityEmbeddings
	for _, emb := range embeddings {
		if n := len(result); n > 0 && result[n-1].Identity == emb.Identity {
			result[n-1].Embeddings = append(result[n-1].Embeddings, emb)
			continue
		}
		result = append(result, database.IdentityEmbeddings{
			Identity:   emb.Identity,
			Embeddings: []database.EnrolledEmbedding{emb},
		})
	}
	return result, nil
}

// Count returns the number of samples of an identity
func (r *EmbeddingRepository) Count(ctx context.Context, identity string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM enrolled_embeddings WHERE model = $1 AND identity = $2",
		r.model, identity,
	).Scan(&count)
	if err != nil {
		return 0, database.NewStoreError("count", identity, err)
	}
	return count, nil
}

// Identities lists identities with sample counts
func (r *EmbeddingRepository) Identities(ctx context.Context) ([]database.IdentitySummary, error) {
	query := `
		SELECT identity, COUNT(*), MAX(created_at)
		FROM enrolled_embeddings
		WHERE model = $1
		GROUP BY identity
		ORDER BY identity
	`

	rows, err := r.pool.Query(ctx, query, r.model)
	if err != nil {
		return nil, database.NewStoreError("identities", "", err)
	}
	defer rows.Close()

	var result []database.IdentitySummary
	for rows.Next() {
		var s database.IdentitySummary
		if err := rows.Scan(&s.Identity, &s.Count, &s.LastEnrolled); err != nil {
			return nil, database.NewStoreError("identities", "", fmt.Errorf("scan identity: %w", err))
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, database.NewStoreError("identities", "", err)
	}
	return result, nil
}

// Add inserts a sample
func (r *EmbeddingRepository) Add(ctx context.Context, emb database.EnrolledEmbedding) error {
	_, _, err := r.insert(ctx, emb, 0)
	return err
}

// AddWithLimit inserts a sample unless the identity already holds limit samples.
// Count and insert run in one transaction holding an advisory lock on
// (model, identity), so replicas sharing the database cannot exceed the limit.
func (r *EmbeddingRepository) AddWithLimit(ctx context.Context, emb database.EnrolledEmbedding, limit int) (int, bool, error) {
	return r.insert(ctx, emb, limit)
}

func (r *EmbeddingRepository) insert(ctx context.Context, emb database.EnrolledEmbedding, limit int) (int, bool, error) {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, database.NewStoreError("add", emb.Identity, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", r.model+"/"+emb.Identity); err != nil {
		return 0, false, database.NewStoreError("add", emb.Identity, fmt.Errorf("acquire identity lock: %w", err))
	}

	var count int
	err = tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM enrolled_embeddings WHERE model = $1 AND identity = $2",
		r.model, emb.Identity,
	).Scan(&count)
	if err != nil {
		return 0, false, database.NewStoreError("add", emb.Identity, fmt.Errorf("count embeddings: %w", err))
	}
	if limit > 0 && count >= limit {
		return count, false, nil
	}

	query := `
		INSERT INTO enrolled_embeddings (identity, model, embedding, image_ref, score, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = tx.ExecContext(ctx, query,
		emb.Identity,
		r.model,
		pgvector.NewVector(vecmath.ToFloat32(emb.Vector)),
		emb.ImageRef,
		emb.Score,
		emb.CreatedAt,
	)
	if err != nil {
		return 0, false, database.NewStoreError("add", emb.Identity, fmt.Errorf("insert embedding: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return 0, false, database.NewStoreError("add", emb.Identity, fmt.Errorf("commit: %w", err))
	}
	return count + 1, true, nil
}

// Clear removes every sample of an identity
func (r *EmbeddingRepository) Clear(ctx context.Context, identity string) error {
	_, err := r.pool.Exec(ctx, "DELETE FROM enrolled_embeddings WHERE model = $1 AND identity = $2", r.model, identity)
	if err != nil {
		return database.NewStoreError("clear", identity, err)
	}
	return nil
}

// ClearAll removes every sample of the model
func (r *EmbeddingRepository) ClearAll(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, "DELETE FROM enrolled_embeddings WHERE model = $1", r.model)
	if err != nil {
		return database.NewStoreError("clear all", "", err)
	}
	return nil
}

var _ database.EmbeddingStore = (*EmbeddingRepository)(nil)
