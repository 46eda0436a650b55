package mariadb

import (
	"context"
	"crypto/sha1"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/vecmath"
)

const identityLockTimeoutSeconds = 10

// EmbeddingRepository stores embeddings with the vector as a JSON array column.
type EmbeddingRepository struct {
	pool  *Pool
	model string
}

func scanEmbeddings(rows *sql.Rows) ([]database.EnrolledEmbedding, error) {
	var result []database.EnrolledEmbedding
	for rows.Next() {
		var emb database.EnrolledEmbedding
		var raw []byte
		if err := rows.Scan(&emb.ID, &emb.Identity, &emb.Model, &raw, &emb.ImageRef, &emb.Score, &emb.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		var vec vecmath.Vector
		if err := json.Unmarshal(raw, &vec); err != nil {
			return nil, fmt.Errorf("decode embedding %d: %w", emb.ID, err)
		}
		emb.Vector = vec
		result = append(result, emb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embeddings: %w", err)
	}
	return result, nil
}

const embeddingColumns = "id, identity, model, embedding, image_ref, score, created_at"

// Get retrieves all samples of an identity, returns nil if the identity is unknown
func (r *EmbeddingRepository) Get(ctx context.Context, identity string) ([]database.EnrolledEmbedding, error) {
	rows, err := r.pool.db.QueryContext(ctx,
		"SELECT "+embeddingColumns+" FROM enrolled_embeddings WHERE model = ? AND identity = ? ORDER BY id",
		r.model, identity,
	)
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
	rows, err := r.pool.db.QueryContext(ctx,
		"SELECT "+embeddingColumns+" FROM enrolled_embeddings WHERE model = ? ORDER BY identity, id",
		r.model,
	)
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
	err := r.pool.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM enrolled_embeddings WHERE model = ? AND identity = ?",
		r.model, identity,
	).Scan(&count)
	if err != nil {
		return 0, database.NewStoreError("count", identity, err)
	}
	return count, nil
}

// Identities lists identities with sample counts
func (r *EmbeddingRepository) Identities(ctx context.Context) ([]database.IdentitySummary, error) {
	rows, err := r.pool.db.QueryContext(ctx, `
		SELECT identity, COUNT(*), MAX(created_at)
		FROM enrolled_embeddings
		WHERE model = ?
		GROUP BY identity
		ORDER BY identity`, r.model)
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
// Count and insert run on one connection holding a named lock on
// (model, identity), so replicas sharing the database cannot exceed the limit.
func (r *EmbeddingRepository) AddWithLimit(ctx context.Context, emb database.EnrolledEmbedding, limit int) (int, bool, error) {
	return r.insert(ctx, emb, limit)
}

// identityLockName fits the 64 character limit of GET_LOCK.
func (r *EmbeddingRepository) identityLockName(identity string) string {
	sum := sha1.Sum([]byte(r.model + "/" + identity))
	return "rollcall:" + hex.EncodeToString(sum[:])
}

func (r *EmbeddingRepository) insert(ctx context.Context, emb database.EnrolledEmbedding, limit int) (int, bool, error) {
	data, err := json.Marshal(vecmath.Sanitize(emb.Vector))
	if err != nil {
		return 0, false, database.NewStoreError("add", emb.Identity, fmt.Errorf("marshal embedding: %w", err))
	}

	conn, err := r.pool.db.Conn(ctx)
	if err != nil {
		return 0, false, database.NewStoreError("add", emb.Identity, err)
	}
	defer func() { _ = conn.Close() }()

	lockName := r.identityLockName(emb.Identity)
	var acquired sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, ?)", lockName, identityLockTimeoutSeconds).Scan(&acquired); err != nil {
		return 0, false, database.NewStoreError("add", emb.Identity, fmt.Errorf("acquire identity lock: %w", err))
	}
	if !acquired.Valid || acquired.Int64 != 1 {
		return 0, false, database.NewStoreError("add", emb.Identity, fmt.Errorf("acquire identity lock: timed out after %ds", identityLockTimeoutSeconds))
	}
	defer func() { _, _ = conn.ExecContext(context.Background(), "DO RELEASE_LOCK(?)", lockName) }()

	var count int
	err = conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM enrolled_embeddings WHERE model = ? AND identity = ?",
		r.model, emb.Identity,
	).Scan(&count)
	if err != nil {
		return 0, false, database.NewStoreError("add", emb.Identity, fmt.Errorf("count embeddings: %w", err))
	}
	if limit > 0 && count >= limit {
		return count, false, nil
	}

	_, err = conn.ExecContext(ctx,
		"INSERT INTO enrolled_embeddings (identity, model, embedding, image_ref, score, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		emb.Identity, r.model, data, emb.ImageRef, emb.Score, emb.CreatedAt.UTC(),
	)
	if err != nil {
		return 0, false, database.NewStoreError("add", emb.Identity, fmt.Errorf("insert embedding: %w", err))
	}
	return count + 1, true, nil
}

// Clear removes every sample of an identity
func (r *EmbeddingRepository) Clear(ctx context.Context, identity string) error {
	if _, err := r.pool.db.ExecContext(ctx, "DELETE FROM enrolled_embeddings WHERE model = ? AND identity = ?", r.model, identity); err != nil {
		return database.NewStoreError("clear", identity, err)
	}
	return nil
}

// ClearAll removes every sample of the model
func (r *EmbeddingRepository) ClearAll(ctx context.Context) error {
	if _, err := r.pool.db.ExecContext(ctx, "DELETE FROM enrolled_embeddings WHERE model = ?", r.model); err != nil {
		return database.NewStoreError("clear all", "", err)
	}
	return nil
}

var _ database.EmbeddingStore = (*EmbeddingRepository)(nil)
