// Package pgvector provides a VectorIndex backed by PostgreSQL with the
// pgvector extension.
//
// Search is an exact scan: filtering happens in the WHERE clause, so
// LIMIT always applies to entries the caller may read. There is no HNSW or
// IVFFlat index on the embedding column. Ranking uses the cosine distance
// operator and breaks ties by the identity column that records insertion
// order.
package pgvector

import (
	"context"
	"fmt"
	"math"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/custodia-labs/kb/internal/core/domain"
	"github.com/custodia-labs/kb/internal/core/ports/driven"
)

// DefaultTable is the table vectors are stored in.
const DefaultTable = "kb_vectors"

var tableName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Config configures the index.
type Config struct {
	// DSN is a PostgreSQL connection string.
	DSN string

	// Table overrides DefaultTable.
	Table string

	// Dimensions is the vector size of the embedding column.
	Dimensions int
}

// Index implements driven.VectorIndex.
type Index struct {
	pool       *pgxpool.Pool
	table      string
	dimensions int
	ownsPool   bool
}

var _ driven.VectorIndex = (*Index)(nil)

// New connects to PostgreSQL and prepares the vector table.
func New(ctx context.Context, cfg Config) (*Index, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("%w: postgres dsn is required", domain.ErrInvalidInput)
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %w", domain.ErrIndexUnavailable, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping: %w", domain.ErrIndexUnavailable, err)
	}

	idx, err := NewWithPool(ctx, pool, cfg.Table, cfg.Dimensions)
	if err != nil {
		pool.Close()
		return nil, err
	}
	idx.ownsPool = true
	return idx, nil
}

// NewWithPool prepares the vector table on an existing pool.
// The caller keeps ownership of the pool.
func NewWithPool(ctx context.Context, pool *pgxpool.Pool, table string, dimensions int) (*Index, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("%w: invalid table name %q", domain.ErrInvalidInput, table)
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive", domain.ErrInvalidInput)
	}

	idx := &Index{pool: pool, table: table, dimensions: dimensions}
	if err := idx.createSchema(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

func (i *Index) createSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE EXTENSION IF NOT EXISTS vector;

		CREATE TABLE IF NOT EXISTS %[1]s (
			chunk_id    TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			position    INTEGER NOT NULL,
			permission  TEXT NOT NULL,
			embedding   vector(%[2]d) NOT NULL,
			seq         BIGINT GENERATED ALWAYS AS IDENTITY
		);

		CREATE INDEX IF NOT EXISTS %[1]s_document_idx ON %[1]s (document_id);
		CREATE INDEX IF NOT EXISTS %[1]s_permission_idx ON %[1]s (permission);

		-- Approximate indexes filter after the scan and lose matches.
		DROP INDEX IF EXISTS %[1]s_embedding_idx;
	`, i.table, i.dimensions)
	if _, err := i.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("%w: create schema: %w", domain.ErrIndexUnavailable, err)
	}

	// vector(n) stores n as the column's type modifier.
	var stored int
	err := i.pool.QueryRow(ctx, `
		SELECT atttypmod FROM pg_attribute
		WHERE attrelid = $1::regclass AND attname = 'embedding'
	`, i.table).Scan(&stored)
	if err != nil {
		return fmt.Errorf("%w: inspect schema: %w", domain.ErrIndexUnavailable, err)
	}
	if stored != i.dimensions {
		return domain.NewDimensionMismatch(i.dimensions, stored)
	}
	return nil
}

// Upsert writes all entries in one transaction. Replaced entries keep their seq.
func (i *Index) Upsert(ctx context.Context, entries ...driven.VectorEntry) error {
	for _, e := range entries {
		if e.ChunkID == "" {
			return fmt.Errorf("%w: chunk id is required", domain.ErrInvalidInput)
		}
		if len(e.Embedding) != i.dimensions {
			return domain.NewDimensionMismatch(len(e.Embedding), i.dimensions)
		}
	}
	if len(entries) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (chunk_id, document_id, position, permission, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (chunk_id) DO UPDATE SET
			document_id = EXCLUDED.document_id,
			position = EXCLUDED.position,
			permission = EXCLUDED.permission,
			embedding = EXCLUDED.embedding
	`, i.table)

	err := pgx.BeginFunc(ctx, i.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, e := range entries {
			batch.Queue(query, e.ChunkID, e.DocumentID, e.Position, string(e.Permission), pgvector.NewVector(e.Embedding))
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("%w: upsert: %w", domain.ErrIndexUnavailable, err)
	}
	return nil
}

// Delete removes one vector. Unknown IDs are ignored.
func (i *Index) Delete(ctx context.Context, chunkID string) error {
	if _, err := i.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE chunk_id = $1", i.table), chunkID); err != nil {
		return fmt.Errorf("%w: delete: %w", domain.ErrIndexUnavailable, err)
	}
	return nil
}

// DeleteByDocument removes every vector of a document.
func (i *Index) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	tag, err := i.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE document_id = $1", i.table), documentID)
	if err != nil {
		return 0, fmt.Errorf("%w: delete document: %w", domain.ErrIndexUnavailable, err)
	}
	return int(tag.RowsAffected()), nil
}

// Search returns the k entries nearest to query among those matching filter.
func (i *Index) Search(
	ctx context.Context,
	query []float32,
	k int,
	filter driven.VectorFilter,
) ([]driven.VectorHit, error) {
	if len(query) != i.dimensions {
		return nil, domain.NewDimensionMismatch(len(query), i.dimensions)
	}
	if k <= 0 || len(filter.Permissions) == 0 {
		return []driven.VectorHit{}, nil
	}

	perms := make([]string, len(filter.Permissions))
	for j, p := range filter.Permissions {
		perms[j] = string(p)
	}

	sql := fmt.Sprintf(`
		SELECT chunk_id, document_id, position, permission, 1 - (embedding <=> $1) AS similarity
		FROM %s
		WHERE permission = ANY($2)
		  AND (cardinality($3::text[]) = 0 OR document_id = ANY($3))
		ORDER BY embedding <=> $1, seq
		LIMIT $4
	`, i.table)

	docIDs := filter.DocumentIDs
	if docIDs == nil {
		docIDs = []string{}
	}
	rows, err := i.pool.Query(ctx, sql, pgvector.NewVector(query), perms, docIDs, k)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %w", domain.ErrIndexUnavailable, err)
	}
	defer rows.Close()

	hits := make([]driven.VectorHit, 0, k)
	for rows.Next() {
		var (
			hit  driven.VectorHit
			perm string
		)
		if err := rows.Scan(&hit.ChunkID, &hit.DocumentID, &hit.Position, &perm, &hit.Similarity); err != nil {
			return nil, fmt.Errorf("%w: scan: %w", domain.ErrIndexUnavailable, err)
		}
		// Zero vectors have no direction; pgvector reports NaN.
		if math.IsNaN(hit.Similarity) {
			hit.Similarity = 0
		}
		hit.Permission = domain.PermissionLevel(perm)
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate: %w", domain.ErrIndexUnavailable, err)
	}
	return hits, nil
}

// Count returns the number of stored vectors.
func (i *Index) Count(ctx context.Context) (int, error) {
	var n int
	if err := i.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", i.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count: %w", domain.ErrIndexUnavailable, err)
	}
	return n, nil
}

// Dimensions returns the configured vector size.
func (i *Index) Dimensions() int {
	return i.dimensions
}

// Close releases the pool when the index opened it.
func (i *Index) Close() error {
	if i.ownsPool {
		i.pool.Close()
	}
	return nil
}
