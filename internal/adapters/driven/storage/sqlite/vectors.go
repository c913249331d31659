package sqlite

import (
	"context"
	"fmt"
	"sort"

	"github.com/custodia-labs/kb/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/kb/internal/core/domain"
	"github.com/custodia-labs/kb/internal/core/ports/driven"
)

// vectorIndex implements driven.VectorIndex. Filtering happens in SQL and
// ranking in Go.
type vectorIndex struct {
	store      *Store
	dimensions int
}

var _ driven.VectorIndex = (*vectorIndex)(nil)

// Upsert writes all entries in one transaction. New entries take the next
// sequence number; replaced entries keep theirs.
func (v *vectorIndex) Upsert(ctx context.Context, entries ...driven.VectorEntry) error {
	for _, e := range entries {
		if e.ChunkID == "" {
			return fmt.Errorf("%w: chunk id is required", domain.ErrInvalidInput)
		}
		if len(e.Embedding) != v.dimensions {
			return domain.NewDimensionMismatch(len(e.Embedding), v.dimensions)
		}
	}
	if len(entries) == 0 {
		return nil
	}

	tx, err := v.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", domain.ErrIndexUnavailable, err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO vectors (chunk_id, document_id, position, permission, embedding, seq)
		VALUES (?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM vectors))
		ON CONFLICT(chunk_id) DO UPDATE SET
			document_id = excluded.document_id,
			position = excluded.position,
			permission = excluded.permission,
			embedding = excluded.embedding
	`)
	if err != nil {
		return fmt.Errorf("%w: prepare: %w", domain.ErrIndexUnavailable, err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.ChunkID, e.DocumentID, e.Position, string(e.Permission),
			float32SliceToBytes(e.Embedding)); err != nil {
			return fmt.Errorf("%w: upsert %s: %w", domain.ErrIndexUnavailable, e.ChunkID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", domain.ErrIndexUnavailable, err)
	}
	return nil
}

// Delete removes one vector. Unknown IDs are ignored.
func (v *vectorIndex) Delete(ctx context.Context, chunkID string) error {
	if _, err := v.store.db.ExecContext(ctx, "DELETE FROM vectors WHERE chunk_id = ?", chunkID); err != nil {
		return fmt.Errorf("%w: delete: %w", domain.ErrIndexUnavailable, err)
	}
	return nil
}

// DeleteByDocument removes every vector of a document.
func (v *vectorIndex) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	res, err := v.store.db.ExecContext(ctx, "DELETE FROM vectors WHERE document_id = ?", documentID)
	if err != nil {
		return 0, fmt.Errorf("%w: delete document: %w", domain.ErrIndexUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: rows affected: %w", domain.ErrIndexUnavailable, err)
	}
	return int(n), nil
}

type scoredHit struct {
	hit driven.VectorHit
	seq int64
}

// Search scores every vector that passes the filter and returns the k best.
func (v *vectorIndex) Search(
	ctx context.Context,
	query []float32,
	k int,
	filter driven.VectorFilter,
) ([]driven.VectorHit, error) {
	if len(query) != v.dimensions {
		return nil, domain.NewDimensionMismatch(len(query), v.dimensions)
	}
	if k <= 0 || len(filter.Permissions) == 0 {
		return []driven.VectorHit{}, nil
	}

	sqlQuery := "SELECT chunk_id, document_id, position, permission, embedding, seq FROM vectors WHERE permission IN (" +
		placeholders(len(filter.Permissions)) + ")"
	args := make([]any, 0, len(filter.Permissions)+len(filter.DocumentIDs))
	for _, p := range filter.Permissions {
		args = append(args, string(p))
	}
	if len(filter.DocumentIDs) > 0 {
		sqlQuery += " AND document_id IN (" + placeholders(len(filter.DocumentIDs)) + ")"
		for _, id := range filter.DocumentIDs {
			args = append(args, id)
		}
	}

	rows, err := v.store.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %w", domain.ErrIndexUnavailable, err)
	}
	defer rows.Close()

	var scored []scoredHit
	for rows.Next() {
		var (
			s    scoredHit
			perm string
			blob []byte
		)
		if err := rows.Scan(&s.hit.ChunkID, &s.hit.DocumentID, &s.hit.Position, &perm, &blob, &s.seq); err != nil {
			return nil, fmt.Errorf("%w: scan: %w", domain.ErrIndexUnavailable, err)
		}
		s.hit.Permission = domain.PermissionLevel(perm)
		s.hit.Similarity = memory.CosineSimilarity(query, bytesToFloat32Slice(blob))
		scored = append(scored, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate: %w", domain.ErrIndexUnavailable, err)
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].hit.Similarity != scored[j].hit.Similarity {
			return scored[i].hit.Similarity > scored[j].hit.Similarity
		}
		return scored[i].seq < scored[j].seq
	})
	if len(scored) > k {
		scored = scored[:k]
	}

	hits := make([]driven.VectorHit, len(scored))
	for i := range scored {
		hits[i] = scored[i].hit
	}
	return hits, nil
}

// Count returns the number of stored vectors.
func (v *vectorIndex) Count(ctx context.Context) (int, error) {
	var n int
	if err := v.store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM vectors").Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count: %w", domain.ErrIndexUnavailable, err)
	}
	return n, nil
}

// Dimensions returns the configured vector size.
func (v *vectorIndex) Dimensions() int {
	return v.dimensions
}

// Close is a no-op; the Store owns the connection.
func (v *vectorIndex) Close() error {
	return nil
}
