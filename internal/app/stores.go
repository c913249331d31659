package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/custodia-labs/kb/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/kb/internal/adapters/driven/storage/redis"
	"github.com/custodia-labs/kb/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/kb/internal/adapters/driven/vector/pgvector"
	"github.com/custodia-labs/kb/internal/core/domain"
	"github.com/custodia-labs/kb/internal/core/ports/driven"
)

// stores holds the persistence ports and the resources behind them.
type stores struct {
	docs          driven.DocumentStore
	index         driven.VectorIndex
	conversations driven.ConversationStore

	closers []func() error
}

// Close releases resources in reverse order of acquisition.
func (s *stores) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// openStores builds the document store, vector index and conversation
// store named by settings. A sqlite database is opened once and shared.
func openStores(ctx context.Context, cfg *domain.StorageSettings, dimensions int) (st *stores, err error) {
	st = &stores{}
	defer func() {
		if err != nil {
			_ = st.Close()
			st = nil
		}
	}()

	var db *sqlite.Store
	sqliteDB := func() (*sqlite.Store, error) {
		if db != nil {
			return db, nil
		}
		opened, err := sqlite.NewStore(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrIndexUnavailable, err)
		}
		db = opened
		st.closers = append(st.closers, db.Close)
		return db, nil
	}

	switch cfg.Backend {
	case domain.StorageMemory:
		st.docs = memory.NewDocumentStore()
	case domain.StorageSQLite, "":
		s, err := sqliteDB()
		if err != nil {
			return nil, err
		}
		st.docs = s.DocumentStore()
	default:
		return nil, unsupported("document", cfg.Backend)
	}

	switch cfg.VectorBackend {
	case domain.StorageMemory:
		st.index = memory.NewVectorIndex(dimensions)
	case domain.StorageSQLite, "":
		s, err := sqliteDB()
		if err != nil {
			return nil, err
		}
		st.index = s.VectorIndex(dimensions)
	case domain.StoragePostgres:
		idx, err := pgvector.New(ctx, pgvector.Config{DSN: cfg.PostgresDSN, Dimensions: dimensions})
		if err != nil {
			return nil, err
		}
		st.index = idx
		st.closers = append(st.closers, idx.Close)
	default:
		return nil, unsupported("vector", cfg.VectorBackend)
	}

	switch cfg.ConversationBackend {
	case domain.StorageMemory:
		st.conversations = memory.NewConversationStore()
	case domain.StorageSQLite, "":
		s, err := sqliteDB()
		if err != nil {
			return nil, err
		}
		st.conversations = s.ConversationStore()
	case domain.StorageRedis:
		rcfg := redis.Config{Addr: cfg.RedisAddr}
		if strings.HasPrefix(cfg.RedisAddr, "redis://") || strings.HasPrefix(cfg.RedisAddr, "rediss://") {
			rcfg = redis.Config{URL: cfg.RedisAddr}
		}
		conv, err := redis.NewConversationStore(ctx, rcfg)
		if err != nil {
			return nil, err
		}
		st.conversations = conv
		st.closers = append(st.closers, conv.Close)
	default:
		return nil, unsupported("conversation", cfg.ConversationBackend)
	}

	return st, nil
}

func unsupported(kind string, backend domain.StorageBackend) error {
	return fmt.Errorf("%w: %s backend %q is not supported", domain.ErrInvalidInput, kind, backend)
}
