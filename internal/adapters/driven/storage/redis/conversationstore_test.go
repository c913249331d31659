package redis

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/custodia-labs/kb/internal/adapters/driven/storage/storetest"
	"github.com/custodia-labs/kb/internal/core/domain"
	"github.com/custodia-labs/kb/internal/core/ports/driven"
)

// startRedis runs a redis:7 container for the duration of the test.
func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	if host == "" || host == "null" {
		host = "localhost"
	}
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	cli := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	require.NoError(t, cli.Ping(ctx).Err())
	t.Cleanup(func() { _ = cli.Close() })
	return cli
}

func TestConversationStore_Contract(t *testing.T) {
	cli := startRedis(t)

	storetest.RunConversationStore(t, func(t *testing.T) driven.ConversationStore {
		return NewConversationStoreWithClient(cli, "test:"+uuid.NewString()+":")
	})
}

func TestConversationStore_PrefixIsolation(t *testing.T) {
	cli := startRedis(t)
	ctx := context.Background()

	a := NewConversationStoreWithClient(cli, "a:")
	b := NewConversationStoreWithClient(cli, "b:")

	_, err := a.Append(ctx, "shared", domain.Message{Role: domain.RoleUser, Content: "hello"})
	require.NoError(t, err)

	_, err = b.Get(ctx, "shared")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	convs, err := b.List(ctx, domain.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, convs)
}

func TestConversationStore_HeaderTimes(t *testing.T) {
	cli := startRedis(t)
	ctx := context.Background()

	store := NewConversationStoreWithClient(cli, "")
	first := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return first }
	_, err := store.Append(ctx, "timed", domain.Message{Role: domain.RoleUser, Content: "first"})
	require.NoError(t, err)

	second := first.Add(time.Minute)
	store.now = func() time.Time { return second }
	_, err = store.Append(ctx, "timed", domain.Message{Role: domain.RoleAssistant, Content: "second"})
	require.NoError(t, err)

	conv, err := store.Get(ctx, "timed")
	require.NoError(t, err)
	assert.True(t, conv.CreatedAt.Equal(first))
	assert.True(t, conv.UpdatedAt.Equal(second))
	assert.Equal(t, "first", conv.Title)
	assert.Equal(t, 2, conv.MessageCount)
}

func TestNewConversationStore_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "no address", cfg: Config{}},
		{name: "bad url", cfg: Config{URL: "http://not-redis"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConversationStore(context.Background(), tt.cfg)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}
