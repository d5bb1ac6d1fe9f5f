package redis_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/formweave/pkg/adapters/redis"
	"github.com/aretw0/formweave/pkg/domain"
	"github.com/aretw0/formweave/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T, opts ...redis.Option) (*miniredis.Miniredis, *redis.Store) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err, "Failed to start miniredis")
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{
		Addr: mr.Addr(),
	})
	return mr, redis.NewFromClient(client, opts...)
}

func TestConnectionStore_Contract(t *testing.T) {
	_, store := setup(t)
	ports.RunConnectionStoreContract(t, store.Connections())
}

func TestConversationStore_Contract(t *testing.T) {
	_, store := setup(t)
	ports.RunConversationStoreContract(t, store.Conversations())
}

func TestConnectionStore_SourceIndexFollowsUpdates(t *testing.T) {
	_, store := setup(t)
	conns := store.Connections()
	ctx := context.Background()

	require.NoError(t, conns.Save(ctx, &domain.Connection{ID: "c1", SourceBlockID: "q1"}))

	_, err := conns.ApplyConnectionUpdate(ctx, "c1", map[string]any{"source_block_id": "q2"})
	require.NoError(t, err)

	_, err = conns.GetBySource(ctx, "q1")
	assert.ErrorIs(t, err, domain.ErrConnectionNotFound, "old source mapping is removed")

	moved, err := conns.GetBySource(ctx, "q2")
	require.NoError(t, err)
	assert.Equal(t, "c1", moved.ID)
}

func TestConversationStore_ConcurrentTurns(t *testing.T) {
	_, store := setup(t)
	convs := store.Conversations()
	ctx := context.Background()

	require.NoError(t, convs.Save(ctx, domain.NewConversation("conv", "r", domain.Block{ID: "chat"})))
	require.NoError(t, convs.ApplyConversationTurn(ctx, "conv", domain.Turn{Index: 0, Answer: "first"}))

	// Concurrent writers re-applying the same turn must converge on one copy.
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, convs.ApplyConversationTurn(ctx, "conv", domain.Turn{Index: 1, Answer: "second"}))
		}()
	}
	wg.Wait()

	loaded, err := convs.Load(ctx, "conv")
	require.NoError(t, err)
	require.Len(t, loaded.Turns, 2)
	assert.Equal(t, "second", loaded.Turns[1].Answer)
}

func TestConversationStore_TTL_Expiration(t *testing.T) {
	mr, store := setup(t, redis.WithTTL(1*time.Second))
	convs := store.Conversations()
	ctx := context.Background()

	require.NoError(t, convs.Save(ctx, domain.NewConversation("conv-ttl", "r", domain.Block{ID: "chat"})))

	ids, err := convs.List(ctx)
	require.NoError(t, err)
	assert.Contains(t, ids, "conv-ttl")

	// Fast Forward time in miniredis (for Key Expiration)
	mr.FastForward(2 * time.Second)

	_, err = convs.Load(ctx, "conv-ttl")
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)

	// The index is pruned against the wall clock, so wait past the score.
	time.Sleep(1200 * time.Millisecond)

	ids, err = convs.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestStore_Prefix(t *testing.T) {
	mr, store := setup(t, redis.WithPrefix("test:"))
	ctx := context.Background()

	require.NoError(t, store.Conversations().Save(ctx, domain.NewConversation("c", "r", domain.Block{ID: "chat"})))
	assert.True(t, mr.Exists("test:conversation:c"))
}
