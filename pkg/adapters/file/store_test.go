package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/formweave/pkg/adapters/file"
	"github.com/aretw0/formweave/pkg/domain"
	"github.com/aretw0/formweave/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ ports.ConnectionStore   = (*file.ConnectionStore)(nil)
	_ ports.ConversationStore = (*file.ConversationStore)(nil)
)

func TestConnectionStore_Contract(t *testing.T) {
	ports.RunConnectionStoreContract(t, file.NewConnectionStore(t.TempDir()))
}

func TestConversationStore_Contract(t *testing.T) {
	ports.RunConversationStoreContract(t, file.NewConversationStore(t.TempDir()))
}

func TestConversationStore_Layout(t *testing.T) {
	dir := t.TempDir()
	store := file.NewConversationStore(dir)
	ctx := context.Background()

	state := domain.NewConversation("conv-1", "resp-1", domain.Block{ID: "chat", Type: domain.BlockAIConversation})
	require.NoError(t, store.Save(ctx, state))

	path := filepath.Join(dir, "conversations", "conv-1.json")
	_, err := os.Stat(path)
	require.NoError(t, err, "conversation file should exist")

	// Leftover temp files from an interrupted write are not conversations.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "conversations", "tmp-conv-2-123.json"), []byte("{"), 0644))

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"conv-1"}, ids)
}

func TestConversationStore_RejectsPathIDs(t *testing.T) {
	store := file.NewConversationStore(t.TempDir())
	ctx := context.Background()

	state := domain.NewConversation("../escape", "resp-1", domain.Block{ID: "chat"})
	assert.Error(t, store.Save(ctx, state))

	_, err := store.Load(ctx, "")
	assert.Error(t, err)
}

func TestConnectionStore_EmptyDirectory(t *testing.T) {
	store := file.NewConnectionStore(filepath.Join(t.TempDir(), "missing"))

	ids, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}
