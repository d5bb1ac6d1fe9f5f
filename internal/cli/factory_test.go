package cli

import (
	"bytes"
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/formweave"
	"github.com/aretw0/formweave/internal/config"
	"github.com/aretw0/formweave/internal/testutils"
	"github.com/aretw0/formweave/pkg/adapters/memory"
	"github.com/aretw0/formweave/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleLoader(t *testing.T, forms ...*domain.Form) formweave.Option {
	t.Helper()
	if len(forms) == 0 {
		forms = []*domain.Form{testutils.SampleForm()}
	}
	loader, err := memory.NewFromForms(forms...)
	require.NoError(t, err)
	return formweave.WithLoader(loader)
}

func build(t *testing.T, cfg config.Config, extra ...formweave.Option) *Stack {
	t.Helper()
	ctx := context.Background()
	stack, err := Build(ctx, cfg, append([]formweave.Option{sampleLoader(t)}, extra...)...)
	require.NoError(t, err)
	t.Cleanup(func() { stack.Close(ctx) })
	return stack
}

// converse answers the first turn of the sample conversation.
func converse(t *testing.T, engine *formweave.Engine, answer string) string {
	t.Helper()
	ctx := context.Background()
	form, err := engine.LoadForm(ctx, "onboarding")
	require.NoError(t, err)
	res, err := engine.StartConversation(ctx, form, "chat", "r1")
	require.NoError(t, err)
	_, err = engine.SubmitAnswer(ctx, res.State.ID, 0, answer)
	require.NoError(t, err)
	return res.State.ID
}

func readStored(t *testing.T, dir string) string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(dir, "conversations"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	data, err := os.ReadFile(filepath.Join(dir, "conversations", entries[0].Name()))
	require.NoError(t, err)
	return string(data)
}

func TestBuild_Memory(t *testing.T) {
	stack := build(t, config.Default())
	assert.Nil(t, stack.Registry)

	id := converse(t, stack.Engine, "Grow")
	st, err := stack.Engine.Conversation(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, []string{"Grow"}, st.Answers())
}

func TestBuild_FileWithEncryption(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Backend = config.BackendFile
	cfg.Store.Path = t.TempDir()
	cfg.Encryption.Key = base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32)))

	stack := build(t, cfg)
	id := converse(t, stack.Engine, "my secret plans")

	raw := readStored(t, cfg.Store.Path)
	assert.NotContains(t, raw, "my secret plans")
	assert.Contains(t, raw, "enc:v1:")

	st, err := stack.Engine.Conversation(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "my secret plans", st.Turns[0].Answer)
}

func TestBuild_FileWithRedaction(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Backend = config.BackendFile
	cfg.Store.Path = t.TempDir()
	cfg.RedactPatterns = []string{`\d{3}-\d{4}`}

	stack := build(t, cfg)
	converse(t, stack.Engine, "call me at 555-1234")

	raw := readStored(t, cfg.Store.Path)
	assert.Contains(t, raw, "call me at ***")
}

func TestBuild_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Default()
	cfg.Store.Backend = config.BackendRedis
	cfg.Store.RedisAddr = mr.Addr()

	ctx := context.Background()
	stack, err := Build(ctx, cfg, sampleLoader(t))
	require.NoError(t, err)
	converse(t, stack.Engine, "Grow")
	require.NoError(t, stack.Close(ctx))

	keys := mr.Keys()
	assert.NotEmpty(t, keys)
}

func TestBuild_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := config.Default()
	cfg.Store.Backend = config.BackendRedis
	cfg.Store.RedisAddr = addr
	_, err := Build(context.Background(), cfg, sampleLoader(t))
	assert.ErrorContains(t, err, "failed to reach redis")
}

func TestBuild_SQLite(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Backend = config.BackendSQLite
	cfg.Store.Path = t.TempDir()

	stack := build(t, cfg)
	id := converse(t, stack.Engine, "Grow")

	ids, err := stack.Engine.ListConversations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{id}, ids)
	assert.FileExists(t, filepath.Join(cfg.Store.Path, "formweave.db"))
}

func TestBuild_Metrics(t *testing.T) {
	cfg := config.Default()
	cfg.Metrics.Enabled = true
	stack := build(t, cfg)
	require.NotNil(t, stack.Registry)

	ctx := context.Background()
	form, err := stack.Engine.LoadForm(ctx, "onboarding")
	require.NoError(t, err)
	_, err = stack.Engine.ResolveNext(ctx, form, "age", domain.Answers{"age": domain.NumberAnswer(10)})
	require.NoError(t, err)

	families, err := stack.Registry.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["formweave_default_targets_total"])
	assert.True(t, names["go_goroutines"])
}

func TestBuild_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{"log level", func(c *config.Config) { c.LogLevel = "loud" }, "unknown log level"},
		{"backend", func(c *config.Config) { c.Store.Backend = "tape" }, "unknown store backend"},
		{"encryption key", func(c *config.Config) { c.Encryption.Key = "c2hvcnQ=" }, "32"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			_, err := Build(context.Background(), cfg, sampleLoader(t))
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestPlay_JSON(t *testing.T) {
	stack := build(t, config.Default())
	var out bytes.Buffer

	err := Play(context.Background(), stack.Engine, PlayOptions{
		JSON:   true,
		Input:  strings.NewReader("2\n12\n"),
		Output: &out,
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), `"role": "opt-pm"`)
	assert.Contains(t, out.String(), `"age": 12`)
}

func TestPlay_Summary(t *testing.T) {
	stack := build(t, config.Default())
	var out bytes.Buffer

	err := Play(context.Background(), stack.Engine, PlayOptions{
		FormID: "onboarding",
		Input:  strings.NewReader("2\nquit\n"),
		Output: &out,
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), ">>> Answers:")
	assert.Contains(t, out.String(), "role: opt-pm")
}

func TestResolveFormID(t *testing.T) {
	ctx := context.Background()
	stack := build(t, config.Default())

	id, err := ResolveFormID(ctx, stack.Engine, "")
	require.NoError(t, err)
	assert.Equal(t, "onboarding", id)

	id, err = ResolveFormID(ctx, stack.Engine, "other")
	require.NoError(t, err)
	assert.Equal(t, "other", id)

	second := testutils.SampleForm()
	second.ID = "second"
	multi, err := Build(ctx, config.Default(), sampleLoader(t, testutils.SampleForm(), second))
	require.NoError(t, err)
	_, err = ResolveFormID(ctx, multi.Engine, "")
	assert.ErrorContains(t, err, "onboarding, second")
}
