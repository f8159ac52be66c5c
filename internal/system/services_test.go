package system

import (
	"context"
	"path/filepath"
	"testing"

	"ghostbot/internal/config"
	"ghostbot/internal/perception"
	"ghostbot/internal/perception/perceptiontest"
	"ghostbot/internal/session"
	"ghostbot/internal/transport"
	"ghostbot/internal/transport/transporttest"
	"ghostbot/internal/types"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.LLM.APIKeys = []string{"key-a", "key-b"}
	cfg.Memory.DatabasePath = filepath.Join(t.TempDir(), "data", "context.db")
	return cfg
}

func scripted(m *perceptiontest.Model) perception.ClientFactory {
	return func(context.Context, string) (perception.Model, error) { return m, nil }
}

func boot(t *testing.T, cfg *config.Config, m *perceptiontest.Model) *Services {
	t.Helper()
	svc, err := Boot(context.Background(), cfg, BootOptions{Factory: scripted(m)})
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, svc.Close()) })
	return svc
}

func TestBootWiresEverything(t *testing.T) {
	svc := boot(t, testConfig(t), perceptiontest.New())

	assert.Equal(t, 2, svc.Gate.Size())
	assert.NotNil(t, svc.Store)
	assert.NotNil(t, svc.Executor)
	assert.NotNil(t, svc.Cancels)
	assert.Nil(t, svc.Browser, "headless rendering is opt-in")
	for _, name := range []string{"web_search", "web_fetch", "research_cache_stats", "extract_document", "generate_image"} {
		assert.True(t, svc.Tools.Has(name), name)
	}
}

func TestBootRequiresKeys(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLM.APIKeys = nil
	_, err := Boot(context.Background(), cfg, BootOptions{Factory: scripted(perceptiontest.New())})
	assert.Error(t, err)
}

func TestBootRedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Memory.Driver = "redis"
	cfg.Memory.RedisAddr = mr.Addr()
	svc := boot(t, cfg, perceptiontest.New())

	ctx := context.Background()
	require.NoError(t, svc.Store.AddFile(ctx, 7, "catatan.txt", "isi"))
	state, err := svc.Store.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, []string{"catatan.txt"}, state.FileNames())
	assert.NotEmpty(t, mr.Keys())
}

func TestBootUnreachableRedis(t *testing.T) {
	cfg := testConfig(t)
	cfg.Memory.Driver = "redis"
	cfg.Memory.RedisAddr = "127.0.0.1:1"
	_, err := Boot(context.Background(), cfg, BootOptions{Factory: scripted(perceptiontest.New())})
	assert.Error(t, err)
}

func TestRespondThroughRenderer(t *testing.T) {
	model := perceptiontest.New().
		On("classify", perceptiontest.Reply{Text: "CASUAL_CONVERSATION"}).
		On(session.OperationStream, perceptiontest.Reply{Chunks: []string{"Halo ", "**teman**"}})
	svc := boot(t, testConfig(t), model)
	ctx := context.Background()

	before, err := svc.Store.Get(ctx, 42)
	require.NoError(t, err)

	rec := transporttest.New()
	placeholder, err := rec.Send(ctx, 42, transport.PlainText("..."))
	require.NoError(t, err)

	require.NoError(t, svc.Renderer(rec).Render(ctx, placeholder, svc.Executor.Respond(ctx, 42, "halo")))

	final, ok := rec.Current(placeholder)
	require.True(t, ok)
	assert.Equal(t, transport.HTMLText("Halo <b>teman</b>"), final)

	after, err := svc.Store.Get(ctx, 42)
	require.NoError(t, err)
	require.Len(t, after.History, len(before.History)+2)
	assert.Equal(t, types.RoleModel, after.History[len(after.History)-1].Role)
	assert.Equal(t, 0, svc.Cancels.Active())
}
