package cmd

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gorbunovakris4/hse-crawler/internal/app"
	"github.com/gorbunovakris4/hse-crawler/internal/config"
	"github.com/gorbunovakris4/hse-crawler/internal/crawler"
	"github.com/gorbunovakris4/hse-crawler/internal/hash/sha256"
	"github.com/gorbunovakris4/hse-crawler/internal/records"
	"github.com/gorbunovakris4/hse-crawler/internal/storage/local"
)

func writeConfig(t *testing.T, baseDir string) string {
	t.Helper()
	return writeConfigWith(t, baseDir, "400ms", "127.0.0.1:0")
}

func writeConfigWith(t *testing.T, baseDir, idleTimeout, metricsAddr string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := fmt.Sprintf(`
crawler:
  workers: 2
  idle_timeout: %s
fetcher:
  connect_timeout: 100ms
  read_timeout: 200ms
storage:
  backend: local
  base_dir: %s
metrics:
  enabled: true
  addr: %s
logging:
  development: false
`, idleTimeout, baseDir, metricsAddr)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCrawlGraphRankCommands(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title>Seed</title></head><body><div class="main"><p>x</p></div></body></html>`))
	}))
	defer srv.Close()

	baseDir := t.TempDir()
	cfgPath := writeConfig(t, baseDir)

	out, err := execute(t, "--config", cfgPath, "crawl", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "visited=1 persisted=1 failed=0")

	out, err = execute(t, "--config", cfgPath, "graph")
	require.NoError(t, err)
	assert.Contains(t, out, "graph: nodes=1 edges=0 skipped=0")
	assert.FileExists(t, filepath.Join(baseDir, "web_graph", "edges.txt"))

	out, err = execute(t, "--config", cfgPath, "rank", "--top", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "converged=true")
	assert.Contains(t, out, srv.URL)
	assert.FileExists(t, filepath.Join(baseDir, "ranking", "pages_ranked.csv"))
}

func TestRankCommandPrintsTopPages(t *testing.T) {
	baseDir := t.TempDir()
	blobs, err := local.New(local.Config{BaseDir: baseDir})
	require.NoError(t, err)
	store := records.New(blobs, sha256.New(), records.DefaultPrefix)
	for _, r := range []crawler.CrawlRecord{
		{URL: "https://www.hse.ru/a", Links: []string{"https://www.hse.ru/hub"}},
		{URL: "https://www.hse.ru/b", Links: []string{"https://www.hse.ru/hub"}},
		{URL: "https://www.hse.ru/hub", Links: []string{"https://www.hse.ru/a"}},
	} {
		_, err := store.Save(context.Background(), r)
		require.NoError(t, err)
	}
	cfgPath := writeConfig(t, baseDir)

	_, err = execute(t, "--config", cfgPath, "graph")
	require.NoError(t, err)
	out, err := execute(t, "--config", cfgPath, "rank", "--top", "1")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "https://www.hse.ru/hub")
}

func TestRankCommandFailsWithoutGraph(t *testing.T) {
	cfgPath := writeConfig(t, t.TempDir())
	_, err := execute(t, "--config", cfgPath, "rank")
	require.ErrorContains(t, err, "rank pages")
}

func TestRootRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("crawler:\n  workers: 0\n"), 0o600))
	_, err := execute(t, "--config", path, "graph")
	require.ErrorContains(t, err, "crawler.workers")
}

func TestResolveAppWithoutContext(t *testing.T) {
	_, err := resolveApp(context.Background())
	require.ErrorContains(t, err, "not initialized")
}

func TestCrawlStopsWhenOpsServerFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><p>x</p></body></html>`))
	}))
	defer srv.Close()

	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	cfgPath := writeConfigWith(t, t.TempDir(), "1m", busy.Addr().String())

	start := time.Now()
	_, err = execute(t, "--config", cfgPath, "crawl", srv.URL)
	require.ErrorContains(t, err, "serve "+busy.Addr().String())
	assert.Less(t, time.Since(start), 30*time.Second)
}

func TestStageClosesAppOnFailure(t *testing.T) {
	var closed bool
	orig := newApp
	newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
		a, err := orig(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		a.OnClose(func() { closed = true })
		return a, nil
	}
	t.Cleanup(func() { newApp = orig })

	cfgPath := writeConfig(t, t.TempDir())
	_, err := execute(t, "--config", cfgPath, "rank")
	require.ErrorContains(t, err, "rank pages")
	assert.True(t, closed)
}
