package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fitspo-feed/config"
	"fitspo-feed/feed"
	"fitspo-feed/feed/sqliteimpl"

	"github.com/stretchr/testify/require"
)

var day = time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)

func setupSQLite(t *testing.T) string {
	t.Helper()
	for _, env := range []string{
		"FITSPO_CONFIG", "STORAGE_MODE", "MONGO_URL", "MONGO_DB_NAME", "REDIS_URL",
		"SQLITE_PATH", "HTTP_ADDR", "FEED_TIMEZONE", "LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(env, "")
	}

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "posts.db")
	m, err := sqliteimpl.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, m.Put(context.Background(),
		feed.PostRecord{ID: "p1", AuthorID: "u1", CreatedAt: day.Add(9 * time.Hour), LikeCount: 9},
		feed.PostRecord{ID: "p2", AuthorID: "u2", CreatedAt: day.Add(10 * time.Hour), LikeCount: 3},
		feed.PostRecord{ID: "p3", AuthorID: "u1", CreatedAt: day.Add(11 * time.Hour), LikeCount: 5},
		feed.PostRecord{ID: "old", AuthorID: "u3", CreatedAt: day.Add(-2 * time.Hour), LikeCount: 40},
	))
	require.NoError(t, m.Close())

	cfgPath := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf("storage:\n  mode: sqlite\n  sqlitePath: %s\nlog:\n  level: error\n", dbPath)
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o644))
	return cfgPath
}

func runCLI(args ...string) (string, error) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestHotCommand(t *testing.T) {
	cfg := setupSQLite(t)

	out, err := runCLI("hot", "--config", cfg, "--as-of", "2026-10-15T20:00:00Z", "--size", "5")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	require.Contains(t, lines[1], "p1")
	require.Contains(t, lines[2], "p2")
	require.NotContains(t, out, "p3")
	require.NotContains(t, out, "next page")

	out, err = runCLI("hot", "--config", cfg, "--as-of", "2026-10-15T20:00:00Z", "--size", "1")
	require.NoError(t, err)
	require.Contains(t, out, "next page: s.")
}

func TestHotCommandBadArgs(t *testing.T) {
	cfg := setupSQLite(t)

	_, err := runCLI("hot", "--config", cfg, "--as-of", "tomorrow")
	require.Error(t, err)

	_, err = runCLI("hot", "--config", cfg, "--page", "bogus")
	require.ErrorIs(t, err, feed.ErrInvalidArgument)

	_, err = runCLI("hot", "--config", cfg, "--size", "0")
	require.ErrorIs(t, err, feed.ErrInvalidArgument)

	_, err = runCLI("hot", "--config", cfg, "--size", "9223372036854775807")
	require.ErrorIs(t, err, feed.ErrInvalidArgument)
}

func TestRankCommand(t *testing.T) {
	cfg := setupSQLite(t)

	out, err := runCLI("rank", "p2", "--config", cfg, "--as-of", "2026-10-15T20:00:00Z")
	require.NoError(t, err)
	require.Equal(t, "p2 is #2 of 2 on 2026-10-15\n", out)

	out, err = runCLI("rank", "old", "--config", cfg, "--as-of", "2026-10-15T20:00:00Z")
	require.NoError(t, err)
	require.Equal(t, "old is not ranked on 2026-10-15\n", out)

	_, err = runCLI("rank", "--config", cfg)
	require.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	SetVersionInfo("1.2.3", "abc", "2026-10-15")
	t.Cleanup(func() { SetVersionInfo("dev", "none", "unknown") })

	out, err := runCLI("version")
	require.NoError(t, err)
	require.Equal(t, "fitspo-feed 1.2.3 (commit: abc, built: 2026-10-15)\n", out)
}

func TestPrintHotPageApproximate(t *testing.T) {
	var buf bytes.Buffer
	page := feed.FeedPage{
		Posts:       []feed.PostRecord{{ID: "x", AuthorID: "u", CreatedAt: day, LikeCount: 2, ShareCount: 1}},
		Cursor:      &feed.Cursor{Token: "abc"},
		Approximate: true,
	}
	require.NoError(t, printHotPage(&buf, page, feed.InteractionScore))
	require.Contains(t, buf.String(), "approximate")
	require.Contains(t, buf.String(), "next page: r.abc")
	require.Contains(t, buf.String(), "2026-10-15T00:00:00Z")
}

func TestNewAppUnknownMode(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Mode = "postgres"
	_, err := NewApp(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
}

func TestNewAppInMemory(t *testing.T) {
	app, err := NewApp(context.Background(), config.Default(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	require.True(t, app.Manager.IsReady(context.Background()))
	require.NoError(t, app.Ranks.RefreshIfNeeded(context.Background(), day))
	require.Zero(t, app.Ranks.Len())
	require.NoError(t, app.Close(context.Background()))
}
