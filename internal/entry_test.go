package internal

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/starford/nbsync/internal/kvstore"
	"github.com/starford/nbsync/internal/models"
	"github.com/starford/nbsync/internal/recovery"
	"github.com/starford/nbsync/internal/testutil"
	pkgconfig "github.com/starford/nbsync/pkg/config"
)

// shippedConfig loads config/config.yaml with its paths moved under a
// temporary directory.
func shippedConfig(t *testing.T) *Config {
	t.Helper()
	t.Setenv("NBSYNC_PORT", "8080")
	t.Setenv("NBSYNC_AUTH_MODE", "disabled")
	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(filepath.Join("..", "config", "config.yaml"), cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	dir := t.TempDir()
	cfg.Workspace.Path = filepath.Join(dir, "notebooks")
	cfg.Recovery.Dir = filepath.Join(dir, "backups")
	cfg.Recovery.SQLitePath = filepath.Join(dir, "state.db")
	cfg.Index.SQLitePath = filepath.Join(dir, "index.db")
	cfg.Runtime.PythonBinary = ""
	return cfg
}

func TestBuild_SessionRecordSurvivesStartup(t *testing.T) {
	ctx := context.Background()
	cfg := shippedConfig(t)
	if cfg.Recovery.ClearSession {
		t.Fatal("shipped config clears the session bucket at startup")
	}

	loc := models.FileLocation("lost.ipynb")
	state, err := kvstore.Open(cfg.Recovery.SQLitePath)
	if err != nil {
		t.Fatal(err)
	}
	if err := state.Bucket(kvstore.BucketSession).Set(ctx, recovery.Key(loc), testutil.Notebook); err != nil {
		t.Fatal(err)
	}
	state.Close()

	app, err := setup([]Option{WithConfig(cfg), WithLogOutput(io.Discard)})
	if err != nil {
		t.Fatal(err)
	}
	s, err := build(app)
	if err != nil {
		t.Fatal(err)
	}
	defer s.close()

	d, err := s.service.Open(ctx, loc, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !d.Dirty || len(d.Cells) != 2 || d.Cells[1].Data.Source != "print(1)" {
		t.Errorf("opened = %+v", d)
	}
	if _, ok, _ := s.state.Bucket(kvstore.BucketSession).Get(ctx, recovery.Key(loc)); ok {
		t.Error("session record should be consumed by the lookup")
	}
}
