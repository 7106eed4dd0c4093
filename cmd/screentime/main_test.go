package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/goodtune/screentime/internal/config"
	"github.com/goodtune/screentime/internal/history"
	"github.com/goodtune/screentime/internal/storage/bolt"
	"github.com/goodtune/screentime/internal/storage/file"
)

func TestOpenStorage(t *testing.T) {
	dir := t.TempDir()

	docs, err := openStorage(config.StorageConfig{Type: "file", Path: filepath.Join(dir, "files")})
	if err != nil {
		t.Fatalf("open file storage: %v", err)
	}
	if _, ok := docs.(*file.Store); !ok {
		t.Errorf("expected *file.Store, got %T", docs)
	}
	_ = docs.Close()

	docs, err = openStorage(config.StorageConfig{Type: "bolt", Path: filepath.Join(dir, "screentime.db")})
	if err != nil {
		t.Fatalf("open bolt storage: %v", err)
	}
	if _, ok := docs.(*bolt.Store); !ok {
		t.Errorf("expected *bolt.Store, got %T", docs)
	}
	_ = docs.Close()

	if _, err := openStorage(config.StorageConfig{Type: "s3"}); err == nil {
		t.Error("expected error for unsupported storage type")
	}
}

func TestListDocuments(t *testing.T) {
	ctx := context.Background()
	docs, err := openStorage(config.StorageConfig{Type: "file", Path: t.TempDir()})
	if err != nil {
		t.Fatalf("open file storage: %v", err)
	}
	defer docs.Close()

	data, err := history.Encode([]history.Transition{
		{OldState: history.UserStateInactive, NewState: history.UserStateActive, WallTimeSecs: 1717236000},
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := docs.Put(ctx, "bob", data); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := docs.Put(ctx, "alice", []byte("not json")); err != nil {
		t.Fatalf("put: %v", err)
	}

	list, err := listDocuments(ctx, docs)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Key != "alice" || list[1].Key != "bob" {
		t.Fatalf("unexpected documents %+v", list)
	}
	var parseErr *history.ParseError
	if !errors.As(list[0].Err, &parseErr) {
		t.Errorf("expected a parse error for alice, got %v", list[0].Err)
	}
	if list[1].Err != nil || list[1].Transitions != 1 || list[1].Revision != 0 {
		t.Errorf("unexpected document %+v", list[1])
	}
}

func TestListDocumentsRedisRevision(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	docs, err := openStorage(config.StorageConfig{Type: "redis", Redis: config.RedisConfig{
		Host:         mr.Addr(),
		KeyPrefix:    "screentime:",
		DialTimeout:  "1s",
		ReadTimeout:  "1s",
		WriteTimeout: "1s",
	}})
	if err != nil {
		t.Fatalf("open redis storage: %v", err)
	}
	defer docs.Close()

	for i := 0; i < 2; i++ {
		if err := docs.Put(ctx, "carol", []byte("[]")); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	list, err := listDocuments(ctx, docs)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Key != "carol" || list[0].Revision != 2 || list[0].Err != nil {
		t.Errorf("unexpected documents %+v", list)
	}
}

func TestFindUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "limits:\n  daily_limit: 2h\n  daily_limt_enabled: true\nfoo: bar\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	unknown, err := findUnknownKeys(path)
	if err != nil {
		t.Fatalf("find unknown keys: %v", err)
	}
	if len(unknown) != 2 || unknown[0] != "foo" || unknown[1] != "limits.daily_limt_enabled" {
		t.Errorf("unexpected unknown keys %v", unknown)
	}
}

func TestFindUnknownKeysAcceptsRedisPassword(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "storage:\n  type: redis\n  redis:\n    password: s3cret\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	unknown, err := findUnknownKeys(path)
	if err != nil {
		t.Fatalf("find unknown keys: %v", err)
	}
	if len(unknown) != 0 {
		t.Errorf("unexpected unknown keys %v", unknown)
	}
}

func TestFormatSecs(t *testing.T) {
	tests := []struct {
		secs int64
		want string
	}{
		{-5, "0m"},
		{59, "0m"},
		{25 * 60, "25m"},
		{2*3600 + 5*60, "2h 05m"},
	}
	for _, tt := range tests {
		if got := formatSecs(tt.secs); got != tt.want {
			t.Errorf("formatSecs(%d) = %q, want %q", tt.secs, got, tt.want)
		}
	}
}
