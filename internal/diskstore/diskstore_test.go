package diskstore

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/nosqlbench/nbdatatools-sub010/internal/merklefooter"
)

func TestFooterCacheRoundTrip(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(filepath.Join(dir, "meta.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	f := merklefooter.Footer{ChunkSize: 1024 * 1024, TotalSize: 10 * 1024 * 1024, FooterLength: merklefooter.FooterLength}
	if err := db.PutFooter("https://example.test/artifact.bin", f); err != nil {
		t.Fatalf("PutFooter: %v", err)
	}

	got, err := db.GetFooter("https://example.test/artifact.bin")
	if err != nil {
		t.Fatalf("GetFooter: %v", err)
	}
	if got.ChunkSize != f.ChunkSize || got.TotalSize != f.TotalSize {
		t.Errorf("got %+v, want %+v", got, f)
	}

	if err := db.InvalidateFooter("https://example.test/artifact.bin"); err != nil {
		t.Fatalf("InvalidateFooter: %v", err)
	}
	if _, err := db.GetFooter("https://example.test/artifact.bin"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after invalidation, got %v", err)
	}
}

func TestFooterCacheMiss(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(filepath.Join(dir, "meta.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	if _, err := db.GetFooter("never-seen"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRemoteRegistry(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(filepath.Join(dir, "meta.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	if err := db.RegisterRemote("https://a.test/x.bin", "/cache/x.bin"); err != nil {
		t.Fatalf("RegisterRemote: %v", err)
	}
	if err := db.RegisterRemote("https://a.test/y.bin", "/cache/y.bin"); err != nil {
		t.Fatalf("RegisterRemote: %v", err)
	}

	got, err := db.LookupRemote("https://a.test/x.bin")
	if err != nil {
		t.Fatalf("LookupRemote: %v", err)
	}
	if got != "/cache/x.bin" {
		t.Errorf("got %q, want /cache/x.bin", got)
	}

	all, err := db.ListRemotes()
	if err != nil {
		t.Fatalf("ListRemotes: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 remotes, got %d", len(all))
	}
}

func TestRunRecordRoundTrip(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(filepath.Join(dir, "meta.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	rec := RunRecord{
		RunID:        "run-1",
		Strategy:     "adaptive",
		Seed:         42,
		Config:       map[string]string{"workers": "4"},
		Score:        0.87,
		CompletionAt: 1700000000,
	}
	if err := db.PutRunRecord(rec); err != nil {
		t.Fatalf("PutRunRecord: %v", err)
	}

	got, err := db.GetRunRecord("run-1")
	if err != nil {
		t.Fatalf("GetRunRecord: %v", err)
	}
	if got.Strategy != rec.Strategy || got.Seed != rec.Seed || got.Score != rec.Score {
		t.Errorf("got %+v, want %+v", got, rec)
	}

	rec2 := rec
	rec2.RunID = "run-2"
	rec2.Strategy = "aggressive"
	if err := db.PutRunRecord(rec2); err != nil {
		t.Fatalf("PutRunRecord rec2: %v", err)
	}

	all, err := db.ListRunRecords()
	if err != nil {
		t.Fatalf("ListRunRecords: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 run records, got %d", len(all))
	}
}

func TestGetSharedDBReferenceCounting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shared.db")

	a, err := GetSharedDB(path)
	if err != nil {
		t.Fatalf("GetSharedDB a: %v", err)
	}
	b, err := GetSharedDB(path)
	if err != nil {
		t.Fatalf("GetSharedDB b: %v", err)
	}
	if a.DB != b.DB {
		t.Fatalf("expected shared handles to wrap the same *DB")
	}

	if err := a.RegisterRemote("https://shared.test/z.bin", "/cache/z.bin"); err != nil {
		t.Fatalf("RegisterRemote via a: %v", err)
	}

	if err := a.Close(); err != nil {
		t.Fatalf("a.Close: %v", err)
	}

	// b still holds a reference; its handle must remain usable.
	if _, err := b.LookupRemote("https://shared.test/z.bin"); err != nil {
		t.Fatalf("LookupRemote via b after a.Close: %v", err)
	}

	if err := b.Close(); err != nil {
		t.Fatalf("b.Close: %v", err)
	}

	c, err := GetSharedDB(path)
	if err != nil {
		t.Fatalf("GetSharedDB c after full release: %v", err)
	}
	defer c.Close()
	if _, err := c.LookupRemote("https://shared.test/z.bin"); err != nil {
		t.Fatalf("LookupRemote via fresh handle: %v", err)
	}
}
