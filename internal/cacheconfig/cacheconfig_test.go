package cacheconfig

import "testing"

func TestDefaultConfigValues(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.ChunkSize != 1024*1024 {
		t.Errorf("ChunkSize = %d, want 1MiB", cfg.ChunkSize)
	}
	if cfg.MinDownloadSize != 4*1024*1024 {
		t.Errorf("MinDownloadSize = %d, want 4MiB", cfg.MinDownloadSize)
	}
	if cfg.MaxDownloadSize != 32*1024*1024 {
		t.Errorf("MaxDownloadSize = %d, want 32MiB", cfg.MaxDownloadSize)
	}
}

func TestMergeConfigOverridesOnlyNonZero(t *testing.T) {
	dst := DefaultConfig()
	src := &Config{Workers: 16}
	mergeConfig(dst, src)

	if dst.Workers != 16 {
		t.Errorf("Workers = %d, want 16", dst.Workers)
	}
	if dst.ChunkSize != 1024*1024 {
		t.Errorf("ChunkSize should be untouched by a zero-value override, got %d", dst.ChunkSize)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv(envChunkSize, "2097152")
	t.Setenv(envWorkers, "12")

	cfg := DefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.ChunkSize != 2*1024*1024 {
		t.Errorf("ChunkSize = %d, want 2MiB from env override", cfg.ChunkSize)
	}
	if cfg.Workers != 12 {
		t.Errorf("Workers = %d, want 12 from env override", cfg.Workers)
	}
	if cfg.MinDownloadSize != 4*1024*1024 {
		t.Errorf("MinDownloadSize should be unaffected, got %d", cfg.MinDownloadSize)
	}
}

func TestApplyEnvOverridesIgnoresGarbage(t *testing.T) {
	t.Setenv(envWorkers, "not-a-number")
	cfg := DefaultConfig()
	applyEnvOverrides(cfg)
	if cfg.Workers != 4 {
		t.Errorf("expected default Workers to survive invalid env value, got %d", cfg.Workers)
	}
}

func TestRangeTimeoutConversion(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.RangeTimeout().Seconds() != 30 {
		t.Errorf("RangeTimeout = %v, want 30s", cfg.RangeTimeout())
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)

	cfg := DefaultConfig()
	cfg.Workers = 9
	if err := Save(cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Workers != 9 {
		t.Errorf("Workers = %d, want 9 after round trip", loaded.Workers)
	}
}
