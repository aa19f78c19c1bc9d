package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, "db_path: engine.db\n")
	c, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Mode != "DRY_RUN" {
		t.Errorf("mode: got %q", c.Mode)
	}
	if c.Exchange != "paper" {
		t.Errorf("exchange: got %q", c.Exchange)
	}
	if c.Engine.FlagPollSeconds != 10 {
		t.Errorf("flag_poll_seconds: got %d", c.Engine.FlagPollSeconds)
	}
	if c.Engine.LiveRetentionCandles != 500 {
		t.Errorf("live_retention_candles: got %d", c.Engine.LiveRetentionCandles)
	}
	if c.Engine.MaxCandlesPerFetch != 1000 {
		t.Errorf("max_candles_per_fetch: got %d", c.Engine.MaxCandlesPerFetch)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	cases := map[string]string{
		"bad mode":        "mode: TEST\ndb_path: x.db\n",
		"missing db path": "mode: DRY_RUN\n",
		"poll too long":   "db_path: x.db\nengine:\n  flag_poll_seconds: 120\n",
		"retention small": "db_path: x.db\nengine:\n  live_retention_candles: 10\n",
	}
	for name, body := range cases {
		if _, err := LoadConfig(writeConfig(t, body)); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
}
