package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// watchUntilReload starts Watch on path and calls save every 50ms until a
// reload arrives, returning the reloaded config.
func watchUntilReload(t *testing.T, path string, save func()) *Config {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan *Config, 16)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(c *Config) { changed <- c })
	}()

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()

	// The watcher may not be registered yet when the first save lands, so
	// keep saving until a reload arrives.
	for {
		select {
		case c := <-changed:
			cancel()
			if err := <-done; err != nil {
				t.Fatalf("Watch returned %v", err)
			}
			return c
		case <-tick.C:
			save()
		case <-deadline:
			t.Fatal("no reload within 5s")
		}
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(minimalYAML), 0o600); err != nil {
		t.Fatal(err)
	}

	updated := minimalYAML + "  poll_interval: 42s\n"
	c := watchUntilReload(t, path, func() {
		if err := os.WriteFile(path, []byte(updated), 0o600); err != nil {
			t.Error(err)
		}
	})
	if c.Agent.PollInterval != 42*time.Second {
		t.Fatalf("poll_interval: got %v, want 42s", c.Agent.PollInterval)
	}
}

func TestWatch_ReloadsAfterRenameSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(minimalYAML), 0o600); err != nil {
		t.Fatal(err)
	}

	updated := minimalYAML + "  poll_interval: 17s\n"
	tmp := filepath.Join(dir, "config.yaml.tmp")
	c := watchUntilReload(t, path, func() {
		if err := os.WriteFile(tmp, []byte(updated), 0o600); err != nil {
			t.Error(err)
			return
		}
		if err := os.Rename(tmp, path); err != nil {
			t.Error(err)
		}
	})
	if c.Agent.PollInterval != 17*time.Second {
		t.Fatalf("poll_interval: got %v, want 17s", c.Agent.PollInterval)
	}
}

func TestWatch_SecondRenameSaveStillSeen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(minimalYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	renameSave := func(body string) func() {
		return func() {
			tmp := filepath.Join(dir, "config.yaml.tmp")
			if err := os.WriteFile(tmp, []byte(body), 0o600); err != nil {
				t.Error(err)
				return
			}
			if err := os.Rename(tmp, path); err != nil {
				t.Error(err)
			}
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changed := make(chan *Config, 16)
	go Watch(ctx, path, func(c *Config) { changed <- c }) //nolint:errcheck

	for _, want := range []time.Duration{11 * time.Second, 12 * time.Second, 13 * time.Second} {
		save := renameSave(minimalYAML + "  poll_interval: " + want.String() + "\n")
		deadline := time.After(5 * time.Second)
		tick := time.NewTicker(50 * time.Millisecond)
	wait:
		for {
			select {
			case c := <-changed:
				if c.Agent.PollInterval == want {
					break wait
				}
			case <-tick.C:
				save()
			case <-deadline:
				tick.Stop()
				t.Fatalf("rename-save to %v never reloaded", want)
			}
		}
		tick.Stop()
	}
}

func TestWatch_IgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(minimalYAML), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changed := make(chan *Config, 16)
	go Watch(ctx, path, func(c *Config) { changed <- c }) //nolint:errcheck

	other := filepath.Join(dir, "other.yaml")
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(other, []byte(minimalYAML+"  poll_interval: 9s\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	select {
	case c := <-changed:
		t.Fatalf("unexpected reload from a sibling file: %+v", c.Agent)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatch_MissingFile(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "absent.yaml"), func(*Config) {})
	if err == nil {
		t.Fatal("expected error watching a missing file")
	}
}
