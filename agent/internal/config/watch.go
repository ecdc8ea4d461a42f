package config

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch calls onChange with the newly loaded Config whenever the file at
// path gets new content, until ctx is cancelled.
//
// The parent directory is watched rather than the file, so saves that write
// a temporary file and rename it over path keep being seen. Events whose
// content matches the last load are ignored. A reload that fails to parse
// or validate is logged and onChange is not called.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	path = filepath.Clean(path)
	last, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: watch: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: watch: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("config: watch %s: %w", filepath.Dir(path), err)
	}
	slog.Info("config: watching for changes", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			data, err := os.ReadFile(path)
			if err != nil {
				// Between the remove and create halves of a save.
				slog.Debug("config: unreadable during reload", "path", path, "err", err)
				continue
			}
			if bytes.Equal(data, last) {
				continue
			}

			cfg, err := parse(data)
			if err != nil {
				slog.Error("config: reload failed, keeping previous config",
					"path", path, "err", err)
				continue
			}
			last = data
			slog.Info("config: reloaded", "path", path, "op", event.Op.String())
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}
