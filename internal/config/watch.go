package config

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the file at path whenever it changes and hands each validated
// result to apply. It blocks until ctx is cancelled.
//
// The watch is placed on the containing directory, not the file itself.
// Editors and configuration managers usually save by writing a temporary file
// and renaming it over the original, and a watch pinned to the old inode can
// miss the replacement entirely; directory events are filtered back down to
// the configured file name instead.
//
// A reload that fails to parse or validate leaves the running config in
// place. apply only ever sees configs that passed Load.
func Watch(ctx context.Context, path string, logger *slog.Logger, apply func(*Config)) error {
	if logger == nil {
		logger = slog.Default()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return err
	}
	logger.Info("watching config for changes", slog.String("path", abs))

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			// An in-place save arrives as Write; a rename-based atomic save
			// arrives as Create for the final name.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			cfg, err := Load(abs)
			if err != nil {
				logger.Error("config reload failed, keeping previous config",
					slog.String("path", abs), slog.Any("error", err))
				continue
			}

			logger.Info("config reloaded", slog.String("path", abs))
			apply(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("config watcher error", slog.Any("error", err))
		}
	}
}
