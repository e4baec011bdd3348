package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the config at path whenever the file is written and passes
// the result to onChange. Files that fail to load or validate are reported
// through onError and otherwise ignored. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, flags *Flags, onChange func(*Config), onError func(error)) error {
	return WatchFile(ctx, path, func() {
		cfg, err := Load(path, flags)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	}, onError)
}

// WatchFile calls onWrite whenever the file at path is written or
// recreated. It blocks until ctx is done.
func WatchFile(ctx context.Context, path string, onWrite func(), onError func(error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	// Editors replace files on save, so watch the directory.
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				onWrite()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if onError != nil {
				onError(err)
			}
		}
	}
}
