package cli

import (
	"context"
	stdErrors "errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/alecthomas/kong"
	"github.com/fsnotify/fsnotify"

	"github.com/ledgerfold/ledgerfold/ledger"
	"github.com/ledgerfold/ledgerfold/loader"
)

// WatchCmd re-checks a beancount file whenever it changes on disk. Each
// reload builds a fresh ledger.Ledger and atomically publishes it in place
// of the previous one, so a reader never observes a partially-processed
// state.
type WatchCmd struct {
	File FileOrStdin `help:"Beancount input filename (use '-' for stdin, or omit for stdin)." arg:"" optional:""`
}

func (cmd *WatchCmd) Run(ctx *kong.Context, globals *Globals) error {
	if cmd.File.Filename == "<stdin>" || cmd.File.Filename == "" {
		return fmt.Errorf("watch requires a file path; stdin cannot be re-read on change")
	}

	runCtx := context.Background()

	proceed, err := promptYesNo(ctx, fmt.Sprintf("Watch %s for changes until interrupted?", cmd.File.Filename))
	if err != nil {
		return err
	}
	if !proceed {
		printInfof(ctx.Stdout, "watch cancelled")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to start file watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(cmd.File.Filename)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	var published atomic.Pointer[ledger.Ledger]

	reload := func() {
		ldr := loader.New(loader.WithFollowIncludes())
		tree, loadErr := cmd.File.LoadAST(runCtx, ldr)
		if loadErr != nil {
			printError(ctx.Stderr, fmt.Sprintf("reload failed: %s", loadErr))
			return
		}

		l := ledger.New()
		if procErr := l.Process(runCtx, tree); procErr != nil {
			var validationErrors *ledger.ValidationErrors
			if stdErrors.As(procErr, &validationErrors) {
				printError(ctx.Stderr, fmt.Sprintf("%d validation error(s) found", len(validationErrors.Errors)))
				return
			}
			printError(ctx.Stderr, fmt.Sprintf("reload failed: %s", procErr))
			return
		}

		// Publish the freshly built ledger in one atomic store; any reader
		// picking it up afterward sees a fully processed state or the prior
		// one, never a half-built in-progress one.
		published.Store(l)
		printSuccess(ctx.Stdout, fmt.Sprintf("reloaded %s", filepath.Base(cmd.File.Filename)))
	}

	reload()

	var debounce *time.Timer
	const debounceDelay = 100 * time.Millisecond
	target := filepath.Clean(cmd.File.Filename)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			// The watched directory may hold unrelated files; only react to
			// writes touching the entry file itself.
			if filepath.Clean(event.Name) != target {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, reload)

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			printError(ctx.Stderr, fmt.Sprintf("watch error: %s", watchErr))

		case <-runCtx.Done():
			return runCtx.Err()
		}
	}
}
