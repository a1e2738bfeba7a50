// Package loader provides functionality for loading Beancount files with support for
// include directives. It can recursively resolve and merge multiple files into a
// single AST, handling relative paths and deduplication.
//
// The loader supports two modes of operation:
//   - Simple mode: Parses a single file with include directives preserved in the AST
//   - Follow mode: Recursively loads all included files and merges them into one AST
//
// When following includes, the loader resolves relative paths from the directory of
// the file containing the include directive, and deduplicates files that are included
// multiple times using a FIFO queue: the entry file is read first, and an included
// file's own includes are appended to the tail of the queue rather than recursed into
// immediately. This keeps resolution a single pass over a growing worklist instead of
// a call stack. The merged AST's directives are sorted by date, so they do not keep
// the file-by-file reading order. A missing or unreadable include stops loading with
// an error.
//
// Example usage:
//
//	// Load a single file without following includes
//	loader := loader.New()
//	ast, err := loader.Load(ctx, "main.beancount")
//
//	// Load with recursive include resolution
//	loader := loader.New(loader.WithFollowIncludes())
//	ast, err := loader.Load(ctx, "main.beancount")
package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ledgerfold/ledgerfold/ast"
	"github.com/ledgerfold/ledgerfold/parser"
	"github.com/ledgerfold/ledgerfold/telemetry"
)

// Loader handles loading and parsing of Beancount files with optional include resolution.
// It provides configurable behavior for handling include directives, supporting both simple
// single-file parsing and recursive loading with file merging.
//
// Configure the loader using functional options passed to New:
//
//	loader := New(WithFollowIncludes())
type Loader struct {
	// FollowIncludes determines whether to recursively load included files.
	// When false, only the specified file is parsed and ast.Includes is preserved.
	// When true, all included files are recursively loaded and merged into a single AST.
	FollowIncludes bool
}

// Option configures how files are loaded.
type Option func(*Loader)

// WithFollowIncludes configures the loader to recursively load and merge all included files.
// When enabled:
//   - All include directives are recursively resolved and loaded
//   - Relative paths are resolved from the directory of the including file
//   - All directives, options, and plugins are merged into a single AST
//   - The returned AST has ast.Includes set to nil (all includes resolved)
//
// When disabled (default):
//   - Only the specified file is parsed
//   - Include directives remain in ast.Includes
//   - No path resolution or validation occurs
func WithFollowIncludes() Option {
	return func(l *Loader) {
		l.FollowIncludes = true
	}
}

// New creates a new Loader with the given options.
func New(opts ...Option) *Loader {
	l := &Loader{
		FollowIncludes: false, // Default: don't follow includes
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Load parses a beancount file with optional recursive include resolution.
func (l *Loader) Load(ctx context.Context, filename string) (*ast.AST, error) {
	if !l.FollowIncludes {
		// Simple case: just parse the single file
		parseTimer := telemetry.StartTimer(ctx, fmt.Sprintf("loader.parse %s", filepath.Base(filename)))
		defer parseTimer.End()
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", filename, err)
		}
		result, err := parser.ParseBytesWithFilename(ctx, filename, data)
		if err != nil {
			// Wrap parser errors for consistent formatting
			return nil, parser.NewParseError(filename, err)
		}
		return result, nil
	}

	// Recursive loading with include resolution
	loadTimer := telemetry.StartTimer(ctx, fmt.Sprintf("loader.load %s", filepath.Base(filename)))
	defer loadTimer.End()

	absPath, err := filepath.Abs(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for %s: %w", filename, err)
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filename, err)
	}

	entry, err := parser.ParseBytesWithFilename(ctx, filename, data)
	if err != nil {
		return nil, parser.NewParseError(filename, err)
	}

	return resolveIncludes(ctx, absPath, filename, entry, loadTimer)
}

// LoadBytes parses beancount content from a byte slice with optional recursive include resolution.
// The filename parameter is used for error reporting and as the base path for resolving includes.
// When FollowIncludes is enabled, relative include paths are resolved from the directory of filename.
func (l *Loader) LoadBytes(ctx context.Context, filename string, data []byte) (*ast.AST, error) {
	if !l.FollowIncludes {
		// Simple case: just parse the provided data
		parseTimer := telemetry.StartTimer(ctx, fmt.Sprintf("loader.parse %s", filepath.Base(filename)))
		defer parseTimer.End()
		result, err := parser.ParseBytesWithFilename(ctx, filename, data)
		if err != nil {
			// Wrap parser errors for consistent formatting
			return nil, parser.NewParseError(filename, err)
		}
		return result, nil
	}

	// For recursive loading, parse the initial data then follow includes from disk
	parseTimer := telemetry.StartTimer(ctx, fmt.Sprintf("loader.parse %s", filepath.Base(filename)))
	result, err := parser.ParseBytesWithFilename(ctx, filename, data)
	parseTimer.End()
	if err != nil {
		return nil, parser.NewParseError(filename, err)
	}

	// If no includes, return as-is
	if len(result.Includes) == 0 {
		return result, nil
	}

	// LoadBytes parses in-memory content; it has no file on disk to resolve
	// relative includes against, so following includes here is refused rather
	// than guessed at. Callers with includes to resolve should use Load.
	if filename == "<stdin>" || filename == "-" {
		return nil, fmt.Errorf("include directives are not supported when reading from stdin")
	}
	return nil, fmt.Errorf("include directives found; use Load() instead of LoadBytes() to resolve includes")
}

// queuedInclude is one pending entry in the breadth-first worklist: a file
// path to load, the name of the file that included it (for error context),
// and the telemetry span it should parse under.
type queuedInclude struct {
	path       string
	includedBy string
	timer      telemetry.Timer
}

// resolveIncludes drains a FIFO queue of include paths, seeded from entry's
// own Include directives, parsing each file exactly once. The entry file is
// already parsed and marked visited; every subsequent file dequeued appends
// its own includes to the tail of the queue rather than recursing, so files
// are read breadth-first: the entry file, then first-level includes in source
// order, then second-level includes, and so on. mergeASTs then sorts the
// combined directives by date.
func resolveIncludes(ctx context.Context, entryAbs, entryName string, entry *ast.AST, timer telemetry.Timer) (*ast.AST, error) {
	visited := map[string]bool{entryAbs: true}
	baseDir := filepath.Dir(entryAbs)

	var queue []queuedInclude
	for _, inc := range entry.Includes {
		queue = append(queue, queuedInclude{
			path:       resolveIncludePath(baseDir, inc.Filename.Value),
			includedBy: entryName,
			timer:      timer.Child(fmt.Sprintf("loader.parse %s", filepath.Base(inc.Filename.Value))),
		})
	}

	var includedASTs []*ast.AST

	for len(queue) > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		item := queue[0]
		queue = queue[1:]

		absPath, err := filepath.Abs(item.path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for %s: %w", item.path, err)
		}

		if visited[absPath] {
			item.timer.End()
			continue
		}
		visited[absPath] = true

		data, err := os.ReadFile(item.path)
		if err != nil {
			item.timer.End()
			return nil, fmt.Errorf("in file %s: failed to read %s: %w", item.includedBy, item.path, err)
		}

		result, err := parser.ParseBytesWithFilename(ctx, item.path, data)
		item.timer.End()
		if err != nil {
			return nil, fmt.Errorf("in file %s: %w", item.includedBy, parser.NewParseError(item.path, err))
		}

		includedASTs = append(includedASTs, result)

		childDir := filepath.Dir(absPath)
		for _, inc := range result.Includes {
			queue = append(queue, queuedInclude{
				path:       resolveIncludePath(childDir, inc.Filename.Value),
				includedBy: item.path,
				timer:      timer.Child(fmt.Sprintf("loader.parse %s", filepath.Base(inc.Filename.Value))),
			})
		}
	}

	mergeTimer := timer.Child("ast.merging")
	merged := mergeASTs(entry, includedASTs...)
	mergeTimer.End()
	return merged, nil
}

// resolveIncludePath resolves an include's path against the directory of the
// file that named it. Absolute include paths are used as-is.
func resolveIncludePath(baseDir, includePath string) string {
	if filepath.IsAbs(includePath) {
		return includePath
	}
	return filepath.Join(baseDir, includePath)
}

// mergeASTs combines a main AST with multiple included ASTs, in the order
// they were dequeued (breadth-first). The main AST's options take precedence
// over included files' options.
func mergeASTs(main *ast.AST, included ...*ast.AST) *ast.AST {
	result := &ast.AST{
		Directives: make(ast.Directives, 0, len(main.Directives)),
		Includes:   nil,            // All includes resolved, so clear this
		Plugins:    main.Plugins,   // Start with main file plugins
		Pushtags:   main.Pushtags,  // Start with main file pushtags
		Poptags:    main.Poptags,   // Start with main file poptags
		Pushmetas:  main.Pushmetas, // Start with main file pushmetas
		Popmetas:   main.Popmetas,  // Start with main file popmetas
	}

	// Merge options: main file options override duplicates, but preserve unique options from includes
	// Build a map of main file option names for deduplication
	mainOptionsMap := make(map[string]bool)
	for _, opt := range main.Options {
		mainOptionsMap[opt.Name.Value] = true
	}

	// Add options from included files (only if not overridden by main file)
	for _, inc := range included {
		for _, opt := range inc.Options {
			if !mainOptionsMap[opt.Name.Value] {
				result.Options = append(result.Options, opt)
				mainOptionsMap[opt.Name.Value] = true // Mark as added to avoid duplicates from multiple includes
			}
		}
	}

	// Add main file options last (these have precedence)
	result.Options = append(result.Options, main.Options...)

	// Add main file directives
	result.Directives = append(result.Directives, main.Directives...)

	// Add directives from all included files
	for _, inc := range included {
		result.Directives = append(result.Directives, inc.Directives...)

		// Merge plugins (append, don't override)
		result.Plugins = append(result.Plugins, inc.Plugins...)

		// Note: Pushtag/Poptag/Pushmeta/Popmeta are already applied during parsing,
		// so we don't need to merge them here (they've already modified their
		// respective file's directives)
	}

	// Re-sort all directives by date
	_ = ast.SortDirectives(result)

	return result
}
