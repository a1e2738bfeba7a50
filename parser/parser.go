package parser

import (
	"context"
	"io"

	"github.com/ledgerfold/ledgerfold/ast"
)

// Parse AST from an io.Reader.
func Parse(ctx context.Context, r io.Reader) (*ast.AST, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return ParseBytesWithFilename(ctx, "", data)
}

// ParseString parses AST from a string.
func ParseString(ctx context.Context, str string) (*ast.AST, error) {
	return ParseBytesWithFilename(ctx, "", []byte(str))
}

// ParseBytes parses AST from bytes.
func ParseBytes(ctx context.Context, data []byte) (*ast.AST, error) {
	return ParseBytesWithFilename(ctx, "", data)
}

// ParseBytesWithFilename parses AST from bytes with a filename for position tracking.
// The filename will be included in position information in the AST for better error reporting.
func ParseBytesWithFilename(ctx context.Context, filename string, data []byte) (*ast.AST, error) {
	// Check for cancellation before starting
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	lex := NewLexer(data, filename)
	tokens, err := lex.ScanAll()
	if err != nil {
		return nil, err
	}

	p := NewParser(data, filename, tokens, lex.Interner())
	tree, err := p.parse()
	if err != nil {
		return nil, err
	}

	if err := ast.ApplyPushPopDirectives(tree); err != nil {
		return nil, err
	}

	return tree, ast.SortDirectives(tree)
}
