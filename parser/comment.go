package parser

import (
	"strings"

	"github.com/ledgerfold/ledgerfold/ast"
)

// parseComment consumes a COMMENT token and returns the Comment node for it.
// The lexer includes the trailing newline in the token text; it is trimmed here
// since it carries no semantic content.
func (p *Parser) parseComment() *ast.Comment {
	tok := p.advance()
	content := strings.TrimRight(tok.String(p.source), "\r\n")

	return &ast.Comment{
		Pos:     tokenPosition(tok, p.filename),
		Content: content,
		Type:    ast.StandaloneComment,
	}
}
