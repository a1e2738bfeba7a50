package parser

import "github.com/ledgerfold/ledgerfold/ast"

// Re-export StringMetadata and EscapeType for backward compatibility
type StringMetadata = ast.StringMetadata
type EscapeType = ast.EscapeType

const (
	EscapeTypeUnknown = ast.EscapeTypeUnknown
	EscapeTypeNone    = ast.EscapeTypeNone
	EscapeTypeCStyle  = ast.EscapeTypeCStyle
)

// parseStringWithMetadata parses a STRING token like parseString, additionally
// recording whether its quoted form used C-style escape sequences so it can be
// re-emitted verbatim under EscapeStyleOriginal.
func (p *Parser) parseStringWithMetadata() (ast.RawString, *ast.StringMetadata, error) {
	tok := p.peek()
	rs, err := p.parseString()
	if err != nil {
		return ast.RawString{}, nil, err
	}

	meta := &ast.StringMetadata{OriginalValue: tok.String(p.source)}
	if containsEscapeSequences(meta.OriginalValue) {
		meta.EscapeType = ast.EscapeTypeCStyle
	} else {
		meta.EscapeType = ast.EscapeTypeNone
	}

	return rs, meta, nil
}
