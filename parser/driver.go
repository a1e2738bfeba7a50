package parser

import (
	"github.com/ledgerfold/ledgerfold/ast"
)

// Parser turns a token stream into an *ast.AST by recursive descent.
// It holds no lexer state of its own; tokens are produced once by a Lexer
// and consumed here in a single forward pass (no backtracking beyond the
// bounded lookahead exposed by peekAhead).
type Parser struct {
	source   []byte
	filename string
	tokens   []Token
	pos      int
	interner *Interner
}

// NewParser builds a Parser over an already-tokenized source buffer.
func NewParser(source []byte, filename string, tokens []Token, interner *Interner) *Parser {
	return &Parser{
		source:   source,
		filename: filename,
		tokens:   tokens,
		interner: interner,
	}
}

// finishDirective attaches any trailing inline comment and subsequent indented
// metadata lines to a freshly parsed directive. Directive parsers call this
// once their own fields are populated; parseTransaction handles its own
// comment/metadata capture because postings interleave with it.
func (p *Parser) finishDirective(d ast.Directive) error {
	line := d.Position().Line

	if !p.isAtEnd() && p.peek().Type == COMMENT && p.peek().Line == line {
		d.SetComment(p.parseComment())
	}

	if !p.isAtEnd() && p.peek().Line > line && p.peek().Column > 1 {
		metadata := p.parseMetadataFromLine(line)
		if len(metadata) > 0 {
			d.AddMetadata(metadata...)
		}
	}

	return nil
}

// parseOption parses: option "name" "value"
func (p *Parser) parseOption() (*ast.Option, error) {
	pos := p.tokenPositionFromPeek()
	p.consume(OPTION, "expected 'option'")

	name, err := p.parseString()
	if err != nil {
		return nil, err
	}
	value, valueEscapes, err := p.parseStringWithMetadata()
	if err != nil {
		return nil, err
	}

	return &ast.Option{Pos: pos, Name: name, Value: value, ValueEscapes: valueEscapes}, nil
}

// parseInclude parses: include "filename"
func (p *Parser) parseInclude() (*ast.Include, error) {
	pos := p.tokenPositionFromPeek()
	p.consume(INCLUDE, "expected 'include'")

	filename, err := p.parseString()
	if err != nil {
		return nil, err
	}

	return &ast.Include{Pos: pos, Filename: filename}, nil
}

// parsePlugin parses: plugin "name" ["config"]
func (p *Parser) parsePlugin() (*ast.Plugin, error) {
	pos := p.tokenPositionFromPeek()
	p.consume(PLUGIN, "expected 'plugin'")

	name, err := p.parseString()
	if err != nil {
		return nil, err
	}

	plugin := &ast.Plugin{Pos: pos, Name: name}
	if p.check(STRING) {
		config, err := p.parseString()
		if err != nil {
			return nil, err
		}
		plugin.Config = config
	}

	return plugin, nil
}

// parsePushtag parses: pushtag #tag
func (p *Parser) parsePushtag() (*ast.Pushtag, error) {
	pos := p.tokenPositionFromPeek()
	p.consume(PUSHTAG, "expected 'pushtag'")

	tag, err := p.parseTag()
	if err != nil {
		return nil, err
	}

	return &ast.Pushtag{Pos: pos, Tag: tag}, nil
}

// parsePoptag parses: poptag #tag
func (p *Parser) parsePoptag() (*ast.Poptag, error) {
	pos := p.tokenPositionFromPeek()
	p.consume(POPTAG, "expected 'poptag'")

	tag, err := p.parseTag()
	if err != nil {
		return nil, err
	}

	return &ast.Poptag{Pos: pos, Tag: tag}, nil
}

// parsePushmeta parses: pushmeta KEY: VALUE
func (p *Parser) parsePushmeta() (*ast.Pushmeta, error) {
	pos := p.tokenPositionFromPeek()
	p.consume(PUSHMETA, "expected 'pushmeta'")

	keyTok := p.expect(IDENT, "expected metadata key")
	if keyTok.Type == ILLEGAL {
		return nil, p.errorAtEndOfPrevious("expected metadata key")
	}
	key := keyTok.String(p.source)
	p.consume(COLON, "expected ':'")

	meta := &ast.Pushmeta{Pos: pos, Key: key}
	if p.check(STRING) {
		value, err := p.parseString()
		if err != nil {
			return nil, err
		}
		meta.Value = value.Value
	} else if !p.isAtEnd() && p.peek().Line == pos.Line {
		meta.Value = p.parseRestOfLine()
	}

	return meta, nil
}

// parsePopmeta parses: popmeta KEY:
func (p *Parser) parsePopmeta() (*ast.Popmeta, error) {
	pos := p.tokenPositionFromPeek()
	p.consume(POPMETA, "expected 'popmeta'")

	keyTok := p.expect(IDENT, "expected metadata key")
	if keyTok.Type == ILLEGAL {
		return nil, p.errorAtEndOfPrevious("expected metadata key")
	}
	key := keyTok.String(p.source)
	p.consume(COLON, "expected ':'")

	return &ast.Popmeta{Pos: pos, Key: key}, nil
}

// parseDirective parses a single DATE-led directive, dispatching on the
// keyword that follows the date.
func (p *Parser) parseDirective() (ast.Directive, error) {
	pos := p.tokenPositionFromPeek()
	date, err := p.parseDate()
	if err != nil {
		return nil, err
	}

	kw := p.peek()
	switch kw.Type {
	case BALANCE:
		return p.parseBalance(pos, date)
	case OPEN:
		return p.parseOpen(pos, date)
	case CLOSE:
		return p.parseClose(pos, date)
	case COMMODITY:
		return p.parseCommodity(pos, date)
	case PAD:
		return p.parsePad(pos, date)
	case NOTE:
		return p.parseNote(pos, date)
	case DOCUMENT:
		return p.parseDocument(pos, date)
	case PRICE:
		return p.parsePrice(pos, date)
	case EVENT:
		return p.parseEvent(pos, date)
	case CUSTOM:
		return p.parseCustom(pos, date)
	case TXN, ASTERISK, EXCLAIM, STRING:
		return p.parseTransaction(pos, date)
	default:
		return nil, p.errorAtToken(kw, "unexpected token %s after date", kw.Type)
	}
}

// parse drives the full token stream into an *ast.AST.
func (p *Parser) parse() (*ast.AST, error) {
	tree := &ast.AST{}

	for !p.isAtEnd() {
		tok := p.peek()

		switch {
		case tok.Type == NEWLINE:
			p.advance()
			if tok.Column <= 1 {
				tree.BlankLines = append(tree.BlankLines, &ast.BlankLine{Pos: tokenPosition(tok, p.filename)})
			}
			continue

		case tok.Type == COMMENT:
			tree.Comments = append(tree.Comments, p.parseComment())
			continue

		case tok.Type == DATE:
			d, err := p.parseDirective()
			if err != nil {
				return nil, err
			}
			tree.Directives = append(tree.Directives, d)

		case tok.Type == OPTION:
			opt, err := p.parseOption()
			if err != nil {
				return nil, err
			}
			tree.Options = append(tree.Options, opt)

		case tok.Type == INCLUDE:
			inc, err := p.parseInclude()
			if err != nil {
				return nil, err
			}
			tree.Includes = append(tree.Includes, inc)

		case tok.Type == PLUGIN:
			plugin, err := p.parsePlugin()
			if err != nil {
				return nil, err
			}
			tree.Plugins = append(tree.Plugins, plugin)

		case tok.Type == PUSHTAG:
			pt, err := p.parsePushtag()
			if err != nil {
				return nil, err
			}
			tree.Pushtags = append(tree.Pushtags, pt)

		case tok.Type == POPTAG:
			pt, err := p.parsePoptag()
			if err != nil {
				return nil, err
			}
			tree.Poptags = append(tree.Poptags, pt)

		case tok.Type == PUSHMETA:
			pm, err := p.parsePushmeta()
			if err != nil {
				return nil, err
			}
			tree.Pushmetas = append(tree.Pushmetas, pm)

		case tok.Type == POPMETA:
			pm, err := p.parsePopmeta()
			if err != nil {
				return nil, err
			}
			tree.Popmetas = append(tree.Popmetas, pm)

		default:
			return nil, p.errorAtToken(tok, "unexpected token %s at top level", tok.Type)
		}
	}

	return tree, nil
}
