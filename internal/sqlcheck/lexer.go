package sqlcheck

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenType int

const (
	tokenIdent tokenType = iota
	tokenNumber
	tokenString
	tokenSymbol
)

type token struct {
	typ   tokenType
	text  string
	start int
	end   int
}

// isKeywordText matches tokens case-insensitively against a keyword.
func (t token) is(keyword string) bool {
	return t.typ == tokenIdent && strings.EqualFold(t.text, keyword)
}

type lexer struct {
	src string
	pos int
}

// lex splits a normalized SQL string into tokens with byte spans. Comments are
// dropped so forbidden keywords cannot hide behind them. The only error cases
// are unterminated strings, comments, and stray characters.
func lex(src string) ([]token, *Rejection) {
	lx := &lexer{src: src}
	var tokens []token
	for {
		tok, rej, done := lx.next()
		if rej != nil {
			return nil, rej
		}
		if done {
			return tokens, nil
		}
		tokens = append(tokens, tok)
	}
}

func (lx *lexer) next() (token, *Rejection, bool) {
	lx.skipSpaceAndComments()
	if lx.pos >= len(lx.src) {
		return token{}, nil, true
	}

	start := lx.pos
	ch := lx.src[lx.pos]

	switch {
	case ch == '\'':
		return lx.stringLiteral(start)
	case ch == '"' || ch == '`':
		return lx.quotedIdent(start, ch)
	case isDigit(ch) || (ch == '.' && lx.pos+1 < len(lx.src) && isDigit(lx.src[lx.pos+1])):
		for lx.pos < len(lx.src) && (isDigit(lx.src[lx.pos]) || lx.src[lx.pos] == '.' || lx.src[lx.pos] == 'e' || lx.src[lx.pos] == 'E') {
			lx.pos++
		}
		return token{typ: tokenNumber, text: lx.src[start:lx.pos], start: start, end: lx.pos}, nil, false
	case isIdentStart(ch):
		for lx.pos < len(lx.src) && isIdentPart(lx.src[lx.pos]) {
			lx.pos++
		}
		return token{typ: tokenIdent, text: lx.src[start:lx.pos], start: start, end: lx.pos}, nil, false
	default:
		// two-char operators first
		if lx.pos+1 < len(lx.src) {
			two := lx.src[lx.pos : lx.pos+2]
			switch two {
			case "<=", ">=", "<>", "!=", "||":
				lx.pos += 2
				return token{typ: tokenSymbol, text: two, start: start, end: lx.pos}, nil, false
			}
		}
		if strings.ContainsRune("+-*/%(),;.<>=", rune(ch)) {
			lx.pos++
			return token{typ: tokenSymbol, text: string(ch), start: start, end: lx.pos}, nil, false
		}
		return token{}, &Rejection{
			Kind:    RejectSyntax,
			Message: fmt.Sprintf("unexpected character %q", string(ch)),
			Token:   string(ch),
			Start:   start,
			End:     start + 1,
		}, false
	}
}

func (lx *lexer) stringLiteral(start int) (token, *Rejection, bool) {
	lx.pos++ // opening quote
	var sb strings.Builder
	for lx.pos < len(lx.src) {
		if lx.src[lx.pos] == '\'' {
			if lx.pos+1 < len(lx.src) && lx.src[lx.pos+1] == '\'' {
				sb.WriteByte('\'')
				lx.pos += 2
				continue
			}
			lx.pos++
			return token{typ: tokenString, text: sb.String(), start: start, end: lx.pos}, nil, false
		}
		sb.WriteByte(lx.src[lx.pos])
		lx.pos++
	}
	return token{}, &Rejection{
		Kind:    RejectSyntax,
		Message: "unterminated string literal",
		Token:   lx.src[start:],
		Start:   start,
		End:     len(lx.src),
	}, false
}

func (lx *lexer) quotedIdent(start int, quote byte) (token, *Rejection, bool) {
	lx.pos++
	for lx.pos < len(lx.src) {
		if lx.src[lx.pos] == quote {
			text := lx.src[start+1 : lx.pos]
			lx.pos++
			return token{typ: tokenIdent, text: text, start: start, end: lx.pos}, nil, false
		}
		lx.pos++
	}
	return token{}, &Rejection{
		Kind:    RejectSyntax,
		Message: "unterminated quoted identifier",
		Token:   lx.src[start:],
		Start:   start,
		End:     len(lx.src),
	}, false
}

func (lx *lexer) skipSpaceAndComments() {
	for lx.pos < len(lx.src) {
		ch := lx.src[lx.pos]
		switch {
		case unicode.IsSpace(rune(ch)):
			lx.pos++
		case ch == '-' && lx.pos+1 < len(lx.src) && lx.src[lx.pos+1] == '-':
			for lx.pos < len(lx.src) && lx.src[lx.pos] != '\n' {
				lx.pos++
			}
		case ch == '/' && lx.pos+1 < len(lx.src) && lx.src[lx.pos+1] == '*':
			end := strings.Index(lx.src[lx.pos+2:], "*/")
			if end < 0 {
				lx.pos = len(lx.src)
				return
			}
			lx.pos += end + 4
		default:
			return
		}
	}
}

func isDigit(ch byte) bool { return ch >= '0' && ch <= '9' }

func isIdentStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch >= 0x80
}

func isIdentPart(ch byte) bool { return isIdentStart(ch) || isDigit(ch) }
