package pdf

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// tjSpaceThreshold is the TJ kerning adjustment (thousandths of an em)
// beyond which a gap is read as a word space.
const tjSpaceThreshold = -200

// pageText returns the text shown on one page.
func pageText(pdfCtx *model.Context, page int) (string, error) {
	r, err := pdfcpu.ExtractPageContent(pdfCtx, page)
	if err != nil {
		return "", err
	}
	if r == nil {
		return "", nil
	}
	stream, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read content stream: %w", err)
	}
	return decodeContentStream(stream), nil
}

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokString
	tokName
	tokArrayStart
	tokArrayEnd
	tokOperator
	tokOther
)

type token struct {
	kind tokenKind
	text []byte
	num  float64
}

// decodeContentStream interprets the text operators of a content stream:
// Tj, TJ, ' and " show text; T*, Td/TD with a vertical move, Tm and ET
// start a new line.
func decodeContentStream(stream []byte) string {
	lex := &lexer{src: stream}

	var (
		out      strings.Builder
		operands []token
		inArray  bool
		array    []token
	)

	newline := func() {
		s := out.String()
		if s != "" && !strings.HasSuffix(s, "\n") {
			out.WriteByte('\n')
		}
	}

	for {
		tok, ok := lex.next()
		if !ok {
			break
		}

		switch tok.kind {
		case tokArrayStart:
			inArray = true
			array = array[:0]
			continue
		case tokArrayEnd:
			inArray = false
			operands = append(operands, token{kind: tokArrayEnd})
			continue
		}

		if inArray {
			array = append(array, tok)
			continue
		}

		if tok.kind != tokOperator {
			operands = append(operands, tok)
			continue
		}

		switch string(tok.text) {
		case "Tj":
			if s, ok := lastString(operands); ok {
				out.Write(s)
			}
		case "'", "\"":
			newline()
			if s, ok := lastString(operands); ok {
				out.Write(s)
			}
		case "TJ":
			for _, el := range array {
				switch el.kind {
				case tokString:
					out.Write(el.text)
				case tokNumber:
					if el.num < tjSpaceThreshold {
						out.WriteByte(' ')
					}
				}
			}
			array = array[:0]
		case "T*", "Tm", "ET":
			newline()
		case "Td", "TD":
			if len(operands) >= 2 && operands[len(operands)-1].kind == tokNumber && operands[len(operands)-1].num != 0 {
				newline()
			} else if s := out.String(); s != "" && !strings.HasSuffix(s, " ") && !strings.HasSuffix(s, "\n") {
				out.WriteByte(' ')
			}
		case "ID":
			lex.skipInlineImage()
		}
		operands = operands[:0]
	}

	return out.String()
}

func lastString(operands []token) ([]byte, bool) {
	for i := len(operands) - 1; i >= 0; i-- {
		if operands[i].kind == tokString {
			return operands[i].text, true
		}
	}
	return nil, false
}

// lexer tokenises PDF content stream syntax.
type lexer struct {
	src []byte
	pos int
}

func isWhite(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '\f', 0:
		return true
	}
	return false
}

func isDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func (l *lexer) next() (token, bool) {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case isWhite(c):
			l.pos++
		case c == '%':
			for l.pos < len(l.src) && l.src[l.pos] != '\n' && l.src[l.pos] != '\r' {
				l.pos++
			}
		case c == '(':
			l.pos++
			return token{kind: tokString, text: l.literalString()}, true
		case c == '<':
			if l.pos+1 < len(l.src) && l.src[l.pos+1] == '<' {
				l.pos += 2
				return token{kind: tokOther}, true
			}
			l.pos++
			return token{kind: tokString, text: l.hexString()}, true
		case c == '>':
			l.pos++
			if l.pos < len(l.src) && l.src[l.pos] == '>' {
				l.pos++
			}
			return token{kind: tokOther}, true
		case c == '[':
			l.pos++
			return token{kind: tokArrayStart}, true
		case c == ']':
			l.pos++
			return token{kind: tokArrayEnd}, true
		case c == '/':
			l.pos++
			return token{kind: tokName, text: l.word()}, true
		case c == '{' || c == '}' || c == ')':
			l.pos++
		default:
			w := l.word()
			if len(w) == 0 {
				l.pos++
				continue
			}
			if f, err := strconv.ParseFloat(string(w), 64); err == nil {
				return token{kind: tokNumber, num: f}, true
			}
			return token{kind: tokOperator, text: w}, true
		}
	}
	return token{}, false
}

func (l *lexer) word() []byte {
	start := l.pos
	for l.pos < len(l.src) && !isWhite(l.src[l.pos]) && !isDelim(l.src[l.pos]) {
		l.pos++
	}
	return l.src[start:l.pos]
}

// literalString reads a parenthesised string after the opening paren.
func (l *lexer) literalString() []byte {
	var buf bytes.Buffer
	depth := 1
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		l.pos++
		switch c {
		case '(':
			depth++
			buf.WriteByte(c)
		case ')':
			depth--
			if depth == 0 {
				return buf.Bytes()
			}
			buf.WriteByte(c)
		case '\\':
			if l.pos >= len(l.src) {
				return buf.Bytes()
			}
			e := l.src[l.pos]
			l.pos++
			switch e {
			case 'n':
				buf.WriteByte('\n')
			case 'r':
				buf.WriteByte('\r')
			case 't':
				buf.WriteByte('\t')
			case 'b':
				buf.WriteByte('\b')
			case 'f':
				buf.WriteByte('\f')
			case '\r':
				if l.pos < len(l.src) && l.src[l.pos] == '\n' {
					l.pos++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for i := 0; i < 2 && l.pos < len(l.src) && l.src[l.pos] >= '0' && l.src[l.pos] <= '7'; i++ {
						v = v*8 + int(l.src[l.pos]-'0')
						l.pos++
					}
					buf.WriteByte(byte(v))
				} else {
					buf.WriteByte(e)
				}
			}
		default:
			buf.WriteByte(c)
		}
	}
	return buf.Bytes()
}

// hexString reads a <...> string after the opening bracket.
func (l *lexer) hexString() []byte {
	var digits []byte
	for l.pos < len(l.src) && l.src[l.pos] != '>' {
		if !isWhite(l.src[l.pos]) {
			digits = append(digits, l.src[l.pos])
		}
		l.pos++
	}
	l.pos++ // '>'
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out := make([]byte, 0, len(digits)/2)
	for i := 0; i+1 < len(digits); i += 2 {
		v, err := strconv.ParseUint(string(digits[i:i+2]), 16, 8)
		if err != nil {
			continue
		}
		out = append(out, byte(v))
	}
	return out
}

// skipInlineImage advances past binary inline image data up to EI.
func (l *lexer) skipInlineImage() {
	for l.pos+2 < len(l.src) {
		if isWhite(l.src[l.pos]) && l.src[l.pos+1] == 'E' && l.src[l.pos+2] == 'I' &&
			(l.pos+3 == len(l.src) || isWhite(l.src[l.pos+3])) {
			l.pos += 3
			return
		}
		l.pos++
	}
	l.pos = len(l.src)
}
