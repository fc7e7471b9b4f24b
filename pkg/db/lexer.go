package db

import (
	"strings"
	"unicode"

	"microdb/pkg/dberr"
)

// tokenize 把一行输入切成字句
// 引号字符串（保留引号）是一个字句；, ( ) ; * 单独成字句；= ! < > & | 连续出现时合成一个运算符
func tokenize(input string) ([]string, error) {
	var tokens []string
	rs := []rune(input)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++

		case r == '\'' || r == '"':
			j := i + 1
			for j < len(rs) && rs[j] != r {
				j++
			}
			if j >= len(rs) {
				return nil, dberr.Syntax("unterminated string starting at %d", i)
			}
			tokens = append(tokens, string(rs[i:j+1]))
			i = j + 1

		case strings.ContainsRune(",();*", r):
			tokens = append(tokens, string(r))
			i++

		case isOperatorRune(r):
			j := i
			for j < len(rs) && isOperatorRune(rs[j]) {
				j++
			}
			tokens = append(tokens, string(rs[i:j]))
			i = j

		default:
			j := i
			for j < len(rs) && !unicode.IsSpace(rs[j]) && !isDelimiter(rs[j]) {
				j++
			}
			tokens = append(tokens, string(rs[i:j]))
			i = j
		}
	}
	return tokens, nil
}

func isOperatorRune(r rune) bool {
	return strings.ContainsRune("=!<>&|", r)
}

func isDelimiter(r rune) bool {
	return r == '\'' || r == '"' || strings.ContainsRune(",();*", r) || isOperatorRune(r)
}

func isQuoted(tok string) bool {
	return len(tok) >= 2 && (tok[0] == '\'' || tok[0] == '"') && tok[len(tok)-1] == tok[0]
}

// unquote 去掉成对的引号
func unquote(tok string) string {
	if isQuoted(tok) {
		return tok[1 : len(tok)-1]
	}
	return tok
}

// tokenStream 顺序读取字句
type tokenStream struct {
	toks []string
	pos  int
}

func (s *tokenStream) peek() string {
	if s.pos >= len(s.toks) {
		return ""
	}
	return s.toks[s.pos]
}

func (s *tokenStream) next() (string, bool) {
	if s.pos >= len(s.toks) {
		return "", false
	}
	tok := s.toks[s.pos]
	s.pos++
	return tok, true
}

func (s *tokenStream) done() bool {
	return s.pos >= len(s.toks)
}

// accept 如果下一个字句是 kw（不区分大小写）则消费它
func (s *tokenStream) accept(kw string) bool {
	if strings.EqualFold(s.peek(), kw) && s.pos < len(s.toks) {
		s.pos++
		return true
	}
	return false
}

func (s *tokenStream) expect(kw string) error {
	if s.accept(kw) {
		return nil
	}
	if s.done() {
		return dberr.Syntax("expected %q, got end of input", kw)
	}
	return dberr.Syntax("expected %q, got %q", kw, s.peek())
}

// ident 读取一个标识符（表名或字段名）
func (s *tokenStream) ident(what string) (string, error) {
	tok, ok := s.next()
	if !ok {
		return "", dberr.Syntax("expected %s, got end of input", what)
	}
	if isQuoted(tok) || (len(tok) > 0 && isDelimiter([]rune(tok)[0])) {
		return "", dberr.Syntax("expected %s, got %q", what, tok)
	}
	return tok, nil
}
