package lexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextTokenPunctuationAndOperators(t *testing.T) {
	input := `( ) { } , . ; : - + / * ! != = == < <= > >=`

	want := []TokenType{
		TokenLeftParen, TokenRightParen, TokenLeftBrace, TokenRightBrace,
		TokenComma, TokenDot, TokenSemicolon, TokenColon, TokenMinus,
		TokenPlus, TokenSlash, TokenStar, TokenBang, TokenBangEqual,
		TokenEqual, TokenEqualEqual, TokenLess, TokenLessEqual,
		TokenGreater, TokenGreaterEqual, TokenEOF,
	}

	l := New(input)
	for i, wantType := range want {
		tok := l.NextToken()
		assert.Equal(t, wantType, tok.Type, "token %d", i)
	}
}

func TestNextTokenKeywords(t *testing.T) {
	input := "and class else false for fun if nil or print return super this true var let while case default switch continue"
	want := []TokenType{
		TokenAnd, TokenClass, TokenElse, TokenFalse, TokenFor, TokenFun,
		TokenIf, TokenNil, TokenOr, TokenPrint, TokenReturn, TokenSuper,
		TokenThis, TokenTrue, TokenVar, TokenLet, TokenWhile, TokenCase,
		TokenDefault, TokenSwitch, TokenContinue, TokenEOF,
	}

	l := New(input)
	for i, wantType := range want {
		tok := l.NextToken()
		assert.Equal(t, wantType, tok.Type, "token %d", i)
	}
}

func TestNextTokenIdentifierNotKeywordPrefix(t *testing.T) {
	l := New("classroom")
	tok := l.NextToken()
	assert.Equal(t, TokenIdentifier, tok.Type)
	assert.Equal(t, "classroom", tok.Lexeme)
}

func TestNextTokenNumbers(t *testing.T) {
	tests := []string{"123", "1.5", "0"}
	for _, src := range tests {
		l := New(src)
		tok := l.NextToken()
		assert.Equal(t, TokenNumber, tok.Type)
		assert.Equal(t, src, tok.Lexeme)
	}
}

func TestNumberTrailingDotIsNotConsumed(t *testing.T) {
	l := New("123.")
	tok := l.NextToken()
	assert.Equal(t, TokenNumber, tok.Type)
	assert.Equal(t, "123", tok.Lexeme)

	dot := l.NextToken()
	assert.Equal(t, TokenDot, dot.Type)
}

func TestStringLiteral(t *testing.T) {
	l := New(`"hello world"`)
	tok := l.NextToken()
	assert.Equal(t, TokenString, tok.Type)
	assert.Equal(t, `"hello world"`, tok.Lexeme)
}

func TestUnterminatedStringIsError(t *testing.T) {
	l := New(`"oops`)
	tok := l.NextToken()
	assert.Equal(t, TokenError, tok.Type)
}

func TestLineCommentsAreSkipped(t *testing.T) {
	l := New("1 // this is a comment\n2")
	first := l.NextToken()
	second := l.NextToken()
	assert.Equal(t, "1", first.Lexeme)
	assert.Equal(t, 1, first.Line)
	assert.Equal(t, "2", second.Lexeme)
	assert.Equal(t, 2, second.Line)
}

func TestUnexpectedCharacterIsError(t *testing.T) {
	l := New("@")
	tok := l.NextToken()
	assert.Equal(t, TokenError, tok.Type)
}

func TestEofIsSticky(t *testing.T) {
	l := New("")
	first := l.NextToken()
	second := l.NextToken()
	assert.Equal(t, TokenEOF, first.Type)
	assert.Equal(t, TokenEOF, second.Type)
}
