package compiler

import "github.com/kristofer/vela/pkg/lexer"

// Precedence orders binding strength from loosest to tightest, lowest to
// highest per the core specification.
type Precedence int

const (
	PrecNone Precedence = iota
	PrecAssignment // =
	PrecOr         // or
	PrecAnd        // and
	PrecEquality   // == !=
	PrecComparison // < > <= >=
	PrecTerm       // + -
	PrecFactor     // * /
	PrecUnary      // ! -
	PrecCall       // . ()
	PrecPrimary
)

type parseFn func(c *Compiler, canAssign bool)

type parseRule struct {
	prefix     parseFn
	infix      parseFn
	precedence Precedence
}

// rules is the Pratt dispatch table: a map of (prefix, infix,
// precedence) indexed by token kind.
var rules map[lexer.TokenType]parseRule

func init() {
	rules = map[lexer.TokenType]parseRule{
		lexer.TokenLeftParen:    {(*Compiler).grouping, (*Compiler).call, PrecCall},
		lexer.TokenDot:          {nil, (*Compiler).dot, PrecCall},
		lexer.TokenMinus:        {(*Compiler).unary, (*Compiler).binary, PrecTerm},
		lexer.TokenPlus:         {nil, (*Compiler).binary, PrecTerm},
		lexer.TokenSlash:        {nil, (*Compiler).binary, PrecFactor},
		lexer.TokenStar:         {nil, (*Compiler).binary, PrecFactor},
		lexer.TokenBang:         {(*Compiler).unary, nil, PrecNone},
		lexer.TokenBangEqual:    {nil, (*Compiler).binary, PrecEquality},
		lexer.TokenEqualEqual:   {nil, (*Compiler).binary, PrecEquality},
		lexer.TokenGreater:      {nil, (*Compiler).binary, PrecComparison},
		lexer.TokenGreaterEqual: {nil, (*Compiler).binary, PrecComparison},
		lexer.TokenLess:         {nil, (*Compiler).binary, PrecComparison},
		lexer.TokenLessEqual:    {nil, (*Compiler).binary, PrecComparison},
		lexer.TokenIdentifier:   {(*Compiler).variable, nil, PrecNone},
		lexer.TokenString:       {(*Compiler).stringLiteral, nil, PrecNone},
		lexer.TokenNumber:       {(*Compiler).number, nil, PrecNone},
		lexer.TokenAnd:          {nil, (*Compiler).and, PrecAnd},
		lexer.TokenOr:           {nil, (*Compiler).or, PrecOr},
		lexer.TokenFalse:        {(*Compiler).literal, nil, PrecNone},
		lexer.TokenTrue:         {(*Compiler).literal, nil, PrecNone},
		lexer.TokenNil:          {(*Compiler).literal, nil, PrecNone},
		lexer.TokenSuper:        {(*Compiler).super_, nil, PrecNone},
		lexer.TokenThis:         {(*Compiler).this_, nil, PrecNone},
	}
}

func getRule(t lexer.TokenType) parseRule {
	if r, ok := rules[t]; ok {
		return r
	}
	return parseRule{nil, nil, PrecNone}
}
