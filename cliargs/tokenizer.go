package cliargs

import (
	"strconv"
	"strings"
)

// TokenKind classifies a lexical token.
type TokenKind int

const (
	TokenPositional TokenKind = iota
	TokenLong
	TokenShort
)

func (k TokenKind) String() string {
	switch k {
	case TokenLong:
		return "long"
	case TokenShort:
		return "short"
	default:
		return "positional"
	}
}

// Token is one lexical unit of the argument list.
type Token struct {
	Kind TokenKind
	// Name is the option name without dashes; for positionals it is empty.
	Name string
	// Value holds an inline value (--name=value) or the positional text.
	Value    string
	HasValue bool
	// Raw is the original argument the token came from.
	Raw string
	// Index is the position of Raw in the input list.
	Index int
	// Rest is what followed this flag inside a combined short cluster
	// (for -abc, the token for "a" has Rest "bc").
	Rest string
	// AfterTerminator marks positionals that followed "--".
	AfterTerminator bool
}

// Tokens is the tokenizer output. All preserves input order; Options and
// Positional are filtered views of it.
type Tokens struct {
	All        []Token
	Options    []Token
	Positional []Token
}

// TokenizeConfig controls lexical behaviour.
type TokenizeConfig struct {
	// StopAtFirstPositional treats every token after the first positional
	// as positional, dashes included.
	StopAtFirstPositional bool
}

// Tokenize splits raw arguments into option and positional tokens. It does
// not consult any definitions.
func Tokenize(args []string, cfg TokenizeConfig) Tokens {
	var out Tokens
	terminated := false

	emit := func(t Token) {
		out.All = append(out.All, t)
		if t.Kind == TokenPositional {
			out.Positional = append(out.Positional, t)
		} else {
			out.Options = append(out.Options, t)
		}
	}

	for i, arg := range args {
		if terminated {
			emit(Token{Kind: TokenPositional, Value: arg, Raw: arg, Index: i, AfterTerminator: true})
			continue
		}

		switch {
		case arg == "--":
			terminated = true

		case strings.HasPrefix(arg, "--"):
			name, value, hasValue := strings.Cut(arg[2:], "=")
			emit(Token{Kind: TokenLong, Name: name, Value: value, HasValue: hasValue, Raw: arg, Index: i})

		case len(arg) > 1 && arg[0] == '-' && !isNumeric(arg):
			body := arg[1:]
			if name, value, ok := strings.Cut(body, "="); ok && len(name) == 1 {
				emit(Token{Kind: TokenShort, Name: name, Value: value, HasValue: true, Raw: arg, Index: i})
				continue
			}
			for j, r := range body {
				emit(Token{
					Kind:  TokenShort,
					Name:  string(r),
					Raw:   arg,
					Index: i,
					Rest:  body[j+len(string(r)):],
				})
			}

		default:
			emit(Token{Kind: TokenPositional, Value: arg, Raw: arg, Index: i})
			if cfg.StopAtFirstPositional {
				terminated = true
			}
		}
	}

	return out
}

func isNumeric(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}
