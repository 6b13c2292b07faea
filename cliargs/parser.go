package cliargs

import (
	"fmt"
	"os"
	"strings"
)

// ValueSource records where a resolved value came from.
type ValueSource string

const (
	SourceCLI     ValueSource = "cli"
	SourceEnv     ValueSource = "env"
	SourceSecret  ValueSource = "secret"
	SourcePreset  ValueSource = "preset"
	SourceDefault ValueSource = "default"
)

// explicit reports whether the value was supplied by the user rather than
// filled from a declared default.
func (s ValueSource) explicit() bool {
	return s != "" && s != SourceDefault
}

// SecretSource resolves secret values by key, e.g. from the OS keychain.
type SecretSource interface {
	Lookup(key string) (value string, found bool, err error)
}

// Config controls parser behaviour.
type Config struct {
	// Strict records unknown options as errors instead of collecting them.
	Strict bool
	// ExpectCommand takes the first positional as the command name.
	ExpectCommand         bool
	StopAtFirstPositional bool
	// LookupEnv defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
	Secrets   SecretSource
	// Presets supplies values by field name below env and above defaults.
	Presets map[string]any
}

// ParseResult is the outcome of Parser.Parse.
type ParseResult struct {
	Command    string                 `json:"command,omitempty" yaml:"command,omitempty"`
	Arguments  map[string]any         `json:"arguments" yaml:"arguments"`
	Options    map[string]any         `json:"options" yaml:"options"`
	Positional []string               `json:"positional,omitempty" yaml:"positional,omitempty"`
	Unknown    []string               `json:"unknown,omitempty" yaml:"unknown,omitempty"`
	Validation ValidationResult       `json:"validation" yaml:"validation"`
	Help       bool                   `json:"help,omitempty" yaml:"help,omitempty"`
	Version    bool                   `json:"version,omitempty" yaml:"version,omitempty"`
	Raw        []string               `json:"-" yaml:"-"`
	Sources    map[string]ValueSource `json:"sources,omitempty" yaml:"sources,omitempty"`
	// Sensitive lists the paths ("options.token") of secret fields.
	Sensitive []string `json:"-" yaml:"-"`
}

// IsSensitive reports whether the field at path holds a secret.
func (r *ParseResult) IsSensitive(path string) bool {
	for _, p := range r.Sensitive {
		if p == path {
			return true
		}
	}
	return false
}

// Parser binds tokens to declared arguments and options.
type Parser struct {
	cfg       Config
	arguments []*field
	options   []*field
	byName    map[string]*field
	byShort   map[string]*field
	warnings  []string
}

// NewParser builds a parser for the given definitions. Definition problems
// that do not prevent parsing surface as warnings on every ParseResult.
func NewParser(arguments []ArgumentDefinition, options []OptionDefinition, cfg Config) *Parser {
	if cfg.LookupEnv == nil {
		cfg.LookupEnv = os.LookupEnv
	}

	p := &Parser{
		cfg:     cfg,
		byName:  make(map[string]*field),
		byShort: make(map[string]*field),
	}

	for i, d := range arguments {
		f := argumentField(d)
		if f.multiple && i != len(arguments)-1 {
			p.warnings = append(p.warnings,
				fmt.Sprintf("argument %q accepts multiple values but is not the last argument", d.Name))
		}
		p.arguments = append(p.arguments, f)
	}

	for _, d := range options {
		f := optionField(d)
		p.options = append(p.options, f)
		for _, name := range append([]string{d.Name}, d.Aliases...) {
			if _, dup := p.byName[name]; dup {
				p.warnings = append(p.warnings, fmt.Sprintf("option name %q declared more than once", name))
				continue
			}
			p.byName[name] = f
		}
		if d.Short != "" {
			if _, dup := p.byShort[d.Short]; dup {
				p.warnings = append(p.warnings, fmt.Sprintf("short option %q declared more than once", d.Short))
				continue
			}
			p.byShort[d.Short] = f
		}
	}

	return p
}

// parseState carries the mutable bookkeeping of one Parse call.
type parseState struct {
	result  *ParseResult
	cliVals map[*field][]any
	sources map[*field]ValueSource
	errors  []ValidationError
}

func (s *parseState) addError(e ValidationError) {
	s.errors = append(s.errors, e)
}

// Parse resolves raw arguments. It never returns an error: problems are
// accumulated on the result's Validation.
func (p *Parser) Parse(raw []string) *ParseResult {
	st := &parseState{
		result: &ParseResult{
			Arguments: make(map[string]any),
			Options:   make(map[string]any),
			Raw:       append([]string(nil), raw...),
			Sources:   make(map[string]ValueSource),
		},
		cliVals: make(map[*field][]any),
		sources: make(map[*field]ValueSource),
	}
	st.result.Validation.Warnings = append(st.result.Validation.Warnings, p.warnings...)

	tokens := Tokenize(raw, TokenizeConfig{StopAtFirstPositional: p.cfg.StopAtFirstPositional})
	positionals := p.walk(st, tokens.All)
	p.bindPositionals(st, positionals)

	for _, f := range p.arguments {
		p.resolve(st, f, st.result.Arguments)
	}
	for _, f := range p.options {
		p.resolve(st, f, st.result.Options)
	}
	p.checkConstraints(st)

	st.result.Validation.Errors = st.errors
	st.result.Validation.Success = len(st.errors) == 0

	return st.result
}

// walk consumes option tokens and returns the positionals left over.
func (p *Parser) walk(st *parseState, all []Token) []string {
	var positionals []string
	skipCluster := -1

	for i := 0; i < len(all); i++ {
		t := all[i]

		if t.Kind == TokenShort && t.Index == skipCluster {
			continue
		}

		switch t.Kind {
		case TokenPositional:
			if p.cfg.ExpectCommand && st.result.Command == "" && !t.AfterTerminator && len(positionals) == 0 {
				st.result.Command = t.Value
				continue
			}
			positionals = append(positionals, t.Value)

		case TokenLong:
			f, ok := p.byName[t.Name]
			if !ok {
				p.unmatchedLong(st, t)
				continue
			}
			p.consumeValue(st, f, t, all, &i)

		case TokenShort:
			f, ok := p.byShort[t.Name]
			if !ok {
				if t.Name == "h" {
					st.result.Help = true
					continue
				}
				p.unknown(st, "-"+t.Name)
				continue
			}
			if p.consumeValue(st, f, t, all, &i) {
				skipCluster = t.Index
			}
		}
	}

	return positionals
}

// consumeValue records an occurrence of f. It reports whether the token's
// cluster remainder was used as the value.
func (p *Parser) consumeValue(st *parseState, f *field, t Token, all []Token, i *int) bool {
	if f.isBool() {
		if t.HasValue {
			st.cliVals[f] = append(st.cliVals[f], t.Value)
		} else {
			st.cliVals[f] = append(st.cliVals[f], true)
		}
		return false
	}

	switch {
	case t.HasValue:
		st.cliVals[f] = append(st.cliVals[f], t.Value)
		return false
	case t.Kind == TokenShort && t.Rest != "":
		// -ab=c gives b the value "c"
		st.cliVals[f] = append(st.cliVals[f], strings.TrimPrefix(t.Rest, "="))
		return true
	}

	if *i+1 < len(all) {
		next := all[*i+1]
		if next.Kind == TokenPositional && !next.AfterTerminator &&
			(!strings.HasPrefix(next.Value, "-") || (f.isNumeric() && isNumeric(next.Value))) {
			st.cliVals[f] = append(st.cliVals[f], next.Value)
			*i++
			return false
		}
	}

	st.addError(ValidationError{
		Path:     f.path(),
		Message:  fmt.Sprintf("option %s requires a value", t.Raw),
		Code:     CodeInvalidType,
		Expected: string(f.typ),
	})
	return false
}

func (p *Parser) unmatchedLong(st *parseState, t Token) {
	switch t.Name {
	case "help":
		st.result.Help = true
		return
	case "version":
		st.result.Version = true
		return
	}

	if negated, ok := strings.CutPrefix(t.Name, "no-"); ok && !t.HasValue {
		if f, found := p.byName[negated]; found && f.isBool() {
			st.cliVals[f] = append(st.cliVals[f], false)
			return
		}
	}

	p.unknown(st, t.Raw)
}

func (p *Parser) unknown(st *parseState, raw string) {
	if p.cfg.Strict {
		st.addError(ValidationError{
			Path:     "options." + strings.TrimLeft(raw, "-"),
			Message:  fmt.Sprintf("unknown option %s", raw),
			Code:     CodeUnknownOption,
			Received: raw,
		})
		return
	}
	st.result.Unknown = append(st.result.Unknown, raw)
}

// bindPositionals assigns positionals to arguments by declaration order.
func (p *Parser) bindPositionals(st *parseState, positionals []string) {
	idx := 0
	for _, f := range p.arguments {
		if idx >= len(positionals) {
			break
		}
		if f.multiple {
			for _, v := range positionals[idx:] {
				st.cliVals[f] = append(st.cliVals[f], v)
			}
			idx = len(positionals)
			break
		}
		st.cliVals[f] = append(st.cliVals[f], positionals[idx])
		idx++
	}
	st.result.Positional = append(st.result.Positional, positionals[idx:]...)
}

// resolve applies token → env → secret → preset → default, then coerces and
// validates the value and stores it in target.
func (p *Parser) resolve(st *parseState, f *field, target map[string]any) {
	if f.secret {
		st.result.Sensitive = append(st.result.Sensitive, f.path())
	}

	value, source, ok := p.lookup(st, f)
	if !ok {
		if f.required {
			kind := "option"
			name := "--" + f.name
			if f.kind == "arguments" {
				kind, name = "argument", f.name
			}
			st.addError(ValidationError{
				Path:     f.path(),
				Message:  fmt.Sprintf("required %s %s is missing", kind, name),
				Code:     CodeRequired,
				Expected: string(f.typ),
			})
		}
		return
	}

	st.sources[f] = source
	st.result.Sources[f.path()] = source

	value = p.coerceField(st, f, value)

	fieldErrs := validateField(f, value)
	if len(fieldErrs) > 0 {
		for _, e := range fieldErrs {
			st.addError(e)
		}
		target[f.name] = value
		return
	}

	if f.schema != nil {
		parsed, err := f.schema.Parse(value)
		if err != nil {
			st.addError(ValidationError{
				Path:     f.path(),
				Message:  err.Error(),
				Code:     CodeSchema,
				Received: received(f, value),
			})
		} else {
			value = parsed
		}
	}

	if f.validator != nil {
		warning, err := f.validator(value)
		if err != nil {
			st.addError(ValidationError{
				Path:     f.path(),
				Message:  err.Error(),
				Code:     CodeCustom,
				Received: received(f, value),
			})
		}
		if warning != "" {
			st.result.Validation.Warnings = append(st.result.Validation.Warnings, f.path()+": "+warning)
		}
	}

	target[f.name] = value
}

func (p *Parser) lookup(st *parseState, f *field) (any, ValueSource, bool) {
	if vals, ok := st.cliVals[f]; ok && len(vals) > 0 {
		if f.multiple {
			return vals, SourceCLI, true
		}
		return vals[len(vals)-1], SourceCLI, true
	}

	if f.envVar != "" {
		if v, ok := p.cfg.LookupEnv(f.envVar); ok {
			return splitForField(f, v), SourceEnv, true
		}
	}

	if f.secretKey != "" && p.cfg.Secrets != nil {
		v, found, err := p.cfg.Secrets.Lookup(f.secretKey)
		switch {
		case err != nil:
			st.result.Validation.Warnings = append(st.result.Validation.Warnings,
				fmt.Sprintf("%s: secret lookup failed: %v", f.path(), err))
		case found:
			return v, SourceSecret, true
		}
	}

	if p.cfg.Presets != nil {
		if v, ok := p.cfg.Presets[f.name]; ok {
			if f.multiple {
				if list, isList := v.([]any); isList {
					return list, SourcePreset, true
				}
				return []any{v}, SourcePreset, true
			}
			return v, SourcePreset, true
		}
	}

	if f.def != nil {
		if f.multiple {
			if list, isList := f.def.([]any); isList {
				return list, SourceDefault, true
			}
			return []any{f.def}, SourceDefault, true
		}
		return f.def, SourceDefault, true
	}

	return nil, "", false
}

// splitForField turns an env var into the shape the field expects:
// comma-separated lists for multi-value and array fields.
func splitForField(f *field, v string) any {
	if !f.multiple && f.typ != TypeArray {
		return v
	}
	parts := strings.Split(v, ",")
	out := make([]any, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (p *Parser) coerceField(st *parseState, f *field, value any) any {
	if !f.multiple {
		v, warn, err := coerce(f, f.typ, value)
		p.recordCoerce(st, f, f.path(), value, warn, err)
		return v
	}

	list, ok := value.([]any)
	if !ok {
		list = []any{value}
	}
	elemType := f.typ
	if elemType == TypeArray {
		elemType = TypeString
	}
	out := make([]any, len(list))
	for i, item := range list {
		v, warn, err := coerce(f, elemType, item)
		p.recordCoerce(st, f, fmt.Sprintf("%s[%d]", f.path(), i), item, warn, err)
		out[i] = v
	}
	return out
}

func (p *Parser) recordCoerce(st *parseState, f *field, path string, original any, warn string, err error) {
	if warn != "" {
		st.result.Validation.Warnings = append(st.result.Validation.Warnings, path+": "+warn)
	}
	if err != nil {
		st.addError(ValidationError{
			Path:     path,
			Message:  err.Error(),
			Code:     CodeInvalidType,
			Expected: string(f.typ),
			Received: received(f, original),
		})
	}
}

// checkConstraints enforces Conflicts and Requires between options. Only
// explicitly supplied values count; defaults neither conflict nor satisfy.
func (p *Parser) checkConstraints(st *parseState) {
	for _, f := range p.options {
		if !st.sources[f].explicit() {
			continue
		}
		for _, other := range f.conflicts {
			partner := p.canonical(other)
			if partner == nil || partner == f {
				continue
			}
			if st.sources[partner].explicit() {
				st.addError(ValidationError{
					Path:     f.path(),
					Message:  fmt.Sprintf("option --%s conflicts with --%s", f.name, partner.name),
					Code:     CodeOptionConflict,
					Received: partner.name,
				})
			}
		}

		for _, other := range f.requires {
			if partner := p.canonical(other); partner != nil && st.sources[partner].explicit() {
				continue
			}
			st.addError(ValidationError{
				Path:     f.path(),
				Message:  fmt.Sprintf("option --%s requires --%s", f.name, other),
				Code:     CodeMissingDependency,
				Expected: other,
			})
		}
	}
}

func (p *Parser) canonical(name string) *field {
	if f, ok := p.byName[name]; ok {
		return f
	}
	return p.byShort[name]
}

