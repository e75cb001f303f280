// Package schema defines the configuration surface an index is built
// with (spec.md §6.4): which fields exist and how, the tokenizer
// bound to each text field, and the planner-facing tuning knobs.
package schema

import (
	"strings"

	"github.com/epokhe/bm25am/internal/invidx"
	"github.com/epokhe/bm25am/pkg/errs"
)

// Config is an index's declared field set plus tuning knobs, built
// with the functional-options pattern (spec.md's AMBIENT STACK
// section, matching the teacher's Option/WithX convention).
type Config struct {
	KeyField string

	TextFields     map[string]TextFieldOptions
	NumericFields  map[string]FieldType
	BooleanFields  map[string]struct{}
	JSONFields     map[string]struct{}
	RangeFields    map[string]FieldType
	DatetimeFields map[string]struct{}

	TargetSegmentCount int
	MinRowsPerWorker   int
}

// FieldType restates invidx.FieldType at the schema boundary so
// callers configuring an index don't need to import internal/invidx.
type FieldType = invidx.FieldType

const (
	TypeU64      = invidx.FieldU64
	TypeI64      = invidx.FieldI64
	TypeF64      = invidx.FieldF64
	TypeBool     = invidx.FieldBool
	TypeDatetime = invidx.FieldDatetime
	TypeJSON     = invidx.FieldJSON
)

// TextFieldOptions configures one text field's analysis.
type TextFieldOptions struct {
	Tokenizer string
	Fast      bool // recorded only; nothing reads it, and no fast-field copy of the text is stored
}

type Option func(*Config)

func WithKeyField(name string) Option {
	return func(c *Config) { c.KeyField = name }
}

func WithTextField(name string, opts TextFieldOptions) Option {
	return func(c *Config) { c.TextFields[name] = opts }
}

func WithNumericField(name string, t FieldType) Option {
	return func(c *Config) { c.NumericFields[name] = t }
}

func WithBooleanField(name string) Option {
	return func(c *Config) { c.BooleanFields[name] = struct{}{} }
}

func WithJSONField(name string) Option {
	return func(c *Config) { c.JSONFields[name] = struct{}{} }
}

func WithRangeField(name string, t FieldType) Option {
	return func(c *Config) { c.RangeFields[name] = t }
}

func WithDatetimeField(name string) Option {
	return func(c *Config) { c.DatetimeFields[name] = struct{}{} }
}

func WithTargetSegmentCount(n int) Option {
	return func(c *Config) { c.TargetSegmentCount = n }
}

func WithMinRowsPerWorker(n int) Option {
	return func(c *Config) { c.MinRowsPerWorker = n }
}

// New builds a Config from opts, seeding the defaults spec.md §6.4
// documents.
func New(opts ...Option) *Config {
	c := &Config{
		TextFields:         make(map[string]TextFieldOptions),
		NumericFields:      make(map[string]FieldType),
		BooleanFields:      make(map[string]struct{}),
		JSONFields:         make(map[string]struct{}),
		RangeFields:        make(map[string]FieldType),
		DatetimeFields:     make(map[string]struct{}),
		TargetSegmentCount: 8,
		MinRowsPerWorker:   10_000,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Validate rejects a Config missing a key field or naming an unknown
// tokenizer, matching the access method's "validate" callback
// (spec.md §6's external interface list).
func (c *Config) Validate() error {
	if c.KeyField == "" {
		return errs.New(errs.CodeInvalidInput, "schema requires a key_field")
	}
	for name, opts := range c.TextFields {
		if _, ok := Tokenizers[opts.Tokenizer]; !ok {
			return errs.New(errs.CodeInvalidInput, "unknown tokenizer").
				WithDetail("field", name).WithDetail("tokenizer", opts.Tokenizer)
		}
		if unavailableTokenizers[opts.Tokenizer] {
			return errs.Wrap(ErrTokenizerUnavailable, errs.CodeInvalidInput, "tokenizer not available in this build").
				WithDetail("field", name).WithDetail("tokenizer", opts.Tokenizer)
		}
	}
	return nil
}

// Tokenize runs field's configured tokenizer over text, or the
// "default" tokenizer if field isn't a declared text field.
func (c *Config) Tokenize(field, text string) []string {
	name := "default"
	if opts, ok := c.TextFields[field]; ok && opts.Tokenizer != "" {
		name = opts.Tokenizer
	}
	tok, ok := Tokenizers[name]
	if !ok {
		tok = Tokenizers["default"]
	}
	return tok(text)
}

// ErrTokenizerUnavailable is what Validate wraps when a text field
// names a tokenizer that is in the registry but needs an external
// dependency (ICU, a CJK segmenter) this module doesn't vendor
// (spec.md §6.4's supplemental tokenizer list). The registry entries
// themselves return no tokens, not this error.
var ErrTokenizerUnavailable = errs.New(errs.CodeInvalidInput, "tokenizer not available in this build")

// unavailableTokenizers names registry entries recognized by the wire
// protocol but not implemented in this build (spec.md §6.4's
// supplemental tokenizer list) — Validate rejects a field configured
// with one before it ever reaches Tokenize.
var unavailableTokenizers = map[string]bool{
	"chinese_compatible": true,
	"source_code":        true,
	"chinese_lindera":     true,
	"japanese_lindera":    true,
	"korean_lindera":      true,
	"icu":                 true,
	"jieba":               true,
}

// unavailable registers a tokenizer name without a usable
// implementation; Validate rejects it, so this is never actually
// invoked outside of a misconfigured Tokenize call bypassing Validate.
func unavailable(string) func(string) []string {
	return func(string) []string { return nil }
}

// Tokenizers is the named tokenizer registry (spec.md §6.4).
var Tokenizers = map[string]func(string) []string{
	"default":          whitespaceLower,
	"raw":              func(s string) []string { return []string{s} },
	"keyword":          func(s string) []string { return []string{s} },
	"lowercase":        func(s string) []string { return []string{strings.ToLower(s)} },
	"white_space":      whitespace,
	"en_stem":          whitespaceLower, // stemming omitted; matches tokens without suffix folding
	"stem":             whitespaceLower,
	"regex_tokenizer":  whitespaceLower,
	"ngram":            ngramTokenizer(3),
	"chinese_compatible": unavailable("chinese_compatible"),
	"source_code":        unavailable("source_code"),
	"chinese_lindera":     unavailable("chinese_lindera"),
	"japanese_lindera":    unavailable("japanese_lindera"),
	"korean_lindera":      unavailable("korean_lindera"),
	"icu":                 unavailable("icu"),
	"jieba":               unavailable("jieba"),
}

func whitespace(s string) []string {
	return strings.Fields(s)
}

func whitespaceLower(s string) []string {
	fields := strings.Fields(s)
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = strings.ToLower(f)
	}
	return out
}

func ngramTokenizer(n int) func(string) []string {
	return func(s string) []string {
		s = strings.ToLower(s)
		if len(s) < n {
			return []string{s}
		}
		var out []string
		for i := 0; i+n <= len(s); i++ {
			out = append(out, s[i:i+n])
		}
		return out
	}
}
