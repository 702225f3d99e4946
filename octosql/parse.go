package octosql

import (
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

// ParseType parses the textual type notation used in configuration files:
//
//	Int, Float, Boolean, String, Time, Duration, Null, Any
//	[Int]               list of Int
//	{name: String; n: Int}
//	Int?                Int | NULL
//	Int | String        union
func ParseType(text string) (Type, error) {
	p := &typeParser{input: text}
	t, err := p.parseUnion()
	if err != nil {
		return Type{}, errors.Wrapf(err, "couldn't parse type '%s'", text)
	}
	p.skipSpaces()
	if p.pos != len(p.input) {
		return Type{}, errors.Errorf("couldn't parse type '%s': unexpected trailing input at %d", text, p.pos)
	}
	return t, nil
}

type typeParser struct {
	input string
	pos   int
}

func (p *typeParser) skipSpaces() {
	for p.pos < len(p.input) && unicode.IsSpace(rune(p.input[p.pos])) {
		p.pos++
	}
}

func (p *typeParser) consume(c byte) bool {
	p.skipSpaces()
	if p.pos < len(p.input) && p.input[p.pos] == c {
		p.pos++
		return true
	}
	return false
}

func (p *typeParser) parseUnion() (Type, error) {
	t, err := p.parseNullable()
	if err != nil {
		return Type{}, err
	}
	for p.consume('|') {
		alternative, err := p.parseNullable()
		if err != nil {
			return Type{}, err
		}
		t = TypeSum(t, alternative)
	}
	return t, nil
}

func (p *typeParser) parseNullable() (Type, error) {
	t, err := p.parseSingle()
	if err != nil {
		return Type{}, err
	}
	if p.consume('?') {
		t = Nullable(t)
	}
	return t, nil
}

func (p *typeParser) parseSingle() (Type, error) {
	if p.consume('[') {
		element, err := p.parseUnion()
		if err != nil {
			return Type{}, err
		}
		if !p.consume(']') {
			return Type{}, errors.Errorf("expected ']' at %d", p.pos)
		}
		return NewListType(element), nil
	}
	if p.consume('{') {
		var fields []StructField
		for !p.consume('}') {
			if len(fields) > 0 && !p.consume(';') {
				return Type{}, errors.Errorf("expected ';' or '}' at %d", p.pos)
			}
			name := p.identifier()
			if name == "" {
				return Type{}, errors.Errorf("expected field name at %d", p.pos)
			}
			if !p.consume(':') {
				return Type{}, errors.Errorf("expected ':' after field name '%s'", name)
			}
			fieldType, err := p.parseUnion()
			if err != nil {
				return Type{}, errors.Wrapf(err, "couldn't parse type of field '%s'", name)
			}
			fields = append(fields, StructField{Name: name, Type: fieldType})
		}
		return NewStructType(fields), nil
	}

	name := p.identifier()
	switch strings.ToLower(name) {
	case "null":
		return Null, nil
	case "int":
		return Int, nil
	case "float":
		return Float, nil
	case "boolean", "bool":
		return Boolean, nil
	case "string":
		return String, nil
	case "time":
		return Time, nil
	case "duration":
		return Duration, nil
	case "any":
		return Any, nil
	case "":
		return Type{}, errors.Errorf("expected type at %d", p.pos)
	}
	return Type{}, errors.Errorf("unknown type '%s'", name)
}

func (p *typeParser) identifier() string {
	p.skipSpaces()
	start := p.pos
	for p.pos < len(p.input) {
		c := rune(p.input[p.pos])
		if !unicode.IsLetter(c) && !unicode.IsDigit(c) && c != '_' {
			break
		}
		p.pos++
	}
	return p.input[start:p.pos]
}
