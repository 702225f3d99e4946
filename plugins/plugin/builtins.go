package plugin

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/cube2222/octoudf/octosql"
	"github.com/cube2222/octoudf/serialization"
)

type builtin func(values []octosql.Value) ([]octosql.Value, error)

var builtins = map[string]builtin{
	// identity is handled without decoding.
	"identity":  nil,
	"upper":     mapValues(upper),
	"increment": mapValues(increment),
	"length":    mapValues(length),
}

// BuiltinNames lists the functions available through Builtin.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Builtin returns the named built-in function working on the given wire format.
func Builtin(name string, format serialization.Format) (ScalarFunction, error) {
	fn, ok := builtins[name]
	if !ok {
		return nil, errors.Errorf("unknown function '%s', available: %s", name, strings.Join(BuiltinNames(), ", "))
	}
	if fn == nil {
		return func(input []byte) ([]byte, error) {
			return input, nil
		}, nil
	}
	return NewValuesFunction(format, fn), nil
}

func mapValues(fn func(value octosql.Value) (octosql.Value, error)) builtin {
	return func(values []octosql.Value) ([]octosql.Value, error) {
		out := make([]octosql.Value, len(values))
		for i := range values {
			v, err := fn(values[i])
			if err != nil {
				return nil, errors.Wrapf(err, "field %d", i)
			}
			out[i] = v
		}
		return out, nil
	}
}

func upper(value octosql.Value) (octosql.Value, error) {
	switch value.TypeID {
	case octosql.TypeIDString:
		return octosql.NewString(strings.ToUpper(value.Str)), nil
	case octosql.TypeIDList:
		out, err := mapValues(upper)(value.List)
		if err != nil {
			return octosql.Value{}, err
		}
		return octosql.NewList(out), nil
	}
	return value, nil
}

func increment(value octosql.Value) (octosql.Value, error) {
	switch value.TypeID {
	case octosql.TypeIDNull:
		return value, nil
	case octosql.TypeIDInt:
		return octosql.NewInt(value.Int + 1), nil
	case octosql.TypeIDFloat:
		return octosql.NewFloat(value.Float + 1), nil
	}
	return octosql.Value{}, errors.Errorf("can't increment %s", value.TypeID)
}

func length(value octosql.Value) (octosql.Value, error) {
	switch value.TypeID {
	case octosql.TypeIDNull:
		return value, nil
	case octosql.TypeIDString:
		return octosql.NewInt(utf8.RuneCountInString(value.Str)), nil
	case octosql.TypeIDList:
		return octosql.NewInt(len(value.List)), nil
	case octosql.TypeIDStruct:
		return octosql.NewInt(len(value.Struct)), nil
	}
	return octosql.Value{}, errors.Errorf("can't take length of %s", value.TypeID)
}
