package serialization

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/cube2222/octoudf/octosql"
	"github.com/cube2222/octoudf/physical"
)

var (
	ErrDecode          = errors.New("malformed encoded row")
	ErrArityMismatch   = errors.New("field count doesn't match row type")
	ErrUnsupportedType = errors.New("type not supported by wire format")
)

type Format string

const (
	FormatRowBinary Format = "row-binary"
	FormatArrow     Format = "arrow"
)

func ParseFormat(text string) (Format, error) {
	switch Format(text) {
	case "", FormatRowBinary:
		return FormatRowBinary, nil
	case FormatArrow:
		return FormatArrow, nil
	}
	return "", errors.Errorf("unknown wire format '%s'", text)
}

// Codec translates rows of a fixed row type to and from their wire form.
// Codecs are stateless and safe for concurrent use.
type Codec interface {
	Encode(values []octosql.Value) ([]byte, error)
	Decode(data []byte) ([]octosql.Value, error)
	Schema() physical.Schema
}

func NewCodec(format Format, schema physical.Schema) (Codec, error) {
	switch format {
	case FormatRowBinary:
		return NewRowBinaryCodec(schema), nil
	case FormatArrow:
		return NewArrowCodec(schema)
	}
	return nil, errors.Errorf("unknown wire format '%s'", format)
}

// EncodeUntyped encodes values using their own runtime types.
func EncodeUntyped(format Format, values []octosql.Value) ([]byte, error) {
	switch format {
	case FormatRowBinary:
		return encodeRow(values)
	case FormatArrow:
		codec, err := NewArrowCodec(inferSchema(values))
		if err != nil {
			return nil, err
		}
		return codec.Encode(values)
	}
	return nil, errors.Errorf("unknown wire format '%s'", format)
}

// DecodeUntyped decodes a row without checking it against a row type.
func DecodeUntyped(format Format, data []byte) ([]octosql.Value, error) {
	switch format {
	case FormatRowBinary:
		return decodeRow(data)
	case FormatArrow:
		return decodeArrow(data)
	}
	return nil, errors.Errorf("unknown wire format '%s'", format)
}

func inferSchema(values []octosql.Value) physical.Schema {
	fields := make([]physical.SchemaField, len(values))
	for i := range values {
		fields[i] = physical.SchemaField{
			Name: fmt.Sprintf("f%d", i),
			Type: octosql.Nullable(values[i].Type()),
		}
		if values[i].TypeID == octosql.TypeIDNull {
			fields[i].Type = octosql.Null
		}
	}
	return physical.NewSchema(fields)
}

func checkDecoded(schema physical.Schema, values []octosql.Value) error {
	if len(values) != len(schema.Fields) {
		return errors.Wrapf(ErrArityMismatch, "expected %d fields, got %d", len(schema.Fields), len(values))
	}
	for i := range values {
		if !schema.Fields[i].Type.Accepts(values[i]) {
			return errors.Wrapf(ErrDecode, "field '%s' of type %s got value %s", schema.Fields[i].Name, schema.Fields[i].Type, values[i])
		}
	}
	return nil
}

func checkEncoded(schema physical.Schema, values []octosql.Value) error {
	if len(values) != len(schema.Fields) {
		return errors.Errorf("expected %d fields to encode, got %d", len(schema.Fields), len(values))
	}
	for i := range values {
		if !schema.Fields[i].Type.Accepts(values[i]) {
			return errors.Errorf("field '%s' of type %s can't encode value %s", schema.Fields[i].Name, schema.Fields[i].Type, values[i])
		}
	}
	return nil
}
