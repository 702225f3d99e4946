package serialization

import (
	"math"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/cube2222/octoudf/octosql"
	"github.com/cube2222/octoudf/physical"
)

// The row-binary format is protobuf wire format, equivalent to:
//
//	message Row {
//	  uint64 field_count = 1;
//	  repeated Value values = 2;
//	}
//	message Value {
//	  int32 type_id = 1;
//	  sint64 int = 2;
//	  double float = 3;
//	  bool boolean = 4;
//	  bytes str = 5;
//	  google.protobuf.Timestamp time = 6;
//	  google.protobuf.Duration duration = 7;
//	  repeated Value list = 8;
//	  repeated Value struct = 9;
//	}
const (
	rowFieldCount = 1
	rowValues     = 2

	valueTypeID   = 1
	valueInt      = 2
	valueFloat    = 3
	valueBoolean  = 4
	valueStr      = 5
	valueTime     = 6
	valueDuration = 7
	valueList     = 8
	valueStruct   = 9
)

type RowBinaryCodec struct {
	schema physical.Schema
}

func NewRowBinaryCodec(schema physical.Schema) *RowBinaryCodec {
	return &RowBinaryCodec{
		schema: schema,
	}
}

func (c *RowBinaryCodec) Encode(values []octosql.Value) ([]byte, error) {
	if err := checkEncoded(c.schema, values); err != nil {
		return nil, err
	}
	return encodeRow(values)
}

func (c *RowBinaryCodec) Decode(data []byte) ([]octosql.Value, error) {
	values, err := decodeRow(data)
	if err != nil {
		return nil, err
	}
	if err := checkDecoded(c.schema, values); err != nil {
		return nil, err
	}
	return values, nil
}

func (c *RowBinaryCodec) Schema() physical.Schema {
	return c.schema
}

func encodeRow(values []octosql.Value) ([]byte, error) {
	out := make([]byte, 0, 16*len(values)+2)
	out = protowire.AppendTag(out, rowFieldCount, protowire.VarintType)
	out = protowire.AppendVarint(out, uint64(len(values)))
	for i := range values {
		encoded, err := appendValue(nil, values[i])
		if err != nil {
			return nil, errors.Wrapf(err, "couldn't encode field %d", i)
		}
		out = protowire.AppendTag(out, rowValues, protowire.BytesType)
		out = protowire.AppendBytes(out, encoded)
	}
	return out, nil
}

func appendValue(out []byte, value octosql.Value) ([]byte, error) {
	out = protowire.AppendTag(out, valueTypeID, protowire.VarintType)
	out = protowire.AppendVarint(out, uint64(value.TypeID))

	switch value.TypeID {
	case octosql.TypeIDNull:
	case octosql.TypeIDInt:
		out = protowire.AppendTag(out, valueInt, protowire.VarintType)
		out = protowire.AppendVarint(out, protowire.EncodeZigZag(int64(value.Int)))
	case octosql.TypeIDFloat:
		out = protowire.AppendTag(out, valueFloat, protowire.Fixed64Type)
		out = protowire.AppendFixed64(out, math.Float64bits(value.Float))
	case octosql.TypeIDBoolean:
		out = protowire.AppendTag(out, valueBoolean, protowire.VarintType)
		out = protowire.AppendVarint(out, protowire.EncodeBool(value.Boolean))
	case octosql.TypeIDString:
		out = protowire.AppendTag(out, valueStr, protowire.BytesType)
		out = protowire.AppendString(out, value.Str)
	case octosql.TypeIDTime:
		data, err := proto.Marshal(timestamppb.New(value.Time))
		if err != nil {
			return nil, errors.Wrap(err, "couldn't marshal timestamp")
		}
		out = protowire.AppendTag(out, valueTime, protowire.BytesType)
		out = protowire.AppendBytes(out, data)
	case octosql.TypeIDDuration:
		data, err := proto.Marshal(durationpb.New(value.Duration))
		if err != nil {
			return nil, errors.Wrap(err, "couldn't marshal duration")
		}
		out = protowire.AppendTag(out, valueDuration, protowire.BytesType)
		out = protowire.AppendBytes(out, data)
	case octosql.TypeIDList:
		for i := range value.List {
			element, err := appendValue(nil, value.List[i])
			if err != nil {
				return nil, errors.Wrapf(err, "couldn't encode list element %d", i)
			}
			out = protowire.AppendTag(out, valueList, protowire.BytesType)
			out = protowire.AppendBytes(out, element)
		}
	case octosql.TypeIDStruct:
		for i := range value.Struct {
			field, err := appendValue(nil, value.Struct[i])
			if err != nil {
				return nil, errors.Wrapf(err, "couldn't encode struct field %d", i)
			}
			out = protowire.AppendTag(out, valueStruct, protowire.BytesType)
			out = protowire.AppendBytes(out, field)
		}
	default:
		return nil, errors.Wrapf(ErrUnsupportedType, "%s", value.TypeID)
	}
	return out, nil
}

func decodeRow(data []byte) ([]octosql.Value, error) {
	var values []octosql.Value
	fieldCount := -1
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, errors.Wrapf(ErrDecode, "invalid row tag: %s", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == rowFieldCount && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, errors.Wrapf(ErrDecode, "invalid field count: %s", protowire.ParseError(n))
			}
			if v > uint64(len(data)) {
				return nil, errors.Wrapf(ErrDecode, "field count %d exceeds payload size", v)
			}
			fieldCount = int(v)
			data = data[n:]
		case num == rowValues && typ == protowire.BytesType:
			encoded, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, errors.Wrapf(ErrDecode, "invalid value: %s", protowire.ParseError(n))
			}
			value, err := decodeValue(encoded)
			if err != nil {
				return nil, errors.Wrapf(err, "couldn't decode field %d", len(values))
			}
			values = append(values, value)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, errors.Wrapf(ErrDecode, "invalid unknown field %d: %s", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	if fieldCount == -1 {
		return nil, errors.Wrap(ErrDecode, "missing field count")
	}
	if fieldCount != len(values) {
		return nil, errors.Wrapf(ErrDecode, "declared %d fields, found %d", fieldCount, len(values))
	}
	if values == nil {
		values = []octosql.Value{}
	}
	return values, nil
}

func decodeValue(data []byte) (octosql.Value, error) {
	out := octosql.Value{}
	typeIDSeen := false
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return octosql.Value{}, errors.Wrapf(ErrDecode, "invalid value tag: %s", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == valueTypeID && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return octosql.Value{}, errors.Wrapf(ErrDecode, "invalid type id: %s", protowire.ParseError(n))
			}
			out.TypeID = octosql.TypeID(v)
			typeIDSeen = true
			data = data[n:]
		case num == valueInt && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return octosql.Value{}, errors.Wrapf(ErrDecode, "invalid int: %s", protowire.ParseError(n))
			}
			out.Int = int(protowire.DecodeZigZag(v))
			data = data[n:]
		case num == valueFloat && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(data)
			if n < 0 {
				return octosql.Value{}, errors.Wrapf(ErrDecode, "invalid float: %s", protowire.ParseError(n))
			}
			out.Float = math.Float64frombits(v)
			data = data[n:]
		case num == valueBoolean && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return octosql.Value{}, errors.Wrapf(ErrDecode, "invalid boolean: %s", protowire.ParseError(n))
			}
			out.Boolean = protowire.DecodeBool(v)
			data = data[n:]
		case num == valueStr && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return octosql.Value{}, errors.Wrapf(ErrDecode, "invalid string: %s", protowire.ParseError(n))
			}
			out.Str = string(v)
			data = data[n:]
		case num == valueTime && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return octosql.Value{}, errors.Wrapf(ErrDecode, "invalid time: %s", protowire.ParseError(n))
			}
			var ts timestamppb.Timestamp
			if err := proto.Unmarshal(v, &ts); err != nil {
				return octosql.Value{}, errors.Wrapf(ErrDecode, "invalid timestamp: %s", err)
			}
			out.Time = ts.AsTime()
			data = data[n:]
		case num == valueDuration && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return octosql.Value{}, errors.Wrapf(ErrDecode, "invalid duration: %s", protowire.ParseError(n))
			}
			var d durationpb.Duration
			if err := proto.Unmarshal(v, &d); err != nil {
				return octosql.Value{}, errors.Wrapf(ErrDecode, "invalid duration: %s", err)
			}
			out.Duration = d.AsDuration()
			data = data[n:]
		case (num == valueList || num == valueStruct) && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return octosql.Value{}, errors.Wrapf(ErrDecode, "invalid nested value: %s", protowire.ParseError(n))
			}
			element, err := decodeValue(v)
			if err != nil {
				return octosql.Value{}, err
			}
			if num == valueList {
				out.List = append(out.List, element)
			} else {
				out.Struct = append(out.Struct, element)
			}
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return octosql.Value{}, errors.Wrapf(ErrDecode, "invalid unknown field %d: %s", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}

	if !typeIDSeen {
		return octosql.Value{}, errors.Wrap(ErrDecode, "missing type id")
	}
	switch out.TypeID {
	case octosql.TypeIDNull, octosql.TypeIDInt, octosql.TypeIDFloat, octosql.TypeIDBoolean,
		octosql.TypeIDString, octosql.TypeIDTime, octosql.TypeIDDuration:
	case octosql.TypeIDList:
		if out.List == nil {
			out.List = []octosql.Value{}
		}
	case octosql.TypeIDStruct:
		if out.Struct == nil {
			out.Struct = []octosql.Value{}
		}
	default:
		return octosql.Value{}, errors.Wrapf(ErrDecode, "invalid type id %d", int(out.TypeID))
	}
	return out, nil
}
