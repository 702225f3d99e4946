package execution

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/cube2222/octoudf/octosql"
)

// ChangeKind describes what a record means for an incrementally maintained result.
type ChangeKind int8

const (
	ChangeKindInsert ChangeKind = iota
	ChangeKindUpdateBefore
	ChangeKindUpdateAfter
	ChangeKindDelete
)

var ChangeKinds = []ChangeKind{
	ChangeKindInsert,
	ChangeKindUpdateBefore,
	ChangeKindUpdateAfter,
	ChangeKindDelete,
}

// IsRetraction is true for kinds which remove a previously emitted row.
func (k ChangeKind) IsRetraction() bool {
	return k == ChangeKindUpdateBefore || k == ChangeKindDelete
}

func (k ChangeKind) ShortString() string {
	switch k {
	case ChangeKindInsert:
		return "+I"
	case ChangeKindUpdateBefore:
		return "-U"
	case ChangeKindUpdateAfter:
		return "+U"
	case ChangeKindDelete:
		return "-D"
	}
	return fmt.Sprintf("?%d", int(k))
}

func (k ChangeKind) String() string {
	switch k {
	case ChangeKindInsert:
		return "INSERT"
	case ChangeKindUpdateBefore:
		return "UPDATE_BEFORE"
	case ChangeKindUpdateAfter:
		return "UPDATE_AFTER"
	case ChangeKindDelete:
		return "DELETE"
	}
	return fmt.Sprintf("ChangeKind(%d)", int(k))
}

// ParseChangeKind accepts both the short (+I, -U, +U, -D) and the long form.
func ParseChangeKind(text string) (ChangeKind, error) {
	for _, kind := range ChangeKinds {
		if text == kind.ShortString() || strings.EqualFold(text, kind.String()) {
			return kind, nil
		}
	}
	return 0, errors.Errorf("unknown change kind '%s'", text)
}

type Record struct {
	Values     []octosql.Value
	ChangeKind ChangeKind
}

func NewRecord(values []octosql.Value, changeKind ChangeKind) Record {
	return Record{
		Values:     values,
		ChangeKind: changeKind,
	}
}

func (record Record) String() string {
	builder := strings.Builder{}
	builder.WriteString(record.ChangeKind.ShortString())
	builder.WriteString("{")
	for i := range record.Values {
		builder.WriteString(record.Values[i].String())
		if i != len(record.Values)-1 {
			builder.WriteString(", ")
		}
	}
	builder.WriteString("}")
	return builder.String()
}
