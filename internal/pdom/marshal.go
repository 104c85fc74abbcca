package pdom

import (
	"encoding/binary"
	"fmt"

	"github.com/jward/pdom/internal/database"
	"github.com/jward/pdom/internal/sema"
)

// Marshalled type kinds: the low byte of the two-byte header of every encoded
// type. The high byte carries kind-specific flags.
const (
	marshalNull      byte = 0
	marshalBasic     byte = 1
	marshalPointer   byte = 2
	marshalArray     byte = 3
	marshalQualifier byte = 4
	marshalFunction  byte = 5
	marshalBinding   byte = 6
	marshalProblem   byte = 7
)

const (
	flagVarargs byte = 1 << 0

	// maxMarshalDepth bounds nesting; deeper types encode as problems.
	maxMarshalDepth = 64
)

// BindingResolver maps named types to binding records and back.
type BindingResolver interface {
	RecordForType(t sema.NamedType) (database.Ptr, error)
	TypeForRecord(rec database.Ptr) sema.Type
}

// TypeMarshalBuffer encodes structural types into a compact byte form.
// Named types are stored as binding record references.
type TypeMarshalBuffer struct {
	resolver BindingResolver
	buf      []byte
	pos      int
}

// NewTypeMarshalBuffer returns a buffer reading data (nil for writing).
func NewTypeMarshalBuffer(r BindingResolver, data []byte) *TypeMarshalBuffer {
	return &TypeMarshalBuffer{resolver: r, buf: data}
}

// Bytes returns the encoded data.
func (b *TypeMarshalBuffer) Bytes() []byte { return b.buf }

func (b *TypeMarshalBuffer) putHeader(kind, flags byte) {
	b.buf = binary.LittleEndian.AppendUint16(b.buf, uint16(kind)|uint16(flags)<<8)
}

// MarshalType appends the encoding of t.
func (b *TypeMarshalBuffer) MarshalType(t sema.Type) error {
	return b.marshal(t, 0)
}

func (b *TypeMarshalBuffer) marshal(t sema.Type, depth int) error {
	if depth >= maxMarshalDepth {
		return b.marshalProblem("type nested too deeply")
	}
	switch t := t.(type) {
	case nil:
		b.putHeader(marshalNull, 0)
	case *sema.BasicType:
		b.putHeader(marshalBasic, 0)
		b.buf = append(b.buf, byte(t.Kind))
		b.buf = binary.AppendUvarint(b.buf, uint64(t.Flags))
	case *sema.PointerType:
		b.putHeader(marshalPointer, EncodeCV(t.Const, t.Volatile, t.Restrict))
		return b.marshal(t.Elem, depth+1)
	case *sema.ArrayType:
		b.putHeader(marshalArray, 0)
		b.buf = binary.AppendVarint(b.buf, t.Size)
		return b.marshal(t.Elem, depth+1)
	case *sema.QualifierType:
		b.putHeader(marshalQualifier, EncodeCV(t.Const, t.Volatile, false))
		return b.marshal(t.Elem, depth+1)
	case *sema.FunctionType:
		var flags byte
		if t.Varargs {
			flags |= flagVarargs
		}
		b.putHeader(marshalFunction, flags)
		if err := b.marshal(t.Return, depth+1); err != nil {
			return err
		}
		b.buf = binary.AppendUvarint(b.buf, uint64(len(t.Params)))
		for _, p := range t.Params {
			if err := b.marshal(p, depth+1); err != nil {
				return err
			}
		}
	case *sema.ProblemType:
		return b.marshalProblem(t.Reason)
	case sema.NamedType:
		rec, err := b.resolver.RecordForType(t)
		if err != nil {
			return err
		}
		if rec == 0 {
			b.putHeader(marshalNull, 0)
			return nil
		}
		b.putHeader(marshalBinding, 0)
		b.buf = binary.AppendUvarint(b.buf, uint64(rec))
	default:
		return b.marshalProblem(fmt.Sprintf("unsupported type %T", t))
	}
	return nil
}

func (b *TypeMarshalBuffer) marshalProblem(reason string) error {
	b.putHeader(marshalProblem, 0)
	b.buf = binary.AppendUvarint(b.buf, uint64(len(reason)))
	b.buf = append(b.buf, reason...)
	return nil
}

// UnmarshalType decodes the next type. Unknown kinds and unreadable binding
// references decode as *sema.ProblemType; truncated input is an error.
func (b *TypeMarshalBuffer) UnmarshalType() (sema.Type, error) {
	return b.unmarshal(0)
}

func (b *TypeMarshalBuffer) unmarshal(depth int) (sema.Type, error) {
	if depth > maxMarshalDepth {
		return nil, errTruncated
	}
	if b.pos+2 > len(b.buf) {
		return nil, errTruncated
	}
	h := binary.LittleEndian.Uint16(b.buf[b.pos:])
	b.pos += 2
	kind, flags := byte(h), byte(h>>8)

	switch kind {
	case marshalNull:
		return nil, nil
	case marshalBasic:
		if b.pos >= len(b.buf) {
			return nil, errTruncated
		}
		k := sema.BasicKind(b.buf[b.pos])
		b.pos++
		f, err := b.uvarint()
		if err != nil {
			return nil, err
		}
		return &sema.BasicType{Kind: k, Flags: sema.BasicFlags(f)}, nil
	case marshalPointer:
		elem, err := b.unmarshal(depth + 1)
		if err != nil {
			return nil, err
		}
		c, v, r := DecodeCV(flags)
		return &sema.PointerType{Elem: elem, Const: c, Volatile: v, Restrict: r}, nil
	case marshalArray:
		size, n := binary.Varint(b.buf[b.pos:])
		if n <= 0 {
			return nil, errTruncated
		}
		b.pos += n
		elem, err := b.unmarshal(depth + 1)
		if err != nil {
			return nil, err
		}
		return &sema.ArrayType{Elem: elem, Size: size}, nil
	case marshalQualifier:
		elem, err := b.unmarshal(depth + 1)
		if err != nil {
			return nil, err
		}
		c, v, _ := DecodeCV(flags)
		return &sema.QualifierType{Elem: elem, Const: c, Volatile: v}, nil
	case marshalFunction:
		ret, err := b.unmarshal(depth + 1)
		if err != nil {
			return nil, err
		}
		n, err := b.uvarint()
		if err != nil {
			return nil, err
		}
		if n > uint64(len(b.buf)) {
			return nil, errTruncated
		}
		ft := &sema.FunctionType{Return: ret, Varargs: flags&flagVarargs != 0}
		for i := uint64(0); i < n; i++ {
			p, err := b.unmarshal(depth + 1)
			if err != nil {
				return nil, err
			}
			ft.Params = append(ft.Params, p)
		}
		return ft, nil
	case marshalBinding:
		rec, err := b.uvarint()
		if err != nil {
			return nil, err
		}
		return b.resolver.TypeForRecord(database.Ptr(rec)), nil
	case marshalProblem:
		n, err := b.uvarint()
		if err != nil {
			return nil, err
		}
		if uint64(len(b.buf)-b.pos) < n {
			return nil, errTruncated
		}
		reason := string(b.buf[b.pos : b.pos+int(n)])
		b.pos += int(n)
		return &sema.ProblemType{Reason: reason}, nil
	}
	return &sema.ProblemType{Reason: fmt.Sprintf("unknown type kind %d", kind)}, nil
}

func (b *TypeMarshalBuffer) uvarint() (uint64, error) {
	v, n := binary.Uvarint(b.buf[b.pos:])
	if n <= 0 {
		return 0, errTruncated
	}
	b.pos += n
	return v, nil
}

var errTruncated = &database.StorageError{Op: "unmarshal type", Err: database.ErrCorruptOffset}
