package rpc

import (
	"fmt"
	"io"

	xdr "github.com/rasky/go-xdr/xdr2"
)

// Kind is the discriminant of a Value.
type Kind uint32

const (
	KindVoid Kind = iota
	KindBool
	KindInt
	KindString
	KindBytes
)

func (k Kind) String() string {
	switch k {
	case KindVoid:
		return "void"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	default:
		return fmt.Sprintf("kind(%d)", uint32(k))
	}
}

// Value is one argument or result. On the wire it is an XDR discriminated
// union: the kind as an unsigned int followed by the arm of that kind.
type Value struct {
	Kind  Kind
	Bool  bool
	Int   int64
	Str   string
	Bytes []byte
}

// Void is the empty value.
func Void() Value { return Value{Kind: KindVoid} }

func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

func Int(i int64) Value { return Value{Kind: KindInt, Int: i} }

func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Bytes carries opaque data, typically a nested XDR document.
func Bytes(b []byte) Value { return Value{Kind: KindBytes, Bytes: b} }

// IsVoid reports whether v is the empty value.
func (v Value) IsVoid() bool { return v.Kind == KindVoid }

// AsBool returns the bool arm of v.
func (v Value) AsBool() (bool, error) {
	if v.Kind != KindBool {
		return false, v.mismatch(KindBool)
	}
	return v.Bool, nil
}

// AsInt returns the int arm of v.
func (v Value) AsInt() (int64, error) {
	if v.Kind != KindInt {
		return 0, v.mismatch(KindInt)
	}
	return v.Int, nil
}

// AsString returns the string arm of v.
func (v Value) AsString() (string, error) {
	if v.Kind != KindString {
		return "", v.mismatch(KindString)
	}
	return v.Str, nil
}

// AsBytes returns the bytes arm of v.
func (v Value) AsBytes() ([]byte, error) {
	if v.Kind != KindBytes {
		return nil, v.mismatch(KindBytes)
	}
	return v.Bytes, nil
}

func (v Value) mismatch(want Kind) error {
	return fmt.Errorf("%w: want %s, got %s", ErrTypeMismatch, want, v.Kind)
}

func (v Value) String() string {
	switch v.Kind {
	case KindVoid:
		return "void"
	case KindBool:
		return fmt.Sprintf("%t", v.Bool)
	case KindInt:
		return fmt.Sprintf("%d", v.Int)
	case KindString:
		return fmt.Sprintf("%q", v.Str)
	case KindBytes:
		return fmt.Sprintf("bytes[%d]", len(v.Bytes))
	default:
		return v.Kind.String()
	}
}

func encodeValue(w io.Writer, v Value) error {
	if _, err := xdr.Marshal(w, uint32(v.Kind)); err != nil {
		return err
	}
	var err error
	switch v.Kind {
	case KindVoid:
	case KindBool:
		_, err = xdr.Marshal(w, v.Bool)
	case KindInt:
		_, err = xdr.Marshal(w, v.Int)
	case KindString:
		_, err = xdr.Marshal(w, v.Str)
	case KindBytes:
		_, err = xdr.Marshal(w, v.Bytes)
	default:
		err = fmt.Errorf("unknown value kind %d", uint32(v.Kind))
	}
	return err
}

func decodeValue(r io.Reader) (Value, error) {
	var kind uint32
	if _, err := xdr.Unmarshal(r, &kind); err != nil {
		return Value{}, err
	}

	v := Value{Kind: Kind(kind)}
	var err error
	switch v.Kind {
	case KindVoid:
	case KindBool:
		_, err = xdr.Unmarshal(r, &v.Bool)
	case KindInt:
		_, err = xdr.Unmarshal(r, &v.Int)
	case KindString:
		var b []byte
		b, err = decodeOpaque(r)
		v.Str = string(b)
	case KindBytes:
		v.Bytes, err = decodeOpaque(r)
	default:
		err = fmt.Errorf("unknown value kind %d", kind)
	}
	return v, err
}

// decodeOpaque reads variable-length opaque data. The declared length is
// checked against what the reader still holds before allocating.
func decodeOpaque(r io.Reader) ([]byte, error) {
	var n uint32
	if _, err := xdr.Unmarshal(r, &n); err != nil {
		return nil, err
	}
	padded := (int64(n) + 3) &^ 3
	if lr, ok := r.(interface{ Len() int }); ok && padded > int64(lr.Len()) {
		return nil, fmt.Errorf("opaque length %d exceeds remaining %d bytes", n, lr.Len())
	}
	if padded > MaxFrameSize {
		return nil, fmt.Errorf("%w: opaque length %d", ErrFrameTooLarge, n)
	}
	buf := make([]byte, padded)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf[:n:n], nil
}
