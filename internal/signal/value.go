package signal

import (
	"fmt"
	"strconv"
	"strings"
)

// ValueType tags the payload held by a Value. The numeric ids are part of the
// wire contract.
type ValueType uint8

const (
	TypeString ValueType = iota + 1
	TypeBool
	TypeInt
	TypeUint
	TypeFloat
	TypeStringArray
	TypeBoolArray
	TypeIntArray
	TypeUintArray
	TypeFloatArray
)

func (t ValueType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeBool:
		return "bool"
	case TypeInt:
		return "int"
	case TypeUint:
		return "uint"
	case TypeFloat:
		return "float"
	case TypeStringArray:
		return "array[string]"
	case TypeBoolArray:
		return "array[bool]"
	case TypeIntArray:
		return "array[int]"
	case TypeUintArray:
		return "array[uint]"
	case TypeFloatArray:
		return "array[float]"
	default:
		return "unknown"
	}
}

// IsArray reports whether t is one of the array types.
func (t ValueType) IsArray() bool {
	return t >= TypeStringArray && t <= TypeFloatArray
}

// Valid reports whether t is a known type id.
func (t ValueType) Valid() bool {
	return t >= TypeString && t <= TypeFloatArray
}

// Value is one typed scalar or array. Only the field matching Type is meaningful.
type Value struct {
	Type   ValueType
	Str    string
	Bool   bool
	Int    int64
	Uint   uint64
	Float  float64
	Strs   []string
	Bools  []bool
	Ints   []int64
	Uints  []uint64
	Floats []float64
}

func StringValue(v string) Value { return Value{Type: TypeString, Str: v} }

func BoolValue(v bool) Value { return Value{Type: TypeBool, Bool: v} }

func IntValue(v int64) Value { return Value{Type: TypeInt, Int: v} }

func UintValue(v uint64) Value { return Value{Type: TypeUint, Uint: v} }

func FloatValue(v float64) Value { return Value{Type: TypeFloat, Float: v} }

func StringsValue(v []string) Value {
	return Value{Type: TypeStringArray, Strs: append([]string{}, v...)}
}

func BoolsValue(v []bool) Value {
	return Value{Type: TypeBoolArray, Bools: append([]bool{}, v...)}
}

func IntsValue(v []int64) Value {
	return Value{Type: TypeIntArray, Ints: append([]int64{}, v...)}
}

func UintsValue(v []uint64) Value {
	return Value{Type: TypeUintArray, Uints: append([]uint64{}, v...)}
}

func FloatsValue(v []float64) Value {
	return Value{Type: TypeFloatArray, Floats: append([]float64{}, v...)}
}

// Len returns the element count of an array value, 1 for scalars.
func (v Value) Len() int {
	switch v.Type {
	case TypeStringArray:
		return len(v.Strs)
	case TypeBoolArray:
		return len(v.Bools)
	case TypeIntArray:
		return len(v.Ints)
	case TypeUintArray:
		return len(v.Uints)
	case TypeFloatArray:
		return len(v.Floats)
	default:
		return 1
	}
}

// Clone returns a deep copy.
func (v Value) Clone() Value {
	out := v
	if v.Strs != nil {
		out.Strs = append([]string(nil), v.Strs...)
	}
	if v.Bools != nil {
		out.Bools = append([]bool(nil), v.Bools...)
	}
	if v.Ints != nil {
		out.Ints = append([]int64(nil), v.Ints...)
	}
	if v.Uints != nil {
		out.Uints = append([]uint64(nil), v.Uints...)
	}
	if v.Floats != nil {
		out.Floats = append([]float64(nil), v.Floats...)
	}
	return out
}

// String renders v for logs and listings. Array elements are joined with " ; ".
func (v Value) String() string {
	switch v.Type {
	case TypeString:
		return v.Str
	case TypeBool:
		return strconv.FormatBool(v.Bool)
	case TypeInt:
		return strconv.FormatInt(v.Int, 10)
	case TypeUint:
		return strconv.FormatUint(v.Uint, 10)
	case TypeFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case TypeStringArray:
		return strings.Join(v.Strs, " ; ")
	case TypeBoolArray:
		return joinFormatted(len(v.Bools), func(i int) string { return strconv.FormatBool(v.Bools[i]) })
	case TypeIntArray:
		return joinFormatted(len(v.Ints), func(i int) string { return strconv.FormatInt(v.Ints[i], 10) })
	case TypeUintArray:
		return joinFormatted(len(v.Uints), func(i int) string { return strconv.FormatUint(v.Uints[i], 10) })
	case TypeFloatArray:
		return joinFormatted(len(v.Floats), func(i int) string {
			return strconv.FormatFloat(v.Floats[i], 'g', -1, 64)
		})
	default:
		return fmt.Sprintf("<%s>", v.Type)
	}
}

func joinFormatted(n int, at func(int) string) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = at(i)
	}
	return strings.Join(parts, " ; ")
}
