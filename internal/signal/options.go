package signal

import (
	"github.com/danmuck/nodectl/internal/nodeerr"
)

// Options is an insertion-ordered set of named values. The zero value is ready to use.
type Options struct {
	keys []string
	vals map[string]Value
}

// NewOptions returns an empty option set.
func NewOptions() *Options {
	return &Options{vals: make(map[string]Value)}
}

// Set inserts or replaces name. Replacing keeps the original position.
func (o *Options) Set(name string, v Value) {
	if o.vals == nil {
		o.vals = make(map[string]Value)
	}
	if _, ok := o.vals[name]; !ok {
		o.keys = append(o.keys, name)
	}
	o.vals[name] = v.Clone()
}

func (o *Options) SetString(name, v string) {
	o.Set(name, StringValue(v))
}

func (o *Options) SetBool(name string, v bool) {
	o.Set(name, BoolValue(v))
}

func (o *Options) SetInt(name string, v int64) {
	o.Set(name, IntValue(v))
}

func (o *Options) SetUint(name string, v uint64) {
	o.Set(name, UintValue(v))
}

func (o *Options) SetFloat(name string, v float64) {
	o.Set(name, FloatValue(v))
}

func (o *Options) SetStrings(name string, v []string) {
	o.Set(name, StringsValue(v))
}

func (o *Options) SetInts(name string, v []int64) {
	o.Set(name, IntsValue(v))
}

func (o *Options) SetFloats(name string, v []float64) {
	o.Set(name, FloatsValue(v))
}

// Get returns the value stored under name.
func (o *Options) Get(name string) (Value, bool) {
	if o == nil || o.vals == nil {
		return Value{}, false
	}
	v, ok := o.vals[name]
	if !ok {
		return Value{}, false
	}
	return v.Clone(), true
}

func (o *Options) Has(name string) bool {
	_, ok := o.Get(name)
	return ok
}

// Delete removes name and reports whether it was present.
func (o *Options) Delete(name string) bool {
	if o == nil || o.vals == nil {
		return false
	}
	if _, ok := o.vals[name]; !ok {
		return false
	}
	delete(o.vals, name)
	for i, k := range o.keys {
		if k == name {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
	return true
}

// Names returns option names in insertion order.
func (o *Options) Names() []string {
	if o == nil {
		return nil
	}
	return append([]string(nil), o.keys...)
}

func (o *Options) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Range visits options in insertion order until fn returns false.
func (o *Options) Range(fn func(name string, v Value) bool) {
	if o == nil {
		return
	}
	for _, k := range o.keys {
		if !fn(k, o.vals[k]) {
			return
		}
	}
}

// Clone returns a deep copy.
func (o *Options) Clone() *Options {
	out := NewOptions()
	o.Range(func(name string, v Value) bool {
		out.Set(name, v)
		return true
	})
	return out
}

// Merge copies every option of src into o.
func (o *Options) Merge(src *Options) {
	src.Range(func(name string, v Value) bool {
		o.Set(name, v)
		return true
	})
}

func (o *Options) typed(name string, want ValueType) (Value, error) {
	v, ok := o.Get(name)
	if !ok {
		return Value{}, nodeerr.New(nodeerr.BadArgument, "signal.Options", "missing option %q", name)
	}
	if v.Type != want {
		return Value{}, nodeerr.New(
			nodeerr.BadArgument,
			"signal.Options",
			"option %q is %s, want %s",
			name,
			v.Type,
			want,
		)
	}
	return v, nil
}

func (o *Options) String(name string) (string, error) {
	v, err := o.typed(name, TypeString)
	return v.Str, err
}

func (o *Options) Bool(name string) (bool, error) {
	v, err := o.typed(name, TypeBool)
	return v.Bool, err
}

// Int accepts int and uint values that fit in an int64.
func (o *Options) Int(name string) (int64, error) {
	v, ok := o.Get(name)
	if ok && v.Type == TypeUint && v.Uint <= 1<<63-1 {
		return int64(v.Uint), nil
	}
	v, err := o.typed(name, TypeInt)
	return v.Int, err
}

func (o *Options) Uint(name string) (uint64, error) {
	v, ok := o.Get(name)
	if ok && v.Type == TypeInt && v.Int >= 0 {
		return uint64(v.Int), nil
	}
	v, err := o.typed(name, TypeUint)
	return v.Uint, err
}

// Float accepts int and uint values as well.
func (o *Options) Float(name string) (float64, error) {
	v, ok := o.Get(name)
	if ok {
		switch v.Type {
		case TypeInt:
			return float64(v.Int), nil
		case TypeUint:
			return float64(v.Uint), nil
		}
	}
	v, err := o.typed(name, TypeFloat)
	return v.Float, err
}

func (o *Options) Strings(name string) ([]string, error) {
	v, err := o.typed(name, TypeStringArray)
	return v.Strs, err
}

func (o *Options) Ints(name string) ([]int64, error) {
	v, err := o.typed(name, TypeIntArray)
	return v.Ints, err
}

func (o *Options) Floats(name string) ([]float64, error) {
	v, err := o.typed(name, TypeFloatArray)
	return v.Floats, err
}

// StringOr returns the string option or def when it is absent.
func (o *Options) StringOr(name, def string) (string, error) {
	if !o.Has(name) {
		return def, nil
	}
	return o.String(name)
}

// BoolOr returns the bool option or def when it is absent.
func (o *Options) BoolOr(name string, def bool) (bool, error) {
	if !o.Has(name) {
		return def, nil
	}
	return o.Bool(name)
}
