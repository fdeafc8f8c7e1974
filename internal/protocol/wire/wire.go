// Package wire maps signal frames onto the framed TLV contract.
package wire

import (
	"bytes"
	"fmt"
	"io"

	"github.com/danmuck/nodectl/internal/nodeerr"
	"github.com/danmuck/nodectl/internal/protocol/frame"
	"github.com/danmuck/nodectl/internal/protocol/schema"
	"github.com/danmuck/nodectl/internal/protocol/tlv"
	"github.com/danmuck/nodectl/internal/signal"
)

// MaxDepth bounds subframe nesting accepted by the decoder.
const MaxDepth = 32

// MessageType classifies f for the frame header. Replies are replies; a frame
// with a target and a correlation id is a request; anything else is an event.
func MessageType(f *signal.Frame) uint32 {
	switch {
	case f.Reply:
		return schema.MsgReply
	case f.Target != "" && f.CorrelationID != "":
		return schema.MsgRequest
	default:
		return schema.MsgEvent
	}
}

// Encode builds a validated wire frame for f.
func Encode(messageID uint64, f *signal.Frame) (frame.Frame, error) {
	msgType := MessageType(f)
	fields := topFields(f)
	if err := schema.Validate(msgType, fields); err != nil {
		return frame.Frame{}, nodeerr.Wrap(nodeerr.BadArgument, "wire.Encode", err)
	}
	var flags uint32
	if f.Reply {
		flags |= frame.FlagIsResponse
	}
	if f.IsError() {
		flags |= frame.FlagIsError
	}
	return frame.Frame{
		Header: frame.Header{
			MessageID:   messageID,
			MessageType: msgType,
			Flags:       flags,
		},
		Payload: tlv.EncodeFields(fields),
	}, nil
}

// EncodeBytes is Encode followed by frame serialization.
func EncodeBytes(messageID uint64, f *signal.Frame, limits frame.Limits) ([]byte, error) {
	wf, err := Encode(messageID, f)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := frame.WriteFrame(&buf, wf, limits); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write encodes f and writes it as one frame.
func Write(w io.Writer, messageID uint64, f *signal.Frame, limits frame.Limits) error {
	b, err := EncodeBytes(messageID, f, limits)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// Decode parses the payload of a well-delimited frame. Every failure is a
// FrameParseError; the stream itself stays usable.
func Decode(wf frame.Frame) (*signal.Frame, error) {
	fields, err := tlv.DecodeFields(wf.Payload)
	if err != nil {
		return nil, nodeerr.Wrap(nodeerr.FrameParseError, "wire.Decode", err)
	}
	if err := schema.Validate(wf.Header.MessageType, fields); err != nil {
		return nil, nodeerr.Wrap(nodeerr.FrameParseError, "wire.Decode", err)
	}
	out, err := decodeFrame(fields, 0)
	if err != nil {
		return nil, nodeerr.Wrap(nodeerr.FrameParseError, "wire.Decode", err)
	}
	out.Reply = wf.Header.MessageType == schema.MsgReply
	if wf.Header.Flags&frame.FlagIsError != 0 && out.Error == nil {
		out.Error = &signal.ErrorInfo{Kind: string(nodeerr.HandlerFailed)}
	}
	return out, nil
}

// Read reads and decodes one frame. Header errors are returned as-is since
// they leave the stream unsynchronized. Payload errors are FrameParseError;
// the frame returned with them is Salvage of the payload, so callers can
// still address an answer.
func Read(r io.Reader, limits frame.Limits) (*signal.Frame, frame.Header, error) {
	wf, err := frame.ReadFrame(r, limits)
	if err != nil {
		return nil, frame.Header{}, err
	}
	f, err := Decode(wf)
	if err != nil {
		return Salvage(wf.Payload), wf.Header, err
	}
	return f, wf.Header, nil
}

// Salvage recovers target, signal and correlation id from the well-formed
// fields ahead of any damage in payload. Missing fields stay empty.
func Salvage(payload []byte) *signal.Frame {
	out := &signal.Frame{}
	fields, _ := tlv.DecodePrefix(payload)
	for _, f := range fields {
		s, err := f.AsString()
		if err != nil {
			continue
		}
		switch f.ID {
		case schema.FieldTarget:
			out.Target = s
		case schema.FieldSignal:
			out.Signal = s
		case schema.FieldCorrelationID:
			out.CorrelationID = s
		}
	}
	return out
}

func topFields(f *signal.Frame) []tlv.Field {
	fields := make([]tlv.Field, 0, 8+f.Options.Len()+len(f.Subframes))
	addString := func(id uint16, v string) {
		if v != "" {
			fields = append(fields, tlv.String(id, v))
		}
	}
	addString(schema.FieldTarget, f.Target)
	addString(schema.FieldSignal, f.Signal)
	addString(schema.FieldCorrelationID, f.CorrelationID)
	addString(schema.FieldClientID, f.ClientID)
	addString(schema.FieldSender, f.Sender)
	addString(schema.FieldName, f.Name)
	if f.Error != nil {
		fields = append(fields,
			tlv.String(schema.FieldErrorKind, f.Error.Kind),
			tlv.String(schema.FieldErrorMessage, f.Error.Message),
		)
	}
	f.Options.Range(func(name string, v signal.Value) bool {
		fields = append(fields, tlv.Bytes(schema.FieldOption, encodeOption(name, v)))
		return true
	})
	for _, sub := range f.Subframes {
		fields = append(fields, tlv.Bytes(schema.FieldSubframe, tlv.EncodeFields(topFields(sub))))
	}
	return fields
}

func encodeOption(name string, v signal.Value) []byte {
	return tlv.EncodeFields([]tlv.Field{
		tlv.String(schema.OptionName, name),
		tlv.U8(schema.OptionKind, uint8(v.Type)),
		encodeValue(v),
	})
}

func encodeValue(v signal.Value) tlv.Field {
	const id = schema.OptionValue
	switch v.Type {
	case signal.TypeString:
		return tlv.String(id, v.Str)
	case signal.TypeBool:
		return tlv.Bool(id, v.Bool)
	case signal.TypeInt:
		return tlv.I64(id, v.Int)
	case signal.TypeUint:
		return tlv.U64(id, v.Uint)
	case signal.TypeFloat:
		return tlv.F64(id, v.Float)
	}
	elems := make([]tlv.Field, 0, v.Len())
	const el = schema.ArrayElement
	switch v.Type {
	case signal.TypeStringArray:
		for _, s := range v.Strs {
			elems = append(elems, tlv.String(el, s))
		}
	case signal.TypeBoolArray:
		for _, b := range v.Bools {
			elems = append(elems, tlv.Bool(el, b))
		}
	case signal.TypeIntArray:
		for _, n := range v.Ints {
			elems = append(elems, tlv.I64(el, n))
		}
	case signal.TypeUintArray:
		for _, n := range v.Uints {
			elems = append(elems, tlv.U64(el, n))
		}
	case signal.TypeFloatArray:
		for _, n := range v.Floats {
			elems = append(elems, tlv.F64(el, n))
		}
	}
	return tlv.Bytes(id, tlv.EncodeFields(elems))
}

func decodeFrame(fields []tlv.Field, depth int) (*signal.Frame, error) {
	if depth > MaxDepth {
		return nil, fmt.Errorf("subframes nested deeper than %d", MaxDepth)
	}
	out := &signal.Frame{}
	var errKind, errMsg string
	var hasErr bool
	for _, f := range fields {
		switch f.ID {
		case schema.FieldTarget, schema.FieldSignal, schema.FieldCorrelationID,
			schema.FieldClientID, schema.FieldSender, schema.FieldName,
			schema.FieldErrorKind, schema.FieldErrorMessage:
			s, err := f.AsString()
			if err != nil {
				return nil, err
			}
			switch f.ID {
			case schema.FieldTarget:
				out.Target = s
			case schema.FieldSignal:
				out.Signal = s
			case schema.FieldCorrelationID:
				out.CorrelationID = s
			case schema.FieldClientID:
				out.ClientID = s
			case schema.FieldSender:
				out.Sender = s
			case schema.FieldName:
				out.Name = s
			case schema.FieldErrorKind:
				errKind, hasErr = s, true
			case schema.FieldErrorMessage:
				errMsg, hasErr = s, true
			}
		case schema.FieldOption:
			if err := tlv.MustType(f, tlv.TypeBytes); err != nil {
				return nil, err
			}
			name, v, err := decodeOption(f.Value)
			if err != nil {
				return nil, err
			}
			out.Options.Set(name, v)
		case schema.FieldSubframe:
			if err := tlv.MustType(f, tlv.TypeBytes); err != nil {
				return nil, err
			}
			subFields, err := tlv.DecodeFields(f.Value)
			if err != nil {
				return nil, err
			}
			sub, err := decodeFrame(subFields, depth+1)
			if err != nil {
				return nil, err
			}
			out.AddSubframe(sub)
		}
	}
	if hasErr {
		out.Error = &signal.ErrorInfo{Kind: errKind, Message: errMsg}
	}
	return out, nil
}

func decodeOption(b []byte) (string, signal.Value, error) {
	fields, err := tlv.DecodeFields(b)
	if err != nil {
		return "", signal.Value{}, err
	}
	nameField, ok := tlv.GetField(fields, schema.OptionName)
	if !ok {
		return "", signal.Value{}, fmt.Errorf("option without name")
	}
	name, err := nameField.AsString()
	if err != nil {
		return "", signal.Value{}, err
	}
	kindField, ok := tlv.GetField(fields, schema.OptionKind)
	if !ok {
		return "", signal.Value{}, fmt.Errorf("option %q without kind", name)
	}
	k, err := kindField.AsU8()
	if err != nil {
		return "", signal.Value{}, err
	}
	kind := signal.ValueType(k)
	if !kind.Valid() {
		return "", signal.Value{}, fmt.Errorf("option %q has unknown kind %d", name, k)
	}
	valField, ok := tlv.GetField(fields, schema.OptionValue)
	if !ok {
		return "", signal.Value{}, fmt.Errorf("option %q without value", name)
	}
	v, err := decodeValue(kind, valField)
	if err != nil {
		return "", signal.Value{}, fmt.Errorf("option %q: %w", name, err)
	}
	return name, v, nil
}

func decodeValue(kind signal.ValueType, f tlv.Field) (signal.Value, error) {
	switch kind {
	case signal.TypeString:
		s, err := f.AsString()
		return signal.StringValue(s), err
	case signal.TypeBool:
		b, err := f.AsBool()
		return signal.BoolValue(b), err
	case signal.TypeInt:
		n, err := f.AsI64()
		return signal.IntValue(n), err
	case signal.TypeUint:
		n, err := f.AsU64()
		return signal.UintValue(n), err
	case signal.TypeFloat:
		n, err := f.AsF64()
		return signal.FloatValue(n), err
	}

	if err := tlv.MustType(f, tlv.TypeBytes); err != nil {
		return signal.Value{}, err
	}
	elems, err := tlv.DecodeFields(f.Value)
	if err != nil {
		return signal.Value{}, err
	}
	switch kind {
	case signal.TypeStringArray:
		out := make([]string, 0, len(elems))
		for _, e := range elems {
			s, err := e.AsString()
			if err != nil {
				return signal.Value{}, err
			}
			out = append(out, s)
		}
		return signal.StringsValue(out), nil
	case signal.TypeBoolArray:
		out := make([]bool, 0, len(elems))
		for _, e := range elems {
			b, err := e.AsBool()
			if err != nil {
				return signal.Value{}, err
			}
			out = append(out, b)
		}
		return signal.BoolsValue(out), nil
	case signal.TypeIntArray:
		out := make([]int64, 0, len(elems))
		for _, e := range elems {
			n, err := e.AsI64()
			if err != nil {
				return signal.Value{}, err
			}
			out = append(out, n)
		}
		return signal.IntsValue(out), nil
	case signal.TypeUintArray:
		out := make([]uint64, 0, len(elems))
		for _, e := range elems {
			n, err := e.AsU64()
			if err != nil {
				return signal.Value{}, err
			}
			out = append(out, n)
		}
		return signal.UintsValue(out), nil
	case signal.TypeFloatArray:
		out := make([]float64, 0, len(elems))
		for _, e := range elems {
			n, err := e.AsF64()
			if err != nil {
				return signal.Value{}, err
			}
			out = append(out, n)
		}
		return signal.FloatsValue(out), nil
	}
	return signal.Value{}, fmt.Errorf("unsupported kind %s", kind)
}
