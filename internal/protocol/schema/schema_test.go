package schema

import (
	"errors"
	"testing"

	"github.com/danmuck/nodectl/internal/protocol/tlv"
	"github.com/danmuck/nodectl/internal/testutil/testlog"
)

func requestFields() []tlv.Field {
	return []tlv.Field{
		tlv.String(FieldTarget, "/root/solver"),
		tlv.String(FieldSignal, "solve"),
		tlv.String(FieldCorrelationID, "c1"),
	}
}

func TestValidateRequestRequiredFields(t *testing.T) {
	testlog.Start(t)
	if err := Validate(MsgRequest, requestFields()); err != nil {
		t.Fatalf("validate request: %v", err)
	}
}

func TestValidateUnknownFieldsIgnored(t *testing.T) {
	testlog.Start(t)
	fields := append(requestFields(), tlv.Field{ID: 9999, Type: tlv.TypeBytes, Value: []byte{0x01}})
	if err := Validate(MsgRequest, fields); err != nil {
		t.Fatalf("validate with unknown field: %v", err)
	}
}

func TestValidateMissingRequiredDeterministic(t *testing.T) {
	testlog.Start(t)
	fields := []tlv.Field{tlv.String(FieldTarget, "/root")}
	err := Validate(MsgRequest, fields)
	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if ve.FieldID != FieldSignal || ve.Reason != "missing required field" {
		t.Fatalf("unexpected validation error: %+v", ve)
	}
}

func TestValidateTypeMismatchDeterministic(t *testing.T) {
	testlog.Start(t)
	fields := []tlv.Field{
		tlv.String(FieldTarget, "/root"),
		tlv.String(FieldSignal, "list_tree"),
		tlv.U64(FieldCorrelationID, 1),
	}
	err := Validate(MsgRequest, fields)
	var ve ValidationError
	if !errors.As(err, &ve) || ve.FieldID != FieldCorrelationID || ve.Reason != "type mismatch" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateUnknownMessageType(t *testing.T) {
	testlog.Start(t)
	err := Validate(77, nil)
	var ve ValidationError
	if !errors.As(err, &ve) || ve.Reason != "unknown message_type" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateEventAndReply(t *testing.T) {
	testlog.Start(t)
	if err := Validate(MsgEvent, []tlv.Field{tlv.String(FieldSignal, "message")}); err != nil {
		t.Fatalf("event: %v", err)
	}
	if err := Validate(MsgReply, []tlv.Field{tlv.String(FieldCorrelationID, "c1")}); err != nil {
		t.Fatalf("reply: %v", err)
	}
}
