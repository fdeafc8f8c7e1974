package schema

import (
	"fmt"

	"github.com/danmuck/nodectl/internal/protocol/tlv"
	"github.com/rs/zerolog/log"
)

// Message type IDs.
const (
	MsgRequest uint32 = 1
	MsgReply   uint32 = 2
	MsgEvent   uint32 = 3
)

// Top-level field IDs of a signal frame payload.
const (
	FieldTarget        uint16 = 1
	FieldSignal        uint16 = 2
	FieldCorrelationID uint16 = 3
	FieldClientID      uint16 = 4
	FieldSender        uint16 = 5
	FieldName          uint16 = 6

	FieldOption   uint16 = 10
	FieldSubframe uint16 = 11

	FieldErrorKind    uint16 = 20
	FieldErrorMessage uint16 = 21
)

// Field IDs inside one FieldOption value.
const (
	OptionName  uint16 = 1
	OptionKind  uint16 = 2
	OptionValue uint16 = 3

	// ArrayElement tags each element of an array option value.
	ArrayElement uint16 = 0
)

type Requirement struct {
	ID   uint16
	Type uint8
}

type ValidationError struct {
	MessageType uint32
	FieldID     uint16
	Reason      string
}

func (e ValidationError) Error() string {
	if e.FieldID == 0 {
		return fmt.Sprintf("schema: message_type=%d: %s", e.MessageType, e.Reason)
	}
	return fmt.Sprintf("schema: message_type=%d field=%d: %s", e.MessageType, e.FieldID, e.Reason)
}

var requirements = map[uint32][]Requirement{
	MsgRequest: {
		{FieldTarget, tlv.TypeString},
		{FieldSignal, tlv.TypeString},
		{FieldCorrelationID, tlv.TypeString},
	},
	MsgReply: {
		{FieldCorrelationID, tlv.TypeString},
	},
	MsgEvent: {
		{FieldSignal, tlv.TypeString},
	},
}

// Validate enforces required fields and required field types for a message type.
// Unknown fields are ignored.
func Validate(messageType uint32, fields []tlv.Field) error {
	log.Debug().Uint32("message_type", messageType).Int("fields", len(fields)).Msg("schema.Validate")
	reqs, ok := requirements[messageType]
	if !ok {
		log.Error().Uint32("message_type", messageType).Msg("schema.Validate unknown message_type")
		return ValidationError{MessageType: messageType, Reason: "unknown message_type"}
	}
	for _, req := range reqs {
		f, found := tlv.GetField(fields, req.ID)
		if !found {
			log.Error().
				Uint32("message_type", messageType).
				Uint16("field_id", req.ID).
				Msg("schema.Validate missing field")
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "missing required field"}
		}
		if f.Type != req.Type {
			log.Error().
				Uint32("message_type", messageType).
				Uint16("field_id", req.ID).
				Uint8("got", f.Type).
				Uint8("want", req.Type).
				Msg("schema.Validate type mismatch")
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "type mismatch"}
		}
	}
	return nil
}
