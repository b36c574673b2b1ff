// Package wire defines the messages exchanged between a buoy and the hub.
package wire

import (
	"errors"
	"fmt"

	"github.com/golang/protobuf/proto"
)

// TypeID masks
const (
	TypeIDMaskKind  uint32 = 0x80000000
	TypeIDMaskGroup uint32 = 0x7fff0000
	TypeIDMaskID    uint32 = 0x0000ffff
)

// Message Kinds
const (
	TypeIDKindCommand uint32 = 0x00000000
	TypeIDKindEvent   uint32 = 0x80000000
)

// Groups
const (
	GroupMotion uint32 = 0x00010000
	GroupDevice uint32 = 0x00020000
)

// Type IDs
const (
	AxlPacketTypeID uint32 = TypeIDKindEvent | GroupMotion | 0x0001
	LogEntryTypeID  uint32 = TypeIDKindEvent | GroupDevice | 0x0001
	StatusTypeID    uint32 = TypeIDKindEvent | GroupDevice | 0x0002
	MetaTypeID      uint32 = TypeIDKindEvent | GroupDevice | 0x0003
)

// ErrUnknownType indicates unknown type id.
type ErrUnknownType struct {
	TypeID uint32
}

// Error implements error.
func (e *ErrUnknownType) Error() string {
	return fmt.Sprintf("unknown type: %x", e.TypeID)
}

// ErrNotTyped indicates the message has no registered type id.
var ErrNotTyped = errors.New("message type not registered")

// MessageTypes maps type IDs to message constructors.
var MessageTypes = map[uint32]func() proto.Message{
	AxlPacketTypeID: func() proto.Message { return &AxlPacket{} },
	LogEntryTypeID:  func() proto.Message { return &LogEntry{} },
	StatusTypeID:    func() proto.Message { return &Status{} },
	MetaTypeID:      func() proto.Message { return &Meta{} },
}

// TypeIDOf returns the type id of msg.
func TypeIDOf(msg proto.Message) (uint32, error) {
	switch msg.(type) {
	case *AxlPacket:
		return AxlPacketTypeID, nil
	case *LogEntry:
		return LogEntryTypeID, nil
	case *Status:
		return StatusTypeID, nil
	case *Meta:
		return MetaTypeID, nil
	}
	return 0, ErrNotTyped
}

// TypedFrom wraps msg in a Typed envelope.
func TypedFrom(msg proto.Message) (*Typed, error) {
	typeID, err := TypeIDOf(msg)
	if err != nil {
		return nil, err
	}
	data, err := proto.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return &Typed{TypeId: typeID, Message: data}, nil
}

// Encode encodes msg wrapped in a Typed envelope.
func Encode(msg proto.Message) ([]byte, error) {
	typed, err := TypedFrom(msg)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(typed)
}

// Decode decodes the envelope into the actual message.
func (m *Typed) Decode() (proto.Message, error) {
	fn, ok := MessageTypes[m.TypeId]
	if !ok {
		return nil, &ErrUnknownType{TypeID: m.TypeId}
	}
	msg := fn()
	if err := proto.Unmarshal(m.Message, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// Decode decodes bytes produced by Encode.
func Decode(data []byte) (proto.Message, error) {
	var typed Typed
	if err := proto.Unmarshal(data, &typed); err != nil {
		return nil, err
	}
	return typed.Decode()
}
