package kprocessor

import (
	"fmt"

	"github.com/birdayz/kflow/kserde"
)

// MessageKind is the kind of a message within a source transaction.
type MessageKind uint8

const (
	KindBegin MessageKind = iota
	KindData
	KindCommit
)

var messageKindNames = map[MessageKind]string{
	KindBegin:  "begin",
	KindData:   "data",
	KindCommit: "commit",
}

func (k MessageKind) String() string {
	if name, ok := messageKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("MessageKind(%d)", uint8(k))
}

func (k MessageKind) MarshalText() ([]byte, error) {
	if _, ok := messageKindNames[k]; !ok {
		return nil, fmt.Errorf("unknown message kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

func (k *MessageKind) UnmarshalText(text []byte) error {
	for kind, name := range messageKindNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown message kind %q", text)
}

// OpKind is the kind of a change carried by a data message.
type OpKind uint8

const (
	OpInsert OpKind = iota
	OpUpdate
	OpDelete
)

var opKindNames = map[OpKind]string{
	OpInsert: "insert",
	OpUpdate: "update",
	OpDelete: "delete",
}

func (k OpKind) String() string {
	if name, ok := opKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("OpKind(%d)", uint8(k))
}

func (k OpKind) MarshalText() ([]byte, error) {
	if _, ok := opKindNames[k]; !ok {
		return nil, fmt.Errorf("unknown op kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

func (k *OpKind) UnmarshalText(text []byte) error {
	for kind, name := range opKindNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown op kind %q", text)
}

// Operation is one row change. Insert carries New, Delete carries Old and
// Update carries both.
type Operation struct {
	Kind OpKind `json:"kind"`
	Key  []byte `json:"key"`
	Old  []byte `json:"old,omitempty"`
	New  []byte `json:"new,omitempty"`
}

// Message is the unit flowing along edges.
//
// Source is stamped by the runtime with the id of the originating source
// stage. Seq is the sequence id of a Data message, or on a Commit the sequence
// id of the last Data message of the transaction. TxID is set on Commit only.
type Message struct {
	Kind   MessageKind `json:"kind"`
	Source string      `json:"source,omitempty"`
	Seq    uint64      `json:"seq"`
	TxID   uint64      `json:"txid,omitempty"`
	Op     *Operation  `json:"op,omitempty"`
}

func Begin() Message {
	return Message{Kind: KindBegin}
}

func Data(seq uint64, op Operation) Message {
	return Message{Kind: KindData, Seq: seq, Op: &op}
}

func Commit(seq, txid uint64) Message {
	return Message{Kind: KindCommit, Seq: seq, TxID: txid}
}

func (m Message) String() string {
	switch m.Kind {
	case KindData:
		return fmt.Sprintf("data(%s#%d)", m.Source, m.Seq)
	case KindCommit:
		return fmt.Sprintf("commit(%s#%d/%d)", m.Source, m.Seq, m.TxID)
	default:
		return fmt.Sprintf("%s(%s)", m.Kind, m.Source)
	}
}

// MessageSerde is the JSON encoding of messages used by connectors that
// persist whole messages.
var MessageSerde = kserde.JSON[Message]()

// EncodeMessage marshals m with MessageSerde.
func EncodeMessage(m Message) ([]byte, error) {
	return MessageSerde.Serializer(m)
}

// DecodeMessage unmarshals a message produced by EncodeMessage.
func DecodeMessage(data []byte) (Message, error) {
	m, err := MessageSerde.Deserializer(data)
	if err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	if m.Kind == KindData && m.Op == nil {
		return Message{}, fmt.Errorf("decode message: data message without operation")
	}
	return m, nil
}
