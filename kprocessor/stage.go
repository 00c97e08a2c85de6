package kprocessor

import (
	"context"
	"log/slog"

	"github.com/birdayz/kflow/kcheckpoint"
	"github.com/birdayz/kflow/kstate"
)

// Control tells the runtime whether a stage keeps consuming.
type Control uint8

const (
	Continue Control = iota
	Stop
)

func (c Control) String() string {
	if c == Stop {
		return "stop"
	}
	return "continue"
}

// Target selects the output edges a message is sent on.
type Target struct {
	port      PortHandle
	broadcast bool
}

// Broadcast sends one copy of the message on every output edge of the stage.
var Broadcast = Target{broadcast: true}

// To sends the message on every edge connected to port.
func To(port PortHandle) Target {
	return Target{port: port}
}

// IsBroadcast reports whether t is Broadcast. Port is meaningful only when
// IsBroadcast is false.
func (t Target) IsBroadcast() bool {
	return t.broadcast
}

func (t Target) Port() PortHandle {
	return t.port
}

func (t Target) String() string {
	if t.broadcast {
		return "broadcast"
	}
	return "port " + t.port.String()
}

// Forwarder sends messages downstream. Send blocks while a receiving edge is
// full and returns the context error if ctx is cancelled meanwhile.
type Forwarder interface {
	Send(ctx context.Context, msg Message, target Target) error
}

// StageContext gives a stage access to its identity and to the runtime's
// shared resources.
type StageContext interface {
	StageID() string
	// Env returns the storage environment, or nil when the pipeline runs
	// without one.
	Env() *kstate.Env
	Logger() *slog.Logger
	// DatabaseName scopes a database name to this stage.
	DatabaseName(name string) string
}

type Source interface {
	OutputPorts() Ports
	// Init is called once before Start.
	Init(sc StageContext) error
	// Start produces messages until the source is exhausted, in which case it
	// returns nil, or until ctx is cancelled. from is the last position
	// committed by every durability stage downstream; the source resumes with
	// sequence id from.Next().
	Start(ctx context.Context, fw Forwarder, from kcheckpoint.Position) error
	// Close is called once after Start returned, or after a failed Init of a
	// later stage.
	Close() error
}

type Processor interface {
	InputPorts() Ports
	OutputPorts() Ports
	Init(sc StageContext) error
	Process(ctx context.Context, from PortHandle, msg Message, sc StageContext, fw Forwarder) (Control, error)
	Close() error
}

type Sink interface {
	InputPorts() Ports
	Init(sc StageContext) error
	Process(ctx context.Context, from PortHandle, msg Message, sc StageContext) (Control, error)
	Close() error
}

// Stateful is implemented by stages that require a storage environment.
// Building an app that contains a stage reporting true without configuring an
// environment fails.
type Stateful interface {
	RequiresState() bool
}

// Durable is implemented by stages that persist checkpoints under their
// stage id. A source resumes from the minimum checkpoint over the durable
// stages downstream of it. Durable stages require a storage environment.
type Durable interface {
	Durable() bool
}
