package execution

import (
	"context"
	"fmt"

	"github.com/birdayz/kflow/kdag"
	"github.com/birdayz/kflow/kprocessor"
)

// ErrorRecovery determines how to handle a processing error
type ErrorRecovery int

const (
	// RecoveryFail cancels the whole pipeline (default behavior)
	RecoveryFail ErrorRecovery = iota
	// RecoverySkip drops the message and keeps the stage running
	RecoverySkip
)

// ErrorHandler is called when a processor or sink fails to process a
// message. Errors raised while forwarding are always fatal.
type ErrorHandler func(ctx context.Context, err *ProcessingError) ErrorRecovery

// DefaultErrorHandler returns RecoveryFail for all errors (fail-fast behavior)
func DefaultErrorHandler() ErrorHandler {
	return func(ctx context.Context, err *ProcessingError) ErrorRecovery {
		return RecoveryFail
	}
}

// ProcessingPhase indicates where in the stage lifecycle an error occurred
type ProcessingPhase string

const (
	PhaseStart   ProcessingPhase = "start"
	PhaseProcess ProcessingPhase = "processing"
	PhaseForward ProcessingPhase = "forward"
	PhaseClose   ProcessingPhase = "close"
)

// ProcessingError wraps an error with stage attribution.
// It identifies which stage failed, in which phase and on which message.
type ProcessingError struct {
	// Cause is the underlying error
	Cause error

	Phase   ProcessingPhase
	StageID kdag.NodeID
	Role    kdag.NodeType

	// The remaining fields are set only when HasMessage is true.
	HasMessage  bool
	Port        kprocessor.PortHandle
	MessageKind kprocessor.MessageKind
	Source      string
	Seq         uint64
}

func (e *ProcessingError) Error() string {
	if !e.HasMessage {
		return fmt.Sprintf("%s error in %s %q: %v", e.Phase, e.Role, e.StageID, e.Cause)
	}
	return fmt.Sprintf("%s error in %s %q (port=%s message=%s source=%s seq=%d): %v",
		e.Phase, e.Role, e.StageID, e.Port, e.MessageKind, e.Source, e.Seq, e.Cause)
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

func newProcessingError(cause error, phase ProcessingPhase, node *kdag.Node) *ProcessingError {
	return &ProcessingError{
		Cause:   cause,
		Phase:   phase,
		StageID: node.ID,
		Role:    node.Type,
	}
}

func (e *ProcessingError) withMessage(port kprocessor.PortHandle, msg kprocessor.Message) *ProcessingError {
	e.HasMessage = true
	e.Port = port
	e.MessageKind = msg.Kind
	e.Source = msg.Source
	e.Seq = msg.Seq
	return e
}

// InitError reports a failed one-time stage setup. No message was delivered.
type InitError struct {
	StageID kdag.NodeID
	Cause   error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("init stage %q: %v", e.StageID, e.Cause)
}

func (e *InitError) Unwrap() error {
	return e.Cause
}
