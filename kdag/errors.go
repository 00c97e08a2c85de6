package kdag

import "errors"

// Sentinel errors for common failure cases.
var (
	ErrNodeAlreadyExists = errors.New("node already exists")
	ErrNodeNotFound      = errors.New("node not found")
	ErrPortNotFound      = errors.New("port not declared")
	ErrDuplicatePort     = errors.New("duplicate port handle")
	ErrCycleDetected     = errors.New("cycle detected in DAG")
	ErrOrphanedNodes     = errors.New("orphaned nodes found")
	ErrInvalidNodeID     = errors.New("invalid node ID")
	ErrInvalidTopology   = errors.New("invalid topology")
)

// GraphError is returned for every invalid stage or edge declaration.
type GraphError struct {
	Err error
}

func (e *GraphError) Error() string {
	return "graph error: " + e.Err.Error()
}

func (e *GraphError) Unwrap() error {
	return e.Err
}

func graphErr(err error) error {
	if err == nil {
		return nil
	}
	var ge *GraphError
	if errors.As(err, &ge) {
		return err
	}
	return &GraphError{Err: err}
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
