package kprocessor

import (
	"fmt"
	"slices"
)

// PortHandle identifies an input or output port of a stage.
type PortHandle uint16

// DefaultPortHandle is the handle of the implicit single port of a stage that
// declares DefaultPorts.
const DefaultPortHandle PortHandle = 0xffff

func (h PortHandle) String() string {
	if h == DefaultPortHandle {
		return "default"
	}
	return fmt.Sprintf("%d", uint16(h))
}

// Ports is the port declaration of one side of a stage: either the implicit
// default port or an explicit list of handles.
type Ports struct {
	handles  []PortHandle
	explicit bool
}

// DefaultPorts declares the single implicit port.
func DefaultPorts() Ports {
	return Ports{}
}

// DeclarePorts declares an explicit list of ports. Declaring no handles
// yields a side without ports.
func DeclarePorts(handles ...PortHandle) Ports {
	return Ports{handles: slices.Clone(handles), explicit: true}
}

// NoPorts declares a side without ports, as used by the input side of sources
// and the output side of sinks.
func NoPorts() Ports {
	return DeclarePorts()
}

func (p Ports) IsDefault() bool {
	return !p.explicit
}

// Handles resolves the declaration to concrete handles.
func (p Ports) Handles() []PortHandle {
	if !p.explicit {
		return []PortHandle{DefaultPortHandle}
	}
	return slices.Clone(p.handles)
}

func (p Ports) Contains(h PortHandle) bool {
	return slices.Contains(p.Handles(), h)
}

func (p Ports) String() string {
	if !p.explicit {
		return "[default]"
	}
	return fmt.Sprint(p.handles)
}
