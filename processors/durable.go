package processors

import "github.com/birdayz/kflow/kcommit"

// ErrEnvRequired is returned by Init of a durable stage running without a
// storage environment.
var ErrEnvRequired = kcommit.ErrEnvRequired

// durable marks a stage that checkpoints through a kcommit.Guard.
type durable struct{}

func (durable) RequiresState() bool { return true }
func (durable) Durable() bool       { return true }
