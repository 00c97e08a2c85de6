// Package kprocessor defines the contracts of pipeline stages.
//
// A pipeline is built from three roles:
//
//   - Source: produces messages and has no inputs.
//   - Processor: consumes messages from input ports and forwards messages to
//     output ports.
//   - Sink: consumes messages and has no outputs.
//
// Every source emits its messages as transactions: one Begin, any number of
// Data messages with strictly increasing sequence ids, and one Commit carrying
// the sequence id of the last Data message and a transaction id. Downstream
// stages see this order per source and per edge, but messages arriving on
// different input edges may interleave arbitrarily.
//
// Process returns a Control signal. Continue keeps the stage running; Stop
// ends it gracefully: its inputs are detached, its outputs closed and Close is
// called.
package kprocessor
