// Package processors contains reusable pipeline stages.
//
// Stateless stages (Broadcast, Filter, Map, Router, ForEach, SampleSink) need
// no storage environment. MaterializeSink and Dedup persist their state and a
// checkpoint per source in the same kstate transaction and report themselves
// as durable, so sources resume after what they committed.
package processors
