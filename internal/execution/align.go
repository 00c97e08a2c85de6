package execution

import (
	"fmt"
	"maps"
	"slices"

	"github.com/birdayz/kflow/kdag"
	"github.com/birdayz/kflow/kprocessor"
)

// aligner merges the transactions of one source that reach a unit over
// several inbound edges, e.g. two ports of a router feeding the same sink.
// The stage observes one Begin and one Commit per source transaction.
//
// An edge that delivered its Commit is blocked until every other live edge
// carrying the same source delivered the matching Commit, so data of the
// next transaction cannot overtake a lagging branch.
type aligner struct {
	// carriers maps a source to the live inbound edges reachable from it.
	// Sources reaching the unit over a single edge are not tracked.
	carriers map[string]map[int]bool
	open     map[string]*alignment
	blocked  map[int]string
}

// alignment is the state of one source transaction in flight.
type alignment struct {
	begun     bool
	committed map[int]bool
	commit    kprocessor.Message
	port      kprocessor.PortHandle
}

func newAligner(dag *kdag.DAG, u *unit) *aligner {
	a := &aligner{
		carriers: make(map[string]map[int]bool),
		open:     make(map[string]*alignment),
		blocked:  make(map[int]string),
	}
	for _, src := range dag.Sources() {
		reach := map[kdag.NodeID]bool{src: true}
		for _, id := range dag.Downstream(src) {
			reach[id] = true
		}
		edges := make(map[int]bool)
		for i, e := range u.in {
			if reach[e.From.Node] {
				edges[i] = true
			}
		}
		if len(edges) > 1 {
			a.carriers[string(src)] = edges
		}
	}
	return a
}

// active reports whether any source reaches the unit over several edges.
func (a *aligner) active() bool {
	return len(a.carriers) > 0
}

func (a *aligner) isBlocked(i int) bool {
	_, ok := a.blocked[i]
	return ok
}

// admit reports whether msg, received on inbound edge i at port, is delivered
// to the stage. A Commit is delivered once, by the edge that committed last.
func (a *aligner) admit(i int, port kprocessor.PortHandle, msg kprocessor.Message) (bool, error) {
	edges, ok := a.carriers[msg.Source]
	if !ok || !edges[i] {
		return true, nil
	}

	st, ok := a.open[msg.Source]
	if !ok {
		st = &alignment{committed: make(map[int]bool)}
		a.open[msg.Source] = st
	}

	switch msg.Kind {
	case kprocessor.KindBegin:
		if st.begun {
			return false, nil
		}
		st.begun = true
		return true, nil
	case kprocessor.KindCommit:
		if len(st.committed) > 0 && (st.commit.Seq != msg.Seq || st.commit.TxID != msg.TxID) {
			return false, fmt.Errorf("%w: source %s committed %d/%d on one edge and %d/%d on another",
				kprocessor.ErrInvalidLifecycle, msg.Source, st.commit.Seq, st.commit.TxID, msg.Seq, msg.TxID)
		}
		st.committed[i] = true
		st.commit = msg
		st.port = port
		a.blocked[i] = msg.Source
		_, done := a.release(msg.Source)
		return done, nil
	default:
		return true, nil
	}
}

// closed removes the exhausted edge i and returns the Commits that became
// complete because the edge no longer has to be waited for.
func (a *aligner) closed(i int) []alignment {
	delete(a.blocked, i)

	var out []alignment
	for _, src := range slices.Sorted(maps.Keys(a.carriers)) {
		edges := a.carriers[src]
		if !edges[i] {
			continue
		}
		delete(edges, i)
		if st, done := a.release(src); done {
			out = append(out, st)
		}
	}
	return out
}

// release completes the transaction of source once every live carrier
// committed and unblocks its edges.
func (a *aligner) release(source string) (alignment, bool) {
	st, ok := a.open[source]
	if !ok || len(st.committed) == 0 {
		return alignment{}, false
	}
	for i := range a.carriers[source] {
		if !st.committed[i] {
			return alignment{}, false
		}
	}
	for i := range st.committed {
		if a.blocked[i] == source {
			delete(a.blocked, i)
		}
	}
	delete(a.open, source)
	return *st, true
}
