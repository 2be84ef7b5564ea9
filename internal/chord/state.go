package chord

import (
	"sync"

	"github.com/zde37/chordring/pkg/hash"
)

type changeKind int

const (
	changeSuccessor changeKind = iota
	changeSuccessorList
	changePredecessor
	changeEvicted
)

// ringChange describes one mutation of RingState, reported after the lock
// is released.
type ringChange struct {
	kind    changeKind
	node    NodeAddress // new successor, new predecessor or evicted node
	present bool        // predecessor changes only: false when cleared
	listLen int         // successor list length after the change
}

// RingState is the routing state of a node: predecessor, successor list and
// finger table. A single mutex guards every read and mutation; callers never
// hold it across a network call.
//
// Unset finger entries point at self, which never qualifies as a closest
// preceding node. fingers[0] always equals successors[0].
type RingState struct {
	space hash.Space
	self  NodeAddress
	r     int

	mu             sync.Mutex
	publishMu      sync.Mutex
	predecessor    NodeAddress
	hasPredecessor bool
	successors     []NodeAddress
	fingers        []NodeAddress

	// onChange is installed before the node starts and never replaced. It
	// runs under publishMu in mutation order and must not call back into
	// RingState.
	onChange func([]ringChange)
}

// NewRingState creates the state of a node that knows only itself.
func NewRingState(space hash.Space, self NodeAddress, successorListSize int) *RingState {
	if successorListSize < 1 {
		successorListSize = 1
	}

	fingers := make([]NodeAddress, space.Bits())
	for i := range fingers {
		fingers[i] = self
	}

	return &RingState{
		space:      space,
		self:       self,
		r:          successorListSize,
		successors: []NodeAddress{self},
		fingers:    fingers,
	}
}

// Self returns the node's own address.
func (s *RingState) Self() NodeAddress {
	return s.self
}

// Space returns the identifier space of the ring.
func (s *RingState) Space() hash.Space {
	return s.space
}

// Successor returns the direct successor.
func (s *RingState) Successor() NodeAddress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.successors[0]
}

// Successors returns a copy of the successor list.
func (s *RingState) Successors() []NodeAddress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]NodeAddress(nil), s.successors...)
}

// Predecessor returns the predecessor; ok is false when it is unknown.
func (s *RingState) Predecessor() (NodeAddress, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.predecessor, s.hasPredecessor
}

// ReplaceSuccessor sets node as successor only if old is still the direct
// successor. It reports whether the swap happened.
func (s *RingState) ReplaceSuccessor(old, node NodeAddress) bool {
	s.mu.Lock()
	if !s.successors[0].Equals(old) {
		s.mu.Unlock()
		return false
	}
	s.unlockAndPublish(s.setSuccessorLocked(node))
	return true
}

func (s *RingState) setSuccessorLocked(node NodeAddress) []ringChange {
	old := s.successors[0]

	list := make([]NodeAddress, 0, s.r)
	list = append(list, node)
	if !node.Equals(s.self) {
		for _, n := range s.successors {
			if len(list) == s.r {
				break
			}
			if n.Equals(node) || n.Equals(s.self) {
				continue
			}
			list = append(list, n)
		}
	}
	s.successors = list
	s.fingers[0] = node

	if old.Equals(node) && old.Addr == node.Addr {
		return []ringChange{{kind: changeSuccessorList, listLen: len(list)}}
	}
	return []ringChange{{kind: changeSuccessor, node: node, listLen: len(list)}}
}

// ReconcileSuccessors installs a successor list learned by walking the ring
// from head. It does nothing unless head is still the direct successor.
// When the walk was cut short by an unreachable node, entries already known
// are kept so the list never shrinks on a partial walk.
func (s *RingState) ReconcileSuccessors(head NodeAddress, walked []NodeAddress, complete bool) bool {
	s.mu.Lock()
	if len(walked) == 0 || !s.successors[0].Equals(head) {
		s.mu.Unlock()
		return false
	}

	list := make([]NodeAddress, 0, s.r)
	seen := make(map[hash.ID]struct{}, s.r)
	add := func(n NodeAddress) {
		if len(list) == s.r || n.Equals(s.self) {
			return
		}
		if _, dup := seen[n.ID]; dup {
			return
		}
		seen[n.ID] = struct{}{}
		list = append(list, n)
	}

	add(head)
	for _, n := range walked {
		add(n)
	}
	if !complete {
		for _, n := range s.successors {
			add(n)
		}
	}
	if len(list) == 0 {
		list = append(list, s.self)
	}

	changed := !sameNodes(list, s.successors)
	s.successors = list
	s.fingers[0] = list[0]

	var changes []ringChange
	if changed {
		changes = []ringChange{{kind: changeSuccessorList, listLen: len(list)}}
	}
	s.unlockAndPublish(changes)
	return changed
}

// SetPredecessor records node as predecessor.
func (s *RingState) SetPredecessor(node NodeAddress) {
	s.mu.Lock()
	changed := !s.hasPredecessor || !s.predecessor.Equals(node)
	s.predecessor, s.hasPredecessor = node, true

	var changes []ringChange
	if changed {
		changes = []ringChange{{kind: changePredecessor, node: node, present: true}}
	}
	s.unlockAndPublish(changes)
}

// ClearPredecessor forgets the predecessor if it is still expected.
func (s *RingState) ClearPredecessor(expected NodeAddress) bool {
	s.mu.Lock()
	if !s.hasPredecessor || !s.predecessor.Equals(expected) {
		s.mu.Unlock()
		return false
	}
	s.predecessor, s.hasPredecessor = NodeAddress{}, false
	s.unlockAndPublish([]ringChange{{kind: changePredecessor, node: expected}})
	return true
}

// Notify adopts candidate as predecessor if none is known or candidate lies
// strictly between the current predecessor and self. Notifying the current
// predecessor again changes nothing.
func (s *RingState) Notify(candidate NodeAddress) bool {
	s.mu.Lock()
	if s.hasPredecessor && !s.space.Between(candidate.ID, s.predecessor.ID, s.self.ID) {
		s.mu.Unlock()
		return false
	}
	s.predecessor, s.hasPredecessor = candidate, true
	s.unlockAndPublish([]ringChange{{kind: changePredecessor, node: candidate, present: true}})
	return true
}

// SetFinger stores entry i of the finger table. Entry 0 follows the
// successor and cannot be set directly.
func (s *RingState) SetFinger(i int, node NodeAddress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i <= 0 || i >= len(s.fingers) {
		return
	}
	s.fingers[i] = node
}

// SeedFingers points every finger at node and makes it the successor.
func (s *RingState) SeedFingers(node NodeAddress) {
	s.mu.Lock()
	changes := s.setSuccessorLocked(node)
	for i := range s.fingers {
		s.fingers[i] = node
	}
	s.unlockAndPublish(changes)
}

// Evict removes a failed node from the successor list, the finger table and
// the predecessor slot. The next successor is promoted; a node that loses
// every successor becomes its own. It reports whether anything referenced
// node.
func (s *RingState) Evict(node NodeAddress) bool {
	if node.Equals(s.self) {
		return false
	}

	s.mu.Lock()
	var (
		changes []ringChange
		found   bool
		oldSucc = s.successors[0]
	)

	list := s.successors[:0:0]
	for _, n := range s.successors {
		if n.Equals(node) {
			found = true
			continue
		}
		list = append(list, n)
	}
	if len(list) == 0 {
		list = append(list, s.self)
	}
	s.successors = list

	for i := range s.fingers {
		if s.fingers[i].Equals(node) {
			s.fingers[i] = s.self
			found = true
		}
	}
	s.fingers[0] = list[0]

	if s.hasPredecessor && s.predecessor.Equals(node) {
		s.predecessor, s.hasPredecessor = NodeAddress{}, false
		found = true
		changes = append(changes, ringChange{kind: changePredecessor, node: node})
	}

	if found {
		changes = append([]ringChange{{kind: changeEvicted, node: node, listLen: len(list)}}, changes...)
	}
	if !oldSucc.Equals(list[0]) {
		changes = append(changes, ringChange{kind: changeSuccessor, node: list[0], listLen: len(list)})
	}
	s.unlockAndPublish(changes)
	return found
}

// ClosestPreceding returns the known node that most closely precedes id.
// The highest finger strictly between self and id is the candidate; a
// successor-list entry closer to id replaces it. Self means no known node
// precedes id.
func (s *RingState) ClosestPreceding(id hash.ID) NodeAddress {
	s.mu.Lock()
	defer s.mu.Unlock()

	best := s.self
	for i := len(s.fingers) - 1; i >= 0; i-- {
		if s.space.Between(s.fingers[i].ID, s.self.ID, id) {
			best = s.fingers[i]
			break
		}
	}
	for i := len(s.successors) - 1; i >= 0; i-- {
		n := s.successors[i]
		if s.space.Between(n.ID, s.self.ID, id) &&
			s.space.Distance(s.self.ID, n.ID) > s.space.Distance(s.self.ID, best.ID) {
			best = n
			break
		}
	}
	return best
}

// Snapshot copies the whole state under one lock.
func (s *RingState) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	fingers := make([]FingerEntry, len(s.fingers))
	for i, n := range s.fingers {
		fingers[i] = FingerEntry{
			Index: i,
			Start: s.space.FingerStart(s.self.ID, i),
			Node:  n,
		}
	}

	return Snapshot{
		Self:           s.self,
		Predecessor:    s.predecessor,
		HasPredecessor: s.hasPredecessor,
		Successors:     append([]NodeAddress(nil), s.successors...),
		Fingers:        fingers,
	}
}

// unlockAndPublish releases mu and reports changes. publishMu is taken
// before mu is released, so changes reach onChange in the order the
// mutations happened.
func (s *RingState) unlockAndPublish(changes []ringChange) {
	if s.onChange == nil || len(changes) == 0 {
		s.mu.Unlock()
		return
	}
	s.publishMu.Lock()
	s.mu.Unlock()
	defer s.publishMu.Unlock()
	s.onChange(changes)
}

func sameNodes(a, b []NodeAddress) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equals(b[i]) {
			return false
		}
	}
	return true
}
