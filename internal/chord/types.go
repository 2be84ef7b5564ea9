package chord

import (
	"fmt"
	"net/netip"

	"github.com/zde37/chordring/pkg/hash"
)

// truncateHex safely truncates a hex string to the specified length.
func truncateHex(hexStr string, maxLen int) string {
	if len(hexStr) > maxLen {
		return hexStr[:maxLen]
	}
	return hexStr
}

// NodeAddress identifies a ring member: its position on the ring and where
// to reach it. It is an immutable value; two addresses denote the same node
// when their IDs match.
type NodeAddress struct {
	ID   hash.ID        // Node identifier in the Chord ring (0 to 2^M - 1)
	Addr netip.AddrPort // Network address
}

// NewNodeAddress creates a NodeAddress.
func NewNodeAddress(id hash.ID, addr netip.AddrPort) NodeAddress {
	return NodeAddress{ID: id, Addr: addr}
}

// String returns a human-readable representation of the node address.
// Format: "NodeAddress{ID: <hex>, Addr: <host>:<port>}"
func (n NodeAddress) String() string {
	return fmt.Sprintf("NodeAddress{ID: %s, Addr: %s}", n.ID, n.Addr)
}

// Address returns the network address in "host:port" format.
func (n NodeAddress) Address() string {
	return n.Addr.String()
}

// Equals reports whether both addresses denote the same ring member.
func (n NodeAddress) Equals(other NodeAddress) bool {
	return n.ID == other.ID
}

// ShortID returns the first 8 hex digits of the ID, for log fields.
func (n NodeAddress) ShortID() string {
	return truncateHex(n.ID.String(), 8)
}

// FingerEntry is one row of the finger table.
// Node is the first node that succeeds or equals Start = (n + 2^Index) mod 2^M.
type FingerEntry struct {
	Index int
	Start hash.ID
	Node  NodeAddress
}

// String returns a human-readable representation of the finger entry.
func (f FingerEntry) String() string {
	return fmt.Sprintf("FingerEntry{Index: %d, Start: %s, Node: %s}", f.Index, f.Start, f.Node)
}

// JoinStatus is the membership state of a node.
type JoinStatus int32

const (
	// StatusJoining is the state of a node that has not yet found its place in a ring.
	StatusJoining JoinStatus = iota
	// StatusJoined is terminal.
	StatusJoined
)

func (s JoinStatus) String() string {
	switch s {
	case StatusJoining:
		return "joining"
	case StatusJoined:
		return "joined"
	default:
		return fmt.Sprintf("JoinStatus(%d)", int32(s))
	}
}

// Snapshot is a consistent copy of a node's routing state.
type Snapshot struct {
	Self           NodeAddress
	Predecessor    NodeAddress
	HasPredecessor bool
	Successors     []NodeAddress
	Fingers        []FingerEntry
	Status         JoinStatus
}

// Successor returns the direct successor recorded in the snapshot.
func (s Snapshot) Successor() NodeAddress {
	if len(s.Successors) == 0 {
		return s.Self
	}
	return s.Successors[0]
}
