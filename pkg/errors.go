package pkg

import "errors"

var (
	// ErrUnreachable is returned when a peer call timed out or the connection failed
	ErrUnreachable = errors.New("peer unreachable")

	// ErrProtocol is returned when a peer answered with a malformed or unexpected response
	ErrProtocol = errors.New("peer protocol error")

	// ErrRoutingExhausted is returned when a lookup exceeded its hop cap
	ErrRoutingExhausted = errors.New("routing exhausted")

	// ErrBootstrapUnreachable is returned when the seed peer cannot be contacted during join
	ErrBootstrapUnreachable = errors.New("bootstrap unreachable")

	// ErrAlreadyJoined is returned when join is attempted on a node that already joined a ring
	ErrAlreadyJoined = errors.New("node already joined a ring")

	// ErrDuplicateID is returned when the ring already holds a different node with our identifier
	ErrDuplicateID = errors.New("duplicate node identifier in ring")

	// ErrNodeShutdown is returned when the node has been shut down
	ErrNodeShutdown = errors.New("node is shut down")
)

// IsPeerFailure reports whether err means the peer must be treated as failed.
// Malformed responses are handled exactly like unreachable peers.
func IsPeerFailure(err error) bool {
	return errors.Is(err, ErrUnreachable) || errors.Is(err, ErrProtocol)
}
