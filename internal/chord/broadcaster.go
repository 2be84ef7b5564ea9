package chord

import "fmt"

// Ring update event types
const (
	EventNodeJoin           = "node_join"
	EventNodeLeave          = "node_leave"
	EventSuccessorChanged   = "successor_changed"
	EventPredecessorChanged = "predecessor_changed"
	EventPeerEvicted        = "peer_evicted"
)

// RingUpdateBroadcaster is an interface for broadcasting ring updates.
// This allows the ChordNode to notify external systems (like WebSocket clients)
// when the ring topology changes without creating circular dependencies.
// Implementations must not block.
type RingUpdateBroadcaster interface {
	// BroadcastRingUpdate sends a ring update notification.
	BroadcastRingUpdate(update any) error
}

// RingUpdateEvent represents a ring topology change event.
type RingUpdateEvent struct {
	Type      string `json:"type"`              // one of the Event* constants
	NodeID    string `json:"node_id"`           // ID of the node that observed the change
	PeerID    string `json:"peer_id,omitempty"` // ID of the peer the change is about
	Timestamp int64  `json:"timestamp"`         // Unix timestamp
	Message   string `json:"message"`           // Human-readable message
}

func (n *ChordNode) observe(changes []ringChange) {
	for _, c := range changes {
		var ev RingUpdateEvent

		switch c.kind {
		case changeSuccessor:
			n.metrics.SuccessorChanged(c.listLen)
			ev = RingUpdateEvent{
				Type:    EventSuccessorChanged,
				PeerID:  c.node.ID.String(),
				Message: fmt.Sprintf("successor is now %s", c.node.Address()),
			}
			n.logger.Debug().Str("successor", c.node.ShortID()).Msg("Successor updated")
		case changeSuccessorList:
			n.metrics.SuccessorListLength(c.listLen)
			continue
		case changePredecessor:
			n.metrics.PredecessorChanged()
			msg := "predecessor cleared"
			if c.present {
				msg = fmt.Sprintf("predecessor is now %s", c.node.Address())
			}
			ev = RingUpdateEvent{
				Type:    EventPredecessorChanged,
				PeerID:  c.node.ID.String(),
				Message: msg,
			}
			n.logger.Debug().Str("predecessor", c.node.ShortID()).Bool("present", c.present).Msg("Predecessor updated")
		case changeEvicted:
			n.metrics.SuccessorListLength(c.listLen)
			ev = RingUpdateEvent{
				Type:    EventPeerEvicted,
				PeerID:  c.node.ID.String(),
				Message: fmt.Sprintf("evicted unresponsive peer %s", c.node.Address()),
			}
		default:
			continue
		}

		n.broadcast(ev)
	}
}

func (n *ChordNode) broadcast(ev RingUpdateEvent) {
	n.broadcasterMu.RLock()
	b := n.broadcaster
	n.broadcasterMu.RUnlock()
	if b == nil {
		return
	}

	ev.NodeID = n.self.ID.String()
	ev.Timestamp = n.clock.Now().Unix()
	if err := b.BroadcastRingUpdate(ev); err != nil {
		n.logger.Debug().Err(err).Str("event", ev.Type).Msg("Failed to broadcast ring update")
	}
}
