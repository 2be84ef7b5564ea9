// Package chordpb holds the wire messages of the chord.ChordNode service
// described in protobuf/chord.proto. Messages encode themselves with
// protowire so that field numbers stay byte-compatible with the schema.
package chordpb

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrMalformed is returned when a message cannot be decoded.
var ErrMalformed = errors.New("chordpb: malformed message")

// Message is implemented by every request and response of the service.
type Message interface {
	Marshal() ([]byte, error)
	Unmarshal(data []byte) error
}

type IpVersion int32

const (
	IpVersion_IPV4 IpVersion = 0
	IpVersion_IPV6 IpVersion = 1
)

func (v IpVersion) String() string {
	switch v {
	case IpVersion_IPV4:
		return "IPV4"
	case IpVersion_IPV6:
		return "IPV6"
	default:
		return fmt.Sprintf("IpVersion(%d)", int32(v))
	}
}

type IpAddress struct {
	Version IpVersion
	Address []byte
}

func (x *IpAddress) GetVersion() IpVersion {
	if x != nil {
		return x.Version
	}
	return IpVersion_IPV4
}

func (x *IpAddress) GetAddress() []byte {
	if x != nil {
		return x.Address
	}
	return nil
}

func (x *IpAddress) appendTo(b []byte) []byte {
	if x.Version != 0 {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(x.Version)))
	}
	if len(x.Address) > 0 {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, x.Address)
	}
	return b
}

func (x *IpAddress) Marshal() ([]byte, error) {
	return x.appendTo(nil), nil
}

func (x *IpAddress) Unmarshal(data []byte) error {
	*x = IpAddress{}
	return consumeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, wireError(n)
			}
			x.Version = IpVersion(int32(v))
			return n, nil
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return 0, wireError(n)
			}
			x.Address = append([]byte(nil), v...)
			return n, nil
		}
		return 0, nil
	})
}

type Node struct {
	Id   uint64
	Ip   *IpAddress
	Port int32
}

func (x *Node) GetId() uint64 {
	if x != nil {
		return x.Id
	}
	return 0
}

func (x *Node) GetIp() *IpAddress {
	if x != nil {
		return x.Ip
	}
	return nil
}

func (x *Node) GetPort() int32 {
	if x != nil {
		return x.Port
	}
	return 0
}

func (x *Node) appendTo(b []byte) []byte {
	if x.Id != 0 {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, x.Id)
	}
	if x.Ip != nil {
		b = appendMessage(b, 2, x.Ip.appendTo(nil))
	}
	if x.Port != 0 {
		b = protowire.AppendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(x.Port)))
	}
	return b
}

func (x *Node) Marshal() ([]byte, error) {
	return x.appendTo(nil), nil
}

func (x *Node) Unmarshal(data []byte) error {
	*x = Node{}
	return consumeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, wireError(n)
			}
			x.Id = v
			return n, nil
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return 0, wireError(n)
			}
			ip := &IpAddress{}
			if err := ip.Unmarshal(v); err != nil {
				return 0, err
			}
			x.Ip = ip
			return n, nil
		case num == 3 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, wireError(n)
			}
			x.Port = int32(v)
			return n, nil
		}
		return 0, nil
	})
}

type FindSuccessorRequest struct {
	Id uint64
}

func (x *FindSuccessorRequest) GetId() uint64 {
	if x != nil {
		return x.Id
	}
	return 0
}

func (x *FindSuccessorRequest) Marshal() ([]byte, error) {
	var b []byte
	if x.Id != 0 {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, x.Id)
	}
	return b, nil
}

func (x *FindSuccessorRequest) Unmarshal(data []byte) error {
	*x = FindSuccessorRequest{}
	return consumeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 && typ == protowire.VarintType {
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, wireError(n)
			}
			x.Id = v
			return n, nil
		}
		return 0, nil
	})
}

// FindSuccessorResponse carries its node in field 2.
type FindSuccessorResponse struct {
	Node *Node
}

func (x *FindSuccessorResponse) GetNode() *Node {
	if x != nil {
		return x.Node
	}
	return nil
}

func (x *FindSuccessorResponse) Marshal() ([]byte, error) {
	return marshalNodeField(2, x.Node), nil
}

func (x *FindSuccessorResponse) Unmarshal(data []byte) error {
	*x = FindSuccessorResponse{}
	return unmarshalNodeField(data, 2, &x.Node)
}

type GetSuccessorResponse struct {
	Node *Node
}

func (x *GetSuccessorResponse) GetNode() *Node {
	if x != nil {
		return x.Node
	}
	return nil
}

func (x *GetSuccessorResponse) Marshal() ([]byte, error) {
	return marshalNodeField(1, x.Node), nil
}

func (x *GetSuccessorResponse) Unmarshal(data []byte) error {
	*x = GetSuccessorResponse{}
	return unmarshalNodeField(data, 1, &x.Node)
}

// GetPredecessorResponse leaves Node nil when the predecessor is unknown.
type GetPredecessorResponse struct {
	Node *Node
}

func (x *GetPredecessorResponse) GetNode() *Node {
	if x != nil {
		return x.Node
	}
	return nil
}

func (x *GetPredecessorResponse) Marshal() ([]byte, error) {
	return marshalNodeField(1, x.Node), nil
}

func (x *GetPredecessorResponse) Unmarshal(data []byte) error {
	*x = GetPredecessorResponse{}
	return unmarshalNodeField(data, 1, &x.Node)
}

type NotifyRequest struct {
	Node *Node
}

func (x *NotifyRequest) GetNode() *Node {
	if x != nil {
		return x.Node
	}
	return nil
}

func (x *NotifyRequest) Marshal() ([]byte, error) {
	return marshalNodeField(1, x.Node), nil
}

func (x *NotifyRequest) Unmarshal(data []byte) error {
	*x = NotifyRequest{}
	return unmarshalNodeField(data, 1, &x.Node)
}

// Empty messages. Unknown fields are skipped on decode.
type (
	GetSuccessorRequest   struct{}
	GetPredecessorRequest struct{}
	NotifyResponse        struct{}
	PingRequest           struct{}
	PingResponse          struct{}
)

func (*GetSuccessorRequest) Marshal() ([]byte, error)      { return nil, nil }
func (*GetSuccessorRequest) Unmarshal(data []byte) error   { return skipAll(data) }
func (*GetPredecessorRequest) Marshal() ([]byte, error)    { return nil, nil }
func (*GetPredecessorRequest) Unmarshal(data []byte) error { return skipAll(data) }
func (*NotifyResponse) Marshal() ([]byte, error)           { return nil, nil }
func (*NotifyResponse) Unmarshal(data []byte) error        { return skipAll(data) }
func (*PingRequest) Marshal() ([]byte, error)              { return nil, nil }
func (*PingRequest) Unmarshal(data []byte) error           { return skipAll(data) }
func (*PingResponse) Marshal() ([]byte, error)             { return nil, nil }
func (*PingResponse) Unmarshal(data []byte) error          { return skipAll(data) }

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

// marshalNodeField encodes a present node even when all its fields are zero,
// so presence survives the round trip.
func marshalNodeField(num protowire.Number, node *Node) []byte {
	if node == nil {
		return nil
	}
	return appendMessage(nil, num, node.appendTo(nil))
}

func unmarshalNodeField(data []byte, want protowire.Number, dst **Node) error {
	return consumeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != want || typ != protowire.BytesType {
			return 0, nil
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return 0, wireError(n)
		}
		node := &Node{}
		if err := node.Unmarshal(v); err != nil {
			return 0, err
		}
		*dst = node
		return n, nil
	})
}

// consumeFields walks the fields of data. fn returns the bytes it consumed
// for a field it understands, or 0 to have the field skipped.
func consumeFields(data []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return wireError(n)
		}
		data = data[n:]

		m, err := fn(num, typ, data)
		if err != nil {
			return err
		}
		if m == 0 {
			m = protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return wireError(m)
			}
		}
		data = data[m:]
	}
	return nil
}

func skipAll(data []byte) error {
	return consumeFields(data, func(protowire.Number, protowire.Type, []byte) (int, error) {
		return 0, nil
	})
}

func wireError(n int) error {
	return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
}
