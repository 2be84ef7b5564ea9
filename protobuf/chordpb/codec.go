package chordpb

import (
	"fmt"

	"google.golang.org/protobuf/proto"
)

// CodecName replaces the default "proto" codec so that chordpb messages and
// regular protobuf messages (health checks) share one content-subtype.
const CodecName = "proto"

// Codec is a grpc encoding.Codec for Message values. Anything else that
// implements proto.Message is handed to the protobuf runtime.
type Codec struct{}

func (Codec) Marshal(v any) ([]byte, error) {
	switch m := v.(type) {
	case Message:
		return m.Marshal()
	case proto.Message:
		return proto.Marshal(m)
	default:
		return nil, fmt.Errorf("chordpb: cannot marshal %T", v)
	}
}

func (Codec) Unmarshal(data []byte, v any) error {
	switch m := v.(type) {
	case Message:
		return m.Unmarshal(data)
	case proto.Message:
		return proto.Unmarshal(data, m)
	default:
		return fmt.Errorf("chordpb: cannot unmarshal into %T", v)
	}
}

func (Codec) Name() string {
	return CodecName
}
