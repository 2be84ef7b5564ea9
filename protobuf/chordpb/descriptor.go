package chordpb

import (
	"sync"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
)

// FileName is the registry path of the chord.proto schema.
const FileName = "chord.proto"

var (
	registerOnce sync.Once
	fileDesc     protoreflect.FileDescriptor
	registerErr  error
)

// RegisterFile adds the chord.proto schema to protoregistry.GlobalFiles so
// that server reflection can describe the service. It is safe to call more
// than once.
func RegisterFile() (protoreflect.FileDescriptor, error) {
	registerOnce.Do(func() {
		if fd, err := protoregistry.GlobalFiles.FindFileByPath(FileName); err == nil {
			fileDesc = fd
			return
		}
		fileDesc, registerErr = protodesc.NewFile(fileDescriptorProto(), protoregistry.GlobalFiles)
		if registerErr != nil {
			return
		}
		registerErr = protoregistry.GlobalFiles.RegisterFile(fileDesc)
	})
	return fileDesc, registerErr
}

func field(name string, number int32, typ descriptorpb.FieldDescriptorProto_Type, typeName string) *descriptorpb.FieldDescriptorProto {
	f := &descriptorpb.FieldDescriptorProto{
		Name:     proto.String(name),
		JsonName: proto.String(name),
		Number:   proto.Int32(number),
		Label:    descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:     typ.Enum(),
	}
	if typeName != "" {
		f.TypeName = proto.String(typeName)
	}
	return f
}

func message(name string, fields ...*descriptorpb.FieldDescriptorProto) *descriptorpb.DescriptorProto {
	return &descriptorpb.DescriptorProto{Name: proto.String(name), Field: fields}
}

func method(name string) *descriptorpb.MethodDescriptorProto {
	return &descriptorpb.MethodDescriptorProto{
		Name:       proto.String(name),
		InputType:  proto.String(".chord." + name + "Request"),
		OutputType: proto.String(".chord." + name + "Response"),
	}
}

// fileDescriptorProto mirrors protobuf/chord.proto.
func fileDescriptorProto() *descriptorpb.FileDescriptorProto {
	const (
		tUint64  = descriptorpb.FieldDescriptorProto_TYPE_UINT64
		tInt32   = descriptorpb.FieldDescriptorProto_TYPE_INT32
		tBytes   = descriptorpb.FieldDescriptorProto_TYPE_BYTES
		tEnum    = descriptorpb.FieldDescriptorProto_TYPE_ENUM
		tMessage = descriptorpb.FieldDescriptorProto_TYPE_MESSAGE
	)

	optionalNode := field("node", 1, tMessage, ".chord.Node")
	optionalNode.OneofIndex = proto.Int32(0)
	optionalNode.Proto3Optional = proto.Bool(true)
	predecessorResponse := message("GetPredecessorResponse", optionalNode)
	predecessorResponse.OneofDecl = []*descriptorpb.OneofDescriptorProto{{Name: proto.String("_node")}}

	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String(FileName),
		Package: proto.String("chord"),
		Syntax:  proto.String("proto3"),
		Options: &descriptorpb.FileOptions{
			GoPackage: proto.String("github.com/zde37/chordring/protobuf/chordpb"),
		},
		EnumType: []*descriptorpb.EnumDescriptorProto{{
			Name: proto.String("IpVersion"),
			Value: []*descriptorpb.EnumValueDescriptorProto{
				{Name: proto.String("IPV4"), Number: proto.Int32(int32(IpVersion_IPV4))},
				{Name: proto.String("IPV6"), Number: proto.Int32(int32(IpVersion_IPV6))},
			},
		}},
		MessageType: []*descriptorpb.DescriptorProto{
			message("IpAddress",
				field("version", 1, tEnum, ".chord.IpVersion"),
				field("address", 2, tBytes, ""),
			),
			message("Node",
				field("id", 1, tUint64, ""),
				field("ip", 2, tMessage, ".chord.IpAddress"),
				field("port", 3, tInt32, ""),
			),
			message("FindSuccessorRequest", field("id", 1, tUint64, "")),
			message("FindSuccessorResponse", field("node", 2, tMessage, ".chord.Node")),
			message("GetSuccessorRequest"),
			message("GetSuccessorResponse", field("node", 1, tMessage, ".chord.Node")),
			message("GetPredecessorRequest"),
			predecessorResponse,
			message("NotifyRequest", field("node", 1, tMessage, ".chord.Node")),
			message("NotifyResponse"),
			message("PingRequest"),
			message("PingResponse"),
		},
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name: proto.String("ChordNode"),
			Method: []*descriptorpb.MethodDescriptorProto{
				method("FindSuccessor"),
				method("GetSuccessor"),
				method("GetPredecessor"),
				method("Notify"),
				method("Ping"),
			},
		}},
	}
}
