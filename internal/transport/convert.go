package transport

import (
	"fmt"
	"net/netip"

	"github.com/zde37/chordring/internal/chord"
	"github.com/zde37/chordring/pkg"
	"github.com/zde37/chordring/pkg/hash"
	"github.com/zde37/chordring/protobuf/chordpb"
)

// nodeAddressToProto converts a NodeAddress to its wire form.
func nodeAddressToProto(node chord.NodeAddress) *chordpb.Node {
	ip := node.Addr.Addr().Unmap()

	var addr *chordpb.IpAddress
	if ip.Is4() {
		b := ip.As4()
		addr = &chordpb.IpAddress{Version: chordpb.IpVersion_IPV4, Address: b[:]}
	} else {
		b := ip.As16()
		addr = &chordpb.IpAddress{Version: chordpb.IpVersion_IPV6, Address: b[:]}
	}

	return &chordpb.Node{
		Id:   uint64(node.ID),
		Ip:   addr,
		Port: int32(node.Addr.Port()),
	}
}

// protoToNodeAddress converts a wire node back, rejecting anything that
// cannot name a reachable peer.
func protoToNodeAddress(node *chordpb.Node) (chord.NodeAddress, error) {
	if node == nil {
		return chord.NodeAddress{}, fmt.Errorf("%w: missing node", pkg.ErrProtocol)
	}

	ip, err := protoToAddr(node.GetIp())
	if err != nil {
		return chord.NodeAddress{}, err
	}

	port := node.GetPort()
	if port < 0 || port > 65535 {
		return chord.NodeAddress{}, fmt.Errorf("%w: port %d out of range", pkg.ErrProtocol, port)
	}

	return chord.NewNodeAddress(hash.ID(node.GetId()), netip.AddrPortFrom(ip, uint16(port))), nil
}

func protoToAddr(ip *chordpb.IpAddress) (netip.Addr, error) {
	if ip == nil {
		return netip.Addr{}, fmt.Errorf("%w: missing ip address", pkg.ErrProtocol)
	}

	raw := ip.GetAddress()
	switch ip.GetVersion() {
	case chordpb.IpVersion_IPV4:
		if len(raw) != 4 {
			return netip.Addr{}, fmt.Errorf("%w: ipv4 address has %d bytes", pkg.ErrProtocol, len(raw))
		}
		return netip.AddrFrom4([4]byte(raw)), nil
	case chordpb.IpVersion_IPV6:
		if len(raw) != 16 {
			return netip.Addr{}, fmt.Errorf("%w: ipv6 address has %d bytes", pkg.ErrProtocol, len(raw))
		}
		return netip.AddrFrom16([16]byte(raw)), nil
	default:
		return netip.Addr{}, fmt.Errorf("%w: unknown ip version %d", pkg.ErrProtocol, ip.GetVersion())
	}
}
