package peerfsm

import (
	"fmt"

	"github.com/lightningfsm/peerfsm/wire"
)

// pktErr builds a diagnostic error packet (pkt_err in
// original_source/state.h). Its text is never interpreted by the
// machine itself — it exists for the human or log on the other end.
func pktErr(format string, args ...interface{}) *wire.Error {
	return &wire.Error{Text: fmt.Sprintf(format, args...)}
}

// pktErrUnexpected builds the generic "your packet made no sense here"
// error (pkt_err_unexpected).
func pktErrUnexpected(peer *PeerContext, pkt wire.Packet) *wire.Error {
	return pktErr("unexpected packet %s in state %s", pkt.PacketType(), peer.State)
}
