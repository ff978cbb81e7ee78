package peerfsm

import (
	"crypto/sha256"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningfsm/peerfsm/wire"
)

// Each accept_pkt_* validator is a pure check over (peer, pkt): nil
// means "accept, and the caller may stage the packet's data"; a non-nil
// *wire.Error means the packet described a protocol violation and the
// transition function must enter the matching error path (spec.md
// §4.2).

func acceptPktOpen(peer *PeerContext, pkt *wire.Open) *wire.Error {
	if pkt.FeeRatePerKw == 0 {
		return pktErr("open: feerate must be positive")
	}
	if pkt.ChannelReserve > 0 && pkt.ChannelReserve < peer.Policy.ChannelReserveSat {
		return pktErr("open: proposed reserve %d below our floor %d",
			pkt.ChannelReserve, peer.Policy.ChannelReserveSat)
	}
	switch pkt.AnchorOffer {
	case wire.AnchorOfferWillCreate, wire.AnchorOfferWontCreate:
	default:
		return pktErr("open: unrecognized anchor offer %d", pkt.AnchorOffer)
	}
	// Exactly one side may offer to create the anchor.
	theirAnchor := pkt.AnchorOffer == wire.AnchorOfferWillCreate
	if theirAnchor == peer.OurAnchor {
		return pktErr("open: anchor offer collision (ours=%v, theirs=%v)",
			peer.OurAnchor, theirAnchor)
	}
	return nil
}

func acceptPktAnchor(peer *PeerContext, pkt *wire.OpenAnchor) *wire.Error {
	if pkt.Amount <= 0 {
		return pktErr("open_anchor: non-positive amount %d", pkt.Amount)
	}
	if pkt.TxID == (chainhash.Hash{}) {
		return pktErr("open_anchor: empty txid")
	}
	return nil
}

func acceptPktOpenCommitSig(peer *PeerContext, pkt *wire.OpenCommitSig) *wire.Error {
	// Cryptographic verification of the signature itself is out of
	// scope (spec.md §1, "Cryptographic primitives"); we only check
	// that a signature was actually supplied.
	if len(pkt.Signature) == 0 {
		return pktErr("open_commit_sig: empty signature")
	}
	return nil
}

func acceptPktOpenComplete(peer *PeerContext, pkt *wire.OpenComplete) *wire.Error {
	return nil
}

func acceptPktHTLCAdd(peer *PeerContext, pkt *wire.UpdateAddHTLC) *wire.Error {
	if pkt.AmountMilliSat < peer.Policy.MinHTLCMilliSat ||
		(peer.Policy.MaxHTLCMilliSat > 0 && pkt.AmountMilliSat > peer.Policy.MaxHTLCMilliSat) {
		return pktErr("update_add_htlc: amount %d outside [%d,%d]",
			pkt.AmountMilliSat, peer.Policy.MinHTLCMilliSat, peer.Policy.MaxHTLCMilliSat)
	}
	if peer.sawRemoteHTLC && pkt.ID <= peer.LastRemoteHTLCID {
		return pktErr("update_add_htlc: id %d not strictly greater than previous %d",
			pkt.ID, peer.LastRemoteHTLCID)
	}
	if peer.Policy.MaxCltvExpiry > 0 && pkt.CltvExpiry > peer.Policy.MaxCltvExpiry {
		return pktErr("update_add_htlc: cltv_expiry %d exceeds max %d",
			pkt.CltvExpiry, peer.Policy.MaxCltvExpiry)
	}
	if pkt.PaymentHash == (chainhash.Hash{}) {
		return pktErr("update_add_htlc: empty payment hash")
	}
	inFlight := len(peer.CommittedHTLCs) + len(peer.StagedRemote.Adds)
	if peer.Policy.MaxAcceptedHTLCs > 0 && inFlight >= peer.Policy.MaxAcceptedHTLCs {
		return pktErr("update_add_htlc: max-in-flight %d reached",
			peer.Policy.MaxAcceptedHTLCs)
	}
	return nil
}

func acceptPktHTLCFail(peer *PeerContext, pkt *wire.UpdateFailHTLC) *wire.Error {
	htlc, ok := peer.CommittedHTLCs[pkt.ID]
	if !ok {
		return pktErr("update_fail_htlc: unknown htlc id %d", pkt.ID)
	}
	if !htlc.Offered {
		return pktErr("update_fail_htlc: htlc %d was not offered by us", pkt.ID)
	}
	if htlc.Status != HTLCCommitted {
		return pktErr("update_fail_htlc: htlc %d not in committed state (%s)",
			pkt.ID, htlc.Status)
	}
	return nil
}

func acceptPktHTLCFulfill(peer *PeerContext, pkt *wire.UpdateFulfillHTLC) *wire.Error {
	htlc, ok := peer.CommittedHTLCs[pkt.ID]
	if !ok {
		return pktErr("update_fulfill_htlc: unknown htlc id %d", pkt.ID)
	}
	if !htlc.Offered {
		return pktErr("update_fulfill_htlc: htlc %d was not offered by us", pkt.ID)
	}
	if htlc.Status != HTLCCommitted {
		return pktErr("update_fulfill_htlc: htlc %d not in committed state (%s)",
			pkt.ID, htlc.Status)
	}
	sum := sha256.Sum256(pkt.PaymentPreimage[:])
	if sum != htlc.PaymentHash {
		return pktErr("update_fulfill_htlc: preimage does not hash to htlc %d's hash", pkt.ID)
	}
	return nil
}

func acceptPktCommit(peer *PeerContext, pkt *wire.UpdateCommit) *wire.Error {
	if len(pkt.CommitSig) == 0 {
		return pktErr("update_commit: empty signature")
	}
	return nil
}

func acceptPktRevocation(peer *PeerContext, pkt *wire.UpdateRevocation) *wire.Error {
	var zero [32]byte
	if pkt.Secret == zero {
		return pktErr("update_revocation: empty secret")
	}
	// Verifying that the secret actually hashes to the per-commitment
	// point committed to earlier is a cryptographic primitive (spec.md
	// §1, Non-goals); we accept any non-empty secret here and let the
	// revocation store index it by commitment height.
	return nil
}

func acceptPktCloseClearing(peer *PeerContext, pkt *wire.CloseClearing) *wire.Error {
	return nil
}

// acceptPktCloseSig validates a candidate close signature and reports
// whether its fee matches our own outstanding offer.
func acceptPktCloseSig(peer *PeerContext, pkt *wire.CloseSignature) (matches bool, errPkt *wire.Error) {
	if len(pkt.Signature) == 0 {
		return false, pktErr("close_signature: empty signature")
	}
	if pkt.FeeSatoshis == 0 {
		return false, pktErr("close_signature: zero fee")
	}
	return peer.WeSentCloseSig && pkt.FeeSatoshis == peer.CloseFeeSatoshis, nil
}
