package peerfsm

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	btcwire "github.com/btcsuite/btcd/wire"

	"github.com/lightningfsm/peerfsm/wire"
)

// The nop* types below are the smallest possible collaborator fakes:
// enough to let the exhaustiveness sweep and scenario tests drive every
// region without panicking on a nil collaborator field, without
// asserting anything about call order themselves (the scenario tests
// that care about ordering use recordingQueue instead).

type nopQueue struct{}

func (nopQueue) QueueOpen(wire.AnchorOffer)          {}
func (nopQueue) QueueAnchor()                        {}
func (nopQueue) QueueOpenCommitSig()                 {}
func (nopQueue) QueueOpenComplete()                  {}
func (nopQueue) QueueHTLCAdd(*HTLCProgress)           {}
func (nopQueue) QueueHTLCFulfill(*HTLCProgress)       {}
func (nopQueue) QueueHTLCFail(*HTLCProgress)          {}
func (nopQueue) QueueCommit()                        {}
func (nopQueue) QueueRevocation()                    {}
func (nopQueue) QueueCloseClearing()                 {}
func (nopQueue) QueueCloseSignature()                {}
func (nopQueue) QueueError(*wire.Error)              {}

type nopWatcher struct{}

func (nopWatcher) WatchAnchor(depthOK, timeout, unspent, theySpent, otherSpent Input) {}
func (nopWatcher) UnwatchAnchorDepth(depthOK, timeout Input)                          {}
func (nopWatcher) WatchDelayed(tx *btcwire.MsgTx, canSpend Input)                     {}
func (nopWatcher) WatchTx(tx *btcwire.MsgTx, done Input)                             {}
func (nopWatcher) WatchClose(done, timedOut Input)                                   {}
func (nopWatcher) UnwatchCloseTimeout(timedOut Input)                                {}
func (nopWatcher) WatchOurHTLCOutputs(tx *btcwire.MsgTx, tousTimeout, tothemSpent, tothemTimeout Input) bool {
	return false
}
func (nopWatcher) WatchTheirHTLCOutputs(event *ChainEvent, tousTimeout, tothemSpent, tothemTimeout Input) bool {
	return false
}
func (nopWatcher) UnwatchHTLCOutput(htlc *HTLC, allDone Input)          {}
func (nopWatcher) UnwatchAllHTLCOutputs()                               {}
func (nopWatcher) WatchHTLCSpend(tx *btcwire.MsgTx, htlc *HTLC, done Input) {}
func (nopWatcher) UnwatchHTLCSpend(htlc *HTLC, allDone Input)           {}
func (nopWatcher) WatchHTLCsCleared(allDone Input)                     {}

type nopBuilder struct{}

func (nopBuilder) CreateAnchor(done Input)  {}
func (nopBuilder) ReleaseAnchor(done Input) {}
func (nopBuilder) Anchor(peer *PeerContext) *btcwire.MsgTx { return btcwire.NewMsgTx(btcwire.TxVersion) }
func (nopBuilder) Close(peer *PeerContext) *btcwire.MsgTx  { return btcwire.NewMsgTx(btcwire.TxVersion) }
func (nopBuilder) SpendOurs(peer *PeerContext) *btcwire.MsgTx {
	return btcwire.NewMsgTx(btcwire.TxVersion)
}
func (nopBuilder) SpendTheirs(peer *PeerContext, event *ChainEvent) *btcwire.MsgTx {
	return btcwire.NewMsgTx(btcwire.TxVersion)
}
func (nopBuilder) Steal(peer *PeerContext, event *ChainEvent, secret [32]byte) *btcwire.MsgTx {
	return btcwire.NewMsgTx(btcwire.TxVersion)
}
func (nopBuilder) Commit(peer *PeerContext) *btcwire.MsgTx {
	return btcwire.NewMsgTx(btcwire.TxVersion)
}
func (nopBuilder) HTLCTimeout(peer *PeerContext, htlc *HTLC) *btcwire.MsgTx {
	return btcwire.NewMsgTx(btcwire.TxVersion)
}
func (nopBuilder) HTLCSpend(peer *PeerContext, htlc *HTLC) *btcwire.MsgTx {
	return btcwire.NewMsgTx(btcwire.TxVersion)
}

type nopFees struct{}

func (nopFees) CalculateCloseFee(peer *PeerContext) uint64 { return 500 }

type nopDiscovery struct{}

func (nopDiscovery) TxRevealedRValue(peer *PeerContext, event *ChainEvent) (*HTLC, [32]byte, bool) {
	return nil, [32]byte{}, false
}

type nopQueries struct{}

func (nopQueries) CommittedToHTLCs(peer *PeerContext) bool { return len(peer.CommittedHTLCs) > 0 }
func (nopQueries) HasCloseSig(peer *PeerContext) bool      { return peer.TheirCloseSig != nil }

type nopRevocations struct{}

func (nopRevocations) Store(height uint64, secret [32]byte)     {}
func (nopRevocations) Lookup(height uint64) ([32]byte, bool)    { return [32]byte{}, false }

type nopCheat struct{}

func (nopCheat) Justice(peer *PeerContext, event *ChainEvent) (*btcwire.MsgTx, bool) {
	return nil, false
}

// examplePacketFor returns a structurally valid packet payload for any
// packet-range Input, used by the exhaustiveness sweep.
func examplePacketFor(input Input) wire.Packet {
	switch input {
	case InputPktOpen:
		return &wire.Open{FeeRatePerKw: 253, AnchorOffer: wire.AnchorOfferWontCreate}
	case InputPktOpenAnchor:
		return &wire.OpenAnchor{TxID: chainhash.Hash{0x01}, Amount: 100000}
	case InputPktOpenCommitSig:
		return &wire.OpenCommitSig{Signature: []byte{0x01}}
	case InputPktOpenComplete:
		return &wire.OpenComplete{}
	case InputPktUpdateAddHTLC:
		return &wire.UpdateAddHTLC{ID: 1, AmountMilliSat: 1000}
	case InputPktUpdateFulfillHTLC:
		return &wire.UpdateFulfillHTLC{ID: 1}
	case InputPktUpdateFailHTLC:
		return &wire.UpdateFailHTLC{ID: 1}
	case InputPktUpdateCommit:
		return &wire.UpdateCommit{CommitSig: []byte{0x01}}
	case InputPktUpdateRevocation:
		return &wire.UpdateRevocation{Secret: [32]byte{0x01}}
	case InputPktCloseClearing:
		return &wire.CloseClearing{}
	case InputPktCloseSignature:
		return &wire.CloseSignature{FeeSatoshis: 500, Signature: []byte{0x01}}
	case InputPktError:
		return &wire.Error{Text: "boom"}
	default:
		return nil
	}
}
