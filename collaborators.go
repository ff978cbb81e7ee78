package peerfsm

import (
	btcwire "github.com/btcsuite/btcd/wire"
	"github.com/lightningfsm/peerfsm/wire"
)

// PacketQueue is the packet-sending collaborator (spec.md §6, "Packet
// queue"). Every Queue* call enqueues one outgoing packet; the
// transition function guarantees these are called in the exact order
// the packets must be sent (spec.md §5, ordering guarantees).
type PacketQueue interface {
	QueueOpen(offer wire.AnchorOffer)
	QueueAnchor()
	QueueOpenCommitSig()
	QueueOpenComplete()
	QueueHTLCAdd(progress *HTLCProgress)
	QueueHTLCFulfill(progress *HTLCProgress)
	QueueHTLCFail(progress *HTLCProgress)
	QueueCommit()
	QueueRevocation()
	QueueCloseClearing()
	QueueCloseSignature()
	QueueError(err *wire.Error)
}

// Watcher is the blockchain-watch collaborator (spec.md §6, §4.3).
// Watches are capability intents, not implementations: registering one
// tells the collaborator which Input to deliver back into this peer's
// mailbox when the named condition fires.
type Watcher interface {
	WatchAnchor(depthOK, timeout, unspent, theySpent, otherSpent Input)
	UnwatchAnchorDepth(depthOK, timeout Input)
	WatchDelayed(tx *btcwire.MsgTx, canSpend Input)
	WatchTx(tx *btcwire.MsgTx, done Input)
	WatchClose(done, timedOut Input)
	UnwatchCloseTimeout(timedOut Input)

	// WatchOurHTLCOutputs/WatchTheirHTLCOutputs report whether any
	// outputs existed to watch. On false the transition code registers
	// no per-HTLC watch keys and delivers no all_done input; burial then
	// follows once the remaining watches retire.
	WatchOurHTLCOutputs(tx *btcwire.MsgTx, tousTimeout, tothemSpent, tothemTimeout Input) bool
	WatchTheirHTLCOutputs(event *ChainEvent, tousTimeout, tothemSpent, tothemTimeout Input) bool

	UnwatchHTLCOutput(htlc *HTLC, allDone Input)
	UnwatchAllHTLCOutputs()
	WatchHTLCSpend(tx *btcwire.MsgTx, htlc *HTLC, done Input)
	UnwatchHTLCSpend(htlc *HTLC, allDone Input)
	WatchHTLCsCleared(allDone Input)
}

// TxBuilder is the transaction-construction collaborator (spec.md §6,
// §4.4). Every method is a pure constructor from peer state; none of
// them sign with counterparty keys the caller does not hold.
type TxBuilder interface {
	CreateAnchor(done Input)
	ReleaseAnchor(done Input)
	Anchor(peer *PeerContext) *btcwire.MsgTx
	Close(peer *PeerContext) *btcwire.MsgTx
	SpendOurs(peer *PeerContext) *btcwire.MsgTx
	SpendTheirs(peer *PeerContext, event *ChainEvent) *btcwire.MsgTx
	Steal(peer *PeerContext, event *ChainEvent, revocationSecret [32]byte) *btcwire.MsgTx
	Commit(peer *PeerContext) *btcwire.MsgTx
	HTLCTimeout(peer *PeerContext, htlc *HTLC) *btcwire.MsgTx
	HTLCSpend(peer *PeerContext, htlc *HTLC) *btcwire.MsgTx
}

// FeePolicy computes the fee we offer during mutual-close negotiation.
type FeePolicy interface {
	CalculateCloseFee(peer *PeerContext) uint64
}

// HTLCDiscovery parses an on-chain spend for a revealed preimage.
type HTLCDiscovery interface {
	TxRevealedRValue(peer *PeerContext, event *ChainEvent) (*HTLC, [32]byte, bool)
}

// Queries answers small yes/no questions the transition function needs
// but does not want to compute itself from raw commitment data.
type Queries interface {
	CommittedToHTLCs(peer *PeerContext) bool
	HasCloseSig(peer *PeerContext) bool
}

// RevocationStore records and looks up per-commitment revocation
// secrets, used to build the steal transaction when a revoked
// commitment is broadcast (spec.md §4.1, "No-funds-loss").
type RevocationStore interface {
	Store(commitHeight uint64, secret [32]byte)
	Lookup(commitHeight uint64) ([32]byte, bool)
}

// CheatDetector decides, for every counterparty anchor spend, whether the
// broadcast commitment is a revoked one we can punish; a false result
// sends the caller down the spend-theirs path — mirrors breachArbiter.exactRetribution
// trimmed to its core Lookup-then-Steal decision (package breach
// implements this).
type CheatDetector interface {
	Justice(peer *PeerContext, event *ChainEvent) (tx *btcwire.MsgTx, revoked bool)
}

// Collaborators bundles every role a PeerContext needs. One struct
// fulfilling it all is the common case (mirrors the teacher's peer
// struct embedding *lnwallet.LightningChannel and talking to htlcswitch
// the same way), but each field is independently satisfiable for tests.
type Collaborators struct {
	Queue       PacketQueue
	Watcher     Watcher
	Builder     TxBuilder
	Fees        FeePolicy
	Discovery   HTLCDiscovery
	Queries     Queries
	Revocations RevocationStore
	Cheat       CheatDetector
}
