package peerfsm

import (
	btcwire "github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningfsm/peerfsm/wire"
)

// ChannelPolicy carries the limits acceptors enforce. Fee/CLTV *policy*
// decisions are explicitly out of the core's decision rights (spec.md
// §1); the core only checks candidate values against whatever policy its
// caller supplies here.
type ChannelPolicy struct {
	MinHTLCMilliSat     uint64
	MaxHTLCMilliSat     uint64
	MaxAcceptedHTLCs    int
	MinCltvExpiryDelta  uint32
	MaxCltvExpiry       uint32
	ChannelReserveSat   uint64
}

// Commitment is one side's latest signed commitment transaction, along
// with the HTLC set it carries and its rotation index.
type Commitment struct {
	Height uint64
	Tx     *btcwire.MsgTx
	HTLCs  []*HTLC
}

// ChangeLog tracks HTLCs staged but not yet present in a signed
// commitment on both sides (spec.md §3, staged_changes).
type ChangeLog struct {
	// Adds are newly proposed HTLCs awaiting inclusion in the next
	// commitment of the given direction.
	Adds []*HTLC

	// Fulfills/Fails index by HTLC ID: a committed HTLC that a
	// CMD_SEND_HTLC_FULFILL/FAIL or its packet counterpart has marked
	// for removal once revoked into the next commitment.
	Fulfills map[uint64]*HTLC
	Fails    map[uint64]*HTLC
}

func newChangeLog() *ChangeLog {
	return &ChangeLog{
		Fulfills: make(map[uint64]*HTLC),
		Fails:    make(map[uint64]*HTLC),
	}
}

func (c *ChangeLog) isEmpty() bool {
	return len(c.Adds) == 0 && len(c.Fulfills) == 0 && len(c.Fails) == 0
}

// Command is the local intent a CMD_* input carries (spec.md §3's
// "command descriptor").
type Command struct {
	Kind Input

	// AnchorOffer is populated for CMD_OPEN_WITH_ANCHOR/WITHOUT_ANCHOR.
	AnchorOffer wire.AnchorOffer

	// HTLC is populated for CMD_SEND_HTLC_ADD: the proposed HTLC.
	HTLC *HTLC

	// HTLCID/Preimage/Reason are populated for CMD_SEND_HTLC_FULFILL
	// and CMD_SEND_HTLC_FAIL, referencing a committed, incoming HTLC.
	HTLCID   uint64
	Preimage *[32]byte
	Reason   wire.FailureReason
}

// ChainEvent is the payload a BITCOIN_* input carries — mirrors struct
// bitcoin_event from original_source/state.h.
type ChainEvent struct {
	TxID chainhash.Hash

	// CommitHeight is the rotation index of the commitment this event
	// concerns, when applicable (theyspent/otherspent need it to decide
	// latest-vs-revoked; spend/timeout events need it to locate the
	// HTLC set).
	CommitHeight uint64

	// SpendingTx is the transaction observed spending the watched
	// output, when the event is a spend notification.
	SpendingTx *btcwire.MsgTx

	// Depth is the confirmation depth observed, for depth-triggered
	// events (BITCOIN_ANCHOR_DEPTHOK, burial notifications).
	Depth uint32
}

// WatchKey uniquely identifies an active watch registration by the
// firing input(s) it was armed with — the "unique key for
// deregistration" spec.md §5 calls for, and the reverse-dispatch key
// spec.md §9's cyclic-ownership note asks the watcher to index by.
type WatchKey struct {
	Kind   string
	Inputs [4]Input
}

// PeerContext is the mutable, per-channel data exclusively owned by the
// machine while a transition runs (spec.md §3).
type PeerContext struct {
	PeerID       string
	ChannelPoint btcwire.OutPoint

	State State

	// OurAnchor is true if we are the side funding the anchor.
	OurAnchor  bool
	AnchorTx   *btcwire.MsgTx
	AnchorOut  btcwire.OutPoint

	LocalCommit  *Commitment
	RemoteCommit *Commitment

	StagedLocal  *ChangeLog // changes destined for our next commitment
	StagedRemote *ChangeLog // changes destined for their next commitment

	// CommittedHTLCs holds every HTLC live in the current commitment(s),
	// keyed by ID.
	CommittedHTLCs map[uint64]*HTLC

	NextHTLCID       uint64
	LastRemoteHTLCID uint64
	sawRemoteHTLC    bool

	CloseScript      []byte
	CloseFeeSatoshis uint64
	TheirCloseSig    []byte
	WeSentCloseSig   bool

	// ActiveWatches is the opaque set of registered watch handles; see
	// WatchKey's doc comment.
	ActiveWatches map[WatchKey]struct{}

	// CurrentCmd is non-empty only while a command-originated
	// transition is in flight (spec.md §3 invariant); CurrentCmdInput
	// records which Input started it so failure/success reporting
	// doesn't need a second field to disambiguate.
	CurrentCmd      *Command
	CurrentCmdInput Input

	// LastCommandResult records the outcome of the most recently
	// resolved command. A CMD_SEND_HTLC_* stays in-progress across the
	// packet-originated transitions that lock it in, and those always
	// return CommandNone themselves (spec.md §3 invariant) — this is how
	// a caller driving the machine observes that asynchronous resolution.
	LastCommandResult CommandStatus

	Policy ChannelPolicy

	Collaborators Collaborators
}

// NewPeerContext returns a peer context in its pre-handshake StateNone.
func NewPeerContext(peerID string, policy ChannelPolicy, collabs Collaborators) *PeerContext {
	return &PeerContext{
		PeerID:         peerID,
		State:          StateNone,
		StagedLocal:    newChangeLog(),
		StagedRemote:   newChangeLog(),
		CommittedHTLCs: make(map[uint64]*HTLC),
		ActiveWatches:  make(map[WatchKey]struct{}),
		Policy:         policy,
		Collaborators:  collabs,
	}
}

// anchorLive reports whether there is a live anchor to fall back to a
// unilateral close with — used by the protocol-violation path (spec.md
// §4.1, cell 3: "cause any live anchor to be spent via our commit").
func (p *PeerContext) anchorLive() bool {
	return p.State != StateNone &&
		p.State != StateOpenWaitAnchorCreate &&
		p.State != StateOpenWaitForPeerOpen &&
		p.State != StateOpenWaitForAnchorPkt &&
		!p.State.IsTerminal()
}

// RestoreRemoteHTLCID sets the last-seen remote HTLC ID after a restart,
// so acceptPktHTLCAdd's monotonicity check (spec.md §4.2) continues to
// reject replays of an ID the counterparty already used before the
// restart.
func (p *PeerContext) RestoreRemoteHTLCID(id uint64) {
	p.LastRemoteHTLCID = id
	p.sawRemoteHTLC = true
}

// addWatch/removeWatch record the opaque handles described by WatchKey.
func (p *PeerContext) addWatch(key WatchKey) {
	p.ActiveWatches[key] = struct{}{}
}

func (p *PeerContext) removeWatch(key WatchKey) {
	delete(p.ActiveWatches, key)
}

// noActiveWatches reports whether the peer has no registered watch left
// (HTLC outputs, delayed output, spends); used to decide when the
// on-chain region moves to the final burial state.
func (p *PeerContext) noActiveWatches() bool {
	return len(p.ActiveWatches) == 0
}
