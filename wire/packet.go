// Package wire defines the shapes of the packets exchanged between two
// channel peers. It intentionally stops short of a wire codec: framing,
// byte-level encoding and transport are a collaborator concern handled
// outside this repository (see SPEC_FULL.md, Non-goals). What lives here
// is the typed payload each PKT_* carries, so that peerfsm's acceptors have
// something concrete to validate.
package wire

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// PacketType is the unique identifier of a packet kind, mirroring the
// MessageType convention used for the lightning wire protocol.
type PacketType uint16

const (
	PacketOpen PacketType = iota
	PacketOpenAnchor
	PacketOpenCommitSig
	PacketOpenComplete
	PacketUpdateAddHTLC
	PacketUpdateFulfillHTLC
	PacketUpdateFailHTLC
	PacketUpdateCommit
	PacketUpdateRevocation
	PacketCloseClearing
	PacketCloseSignature

	// PacketError terminates the packet range; input_is_pkt in the
	// original header treats anything at or below this value as a
	// packet. peerfsm.Input mirrors that boundary with its own range
	// check (Input.IsPacket, InputPktOpen through InputPktError).
	PacketError
)

func (t PacketType) String() string {
	switch t {
	case PacketOpen:
		return "open"
	case PacketOpenAnchor:
		return "open_anchor"
	case PacketOpenCommitSig:
		return "open_commit_sig"
	case PacketOpenComplete:
		return "open_complete"
	case PacketUpdateAddHTLC:
		return "update_add_htlc"
	case PacketUpdateFulfillHTLC:
		return "update_fulfill_htlc"
	case PacketUpdateFailHTLC:
		return "update_fail_htlc"
	case PacketUpdateCommit:
		return "update_commit"
	case PacketUpdateRevocation:
		return "update_revocation"
	case PacketCloseClearing:
		return "close_clearing"
	case PacketCloseSignature:
		return "close_signature"
	case PacketError:
		return "error"
	default:
		return "unknown"
	}
}

// Packet is implemented by every packet payload a peer can send or
// receive. It is deliberately free of Encode/Decode methods: byte framing
// is out of scope here.
type Packet interface {
	PacketType() PacketType
}

// AnchorOffer mirrors OpenChannel__AnchorOffer from the original header:
// which side is proposing to put up the anchor.
type AnchorOffer uint8

const (
	AnchorOfferWillCreate AnchorOffer = iota
	AnchorOfferWontCreate
)

// Open is PKT_OPEN: the first message of the opening handshake.
type Open struct {
	AnchorOffer    AnchorOffer
	FeeRatePerKw   uint32
	ChannelReserve uint64
	RevocationHash chainhash.Hash
	CommitKey      *btcec.PublicKey
}

func (*Open) PacketType() PacketType { return PacketOpen }

// OpenAnchor is PKT_OPEN_ANCHOR, sent by whichever side creates the
// anchor transaction.
type OpenAnchor struct {
	TxID   chainhash.Hash
	Output uint32
	Amount int64
}

func (*OpenAnchor) PacketType() PacketType { return PacketOpenAnchor }

// OpenCommitSig is PKT_OPEN_COMMIT_SIG, the signature over the recipient's
// first commitment transaction.
type OpenCommitSig struct {
	Signature []byte
}

func (*OpenCommitSig) PacketType() PacketType { return PacketOpenCommitSig }

// OpenComplete is PKT_OPEN_COMPLETE, sent once a side has seen the anchor
// reach its required depth.
type OpenComplete struct{}

func (*OpenComplete) PacketType() PacketType { return PacketOpenComplete }

// UpdateAddHTLC is PKT_UPDATE_ADD_HTLC.
type UpdateAddHTLC struct {
	ID              uint64
	AmountMilliSat  uint64
	PaymentHash     chainhash.Hash
	CltvExpiry      uint32
	OnionBlob       [1366]byte
}

func (*UpdateAddHTLC) PacketType() PacketType { return PacketUpdateAddHTLC }

// UpdateFulfillHTLC is PKT_UPDATE_FULFILL_HTLC.
type UpdateFulfillHTLC struct {
	ID            uint64
	PaymentPreimage [32]byte
}

func (*UpdateFulfillHTLC) PacketType() PacketType { return PacketUpdateFulfillHTLC }

// FailureReason is an opaque, collaborator-supplied failure code; the
// onion-error format itself is out of scope here.
type FailureReason []byte

// UpdateFailHTLC is PKT_UPDATE_FAIL_HTLC.
type UpdateFailHTLC struct {
	ID     uint64
	Reason FailureReason
}

func (*UpdateFailHTLC) PacketType() PacketType { return PacketUpdateFailHTLC }

// UpdateCommit is PKT_UPDATE_COMMIT: a signature over the receiver's next
// commitment built from the changes staged so far.
type UpdateCommit struct {
	CommitSig []byte
}

func (*UpdateCommit) PacketType() PacketType { return PacketUpdateCommit }

// UpdateRevocation is PKT_UPDATE_REVOCATION: reveals the per-commitment
// secret of the now-superseded local commitment.
type UpdateRevocation struct {
	Secret      [32]byte
	NextPoint   *btcec.PublicKey
}

func (*UpdateRevocation) PacketType() PacketType { return PacketUpdateRevocation }

// CloseClearing is PKT_CLOSE_CLEARING: enters the clearing sub-protocol.
type CloseClearing struct {
	ScriptToSelf []byte
}

func (*CloseClearing) PacketType() PacketType { return PacketCloseClearing }

// CloseSignature is PKT_CLOSE_SIGNATURE: a candidate mutual-close fee and
// the signature over the close transaction that pays it.
type CloseSignature struct {
	FeeSatoshis uint64
	Signature   []byte
}

func (*CloseSignature) PacketType() PacketType { return PacketCloseSignature }

// Error is PKT_ERROR: a diagnostic-only description of a protocol
// violation. Its text is never interpreted by the state machine.
type Error struct {
	Text string
}

func (*Error) PacketType() PacketType { return PacketError }
