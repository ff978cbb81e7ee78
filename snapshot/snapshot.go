// Package snapshot checkpoints and replays the subset of
// peerfsm.PeerContext needed to resume a channel after a restart,
// TLV-encoded in the same record style the teacher's channeldb package
// uses for its on-disk channel state (persistence itself — where these
// bytes land — is a Non-goal; this package only defines the encoding).
package snapshot

import (
	"bytes"
	"io"

	"github.com/lightningnetwork/lnd/tlv"

	"github.com/lightningfsm/peerfsm"
)

// TLV type numbers for the checkpointed fields. Kept in their own block
// so inserting a new checkpointed field never reuses a number an older
// snapshot relied on.
const (
	typePeerID          tlv.Type = 0
	typeState           tlv.Type = 1
	typeOurAnchor       tlv.Type = 2
	typeLocalCommitHt   tlv.Type = 3
	typeRemoteCommitHt  tlv.Type = 4
	typeNextHTLCID      tlv.Type = 5
	typeLastRemoteHTLCID tlv.Type = 6
	typeCloseFeeSatoshis tlv.Type = 7
)

// Snapshot is the checkpointed subset of a PeerContext: enough to
// reconstruct State and the commitment/HTLC-ID bookkeeping, but not the
// collaborators (reconnected fresh by the embedding application) or the
// in-flight change logs (spec.md treats a restart mid-transition as
// equivalent to the counterparty retransmitting, not as state to
// persist).
type Snapshot struct {
	PeerID           string
	State            peerfsm.State
	OurAnchor        bool
	LocalCommitHt    uint64
	RemoteCommitHt   uint64
	NextHTLCID       uint64
	LastRemoteHTLCID uint64
	CloseFeeSatoshis uint64
}

// FromPeerContext captures a Snapshot of the given context's durable
// fields.
func FromPeerContext(peer *peerfsm.PeerContext) *Snapshot {
	s := &Snapshot{
		PeerID:           peer.PeerID,
		State:            peer.State,
		OurAnchor:        peer.OurAnchor,
		NextHTLCID:       peer.NextHTLCID,
		LastRemoteHTLCID: peer.LastRemoteHTLCID,
		CloseFeeSatoshis: peer.CloseFeeSatoshis,
	}
	if peer.LocalCommit != nil {
		s.LocalCommitHt = peer.LocalCommit.Height
	}
	if peer.RemoteCommit != nil {
		s.RemoteCommitHt = peer.RemoteCommit.Height
	}
	return s
}

// Encode serializes s as a TLV stream.
func (s *Snapshot) Encode(w io.Writer) error {
	peerID := []byte(s.PeerID)
	state := uint64(s.State)
	ourAnchor := uint8(0)
	if s.OurAnchor {
		ourAnchor = 1
	}

	stream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(typePeerID, &peerID),
		tlv.MakePrimitiveRecord(typeState, &state),
		tlv.MakePrimitiveRecord(typeOurAnchor, &ourAnchor),
		tlv.MakePrimitiveRecord(typeLocalCommitHt, &s.LocalCommitHt),
		tlv.MakePrimitiveRecord(typeRemoteCommitHt, &s.RemoteCommitHt),
		tlv.MakePrimitiveRecord(typeNextHTLCID, &s.NextHTLCID),
		tlv.MakePrimitiveRecord(typeLastRemoteHTLCID, &s.LastRemoteHTLCID),
		tlv.MakePrimitiveRecord(typeCloseFeeSatoshis, &s.CloseFeeSatoshis),
	)
	if err != nil {
		return err
	}
	return stream.Encode(w)
}

// Decode deserializes a Snapshot written by Encode.
func Decode(r io.Reader) (*Snapshot, error) {
	var (
		s         Snapshot
		peerID    []byte
		state     uint64
		ourAnchor uint8
	)

	stream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(typePeerID, &peerID),
		tlv.MakePrimitiveRecord(typeState, &state),
		tlv.MakePrimitiveRecord(typeOurAnchor, &ourAnchor),
		tlv.MakePrimitiveRecord(typeLocalCommitHt, &s.LocalCommitHt),
		tlv.MakePrimitiveRecord(typeRemoteCommitHt, &s.RemoteCommitHt),
		tlv.MakePrimitiveRecord(typeNextHTLCID, &s.NextHTLCID),
		tlv.MakePrimitiveRecord(typeLastRemoteHTLCID, &s.LastRemoteHTLCID),
		tlv.MakePrimitiveRecord(typeCloseFeeSatoshis, &s.CloseFeeSatoshis),
	)
	if err != nil {
		return nil, err
	}
	if err := stream.Decode(r); err != nil {
		return nil, err
	}

	s.PeerID = string(peerID)
	s.State = peerfsm.State(state)
	s.OurAnchor = ourAnchor != 0
	return &s, nil
}

// Restore applies a Snapshot onto a freshly constructed PeerContext
// (built via peerfsm.NewPeerContext with the embedder's own
// collaborators, exactly as on first open).
func (s *Snapshot) Restore(peer *peerfsm.PeerContext) {
	peer.State = s.State
	peer.OurAnchor = s.OurAnchor
	peer.NextHTLCID = s.NextHTLCID
	peer.RestoreRemoteHTLCID(s.LastRemoteHTLCID)
	peer.CloseFeeSatoshis = s.CloseFeeSatoshis
	if s.LocalCommitHt > 0 {
		peer.LocalCommit = &peerfsm.Commitment{Height: s.LocalCommitHt}
	}
	if s.RemoteCommitHt > 0 {
		peer.RemoteCommit = &peerfsm.Commitment{Height: s.RemoteCommitHt}
	}
}

// roundTripBuf is a small helper the package's tests use to avoid
// importing bytes twice in every test file.
func roundTripBuf() *bytes.Buffer { return new(bytes.Buffer) }
