package peerfsm

import (
	"testing"

	btcwire "github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/lightningfsm/peerfsm/wire"
)

// fixedRevocationStore answers Lookup with a single canned secret for one
// commitment height, regardless of what Store records — enough to drive
// the cheat-detection path without a real revocation.Store.
type fixedRevocationStore struct {
	height uint64
	secret [32]byte
	have   bool
}

func (s *fixedRevocationStore) Store(height uint64, secret [32]byte) {
	s.height, s.secret, s.have = height, secret, true
}

func (s *fixedRevocationStore) Lookup(height uint64) ([32]byte, bool) {
	if s.have && height == s.height {
		return s.secret, true
	}
	return [32]byte{}, false
}

// testCheatDetector is the same Lookup-then-Steal decision package breach
// makes, reimplemented here rather than imported: breach imports peerfsm,
// so an internal peerfsm test can't import breach back without a cycle.
type testCheatDetector struct {
	revocations RevocationStore
	builder     TxBuilder
}

func (d testCheatDetector) Justice(peer *PeerContext, event *ChainEvent) (*btcwire.MsgTx, bool) {
	secret, ok := d.revocations.Lookup(event.CommitHeight)
	if !ok {
		return nil, false
	}
	return d.builder.Steal(peer, event, secret), true
}

// TestCheatDetected exercises spec.md §8 scenario S3: the counterparty
// broadcasts a commitment number lower than their latest, and the
// machine must answer with a steal transaction rather than the ordinary
// spend-theirs path.
func TestCheatDetected(t *testing.T) {
	q := &recordingQueue{}
	peer := newTestPeer(t, q, true)
	peer.State = StateNormal
	peer.RemoteCommit = &Commitment{Height: 2}

	revocations := &fixedRevocationStore{}
	revocations.Store(1, [32]byte{0x55})
	peer.Collaborators.Revocations = revocations
	peer.Collaborators.Cheat = testCheatDetector{revocations: revocations, builder: nopBuilder{}}

	status, tx := Transition(peer, InputBitcoinAnchorTheySpent, &InputPayload{
		ChainEvent: &ChainEvent{CommitHeight: 1},
	})
	require.Equal(t, CommandNone, status)
	require.Equal(t, StateCheatSpend, peer.State)
	require.NotNil(t, tx, "a revoked broadcast must yield a steal transaction")
	require.Contains(t, peer.ActiveWatches, stealWatchKey)
}

// TestTheirLatestCommitSpend is the non-cheat counterpart: the
// counterparty's broadcast commitment is their latest, so we fall back
// to the ordinary spend-theirs path instead of stealing.
func TestTheirLatestCommitSpend(t *testing.T) {
	peer := newTestPeer(t, &recordingQueue{}, true)
	peer.State = StateNormal
	peer.RemoteCommit = &Commitment{Height: 2}

	status, tx := Transition(peer, InputBitcoinAnchorTheySpent, &InputPayload{
		ChainEvent: &ChainEvent{CommitHeight: 2},
	})
	require.Equal(t, CommandNone, status)
	require.Equal(t, StateTheirCommitSpend, peer.State)
	require.NotNil(t, tx)
	require.Contains(t, peer.ActiveWatches, theirCommitWatchKey)
}

// TestUnexpectedPacketInNormal exercises spec.md §8 scenario S5: an
// opening-only packet arriving once the channel is already in
// StateNormal is syntactically valid but contextually impossible, so it
// must route through peer_unexpected_pkt rather than a field-validation
// acceptor.
func TestUnexpectedPacketInNormal(t *testing.T) {
	q := &recordingQueue{}
	peer := newTestPeer(t, q, true)
	peer.State = StateNormal

	status, tx := Transition(peer, InputPktOpen, &InputPayload{
		Packet: &wire.Open{FeeRatePerKw: 253, AnchorOffer: wire.AnchorOfferWontCreate},
	})
	require.Equal(t, CommandNone, status)
	require.Equal(t, StateOurCommitBroadcast, peer.State)
	require.NotNil(t, tx)
	require.Contains(t, q.sent, "error")
}

// TestHTLCTimeoutOnChain exercises spec.md §8 scenario S6: our own
// commitment is already on chain with one offered HTLC past its CLTV
// expiry, and BITCOIN_HTLC_TOUS_TIMEOUT must produce a reclaiming
// transaction and move the HTLC to on-chain resolution.
func TestHTLCTimeoutOnChain(t *testing.T) {
	peer := newTestPeer(t, &recordingQueue{}, true)
	peer.State = StateOurCommitBroadcast

	htlc := &HTLC{ID: 1, Offered: true, Status: HTLCCommitted}
	peer.CommittedHTLCs[htlc.ID] = htlc
	peer.addWatch(delayedWatchKey)
	peer.addWatch(htlcWatchKey(htlc))

	status, tx := Transition(peer, InputBitcoinHTLCToUsTimeout, &InputPayload{HTLC: htlc})
	require.Equal(t, CommandNone, status)
	require.NotNil(t, tx, "a timed-out offered HTLC must yield bitcoin_htlc_timeout")
	require.Equal(t, HTLCResolvedOnChain, htlc.Status)
	require.Equal(t, StateOurCommitBroadcast, peer.State)

	// Once the spend itself is confirmed and the delayed output clears,
	// every watch retires and the channel reaches its absorbing terminal.
	peer.removeWatch(delayedWatchKey)
	status, _ = Transition(peer, InputBitcoinHTLCSpendDone, &InputPayload{HTLC: htlc})
	require.Equal(t, CommandNone, status)
	require.Equal(t, StateClosed, peer.State)
	require.True(t, peer.State.IsTerminal())
}
