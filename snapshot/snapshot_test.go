package snapshot

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lightningfsm/peerfsm"
)

func TestRoundTrip(t *testing.T) {
	peer := peerfsm.NewPeerContext("peer-a", peerfsm.ChannelPolicy{}, peerfsm.Collaborators{})
	peer.State = peerfsm.StateNormal
	peer.OurAnchor = true
	peer.NextHTLCID = 7
	peer.LocalCommit = &peerfsm.Commitment{Height: 3}
	peer.RemoteCommit = &peerfsm.Commitment{Height: 2}
	peer.CloseFeeSatoshis = 1500

	snap := FromPeerContext(peer)
	buf := roundTripBuf()
	require.NoError(t, snap.Encode(buf))

	got, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, "peer-a", got.PeerID)
	require.Equal(t, peerfsm.StateNormal, got.State)
	require.True(t, got.OurAnchor)
	require.Equal(t, uint64(7), got.NextHTLCID)
	require.Equal(t, uint64(3), got.LocalCommitHt)
	require.Equal(t, uint64(2), got.RemoteCommitHt)
	require.Equal(t, uint64(1500), got.CloseFeeSatoshis)

	restored := peerfsm.NewPeerContext("peer-a", peerfsm.ChannelPolicy{}, peerfsm.Collaborators{})
	got.Restore(restored)
	require.Equal(t, peerfsm.StateNormal, restored.State)
	require.Equal(t, uint64(3), restored.LocalCommit.Height)
}
