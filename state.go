// Package peerfsm implements the per-peer payment-channel state machine:
// the closed state/input enums, the peer context, the transition table,
// and the packet acceptors. It is the core described by SPEC_FULL.md;
// everything it needs from the outside world — packet delivery, chain
// watching, transaction construction, fee policy — is consumed through
// the collaborator interfaces in collaborators.go.
package peerfsm

// State is the single enumerated value tracked per peer. The zero value,
// StateNone, is the pre-handshake state before either CMD_OPEN_* has been
// issued; it is never revisited once left.
type State int

const (
	StateNone State = iota

	// --- Opening region ---

	// StateOpenWaitAnchorCreate is entered when we've issued
	// CMD_OPEN_WITH_ANCHOR and are waiting for bitcoin_create_anchor's
	// completion input before we can send PKT_OPEN.
	StateOpenWaitAnchorCreate

	// StateOpenWaitForPeerOpen is entered once our own PKT_OPEN has been
	// queued (immediately, for the non-anchor side; after anchor
	// creation completes, for the anchor side) and we're waiting for the
	// counterparty's PKT_OPEN.
	StateOpenWaitForPeerOpen

	// StateOpenWaitForAnchorPkt is only reachable on the non-anchor side:
	// we've exchanged PKT_OPEN and are waiting for PKT_OPEN_ANCHOR.
	StateOpenWaitForAnchorPkt

	// StateOpenWaitForCommitSig is entered once the anchor record (ours
	// or theirs) is settled and we're waiting for PKT_OPEN_COMMIT_SIG
	// over our first commitment.
	StateOpenWaitForCommitSig

	// StateOpenWaitAnchorDepthOurs is the anchor-holder's wait for
	// BITCOIN_ANCHOR_DEPTHOK; it never times itself out (spec.md §4.1,
	// opening sub-protocol step 3).
	StateOpenWaitAnchorDepthOurs

	// StateOpenWaitAnchorDepthTheirs is the non-anchor side's wait for
	// BITCOIN_ANCHOR_DEPTHOK; BITCOIN_ANCHOR_TIMEOUT is live here.
	StateOpenWaitAnchorDepthTheirs

	// StateOpenWaitForOpenComplete is entered after sending our own
	// PKT_OPEN_COMPLETE; receipt of theirs transitions to StateNormal.
	StateOpenWaitForOpenComplete

	// --- Normal region ---

	// StateNormal is the single steady-state: HTLCs are staged,
	// committed, fulfilled, and failed, and commitments rotate, all
	// tracked through PeerContext fields rather than sub-states (see
	// DESIGN.md's "simultaneous-proposal turn-taking" decision).
	StateNormal

	// --- Clearing & closing region ---

	// StateClearing disallows new HTLC proposals; existing ones must
	// settle before fee negotiation can start.
	StateClearing

	// StateClosingSigExchange is entered once committed_to_htlcs is
	// false; both sides trade PKT_CLOSE_SIGNATURE until the fees match.
	StateClosingSigExchange

	// StateMutualCloseBroadcast is entered once a matching close
	// signature is in hand and the mutual close tx has been broadcast;
	// waiting for burial or a close timeout.
	StateMutualCloseBroadcast

	// --- Unilateral close & on-chain defense region ---

	// StateOurCommitBroadcast is entered whenever we broadcast our own
	// commitment (protocol violation fallback, or an explicit decision).
	StateOurCommitBroadcast

	// StateTheirCommitSpend is entered when the counterparty broadcasts
	// their latest commitment.
	StateTheirCommitSpend

	// StateCheatSpend is entered when the counterparty broadcasts a
	// revoked commitment; we steal it.
	StateCheatSpend

	// StateOnChainWaitHTLCs is entered once one of the above broadcasts
	// has happened and we're watching per-HTLC outputs resolve.
	StateOnChainWaitHTLCs

	// StateClosed is the absorbing "closed and buried" terminal state.
	StateClosed

	// --- Error region (contiguous, but see IsError: the predicate is
	// attached per-variant, not derived from this ordering) ---

	// ErrAnchorTimeout: the anchor we were watching for the other side
	// never reached depth in time.
	ErrAnchorTimeout

	// ErrProtocolViolation: the counterparty sent something invalid or
	// out of sequence.
	ErrProtocolViolation

	// ErrBreakdown: a generic on-chain anomaly we could not attribute to
	// either of the above (e.g. the anchor spent by a transaction that is
	// neither party's commitment).
	ErrBreakdown

	// ErrInternal: an impossible (state, input) cell was reached, or an
	// invariant broke. Fatal, and loud by construction (see
	// enterInternal in transition.go).
	ErrInternal
)

// errorStates lists every State for which IsError reports true. Spec.md
// §9 asks that the range predicate not depend on enumerator integer
// values; attaching it to a lookup keyed by the variant itself (instead
// of a `s >= X && s <= Y` comparison) means reordering or inserting a
// state elsewhere in this block cannot silently break the predicate.
var errorStates = map[State]bool{
	ErrAnchorTimeout:    true,
	ErrProtocolViolation: true,
	ErrBreakdown:        true,
	ErrInternal:         true,
}

// IsError reports whether s is one of the terminal error states.
func (s State) IsError() bool {
	return errorStates[s]
}

// IsTerminal reports whether s is absorbing: no input transitions out of
// it except to itself (spec.md §3 invariants).
func (s State) IsTerminal() bool {
	return s.IsError() || s == StateClosed
}

// IsOnChainDefense reports whether s belongs to the unilateral-close
// region, where a commitment (ours, theirs, or a stolen one) is already
// on chain and we're watching its outputs resolve.
func (s State) IsOnChainDefense() bool {
	switch s {
	case StateOurCommitBroadcast, StateTheirCommitSpend, StateCheatSpend,
		StateOnChainWaitHTLCs:
		return true
	default:
		return false
	}
}

var stateNames = map[State]string{
	StateNone:                      "none",
	StateOpenWaitAnchorCreate:      "open_wait_anchor_create",
	StateOpenWaitForPeerOpen:       "open_wait_for_peer_open",
	StateOpenWaitForAnchorPkt:      "open_wait_for_anchor_pkt",
	StateOpenWaitForCommitSig:      "open_wait_for_commit_sig",
	StateOpenWaitAnchorDepthOurs:   "open_wait_anchor_depth_ours",
	StateOpenWaitAnchorDepthTheirs: "open_wait_anchor_depth_theirs",
	StateOpenWaitForOpenComplete:   "open_wait_for_open_complete",
	StateNormal:                    "normal",
	StateClearing:                  "clearing",
	StateClosingSigExchange:        "closing_sig_exchange",
	StateMutualCloseBroadcast:      "mutual_close_broadcast",
	StateOurCommitBroadcast:        "our_commit_broadcast",
	StateTheirCommitSpend:          "their_commit_spend",
	StateCheatSpend:                "cheat_spend",
	StateOnChainWaitHTLCs:          "onchain_wait_htlcs",
	StateClosed:                    "closed",
	ErrAnchorTimeout:               "err_anchor_timeout",
	ErrProtocolViolation:           "err_protocol_violation",
	ErrBreakdown:                   "err_breakdown",
	ErrInternal:                    "err_internal",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown_state"
}

// allStates enumerates the closed set of states, used by the
// exhaustiveness test to verify every (state, input) cell has been
// classified.
func allStates() []State {
	return []State{
		StateNone,
		StateOpenWaitAnchorCreate,
		StateOpenWaitForPeerOpen,
		StateOpenWaitForAnchorPkt,
		StateOpenWaitForCommitSig,
		StateOpenWaitAnchorDepthOurs,
		StateOpenWaitAnchorDepthTheirs,
		StateOpenWaitForOpenComplete,
		StateNormal,
		StateClearing,
		StateClosingSigExchange,
		StateMutualCloseBroadcast,
		StateOurCommitBroadcast,
		StateTheirCommitSpend,
		StateCheatSpend,
		StateOnChainWaitHTLCs,
		StateClosed,
		ErrAnchorTimeout,
		ErrProtocolViolation,
		ErrBreakdown,
		ErrInternal,
	}
}
