package peerfsm

import "github.com/lightningfsm/peerfsm/wire"

// Input is the closed set of values that can drive a transition: packets
// received from the counterparty, local commands, on-chain events, and a
// small internal bucket (spec.md §3).
type Input int

const (
	InputNone Input = iota

	// --- Packets: this block must stay contiguous and end at
	// InputPktError; IsPacket below relies on that, mirroring the
	// original header's input_is_pkt range check (spec.md explicitly
	// describes the packet bucket as "ending at PKT_ERROR", unlike the
	// error-state predicate, which spec.md §9 asks not to be
	// range-based). ---

	InputPktOpen
	InputPktOpenAnchor
	InputPktOpenCommitSig
	InputPktOpenComplete
	InputPktUpdateAddHTLC
	InputPktUpdateFulfillHTLC
	InputPktUpdateFailHTLC
	InputPktUpdateCommit
	InputPktUpdateRevocation
	InputPktCloseClearing
	InputPktCloseSignature
	InputPktError

	// --- Commands ---

	InputCmdOpenWithAnchor
	InputCmdOpenWithoutAnchor
	InputCmdSendHTLCAdd
	InputCmdSendHTLCFulfill
	InputCmdSendHTLCFail
	InputCmdClose

	// --- On-chain events ---

	InputBitcoinAnchorCreateDone
	InputBitcoinAnchorDepthOK
	InputBitcoinAnchorTimeout
	InputBitcoinAnchorUnspent
	InputBitcoinAnchorTheySpent
	InputBitcoinAnchorOtherSpent
	InputBitcoinHTLCToUsTimeout
	InputBitcoinHTLCToThemSpent
	InputBitcoinHTLCToThemTimeout
	InputBitcoinCloseDone
	InputBitcoinCloseTimedOut
	InputBitcoinSpendTheirsDone
	InputBitcoinSpendOursDone
	InputBitcoinStealDone
	InputBitcoinCommitCanSpend
	InputBitcoinHTLCSpendDone
	InputBitcoinHTLCTimeoutDone
	InputBitcoinAllHTLCsCleared
	InputBitcoinAllDone

	// --- Internal ---

	// InputInternalError is delivered by the caller when a collaborator
	// reports a failure that the transition function has no other input
	// to represent (e.g. a command descriptor with a malformed payload).
	InputInternalError
)

// IsPacket reports whether i falls in the PKT_* range. Matches
// input_is_pkt from original_source/state.h.
func (i Input) IsPacket() bool {
	return i >= InputPktOpen && i <= InputPktError
}

// IsCommand reports whether i is a local CMD_* intent.
func (i Input) IsCommand() bool {
	return i >= InputCmdOpenWithAnchor && i <= InputCmdClose
}

// isSendHTLCCommand is the Go-native replacement for the original
// header's synthetic CMD_SEND_UPDATE_ANY matcher: spec.md §3 is explicit
// that it is "used only by the transition table, never as a real input",
// so it is a predicate, not an Input value.
func isSendHTLCCommand(i Input) bool {
	switch i {
	case InputCmdSendHTLCAdd, InputCmdSendHTLCFulfill, InputCmdSendHTLCFail:
		return true
	default:
		return false
	}
}

var inputNames = map[Input]string{
	InputNone:                     "none",
	InputPktOpen:                  "pkt_open",
	InputPktOpenAnchor:            "pkt_open_anchor",
	InputPktOpenCommitSig:         "pkt_open_commit_sig",
	InputPktOpenComplete:          "pkt_open_complete",
	InputPktUpdateAddHTLC:         "pkt_update_add_htlc",
	InputPktUpdateFulfillHTLC:     "pkt_update_fulfill_htlc",
	InputPktUpdateFailHTLC:        "pkt_update_fail_htlc",
	InputPktUpdateCommit:          "pkt_update_commit",
	InputPktUpdateRevocation:      "pkt_update_revocation",
	InputPktCloseClearing:         "pkt_close_clearing",
	InputPktCloseSignature:        "pkt_close_signature",
	InputPktError:                 "pkt_error",
	InputCmdOpenWithAnchor:        "cmd_open_with_anchor",
	InputCmdOpenWithoutAnchor:     "cmd_open_without_anchor",
	InputCmdSendHTLCAdd:           "cmd_send_htlc_add",
	InputCmdSendHTLCFulfill:       "cmd_send_htlc_fulfill",
	InputCmdSendHTLCFail:          "cmd_send_htlc_fail",
	InputCmdClose:                 "cmd_close",
	InputBitcoinAnchorCreateDone:  "bitcoin_anchor_create_done",
	InputBitcoinAnchorDepthOK:     "bitcoin_anchor_depthok",
	InputBitcoinAnchorTimeout:     "bitcoin_anchor_timeout",
	InputBitcoinAnchorUnspent:     "bitcoin_anchor_unspent",
	InputBitcoinAnchorTheySpent:   "bitcoin_anchor_theyspent",
	InputBitcoinAnchorOtherSpent:  "bitcoin_anchor_otherspent",
	InputBitcoinHTLCToUsTimeout:   "bitcoin_htlc_tous_timeout",
	InputBitcoinHTLCToThemSpent:   "bitcoin_htlc_tothem_spent",
	InputBitcoinHTLCToThemTimeout: "bitcoin_htlc_tothem_timeout",
	InputBitcoinCloseDone:         "bitcoin_close_done",
	InputBitcoinCloseTimedOut:     "bitcoin_close_timedout",
	InputBitcoinSpendTheirsDone:   "bitcoin_spend_theirs_done",
	InputBitcoinSpendOursDone:     "bitcoin_spend_ours_done",
	InputBitcoinStealDone:         "bitcoin_steal_done",
	InputBitcoinCommitCanSpend:    "bitcoin_commit_canspend",
	InputBitcoinHTLCSpendDone:     "bitcoin_htlc_spend_done",
	InputBitcoinHTLCTimeoutDone:   "bitcoin_htlc_timeout_done",
	InputBitcoinAllHTLCsCleared:   "bitcoin_htlcs_cleared",
	InputBitcoinAllDone:           "bitcoin_all_done",
	InputInternalError:            "internal_error",
}

func (i Input) String() string {
	if name, ok := inputNames[i]; ok {
		return name
	}
	return "unknown_input"
}

// allInputs enumerates the closed set of inputs, used by the
// exhaustiveness test.
func allInputs() []Input {
	return []Input{
		InputNone,
		InputPktOpen, InputPktOpenAnchor, InputPktOpenCommitSig, InputPktOpenComplete,
		InputPktUpdateAddHTLC, InputPktUpdateFulfillHTLC, InputPktUpdateFailHTLC,
		InputPktUpdateCommit, InputPktUpdateRevocation,
		InputPktCloseClearing, InputPktCloseSignature, InputPktError,
		InputCmdOpenWithAnchor, InputCmdOpenWithoutAnchor,
		InputCmdSendHTLCAdd, InputCmdSendHTLCFulfill, InputCmdSendHTLCFail,
		InputCmdClose,
		InputBitcoinAnchorCreateDone, InputBitcoinAnchorDepthOK, InputBitcoinAnchorTimeout,
		InputBitcoinAnchorUnspent, InputBitcoinAnchorTheySpent, InputBitcoinAnchorOtherSpent,
		InputBitcoinHTLCToUsTimeout, InputBitcoinHTLCToThemSpent, InputBitcoinHTLCToThemTimeout,
		InputBitcoinCloseDone, InputBitcoinCloseTimedOut,
		InputBitcoinSpendTheirsDone, InputBitcoinSpendOursDone, InputBitcoinStealDone, InputBitcoinCommitCanSpend,
		InputBitcoinHTLCSpendDone, InputBitcoinHTLCTimeoutDone,
		InputBitcoinAllHTLCsCleared, InputBitcoinAllDone,
		InputInternalError,
	}
}

// InputPayload is the tagged union described by spec.md §3: exactly one
// field is populated, and which one is implied by the Input value itself
// (checked at acceptor/dispatch entry, not by a discriminant field).
type InputPayload struct {
	Packet       wire.Packet
	Command      *Command
	ChainEvent   *ChainEvent
	HTLC         *HTLC
	HTLCProgress *HTLCProgress
}
