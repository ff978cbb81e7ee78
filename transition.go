package peerfsm

import (
	btcwire "github.com/btcsuite/btcd/wire"
	"github.com/go-errors/errors"

	"github.com/lightningfsm/peerfsm/wire"
)

// Transition is the core entry point (spec.md §4.1, §6: `state`). Given
// the peer's current context, an input, and that input's payload, it
// mutates peer.State and peer's collaborators as side effects, and
// returns the status of whatever command is in flight plus, optionally,
// one transaction the caller must broadcast.
//
// Transition never suspends and never returns a Go error: propagation of
// unrecoverable conditions is entirely through peer.State and the
// returned CommandStatus (spec.md §7).
func Transition(peer *PeerContext, input Input, payload *InputPayload) (CommandStatus, *btcwire.MsgTx) {
	if payload == nil {
		payload = &InputPayload{}
	}

	// Absorbing terminals: no input moves state away from them (spec.md
	// §3 invariant, universal property 2). A command arriving here is
	// still owed an answer.
	if peer.State.IsTerminal() {
		if input.IsCommand() {
			return rejectCommand(peer), nil
		}
		return CommandNone, nil
	}

	switch {
	case peer.State == StateNone || isOpeningState(peer.State):
		return transitionOpening(peer, input, payload)

	case peer.State == StateNormal:
		return transitionNormal(peer, input, payload)

	case isClosingState(peer.State):
		return transitionClosing(peer, input, payload)

	case peer.State.IsOnChainDefense():
		return transitionOnChain(peer, input, payload)

	default:
		return enterInternal(peer, "Transition: unclassified state %s", peer.State)
	}
}

func isOpeningState(s State) bool {
	switch s {
	case StateOpenWaitAnchorCreate, StateOpenWaitForPeerOpen,
		StateOpenWaitForAnchorPkt, StateOpenWaitForCommitSig,
		StateOpenWaitAnchorDepthOurs, StateOpenWaitAnchorDepthTheirs,
		StateOpenWaitForOpenComplete:
		return true
	default:
		return false
	}
}

func isClosingState(s State) bool {
	switch s {
	case StateClearing, StateClosingSigExchange, StateMutualCloseBroadcast:
		return true
	default:
		return false
	}
}

// --- Command bookkeeping helpers ---
//
// At most one command may be outstanding at a time (spec.md §8,
// universal property 5); these helpers centralize that contract so
// every region handler applies it identically.

// beginCommand records input as the in-flight command, rejecting
// whatever the caller passed if one is already outstanding.
func beginCommand(peer *PeerContext, cmd *Command) (started bool, status CommandStatus) {
	if peer.CurrentCmd != nil {
		return false, CommandFailed
	}
	peer.CurrentCmd = cmd
	peer.CurrentCmdInput = cmd.Kind
	return true, CommandInProgress
}

// finishCommand clears the in-flight command and reports its outcome.
func finishCommand(peer *PeerContext, succeeded bool) CommandStatus {
	peer.CurrentCmd = nil
	peer.CurrentCmdInput = InputNone
	status := CommandFailed
	if succeeded {
		status = CommandSucceeded
	}
	peer.LastCommandResult = status
	return status
}

// rejectCommand reports failure for whatever command is in flight
// without touching state — the "Local-command-rejection" path of
// spec.md §7 (command inconsistent with state).
func rejectCommand(peer *PeerContext) CommandStatus {
	if peer.CurrentCmd == nil {
		return CommandFailed
	}
	peer.CurrentCmd = nil
	peer.CurrentCmdInput = InputNone
	peer.LastCommandResult = CommandFailed
	return CommandFailed
}

// --- Protocol violation / internal error paths (spec.md §4.1 cells 3
// and 4, §7) ---

// enterProtocolViolation is cell 3: send the error packet, move to the
// matching error state, fall back to unilateral close if an anchor is
// live, and fail any outstanding command.
func enterProtocolViolation(peer *PeerContext, errPkt *wire.Error, errState State) (CommandStatus, *btcwire.MsgTx) {
	peer.Collaborators.Queue.QueueError(errPkt)
	anchorWasLive := peer.anchorLive()
	peer.State = errState

	var broadcast *btcwire.MsgTx
	if anchorWasLive {
		broadcast = beginOurCommitBroadcast(peer)
	}

	status := CommandNone
	if peer.CurrentCmd != nil {
		status = finishCommand(peer, false)
	}
	return status, broadcast
}

// enterInternal is cell 4: an impossible (state, input) combination was
// reached. It is logged loudly (never silently) and the machine moves
// to the absorbing ErrInternal state; per spec.md §7 the transition
// function still returns normally rather than panicking, so a caller
// driving many peers can't have one bad cell take the whole process
// down. The error is built with go-errors/errors (the teacher's choice
// in discovery/validation.go for anything worth a stack trace) so the
// log line carries the call stack that reached the impossible cell, not
// just its message.
func enterInternal(peer *PeerContext, format string, args ...interface{}) (CommandStatus, *btcwire.MsgTx) {
	err := errors.Errorf("peer %s: impossible state machine cell reached: "+format,
		append([]interface{}{peer.PeerID}, args...)...)
	log.Criticalf("%s", err.ErrorStack())
	peer.State = ErrInternal
	status := CommandNone
	if peer.CurrentCmd != nil {
		status = finishCommand(peer, false)
	}
	return status, nil
}
