package peerfsm

import (
	btcwire "github.com/btcsuite/btcd/wire"
	"github.com/lightningfsm/peerfsm/wire"
)

// transitionOpening handles StateNone plus every StateOpenWait* state:
// the handshake described by spec.md §4.1's "Opening sub-protocol".
func transitionOpening(peer *PeerContext, input Input, payload *InputPayload) (CommandStatus, *btcwire.MsgTx) {
	// An anchor spend can be observed while any opening watch is live,
	// regardless of which specific handshake step we're on; route it to
	// the on-chain defense path immediately rather than duplicating that
	// logic in every opening state (spec.md §4.1, "Unilateral close &
	// on-chain defense" triggers apply here too).
	if input == InputBitcoinAnchorTheySpent || input == InputBitcoinAnchorOtherSpent {
		if peer.State == StateOpenWaitAnchorDepthOurs || peer.State == StateOpenWaitAnchorDepthTheirs ||
			peer.State == StateOpenWaitForOpenComplete {
			return handleAnchorSpendDuringOpen(peer, input, payload)
		}
	}

	switch peer.State {
	case StateNone:
		return transitionNoneState(peer, input, payload)
	case StateOpenWaitAnchorCreate:
		return transitionWaitAnchorCreate(peer, input, payload)
	case StateOpenWaitForPeerOpen:
		return transitionWaitForPeerOpen(peer, input, payload)
	case StateOpenWaitForAnchorPkt:
		return transitionWaitForAnchorPkt(peer, input, payload)
	case StateOpenWaitForCommitSig:
		return transitionWaitForCommitSig(peer, input, payload)
	case StateOpenWaitAnchorDepthOurs:
		return transitionWaitAnchorDepth(peer, input, payload, true)
	case StateOpenWaitAnchorDepthTheirs:
		return transitionWaitAnchorDepth(peer, input, payload, false)
	case StateOpenWaitForOpenComplete:
		return transitionWaitForOpenComplete(peer, input, payload)
	default:
		return enterInternal(peer, "transitionOpening: unreachable state %s", peer.State)
	}
}

func transitionNoneState(peer *PeerContext, input Input, payload *InputPayload) (CommandStatus, *btcwire.MsgTx) {
	switch input {
	case InputCmdOpenWithAnchor:
		started, status := beginCommand(peer, payload.Command)
		if !started {
			return status, nil
		}
		peer.OurAnchor = true
		peer.Collaborators.Builder.CreateAnchor(InputBitcoinAnchorCreateDone)
		peer.State = StateOpenWaitAnchorCreate
		return CommandInProgress, nil

	case InputCmdOpenWithoutAnchor:
		started, status := beginCommand(peer, payload.Command)
		if !started {
			return status, nil
		}
		peer.OurAnchor = false
		peer.Collaborators.Queue.QueueOpen(wire.AnchorOfferWontCreate)
		peer.State = StateOpenWaitForPeerOpen
		return CommandInProgress, nil

	case InputPktOpen, InputPktOpenAnchor, InputPktOpenCommitSig, InputPktOpenComplete:
		// We haven't even decided to open yet; this is the
		// counterparty getting ahead of itself.
		errPkt := pktErrUnexpected(peer, payload.Packet)
		return enterProtocolViolation(peer, errPkt, ErrProtocolViolation)

	default:
		if input.IsCommand() {
			return rejectCommand(peer), nil
		}
		return enterInternal(peer, "transitionNoneState: unhandled input %s", input)
	}
}

func transitionWaitAnchorCreate(peer *PeerContext, input Input, payload *InputPayload) (CommandStatus, *btcwire.MsgTx) {
	switch input {
	case InputBitcoinAnchorCreateDone:
		peer.Collaborators.Queue.QueueOpen(wire.AnchorOfferWillCreate)
		peer.State = StateOpenWaitForPeerOpen
		return CommandInProgress, nil

	default:
		if input.IsCommand() {
			return rejectCommand(peer), nil
		}
		return enterInternal(peer, "transitionWaitAnchorCreate: unhandled input %s", input)
	}
}

func transitionWaitForPeerOpen(peer *PeerContext, input Input, payload *InputPayload) (CommandStatus, *btcwire.MsgTx) {
	switch input {
	case InputPktOpen:
		pkt, ok := payload.Packet.(*wire.Open)
		if !ok {
			return enterInternal(peer, "transitionWaitForPeerOpen: payload is not *wire.Open")
		}
		if errPkt := acceptPktOpen(peer, pkt); errPkt != nil {
			return enterProtocolViolation(peer, errPkt, ErrProtocolViolation)
		}

		if peer.OurAnchor {
			// We hold the anchor, already created back in
			// StateNone: announce it and sign their first
			// commitment now.
			peer.Collaborators.Queue.QueueAnchor()
			peer.Collaborators.Queue.QueueOpenCommitSig()
			peer.State = StateOpenWaitForCommitSig
		} else {
			peer.State = StateOpenWaitForAnchorPkt
		}
		return CommandInProgress, nil

	default:
		if input.IsCommand() {
			return rejectCommand(peer), nil
		}
		return enterInternal(peer, "transitionWaitForPeerOpen: unhandled input %s", input)
	}
}

func transitionWaitForAnchorPkt(peer *PeerContext, input Input, payload *InputPayload) (CommandStatus, *btcwire.MsgTx) {
	switch input {
	case InputPktOpenAnchor:
		pkt, ok := payload.Packet.(*wire.OpenAnchor)
		if !ok {
			return enterInternal(peer, "transitionWaitForAnchorPkt: payload is not *wire.OpenAnchor")
		}
		if errPkt := acceptPktAnchor(peer, pkt); errPkt != nil {
			releaseAnyAnchor(peer)
			return enterProtocolViolation(peer, errPkt, ErrProtocolViolation)
		}
		peer.AnchorOut = btcwire.OutPoint{Hash: pkt.TxID, Index: pkt.Output}
		peer.Collaborators.Queue.QueueOpenCommitSig()
		peer.State = StateOpenWaitForCommitSig
		return CommandInProgress, nil

	default:
		if input.IsCommand() {
			return rejectCommand(peer), nil
		}
		// Any other packet here is the tie-break case spec.md §4.1
		// calls out: an out-of-order opening packet.
		if input.IsPacket() {
			errPkt := pktErrUnexpected(peer, payload.Packet)
			releaseAnyAnchor(peer)
			return enterProtocolViolation(peer, errPkt, ErrProtocolViolation)
		}
		return enterInternal(peer, "transitionWaitForAnchorPkt: unhandled input %s", input)
	}
}

func transitionWaitForCommitSig(peer *PeerContext, input Input, payload *InputPayload) (CommandStatus, *btcwire.MsgTx) {
	switch input {
	case InputPktOpenCommitSig:
		pkt, ok := payload.Packet.(*wire.OpenCommitSig)
		if !ok {
			return enterInternal(peer, "transitionWaitForCommitSig: payload is not *wire.OpenCommitSig")
		}
		if errPkt := acceptPktOpenCommitSig(peer, pkt); errPkt != nil {
			releaseAnyAnchor(peer)
			return enterProtocolViolation(peer, errPkt, ErrProtocolViolation)
		}
		peer.LocalCommit = &Commitment{Height: 0}

		if peer.OurAnchor {
			// The anchor side does not time itself out (spec.md
			// §4.1 step 3).
			peer.Collaborators.Watcher.WatchAnchor(
				InputNone, InputNone,
				InputBitcoinAnchorUnspent, InputBitcoinAnchorTheySpent, InputBitcoinAnchorOtherSpent,
			)
			peer.State = StateOpenWaitAnchorDepthOurs
		} else {
			peer.Collaborators.Watcher.WatchAnchor(
				InputBitcoinAnchorDepthOK, InputBitcoinAnchorTimeout,
				InputBitcoinAnchorUnspent, InputBitcoinAnchorTheySpent, InputBitcoinAnchorOtherSpent,
			)
			peer.State = StateOpenWaitAnchorDepthTheirs
		}
		return CommandInProgress, nil

	default:
		if input.IsCommand() {
			return rejectCommand(peer), nil
		}
		if input.IsPacket() {
			errPkt := pktErrUnexpected(peer, payload.Packet)
			releaseAnyAnchor(peer)
			return enterProtocolViolation(peer, errPkt, ErrProtocolViolation)
		}
		return enterInternal(peer, "transitionWaitForCommitSig: unhandled input %s", input)
	}
}

func transitionWaitAnchorDepth(peer *PeerContext, input Input, payload *InputPayload, ourAnchorSide bool) (CommandStatus, *btcwire.MsgTx) {
	switch input {
	case InputBitcoinAnchorDepthOK:
		peer.Collaborators.Queue.QueueOpenComplete()
		peer.State = StateOpenWaitForOpenComplete
		return CommandInProgress, nil

	case InputBitcoinAnchorTimeout:
		if ourAnchorSide {
			// The anchor side is wired with timeout=INPUT_NONE
			// (spec.md §4.1 step 3); the watcher must never
			// deliver this here.
			return enterInternal(peer, "transitionWaitAnchorDepth: timeout delivered on anchor side")
		}
		// On-chain anomaly, not a protocol violation: no error
		// packet, no broadcast (we never had an anchor of our own).
		// Matches spec.md §8 scenario S4.
		peer.State = ErrAnchorTimeout
		return finishCommand(peer, false), nil

	case InputBitcoinAnchorUnspent:
		// Benign-ignore: redundant confirmation that the anchor
		// remains unspent while we wait for depth.
		return CommandInProgress, nil

	default:
		if input.IsCommand() {
			return rejectCommand(peer), nil
		}
		return enterInternal(peer, "transitionWaitAnchorDepth: unhandled input %s", input)
	}
}

func transitionWaitForOpenComplete(peer *PeerContext, input Input, payload *InputPayload) (CommandStatus, *btcwire.MsgTx) {
	switch input {
	case InputPktOpenComplete:
		pkt, ok := payload.Packet.(*wire.OpenComplete)
		if !ok {
			return enterInternal(peer, "transitionWaitForOpenComplete: payload is not *wire.OpenComplete")
		}
		if errPkt := acceptPktOpenComplete(peer, pkt); errPkt != nil {
			return enterProtocolViolation(peer, errPkt, ErrProtocolViolation)
		}
		peer.State = StateNormal
		return finishCommand(peer, true), nil

	default:
		if input.IsCommand() {
			return rejectCommand(peer), nil
		}
		if input.IsPacket() {
			errPkt := pktErrUnexpected(peer, payload.Packet)
			return enterProtocolViolation(peer, errPkt, ErrProtocolViolation)
		}
		return enterInternal(peer, "transitionWaitForOpenComplete: unhandled input %s", input)
	}
}

// releaseAnyAnchor releases anchor utxos we created but never
// broadcast, per spec.md §4.1's opening tie-break note.
func releaseAnyAnchor(peer *PeerContext) {
	if peer.OurAnchor {
		peer.Collaborators.Builder.ReleaseAnchor(InputNone)
	}
}

// handleAnchorSpendDuringOpen routes an anchor-spend observed while
// still in the opening region to the same on-chain defense logic used
// in Normal/Clearing (spec.md §4.1, Unilateral close triggers).
func handleAnchorSpendDuringOpen(peer *PeerContext, input Input, payload *InputPayload) (CommandStatus, *btcwire.MsgTx) {
	status := CommandNone
	if peer.CurrentCmd != nil {
		status = finishCommand(peer, false)
	}
	tx := handleAnchorSpend(peer, input, payload.ChainEvent)
	return status, tx
}
