package peerfsm

import (
	btcwire "github.com/btcsuite/btcd/wire"
	"github.com/lightningfsm/peerfsm/wire"
)

// transitionClosing handles StateClearing, StateClosingSigExchange, and
// StateMutualCloseBroadcast (spec.md §4.1, "Clearing & mutual close").
func transitionClosing(peer *PeerContext, input Input, payload *InputPayload) (CommandStatus, *btcwire.MsgTx) {
	if input == InputBitcoinAnchorTheySpent || input == InputBitcoinAnchorOtherSpent {
		status := CommandNone
		if peer.CurrentCmd != nil {
			status = finishCommand(peer, false)
		}
		return status, handleAnchorSpend(peer, input, payload.ChainEvent)
	}

	switch peer.State {
	case StateClearing:
		return transitionClearing(peer, input, payload)
	case StateClosingSigExchange:
		return transitionClosingSigExchange(peer, input, payload)
	case StateMutualCloseBroadcast:
		return transitionMutualCloseBroadcast(peer, input, payload)
	default:
		return enterInternal(peer, "transitionClosing: unreachable state %s", peer.State)
	}
}

func transitionClearing(peer *PeerContext, input Input, payload *InputPayload) (CommandStatus, *btcwire.MsgTx) {
	switch input {
	// Outstanding HTLCs must still settle; no new ones may be proposed
	// (spec.md §4.1: "disallows new HTLC proposals").
	// A rejected packet leaves StateClearing (an error state, or
	// StateOurCommitBroadcast when the anchor is live); its result is
	// returned as is.
	case InputPktUpdateFulfillHTLC:
		if status, tx := handleRemoteHTLCFulfill(peer, payload); peer.State != StateClearing {
			return status, tx
		}
		return maybeBeginFeeNegotiation(peer)

	case InputPktUpdateFailHTLC:
		if status, tx := handleRemoteHTLCFail(peer, payload); peer.State != StateClearing {
			return status, tx
		}
		return maybeBeginFeeNegotiation(peer)

	case InputPktUpdateCommit:
		if status, tx := handleRemoteCommit(peer, payload); peer.State != StateClearing {
			return status, tx
		}
		return maybeBeginFeeNegotiation(peer)

	case InputPktUpdateRevocation:
		if status, tx := handleRemoteRevocation(peer, payload); peer.State != StateClearing {
			return status, tx
		}
		return maybeBeginFeeNegotiation(peer)

	case InputCmdSendHTLCFulfill, InputCmdSendHTLCFail:
		return handleSendHTLCCommand(peer, input, payload)

	case InputCmdSendHTLCAdd, InputCmdClose, InputCmdOpenWithAnchor, InputCmdOpenWithoutAnchor:
		return rejectCommand(peer), nil

	case InputPktCloseClearing:
		// Both sides sent clearing near-simultaneously; now that the
		// exchange is mutually acknowledged, check whether fee
		// negotiation can start immediately.
		return maybeBeginFeeNegotiation(peer)

	default:
		if input.IsPacket() {
			errPkt := pktErrUnexpected(peer, payload.Packet)
			return enterProtocolViolation(peer, errPkt, ErrProtocolViolation)
		}
		return enterInternal(peer, "transitionClearing: unhandled input %s", input)
	}
}

// maybeBeginFeeNegotiation checks whether every HTLC has settled and,
// if so, opens the close fee negotiation sub-protocol (spec.md §4.1:
// "once committed_to_htlcs is false").
func maybeBeginFeeNegotiation(peer *PeerContext) (CommandStatus, *btcwire.MsgTx) {
	if peer.Collaborators.Queries.CommittedToHTLCs(peer) {
		return CommandNone, nil
	}
	peer.CloseFeeSatoshis = peer.Collaborators.Fees.CalculateCloseFee(peer)
	peer.Collaborators.Queue.QueueCloseSignature()
	peer.WeSentCloseSig = true
	peer.State = StateClosingSigExchange
	return CommandNone, nil
}

func transitionClosingSigExchange(peer *PeerContext, input Input, payload *InputPayload) (CommandStatus, *btcwire.MsgTx) {
	switch input {
	case InputPktCloseSignature:
		pkt, ok := payload.Packet.(*wire.CloseSignature)
		if !ok {
			return enterInternal(peer, "transitionClosingSigExchange: payload is not *wire.CloseSignature")
		}
		matches, errPkt := acceptPktCloseSig(peer, pkt)
		if errPkt != nil {
			return enterProtocolViolation(peer, errPkt, ErrProtocolViolation)
		}
		peer.TheirCloseSig = pkt.Signature

		if matches {
			// Our outstanding offer and theirs agree (spec.md §8,
			// universal property 7: prefer mutual close whenever a
			// matching signature is in hand).
			tx := peer.Collaborators.Builder.Close(peer)
			peer.State = StateMutualCloseBroadcast
			peer.Collaborators.Watcher.WatchClose(InputBitcoinCloseDone, InputBitcoinCloseTimedOut)
			return CommandNone, tx
		}

		// Counter-offer: recompute and re-send at our own fee unless
		// theirs is one we'd already accept.
		peer.CloseFeeSatoshis = peer.Collaborators.Fees.CalculateCloseFee(peer)
		peer.Collaborators.Queue.QueueCloseSignature()
		peer.WeSentCloseSig = true
		return CommandNone, nil

	default:
		if input.IsPacket() {
			errPkt := pktErrUnexpected(peer, payload.Packet)
			return enterProtocolViolation(peer, errPkt, ErrProtocolViolation)
		}
		if input.IsCommand() {
			return rejectCommand(peer), nil
		}
		return enterInternal(peer, "transitionClosingSigExchange: unhandled input %s", input)
	}
}

func transitionMutualCloseBroadcast(peer *PeerContext, input Input, payload *InputPayload) (CommandStatus, *btcwire.MsgTx) {
	switch input {
	case InputBitcoinCloseDone:
		peer.Collaborators.Watcher.UnwatchCloseTimeout(InputBitcoinCloseTimedOut)
		peer.State = StateClosed
		return CommandNone, nil

	case InputBitcoinCloseTimedOut:
		// The mutual close never confirmed; fall back to our own
		// commitment if the anchor is still spendable.
		var broadcast *btcwire.MsgTx
		if peer.anchorLive() {
			broadcast = beginOurCommitBroadcast(peer)
		} else {
			peer.State = ErrBreakdown
		}
		return CommandNone, broadcast

	default:
		if input.IsCommand() {
			return rejectCommand(peer), nil
		}
		return enterInternal(peer, "transitionMutualCloseBroadcast: unhandled input %s", input)
	}
}
