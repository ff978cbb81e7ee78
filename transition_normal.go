package peerfsm

import (
	btcwire "github.com/btcsuite/btcd/wire"
	"github.com/lightningfsm/peerfsm/wire"
)

// transitionNormal handles StateNormal: HTLC proposal, commitment
// rotation, and revocation (spec.md §4.1's "Normal operation"). Unlike
// the opening and closing regions, this single state absorbs its own
// sub-protocol entirely through PeerContext's staged change logs rather
// than further State variants (see DESIGN.md's turn-taking decision).
func transitionNormal(peer *PeerContext, input Input, payload *InputPayload) (CommandStatus, *btcwire.MsgTx) {
	if input == InputBitcoinAnchorTheySpent || input == InputBitcoinAnchorOtherSpent {
		status := CommandNone
		if peer.CurrentCmd != nil {
			status = finishCommand(peer, false)
		}
		return status, handleAnchorSpend(peer, input, payload.ChainEvent)
	}

	if isSendHTLCCommand(input) {
		return handleSendHTLCCommand(peer, input, payload)
	}

	switch input {
	case InputCmdClose:
		return beginClearing(peer, payload.Command)

	case InputPktUpdateAddHTLC:
		return handleRemoteHTLCAdd(peer, payload)

	case InputPktUpdateFulfillHTLC:
		return handleRemoteHTLCFulfill(peer, payload)

	case InputPktUpdateFailHTLC:
		return handleRemoteHTLCFail(peer, payload)

	case InputPktUpdateCommit:
		return handleRemoteCommit(peer, payload)

	case InputPktUpdateRevocation:
		return handleRemoteRevocation(peer, payload)

	case InputPktCloseClearing:
		pkt, ok := payload.Packet.(*wire.CloseClearing)
		if !ok {
			return enterInternal(peer, "transitionNormal: payload is not *wire.CloseClearing")
		}
		if errPkt := acceptPktCloseClearing(peer, pkt); errPkt != nil {
			return enterProtocolViolation(peer, errPkt, ErrProtocolViolation)
		}
		peer.CloseScript = pkt.ScriptToSelf
		peer.State = StateClearing
		peer.Collaborators.Queue.QueueCloseClearing()
		return maybeBeginFeeNegotiation(peer)

	case InputCmdOpenWithAnchor, InputCmdOpenWithoutAnchor:
		return rejectCommand(peer), nil

	default:
		if input.IsPacket() {
			errPkt := pktErrUnexpected(peer, payload.Packet)
			return enterProtocolViolation(peer, errPkt, ErrProtocolViolation)
		}
		return enterInternal(peer, "transitionNormal: unhandled input %s", input)
	}
}

// handleSendHTLCCommand stages a locally-originated HTLC add, fulfill,
// or fail for inclusion in our next outgoing commitment.
func handleSendHTLCCommand(peer *PeerContext, input Input, payload *InputPayload) (CommandStatus, *btcwire.MsgTx) {
	started, status := beginCommand(peer, payload.Command)
	if !started {
		return status, nil
	}
	cmd := payload.Command

	switch input {
	case InputCmdSendHTLCAdd:
		htlc := cmd.HTLC
		htlc.ID = peer.NextHTLCID
		peer.NextHTLCID++
		htlc.Offered = true
		htlc.Status = HTLCProposedByUs
		peer.StagedLocal.Adds = append(peer.StagedLocal.Adds, htlc)
		peer.Collaborators.Queue.QueueHTLCAdd(&HTLCProgress{HTLC: htlc})

	case InputCmdSendHTLCFulfill:
		htlc, ok := peer.CommittedHTLCs[cmd.HTLCID]
		if !ok || htlc.Offered || htlc.Status != HTLCCommitted {
			return finishCommand(peer, false), nil
		}
		htlc.Preimage = cmd.Preimage
		htlc.Status = HTLCBeingFulfilled
		peer.StagedLocal.Fulfills[htlc.ID] = htlc
		peer.Collaborators.Queue.QueueHTLCFulfill(&HTLCProgress{HTLC: htlc, Preimage: cmd.Preimage})

	case InputCmdSendHTLCFail:
		htlc, ok := peer.CommittedHTLCs[cmd.HTLCID]
		if !ok || htlc.Offered || htlc.Status != HTLCCommitted {
			return finishCommand(peer, false), nil
		}
		htlc.Status = HTLCBeingFailed
		peer.StagedLocal.Fails[htlc.ID] = htlc
		peer.Collaborators.Queue.QueueHTLCFail(&HTLCProgress{HTLC: htlc, Reason: cmd.Reason})
	}

	// The command stays outstanding until the commitment containing it
	// is locked in (spec.md §4.1: "not reported succeeded until the
	// revocation for the commitment containing it has been received").
	// handleRemoteCommit resolves it once this HTLC's entry in
	// StagedLocal folds into CommittedHTLCs; that transition is itself
	// packet-originated and so must return CommandNone per spec.md §3,
	// which is why resolution surfaces through peer.LastCommandResult
	// instead of this call's own return value.
	return CommandInProgress, nil
}

// handleRemoteHTLCAdd stages a counterparty-proposed HTLC and commits to
// it straight away: QueueCommit here is the other half of the
// commit/revoke cycle from handleRemoteCommit, and is what eventually
// earns us the PKT_UPDATE_REVOCATION that flushes StagedRemote (spec.md
// §4.1, "receiver validates and replies ..., then itself sends
// PKT_UPDATE_COMMIT for the reverse direction when it has changes to
// commit").
func handleRemoteHTLCAdd(peer *PeerContext, payload *InputPayload) (CommandStatus, *btcwire.MsgTx) {
	pkt, ok := payload.Packet.(*wire.UpdateAddHTLC)
	if !ok {
		return enterInternal(peer, "handleRemoteHTLCAdd: payload is not *wire.UpdateAddHTLC")
	}
	if errPkt := acceptPktHTLCAdd(peer, pkt); errPkt != nil {
		return enterProtocolViolation(peer, errPkt, ErrProtocolViolation)
	}
	peer.LastRemoteHTLCID = pkt.ID
	peer.sawRemoteHTLC = true

	htlc := &HTLC{
		ID:             pkt.ID,
		Offered:        false,
		AmountMilliSat: pkt.AmountMilliSat,
		PaymentHash:    pkt.PaymentHash,
		CltvExpiry:     pkt.CltvExpiry,
		Status:         HTLCProposedByThem,
	}
	peer.StagedRemote.Adds = append(peer.StagedRemote.Adds, htlc)
	peer.Collaborators.Queue.QueueCommit()
	return CommandNone, nil
}

func handleRemoteHTLCFulfill(peer *PeerContext, payload *InputPayload) (CommandStatus, *btcwire.MsgTx) {
	pkt, ok := payload.Packet.(*wire.UpdateFulfillHTLC)
	if !ok {
		return enterInternal(peer, "handleRemoteHTLCFulfill: payload is not *wire.UpdateFulfillHTLC")
	}
	if errPkt := acceptPktHTLCFulfill(peer, pkt); errPkt != nil {
		return enterProtocolViolation(peer, errPkt, ErrProtocolViolation)
	}
	htlc := peer.CommittedHTLCs[pkt.ID]
	preimage := pkt.PaymentPreimage
	htlc.Preimage = &preimage
	htlc.Status = HTLCBeingFulfilled
	peer.StagedRemote.Fulfills[htlc.ID] = htlc
	peer.Collaborators.Queue.QueueCommit()
	return CommandNone, nil
}

func handleRemoteHTLCFail(peer *PeerContext, payload *InputPayload) (CommandStatus, *btcwire.MsgTx) {
	pkt, ok := payload.Packet.(*wire.UpdateFailHTLC)
	if !ok {
		return enterInternal(peer, "handleRemoteHTLCFail: payload is not *wire.UpdateFailHTLC")
	}
	if errPkt := acceptPktHTLCFail(peer, pkt); errPkt != nil {
		return enterProtocolViolation(peer, errPkt, ErrProtocolViolation)
	}
	htlc := peer.CommittedHTLCs[pkt.ID]
	htlc.Status = HTLCBeingFailed
	peer.StagedRemote.Fails[htlc.ID] = htlc
	peer.Collaborators.Queue.QueueCommit()
	return CommandNone, nil
}

// handleRemoteCommit validates a PKT_UPDATE_COMMIT, folds whatever we
// had staged for them into the committed set, and replies with our own
// revocation of the commitment it supersedes.
func handleRemoteCommit(peer *PeerContext, payload *InputPayload) (CommandStatus, *btcwire.MsgTx) {
	pkt, ok := payload.Packet.(*wire.UpdateCommit)
	if !ok {
		return enterInternal(peer, "handleRemoteCommit: payload is not *wire.UpdateCommit")
	}
	if errPkt := acceptPktCommit(peer, pkt); errPkt != nil {
		return enterProtocolViolation(peer, errPkt, ErrProtocolViolation)
	}

	applyChangeLog(peer, peer.StagedLocal)
	resolvePendingSendCommand(peer, peer.StagedLocal)
	peer.StagedLocal = newChangeLog()

	if peer.LocalCommit == nil {
		peer.LocalCommit = &Commitment{}
	}
	peer.LocalCommit.Height++

	peer.Collaborators.Queue.QueueRevocation()
	return CommandNone, nil
}

// handleRemoteRevocation receives the secret revoking the
// counterparty's previous commitment and advances whatever we staged
// for ourselves into the committed set.
func handleRemoteRevocation(peer *PeerContext, payload *InputPayload) (CommandStatus, *btcwire.MsgTx) {
	pkt, ok := payload.Packet.(*wire.UpdateRevocation)
	if !ok {
		return enterInternal(peer, "handleRemoteRevocation: payload is not *wire.UpdateRevocation")
	}
	if errPkt := acceptPktRevocation(peer, pkt); errPkt != nil {
		return enterProtocolViolation(peer, errPkt, ErrProtocolViolation)
	}

	if peer.RemoteCommit == nil {
		peer.RemoteCommit = &Commitment{}
	}
	peer.Collaborators.Revocations.Store(peer.RemoteCommit.Height, pkt.Secret)
	peer.RemoteCommit.Height++

	applyChangeLog(peer, peer.StagedRemote)
	peer.StagedRemote = newChangeLog()
	return CommandNone, nil
}

// resolvePendingSendCommand completes the outstanding CMD_SEND_HTLC_*
// command once the HTLC it concerns is among the entries a change log
// just folded in. Only StagedLocal ever carries a locally-originated
// command's HTLC, so calling this against StagedRemote's flush is
// harmless — isSendHTLCCommand(cmd.Kind) never matches a command that
// didn't stage into StagedLocal in the first place.
func resolvePendingSendCommand(peer *PeerContext, log *ChangeLog) {
	cmd := peer.CurrentCmd
	if cmd == nil || !isSendHTLCCommand(cmd.Kind) {
		return
	}

	id := cmd.HTLCID
	if cmd.Kind == InputCmdSendHTLCAdd {
		if cmd.HTLC == nil {
			return
		}
		id = cmd.HTLC.ID
	}

	for _, htlc := range log.Adds {
		if htlc.ID == id {
			finishCommand(peer, true)
			return
		}
	}
	if _, ok := log.Fulfills[id]; ok {
		finishCommand(peer, true)
		return
	}
	if _, ok := log.Fails[id]; ok {
		finishCommand(peer, true)
		return
	}
}

// applyChangeLog folds a staged change log into the committed HTLC set:
// adds become committed, fulfills/fails retire the HTLC they reference.
func applyChangeLog(peer *PeerContext, log *ChangeLog) {
	for _, htlc := range log.Adds {
		htlc.Status = HTLCCommitted
		peer.CommittedHTLCs[htlc.ID] = htlc
	}
	for id, htlc := range log.Fulfills {
		htlc.Status = HTLCDead
		delete(peer.CommittedHTLCs, id)
	}
	for id, htlc := range log.Fails {
		htlc.Status = HTLCDead
		delete(peer.CommittedHTLCs, id)
	}
}

// beginClearing enters the clearing sub-protocol, whether triggered
// locally (CMD_CLOSE) or, symmetrically, by the counterparty's
// PKT_CLOSE_CLEARING (handled directly in transitionNormal).
func beginClearing(peer *PeerContext, cmd *Command) (CommandStatus, *btcwire.MsgTx) {
	started, status := beginCommand(peer, cmd)
	if !started {
		return status, nil
	}
	peer.Collaborators.Queue.QueueCloseClearing()
	peer.State = StateClearing
	return CommandInProgress, nil
}
