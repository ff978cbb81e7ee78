package peerfsm

import (
	"fmt"

	btcwire "github.com/btcsuite/btcd/wire"
)

// transitionOnChain handles every state in the unilateral-close region:
// a commitment (ours, theirs, or a revoked one we're stealing) is
// already broadcast, and we're watching its outputs resolve (spec.md
// §4.1, "Unilateral close & on-chain defense").
func transitionOnChain(peer *PeerContext, input Input, payload *InputPayload) (CommandStatus, *btcwire.MsgTx) {
	// A close or open command arriving here is simply inconsistent with
	// the channel's state; commands never move us between on-chain
	// states.
	if input.IsCommand() {
		return rejectCommand(peer), nil
	}

	switch peer.State {
	case StateOurCommitBroadcast:
		return transitionOurCommitBroadcast(peer, input, payload)
	case StateTheirCommitSpend:
		return transitionTheirCommitSpend(peer, input, payload)
	case StateCheatSpend:
		return transitionCheatSpend(peer, input, payload)
	case StateOnChainWaitHTLCs:
		return transitionOnChainWaitHTLCs(peer, input, payload)
	default:
		return enterInternal(peer, "transitionOnChain: unreachable state %s", peer.State)
	}
}

// beginOurCommitBroadcast builds and arms watches for our own latest
// commitment transaction. It is the fallback every protocol-violation
// and breakdown path takes when an anchor is still live (spec.md §4.1,
// cell 3: "cause any live anchor to be spent via our commit").
func beginOurCommitBroadcast(peer *PeerContext) *btcwire.MsgTx {
	tx := peer.Collaborators.Builder.Commit(peer)
	peer.State = StateOurCommitBroadcast
	peer.Collaborators.Watcher.WatchDelayed(tx, InputBitcoinCommitCanSpend)
	peer.addWatch(delayedWatchKey)
	armHTLCOutputWatches(peer, tx, false)
	return tx
}

var delayedWatchKey = WatchKey{Kind: "delayed"}

func htlcWatchKey(htlc *HTLC) WatchKey {
	return WatchKey{Kind: fmt.Sprintf("htlc-%d", htlc.ID)}
}

// armHTLCOutputWatches registers the per-HTLC output watches for
// whichever commitment is now on chain. theirs distinguishes between
// watching our own broadcast commitment's outputs and a commitment the
// counterparty put on chain.
func armHTLCOutputWatches(peer *PeerContext, tx *btcwire.MsgTx, theirs bool) {
	var had bool
	if theirs {
		had = peer.Collaborators.Watcher.WatchTheirHTLCOutputs(
			&ChainEvent{TxID: txHash(tx)},
			InputBitcoinHTLCToUsTimeout, InputBitcoinHTLCToThemSpent, InputBitcoinHTLCToThemTimeout,
		)
	} else {
		had = peer.Collaborators.Watcher.WatchOurHTLCOutputs(
			tx,
			InputBitcoinHTLCToUsTimeout, InputBitcoinHTLCToThemSpent, InputBitcoinHTLCToThemTimeout,
		)
	}
	if !had {
		return
	}
	for _, htlc := range peer.CommittedHTLCs {
		peer.addWatch(htlcWatchKey(htlc))
	}
}

func txHash(tx *btcwire.MsgTx) [32]byte {
	if tx == nil {
		return [32]byte{}
	}
	return tx.TxHash()
}

func transitionOurCommitBroadcast(peer *PeerContext, input Input, payload *InputPayload) (CommandStatus, *btcwire.MsgTx) {
	switch input {
	case InputBitcoinCommitCanSpend:
		// The delay on our own commitment's to-local output has passed;
		// sweep it with bitcoin_spend_ours and watch that sweep through
		// to its own burial (spec.md §6).
		peer.removeWatch(delayedWatchKey)
		tx := peer.Collaborators.Builder.SpendOurs(peer)
		peer.Collaborators.Watcher.WatchTx(tx, InputBitcoinSpendOursDone)
		peer.addWatch(spendOursWatchKey)
		return CommandNone, tx

	case InputBitcoinSpendOursDone:
		peer.removeWatch(spendOursWatchKey)
		peer.State = StateOnChainWaitHTLCs
		if peer.noActiveWatches() {
			peer.State = StateClosed
		}
		return CommandNone, nil

	case InputBitcoinHTLCToUsTimeout, InputBitcoinHTLCToThemSpent, InputBitcoinHTLCToThemTimeout,
		InputBitcoinHTLCSpendDone, InputBitcoinHTLCTimeoutDone:
		return resolveHTLCOnChain(peer, input, payload)

	default:
		return enterInternal(peer, "transitionOurCommitBroadcast: unhandled input %s", input)
	}
}

var theirCommitWatchKey = WatchKey{Kind: "their-commit"}
var spendOursWatchKey = WatchKey{Kind: "spend-ours"}
var stealWatchKey = WatchKey{Kind: "steal"}

func transitionTheirCommitSpend(peer *PeerContext, input Input, payload *InputPayload) (CommandStatus, *btcwire.MsgTx) {
	switch input {
	case InputBitcoinSpendTheirsDone:
		peer.removeWatch(theirCommitWatchKey)
		peer.State = StateOnChainWaitHTLCs
		if peer.noActiveWatches() {
			peer.State = StateClosed
		}
		return CommandNone, nil

	case InputBitcoinHTLCToUsTimeout, InputBitcoinHTLCToThemSpent, InputBitcoinHTLCToThemTimeout,
		InputBitcoinHTLCSpendDone, InputBitcoinHTLCTimeoutDone:
		return resolveHTLCOnChain(peer, input, payload)

	case InputBitcoinAllHTLCsCleared:
		peer.State = StateOnChainWaitHTLCs
		return CommandNone, nil

	default:
		return enterInternal(peer, "transitionTheirCommitSpend: unhandled input %s", input)
	}
}

func transitionCheatSpend(peer *PeerContext, input Input, payload *InputPayload) (CommandStatus, *btcwire.MsgTx) {
	switch input {
	case InputBitcoinStealDone:
		peer.removeWatch(stealWatchKey)
		peer.State = StateOnChainWaitHTLCs
		if peer.noActiveWatches() {
			peer.State = StateClosed
		}
		return CommandNone, nil

	default:
		return enterInternal(peer, "transitionCheatSpend: unhandled input %s", input)
	}
}

func transitionOnChainWaitHTLCs(peer *PeerContext, input Input, payload *InputPayload) (CommandStatus, *btcwire.MsgTx) {
	switch input {
	case InputBitcoinHTLCToUsTimeout, InputBitcoinHTLCToThemSpent, InputBitcoinHTLCToThemTimeout,
		InputBitcoinHTLCSpendDone, InputBitcoinHTLCTimeoutDone:
		return resolveHTLCOnChain(peer, input, payload)

	case InputBitcoinAllDone:
		peer.State = StateClosed
		return CommandNone, nil

	default:
		return enterInternal(peer, "transitionOnChainWaitHTLCs: unhandled input %s", input)
	}
}

// resolveHTLCOnChain advances a single HTLC's on-chain resolution and,
// once every watched HTLC output has been retired, delivers the burial
// transition (spec.md §4.3's per-HTLC timeout/claim flow).
func resolveHTLCOnChain(peer *PeerContext, input Input, payload *InputPayload) (CommandStatus, *btcwire.MsgTx) {
	var broadcast *btcwire.MsgTx

	switch input {
	case InputBitcoinHTLCToUsTimeout:
		// An HTLC we offered timed out unclaimed; reclaim it.
		if payload.HTLC != nil {
			broadcast = peer.Collaborators.Builder.HTLCTimeout(peer, payload.HTLC)
			payload.HTLC.Status = HTLCResolvedOnChain
			peer.Collaborators.Watcher.WatchHTLCSpend(broadcast, payload.HTLC, InputBitcoinHTLCTimeoutDone)
		}

	case InputBitcoinHTLCToThemSpent:
		// The counterparty revealed the preimage spending an HTLC we
		// hold incoming; recover our own matching preimage knowledge
		// so any onward hop can be resolved (spec.md §4.4,
		// peer_tx_revealed_r_value).
		if htlc, preimage, ok := peer.Collaborators.Discovery.TxRevealedRValue(peer, payload.ChainEvent); ok {
			htlc.Preimage = &preimage
			broadcast = peer.Collaborators.Builder.HTLCSpend(peer, htlc)
			htlc.Status = HTLCResolvedOnChain
			peer.Collaborators.Watcher.WatchHTLCSpend(broadcast, htlc, InputBitcoinHTLCSpendDone)
		}

	case InputBitcoinHTLCToThemTimeout:
		if payload.HTLC != nil {
			payload.HTLC.Status = HTLCDead
			peer.Collaborators.Watcher.UnwatchHTLCOutput(payload.HTLC, InputBitcoinAllDone)
			peer.removeWatch(htlcWatchKey(payload.HTLC))
		}

	case InputBitcoinHTLCSpendDone, InputBitcoinHTLCTimeoutDone:
		if payload.HTLC != nil {
			peer.Collaborators.Watcher.UnwatchHTLCSpend(payload.HTLC, InputBitcoinAllDone)
			peer.removeWatch(htlcWatchKey(payload.HTLC))
		}
	}

	if peer.noActiveWatches() {
		peer.State = StateClosed
	}
	return CommandNone, broadcast
}

// handleAnchorSpend is the shared entry point for an anchor-output
// spend observed from any region that still has the anchor watch
// armed: Normal, Clearing, Closing, and (via transition_opening.go) the
// late opening states. It decides between "their latest commitment",
// "a revoked commitment" (cheat), and neither (treated as a breakdown).
func handleAnchorSpend(peer *PeerContext, input Input, event *ChainEvent) *btcwire.MsgTx {
	if event == nil {
		peer.State = ErrBreakdown
		return nil
	}

	if input == InputBitcoinAnchorOtherSpent {
		// Neither commitment's signature matches: something outside
		// the two-party protocol spent the anchor. No transaction of
		// ours can recover this; surface it as a breakdown.
		peer.State = ErrBreakdown
		return nil
	}

	if tx, revoked := peer.Collaborators.Cheat.Justice(peer, event); revoked {
		peer.State = StateCheatSpend
		peer.Collaborators.Watcher.WatchTx(tx, InputBitcoinStealDone)
		peer.addWatch(stealWatchKey)
		return tx
	}

	tx := peer.Collaborators.Builder.SpendTheirs(peer, event)
	peer.State = StateTheirCommitSpend
	peer.Collaborators.Watcher.WatchTx(tx, InputBitcoinSpendTheirsDone)
	peer.addWatch(theirCommitWatchKey)
	armHTLCOutputWatches(peer, tx, true)
	return tx
}
