// Package breach orchestrates the decision to steal a revoked
// commitment once one is observed on chain, trimmed from the teacher's
// breachArbiter down to the pure retribution decision: no persistence,
// no goroutine supervision, no retribution-info journal (those are
// Non-goals; the justice transaction itself is built by txbuilder and
// broadcast by the caller exactly like any other transition output).
package breach

import (
	btcwire "github.com/btcsuite/btcd/wire"

	"github.com/lightningfsm/peerfsm"
)

// Detector decides, for a given anchor-spend chain event, whether the
// broadcast commitment is a revoked one we can punish, mirroring
// breachArbiter.exactRetribution's core comparison without its
// goroutine/db plumbing.
type Detector struct {
	Revocations peerfsm.RevocationStore
	Builder     peerfsm.TxBuilder
}

// New constructs a Detector.
func New(revocations peerfsm.RevocationStore, builder peerfsm.TxBuilder) *Detector {
	return &Detector{Revocations: revocations, Builder: builder}
}

// Justice builds the steal transaction for event if, and only if, its
// commitment height has a revocation secret on file. It is consulted for
// every counterparty commitment spend; their latest commitment has no
// secret on file, so it yields (nil, false).
func (d *Detector) Justice(peer *peerfsm.PeerContext, event *peerfsm.ChainEvent) (*btcwire.MsgTx, bool) {
	secret, ok := d.Revocations.Lookup(event.CommitHeight)
	if !ok {
		return nil, false
	}
	return d.Builder.Steal(peer, event, secret), true
}
