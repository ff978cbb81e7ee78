package peerfsm

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningfsm/peerfsm/wire"
)

// HTLCStatus is the lifecycle state of a single HTLC, per spec.md §3's
// invariant that every HTLC sits in exactly one of these at any instant.
type HTLCStatus int

const (
	HTLCProposedByUs HTLCStatus = iota
	HTLCProposedByThem
	HTLCCommitted
	HTLCBeingFulfilled
	HTLCBeingFailed
	HTLCResolvedOnChain
	HTLCDead
)

func (s HTLCStatus) String() string {
	switch s {
	case HTLCProposedByUs:
		return "proposed_by_us"
	case HTLCProposedByThem:
		return "proposed_by_them"
	case HTLCCommitted:
		return "committed"
	case HTLCBeingFulfilled:
		return "being_fulfilled"
	case HTLCBeingFailed:
		return "being_failed"
	case HTLCResolvedOnChain:
		return "resolved_on_chain"
	case HTLCDead:
		return "dead"
	default:
		return "unknown"
	}
}

// HTLC is the local view of a single hash-time-locked conditional
// payment, whether proposed, committed, or in on-chain resolution.
type HTLC struct {
	// ID is strictly increasing per direction (accept_pkt_htlc_add
	// checks monotonicity on the receive side).
	ID uint64

	// Offered is true if we offered this HTLC (outgoing from us), false
	// if the counterparty did (incoming to us).
	Offered bool

	AmountMilliSat uint64
	PaymentHash    chainhash.Hash
	CltvExpiry     uint32

	Status HTLCStatus

	// Preimage is set once learned, either via PKT_UPDATE_FULFILL_HTLC
	// or by observing a spend on chain (peer_tx_revealed_r_value).
	Preimage *[32]byte

	// CommitHeight records which commitment this HTLC first appeared
	// in committed form. The transition code neither sets nor reads it;
	// revoked-commitment detection keys on ChainEvent.CommitHeight.
	CommitHeight uint64
}

// HTLCProgress bundles an HTLC with the data a queue_pkt_htlc_* call
// needs beyond the HTLC itself — mirrors struct htlc_progress from
// original_source/state.h. Rendering it to the actual PKT_UPDATE_* wire
// payload is the PacketQueue implementation's job, not this package's;
// the core only ever hands across the *HTLCProgress itself.
type HTLCProgress struct {
	HTLC     *HTLC
	Preimage *[32]byte
	Reason   wire.FailureReason
}
