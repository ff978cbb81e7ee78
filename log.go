package peerfsm

import "github.com/btcsuite/btclog"

// log is this package's logger, following the btclog per-subsystem
// convention the teacher uses throughout (e.g. peerLog in peer.go).
// It is a no-op until the embedding application calls UseLogger.
var log = btclog.Disabled

// UseLogger lets the embedding application plug in its own
// subsystem logger, matching the rest of the teacher's packages.
func UseLogger(logger btclog.Logger) {
	log = logger
}
