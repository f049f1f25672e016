// Package gossip reconciles cell membership from gossip events.
//
// A Dispatcher applies Join, Heartbeat and Leave messages to a store.Store.
// A Gossiper announces the local cell and runs push-pull anti-entropy with
// random peers, and a Detector demotes cells whose heartbeats stopped.
//
// Records are ordered by their vector clocks. Concurrent records are resolved
// towards the less healthy status and Gone is final, so replicas that saw the
// same events agree on every departed cell.
package gossip
