// Package wire encodes gossip traffic in the protobuf wire format.
//
// The schema is small and stable, so messages are written field by field with
// protowire instead of generated code. pollux.proto holds the schema; field
// numbers:
//
//	ID           1 timestamp, 2 tag (16 bytes)
//	ClockEntry   1 origin, 2 counter
//	Metadata     1 id, 2 status, 3 endpoint, 4 clock, 5 updated (unix nanos)
//	Message      1 kind, 2 cell, 3 origin, 4 clock, 5 metadata, 6 endpoint
//	PushRequest  1 from, 2 messages
//	PushResponse 1 changed
//	SyncRequest  1 from, 2 snapshot
//	SyncResponse 1 responder, 2 snapshot
//
// Unknown fields are skipped so peers can add fields without breaking older
// cells.
package wire
