// Package transport carries gossip between cells over gRPC.
//
// The pollux.Gossip service has two unary methods: Push delivers messages
// and Sync exchanges full membership tables. Requests are encoded with
// package wire, so both ends must use the codec options of this package.
package transport
