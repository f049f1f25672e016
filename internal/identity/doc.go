// Package identity provides the unique, time-biased identifiers that name a
// cell for its whole lifetime. Identifiers are totally ordered by creation
// timestamp and then by their random tag, so they can serve as sorted keys
// and as deterministic vector clock sources.
package identity
