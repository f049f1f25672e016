// Package store owns the membership table: one cell record per known
// identity, each behind its own lock. Updates to different cells never wait
// on each other, while updates to the same cell are linearised so the
// reconciliation rule always sees the most recently accepted record.
package store
