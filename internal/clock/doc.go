// Package clock provides the version clock attached to every cell record.
// A version clock is a vector clock keyed by cell identity: each cell that
// mutates a record bumps its own counter, and the component-wise partial
// order between two clocks tells whether one view of the record causally
// follows the other or whether both were produced independently.
package clock
