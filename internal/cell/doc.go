// Package cell holds the versioned membership record of a single cell and the
// reconciliation rule deciding whether a competing record may replace it.
//
// Causal order always wins. When two records were produced independently
// (concurrent version clocks), a fixed status-precedence table breaks the tie
// in favour of the less healthy interpretation.
package cell
