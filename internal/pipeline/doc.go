// Package pipeline computes which commits are stuck at each stage of a
// delivery pipeline.
//
// A stage registry fixes the order of stages; the last one is the terminal
// ("production") stage. Each pipeline has a ledger recording, per
// environment, the first time a revision was observed there. An owner
// (dashboard) maps deploy stages to the environment names used in the ledger.
//
// # Propagation
//
// A commit has propagated past stage S once it is present at any stage after
// S, whether or not it skipped stages in between:
//
//	COMMIT  BUILD  QA  PROD
//	  abc     -    abc   -     => abc is stuck at QA, not at COMMIT
//
// Every stuck commit carries the first-entry timestamp of each stage it
// reached. Only the terminal stage is narrowed to a date window, inclusive
// on both ends, defaulting to the last 90 days.
//
// # Concurrency
//
// Pipelines in a search are independent and evaluated in parallel. The only
// write is the lazy creation of an empty ledger; a lost creation race is
// resolved by re-reading the ledger that won.
package pipeline
