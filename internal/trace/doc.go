// Package trace provides durable storage for scenario run transcripts.
//
// Each run gets one row in runs and an append-only sequence of transcript
// events. Event details are canonical JSON, so runs of a scenario that pins
// its correlation ids produce byte-identical event rows. The trace CLI
// reads this store to inspect past runs without re-executing anything.
package trace
