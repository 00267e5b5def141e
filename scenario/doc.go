// Package scenario defines the YAML scenario format and the runner that
// replays scenarios against a fresh clock and broker pair.
//
// A scenario file names the test, seeds the broker with acknowledgement
// outcomes in its prologue, lists an ordered sequence of actions, and
// states the expected end state in its epilogue. The action set is closed:
// each list entry carries an "action:" tag and decoding fails on tags
// outside the known set. Field-level validation happens in Vet against the
// embedded CUE schema before the Go decode runs.
//
// Defaults for receive actions load from TOML and are applied by a Loader
// after decoding. There is no package-level default state; callers pass a
// Defaults value explicitly.
package scenario
