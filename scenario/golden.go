package scenario

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// TranscriptBytes renders a report's transcript one event per line, in a
// stable text form suitable for golden comparison. Details are canonical
// JSON, so two runs of the same scenario render identical transcripts as
// long as the scenario pins its correlation ids.
func TranscriptBytes(report *Report) []byte {
	var buf bytes.Buffer
	for _, ev := range report.Events {
		fmt.Fprintf(&buf, "%d %s %s\n", ev.Seq, ev.Kind, ev.Detail)
	}
	return buf.Bytes()
}

// AssertTranscriptGolden compares a report's transcript against the golden
// file named after the scenario. Run tests with -update to rewrite
// fixtures.
func AssertTranscriptGolden(t *testing.T, name string, report *Report) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, TranscriptBytes(report))
}
