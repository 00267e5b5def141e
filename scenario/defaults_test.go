package scenario

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinDefaults_Parses(t *testing.T) {
	d, err := BuiltinDefaults()
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, d.Ceiling.ToDuration())
	assert.Equal(t, 16*time.Millisecond, d.MinTick.ToDuration())
	require.NotNil(t, d.Actions.ReceiveRequest.Topic)
	assert.Equal(t, "fermata/request", *d.Actions.ReceiveRequest.Topic)
	require.NotNil(t, d.Actions.ReceiveRequest.ResponseTopic)
	assert.Equal(t, "fermata/response", *d.Actions.ReceiveRequest.ResponseTopic)
	require.NotNil(t, d.Actions.ReceiveResponse.Status)
	assert.Equal(t, "200", *d.Actions.ReceiveResponse.Status)
	require.NotNil(t, d.Actions.ReceiveTelemetry.SourceIndex)
	assert.Equal(t, 0, *d.Actions.ReceiveTelemetry.SourceIndex)
}

func TestLoadDefaults_UnknownKeyFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "defaults.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[actions.receive-request]
topic = "custom/request"
qoss = 1
`), 0o644))

	_, err := LoadDefaults(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unrecognized defaults key")
	assert.Contains(t, err.Error(), "qoss")
}

func TestLoadDefaults_OverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "defaults.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[ceiling]
seconds = 2

[actions.receive-telemetry]
topic = "custom/telemetry"
qos = 0
`), 0o644))

	d, err := LoadDefaults(path)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, d.Ceiling.ToDuration())
	require.NotNil(t, d.Actions.ReceiveTelemetry.Topic)
	assert.Equal(t, "custom/telemetry", *d.Actions.ReceiveTelemetry.Topic)
	require.NotNil(t, d.Actions.ReceiveTelemetry.Qos)
	assert.Equal(t, 0, *d.Actions.ReceiveTelemetry.Qos)
	// Sections the file omits stay unset.
	assert.Nil(t, d.Actions.ReceiveRequest.Topic)
}

func TestLoader_Apply_FillsOnlyUnsetFields(t *testing.T) {
	defaults, err := BuiltinDefaults()
	require.NoError(t, err)
	loader := &Loader{Defaults: defaults}

	sc, err := Parse([]byte(`
name: fill-check
actions:
  - action: receive request
    topic: explicit/topic
  - action: receive telemetry
  - action: sleep
    duration:
      seconds: 1
`))
	require.NoError(t, err)
	loader.Apply(sc)

	req := sc.Actions[0].AsReceiveRequest()
	require.NotNil(t, req)
	// The scenario's explicit topic wins; unset fields come from defaults.
	assert.Equal(t, "explicit/topic", *req.Topic)
	require.NotNil(t, req.Payload)
	assert.Equal(t, "ping", *req.Payload)
	require.NotNil(t, req.Qos)
	assert.Equal(t, 1, *req.Qos)
	require.NotNil(t, req.MessageExpiry)
	assert.Equal(t, 10*time.Second, req.MessageExpiry.ToDuration())

	telem := sc.Actions[1].AsReceiveTelemetry()
	require.NotNil(t, telem)
	assert.Equal(t, "fermata/telemetry", *telem.Topic)
	assert.Equal(t, "reading", *telem.Payload)

	// Non-receive actions are untouched.
	require.NotNil(t, sc.Actions[2].AsSleep())
}

func TestLoader_Load_AppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sc.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: loaded
actions:
  - action: receive response
`), 0o644))

	defaults, err := BuiltinDefaults()
	require.NoError(t, err)
	loader := &Loader{Defaults: defaults}

	sc, err := loader.Load(path)
	require.NoError(t, err)
	rsp := sc.Actions[0].AsReceiveResponse()
	require.NotNil(t, rsp)
	assert.Equal(t, "fermata/response", *rsp.Topic)
	assert.Equal(t, "200", *rsp.Status)
}
