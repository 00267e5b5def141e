package scenario

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVet_AcceptsValidDocument(t *testing.T) {
	err := Vet("valid.yaml", []byte(`
name: vet-ok
prologue:
  push-acks:
    publish: [success, fail, drop]
  countdown-events:
    ready: 2
actions:
  - action: freeze time
  - action: receive request
    topic: fermata/req/alpha
    correlation-index: 0
    qos: 1
  - action: unfreeze time
epilogue:
  publication-count: 0
`))
	assert.NoError(t, err)
}

func TestVet_RejectsUnknownTopLevelField(t *testing.T) {
	err := Vet("typo.yaml", []byte(`
name: vet-typo
epilog:
  publication-count: 1
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not allowed")
}

func TestVet_RejectsUnknownActionField(t *testing.T) {
	err := Vet("typo.yaml", []byte(`
name: vet-typo
actions:
  - action: receive request
    topic: fermata/req/alpha
    correlation-idx: 0
`))
	assert.Error(t, err)
}

func TestVet_RejectsUnknownActionTag(t *testing.T) {
	err := Vet("tag.yaml", []byte(`
name: vet-tag
actions:
  - action: rewind time
`))
	assert.Error(t, err)
}

func TestVet_RejectsBadAckKind(t *testing.T) {
	err := Vet("ack.yaml", []byte(`
name: vet-ack
prologue:
  push-acks:
    publish: [maybe]
`))
	assert.Error(t, err)
}

func TestVet_RejectsQosOutOfRange(t *testing.T) {
	err := Vet("qos.yaml", []byte(`
name: vet-qos
actions:
  - action: receive telemetry
    topic: fermata/telemetry
    qos: 3
`))
	assert.Error(t, err)
}

func TestVet_RejectsMissingName(t *testing.T) {
	err := Vet("name.yaml", []byte(`
description: nameless
`))
	assert.Error(t, err)
}

func TestVetter_ReusableAcrossDocuments(t *testing.T) {
	vetter, err := NewVetter()
	require.NoError(t, err)

	assert.NoError(t, vetter.Vet("a.yaml", []byte("name: first\n")))
	assert.Error(t, vetter.Vet("b.yaml", []byte("title: second\n")))
	assert.NoError(t, vetter.Vet("c.yaml", []byte("name: third\n")))
}

func TestVet_AcceptsAllTestdataScenarios(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	vetter, err := NewVetter()
	require.NoError(t, err)
	for _, path := range paths {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.NoError(t, vetter.Vet(path, data), "scenario %s", path)
	}
}
