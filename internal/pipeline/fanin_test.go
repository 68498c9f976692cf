package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsidian-labs/marketdata-pipeline/internal/object"
)

func TestFaninRecvReturnsWhicheverIsReady(t *testing.T) {
	t.Parallel()
	chA := make(chan object.Object, 1)
	chB := make(chan object.Object, 1)
	f := NewFanin([]namedChannel{{downstream: "a", ch: chA}, {downstream: "b", ch: chB}})

	msg := &object.Mock{Payload: "from-a"}
	chA <- msg

	got, err := f.Recv(t.Context())
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestFaninDisablesClosedUpstream(t *testing.T) {
	t.Parallel()
	chA := make(chan object.Object)
	close(chA)
	chB := make(chan object.Object, 1)
	f := NewFanin([]namedChannel{{downstream: "a", ch: chA}, {downstream: "b", ch: chB}})

	msg := &object.Mock{Payload: "from-b"}
	chB <- msg

	got, err := f.Recv(t.Context())
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestFaninAllDisabledReturnsErr(t *testing.T) {
	t.Parallel()
	f := NewFanin(nil)
	assert.True(t, f.AllDisabled())
	_, err := f.Recv(t.Context())
	assert.ErrorIs(t, err, ErrAllDownstreamsDisabled)
}

func TestFaninAllUpstreamsClosedReturnsErr(t *testing.T) {
	t.Parallel()
	chA := make(chan object.Object)
	close(chA)
	f := NewFanin([]namedChannel{{downstream: "a", ch: chA}})

	_, err := f.Recv(t.Context())
	assert.ErrorIs(t, err, ErrAllDownstreamsDisabled)
}
