package handshake

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	secret, err := NewSecret()
	require.NoError(t, err)

	tag := Sign(secret, 0x0001020304050607)
	assert.True(t, Verify(secret, 0x0001020304050607, tag))
}

func TestVerifyRejectsMismatchedTimestamp(t *testing.T) {
	secret, err := NewSecret()
	require.NoError(t, err)

	tag := Sign(secret, 100)
	assert.False(t, Verify(secret, 101, tag))
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	secretA, err := NewSecret()
	require.NoError(t, err)
	secretB, err := NewSecret()
	require.NoError(t, err)

	tag := Sign(secretA, 100)
	assert.False(t, Verify(secretB, 100, tag))
}

func TestNewSecretIsRandom(t *testing.T) {
	a, err := NewSecret()
	require.NoError(t, err)
	b, err := NewSecret()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestClientMachineHappyPath(t *testing.T) {
	m := NewMachine()
	assert.Equal(t, AwaitingChallengeResponse, m.State())

	m.ReceiveChallengeResponse(42)
	assert.Equal(t, AwaitingConnectResponse, m.State())

	m.Accept()
	assert.True(t, m.Connected())
}

func TestServerMachineRejectsMismatchedReconnect(t *testing.T) {
	m := NewMachine()
	ok := m.ReceiveConnectRequest(42)
	require.True(t, ok)
	assert.Equal(t, AwaitingConnectResponse, m.State())

	ok = m.ReceiveConnectRequest(99)
	assert.False(t, ok)
	assert.Equal(t, Disconnected, m.State())
}

func TestMachineReject(t *testing.T) {
	m := NewMachine()
	m.ReceiveChallengeResponse(1)
	m.Reject()
	assert.Equal(t, Disconnected, m.State())
	assert.False(t, m.Connected())
}

func TestMachineTimeout(t *testing.T) {
	m := NewMachine()
	m.Accept()
	m.Timeout()
	assert.Equal(t, Disconnected, m.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "Connected", Connected.String())
	assert.Equal(t, "Unknown", State(99).String())
}
