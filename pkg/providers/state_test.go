package providers

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseiq/pulse-engine/pkg/apperrors"
)

const testSecret = "test-state-secret"

func TestStateRoundTrip(t *testing.T) {
	userID := uuid.New()

	state, err := SignState(testSecret, userID, "shopify", 10*time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, state)

	gotUser, gotProvider, err := VerifyState(testSecret, state)
	require.NoError(t, err)
	assert.Equal(t, userID, gotUser)
	assert.Equal(t, "shopify", gotProvider)
}

func TestVerifyStateRejectsWrongSecret(t *testing.T) {
	state, err := SignState(testSecret, uuid.New(), "stripe", 10*time.Minute)
	require.NoError(t, err)

	_, _, err = VerifyState("other-secret", state)
	assert.ErrorIs(t, err, apperrors.ErrStateInvalid)
}

func TestVerifyStateRejectsExpired(t *testing.T) {
	state, err := SignState(testSecret, uuid.New(), "stripe", -1*time.Minute)
	require.NoError(t, err)

	_, _, err = VerifyState(testSecret, state)
	assert.ErrorIs(t, err, apperrors.ErrStateInvalid)
}

func TestVerifyStateRejectsGarbage(t *testing.T) {
	_, _, err := VerifyState(testSecret, "not-a-token")
	assert.ErrorIs(t, err, apperrors.ErrStateInvalid)
}

func TestVerifyStateRejectsMissingProvider(t *testing.T) {
	state, err := SignState(testSecret, uuid.New(), "", 10*time.Minute)
	require.NoError(t, err)

	_, _, err = VerifyState(testSecret, state)
	assert.ErrorIs(t, err, apperrors.ErrStateInvalid)
}
