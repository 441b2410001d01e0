package dispute

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	holdID := uuid.New()
	now := time.Now()

	d, err := New(holdID, "payer-1", "item not received", now)
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, d.Status)
	assert.Equal(t, holdID, d.HoldID)
	assert.Nil(t, d.ResolvedAt)

	_, err = New(holdID, "payer-1", "", now)
	assert.ErrorIs(t, err, ErrEmptyDescription)
}

func TestDispute_Resolve(t *testing.T) {
	d, err := New(uuid.New(), "payer-1", "damaged", time.Now())
	require.NoError(t, err)
	at := time.Now()

	d.Resolve(OutcomeRefund, "admin-1", "photos confirm damage", at)

	assert.Equal(t, StatusResolvedRefund, d.Status)
	assert.Equal(t, "admin-1", d.ResolvedBy)
	assert.Equal(t, "photos confirm damage", d.ResolutionNote)
	require.NotNil(t, d.ResolvedAt)
	assert.Equal(t, at, *d.ResolvedAt)
}

func TestOutcome(t *testing.T) {
	assert.True(t, OutcomeRelease.Valid())
	assert.True(t, OutcomeRefund.Valid())
	assert.False(t, Outcome("split").Valid())
	assert.Equal(t, StatusResolvedRelease, OutcomeRelease.Status())
}
