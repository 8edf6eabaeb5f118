package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/smarttransit/rail-reservation/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCancellationPolicy_SingleActive(t *testing.T) {
	env := setupServicesTest(t)
	ctx := context.Background()

	active, err := env.policies.Active(ctx)
	require.NoError(t, err)
	assert.Nil(t, active)

	standard := &models.CancellationPolicy{Name: "Standard", HoursBeforeDeparture: 24, MinHoursBeforeDeparture: 2, RefundPercentage: 80, AllowCancellation: true, Active: true}
	flexible := &models.CancellationPolicy{Name: "Flexible", HoursBeforeDeparture: 72, RefundPercentage: 100, AllowCancellation: true}
	require.NoError(t, env.policies.Create(ctx, standard))
	require.NoError(t, env.policies.Create(ctx, flexible))
	assert.False(t, standard.Active, "new policies start inactive")

	_, err = env.policies.Activate(ctx, standard.ID)
	require.NoError(t, err)
	activated, err := env.policies.Activate(ctx, flexible.ID)
	require.NoError(t, err)
	assert.True(t, activated.Active)

	policies, err := env.policies.List(ctx)
	require.NoError(t, err)
	activeCount := 0
	for _, p := range policies {
		if p.Active {
			activeCount++
			assert.Equal(t, flexible.ID, p.ID)
		}
	}
	assert.Equal(t, 1, activeCount)

	_, err = env.policies.Activate(ctx, uuid.New())
	assert.ErrorIs(t, err, models.ErrPolicyNotFound)

	active, err = env.policies.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, flexible.ID, active.ID)
}

func TestCancellationPolicy_CreateValidates(t *testing.T) {
	env := setupServicesTest(t)

	err := env.policies.Create(context.Background(), &models.CancellationPolicy{
		Name: "Broken", HoursBeforeDeparture: 2, MinHoursBeforeDeparture: 24, RefundPercentage: 50,
	})
	assert.ErrorIs(t, err, models.ErrValidation)

	err = env.policies.Create(context.Background(), &models.CancellationPolicy{
		Name: "Greedy", HoursBeforeDeparture: 24, RefundPercentage: 120,
	})
	assert.ErrorIs(t, err, models.ErrValidation)
}
