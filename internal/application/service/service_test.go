package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatekeeper/internal/application/service"
	"gatekeeper/internal/application/store"
	id "gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
)

func newService(t *testing.T) (*service.Service, *store.InMemory) {
	t.Helper()
	st := store.NewInMemory()
	return service.New(st), st
}

func productionSpec() service.EnvironmentSpec {
	return service.EnvironmentSpec{
		Name:     "production",
		RiskTier: id.RiskTierCritical,
		Tools:    []id.SecurityTool{id.ToolSnyk, id.ToolPrismaCloud},
	}
}

func TestCreateApplication(t *testing.T) {
	svc, _ := newService(t)

	app, err := svc.CreateApplication(context.Background(), service.CreateApplicationCommand{
		Name:         "payment-api",
		Owner:        "payments-team@example.com",
		Vertical:     "payments",
		Environments: []service.EnvironmentSpec{productionSpec()},
	})
	require.NoError(t, err)

	assert.Equal(t, "payment-api", app.Name)
	assert.Equal(t, "payments", app.Vertical)
	assert.True(t, app.IsActive())

	env, ok := app.Environment("production")
	require.True(t, ok)
	assert.Equal(t, id.RiskTierCritical, env.RiskTier)
	assert.Equal(t, []id.SecurityTool{id.ToolSnyk, id.ToolPrismaCloud}, env.Tools)
}

func TestCreateApplicationInvalidName(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.CreateApplication(context.Background(), service.CreateApplicationCommand{
		Name:  "Payment API",
		Owner: "payments-team@example.com",
	})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestCreateApplicationDuplicateName(t *testing.T) {
	svc, _ := newService(t)

	cmd := service.CreateApplicationCommand{Name: "payment-api", Owner: "payments-team@example.com"}
	_, err := svc.CreateApplication(context.Background(), cmd)
	require.NoError(t, err)

	_, err = svc.CreateApplication(context.Background(), cmd)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestGetApplicationNotFound(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.GetApplication(context.Background(), id.NewApplicationID())
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = svc.GetApplicationByName(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestAddEnvironment(t *testing.T) {
	svc, _ := newService(t)

	app, err := svc.CreateApplication(context.Background(), service.CreateApplicationCommand{
		Name: "payment-api", Owner: "payments-team@example.com",
	})
	require.NoError(t, err)

	updated, err := svc.AddEnvironment(context.Background(), app.ID, productionSpec())
	require.NoError(t, err)
	_, ok := updated.Environment("production")
	assert.True(t, ok)

	// The change survives a reload.
	reloaded, err := svc.GetApplication(context.Background(), app.ID)
	require.NoError(t, err)
	_, ok = reloaded.Environment("production")
	assert.True(t, ok)
}

func TestAddEnvironmentDuplicate(t *testing.T) {
	svc, _ := newService(t)

	app, err := svc.CreateApplication(context.Background(), service.CreateApplicationCommand{
		Name: "payment-api", Owner: "payments-team@example.com",
		Environments: []service.EnvironmentSpec{productionSpec()},
	})
	require.NoError(t, err)

	_, err = svc.AddEnvironment(context.Background(), app.ID, productionSpec())
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestUpdateEnvironment(t *testing.T) {
	svc, _ := newService(t)

	app, err := svc.CreateApplication(context.Background(), service.CreateApplicationCommand{
		Name: "payment-api", Owner: "payments-team@example.com",
		Environments: []service.EnvironmentSpec{productionSpec()},
	})
	require.NoError(t, err)

	spec := productionSpec()
	spec.RiskTier = id.RiskTierHigh
	spec.Tools = []id.SecurityTool{id.ToolTrivy}

	updated, err := svc.UpdateEnvironment(context.Background(), app.ID, spec, false)
	require.NoError(t, err)

	env, ok := updated.Environment("production")
	require.True(t, ok)
	assert.Equal(t, id.RiskTierHigh, env.RiskTier)
	assert.Equal(t, []id.SecurityTool{id.ToolTrivy}, env.Tools)
	assert.False(t, env.Active)
}

func TestUpdateEnvironmentUnknown(t *testing.T) {
	svc, _ := newService(t)

	app, err := svc.CreateApplication(context.Background(), service.CreateApplicationCommand{
		Name: "payment-api", Owner: "payments-team@example.com",
	})
	require.NoError(t, err)

	_, err = svc.UpdateEnvironment(context.Background(), app.ID, productionSpec(), true)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestDeactivateAndReactivate(t *testing.T) {
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	st := store.NewInMemory()
	svc := service.New(st, service.WithClock(func() time.Time { return fixed }))

	app, err := svc.CreateApplication(context.Background(), service.CreateApplicationCommand{
		Name: "payment-api", Owner: "payments-team@example.com",
	})
	require.NoError(t, err)

	deactivated, err := svc.DeactivateApplication(context.Background(), app.ID)
	require.NoError(t, err)
	assert.False(t, deactivated.IsActive())

	// Idempotent: a second call is a no-op, not an error.
	again, err := svc.DeactivateApplication(context.Background(), app.ID)
	require.NoError(t, err)
	assert.False(t, again.IsActive())

	reactivated, err := svc.ReactivateApplication(context.Background(), app.ID)
	require.NoError(t, err)
	assert.True(t, reactivated.IsActive())
	assert.Equal(t, fixed, reactivated.UpdatedAt)
}
