package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"gatekeeper/internal/application/models"
	id "gatekeeper/pkg/domain"
	"gatekeeper/pkg/platform/sentinel"
)

type ApplicationStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func (s *ApplicationStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func TestApplicationStoreSuite(t *testing.T) {
	suite.Run(t, new(ApplicationStoreSuite))
}

func (s *ApplicationStoreSuite) newApplication(name string) *models.Application {
	app, err := models.NewApplication(id.NewApplicationID(), name, "appsec-team", "payments", time.Now())
	s.Require().NoError(err)
	return app
}

// TestCreationAndLookups verifies the store correctly creates and retrieves applications.
func (s *ApplicationStoreSuite) TestCreationAndLookups() {
	s.Run("creates and finds application by ID", func() {
		app := s.newApplication("payment-api")
		s.Require().NoError(s.store.CreateIfNameAvailable(s.ctx, app))

		found, err := s.store.FindByID(s.ctx, app.ID)
		s.Require().NoError(err)
		s.Equal(app.Name, found.Name)
		s.Equal(app.Owner, found.Owner)
	})

	s.Run("returns ErrNotFound for unknown ID", func() {
		_, err := s.store.FindByID(s.ctx, id.NewApplicationID())
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("finds by name regardless of lookup casing", func() {
		app := s.newApplication("checkout-service")
		s.Require().NoError(s.store.CreateIfNameAvailable(s.ctx, app))

		found, err := s.store.FindByName(s.ctx, "CHECKOUT-SERVICE")
		s.Require().NoError(err)
		s.Equal(app.ID, found.ID)
	})

	s.Run("returns ErrNotFound for unknown name", func() {
		_, err := s.store.FindByName(s.ctx, "no-such-app")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

// TestNameUniqueness verifies name uniqueness enforcement.
func (s *ApplicationStoreSuite) TestNameUniqueness() {
	s.Run("rejects duplicate name", func() {
		s.Require().NoError(s.store.CreateIfNameAvailable(s.ctx, s.newApplication("billing-api")))

		err := s.store.CreateIfNameAvailable(s.ctx, s.newApplication("billing-api"))
		s.Require().Error(err)
		s.ErrorIs(err, sentinel.ErrAlreadyUsed)
	})
}

// TestUpdates verifies the store correctly persists aggregate changes.
func (s *ApplicationStoreSuite) TestUpdates() {
	s.Run("persists deactivation", func() {
		app := s.newApplication("ledger-api")
		s.Require().NoError(s.store.CreateIfNameAvailable(s.ctx, app))

		s.True(app.Deactivate(time.Now()))
		s.Require().NoError(s.store.Update(s.ctx, app))

		found, err := s.store.FindByID(s.ctx, app.ID)
		s.Require().NoError(err)
		s.False(found.Active)
	})

	s.Run("persists environment configuration", func() {
		app := s.newApplication("fraud-api")
		s.Require().NoError(app.AddEnvironment(
			"production",
			id.RiskTierCritical,
			[]id.SecurityTool{id.ToolSnyk, id.ToolTrivy},
			[]id.PolicyReference{"appsec.overrides.fraud"},
			map[string]string{"region": "eu-west-1"},
			time.Now(),
		))
		s.Require().NoError(s.store.CreateIfNameAvailable(s.ctx, app))
		s.Require().NoError(s.store.Update(s.ctx, app))

		found, err := s.store.FindByID(s.ctx, app.ID)
		s.Require().NoError(err)
		env, ok := found.Environment("production")
		s.Require().True(ok)
		s.Equal(id.RiskTierCritical, env.RiskTier)
		s.Len(env.Tools, 2)
	})

	s.Run("returns ErrNotFound for non-existent application", func() {
		err := s.store.Update(s.ctx, s.newApplication("phantom-api"))
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

// TestIsolation verifies stored aggregates cannot be mutated through returned copies.
func (s *ApplicationStoreSuite) TestIsolation() {
	app := s.newApplication("inventory-api")
	s.Require().NoError(s.store.CreateIfNameAvailable(s.ctx, app))

	found, err := s.store.FindByID(s.ctx, app.ID)
	s.Require().NoError(err)
	found.Deactivate(time.Now())

	again, err := s.store.FindByID(s.ctx, app.ID)
	s.Require().NoError(err)
	s.True(again.Active)
}
