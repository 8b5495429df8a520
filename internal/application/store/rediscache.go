package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"gatekeeper/internal/application/models"
	id "gatekeeper/pkg/domain"
)

// DefaultCacheTTL bounds how stale a cached application may be. Evaluations
// snapshot configuration anyway, so a short TTL only delays when new config
// takes effect, never what a past evaluation recorded.
const DefaultCacheTTL = 2 * time.Minute

// cachedApplication is the wire form for cached aggregates. The aggregate's
// collection is unexported by design, so the cache flattens it explicitly.
type cachedApplication struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Owner     string    `json:"owner"`
	Vertical  string    `json:"vertical,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Environments []cachedEnvironment `json:"environments"`
}

type cachedEnvironment struct {
	Name     string            `json:"name"`
	RiskTier string            `json:"risk_tier"`
	Tools    []string          `json:"tools"`
	Policies []string          `json:"policies"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Active   bool              `json:"active"`
}

// CachedStore is a read-through cache decorator over another application
// store. It is a collaborator-boundary optimization: the evaluation core
// never depends on it for correctness. Cache failures degrade to the inner
// store and are logged, never returned.
type CachedStore struct {
	inner  Store
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// Store is the contract shared by the application store implementations.
type Store interface {
	CreateIfNameAvailable(ctx context.Context, app *models.Application) error
	FindByID(ctx context.Context, appID id.ApplicationID) (*models.Application, error)
	FindByName(ctx context.Context, name string) (*models.Application, error)
	Update(ctx context.Context, app *models.Application) error
}

// NewCached wraps inner with a redis read-through cache keyed by application
// ID. Only FindByID is cached; name lookups are rare admin operations.
func NewCached(inner Store, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedStore {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedStore{inner: inner, client: client, ttl: ttl, logger: logger}
}

func (s *CachedStore) CreateIfNameAvailable(ctx context.Context, app *models.Application) error {
	return s.inner.CreateIfNameAvailable(ctx, app)
}

func (s *CachedStore) FindByID(ctx context.Context, appID id.ApplicationID) (*models.Application, error) {
	key := cacheKey(appID)

	raw, err := s.client.Get(ctx, key).Bytes()
	if err == nil {
		if app, decodeErr := decodeCached(raw); decodeErr == nil {
			return app, nil
		}
		// Corrupt entry: drop it and fall through to the inner store.
		_ = s.client.Del(ctx, key).Err()
	} else if !errors.Is(err, redis.Nil) && s.logger != nil {
		s.logger.WarnContext(ctx, "application cache read failed", "key", key, "error", err)
	}

	app, err := s.inner.FindByID(ctx, appID)
	if err != nil {
		return nil, err
	}
	s.fill(ctx, key, app)
	return app, nil
}

func (s *CachedStore) FindByName(ctx context.Context, name string) (*models.Application, error) {
	return s.inner.FindByName(ctx, name)
}

// Update writes through to the inner store and invalidates the cached entry.
func (s *CachedStore) Update(ctx context.Context, app *models.Application) error {
	if err := s.inner.Update(ctx, app); err != nil {
		return err
	}
	if err := s.client.Del(ctx, cacheKey(app.ID)).Err(); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "application cache invalidation failed",
			"application_id", app.ID,
			"error", err,
		)
	}
	return nil
}

func (s *CachedStore) fill(ctx context.Context, key string, app *models.Application) {
	cached := cachedApplication{
		ID:        app.ID.String(),
		Name:      app.Name,
		Owner:     app.Owner,
		Vertical:  app.Vertical,
		Active:    app.Active,
		CreatedAt: app.CreatedAt,
		UpdatedAt: app.UpdatedAt,
	}
	for _, env := range app.Environments() {
		ce := cachedEnvironment{
			Name:     env.Name,
			RiskTier: env.RiskTier.String(),
			Metadata: env.Metadata,
			Active:   env.Active,
		}
		for _, tool := range env.Tools {
			ce.Tools = append(ce.Tools, tool.String())
		}
		for _, ref := range env.Policies {
			ce.Policies = append(ce.Policies, ref.String())
		}
		cached.Environments = append(cached.Environments, ce)
	}

	raw, err := json.Marshal(cached)
	if err != nil {
		return
	}
	if err := s.client.Set(ctx, key, raw, s.ttl).Err(); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "application cache write failed", "key", key, "error", err)
	}
}

func decodeCached(raw []byte) (*models.Application, error) {
	var cached cachedApplication
	if err := json.Unmarshal(raw, &cached); err != nil {
		return nil, err
	}
	appID, err := id.ParseApplicationID(cached.ID)
	if err != nil {
		return nil, fmt.Errorf("cached application id: %w", err)
	}

	var envs []models.EnvironmentConfig
	for _, ce := range cached.Environments {
		env := models.EnvironmentConfig{
			Name:     ce.Name,
			RiskTier: id.RiskTier(ce.RiskTier),
			Metadata: ce.Metadata,
			Active:   ce.Active,
		}
		for _, tool := range ce.Tools {
			env.Tools = append(env.Tools, id.SecurityTool(tool))
		}
		for _, ref := range ce.Policies {
			env.Policies = append(env.Policies, id.PolicyReference(ref))
		}
		envs = append(envs, env)
	}

	return models.RestoreApplication(
		appID, cached.Name, cached.Owner, cached.Vertical, cached.Active,
		cached.CreatedAt, cached.UpdatedAt, envs,
	), nil
}

func cacheKey(appID id.ApplicationID) string {
	return "gatekeeper:application:" + appID.String()
}
