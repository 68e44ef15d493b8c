package repository

import (
	"context"
	"time"

	"github.com/cldrn/dataverse/shared/models"
	sharedredis "github.com/cldrn/dataverse/shared/redis"
	goredis "github.com/redis/go-redis/v9"
)

const userViewKeyPrefix = "user:view:"

// UserReadRepository serves display reads of users. It uses Redis as the
// primary read store, falling back to PostgreSQL on a miss.
type UserReadRepository struct {
	users *UserWriteRepository
	cache *sharedredis.ViewCache[models.UserView]
}

func NewUserReadRepository(users *UserWriteRepository, redisClient *goredis.Client, ttl time.Duration) *UserReadRepository {
	return &UserReadRepository{
		users: users,
		cache: sharedredis.NewViewCache[models.UserView](redisClient, userViewKeyPrefix, ttl),
	}
}

// GetView returns the cached projection, loading and caching it on a miss.
// Views are keyed by username; id references always go to PostgreSQL.
func (r *UserReadRepository) GetView(ctx context.Context, ref models.UserRef) (*models.UserView, error) {
	if !ref.ByID() {
		if view, ok := r.cache.Get(ctx, ref.Username); ok {
			return view, nil
		}
	}

	return r.LoadView(ctx, ref)
}

// LoadView reads the user from PostgreSQL and refreshes the cached view.
func (r *UserReadRepository) LoadView(ctx context.Context, ref models.UserRef) (*models.UserView, error) {
	user, err := r.users.GetByRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	view := models.NewUserView(user)
	r.CacheUserView(ctx, view)
	return view, nil
}

// CacheUserView stores or refreshes the read model for a user.
// Called by the command service after every committed mutation.
func (r *UserReadRepository) CacheUserView(ctx context.Context, view *models.UserView) {
	r.cache.Set(ctx, view.Username, view)
}

// InvalidateUserView drops the read model entry so the next read loads it
// from PostgreSQL.
func (r *UserReadRepository) InvalidateUserView(ctx context.Context, username string) {
	r.cache.Delete(ctx, username)
}
