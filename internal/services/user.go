package services

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/restful-users/apiserver/internal/apierr"
	"github.com/restful-users/apiserver/internal/cache"
	"github.com/restful-users/apiserver/internal/mapper"
	"github.com/restful-users/apiserver/internal/mq"
	"github.com/restful-users/apiserver/internal/store"
	"github.com/restful-users/apiserver/types"
	"github.com/rs/zerolog"
)

const (
	cacheKeyAll      = "all"
	maxPageSize      = 100
	defaultSortField = "id"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	FindAll(ctx context.Context) ([]store.UserEntity, error)
	FindPage(ctx context.Context, offset, limit int, sort store.Sort) ([]store.UserEntity, int64, error)
	FindByID(ctx context.Context, id int64) (store.UserEntity, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ExistsByID(ctx context.Context, id int64) (bool, error)
	Count(ctx context.Context) (int64, error)
	Save(ctx context.Context, user store.UserEntity) (store.UserEntity, error)
	DeleteByID(ctx context.Context, id int64) error
}

// EventPublisher announces committed user changes.
type EventPublisher interface {
	Publish(ctx context.Context, eventType mq.UserEventType, user types.User) error
}

// UserService encapsulates user use-cases. Reads go through the cache and
// every successful write empties it.
type UserService struct {
	repo   UserRepository
	cache  *cache.Cache
	events EventPublisher
	logger zerolog.Logger
}

// NewUserService wires the service. events may be nil.
func NewUserService(repo UserRepository, userCache *cache.Cache, events EventPublisher, logger zerolog.Logger) *UserService {
	if userCache == nil {
		userCache = cache.New("users")
	}
	return &UserService{
		repo:   repo,
		cache:  userCache,
		events: events,
		logger: logger.With().Str("component", "user_service").Logger(),
	}
}

// List returns every user in id order. Callers own the returned values.
func (s *UserService) List(ctx context.Context) ([]types.User, error) {
	if users, ok := cache.Get[[]types.User](s.cache, cacheKeyAll); ok {
		return mapper.ClonePublicList(users), nil
	}

	entities, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	users := mapper.ToPublicList(entities)
	s.cache.Put(cacheKeyAll, users)
	return mapper.ClonePublicList(users), nil
}

// ListPage returns one window of users. Pages past the end are empty.
func (s *UserService) ListPage(ctx context.Context, req types.PageRequest) (types.Page[types.User], error) {
	req, err := normalizePageRequest(req)
	if err != nil {
		return types.Page[types.User]{}, err
	}

	// Offsets past math.MaxInt cannot address any row.
	if req.Page > math.MaxInt/req.Size {
		total, err := s.repo.Count(ctx)
		if err != nil {
			return types.Page[types.User]{}, fmt.Errorf("count users: %w", err)
		}
		return types.NewPage[types.User](req, nil, total), nil
	}

	entities, total, err := s.repo.FindPage(ctx, req.Offset(), req.Size, store.Sort{Field: req.Sort, Desc: req.Desc})
	if err != nil {
		return types.Page[types.User]{}, fmt.Errorf("list users page: %w", err)
	}

	return types.NewPage(req, mapper.ToPublicList(entities), total), nil
}

func normalizePageRequest(req types.PageRequest) (types.PageRequest, error) {
	var messages []string
	if req.Page < 0 {
		messages = append(messages, "page: must be greater than or equal to 0")
	}
	if req.Size < 1 {
		messages = append(messages, "size: must be greater than 0")
	}
	if req.Size > maxPageSize {
		req.Size = maxPageSize
	}
	if req.Sort == "" {
		req.Sort = defaultSortField
	}
	if !store.IsSortable(req.Sort) {
		messages = append(messages, fmt.Sprintf("sort: unknown property '%s'", req.Sort))
	}
	if len(messages) > 0 {
		return req, apierr.ValidationErr(messages...)
	}
	return req, nil
}

// Get looks a user up by id. A missing id reports found == false and no
// error. Only found users are cached; callers get their own copy.
func (s *UserService) Get(ctx context.Context, id int64) (types.User, bool, error) {
	key := userCacheKey(id)
	if user, ok := cache.Get[types.User](s.cache, key); ok {
		return mapper.ClonePublic(user), true, nil
	}

	entity, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, false, nil
		}
		return types.User{}, false, fmt.Errorf("get user %d: %w", id, err)
	}

	user := *mapper.ToPublic(&entity)
	s.cache.Put(key, user)
	return mapper.ClonePublic(user), true, nil
}

// Create validates and stores a new user. Username is checked for
// uniqueness before email.
func (s *UserService) Create(ctx context.Context, input types.User) (types.User, error) {
	if err := validateStruct(input); err != nil {
		s.logger.Warn().Err(err).Msg("create rejected")
		return types.User{}, err
	}

	if err := s.ensureUsernameFree(ctx, input.Username); err != nil {
		return types.User{}, err
	}
	if err := s.ensureEmailFree(ctx, input.Email); err != nil {
		return types.User{}, err
	}

	entity := mapper.ToEntity(&input)
	entity.ID = 0

	saved, err := s.repo.Save(ctx, *entity)
	if err != nil {
		return types.User{}, s.saveError(err, input)
	}

	user := *mapper.ToPublic(&saved)
	s.afterWrite(ctx, mq.UserCreated, user)
	return user, nil
}

// Update merges input into the stored user. Uniqueness is re-checked only
// for a username or email that actually changes.
func (s *UserService) Update(ctx context.Context, id int64, input types.User) (types.User, error) {
	if err := validateStruct(input); err != nil {
		s.logger.Warn().Err(err).Int64("user_id", id).Msg("update rejected")
		return types.User{}, err
	}

	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, apierr.NotFoundf("User not found with id: %d", id)
		}
		return types.User{}, fmt.Errorf("load user %d: %w", id, err)
	}

	if input.Username != current.Username {
		if err := s.ensureUsernameFree(ctx, input.Username); err != nil {
			return types.User{}, err
		}
	}
	if input.Email != current.Email {
		if err := s.ensureEmailFree(ctx, input.Email); err != nil {
			return types.User{}, err
		}
	}

	saved, err := s.repo.Save(ctx, mapper.ApplyUpdate(current, input))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, apierr.NotFoundf("User not found with id: %d", id)
		}
		return types.User{}, s.saveError(err, input)
	}

	user := *mapper.ToPublic(&saved)
	s.afterWrite(ctx, mq.UserUpdated, user)
	return user, nil
}

// Delete removes a user. It reports false, without error, when the id is
// not present.
func (s *UserService) Delete(ctx context.Context, id int64) (bool, error) {
	exists, err := s.repo.ExistsByID(ctx, id)
	if err != nil {
		return false, fmt.Errorf("check user %d: %w", id, err)
	}
	if !exists {
		return false, nil
	}

	if err := s.repo.DeleteByID(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("delete user %d: %w", id, err)
	}

	s.afterWrite(ctx, mq.UserDeleted, types.User{ID: id})
	return true, nil
}

// InvalidateCache drops every cached read. Used when another replica
// reports a write.
func (s *UserService) InvalidateCache() {
	s.cache.EvictAll()
}

func (s *UserService) ensureUsernameFree(ctx context.Context, username string) error {
	taken, err := s.repo.ExistsByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("check username: %w", err)
	}
	if taken {
		s.logger.Warn().Str("username", username).Msg("username conflict")
		return apierr.Conflictf("Username already exists: %s", username)
	}
	return nil
}

func (s *UserService) ensureEmailFree(ctx context.Context, email string) error {
	taken, err := s.repo.ExistsByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("check email: %w", err)
	}
	if taken {
		s.logger.Warn().Str("email", email).Msg("email conflict")
		return apierr.Conflictf("Email already exists: %s", email)
	}
	return nil
}

// saveError reports a unique index violation that raced past the
// existence checks as a Conflict.
func (s *UserService) saveError(err error, input types.User) error {
	if errors.Is(err, store.ErrDuplicate) {
		return apierr.Wrap(apierr.Conflict, err, fmt.Sprintf("Username or email already exists: %s / %s", input.Username, input.Email))
	}
	return fmt.Errorf("save user: %w", err)
}

func (s *UserService) afterWrite(ctx context.Context, eventType mq.UserEventType, user types.User) {
	s.cache.EvictAll()

	s.logger.Info().
		Str("event", string(eventType)).
		Int64("user_id", user.ID).
		Str("username", user.Username).
		Msg("user written")

	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, eventType, user); err != nil {
		s.logger.Error().Err(err).Str("event", string(eventType)).Int64("user_id", user.ID).Msg("publish user event failed")
	}
}

func userCacheKey(id int64) string {
	return fmt.Sprintf("id:%d", id)
}
