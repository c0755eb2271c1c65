package services

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/restful-users/apiserver/internal/apierr"
	"github.com/restful-users/apiserver/internal/cache"
	"github.com/restful-users/apiserver/internal/mq"
	"github.com/restful-users/apiserver/internal/store"
	"github.com/restful-users/apiserver/internal/store/storetest"
	"github.com/restful-users/apiserver/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedEvent struct {
	Type mq.UserEventType
	User types.User
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, eventType mq.UserEventType, user types.User) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{Type: eventType, User: user})
	return p.err
}

func (p *recordingPublisher) Events() []recordedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]recordedEvent(nil), p.events...)
}

type fixture struct {
	repo   *storetest.MemoryUserRepository
	cache  *cache.Cache
	events *recordingPublisher
	svc    *UserService
}

func newFixture(t *testing.T, seed ...store.UserEntity) fixture {
	t.Helper()
	repo := storetest.NewMemoryUserRepository(seed...)
	c := cache.New("users")
	events := &recordingPublisher{}
	return fixture{
		repo:   repo,
		cache:  c,
		events: events,
		svc:    NewUserService(repo, c, events, zerolog.Nop()),
	}
}

func bret() store.UserEntity {
	return store.UserEntity{
		ID:       1,
		Name:     "Leanne Graham",
		Username: "Bret",
		Email:    "Sincere@april.biz",
		Address: &store.AddressEntity{
			ID:     11,
			UserID: 1,
			City:   "Gwenborough",
			Geo:    &store.GeoEntity{ID: 21, AddressID: 11, Lat: "-37.3159", Lng: "81.1496"},
		},
		Company: &store.CompanyEntity{ID: 31, UserID: 1, Name: "Romaguera-Crona"},
	}
}

func antonette() store.UserEntity {
	return store.UserEntity{ID: 2, Name: "Ervin Howell", Username: "Antonette", Email: "Shanna@melissa.tv"}
}

func requireKind(t *testing.T, err error, kind apierr.Kind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, apierr.KindOf(err), "error: %v", err)
}

func TestCreate_AssignsFreshID(t *testing.T) {
	f := newFixture(t, bret())

	created, err := f.svc.Create(context.Background(), types.User{
		ID:       99,
		Name:     "Patricia Lebsack",
		Username: "Karianne",
		Email:    "Julianne.OConner@kory.org",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(2), created.ID, "client supplied id is ignored")
	assert.Equal(t, "Karianne", created.Username)

	events := f.events.Events()
	require.Len(t, events, 1)
	assert.Equal(t, mq.UserCreated, events[0].Type)
	assert.Equal(t, created.ID, events[0].User.ID)
}

func TestCreate_UsernameConflictShortCircuits(t *testing.T) {
	f := newFixture(t, bret(), antonette())

	_, err := f.svc.Create(context.Background(), types.User{Username: "Bret", Email: "Shanna@melissa.tv"})

	requireKind(t, err, apierr.Conflict)
	assert.Equal(t, []string{"Username already exists: Bret"}, apierr.Messages(err))
	assert.Equal(t, 0, f.repo.Saves())
	assert.Empty(t, f.events.Events())
}

func TestCreate_EmailConflict(t *testing.T) {
	f := newFixture(t, bret())

	_, err := f.svc.Create(context.Background(), types.User{Username: "someone", Email: "Sincere@april.biz"})

	requireKind(t, err, apierr.Conflict)
	assert.Equal(t, []string{"Email already exists: Sincere@april.biz"}, apierr.Messages(err))
	assert.Equal(t, 0, f.repo.Saves())
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name     string
		input    types.User
		messages []string
	}{
		{
			name:     "blank username and bad email",
			input:    types.User{Username: "   ", Email: "not-an-email"},
			messages: []string{"email: must be a well-formed email address", "username: must not be blank"},
		},
		{
			name:     "missing email",
			input:    types.User{Username: "x"},
			messages: []string{"email: must not be blank"},
		},
		{
			name: "bad geo",
			input: types.User{
				Username: "x",
				Email:    "x@example.com",
				Address:  &types.Address{Geo: &types.Geo{Lat: "200", Lng: "10"}},
			},
			messages: []string{"address.geo.lat: must be a valid latitude"},
		},
		{
			name: "too long username",
			input: types.User{
				Username: "abcdefghijabcdefghijabcdefghijabcdefghijabcdefghijX",
				Email:    "x@example.com",
			},
			messages: []string{"username: size must be between 0 and 50"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), tc.input)
			requireKind(t, err, apierr.Validation)
			assert.Equal(t, tc.messages, apierr.Messages(err))
		})
	}
	assert.Equal(t, 0, f.repo.Saves())
}

func TestCreate_DuplicateFromStoreIsConflict(t *testing.T) {
	f := newFixture(t)
	repo := &racingRepository{MemoryUserRepository: f.repo}
	svc := NewUserService(repo, f.cache, nil, zerolog.Nop())

	_, err := svc.Create(context.Background(), types.User{Username: "late", Email: "late@example.com"})

	requireKind(t, err, apierr.Conflict)
	assert.ErrorIs(t, err, store.ErrDuplicate)
}

// racingRepository simulates a concurrent insert landing between the
// existence checks and the save.
type racingRepository struct {
	*storetest.MemoryUserRepository
}

func (r *racingRepository) Save(context.Context, store.UserEntity) (store.UserEntity, error) {
	return store.UserEntity{}, store.ErrDuplicate
}

func TestGet_CachesOnlyFoundUsers(t *testing.T) {
	f := newFixture(t, bret())
	ctx := context.Background()

	_, found, err := f.svc.Get(ctx, 42)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 0, f.cache.Len())

	user, found, err := f.svc.Get(ctx, 1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Bret", user.Username)
	assert.Equal(t, 1, f.cache.Len())

	require.NoError(t, f.repo.DeleteByID(ctx, 1))
	cached, found, err := f.svc.Get(ctx, 1)
	require.NoError(t, err)
	assert.True(t, found, "served from cache until a write goes through the service")
	assert.Equal(t, user, cached)
}

func TestReads_ReturnCopiesOfCachedUsers(t *testing.T) {
	f := newFixture(t, bret())
	ctx := context.Background()

	user, _, err := f.svc.Get(ctx, 1)
	require.NoError(t, err)
	user.Address.City = "Elsewhere"
	user.Company.Name = "Other"

	again, _, err := f.svc.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Gwenborough", again.Address.City)
	assert.Equal(t, "Romaguera-Crona", again.Company.Name)

	users, err := f.svc.List(ctx)
	require.NoError(t, err)
	users[0].Address.Geo.Lat = "0"

	users, err = f.svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, "-37.3159", users[0].Address.Geo.Lat)
}

func TestList_ReflectsWrites(t *testing.T) {
	f := newFixture(t, bret())
	ctx := context.Background()

	users, err := f.svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)

	created, err := f.svc.Create(ctx, types.User{Username: "Antonette", Email: "Shanna@melissa.tv"})
	require.NoError(t, err)

	users, err = f.svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, created.ID, users[1].ID)

	_, err = f.svc.Update(ctx, created.ID, types.User{Username: "Antonette", Email: "new@melissa.tv"})
	require.NoError(t, err)
	users, err = f.svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new@melissa.tv", users[1].Email)

	deleted, err := f.svc.Delete(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, deleted)
	users, err = f.svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestUpdate_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Update(context.Background(), 5, types.User{Username: "x", Email: "x@example.com"})

	requireKind(t, err, apierr.NotFound)
	assert.Equal(t, []string{"User not found with id: 5"}, apierr.Messages(err))
}

// deletingRepository removes the user between the update's lookup and
// its save.
type deletingRepository struct {
	*storetest.MemoryUserRepository
}

func (r *deletingRepository) Save(ctx context.Context, user store.UserEntity) (store.UserEntity, error) {
	if user.ID != 0 {
		_ = r.MemoryUserRepository.DeleteByID(ctx, user.ID)
	}
	return r.MemoryUserRepository.Save(ctx, user)
}

func TestUpdate_ConcurrentDeleteIsNotFound(t *testing.T) {
	f := newFixture(t, bret())
	svc := NewUserService(&deletingRepository{MemoryUserRepository: f.repo}, f.cache, f.events, zerolog.Nop())

	_, err := svc.Update(context.Background(), 1, types.User{Username: "Bret", Email: "Sincere@april.biz", Name: "Leanne"})

	requireKind(t, err, apierr.NotFound)
	assert.Equal(t, []string{"User not found with id: 1"}, apierr.Messages(err))
	assert.Empty(t, f.events.Events())
	exists, err := f.repo.ExistsByID(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestUpdate_KeepsOwnUsernameAndEmail(t *testing.T) {
	f := newFixture(t, bret())

	updated, err := f.svc.Update(context.Background(), 1, types.User{
		Name:     "Leanne G.",
		Username: "Bret",
		Email:    "Sincere@april.biz",
	})
	require.NoError(t, err)
	assert.Equal(t, "Leanne G.", updated.Name)
}

func TestUpdate_ConflictWithOtherUser(t *testing.T) {
	f := newFixture(t, bret(), antonette())

	_, err := f.svc.Update(context.Background(), 1, types.User{Username: "Antonette", Email: "Sincere@april.biz"})
	requireKind(t, err, apierr.Conflict)

	_, err = f.svc.Update(context.Background(), 1, types.User{Username: "Bret", Email: "Shanna@melissa.tv"})
	requireKind(t, err, apierr.Conflict)
	assert.Equal(t, 0, f.repo.Saves())
}

func TestUpdate_PartialNestedMerge(t *testing.T) {
	f := newFixture(t, bret())
	ctx := context.Background()

	updated, err := f.svc.Update(ctx, 1, types.User{Username: "Bret", Email: "Sincere@april.biz"})
	require.NoError(t, err)
	require.NotNil(t, updated.Address, "absent address keeps the stored one")
	assert.Equal(t, "Gwenborough", updated.Address.City)
	require.NotNil(t, updated.Company)

	updated, err = f.svc.Update(ctx, 1, types.User{
		Username: "Bret",
		Email:    "Sincere@april.biz",
		Address:  &types.Address{City: "Springfield"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Springfield", updated.Address.City)
	require.NotNil(t, updated.Address.Geo)
	assert.Equal(t, "-37.3159", updated.Address.Geo.Lat)

	stored, err := f.repo.FindByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(11), stored.Address.ID, "nested record keeps its identity")
	assert.Equal(t, int64(31), stored.Company.ID)
}

func TestDelete(t *testing.T) {
	f := newFixture(t, bret())
	ctx := context.Background()

	deleted, err := f.svc.Delete(ctx, 999)
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.Equal(t, 0, f.repo.Deletes())

	deleted, err = f.svc.Delete(ctx, 1)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, found, err := f.svc.Get(ctx, 1)
	require.NoError(t, err)
	assert.False(t, found)

	events := f.events.Events()
	require.Len(t, events, 1)
	assert.Equal(t, mq.UserDeleted, events[0].Type)
	assert.Equal(t, int64(1), events[0].User.ID)
}

func TestWrites_EvictWholeCache(t *testing.T) {
	f := newFixture(t, bret(), antonette())
	ctx := context.Background()

	_, err := f.svc.List(ctx)
	require.NoError(t, err)
	_, _, err = f.svc.Get(ctx, 1)
	require.NoError(t, err)
	_, _, err = f.svc.Get(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, 3, f.cache.Len())

	_, err = f.svc.Update(ctx, 2, types.User{Username: "Antonette", Email: "Shanna@melissa.tv", Name: "E. Howell"})
	require.NoError(t, err)

	assert.Equal(t, 0, f.cache.Len())
}

func TestFailedWrites_KeepCache(t *testing.T) {
	f := newFixture(t, bret())
	ctx := context.Background()

	_, err := f.svc.List(ctx)
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, types.User{Username: "Bret", Email: "other@example.com"})
	requireKind(t, err, apierr.Conflict)
	assert.Equal(t, 1, f.cache.Len())
}

func TestPublishFailureDoesNotFailWrite(t *testing.T) {
	f := newFixture(t)
	f.events.err = errors.New("broker down")

	created, err := f.svc.Create(context.Background(), types.User{Username: "x", Email: "x@example.com"})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
}

func TestListPage(t *testing.T) {
	seed := []store.UserEntity{
		{Username: "charlie", Email: "c@example.com", Name: "C"},
		{Username: "alice", Email: "a@example.com", Name: "A"},
		{Username: "bob", Email: "b@example.com", Name: "B"},
	}
	f := newFixture(t, seed...)
	ctx := context.Background()

	page, err := f.svc.ListPage(ctx, types.PageRequest{Page: 0, Size: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.TotalElements)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Content, 2)
	assert.Equal(t, "charlie", page.Content[0].Username)
	assert.Equal(t, "id,asc", page.Sort)

	page, err = f.svc.ListPage(ctx, types.PageRequest{Page: 0, Size: 3, Sort: "username", Desc: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"charlie", "bob", "alice"}, usernames(page.Content))

	page, err = f.svc.ListPage(ctx, types.PageRequest{Page: 7, Size: 2})
	require.NoError(t, err)
	assert.Empty(t, page.Content)
	assert.Equal(t, int64(3), page.TotalElements)
	assert.True(t, page.Empty)

	page, err = f.svc.ListPage(ctx, types.PageRequest{Page: 0, Size: 1000})
	require.NoError(t, err)
	assert.Equal(t, 100, page.Size)
}

func TestListPage_HugePageIsEmpty(t *testing.T) {
	f := newFixture(t, bret(), antonette())
	ctx := context.Background()

	for _, req := range []types.PageRequest{
		{Page: math.MaxInt/100 + 1, Size: 100},
		{Page: math.MaxInt, Size: 1},
		{Page: math.MaxInt, Size: 10},
	} {
		page, err := f.svc.ListPage(ctx, req)
		require.NoError(t, err)
		assert.Empty(t, page.Content)
		assert.Equal(t, 0, page.NumberOfElements)
		assert.True(t, page.Empty)
		assert.True(t, page.Last)
		assert.Equal(t, int64(2), page.TotalElements)
		assert.Equal(t, req.Page, page.Number)
	}
}

func TestListPage_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ListPage(context.Background(), types.PageRequest{Page: -1, Size: 0, Sort: "password"})

	requireKind(t, err, apierr.Validation)
	assert.Equal(t, []string{
		"page: must be greater than or equal to 0",
		"size: must be greater than 0",
		"sort: unknown property 'password'",
	}, apierr.Messages(err))
}

func TestInvalidateCache(t *testing.T) {
	f := newFixture(t, bret())
	_, err := f.svc.List(context.Background())
	require.NoError(t, err)

	f.svc.InvalidateCache()

	assert.Equal(t, 0, f.cache.Len())
}

func TestConcreteScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inserted, err := f.svc.SeedDefaults(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, inserted)

	user, found, err := f.svc.Get(ctx, 1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Bret", user.Username)

	_, err = f.svc.Create(ctx, types.User{Username: "Bret", Email: "fresh@example.com"})
	requireKind(t, err, apierr.Conflict)

	deleted, err := f.svc.Delete(ctx, 999)
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = f.svc.Delete(ctx, 1)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, found, err = f.svc.Get(ctx, 1)
	require.NoError(t, err)
	assert.False(t, found)
}

func usernames(users []types.User) []string {
	out := make([]string, 0, len(users))
	for _, u := range users {
		out = append(out, u.Username)
	}
	return out
}
