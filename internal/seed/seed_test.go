package seed

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/bissquit/incident-tracker/internal/domain"
	"github.com/bissquit/incident-tracker/internal/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockUsers struct {
	users     map[string]*domain.User
	createErr error
}

func newMockUsers() *mockUsers {
	return &mockUsers{users: make(map[string]*domain.User)}
}

func (m *mockUsers) FindByUsername(_ context.Context, username string) (*domain.User, error) {
	u, ok := m.users[username]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	return u, nil
}

func (m *mockUsers) CreateUser(_ context.Context, input identity.CreateUserInput) (*domain.User, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	roles := make([]domain.Role, 0, len(input.Roles))
	for _, r := range input.Roles {
		roles = append(roles, domain.Role(r))
	}
	u := &domain.User{ID: "u-" + input.Username, Username: input.Username, Roles: roles}
	m.users[input.Username] = u
	return u, nil
}

type mockIncidents struct {
	items []*domain.Incident
	count int64
}

func (m *mockIncidents) Count(_ context.Context) (int64, error) {
	return m.count + int64(len(m.items)), nil
}

func (m *mockIncidents) Create(_ context.Context, inc *domain.Incident) error {
	inc.ID = "inc-" + strconv.Itoa(len(m.items)+1)
	m.items = append(m.items, inc)
	return nil
}

type mockComments struct {
	items []*domain.Comment
}

func (m *mockComments) Create(_ context.Context, c *domain.Comment) error {
	m.items = append(m.items, c)
	return nil
}

type passthroughTx struct{ calls int }

func (p *passthroughTx) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	p.calls++
	return fn(ctx)
}

type fixture struct {
	users     *mockUsers
	incidents *mockIncidents
	comments  *mockComments
	tx        *passthroughTx
}

func newFixture() *fixture {
	return &fixture{
		users:     newMockUsers(),
		incidents: &mockIncidents{},
		comments:  &mockComments{},
		tx:        &passthroughTx{},
	}
}

func (f *fixture) seeder(cfg Config) *Seeder {
	return New(cfg, f.users, f.incidents, f.comments, f.tx)
}

func TestRun_CreatesAdmin(t *testing.T) {
	// Arrange
	f := newFixture()

	// Act
	err := f.seeder(Config{AdminUsername: "admin", AdminPassword: "secret"}).Run(context.Background())

	// Assert
	require.NoError(t, err)
	require.Contains(t, f.users.users, "admin")
	assert.Equal(t, []domain.Role{domain.RoleAdmin}, f.users.users["admin"].Roles)
	assert.Empty(t, f.incidents.items)
}

func TestRun_AdminAlreadyExists(t *testing.T) {
	f := newFixture()
	f.users.users["admin"] = &domain.User{ID: "existing", Username: "admin"}
	f.users.createErr = errors.New("must not be called")

	err := f.seeder(Config{AdminUsername: "admin", AdminPassword: "secret"}).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "existing", f.users.users["admin"].ID)
}

func TestRun_AdminRaceIsIgnored(t *testing.T) {
	f := newFixture()
	f.users.createErr = identity.ErrUsernameExists

	err := f.seeder(Config{AdminUsername: "admin", AdminPassword: "secret"}).Run(context.Background())

	assert.NoError(t, err)
}

func TestRun_EmptyAdminPassword(t *testing.T) {
	f := newFixture()

	err := f.seeder(Config{AdminUsername: "admin"}).Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "bootstrap admin")
}

func TestRun_DemoData(t *testing.T) {
	f := newFixture()

	err := f.seeder(Config{
		AdminUsername: "admin",
		AdminPassword: "secret",
		DemoData:      true,
		DemoPassword:  "demo-pass",
	}).Run(context.Background())

	require.NoError(t, err)
	for _, username := range demoUsers {
		require.Contains(t, f.users.users, username)
		assert.Equal(t, []domain.Role{domain.RoleBasic}, f.users.users[username].Roles)
	}

	require.Len(t, f.incidents.items, len(demoIncidents))
	assert.Equal(t, 1, f.tx.calls)
	assert.Len(t, f.comments.items, 6)

	first := f.incidents.items[0]
	assert.Equal(t, []string{"critical", "production", "server"}, first.Tags)
	assert.Equal(t, f.comments.items[1].CreatedAt, first.UpdatedAt)
	assert.Equal(t, f.incidents.items[4].CreatedAt, f.incidents.items[4].UpdatedAt)
	for i := 1; i < len(f.incidents.items); i++ {
		assert.True(t, f.incidents.items[i].CreatedAt.After(f.incidents.items[i-1].CreatedAt))
	}
	assert.Equal(t, "inc-1", f.comments.items[0].IncidentID)
	assert.True(t, f.comments.items[0].CreatedAt.After(first.CreatedAt))
}

func TestRun_DemoDataSkippedWhenIncidentsExist(t *testing.T) {
	f := newFixture()
	f.incidents.count = 3

	err := f.seeder(Config{DemoData: true, DemoPassword: "demo-pass"}).Run(context.Background())

	require.NoError(t, err)
	assert.Empty(t, f.incidents.items)
	assert.Zero(t, f.tx.calls)
}
