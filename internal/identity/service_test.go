package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelink-hms/carelink/internal/shared"
	_ "github.com/carelink-hms/carelink/testing"
)

type mockRepo struct {
	users     map[int64]User
	statusErr error
}

func (m *mockRepo) ListUsers(ctx context.Context) ([]User, error) {
	out := make([]User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	return out, nil
}

func (m *mockRepo) GetUser(ctx context.Context, id int64) (User, error) {
	u, ok := m.users[id]
	if !ok {
		return User{}, shared.ErrNotFound
	}
	return u, nil
}

func (m *mockRepo) UserStatus(ctx context.Context, id int64) (string, error) {
	if m.statusErr != nil {
		return "", m.statusErr
	}
	u, ok := m.users[id]
	if !ok {
		return "", shared.ErrNotFound
	}
	return u.Status, nil
}

func TestIsActiveUser(t *testing.T) {
	repo := &mockRepo{users: map[int64]User{
		1: {ID: 1, Status: StatusActive},
		2: {ID: 2, Status: StatusSuspended},
		3: {ID: 3, Status: StatusInactive},
	}}
	svc := NewService(repo)
	ctx := context.Background()

	ok, err := svc.IsActiveUser(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.IsActiveUser(ctx, 2)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.IsActiveUser(ctx, 3)
	require.NoError(t, err)
	assert.False(t, ok)

	// Unknown accounts degrade to "no access", not an error.
	ok, err = svc.IsActiveUser(ctx, 404)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIsActiveUserPropagatesStoreErrors(t *testing.T) {
	storeErr := errors.New("timeout")
	repo := &mockRepo{statusErr: storeErr}
	svc := NewService(repo)

	_, err := svc.IsActiveUser(context.Background(), 1)
	assert.ErrorIs(t, err, storeErr)
}

func TestGetUser(t *testing.T) {
	repo := &mockRepo{users: map[int64]User{1: {ID: 1, Email: "a@carelink.local", Status: StatusActive}}}
	svc := NewService(repo)

	u, err := svc.GetUser(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "a@carelink.local", u.Email)

	_, err = svc.GetUser(context.Background(), 2)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
