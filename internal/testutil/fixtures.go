package testutil

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/dalemusser/stratacomm/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
)

// WithChiURLParam adds a chi URL parameter to the request context.
// Use this in handler tests that need to access chi.URLParam values.
// Calling it again on the same request adds to the existing route context.
func WithChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx, ok := r.Context().Value(chi.RouteCtxKey).(*chi.Context)
	if !ok || rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// CreateUser inserts an active user with the given full name.
func (f *Fixtures) CreateUser(ctx context.Context, fullName string) models.User {
	f.t.Helper()
	return f.insertUser(ctx, fullName, models.UserStatusActive)
}

// CreateDisabledUser inserts a disabled user.
func (f *Fixtures) CreateDisabledUser(ctx context.Context, fullName string) models.User {
	f.t.Helper()
	return f.insertUser(ctx, fullName, models.UserStatusDisabled)
}

func (f *Fixtures) insertUser(ctx context.Context, fullName, status string) models.User {
	f.t.Helper()

	now := time.Now().UTC()
	user := models.User{
		ID:         uuid.NewString(),
		FullName:   fullName,
		FullNameCI: text.Fold(fullName),
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if _, err := f.db.Collection("users").InsertOne(ctx, user); err != nil {
		f.t.Fatalf("failed to create user: %v", err)
	}
	return user
}

// CreateGroup inserts a group created by creator, who is its first member and
// admin. Extra members are appended after the creator.
func (f *Fixtures) CreateGroup(ctx context.Context, name, creator string, members ...string) models.Group {
	f.t.Helper()

	now := time.Now().UTC()
	group := models.Group{
		ID:        uuid.NewString(),
		Name:      name,
		NameCI:    text.Fold(name),
		Type:      models.GroupTypeProject,
		Members:   append([]string{creator}, members...),
		Admins:    []string{creator},
		CreatedBy: creator,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := f.db.Collection("groups").InsertOne(ctx, group); err != nil {
		f.t.Fatalf("failed to create group: %v", err)
	}
	return group
}

// CreateRole inserts a role granting actions on resource.
func (f *Fixtures) CreateRole(ctx context.Context, name, resource string, actions ...models.Action) models.Role {
	f.t.Helper()

	role := models.Role{
		ID:     uuid.NewString(),
		Name:   name,
		NameCI: text.Fold(name),
		Permissions: []models.Permission{
			{Resource: resource, Actions: actions},
		},
		CreatedAt: time.Now().UTC(),
	}

	if _, err := f.db.Collection("roles").InsertOne(ctx, role); err != nil {
		f.t.Fatalf("failed to create role: %v", err)
	}
	return role
}

// AssignRole links userID to roleID.
func (f *Fixtures) AssignRole(ctx context.Context, userID, roleID string) {
	f.t.Helper()

	a := models.RoleAssignment{UserID: userID, RoleID: roleID, CreatedAt: time.Now().UTC()}
	if _, err := f.db.Collection("role_assignments").InsertOne(ctx, a); err != nil {
		f.t.Fatalf("failed to assign role: %v", err)
	}
}

// CreateNotification inserts an unread, unpushed notification for userID.
func (f *Fixtures) CreateNotification(ctx context.Context, userID, title string, createdAt time.Time) models.Notification {
	f.t.Helper()

	n := models.Notification{
		ID:        uuid.NewString(),
		Type:      models.NotificationTypeSystem,
		Title:     title,
		UserID:    userID,
		CreatedAt: createdAt.UTC(),
	}
	if _, err := f.db.Collection("notifications").InsertOne(ctx, n); err != nil {
		f.t.Fatalf("failed to create notification: %v", err)
	}
	return n
}
