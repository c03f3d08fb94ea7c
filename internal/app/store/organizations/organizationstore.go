// internal/app/store/organizations/organizationstore.go
package organizationstore

import (
	"context"

	departmentstore "github.com/dalemusser/stratacomm/internal/app/store/departments"
	rolestore "github.com/dalemusser/stratacomm/internal/app/store/roles"
	teamstore "github.com/dalemusser/stratacomm/internal/app/store/teams"
	"github.com/dalemusser/stratacomm/internal/app/system/txn"
	"github.com/dalemusser/stratacomm/internal/domain/models"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Store reads the whole organization directory (departments, teams and
// roles) as one consistent view.
type Store struct {
	db    *mongo.Database
	log   *zap.Logger
	depts *departmentstore.Store
	teams *teamstore.Store
	roles *rolestore.Store
}

func New(db *mongo.Database, logger *zap.Logger) *Store {
	return &Store{
		db:    db,
		log:   logger,
		depts: departmentstore.New(db),
		teams: teamstore.New(db),
		roles: rolestore.New(db),
	}
}

// Snapshot reads departments, teams and roles inside a snapshot transaction.
// Deployments without transactions fall back to three sequential reads.
func (s *Store) Snapshot(ctx context.Context) (models.Organization, error) {
	var org models.Organization
	err := txn.ReadSnapshot(ctx, s.db, s.log, func(ctx context.Context) error {
		var err error
		if org.Departments, err = s.depts.List(ctx); err != nil {
			return err
		}
		if org.Teams, err = s.teams.List(ctx); err != nil {
			return err
		}
		org.Roles, err = s.roles.List(ctx)
		return err
	})
	if err != nil {
		return models.Organization{}, err
	}
	return org, nil
}
