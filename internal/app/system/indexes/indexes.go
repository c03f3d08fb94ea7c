// internal/app/system/indexes/indexes.go
package indexes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

/*
EnsureAll is called from EnsureSchema at startup. Each ensure* function is
idempotent. Errors are aggregated so every problem is visible and startup can
fail fast.
*/
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	sets := []struct {
		name string
		fn   func(context.Context, *mongo.Database) error
	}{
		{"users", ensureUsers},
		{"messages", ensureMessages},
		{"user_messages", ensureUserMessages},
		{"groups", ensureGroups},
		{"collaborations", ensureCollaborations},
		{"notifications", ensureNotifications},
		{"departments", ensureDepartments},
		{"teams", ensureTeams},
		{"roles", ensureRoles},
		{"role_assignments", ensureRoleAssignments},
		{"audit_events", ensureAuditEvents},
	}

	var problems []string
	for _, s := range sets {
		if err := s.fn(ctx, db); err != nil {
			problems = append(problems, s.name+": "+err.Error())
		}
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// existingIndex is the subset of listIndexes output used for matching.
type existingIndex struct {
	Name   string `bson:"name"`
	Key    bson.D `bson:"key"`
	Unique *bool  `bson:"unique,omitempty"`
}

func keySig(keys bson.D) string {
	parts := make([]string, 0, len(keys))
	for _, kv := range keys {
		parts = append(parts, fmt.Sprintf("%s:%v", kv.Key, kv.Value))
	}
	return strings.Join(parts, ", ")
}

func isTrue(b *bool) bool { return b != nil && *b }

func isDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if mongo.IsDuplicateKeyError(err) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "duplicate key")
}

// Some servers report IndexOptionsConflict when the same keys exist under
// another name or with other options.
func isOptionsConflictErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "IndexOptionsConflict")
}

// createFailure describes a failed CreateOne. Unique indexes blocked by
// existing duplicates get a finder query for the operator.
func createFailure(coll, name string, unique *bool, err error) string {
	if isTrue(unique) && isDuplicateKeyErr(err) {
		return fmt.Sprintf("%s(%s): cannot create unique index (duplicates present); %s",
			coll, name, duplicateFinder(coll))
	}
	return fmt.Sprintf("%s(%s): %v", coll, name, err)
}

func duplicateFinder(coll string) string {
	switch coll {
	case "user_messages":
		return `db.user_messages.aggregate([{ $group: { _id: { m: "$message_id", u: "$user_id" }, n: { $sum: 1 } } }, { $match: { n: { $gt: 1 } } }])`
	case "role_assignments":
		return `db.role_assignments.aggregate([{ $group: { _id: { u: "$user_id", r: "$role_id" }, n: { $sum: 1 } } }, { $match: { n: { $gt: 1 } } }])`
	default:
		return "de-duplicate the indexed fields of " + coll + " and restart"
	}
}

// listBySig returns the collection's indexes keyed by key signature.
func listBySig(ctx context.Context, coll *mongo.Collection) (map[string]existingIndex, error) {
	cur, err := coll.Indexes().List(ctx)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := map[string]existingIndex{}
	for cur.Next(ctx) {
		var idx existingIndex
		if err := cur.Decode(&idx); err != nil {
			zap.L().Warn("failed to decode existing index",
				zap.String("collection", coll.Name()), zap.Error(err))
			continue
		}
		out[keySig(idx.Key)] = idx
	}
	return out, cur.Err()
}

// replace drops an index and creates m in its place.
func replace(ctx context.Context, coll *mongo.Collection, old string, m mongo.IndexModel) error {
	if _, err := coll.Indexes().DropOne(ctx, old); err != nil {
		return fmt.Errorf("drop %s: %w", old, err)
	}
	_, err := coll.Indexes().CreateOne(ctx, m)
	return err
}

// ensureIndexSet reconciles coll with models. An index with the same keys
// and uniqueness is reused, renamed if its name differs; one with the same
// keys but different uniqueness is dropped and rebuilt.
func ensureIndexSet(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel) error {
	existing, err := listBySig(ctx, coll)
	if err != nil {
		// CreateOne below surfaces anything real.
		existing = map[string]existingIndex{}
	}

	var errs []string
	for _, m := range models {
		var name string
		var unique *bool
		if m.Options != nil {
			if m.Options.Name != nil {
				name = *m.Options.Name
			}
			unique = m.Options.Unique
		}
		sig := keySig(m.Keys.(bson.D))
		start := time.Now()
		fields := []zap.Field{
			zap.String("collection", coll.Name()),
			zap.String("name", name),
			zap.String("keys", sig),
			zap.Bool("unique", isTrue(unique)),
		}

		ex, found := existing[sig]
		if !found {
			_, err := coll.Indexes().CreateOne(ctx, m)
			if err == nil {
				zap.L().Info("index ensured", append(fields, zap.Duration("took", time.Since(start)))...)
				continue
			}
			if !isOptionsConflictErr(err) {
				zap.L().Warn("index ensure failed", append(fields, zap.Error(err))...)
				errs = append(errs, createFailure(coll.Name(), name, unique, err))
				continue
			}
			// Conflict: the keys exist after all. Re-list and reconcile.
			if fresh, lerr := listBySig(ctx, coll); lerr == nil {
				ex, found = fresh[sig]
			}
			if !found {
				zap.L().Warn("index ensure failed", append(fields, zap.Error(err))...)
				errs = append(errs, fmt.Sprintf("%s(%s): %v", coll.Name(), name, err))
				continue
			}
		}

		switch {
		case isTrue(unique) == isTrue(ex.Unique) && (name == "" || ex.Name == name):
			zap.L().Debug("reusing existing index", fields...)
		case isTrue(unique) == isTrue(ex.Unique):
			if err := replace(ctx, coll, ex.Name, m); err != nil {
				zap.L().Warn("index rename failed", append(fields, zap.String("from", ex.Name), zap.Error(err))...)
				errs = append(errs, fmt.Sprintf("%s(%s): rename failed: %v", coll.Name(), name, err))
				continue
			}
			zap.L().Info("index renamed", append(fields, zap.String("from", ex.Name), zap.Duration("took", time.Since(start)))...)
		default:
			if err := replace(ctx, coll, ex.Name, m); err != nil {
				zap.L().Warn("index rebuild failed", append(fields, zap.Error(err))...)
				errs = append(errs, createFailure(coll.Name(), name, unique, err))
				continue
			}
			zap.L().Info("index dropped and recreated", append(fields, zap.Duration("took", time.Since(start)))...)
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

/* -------------------------------------------------------------------------- */
/* Collection-specific index sets                                              */
/* -------------------------------------------------------------------------- */

func ensureUsers(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("users")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		// Email is optional, so uniqueness only applies where it is set.
		{
			Keys: bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_users_email").
				SetPartialFilterExpression(bson.M{"email": bson.M{"$exists": true}}),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "full_name_ci", Value: 1}, {Key: "_id", Value: 1}},
			Options: options.Index().SetName("idx_users_status_fullnameci__id"),
		},
	})
}

func ensureMessages(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("messages")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "from", Value: 1}, {Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("idx_messages_from_ts"),
		},
		{
			Keys:    bson.D{{Key: "group_id", Value: 1}, {Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("idx_messages_group_ts").SetSparse(true),
		},
	})
}

// --- user_messages: one link per (message, recipient) ---
func ensureUserMessages(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("user_messages")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "message_id", Value: 1}, {Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_um_message_user"),
		},
		// Inbox listing: newest first with a stable tiebreak.
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "created_at", Value: -1},
				{Key: "message_id", Value: -1},
			},
			Options: options.Index().SetName("idx_um_user_created_message"),
		},
		// Unread counts.
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "read", Value: 1}},
			Options: options.Index().SetName("idx_um_user_read"),
		},
	})
}

func ensureGroups(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("groups")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		// "My groups" lists: multikey on members, sorted by folded name.
		{
			Keys:    bson.D{{Key: "members", Value: 1}, {Key: "name_ci", Value: 1}, {Key: "_id", Value: 1}},
			Options: options.Index().SetName("idx_groups_members_nameci__id"),
		},
		{
			Keys:    bson.D{{Key: "type", Value: 1}, {Key: "name_ci", Value: 1}},
			Options: options.Index().SetName("idx_groups_type_nameci"),
		},
	})
}

func ensureCollaborations(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("collaborations")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "participants", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index().SetName("idx_collab_participants_status"),
		},
	})
}

func ensureNotifications(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("notifications")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: -1}},
			Options: options.Index().SetName("idx_notif_user_created__id"),
		},
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "read", Value: 1}},
			Options: options.Index().SetName("idx_notif_user_read"),
		},
		// Push-retry scan only ever looks at unpushed rows.
		{
			Keys: bson.D{{Key: "pushed", Value: 1}, {Key: "push_attempt_at", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_notif_unpushed_attempt_created").
				SetPartialFilterExpression(bson.M{"pushed": false}),
		},
	})
}

func ensureDepartments(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("departments")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		// Sibling departments must have distinct names.
		{
			Keys:    bson.D{{Key: "parent_id", Value: 1}, {Key: "name_ci", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_dept_parent_nameci"),
		},
		{
			Keys:    bson.D{{Key: "name_ci", Value: 1}, {Key: "_id", Value: 1}},
			Options: options.Index().SetName("idx_dept_nameci__id"),
		},
	})
}

func ensureTeams(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("teams")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "department_id", Value: 1}, {Key: "name_ci", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_team_dept_nameci"),
		},
		{
			Keys:    bson.D{{Key: "name_ci", Value: 1}, {Key: "_id", Value: 1}},
			Options: options.Index().SetName("idx_team_nameci__id"),
		},
	})
}

func ensureRoles(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("roles")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "name_ci", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_roles_nameci"),
		},
	})
}

func ensureRoleAssignments(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("role_assignments")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "role_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_ra_user_role"),
		},
		{
			Keys:    bson.D{{Key: "role_id", Value: 1}},
			Options: options.Index().SetName("idx_ra_role"),
		},
	})
}

func ensureAuditEvents(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("audit_events")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("idx_audit_ts"),
		},
		{
			Keys:    bson.D{{Key: "actor_id", Value: 1}, {Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("idx_audit_actor_ts"),
		},
		{
			Keys:    bson.D{{Key: "category", Value: 1}, {Key: "event_type", Value: 1}, {Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("idx_audit_category_type_ts"),
		},
	})
}
