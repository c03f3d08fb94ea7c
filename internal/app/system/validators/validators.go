// internal/app/system/validators/validators.go
package validators

import (
	"context"
	"errors"
	"strings"

	"github.com/dalemusser/stratacomm/internal/domain/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// EnsureAll creates collections (if missing) and tries to attach JSON-Schema
// validators. On servers that don't support collMod/validators (e.g. some
// DocumentDB versions), we log and skip gracefully.
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	var problems []string

	ensure := func(coll string, schema bson.M) {
		if _, err := ensureCollection(ctx, db, coll); err != nil {
			problems = append(problems, coll+": "+err.Error())
			return
		}
		if schema == nil {
			return
		}
		if err := setValidator(ctx, db, coll, schema); err != nil {
			if isNoSuchCommand(err) || isNotImplemented(err) {
				zap.L().Info("validator skipped (unsupported)", zap.String("collection", coll))
				return
			}
			problems = append(problems, coll+": "+err.Error())
		}
	}

	// Identity and authorization
	ensure("users", usersSchema())
	ensure("roles", rolesSchema())
	ensure("role_assignments", roleAssignmentsSchema())
	ensure("departments", departmentsSchema())
	ensure("teams", teamsSchema())

	// Messaging
	ensure("messages", messagesSchema())
	ensure("user_messages", userMessagesSchema())
	ensure("groups", groupsSchema())
	ensure("collaborations", collaborationsSchema())
	ensure("notifications", notificationsSchema())

	// Append-only log; no validator.
	ensure("audit_events", nil)

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

/* ---------------------- collection helpers & logging ---------------------- */

// collectionExists returns true when <name> already exists.
// Uses ListCollectionNames to avoid "created collection" log when it didn't.
func collectionExists(ctx context.Context, db *mongo.Database, name string) (bool, error) {
	names, err := db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

// ensureCollection idempotently makes sure <name> exists.
// Returns created==true only if we actually created it.
func ensureCollection(ctx context.Context, db *mongo.Database, name string) (created bool, err error) {
	exists, listErr := collectionExists(ctx, db, name)
	if listErr == nil && exists {
		zap.L().Info("collection exists", zap.String("collection", name))
		return false, nil
	}
	// If listing failed, fall back to create-and-handle-race.
	if err := db.CreateCollection(ctx, name); err != nil {
		// NamespaceExists / already exists is fine (race or prior run).
		if isNamespaceExistsErr(err) {
			zap.L().Info("collection exists", zap.String("collection", name))
			return false, nil
		}
		zap.L().Warn("createCollection failed", zap.String("collection", name), zap.Error(err))
		return false, err
	}
	zap.L().Info("created collection", zap.String("collection", name))
	return true, nil
}

/* ------------------------------ validators ------------------------------- */

func setValidator(ctx context.Context, db *mongo.Database, name string, validator bson.M) error {
	cmd := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
		{Key: "validationLevel", Value: "moderate"},
		{Key: "validationAction", Value: "error"},
	}
	var out bson.M
	if err := db.RunCommand(ctx, cmd).Decode(&out); err != nil {
		return err
	}
	zap.L().Info("validator ensured", zap.String("collection", name))
	return nil
}

/* ------------------------- error helpers ------------------------- */

func isNamespaceExistsErr(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 48 || strings.Contains(strings.ToLower(ce.Message), "already exists")) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "already exists") || strings.Contains(s, "namespace exists")
}

func isNoSuchCommand(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 59 || strings.Contains(strings.ToLower(ce.Message), "no such command")) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "no such command")
}

func isNotImplemented(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 115 ||
		strings.Contains(strings.ToLower(ce.Message), "not implemented") ||
		strings.Contains(strings.ToLower(ce.Message), "not supported")) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "not implemented") || strings.Contains(s, "not supported")
}

/* ------------------------- JSON-Schema docs ---------------------- */

var nonBlank = bson.M{"bsonType": "string", "minLength": 1, "pattern": ".*\\S.*"}

var stringArray = bson.M{"bsonType": "array", "items": bson.M{"bsonType": "string"}}

func enumOf(values []string) bson.M {
	a := make(bson.A, 0, len(values))
	for _, v := range values {
		a = append(a, v)
	}
	return bson.M{"enum": a}
}

func usersSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"full_name", "status"},
			"properties": bson.M{
				"full_name":    nonBlank,
				"full_name_ci": bson.M{"bsonType": "string"},
				"email":        bson.M{"bsonType": bson.A{"string", "null"}},
				"status":       enumOf([]string{models.UserStatusActive, models.UserStatusDisabled}),
			},
		},
	}
}

// rolesSchema pins the action vocabulary so a role written by any client can
// be evaluated without parsing.
func rolesSchema() bson.M {
	actions := make([]string, 0, len(models.Actions))
	for _, a := range models.Actions {
		actions = append(actions, string(a))
	}
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"name", "name_ci", "permissions"},
			"properties": bson.M{
				"name":    nonBlank,
				"name_ci": nonBlank,
				"permissions": bson.M{
					"bsonType": "array",
					"minItems": 1,
					"items": bson.M{
						"bsonType": "object",
						"required": bson.A{"resource", "actions"},
						"properties": bson.M{
							"resource": nonBlank,
							"actions": bson.M{
								"bsonType": "array",
								"minItems": 1,
								"items":    enumOf(actions),
							},
						},
					},
				},
			},
		},
	}
}

func roleAssignmentsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"user_id", "role_id"},
			"properties": bson.M{
				"user_id": nonBlank,
				"role_id": nonBlank,
			},
		},
	}
}

func departmentsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"name", "name_ci", "manager_id", "members"},
			"properties": bson.M{
				"name":       nonBlank,
				"name_ci":    nonBlank,
				"manager_id": nonBlank,
				"members":    stringArray,
			},
		},
	}
}

func teamsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"name", "name_ci", "department_id", "leader_id", "members"},
			"properties": bson.M{
				"name":          nonBlank,
				"name_ci":       nonBlank,
				"department_id": nonBlank,
				"leader_id":     nonBlank,
				"members":       stringArray,
			},
		},
	}
}

func messagesSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"from", "to", "type", "timestamp"},
			"properties": bson.M{
				"from":      nonBlank,
				"to":        bson.M{"bsonType": "array", "minItems": 1, "items": bson.M{"bsonType": "string"}},
				"content":   bson.M{"bsonType": "string"},
				"type":      enumOf(models.MessageTypes),
				"timestamp": bson.M{"bsonType": "date"},
			},
		},
	}
}

func userMessagesSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"user_id", "message_id", "read"},
			"properties": bson.M{
				"user_id":    nonBlank,
				"message_id": nonBlank,
				"read":       bson.M{"bsonType": "bool"},
			},
		},
	}
}

func groupsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"name", "name_ci", "type", "members", "admins", "created_by"},
			"properties": bson.M{
				"name":       nonBlank,
				"name_ci":    nonBlank,
				"type":       enumOf(models.GroupTypes),
				"members":    stringArray,
				"admins":     bson.M{"bsonType": "array", "minItems": 1, "items": bson.M{"bsonType": "string"}},
				"created_by": nonBlank,
			},
		},
	}
}

func collaborationsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"participants", "status"},
			"properties": bson.M{
				"participants": stringArray,
				"messages":     stringArray,
				"status":       enumOf([]string{models.CollaborationActive, models.CollaborationClosed}),
			},
		},
	}
}

func notificationsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"type", "title", "user_id", "read"},
			"properties": bson.M{
				"type":    enumOf(models.NotificationTypes),
				"title":   nonBlank,
				"user_id": nonBlank,
				"read":    bson.M{"bsonType": "bool"},
				"pushed":  bson.M{"bsonType": "bool"},

				"push_attempt_at": bson.M{"bsonType": "date"},
			},
		},
	}
}
