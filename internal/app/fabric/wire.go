package fabric

import (
	"github.com/dalemusser/stratacomm/internal/app/fabric/directory"
	"github.com/dalemusser/stratacomm/internal/app/fabric/groups"
	"github.com/dalemusser/stratacomm/internal/app/fabric/messaging"
	"github.com/dalemusser/stratacomm/internal/app/fabric/notify"
	"github.com/dalemusser/stratacomm/internal/app/system/auditlog"
	"github.com/dalemusser/stratacomm/internal/app/system/authz"
	"github.com/dalemusser/stratacomm/internal/app/system/livepush"
	"github.com/dalemusser/stratacomm/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// RoleStore is what both the directory and the evaluator need from roles.
type RoleStore interface {
	directory.RoleStore
	authz.Roles
}

// AssignmentStore is what both the directory and the evaluator need from
// role assignments.
type AssignmentStore interface {
	directory.AssignmentStore
	authz.Assignments
}

// Stores is every record store the fabric uses. Bootstrap fills it from the
// Mongo stores or from memstore.
type Stores struct {
	Users          directory.UserStore
	Departments    directory.DepartmentStore
	Teams          directory.TeamStore
	Roles          RoleStore
	Assignments    AssignmentStore
	Org            directory.Snapshotter
	Groups         groups.GroupStore
	Collaborations groups.CollaborationStore
	Messages       messaging.MessageStore
	Links          messaging.LinkStore
	Notifications  notify.Store
	Audit          auditlog.Recorder
}

// Options tunes the services Build creates. Zero values pick defaults.
type Options struct {
	// AuthzCache caches resolved role sets; nil disables caching.
	AuthzCache authz.Cache
	// Pusher delivers live events; nil pushes nowhere.
	Pusher    *livepush.Pusher
	Messaging messaging.Config
	Notify    notify.Config
	Audit     auditlog.Config
}

// Build wires the directory, evaluator, group manager, router and
// dispatcher over st.
func Build(st Stores, opts Options, logger *zap.Logger) *Fabric {
	pusher := opts.Pusher
	if pusher == nil {
		pusher = livepush.NewPusher(livepush.Nop{}, timeouts.PushBudget(), logger)
	}

	audit := auditlog.New(st.Audit, logger, opts.Audit)
	eval := authz.NewEvaluator(st.Assignments, st.Roles, opts.AuthzCache, logger)
	dir := directory.New(directory.Stores{
		Users:       st.Users,
		Departments: st.Departments,
		Teams:       st.Teams,
		Roles:       st.Roles,
		Assignments: st.Assignments,
		Org:         st.Org,
	}, eval, audit, logger)
	gm := groups.New(st.Groups, st.Collaborations, dir, audit, logger)
	router := messaging.New(st.Messages, st.Links, dir, gm, pusher, opts.Messaging, logger)
	disp := notify.New(st.Notifications, dir, gm, pusher, opts.Notify, logger)

	return New(dir, eval, gm, router, disp, logger)
}
