// Package notify creates user notifications and pushes them live.
//
// A notification is always written before any push is attempted; the push
// is best effort and never changes the outcome of the call.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dalemusser/stratacomm/internal/app/system/inputval"
	"github.com/dalemusser/stratacomm/internal/app/system/livepush"
	"github.com/dalemusser/stratacomm/internal/app/system/metrics"
	"github.com/dalemusser/stratacomm/internal/app/system/normalize"
	"github.com/dalemusser/stratacomm/internal/app/system/timeouts"
	"github.com/dalemusser/stratacomm/internal/domain/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrUnknownRecipient    = errors.New("unknown or inactive recipient")
	ErrInvalidNotification = errors.New("invalid notification")
	ErrNotFound            = errors.New("notification not found")
)

const (
	DefaultParallelism = 16
	DefaultListLimit   = 50
	MaxListLimit       = 200

	// retryMinAge keeps the retry loop away from notifications whose first
	// push may still be in flight.
	retryMinAge = 2 * time.Second
)

// Store persists notifications.
type Store interface {
	Insert(ctx context.Context, n models.Notification) error
	ListByUser(ctx context.Context, userID string, limit int, unreadOnly bool) ([]models.Notification, error)
	MarkRead(ctx context.Context, userID, id string, at time.Time) (bool, error)
	MarkAllRead(ctx context.Context, userID string, at time.Time) (int64, error)
	SetPushed(ctx context.Context, id string) error
	SetPushAttempt(ctx context.Context, id string, at time.Time) error
	ListUnpushed(ctx context.Context, from, to time.Time, limit int) ([]models.Notification, error)
}

type Users interface {
	UserExists(ctx context.Context, userID string) (bool, error)
}

// Collaborations opens task collaborations. *groups.Manager satisfies it.
type Collaborations interface {
	OpenCollaboration(ctx context.Context, taskID string, participants []string) (models.Collaboration, []string, error)
}

type Config struct {
	// TaskLinkBase prefixes task deep links: <TaskLinkBase>/<taskID>.
	TaskLinkBase string
	Parallelism  int
}

// Dispatcher creates and delivers notifications.
type Dispatcher struct {
	store  Store
	users  Users
	collab Collaborations
	pusher *livepush.Pusher
	cfg    Config
	log    *zap.Logger
}

func New(store Store, users Users, collab Collaborations, pusher *livepush.Pusher, cfg Config, logger *zap.Logger) *Dispatcher {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = DefaultParallelism
	}
	cfg.TaskLinkBase = strings.TrimRight(strings.TrimSpace(cfg.TaskLinkBase), "/")
	return &Dispatcher{store: store, users: users, collab: collab, pusher: pusher, cfg: cfg, log: logger}
}

// CollaborationResult reports a CollaborateOnTask call.
type CollaborationResult struct {
	Collaboration models.Collaboration `json:"collaboration"`
	NotifiedTo    []string             `json:"notified_to"`
	FailedTo      []string             `json:"failed_to"`
}

// BroadcastResult reports which recipients got a durable notification.
type BroadcastResult struct {
	NotifiedTo []string `json:"notified_to"`
	FailedTo   []string `json:"failed_to"`
}

func validate(p models.NotificationPayload) (models.NotificationPayload, error) {
	p.Type = strings.ToLower(strings.TrimSpace(p.Type))
	p.Title = strings.TrimSpace(p.Title)
	p.Link = strings.TrimSpace(p.Link)
	switch {
	case !models.IsValidNotificationType(p.Type):
		return p, fmt.Errorf("%w: unknown type %q", ErrInvalidNotification, p.Type)
	case p.Title == "":
		return p, fmt.Errorf("%w: title is required", ErrInvalidNotification)
	case p.Link != "" && !strings.HasPrefix(p.Link, "/") && !inputval.IsValidHTTPURL(p.Link):
		return p, fmt.Errorf("%w: link must be an absolute path or http(s) url", ErrInvalidNotification)
	}
	return p, nil
}

// Push stores a notification for userID and starts a live push. It returns
// once the notification is durable.
func (d *Dispatcher) Push(ctx context.Context, userID string, payload models.NotificationPayload) (models.Notification, error) {
	payload, err := validate(payload)
	if err != nil {
		return models.Notification{}, err
	}
	return d.push(ctx, strings.TrimSpace(userID), payload)
}

func (d *Dispatcher) push(ctx context.Context, userID string, payload models.NotificationPayload) (models.Notification, error) {
	ok, err := d.users.UserExists(ctx, userID)
	if err != nil {
		return models.Notification{}, fmt.Errorf("look up recipient: %w", err)
	}
	if !ok {
		return models.Notification{}, ErrUnknownRecipient
	}

	n := models.Notification{
		ID:        uuid.NewString(),
		Type:      payload.Type,
		Title:     payload.Title,
		Content:   payload.Content,
		UserID:    userID,
		Link:      payload.Link,
		CreatedAt: time.Now().UTC(),
	}
	wctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), d.log, "notification insert")
	err = d.store.Insert(wctx, n)
	cancel()
	if err != nil {
		return models.Notification{}, fmt.Errorf("store notification: %w", err)
	}
	metrics.NotificationsCreated.WithLabelValues(n.Type).Inc()

	d.pusher.Go(ctx, userID, livepush.NotificationEvent(n), func(err error) {
		if err == nil {
			d.markPushed(context.WithoutCancel(ctx), n.ID)
		}
	})
	return n, nil
}

func (d *Dispatcher) markPushed(ctx context.Context, id string) {
	ctx, cancel := context.WithTimeout(ctx, timeouts.Short())
	defer cancel()
	if err := d.store.SetPushed(ctx, id); err != nil {
		d.log.Warn("mark notification pushed",
			zap.String("notification_id", id),
			zap.Error(err))
	}
}

// pushAll pushes payload to each user independently, in parallel. Results
// keep the order of userIDs.
func (d *Dispatcher) pushAll(ctx context.Context, userIDs []string, payload models.NotificationPayload) (notified, failed []string) {
	errs := make([]error, len(userIDs))
	var g errgroup.Group
	g.SetLimit(d.cfg.Parallelism)
	for i, userID := range userIDs {
		g.Go(func() error {
			_, errs[i] = d.push(ctx, userID, payload)
			return nil
		})
	}
	_ = g.Wait()

	notified, failed = []string{}, []string{}
	for i, userID := range userIDs {
		if errs[i] != nil {
			d.log.Warn("notification failed",
				zap.String("user_id", userID),
				zap.String("type", payload.Type),
				zap.Error(errs[i]))
			failed = append(failed, userID)
			continue
		}
		notified = append(notified, userID)
	}
	return notified, failed
}

// TaskLink returns the deep link for taskID.
func (d *Dispatcher) TaskLink(taskID string) string {
	return d.cfg.TaskLinkBase + "/" + url.PathEscape(taskID)
}

// CollaborateOnTask opens the collaboration for taskID and sends a task
// notification to every participant this call added. On creation that is
// every participant. One participant's failure does not affect the others.
func (d *Dispatcher) CollaborateOnTask(ctx context.Context, taskID string, participants []string) (CollaborationResult, error) {
	c, added, err := d.collab.OpenCollaboration(ctx, taskID, participants)
	if err != nil {
		return CollaborationResult{}, err
	}
	payload := models.NotificationPayload{
		Type:    models.NotificationTypeTask,
		Title:   "Added to task collaboration",
		Content: fmt.Sprintf("You are now collaborating on task %s.", c.TaskID),
		Link:    d.TaskLink(c.TaskID),
	}
	notified, failed := d.pushAll(ctx, added, payload)
	return CollaborationResult{Collaboration: c, NotifiedTo: notified, FailedTo: failed}, nil
}

// Broadcast sends the same notification to many users, each independently.
func (d *Dispatcher) Broadcast(ctx context.Context, userIDs []string, payload models.NotificationPayload) (BroadcastResult, error) {
	payload, err := validate(payload)
	if err != nil {
		return BroadcastResult{}, err
	}
	ids := normalize.IDs(userIDs)
	if len(ids) == 0 {
		return BroadcastResult{}, fmt.Errorf("%w: no recipients", ErrInvalidNotification)
	}
	notified, failed := d.pushAll(ctx, ids, payload)
	return BroadcastResult{NotifiedTo: notified, FailedTo: failed}, nil
}

// Notifications lists the user's notifications newest first.
func (d *Dispatcher) Notifications(ctx context.Context, userID string, limit int, unreadOnly bool) ([]models.Notification, error) {
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	out, err := d.store.ListByUser(ctx, userID, limit, unreadOnly)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.Notification{}
	}
	return out, nil
}

// MarkAsRead marks one of the user's notifications read.
func (d *Dispatcher) MarkAsRead(ctx context.Context, userID, id string) error {
	found, err := d.store.MarkRead(ctx, userID, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if !found {
		return ErrNotFound
	}
	return nil
}

// MarkAllAsRead marks every unread notification of the user read and
// returns how many changed.
func (d *Dispatcher) MarkAllAsRead(ctx context.Context, userID string) (int64, error) {
	return d.store.MarkAllRead(ctx, userID, time.Now().UTC())
}

// RetryUnpushed re-pushes notifications created within window whose live
// push never succeeded. Failed retries are stamped so the next batch starts
// with notifications not yet tried. It returns how many were pushed this
// time.
func (d *Dispatcher) RetryUnpushed(ctx context.Context, window time.Duration, limit int) (int, error) {
	now := time.Now().UTC()
	pending, err := d.store.ListUnpushed(ctx, now.Add(-window), now.Add(-retryMinAge), limit)
	if err != nil {
		return 0, fmt.Errorf("list unpushed notifications: %w", err)
	}
	pushed := 0
	for _, n := range pending {
		if ctx.Err() != nil {
			break
		}
		if err := d.pusher.Push(ctx, n.UserID, livepush.NotificationEvent(n)); err != nil {
			if serr := d.store.SetPushAttempt(ctx, n.ID, time.Now().UTC()); serr != nil {
				d.log.Warn("record push attempt failed", zap.String("notification_id", n.ID), zap.Error(serr))
			}
			continue
		}
		d.markPushed(ctx, n.ID)
		pushed++
	}
	return pushed, nil
}
