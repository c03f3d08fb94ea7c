// Package messaging is the message router: one durable message per send,
// then an independent delivery attempt per recipient.
package messaging

import (
	"context"
	"errors"
	"fmt"
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
	ErrUnknownSender  = errors.New("unknown or inactive sender")
	ErrNoRecipients   = errors.New("no recipients")
	ErrInvalidPayload = errors.New("invalid message payload")
	ErrNotRecipient   = errors.New("user did not receive this message")
)

const (
	DefaultParallelism = 16
	DefaultListLimit   = 50
	MaxListLimit       = 200
	MaxContentLength   = 64 * 1024
)

// MessageStore persists messages. A message is written once and never
// updated.
type MessageStore interface {
	Insert(ctx context.Context, m models.Message) error
	GetByIDs(ctx context.Context, ids []string) ([]models.Message, error)
}

// LinkStore persists the per-recipient delivery and read state.
type LinkStore interface {
	Create(ctx context.Context, l models.UserMessage) error
	ListByUser(ctx context.Context, userID string, limit int) ([]models.UserMessage, error)
	MarkRead(ctx context.Context, userID, messageID string, at time.Time) (bool, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
}

// Users reports whether a user is known and active.
type Users interface {
	UserExists(ctx context.Context, userID string) (bool, error)
}

// Groups resolves symbolic recipients. *groups.Manager satisfies it.
type Groups interface {
	Members(ctx context.Context, groupID string) ([]string, error)
	ActiveCollaboration(ctx context.Context, taskID string) (models.Collaboration, error)
	AppendMessage(ctx context.Context, taskID, messageID string) error
}

// Config bounds the fan-out. Zero values take the defaults.
type Config struct {
	FanOutTimeout time.Duration
	Parallelism   int
}

// Router delivers messages.
type Router struct {
	messages MessageStore
	links    LinkStore
	users    Users
	groups   Groups
	pusher   *livepush.Pusher
	cfg      Config
	log      *zap.Logger
}

func New(messages MessageStore, links LinkStore, users Users, groups Groups, pusher *livepush.Pusher, cfg Config, logger *zap.Logger) *Router {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = DefaultParallelism
	}
	return &Router{
		messages: messages,
		links:    links,
		users:    users,
		groups:   groups,
		pusher:   pusher,
		cfg:      cfg,
		log:      logger,
	}
}

// SendRequest is one send call.
type SendRequest struct {
	From    string
	To      []string
	Payload models.MessagePayload
}

// envelope carries the fields stamped onto the message by group and
// collaboration sends.
type envelope struct {
	groupID string
	taskID  string
}

// Send persists one message and delivers it to every recipient.
//
// Validation failures return a sentinel error and write nothing. Every other
// failure is reported through the result: if the message cannot be stored,
// every recipient is in FailedTo; otherwise each recipient lands in
// DeliveredTo or FailedTo independently. Recipients still pending when the
// fan-out deadline passes count as failed. Send never retries.
func (r *Router) Send(ctx context.Context, req SendRequest) (models.MessageDeliveryResult, error) {
	res, _, err := r.send(ctx, req, envelope{})
	return res, err
}

// SendToGroup sends to the group's members as of this call, excluding the
// sender.
func (r *Router) SendToGroup(ctx context.Context, from, groupID string, payload models.MessagePayload) (models.MessageDeliveryResult, error) {
	members, err := r.groups.Members(ctx, groupID)
	if err != nil {
		return models.MessageDeliveryResult{}, err
	}
	req := SendRequest{From: from, To: normalize.Without(members, strings.TrimSpace(from)), Payload: payload}
	res, _, err := r.send(ctx, req, envelope{groupID: groupID})
	return res, err
}

// SendToCollaboration sends to the collaboration's participants, excluding
// the sender, and records the message on the collaboration.
func (r *Router) SendToCollaboration(ctx context.Context, from, taskID string, payload models.MessagePayload) (models.MessageDeliveryResult, error) {
	c, err := r.groups.ActiveCollaboration(ctx, taskID)
	if err != nil {
		return models.MessageDeliveryResult{}, err
	}
	req := SendRequest{From: from, To: normalize.Without(c.Participants, strings.TrimSpace(from)), Payload: payload}
	res, stored, err := r.send(ctx, req, envelope{taskID: taskID})
	if err != nil || !stored {
		return res, err
	}
	if err := r.groups.AppendMessage(context.WithoutCancel(ctx), taskID, res.MessageID); err != nil {
		r.log.Error("record collaboration message",
			zap.String("task_id", taskID),
			zap.String("message_id", res.MessageID),
			zap.Error(err))
	}
	return res, nil
}

func validatePayload(p models.MessagePayload) (models.MessagePayload, error) {
	p.Type = strings.ToLower(strings.TrimSpace(p.Type))
	p.FileURL = strings.TrimSpace(p.FileURL)
	if p.Type == "" {
		p.Type = models.MessageTypeText
	}
	switch {
	case !models.IsValidMessageType(p.Type):
		return p, fmt.Errorf("%w: unknown type %q", ErrInvalidPayload, p.Type)
	case len(p.Content) > MaxContentLength:
		return p, fmt.Errorf("%w: content exceeds %d bytes", ErrInvalidPayload, MaxContentLength)
	case (p.Type == models.MessageTypeFile || p.Type == models.MessageTypeImage) && p.FileURL == "":
		return p, fmt.Errorf("%w: %s messages need a file url", ErrInvalidPayload, p.Type)
	case strings.TrimSpace(p.Content) == "" && p.FileURL == "":
		return p, fmt.Errorf("%w: content or file url is required", ErrInvalidPayload)
	case p.FileURL != "" && !inputval.IsValidHTTPURL(p.FileURL):
		return p, fmt.Errorf("%w: file url must be http or https", ErrInvalidPayload)
	}
	return p, nil
}

func totalFailure(id string, to []string) models.MessageDeliveryResult {
	return models.MessageDeliveryResult{
		MessageID:   id,
		Success:     false,
		DeliveredTo: []string{},
		FailedTo:    append([]string{}, to...),
	}
}

// send reports stored=true once the message has been written.
func (r *Router) send(ctx context.Context, req SendRequest, env envelope) (models.MessageDeliveryResult, bool, error) {
	from := strings.TrimSpace(req.From)
	payload, err := validatePayload(req.Payload)
	if err != nil {
		return models.MessageDeliveryResult{}, false, err
	}
	to := normalize.IDs(req.To)
	if len(to) == 0 {
		return models.MessageDeliveryResult{}, false, ErrNoRecipients
	}
	if from == "" {
		return models.MessageDeliveryResult{}, false, ErrUnknownSender
	}

	known, err := r.users.UserExists(ctx, from)
	if err != nil {
		r.log.Error("sender lookup failed",
			zap.String("from", from),
			zap.Error(err))
		metrics.MessagesSent.WithLabelValues("failed").Inc()
		return totalFailure("", to), false, nil
	}
	if !known {
		return models.MessageDeliveryResult{}, false, ErrUnknownSender
	}

	msg := models.Message{
		ID:        uuid.NewString(),
		From:      from,
		To:        to,
		Content:   payload.Content,
		Type:      payload.Type,
		GroupID:   env.groupID,
		TaskID:    env.taskID,
		FileURL:   payload.FileURL,
		Timestamp: time.Now().UTC(),
	}

	wctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), r.log, "message insert")
	err = r.messages.Insert(wctx, msg)
	cancel()
	if err != nil {
		r.log.Error("message write failed",
			zap.String("message_id", msg.ID),
			zap.String("from", from),
			zap.Int("recipients", len(to)),
			zap.Error(err))
		metrics.MessagesSent.WithLabelValues("failed").Inc()
		return totalFailure("", to), false, nil
	}

	res := r.fanOut(ctx, msg)
	switch {
	case res.Success:
		metrics.MessagesSent.WithLabelValues("delivered").Inc()
	case len(res.DeliveredTo) > 0:
		metrics.MessagesSent.WithLabelValues("partial").Inc()
	default:
		metrics.MessagesSent.WithLabelValues("failed").Inc()
	}
	return res, true, nil
}

type outcome struct {
	idx int
	err error
}

var errFanOutDeadline = errors.New("fan-out deadline passed before delivery")

// fanOut links each recipient in parallel and classifies the outcome. The
// result preserves the order of msg.To.
func (r *Router) fanOut(ctx context.Context, msg models.Message) models.MessageDeliveryResult {
	start := time.Now()
	defer func() { metrics.FanOutDuration.Observe(time.Since(start).Seconds()) }()

	deadline := r.cfg.FanOutTimeout
	if deadline <= 0 {
		deadline = timeouts.FanOut()
	}
	fctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	// Buffered so late finishers never block after the collector has left.
	outcomes := make(chan outcome, len(msg.To))
	ev := livepush.MessageEvent(msg)

	go func() {
		var g errgroup.Group
		g.SetLimit(r.cfg.Parallelism)
		for i, userID := range msg.To {
			g.Go(func() error {
				if err := fctx.Err(); err != nil {
					outcomes <- outcome{i, err}
					return nil
				}
				err := r.links.Create(fctx, models.UserMessage{
					UserID:    userID,
					MessageID: msg.ID,
					CreatedAt: msg.Timestamp,
				})
				outcomes <- outcome{i, err}
				if err == nil && fctx.Err() == nil {
					r.pusher.Go(ctx, userID, ev, nil)
				}
				return nil
			})
		}
		_ = g.Wait()
	}()

	errs, done := collectOutcomes(fctx, outcomes, len(msg.To))

	res := models.MessageDeliveryResult{
		MessageID:   msg.ID,
		DeliveredTo: []string{},
		FailedTo:    []string{},
	}
	for i, userID := range msg.To {
		err := errs[i]
		if !done[i] {
			err = errFanOutDeadline
		}
		if err == nil {
			metrics.RecipientDeliveries.WithLabelValues("ok").Inc()
			res.DeliveredTo = append(res.DeliveredTo, userID)
			continue
		}
		label := "error"
		if !done[i] || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			label = "timeout"
		}
		metrics.RecipientDeliveries.WithLabelValues(label).Inc()
		r.log.Warn("recipient delivery failed",
			zap.String("message_id", msg.ID),
			zap.String("user_id", userID),
			zap.Error(err))
		res.FailedTo = append(res.FailedTo, userID)
	}
	res.Success = len(res.FailedTo) == 0
	return res
}

// collectOutcomes gathers up to n outcomes until ctx ends. Outcomes already
// buffered when ctx ends are still taken, since select picks at random
// between ready cases.
func collectOutcomes(ctx context.Context, outcomes <-chan outcome, n int) ([]error, []bool) {
	errs := make([]error, n)
	done := make([]bool, n)
	pending := n
	take := func(o outcome) {
		if !done[o.idx] {
			done[o.idx] = true
			errs[o.idx] = o.err
			pending--
		}
	}
collect:
	for pending > 0 {
		select {
		case o := <-outcomes:
			take(o)
		case <-ctx.Done():
			break collect
		}
	}
	for pending > 0 {
		select {
		case o := <-outcomes:
			take(o)
		default:
			return errs, done
		}
	}
	return errs, done
}

// UserMessages returns the user's messages newest first with the user's own
// read state. limit is clamped to [1, MaxListLimit]; 0 means the default.
func (r *Router) UserMessages(ctx context.Context, userID string, limit int) ([]models.Message, error) {
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	links, err := r.links.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list message links: %w", err)
	}
	if len(links) == 0 {
		return []models.Message{}, nil
	}

	ids := make([]string, len(links))
	for i, l := range links {
		ids[i] = l.MessageID
	}
	msgs, err := r.messages.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	byID := make(map[string]models.Message, len(msgs))
	for _, m := range msgs {
		byID[m.ID] = m
	}

	out := make([]models.Message, 0, len(links))
	for _, l := range links {
		m, ok := byID[l.MessageID]
		if !ok {
			continue
		}
		m.Read = l.Read
		m.ReadAt = l.ReadAt
		out = append(out, m)
	}
	return out, nil
}

// MarkAsRead marks messageID read for userID only. Marking twice keeps the
// first read time.
func (r *Router) MarkAsRead(ctx context.Context, userID, messageID string) error {
	found, err := r.links.MarkRead(ctx, userID, messageID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark message read: %w", err)
	}
	if !found {
		return ErrNotRecipient
	}
	return nil
}

// UnreadCount returns how many of the user's messages are unread.
func (r *Router) UnreadCount(ctx context.Context, userID string) (int64, error) {
	return r.links.CountUnread(ctx, userID)
}
