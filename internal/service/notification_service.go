package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/teachmate-api/internal/dto"
	"github.com/noah-isme/teachmate-api/internal/models"
	"github.com/noah-isme/teachmate-api/internal/observability"
	"github.com/noah-isme/teachmate-api/internal/repository"
)

const notificationStreamBuffer = 16

// NotificationService stores teacher alerts and pushes them to open SSE streams on every replica.
type NotificationService interface {
	Publish(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error)
	List(ctx context.Context, userID uint, unreadOnly bool, limit, offset int) (dto.NotificationPage, error)
	MarkRead(ctx context.Context, id, userID uint) (dto.NotificationResponse, error)
	MarkAllRead(ctx context.Context, userID uint) (int64, error)
	Subscribe(userID uint) (<-chan dto.NotificationResponse, func())
	Start(ctx context.Context)
}

// NotificationFanout selects how notifications reach streams held by other replicas.
// The zero value keeps delivery inside the process.
type NotificationFanout struct {
	Redis   *redis.Client
	NATS    *nats.Conn
	Channel string
}

type notificationService struct {
	repo      repository.NotificationRepository
	relay     *clusterRelay
	streams   *notificationStreams
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

func NewNotificationService(repo repository.NotificationRepository, fanout NotificationFanout, validate *validator.Validate, logger zerolog.Logger) NotificationService {
	logger = logger.With().Str("component", "notification_service").Logger()
	return &notificationService{
		repo:      repo,
		relay:     newClusterRelay(fanout.Channel, "notifications", fanout.Redis, fanout.NATS, logger),
		streams:   &notificationStreams{byUser: make(map[uint]map[chan dto.NotificationResponse]struct{})},
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger,
		tracer:    otel.Tracer("github.com/noah-isme/teachmate-api/internal/service/notification"),
		now:       time.Now,
	}
}

// Start listens for notifications raised on other replicas.
func (s *notificationService) Start(ctx context.Context) {
	s.relay.listen(ctx, func(payload json.RawMessage) {
		var notification dto.NotificationResponse
		if err := json.Unmarshal(payload, &notification); err != nil {
			s.logger.Warn().Err(err).Msg("dropping malformed notification")
			return
		}
		s.streams.deliver(notification)
	})
}

// Publish stores the notification with its title and message stripped of markup, then delivers
// it locally and to the other replicas. Relay failures are logged; the notification is kept.
func (s *notificationService) Publish(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.NotificationResponse{}, err
	}

	ctx, span := s.tracer.Start(ctx, "notifications.publish", trace.WithAttributes(
		attribute.Int64("notification.user_id", int64(payload.UserID)),
		attribute.String("notification.type", payload.Type),
	))
	defer span.End()

	message := s.clean(payload.Message)
	if message == "" {
		return dto.NotificationResponse{}, ErrNotificationEmpty
	}
	notification := models.Notification{
		UserID:  payload.UserID,
		Type:    payload.Type,
		Title:   s.clean(payload.Title),
		Message: message,
		Data:    payload.Data,
	}
	if err := s.repo.Create(ctx, &notification); err != nil {
		span.RecordError(err)
		return dto.NotificationResponse{}, err
	}

	response := dto.NewNotificationResponse(notification)
	s.streams.deliver(response)
	if err := s.relay.publish(ctx, response); err != nil {
		s.logger.Warn().Err(err).Uint("notification_id", response.ID).Msg("notification relay failed")
	}
	observability.NotificationsPublishedTotal().WithLabelValues(response.Type).Inc()

	return response, nil
}

func (s *notificationService) clean(text string) string {
	return strings.TrimSpace(s.sanitizer.Sanitize(text))
}

func (s *notificationService) List(ctx context.Context, userID uint, unreadOnly bool, limit, offset int) (dto.NotificationPage, error) {
	if userID == 0 {
		return dto.NotificationPage{}, errors.New("user id is required")
	}

	filter := repository.NotificationFilter{UserID: userID, UnreadOnly: unreadOnly, Limit: limit, Offset: offset}.Normalize()
	items, err := s.repo.List(ctx, filter)
	if err != nil {
		return dto.NotificationPage{}, err
	}
	unread, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return dto.NotificationPage{}, err
	}

	return dto.NotificationPage{
		Items:  dto.NewNotificationResponseSlice(items),
		Unread: unread,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}

func (s *notificationService) MarkRead(ctx context.Context, id, userID uint) (dto.NotificationResponse, error) {
	ctx, span := s.tracer.Start(ctx, "notifications.mark_read", trace.WithAttributes(
		attribute.Int64("notification.id", int64(id)),
	))
	defer span.End()

	notification, err := s.repo.MarkRead(ctx, id, userID, s.now().UTC())
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.NotificationResponse{}, ErrNotificationNotFound
	}
	if err != nil {
		span.RecordError(err)
		return dto.NotificationResponse{}, err
	}
	return dto.NewNotificationResponse(notification), nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	if userID == 0 {
		return 0, errors.New("user id is required")
	}
	return s.repo.MarkAllRead(ctx, userID, s.now().UTC())
}

// Subscribe opens a stream of the user's new notifications. The returned func closes it.
func (s *notificationService) Subscribe(userID uint) (<-chan dto.NotificationResponse, func()) {
	ch := make(chan dto.NotificationResponse, notificationStreamBuffer)
	s.streams.add(userID, ch)
	observability.SSEClientsActive().Inc()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.streams.remove(userID, ch)
			observability.SSEClientsActive().Dec()
		})
	}
}

// notificationStreams holds the open SSE streams of this replica. A stream that is not
// draining misses notifications rather than blocking the publisher.
type notificationStreams struct {
	mu     sync.RWMutex
	byUser map[uint]map[chan dto.NotificationResponse]struct{}
}

func (n *notificationStreams) add(userID uint, ch chan dto.NotificationResponse) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.byUser[userID] == nil {
		n.byUser[userID] = make(map[chan dto.NotificationResponse]struct{})
	}
	n.byUser[userID][ch] = struct{}{}
}

func (n *notificationStreams) remove(userID uint, ch chan dto.NotificationResponse) {
	n.mu.Lock()
	defer n.mu.Unlock()
	streams, ok := n.byUser[userID]
	if !ok {
		return
	}
	if _, ok := streams[ch]; ok {
		delete(streams, ch)
		close(ch)
	}
	if len(streams) == 0 {
		delete(n.byUser, userID)
	}
}

func (n *notificationStreams) deliver(notification dto.NotificationResponse) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for ch := range n.byUser[notification.UserID] {
		select {
		case ch <- notification:
		default:
		}
	}
}
