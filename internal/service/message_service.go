package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"storefront/internal/models"
	"storefront/internal/redisclient"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RateLimit bounds contact submissions per client
type RateLimit struct {
	Limit  int
	Window time.Duration
}

// MessageService handles contact messages
type MessageService struct {
	messages       MessageRepository
	redis          *redisclient.Client
	eventPublisher EventPublisher
	limit          RateLimit
	logger         *zap.Logger
}

func NewMessageService(messages MessageRepository, redis *redisclient.Client, eventPublisher EventPublisher, limit RateLimit) *MessageService {
	return &MessageService{
		messages:       messages,
		redis:          redis,
		eventPublisher: eventPublisher,
		limit:          limit,
		logger:         util.GetLogger(),
	}
}

// CreateMessageRequest is a contact form submission
type CreateMessageRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Service string `json:"service"`
	Message string `json:"message"`
}

func (r *CreateMessageRequest) validate() error {
	fields := []struct {
		name  string
		value *string
	}{
		{"name", &r.Name},
		{"email", &r.Email},
		{"phone", &r.Phone},
		{"service", &r.Service},
		{"message", &r.Message},
	}
	for _, f := range fields {
		*f.value = strings.TrimSpace(*f.value)
		if *f.value == "" {
			return models.Validationf("%s is required", f.name)
		}
	}
	return nil
}

// CreateMessage stores a contact form submission from clientKey
func (s *MessageService) CreateMessage(ctx context.Context, clientKey string, req *CreateMessageRequest) (*models.ContactMessage, error) {
	ctx, span := util.StartSpan(ctx, "MessageService.CreateMessage")
	defer span.End()

	if err := s.checkRate(ctx, clientKey); err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	msg := &models.ContactMessage{
		ID:      uuid.New().String(),
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Service: req.Service,
		Message: req.Message,
		Status:  models.MessageStatusPending,
	}
	if err := s.messages.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	util.MessagesReceivedTotal.Inc()
	s.logger.Info("Message received", zap.String("message_id", msg.ID), zap.String("service", msg.Service))

	publish(ctx, s.logger, s.eventPublisher, models.EventTypeMessageCreated, func(ctx context.Context, p EventPublisher) error {
		return p.PublishMessageCreated(ctx, &models.MessageCreatedEvent{
			BaseEvent: newBaseEvent(models.EventTypeMessageCreated),
			MessageID: msg.ID,
			Service:   msg.Service,
		})
	})

	return msg, nil
}

func (s *MessageService) checkRate(ctx context.Context, clientKey string) error {
	if s.redis == nil || s.limit.Limit <= 0 || clientKey == "" {
		return nil
	}

	allowed, err := s.redis.Allow(ctx, "contact:"+clientKey, s.limit.Limit, s.limit.Window)
	if err != nil {
		// the form stays open when Redis is unreachable
		s.logger.Warn("Rate limit check failed", zap.Error(err))
		return nil
	}
	if !allowed {
		util.ContactRateLimitedTotal.Inc()
		return models.ErrRateLimited
	}
	return nil
}

func (s *MessageService) GetMessage(ctx context.Context, id string) (*models.ContactMessage, error) {
	ctx, span := util.StartSpan(ctx, "MessageService.GetMessage")
	defer span.End()

	return s.messages.GetMessage(ctx, id)
}

func (s *MessageService) ListMessages(ctx context.Context) ([]models.ContactMessage, error) {
	ctx, span := util.StartSpan(ctx, "MessageService.ListMessages")
	defer span.End()

	return s.messages.ListMessages(ctx)
}

func (s *MessageService) ListHistory(ctx context.Context) ([]models.ArchivedMessage, error) {
	ctx, span := util.StartSpan(ctx, "MessageService.ListHistory")
	defer span.End()

	return s.messages.ListMessageHistory(ctx)
}

// UpdateStatus moves a message along pending -> read -> replied
func (s *MessageService) UpdateStatus(ctx context.Context, id, status string) (*models.ContactMessage, error) {
	ctx, span := util.StartSpan(ctx, "MessageService.UpdateStatus")
	defer span.End()

	next := models.MessageStatus(status)
	if !next.Valid() {
		return nil, models.Validationf("invalid message status %q", status)
	}

	msg, from, err := s.messages.TransitionMessage(ctx, id, next)
	if err != nil {
		return nil, err
	}
	if from == next {
		return msg, nil
	}

	s.logger.Info("Message status changed",
		zap.String("message_id", id),
		zap.String("from", string(from)),
		zap.String("to", string(next)))

	publish(ctx, s.logger, s.eventPublisher, models.EventTypeMessageStatusChanged, func(ctx context.Context, p EventPublisher) error {
		return p.PublishMessageStatusChanged(ctx, &models.MessageStatusChangedEvent{
			BaseEvent: newBaseEvent(models.EventTypeMessageStatusChanged),
			MessageID: id,
			OldStatus: from,
			NewStatus: next,
		})
	})
	return msg, nil
}

// Advance moves a message to its next status; replied has none
func (s *MessageService) Advance(ctx context.Context, id string) (*models.ContactMessage, error) {
	ctx, span := util.StartSpan(ctx, "MessageService.Advance")
	defer span.End()

	msg, err := s.messages.GetMessage(ctx, id)
	if err != nil {
		return nil, err
	}

	next, ok := msg.Status.Next()
	if !ok {
		return nil, fmt.Errorf("%w: message %s is already %s", models.ErrInvalidTransition, id, msg.Status)
	}
	return s.UpdateStatus(ctx, id, string(next))
}

// Archive moves a replied message to history
func (s *MessageService) Archive(ctx context.Context, id string) (*models.ArchivedMessage, error) {
	ctx, span := util.StartSpan(ctx, "MessageService.Archive")
	defer span.End()

	release, err := acquireArchiveLock(ctx, s.redis, s.logger, "message:"+id)
	if err != nil {
		return nil, err
	}
	defer release()

	archived, err := s.messages.ArchiveMessage(ctx, id)
	if err != nil {
		return nil, err
	}

	util.MessagesArchivedTotal.Inc()
	s.logger.Info("Message archived", zap.String("message_id", id))

	publish(ctx, s.logger, s.eventPublisher, models.EventTypeMessageArchived, func(ctx context.Context, p EventPublisher) error {
		return p.PublishArchived(ctx, &models.ArchivedEvent{
			BaseEvent: newBaseEvent(models.EventTypeMessageArchived),
			ID:        id,
			Status:    string(archived.Status),
		})
	})

	return archived, nil
}
