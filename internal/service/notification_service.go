package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/fitclass-api/internal/models"
	"github.com/noah-isme/fitclass-api/pkg/events"
	"github.com/noah-isme/fitclass-api/pkg/jobs"
)

const notificationJobType = "notification.dispatch"

// notifier is the dispatch port the workflows depend on.
type notifier interface {
	Notify(ctx context.Context, notification models.Notification)
}

// NotificationConfig tunes the dispatch worker pool.
type NotificationConfig struct {
	SubjectPrefix string
	Workers       int
	BufferSize    int
	Retries       int
	RetryDelay    time.Duration
}

// NotificationService hands notifications to the external delivery service through a
// publisher. Dispatch is asynchronous and best-effort: a failed or dropped notification is
// logged and counted but never fails the operation that produced it.
type NotificationService struct {
	publisher events.Publisher
	queue     *jobs.Queue
	prefix    string
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// NewNotificationService builds the service and its worker queue. Call Start before use.
func NewNotificationService(publisher events.Publisher, cfg NotificationConfig, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = events.NewLogPublisher(logger)
	}
	prefix := strings.Trim(cfg.SubjectPrefix, ".")
	if prefix == "" {
		prefix = "fitclass.notifications"
	}
	svc := &NotificationService{
		publisher: publisher,
		prefix:    prefix,
		metrics:   metrics,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	svc.queue = jobs.NewQueue("notifications", svc.deliver, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.Retries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
		OnGiveUp: func(job jobs.Job, err error) {
			metrics.RecordNotification("failed")
		},
	})
	return svc
}

// Start launches the dispatch workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop waits for in-flight deliveries and closes the publisher.
func (s *NotificationService) Stop() {
	s.queue.Stop()
	s.publisher.Close()
}

// Notify queues a notification without blocking the caller.
func (s *NotificationService) Notify(_ context.Context, notification models.Notification) {
	if s == nil {
		return
	}
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = s.now()
	}
	job := jobs.Job{ID: notification.ID, Type: notificationJobType, Payload: notification}
	if err := s.queue.TryEnqueue(job); err != nil {
		s.metrics.RecordNotification("dropped")
		s.logger.Warn("notification dropped",
			zap.String("category", string(notification.Category)),
			zap.String("notification_id", notification.ID),
			zap.Error(err))
	}
}

// Subject returns the publish subject for a category.
func (s *NotificationService) Subject(category models.NotificationCategory) string {
	return s.prefix + "." + string(category)
}

func (s *NotificationService) deliver(_ context.Context, job jobs.Job) error {
	notification, ok := job.Payload.(models.Notification)
	if !ok {
		s.logger.Error("unexpected notification payload", zap.String("job_id", job.ID), zap.String("type", fmt.Sprintf("%T", job.Payload)))
		return nil
	}
	if err := s.publisher.Publish(s.Subject(notification.Category), notification); err != nil {
		return err
	}
	s.metrics.RecordNotification("sent")
	return nil
}
