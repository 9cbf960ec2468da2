package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/bivex/renewal-retry/internal/domain/entity"
)

// NotificationService dispatches the emails a retry rule asks for. It only
// decides whether and which template to fire; rendering and delivery belong
// to the mail platform behind the dispatcher.
type NotificationService struct {
	dispatcher EmailDispatcher
	logger     *zap.Logger
}

// EmailDispatcher delivers a template-keyed notification about a renewal order.
type EmailDispatcher interface {
	Dispatch(ctx context.Context, template string, orderID int64) error
}

// NewNotificationService creates a notification service. dispatcher may be
// nil, in which case notifications are logged and dropped.
func NewNotificationService(dispatcher EmailDispatcher, logger *zap.Logger) *NotificationService {
	return &NotificationService{dispatcher: dispatcher, logger: logger}
}

// HandleRetryEvent sends the rule's emails when a retry is created. Wired as
// a listener on the retry event bus.
func (s *NotificationService) HandleRetryEvent(ctx context.Context, event RetryEvent) {
	if event.Type != EventRetryCreated {
		return
	}
	rule := event.Retry.Rule
	for _, recipient := range []entity.RuleRecipient{entity.RuleRecipientCustomer, entity.RuleRecipientAdmin} {
		if !rule.HasEmailTemplate(recipient) {
			continue
		}
		s.send(ctx, rule.EmailTemplate(recipient), event.Retry.OrderID)
	}
}

func (s *NotificationService) send(ctx context.Context, template string, orderID int64) {
	if s.dispatcher == nil {
		s.logger.Info("notification dispatcher not configured, dropping email",
			zap.String("template", template),
			zap.Int64("order_id", orderID))
		return
	}
	if err := s.dispatcher.Dispatch(ctx, template, orderID); err != nil {
		// Notification failures never abort a retry transition.
		s.logger.Error("failed to dispatch retry email",
			zap.String("template", template),
			zap.Int64("order_id", orderID),
			zap.Error(err))
	}
}
