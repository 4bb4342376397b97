package policy

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

// SlackNotifier posts pending approvals to an incoming webhook so a
// human can act on them.
type SlackNotifier struct {
	webhookURL string
	logger     *zap.Logger
}

// NewSlackNotifier creates a notifier for the given webhook URL.
func NewSlackNotifier(webhookURL string, logger *zap.Logger) *SlackNotifier {
	return &SlackNotifier{webhookURL: webhookURL, logger: logger}
}

// NotifyPendingApproval posts a summary of the pending approval.
func (n *SlackNotifier) NotifyPendingApproval(ctx context.Context, a *ActionApproval) error {
	msg := &slack.WebhookMessage{
		Text: fmt.Sprintf("Pending approval %s: user %s proposes %s for $%.2f",
			a.ID, a.UserID, a.ActionType, a.Amount),
	}
	if err := slack.PostWebhookContext(ctx, n.webhookURL, msg); err != nil {
		return fmt.Errorf("post approval webhook: %w", err)
	}
	n.logger.Debug("approval notification sent", zap.String("approval", a.ID))
	return nil
}
