package otp

import (
	"context"
	"log/slog"

	"onboarding/internal/application/models"
	id "onboarding/pkg/domain"
	"onboarding/pkg/platform/privacy"
)

// Notifier delivers a plaintext code to the applicant. Delivery providers
// live outside this service.
type Notifier interface {
	Send(ctx context.Context, appID id.ApplicationID, channel models.Channel, destination, code string) error
}

// LogNotifier records that a code was dispatched without its value. It is
// the notifier for environments without a delivery provider.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(ctx context.Context, appID id.ApplicationID, channel models.Channel, destination, _ string) error {
	n.logger.InfoContext(ctx, "otp dispatched",
		"application_id", appID.String(),
		"channel", channel,
		"destination", maskDestination(channel, destination),
	)
	return nil
}

func maskDestination(channel models.Channel, destination string) string {
	if channel == models.ChannelEmail {
		return privacy.MaskEmail(destination)
	}
	if len(destination) <= 4 {
		return "****"
	}
	return "****" + destination[len(destination)-4:]
}
