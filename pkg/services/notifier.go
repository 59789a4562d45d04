package services

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulseiq/pulse-engine/pkg/models"
)

// NotifyKindScoreUpdate identifies score-change messages.
const NotifyKindScoreUpdate = "score_update"

// ScoreUpdatePayload is sent to the notification collaborator when a score
// changes.
type ScoreUpdatePayload struct {
	NewScore      int                   `json:"new_score"`
	PreviousScore *int                  `json:"previous_score,omitempty"`
	PillarDeltas  map[models.Pillar]int `json:"pillar_deltas,omitempty"`
	Summary       string                `json:"summary,omitempty"`
}

// Notifier is the external messaging collaborator. Dispatch is fire-and-
// forget: callers log failures and never propagate them.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, kind string, payload any) error
}

// LogNotifier is the default Notifier; it records dispatches in the log and
// delivers nothing. Real delivery lives outside this subsystem.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a logging notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("notifier")}
}

var _ Notifier = (*LogNotifier)(nil)

// Notify logs the dispatch.
func (n *LogNotifier) Notify(_ context.Context, userID uuid.UUID, kind string, payload any) error {
	n.logger.Info("Notification dispatched",
		zap.String("user_id", userID.String()),
		zap.String("kind", kind),
		zap.Any("payload", payload))
	return nil
}
