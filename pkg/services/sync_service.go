package services

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pulseiq/pulse-engine/pkg/apperrors"
	"github.com/pulseiq/pulse-engine/pkg/config"
	"github.com/pulseiq/pulse-engine/pkg/crypto"
	"github.com/pulseiq/pulse-engine/pkg/logging"
	"github.com/pulseiq/pulse-engine/pkg/models"
	"github.com/pulseiq/pulse-engine/pkg/providers"
	"github.com/pulseiq/pulse-engine/pkg/repositories"
)

// SyncService runs the pull, merge, and recompute pipeline for provider
// connections.
type SyncService interface {
	// SyncOne syncs a single connection end to end. A connection already
	// being synced elsewhere yields a skipped outcome, not an error.
	SyncOne(ctx context.Context, connectionID uuid.UUID) (*models.SyncOutcome, error)

	// SyncAllForUser syncs every eligible connection the user has,
	// sequentially, and aggregates the outcomes.
	SyncAllForUser(ctx context.Context, userID uuid.UUID) (*models.SyncSummary, error)

	// RunFleetSync syncs every eligible connection fleet-wide. Users run in
	// parallel up to the configured bound; one user's connections always
	// run sequentially so their profile merges never interleave.
	RunFleetSync(ctx context.Context) (*models.SyncSummary, error)

	// RunScheduler starts the periodic fleet sync loop. It returns
	// immediately; the loop stops when ctx is cancelled.
	RunScheduler(ctx context.Context, interval time.Duration)
}

type syncService struct {
	connections repositories.ConnectionRepository
	profiles    repositories.ProfileRepository
	snapshots   repositories.SnapshotRepository
	history     repositories.MetricHistoryRepository
	syncLogs    repositories.SyncLogRepository
	prefs       repositories.PreferenceRepository
	scorer      Scorer
	notifier    Notifier
	cipher      *crypto.TokenCipher
	catalog     config.ProviderCatalog
	syncCfg     config.SyncConfig
	httpClient  *http.Client
	logger      *zap.Logger
	now         func() time.Time
}

// NewSyncService creates a new sync service.
func NewSyncService(
	connections repositories.ConnectionRepository,
	profiles repositories.ProfileRepository,
	snapshots repositories.SnapshotRepository,
	history repositories.MetricHistoryRepository,
	syncLogs repositories.SyncLogRepository,
	prefs repositories.PreferenceRepository,
	scorer Scorer,
	notifier Notifier,
	cipher *crypto.TokenCipher,
	catalog config.ProviderCatalog,
	syncCfg config.SyncConfig,
	logger *zap.Logger,
) SyncService {
	return &syncService{
		connections: connections,
		profiles:    profiles,
		snapshots:   snapshots,
		history:     history,
		syncLogs:    syncLogs,
		prefs:       prefs,
		scorer:      scorer,
		notifier:    notifier,
		cipher:      cipher,
		catalog:     catalog,
		syncCfg:     syncCfg,
		httpClient:  &http.Client{Timeout: providers.DefaultTimeout},
		logger:      logger.Named("sync-service"),
		now:         time.Now,
	}
}

var _ SyncService = (*syncService)(nil)

func (s *syncService) SyncOne(ctx context.Context, connectionID uuid.UUID) (*models.SyncOutcome, error) {
	conn, err := s.connections.GetByID(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	return s.syncConnection(ctx, conn), nil
}

func (s *syncService) SyncAllForUser(ctx context.Context, userID uuid.UUID) (*models.SyncSummary, error) {
	conns, err := s.connections.ListEligible(ctx, &userID)
	if err != nil {
		return nil, err
	}

	summary := &models.SyncSummary{TotalIntegrations: len(conns)}
	for _, conn := range conns {
		summary.Add(s.syncConnection(ctx, conn))
	}
	return summary, nil
}

func (s *syncService) RunFleetSync(ctx context.Context) (*models.SyncSummary, error) {
	started := s.now()
	conns, err := s.connections.ListEligible(ctx, nil)
	if err != nil {
		return nil, err
	}

	// Group by user: parallelism is across users, never within one user's
	// connections, so two providers cannot race on the same profile row.
	byUser := make(map[uuid.UUID][]*models.Connection)
	var order []uuid.UUID
	for _, conn := range conns {
		if _, seen := byUser[conn.UserID]; !seen {
			order = append(order, conn.UserID)
		}
		byUser[conn.UserID] = append(byUser[conn.UserID], conn)
	}

	limit := s.syncCfg.FleetConcurrency
	if limit < 1 {
		limit = 1
	}

	summary := &models.SyncSummary{TotalIntegrations: len(conns)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, userID := range order {
		userConns := byUser[userID]
		g.Go(func() error {
			for _, conn := range userConns {
				outcome := s.syncConnection(gctx, conn)
				mu.Lock()
				summary.Add(outcome)
				mu.Unlock()
			}
			return nil
		})
	}
	// Workers report per-connection failures through the summary, never as
	// group errors, so one bad connection cannot cancel the fleet.
	_ = g.Wait()

	s.logger.Info("Fleet sync finished",
		zap.Int("total", summary.TotalIntegrations),
		zap.Int("synced", summary.Synced),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Duration("duration", s.now().Sub(started)))
	return summary, nil
}

func (s *syncService) RunScheduler(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		s.logger.Info("Fleet sync scheduler disabled")
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		s.logger.Info("Fleet sync scheduler started", zap.Duration("interval", interval))

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("Fleet sync scheduler stopped")
				return
			case <-ticker.C:
				if _, err := s.RunFleetSync(ctx); err != nil {
					s.logger.Error("Scheduled fleet sync failed", zap.Error(err))
				}
			}
		}
	}()
}

// syncConnection runs the full pipeline for one connection: acquire the
// syncing state, refresh credentials if needed, pull, merge, recompute, and
// record the outcome either way.
func (s *syncService) syncConnection(ctx context.Context, conn *models.Connection) *models.SyncOutcome {
	started := s.now()
	log := s.logger.With(
		zap.String("connection_id", conn.ID.String()),
		zap.String("provider_id", conn.ProviderID),
		zap.String("user_id", conn.UserID.String()))

	outcome := &models.SyncOutcome{
		ConnectionID: conn.ID,
		ProviderID:   conn.ProviderID,
		UserID:       conn.UserID,
	}

	// The compare-and-set on status is the lock: losing it means another
	// worker owns this connection right now.
	if err := s.connections.BeginSync(ctx, conn.ID); err != nil {
		if errors.Is(err, apperrors.ErrSyncInProgress) {
			log.Info("Sync skipped, connection busy")
			outcome.Status = models.SyncSkipped
			return outcome
		}
		outcome.Status = models.SyncFailed
		outcome.Error = err.Error()
		log.Error("Failed to acquire connection for sync", zap.Error(err))
		return outcome
	}

	adapter, err := buildAdapter(s.catalog, conn.ProviderID, s.httpClient, log)
	if err != nil {
		return s.failSync(ctx, log, conn, started, err, outcome)
	}

	// Adapters see plaintext credentials; the stored row keeps ciphertext.
	work := *conn
	if work.AccessToken, err = s.cipher.Decrypt(conn.AccessToken); err != nil {
		return s.failSync(ctx, log, conn, started, err, outcome)
	}
	if work.RefreshToken, err = s.cipher.Decrypt(conn.RefreshToken); err != nil {
		return s.failSync(ctx, log, conn, started, err, outcome)
	}

	if refresher, ok := adapter.(providers.TokenRefresher); ok && work.TokenExpired(s.now()) {
		if err := s.refreshTokens(ctx, refresher, &work); err != nil {
			return s.failSync(ctx, log, conn, started, err, outcome)
		}
	}

	pullCtx, cancel := context.WithTimeout(ctx, s.pullTimeout())
	pulled, err := adapter.Pull(pullCtx, &work)
	cancel()
	if err != nil {
		return s.failSync(ctx, log, conn, started, err, outcome)
	}

	profile, err := s.profiles.GetOrCreate(ctx, conn.UserID)
	if err != nil {
		return s.failSync(ctx, log, conn, started, err, outcome)
	}

	pillarResults := adapter.MapToPillars(pulled, profile)
	if pulled.Metrics.IsEmpty() && len(pillarResults) == 0 {
		log.Info("Pull produced no metrics, nothing to merge")
		s.finishSync(ctx, log, conn, started)
		outcome.Status = models.SyncSuccess
		return outcome
	}

	applyMetrics(profile, pulled.Metrics, conn.ProviderID)
	if err := s.profiles.Update(ctx, profile); err != nil {
		return s.failSync(ctx, log, conn, started, err, outcome)
	}

	result, err := s.scorer.ComputeScore(profile, profile.BusinessType)
	if err != nil {
		return s.failSync(ctx, log, conn, started, err, outcome)
	}

	prev, err := s.snapshots.GetLatest(ctx, conn.UserID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			return s.failSync(ctx, log, conn, started, err, outcome)
		}
		prev = nil
	}

	snapshot := &models.ScoreSnapshot{
		UserID:            conn.UserID,
		CreatedAt:         s.now(),
		Score:             result.Score,
		PillarScores:      pillarScores(result),
		PrimaryRisk:       result.PrimaryRisk,
		FastestLever:      result.FastestLever,
		MissingDataFields: result.MissingData,
		Summary:           buildSummary(prev, result, pillarResults),
	}
	if err := s.snapshots.Insert(ctx, snapshot); err != nil {
		return s.failSync(ctx, log, conn, started, err, outcome)
	}

	s.recordWeeklyHistory(ctx, log, conn.UserID, result, pillarResults)
	s.finishSync(ctx, log, conn, started)

	outcome.Status = models.SyncSuccess
	outcome.NewScore = &snapshot.Score

	s.notifyScoreUpdate(ctx, log, conn.UserID, prev, result, snapshot.Summary)

	log.Info("Sync completed",
		zap.Int("score", snapshot.Score),
		zap.Duration("duration", s.now().Sub(started)))
	return outcome
}

// refreshTokens exchanges and persists new credentials before the pull, so a
// later pull failure cannot lose a rotated refresh token.
func (s *syncService) refreshTokens(ctx context.Context, refresher providers.TokenRefresher, work *models.Connection) error {
	refreshCtx, cancel := context.WithTimeout(ctx, s.pullTimeout())
	update, err := refresher.Refresh(refreshCtx, work)
	cancel()
	if err != nil {
		return err
	}

	encAccess, err := s.cipher.Encrypt(update.AccessToken)
	if err != nil {
		return err
	}
	encRefresh, err := s.cipher.Encrypt(update.RefreshToken)
	if err != nil {
		return err
	}
	if err := s.connections.UpdateTokens(ctx, work.ID, encAccess, encRefresh, update.ExpiresAt); err != nil {
		return err
	}

	work.AccessToken = update.AccessToken
	if update.RefreshToken != "" {
		work.RefreshToken = update.RefreshToken
	}
	work.TokenExpiresAt = update.ExpiresAt
	return nil
}

func (s *syncService) recordWeeklyHistory(ctx context.Context, log *zap.Logger, userID uuid.UUID, result *models.ScoreResult, pillarResults []models.PillarMetricResult) {
	week := models.WeekOf(s.now())
	for pillar, assessment := range result.Pillars {
		row := &models.MetricHistory{
			UserID:  userID,
			Pillar:  pillar,
			WeekOf:  week,
			Score:   assessment.Score,
			Metrics: pillarMetrics(pillarResults, pillar),
		}
		// The snapshot is already appended; a missed trend row only costs
		// chart fidelity, so it does not fail the sync.
		if err := s.history.Upsert(ctx, row); err != nil {
			log.Warn("Failed to record weekly history",
				zap.String("pillar", pillar.String()), zap.Error(err))
		}
	}
}

// notifyScoreUpdate dispatches a score-change notification, gated by the
// user's preference. Failures are logged and never fail the sync.
func (s *syncService) notifyScoreUpdate(ctx context.Context, log *zap.Logger, userID uuid.UUID, prev *models.ScoreSnapshot, result *models.ScoreResult, summary string) {
	if prev != nil && prev.Score == result.Score {
		return
	}

	enabled, err := s.prefs.ShouldNotify(ctx, userID, repositories.PrefScoreUpdates)
	if err != nil {
		log.Warn("Failed to read notification preference", zap.Error(err))
		return
	}
	if !enabled {
		return
	}

	payload := ScoreUpdatePayload{
		NewScore: result.Score,
		Summary:  summary,
	}
	if prev != nil {
		prevScore := prev.Score
		payload.PreviousScore = &prevScore
		payload.PillarDeltas = make(map[models.Pillar]int)
		for pillar, assessment := range result.Pillars {
			if old, ok := prev.PillarScores[pillar]; ok {
				payload.PillarDeltas[pillar] = assessment.Score - old
			}
		}
	}

	if err := s.notifier.Notify(ctx, userID, NotifyKindScoreUpdate, payload); err != nil {
		log.Warn("Notification dispatch failed", zap.Error(err))
	}
}

func (s *syncService) finishSync(ctx context.Context, log *zap.Logger, conn *models.Connection, started time.Time) {
	if err := s.connections.FinishSync(ctx, conn.ID, models.SyncSuccess, "", s.now()); err != nil {
		log.Error("Failed to record sync success", zap.Error(err))
	}
	s.writeSyncLog(ctx, log, conn, models.SyncSuccess, "", started)
}

func (s *syncService) failSync(ctx context.Context, log *zap.Logger, conn *models.Connection, started time.Time, syncErr error, outcome *models.SyncOutcome) *models.SyncOutcome {
	msg := logging.TruncateString(logging.SanitizeError(syncErr), logging.MaxUpstreamBodyLength)
	log.Error("Sync failed",
		zap.String("stage", string(providers.StageOf(syncErr))),
		zap.String("error", msg))

	if err := s.connections.FinishSync(ctx, conn.ID, models.SyncFailed, msg, s.now()); err != nil {
		log.Error("Failed to record sync failure", zap.Error(err))
	}
	s.writeSyncLog(ctx, log, conn, models.SyncFailed, msg, started)

	outcome.Status = models.SyncFailed
	outcome.Error = msg
	return outcome
}

func (s *syncService) writeSyncLog(ctx context.Context, log *zap.Logger, conn *models.Connection, status models.SyncStatus, msg string, started time.Time) {
	entry := &models.SyncLog{
		ConnectionID: conn.ID,
		UserID:       conn.UserID,
		ProviderID:   conn.ProviderID,
		Status:       status,
		Error:        msg,
		StartedAt:    started,
		DurationMS:   s.now().Sub(started).Milliseconds(),
	}
	if err := s.syncLogs.Insert(ctx, entry); err != nil {
		log.Warn("Failed to write sync log", zap.Error(err))
	}
}

func (s *syncService) pullTimeout() time.Duration {
	seconds := s.syncCfg.PullTimeoutSeconds
	if seconds <= 0 {
		seconds = 30
	}
	return time.Duration(seconds) * time.Second
}

func pillarScores(result *models.ScoreResult) map[models.Pillar]int {
	scores := make(map[models.Pillar]int, len(result.Pillars))
	for pillar, assessment := range result.Pillars {
		scores[pillar] = assessment.Score
	}
	return scores
}

func pillarMetrics(results []models.PillarMetricResult, pillar models.Pillar) map[string]float64 {
	for _, r := range results {
		if r.Pillar == pillar {
			return r.Metrics
		}
	}
	return nil
}
