package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulseiq/pulse-engine/pkg/apperrors"
	"github.com/pulseiq/pulse-engine/pkg/config"
	"github.com/pulseiq/pulse-engine/pkg/crypto"
	"github.com/pulseiq/pulse-engine/pkg/models"
	"github.com/pulseiq/pulse-engine/pkg/providers"
	"github.com/pulseiq/pulse-engine/pkg/repositories"
)

// fakeProviderID is registered once for the whole package; tests swap the
// adapter behind it via currentAdapter before each run.
const fakeProviderID = "fakeprov"

var currentAdapter providers.Adapter

func init() {
	providers.Register(providers.Registration{
		Info: providers.Info{
			ID:          fakeProviderID,
			DisplayName: "Fake Provider",
			Category:    "testing",
		},
		Factory: func(_ config.ProviderSettings, _ *http.Client, _ *zap.Logger) (providers.Adapter, error) {
			return currentAdapter, nil
		},
	})
}

// fakeAdapter implements providers.Adapter with scriptable behavior. Pull
// fails for connections whose decrypted access token is "bad".
type fakeAdapter struct {
	metrics        models.PulledMetrics
	pillarScore    int
	exchangeResult *providers.OAuthResult
	exchangeErr    error
	disconnectErr  error

	mu            sync.Mutex
	pullCount     int
	disconnected  int
	lastPullToken string
}

func (f *fakeAdapter) ID() string { return fakeProviderID }

func (f *fakeAdapter) AuthorizationURL(state string, extra map[string]string) (string, error) {
	q := url.Values{}
	q.Set("state", state)
	q.Set("redirect_uri", extra["redirect_uri"])
	return "https://auth.fakeprov.example/authorize?" + q.Encode(), nil
}

func (f *fakeAdapter) ExchangeCode(_ context.Context, code string, _ map[string]string) (*providers.OAuthResult, error) {
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	if f.exchangeResult != nil {
		return f.exchangeResult, nil
	}
	return &providers.OAuthResult{AccessToken: "token-for-" + code}, nil
}

func (f *fakeAdapter) Pull(_ context.Context, conn *models.Connection) (*models.PulledData, error) {
	f.mu.Lock()
	f.pullCount++
	f.lastPullToken = conn.AccessToken
	f.mu.Unlock()

	if conn.AccessToken == "bad" {
		return nil, providers.NewError(providers.StagePull, fakeProviderID, 500, "upstream exploded", nil)
	}

	now := time.Now().UTC()
	return &models.PulledData{
		ProviderID:  fakeProviderID,
		PulledAt:    now,
		PeriodStart: now.AddDate(0, 0, -30),
		PeriodEnd:   now,
		Metrics:     f.metrics,
	}, nil
}

func (f *fakeAdapter) MapToPillars(pulled *models.PulledData, _ *models.BusinessProfile) []models.PillarMetricResult {
	if pulled.Metrics.Revenue == nil {
		return nil
	}
	return []models.PillarMetricResult{{
		Pillar:  models.PillarRevenue,
		Score:   f.pillarScore,
		Metrics: map[string]float64{"revenue_30d": *pulled.Metrics.Revenue},
		Changes: []string{fmt.Sprintf("30-day revenue $%.0f", *pulled.Metrics.Revenue)},
	}}
}

func (f *fakeAdapter) Disconnect(context.Context, *models.Connection) error {
	f.mu.Lock()
	f.disconnected++
	f.mu.Unlock()
	return f.disconnectErr
}

// fakeRefreshingAdapter adds TokenRefresher on top of fakeAdapter.
type fakeRefreshingAdapter struct {
	fakeAdapter
	refreshUpdate *providers.TokenUpdate
	refreshErr    error
	refreshCount  int
}

func (f *fakeRefreshingAdapter) Refresh(_ context.Context, conn *models.Connection) (*providers.TokenUpdate, error) {
	f.refreshCount++
	if conn.RefreshToken == "" {
		return nil, apperrors.ErrMissingRefreshToken
	}
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return f.refreshUpdate, nil
}

var (
	_ providers.Adapter        = (*fakeAdapter)(nil)
	_ providers.TokenRefresher = (*fakeRefreshingAdapter)(nil)
)

// In-memory repository fakes.

type fakeConnRepo struct {
	mu    sync.Mutex
	conns map[uuid.UUID]*models.Connection
}

func newFakeConnRepo() *fakeConnRepo {
	return &fakeConnRepo{conns: make(map[uuid.UUID]*models.Connection)}
}

var _ repositories.ConnectionRepository = (*fakeConnRepo)(nil)

func (r *fakeConnRepo) add(conn *models.Connection) *models.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conn.ID == uuid.Nil {
		conn.ID = uuid.New()
	}
	r.conns[conn.ID] = conn
	return conn
}

func (r *fakeConnRepo) Create(_ context.Context, conn *models.Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.conns {
		if c.UserID == conn.UserID && c.ProviderID == conn.ProviderID {
			return apperrors.ErrConflict
		}
	}
	conn.ID = uuid.New()
	r.conns[conn.ID] = conn
	return nil
}

func (r *fakeConnRepo) Upsert(_ context.Context, conn *models.Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.conns {
		if c.UserID == conn.UserID && c.ProviderID == conn.ProviderID {
			conn.ID = id
			r.conns[id] = conn
			return nil
		}
	}
	conn.ID = uuid.New()
	r.conns[conn.ID] = conn
	return nil
}

func (r *fakeConnRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (r *fakeConnRepo) GetByUserAndProvider(_ context.Context, userID uuid.UUID, providerID string) (*models.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.conns {
		if c.UserID == userID && c.ProviderID == providerID {
			copied := *c
			return &copied, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r *fakeConnRepo) ListForUser(_ context.Context, userID uuid.UUID) ([]*models.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Connection
	for _, c := range r.conns {
		if c.UserID == userID {
			copied := *c
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeConnRepo) ListEligible(_ context.Context, userID *uuid.UUID) ([]*models.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Connection
	for _, c := range r.conns {
		if c.Status != models.ConnectionConnected && c.Status != models.ConnectionError {
			continue
		}
		if userID != nil && c.UserID != *userID {
			continue
		}
		copied := *c
		out = append(out, &copied)
	}
	return out, nil
}

func (r *fakeConnRepo) BeginSync(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	if c.Status != models.ConnectionConnected && c.Status != models.ConnectionError {
		return apperrors.ErrSyncInProgress
	}
	c.Status = models.ConnectionSyncing
	return nil
}

func (r *fakeConnRepo) UpdateTokens(_ context.Context, id uuid.UUID, accessToken, refreshToken string, expiresAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	c.AccessToken = accessToken
	if refreshToken != "" {
		c.RefreshToken = refreshToken
	}
	c.TokenExpiresAt = expiresAt
	return nil
}

func (r *fakeConnRepo) FinishSync(_ context.Context, id uuid.UUID, status models.SyncStatus, syncErr string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	if status == models.SyncSuccess {
		c.Status = models.ConnectionConnected
	} else {
		c.Status = models.ConnectionError
	}
	c.LastSyncAt = &at
	c.LastSyncStatus = status
	c.LastSyncError = syncErr
	return nil
}

func (r *fakeConnRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(r.conns, id)
	return nil
}

func (r *fakeConnRepo) get(id uuid.UUID) *models.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.conns[id]
	if c == nil {
		return nil
	}
	copied := *c
	return &copied
}

type fakeProfileRepo struct {
	mu        sync.Mutex
	profiles  map[uuid.UUID]*models.BusinessProfile
	updates   int
	updateErr error
}

func newFakeProfileRepo() *fakeProfileRepo {
	return &fakeProfileRepo{profiles: make(map[uuid.UUID]*models.BusinessProfile)}
}

var _ repositories.ProfileRepository = (*fakeProfileRepo)(nil)

func copyProfile(p *models.BusinessProfile) *models.BusinessProfile {
	copied := *p
	copied.Provenance = make(map[string]string, len(p.Provenance))
	for k, v := range p.Provenance {
		copied.Provenance[k] = v
	}
	return &copied
}

func (r *fakeProfileRepo) GetOrCreate(_ context.Context, userID uuid.UUID) (*models.BusinessProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[userID]
	if !ok {
		p = &models.BusinessProfile{UserID: userID, Provenance: map[string]string{}}
		r.profiles[userID] = p
	}
	return copyProfile(p), nil
}

func (r *fakeProfileRepo) Update(_ context.Context, profile *models.BusinessProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	r.updates++
	r.profiles[profile.UserID] = copyProfile(profile)
	return nil
}

func (r *fakeProfileRepo) stored(userID uuid.UUID) *models.BusinessProfile {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[userID]
	if !ok {
		return nil
	}
	return copyProfile(p)
}

type fakeSnapshotRepo struct {
	mu        sync.Mutex
	snapshots []*models.ScoreSnapshot
	insertErr error
}

var _ repositories.SnapshotRepository = (*fakeSnapshotRepo)(nil)

func (r *fakeSnapshotRepo) Insert(_ context.Context, s *models.ScoreSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	s.ID = uuid.New()
	copied := *s
	r.snapshots = append(r.snapshots, &copied)
	return nil
}

func (r *fakeSnapshotRepo) GetLatest(_ context.Context, userID uuid.UUID) (*models.ScoreSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.snapshots) - 1; i >= 0; i-- {
		if r.snapshots[i].UserID == userID {
			copied := *r.snapshots[i]
			return &copied, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r *fakeSnapshotRepo) List(_ context.Context, userID uuid.UUID, _ int) ([]*models.ScoreSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.ScoreSnapshot
	for i := len(r.snapshots) - 1; i >= 0; i-- {
		if r.snapshots[i].UserID == userID {
			copied := *r.snapshots[i]
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeSnapshotRepo) Count(_ context.Context, userID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.snapshots {
		if s.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (r *fakeSnapshotRepo) all() []*models.ScoreSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*models.ScoreSnapshot(nil), r.snapshots...)
}

type historyKey struct {
	userID uuid.UUID
	pillar models.Pillar
	weekOf time.Time
}

type fakeHistoryRepo struct {
	mu      sync.Mutex
	rows    map[historyKey]*models.MetricHistory
	upserts int
}

func newFakeHistoryRepo() *fakeHistoryRepo {
	return &fakeHistoryRepo{rows: make(map[historyKey]*models.MetricHistory)}
}

var _ repositories.MetricHistoryRepository = (*fakeHistoryRepo)(nil)

func (r *fakeHistoryRepo) Upsert(_ context.Context, row *models.MetricHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts++
	copied := *row
	r.rows[historyKey{row.UserID, row.Pillar, row.WeekOf}] = &copied
	return nil
}

func (r *fakeHistoryRepo) ListWeeks(_ context.Context, userID uuid.UUID, pillar models.Pillar, _ int) ([]*models.MetricHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.MetricHistory
	for k, row := range r.rows {
		if k.userID == userID && k.pillar == pillar {
			copied := *row
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeHistoryRepo) rowCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

type fakeSyncLogRepo struct {
	mu   sync.Mutex
	logs []*models.SyncLog
}

var _ repositories.SyncLogRepository = (*fakeSyncLogRepo)(nil)

func (r *fakeSyncLogRepo) Insert(_ context.Context, log *models.SyncLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	log.ID = uuid.New()
	copied := *log
	r.logs = append(r.logs, &copied)
	return nil
}

func (r *fakeSyncLogRepo) ListForConnection(_ context.Context, connectionID uuid.UUID, _ int) ([]*models.SyncLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.SyncLog
	for _, l := range r.logs {
		if l.ConnectionID == connectionID {
			copied := *l
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeSyncLogRepo) all() []*models.SyncLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*models.SyncLog(nil), r.logs...)
}

type fakePrefRepo struct {
	enabled bool
	err     error
}

var _ repositories.PreferenceRepository = (*fakePrefRepo)(nil)

func (r *fakePrefRepo) ShouldNotify(context.Context, uuid.UUID, string) (bool, error) {
	return r.enabled, r.err
}

func (r *fakePrefRepo) Set(context.Context, uuid.UUID, string, bool) error { return nil }

type fakeScorer struct {
	result *models.ScoreResult
	err    error
	calls  int
}

var _ Scorer = (*fakeScorer)(nil)

func (s *fakeScorer) ComputeScore(*models.BusinessProfile, string) (*models.ScoreResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type notifyCall struct {
	userID  uuid.UUID
	kind    string
	payload any
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
	err   error
}

var _ Notifier = (*fakeNotifier)(nil)

func (n *fakeNotifier) Notify(_ context.Context, userID uuid.UUID, kind string, payload any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notifyCall{userID, kind, payload})
	return n.err
}

func (n *fakeNotifier) callCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

// syncHarness bundles a syncService wired to fakes.
type syncHarness struct {
	svc       *syncService
	conns     *fakeConnRepo
	profiles  *fakeProfileRepo
	snapshots *fakeSnapshotRepo
	history   *fakeHistoryRepo
	syncLogs  *fakeSyncLogRepo
	prefs     *fakePrefRepo
	scorer    *fakeScorer
	notifier  *fakeNotifier
	cipher    *crypto.TokenCipher
}

func newSyncHarness() *syncHarness {
	cipher, err := crypto.NewTokenCipher("unit-test-passphrase")
	if err != nil {
		panic(err)
	}

	h := &syncHarness{
		conns:     newFakeConnRepo(),
		profiles:  newFakeProfileRepo(),
		snapshots: &fakeSnapshotRepo{},
		history:   newFakeHistoryRepo(),
		syncLogs:  &fakeSyncLogRepo{},
		prefs:     &fakePrefRepo{enabled: true},
		scorer:    &fakeScorer{result: scoreResultWith(70)},
		notifier:  &fakeNotifier{},
		cipher:    cipher,
	}
	h.svc = &syncService{
		connections: h.conns,
		profiles:    h.profiles,
		snapshots:   h.snapshots,
		history:     h.history,
		syncLogs:    h.syncLogs,
		prefs:       h.prefs,
		scorer:      h.scorer,
		notifier:    h.notifier,
		cipher:      cipher,
		catalog: config.ProviderCatalog{
			fakeProviderID: {Enabled: true, ClientID: "id", ClientSecret: "secret"},
		},
		syncCfg:    config.SyncConfig{PullTimeoutSeconds: 5, FleetConcurrency: 4},
		httpClient: &http.Client{},
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	return h
}

// addConnection stores a connected connection whose tokens are encrypted
// forms of the given plaintext.
func (h *syncHarness) addConnection(userID uuid.UUID, accessToken, refreshToken string, expiresAt *time.Time) *models.Connection {
	encAccess, err := h.cipher.Encrypt(accessToken)
	if err != nil {
		panic(err)
	}
	encRefresh, err := h.cipher.Encrypt(refreshToken)
	if err != nil {
		panic(err)
	}
	return h.conns.add(&models.Connection{
		UserID:            userID,
		ProviderID:        fakeProviderID,
		Status:            models.ConnectionConnected,
		AccessToken:       encAccess,
		RefreshToken:      encRefresh,
		TokenExpiresAt:    expiresAt,
		ExternalAccountID: "acct-1",
	})
}

// scoreResultWith builds a ScoreResult with the given composite and a uniform
// pillar spread.
func scoreResultWith(score int) *models.ScoreResult {
	pillars := make(map[models.Pillar]models.PillarAssessment, len(models.AllPillars))
	for _, p := range models.AllPillars {
		pillars[p] = models.PillarAssessment{Score: score}
	}
	return &models.ScoreResult{
		Score:        score,
		Pillars:      pillars,
		PrimaryRisk:  "Revenue is your weakest pillar",
		FastestLever: "Grow monthly revenue",
	}
}
