package ingest

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/tablewise/insights/internal/application/engine"
	funnelapp "github.com/tablewise/insights/internal/application/funnel"
	"github.com/tablewise/insights/internal/domain/abtest"
	cohortdomain "github.com/tablewise/insights/internal/domain/cohort"
	"github.com/tablewise/insights/internal/domain/friction"
	funneldomain "github.com/tablewise/insights/internal/domain/funnel"
	"github.com/tablewise/insights/internal/domain/interaction"
	"github.com/tablewise/insights/internal/infrastructure/config"
	"github.com/tablewise/insights/internal/infrastructure/monitoring"
	"github.com/tablewise/insights/internal/ports/outbound"
	apperrors "github.com/tablewise/insights/pkg/errors"
)

// defaultMetricsWindow is used when a metrics query does not set one
const defaultMetricsWindow = 7 * 24 * time.Hour

// Handlers carries the ingest API's collaborators
type Handlers struct {
	cfg          *config.Config
	registry     *engine.Registry
	funnels      *funnelapp.Analyzer
	frictionRepo outbound.FrictionRepository
	metrics      *monitoring.MetricsCollector
	hub          *Hub
	logger       *zap.Logger

	mu     sync.Mutex
	hooked map[string]struct{}
}

// NewHandlers creates the ingest API handlers
func NewHandlers(
	cfg *config.Config,
	registry *engine.Registry,
	funnels *funnelapp.Analyzer,
	frictionRepo outbound.FrictionRepository,
	metrics *monitoring.MetricsCollector,
	hub *Hub,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		cfg:          cfg,
		registry:     registry,
		funnels:      funnels,
		frictionRepo: frictionRepo,
		metrics:      metrics,
		hub:          hub,
		logger:       logger.Named("handlers"),
		hooked:       make(map[string]struct{}),
	}
}

// engineFor resolves the tenant's engine, wiring its friction feed into the
// alert hub and metrics on first use
func (h *Handlers) engineFor(r *http.Request) (*engine.Engine, error) {
	tenantID := TenantFromContext(r.Context())
	if tenantID == "" {
		return nil, apperrors.NewTenantUnknownError("")
	}
	eng, err := h.registry.Engine(r.Context(), tenantID)
	if err != nil {
		return nil, apperrors.Wrap(err, "engine initialization failed")
	}
	h.hookTenant(tenantID, eng)
	return eng, nil
}

func (h *Handlers) hookTenant(tenantID string, eng *engine.Engine) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.hooked[tenantID]; ok {
		return
	}
	h.hooked[tenantID] = struct{}{}
	eng.Friction.Subscribe(func(ev friction.Event) {
		if h.metrics != nil {
			h.metrics.RecordFrictionEvent(tenantID, string(ev.Type), string(ev.Severity))
		}
		if h.hub != nil {
			h.hub.Broadcast(tenantID, ev)
		}
	})
}

// IngestEvents accepts a batch of captured interaction events and publishes
// them onto the tenant's event bus
func (h *Handlers) IngestEvents(w http.ResponseWriter, r *http.Request) {
	eng, err := h.engineFor(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		SessionID string          `json:"session_id"`
		Events    []eventEnvelope `json:"events"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.NewBadRequestError("malformed request body"))
		return
	}
	if req.SessionID == "" {
		writeError(w, apperrors.NewValidationError("session_id is required"))
		return
	}
	if max := h.cfg.Server.MaxBatchSize; max > 0 && len(req.Events) > max {
		writeError(w, apperrors.NewValidationError("batch exceeds maximum size"))
		return
	}

	accepted := 0
	rejected := 0
	for _, env := range req.Events {
		event, err := decodeEvent(env)
		if err != nil {
			rejected++
			continue
		}
		eng.Bus.Publish(req.SessionID, event)

		// Page views double as journey steps so capture agents do not have
		// to report navigation twice
		if pv, ok := event.(interaction.PageViewEvent); ok {
			eng.Journeys.TrackStepAt(pv.Path, pv.Metadata, pv.Timestamp)
		}

		if h.metrics != nil {
			h.metrics.RecordIngestedEvent(eng.TenantID, env.Kind)
		}
		accepted++
	}
	if h.metrics != nil {
		h.metrics.RecordBatch(len(req.Events))
	}

	writeJSON(w, http.StatusAccepted, map[string]int{
		"accepted": accepted,
		"rejected": rejected,
	})
}

// StartJourney begins a fresh journey for a session
func (h *Handlers) StartJourney(w http.ResponseWriter, r *http.Request) {
	eng, err := h.engineFor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		SessionID string `json:"session_id"`
		UserID    string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		writeError(w, apperrors.NewValidationError("session_id is required"))
		return
	}
	eng.Journeys.StartNewJourney(req.SessionID, req.UserID)
	writeJSON(w, http.StatusCreated, map[string]string{"status": "started"})
}

// TrackJourneyStep appends a step to the active journey
func (h *Handlers) TrackJourneyStep(w http.ResponseWriter, r *http.Request) {
	eng, err := h.engineFor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Path      string            `json:"path"`
		Metadata  map[string]string `json:"metadata"`
		Timestamp time.Time         `json:"timestamp"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		writeError(w, apperrors.NewValidationError("path is required"))
		return
	}
	if req.Timestamp.IsZero() {
		eng.Journeys.TrackStep(req.Path, req.Metadata)
	} else {
		eng.Journeys.TrackStepAt(req.Path, req.Metadata, req.Timestamp)
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "tracked"})
}

// EndJourney seals the active journey
func (h *Handlers) EndJourney(w http.ResponseWriter, r *http.Request) {
	eng, err := h.engineFor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Completed bool   `json:"completed"`
		ExitPoint string `json:"exit_point"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.NewBadRequestError("malformed request body"))
		return
	}
	eng.Journeys.EndJourney(req.Completed, req.ExitPoint)
	if h.metrics != nil {
		h.metrics.RecordJourneySealed(eng.TenantID, req.Completed)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ended"})
}

// CurrentJourney returns the active journey, 404 when none
func (h *Handlers) CurrentJourney(w http.ResponseWriter, r *http.Request) {
	eng, err := h.engineFor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	j := eng.Journeys.CurrentJourney()
	if j == nil {
		writeError(w, apperrors.New(apperrors.CodeJourneyNotFound, "No active journey", ""))
		return
	}
	writeJSON(w, http.StatusOK, j)
}

// JourneyHistory returns the sealed journeys, oldest first
func (h *Handlers) JourneyHistory(w http.ResponseWriter, r *http.Request) {
	eng, err := h.engineFor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, eng.Journeys.History())
}

// AnalyzeJourneys returns aggregate journey statistics
func (h *Handlers) AnalyzeJourneys(w http.ResponseWriter, r *http.Request) {
	eng, err := h.engineFor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, eng.Journeys.AnalyzeJourneys())
}

// AnalyzeFunnel computes a drop-off report for the posted stages
func (h *Handlers) AnalyzeFunnel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Stages []funneldomain.Stage `json:"stages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.NewBadRequestError("malformed request body"))
		return
	}
	if len(req.Stages) < 2 {
		writeError(w, apperrors.NewValidationError("a funnel needs at least two stages"))
		return
	}
	writeJSON(w, http.StatusOK, h.funnels.Analyze(req.Stages))
}

// CompareFunnels diffs a baseline funnel against a current one
func (h *Handlers) CompareFunnels(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Baseline []funneldomain.Stage `json:"baseline"`
		Current  []funneldomain.Stage `json:"current"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.NewBadRequestError("malformed request body"))
		return
	}
	if len(req.Baseline) < 2 || len(req.Current) < 2 {
		writeError(w, apperrors.NewValidationError("both funnels need at least two stages"))
		return
	}
	baseline := h.funnels.Analyze(req.Baseline)
	current := h.funnels.Analyze(req.Current)
	writeJSON(w, http.StatusOK, h.funnels.Compare(baseline, current))
}

// criteriaSpec is the wire form of a cohort criteria definition
type criteriaSpec struct {
	Type           string      `json:"type"` // signup_date, property, behavior
	Start          time.Time   `json:"start"`
	End            time.Time   `json:"end"`
	Key            string      `json:"key"`
	Op             string      `json:"op"`
	Value          interface{} `json:"value"`
	Path           string      `json:"path"`
	MinOccurrences int         `json:"min_occurrences"`
}

func (spec criteriaSpec) toCriteria() (cohortdomain.Criteria, error) {
	switch spec.Type {
	case "signup_date":
		if spec.Start.IsZero() || spec.End.IsZero() {
			return nil, apperrors.NewValidationError("signup_date criteria requires start and end")
		}
		return cohortdomain.SignupDateCriteria{Start: spec.Start, End: spec.End}, nil
	case "property":
		if spec.Key == "" || spec.Op == "" {
			return nil, apperrors.NewValidationError("property criteria requires key and op")
		}
		return cohortdomain.PropertyCriteria{
			Key:   spec.Key,
			Op:    cohortdomain.Operator(spec.Op),
			Value: spec.Value,
		}, nil
	case "behavior":
		if spec.Path == "" || spec.MinOccurrences < 1 {
			return nil, apperrors.NewValidationError("behavior criteria requires path and min_occurrences")
		}
		return cohortdomain.BehaviorCriteria{
			Path:           spec.Path,
			MinOccurrences: spec.MinOccurrences,
		}, nil
	default:
		return nil, apperrors.NewValidationError("unknown criteria type " + spec.Type)
	}
}

// cohortView is the JSON shape of a cohort; membership stays behind methods
// on the domain type so it is flattened here
type cohortView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Criteria  string    `json:"criteria"`
	Size      int       `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

func toCohortView(c *cohortdomain.Cohort) cohortView {
	return cohortView{
		ID:        c.ID,
		Name:      c.Name,
		Criteria:  c.Criteria.Describe(),
		Size:      c.Size(),
		CreatedAt: c.CreatedAt,
	}
}

// CreateCohort defines a new cohort
func (h *Handlers) CreateCohort(w http.ResponseWriter, r *http.Request) {
	eng, err := h.engineFor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		ID       string       `json:"id"`
		Name     string       `json:"name"`
		Criteria criteriaSpec `json:"criteria"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		writeError(w, apperrors.NewValidationError("id is required"))
		return
	}
	criteria, err := req.Criteria.toCriteria()
	if err != nil {
		writeError(w, err)
		return
	}
	c, err := eng.Cohorts.CreateCohort(req.ID, req.Name, criteria)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCohortView(c))
}

// GetCohort returns a cohort definition and size
func (h *Handlers) GetCohort(w http.ResponseWriter, r *http.Request) {
	eng, err := h.engineFor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	c, err := eng.Cohorts.GetCohort(chi.URLParam(r, "cohortID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCohortView(c))
}

// AddCohortUser adds a member explicitly
func (h *Handlers) AddCohortUser(w http.ResponseWriter, r *http.Request) {
	eng, err := h.engineFor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, apperrors.NewValidationError("user_id is required"))
		return
	}
	if err := eng.Cohorts.AddUser(chi.URLParam(r, "cohortID"), req.UserID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "added"})
}

// AutoAssignCohort matches the posted profiles against the cohort's criteria
func (h *Handlers) AutoAssignCohort(w http.ResponseWriter, r *http.Request) {
	eng, err := h.engineFor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Profiles []cohortdomain.UserProfile `json:"profiles"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.NewBadRequestError("malformed request body"))
		return
	}
	added, err := eng.Cohorts.AutoAssignUsers(chi.URLParam(r, "cohortID"), req.Profiles)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"added": added})
}

// CohortMetrics computes a cohort's behavior metrics over a window
func (h *Handlers) CohortMetrics(w http.ResponseWriter, r *http.Request) {
	eng, err := h.engineFor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	window := parseWindow(r, defaultMetricsWindow)
	metrics, err := eng.Cohorts.CalculateMetrics(chi.URLParam(r, "cohortID"), window)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

// CompareCohorts diffs two cohorts' metrics
func (h *Handlers) CompareCohorts(w http.ResponseWriter, r *http.Request) {
	eng, err := h.engineFor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	aID := r.URL.Query().Get("a")
	bID := r.URL.Query().Get("b")
	if aID == "" || bID == "" {
		writeError(w, apperrors.NewValidationError("query parameters a and b are required"))
		return
	}
	comparison, err := eng.Cohorts.CompareCohorts(aID, bID, parseWindow(r, defaultMetricsWindow))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, comparison)
}

// CreateABTest registers a test definition
func (h *Handlers) CreateABTest(w http.ResponseWriter, r *http.Request) {
	eng, err := h.engineFor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var test abtest.Test
	if err := json.NewDecoder(r.Body).Decode(&test); err != nil {
		writeError(w, apperrors.NewBadRequestError("malformed request body"))
		return
	}
	if err := eng.ABTests.CreateTest(r.Context(), test); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "created", "test_id": test.ID})
}

// AssignVariant picks the caller's variant for a test
func (h *Handlers) AssignVariant(w http.ResponseWriter, r *http.Request) {
	eng, err := h.engineFor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.NewBadRequestError("malformed request body"))
		return
	}
	variant, err := eng.ABTests.AssignVariant(r.Context(), chi.URLParam(r, "testID"), req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, variant)
}

// RecordImpression counts a variant exposure
func (h *Handlers) RecordImpression(w http.ResponseWriter, r *http.Request) {
	h.recordCount(w, r, func(eng *engine.Engine, testID, variantID string) error {
		return eng.ABTests.RecordImpression(r.Context(), testID, variantID)
	})
}

// RecordConversion counts a variant conversion
func (h *Handlers) RecordConversion(w http.ResponseWriter, r *http.Request) {
	h.recordCount(w, r, func(eng *engine.Engine, testID, variantID string) error {
		return eng.ABTests.RecordConversion(r.Context(), testID, variantID)
	})
}

func (h *Handlers) recordCount(w http.ResponseWriter, r *http.Request, record func(*engine.Engine, string, string) error) {
	eng, err := h.engineFor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		VariantID string `json:"variant_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.VariantID == "" {
		writeError(w, apperrors.NewValidationError("variant_id is required"))
		return
	}
	if err := record(eng, chi.URLParam(r, "testID"), req.VariantID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}

// ABTestResults computes significance for a test
func (h *Handlers) ABTestResults(w http.ResponseWriter, r *http.Request) {
	eng, err := h.engineFor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := eng.ABTests.CompareVariants(r.Context(), chi.URLParam(r, "testID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// SampleSize returns the per-variant sample size for an experiment design
func (h *Handlers) SampleSize(w http.ResponseWriter, r *http.Request) {
	eng, err := h.engineFor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	q := r.URL.Query()
	baseline, err1 := strconv.ParseFloat(q.Get("baseline_rate"), 64)
	mde, err2 := strconv.ParseFloat(q.Get("mde"), 64)
	if err1 != nil || err2 != nil {
		writeError(w, apperrors.NewValidationError("baseline_rate and mde are required numbers"))
		return
	}
	confidence, _ := strconv.ParseFloat(q.Get("confidence"), 64)
	power, _ := strconv.ParseFloat(q.Get("power"), 64)

	size := eng.ABTests.MinimumSampleSize(baseline, mde, confidence, power)
	writeJSON(w, http.StatusOK, map[string]int64{"sample_size": size})
}

// RecordVital accepts one web-vitals measurement
func (h *Handlers) RecordVital(w http.ResponseWriter, r *http.Request) {
	eng, err := h.engineFor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Metric    string    `json:"metric"`
		Value     float64   `json:"value"`
		Page      string    `json:"page"`
		Timestamp time.Time `json:"timestamp"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Metric == "" {
		writeError(w, apperrors.NewValidationError("metric is required"))
		return
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now()
	}
	m := eng.Vitals.Record(req.Metric, req.Page, req.Value, req.Timestamp)
	writeJSON(w, http.StatusAccepted, m)
}

// VitalsSummary aggregates the tenant's recorded vitals
func (h *Handlers) VitalsSummary(w http.ResponseWriter, r *http.Request) {
	eng, err := h.engineFor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, eng.Vitals.Summarize())
}

// LiveFrictionEvents returns the in-memory session event log
func (h *Handlers) LiveFrictionEvents(w http.ResponseWriter, r *http.Request) {
	eng, err := h.engineFor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, eng.Friction.Events())
}

// FrictionArchive lists archived friction events
func (h *Handlers) FrictionArchive(w http.ResponseWriter, r *http.Request) {
	eng, err := h.engineFor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if h.frictionRepo == nil {
		writeError(w, apperrors.NewNotFoundError("friction archive"))
		return
	}
	since := parseSince(r, 24*time.Hour)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := h.frictionRepo.ListEvents(r.Context(), eng.TenantID, since, limit)
	if err != nil {
		writeError(w, apperrors.NewStorageError("list friction events", err))
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// FrictionCounts aggregates archived friction events by type
func (h *Handlers) FrictionCounts(w http.ResponseWriter, r *http.Request) {
	eng, err := h.engineFor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if h.frictionRepo == nil {
		writeError(w, apperrors.NewNotFoundError("friction archive"))
		return
	}
	counts, err := h.frictionRepo.CountByType(r.Context(), eng.TenantID, parseSince(r, 24*time.Hour))
	if err != nil {
		writeError(w, apperrors.NewStorageError("count friction events", err))
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// TrackFeatureUse records a feature touch, reporting whether it was the
// user's first
func (h *Handlers) TrackFeatureUse(w http.ResponseWriter, r *http.Request) {
	eng, err := h.engineFor(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Feature string `json:"feature"`
		UserID  string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Feature == "" || req.UserID == "" {
		writeError(w, apperrors.NewValidationError("feature and user_id are required"))
		return
	}
	first := eng.Features.TrackUse(r.Context(), req.Feature, req.UserID)
	writeJSON(w, http.StatusOK, map[string]bool{"first_use": first})
}

// ServeAlerts upgrades to the websocket friction alert feed. The tenant's
// engine is resolved first so the feed exists before the first event.
func (h *Handlers) ServeAlerts(w http.ResponseWriter, r *http.Request) {
	if _, err := h.engineFor(r); err != nil {
		writeError(w, err)
		return
	}
	h.hub.ServeHTTP(w, r)
}

func parseWindow(r *http.Request, fallback time.Duration) time.Duration {
	raw := r.URL.Query().Get("window")
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func parseSince(r *http.Request, fallback time.Duration) time.Time {
	raw := r.URL.Query().Get("since")
	if raw == "" {
		return time.Now().Add(-fallback)
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Now().Add(-fallback)
	}
	return t
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	appErr := apperrors.Wrap(err, "request failed")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.StatusCode())
	json.NewEncoder(w).Encode(apperrors.ToErrorResponse(appErr, ""))
}
