package attendance

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/warp/attendance-engine/logger"
)

// API ids reported in logs and response envelopes.
const (
	APISearch = "api.post.searchAttendance"
	APIMark   = "api.post.createAttendanceRecord"
	APIBulk   = "api.post.bulkAttendance"
)

// Publisher receives successful write outcomes.
type Publisher interface {
	PublishOutcome(ctx context.Context, actor string, o Outcome) error
}

// ServiceConfig wires a Service. Only Store is required.
type ServiceConfig struct {
	Store       Store
	Locker      KeyLocker
	Publisher   Publisher
	Logger      *logger.Logger
	Concurrency int
}

// Service is the entry point used by transports: validation at the edge,
// the engine in the middle, events and logs on the way out.
type Service struct {
	store      Store
	reconciler *Reconciler
	publisher  Publisher
	log        *logger.Logger
	tracer     trace.Tracer
}

func NewService(cfg ServiceConfig) *Service {
	locker := cfg.Locker
	if locker == nil {
		locker = NewMemoryLocker()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultBatchConcurrency
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		store: cfg.Store,
		reconciler: &Reconciler{
			Store:       cfg.Store,
			Locker:      locker,
			Check:       ValidateEntry,
			Concurrency: concurrency,
		},
		publisher: cfg.Publisher,
		log:       log,
		tracer:    otel.Tracer("github.com/warp/attendance-engine/attendance"),
	}
}

// Search runs the query path for a tenant.
func (s *Service) Search(ctx context.Context, tenantID string, req SearchRequest) (SearchResult, error) {
	ctx, span := s.tracer.Start(ctx, "attendance.search", trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.Bool("faceted", req.Faceted()),
	))
	defer span.End()

	log := s.log.With("apiId", APISearch, "tenantId", tenantID)

	if err := ValidateSearch(req); err != nil {
		log.Warn("invalid search request", "error", err)
		return SearchResult{}, fail(span, err)
	}
	result, err := Search(ctx, s.store, RecordSchema, tenantID, req)
	if err != nil {
		if IsClientError(err) {
			log.Warn("search rejected", "error", err.Error())
		} else {
			log.Error("search failed", "error", err)
		}
		return SearchResult{}, fail(span, err)
	}
	log.Info("Attendance List Fetched Successfully",
		"records", len(result.AttendanceList), "facets", len(result.Facets))
	return result, nil
}

// Mark creates or updates a single entry.
func (s *Service) Mark(ctx context.Context, actor string, e Entry) (Outcome, error) {
	ctx, span := s.tracer.Start(ctx, "attendance.mark", trace.WithAttributes(
		attribute.String("tenant.id", e.TenantID),
	))
	defer span.End()

	log := s.log.With("apiId", APIMark, "tenantId", e.TenantID, "actor", actor)

	o, err := s.reconciler.Resolve(ctx, actor, e)
	if err != nil {
		if IsClientError(err) {
			log.Warn("attendance rejected", "error", err.Error())
		} else {
			log.Error("attendance write failed", "error", err)
		}
		return Outcome{}, fail(span, err)
	}
	span.SetAttributes(attribute.String("outcome", string(o.Kind)))
	log.Info("Attendance "+string(o.Kind)+" successfully", "attendanceId", o.Record.AttendanceID)
	s.publish(ctx, log, actor, o)
	return o, nil
}

// MarkBulk resolves a batch. The error is non-nil for an invalid envelope
// and for a batch in which every item failed (*BulkFailedError, which still
// carries the full outcome).
func (s *Service) MarkBulk(ctx context.Context, tenantID, actor string, req BulkRequest) (BatchOutcome, error) {
	ctx, span := s.tracer.Start(ctx, "attendance.mark_bulk", trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.Int("items", len(req.UserAttendance)),
	))
	defer span.End()

	log := s.log.With("apiId", APIBulk, "tenantId", tenantID, "actor", actor)

	if err := ValidateBulk(req); err != nil {
		log.Warn("bulk request rejected", "error", err.Error())
		return BatchOutcome{}, fail(span, err)
	}

	out := s.reconciler.ResolveBatch(ctx, actor, req.Entries(tenantID))
	span.SetAttributes(
		attribute.Int("succeeded", out.Count),
		attribute.Int("failed", len(out.Errors)),
	)
	for _, o := range out.Outcomes {
		s.publish(ctx, log, actor, o)
	}

	switch {
	case out.Failed():
		err := &BulkFailedError{Outcome: out}
		log.Error("bulk attendance failed", "error", err.Error(), "errors", len(out.Errors))
		return out, fail(span, err)
	case out.Partial():
		log.Warn("Bulk Attendance Processed with some errors", "count", out.Count, "errors", len(out.Errors))
	default:
		log.Info("Bulk Attendance Updated successfully", "count", out.Count)
	}
	return out, nil
}

func (s *Service) publish(ctx context.Context, log *logger.Logger, actor string, o Outcome) {
	if s.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.publisher.PublishOutcome(pubCtx, actor, o); err != nil {
		log.Warn("event publish failed", "attendanceId", o.Record.AttendanceID, "error", err)
	}
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
