package gridpath

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

// ErrServiceClosed is reported by requests issued to, or interrupted by, a
// closed Service.
var ErrServiceClosed = errors.New("gridpath: service closed")

// ServiceOptions configures a Service.
type ServiceOptions struct {
	Logger                *slog.Logger
	Tracer                trace.Tracer
	MaxConcurrentSearches int
	SearchOptions         []Option
}

// ServiceOption is a function that modifies ServiceOptions.
type ServiceOption func(*ServiceOptions)

// WithLogger sets the structured logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(options *ServiceOptions) { options.Logger = logger }
}

// WithTracer sets the tracer used for search and regeneration spans.
func WithTracer(tracer trace.Tracer) ServiceOption {
	return func(options *ServiceOptions) { options.Tracer = tracer }
}

// WithMaxConcurrentSearches bounds how many searches run at once. Zero or less
// means runtime.NumCPU(), which is also the default.
func WithMaxConcurrentSearches(limit int) ServiceOption {
	return func(options *ServiceOptions) { options.MaxConcurrentSearches = limit }
}

// WithSearchOptions sets the options every search runs with.
func WithSearchOptions(searchOptions ...Option) ServiceOption {
	return func(options *ServiceOptions) { options.SearchOptions = searchOptions }
}

type publishedGrid struct {
	grid    *Grid
	version uint64
}

// Service answers path requests against the most recently published Grid.
// Requests run in the background; each one keeps the grid it was issued
// against even if a regeneration publishes a new grid meanwhile.
type Service struct {
	options ServiceOptions
	logger  *slog.Logger
	tracer  trace.Tracer
	slots   *semaphore.Weighted

	current atomic.Pointer[publishedGrid]
	version atomic.Uint64
	regenMu sync.Mutex

	lifetime context.Context
	shutdown context.CancelFunc
	mu       sync.Mutex
	closed   bool
	inFlight sync.WaitGroup

	// beforeSearch runs on the worker goroutine right before a search starts.
	beforeSearch func(*PathRequest)
}

// NewService builds the initial grid from cfg and publishes it.
func NewService(cfg GridConfig, options ...ServiceOption) (*Service, error) {
	grid, err := Build(cfg)
	if err != nil {
		return nil, err
	}
	return NewServiceFromGrid(grid, options...)
}

// NewServiceFromGrid publishes an already built grid.
func NewServiceFromGrid(grid *Grid, options ...ServiceOption) (*Service, error) {
	if grid == nil {
		return nil, ErrNilGrid
	}
	var serviceOptions ServiceOptions
	for _, option := range options {
		option(&serviceOptions)
	}
	if serviceOptions.Logger == nil {
		serviceOptions.Logger = slog.Default()
	}
	if serviceOptions.Tracer == nil {
		serviceOptions.Tracer = otel.Tracer(tracerName)
	}
	if serviceOptions.MaxConcurrentSearches <= 0 {
		serviceOptions.MaxConcurrentSearches = runtime.NumCPU()
	}

	lifetime, shutdown := context.WithCancel(context.Background())
	s := &Service{
		options:  serviceOptions,
		logger:   serviceOptions.Logger,
		tracer:   serviceOptions.Tracer,
		slots:    semaphore.NewWeighted(int64(serviceOptions.MaxConcurrentSearches)),
		lifetime: lifetime,
		shutdown: shutdown,
	}
	s.publish(grid)
	return s, nil
}

// Grid returns the currently published grid.
func (s *Service) Grid() *Grid { return s.current.Load().grid }

// GridVersion returns the version of the currently published grid. The first
// grid is version 1.
func (s *Service) GridVersion() uint64 { return s.current.Load().version }

func (s *Service) publish(grid *Grid) uint64 {
	version := s.version.Add(1)
	s.current.Store(&publishedGrid{grid: grid, version: version})
	observeGrid(grid)
	return version
}

// track registers background work unless the service is closed.
func (s *Service) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.inFlight.Add(1)
	return true
}

// RequestPath starts a search in the background and returns immediately.
// Cancelling ctx does not stop the search; ctx only contributes values such as
// the trace parent. Close does stop it.
func (s *Service) RequestPath(ctx context.Context, start, target Vec3) *PathRequest {
	published := s.current.Load()
	request := newPathRequest(start, target, published.version)
	if !s.track() {
		pathRequestsTotal.WithLabelValues(resultError).Inc()
		request.complete(Result{}, ErrServiceClosed)
		return request
	}

	taskCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	task := searchTask{
		ctx:     taskCtx,
		cancel:  cancel,
		stop:    context.AfterFunc(s.lifetime, cancel),
		request: request,
		grid:    published.grid,
	}
	go s.run(task)
	return request
}

// FindPath requests a path and waits for it.
func (s *Service) FindPath(ctx context.Context, start, target Vec3) (Result, error) {
	return s.RequestPath(ctx, start, target).Wait(ctx)
}

func (s *Service) run(task searchTask) {
	defer s.inFlight.Done()
	defer task.cancel()
	defer task.stop()

	request := task.request
	if err := s.slots.Acquire(task.ctx, 1); err != nil {
		pathRequestsTotal.WithLabelValues(resultError).Inc()
		request.complete(Result{}, s.closedOr(err))
		return
	}
	defer s.slots.Release(1)
	searchesInFlight.Inc()
	defer searchesInFlight.Dec()

	if s.beforeSearch != nil {
		s.beforeSearch(request)
	}

	ctx, span := s.tracer.Start(task.ctx, "gridpath.Service.FindPath",
		trace.WithAttributes(
			attribute.String("request_id", request.ID.String()),
			attribute.Int64("grid_version", int64(request.GridVersion)),
		),
	)
	defer span.End()

	result, err := FindPath(ctx, task.grid, request.Start, request.Target, s.options.SearchOptions...)
	if err != nil {
		err = s.closedOr(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "search aborted")
		pathRequestsTotal.WithLabelValues(resultError).Inc()
		s.logger.Warn("path_search_aborted",
			slog.String("request_id", request.ID.String()),
			slog.String("error", err.Error()),
		)
		request.complete(result, err)
		return
	}

	searchDuration.Observe(result.Duration.Seconds())
	searchExpandedNodes.Observe(float64(result.ExpandedNodes))
	span.SetAttributes(
		attribute.Bool("found", result.Found),
		attribute.Int("waypoints", len(result.Waypoints)),
		attribute.Int("expanded_nodes", result.ExpandedNodes),
	)
	if result.Found {
		pathRequestsTotal.WithLabelValues(resultFound).Inc()
		s.logger.Debug("path_found",
			slog.String("request_id", request.ID.String()),
			slog.Int("waypoints", len(result.Waypoints)),
			slog.Int("cost", result.TotalCost),
			slog.Int("expanded", result.ExpandedNodes),
			slog.Duration("duration", result.Duration),
		)
	} else {
		pathRequestsTotal.WithLabelValues(resultNotFound).Inc()
		s.logger.Debug("path_not_found",
			slog.String("request_id", request.ID.String()),
			slog.Bool("truncated", result.Truncated),
			slog.Int("expanded", result.ExpandedNodes),
		)
	}
	request.complete(result, nil)
}

func (s *Service) closedOr(err error) error {
	if s.lifetime.Err() != nil {
		return ErrServiceClosed
	}
	return err
}

// SnapToGrid returns the world position of the published grid's node nearest p.
func (s *Service) SnapToGrid(p Vec3) Vec3 {
	return s.Grid().WorldToNode(p).World
}

// RegenerateGrid builds a new grid from cfg in the background and publishes it
// once it is complete. Requests already issued keep their grid. A failed build
// leaves the current grid published. Regenerations are serialized; one whose
// ctx has ended, or whose service was closed, before its build starts is skipped.
func (s *Service) RegenerateGrid(ctx context.Context, cfg GridConfig) *Regeneration {
	regeneration := &Regeneration{done: make(chan struct{})}
	if !s.track() {
		gridRegenerationsTotal.WithLabelValues(resultError).Inc()
		regeneration.complete(nil, 0, ErrServiceClosed)
		return regeneration
	}

	go func() {
		defer s.inFlight.Done()
		s.regenMu.Lock()
		defer s.regenMu.Unlock()

		if err := ctx.Err(); err != nil {
			gridRegenerationsTotal.WithLabelValues(resultError).Inc()
			regeneration.complete(nil, 0, err)
			return
		}
		if s.lifetime.Err() != nil {
			gridRegenerationsTotal.WithLabelValues(resultError).Inc()
			regeneration.complete(nil, 0, ErrServiceClosed)
			return
		}

		_, span := s.tracer.Start(context.WithoutCancel(ctx), "gridpath.Service.RegenerateGrid")
		defer span.End()

		began := time.Now()
		grid, err := Build(cfg)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "grid build failed")
			gridRegenerationsTotal.WithLabelValues(resultError).Inc()
			s.logger.Error("grid_regeneration_failed", slog.String("error", err.Error()))
			regeneration.complete(nil, 0, err)
			return
		}

		version := s.publish(grid)
		gridRegenerationsTotal.WithLabelValues("published").Inc()
		span.SetAttributes(
			attribute.Int64("grid_version", int64(version)),
			attribute.Int("width", grid.Width()),
			attribute.Int("height", grid.Height()),
		)
		s.logger.Info("grid_published",
			slog.Uint64("version", version),
			slog.Int("width", grid.Width()),
			slog.Int("height", grid.Height()),
			slog.Int("walkable", grid.WalkableCount()),
			slog.Duration("duration", time.Since(began)),
		)
		regeneration.complete(grid, version, nil)
	}()
	return regeneration
}

// Close stops accepting work, interrupts running searches and waits for all
// background work to finish. Close is idempotent.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.shutdown()
	s.inFlight.Wait()
}
