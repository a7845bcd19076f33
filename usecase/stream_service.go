package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/segstream/adapters/capture"
	"github.com/satriahrh/segstream/domain/entities"
	"github.com/satriahrh/segstream/domain/repositories"
	"github.com/satriahrh/segstream/internal/config"
	"github.com/satriahrh/segstream/internal/session"
)

const renderQueueSize = 8

// StreamOptions bound a streaming run; zero values mean unbounded
type StreamOptions struct {
	Frames   int64
	Duration time.Duration
}

// StreamService drives a streaming session from capture to rendered overlay
type StreamService struct {
	cfg       *config.Config
	transport repositories.Transport
	source    repositories.CaptureSource
	sink      repositories.ResultSink
	logger    *zap.Logger
}

// NewStreamService creates a new stream service
func NewStreamService(
	cfg *config.Config,
	transport repositories.Transport,
	source repositories.CaptureSource,
	sink repositories.ResultSink,
	logger *zap.Logger,
) *StreamService {
	return &StreamService{
		cfg:       cfg,
		transport: transport,
		source:    source,
		sink:      sink,
		logger:    logger,
	}
}

// NewCaptureSource builds the capture source named by the config
func NewCaptureSource(cfg config.CaptureConfig, logger *zap.Logger) (repositories.CaptureSource, error) {
	switch cfg.Source {
	case "synthetic":
		enc, err := capture.NewEncoder(cfg.Encoding, cfg.Quality)
		if err != nil {
			return nil, err
		}
		return capture.NewSyntheticSource(cfg.Width, cfg.Height, enc, logger)
	case "directory":
		return capture.NewDirectorySource(cfg.Dir, cfg.Loop, logger)
	default:
		return nil, fmt.Errorf("unknown capture source %q", cfg.Source)
	}
}

// run is one session plus the goroutines feeding results to the sink
type run struct {
	session   *session.Session
	results   chan entities.FrameResult
	malformed chan error
	lost      chan struct{}
	renders   chan entities.FrameResult
	count     atomic.Int64
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func (s *StreamService) begin(ctx context.Context) (*run, error) {
	r := &run{
		results:   make(chan entities.FrameResult, 1),
		malformed: make(chan error, 1),
		lost:      make(chan struct{}, 1),
		renders:   make(chan entities.FrameResult, renderQueueSize),
	}

	var wasOpen bool
	handler := session.Handler{
		OnResult: func(result entities.FrameResult) {
			r.count.Add(1)
			select {
			case r.renders <- result:
			default:
				s.logger.Warn("Render queue full, dropping overlay", zap.Int64("frameNumber", result.SequenceNumber))
			}
			select {
			case r.results <- result:
			default:
			}
		},
		OnMalformed: func(err error) {
			select {
			case r.malformed <- err:
			default:
			}
		},
		OnStatus: func(status entities.Status) {
			if status.Connection == entities.ConnectionOpen {
				wasOpen = true
			}
			if wasOpen && status.Connection.IsTerminal() {
				select {
				case r.lost <- struct{}{}:
				default:
				}
			}
		},
	}

	r.session = session.New(session.Config{
		Endpoint:             s.cfg.Endpoint,
		RequestTimeout:       s.cfg.RequestTimeout,
		CaptureRetryInterval: s.cfg.CaptureRetryInterval,
		CaptureTimeout:       s.cfg.Capture.Timeout,
	}, s.transport, s.source, handler, s.logger)

	runCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	r.wg.Add(2)
	go func() {
		defer r.wg.Done()
		if err := r.session.Run(runCtx); err != nil {
			s.logger.Error("Session loop failed", zap.Error(err))
		}
	}()
	go func() {
		defer r.wg.Done()
		s.renderLoop(runCtx, r.renders)
	}()

	if err := r.session.Connect(ctx); err != nil {
		r.end()
		return nil, err
	}
	return r, nil
}

func (s *StreamService) renderLoop(ctx context.Context, results <-chan entities.FrameResult) {
	for {
		select {
		case <-ctx.Done():
			// the loop has stopped; render whatever it queued last
			for {
				select {
				case result := <-results:
					s.render(result)
				default:
					return
				}
			}
		case result := <-results:
			s.render(result)
		}
	}
}

func (s *StreamService) render(result entities.FrameResult) {
	if err := s.sink.Render(result); err != nil {
		s.logger.Warn("Failed to render result",
			zap.Int64("frameNumber", result.SequenceNumber),
			zap.Error(err))
	}
}

// end stops the session loop, which also closes the transport
func (r *run) end() {
	r.cancel()
	r.wg.Wait()
}

func (s *StreamService) drainTimeout() time.Duration {
	if s.cfg.RequestTimeout > 0 {
		return s.cfg.RequestTimeout + time.Second
	}
	return 30 * time.Second
}

// finish stops streaming and waits for the in-flight result
func (s *StreamService) finish(r *run) entities.Status {
	ctx, cancel := context.WithTimeout(context.Background(), s.drainTimeout())
	defer cancel()

	if err := r.session.Stop(ctx); err != nil {
		s.logger.Warn("Failed to stop streaming", zap.Error(err))
	}
	if err := r.session.Drain(ctx); err != nil {
		s.logger.Warn("In-flight frame did not drain", zap.Error(err))
	}

	status := r.session.Status()
	r.end()
	return status
}

// Stream connects, streams until ctx ends, a limit is hit or the connection
// drops, then drains and reports the final status
func (s *StreamService) Stream(ctx context.Context, opts StreamOptions) (entities.Status, error) {
	r, err := s.begin(ctx)
	if err != nil {
		return entities.Status{}, err
	}

	if err := r.session.Start(ctx); err != nil {
		status := s.finish(r)
		return status, fmt.Errorf("start streaming: %w", err)
	}
	s.logger.Info("Streaming frames",
		zap.String("endpoint", s.cfg.Endpoint),
		zap.Int64("frames", opts.Frames),
		zap.Duration("duration", opts.Duration))

	var deadline <-chan time.Time
	if opts.Duration > 0 {
		timer := time.NewTimer(opts.Duration)
		defer timer.Stop()
		deadline = timer.C
	}

	var streamErr error
wait:
	for {
		select {
		case <-ctx.Done():
			break wait
		case <-deadline:
			break wait
		case <-r.lost:
			streamErr = fmt.Errorf("%w: connection lost while streaming", entities.ErrTransportFailure)
			break wait
		case <-r.results:
			if opts.Frames > 0 && r.count.Load() >= opts.Frames {
				break wait
			}
		}
	}

	status := s.finish(r)
	if streamErr != nil && status.LastError != "" {
		streamErr = fmt.Errorf("%w: %s", streamErr, status.LastError)
	}
	s.logger.Info("Streaming finished",
		zap.Int64("framesSent", status.Metrics.FramesSent),
		zap.Int64("resultsReceived", status.Metrics.ResultsReceived),
		zap.Float64("fps", status.Metrics.EffectiveFPS))
	return status, streamErr
}

// Snap captures, sends and renders exactly one frame
func (s *StreamService) Snap(ctx context.Context) (entities.FrameResult, error) {
	r, err := s.begin(ctx)
	if err != nil {
		return entities.FrameResult{}, err
	}
	defer r.end()

	if err := r.session.SingleShot(ctx); err != nil {
		return entities.FrameResult{}, fmt.Errorf("single shot: %w", err)
	}

	timeout := time.NewTimer(s.drainTimeout())
	defer timeout.Stop()

	select {
	case result := <-r.results:
		if !result.Success {
			return result, fmt.Errorf("service error: %s", result.Error)
		}
		return result, nil
	case err := <-r.malformed:
		return entities.FrameResult{}, fmt.Errorf("single shot: %w", err)
	case <-r.lost:
		return entities.FrameResult{}, s.snapFailure(r, "connection lost before the result arrived")
	case <-timeout.C:
		return entities.FrameResult{}, s.snapFailure(r, "no result")
	case <-ctx.Done():
		return entities.FrameResult{}, ctx.Err()
	}
}

func (s *StreamService) snapFailure(r *run, reason string) error {
	status := r.session.Status()
	if status.LastError != "" {
		return fmt.Errorf("%w: %s: %s", entities.ErrTransportFailure, reason, status.LastError)
	}
	return fmt.Errorf("%w: %s", entities.ErrTransportFailure, reason)
}

// IsConnectivity reports whether err came from the connection rather than the frame
func IsConnectivity(err error) bool {
	return errors.Is(err, entities.ErrNotConnected) || errors.Is(err, entities.ErrTransportFailure)
}
