// Package session orchestrates streaming against the flow controller.
//
// All mutable state lives in one loop goroutine (Run). User actions,
// transport callbacks and timers reach it only as events, so no state is
// shared between goroutines except the published Status snapshot.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satriahrh/segstream/domain/entities"
	"github.com/satriahrh/segstream/domain/repositories"
	"github.com/satriahrh/segstream/internal/flow"
	"github.com/satriahrh/segstream/internal/websocket"
)

const eventBufferSize = 64

// Config tunes a session
type Config struct {
	Endpoint string
	// RequestTimeout bounds the wait for one result; zero waits forever
	RequestTimeout time.Duration
	// CaptureRetryInterval re-attempts a failed capture while streaming; zero disables
	CaptureRetryInterval time.Duration
	// CaptureTimeout bounds one snapshot; zero means no bound
	CaptureTimeout time.Duration
}

// Handler observes a session. Callbacks run on the session loop and must not block.
type Handler struct {
	OnResult func(result entities.FrameResult)
	// OnMalformed reports a reply that could not be parsed; the gate is already clear
	OnMalformed func(err error)
	OnStatus    func(status entities.Status)
}

// Session composes a capture source, a transport and a flow controller
type Session struct {
	id         string
	cfg        Config
	transport  repositories.Transport
	controller *flow.Controller
	validator  *websocket.MessageValidator
	handler    Handler
	logger     *zap.Logger
	now        func() time.Time

	events  chan event
	stopped chan struct{}
	started atomic.Bool

	// Owned by the loop goroutine.
	ctx          context.Context
	mode         entities.StreamingMode
	conn         entities.ConnectionState
	draining     bool
	message      string
	lastErr      string
	lastResult   *entities.FrameResult
	metrics      metricsTracker
	seq          uint64
	retrySeq     uint64
	requestTimer *time.Timer
	retryTimer   *time.Timer
	drainWaiters []chan error

	statusMu sync.RWMutex
	status   entities.Status

	// closing is done once an abandoned connection has been released
	closeMu sync.Mutex
	closing chan struct{}
}

// New creates an idle session. Call Run before any other method returns.
func New(cfg Config, transport repositories.Transport, source repositories.CaptureSource, handler Handler, logger *zap.Logger) *Session {
	id := uuid.NewString()
	logger = logger.With(zap.String("sessionID", id))

	s := &Session{
		id:        id,
		cfg:       cfg,
		transport: transport,
		validator: websocket.NewMessageValidator(),
		handler:   handler,
		logger:    logger,
		now:       time.Now,
		events:    make(chan event, eventBufferSize),
		stopped:   make(chan struct{}),
		ctx:       context.Background(),
		mode:      entities.ModeIdle,
		conn:      transport.State(),
		message:   "idle",
	}
	s.controller = flow.NewController(transport, source, websocket.EncodeFrameRequest, logger)
	s.status = s.buildStatus()
	return s
}

// ID returns the session identifier used in logs
func (s *Session) ID() string {
	return s.id
}

// Status returns the latest published status
func (s *Session) Status() entities.Status {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status
}

// Run processes events until ctx is cancelled. The transport is closed on
// every exit path.
func (s *Session) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("session is already running")
	}
	s.ctx = ctx
	defer s.release()

	s.logger.Info("Streaming session started", zap.String("endpoint", s.cfg.Endpoint))
	s.publish()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-s.events:
			s.dispatch(ev)
		}
	}
}

func (s *Session) release() {
	close(s.stopped)
	s.stopRequestTimer()
	s.stopRetry()
	s.resolveDrainWaiters(entities.ErrSessionClosed)

	if err := s.transport.Close(); err != nil {
		s.logger.Error("Failed to close transport", zap.Error(err))
	}
	s.logger.Info("Streaming session ended")
}

// Connect opens the transport to the configured endpoint once any abandoned
// connection has been released
func (s *Session) Connect(ctx context.Context) error {
	select {
	case <-s.stopped:
		return entities.ErrSessionClosed
	default:
	}

	s.closeMu.Lock()
	closing := s.closing
	s.closeMu.Unlock()
	if closing != nil {
		select {
		case <-closing:
		case <-s.stopped:
			return entities.ErrSessionClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := s.transport.Open(ctx, s.cfg.Endpoint, s.channelHandler()); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

// Disconnect closes the transport; the session stays usable for a new Connect
func (s *Session) Disconnect() error {
	return s.transport.Close()
}

// Start enters streaming mode and sends the first frame
func (s *Session) Start(ctx context.Context) error {
	return s.request(ctx, evStart)
}

// Stop leaves streaming mode. An in-flight frame is not cancelled; its
// result still clears the gate but chains nothing.
func (s *Session) Stop(ctx context.Context) error {
	return s.request(ctx, evStop)
}

// SingleShot sends exactly one frame without chaining
func (s *Session) SingleShot(ctx context.Context) error {
	return s.request(ctx, evSingleShot)
}

// Drain blocks until no frame is in flight
func (s *Session) Drain(ctx context.Context) error {
	return s.request(ctx, evDrain)
}

func (s *Session) request(ctx context.Context, kind eventKind) error {
	reply := make(chan error, 1)

	select {
	case s.events <- event{kind: kind, reply: reply}:
	case <-s.stopped:
		return entities.ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-reply:
		return err
	case <-s.stopped:
		return entities.ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post hands an event to the loop; it is dropped once the loop has exited
func (s *Session) post(ev event) {
	select {
	case s.events <- ev:
	case <-s.stopped:
	}
}

func (s *Session) channelHandler() repositories.ChannelHandler {
	return repositories.ChannelHandler{
		OnStateChange: func(state entities.ConnectionState) {
			s.post(event{kind: evStateChange, state: state})
		},
		OnMessage: func(payload []byte) {
			s.post(event{kind: evMessage, payload: payload})
		},
		OnClosed: func(err error) {
			s.post(event{kind: evClosed, err: err})
		},
	}
}

func (s *Session) dispatch(ev event) {
	var err error

	switch ev.kind {
	case evStart:
		err = s.handleStart()
	case evStop:
		err = s.handleStop()
	case evSingleShot:
		err = s.handleSingleShot()
	case evDrain:
		if s.controller.InFlight() {
			s.drainWaiters = append(s.drainWaiters, ev.reply)
			return
		}
	case evStateChange:
		s.handleStateChange(ev.state)
	case evMessage:
		s.handleMessage(ev.payload)
	case evClosed:
		s.handleClosed(ev.err)
	case evRequestTimeout:
		s.handleRequestTimeout(ev.seq)
	case evCaptureRetry:
		s.handleCaptureRetry(ev.seq)
	default:
		s.logger.Warn("Unknown session event", zap.String("kind", ev.kind.String()))
	}

	s.publish()
	if ev.reply != nil {
		ev.reply <- err
	}
}

func (s *Session) handleStart() error {
	if s.conn != entities.ConnectionOpen {
		s.mode = entities.ModeIdle
		s.message = "cannot start: not connected"
		return entities.ErrNotConnected
	}

	if s.mode != entities.ModeRunning {
		s.metrics.markStart(s.now())
		s.logger.Info("Streaming started")
	}
	s.mode = entities.ModeRunning

	err := s.trySend()
	if errors.Is(err, entities.ErrNotConnected) || errors.Is(err, entities.ErrTransportFailure) {
		return err
	}
	return nil
}

func (s *Session) handleStop() error {
	if s.mode == entities.ModeRunning {
		s.logger.Info("Streaming stopped", zap.Bool("inFlight", s.controller.InFlight()))
	}
	s.mode = entities.ModeIdle
	s.stopRetry()

	if s.controller.InFlight() {
		s.message = "stopped; waiting for the in-flight result"
	} else {
		s.message = "stopped"
	}
	return nil
}

func (s *Session) handleSingleShot() error {
	if s.controller.InFlight() {
		s.message = "busy: a frame is already in flight"
		return entities.ErrBusy
	}
	if s.conn != entities.ConnectionOpen {
		s.message = "cannot capture: not connected"
		return entities.ErrNotConnected
	}

	if err := s.trySend(); err != nil {
		return err
	}
	if s.mode == entities.ModeIdle {
		s.mode = entities.ModeAwaitingSingleShot
	}
	return nil
}

// trySend asks the controller for one send and folds the outcome into status
func (s *Session) trySend() error {
	ctx := s.ctx
	if s.cfg.CaptureTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.CaptureTimeout)
		defer cancel()
	}

	err := s.controller.TryBeginSend(ctx)
	switch {
	case err == nil:
		s.metrics.frameSent()
		s.seq++
		s.armRequestTimer(s.seq)
		s.message = fmt.Sprintf("frame %d sent, awaiting result", s.metrics.m.FramesSent)

	case errors.Is(err, entities.ErrAlreadyAwaiting):
		s.message = "awaiting result"

	case errors.Is(err, entities.ErrCaptureUnavailable):
		s.metrics.m.CaptureFailures++
		s.setError("capture unavailable", err)
		s.logger.Warn("Capture failed", zap.Error(err))
		if s.mode == entities.ModeRunning {
			s.armRetryTimer()
		}

	default:
		s.mode = entities.ModeIdle
		s.stopRetry()
		s.setError("connectivity error: streaming stopped", err)
		s.logger.Warn("Send failed", zap.Error(err))
	}
	return err
}

func (s *Session) handleMessage(payload []byte) {
	if s.draining {
		s.logger.Debug("Dropping message from an abandoned connection", zap.Int("bytes", len(payload)))
		return
	}

	resolved, roundTrip := s.controller.OnResultReceived()
	if !resolved {
		s.metrics.m.UnsolicitedResults++
		s.failTransport(fmt.Errorf("%w: result received with no frame in flight", entities.ErrTransportFailure))
		return
	}
	s.stopRequestTimer()

	result, err := s.validator.ValidateFrameResponse(payload)
	if err != nil {
		s.metrics.malformed()
		s.setError("malformed result ignored", err)
		s.logger.Warn("Malformed result", zap.Error(err))
		if s.handler.OnMalformed != nil {
			s.handler.OnMalformed(err)
		}
	} else {
		result.RoundTrip = roundTrip
		result.ReceivedAt = s.now()

		if s.metrics.resultReceived(result) {
			s.logger.Warn("Result sequence did not increase", zap.Int64("frameNumber", result.SequenceNumber))
		}
		s.lastResult = &result

		if result.Success {
			s.message = fmt.Sprintf("frame #%d processed in %.3fs", result.SequenceNumber, result.ProcessingTime)
			s.logger.Debug("Result received",
				zap.Int64("frameNumber", result.SequenceNumber),
				zap.Duration("roundTrip", roundTrip))
		} else {
			s.setError("service error", errors.New(result.Error))
		}

		if s.handler.OnResult != nil {
			s.handler.OnResult(result)
		}
	}

	s.resolveDrainWaiters(nil)

	switch s.mode {
	case entities.ModeRunning:
		s.trySend()
	case entities.ModeAwaitingSingleShot:
		s.mode = entities.ModeIdle
	}
}

func (s *Session) handleStateChange(state entities.ConnectionState) {
	s.conn = state

	switch state {
	case entities.ConnectionConnecting:
		s.message = "connecting"
	case entities.ConnectionOpen:
		s.draining = false
		s.message = "connected"
	case entities.ConnectionClosed, entities.ConnectionFailed:
		s.onConnectionLost()
		if !s.draining {
			s.message = "connection " + state.String()
		}
	}
}

func (s *Session) handleClosed(err error) {
	if s.draining {
		// the failure that abandoned the connection stays in the status
		return
	}
	if err != nil {
		s.setError("connection lost: streaming stopped", err)
		return
	}
	s.message = "disconnected"
}

func (s *Session) handleRequestTimeout(seq uint64) {
	if seq != s.seq || !s.controller.InFlight() {
		return
	}
	s.metrics.m.Timeouts++
	s.failTransport(fmt.Errorf("%w: no result within %s", entities.ErrTransportFailure, s.cfg.RequestTimeout))
}

func (s *Session) handleCaptureRetry(seq uint64) {
	if seq != s.retrySeq {
		return
	}
	s.retryTimer = nil
	if s.mode != entities.ModeRunning || s.controller.InFlight() {
		return
	}
	s.trySend()
}

// onConnectionLost drops whatever was in flight; results cannot arrive any more
func (s *Session) onConnectionLost() {
	if s.controller.Reset() {
		s.logger.Warn("In-flight frame lost with the connection")
	}
	s.mode = entities.ModeIdle
	s.stopRequestTimer()
	s.stopRetry()
	s.resolveDrainWaiters(nil)
}

// failTransport ends the streaming chain and abandons the connection, so a
// late reply can never be matched to a later frame
func (s *Session) failTransport(cause error) {
	s.logger.Warn("Abandoning connection", zap.Error(cause))

	s.onConnectionLost()
	s.conn = entities.ConnectionClosed
	s.draining = true
	s.setError("transport failure: streaming stopped", cause)

	// Close reports back through post, so it cannot run on the loop.
	// Connect waits on closing before reopening.
	done := make(chan struct{})
	s.closeMu.Lock()
	s.closing = done
	s.closeMu.Unlock()

	go func() {
		defer close(done)
		if err := s.transport.Close(); err != nil {
			s.logger.Error("Failed to close transport", zap.Error(err))
		}
	}()
}

func (s *Session) armRequestTimer(seq uint64) {
	s.stopRequestTimer()
	if s.cfg.RequestTimeout <= 0 {
		return
	}
	s.requestTimer = time.AfterFunc(s.cfg.RequestTimeout, func() {
		s.post(event{kind: evRequestTimeout, seq: seq})
	})
}

func (s *Session) stopRequestTimer() {
	if s.requestTimer != nil {
		s.requestTimer.Stop()
		s.requestTimer = nil
	}
}

func (s *Session) armRetryTimer() {
	if s.cfg.CaptureRetryInterval <= 0 || s.retryTimer != nil {
		return
	}
	s.retrySeq++
	seq := s.retrySeq
	s.retryTimer = time.AfterFunc(s.cfg.CaptureRetryInterval, func() {
		s.post(event{kind: evCaptureRetry, seq: seq})
	})
}

func (s *Session) stopRetry() {
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	s.retrySeq++
}

func (s *Session) resolveDrainWaiters(err error) {
	for _, w := range s.drainWaiters {
		w <- err
	}
	s.drainWaiters = nil
}

func (s *Session) setError(message string, err error) {
	s.message = message
	s.lastErr = err.Error()
}

func (s *Session) buildStatus() entities.Status {
	return entities.Status{
		SessionID:  s.id,
		Connection: s.conn,
		Mode:       s.mode,
		InFlight:   s.controller.InFlight(),
		Message:    s.message,
		LastError:  s.lastErr,
		LastResult: s.lastResult,
		Metrics:    s.metrics.snapshot(s.now(), s.controller.Stats().MaxOutstanding),
	}
}

func (s *Session) publish() {
	status := s.buildStatus()

	s.statusMu.Lock()
	s.status = status
	s.statusMu.Unlock()

	if s.handler.OnStatus != nil {
		s.handler.OnStatus(status)
	}
}
