package websocket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Config holds configuration for a stream subscriber.
type Config struct {
	URL                   string
	DialTimeout           time.Duration
	PingInterval          time.Duration
	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
	ReconnectBackoffMult  float64
	MessageBufferSize     int
	Logger                *zap.Logger
}

// Subscriber follows a remote event stream and reconnects when it drops.
type Subscriber struct {
	url          string
	config       Config
	logger       *zap.Logger
	reconnectMgr *ReconnectManager
	messageChan  chan []byte

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu              sync.RWMutex
	conn            *websocket.Conn
	connected       atomic.Bool
	connectionStart atomic.Int64
}

// NewSubscriber creates a new subscriber. Call Start to connect.
func NewSubscriber(cfg Config) (*Subscriber, error) {
	if cfg.URL == "" {
		return nil, errors.New("url cannot be empty")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.MessageBufferSize <= 0 {
		cfg.MessageBufferSize = 256
	}

	if cfg.PingInterval <= 0 {
		cfg.PingInterval = pingPeriod
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Subscriber{
		url:    cfg.URL,
		config: cfg,
		logger: cfg.Logger,
		reconnectMgr: NewReconnectManager(ReconnectConfig{
			InitialDelay:      cfg.ReconnectInitialDelay,
			MaxDelay:          cfg.ReconnectMaxDelay,
			BackoffMultiplier: cfg.ReconnectBackoffMult,
			JitterPercent:     0.2,
		}, cfg.Logger),
		messageChan: make(chan []byte, cfg.MessageBufferSize),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start dials the stream and begins reading.
func (s *Subscriber) Start() error {
	s.logger.Info("stream-subscriber-starting", zap.String("url", s.url))

	err := s.connect(s.ctx)
	if err != nil {
		return fmt.Errorf("initial connection: %w", err)
	}

	s.wg.Add(3)
	go s.readLoop()
	go s.pingLoop()
	go s.reconnectLoop()

	return nil
}

func (s *Subscriber) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: s.config.DialTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	s.connected.Store(true)
	s.connectionStart.Store(time.Now().UnixNano())

	s.logger.Info("stream-subscriber-connected", zap.String("url", s.url))

	return nil
}

// Messages returns the channel of raw stream payloads. It is closed by Close.
func (s *Subscriber) Messages() <-chan []byte {
	return s.messageChan
}

// IsConnected reports whether the subscriber currently holds a connection.
func (s *Subscriber) IsConnected() bool {
	return s.connected.Load()
}

func (s *Subscriber) readLoop() {
	defer s.wg.Done()

	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if s.ctx.Err() == nil {
				s.logger.Warn("stream-read-error", zap.Error(err))
			}

			start := s.connectionStart.Load()
			if start > 0 {
				ConnectionDuration.Observe(time.Since(time.Unix(0, start)).Seconds())
			}

			s.connected.Store(false)
			return
		}

		MessagesReceivedTotal.Inc()

		select {
		case s.messageChan <- message:
		case <-s.ctx.Done():
			return
		default:
			MessagesDroppedTotal.WithLabelValues("channel_full").Inc()
			s.logger.Warn("stream-message-channel-full")
		}
	}
}

func (s *Subscriber) pingLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if !s.connected.Load() {
				continue
			}

			s.mu.RLock()
			conn := s.conn
			s.mu.RUnlock()

			err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(time.Second))
			if err != nil {
				s.logger.Debug("stream-ping-error", zap.Error(err))
			}
		}
	}
}

func (s *Subscriber) reconnectLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}

		if s.connected.Load() {
			continue
		}

		s.logger.Warn("stream-connection-lost")

		err := s.reconnectMgr.Reconnect(s.ctx, s.connect)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.logger.Error("stream-reconnect-failed", zap.Error(err))
			continue
		}

		s.wg.Add(1)
		go s.readLoop()
	}
}

// Close disconnects and waits for the background loops to exit.
func (s *Subscriber) Close() error {
	s.cancel()

	s.mu.RLock()
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.mu.RUnlock()

	s.wg.Wait()
	close(s.messageChan)

	s.logger.Info("stream-subscriber-closed")

	return nil
}
