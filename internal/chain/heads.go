package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"launchpad-indexer/internal/logging"
)

// HeadsConfig configures HeadSubscriber.
type HeadsConfig struct {
	// ReconnectDelay is the initial delay before a reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay caps the reconnect backoff.
	MaxReconnectDelay time.Duration
	// ReadTimeout closes a connection that stays silent this long.
	ReadTimeout time.Duration
	// WriteTimeout bounds the subscribe request.
	WriteTimeout time.Duration
}

// DefaultHeadsConfig returns the default reconnect settings.
func DefaultHeadsConfig() HeadsConfig {
	return HeadsConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// HeadSubscriber follows new block heights over an eth_subscribe newHeads
// websocket. Only the latest height is kept: a slow consumer sees the most
// recent head, never a backlog.
type HeadSubscriber struct {
	endpoint string
	config   HeadsConfig
	logger   *zap.Logger
	heads    chan uint64
}

// NewHeadSubscriber creates a subscriber for a ws:// or wss:// endpoint.
func NewHeadSubscriber(endpoint string, config *HeadsConfig, logger *zap.Logger) *HeadSubscriber {
	cfg := DefaultHeadsConfig()
	if config != nil {
		cfg = *config
	}
	return &HeadSubscriber{
		endpoint: endpoint,
		config:   cfg,
		logger:   logging.OrNop(logger).Named("heads"),
		heads:    make(chan uint64, 1),
	}
}

// Heads returns the channel of new block heights.
func (s *HeadSubscriber) Heads() <-chan uint64 {
	return s.heads
}

// Run connects and reconnects with exponential backoff until ctx is done.
func (s *HeadSubscriber) Run(ctx context.Context) error {
	delay := s.config.ReconnectDelay
	for {
		received, err := s.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if received {
			delay = s.config.ReconnectDelay
		}
		s.logger.Warn("head subscription dropped",
			zap.String("endpoint", s.endpoint),
			zap.Duration("reconnect_in", delay),
			zap.Error(err),
		)
		if err := sleepContext(ctx, delay); err != nil {
			return err
		}
		delay *= 2
		if delay > s.config.MaxReconnectDelay {
			delay = s.config.MaxReconnectDelay
		}
	}
}

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type wsMessage struct {
	ID     *uint64   `json:"id,omitempty"`
	Error  *RPCError `json:"error,omitempty"`
	Method string    `json:"method,omitempty"`
	Params *struct {
		Subscription string `json:"subscription"`
		Result       struct {
			Number hexutil.Uint64 `json:"number"`
		} `json:"result"`
	} `json:"params,omitempty"`
}

// session runs one connection until it fails. received reports whether
// any head arrived, which resets the backoff.
func (s *HeadSubscriber) session(ctx context.Context) (received bool, err error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("websocket dial: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	_ = conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if err := conn.WriteJSON(wsRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "eth_subscribe",
		Params:  []interface{}{"newHeads"},
	}); err != nil {
		return false, fmt.Errorf("write subscribe: %w", err)
	}

	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return received, fmt.Errorf("read: %w", err)
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Debug("skipping malformed message", zap.Error(err))
			continue
		}
		if msg.Error != nil {
			return received, fmt.Errorf("subscribe: %w", msg.Error)
		}
		if msg.Method != "eth_subscription" || msg.Params == nil {
			continue
		}

		received = true
		s.publish(uint64(msg.Params.Result.Number))
	}
}

// publish replaces any unread head with n.
func (s *HeadSubscriber) publish(n uint64) {
	for {
		select {
		case s.heads <- n:
			return
		default:
		}
		select {
		case <-s.heads:
		default:
		}
	}
}
