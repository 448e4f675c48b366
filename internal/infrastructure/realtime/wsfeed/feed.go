// Package wsfeed connects the realtime sync channel to the remote delta
// feed over a websocket.
package wsfeed

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	"github.com/riskibarqy/lineup-orchestrator/internal/domain/lineup"
	"github.com/riskibarqy/lineup-orchestrator/internal/infrastructure/remote/lineupapi"
	"github.com/riskibarqy/lineup-orchestrator/internal/platform/fault"
	"github.com/riskibarqy/lineup-orchestrator/internal/platform/logging"
	"github.com/riskibarqy/lineup-orchestrator/internal/usecase"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultLivenessTimeout  = 45 * time.Second
	writeWait               = 5 * time.Second
)

type Config struct {
	URL              string
	HandshakeTimeout time.Duration
	// LivenessTimeout bounds the silence between frames or pongs before
	// the connection is treated as dead.
	LivenessTimeout time.Duration
}

type Feed struct {
	cfg         Config
	dialer      websocket.Dialer
	credentials lineupapi.CredentialSource
	logger      *logging.Logger
}

var _ usecase.DeltaFeed = (*Feed)(nil)

func New(cfg Config, credentials lineupapi.CredentialSource, logger *logging.Logger) *Feed {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.LivenessTimeout <= 0 {
		cfg.LivenessTimeout = defaultLivenessTimeout
	}
	if credentials == nil {
		credentials = lineupapi.StaticToken("")
	}
	cfg.URL = toWebsocketURL(cfg.URL)

	return &Feed{
		cfg:         cfg,
		dialer:      websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		credentials: credentials,
		logger:      logger,
	}
}

func (f *Feed) Connect(ctx context.Context) (usecase.DeltaStream, error) {
	header := http.Header{}
	token, err := f.credentials.Token(ctx)
	if err != nil {
		return nil, fault.Wrap(fault.AuthRequired, "realtime.dial", crerr.Wrap(err, "resolve credential"))
	}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := f.dialer.DialContext(ctx, f.cfg.URL, header)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
			return nil, fault.FromStatus("realtime.dial", resp.StatusCode, crerr.Wrap(err, "websocket handshake"))
		}
		return nil, fault.Wrap(transportKind(err), "realtime.dial", crerr.Wrap(err, "websocket dial"))
	}

	s := &stream{
		conn:     conn,
		liveness: f.cfg.LivenessTimeout,
		frames:   make(chan lineup.Delta),
		failed:   make(chan struct{}),
		done:     make(chan struct{}),
		logger:   f.logger,
	}
	_ = conn.SetReadDeadline(time.Now().Add(s.liveness))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.liveness))
	})

	go s.readLoop()
	go s.pingLoop()
	return s, nil
}

type stream struct {
	conn     *websocket.Conn
	liveness time.Duration
	logger   *logging.Logger

	frames chan lineup.Delta
	failed chan struct{}
	err    error

	done      chan struct{}
	closeOnce sync.Once
	writeMu   sync.Mutex
}

// Recv returns deltas in arrival order, then the error that ended the
// connection.
func (s *stream) Recv(ctx context.Context) (lineup.Delta, error) {
	select {
	case d := <-s.frames:
		return d, nil
	case <-s.failed:
		return lineup.Delta{}, s.err
	case <-ctx.Done():
		return lineup.Delta{}, ctx.Err()
	}
}

func (s *stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.writeMu.Lock()
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}

func (s *stream) readLoop() {
	defer close(s.failed)

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			s.err = fault.Wrap(transportKind(err), "realtime.read", crerr.Wrap(err, "read frame"))
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(s.liveness))

		delta, err := decodeFrame(message)
		if err != nil {
			s.logger.Warn("skipping malformed realtime frame", "error", err)
			continue
		}

		select {
		case s.frames <- delta:
		case <-s.done:
			s.err = fault.Wrap(fault.Canceled, "realtime.read", crerr.New("stream closed"))
			return
		}
	}
}

func (s *stream) pingLoop() {
	ticker := time.NewTicker(s.liveness / 2)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-s.failed:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

type frameSlot struct {
	Position        string  `json:"position"`
	PlayerID        string  `json:"playerId"`
	Locked          bool    `json:"locked"`
	ProjectedPoints float64 `json:"projectedPoints"`
	WeatherImpact   *string `json:"weatherImpact,omitempty"`
	InjuryStatus    string  `json:"injuryStatus,omitempty"`
	OnBye           bool    `json:"onBye"`
}

type frame struct {
	LineupID          string               `json:"lineupId"`
	Slots             map[string]frameSlot `json:"slots"`
	OptimizationScore *float64             `json:"optimizationScore,omitempty"`
	Timestamp         time.Time            `json:"timestamp"`
}

func decodeFrame(message []byte) (lineup.Delta, error) {
	var f frame
	if err := sonic.Unmarshal(message, &f); err != nil {
		return lineup.Delta{}, crerr.Wrap(err, "decode frame")
	}
	if strings.TrimSpace(f.LineupID) == "" {
		return lineup.Delta{}, crerr.New("frame without lineupId")
	}

	slots := make(map[int]lineup.Slot, len(f.Slots))
	for key, fs := range f.Slots {
		index, err := strconv.Atoi(key)
		if err != nil || index < 0 {
			return lineup.Delta{}, crerr.Newf("invalid slot index %q", key)
		}
		slot := lineup.Slot{
			Position:        lineup.Position(fs.Position),
			PlayerID:        fs.PlayerID,
			Locked:          fs.Locked,
			ProjectedPoints: fs.ProjectedPoints,
			InjuryStatus:    lineup.InjuryStatus(fs.InjuryStatus),
			OnBye:           fs.OnBye,
		}
		if slot.InjuryStatus == "" {
			slot.InjuryStatus = lineup.InjuryActive
		}
		if fs.WeatherImpact != nil {
			w := lineup.WeatherImpact(*fs.WeatherImpact)
			slot.WeatherImpact = &w
		}
		slots[index] = slot
	}

	return lineup.Delta{
		LineupID:          f.LineupID,
		Slots:             slots,
		OptimizationScore: f.OptimizationScore,
		Timestamp:         f.Timestamp,
	}, nil
}

func transportKind(err error) fault.Kind {
	kind := fault.KindOf(err)
	if kind == fault.Unknown {
		return fault.Network
	}
	return kind
}

func toWebsocketURL(raw string) string {
	raw = strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(raw, "https://"):
		return "wss://" + strings.TrimPrefix(raw, "https://")
	case strings.HasPrefix(raw, "http://"):
		return "ws://" + strings.TrimPrefix(raw, "http://")
	default:
		return raw
	}
}
