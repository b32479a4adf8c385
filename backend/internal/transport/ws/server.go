package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/gorilla/websocket"

	"carnivores-ballistics/backend/internal/ballistics"
)

const (
	DefaultPingInterval = 10 * time.Second // Интервал отправки пингов
	DefaultWriteWait    = 2 * time.Second
	DefaultSendBuffer   = 256
	DefaultMaxSpeed     = 2000.0
)

// Shooter создает снаряды. Вызывается только из игрового цикла (обычно *ballistics.Manager).
type Shooter interface {
	Spawn(origin, direction mgl64.Vec3, speed, damage float64) (*ballistics.Projectile, error)
	SetReference(pos mgl64.Vec3) bool
}

// Commander передает команду в игровой цикл (обычно *game.GameTicker)
type Commander interface {
	Enqueue(cmd func()) error
}

// Config параметры WebSocket сервера
type Config struct {
	PingInterval time.Duration
	WriteWait    time.Duration
	SendBuffer   int
	MaxSpeed     float64
}

func DefaultConfig() Config {
	return Config{
		PingInterval: DefaultPingInterval,
		WriteWait:    DefaultWriteWait,
		SendBuffer:   DefaultSendBuffer,
		MaxSpeed:     DefaultMaxSpeed,
	}
}

// WSServer раздает события снарядов клиентам и принимает выстрелы.
// Реализует ballistics.Listener и ballistics.EffectTrigger.
type WSServer struct {
	upgrader websocket.Upgrader
	cfg      Config
	shooter  Shooter
	commands Commander
	stats    func() map[string]interface{}
	logger   *log.Logger

	clients   map[*client]struct{}
	clientsMu sync.RWMutex
	closed    bool

	dropped atomic.Uint64
	fired   atomic.Uint64
}

// NewWSServer создает новый экземпляр WebSocket сервера
func NewWSServer(shooter Shooter, commands Commander, cfg Config, logger *log.Logger) *WSServer {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = DefaultSendBuffer
	}
	if cfg.MaxSpeed <= 0 {
		cfg.MaxSpeed = DefaultMaxSpeed
	}
	return &WSServer{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		cfg:      cfg,
		shooter:  shooter,
		commands: commands,
		logger:   logger.WithPrefix("WSServer"),
		clients:  make(map[*client]struct{}),
	}
}

// SetStatsProvider задает источник данных для /stats
func (s *WSServer) SetStatsProvider(f func() map[string]interface{}) {
	s.stats = f
}

// RegisterRoutes подключает обработчики к mux
func (s *WSServer) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.HandleWS)
	mux.HandleFunc("/stats", s.HandleStats)
}

// HandleWS обрабатывает входящие WebSocket соединения.
// ?format=msgpack включает бинарный формат, ?faces=1 подписывает на диагностические пересечения.
func (s *WSServer) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Ошибка upgrade", "err", err)
		return
	}

	q := r.URL.Query()
	c := newClient(NewSafeWriter(conn, s.cfg.WriteWait), q.Get("format") == "msgpack", q.Get("faces") == "1", s.cfg.SendBuffer)
	if !s.register(c) {
		c.conn.Close()
		return
	}
	defer s.unregister(c)

	s.logger.Info("Новое соединение", "remote", conn.RemoteAddr(), "format", c.format())

	go s.writePump(c)

	s.sendTo(c, MsgInfo, InfoMsg{Message: "Подключено к серверу баллистики", Format: c.format()})

	// Основной цикл обработки сообщений
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("Ошибка чтения", "err", err)
			}
			break
		}

		msgType, decode, err := parseMessage(data, mt == websocket.BinaryMessage)
		if err != nil {
			s.sendTo(c, MsgError, ErrorMsg{Msg: err.Error()})
			continue
		}

		if err := s.handle(c, msgType, decode); err != nil {
			s.logger.Debug("Ошибка обработки сообщения", "type", msgType, "err", err)
		}
	}

	s.logger.Info("Соединение закрыто", "remote", conn.RemoteAddr())
}

func (s *WSServer) handle(c *client, msgType string, decode decodeFunc) error {
	switch msgType {
	case MsgPing:
		var ping PingMsg
		if err := decode(&ping); err != nil {
			return s.replyError(c, 0, fmt.Errorf("%w: %v", ErrInvalidMessage, err))
		}
		s.sendTo(c, MsgPong, PongMsg{ClientTime: ping.ClientTime, ServerTime: GetCurrentServerTime()})
		return nil

	case MsgFire:
		var fire FireMsg
		if err := decode(&fire); err != nil {
			return s.replyError(c, 0, fmt.Errorf("%w: %v", ErrInvalidMessage, err))
		}
		return s.handleFire(c, fire)

	default:
		return s.replyError(c, 0, fmt.Errorf("%w: неизвестный тип %q", ErrInvalidMessage, msgType))
	}
}

// validateFire проверяет запрос до постановки в очередь игрового цикла
func (s *WSServer) validateFire(f FireMsg) error {
	for _, v := range [...]float64{f.Origin[0], f.Origin[1], f.Origin[2], f.Direction[0], f.Direction[1], f.Direction[2], f.Speed, f.Damage} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: нечисловые значения", ErrInvalidMessage)
		}
	}
	if f.Direction.Len() < 1e-9 {
		return ballistics.ErrZeroDirection
	}
	if f.Speed <= 0 || f.Speed > s.cfg.MaxSpeed {
		return fmt.Errorf("%w: %v", ballistics.ErrInvalidSpeed, f.Speed)
	}
	if f.Damage < 0 {
		return fmt.Errorf("%w: отрицательный урон", ErrInvalidMessage)
	}
	return nil
}

// handleFire ставит выстрел в очередь игрового цикла; ответ приходит после создания снаряда
func (s *WSServer) handleFire(c *client, f FireMsg) error {
	if err := s.validateFire(f); err != nil {
		return s.replyError(c, f.Seq, err)
	}

	err := s.commands.Enqueue(func() {
		s.shooter.SetReference(f.Origin)
		p, err := s.shooter.Spawn(f.Origin, f.Direction, f.Speed, f.Damage)
		if err != nil {
			s.replyError(c, f.Seq, err)
			return
		}
		s.fired.Add(1)
		s.sendTo(c, MsgAck, AckMsg{Seq: f.Seq, ProjectileID: p.ID()})
	})
	if err != nil {
		return s.replyError(c, f.Seq, err)
	}
	return nil
}

func (s *WSServer) replyError(c *client, seq uint32, err error) error {
	s.sendTo(c, MsgError, ErrorMsg{Msg: err.Error(), Seq: seq})
	return err
}

// writePump единственный писатель данных в соединение клиента
func (s *WSServer) writePump(c *client) {
	var ping <-chan time.Time
	if s.cfg.PingInterval > 0 {
		ticker := time.NewTicker(s.cfg.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case <-c.done:
			return

		case msg := <-c.send:
			mt := websocket.TextMessage
			if c.binary {
				mt = websocket.BinaryMessage
			}
			if err := c.conn.WriteMessage(mt, msg); err != nil {
				s.logger.Debug("Ошибка записи, закрываем клиента", "err", err)
				c.close()
				return
			}

		case <-ping:
			if err := c.conn.WritePing(); err != nil {
				c.close()
				return
			}
		}
	}
}

// sendTo ставит сообщение в очередь одного клиента
func (s *WSServer) sendTo(c *client, msgType string, data interface{}) {
	raw, err := encode(Envelope{T: msgType, Data: data}, c.binary)
	if err != nil {
		s.logger.Error("Ошибка сериализации", "type", msgType, "err", err)
		return
	}
	if !c.enqueue(raw) {
		s.dropped.Add(1)
	}
}

// broadcast рассылает сообщение всем клиентам, подходящим под filter.
// Каждый формат сериализуется не больше одного раза.
func (s *WSServer) broadcast(msgType string, data interface{}, filter func(*client) bool) error {
	env := Envelope{T: msgType, Data: data}
	var encoded [2][]byte
	var errs []error

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for c := range s.clients {
		if filter != nil && !filter(c) {
			continue
		}
		idx := 0
		if c.binary {
			idx = 1
		}
		if encoded[idx] == nil {
			raw, err := encode(env, c.binary)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			encoded[idx] = raw
		}
		if !c.enqueue(encoded[idx]) {
			s.dropped.Add(1)
		}
	}
	return errors.Join(errs...)
}

func (s *WSServer) logBroadcast(msgType string, err error) {
	if err != nil {
		s.logger.Error("Ошибка рассылки", "type", msgType, "err", err)
	}
}

// OnImpact рассылает попадание всем клиентам
func (s *WSServer) OnImpact(e ballistics.ImpactEvent) {
	s.logBroadcast(MsgImpact, s.broadcast(MsgImpact, NewImpactMessage(e), nil))
}

// OnFaceIntersection рассылает диагностику только подписанным клиентам
func (s *WSServer) OnFaceIntersection(f ballistics.FaceIntersection) {
	s.logBroadcast(MsgFace, s.broadcast(MsgFace, NewFaceMessage(f), func(c *client) bool { return c.faces }))
}

// TriggerEffect рассылает эффект попадания: клиенты проигрывают звук и частицы
func (s *WSServer) TriggerEffect(e ballistics.Effect) {
	s.logBroadcast(MsgEffect, s.broadcast(MsgEffect, NewEffectMessage(e), nil))
}

// BroadcastProjectiles рассылает состояние летящих снарядов
func (s *WSServer) BroadcastProjectiles(tick uint64, gameTime time.Duration, projectiles []ballistics.ProjectileSnapshot) error {
	return s.broadcast(MsgState, StateMsg{Tick: tick, Time: gameTime.Seconds(), Projectiles: projectiles}, nil)
}

// HandleStats отдает статистику сервера и игрового цикла в JSON
func (s *WSServer) HandleStats(w http.ResponseWriter, r *http.Request) {
	out := map[string]interface{}{}
	if s.stats != nil {
		for k, v := range s.stats() {
			out[k] = v
		}
	}
	out["ws_clients"] = s.ClientCount()
	out["ws_dropped"] = s.dropped.Load()
	out["ws_fired"] = s.fired.Load()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		s.logger.Error("Ошибка записи статистики", "err", err)
	}
}

func (s *WSServer) register(c *client) bool {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	if s.closed {
		return false
	}
	s.clients[c] = struct{}{}
	return true
}

func (s *WSServer) unregister(c *client) {
	s.clientsMu.Lock()
	delete(s.clients, c)
	s.clientsMu.Unlock()
	c.close()
}

// ClientCount возвращает число подключенных клиентов
func (s *WSServer) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// Dropped возвращает число сообщений, не поместившихся в очереди клиентов
func (s *WSServer) Dropped() uint64 { return s.dropped.Load() }

// Close закрывает все соединения; новые соединения после этого отклоняются
func (s *WSServer) Close() {
	s.clientsMu.Lock()
	s.closed = true
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.clientsMu.Unlock()

	for _, c := range clients {
		c.close()
	}
	s.logger.Info("WebSocket сервер остановлен", "clients", len(clients))
}
