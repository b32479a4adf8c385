package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"math/rand/v2"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/gorilla/websocket"

	"carnivores-ballistics/backend/internal/transport/ws"
)

// Bot подключается к серверу и стреляет по заданному шаблону
type Bot struct {
	ID          string
	ServerURL   string
	Pattern     string
	Origin      mgl64.Vec3
	Speed       float64
	Duration    time.Duration
	CommandRate time.Duration

	conn    *websocket.Conn
	writeMu sync.Mutex // Мьютекс для синхронизации записи в WebSocket
	seq     uint32
	logger  *log.Logger

	Stats BotStats
}

// BotStats содержит статистику работы бота
type BotStats struct {
	ShotsSent int
	Acks      int
	Impacts   int
	Errors    int
	BySurface map[string]int
	StartTime time.Time
	mu        sync.RWMutex
}

// NewBot создает нового бота
func NewBot(id, serverURL, pattern string, origin mgl64.Vec3, speed float64, duration, commandRate time.Duration) *Bot {
	return &Bot{
		ID:          id,
		ServerURL:   serverURL,
		Pattern:     pattern,
		Origin:      origin,
		Speed:       speed,
		Duration:    duration,
		CommandRate: commandRate,
		logger:      log.Default().WithPrefix("Bot " + id),
		Stats: BotStats{
			BySurface: make(map[string]int),
			StartTime: time.Now(),
		},
	}
}

// Connect подключается к серверу
func (b *Bot) Connect() error {
	u, err := url.Parse(b.ServerURL)
	if err != nil {
		return fmt.Errorf("неверный URL: %w", err)
	}

	b.logger.Info("Подключение", "url", u.String())

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
	}

	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("ошибка подключения: %w", err)
	}
	b.conn = conn
	return nil
}

// Disconnect отключается от сервера
func (b *Bot) Disconnect() {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	if b.conn != nil {
		_ = b.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		b.conn.Close()
	}
}

// direction выбирает направление выстрела по шаблону
func (b *Bot) direction(n int) mgl64.Vec3 {
	switch b.Pattern {
	case "down":
		return mgl64.Vec3{0, -1, 0}
	case "fan":
		// Веер по кругу с небольшим наклоном вниз
		angle := float64(n) * math.Pi / 8
		return mgl64.Vec3{math.Cos(angle), -0.3, math.Sin(angle)}
	default:
		return mgl64.Vec3{rand.Float64()*2 - 1, -rand.Float64(), rand.Float64()*2 - 1}
	}
}

func (b *Bot) fire(n int) error {
	b.seq++
	env := ws.Envelope{T: ws.MsgFire, Data: ws.FireMsg{
		Origin:    b.Origin,
		Direction: b.direction(n),
		Speed:     b.Speed,
		Damage:    10,
		Seq:       b.seq,
	}}
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	return b.conn.WriteMessage(websocket.TextMessage, raw)
}

// readLoop считает ответы сервера
func (b *Bot) readLoop() {
	for {
		_, raw, err := b.conn.ReadMessage()
		if err != nil {
			return
		}
		var env struct {
			T string          `json:"t"`
			D json.RawMessage `json:"d"`
		}
		if err := json.Unmarshal(raw, &env); err != nil {
			continue
		}

		b.Stats.mu.Lock()
		switch env.T {
		case ws.MsgAck:
			b.Stats.Acks++
		case ws.MsgError:
			b.Stats.Errors++
		case ws.MsgImpact:
			var impact ws.ImpactMsg
			if json.Unmarshal(env.D, &impact) == nil {
				b.Stats.Impacts++
				b.Stats.BySurface[impact.Surface]++
				b.logger.Debug("Попадание", "id", impact.ProjectileID, "surface", impact.Surface, "pos", impact.Position)
			}
		}
		b.Stats.mu.Unlock()
	}
}

// Run стреляет с заданной частотой, пока не истечет время или не отменен контекст
func (b *Bot) Run(ctx context.Context) error {
	if err := b.Connect(); err != nil {
		return err
	}
	defer b.Disconnect()

	go b.readLoop()

	ctx, cancel := context.WithTimeout(ctx, b.Duration)
	defer cancel()

	ticker := time.NewTicker(b.CommandRate)
	defer ticker.Stop()

	for n := 0; ; n++ {
		select {
		case <-ctx.Done():
			b.logger.Info("Завершение работы")
			return nil
		case <-ticker.C:
			if err := b.fire(n); err != nil {
				return fmt.Errorf("отправка выстрела: %w", err)
			}
			b.Stats.mu.Lock()
			b.Stats.ShotsSent++
			b.Stats.mu.Unlock()
		}
	}
}

// PrintStats выводит статистику бота
func (b *Bot) PrintStats() {
	b.Stats.mu.RLock()
	defer b.Stats.mu.RUnlock()

	duration := time.Since(b.Stats.StartTime)
	b.logger.Info("Статистика",
		"uptime", duration.Round(time.Millisecond),
		"shots", b.Stats.ShotsSent,
		"acks", b.Stats.Acks,
		"impacts", b.Stats.Impacts,
		"errors", b.Stats.Errors)
	for surface, n := range b.Stats.BySurface {
		b.logger.Info("Попадания по поверхности", "surface", surface, "count", n)
	}
}

func main() {
	// Флаги командной строки
	var (
		serverURL   = flag.String("url", "ws://localhost:8080/ws", "URL WebSocket сервера")
		botID       = flag.String("id", "bot1", "ID бота")
		pattern     = flag.String("pattern", "random", "Шаблон стрельбы (random, fan, down)")
		x           = flag.Float64("x", 32768, "X точки выстрела")
		y           = flag.Float64("y", 2500, "Y точки выстрела")
		z           = flag.Float64("z", 32768, "Z точки выстрела")
		speed       = flag.Float64("speed", 400, "скорость снаряда")
		duration    = flag.Duration("duration", 30*time.Second, "Длительность работы бота")
		commandRate = flag.Duration("rate", 200*time.Millisecond, "Частота выстрелов")
	)
	flag.Parse()

	bot := NewBot(*botID, *serverURL, *pattern, mgl64.Vec3{*x, *y, *z}, *speed, *duration, *commandRate)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := bot.Run(ctx); err != nil {
		bot.logger.Error("Ошибка", "err", err)
		bot.PrintStats()
		os.Exit(1)
	}

	// Ждем последние попадания
	time.Sleep(500 * time.Millisecond)
	bot.PrintStats()
}
