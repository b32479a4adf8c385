package ws

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"carnivores-ballistics/backend/internal/ballistics"
	"carnivores-ballistics/backend/internal/game"
	"carnivores-ballistics/backend/internal/world"
)

// Проверка на этапе компиляции
var (
	_ ballistics.Listener      = (*WSServer)(nil)
	_ ballistics.EffectTrigger = (*WSServer)(nil)
	_ game.StateBroadcaster    = (*WSServer)(nil)
	_ Shooter                  = (*ballistics.Manager)(nil)
	_ Commander                = (*game.GameTicker)(nil)
)

func testLogger() *log.Logger {
	return log.New(io.Discard)
}

// startTestServer поднимает сцену на ровной карте, игровой цикл и WebSocket сервер
func startTestServer(t *testing.T) (*WSServer, string) {
	t.Helper()
	logger := testLogger()

	m, err := world.NewFlatMap(64, 64, 4, 0)
	if err != nil {
		t.Fatalf("NewFlatMap: %v", err)
	}
	scene, err := ballistics.NewScene(m, ballistics.DefaultSceneOptions(), logger)
	if err != nil {
		t.Fatalf("NewScene: %v", err)
	}

	ticker := game.NewGameTicker(100, logger)
	ticker.RegisterSystem(game.NewBallisticsSystem(scene.Manager(), ticker, logger))

	server := NewWSServer(scene.Manager(), ticker, DefaultConfig(), logger)
	server.SetStatsProvider(ticker.GetStats)
	scene.Manager().AddListener(server)
	scene.Manager().AddEffectTrigger(server)

	mux := http.NewServeMux()
	server.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)

	if err := ticker.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		server.Close()
		srv.Close()
		ticker.Stop()
		scene.Close()
	})

	return server, srv.URL
}

func dialWS(t *testing.T, baseURL, query string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(baseURL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial WS: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// received входящее сообщение с отложенным разбором данных
type received struct {
	T    string
	raw  []byte
	bin  bool
	data json.RawMessage
}

func (r received) decode(t *testing.T, v interface{}) {
	t.Helper()
	if r.bin {
		var env struct {
			D msgpack.RawMessage `msgpack:"d"`
		}
		if err := msgpack.Unmarshal(r.raw, &env); err != nil {
			t.Fatalf("msgpack: %v", err)
		}
		if err := msgpack.Unmarshal(env.D, v); err != nil {
			t.Fatalf("msgpack data: %v", err)
		}
		return
	}
	if err := json.Unmarshal(r.data, v); err != nil {
		t.Fatalf("json data: %v", err)
	}
}

func readMsg(t *testing.T, conn *websocket.Conn, timeout time.Duration) (received, bool) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(timeout))
	mt, raw, err := conn.ReadMessage()
	if err != nil {
		return received{}, false
	}
	if mt == websocket.BinaryMessage {
		var env struct {
			T string `msgpack:"t"`
		}
		if err := msgpack.Unmarshal(raw, &env); err != nil {
			t.Fatalf("msgpack: %v", err)
		}
		return received{T: env.T, raw: raw, bin: true}, true
	}
	var env struct {
		T string          `json:"t"`
		D json.RawMessage `json:"d"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("json: %v", err)
	}
	return received{T: env.T, raw: raw, data: env.D}, true
}

// readUntil читает сообщения, пока не встретится нужный тип; остальные возвращает в seen
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) (received, []string) {
	t.Helper()
	var seen []string
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		msg, ok := readMsg(t, conn, time.Until(deadline))
		if !ok {
			break
		}
		if msg.T == msgType {
			return msg, seen
		}
		seen = append(seen, msg.T)
	}
	t.Fatalf("не получено сообщение %q, получены %v", msgType, seen)
	return received{}, nil
}

func sendJSON(t *testing.T, conn *websocket.Conn, msgType string, data interface{}) {
	t.Helper()
	raw, err := json.Marshal(Envelope{T: msgType, Data: data})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		t.Fatalf("write WS: %v", err)
	}
}

func TestWSServer_FireProducesImpact(t *testing.T) {
	_, url := startTestServer(t)
	conn := dialWS(t, url, "")

	info, _ := readUntil(t, conn, MsgInfo)
	var welcome InfoMsg
	info.decode(t, &welcome)
	if welcome.Format != "json" {
		t.Errorf("формат по умолчанию %q", welcome.Format)
	}

	sendJSON(t, conn, MsgFire, FireMsg{
		Origin:    mgl64.Vec3{128, 10, 128},
		Direction: mgl64.Vec3{0, -1, 0},
		Speed:     50,
		Damage:    30,
		Seq:       7,
	})

	ackMsg, _ := readUntil(t, conn, MsgAck)
	var ack AckMsg
	ackMsg.decode(t, &ack)
	if ack.Seq != 7 || ack.ProjectileID == 0 {
		t.Fatalf("ack: %+v", ack)
	}

	impactMsg, _ := readUntil(t, conn, MsgImpact)
	var impact ImpactMsg
	impactMsg.decode(t, &impact)
	if impact.ProjectileID != ack.ProjectileID {
		t.Errorf("попадание снаряда %d, ожидался %d", impact.ProjectileID, ack.ProjectileID)
	}
	if impact.Surface != "terrain" || impact.Damage != 30 {
		t.Errorf("попадание: %+v", impact)
	}
	if impact.Tile == nil {
		t.Error("для рельефа должен быть указан тайл")
	}

	effectMsg, _ := readUntil(t, conn, MsgEffect)
	var effect EffectMsg
	effectMsg.decode(t, &effect)
	if effect.Kind != "dust" {
		t.Errorf("эффект %q, ожидалась пыль", effect.Kind)
	}
}

func TestWSServer_InvalidFire(t *testing.T) {
	_, url := startTestServer(t)
	conn := dialWS(t, url, "")
	readUntil(t, conn, MsgInfo)

	tests := []struct {
		name string
		fire FireMsg
	}{
		{"нулевое направление", FireMsg{Direction: mgl64.Vec3{}, Speed: 10, Seq: 1}},
		{"отрицательная скорость", FireMsg{Direction: mgl64.Vec3{1, 0, 0}, Speed: -1, Seq: 2}},
		{"слишком большая скорость", FireMsg{Direction: mgl64.Vec3{1, 0, 0}, Speed: DefaultMaxSpeed * 2, Seq: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sendJSON(t, conn, MsgFire, tt.fire)
			msg, _ := readUntil(t, conn, MsgError)
			var e ErrorMsg
			msg.decode(t, &e)
			if e.Seq != tt.fire.Seq || e.Msg == "" {
				t.Errorf("ошибка: %+v", e)
			}
		})
	}

	// Неизвестный тип сообщения
	sendJSON(t, conn, "teleport", nil)
	readUntil(t, conn, MsgError)
}

func TestWSServer_MsgpackPing(t *testing.T) {
	_, url := startTestServer(t)
	conn := dialWS(t, url, "?format=msgpack")

	info, _ := readUntil(t, conn, MsgInfo)
	if !info.bin {
		t.Fatal("клиент msgpack должен получать бинарные сообщения")
	}

	raw, err := msgpack.Marshal(Envelope{T: MsgPing, Data: PingMsg{ClientTime: 12345}})
	if err != nil {
		t.Fatalf("msgpack: %v", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, raw); err != nil {
		t.Fatalf("write: %v", err)
	}

	msg, _ := readUntil(t, conn, MsgPong)
	var pong PongMsg
	msg.decode(t, &pong)
	if pong.ClientTime != 12345 || pong.ServerTime == 0 {
		t.Errorf("pong: %+v", pong)
	}
}

func TestWSServer_FacesOnlyForSubscribers(t *testing.T) {
	_, url := startTestServer(t)
	plain := dialWS(t, url, "")
	debug := dialWS(t, url, "?faces=1")
	readUntil(t, plain, MsgInfo)
	readUntil(t, debug, MsgInfo)

	sendJSON(t, plain, MsgFire, FireMsg{
		Origin:    mgl64.Vec3{100, 5, 100},
		Direction: mgl64.Vec3{0, -1, 0},
		Speed:     40,
		Seq:       1,
	})

	msg, _ := readUntil(t, debug, MsgFace)
	var face FaceMsg
	msg.decode(t, &face)
	if face.Surface != "terrain" {
		t.Errorf("пересечение: %+v", face)
	}

	_, seen := readUntil(t, plain, MsgEffect)
	for {
		m, ok := readMsg(t, plain, 200*time.Millisecond)
		if !ok {
			break
		}
		seen = append(seen, m.T)
	}
	for _, typ := range seen {
		if typ == MsgFace {
			t.Fatal("клиент без подписки не должен получать пересечения")
		}
	}
}

func TestWSServer_BroadcastProjectiles(t *testing.T) {
	server, url := startTestServer(t)
	conn := dialWS(t, url, "")
	readUntil(t, conn, MsgInfo)

	err := server.BroadcastProjectiles(42, 1500*time.Millisecond, []ballistics.ProjectileSnapshot{
		{ID: 3, Position: mgl64.Vec3{1, 2, 3}, State: "flying"},
	})
	if err != nil {
		t.Fatalf("BroadcastProjectiles: %v", err)
	}

	msg, _ := readUntil(t, conn, MsgState)
	var state StateMsg
	msg.decode(t, &state)
	if state.Tick != 42 || state.Time != 1.5 || len(state.Projectiles) != 1 || state.Projectiles[0].ID != 3 {
		t.Errorf("состояние: %+v", state)
	}
}

func TestWSServer_Stats(t *testing.T) {
	_, url := startTestServer(t)
	conn := dialWS(t, url, "")
	readUntil(t, conn, MsgInfo)

	resp, err := http.Get(url + "/stats")
	if err != nil {
		t.Fatalf("GET /stats: %v", err)
	}
	defer resp.Body.Close()

	var stats map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats["ws_clients"] != float64(1) {
		t.Errorf("ws_clients = %v", stats["ws_clients"])
	}
	if _, ok := stats["tick_count"]; !ok {
		t.Error("в статистике нет данных игрового цикла")
	}
}

func TestWSServer_CloseRejectsNewClients(t *testing.T) {
	server, url := startTestServer(t)
	conn := dialWS(t, url, "")
	readUntil(t, conn, MsgInfo)

	server.Close()
	// После закрытия допускаются только уже поставленные в очередь сообщения
	for {
		if _, ok := readMsg(t, conn, time.Second); !ok {
			break
		}
	}

	late := dialWS(t, url, "")
	if _, ok := readMsg(t, late, time.Second); ok {
		t.Error("после Close новые клиенты не обслуживаются")
	}
	deadline := time.Now().Add(2 * time.Second)
	for server.ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if server.ClientCount() != 0 {
		t.Errorf("клиентов после Close: %d", server.ClientCount())
	}
}
