package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

// echoServer принимает соединение и передает прочитанные сообщения в канал
func echoServer(t *testing.T, n int) (*httptest.Server, <-chan []byte, <-chan int) {
	t.Helper()
	msgs := make(chan []byte, n)
	types := make(chan int, n)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Failed to upgrade connection: %v", err)
			return
		}
		defer conn.Close()

		for i := 0; i < n; i++ {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			msgs <- msg
			types <- mt
		}
	}))
	t.Cleanup(server.Close)
	return server, msgs, types
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(url, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect to WebSocket server: %v", err)
	}
	return conn
}

func TestSafeWriter_WriteEnvelope_Concurrency(t *testing.T) {
	server, msgs, _ := echoServer(t, 10)
	wsConn := dial(t, server.URL)
	defer wsConn.Close()

	writer := NewSafeWriter(wsConn, time.Second)

	// Запускаем 10 горутин, каждая отправляет свое сообщение
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			// Небольшая задержка, чтобы увеличить вероятность параллельной записи
			time.Sleep(time.Duration(id) * time.Millisecond)
			if err := writer.WriteEnvelope(Envelope{T: MsgAck, Data: AckMsg{ProjectileID: uint64(id)}}, false); err != nil {
				t.Errorf("Error writing message: %v", err)
			}
		}(i)
	}
	wg.Wait()

	// Все сообщения должны дойти целыми и быть разными
	uniq := make(map[uint64]struct{})
	for i := 0; i < 10; i++ {
		select {
		case raw := <-msgs:
			var env struct {
				T string `json:"t"`
				D AckMsg `json:"d"`
			}
			if err := json.Unmarshal(raw, &env); err != nil {
				t.Fatalf("поврежденное сообщение %q: %v", raw, err)
			}
			uniq[env.D.ProjectileID] = struct{}{}
		case <-time.After(2 * time.Second):
			t.Fatalf("получено только %d сообщений", i)
		}
	}
	if len(uniq) != 10 {
		t.Errorf("Expected 10 unique messages, got %d", len(uniq))
	}
}

func TestSafeWriter_BinaryEnvelope(t *testing.T) {
	server, msgs, types := echoServer(t, 1)
	wsConn := dial(t, server.URL)
	defer wsConn.Close()

	writer := NewSafeWriter(wsConn, time.Second)
	if err := writer.WriteEnvelope(Envelope{T: MsgError, Data: ErrorMsg{Msg: "нет", Seq: 3}}, true); err != nil {
		t.Fatalf("WriteEnvelope: %v", err)
	}

	raw := <-msgs
	if mt := <-types; mt != websocket.BinaryMessage {
		t.Fatalf("ожидалось бинарное сообщение, тип %d", mt)
	}
	var env struct {
		T string   `msgpack:"t"`
		D ErrorMsg `msgpack:"d"`
	}
	if err := msgpack.Unmarshal(raw, &env); err != nil {
		t.Fatalf("msgpack: %v", err)
	}
	if env.T != MsgError || env.D.Seq != 3 || env.D.Msg != "нет" {
		t.Errorf("содержимое: %+v", env)
	}
}

func TestSafeWriter_Close(t *testing.T) {
	server, _, _ := echoServer(t, 1)
	wsConn := dial(t, server.URL)

	// Создаем SafeWriter и сразу закрываем
	writer := NewSafeWriter(wsConn, time.Second)
	if err := writer.Close(); err != nil {
		t.Errorf("Error closing connection: %v", err)
	}

	// Попытка записи в закрытое соединение должна вернуть ошибку
	if err := writer.WriteMessage(websocket.TextMessage, []byte("test")); err == nil {
		t.Error("Expected error when writing to closed connection, got nil")
	}
}
