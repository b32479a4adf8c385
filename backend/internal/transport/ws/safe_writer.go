package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// SafeWriter обеспечивает потокобезопасную запись в WebSocket соединение
type SafeWriter struct {
	conn      *websocket.Conn
	mutex     sync.Mutex
	writeWait time.Duration
}

// NewSafeWriter создает новый экземпляр SafeWriter. writeWait ограничивает одну запись;
// ноль отключает дедлайн.
func NewSafeWriter(conn *websocket.Conn, writeWait time.Duration) *SafeWriter {
	return &SafeWriter{
		conn:      conn,
		writeWait: writeWait,
	}
}

func (w *SafeWriter) deadline() time.Time {
	if w.writeWait <= 0 {
		return time.Time{}
	}
	return time.Now().Add(w.writeWait)
}

// WriteMessage потокобезопасно записывает сообщение в WebSocket соединение
func (w *SafeWriter) WriteMessage(messageType int, data []byte) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if err := w.conn.SetWriteDeadline(w.deadline()); err != nil {
		return err
	}
	return w.conn.WriteMessage(messageType, data)
}

// WriteEnvelope сериализует конверт в нужном формате и записывает его
func (w *SafeWriter) WriteEnvelope(env Envelope, binary bool) error {
	data, err := encode(env, binary)
	if err != nil {
		return err
	}
	if binary {
		return w.WriteMessage(websocket.BinaryMessage, data)
	}
	return w.WriteMessage(websocket.TextMessage, data)
}

// WritePing отправляет управляющий кадр ping
func (w *SafeWriter) WritePing() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	deadline := w.deadline()
	if deadline.IsZero() {
		deadline = time.Now().Add(time.Second)
	}
	return w.conn.WriteControl(websocket.PingMessage, nil, deadline)
}

// Close отправляет кадр закрытия и закрывает соединение
func (w *SafeWriter) Close() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return w.conn.Close()
}

// ReadMessage читает сообщение из WebSocket соединения (небезопасно для параллельного чтения)
func (w *SafeWriter) ReadMessage() (int, []byte, error) {
	return w.conn.ReadMessage()
}
