package ws

import "sync"

// client одно WebSocket соединение с очередью исходящих сообщений
type client struct {
	conn   *SafeWriter
	binary bool // msgpack вместо JSON
	faces  bool // подписка на диагностические пересечения

	send chan []byte
	done chan struct{}
	once sync.Once
}

func newClient(conn *SafeWriter, binary, faces bool, buffer int) *client {
	return &client{
		conn:   conn,
		binary: binary,
		faces:  faces,
		send:   make(chan []byte, buffer),
		done:   make(chan struct{}),
	}
}

func (c *client) format() string {
	if c.binary {
		return "msgpack"
	}
	return "json"
}

// enqueue не блокирует игровой цикл: при полной очереди сообщение отбрасывается
func (c *client) enqueue(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}
