package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/vmihailenco/msgpack/v5"

	"carnivores-ballistics/backend/internal/ballistics"
)

// Клиент -> сервер
const (
	MsgPing = "ping" // Пинг для измерения задержки
	MsgFire = "fire" // Выстрел
)

// Сервер -> клиент
const (
	MsgPong   = "pong"
	MsgInfo   = "info"
	MsgAck    = "ack" // Выстрел принят, в ответе id снаряда
	MsgError  = "error"
	MsgState  = "state"
	MsgImpact = "impact"
	MsgFace   = "face"
	MsgEffect = "effect"
)

var ErrInvalidMessage = errors.New("ws: некорректное сообщение")

// Envelope оборачивает все исходящие сообщения полем типа
type Envelope struct {
	T    string      `json:"t" msgpack:"t"`
	Data interface{} `json:"d,omitempty" msgpack:"d,omitempty"`
}

// inEnvelope входящее текстовое сообщение; данные разбираются после выбора типа
type inEnvelope struct {
	T string          `json:"t"`
	D json.RawMessage `json:"d,omitempty"`
}

// inBinaryEnvelope входящее сообщение в msgpack
type inBinaryEnvelope struct {
	T string             `msgpack:"t"`
	D msgpack.RawMessage `msgpack:"d"`
}

// FireMsg запрос выстрела
type FireMsg struct {
	Origin    mgl64.Vec3 `json:"origin" msgpack:"origin"`
	Direction mgl64.Vec3 `json:"dir" msgpack:"dir"`
	Speed     float64    `json:"speed" msgpack:"speed"`
	Damage    float64    `json:"damage" msgpack:"damage"`
	// Seq клиентский номер выстрела, возвращается в ack или error
	Seq uint32 `json:"seq,omitempty" msgpack:"seq,omitempty"`
}

type PingMsg struct {
	ClientTime int64 `json:"client_time" msgpack:"client_time"`
}

type PongMsg struct {
	ClientTime int64 `json:"client_time" msgpack:"client_time"`
	ServerTime int64 `json:"server_time" msgpack:"server_time"`
}

type AckMsg struct {
	Seq          uint32 `json:"seq" msgpack:"seq"`
	ProjectileID uint64 `json:"id" msgpack:"id"`
}

type ErrorMsg struct {
	Msg string `json:"msg" msgpack:"msg"`
	Seq uint32 `json:"seq,omitempty" msgpack:"seq,omitempty"`
}

type InfoMsg struct {
	Message string `json:"message" msgpack:"message"`
	Format  string `json:"format" msgpack:"format"`
}

// StateMsg периодическое состояние летящих снарядов
type StateMsg struct {
	Tick        uint64                          `json:"tick" msgpack:"tick"`
	Time        float64                         `json:"time" msgpack:"time"`
	Projectiles []ballistics.ProjectileSnapshot `json:"projectiles" msgpack:"projectiles"`
}

// ObjectMsg ссылка на экземпляр объекта мира
type ObjectMsg struct {
	Type     int    `json:"type" msgpack:"type"`
	Instance int    `json:"instance" msgpack:"instance"`
	Name     string `json:"name,omitempty" msgpack:"name,omitempty"`
}

type ImpactMsg struct {
	ProjectileID uint64     `json:"id" msgpack:"id"`
	Position     mgl64.Vec3 `json:"pos" msgpack:"pos"`
	Normal       mgl64.Vec3 `json:"normal" msgpack:"normal"`
	Surface      string     `json:"surface" msgpack:"surface"`
	Tier         string     `json:"tier" msgpack:"tier"`
	Distance     float64    `json:"distance" msgpack:"distance"`
	Damage       float64    `json:"damage" msgpack:"damage"`
	Object       *ObjectMsg `json:"object,omitempty" msgpack:"object,omitempty"`
	Tile         *[2]int    `json:"tile,omitempty" msgpack:"tile,omitempty"`
	Time         float64    `json:"time" msgpack:"time"`
}

type FaceMsg struct {
	ProjectileID uint64     `json:"id" msgpack:"id"`
	Position     mgl64.Vec3 `json:"pos" msgpack:"pos"`
	Normal       mgl64.Vec3 `json:"normal" msgpack:"normal"`
	Incoming     mgl64.Vec3 `json:"incoming" msgpack:"incoming"`
	Surface      string     `json:"surface" msgpack:"surface"`
	Tier         string     `json:"tier" msgpack:"tier"`
	Object       string     `json:"object,omitempty" msgpack:"object,omitempty"`
	NoLight      bool       `json:"no_light,omitempty" msgpack:"no_light,omitempty"`
	Tile         *[2]int    `json:"tile,omitempty" msgpack:"tile,omitempty"`
}

type EffectMsg struct {
	Kind     string     `json:"kind" msgpack:"kind"`
	Position mgl64.Vec3 `json:"pos" msgpack:"pos"`
	Normal   mgl64.Vec3 `json:"normal" msgpack:"normal"`
	Surface  string     `json:"surface" msgpack:"surface"`
	Object   *ObjectMsg `json:"object,omitempty" msgpack:"object,omitempty"`
}

// GetCurrentServerTime возвращает текущее серверное время в миллисекундах
func GetCurrentServerTime() int64 {
	return time.Now().UnixMilli()
}

func objectMsg(ref ballistics.ObjectRef) *ObjectMsg {
	if !ref.Valid {
		return nil
	}
	return &ObjectMsg{Type: ref.ObjectIndex, Instance: ref.InstanceIndex, Name: ref.Name}
}

func tileOf(x, z int, ok bool) *[2]int {
	if !ok {
		return nil
	}
	return &[2]int{x, z}
}

// NewImpactMessage переводит событие попадания в сообщение клиенту
func NewImpactMessage(e ballistics.ImpactEvent) ImpactMsg {
	return ImpactMsg{
		ProjectileID: e.ProjectileID,
		Position:     e.Position,
		Normal:       e.Normal,
		Surface:      e.Surface.String(),
		Tier:         e.Tier.String(),
		Distance:     e.Distance,
		Damage:       e.Damage,
		Object:       objectMsg(e.Ref),
		Tile:         tileOf(e.TileX, e.TileZ, e.HasTile),
		Time:         e.Time.Seconds(),
	}
}

// NewFaceMessage переводит диагностическое пересечение в сообщение клиенту
func NewFaceMessage(f ballistics.FaceIntersection) FaceMsg {
	return FaceMsg{
		ProjectileID: f.ProjectileID,
		Position:     f.Position,
		Normal:       f.Normal,
		Incoming:     f.Incoming,
		Surface:      f.Surface.String(),
		Tier:         f.Tier.String(),
		Object:       f.ObjectName,
		NoLight:      f.NoLight,
		Tile:         tileOf(f.TileX, f.TileZ, f.HasTile),
	}
}

// NewEffectMessage переводит запрос эффекта в сообщение клиенту
func NewEffectMessage(e ballistics.Effect) EffectMsg {
	return EffectMsg{
		Kind:     e.Kind.String(),
		Position: e.Position,
		Normal:   e.Normal,
		Surface:  e.Surface.String(),
		Object:   objectMsg(e.Ref),
	}
}

// encode сериализует конверт в JSON или msgpack
func encode(env Envelope, binary bool) ([]byte, error) {
	if binary {
		return msgpack.Marshal(env)
	}
	return json.Marshal(env)
}

// decodeFunc разбирает данные входящего сообщения в v
type decodeFunc func(v interface{}) error

// parseMessage выделяет тип входящего сообщения и функцию разбора его данных
func parseMessage(data []byte, binary bool) (string, decodeFunc, error) {
	if binary {
		var env inBinaryEnvelope
		if err := msgpack.Unmarshal(data, &env); err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
		return env.T, func(v interface{}) error {
			if len(env.D) == 0 {
				return nil
			}
			return msgpack.Unmarshal(env.D, v)
		}, nil
	}

	var env inEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return env.T, func(v interface{}) error {
		if len(env.D) == 0 {
			return nil
		}
		return json.Unmarshal(env.D, v)
	}, nil
}
