package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"orbitfire/utils"
)

// Codec はイベントとワイヤ表現 {event, data} を相互変換します。
// Decode は必須フィールドの欠落や非有限値を ErrMalformedPayload として返します。
type Codec interface {
	Encode(ev Event) ([]byte, error)
	Decode(data []byte) (Event, error)
}

const (
	CodecJSON    = "json"
	CodecMsgpack = "msgpack"
)

var ErrUnknownCodec = errors.New("unknown codec")

func NewCodec(name string) (Codec, error) {
	switch name {
	case CodecJSON:
		return NewJSONCodec(), nil
	case CodecMsgpack:
		return NewMsgpackCodec(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

type outEnvelope struct {
	Event EventName `json:"event" msgpack:"event"`
	Data  any       `json:"data" msgpack:"data"`
}

type jsonInEnvelope struct {
	Event EventName       `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type msgpackInEnvelope struct {
	Event EventName          `msgpack:"event"`
	Data  msgpack.RawMessage `msgpack:"data"`
}

// envelopeCodec はフォーマット固有の marshal/unmarshal を差し替えて共通のデコード規則を適用します。
type envelopeCodec struct {
	marshal   func(v any) ([]byte, error)
	unmarshal func(data []byte, v any) error
	split     func(data []byte) (EventName, []byte, error)
}

func NewJSONCodec() Codec {
	return &envelopeCodec{
		marshal:   json.Marshal,
		unmarshal: json.Unmarshal,
		split: func(data []byte) (EventName, []byte, error) {
			var env jsonInEnvelope
			if err := json.Unmarshal(data, &env); err != nil {
				return "", nil, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
			}
			if bytes.Equal(bytes.TrimSpace(env.Data), []byte("null")) {
				env.Data = nil
			}
			return env.Event, env.Data, nil
		},
	}
}

func NewMsgpackCodec() Codec {
	return &envelopeCodec{
		marshal:   msgpack.Marshal,
		unmarshal: msgpack.Unmarshal,
		split: func(data []byte) (EventName, []byte, error) {
			var env msgpackInEnvelope
			if err := msgpack.Unmarshal(data, &env); err != nil {
				return "", nil, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
			}
			// msgpack の nil (0xc0)
			if len(env.Data) == 1 && env.Data[0] == 0xc0 {
				env.Data = nil
			}
			return env.Event, env.Data, nil
		},
	}
}

func (c *envelopeCodec) Encode(ev Event) ([]byte, error) {
	if ev == nil {
		return nil, fmt.Errorf("%w: nil event", ErrMalformedPayload)
	}
	var payload any = ev
	if d, ok := ev.(PlayerDisconnected); ok {
		payload = d.ID.String()
	}
	return c.marshal(outEnvelope{Event: ev.Name(), Data: payload})
}

func (c *envelopeCodec) Decode(data []byte) (Event, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty message", ErrMalformedEnvelope)
	}
	name, raw, err := c.split(data)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("%w: missing event name", ErrMalformedEnvelope)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: %s: missing data", ErrMalformedPayload, name)
	}

	switch name {
	case EventUpdatePosition:
		var w updatePositionWire
		if err := c.payload(name, raw, &w); err != nil {
			return nil, err
		}
		return w.event()
	case EventShoot:
		var w shotWire
		if err := c.payload(name, raw, &w); err != nil {
			return nil, err
		}
		pos, dir, err := w.vectors(name)
		if err != nil {
			return nil, err
		}
		return Shoot{Position: pos, Direction: dir}, nil
	case EventPlayerShot:
		var w shotWire
		if err := c.payload(name, raw, &w); err != nil {
			return nil, err
		}
		id, err := requiredID(name, w.ID)
		if err != nil {
			return nil, err
		}
		pos, dir, err := w.vectors(name)
		if err != nil {
			return nil, err
		}
		return PlayerShot{ID: id, Position: pos, Direction: dir}, nil
	case EventPlayerHit:
		var w idWire
		if err := c.payload(name, raw, &w); err != nil {
			return nil, err
		}
		id, err := requiredID(name, w.ID)
		if err != nil {
			return nil, err
		}
		return PlayerHit{ID: id}, nil
	case EventAssign:
		var w idWire
		if err := c.payload(name, raw, &w); err != nil {
			return nil, err
		}
		id, err := requiredID(name, w.ID)
		if err != nil {
			return nil, err
		}
		return Assign{ID: id}, nil
	case EventPlayerDisconnected:
		var s string
		if err := c.payload(name, raw, &s); err != nil {
			return nil, err
		}
		id, err := requiredID(name, &s)
		if err != nil {
			return nil, err
		}
		return PlayerDisconnected{ID: id}, nil
	case EventPing, EventPong:
		var w timestampWire
		if err := c.payload(name, raw, &w); err != nil {
			return nil, err
		}
		ts, err := required(name, "ts", w.Timestamp)
		if err != nil {
			return nil, err
		}
		if name == EventPing {
			return Ping{Timestamp: ts}, nil
		}
		return Pong{Timestamp: ts}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}
}

func (c *envelopeCodec) payload(name EventName, raw []byte, v any) error {
	if err := c.unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrMalformedPayload, name, err)
	}
	return nil
}

// ワイヤ用の構造体。ポインタで欠落を検出する。

type vec3Wire struct {
	X *float64 `json:"x" msgpack:"x"`
	Y *float64 `json:"y" msgpack:"y"`
	Z *float64 `json:"z" msgpack:"z"`
}

type updatePositionWire struct {
	ID       *string   `json:"id" msgpack:"id"`
	Position *vec3Wire `json:"position" msgpack:"position"`
	Rotation *float64  `json:"rotation" msgpack:"rotation"`
}

type shotWire struct {
	ID        *string   `json:"id" msgpack:"id"`
	Position  *vec3Wire `json:"position" msgpack:"position"`
	Direction *vec3Wire `json:"direction" msgpack:"direction"`
}

type idWire struct {
	ID *string `json:"id" msgpack:"id"`
}

type timestampWire struct {
	Timestamp *int64 `json:"ts" msgpack:"ts"`
}

func (w updatePositionWire) event() (Event, error) {
	id, err := requiredID(EventUpdatePosition, w.ID)
	if err != nil {
		return nil, err
	}
	pos, err := requiredVec(EventUpdatePosition, "position", w.Position)
	if err != nil {
		return nil, err
	}
	rot, err := required(EventUpdatePosition, "rotation", w.Rotation)
	if err != nil {
		return nil, err
	}
	if !utils.IsFinite(rot) {
		return nil, fmt.Errorf("%w: %s.rotation is not finite", ErrMalformedPayload, EventUpdatePosition)
	}
	return UpdatePosition{ID: id, Position: pos, Rotation: rot}, nil
}

func (w shotWire) vectors(name EventName) (Vec3, Vec3, error) {
	pos, err := requiredVec(name, "position", w.Position)
	if err != nil {
		return Vec3{}, Vec3{}, err
	}
	dir, err := requiredVec(name, "direction", w.Direction)
	if err != nil {
		return Vec3{}, Vec3{}, err
	}
	if dir.Vec().Len() == 0 {
		return Vec3{}, Vec3{}, fmt.Errorf("%w: %s.direction is zero", ErrMalformedPayload, name)
	}
	return pos, dir, nil
}

func required[T any](name EventName, field string, p *T) (T, error) {
	if p == nil {
		var zero T
		return zero, fmt.Errorf("%w: %s.%s missing", ErrMalformedPayload, name, field)
	}
	return *p, nil
}

func requiredID(name EventName, p *string) (SessionID, error) {
	s, err := required(name, "id", p)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", fmt.Errorf("%w: %s.id empty", ErrMalformedPayload, name)
	}
	return SessionID(s), nil
}

func requiredVec(name EventName, field string, w *vec3Wire) (Vec3, error) {
	if w == nil {
		return Vec3{}, fmt.Errorf("%w: %s.%s missing", ErrMalformedPayload, name, field)
	}
	x, err := required(name, field+".x", w.X)
	if err != nil {
		return Vec3{}, err
	}
	y, err := required(name, field+".y", w.Y)
	if err != nil {
		return Vec3{}, err
	}
	z, err := required(name, field+".z", w.Z)
	if err != nil {
		return Vec3{}, err
	}
	v := Vec3{X: x, Y: y, Z: z}
	if !utils.FiniteVec(v.Vec()) {
		return Vec3{}, fmt.Errorf("%w: %s.%s is not finite", ErrMalformedPayload, name, field)
	}
	return v, nil
}
