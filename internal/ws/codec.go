package ws

import (
	"encoding/json"
	"fmt"
)

// Encode serializes a message for the channel. The type field is always
// filled from the message kind, so callers may leave it empty.
func Encode(msg Message) ([]byte, error) {
	var v any
	switch m := msg.(type) {
	case Init:
		m.Type = TypeInit
		v = m
	case Resize:
		m.Type = TypeResize
		v = m
	case Input:
		m.Type = TypeInput
		v = m
	case Ping:
		m.Type = TypePing
		v = m
	case Output:
		m.Type = TypeOutput
		v = m
	case Ready:
		m.Type = TypeReady
		v = m
	case Exit:
		m.Type = TypeExit
		v = m
	case ErrorMsg:
		m.Type = TypeError
		v = m
	case Pong:
		m.Type = TypePong
		v = m
	case RawBytes:
		return append([]byte(nil), m...), nil
	case Unknown:
		return append([]byte(nil), m.Payload...), nil
	default:
		return nil, fmt.Errorf("encode: unsupported message %T", msg)
	}
	return json.Marshal(v)
}

// MustEncode is Encode for messages built by this package's callers, where
// a failure is a programming error.
func MustEncode(msg Message) []byte {
	data, err := Encode(msg)
	if err != nil {
		panic(err)
	}
	return data
}

// Decode parses a channel payload. It never fails: anything that is not a
// JSON object with a non-empty type comes back as RawBytes, and a known
// type whose fields do not fit degrades the same way.
func Decode(payload []byte) Message {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil || env.Type == "" {
		return raw(payload)
	}

	var (
		msg Message
		err error
	)
	switch env.Type {
	case TypeInit:
		var m Init
		err = json.Unmarshal(payload, &m)
		msg = m
	case TypeResize:
		var m Resize
		err = json.Unmarshal(payload, &m)
		msg = m
	case TypeInput:
		var m Input
		err = json.Unmarshal(payload, &m)
		msg = m
	case TypePing:
		msg = Ping{Type: TypePing}
	case TypeOutput:
		var m Output
		err = json.Unmarshal(payload, &m)
		msg = m
	case TypeReady:
		var m Ready
		err = json.Unmarshal(payload, &m)
		msg = m
	case TypeExit:
		var m Exit
		err = json.Unmarshal(payload, &m)
		msg = m
	case TypeError:
		var m ErrorMsg
		err = json.Unmarshal(payload, &m)
		msg = m
	case TypePong:
		msg = Pong{Type: TypePong}
	default:
		return Unknown{Type: env.Type, Payload: append([]byte(nil), payload...)}
	}
	if err != nil {
		return raw(payload)
	}
	return msg
}

func raw(payload []byte) RawBytes {
	return RawBytes(append([]byte(nil), payload...))
}
