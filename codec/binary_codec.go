package codec

import (
	"encoding/binary"
	"errors"
	"fmt"

	"wrap-rpc/message"
)

// BinaryCodec packs an RPCMessage as length-prefixed fields:
//
//	[2B method len][method][4B payload len][payload]
//
// The payload bytes ride through opaque — an envelope stays JSON inside a
// binary-packed message.
type BinaryCodec struct{}

func (c *BinaryCodec) Encode(v any) ([]byte, error) {
	msg, ok := v.(*message.RPCMessage)
	if !ok {
		return nil, errors.New("BinaryCodec: v must be *RPCMessage")
	}

	total := 2 + len(msg.ServiceMethod) + 4 + len(msg.Payload)
	buf := make([]byte, total)

	offset := 0
	binary.BigEndian.PutUint16(buf[offset:offset+2], uint16(len(msg.ServiceMethod)))
	offset += 2
	copy(buf[offset:offset+len(msg.ServiceMethod)], msg.ServiceMethod)
	offset += len(msg.ServiceMethod)

	binary.BigEndian.PutUint32(buf[offset:offset+4], uint32(len(msg.Payload)))
	offset += 4
	copy(buf[offset:offset+len(msg.Payload)], msg.Payload)

	return buf, nil
}

func (c *BinaryCodec) Decode(data []byte, v any) error {
	msg, ok := v.(*message.RPCMessage)
	if !ok {
		return errors.New("BinaryCodec: v must be *RPCMessage")
	}

	offset := 0
	if len(data) < offset+2 {
		return fmt.Errorf("BinaryCodec: truncated method length")
	}
	strLen := int(binary.BigEndian.Uint16(data[offset : offset+2]))
	offset += 2
	if len(data) < offset+strLen {
		return fmt.Errorf("BinaryCodec: truncated method")
	}
	msg.ServiceMethod = string(data[offset : offset+strLen])
	offset += strLen

	if len(data) < offset+4 {
		return fmt.Errorf("BinaryCodec: truncated payload length")
	}
	payloadLen := int(binary.BigEndian.Uint32(data[offset : offset+4]))
	offset += 4
	if len(data) < offset+payloadLen {
		return fmt.Errorf("BinaryCodec: truncated payload")
	}
	msg.Payload = make([]byte, payloadLen)
	copy(msg.Payload, data[offset:offset+payloadLen])

	return nil
}

func (c *BinaryCodec) Type() CodecType {
	return CodecTypeBinary
}
