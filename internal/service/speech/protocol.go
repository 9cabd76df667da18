package speech

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// 火山引擎二进制帧协议：4 字节头 + 可选序号/事件 + 4 字节长度 + payload，均为大端序。
const protocolVersion = 0b0001

// MessageType 消息类型
type MessageType uint8

const (
	FullClientRequest       MessageType = 0b0001
	AudioOnlyRequest        MessageType = 0b0010
	FullServerResponse      MessageType = 0b1001
	AudioOnlyServerResponse MessageType = 0b1011
	ErrorMessage            MessageType = 0b1111
)

// MessageFlags 消息特定标志
type MessageFlags uint8

const (
	NoSequenceNumber       MessageFlags = 0b0000
	PositiveSequenceNumber MessageFlags = 0b0001
	// LastPacketNoSequence 最后一包，不带序号
	LastPacketNoSequence MessageFlags = 0b0010
	// NegativeSequenceNumber 最后一包，序号取负
	NegativeSequenceNumber MessageFlags = 0b0011
	WithEvent              MessageFlags = 0b0100
)

// EventType 服务端事件类型
type EventType int32

const (
	EventStartConnection    EventType = 1
	EventFinishConnection   EventType = 2
	EventConnectionStarted  EventType = 50
	EventConnectionFailed   EventType = 51
	EventConnectionFinished EventType = 52
	EventSessionStarted     EventType = 150
	EventSessionFinished    EventType = 152
	EventSessionFailed      EventType = 153
)

// Serialization 序列化方法
type Serialization uint8

const (
	NoSerialization   Serialization = 0b0000
	JSONSerialization Serialization = 0b0001
)

// Compression 压缩方法
type Compression uint8

const (
	NoCompression   Compression = 0b0000
	GzipCompression Compression = 0b0001
)

var errShortFrame = errors.New("frame truncated")

// Frame 是一条完整的协议消息。
type Frame struct {
	Type          MessageType
	Flags         MessageFlags
	Serialization Serialization
	Compression   Compression

	Sequence  int32
	Event     EventType
	SessionID string
	ConnectID string
	ErrorCode uint32
	Payload   []byte
}

func (f *Frame) hasSequence() bool {
	switch f.Flags & 0b0011 {
	case PositiveSequenceNumber, NegativeSequenceNumber:
		return true
	default:
		return false
	}
}

func (f *Frame) hasEvent() bool {
	return f.Flags&WithEvent == WithEvent
}

// IsLast 判断是否为最后一包
func (f *Frame) IsLast() bool {
	switch f.Flags & 0b0011 {
	case LastPacketNoSequence, NegativeSequenceNumber:
		return true
	default:
		return false
	}
}

// Marshal 编码为二进制帧
func (f *Frame) Marshal() []byte {
	buf := make([]byte, 0, 16+len(f.Payload))
	buf = append(buf,
		protocolVersion<<4|0b0001,
		uint8(f.Type)<<4|uint8(f.Flags),
		uint8(f.Serialization)<<4|uint8(f.Compression),
		0x00,
	)

	if f.hasSequence() {
		buf = binary.BigEndian.AppendUint32(buf, uint32(f.Sequence))
	}
	if f.hasEvent() {
		buf = binary.BigEndian.AppendUint32(buf, uint32(f.Event))
		if !eventSkipsSessionID(f.Event) {
			buf = appendString(buf, f.SessionID)
		}
		if eventHasConnectID(f.Event) {
			buf = appendString(buf, f.ConnectID)
		}
	}
	if f.Type == ErrorMessage {
		buf = binary.BigEndian.AppendUint32(buf, f.ErrorCode)
	}

	buf = binary.BigEndian.AppendUint32(buf, uint32(len(f.Payload)))
	return append(buf, f.Payload...)
}

// UnmarshalFrame 解码二进制帧
func UnmarshalFrame(data []byte) (*Frame, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("header: %w", errShortFrame)
	}
	if v := data[0] >> 4; v != protocolVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", v)
	}

	f := &Frame{
		Type:          MessageType(data[1] >> 4),
		Flags:         MessageFlags(data[1] & 0x0F),
		Serialization: Serialization(data[2] >> 4),
		Compression:   Compression(data[2] & 0x0F),
	}

	// header size 以 4 字节为单位，跳过扩展头
	r := reader{buf: data, off: int(data[0]&0x0F) * 4}
	if r.off < 4 || r.off > len(data) {
		return nil, fmt.Errorf("header size: %w", errShortFrame)
	}

	if f.hasSequence() {
		f.Sequence = int32(r.uint32())
	}
	if f.hasEvent() {
		f.Event = EventType(int32(r.uint32()))
		if !eventSkipsSessionID(f.Event) {
			f.SessionID = r.string()
		}
		if eventHasConnectID(f.Event) {
			f.ConnectID = r.string()
		}
	}
	if f.Type == ErrorMessage {
		f.ErrorCode = r.uint32()
	}

	size := r.uint32()
	f.Payload = r.bytes(int(size))
	if r.err != nil {
		return nil, fmt.Errorf("decode %d-byte frame: %w", len(data), r.err)
	}
	return f, nil
}

func eventSkipsSessionID(event EventType) bool {
	switch event {
	case EventStartConnection, EventFinishConnection,
		EventConnectionStarted, EventConnectionFailed, EventConnectionFinished:
		return true
	default:
		return false
	}
}

func eventHasConnectID(event EventType) bool {
	switch event {
	case EventConnectionStarted, EventConnectionFailed, EventConnectionFinished:
		return true
	default:
		return false
	}
}

func appendString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

// reader 顺序读取帧字段，首个越界错误之后的读取都返回零值。
type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.buf) {
		r.err = errShortFrame
		return nil
	}
	out := r.buf[r.off : r.off+n]
	r.off += n
	if n == 0 {
		return nil
	}
	return append([]byte(nil), out...)
}

func (r *reader) uint32() uint32 {
	b := r.bytes(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *reader) string() string {
	n := r.uint32()
	return string(r.bytes(int(n)))
}

// newClientRequest 创建完整客户端请求
func newClientRequest(payload []byte, compression Compression) *Frame {
	return &Frame{
		Type:          FullClientRequest,
		Flags:         NoSequenceNumber,
		Serialization: JSONSerialization,
		Compression:   compression,
		Payload:       payload,
	}
}

// newAudioRequest 创建音频包，最后一包以负序号标记。
func newAudioRequest(audio []byte, sequence int32, last bool, compression Compression) *Frame {
	flags := PositiveSequenceNumber
	if last {
		flags = NegativeSequenceNumber
		sequence = -sequence
	}
	return &Frame{
		Type:          AudioOnlyRequest,
		Flags:         flags,
		Serialization: NoSerialization,
		Compression:   compression,
		Sequence:      sequence,
		Payload:       audio,
	}
}
