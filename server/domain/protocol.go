package domain

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// バイトオーダー: リトルエンディアン
var byteOrder = binary.LittleEndian

const (
	ProtocolVersion    = 1
	HeaderSize         = 25
	PayloadHeaderSize  = 2
	JoinPayloadSize    = 16
	CameraPayloadSize  = 16
	CapturePayloadSize = 32
)

// Header はメッセージヘッダー (25バイト)
//
//	version    u8      (1)
//	sessionID  [16]byte (16)
//	seq        u16     (2)
//	length     u16     (2)  - ペイロード長 (65535 で頭打ち)
//	timestamp  u32     (4)
type Header struct {
	Version   uint8
	SessionID [16]byte
	Seq       uint16
	Length    uint16
	Timestamp uint32
}

// DataType はメッセージの種別
type DataType uint8

const (
	DataTypeControl DataType = 1
	DataTypeCamera  DataType = 2
	DataTypeFocus   DataType = 3
	DataTypeCapture DataType = 4
)

// ControlSubType はcontrolメッセージのサブタイプ
type ControlSubType uint8

const (
	ControlSubTypeJoin   ControlSubType = 1
	ControlSubTypeLeave  ControlSubType = 2
	ControlSubTypeKick   ControlSubType = 3
	ControlSubTypePing   ControlSubType = 4
	ControlSubTypePong   ControlSubType = 5
	ControlSubTypeError  ControlSubType = 6
	ControlSubTypeAssign ControlSubType = 7
)

const CameraSubTypeUpdate uint8 = 1

const FocusSubTypeSnapshot uint8 = 1

// CaptureSubType はcaptureメッセージのサブタイプ
type CaptureSubType uint8

const (
	CaptureSubTypeRequest CaptureSubType = 1
	CaptureSubTypeResult  CaptureSubType = 2
	CaptureSubTypeError   CaptureSubType = 3
)

// PayloadHeader はペイロードヘッダー (2バイト)
//
//	datatype  u8 (1)
//	subtype   u8 (1)
type PayloadHeader struct {
	DataType DataType
	SubType  uint8
}

var (
	ErrInvalidHeaderSize         = errors.New("invalid header size")
	ErrInvalidPayloadSize        = errors.New("invalid payload size")
	ErrInvalidJoinPayloadSize    = errors.New("invalid join payload size")
	ErrInvalidCameraPayloadSize  = errors.New("invalid camera payload size")
	ErrInvalidCapturePayloadSize = errors.New("invalid capture payload size")
)

// ParseHeader はバイト列からHeaderをパースする
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, ErrInvalidHeaderSize
	}

	var sessionID [16]byte
	copy(sessionID[:], data[1:17])

	return &Header{
		Version:   data[0],
		SessionID: sessionID,
		Seq:       byteOrder.Uint16(data[17:19]),
		Length:    byteOrder.Uint16(data[19:21]),
		Timestamp: byteOrder.Uint32(data[21:25]),
	}, nil
}

// Encode はHeaderをバイト列にエンコードする
func (h *Header) Encode() []byte {
	data := make([]byte, HeaderSize)
	data[0] = h.Version
	copy(data[1:17], h.SessionID[:])
	byteOrder.PutUint16(data[17:19], h.Seq)
	byteOrder.PutUint16(data[19:21], h.Length)
	byteOrder.PutUint32(data[21:25], h.Timestamp)
	return data
}

// ParsePayloadHeader はバイト列からPayloadHeaderをパースする
func ParsePayloadHeader(data []byte) (*PayloadHeader, error) {
	if len(data) < PayloadHeaderSize {
		return nil, ErrInvalidPayloadSize
	}

	return &PayloadHeader{
		DataType: DataType(data[0]),
		SubType:  data[1],
	}, nil
}

// Encode はPayloadHeaderをバイト列にエンコードする
func (p *PayloadHeader) Encode() []byte {
	return []byte{byte(p.DataType), p.SubType}
}

// Frame はヘッダーを剥がした受信メッセージ
type Frame struct {
	Header        Header
	PayloadHeader PayloadHeader
	Body          []byte
}

// ParseFrame はヘッダー・ペイロードヘッダー・本体に分解する
func ParseFrame(data []byte) (*Frame, error) {
	header, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}
	payloadHeader, err := ParsePayloadHeader(data[HeaderSize:])
	if err != nil {
		return nil, err
	}
	return &Frame{
		Header:        *header,
		PayloadHeader: *payloadHeader,
		Body:          data[HeaderSize+PayloadHeaderSize:],
	}, nil
}

// EncodeMessage はヘッダーを付けて1メッセージに組み立てる
func EncodeMessage(sessionID SessionID, seq uint16, dataType DataType, subType uint8, body []byte) []byte {
	length := PayloadHeaderSize + len(body)
	header := Header{
		Version:   ProtocolVersion,
		SessionID: sessionID.Bytes(),
		Seq:       seq,
		Length:    uint16(min(length, math.MaxUint16)),
		Timestamp: uint32(time.Now().UnixMilli() & 0xFFFFFFFF),
	}
	payloadHeader := PayloadHeader{DataType: dataType, SubType: subType}

	data := make([]byte, 0, HeaderSize+length)
	data = append(data, header.Encode()...)
	data = append(data, payloadHeader.Encode()...)
	data = append(data, body...)
	return data
}

func encodeControl(sessionID SessionID, subType ControlSubType, body []byte) []byte {
	return EncodeMessage(sessionID, 0, DataTypeControl, uint8(subType), body)
}

// EncodeAssignMessage はセッションID通知メッセージをエンコードする
func EncodeAssignMessage(sessionID SessionID) []byte {
	return encodeControl(sessionID, ControlSubTypeAssign, nil)
}

// EncodeJoinMessage はルーム参加メッセージをエンコードする。空のroomIDは自動割り当て。
func EncodeJoinMessage(sessionID SessionID, roomID RoomID) []byte {
	payload := JoinPayload{RoomID: roomID}
	return encodeControl(sessionID, ControlSubTypeJoin, payload.Encode())
}

// EncodeLeaveMessage はルーム離脱メッセージをエンコードする
func EncodeLeaveMessage(sessionID SessionID) []byte {
	return encodeControl(sessionID, ControlSubTypeLeave, nil)
}

// EncodePingMessage はPingメッセージをエンコードする
func EncodePingMessage(sessionID SessionID) []byte {
	return encodeControl(sessionID, ControlSubTypePing, nil)
}

func EncodePongMessage(sessionID SessionID) []byte {
	return encodeControl(sessionID, ControlSubTypePong, nil)
}

// JoinPayload はルーム参加メッセージのペイロード (16バイト)
//
//	roomID  [16]byte  - ルームID (UUID)
type JoinPayload struct {
	RoomID RoomID
}

// ParseJoinPayload はバイト列からJoinPayloadをパースする
func ParseJoinPayload(data []byte) (*JoinPayload, error) {
	if len(data) < JoinPayloadSize {
		return nil, ErrInvalidJoinPayloadSize
	}

	var roomID RoomID
	copy(roomID[:], data[:JoinPayloadSize])
	return &JoinPayload{RoomID: roomID}, nil
}

// Encode はJoinPayloadをバイト列にエンコードする
func (j *JoinPayload) Encode() []byte {
	b := j.RoomID.Bytes()
	return b[:]
}

// CameraPayload はカメラ状態 (16バイト)
//
//	x, y          float32 (8) - カメラ中心
//	width, height float32 (8) - 表示範囲
type CameraPayload struct {
	X, Y          float32
	Width, Height float32
}

// ParseCameraPayload はバイト列からCameraPayloadをパースする
func ParseCameraPayload(data []byte) (*CameraPayload, error) {
	if len(data) < CameraPayloadSize {
		return nil, ErrInvalidCameraPayloadSize
	}
	return &CameraPayload{
		X:      math.Float32frombits(byteOrder.Uint32(data[0:4])),
		Y:      math.Float32frombits(byteOrder.Uint32(data[4:8])),
		Width:  math.Float32frombits(byteOrder.Uint32(data[8:12])),
		Height: math.Float32frombits(byteOrder.Uint32(data[12:16])),
	}, nil
}

// Encode はCameraPayloadをバイト列にエンコードする
func (c *CameraPayload) Encode() []byte {
	data := make([]byte, CameraPayloadSize)
	byteOrder.PutUint32(data[0:4], math.Float32bits(c.X))
	byteOrder.PutUint32(data[4:8], math.Float32bits(c.Y))
	byteOrder.PutUint32(data[8:12], math.Float32bits(c.Width))
	byteOrder.PutUint32(data[12:16], math.Float32bits(c.Height))
	return data
}

// CapturePayload は占領プレビュー要求 (32バイト)
//
//	x, y       int32    (8)
//	requestID  u32      (4)  - 応答との突き合わせ用
//	attacker   [20]byte (20) - 攻撃側アドレス
type CapturePayload struct {
	X, Y      int32
	RequestID uint32
	Attacker  [20]byte
}

// ParseCapturePayload はバイト列からCapturePayloadをパースする
func ParseCapturePayload(data []byte) (*CapturePayload, error) {
	if len(data) < CapturePayloadSize {
		return nil, ErrInvalidCapturePayloadSize
	}
	p := &CapturePayload{
		X:         int32(byteOrder.Uint32(data[0:4])),
		Y:         int32(byteOrder.Uint32(data[4:8])),
		RequestID: byteOrder.Uint32(data[8:12]),
	}
	copy(p.Attacker[:], data[12:32])
	return p, nil
}

// Encode はCapturePayloadをバイト列にエンコードする
func (c *CapturePayload) Encode() []byte {
	data := make([]byte, CapturePayloadSize)
	byteOrder.PutUint32(data[0:4], uint32(c.X))
	byteOrder.PutUint32(data[4:8], uint32(c.Y))
	byteOrder.PutUint32(data[8:12], c.RequestID)
	copy(data[12:32], c.Attacker[:])
	return data
}

// AttackerAddress は攻撃側アドレスを 0x 付きの16進文字列で返す
func (c *CapturePayload) AttackerAddress() string {
	return "0x" + hex.EncodeToString(c.Attacker[:])
}

// ParseAddress は 0x 付きの16進アドレスを20バイトに変換する
func ParseAddress(s string) ([20]byte, error) {
	var out [20]byte
	body := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	b, err := hex.DecodeString(body)
	if err != nil {
		return out, err
	}
	if len(b) != len(out) {
		return out, ErrInvalidCapturePayloadSize
	}
	copy(out[:], b)
	return out, nil
}

// FocusPlanet はフォーカス通知に載る惑星1件
type FocusPlanet struct {
	X          int32  `msgpack:"x"`
	Y          int32  `msgpack:"y"`
	Subtype    uint8  `msgpack:"st"`
	Attack     uint32 `msgpack:"atk"`
	Defense    uint32 `msgpack:"def"`
	Natives    uint32 `msgpack:"nat"`
	Speed      uint32 `msgpack:"spd"`
	Production uint32 `msgpack:"prd"`
	Capacity   uint32 `msgpack:"cap"`

	// State はチェーン状態が分かっているときだけ入る
	State *FocusPlanetState `msgpack:"s,omitempty"`
}

type FocusPlanetState struct {
	Owner         string `msgpack:"o"`
	NumSpaceships uint32 `msgpack:"n"`
	Natives       bool   `msgpack:"nv"`
	LastUpdated   int64  `msgpack:"t"`
}

// FocusFrame はフォーカス集合の全量スナップショット。y 昇順で並ぶ。
type FocusFrame struct {
	Rect    [4]int32      `msgpack:"r"`
	Planets []FocusPlanet `msgpack:"p"`
}

// CaptureResultFrame は占領プレビューの応答
type CaptureResultFrame struct {
	RequestID         uint32 `msgpack:"id"`
	X                 int32  `msgpack:"x"`
	Y                 int32  `msgpack:"y"`
	Attacker          string `msgpack:"a"`
	Success           bool   `msgpack:"ok"`
	NumSpaceshipsLeft uint32 `msgpack:"left"`
}

// CaptureErrorFrame は占領プレビューが評価できなかったときの応答
type CaptureErrorFrame struct {
	RequestID uint32 `msgpack:"id"`
	Error     string `msgpack:"err"`
}

// EncodeFocusMessage はフォーカス通知をエンコードする
func EncodeFocusMessage(sessionID SessionID, seq uint16, frame *FocusFrame) ([]byte, error) {
	body, err := msgpack.Marshal(frame)
	if err != nil {
		return nil, err
	}
	return EncodeMessage(sessionID, seq, DataTypeFocus, FocusSubTypeSnapshot, body), nil
}

// DecodeFocusFrame はフォーカス通知の本体をデコードする
func DecodeFocusFrame(body []byte) (*FocusFrame, error) {
	var frame FocusFrame
	if err := msgpack.Unmarshal(body, &frame); err != nil {
		return nil, err
	}
	return &frame, nil
}

func EncodeCaptureResultMessage(sessionID SessionID, frame *CaptureResultFrame) ([]byte, error) {
	body, err := msgpack.Marshal(frame)
	if err != nil {
		return nil, err
	}
	return EncodeMessage(sessionID, 0, DataTypeCapture, uint8(CaptureSubTypeResult), body), nil
}

func EncodeCaptureErrorMessage(sessionID SessionID, frame *CaptureErrorFrame) ([]byte, error) {
	body, err := msgpack.Marshal(frame)
	if err != nil {
		return nil, err
	}
	return EncodeMessage(sessionID, 0, DataTypeCapture, uint8(CaptureSubTypeError), body), nil
}

func DecodeCaptureResultFrame(body []byte) (*CaptureResultFrame, error) {
	var frame CaptureResultFrame
	if err := msgpack.Unmarshal(body, &frame); err != nil {
		return nil, err
	}
	return &frame, nil
}

func DecodeCaptureErrorFrame(body []byte) (*CaptureErrorFrame, error) {
	var frame CaptureErrorFrame
	if err := msgpack.Unmarshal(body, &frame); err != nil {
		return nil, err
	}
	return &frame, nil
}
