package domain

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var (
	// ErrBackpressure は書き込みチャネルが満杯の場合に返されるエラーです。
	ErrBackpressure = errors.New("write channel is full, apply backpressure")
	// ErrInitializationFailed はセッションエンドポイントの初期化に失敗した場合に返されるエラーです。
	ErrInitializationFailed = errors.New("failed to initialize session endpoint")
	// ErrNotInRoom はルーム参加前にデータメッセージを受け取った場合のエラーです。
	ErrNotInRoom = errors.New("session has not joined a room")
)

const (
	defaultIdleTimeout  = 30 * time.Second
	defaultPingInterval = 10 * time.Second
	defaultCameraRate   = rate.Limit(20)
	defaultCameraBurst  = 5
	cameraFlushInterval = 50 * time.Millisecond
	maxWriteErrors      = 3
)

// EndpointConfig はセッションエンドポイントの動作設定
type EndpointConfig struct {
	IdleTimeout  time.Duration
	PingInterval time.Duration
	// CameraRate はルームへ転送するカメラ更新の上限 (回/秒)。超過分は最新値だけ保留する。
	CameraRate  rate.Limit
	CameraBurst int
}

func (c EndpointConfig) withDefaults() EndpointConfig {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = defaultIdleTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = defaultPingInterval
	}
	if c.CameraRate <= 0 {
		c.CameraRate = defaultCameraRate
	}
	if c.CameraBurst <= 0 {
		c.CameraBurst = defaultCameraBurst
	}
	return c
}

type SessionEndpoint struct {
	ctx    context.Context
	cancel context.CancelFunc

	cfg         EndpointConfig
	session     *Session
	connection  *Connection
	pubsub      PubSub
	roomManager RoomManager

	cameraLimiter *rate.Limiter
	pendingCamera atomic.Pointer[[]byte]

	ctrlCh  chan endpointEvent // 制御用チャネル
	writeCh chan []byte        // 書き込み用チャネル

	currentRoom atomic.Pointer[RoomID] // readLoop からのみ更新する
	writeErrors int                    // ownerLoop からのみ更新する

	// lifecycle
	closed atomic.Bool
}

func NewSessionEndpoint(session *Session, connection *Connection, pubsub PubSub, roomManager RoomManager, cfg EndpointConfig) (*SessionEndpoint, error) {
	if session == nil || connection == nil || pubsub == nil || roomManager == nil {
		return nil, ErrInitializationFailed
	}
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	se := &SessionEndpoint{
		ctx:           ctx,
		cancel:        cancel,
		cfg:           cfg,
		session:       session,
		connection:    connection,
		pubsub:        pubsub,
		roomManager:   roomManager,
		cameraLimiter: rate.NewLimiter(cfg.CameraRate, cfg.CameraBurst),
		ctrlCh:        make(chan endpointEvent, 16),
		writeCh:       make(chan []byte, 1024),
	}
	return se, nil
}

// Run は接続が閉じるまでブロックする
func (se *SessionEndpoint) Run() error {
	sessionTopic := SessionTopic(se.session.ID())
	msgCh := se.pubsub.Subscribe(sessionTopic)
	defer se.pubsub.Unsubscribe(sessionTopic, msgCh)

	// セッションID通知を最初に送る
	if err := se.Send(EncodeAssignMessage(se.session.ID())); err != nil {
		se.close()
		return err
	}

	heartbeat := NewHeartbeatService(se.cfg.PingInterval, se.session, se.writeCh)

	eg, ctx := errgroup.WithContext(se.ctx)
	eg.Go(func() error {
		se.ownerLoop(ctx)
		return nil
	})
	eg.Go(func() error {
		se.readLoop(ctx)
		return nil
	})
	eg.Go(func() error {
		se.writeLoop(ctx)
		return nil
	})
	eg.Go(func() error {
		se.subscribeLoop(ctx, msgCh)
		return nil
	})
	eg.Go(func() error {
		heartbeat.Run(ctx)
		return nil
	})

	return eg.Wait()
}

func (se *SessionEndpoint) Send(data []byte) error {
	select {
	case se.writeCh <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

func (se *SessionEndpoint) Close(ctx context.Context) {
	se.sendCtrlEvent(ctx, endpointEvent{kind: evClose})
}

func (se *SessionEndpoint) ForceClose() {
	se.close()
}

func (se *SessionEndpoint) SessionID() SessionID {
	return se.session.ID()
}

// RoomID は参加中のルームを返す。未参加ならゼロ値。
func (se *SessionEndpoint) RoomID() RoomID {
	if id := se.currentRoom.Load(); id != nil {
		return *id
	}
	return RoomID{}
}

// ownerLoop は論理セッションの状態を監視し、必要に応じて接続の管理を行います。
func (se *SessionEndpoint) ownerLoop(ctx context.Context) {
	idle := time.NewTicker(time.Second)
	defer idle.Stop()
	flush := time.NewTicker(cameraFlushInterval)
	defer flush.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-se.ctrlCh:
			se.handleControlEvent(ctx, ev)
		case <-flush.C:
			se.flushCamera(ctx)
		case <-idle.C:
			if ok, reason := se.session.IsIdle(se.cfg.IdleTimeout); ok {
				slog.InfoContext(ctx, "session idle, closing", "sessionID", se.session.ID(), "reason", reason)
				se.handleControlEvent(ctx, endpointEvent{kind: evClose, err: errors.New(reason.String())})
			}
		}
	}
}

func (se *SessionEndpoint) readLoop(ctx context.Context) {
	for {
		data, err := se.connection.Read(ctx)
		if err != nil {
			se.sendCtrlEvent(ctx, endpointEvent{kind: evReadError, err: err})
			return
		}
		se.session.TouchRead()
		se.handleData(ctx, data)
	}
}

func (se *SessionEndpoint) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-se.writeCh:
			if err := se.connection.Write(ctx, data); err != nil {
				se.sendCtrlEvent(ctx, endpointEvent{kind: evWriteError, err: err})
				continue
			}
			se.session.TouchWrite()
		}
	}
}

// subscribeLoop はpubsubからのメッセージをwriteChに転送します。
func (se *SessionEndpoint) subscribeLoop(ctx context.Context, msgCh <-chan Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			select {
			case se.writeCh <- msg.Data:
			default:
				slog.WarnContext(ctx, "subscribeLoop: writeCh full, message dropped", "sessionID", se.session.ID())
			}
		}
	}
}

func (se *SessionEndpoint) close() {
	if !se.closed.CompareAndSwap(false, true) {
		return
	}
	// 異常切断でもルームからは離脱させる
	if roomID := se.RoomID(); !roomID.IsEmpty() {
		se.pubsub.Publish(context.Background(), RoomTopic(roomID), Message{SessionID: se.session.ID(), Kind: MessageLeave})
	}
	se.cancel()
	se.session.Close()
	se.connection.Close("session closed")
}

func (se *SessionEndpoint) handleData(ctx context.Context, data []byte) {
	frame, err := ParseFrame(data)
	if err != nil {
		slog.WarnContext(ctx, "failed to parse frame", "sessionID", se.session.ID(), "err", err)
		return
	}
	if frame.Header.SessionID != se.session.ID().Bytes() {
		slog.WarnContext(ctx, "session ID mismatch", "expected", se.session.ID(), "got", SessionIDFromBytes(frame.Header.SessionID))
		return
	}

	switch frame.PayloadHeader.DataType {
	case DataTypeControl:
		se.handleControlMessage(ctx, ControlSubType(frame.PayloadHeader.SubType), frame.Body)
	case DataTypeCamera:
		se.handleCamera(ctx, data)
	case DataTypeCapture:
		if err := se.forward(ctx, data); err != nil {
			slog.WarnContext(ctx, "capture request dropped", "sessionID", se.session.ID(), "err", err)
		}
	default:
		slog.WarnContext(ctx, "unknown data type", "sessionID", se.session.ID(), "dataType", frame.PayloadHeader.DataType)
	}
}

// handleCamera は上限内ならそのまま転送し、超過時は最新の1件だけを保留する
func (se *SessionEndpoint) handleCamera(ctx context.Context, data []byte) {
	if se.cameraLimiter.Allow() {
		se.pendingCamera.Store(nil)
		if err := se.forward(ctx, data); err != nil {
			slog.DebugContext(ctx, "camera update dropped", "sessionID", se.session.ID(), "err", err)
		}
		return
	}
	se.pendingCamera.Store(&data)
}

func (se *SessionEndpoint) flushCamera(ctx context.Context) {
	if se.pendingCamera.Load() == nil || !se.cameraLimiter.Allow() {
		return
	}
	data := se.pendingCamera.Swap(nil)
	if data == nil {
		return
	}
	if err := se.forward(ctx, *data); err != nil {
		slog.DebugContext(ctx, "camera update dropped", "sessionID", se.session.ID(), "err", err)
	}
}

func (se *SessionEndpoint) forward(ctx context.Context, data []byte) error {
	roomID := se.RoomID()
	if roomID.IsEmpty() {
		return ErrNotInRoom
	}
	se.pubsub.Publish(ctx, RoomTopic(roomID), Message{
		SessionID: se.session.ID(),
		Kind:      MessageData,
		Data:      data,
	})
	return nil
}

func (se *SessionEndpoint) handleControlMessage(ctx context.Context, subType ControlSubType, body []byte) {
	switch subType {
	case ControlSubTypeJoin:
		se.join(ctx, body)
	case ControlSubTypeLeave:
		se.leave(ctx)
	case ControlSubTypePong:
		se.sendCtrlEvent(ctx, endpointEvent{kind: evPong})
	case ControlSubTypePing:
		if err := se.Send(EncodePongMessage(se.session.ID())); err != nil {
			slog.WarnContext(ctx, "pong dropped", "sessionID", se.session.ID(), "err", err)
		}
	default:
		slog.WarnContext(ctx, "unknown control subtype", "sessionID", se.session.ID(), "subType", subType)
	}
}

func (se *SessionEndpoint) join(ctx context.Context, body []byte) {
	roomID := RoomID{}
	if len(body) > 0 {
		payload, err := ParseJoinPayload(body)
		if err != nil {
			slog.WarnContext(ctx, "failed to parse join message", "sessionID", se.session.ID(), "err", err)
			return
		}
		roomID = payload.RoomID
	}
	if roomID.IsEmpty() {
		assigned, err := se.roomManager.GetRoom(ctx, se.session.ID())
		if err != nil {
			slog.ErrorContext(ctx, "failed to get default room", "sessionID", se.session.ID(), "err", err)
			return
		}
		roomID = assigned
		slog.DebugContext(ctx, "auto-assigned room", "sessionID", se.session.ID(), "roomID", roomID)
	}
	if current := se.RoomID(); !current.IsEmpty() {
		if current == roomID {
			return
		}
		se.leave(ctx)
	}
	se.currentRoom.Store(&roomID)
	se.pubsub.Publish(ctx, RoomTopic(roomID), Message{SessionID: se.session.ID(), Kind: MessageJoin})
	slog.InfoContext(ctx, "session joined room", "sessionID", se.session.ID(), "roomID", roomID)
}

func (se *SessionEndpoint) leave(ctx context.Context) {
	roomID := se.RoomID()
	if roomID.IsEmpty() {
		slog.WarnContext(ctx, "session not in any room, cannot leave", "sessionID", se.session.ID())
		return
	}
	se.pendingCamera.Store(nil)
	se.pubsub.Publish(ctx, RoomTopic(roomID), Message{SessionID: se.session.ID(), Kind: MessageLeave})
	se.currentRoom.Store(nil)
	slog.InfoContext(ctx, "session left room", "sessionID", se.session.ID(), "roomID", roomID)
}

// handleControlEvent は制御チャネルからのイベントを処理し論理セッションの状態を更新する唯一の関数です。
func (se *SessionEndpoint) handleControlEvent(ctx context.Context, ev endpointEvent) {
	switch ev.kind {
	case evClose:
		se.close()
	case evPong:
		se.session.TouchPong()
	case evReadError:
		slog.InfoContext(ctx, "connection read failed, closing", "sessionID", se.session.ID(), "err", ev.err)
		se.close()
	case evWriteError:
		se.writeErrors++
		slog.WarnContext(ctx, "connection write failed", "sessionID", se.session.ID(), "count", se.writeErrors, "err", ev.err)
		if se.writeErrors >= maxWriteErrors {
			se.close()
		}
	default:
		slog.WarnContext(ctx, "unknown endpoint event kind", "kind", ev.kind)
	}
}

func (se *SessionEndpoint) sendCtrlEvent(ctx context.Context, ev endpointEvent) {
	select {
	case se.ctrlCh <- ev:
	case <-ctx.Done():
	}
}
