package domain_test

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/mock/gomock"
	"golang.org/x/time/rate"

	domain "conquest/server/domain"
	"conquest/server/domain/mocks"
)

func TestNewSessionEndpoint_RejectsMissingDependencies(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	s := domain.NewSession()
	c := domain.NewConnection(s.ID(), mocks.NewMockTransport(ctrl))
	ps := mocks.NewMockPubSub(ctrl)
	rm := mocks.NewMockRoomManager(ctrl)

	if _, err := domain.NewSessionEndpoint(nil, c, ps, rm, domain.EndpointConfig{}); !errors.Is(err, domain.ErrInitializationFailed) {
		t.Errorf("nil session: err = %v", err)
	}
	if _, err := domain.NewSessionEndpoint(s, nil, ps, rm, domain.EndpointConfig{}); !errors.Is(err, domain.ErrInitializationFailed) {
		t.Errorf("nil connection: err = %v", err)
	}
	se, err := domain.NewSessionEndpoint(s, c, ps, rm, domain.EndpointConfig{})
	if err != nil || se == nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !se.RoomID().IsEmpty() {
		t.Error("new endpoint should not be in a room")
	}
}

// pipeTransport は inbound に積んだフレームを読み出し、書き込みを outbound に流すモックを作る
func pipeTransport(ctrl *gomock.Controller) (*mocks.MockTransport, chan []byte, chan []byte) {
	inbound := make(chan []byte, 16)
	outbound := make(chan []byte, 64)
	tr := mocks.NewMockTransport(ctrl)
	tr.EXPECT().Read(gomock.Any()).DoAndReturn(func(ctx context.Context) ([]byte, error) {
		select {
		case data := <-inbound:
			return data, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}).AnyTimes()
	tr.EXPECT().Write(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, data []byte) error {
		outbound <- data
		return nil
	}).AnyTimes()
	tr.EXPECT().Close(gomock.Any(), gomock.Any()).Return(nil).Times(1)
	return tr, inbound, outbound
}

func receive(t *testing.T, ch <-chan domain.Message) domain.Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for pubsub message")
	}
	return domain.Message{}
}

func cameraMessage(id domain.SessionID, x float32) []byte {
	cam := domain.CameraPayload{X: x, Y: 0, Width: 40, Height: 40}
	return domain.EncodeMessage(id, 0, domain.DataTypeCamera, domain.CameraSubTypeUpdate, cam.Encode())
}

func TestSessionEndpoint_JoinForwardAndLeave(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	s := domain.NewSession()
	tr, inbound, outbound := pipeTransport(ctrl)
	ps := domain.NewSimplePubSub()
	rm := mocks.NewMockRoomManager(ctrl)
	rm.EXPECT().GetRoom(gomock.Any(), s.ID()).Return(domain.DefaultRoomID, nil)

	roomCh := ps.Subscribe(domain.RoomTopic(domain.DefaultRoomID))

	se, err := domain.NewSessionEndpoint(s, domain.NewConnection(s.ID(), tr), ps, rm, domain.EndpointConfig{})
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() { done <- se.Run() }()

	// 最初に届くのはセッションID通知
	select {
	case data := <-outbound:
		frame, err := domain.ParseFrame(data)
		if err != nil {
			t.Fatal(err)
		}
		if domain.ControlSubType(frame.PayloadHeader.SubType) != domain.ControlSubTypeAssign {
			t.Fatalf("first message subtype = %d, want assign", frame.PayloadHeader.SubType)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("assign message not written")
	}

	inbound <- domain.EncodeJoinMessage(s.ID(), domain.RoomID{})
	if msg := receive(t, roomCh); msg.Kind != domain.MessageJoin || msg.SessionID != s.ID() {
		t.Fatalf("control message = %+v, want join", msg)
	}

	camera := cameraMessage(s.ID(), 12)
	inbound <- camera
	if msg := receive(t, roomCh); !bytes.Equal(msg.Data, camera) {
		t.Errorf("forwarded data does not match camera message")
	}

	// 他人のセッションIDを騙るメッセージは転送しない
	inbound <- cameraMessage(domain.NewSessionID(), 1)
	select {
	case msg := <-roomCh:
		t.Errorf("spoofed message forwarded: %+v", msg)
	case <-time.After(100 * time.Millisecond):
	}

	se.ForceClose()
	if msg := receive(t, roomCh); msg.Kind != domain.MessageLeave {
		t.Errorf("control message on close = %+v, want leave", msg)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after ForceClose")
	}
}

func TestSessionEndpoint_CameraRateLimitKeepsLatest(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	s := domain.NewSession()
	tr, inbound, _ := pipeTransport(ctrl)
	ps := domain.NewSimplePubSub()
	rm := mocks.NewMockRoomManager(ctrl)
	rm.EXPECT().GetRoom(gomock.Any(), gomock.Any()).Return(domain.DefaultRoomID, nil)

	roomCh := ps.Subscribe(domain.RoomTopic(domain.DefaultRoomID))

	se, err := domain.NewSessionEndpoint(s, domain.NewConnection(s.ID(), tr), ps, rm, domain.EndpointConfig{
		CameraRate:  rate.Limit(10),
		CameraBurst: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan struct{})
	go func() {
		se.Run()
		close(done)
	}()
	defer func() {
		se.ForceClose()
		<-done
	}()

	inbound <- domain.EncodeJoinMessage(s.ID(), domain.RoomID{})
	receive(t, roomCh)

	first := cameraMessage(s.ID(), 1)
	last := cameraMessage(s.ID(), 3)
	inbound <- first
	inbound <- cameraMessage(s.ID(), 2)
	inbound <- last

	if msg := receive(t, roomCh); !bytes.Equal(msg.Data, first) {
		t.Error("first camera update should pass immediately")
	}
	if msg := receive(t, roomCh); !bytes.Equal(msg.Data, last) {
		t.Error("throttled updates should collapse to the latest one")
	}
	select {
	case msg := <-roomCh:
		t.Errorf("unexpected extra camera update: %+v", msg)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestSessionEndpoint_ReadErrorClosesSession(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	s := domain.NewSession()
	tr := mocks.NewMockTransport(ctrl)
	tr.EXPECT().Read(gomock.Any()).Return(nil, errors.New("connection reset")).Times(1)
	tr.EXPECT().Write(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	tr.EXPECT().Close(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	ps := domain.NewSimplePubSub()
	se, err := domain.NewSessionEndpoint(s, domain.NewConnection(s.ID(), tr), ps, domain.NewSimpleRoomManager(domain.RoomID{}), domain.EndpointConfig{})
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		se.Run()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after read error")
	}
	if !s.IsClosed() {
		t.Error("session should be closed")
	}
}

func TestSessionEndpoint_RepeatedWriteErrorsCloseSession(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	s := domain.NewSession()
	inbound := make(chan []byte, 16)
	var writes atomic.Int32
	tr := mocks.NewMockTransport(ctrl)
	tr.EXPECT().Read(gomock.Any()).DoAndReturn(func(ctx context.Context) ([]byte, error) {
		select {
		case data := <-inbound:
			return data, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}).AnyTimes()
	// セッションID通知だけ成功させ、以降の書き込みはすべて失敗させる
	tr.EXPECT().Write(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, data []byte) error {
		if writes.Add(1) == 1 {
			return nil
		}
		return errors.New("broken pipe")
	}).AnyTimes()
	tr.EXPECT().Close(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	ps := domain.NewSimplePubSub()
	rm := mocks.NewMockRoomManager(ctrl)
	rm.EXPECT().GetRoom(gomock.Any(), s.ID()).Return(domain.DefaultRoomID, nil)
	roomCh := ps.Subscribe(domain.RoomTopic(domain.DefaultRoomID))

	se, err := domain.NewSessionEndpoint(s, domain.NewConnection(s.ID(), tr), ps, rm, domain.EndpointConfig{})
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan struct{})
	go func() {
		se.Run()
		close(done)
	}()

	inbound <- domain.EncodeJoinMessage(s.ID(), domain.RoomID{})
	if msg := receive(t, roomCh); msg.Kind != domain.MessageJoin {
		t.Fatalf("control message = %+v, want join", msg)
	}

	sessionTopic := domain.SessionTopic(s.ID())
	for i := 0; i < 2; i++ {
		ps.Publish(context.Background(), sessionTopic, domain.Message{Data: []byte{byte(i)}})
	}
	select {
	case msg := <-roomCh:
		t.Fatalf("session closed before the third write error: %+v", msg)
	case <-time.After(200 * time.Millisecond):
	}
	if s.IsClosed() {
		t.Fatal("session closed after two write errors")
	}

	ps.Publish(context.Background(), sessionTopic, domain.Message{Data: []byte{2}})
	if msg := receive(t, roomCh); msg.Kind != domain.MessageLeave || msg.SessionID != s.ID() {
		t.Errorf("control message = %+v, want leave", msg)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after repeated write errors")
	}
	if !s.IsClosed() {
		t.Error("session should be closed")
	}
	if got := writes.Load(); got != 4 {
		t.Errorf("writes = %d, want 4", got)
	}
}
