package bridge

import (
	"context"
	"errors"
	"testing"

	"github.com/agora-at/agorat/pkg/payload"
	"github.com/agora-at/agorat/pkg/protocol"
)

type stubAdapter struct {
	side     Side
	calls    int
	lastMsg  Message
	result   payload.Value
	err      error
	protocol protocol.Negotiated
	negErr   error
}

func (s *stubAdapter) Side() Side { return s.side }

func (s *stubAdapter) Dispatch(ctx context.Context, msg Message) (payload.Value, error) {
	s.calls++
	s.lastMsg = msg
	if s.err != nil {
		return payload.Value{}, s.err
	}
	return s.result, nil
}

func (s *stubAdapter) Negotiate(ctx context.Context, description string) (protocol.Negotiated, error) {
	if s.negErr != nil {
		return protocol.Negotiated{}, s.negErr
	}
	p := s.protocol
	p.Description = description
	return p, nil
}

func testBridge(t *testing.T) (*Bridge, *stubAdapter, *stubAdapter) {
	t.Helper()

	agora := &stubAdapter{side: SideAgora, protocol: protocol.Negotiated{ID: "p1", Version: "1.0"}}
	atproto := &stubAdapter{side: SideATProto}

	b, err := New(Config{
		Agora:      agora,
		ATProto:    atproto,
		Negotiator: agora,
		Registry:   protocol.NewRegistry("agent", nil, nil),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return b, agora, atproto
}

func TestSendRoutesOnDirection(t *testing.T) {
	b, agora, atproto := testBridge(t)
	ctx := context.Background()

	agora.result = payload.Map(map[string]payload.Value{
		"echo": payload.Map(map[string]payload.Value{"x": payload.Int(1)}),
	})

	content := payload.Map(map[string]payload.Value{"x": payload.Int(1)})
	result, err := b.Send(ctx, ToAgora, content, "")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if agora.calls != 1 || atproto.calls != 0 {
		t.Errorf("calls = agora:%d atproto:%d, want 1/0", agora.calls, atproto.calls)
	}

	echo, ok := result.Get("echo")
	if !ok || !echo.Equal(content) {
		t.Errorf("result = %s, want echo of input", result)
	}

	if agora.lastMsg.Source != SideATProto || agora.lastMsg.Target != SideAgora {
		t.Errorf("envelope sides = %s -> %s", agora.lastMsg.Source, agora.lastMsg.Target)
	}
}

func TestSendAttachesRegisteredProtocol(t *testing.T) {
	b, agora, _ := testBridge(t)
	ctx := context.Background()

	p := protocol.Negotiated{ID: "p9", Version: "2.0", Description: "structured posts"}
	if err := b.Registry().Register(ctx, "post", p); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := b.Send(ctx, ToAgora, payload.Null(), "post"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if agora.lastMsg.Protocol == nil || agora.lastMsg.Protocol.ID != "p9" {
		t.Errorf("protocol hint = %+v, want p9", agora.lastMsg.Protocol)
	}

	if _, err := b.Send(ctx, ToAgora, payload.Null(), "unmapped"); err != nil {
		t.Fatalf("Send (unmapped type): %v", err)
	}
	if agora.lastMsg.Protocol != nil {
		t.Error("unmapped message type should dispatch without protocol hint")
	}
}

func TestSendEmitsMessageEventBeforeDispatch(t *testing.T) {
	b, agora, _ := testBridge(t)

	var sawCallsAtEvent = -1
	b.On(EventMessage, func(ev Event) {
		sawCallsAtEvent = agora.calls
	})

	if _, err := b.Send(context.Background(), ToAgora, payload.Null(), ""); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if sawCallsAtEvent != 0 {
		t.Errorf("message event saw %d dispatches, want 0 (event precedes dispatch)", sawCallsAtEvent)
	}
}

func TestSendErrorEmitsErrorEventAndPropagates(t *testing.T) {
	b, _, atproto := testBridge(t)

	atproto.err = &TransportError{Side: SideATProto, Op: "createRecord", Remote: "rate limited"}

	var errEvent Event
	b.On(EventError, func(ev Event) { errEvent = ev })

	_, err := b.Send(context.Background(), ToATProto, payload.Null(), "")

	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("err = %v, want TransportError re-raised unchanged", err)
	}
	if errEvent.Kind != EventError || errEvent.Err == "" {
		t.Errorf("error event = %+v, want populated error event", errEvent)
	}
}

func TestSendEventHandlerPanicDoesNotAbortSend(t *testing.T) {
	b, _, _ := testBridge(t)

	ranSecond := false
	b.On(EventMessage, func(Event) { panic("handler bug") })
	b.On(EventMessage, func(Event) { ranSecond = true })

	if _, err := b.Send(context.Background(), ToAgora, payload.Null(), ""); err != nil {
		t.Fatalf("Send should succeed despite handler panic: %v", err)
	}
	if !ranSecond {
		t.Error("second handler should still run")
	}
}

func TestNegotiateRegistersAndFiresEvent(t *testing.T) {
	b, _, _ := testBridge(t)
	ctx := context.Background()

	var negotiated Event
	b.On(EventProtocolNegotiated, func(ev Event) { negotiated = ev })

	p, err := b.Negotiate(ctx, "D", "post")
	if err != nil {
		t.Fatalf("Negotiate: %v", err)
	}
	if p.ID != "p1" || p.Description != "D" {
		t.Errorf("protocol = %+v", p)
	}

	got, ok := b.Registry().Lookup("post")
	if !ok || got.ID != "p1" || got.Description != "D" {
		t.Errorf("Lookup(post) = %+v, %v", got, ok)
	}

	if negotiated.Kind != EventProtocolNegotiated || negotiated.MessageType != "post" {
		t.Errorf("event = %+v, want protocol_negotiated for post", negotiated)
	}
}

func TestNegotiateWithoutMessageTypeSkipsRegistry(t *testing.T) {
	b, _, _ := testBridge(t)

	if _, err := b.Negotiate(context.Background(), "D", ""); err != nil {
		t.Fatalf("Negotiate: %v", err)
	}
	if len(b.Registry().All()) != 0 {
		t.Error("negotiation without a message type must not persist anything")
	}
}

func TestNegotiateErrorEmitsErrorEvent(t *testing.T) {
	b, agora, _ := testBridge(t)
	agora.negErr = &NegotiationError{Reason: "no id in response"}

	sawError := false
	b.On(EventError, func(Event) { sawError = true })

	_, err := b.Negotiate(context.Background(), "D", "post")
	var nerr *NegotiationError
	if !errors.As(err, &nerr) {
		t.Fatalf("err = %v, want NegotiationError", err)
	}
	if !sawError {
		t.Error("negotiation failure should emit the error event")
	}
	if len(b.Registry().All()) != 0 {
		t.Error("failed negotiation must not register anything")
	}
}

func TestPostAndNotify(t *testing.T) {
	b, _, atproto := testBridge(t)

	atproto.result = payload.Map(map[string]payload.Value{
		"uri": payload.String("at://did:plc:x/app.bsky.feed.post/1"),
	})

	sawPost := false
	b.On(EventPost, func(Event) { sawPost = true })

	result, err := b.PostAndNotify(context.Background(), "hello")
	if err != nil {
		t.Fatalf("PostAndNotify: %v", err)
	}
	if result.GetString("uri") == "" {
		t.Errorf("result = %s", result)
	}
	if !sawPost {
		t.Error("post event should fire on success")
	}

	if atproto.lastMsg.Content.GetString("type") != "post" {
		t.Errorf("content = %s, want post envelope", atproto.lastMsg.Content)
	}
}

func TestAnalyzeFeed(t *testing.T) {
	b, agora, atproto := testBridge(t)

	atproto.result = payload.List(
		payload.Map(map[string]payload.Value{"uri": payload.String("a")}),
	)
	agora.result = payload.Map(map[string]payload.Value{"summary": payload.String("ok")})

	result, err := b.AnalyzeFeed(context.Background(), 10, "")
	if err != nil {
		t.Fatalf("AnalyzeFeed: %v", err)
	}

	if atproto.calls != 1 || agora.calls != 1 {
		t.Errorf("calls = atproto:%d agora:%d, want 1/1", atproto.calls, agora.calls)
	}
	if atproto.lastMsg.Content.GetString("type") != "get_feed" {
		t.Errorf("feed request = %s", atproto.lastMsg.Content)
	}
	feed, ok := agora.lastMsg.Content.Get("feed")
	if !ok || feed.Len() != 1 {
		t.Errorf("analysis content = %s, want feed attached", agora.lastMsg.Content)
	}
	if result.GetString("summary") != "ok" {
		t.Errorf("result = %s", result)
	}
}
