package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/ItzSjDude/hiva-node/internal/config"
	"github.com/ItzSjDude/hiva-node/internal/service"
)

// newTestGateway 搭一个不触库的网关：只有形状校验与 PING 路径会被走到。
func newTestGateway(t *testing.T) (*Gateway, *Client) {
	t.Helper()
	hub := NewHub()
	gw := NewGateway(hub, nil, nil, config.Config{})
	ph := hub.GetParty("party-1")
	c := newTestClient(ph, "user-1")
	c.gw = gw
	c.hostID = "host-1"
	if !ph.Register(c) {
		t.Fatal("Register() failed")
	}
	time.Sleep(10 * time.Millisecond)
	return gw, c
}

func recvFrame(t *testing.T, c *Client) ackFrame {
	t.Helper()
	select {
	case data := <-c.send:
		var f ackFrame
		if err := json.Unmarshal(data, &f); err != nil {
			t.Fatalf("unmarshal frame: %v (%s)", err, data)
		}
		return f
	case <-time.After(100 * time.Millisecond):
		t.Fatal("no frame received")
		return ackFrame{}
	}
}

func wantAckErr(t *testing.T, c *Client, id, code string) {
	t.Helper()
	f := recvFrame(t, c)
	if f.Type != EvtAck || f.OK {
		t.Fatalf("frame = %+v, want failed ack", f)
	}
	if f.ID != id {
		t.Errorf("ack id = %q, want %q", f.ID, id)
	}
	if f.Error == nil || f.Error.Code != code {
		t.Errorf("ack error = %+v, want code %s", f.Error, code)
	}
}

func TestGateway_MalformedFrame(t *testing.T) {
	gw, c := newTestGateway(t)

	gw.handle(c, []byte("{not json"))

	f := recvFrame(t, c)
	if f.Type != EvtError {
		t.Fatalf("frame type = %s, want %s", f.Type, EvtError)
	}
}

func TestGateway_UnknownCommand(t *testing.T) {
	gw, c := newTestGateway(t)

	gw.handle(c, []byte(`{"id":"42","type":"NO_SUCH_CMD"}`))
	wantAckErr(t, c, "42", service.CodeValidationError)
}

func TestGateway_RequiresJoin(t *testing.T) {
	gw, c := newTestGateway(t)

	for _, cmd := range []string{
		CmdTakeSeatReq, CmdLeaveSeatReq, CmdSetMute,
		CmdMuteAll, CmdUnmuteAll, CmdSetLock, CmdLockAll,
	} {
		gw.handle(c, []byte(`{"id":"1","type":"`+cmd+`","payload":{}}`))
		wantAckErr(t, c, "1", service.CodeNotJoined)
	}
}

func TestGateway_PayloadValidation(t *testing.T) {
	gw, c := newTestGateway(t)
	c.joined = true

	tests := []struct {
		name  string
		frame string
	}{
		{"take seat without seatNumber", `{"id":"1","type":"TAKE_SEAT_REQ","payload":{"force":true}}`},
		{"take seat with bad payload", `{"id":"1","type":"TAKE_SEAT_REQ","payload":"nope"}`},
		{"set mute without isMuted", `{"id":"1","type":"SET_MUTE","payload":{"targetUserId":"u"}}`},
		{"set lock without lock flag", `{"id":"1","type":"SET_LOCK","payload":{"seatNumber":2}}`},
		{"mute all with bad payload", `{"id":"1","type":"MUTE_ALL","payload":"nope"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw.handle(c, []byte(tt.frame))
			wantAckErr(t, c, "1", service.CodeValidationError)
		})
	}
}

func TestGateway_Ping(t *testing.T) {
	gw, c := newTestGateway(t)

	gw.handle(c, []byte(`{"id":"7","type":"PING"}`))

	pong := recvFrame(t, c)
	if pong.Type != EvtPong {
		t.Fatalf("first frame type = %s, want %s", pong.Type, EvtPong)
	}
	ack := recvFrame(t, c)
	if ack.Type != EvtAck || !ack.OK || ack.ID != "7" {
		t.Fatalf("ack = %+v, want ok ack with id 7", ack)
	}
}

func TestGateway_JoinParty(t *testing.T) {
	gw, c := newTestGateway(t)

	// 同组的旁观者应收到 presence.join
	other := newTestClient(c.party, "user-2")
	other.gw = gw
	if !c.party.Register(other) {
		t.Fatal("Register() other failed")
	}
	time.Sleep(10 * time.Millisecond)

	gw.handle(c, []byte(`{"id":"9","type":"JOIN_PARTY"}`))

	if !c.joined {
		t.Error("client should be marked joined")
	}
	ack := recvFrame(t, c)
	if ack.Type != EvtAck || !ack.OK || ack.ID != "9" {
		t.Fatalf("ack = %+v, want ok ack with id 9", ack)
	}
	evt := recvFrame(t, other)
	if evt.Type != EvtPresenceJoin {
		t.Errorf("other frame type = %s, want %s", evt.Type, EvtPresenceJoin)
	}
	// 发起方不应收到自己的 presence.join
	select {
	case data := <-c.send:
		t.Errorf("unexpected extra frame for sender: %s", data)
	default:
	}
}
