package ws

import (
	"encoding/json"
	"time"
)

// 客户端命令。每条命令可带 id，网关用同一 id 回 ack。
const (
	CmdJoinParty    = "JOIN_PARTY"
	CmdLeaveParty   = "LEAVE_PARTY"
	CmdSync         = "SYNC"
	CmdTakeSeatReq  = "TAKE_SEAT_REQ"
	CmdLeaveSeatReq = "LEAVE_SEAT_REQ"
	CmdSetMute      = "SET_MUTE"
	CmdMuteAll      = "MUTE_ALL"
	CmdUnmuteAll    = "UNMUTE_ALL"
	CmdSetLock      = "SET_LOCK"
	CmdLockAll      = "LOCK_ALL"
	CmdPing         = "PING"
)

// 服务端事件。
const (
	EvtHello         = "hello"
	EvtSyncState     = "sync.state"
	EvtError         = "error"
	EvtAck           = "ack"
	EvtPong          = "PONG"
	EvtSeatUpdated   = "seat.updated"
	EvtPresenceJoin  = "presence.join"
	EvtPresenceLeave = "presence.leave"
	EvtPartyMuted    = "party.muted"
	EvtPartyUnmuted  = "party.unmuted"
	EvtPartyLocked   = "party.locked"
	EvtRoomClosed    = "room.closed"
)

// Frame 是客户端入站帧。
type Frame struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ErrorBody 是 ack 与 error 事件共用的错误体。
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ackFrame struct {
	Type  string      `json:"type"`
	ID    string      `json:"id,omitempty"`
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error *ErrorBody  `json:"error,omitempty"`
}

type eventFrame struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

func marshalAckOK(id string, data interface{}) []byte {
	b, _ := json.Marshal(ackFrame{Type: EvtAck, ID: id, OK: true, Data: data})
	return b
}

func marshalAckErr(id, code, message string) []byte {
	b, _ := json.Marshal(ackFrame{Type: EvtAck, ID: id, OK: false, Error: &ErrorBody{Code: code, Message: message}})
	return b
}

func marshalEvent(typ string, data interface{}) []byte {
	b, _ := json.Marshal(eventFrame{Type: typ, Data: data})
	return b
}

func nowMillis() int64 { return time.Now().UnixMilli() }

// RoomClosedEvent 给 REST 层复用的关房事件帧。
func RoomClosedEvent(partyID string) []byte {
	return marshalEvent(EvtRoomClosed, map[string]interface{}{"partyId": partyID, "ts": nowMillis()})
}
