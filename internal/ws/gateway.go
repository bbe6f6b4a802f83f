package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ItzSjDude/hiva-node/internal/config"
	"github.com/ItzSjDude/hiva-node/internal/metrics"
	"github.com/ItzSjDude/hiva-node/internal/service"
	"github.com/rs/zerolog/log"
)

const commandTimeout = 10 * time.Second

// Gateway 把入站命令逐条翻译成座位引擎调用：
// 先校验帧形状，成功后 ack 发起方并向全组广播状态增量。
type Gateway struct {
	hub     *Hub
	seats   *service.SeatService
	parties *service.PartyService
	cfg     config.Config
}

func NewGateway(hub *Hub, seats *service.SeatService, parties *service.PartyService, cfg config.Config) *Gateway {
	return &Gateway{hub: hub, seats: seats, parties: parties, cfg: cfg}
}

func (g *Gateway) Hub() *Hub { return g.hub }

func (g *Gateway) sendSnapshot(c *Client) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	seats, err := g.seats.Snapshot(ctx, c.partyID)
	if err != nil {
		c.sendEvent(EvtError, ErrorBody{Code: service.CodeSyncFailed, Message: "failed to load seats"})
		return
	}
	c.sendEvent(EvtSyncState, map[string]interface{}{"partyId": c.partyID, "seats": seats})
}

func (g *Gateway) broadcast(partyID, typ string, data interface{}) {
	g.hub.Broadcast(partyID, marshalEvent(typ, data))
}

func (g *Gateway) broadcastOthers(c *Client, typ string, data interface{}) {
	c.party.send(hubMsg{data: marshalEvent(typ, data), except: c})
}

// ackEngineErr 按错误分类回 ack：座位错误原样透出，其余记日志、只报 InternalError。
func (g *Gateway) ackEngineErr(c *Client, id, command string, err error) {
	if se, ok := service.AsSeatError(err); ok {
		metrics.SeatCommandsTotal.WithLabelValues(command, se.Code).Inc()
		c.ackErr(id, se.Code, se.Message)
		return
	}
	metrics.SeatCommandsTotal.WithLabelValues(command, service.CodeInternalError).Inc()
	log.Error().Err(err).Str("command", command).Str("party_id", c.partyID).Str("user_id", c.userID).Msg("seat command failed")
	c.ackErr(id, service.CodeInternalError, "something went wrong")
}

func (g *Gateway) ackData(c *Client, id, command string, data interface{}) {
	metrics.SeatCommandsTotal.WithLabelValues(command, "ok").Inc()
	c.ackOK(id, data)
}

func (g *Gateway) requireJoined(c *Client, id string) bool {
	if !c.joined {
		c.ackErr(id, service.CodeNotJoined, "join party first")
		return false
	}
	return true
}

func (g *Gateway) handle(c *Client, data []byte) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		c.sendEvent(EvtError, ErrorBody{Code: service.CodeValidationError, Message: "malformed frame"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	switch f.Type {
	case CmdJoinParty:
		c.joined = true
		g.ackData(c, f.ID, f.Type, map[string]interface{}{"partyId": c.partyID, "userId": c.userID})
		g.broadcastOthers(c, EvtPresenceJoin, map[string]interface{}{"partyId": c.partyID, "userId": c.userID, "ts": nowMillis()})

	case CmdLeaveParty:
		g.handleLeaveParty(ctx, c, f)

	case CmdSync:
		seats, err := g.seats.Snapshot(ctx, c.partyID)
		if err != nil {
			c.ackErr(f.ID, service.CodeSyncFailed, "failed to load seats")
			return
		}
		g.ackData(c, f.ID, f.Type, map[string]interface{}{"partyId": c.partyID, "seats": seats})

	case CmdTakeSeatReq:
		if !g.requireJoined(c, f.ID) {
			return
		}
		var p struct {
			SeatNumber *int `json:"seatNumber"`
			Force      bool `json:"force"`
		}
		if err := json.Unmarshal(f.Payload, &p); err != nil || p.SeatNumber == nil {
			c.ackErr(f.ID, service.CodeValidationError, "seatNumber int required")
			return
		}
		// force 只对主持人生效
		force := p.Force && c.userID == c.hostID
		seat, err := g.seats.TakeSeat(ctx, c.partyID, *p.SeatNumber, c.userID, force)
		if err != nil {
			g.ackEngineErr(c, f.ID, f.Type, err)
			return
		}
		g.ackData(c, f.ID, f.Type, seat)
		g.broadcast(c.partyID, EvtSeatUpdated, seat)

	case CmdLeaveSeatReq:
		if !g.requireJoined(c, f.ID) {
			return
		}
		seat, err := g.seats.LeaveSeat(ctx, c.partyID, c.userID, false)
		if err != nil {
			g.ackEngineErr(c, f.ID, f.Type, err)
			return
		}
		g.ackData(c, f.ID, f.Type, seat)
		if seat != nil {
			g.broadcast(c.partyID, EvtSeatUpdated, seat)
		}

	case CmdSetMute:
		if !g.requireJoined(c, f.ID) {
			return
		}
		var p struct {
			TargetUserID string `json:"targetUserId"`
			IsMuted      *bool  `json:"isMuted"`
		}
		if err := json.Unmarshal(f.Payload, &p); err != nil || p.IsMuted == nil {
			c.ackErr(f.ID, service.CodeValidationError, "isMuted bool required")
			return
		}
		target := p.TargetUserID
		if target == "" {
			target = c.userID
		}
		seat, err := g.seats.SetSeatMute(ctx, c.partyID, target, *p.IsMuted, c.userID, true)
		if err != nil {
			g.ackEngineErr(c, f.ID, f.Type, err)
			return
		}
		g.ackData(c, f.ID, f.Type, seat)
		g.broadcast(c.partyID, EvtSeatUpdated, seat)

	case CmdMuteAll, CmdUnmuteAll:
		if !g.requireJoined(c, f.ID) {
			return
		}
		var p struct {
			IncludeHost bool `json:"includeHost"`
		}
		if len(f.Payload) > 0 {
			if err := json.Unmarshal(f.Payload, &p); err != nil {
				c.ackErr(f.ID, service.CodeValidationError, "malformed payload")
				return
			}
		}
		muted := f.Type == CmdMuteAll
		var (
			count int
			err   error
		)
		if muted {
			count, err = g.seats.MuteAll(ctx, c.partyID, c.userID, p.IncludeHost)
		} else {
			count, err = g.seats.UnmuteAll(ctx, c.partyID, c.userID, p.IncludeHost)
		}
		if err != nil {
			g.ackEngineErr(c, f.ID, f.Type, err)
			return
		}
		g.ackData(c, f.ID, f.Type, map[string]interface{}{"count": count})
		evt := EvtPartyMuted
		if !muted {
			evt = EvtPartyUnmuted
		}
		g.broadcast(c.partyID, evt, map[string]interface{}{"partyId": c.partyID, "includeHost": p.IncludeHost, "ts": nowMillis()})

	case CmdSetLock:
		if !g.requireJoined(c, f.ID) {
			return
		}
		var p struct {
			SeatNumber *int  `json:"seatNumber"`
			Lock       *bool `json:"lock"`
		}
		if err := json.Unmarshal(f.Payload, &p); err != nil || p.SeatNumber == nil || p.Lock == nil {
			c.ackErr(f.ID, service.CodeValidationError, "seatNumber int & lock bool required")
			return
		}
		seat, err := g.seats.SetSeatLock(ctx, c.partyID, *p.SeatNumber, *p.Lock, c.userID)
		if err != nil {
			g.ackEngineErr(c, f.ID, f.Type, err)
			return
		}
		g.ackData(c, f.ID, f.Type, seat)
		g.broadcast(c.partyID, EvtSeatUpdated, seat)

	case CmdLockAll:
		if !g.requireJoined(c, f.ID) {
			return
		}
		var p struct {
			IncludeHost bool `json:"includeHost"`
		}
		if len(f.Payload) > 0 {
			if err := json.Unmarshal(f.Payload, &p); err != nil {
				c.ackErr(f.ID, service.CodeValidationError, "malformed payload")
				return
			}
		}
		count, err := g.seats.LockAll(ctx, c.partyID, c.userID, p.IncludeHost)
		if err != nil {
			g.ackEngineErr(c, f.ID, f.Type, err)
			return
		}
		g.ackData(c, f.ID, f.Type, map[string]interface{}{"count": count})
		g.broadcast(c.partyID, EvtPartyLocked, map[string]interface{}{"partyId": c.partyID, "includeHost": p.IncludeHost, "ts": nowMillis()})

	case CmdPing:
		ts := nowMillis()
		c.sendEvent(EvtPong, map[string]interface{}{"ts": ts})
		c.ackOK(f.ID, map[string]interface{}{"ts": ts})

	default:
		c.ackErr(f.ID, service.CodeValidationError, "unknown command")
	}
}

// handleLeaveParty 处理退场。主持人退场等于解散整场：
// 媒体房间、座位表、派对行一并删除，并广播 room.closed。
func (g *Gateway) handleLeaveParty(ctx context.Context, c *Client, f Frame) {
	if c.userID == c.hostID {
		if _, err := g.parties.Teardown(ctx, c.partyID, c.userID); err != nil {
			g.ackEngineErr(c, f.ID, f.Type, err)
			return
		}
		g.ackData(c, f.ID, f.Type, map[string]interface{}{"partyId": c.partyID, "userId": c.userID})
		g.broadcast(c.partyID, EvtRoomClosed, map[string]interface{}{"partyId": c.partyID, "ts": nowMillis()})
		g.hub.CloseParty(c.partyID)
		return
	}
	c.joined = false
	g.ackData(c, f.ID, f.Type, map[string]interface{}{"partyId": c.partyID, "userId": c.userID})
	g.broadcastOthers(c, EvtPresenceLeave, map[string]interface{}{"partyId": c.partyID, "userId": c.userID, "ts": nowMillis()})
}

// onDisconnect 连接断开后的清理：自动释放座位（主持人座位除外），
// 并向剩余成员广播离场。进行中的命令事务不受影响，提交后照常广播。
func (g *Gateway) onDisconnect(c *Client, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	seat, err := g.seats.LeaveSeat(ctx, c.partyID, c.userID, false)
	switch {
	case err == nil:
		if seat != nil {
			g.broadcast(c.partyID, EvtSeatUpdated, seat)
		}
	default:
		if se, ok := service.AsSeatError(err); !ok || se.Code == service.CodeInternalError {
			log.Warn().Err(err).Str("party_id", c.partyID).Str("user_id", c.userID).Msg("auto leave seat failed")
		}
		// HostSeatCannotLeave / PartyNotFound 属正常路径：主持人掉线不空出主持座，解散后无座可退
	}

	g.broadcastOthers(c, EvtPresenceLeave, map[string]interface{}{
		"partyId": c.partyID,
		"userId":  c.userID,
		"ts":      nowMillis(),
		"reason":  reason,
	})
}
