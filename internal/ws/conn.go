package ws

import (
	"net/http"
	"time"

	"github.com/ItzSjDude/hiva-node/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Client 是一条已绑定派对的连接会话。joined 只在 readPump 里读写。
type Client struct {
	gw      *Gateway
	party   *PartyHub
	conn    *websocket.Conn
	send    chan []byte
	userID  string
	partyID string
	hostID  string
	room    string
	joined  bool
	limiter *rate.Limiter
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Serve 处理握手：验 token、定位派对、入组、发 hello 与全量快照。
// 握手失败一律 401 空响应，不区分原因，避免被用来探测派对是否存在。
func Serve(gw *Gateway) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		partyRef := c.Query("partyId")
		if token == "" && len(c.GetHeader("Authorization")) > 7 {
			authz := c.GetHeader("Authorization")
			if authz[:7] == "Bearer " || authz[:7] == "bearer " {
				token = authz[7:]
			}
		}
		if token == "" || partyRef == "" {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		claims, err := auth.ParseAccessToken(token, gw.cfg.JWTSecret)
		if err != nil {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		party, err := gw.parties.Resolve(c.Request.Context(), partyRef)
		if err != nil || !party.IsActive {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		ph := gw.hub.GetParty(party.ID)
		client := &Client{
			gw:      gw,
			party:   ph,
			conn:    conn,
			send:    make(chan []byte, 256),
			userID:  claims.UserID,
			partyID: party.ID,
			hostID:  party.HostID,
			room:    party.RoomName,
			limiter: rate.NewLimiter(rate.Every(time.Second/10), 20),
		}
		if !ph.Register(client) {
			// 入组瞬间派对刚好解散
			_ = conn.Close()
			return
		}

		client.sendEvent(EvtHello, gin.H{"partyId": party.ID, "userId": claims.UserID, "ts": nowMillis()})
		gw.sendSnapshot(client)

		go client.writePump()
		client.readPump()
	}
}

func (c *Client) sendRaw(data []byte) {
	select {
	case c.send <- data:
	default:
	}
}

func (c *Client) sendEvent(typ string, data interface{}) {
	c.sendRaw(marshalEvent(typ, data))
}

func (c *Client) ackOK(id string, data interface{}) {
	c.sendRaw(marshalAckOK(id, data))
}

func (c *Client) ackErr(id, code, message string) {
	c.sendRaw(marshalAckErr(id, code, message))
}

func (c *Client) readPump() {
	var disconnectReason string
	defer func() {
		c.gw.onDisconnect(c, disconnectReason)
		c.party.Unregister(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(1 << 20) // 1MB
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			disconnectReason = err.Error()
			break
		}
		if !c.limiter.Allow() {
			c.sendEvent(EvtError, ErrorBody{Code: "RateLimited", Message: "slow down"})
			continue
		}
		c.gw.handle(c, data)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
