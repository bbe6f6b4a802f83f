package ws

import (
	"sync"
	"sync/atomic"

	"github.com/ItzSjDude/hiva-node/internal/metrics"
)

// Hub 按派对管理广播组，懒加载、并发安全。
// 配置了 publisher（Redis fan-out）时，广播先走外部通道，
// 本进程作为订阅者之一收回再投递，保证多实例看到同一事件流。
type Hub struct {
	mu      sync.RWMutex
	parties map[string]*PartyHub
	publish func(partyID string, data []byte) error
}

func NewHub() *Hub { return &Hub{parties: make(map[string]*PartyHub)} }

// SetPublisher 挂接跨进程 fan-out 通道，须在服务开始接客前调用。
func (h *Hub) SetPublisher(fn func(partyID string, data []byte) error) { h.publish = fn }

// GetParty 若该派对的广播组未初始化则懒加载一个。
func (h *Hub) GetParty(partyID string) *PartyHub {
	h.mu.RLock()
	ph := h.parties[partyID]
	h.mu.RUnlock()
	if ph != nil {
		return ph
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	ph = h.parties[partyID]
	if ph != nil {
		return ph
	}
	ph = NewPartyHub(partyID)
	h.parties[partyID] = ph
	go ph.run(h)
	return ph
}

// Broadcast 向派对广播已提交的状态事件。
func (h *Hub) Broadcast(partyID string, data []byte) {
	metrics.BroadcastsTotal.Inc()
	if h.publish != nil {
		if err := h.publish(partyID, data); err == nil {
			return
		}
		// fan-out 不可用时退回进程内投递
	}
	h.BroadcastLocal(partyID, data)
}

// BroadcastLocal 只投递给本进程内的连接。
func (h *Hub) BroadcastLocal(partyID string, data []byte) {
	h.mu.RLock()
	ph := h.parties[partyID]
	h.mu.RUnlock()
	if ph == nil {
		return
	}
	ph.send(hubMsg{data: data})
}

// CloseParty 解散广播组：断开全部连接并移除该组。
func (h *Hub) CloseParty(partyID string) {
	h.mu.RLock()
	ph := h.parties[partyID]
	h.mu.RUnlock()
	if ph == nil {
		return
	}
	ph.send(hubMsg{close: true})
}

func (h *Hub) Online(partyID string) int {
	h.mu.RLock()
	ph := h.parties[partyID]
	h.mu.RUnlock()
	if ph == nil {
		return 0
	}
	return ph.Online()
}

func (h *Hub) removeParty(partyID string) {
	h.mu.Lock()
	delete(h.parties, partyID)
	h.mu.Unlock()
}

type hubMsg struct {
	data   []byte
	except *Client
	close  bool
}

// PartyHub 是单个派对的广播组。
type PartyHub struct {
	partyID    string
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	messages   chan hubMsg
	done       chan struct{}
	online     int32
}

func NewPartyHub(partyID string) *PartyHub {
	return &PartyHub{
		partyID:    partyID,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		messages:   make(chan hubMsg, 256),
		done:       make(chan struct{}),
	}
}

// Register 把连接挂进广播组；组已解散时立即失败。
func (ph *PartyHub) Register(c *Client) bool {
	select {
	case ph.register <- c:
		return true
	case <-ph.done:
		return false
	}
}

// Unregister 把连接摘出广播组，组解散后调用也不会阻塞。
func (ph *PartyHub) Unregister(c *Client) {
	select {
	case ph.unregister <- c:
	case <-ph.done:
	}
}

func (ph *PartyHub) send(m hubMsg) {
	select {
	case ph.messages <- m:
	default:
		// 广播积压说明该组已不健康，丢弃比阻塞调用方要好
	}
}

func (ph *PartyHub) run(h *Hub) {
	for {
		select {
		case c := <-ph.register:
			ph.clients[c] = true
			atomic.StoreInt32(&ph.online, int32(len(ph.clients)))
			metrics.WsConnections.Inc()
		case c := <-ph.unregister:
			if _, ok := ph.clients[c]; ok {
				delete(ph.clients, c)
				close(c.send)
				atomic.StoreInt32(&ph.online, int32(len(ph.clients)))
				metrics.WsConnections.Dec()
			}
		case m := <-ph.messages:
			if m.close {
				for c := range ph.clients {
					close(c.send)
					metrics.WsConnections.Dec()
				}
				ph.clients = make(map[*Client]bool)
				atomic.StoreInt32(&ph.online, 0)
				h.removeParty(ph.partyID)
				close(ph.done)
				return
			}
			for c := range ph.clients {
				if c == m.except {
					continue
				}
				select {
				case c.send <- m.data:
				default:
					close(c.send)
					delete(ph.clients, c)
					atomic.StoreInt32(&ph.online, int32(len(ph.clients)))
					metrics.WsConnections.Dec()
				}
			}
		}
	}
}

// Online 返回该派对当前在线连接数，供 REST 接口复用。
func (ph *PartyHub) Online() int { return int(atomic.LoadInt32(&ph.online)) }
