package ws

import (
	"context"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

const fanoutPrefix = "party:"

// Fanout 用 Redis pub/sub 把广播扩展到多进程部署。
// 单进程部署不配 REDIS_URL 即可，Hub 直接走进程内投递。
type Fanout struct {
	rdb *redis.Client
	hub *Hub
}

func NewFanout(redisURL string, hub *Hub) (*Fanout, error) {
	var opts *redis.Options
	if strings.Contains(redisURL, "://") {
		var err error
		opts, err = redis.ParseURL(redisURL)
		if err != nil {
			return nil, err
		}
	} else {
		opts = &redis.Options{Addr: redisURL}
	}
	rdb := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &Fanout{rdb: rdb, hub: hub}, nil
}

// Publish 把事件发到派对频道，订阅端（含本进程）负责投递。
func (f *Fanout) Publish(partyID string, data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return f.rdb.Publish(ctx, fanoutPrefix+partyID, data).Err()
}

// Run 订阅全部派对频道并把收到的事件投给本地连接。ctx 取消后退出。
func (f *Fanout) Run(ctx context.Context) {
	sub := f.rdb.PSubscribe(ctx, fanoutPrefix+"*")
	defer sub.Close()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				log.Warn().Msg("fanout subscription closed")
				return
			}
			partyID := strings.TrimPrefix(msg.Channel, fanoutPrefix)
			f.hub.BroadcastLocal(partyID, []byte(msg.Payload))
		}
	}
}
