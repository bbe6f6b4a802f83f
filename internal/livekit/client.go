package livekit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const roomServicePath = "/twirp/livekit.RoomService/"

// Client 直接调 LiveKit RoomService 的 Twirp JSON 端点。
// 每次调用都带超时，慢调用降级为日志告警而不是阻塞广播。
type Client struct {
	host      string
	apiKey    string
	apiSecret string
	http      *http.Client
}

func New(host, apiKey, apiSecret string) *Client {
	return &Client{
		host:      strings.TrimRight(host, "/"),
		apiKey:    apiKey,
		apiSecret: apiSecret,
		http:      &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *Client) call(ctx context.Context, method string, req, resp interface{}) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+roomServicePath+method, bytes.NewReader(body))
	if err != nil {
		return err
	}
	room := ""
	if r, ok := req.(interface{ roomName() string }); ok {
		room = r.roomName()
	}
	token, err := adminToken(c.apiKey, c.apiSecret, room)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return err
	}
	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("livekit %s: status %d: %s", method, httpResp.StatusCode, strings.TrimSpace(string(data)))
	}
	if resp != nil {
		return json.Unmarshal(data, resp)
	}
	return nil
}

type createRoomReq struct {
	Name            string `json:"name"`
	MaxParticipants int    `json:"max_participants,omitempty"`
}

func (r createRoomReq) roomName() string { return r.Name }

type roomReq struct {
	Room string `json:"room"`
}

func (r roomReq) roomName() string { return r.Room }

type participantReq struct {
	Room     string `json:"room"`
	Identity string `json:"identity"`
}

func (r participantReq) roomName() string { return r.Room }

type updateParticipantReq struct {
	Room       string      `json:"room"`
	Identity   string      `json:"identity"`
	Permission *permission `json:"permission,omitempty"`
}

func (r updateParticipantReq) roomName() string { return r.Room }

type permission struct {
	CanSubscribe   bool `json:"can_subscribe"`
	CanPublish     bool `json:"can_publish"`
	CanPublishData bool `json:"can_publish_data"`
}

type muteTrackReq struct {
	Room     string `json:"room"`
	Identity string `json:"identity"`
	TrackSid string `json:"track_sid"`
	Muted    bool   `json:"muted"`
}

func (r muteTrackReq) roomName() string { return r.Room }

type trackInfo struct {
	Sid  string `json:"sid"`
	Type string `json:"type"`
}

type participantInfo struct {
	Identity string      `json:"identity"`
	Tracks   []trackInfo `json:"tracks"`
}

type listParticipantsResp struct {
	Participants []participantInfo `json:"participants"`
}

// CreateRoom 幂等建房：已存在视为成功。
func (c *Client) CreateRoom(ctx context.Context, name string, maxParticipants int) error {
	err := c.call(ctx, "CreateRoom", createRoomReq{Name: name, MaxParticipants: maxParticipants}, nil)
	if err != nil && strings.Contains(err.Error(), "already_exists") {
		return nil
	}
	return err
}

func (c *Client) DeleteRoom(ctx context.Context, name string) error {
	return c.call(ctx, "DeleteRoom", roomReq{Room: name}, nil)
}

func (c *Client) GrantPublish(ctx context.Context, room, identity string) error {
	return c.call(ctx, "UpdateParticipant", updateParticipantReq{
		Room:     room,
		Identity: identity,
		Permission: &permission{
			CanSubscribe:   true,
			CanPublish:     true,
			CanPublishData: true,
		},
	}, nil)
}

func (c *Client) RevokePublish(ctx context.Context, room, identity string) error {
	return c.call(ctx, "UpdateParticipant", updateParticipantReq{
		Room:     room,
		Identity: identity,
		Permission: &permission{
			CanSubscribe:   true,
			CanPublish:     false,
			CanPublishData: true,
		},
	}, nil)
}

// SetParticipantMuted 硬静音：静音该参会者的全部音频轨。
func (c *Client) SetParticipantMuted(ctx context.Context, room, identity string, muted bool) error {
	var info participantInfo
	if err := c.call(ctx, "GetParticipant", participantReq{Room: room, Identity: identity}, &info); err != nil {
		return err
	}
	for _, track := range info.Tracks {
		if track.Type != "AUDIO" {
			continue
		}
		if err := c.call(ctx, "MutePublishedTrack", muteTrackReq{Room: room, Identity: identity, TrackSid: track.Sid, Muted: muted}, nil); err != nil {
			return err
		}
	}
	return nil
}

// MuteAllExcept 批量硬静音，默认跳过主持人。
func (c *Client) MuteAllExcept(ctx context.Context, room, hostIdentity string, muted, includeHost bool) error {
	var resp listParticipantsResp
	if err := c.call(ctx, "ListParticipants", roomReq{Room: room}, &resp); err != nil {
		return err
	}
	for _, p := range resp.Participants {
		if !includeHost && p.Identity == hostIdentity {
			continue
		}
		if err := c.SetParticipantMuted(ctx, room, p.Identity, muted); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) JoinToken(room, identity string, canPublish bool) (string, error) {
	return joinToken(c.apiKey, c.apiSecret, room, identity, canPublish)
}
