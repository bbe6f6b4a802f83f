package livekit

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// VideoGrant 对应 LiveKit access token 的 video 声明。
type VideoGrant struct {
	RoomCreate     bool   `json:"roomCreate,omitempty"`
	RoomAdmin      bool   `json:"roomAdmin,omitempty"`
	RoomJoin       bool   `json:"roomJoin,omitempty"`
	Room           string `json:"room,omitempty"`
	CanSubscribe   *bool  `json:"canSubscribe,omitempty"`
	CanPublish     *bool  `json:"canPublish,omitempty"`
	CanPublishData *bool  `json:"canPublishData,omitempty"`
}

type accessClaims struct {
	Video VideoGrant `json:"video"`
	jwt.RegisteredClaims
}

func boolPtr(b bool) *bool { return &b }

// signToken 用 API key/secret 签发 HS256 access token，iss 为 API key。
func signToken(apiKey, apiSecret, identity string, grant VideoGrant, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := accessClaims{
		Video: grant,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    apiKey,
			Subject:   identity,
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(apiSecret))
}

// adminToken 签发房间管理 token，供 RoomService API 调用使用。
func adminToken(apiKey, apiSecret, room string) (string, error) {
	return signToken(apiKey, apiSecret, apiKey, VideoGrant{RoomCreate: true, RoomAdmin: true, Room: room}, time.Minute)
}

// joinToken 签发参会 token：始终可订阅，发布权按座位状态给。
func joinToken(apiKey, apiSecret, room, identity string, canPublish bool) (string, error) {
	grant := VideoGrant{
		RoomJoin:       true,
		Room:           room,
		CanSubscribe:   boolPtr(true),
		CanPublish:     boolPtr(canPublish),
		CanPublishData: boolPtr(true),
	}
	return signToken(apiKey, apiSecret, identity, grant, 6*time.Hour)
}
