package livekit

import "context"

// Bridge 是媒体房间服务的适配面。所有调用对座位库都是 best-effort：
// 失败只记日志，绝不回滚已提交的数据库事务。
type Bridge interface {
	CreateRoom(ctx context.Context, name string, maxParticipants int) error
	DeleteRoom(ctx context.Context, name string) error
	GrantPublish(ctx context.Context, room, identity string) error
	RevokePublish(ctx context.Context, room, identity string) error
	SetParticipantMuted(ctx context.Context, room, identity string, muted bool) error
	MuteAllExcept(ctx context.Context, room, hostIdentity string, muted, includeHost bool) error
	JoinToken(room, identity string, canPublish bool) (string, error)
}

// Nop 在未配置媒体服务时使用（本地开发、单元测试）。
type Nop struct{}

func (Nop) CreateRoom(context.Context, string, int) error                   { return nil }
func (Nop) DeleteRoom(context.Context, string) error                        { return nil }
func (Nop) GrantPublish(context.Context, string, string) error              { return nil }
func (Nop) RevokePublish(context.Context, string, string) error             { return nil }
func (Nop) SetParticipantMuted(context.Context, string, string, bool) error { return nil }
func (Nop) MuteAllExcept(context.Context, string, string, bool, bool) error { return nil }
func (Nop) JoinToken(string, string, bool) (string, error)                  { return "", nil }
