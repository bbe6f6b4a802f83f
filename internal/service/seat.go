package service

import (
	"context"
	"errors"
	"time"

	"github.com/ItzSjDude/hiva-node/internal/livekit"
	"github.com/ItzSjDude/hiva-node/internal/models"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const bridgeTimeout = 4 * time.Second

// SeatService 封装座位相关的事务操作。
//
// 加锁顺序固定：派对行 → 目标座位 → 用户已占的其它座位；
// 批量操作对座位按 seat_number 升序加锁。所有路径都遵守这个顺序，
// 并发请求之间不会形成死锁环。
type SeatService struct {
	db     *gorm.DB
	bridge livekit.Bridge
}

func NewSeatService(db *gorm.DB, bridge livekit.Bridge) *SeatService {
	return &SeatService{db: db, bridge: bridge}
}

func forUpdate(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// lockParty 锁住派对行并返回之。每个操作的第一步，兼做存在性检查。
func lockParty(tx *gorm.DB, partyID string) (*models.Party, error) {
	var party models.Party
	if err := forUpdate(tx).First(&party, "id = ?", partyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPartyNotFound
		}
		return nil, err
	}
	return &party, nil
}

// assertHost 在同一事务内校验主持人身份，避免查-改之间的状态漂移。
func assertHost(tx *gorm.DB, partyID, actorUserID string) (*models.Party, error) {
	party, err := lockParty(tx, partyID)
	if err != nil {
		return nil, err
	}
	if party.HostID != actorUserID {
		return nil, ErrForbidden
	}
	return party, nil
}

func vacate(seat *models.Seat) {
	seat.UserID = nil
	seat.IsMuted = false
	seat.JoinedAt = nil
}

func saveSeat(tx *gorm.DB, seat *models.Seat) error {
	return tx.Model(seat).Updates(map[string]interface{}{
		"user_id":   seat.UserID,
		"is_muted":  seat.IsMuted,
		"is_locked": seat.IsLocked,
		"joined_at": seat.JoinedAt,
	}).Error
}

// TakeSeat 让用户坐上指定座位，并发竞争由行锁裁决。
// force 供主持人越过锁定/占用做调度，调用方需在上层完成授权。
func (s *SeatService) TakeSeat(ctx context.Context, partyID string, seatNumber int, userID string, force bool) (*models.Seat, error) {
	var (
		seat      models.Seat
		party     *models.Party
		displaced *string
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		party, err = lockParty(tx, partyID)
		if err != nil {
			return err
		}

		if err := forUpdate(tx).Where("party_id = ? AND seat_number = ?", partyID, seatNumber).First(&seat).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSeatNotFound
			}
			return err
		}

		if seat.IsLocked && !force {
			return ErrSeatLocked
		}
		if seat.Occupied() && !force {
			return ErrSeatOccupied
		}
		if seat.Occupied() && *seat.UserID != userID {
			// 强制换座：被顶掉的人回到无座状态
			displaced = seat.UserID
		}

		// 用户若已坐在别处，同一事务内先把原座位清空
		var existing models.Seat
		err = forUpdate(tx).Where("party_id = ? AND user_id = ?", partyID, userID).First(&existing).Error
		switch {
		case err == nil:
			if existing.SeatNumber != seatNumber {
				vacate(&existing)
				if err := saveSeat(tx, &existing); err != nil {
					return err
				}
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return err
		}

		now := time.Now()
		seat.UserID = &userID
		seat.IsMuted = false
		seat.JoinedAt = &now
		return saveSeat(tx, &seat)
	})
	if err != nil {
		return nil, err
	}

	s.bestEffort(func(bctx context.Context) error {
		if displaced != nil {
			if err := s.bridge.RevokePublish(bctx, party.RoomName, *displaced); err != nil {
				return err
			}
		}
		return s.bridge.GrantPublish(bctx, party.RoomName, userID)
	}, "take seat publish grant")
	return &seat, nil
}

// LeaveSeat 让用户离座。未坐任何座位时返回 (nil, nil)，可重复调用。
func (s *SeatService) LeaveSeat(ctx context.Context, partyID, userID string, allowHostLeave bool) (*models.Seat, error) {
	var (
		seat  models.Seat
		party *models.Party
		found bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		party, err = lockParty(tx, partyID)
		if err != nil {
			return err
		}
		if err := forUpdate(tx).Where("party_id = ? AND user_id = ?", partyID, userID).First(&seat).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if seat.IsHost && !allowHostLeave {
			return ErrHostSeatCannotLeave
		}
		found = true
		vacate(&seat)
		return saveSeat(tx, &seat)
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	s.bestEffort(func(bctx context.Context) error {
		return s.bridge.RevokePublish(bctx, party.RoomName, userID)
	}, "leave seat publish revoke")
	return &seat, nil
}

// SetSeatMute 自己可切换自己的麦（仅改库）；主持人改别人时再加硬静音。
func (s *SeatService) SetSeatMute(ctx context.Context, partyID, targetUserID string, muted bool, actorUserID string, allowSelf bool) (*models.Seat, error) {
	var (
		seat       models.Seat
		party      *models.Party
		doHardMute bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		party, err = lockParty(tx, partyID)
		if err != nil {
			return err
		}

		isSelf := actorUserID == targetUserID
		if !isSelf {
			if party.HostID != actorUserID {
				return ErrForbidden
			}
			doHardMute = true
		} else if !allowSelf {
			return ErrSelfMuteForbidden
		}

		if err := forUpdate(tx).Where("party_id = ? AND user_id = ?", partyID, targetUserID).First(&seat).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotSeated
			}
			return err
		}
		seat.IsMuted = muted
		return saveSeat(tx, &seat)
	})
	if err != nil {
		return nil, err
	}

	if doHardMute {
		s.bestEffort(func(bctx context.Context) error {
			return s.bridge.SetParticipantMuted(bctx, party.RoomName, targetUserID, muted)
		}, "hard mute")
	}
	return &seat, nil
}

// setMuteAll 是 MuteAll/UnmuteAll 的公共实现。
func (s *SeatService) setMuteAll(ctx context.Context, partyID, actorUserID string, muted, includeHost bool) (int, error) {
	var (
		party *models.Party
		count int
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		party, err = assertHost(tx, partyID, actorUserID)
		if err != nil {
			return err
		}

		q := forUpdate(tx).Where("party_id = ? AND user_id IS NOT NULL", partyID)
		if !includeHost {
			q = q.Where("is_host = ?", false)
		}
		var seats []models.Seat
		if err := q.Order("seat_number asc").Find(&seats).Error; err != nil {
			return err
		}
		if len(seats) == 0 {
			return nil
		}
		ids := make([]string, 0, len(seats))
		for _, seat := range seats {
			ids = append(ids, seat.ID)
		}
		if err := tx.Model(&models.Seat{}).Where("id IN ?", ids).Update("is_muted", muted).Error; err != nil {
			return err
		}
		count = len(seats)
		return nil
	})
	if err != nil {
		return 0, err
	}

	if count > 0 {
		s.bestEffort(func(bctx context.Context) error {
			return s.bridge.MuteAllExcept(bctx, party.RoomName, party.HostID, muted, includeHost)
		}, "bulk hard mute")
	}
	return count, nil
}

// MuteAll 主持人一键闭麦（默认不含主持人自己）。
func (s *SeatService) MuteAll(ctx context.Context, partyID, actorUserID string, includeHost bool) (int, error) {
	return s.setMuteAll(ctx, partyID, actorUserID, true, includeHost)
}

// UnmuteAll 主持人一键开麦。
func (s *SeatService) UnmuteAll(ctx context.Context, partyID, actorUserID string, includeHost bool) (int, error) {
	return s.setMuteAll(ctx, partyID, actorUserID, false, includeHost)
}

// SetSeatLock 主持人锁定/解锁单个座位。
func (s *SeatService) SetSeatLock(ctx context.Context, partyID string, seatNumber int, lock bool, actorUserID string) (*models.Seat, error) {
	var seat models.Seat
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := assertHost(tx, partyID, actorUserID); err != nil {
			return err
		}
		if err := forUpdate(tx).Where("party_id = ? AND seat_number = ?", partyID, seatNumber).First(&seat).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSeatNotFound
			}
			return err
		}
		seat.IsLocked = lock
		return saveSeat(tx, &seat)
	})
	if err != nil {
		return nil, err
	}
	return &seat, nil
}

// LockAll 主持人一键锁座（可选含主持人座位）。
func (s *SeatService) LockAll(ctx context.Context, partyID, actorUserID string, includeHost bool) (int, error) {
	var count int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := assertHost(tx, partyID, actorUserID); err != nil {
			return err
		}
		q := forUpdate(tx).Where("party_id = ?", partyID)
		if !includeHost {
			q = q.Where("is_host = ?", false)
		}
		var seats []models.Seat
		if err := q.Order("seat_number asc").Find(&seats).Error; err != nil {
			return err
		}
		if len(seats) == 0 {
			return nil
		}
		ids := make([]string, 0, len(seats))
		for _, seat := range seats {
			ids = append(ids, seat.ID)
		}
		if err := tx.Model(&models.Seat{}).Where("id IN ?", ids).Update("is_locked", true).Error; err != nil {
			return err
		}
		count = len(seats)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Snapshot 返回派对全部座位，按座位号升序。
func (s *SeatService) Snapshot(ctx context.Context, partyID string) ([]models.Seat, error) {
	var seats []models.Seat
	if err := s.db.WithContext(ctx).Where("party_id = ?", partyID).Order("seat_number asc").Find(&seats).Error; err != nil {
		return nil, err
	}
	return seats, nil
}

// bestEffort 在事务提交后异步调媒体服务：带超时、只记日志、不影响结果。
func (s *SeatService) bestEffort(fn func(ctx context.Context) error, what string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), bridgeTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			log.Warn().Err(err).Str("op", what).Msg("livekit call failed")
		}
	}()
}
