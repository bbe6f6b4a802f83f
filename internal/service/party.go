package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ItzSjDude/hiva-node/internal/livekit"
	"github.com/ItzSjDude/hiva-node/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// PartyService 封装派对生命周期：建房（含座位骨架）、查找、解散。
type PartyService struct {
	db     *gorm.DB
	bridge livekit.Bridge
	seats  int
}

func NewPartyService(db *gorm.DB, bridge livekit.Bridge, seatsPerParty int) *PartyService {
	return &PartyService{db: db, bridge: bridge, seats: seatsPerParty}
}

type CreatePartyInput struct {
	Title       string
	Description string
	IsPrivate   bool
	Password    string
}

// Create 建派对：派对行 + 全量座位骨架在同一事务写入，主持人预坐 1 号位。
// 媒体房间创建放在提交之后，失败不影响库内状态。
func (s *PartyService) Create(ctx context.Context, hostID string, in CreatePartyInput) (*models.Party, []models.Seat, error) {
	roomName := fmt.Sprintf("party_%d_%s", time.Now().UnixMilli(), strings.Split(uuid.NewString(), "-")[0])

	party := models.Party{
		Title:       in.Title,
		Description: in.Description,
		HostID:      hostID,
		RoomName:    roomName,
		MaxSeats:    s.seats,
		IsActive:    true,
		IsPrivate:   in.IsPrivate,
	}
	if in.IsPrivate {
		hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, nil, err
		}
		party.PasswordHash = string(hash)
	}

	var seats []models.Seat
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&party).Error; err != nil {
			return err
		}
		now := time.Now()
		seats = make([]models.Seat, 0, s.seats)
		for n := 1; n <= s.seats; n++ {
			seat := models.Seat{PartyID: party.ID, SeatNumber: n}
			if n == 1 {
				seat.IsHost = true
				seat.UserID = &party.HostID
				seat.JoinedAt = &now
			}
			seats = append(seats, seat)
		}
		return tx.Create(&seats).Error
	})
	if err != nil {
		return nil, nil, err
	}

	go func() {
		bctx, cancel := context.WithTimeout(context.Background(), bridgeTimeout)
		defer cancel()
		if err := s.bridge.CreateRoom(bctx, roomName, s.seats); err != nil {
			log.Warn().Err(err).Str("room", roomName).Msg("livekit create room failed")
		}
	}()
	return &party, seats, nil
}

// Resolve 先按主键找，找不到再按媒体房间名找。只认存在性，活跃与否由调用方判断。
func (s *PartyService) Resolve(ctx context.Context, ref string) (*models.Party, error) {
	var party models.Party
	if _, err := uuid.Parse(ref); err == nil {
		err := s.db.WithContext(ctx).First(&party, "id = ?", ref).Error
		if err == nil {
			return &party, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	if err := s.db.WithContext(ctx).First(&party, "room_name = ?", ref).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPartyNotFound
		}
		return nil, err
	}
	return &party, nil
}

// List 分页列出活跃派对，支持按标题搜索。
func (s *PartyService) List(ctx context.Context, page, limit int, search string) ([]models.Party, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if page <= 0 {
		page = 1
	}
	q := s.db.WithContext(ctx).Model(&models.Party{}).Where("is_active = ?", true)
	if search != "" {
		q = q.Where("title ILIKE ?", "%"+search+"%")
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var parties []models.Party
	if err := q.Order("created_at desc").Limit(limit).Offset((page - 1) * limit).Find(&parties).Error; err != nil {
		return nil, 0, err
	}
	return parties, total, nil
}

// Get 返回派对与按座位号排序的座位快照。
func (s *PartyService) Get(ctx context.Context, id string) (*models.Party, []models.Seat, error) {
	party, err := s.Resolve(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	var seats []models.Seat
	if err := s.db.WithContext(ctx).Where("party_id = ?", party.ID).Order("seat_number asc").Find(&seats).Error; err != nil {
		return nil, nil, err
	}
	return party, seats, nil
}

// JoinAsListener 校验私密口令并签发仅可收听的媒体 token。
func (s *PartyService) JoinAsListener(ctx context.Context, partyID, userID, password string) (*models.Party, string, error) {
	party, err := s.Resolve(ctx, partyID)
	if err != nil {
		return nil, "", err
	}
	if !party.IsActive {
		return nil, "", ErrPartyNotFound
	}
	if party.IsPrivate {
		if bcrypt.CompareHashAndPassword([]byte(party.PasswordHash), []byte(password)) != nil {
			return nil, "", ErrForbidden
		}
	}
	token, err := s.bridge.JoinToken(party.RoomName, userID, false)
	if err != nil {
		return nil, "", err
	}
	return party, token, nil
}

// HostToken 给主持人签发可发布的媒体 token。
func (s *PartyService) HostToken(party *models.Party) (string, error) {
	return s.bridge.JoinToken(party.RoomName, party.HostID, true)
}

// Teardown 解散派对：删座位、删派对行，提交后再删媒体房间。
// 派对不能脱离主持人存在，主持人离场即整场结束。
func (s *PartyService) Teardown(ctx context.Context, partyID, actorUserID string) (*models.Party, error) {
	var party *models.Party
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		party, err = assertHost(tx, partyID, actorUserID)
		if err != nil {
			return err
		}
		if err := tx.Where("party_id = ?", party.ID).Delete(&models.Seat{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Party{}, "id = ?", party.ID).Error
	})
	if err != nil {
		return nil, err
	}

	go func() {
		bctx, cancel := context.WithTimeout(context.Background(), bridgeTimeout)
		defer cancel()
		if err := s.bridge.DeleteRoom(bctx, party.RoomName); err != nil {
			log.Warn().Err(err).Str("room", party.RoomName).Msg("livekit delete room failed")
		}
	}()
	return party, nil
}
