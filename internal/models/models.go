package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Party 是一场语音派对。座位表在建房时一次性生成，派对存续期间行数不变。
type Party struct {
	ID           string    `gorm:"type:uuid;primaryKey" json:"id"`
	Title        string    `gorm:"size:150;not null" json:"title"`
	Description  string    `gorm:"type:text" json:"description,omitempty"`
	HostID       string    `gorm:"size:64;not null;index" json:"hostId"`
	RoomName     string    `gorm:"size:100;uniqueIndex;not null" json:"roomName"`
	MaxSeats     int       `gorm:"not null;default:7" json:"maxSeats"`
	IsActive     bool      `gorm:"not null;default:true" json:"isActive"`
	IsPrivate    bool      `gorm:"not null;default:false" json:"isPrivate"`
	PasswordHash string    `gorm:"size:128" json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (p *Party) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// Seat 是派对内一个编号座位。UserID 为空表示空位；
// 座位转空时 IsMuted 与 JoinedAt 一并复位。
type Seat struct {
	ID         string     `gorm:"type:uuid;primaryKey" json:"id"`
	PartyID    string     `gorm:"type:uuid;not null;index;uniqueIndex:idx_seat_party_number,priority:1;uniqueIndex:idx_seat_party_user,priority:1,where:user_id IS NOT NULL" json:"partyId"`
	SeatNumber int        `gorm:"not null;uniqueIndex:idx_seat_party_number,priority:2" json:"seatNumber"`
	UserID     *string    `gorm:"size:64;uniqueIndex:idx_seat_party_user,priority:2,where:user_id IS NOT NULL" json:"userId"`
	IsHost     bool       `gorm:"not null;default:false" json:"isHost"`
	IsLocked   bool       `gorm:"not null;default:false" json:"isLocked"`
	IsMuted    bool       `gorm:"not null;default:false" json:"isMuted"`
	JoinedAt   *time.Time `json:"joinedAt"`
	CreatedAt  time.Time  `json:"-"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

func (s *Seat) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// Occupied 报告座位当前是否有人。
func (s *Seat) Occupied() bool { return s.UserID != nil }
