package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/ItzSjDude/hiva-node/internal/auth"
	"github.com/ItzSjDude/hiva-node/internal/config"
	"github.com/ItzSjDude/hiva-node/internal/service"
	"github.com/ItzSjDude/hiva-node/internal/ws"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Handler 聚合 REST handler，依赖注入 service 层。
type Handler struct {
	cfg      config.Config
	partySvc *service.PartyService
	hub      *ws.Hub
}

func NewHandler(cfg config.Config, partySvc *service.PartyService, hub *ws.Hub) *Handler {
	return &Handler{cfg: cfg, partySvc: partySvc, hub: hub}
}

func seatErrStatus(err error) (int, string) {
	se, ok := service.AsSeatError(err)
	if !ok {
		return http.StatusInternalServerError, "internal error"
	}
	switch se.Code {
	case service.CodePartyNotFound, service.CodeSeatNotFound:
		return http.StatusNotFound, se.Message
	case service.CodeForbidden:
		return http.StatusForbidden, se.Message
	default:
		return http.StatusBadRequest, se.Message
	}
}

// MintToken 给 uid 签一个访问 token，开发与联调用，prod 下不挂载。
func (h *Handler) MintToken(c *gin.Context) {
	var req struct {
		UserID string `json:"userId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.UserID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	token, err := auth.GenerateAccessToken(strings.TrimSpace(req.UserID), h.cfg.JWTSecret, h.cfg.AccessTokenTTLMinutes)
	if err != nil {
		log.Error().Err(err).Msg("mint token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mint token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// CreateParty 建派对：座位骨架随建，返回主持人的媒体入房 token。
func (h *Handler) CreateParty(c *gin.Context) {
	var req struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		IsPrivate   bool   `json:"isPrivate"`
		Password    string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" || len(req.Title) > 150 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid title"})
		return
	}
	if req.IsPrivate && req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password required for private party"})
		return
	}
	hostID := auth.GetUserID(c)
	party, seats, err := h.partySvc.Create(c.Request.Context(), hostID, service.CreatePartyInput{
		Title:       req.Title,
		Description: req.Description,
		IsPrivate:   req.IsPrivate,
		Password:    req.Password,
	})
	if err != nil {
		log.Error().Err(err).Str("host_id", hostID).Msg("create party")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create party"})
		return
	}
	token, err := h.partySvc.HostToken(party)
	if err != nil {
		log.Warn().Err(err).Str("party_id", party.ID).Msg("host token")
	}
	c.JSON(http.StatusCreated, gin.H{"party": party, "seats": seats, "token": token})
}

// ListParties 列出活跃派对。
func (h *Handler) ListParties(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	parties, total, err := h.partySvc.List(c.Request.Context(), page, limit, c.Query("search"))
	if err != nil {
		log.Error().Err(err).Msg("list parties")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list parties"})
		return
	}
	type partyDTO struct {
		ID       string `json:"id"`
		Title    string `json:"title"`
		HostID   string `json:"hostId"`
		RoomName string `json:"roomName"`
		MaxSeats int    `json:"maxSeats"`
		Online   int    `json:"online"`
	}
	out := make([]partyDTO, 0, len(parties))
	for _, p := range parties {
		out = append(out, partyDTO{ID: p.ID, Title: p.Title, HostID: p.HostID, RoomName: p.RoomName, MaxSeats: p.MaxSeats, Online: h.hub.Online(p.ID)})
	}
	c.JSON(http.StatusOK, gin.H{"parties": out, "total": total, "page": page})
}

// GetParty 返回派对详情与按座位号排序的座位快照。
func (h *Handler) GetParty(c *gin.Context) {
	party, seats, err := h.partySvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		status, msg := seatErrStatus(err)
		if status == http.StatusInternalServerError {
			log.Error().Err(err).Str("party_id", c.Param("id")).Msg("get party")
		}
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, gin.H{"party": party, "seats": seats})
}

// JoinParty 以听众身份入场，私密派对校验口令，返回仅可收听的媒体 token。
func (h *Handler) JoinParty(c *gin.Context) {
	var req struct {
		Password string `json:"password"`
	}
	_ = c.ShouldBindJSON(&req)
	party, token, err := h.partySvc.JoinAsListener(c.Request.Context(), c.Param("id"), auth.GetUserID(c), req.Password)
	if err != nil {
		status, msg := seatErrStatus(err)
		if status == http.StatusInternalServerError {
			log.Error().Err(err).Str("party_id", c.Param("id")).Msg("join party")
		}
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, gin.H{"partyId": party.ID, "roomName": party.RoomName, "token": token})
}

// EndParty 主持人解散派对，并通知广播组关房。
func (h *Handler) EndParty(c *gin.Context) {
	resolved, err := h.partySvc.Resolve(c.Request.Context(), c.Param("id"))
	if err != nil {
		status, msg := seatErrStatus(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	party, err := h.partySvc.Teardown(c.Request.Context(), resolved.ID, auth.GetUserID(c))
	if err != nil {
		status, msg := seatErrStatus(err)
		if status == http.StatusInternalServerError {
			log.Error().Err(err).Str("party_id", c.Param("id")).Msg("end party")
		}
		c.JSON(status, gin.H{"error": msg})
		return
	}
	h.hub.Broadcast(party.ID, ws.RoomClosedEvent(party.ID))
	h.hub.CloseParty(party.ID)
	c.JSON(http.StatusOK, gin.H{"message": "party ended"})
}
