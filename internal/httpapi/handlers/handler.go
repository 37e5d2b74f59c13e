package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/chatmimic/internal/bot"
	"github.com/suPer8Hu/chatmimic/internal/brain"
	"github.com/suPer8Hu/chatmimic/internal/common"
	"github.com/suPer8Hu/chatmimic/internal/imports"
	"go.uber.org/zap"
)

type Bot interface {
	Handle(ctx context.Context, ev bot.Event) []bot.Reply
	Import(ctx context.Context, chatID int64, url string, only *brain.UserName) (*imports.Job, error)
	Users(ctx context.Context, chatID int64) ([]brain.UserName, error)
	Say(ctx context.Context, chatID int64, token string, order int) (brain.Reply, bool, error)
}

type JobReader interface {
	Get(ctx context.Context, id string) (*imports.Job, error)
	ListByChat(ctx context.Context, chatID int64, limit int) ([]imports.Job, error)
}

type Handler struct {
	Bot  Bot
	Jobs JobReader
	Log  *zap.Logger
}

func NewHandler(b Bot, jobs JobReader, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{Bot: b, Jobs: jobs, Log: log}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}

func chatIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("chat_id"), 10, 64)
	if err != nil || id == 0 {
		common.Fail(c, http.StatusBadRequest, 10002, "invalid chat_id")
		return 0, false
	}
	return id, true
}
