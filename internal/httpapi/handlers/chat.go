package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/chatmimic/internal/bot"
	"github.com/suPer8Hu/chatmimic/internal/brain"
	"github.com/suPer8Hu/chatmimic/internal/common"
	"github.com/suPer8Hu/chatmimic/internal/imports"
	"go.uber.org/zap"
)

type eventReq struct {
	ChatID    int64     `json:"chat_id" binding:"required"`
	MessageID int64     `json:"message_id"`
	UserName  string    `json:"user_name"`
	Text      string    `json:"text"`
	Date      time.Time `json:"date"`
}

// PostEvent applies one chat event synchronously and returns the replies
// the bot would send.
func (h *Handler) PostEvent(c *gin.Context) {
	var req eventReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	replies := h.Bot.Handle(c.Request.Context(), bot.Event{
		ChatID:    req.ChatID,
		MessageID: req.MessageID,
		UserName:  req.UserName,
		Text:      req.Text,
		Date:      req.Date,
	})
	if replies == nil {
		replies = []bot.Reply{}
	}
	common.OK(c, gin.H{"replies": replies})
}

type importReq struct {
	URL  string `json:"url" binding:"required"`
	User string `json:"user"`
}

func (h *Handler) CreateImport(c *gin.Context) {
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}
	var req importReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	var only *brain.UserName
	if name := strings.TrimSpace(req.User); name != "" {
		u := brain.NewUserName(name)
		only = &u
	}

	job, err := h.Bot.Import(c.Request.Context(), chatID, req.URL, only)
	if err != nil {
		if errors.Is(err, bot.ErrInvalidURL) {
			common.Fail(c, http.StatusBadRequest, 40001, "invalid url")
			return
		}
		if job == nil {
			h.Log.Error("import failed to start", zap.Int64("chat_id", chatID), zap.Error(err))
			common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
			return
		}
		// the job row carries the failure
	}
	common.OK(c, job)
}

func (h *Handler) GetImport(c *gin.Context) {
	job, err := h.Jobs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, imports.ErrNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "import not found")
			return
		}
		h.Log.Error("get import", zap.String("job_id", c.Param("id")), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50002, "internal error")
		return
	}
	common.OK(c, job)
}

func (h *Handler) ListImports(c *gin.Context) {
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	jobs, err := h.Jobs.ListByChat(c.Request.Context(), chatID, limit)
	if err != nil {
		h.Log.Error("list imports", zap.Int64("chat_id", chatID), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50002, "internal error")
		return
	}
	if jobs == nil {
		jobs = []imports.Job{}
	}
	common.OK(c, gin.H{"chat_id": chatID, "imports": jobs})
}

func (h *Handler) ListUsers(c *gin.Context) {
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}
	users, err := h.Bot.Users(c.Request.Context(), chatID)
	if err != nil {
		h.Log.Error("list users", zap.Int64("chat_id", chatID), zap.Error(err))
		common.Fail(c, http.StatusServiceUnavailable, 50301, "chat data unavailable")
		return
	}
	names := make([]string, 0, len(users))
	for _, u := range users {
		names = append(names, u.String())
	}
	common.OK(c, gin.H{"chat_id": chatID, "users": names})
}

type sayReq struct {
	Token string `json:"token"`
	Order int    `json:"order"`
}

func (h *Handler) Say(c *gin.Context) {
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}
	var req sayReq
	// an empty body means defaults
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if req.Order == 0 {
		req.Order = 1
	}

	r, generated, err := h.Bot.Say(c.Request.Context(), chatID, req.Token, req.Order)
	if err != nil {
		h.Log.Error("say", zap.Int64("chat_id", chatID), zap.Error(err))
		common.Fail(c, http.StatusServiceUnavailable, 50301, "chat data unavailable")
		return
	}
	if !generated {
		common.OK(c, gin.H{"generated": false})
		return
	}
	common.OK(c, gin.H{"generated": true, "user": r.User.String(), "text": r.Text})
}
