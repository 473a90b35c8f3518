package application

import (
	"time"

	"github.com/KOMKZ/go-yogan-throttle/limiter"
	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const (
	chatHistoryPrefix = "chat_history:"
	chatHistoryLimit  = 50
	chatHistoryTTL    = 24 * time.Hour
)

type chatRequest struct {
	Query string `uri:"query" json:"query"`
}

// Validate implements validator.Validatable
func (r *chatRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Query, validation.Required, validation.Length(1, 500)),
	)
}

type chatResponse struct {
	Identity    string `json:"identity"`
	Reply       string `json:"reply"`
	HistorySize int64  `json:"history_size"`
}

// chatHandler sample admitted endpoint: records the query in a capped
// per-identity history list on the shared pool and echoes it back
type chatHandler struct {
	clients  limiter.ClientSource
	identity func(*gin.Context) string
}

func newChatHandler(clients limiter.ClientSource, identity func(*gin.Context) string) *chatHandler {
	return &chatHandler{clients: clients, identity: identity}
}

func (h *chatHandler) Handle(c *gin.Context, req *chatRequest) (*chatResponse, error) {
	id := h.identity(c)
	resp := &chatResponse{Identity: id, Reply: "echo: " + req.Query}
	if h.clients == nil {
		return resp, nil
	}

	ctx := c.Request.Context()
	client, err := h.clients.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	key := chatHistoryPrefix + id
	pipe := client.TxPipeline()
	pipe.LPush(ctx, key, req.Query)
	pipe.LTrim(ctx, key, 0, chatHistoryLimit-1)
	pipe.Expire(ctx, key, chatHistoryTTL)
	size := pipe.LLen(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	resp.HistorySize = size.Val()
	return resp, nil
}
