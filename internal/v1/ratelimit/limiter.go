// Package ratelimit throttles chat traffic per user.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"

	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/internal/v1/logging"
	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/internal/v1/metrics"
)

// ChatLimiter enforces a per-user ceiling on chat messages. The server
// holds every session in one process, so the in-memory store is enough.
type ChatLimiter struct {
	limiter *limiter.Limiter
}

// NewChatLimiter builds a limiter from a formatted rate such as "20-M"
// (twenty per minute).
func NewChatLimiter(rate string) (*ChatLimiter, error) {
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("invalid chat rate: %w", err)
	}
	return &ChatLimiter{
		limiter: limiter.New(memory.NewStore(), parsed),
	}, nil
}

// Allow reports whether the user may send another chat message right
// now. Store failures fail open so a limiter bug never mutes the room.
func (cl *ChatLimiter) Allow(ctx context.Context, userID int32) bool {
	lctx, err := cl.limiter.Get(ctx, strconv.FormatInt(int64(userID), 10))
	if err != nil {
		logging.Error(ctx, "chat limiter store failed", zap.Error(err))
		return true
	}
	if lctx.Reached {
		metrics.ChatRateLimited.Inc()
		return false
	}
	return true
}
