package authclient

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

const refreshJobTimeout = 30 * time.Second

// StartRefresh schedules proactive token refreshes. Each refresh emits an
// identity change so observers pick up the new token. Calling it again
// while running is a no-op.
func (c *Client) StartRefresh() error {
	c.cronMu.Lock()
	defer c.cronMu.Unlock()

	if c.cron != nil {
		return nil
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(c.schedule, c.refreshJob); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", c.schedule, err)
	}
	scheduler.Start()
	c.cron = scheduler

	c.log.Debug().Str("schedule", c.schedule).Msg("Token refresh scheduled")
	return nil
}

// Close stops the refresh schedule and waits for a running refresh
func (c *Client) Close() error {
	c.cronMu.Lock()
	scheduler := c.cron
	c.cron = nil
	c.cronMu.Unlock()

	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
	return nil
}

func (c *Client) refreshJob() {
	if c.CurrentUser() == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), refreshJobTimeout)
	defer cancel()

	if _, err := c.Token(ctx, true); err != nil {
		c.log.Warn().Err(err).Msg("Scheduled token refresh failed")
		return
	}

	if user := c.CurrentUser(); user != nil {
		c.log.Debug().Str("uid", user.UID).Msg("Token refreshed")
		c.emit(user)
	}
}
