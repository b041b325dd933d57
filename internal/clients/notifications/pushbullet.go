package notifications

import (
	"fmt"
	"path/filepath"

	"anidl/internal/utils"

	"github.com/xconstruct/go-pushbullet"
)

// pusher is the subset of the pushbullet client used here.
type pusher interface {
	PushNote(iden, title, body string) error
}

// PushbulletClient implements the Notifier interface for Pushbullet.
type PushbulletClient struct {
	pb     pusher
	me     func() error
	logger *utils.Logger
}

// NewPushbulletClient creates a new client for sending Pushbullet notifications.
func NewPushbulletClient(apiKey string, logger *utils.Logger) *PushbulletClient {
	pb := pushbullet.New(apiKey)
	return &PushbulletClient{
		pb: pb,
		me: func() error {
			_, err := pb.Me()
			return err
		},
		logger: logger,
	}
}

// sendPush sends a note to all of the user's devices.
func (c *PushbulletClient) sendPush(title, body string) {
	// An empty device iden means all devices.
	if err := c.pb.PushNote("", title, body); err != nil {
		c.logger.Error("Error sending Pushbullet notification:", err)
	}
}

func (c *PushbulletClient) NotifyEpisodeReady(seriesName, path string) {
	c.sendPush(
		fmt.Sprintf("Ready to Watch: %s", seriesName),
		fmt.Sprintf("New episode saved as %s", filepath.Base(path)),
	)
}

func (c *PushbulletClient) NotifyTaskFailed(seriesName, message string) {
	c.sendPush(fmt.Sprintf("Error fetching %s", seriesName), message)
}

func (c *PushbulletClient) NotifyRunComplete(summary RunSummary) {
	if summary.Finished == 0 && summary.Failed == 0 {
		return
	}
	title := "Episode run complete"
	if summary.Cancelled {
		title = "Episode run cancelled"
	}
	c.sendPush(title, fmt.Sprintf("%d ready, %d failed, %d skipped", summary.Finished, summary.Failed, summary.Skipped))
}

// Test verifies the API key is valid by fetching user info.
func (c *PushbulletClient) Test() error {
	if err := c.me(); err != nil {
		return fmt.Errorf("pushbullet authentication failed: %w", err)
	}
	return nil
}
