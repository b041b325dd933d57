package notifications

import (
	"errors"
	"sync"
	"testing"

	"anidl/internal/utils"
)

type recordingPusher struct {
	mu     sync.Mutex
	titles []string
	bodies []string
	err    error
}

func (r *recordingPusher) PushNote(iden, title, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.titles = append(r.titles, title)
	r.bodies = append(r.bodies, body)
	return r.err
}

func newTestClient(p *recordingPusher) *PushbulletClient {
	return &PushbulletClient{pb: p, me: func() error { return nil }, logger: utils.Discard()}
}

func TestNotifyEpisodeReady(t *testing.T) {
	p := &recordingPusher{}
	newTestClient(p).NotifyEpisodeReady("Show", "/media/show/Show_Ep_04.mp4")

	if len(p.titles) != 1 || p.titles[0] != "Ready to Watch: Show" {
		t.Fatalf("unexpected titles %v", p.titles)
	}
	if p.bodies[0] != "New episode saved as Show_Ep_04.mp4" {
		t.Fatalf("unexpected body %q", p.bodies[0])
	}
}

func TestNotifyRunCompleteSkipsIdleRuns(t *testing.T) {
	p := &recordingPusher{}
	c := newTestClient(p)
	c.NotifyRunComplete(RunSummary{Skipped: 4})
	if len(p.titles) != 0 {
		t.Fatalf("idle run should not notify, got %v", p.titles)
	}
	c.NotifyRunComplete(RunSummary{Finished: 1, Failed: 1, Cancelled: true})
	if len(p.titles) != 1 || p.titles[0] != "Episode run cancelled" {
		t.Fatalf("unexpected titles %v", p.titles)
	}
	if p.bodies[0] != "1 ready, 1 failed, 0 skipped" {
		t.Fatalf("unexpected body %q", p.bodies[0])
	}
}

func TestPushErrorsAreLoggedNotReturned(t *testing.T) {
	p := &recordingPusher{err: errors.New("boom")}
	newTestClient(p).NotifyTaskFailed("Show", "download failed")
	if len(p.titles) != 1 {
		t.Fatal("push not attempted")
	}
}

func TestTestWrapsError(t *testing.T) {
	c := &PushbulletClient{pb: &recordingPusher{}, me: func() error { return errors.New("401") }, logger: utils.Discard()}
	if err := c.Test(); err == nil {
		t.Fatal("expected auth error")
	}
}
