package actor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type MailboxSuite struct {
	suite.Suite
}

func TestMailboxSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(MailboxSuite))
}

func (s *MailboxSuite) TestDoRunsSerially() {
	mb := Start()
	defer mb.Stop()

	var mu sync.Mutex
	var active, maxActive int

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			Do(context.Background(), mb, func() {
				mu.Lock()
				active++
				if active > maxActive {
					maxActive = active
				}
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				active--
				mu.Unlock()
			})
		}()
	}
	wg.Wait()

	s.Equal(1, maxActive)
}

func (s *MailboxSuite) TestDoReturnsAfterFn() {
	mb := Start()
	defer mb.Stop()

	ran := false
	err := Do(context.Background(), mb, func() { ran = true })
	s.NoError(err)
	s.True(ran)
}

func (s *MailboxSuite) TestCancelledBeforeSubmit() {
	mb := Start()
	defer mb.Stop()

	// occupy the actor so the next submit blocks
	release := make(chan struct{})
	go Do(context.Background(), mb, func() { <-release })
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	errs := make(chan error, 1)
	go func() {
		errs <- Do(ctx, mb, func() {})
	}()

	select {
	case err := <-errs:
		s.ErrorIs(err, context.Canceled)
	case <-time.After(time.Second):
		s.Fail("Do did not observe cancellation")
	}
	close(release)
}

func (s *MailboxSuite) TestInFlightRequestCompletesOnCancel() {
	mb := Start()
	defer mb.Stop()

	started := make(chan struct{})
	finished := false

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	err := Do(ctx, mb, func() {
		close(started)
		time.Sleep(20 * time.Millisecond)
		finished = true
	})

	// the actor completes the current operation even though the caller's
	// context was cancelled mid-run
	s.NoError(err)
	s.True(finished)
}
