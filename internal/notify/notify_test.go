package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codebuddy/apiserver/internal/logging"
	"github.com/codebuddy/apiserver/internal/mq"
)

type fakeMailer struct {
	mu         sync.Mutex
	otps       []string
	welcomes   []string
	otpErr     error
	welcomeErr error
}

func (f *fakeMailer) SendOTP(to, _, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.otpErr != nil {
		return f.otpErr
	}
	f.otps = append(f.otps, to+":"+code)
	return nil
}

func (f *fakeMailer) SendWelcome(to, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.welcomeErr != nil {
		return f.welcomeErr
	}
	f.welcomes = append(f.welcomes, to)
	return nil
}

func (f *fakeMailer) welcomeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.welcomes)
}

// chanBackend is a single-channel in-memory broker for tests.
type chanBackend struct {
	jobs chan mq.Job
}

func newChanBackend() *chanBackend {
	return &chanBackend{jobs: make(chan mq.Job, 16)}
}

func (b *chanBackend) Publish(_ context.Context, _ string, job mq.Job) (string, error) {
	b.jobs <- job
	return "msg-1", nil
}

func (b *chanBackend) Subscribe(ctx context.Context, _ string, handler mq.Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case job := <-b.jobs:
			if err := handler(ctx, job); err != nil {
				b.jobs <- job
			}
		}
	}
}

func (b *chanBackend) Close() error { return nil }

func TestSendOTPPropagatesFailure(t *testing.T) {
	mailer := &fakeMailer{otpErr: errors.New("smtp down")}
	notifier := NewEmailNotifier(mailer, nil, logging.Nop())

	err := notifier.SendOTP(context.Background(), "a@x.com", "Ada", "123456")
	assert.Error(t, err)
}

func TestSendWelcomeDirectSwallowsFailure(t *testing.T) {
	mailer := &fakeMailer{welcomeErr: errors.New("smtp down")}
	notifier := NewEmailNotifier(mailer, nil, logging.Nop())

	// Must not panic or block the caller.
	notifier.SendWelcome(context.Background(), "a@x.com", "Ada")
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, mailer.welcomeCount())
}

func TestSendWelcomeDirect(t *testing.T) {
	mailer := &fakeMailer{}
	notifier := NewEmailNotifier(mailer, nil, logging.Nop())

	notifier.SendWelcome(context.Background(), "a@x.com", "Ada")

	require.Eventually(t, func() bool {
		return mailer.welcomeCount() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestWelcomeFlowsThroughBus(t *testing.T) {
	backend := newChanBackend()
	bus := mq.New(backend)
	mailer := &fakeMailer{}
	notifier := NewEmailNotifier(mailer, bus, logging.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	worker := NewWorker(bus, mailer, logging.Nop())
	go func() {
		_ = worker.Run(ctx)
	}()

	notifier.SendWelcome(ctx, "a@x.com", "Ada")

	require.Eventually(t, func() bool {
		return mailer.welcomeCount() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestWorkerRequeuesOnFailure(t *testing.T) {
	backend := newChanBackend()
	bus := mq.New(backend)

	mailer := &fakeMailer{welcomeErr: errors.New("smtp down")}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	worker := NewWorker(bus, mailer, logging.Nop())
	go func() {
		_ = worker.Run(ctx)
	}()

	_, err := bus.Publish(ctx, mq.ChannelWelcome, mq.Job{Kind: "welcome", Email: "a@x.com"})
	require.NoError(t, err)

	// Let it fail at least once, then recover and deliver.
	time.Sleep(50 * time.Millisecond)
	mailer.mu.Lock()
	mailer.welcomeErr = nil
	mailer.mu.Unlock()

	require.Eventually(t, func() bool {
		return mailer.welcomeCount() >= 1
	}, time.Second, 10*time.Millisecond)
}
