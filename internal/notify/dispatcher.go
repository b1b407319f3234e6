package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sender delivers a text message to a user.
type Sender interface {
	SendMessage(ctx context.Context, userID int64, text string) error
}

type message struct {
	userID int64
	text   string
}

// Dispatcher delivers messages in the background. Delivery is best-effort:
// failures are logged and a full queue drops the message.
type Dispatcher struct {
	sender  Sender
	log     *zap.Logger
	ch      chan message
	timeout time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewDispatcher(sender Sender, log *zap.Logger, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Dispatcher{
		sender:  sender,
		log:     log,
		ch:      make(chan message, queueSize),
		timeout: 10 * time.Second,
		stopCh:  make(chan struct{}),
	}
}

func (d *Dispatcher) Start(workers int) {
	if workers <= 0 {
		workers = 2
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case msg := <-d.ch:
			d.deliver(msg)
		case <-d.stopCh:
			return
		}
	}
}

func (d *Dispatcher) deliver(msg message) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.sender.SendMessage(ctx, msg.userID, msg.text); err != nil {
		d.log.Warn("notification failed", zap.Int64("user_id", msg.userID), zap.Error(err))
	}
}

// Notify queues text for userID and returns immediately.
func (d *Dispatcher) Notify(userID int64, text string) {
	select {
	case d.ch <- message{userID: userID, text: text}:
	default:
		d.log.Warn("notification queue full, dropping message", zap.Int64("user_id", userID))
	}
}

// Stop delivers what is still queued until ctx expires, then stops the workers.
func (d *Dispatcher) Stop(ctx context.Context) {
	d.stopOnce.Do(func() {
	drain:
		for {
			select {
			case msg := <-d.ch:
				d.deliver(msg)
			case <-ctx.Done():
				break drain
			default:
				break drain
			}
		}
		close(d.stopCh)
		d.wg.Wait()
	})
}
