package feed

import (
	"errors"
	"sync"

	"github.com/trollcity/wallsync/internal/wall"
	"go.uber.org/zap"
)

var errAlreadySubscribed = errors.New("feed: subscription already open")

// SubscriptionDriver owns exactly one realtime subscription for the
// lifetime of a feed view. Incoming insert/update events are appended to
// the buffer, never applied directly; ordering correctness is the
// window's responsibility at merge time.
type SubscriptionDriver struct {
	realtime Realtime
	buffer   *ChangeEventBuffer
	logger   *zap.Logger

	mu     sync.Mutex
	cancel func()
}

// NewSubscriptionDriver wires a driver to its event sink.
func NewSubscriptionDriver(realtime Realtime, buffer *ChangeEventBuffer, logger *zap.Logger) (*SubscriptionDriver, error) {
	if realtime == nil {
		return nil, errMissingRealtime
	}
	if buffer == nil {
		return nil, errMissingStore
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubscriptionDriver{
		realtime: realtime,
		buffer:   buffer,
		logger:   logger,
	}, nil
}

// Start opens the subscription. A second Start without an intervening
// Stop is an error: one view holds at most one live subscription.
func (d *SubscriptionDriver) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cancel != nil {
		return errAlreadySubscribed
	}

	cancel, err := d.realtime.SubscribeToFeedChanges(d.handleEvent)
	if err != nil {
		return newServiceError("feed.subscribe", "channel_open_failed", err)
	}
	d.cancel = cancel
	d.logger.Debug("feed subscription opened")
	return nil
}

// Stop releases the subscription. Safe to call repeatedly; a leaked
// subscription per view lifecycle is the failure this method exists to
// prevent.
func (d *SubscriptionDriver) Stop() {
	d.mu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
		d.logger.Debug("feed subscription released")
	}
}

func (d *SubscriptionDriver) handleEvent(event wall.ChangeEvent) {
	switch event.Kind {
	case wall.EventInsert, wall.EventUpdate:
		d.buffer.Append(event)
	default:
		// Unknown event kinds are tolerated silently per the channel
		// contract.
	}
}
