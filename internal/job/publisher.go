package job

import (
	"context"
	"time"
)

const DefaultKeepAlive = 5 * time.Second

// Publisher exposes the Register to readers: a one-shot snapshot and a
// change stream shared by the SSE, websocket and Redis consumers.
type Publisher struct {
	register  *Register
	keepAlive time.Duration
}

func NewPublisher(register *Register, keepAlive time.Duration) *Publisher {
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}
	return &Publisher{register: register, keepAlive: keepAlive}
}

func (p *Publisher) Snapshot() Status {
	return p.register.Snapshot()
}

// Stream calls emit with the current status, then once for every change
// after it. Bursts of updates coalesce into the latest snapshot. After
// keepAlive of silence keepAlive is called instead.
//
// Stream returns nil when ctx is done and the first error returned by
// emit or keepAlive otherwise.
func (p *Publisher) Stream(ctx context.Context, emit func(Status) error, keepAlive func() error) error {
	timer := time.NewTimer(p.keepAlive)
	defer timer.Stop()

	var watermark time.Time
	for {
		changed := p.register.Changed()
		st := p.register.Snapshot()
		if st.LastUpdated.After(watermark) {
			if err := emit(st); err != nil {
				return err
			}
			watermark = st.LastUpdated
			timer.Reset(p.keepAlive)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-changed:
		case <-timer.C:
			if err := keepAlive(); err != nil {
				return err
			}
			timer.Reset(p.keepAlive)
		}
	}
}
