package presence

import (
	"context"

	"github.com/akinalp/callrelay/callcenter"
	"github.com/akinalp/callrelay/models"
)

// Sink, kanaldan gelenleri alan taraf. callcenter.Registry bunu karşılar.
type Sink interface {
	Deliver(localID string, event models.SignalingEvent)
	DeliverInvitation(localID string, inv callcenter.Invitation)
}

// Forward, davetleri ve signal event'lerini ctx bitene ya da bağlantı
// kapanana kadar sink'e aktarır.
func (c *Client) Forward(ctx context.Context, sink Sink) {
	local := c.participantID
	for {
		select {
		case inv := <-c.incoming:
			sink.DeliverInvitation(local, inv)
		case ev := <-c.signals:
			sink.Deliver(local, ev)
		case <-c.done:
			return
		case <-ctx.Done():
			return
		}
	}
}
