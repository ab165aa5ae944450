package trace

import (
	"context"
	"errors"

	"github.com/GriffinCanCode/tracekit/internal/protocol"
	"github.com/GriffinCanCode/tracekit/internal/shared/id"
	"go.uber.org/zap"
)

// sendRun carries one Send call through a unit tree. Agent-side failures are
// logged and skipped; the first transport error aborts the rest of the run.
type sendRun struct {
	sender    Sender
	logger    *zap.Logger
	requestID id.RequestID
	sent      int
	err       error
	aborted   bool
}

func newSendRun(t *Tracer, requestID id.RequestID) *sendRun {
	return &sendRun{
		sender:    t.sender,
		logger:    t.logger,
		requestID: requestID,
	}
}

func (r *sendRun) send(ctx context.Context, msg protocol.Message) {
	if r.aborted {
		return
	}
	if r.sender == nil {
		r.fail(msg, errNoSender, true)
		return
	}

	resp, err := r.sender.Send(ctx, msg)
	if err != nil {
		r.fail(msg, err, true)
		return
	}
	r.sent++
	if resp == nil {
		return
	}
	if err := resp.Outcome().Err(); err != nil {
		r.fail(msg, err, false)
	}
}

func (r *sendRun) fail(msg protocol.Message, err error, abort bool) {
	r.logger.Debug("message not delivered",
		zap.String("request_id", r.requestID.String()),
		zap.String("kind", msg.Kind()),
		zap.Error(err),
	)
	if r.err == nil {
		r.err = err
	}
	if abort {
		r.aborted = true
	}
}

var errNoSender = errors.New("trace: no sender configured")
