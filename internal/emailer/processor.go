package emailer

import (
	"context"
	"fmt"
	"log/slog"

	nrmodels "namereg/internal/namerequest/models"
)

// RequestSource loads the request a notification refers to. The email always
// renders against the current state, not the state at enqueue time.
type RequestSource interface {
	Get(ctx context.Context, nrNum string) (*nrmodels.Request, error)
}

// Deliverer hands a rendered message to the outbound mail channel.
type Deliverer interface {
	Deliver(ctx context.Context, msg *Message) error
}

// LogDeliverer writes messages to the log instead of sending them. It is the
// deliverer for environments without an outbound mail relay.
type LogDeliverer struct {
	Logger *slog.Logger
}

func (d *LogDeliverer) Deliver(ctx context.Context, msg *Message) error {
	d.Logger.InfoContext(ctx, "email delivery (log only)",
		"to", msg.To,
		"subject", msg.Subject,
		"bytes", len(msg.Body),
	)
	return nil
}

// Processor renders and delivers one notification.
type Processor struct {
	requests RequestSource
	renderer *Renderer
	deliver  Deliverer
	logger   *slog.Logger
}

// NewProcessor constructs a Processor.
func NewProcessor(requests RequestSource, renderer *Renderer, deliver Deliverer, logger *slog.Logger) *Processor {
	return &Processor{requests: requests, renderer: renderer, deliver: deliver, logger: logger}
}

// Process loads the request, renders the option's template and delivers it to
// the applicant. Requests without a reachable or willing recipient are
// skipped, not failed, so the queue does not retry them forever.
func (p *Processor) Process(ctx context.Context, nrNum, option string) error {
	req, err := p.requests.Get(ctx, nrNum)
	if err != nil {
		return fmt.Errorf("load %s for notification: %w", nrNum, err)
	}

	if req.Applicant == nil || req.Applicant.EmailAddress == "" {
		p.logger.WarnContext(ctx, "notification skipped, no recipient", "nr_num", nrNum, "option", option)
		return nil
	}
	if req.Applicant.DeclineNotify {
		p.logger.InfoContext(ctx, "notification skipped, recipient opted out", "nr_num", nrNum, "option", option)
		return nil
	}

	msg, err := p.renderer.Render(option, req)
	if err != nil {
		return err
	}
	msg.To = []string{req.Applicant.EmailAddress}

	if err := p.deliver.Deliver(ctx, msg); err != nil {
		return fmt.Errorf("deliver %s email for %s: %w", option, nrNum, err)
	}
	p.logger.InfoContext(ctx, "notification delivered", "nr_num", nrNum, "option", option)
	return nil
}
