package worker

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/baiqwe/vidguide/internal/store"
)

// Poller repeatedly claims the next eligible project and hands it to the
// processor. One project is processed at a time, start to terminal state.
type Poller struct {
	store      *store.Store
	processor  *Processor
	idleSleep  time.Duration
	errorSleep time.Duration
	log        *logrus.Entry
}

// NewPoller builds the polling loop around a processor.
func NewPoller(s *store.Store, p *Processor, idleSleep, errorSleep time.Duration, log *logrus.Entry) *Poller {
	if idleSleep <= 0 {
		idleSleep = 5 * time.Second
	}
	if errorSleep <= 0 {
		errorSleep = 10 * time.Second
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Poller{
		store:      s,
		processor:  p,
		idleSleep:  idleSleep,
		errorSleep: errorSleep,
		log:        log,
	}
}

// Run polls until the context is cancelled. Claim failures are logged and
// backed off, never fatal to the loop.
func (p *Poller) Run(ctx context.Context) {
	p.log.Info("worker poller started")

	for {
		if ctx.Err() != nil {
			p.log.Info("worker poller stopped")
			return
		}

		project, err := p.store.ClaimNextPending()
		if errors.Is(err, store.ErrNoProject) {
			if !sleep(ctx, p.idleSleep) {
				return
			}
			continue
		}
		if err != nil {
			p.log.WithError(err).Error("failed to claim project")
			if !sleep(ctx, p.errorSleep) {
				return
			}
			continue
		}

		p.processor.Process(ctx, project)
	}
}

// sleep waits for d unless the context ends first. Returns false on cancel.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
