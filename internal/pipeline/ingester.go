package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fastfare/fleetlive/internal/events"
	"github.com/fastfare/fleetlive/internal/model"
)

// Fetcher is the pull-style source: a point-in-time list of all current
// driver positions.
type Fetcher interface {
	Fetch(ctx context.Context) ([]model.RawPositionEvent, error)
}

// IngesterOptions configures an Ingester.
type IngesterOptions struct {
	// Fetcher is used for first paint, after a transport reconnect, and
	// for polling when no push subscriber is configured. Optional.
	Fetcher Fetcher

	// PollInterval is the pull period when running without a subscriber.
	// Default: 30 seconds.
	PollInterval time.Duration

	// FetchTimeout bounds a single pull. Default: 15 seconds.
	FetchTimeout time.Duration
}

// Ingester turns transport messages into pipeline calls.
type Ingester struct {
	pipeline *Pipeline
	opts     IngesterOptions
	states   chan events.ConnState
	logger   *slog.Logger
}

// NewIngester creates an ingester for p.
func NewIngester(p *Pipeline, opts IngesterOptions, logger *slog.Logger) *Ingester {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 30 * time.Second
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 15 * time.Second
	}
	return &Ingester{
		pipeline: p,
		opts:     opts,
		states:   make(chan events.ConnState, 8),
		logger:   logger.With("component", "ingester"),
	}
}

// OnState is an events.StateHandler. Pass it to the transport so that
// disconnects and reconnects reach the ingester.
func (in *Ingester) OnState(s events.ConnState) {
	select {
	case in.states <- s:
	default:
		in.logger.Warn("dropped transport state change", "state", s)
	}
}

// Run subscribes to the inbound subjects on sub and applies every message
// until ctx is cancelled. sub may be nil, in which case the fetcher (if
// any) is polled instead. Run releases its subscriptions on return.
func (in *Ingester) Run(ctx context.Context, sub events.Subscriber) error {
	var (
		msgs    <-chan events.Message
		cancels []func()
	)
	if sub != nil {
		var chans []<-chan events.Message
		for _, topic := range events.InboundTopics {
			ch, cancel, err := sub.Subscribe(topic)
			if err != nil {
				for _, c := range cancels {
					c()
				}
				return fmt.Errorf("ingester: %w", err)
			}
			cancels = append(cancels, cancel)
			chans = append(chans, ch)
		}
		defer func() {
			for _, c := range cancels {
				c()
			}
		}()
		msgs = merge(ctx, chans)
		in.pipeline.SetStatus(model.StatusConnected)
		in.logger.Info("subscribed", "topics", events.InboundTopics)
	}

	// First paint: merge whatever the pull endpoint has before the push
	// channel delivers anything.
	if in.opts.Fetcher != nil {
		if evs, err := in.fetch(ctx); err == nil {
			res := in.pipeline.ApplyBatch(evs)
			in.logger.Info("initial pull applied", "accepted", res.Accepted, "rejected", res.Rejected)
			if sub == nil {
				in.pipeline.SetStatus(model.StatusConnected)
			}
		} else if sub == nil {
			in.pipeline.SetStatus(model.StatusDegraded)
		}
	}

	var poll <-chan time.Time
	if sub == nil && in.opts.Fetcher != nil {
		ticker := time.NewTicker(in.opts.PollInterval)
		defer ticker.Stop()
		poll = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			in.logger.Info("ingester stopping")
			return nil
		case msg, ok := <-msgs:
			if !ok {
				in.logger.Warn("subscription channels closed")
				in.pipeline.SetStatus(model.StatusDegraded)
				msgs = nil
				continue
			}
			in.Handle(msg)
		case st := <-in.states:
			in.handleState(ctx, st)
		case <-poll:
			in.reconcileFromFetcher(ctx)
		}
	}
}

// Handle dispatches one transport message. Undecodable payloads are
// logged and dropped.
func (in *Ingester) Handle(msg events.Message) {
	switch msg.Topic {
	case events.TopicPositionUpdate:
		var ev model.RawPositionEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			in.logger.Warn("bad position payload", "topic", msg.Topic, "err", err)
			return
		}
		_, _ = in.pipeline.Apply(ev)

	case events.TopicPositionSnapshot, events.TopicPositionResync:
		evs, bad, err := model.DecodeBatch(msg.Data)
		if err != nil {
			in.logger.Warn("bad batch payload", "topic", msg.Topic, "err", err)
			return
		}
		if bad > 0 {
			in.logger.Warn("skipped undecodable batch elements", "topic", msg.Topic, "count", bad)
		}
		if msg.Topic == events.TopicPositionResync {
			in.pipeline.Resync(evs)
		} else {
			in.pipeline.ApplyBatch(evs)
		}

	default:
		in.logger.Debug("ignoring message on unknown topic", "topic", msg.Topic)
	}
}

func (in *Ingester) handleState(ctx context.Context, st events.ConnState) {
	in.logger.Info("transport state changed", "state", st)
	switch st {
	case events.StateDisconnected:
		in.pipeline.SetStatus(model.StatusDegraded)
	case events.StateReconnected:
		in.pipeline.SetStatus(model.StatusConnected)
		if in.opts.Fetcher != nil {
			in.resyncFromFetcher(ctx, model.StatusConnected)
		}
	}
}

// resyncFromFetcher pulls a fresh full list and replaces the registry
// with it. On failure the registry is kept and status is set to onFail.
func (in *Ingester) resyncFromFetcher(ctx context.Context, onFail model.ConnStatus) {
	evs, err := in.fetch(ctx)
	if err != nil {
		in.pipeline.SetStatus(onFail)
		return
	}
	in.pipeline.Resync(evs)
	in.pipeline.SetStatus(model.StatusConnected)
}

// reconcileFromFetcher merges one poll result into the registry, keeping
// motion state for drivers still listed. A failed poll keeps the registry
// and degrades status.
func (in *Ingester) reconcileFromFetcher(ctx context.Context) {
	evs, err := in.fetch(ctx)
	if err != nil {
		in.pipeline.SetStatus(model.StatusDegraded)
		return
	}
	in.pipeline.Reconcile(evs)
	in.pipeline.SetStatus(model.StatusConnected)
}

func (in *Ingester) fetch(ctx context.Context) ([]model.RawPositionEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, in.opts.FetchTimeout)
	defer cancel()

	start := time.Now()
	evs, err := in.opts.Fetcher.Fetch(ctx)
	if err != nil {
		in.logger.Error("pull failed", "err", err, "duration", time.Since(start))
		return nil, err
	}
	in.logger.Debug("pull complete", "count", len(evs), "duration", time.Since(start))
	return evs, nil
}

// merge fans several message channels into one. The result is closed
// once every input is closed or ctx is done.
func merge(ctx context.Context, chans []<-chan events.Message) <-chan events.Message {
	out := make(chan events.Message, 64)
	var wg sync.WaitGroup
	for _, ch := range chans {
		wg.Add(1)
		go func(ch <-chan events.Message) {
			defer wg.Done()
			for msg := range ch {
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}(ch)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}
