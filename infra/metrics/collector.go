package metrics

import (
	"context"

	"github.com/kilianp07/eosbridge/core/events"
	"github.com/kilianp07/eosbridge/core/logger"
	coremetrics "github.com/kilianp07/eosbridge/core/metrics"
	"github.com/kilianp07/eosbridge/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and records metrics for
// events. It stops when the context is canceled or the bus is closed.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus, sink coremetrics.MetricsSink, log logger.Logger) {
	if bus == nil || sink == nil {
		return
	}
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if err := record(sink, ev); err != nil && log != nil {
					log.Warnf("metrics sink: %v", err)
				}
			}
		}
	}()
}

func record(sink coremetrics.MetricsSink, ev eventbus.Event) error {
	switch e := ev.(type) {
	case events.DecisionEvent:
		return sink.RecordDecision(e)
	case events.FetchEvent:
		if r, ok := sink.(coremetrics.FetchRecorder); ok {
			return r.RecordFetch(e)
		}
	case events.TickEvent:
		if r, ok := sink.(coremetrics.TickRecorder); ok {
			return r.RecordTick(e)
		}
	case events.OverrideEvent:
		if r, ok := sink.(coremetrics.OverrideRecorder); ok {
			return r.RecordOverride(e)
		}
	}
	return nil
}
