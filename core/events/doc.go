// Package events defines the control related events emitted on the event bus.
//
// Available event types:
//   - FetchEvent: result of an optimizer fetch cycle
//   - DecisionEvent: a new control decision was applied
//   - OverrideEvent: an override was set or cleared
//   - TickEvent: outcome of a reconciliation tick
package events
