// Package orchestrator wires the sensor, order and alert components into
// the trigger pipeline: a sensor trigger is matched against the standing
// orders, the order's automated responses run, and when the outcome
// requires escalation an alert is raised. The orchestrator owns no core
// state and never retries downstream failures.
package orchestrator

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/fieldwatch/fieldwatch/internal/alerts"
	"github.com/fieldwatch/fieldwatch/internal/bus"
	"github.com/fieldwatch/fieldwatch/internal/orders"
	"github.com/fieldwatch/fieldwatch/internal/sensors"
)

// Orchestrator runs the trigger-to-alert pipeline.
type Orchestrator struct {
	matcher *orders.Matcher
	alerts  *alerts.Manager
	logger  *slog.Logger
}

// New creates an orchestrator over the order matcher and alert manager.
func New(matcher *orders.Matcher, manager *alerts.Manager) *Orchestrator {
	return &Orchestrator{
		matcher: matcher,
		alerts:  manager,
		logger:  slog.Default().With("component", "orchestrator"),
	}
}

// Start subscribes the pipeline to sensor triggers on the event bus.
func (o *Orchestrator) Start(eb *bus.EventBus) error {
	_, err := eb.Subscribe(bus.SubjectSensorTrigger, func(msg *nats.Msg) {
		var trigger sensors.Trigger
		if err := json.Unmarshal(msg.Data, &trigger); err != nil {
			o.logger.Error("Undecodable trigger event", "error", err)
			return
		}
		o.HandleTrigger(trigger)
	})
	return err
}

// HandleTrigger runs one trigger through the standing orders. Triggers with
// no matching order are dropped: the trigger event itself already reached
// the bus and the dashboard.
func (o *Orchestrator) HandleTrigger(trigger sensors.Trigger) {
	ctx := map[string]any{
		"sensor_id":   trigger.SensorID,
		"sensor_name": trigger.SensorName,
		"sensor_type": trigger.SensorType,
		"zone":        trigger.Zone,
	}

	order, matched := o.matcher.CheckTrigger(trigger.Name, ctx)
	if !matched {
		return
	}

	responses := o.dispatchResponses(order, trigger)
	if !o.matcher.RequiresEscalation(order, responses) {
		return
	}

	esc := o.matcher.Escalate(order, responses)
	o.raiseAlert(trigger, esc)
}

// dispatchResponses executes the order's automated responses. Responders
// are notified over the bus as part of order.fired; here each response is
// recorded as dispatched so the escalation policy can evaluate the
// outcome text.
func (o *Orchestrator) dispatchResponses(order *orders.Order, trigger sensors.Trigger) []string {
	responses := make([]string, 0, len(order.Responses))
	for _, r := range order.Responses {
		o.logger.Info("Dispatching response",
			"order", order.ID, "responder", r.Responder, "action", r.Action, "sensor", trigger.SensorID)
		responses = append(responses, fmt.Sprintf("%s: %s dispatched", r.Responder, r.Action))
	}
	return responses
}

// raiseAlert converts an order escalation into a tracked alert.
func (o *Orchestrator) raiseAlert(trigger sensors.Trigger, esc orders.Escalation) {
	priority := alerts.Priority(esc.Priority)
	if !priority.Valid() {
		priority = alerts.PriorityHigh
	}

	o.alerts.Create(alerts.CreateOptions{
		Priority:    priority,
		Category:    alerts.CategorySecurity,
		Title:       fmt.Sprintf("Standing order escalation: %s", esc.Trigger),
		Message:     esc.Reason,
		Source:      trigger.SensorID,
		RequiresAck: esc.RequiresAck,
		Payload: map[string]any{
			"order_id":  esc.OrderID,
			"trigger":   esc.Trigger,
			"zone":      trigger.Zone,
			"responses": esc.Responses,
		},
	})
}
