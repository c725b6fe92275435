package notification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/expense-approval/internal/core/events"
)

// Subscriber is the slice of the event bus Register needs.
type Subscriber interface {
	Subscribe(eventType string, handler events.Handler)
}

// Enqueuer accepts messages for asynchronous delivery.
type Enqueuer interface {
	Enqueue(msg Message) bool
}

// Register subscribes notification fan-out to every expense lifecycle event.
func Register(bus Subscriber, out Enqueuer, logger *slog.Logger) {
	h := &eventHandler{out: out, logger: logger}
	for _, t := range events.ExpenseEventTypes {
		bus.Subscribe(t, h.handle)
	}
}

type eventHandler struct {
	out    Enqueuer
	logger *slog.Logger
}

func (h *eventHandler) handle(_ context.Context, ev events.Event) error {
	e, ok := ev.(*events.ExpenseEvent)
	if !ok {
		return fmt.Errorf("unexpected event payload %T for %s", ev, ev.EventType())
	}

	msg := MessageFor(e)
	if len(msg.Recipients) == 0 {
		h.logger.Debug("no recipients for event", "event_type", e.Type, "expense_id", e.ExpenseID)
		return nil
	}
	h.out.Enqueue(msg)
	return nil
}

// MessageFor maps a lifecycle event to its notification. New work goes to the
// current approver; outcomes go to the employee who filed the expense.
func MessageFor(e *events.ExpenseEvent) Message {
	msg := Message{
		EventID:    e.ID,
		EventType:  e.Type,
		ExpenseID:  e.ExpenseID,
		CompanyID:  e.CompanyID,
		ActorID:    e.ActorID,
		Status:     e.Status,
		OccurredAt: e.Timestamp,
		Payload:    e.Data,
	}

	switch e.Type {
	case events.EventTypeExpenseSubmitted, events.EventTypeExpenseAdvanced:
		if e.CurrentApproverID != nil {
			msg.Recipients = []int64{*e.CurrentApproverID}
		}
	default:
		msg.Recipients = []int64{e.EmployeeID}
	}
	return msg
}
