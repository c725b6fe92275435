package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/expense-approval/internal/core/events"
	"github.com/frahmantamala/expense-approval/internal/notification"
)

var eventCmd = &cobra.Command{
	Use:   "events",
	Short: "Event management commands",
	Long:  `Inspect and exercise the expense event pipeline`,
}

var publishEventCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish a synthetic expense event",
	Long:  `Publish a synthetic expense event through the configured notifier to check delivery wiring`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return publishTestEvent(cmd.Context())
	},
}

var (
	eventType      string
	eventExpenseID int64
	eventCompanyID int64
	eventEmployee  int64
	eventApprover  int64
)

func publishTestEvent(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if !knownEventType(eventType) {
		return fmt.Errorf("unknown event type %q, expected one of %v", eventType, events.ExpenseEventTypes)
	}

	cfg, lg, err := bootstrap()
	if err != nil {
		return err
	}

	notifier, err := notification.NewNotifier(cfg.Notification, lg)
	if err != nil {
		return err
	}
	dispatcher := notification.NewDispatcher(notifier, notification.DispatcherConfig{Workers: 1, QueueSize: 1, MaxRetries: 3}, lg)

	bus := events.NewEventBus(lg)
	notification.Register(bus, dispatcher, lg)

	params := events.ExpenseEventParams{
		ExpenseID:  eventExpenseID,
		CompanyID:  eventCompanyID,
		EmployeeID: eventEmployee,
		ActorID:    eventEmployee,
		Status:     "pending",
	}
	if eventApprover > 0 {
		params.CurrentApproverID = &eventApprover
	}
	ev := events.NewExpenseEvent(eventType, params)

	lg.Info("publishing test event", "event_type", ev.Type, "event_id", ev.ID, "expense_id", ev.ExpenseID)
	if err := bus.PublishSync(ctx, ev); err != nil {
		dispatcher.Close()
		return err
	}

	dispatcher.Close()
	lg.Info("test event delivered", "event_id", ev.ID)
	return nil
}

func knownEventType(t string) bool {
	for _, known := range events.ExpenseEventTypes {
		if t == known {
			return true
		}
	}
	return false
}

func init() {
	publishEventCmd.Flags().StringVar(&eventType, "type", events.EventTypeExpenseSubmitted, "event type")
	publishEventCmd.Flags().Int64Var(&eventExpenseID, "expense", 0, "expense id carried by the event")
	publishEventCmd.Flags().Int64Var(&eventCompanyID, "company", 0, "company id carried by the event")
	publishEventCmd.Flags().Int64Var(&eventEmployee, "employee", 0, "employee id, the recipient of outcome events")
	publishEventCmd.Flags().Int64Var(&eventApprover, "approver", 0, "current approver, the recipient of submitted and advanced events")
	_ = publishEventCmd.MarkFlagRequired("expense")

	eventCmd.AddCommand(publishEventCmd)
}
