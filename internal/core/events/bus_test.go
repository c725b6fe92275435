package events_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/expense-approval/internal/core/events"
)

var _ = Describe("EventBus", func() {
	var (
		bus *events.EventBus
		evt *events.ExpenseEvent
	)

	BeforeEach(func() {
		bus = events.NewEventBus(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})))
		approver := int64(7)
		evt = events.NewExpenseEvent(events.EventTypeExpenseSubmitted, events.ExpenseEventParams{
			ExpenseID: 1, CompanyID: 2, EmployeeID: 3, ActorID: 3, Status: "pending", CurrentApproverID: &approver,
		})
	})

	It("builds expense events with an id and payload", func() {
		Expect(evt.EventID()).NotTo(BeEmpty())
		Expect(evt.EventType()).To(Equal(events.EventTypeExpenseSubmitted))
		payload := evt.Payload().(map[string]interface{})
		Expect(payload).To(HaveKeyWithValue("current_approver_id", int64(7)))
		Expect(payload).NotTo(HaveKey("comment"))
	})

	It("delivers to every subscriber of the type asynchronously", func() {
		var (
			mu  sync.Mutex
			got []string
		)
		record := func(name string) events.Handler {
			return func(_ context.Context, e events.Event) error {
				mu.Lock()
				defer mu.Unlock()
				got = append(got, name+":"+e.EventID())
				return nil
			}
		}
		bus.Subscribe(events.EventTypeExpenseSubmitted, record("a"))
		bus.Subscribe(events.EventTypeExpenseSubmitted, record("b"))
		bus.Subscribe(events.EventTypeExpenseApproved, record("other"))

		Expect(bus.Publish(context.Background(), evt)).To(Succeed())
		bus.Wait()

		Expect(got).To(ConsistOf("a:"+evt.EventID(), "b:"+evt.EventID()))
	})

	It("swallows async handler failures and survives caller cancellation", func() {
		ctx, cancel := context.WithCancel(context.Background())
		var handlerCtxErr error
		bus.Subscribe(events.EventTypeExpenseSubmitted, func(hctx context.Context, _ events.Event) error {
			handlerCtxErr = hctx.Err()
			return errors.New("smtp down")
		})

		cancel()
		Expect(bus.Publish(ctx, evt)).To(Succeed())
		bus.Wait()
		Expect(handlerCtxErr).NotTo(HaveOccurred())
	})

	It("returns handler errors from PublishSync", func() {
		bus.Subscribe(events.EventTypeExpenseSubmitted, func(context.Context, events.Event) error {
			return errors.New("boom")
		})
		err := bus.PublishSync(context.Background(), evt)
		Expect(err).To(MatchError(ContainSubstring("boom")))
	})

	It("is a no-op without subscribers", func() {
		Expect(bus.Publish(context.Background(), evt)).To(Succeed())
		Expect(bus.PublishSync(context.Background(), evt)).To(Succeed())
	})
})
