package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/shaharia-lab/bookwell/internal/booking"
	"github.com/shaharia-lab/bookwell/internal/metrics"
	"github.com/shaharia-lab/bookwell/internal/telemetry"
)

const reminderTask = "service.appointment_reminder"

// ScheduleAppointmentReminders finds the confirmed bookings dated the day
// after today in the configured timezone and spawns one reminder for each.
// A failed lookup is logged and counts as zero.
func (n *notifier) ScheduleAppointmentReminders(ctx context.Context) int {
	ctx, span := telemetry.Tracer().Start(ctx, "notifier.reminder_sweep")
	defer span.End()

	day := n.now().In(n.loc).AddDate(0, 0, 1).Format(booking.DateLayout)
	span.SetAttributes(attribute.String("reminder.day", day))

	due, err := n.bookings.ListConfirmedOn(ctx, day)
	if err != nil {
		span.RecordError(err)
		metrics.Events.WithLabelValues("reminder_sweep", metrics.OutcomeFailed).Inc()
		n.logger.ErrorContext(ctx, "reminder sweep failed", "day", day, "error", err)
		return 0
	}

	for _, b := range due {
		n.spawner.Go(ctx, reminderTask, func(ctx context.Context) error {
			n.AppointmentReminder(ctx, b)
			return nil
		})
	}

	metrics.RemindersDispatched.Add(float64(len(due)))
	metrics.Events.WithLabelValues("reminder_sweep", metrics.OutcomeOK).Inc()
	span.SetAttributes(attribute.Int("reminder.count", len(due)))
	n.logger.InfoContext(ctx, "reminder sweep finished", "day", day, "dispatched", len(due))
	return len(due)
}
