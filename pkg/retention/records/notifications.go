package records

import (
	"context"
	"fmt"
	"time"

	"mercator-hq/saturn/pkg/retention"
)

// refreshNotifications replaces the pending reminders of a record with a
// schedule derived from its current dates.
func (m *Manager) refreshNotifications(ctx context.Context, rec *retention.Record, pol *retention.Policy) error {
	notes := BuildSchedule(rec, pol, retention.Today(m.now()))
	if err := m.store.ReplaceNotifications(ctx, rec.ID, notes); err != nil {
		return err
	}
	m.logger.Debug("notifications scheduled",
		"record_id", rec.ID,
		"count", len(notes),
	)
	return nil
}

// BuildSchedule computes the reminders for a record:
//
//   - warning: notify-before days ahead of the expire date
//   - final_warning: the day before the expire date
//   - expired: on the expire date
//
// The warning is omitted when the lead time is 0 or 1 day, since it would
// coincide with the final warning or the expiry. Reminders dated before
// today are not scheduled.
func BuildSchedule(rec *retention.Record, pol *retention.Policy, today time.Time) []*retention.Notification {
	lead := retention.EffectiveNotifyBeforeDays(rec, pol)
	verb := actionVerb(retention.EffectiveDisposal(rec, pol).Action)

	type slot struct {
		kind retention.NotificationType
		days int
		msg  string
	}
	var slots []slot
	if lead > 1 {
		slots = append(slots, slot{retention.NotifyWarning, lead,
			fmt.Sprintf("%s will be %s in %d days", rec.FilePath, verb, lead)})
	}
	slots = append(slots,
		slot{retention.NotifyFinalWarning, 1,
			fmt.Sprintf("%s will be %s tomorrow", rec.FilePath, verb)},
		slot{retention.NotifyExpired, 0,
			fmt.Sprintf("retention for %s has expired", rec.FilePath)},
	)

	var out []*retention.Notification
	for _, s := range slots {
		date := rec.ExpireDate.AddDate(0, 0, -s.days)
		if date.Before(today) {
			continue
		}
		out = append(out, &retention.Notification{
			FileID:        rec.FileID,
			RetentionID:   rec.ID,
			UserID:        rec.CreatedBy,
			Type:          s.kind,
			ScheduledDate: date,
			Status:        retention.NotificationPending,
			Message:       s.msg,
		})
	}
	return out
}

func actionVerb(a retention.Action) string {
	switch a {
	case retention.ActionDelete:
		return "deleted"
	case retention.ActionArchive:
		return "archived"
	}
	return "moved"
}
