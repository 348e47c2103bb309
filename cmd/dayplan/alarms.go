package main

import (
	"log/slog"
	"time"

	"github.com/example/dayplan/internal/alarm"
)

// newAlarmNotifier builds the in-process alarm scheduler. Fired alarms are
// logged; delivery to an external notification channel hangs off this hook.
func newAlarmNotifier(logger *slog.Logger, now func() time.Time) *alarm.TimerScheduler {
	fire := func(id int64, at time.Time) {
		logger.Info("alarm fired", "alarm_id", id, "scheduled_for", at)
	}
	return alarm.NewTimerScheduler(fire, now, logger)
}
