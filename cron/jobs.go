package cron

import (
	"fmt"
	"time"

	"salonflow/config"
	"salonflow/utils"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// StartScheduler registers the periodic jobs and runs the asynq scheduler
// in the background.
func StartScheduler(loc *time.Location) {
	logger := utils.GetLogger()

	redisOpts := asynq.RedisClientOpt{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisQueueDB,
	}
	scheduler := asynq.NewScheduler(redisOpts, &asynq.SchedulerOpts{Location: loc})

	entries := []struct {
		spec string
		task *asynq.Task
	}{
		{fmt.Sprintf("0 %d * * *", config.AppConfig.ReminderHour), asynq.NewTask(TypeReminderScan, nil)},
		{fmt.Sprintf("0 %d * * %d", config.AppConfig.ReportHour, config.AppConfig.ReportWeekday), asynq.NewTask(TypeWeeklyReport, nil)},
		{fmt.Sprintf("@every %dm", config.AppConfig.CalendarSyncMinutes), asynq.NewTask(TypeCalendarSync, nil)},
	}
	for _, entry := range entries {
		id, err := scheduler.Register(entry.spec, entry.task, asynq.MaxRetry(1))
		if err != nil {
			logger.Fatal("failed to register periodic job",
				zap.String("spec", entry.spec),
				zap.String("type", entry.task.Type()),
				zap.Error(err))
		}
		logger.Info("periodic job registered",
			zap.String("id", id),
			zap.String("type", entry.task.Type()),
			zap.String("spec", entry.spec))
	}

	go func() {
		if err := scheduler.Run(); err != nil {
			logger.Fatal("scheduler stopped", zap.Error(err))
		}
	}()
}
