package jobs_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/coachdesk/coachdesk/jobs"
	_ "github.com/coachdesk/coachdesk/testing"
)

func TestNotificationEmailTaskRoundtrip(t *testing.T) {
	task, err := jobs.NewNotificationEmailTask(jobs.NotificationEmailPayload{
		UserID:  100,
		Subject: "Coaching session completed",
		Body:    "Your coaching session from 2026-08-20 has been completed.",
	})
	require.NoError(t, err)
	require.Equal(t, jobs.TaskNotificationEmail, task.Type())

	var payload jobs.NotificationEmailPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, int64(100), payload.UserID)
	require.Equal(t, "Coaching session completed", payload.Subject)
}

func TestInsightsWarmupTaskScope(t *testing.T) {
	task, err := jobs.NewInsightsWarmupTask("all")
	require.NoError(t, err)
	require.Equal(t, jobs.TaskInsightsWarmup, task.Type())

	var payload jobs.InsightsWarmupPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, "all", payload.Scope)
}

func TestMetricsRollupTaskPeriod(t *testing.T) {
	task, err := jobs.NewMetricsRollupTask("2026-08")
	require.NoError(t, err)
	require.Equal(t, jobs.TaskMetricsRollup, task.Type())

	var payload jobs.MetricsRollupPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, "2026-08", payload.Period)
}

func TestNotificationEmailJobSkipsMalformedPayload(t *testing.T) {
	job := jobs.NewNotificationEmailJob(nil, nil, nil, nil)

	err := job.Handle(context.Background(), asynq.NewTask(jobs.TaskNotificationEmail, []byte("{broken")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
