package queue_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/readitlater/infrastructure/environment"
	"github.com/readitlater/infrastructure/queue"
)

func TestSpecFor_Dev(t *testing.T) {
	t.Parallel()

	spec, err := queue.SpecFor(environment.Dev)
	require.NoError(t, err)

	assert.True(t, spec.ManagedEncryption)
	assert.False(t, spec.Alarms)
	assert.Empty(t, spec.AlertEmail)
	require.Len(t, spec.Queues, 2)

	assert.Equal(t, queue.WorkQueue{
		Key:               "article-processing",
		Logical:           "ArticleProcessing",
		QueueName:         "read-it-later-article-processing-dev",
		DeadLetterName:    "read-it-later-article-processing-dlq-dev",
		VisibilityTimeout: 15 * time.Minute,
		ReceiveWaitTime:   20 * time.Second,
		Retention:         4 * 24 * time.Hour,
		DeadLetterRetain:  14 * 24 * time.Hour,
		MaxReceiveCount:   3,
		AlarmLogical:      "ArticleDLQAlarm",
		AlarmName:         "read-it-later-article-dlq-alarm-dev",
		AlarmDescription:  "Alert when messages appear in article processing DLQ",
	}, spec.Queues[0])

	digest, ok := spec.Queue(queue.DigestGeneration)
	require.True(t, ok)
	assert.Equal(t, "read-it-later-digest-generation-dev", digest.QueueName)
	assert.Equal(t, "read-it-later-digest-generation-dlq-dev", digest.DeadLetterName)
	assert.Equal(t, 10*time.Minute, digest.VisibilityTimeout)
	assert.Equal(t, 2, digest.MaxReceiveCount)
	assert.Equal(t, "DigestDLQAlarm", digest.AlarmLogical)
	assert.Equal(t, "read-it-later-digest-dlq-alarm-dev", digest.AlarmName)

	_, ok = spec.Queue("unknown")
	assert.False(t, ok)
}

func TestSpecFor_ProdAlarms(t *testing.T) {
	t.Parallel()

	spec, err := queue.SpecFor(environment.Prod, queue.WithAlertEmail("ops@example.com"))
	require.NoError(t, err)

	assert.True(t, spec.Alarms)
	assert.Equal(t, "ops@example.com", spec.AlertEmail)
	assert.Equal(t, "read-it-later-dlq-alerts-prod", spec.AlertTopicName)
}

func TestSpecFor_AlertEmailIgnoredWithoutAlarms(t *testing.T) {
	t.Parallel()

	spec, err := queue.SpecFor(environment.Staging, queue.WithAlertEmail("ops@example.com"))
	require.NoError(t, err)

	assert.False(t, spec.Alarms)
	assert.Empty(t, spec.AlertEmail)
	assert.Empty(t, spec.AlertTopicName)
}

func TestSpecFor_Overrides(t *testing.T) {
	t.Parallel()

	spec, err := queue.SpecFor(environment.Staging,
		queue.WithAlarms(true),
		queue.WithVisibilityTimeout(queue.ArticleProcessing, 20*time.Minute),
		queue.WithMaxReceiveCount(queue.DigestGeneration, 5),
	)
	require.NoError(t, err)

	assert.True(t, spec.Alarms)

	article, _ := spec.Queue(queue.ArticleProcessing)
	assert.Equal(t, 20*time.Minute, article.VisibilityTimeout)
	assert.Equal(t, 3, article.MaxReceiveCount)

	digest, _ := spec.Queue(queue.DigestGeneration)
	assert.Equal(t, 10*time.Minute, digest.VisibilityTimeout)
	assert.Equal(t, 5, digest.MaxReceiveCount)
}

func TestSpecFor_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		opt     queue.Option
		wantErr string
	}{
		{"bad email", queue.WithAlertEmail("not-an-address"), "invalid alert e-mail"},
		{"unknown queue visibility", queue.WithVisibilityTimeout("billing", time.Minute), "unknown queue billing"},
		{"visibility too long", queue.WithVisibilityTimeout(queue.ArticleProcessing, 13*time.Hour), "between 0 and 12 hours"},
		{"fractional visibility", queue.WithVisibilityTimeout(queue.ArticleProcessing, 1500*time.Millisecond), "whole seconds"},
		{"unknown queue receive count", queue.WithMaxReceiveCount("billing", 3), "unknown queue billing"},
		{"zero receive count", queue.WithMaxReceiveCount(queue.DigestGeneration, 0), "between 1 and 1000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := queue.SpecFor(environment.Dev, tt.opt)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
