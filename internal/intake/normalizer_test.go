package intake

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MpumeleloMagagula/Alert-Buddy/internal/models"
)

func fixedNormalizer() *Normalizer {
	return NewNormalizer(
		func() time.Time { return time.UnixMilli(1710000000000) },
		func() string { return "generated-id" },
	)
}

func TestNormalize_ConcreteScenario(t *testing.T) {
	alert, err := fixedNormalizer().Normalize(map[string]string{
		"channel":   "db-01",
		"title":     "CPU Alert",
		"severity":  "critical",
		"timestamp": "1700000000000",
	})
	require.NoError(t, err)

	assert.Equal(t, "generated-id", alert.ID)
	assert.Equal(t, "db-01", alert.ChannelID)
	assert.Equal(t, "db-01", alert.ChannelName)
	assert.Equal(t, "CPU Alert", alert.Title)
	assert.Equal(t, "", alert.Body)
	assert.Equal(t, models.SeverityCritical, alert.Severity)
	assert.Equal(t, int64(1700000000000), alert.Timestamp)
	assert.False(t, alert.IsRead)
	assert.Nil(t, alert.AcknowledgedAt)
	assert.Nil(t, alert.Metadata)
}

func TestNormalize_Defaults(t *testing.T) {
	alert, err := fixedNormalizer().Normalize(map[string]string{"channel": "  web  "})
	require.NoError(t, err)

	assert.Equal(t, "web", alert.ChannelID)
	assert.Equal(t, "web", alert.ChannelName)
	assert.Equal(t, DefaultTitle, alert.Title)
	assert.Equal(t, models.SeverityInfo, alert.Severity)
	assert.Equal(t, int64(1710000000000), alert.Timestamp)
}

func TestNormalize_FailSafeSeverity(t *testing.T) {
	tests := map[string]models.Severity{
		"bogus":    models.SeverityInfo,
		"":         models.SeverityInfo,
		"WARNING":  models.SeverityWarning,
		"Critical": models.SeverityCritical,
		"info":     models.SeverityInfo,
	}
	n := fixedNormalizer()
	for raw, want := range tests {
		alert, err := n.Normalize(map[string]string{"channel": "x", "severity": raw})
		require.NoError(t, err)
		assert.Equal(t, want, alert.Severity, "severity %q", raw)
	}
}

func TestNormalize_MissingChannel(t *testing.T) {
	for _, payload := range []map[string]string{
		{},
		{"channel": "   "},
		{"title": "Disk Alert", "severity": "critical"},
	} {
		_, err := fixedNormalizer().Normalize(payload)
		var nerr *NormalizationError
		require.True(t, errors.As(err, &nerr))
		assert.Equal(t, FieldChannel, nerr.Field)
	}
}

func TestNormalize_UnparsableTimestampUsesReceiptTime(t *testing.T) {
	alert, err := fixedNormalizer().Normalize(map[string]string{"channel": "x", "timestamp": "yesterday"})
	require.NoError(t, err)
	assert.Equal(t, int64(1710000000000), alert.Timestamp)
}

func TestNormalize_SenderFields(t *testing.T) {
	alert, err := fixedNormalizer().Normalize(map[string]string{
		"id":          "sender-42",
		"channel":     "db-01",
		"channelName": "Production Servers",
		"message":     "load average 12.5",
		"metadata":    `{"host":"db-01"}`,
	})
	require.NoError(t, err)

	assert.Equal(t, "sender-42", alert.ID)
	assert.Equal(t, "Production Servers", alert.ChannelName)
	assert.Equal(t, "load average 12.5", alert.Body)
	require.NotNil(t, alert.Metadata)
	assert.Equal(t, `{"host":"db-01"}`, *alert.Metadata)
}

func TestNormalize_GeneratesUniqueIDs(t *testing.T) {
	n := NewNormalizer(nil, nil)
	a, err := n.Normalize(map[string]string{"channel": "x"})
	require.NoError(t, err)
	b, err := n.Normalize(map[string]string{"channel": "x"})
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}
