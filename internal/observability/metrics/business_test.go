package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordNotificationAccepted(t *testing.T) {
	before := testutil.ToFloat64(NotificationsAcceptedTotal.WithLabelValues("EMAIL", "batch"))

	RecordNotificationAccepted("EMAIL", "batch", 3)
	RecordNotificationAccepted("EMAIL", "batch", 0)

	assert.Equal(t, before+3, testutil.ToFloat64(NotificationsAcceptedTotal.WithLabelValues("EMAIL", "batch")))
}

func TestRecordNotificationRejected(t *testing.T) {
	before := testutil.ToFloat64(NotificationsRejectedTotal.WithLabelValues("PUSH", "not_found"))

	RecordNotificationRejected("PUSH", "not_found")

	assert.Equal(t, before+1, testutil.ToFloat64(NotificationsRejectedTotal.WithLabelValues("PUSH", "not_found")))
}

func TestRecordHTTPRequest(t *testing.T) {
	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("POST", "/api/v1/notification/email/send", "200"))

	RecordHTTPRequest("POST", "/api/v1/notification/email/send", "200", 15*time.Millisecond, 512, 128)

	assert.Equal(t, before+1, testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("POST", "/api/v1/notification/email/send", "200")))
}
