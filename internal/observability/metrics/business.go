package metrics

// RecordNotificationAccepted counts count notifications accepted on channel.
func RecordNotificationAccepted(channel, mode string, count int) {
	if count <= 0 {
		return
	}
	NotificationsAcceptedTotal.WithLabelValues(channel, mode).Add(float64(count))
}

// RecordNotificationRejected counts a request refused before delivery.
func RecordNotificationRejected(channel, reason string) {
	NotificationsRejectedTotal.WithLabelValues(channel, reason).Inc()
}

// RecordDeviceTokenRegistered counts a device registration.
func RecordDeviceTokenRegistered(platform string) {
	DeviceTokensRegisteredTotal.WithLabelValues(platform).Inc()
}
