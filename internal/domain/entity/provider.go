package entity

// Channel is the medium a notification travels over.
type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelPush  Channel = "PUSH"
)

// ProviderType identifies a concrete delivery vendor.
type ProviderType string

const (
	ProviderSMTP     ProviderType = "SMTP"
	ProviderSendGrid ProviderType = "SENDGRID"
	ProviderPostmark ProviderType = "POSTMARK"
	ProviderFCM      ProviderType = "FCM"
	ProviderAPNS     ProviderType = "APNS"
	ProviderWebPush  ProviderType = "WEB_PUSH"
)

// Channel returns the channel served by the provider type.
func (p ProviderType) Channel() Channel {
	switch p {
	case ProviderFCM, ProviderAPNS, ProviderWebPush:
		return ChannelPush
	default:
		return ChannelEmail
	}
}

func (p ProviderType) String() string { return string(p) }

// Platform is the operating environment of a push device.
type Platform string

const (
	PlatformIOS     Platform = "IOS"
	PlatformAndroid Platform = "ANDROID"
	PlatformWeb     Platform = "WEB"
)

// IsValid reports whether p is a supported platform.
func (p Platform) IsValid() bool {
	switch p {
	case PlatformIOS, PlatformAndroid, PlatformWeb:
		return true
	default:
		return false
	}
}
