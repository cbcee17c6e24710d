package mqtt

import "strings"

// Topic layout is a fixed category segment followed by the device identity.
const (
	UsageWildcard  = "usage/+"
	StatusWildcard = "status/+"

	controlTopicPrefix = "control/"
)

// ControlTopic addresses one device's command channel.
func ControlTopic(deviceID string) string {
	return controlTopicPrefix + deviceID
}

// DeviceFromTopic extracts the device identity from a category/device topic.
func DeviceFromTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 2 || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
