package push

import (
	"fmt"
	"strings"
)

// TopicPrefix is the base for all device notification topics.
const TopicPrefix = "thincloud/devices"

// Kinds of device topic published by the cloud.
const (
	KindReported = "reported"
	KindDesired  = "desired"
	KindDelta    = "delta"
)

// ValidKind reports whether kind names a device topic the cloud publishes.
func ValidKind(kind string) bool {
	switch kind {
	case KindReported, KindDesired, KindDelta:
		return true
	}
	return false
}

// DeviceTopic returns the topic for a device's state channel.
//
// Example: thincloud/devices/deadbeef/reported
func DeviceTopic(deviceID, kind string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefix, deviceID, kind)
}

// ParseDeviceTopic splits a device topic into its device id and kind.
// ok is false for topics outside the device hierarchy.
func ParseDeviceTopic(topic string) (deviceID, kind string, ok bool) {
	rest, found := strings.CutPrefix(topic, TopicPrefix+"/")
	if !found {
		return "", "", false
	}
	deviceID, kind, found = strings.Cut(rest, "/")
	if !found || deviceID == "" || !ValidKind(kind) {
		return "", "", false
	}
	return deviceID, kind, true
}
