package mqtt

import "fmt"

// Topic layout for sunlamp devices
const (
	// TopicPhaseBase carries the retained phase decision per device
	TopicPhaseBase = "sunlamp/context/phase"

	// TopicStatusBase carries the retained online/offline state per device
	TopicStatusBase = "sunlamp/status"

	// TopicCommandBase carries level commands for networked light channels
	TopicCommandBase = "sunlamp/command/light"
)

// PhaseTopic returns the phase topic for a device
// Pattern: sunlamp/context/phase/{device}
func PhaseTopic(device string) string {
	return fmt.Sprintf("%s/%s", TopicPhaseBase, device)
}

// StatusTopic returns the availability topic for a device
// Pattern: sunlamp/status/{device}
func StatusTopic(device string) string {
	return fmt.Sprintf("%s/%s", TopicStatusBase, device)
}

// CommandTopic returns the command topic for one light channel
// Pattern: sunlamp/command/light/{channel}
func CommandTopic(channel string) string {
	return fmt.Sprintf("%s/%s", TopicCommandBase, channel)
}
