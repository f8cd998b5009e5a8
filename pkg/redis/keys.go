package redis

import "fmt"

// Key construction helpers for sunlamp devices

// StatusKey returns the key for the latest decision of a device (hash)
// Pattern: sunlamp:status:{device}
func StatusKey(device string) string {
	return fmt.Sprintf("sunlamp:status:%s", device)
}

// HistoryKey returns the key for the capped decision history of a device (list)
// Pattern: sunlamp:history:{device}
func HistoryKey(device string) string {
	return fmt.Sprintf("sunlamp:history:%s", device)
}
