// Package keybuilder builds the Redis key namespaces shared by the two
// caches the worker keeps: the FCM OAuth2 access-token cache and the
// Device Registry's cache-aside layer.
package keybuilder

import "fmt"

const (
	namespace = "notify_worker"

	oauth2Segment  = "oauth2_token"
	devicesSegment = "devices"
)

// OAuth2TokenKey builds the single shared key backing the FCM access-token
// cache, keyed by project so multiple FCM projects never collide.
func OAuth2TokenKey(projectID string) string {
	return fmt.Sprintf("%s:%s:%s", namespace, oauth2Segment, projectID)
}

// DevicesKey builds the cache key for a user's device list.
func DevicesKey(userID fmt.Stringer) string {
	return fmt.Sprintf("%s:%s:%s", namespace, devicesSegment, userID)
}
