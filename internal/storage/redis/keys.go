package redis

import "fmt"

// Key prefix for all relay data
const keyPrefix = "worldrelay"

// blobKey returns the Redis key for a named blob
func blobKey(key string) string {
	return fmt.Sprintf("%s:blob:%s", keyPrefix, key)
}

// savedAtKey returns the Redis key recording when a blob was last written
func savedAtKey(key string) string {
	return fmt.Sprintf("%s:saved_at:%s", keyPrefix, key)
}
