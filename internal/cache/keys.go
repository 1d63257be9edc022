package cache

import "strconv"

// Key grammar shared by every reader and writer of the cache. Readers and the
// invalidation coordinator must derive keys from these helpers only.
const (
	entityPrefix     = "entity:"
	collectionPrefix = "collection:"

	// CollectionPattern matches every paginated listing key.
	CollectionPattern = collectionPrefix + "*"
)

// EntityKey is the exact-entity key "entity:<id>".
func EntityKey(id string) string {
	return entityPrefix + id
}

// CollectionKey is the listing key "collection:<page>:<size>".
func CollectionKey(page, size int) string {
	return collectionPrefix + strconv.Itoa(page) + ":" + strconv.Itoa(size)
}
