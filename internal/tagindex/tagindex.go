// Package tagindex maintains the tag -> keys reverse index that powers bulk
// invalidation. The index tracks both directions (tag -> keys and
// key -> tags) so that removing a key cleans every bucket it appears in,
// leaving no dangling references.
package tagindex

// Index is the tag registry contract. Implementations must keep concurrent
// AddTags/RemoveKey calls for overlapping tag sets from losing updates.
type Index interface {
	// AddTags registers key under each tag. Replaces the key's previous tag
	// set; call with the full set the entry was written with.
	AddTags(key string, tags []string) error

	// RemoveKey unregisters key from every tag it appears under.
	RemoveKey(key string) error

	// KeysForTags returns the union of keys registered under the given tags.
	KeysForTags(tags []string) ([]string, error)

	// Clear drops the bucket for tag and returns the keys it contained.
	Clear(tag string) ([]string, error)

	// Close releases the index's resources.
	Close() error
}
