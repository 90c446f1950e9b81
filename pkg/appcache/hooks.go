package appcache

// Hooks defines event callbacks for cache operations. Hooks run inline on
// the calling goroutine; keep them fast.
type Hooks struct {
	// OnHit is called when a key is found and not expired.
	OnHit []OnHitHook

	// OnMiss is called when a key is not found or expired.
	OnMiss []OnMissHook

	// OnEvict is called when an entry leaves the cache without an explicit
	// invalidation (capacity pressure or TTL expiry).
	OnEvict []OnEvictHook

	// OnInvalidate is called for each key removed by explicit invalidation.
	OnInvalidate []OnInvalidateHook
}

type (
	// OnHitHook is called when a cache hit occurs.
	OnHitHook func(key string, value any)

	// OnMissHook is called when a cache miss occurs.
	OnMissHook func(key string)

	// OnEvictHook is called when a cache entry is evicted.
	OnEvictHook func(key string, value any, reason EvictReason)

	// OnInvalidateHook is called when a cache entry is invalidated.
	OnInvalidateHook func(key string)
)

// EvictReason indicates why a cache entry was evicted.
type EvictReason int

const (
	// EvictReasonCapacity indicates the entry was pushed out by the LRU
	// policy to make room.
	EvictReasonCapacity EvictReason = iota

	// EvictReasonTTL indicates the entry expired.
	EvictReasonTTL
)

func (r EvictReason) String() string {
	switch r {
	case EvictReasonCapacity:
		return "capacity"
	case EvictReasonTTL:
		return "ttl"
	default:
		return "unknown"
	}
}

// AddOnHit adds an OnHit hook.
func (h *Hooks) AddOnHit(hook OnHitHook) {
	h.OnHit = append(h.OnHit, hook)
}

// AddOnMiss adds an OnMiss hook.
func (h *Hooks) AddOnMiss(hook OnMissHook) {
	h.OnMiss = append(h.OnMiss, hook)
}

// AddOnEvict adds an OnEvict hook.
func (h *Hooks) AddOnEvict(hook OnEvictHook) {
	h.OnEvict = append(h.OnEvict, hook)
}

// AddOnInvalidate adds an OnInvalidate hook.
func (h *Hooks) AddOnInvalidate(hook OnInvalidateHook) {
	h.OnInvalidate = append(h.OnInvalidate, hook)
}

func (h *Hooks) invokeOnHit(key string, value any) {
	for _, hook := range h.OnHit {
		if hook != nil {
			hook(key, value)
		}
	}
}

func (h *Hooks) invokeOnMiss(key string) {
	for _, hook := range h.OnMiss {
		if hook != nil {
			hook(key)
		}
	}
}

func (h *Hooks) invokeOnEvict(key string, value any, reason EvictReason) {
	for _, hook := range h.OnEvict {
		if hook != nil {
			hook(key, value, reason)
		}
	}
}

func (h *Hooks) invokeOnInvalidate(key string) {
	for _, hook := range h.OnInvalidate {
		if hook != nil {
			hook(key)
		}
	}
}
