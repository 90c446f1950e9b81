package appcache

import (
	"reflect"
)

// InvalidateOptions holds per-call-site configuration for InvalidateCache.
type InvalidateOptions struct {
	// Patterns are key glob patterns to delete after a successful call,
	// matched inside Namespace.
	Patterns []string

	// Tags is the static tag set to invalidate after a successful call.
	Tags []string

	// TagsFunc computes tags to invalidate per call, seeing the arguments
	// and the function's own result. Combined with Tags when both are set.
	TagsFunc TagsFunc

	// Namespace scopes Patterns. Default: DefaultNamespace.
	Namespace string
}

// InvalidateOption configures an InvalidateCache wrapper.
type InvalidateOption func(*InvalidateOptions)

// WithPatterns sets key patterns to delete after a successful call.
func WithPatterns(patterns ...string) InvalidateOption {
	return func(o *InvalidateOptions) { o.Patterns = patterns }
}

// WithInvalidateTags sets tags to invalidate after a successful call.
func WithInvalidateTags(tags ...string) InvalidateOption {
	return func(o *InvalidateOptions) { o.Tags = tags }
}

// WithInvalidateTagsFunc sets a function that computes tags to invalidate
// from the call's arguments and result.
func WithInvalidateTagsFunc(fn TagsFunc) InvalidateOption {
	return func(o *InvalidateOptions) { o.TagsFunc = fn }
}

// WithInvalidateNamespace scopes the wrapper's patterns to a namespace.
func WithInvalidateNamespace(namespace string) InvalidateOption {
	return func(o *InvalidateOptions) { o.Namespace = namespace }
}

// InvalidateCache wraps a mutating function so that, after it returns
// successfully, the configured cache entries are purged. T must be a
// function type; the returned function has the identical signature.
//
// If fn fails nothing is invalidated. Invalidation failures are logged and
// never surfaced: a stale cache entry will still expire by TTL, which is
// preferable to failing a write that already happened.
//
// Wrappers stack: each layer applies its own targets independently, so one
// layer's failure does not stop another's.
func InvalidateCache[T any](m *Manager, fn T, options ...InvalidateOption) T {
	opts := &InvalidateOptions{
		Namespace: DefaultNamespace,
	}
	for _, opt := range options {
		opt(opts)
	}

	fnValue := reflect.ValueOf(fn)
	fnType := fnValue.Type()
	if fnType.Kind() != reflect.Func {
		panic(ErrNotFunction)
	}

	wrapper := reflect.MakeFunc(fnType, func(args []reflect.Value) []reflect.Value {
		results := fnValue.Call(args)

		if failed(results, fnType) {
			return results
		}

		_, keyArgs := extractContextAndArgs(fnType, args)
		call := Call{Args: keyArgs, Result: resultValue(results, fnType)}
		m.applyInvalidation(opts, call)

		return results
	})

	return wrapper.Interface().(T)
}

// applyInvalidation purges every target configured on the wrapper. Targets
// are independent: a failing one is logged and the rest still run.
func (m *Manager) applyInvalidation(opts *InvalidateOptions, call Call) {
	tags := opts.Tags
	if opts.TagsFunc != nil {
		tags = append(append([]string(nil), tags...), opts.TagsFunc(call)...)
	}

	if len(tags) > 0 {
		if count, err := m.InvalidateByTags(tags...); err != nil {
			m.logger.Warn("tag invalidation failed", F("tags", tags), F("error", err))
		} else {
			m.logger.Debug("invalidated by tags", F("tags", tags), F("count", count))
		}
	}

	for _, pattern := range opts.Patterns {
		scoped := opts.Namespace + ":" + pattern
		if count, err := m.InvalidatePattern(scoped); err != nil {
			m.logger.Warn("pattern invalidation failed", F("pattern", scoped), F("error", err))
		} else {
			m.logger.Debug("invalidated by pattern", F("pattern", scoped), F("count", count))
		}
	}
}

// failed reports whether the call returned a non-nil error.
func failed(results []reflect.Value, fnType reflect.Type) bool {
	if !hasErrorReturn(fnType) {
		return false
	}
	return !results[fnType.NumOut()-1].IsNil()
}

// resultValue extracts the call's value result for tag functions: the first
// return value, excluding a trailing error.
func resultValue(results []reflect.Value, fnType reflect.Type) any {
	numOut := fnType.NumOut()
	if numOut == 0 {
		return nil
	}
	if hasErrorReturn(fnType) {
		if numOut == 1 {
			return nil
		}
		results = results[:numOut-1]
	}
	if len(results) == 0 {
		return nil
	}
	if len(results) == 1 {
		return results[0].Interface()
	}
	values := make([]any, len(results))
	for i, r := range results {
		values[i] = r.Interface()
	}
	return values
}
