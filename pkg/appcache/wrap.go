package appcache

import (
	"context"
	"encoding/json"
	"reflect"
	"runtime"
	"time"
)

// CacheOptions holds per-call-site configuration for Cached. Built once when
// the wrapper is created and immutable afterwards.
type CacheOptions struct {
	// TTL for entries written by this wrapper. Zero uses the manager
	// default; NoExpiry caches until invalidated.
	TTL time.Duration

	// Namespace partitions the key space. Two wrappers with different
	// namespaces never share entries, whatever their prefixes or arguments.
	// Default: DefaultNamespace.
	Namespace string

	// KeyPrefix names this call site inside the namespace. Defaults to the
	// wrapped function's identity.
	KeyPrefix string

	// KeyBuilder overrides key generation entirely; its result is used
	// verbatim under "namespace:".
	KeyBuilder KeyBuilderFunc

	// Tags is the static tag set registered for every entry this wrapper
	// writes.
	Tags []string

	// TagsFunc computes tags per call, seeing the arguments and the result.
	// Combined with Tags when both are set.
	TagsFunc TagsFunc

	// Condition decides per call whether the result is cached. It sees the
	// arguments and the result. Nil caches every successful result.
	Condition ConditionFunc
}

// CacheOption configures a Cached wrapper.
type CacheOption func(*CacheOptions)

// WithTTL sets the TTL for entries written by this wrapper.
func WithTTL(ttl time.Duration) CacheOption {
	return func(o *CacheOptions) { o.TTL = ttl }
}

// WithNoExpiry caches results until they are explicitly invalidated.
func WithNoExpiry() CacheOption {
	return func(o *CacheOptions) { o.TTL = NoExpiry }
}

// WithNamespace sets the key namespace.
func WithNamespace(namespace string) CacheOption {
	return func(o *CacheOptions) { o.Namespace = namespace }
}

// WithKeyPrefix sets the key prefix used instead of the function identity.
func WithKeyPrefix(prefix string) CacheOption {
	return func(o *CacheOptions) { o.KeyPrefix = prefix }
}

// WithKeyBuilder sets a custom key builder.
func WithKeyBuilder(builder KeyBuilderFunc) CacheOption {
	return func(o *CacheOptions) { o.KeyBuilder = builder }
}

// WithTags sets the static tags registered for every entry.
func WithTags(tags ...string) CacheOption {
	return func(o *CacheOptions) { o.Tags = tags }
}

// WithTagsFunc sets a function that computes tags from each call.
func WithTagsFunc(fn TagsFunc) CacheOption {
	return func(o *CacheOptions) { o.TagsFunc = fn }
}

// WithCondition sets a predicate that decides whether a result is cached.
func WithCondition(cond ConditionFunc) CacheOption {
	return func(o *CacheOptions) { o.Condition = cond }
}

// Cached wraps fn with read-through caching. T must be a function type; the
// returned function has the identical signature.
//
// On a hit the wrapped function is not called at all, so any side effects it
// has (logging, counters) are suppressed for that call. On a miss the
// stampede guard runs fn once per key; its result is cached only on success
// and every concurrent caller for the key receives it. Errors are returned
// to the caller and never cached.
//
// If fn's first parameter is a context.Context it does not participate in
// the key; for functions returning an error it also cancels the caller's
// wait (the computation keeps running for other waiters).
func Cached[T any](m *Manager, fn T, options ...CacheOption) T {
	opts := &CacheOptions{
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

	if opts.KeyPrefix == "" {
		opts.KeyPrefix = functionIdentity(fnValue)
	}

	wrapper := reflect.MakeFunc(fnType, func(args []reflect.Value) []reflect.Value {
		return runCached(m, fnValue, fnType, opts, args)
	})

	return wrapper.Interface().(T)
}

func runCached(m *Manager, fnValue reflect.Value, fnType reflect.Type, opts *CacheOptions, args []reflect.Value) []reflect.Value {
	ctx, keyArgs := extractContextAndArgs(fnType, args)
	call := Call{Args: keyArgs}
	returnsError := hasErrorReturn(fnType)

	key, err := buildCallKey(m, opts, call)
	if err != nil {
		// A key the codec cannot express is a call-site configuration error;
		// serving such a call uncached would hide it.
		if returnsError {
			return errorReturn(fnType, err)
		}
		panic(err)
	}

	compute := func() (any, error) {
		results := fnValue.Call(args)
		return packResults(results, returnsError)
	}

	computeOpts := &ComputeOptions{
		TTL: opts.TTL,
		Tags: func(result any) []string {
			call.Result = result
			tags := opts.Tags
			if opts.TagsFunc != nil {
				tags = append(append([]string(nil), tags...), opts.TagsFunc(call)...)
			}
			return tags
		},
	}
	if opts.Condition != nil {
		computeOpts.ShouldCache = func(result any) bool {
			call.Result = result
			return opts.Condition(call)
		}
	}

	// Functions that cannot return an error have no way to report a
	// cancelled wait, so they wait unconditionally.
	if !returnsError {
		ctx = context.Background()
	}

	value, err := m.GetOrCompute(ctx, key, compute, computeOpts)
	if err != nil {
		return errorReturn(fnType, err)
	}

	results, ok := unpackResults(value, fnType, returnsError)
	if !ok {
		// The stored shape no longer maps onto the return types (e.g. a
		// payload written by an older build). Drop it and serve this call
		// uncached; the next miss rewrites the entry.
		if derr := m.Delete(key); derr != nil {
			m.logger.Warn("unreadable cache entry could not be dropped",
				F("key", key), F("error", derr))
		}
		return fnValue.Call(args)
	}

	return results
}

func buildCallKey(m *Manager, opts *CacheOptions, call Call) (string, error) {
	limit := m.config.MaxKeyLength

	if opts.KeyBuilder != nil {
		key := opts.Namespace + ":" + opts.KeyBuilder(call)
		if len(key) > limit {
			return "", &KeyTooLongError{Key: key, Length: len(key), Limit: limit}
		}
		return key, nil
	}

	return BuildKey(opts.Namespace, opts.KeyPrefix, call, limit)
}

// functionIdentity names a function for use as a default key prefix.
func functionIdentity(fnValue reflect.Value) string {
	if name := runtime.FuncForPC(fnValue.Pointer()).Name(); name != "" {
		return name
	}
	return fnValue.Type().String()
}

// extractContextAndArgs splits off a leading context.Context, which carries
// cancellation rather than identity and must not end up in the key.
func extractContextAndArgs(fnType reflect.Type, args []reflect.Value) (context.Context, []any) {
	ctx := context.Background()

	if len(args) > 0 && fnType.In(0) == reflect.TypeOf((*context.Context)(nil)).Elem() {
		ctx = args[0].Interface().(context.Context)
		keyArgs := make([]any, len(args)-1)
		for i := 1; i < len(args); i++ {
			keyArgs[i-1] = args[i].Interface()
		}
		return ctx, keyArgs
	}

	keyArgs := make([]any, len(args))
	for i, arg := range args {
		keyArgs[i] = arg.Interface()
	}
	return ctx, keyArgs
}

func hasErrorReturn(fnType reflect.Type) bool {
	numOut := fnType.NumOut()
	return numOut >= 1 &&
		fnType.Out(numOut-1).Implements(reflect.TypeOf((*error)(nil)).Elem())
}

// packResults flattens a call's return values into a single cacheable value.
// Multi-value returns are stored as []any.
func packResults(results []reflect.Value, returnsError bool) (any, error) {
	if returnsError {
		errResult := results[len(results)-1]
		if !errResult.IsNil() {
			return nil, errResult.Interface().(error)
		}
		results = results[:len(results)-1]
	}

	if len(results) == 1 {
		return results[0].Interface(), nil
	}

	values := make([]any, len(results))
	for i, result := range results {
		values[i] = result.Interface()
	}
	return values, nil
}

// unpackResults converts a cached value back into the function's return
// shape. It reports false when the stored value cannot be mapped onto the
// declared return types.
func unpackResults(value any, fnType reflect.Type, returnsError bool) ([]reflect.Value, bool) {
	numOut := fnType.NumOut()
	results := make([]reflect.Value, numOut)

	numValues := numOut
	if returnsError {
		results[numOut-1] = reflect.Zero(fnType.Out(numOut - 1))
		numValues--
	}

	switch {
	case numValues == 0:
	case numValues == 1:
		v, ok := valueFor(value, fnType.Out(0))
		if !ok {
			return nil, false
		}
		results[0] = v
	default:
		values, ok := value.([]any)
		if !ok || len(values) < numValues {
			return nil, false
		}
		for i := 0; i < numValues; i++ {
			v, ok := valueFor(values[i], fnType.Out(i))
			if !ok {
				return nil, false
			}
			results[i] = v
		}
	}

	return results, true
}

// valueFor converts a stored value to the declared return type. A nil stored
// value (typed nil at call time) needs the type's zero value. Remote backends
// JSON round-trip values into generic shapes (map[string]any, []any,
// float64), so inconvertible values get decoded back through JSON into the
// declared type rather than panicking on the hit path.
func valueFor(value any, t reflect.Type) (reflect.Value, bool) {
	if value == nil {
		return reflect.Zero(t), true
	}

	v := reflect.ValueOf(value)
	if v.Type() == t {
		return v, true
	}
	if v.Type().ConvertibleTo(t) {
		return v.Convert(t), true
	}

	data, err := json.Marshal(value)
	if err != nil {
		return reflect.Value{}, false
	}
	out := reflect.New(t)
	if err := json.Unmarshal(data, out.Interface()); err != nil {
		return reflect.Value{}, false
	}
	return out.Elem(), true
}

func errorReturn(fnType reflect.Type, err error) []reflect.Value {
	numOut := fnType.NumOut()
	results := make([]reflect.Value, numOut)

	for i := 0; i < numOut-1; i++ {
		results[i] = reflect.Zero(fnType.Out(i))
	}
	results[numOut-1] = reflect.ValueOf(err)

	return results
}
