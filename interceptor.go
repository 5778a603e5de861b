package zetro

import (
	"context"
)

// HandlerFunc represents the next handler in an interceptor chain.
// It is passed to [UnaryInterceptor] functions to invoke the next interceptor
// or the final handler.
type HandlerFunc func(ctx context.Context, req any) (res any, err error)

// UnaryInterceptor is a hook that wraps handler execution for one operation.
//
//	func timing(ctx context.Context, info *zetro.RPCInfo, req any, next zetro.HandlerFunc) (any, error) {
//	    start := time.Now()
//	    res, err := next(ctx, req)
//	    log.Printf("%s took %v", info.Route.Name, time.Since(start))
//	    return res, err
//	}
//
// The next parameter is the next handler in the chain. Interceptors can:
//   - Inspect/modify the request before calling next
//   - Inspect/modify the response after calling next
//   - Short-circuit by returning an error without calling next
//   - Add values to the context with context.WithValue
//
// req is a pointer to the decoded request struct; res is the value the
// handler returned. An envelope with several operations runs the chain once
// per operation.
type UnaryInterceptor func(ctx context.Context, info *RPCInfo, req any, next HandlerFunc) (res any, err error)

// chainInterceptors combines multiple interceptors into a single one.
// The first interceptor in the slice is the outer-most one (runs first).
func chainInterceptors(interceptors []UnaryInterceptor) UnaryInterceptor {
	switch len(interceptors) {
	case 0:
		return nil
	case 1:
		return interceptors[0]
	}
	return func(ctx context.Context, info *RPCInfo, req any, next HandlerFunc) (any, error) {
		chain := next
		for i := len(interceptors) - 1; i >= 1; i-- {
			current, tail := interceptors[i], chain
			chain = func(ctx context.Context, req any) (any, error) {
				return current(ctx, info, req, tail)
			}
		}
		return interceptors[0](ctx, info, req, chain)
	}
}
