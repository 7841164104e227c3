package pkfinder

import (
	"context"

	"kairos-pkfinder/internal/dialect"
)

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, q dialect.Queryer, ref TableRef) (*PrimaryKey, error)

// Resolve calls fn.
func (fn ResolverFunc) Resolve(ctx context.Context, q dialect.Queryer, ref TableRef) (*PrimaryKey, error) {
	return fn(ctx, q, ref)
}

// Chain tries each resolver in order and returns the first primary key found.
// An error from any resolver stops the chain.
type Chain []Resolver

// Resolve implements Resolver.
func (c Chain) Resolve(ctx context.Context, q dialect.Queryer, ref TableRef) (*PrimaryKey, error) {
	for _, r := range c {
		if r == nil {
			continue
		}
		pk, err := r.Resolve(ctx, q, ref)
		if err != nil {
			return nil, err
		}
		if pk != nil {
			return pk, nil
		}
	}
	return nil, nil
}
