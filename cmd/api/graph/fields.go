package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/alim08/cryptobook/pkg/models"
	"github.com/alim08/cryptobook/pkg/store"
	"github.com/graphql-go/graphql"
)

// FieldKey names a relational field by its parent type.
type FieldKey struct {
	Parent string
	Field  string
}

func (k FieldKey) String() string { return k.Parent + "." + k.Field }

// FieldResult is the outcome of resolving one field: a value, absent, or a
// failure.
type FieldResult struct {
	Value  interface{}
	Err    error
	absent bool
}

func Found(v interface{}) FieldResult { return FieldResult{Value: v} }

func Absent() FieldResult { return FieldResult{absent: true} }

func Failed(err error) FieldResult { return FieldResult{Err: err} }

func (r FieldResult) IsAbsent() bool { return r.absent }

// FieldFunc resolves a field given its parent entity.
type FieldFunc func(ctx context.Context, parent interface{}) FieldResult

// FieldResolver dispatches relational fields by (parent type, field name).
type FieldResolver struct {
	funcs map[FieldKey]FieldFunc
}

func NewFieldResolver() *FieldResolver {
	return &FieldResolver{funcs: make(map[FieldKey]FieldFunc)}
}

func (f *FieldResolver) Register(key FieldKey, fn FieldFunc) {
	f.funcs[key] = fn
}

// Resolve looks up and runs the function for key. An unregistered key is a
// wiring mistake and fails.
func (f *FieldResolver) Resolve(ctx context.Context, key FieldKey, parent interface{}) FieldResult {
	fn, ok := f.funcs[key]
	if !ok {
		return Failed(fmt.Errorf("no resolver registered for %s", key))
	}
	return fn(ctx, parent)
}

// resolveFn adapts a registered field to graphql-go. Absent becomes null
// without an error.
func (f *FieldResolver) resolveFn(parent, field string) graphql.FieldResolveFn {
	key := FieldKey{Parent: parent, Field: field}
	return func(p graphql.ResolveParams) (interface{}, error) {
		res := f.Resolve(p.Context, key, p.Source)
		switch {
		case res.Err != nil:
			return nil, toGraphQLError(key.String(), res.Err)
		case res.IsAbsent():
			return nil, nil
		default:
			return res.Value, nil
		}
	}
}

func newTradeFields(r *Resolver) *FieldResolver {
	f := NewFieldResolver()
	f.Register(FieldKey{Parent: "Trade", Field: "user"}, r.tradeUser)
	f.Register(FieldKey{Parent: "Trade", Field: "coin"}, r.tradeCoin)
	return f
}

func tradeOf(parent interface{}) (*models.Trade, error) {
	switch t := parent.(type) {
	case *models.Trade:
		if t != nil {
			return t, nil
		}
	case models.Trade:
		return &t, nil
	}
	return nil, fmt.Errorf("unexpected trade parent %T", parent)
}

// tradeUser prefers the catalog's seed users so a trade keeps pointing at the
// entity it was recorded against, then falls back to live users.
func (r *Resolver) tradeUser(ctx context.Context, parent interface{}) FieldResult {
	t, err := tradeOf(parent)
	if err != nil {
		return Failed(err)
	}
	if u, ok := r.catalog.FindUserByIDStatic(t.UserID); ok {
		return Found(u)
	}
	u, err := r.store.FindByID(ctx, t.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return Absent()
	}
	if err != nil {
		return Failed(err)
	}
	return Found(u)
}

func (r *Resolver) tradeCoin(_ context.Context, parent interface{}) FieldResult {
	t, err := tradeOf(parent)
	if err != nil {
		return Failed(err)
	}
	if c, ok := r.catalog.FindCoinByID(t.CoinID); ok {
		return Found(c)
	}
	return Absent()
}
