package graph

import (
	"github.com/alim08/cryptobook/pkg/catalog"
	"github.com/alim08/cryptobook/pkg/pubsub"
	"github.com/alim08/cryptobook/pkg/store"
	"golang.org/x/crypto/bcrypt"
)

// TopicUserAdded carries every user created through addUser.
const TopicUserAdded = "userAdded"

// Resolver is the process-scoped context shared by every operation. It is
// built once at startup and owns no global state.
type Resolver struct {
	store    store.RecordStore
	catalog  *catalog.Catalog
	registry *pubsub.Registry
	fields   *FieldResolver

	bcryptCost int
}

func NewResolver(s store.RecordStore, c *catalog.Catalog, reg *pubsub.Registry) *Resolver {
	r := &Resolver{
		store:      s,
		catalog:    c,
		registry:   reg,
		bcryptCost: bcrypt.DefaultCost,
	}
	r.fields = newTradeFields(r)
	return r
}

// Fields exposes the relational field resolver.
func (r *Resolver) Fields() *FieldResolver {
	return r.fields
}
