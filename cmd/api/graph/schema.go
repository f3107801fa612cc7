package graph

import (
	"time"

	"github.com/alim08/cryptobook/pkg/models"
	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"
)

// invalidDateTime is what a non-numeric DateTime input parses to. It is not
// nullish, so graphql-go accepts the argument, and the resolvers treat it as
// absent.
type invalidDateTime struct{}

var dateTimeType = graphql.NewScalar(graphql.ScalarConfig{
	Name:        "DateTime",
	Description: "Instant as integer milliseconds since the Unix epoch",
	Serialize: func(value interface{}) interface{} {
		switch v := value.(type) {
		case time.Time:
			if v.IsZero() {
				return nil
			}
			return models.EpochMillis(v)
		case *time.Time:
			if v == nil || v.IsZero() {
				return nil
			}
			return models.EpochMillis(*v)
		default:
			return nil
		}
	},
	ParseValue: func(value interface{}) interface{} {
		if t, ok := models.ParseEpoch(value); ok {
			return t
		}
		return invalidDateTime{}
	},
	ParseLiteral: func(valueAST ast.Value) interface{} {
		switch v := valueAST.(type) {
		case *ast.IntValue:
			if t, ok := models.ParseEpoch(v.Value); ok {
				return t
			}
		case *ast.StringValue:
			if t, ok := models.ParseEpoch(v.Value); ok {
				return t
			}
		}
		return invalidDateTime{}
	},
})

func subLevelEnum() *graphql.Enum {
	values := graphql.EnumValueConfigMap{}
	for _, l := range models.SubLevels {
		values[string(l)] = &graphql.EnumValueConfig{Value: l}
	}
	return graphql.NewEnum(graphql.EnumConfig{
		Name:   "SubLevel",
		Values: values,
	})
}

// NewSchema builds the executable schema over r.
func NewSchema(r *Resolver) (graphql.Schema, error) {
	subLevelType := subLevelEnum()

	userType := graphql.NewObject(graphql.ObjectConfig{
		Name: "User",
		Fields: graphql.Fields{
			"id":       &graphql.Field{Type: graphql.NewNonNull(graphql.ID)},
			"name":     &graphql.Field{Type: graphql.String},
			"userName": &graphql.Field{Type: graphql.String},
			"avatar":   &graphql.Field{Type: graphql.String},
			"bio":      &graphql.Field{Type: graphql.String},
			"subLevel": &graphql.Field{Type: subLevelType},
		},
	})

	coinType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Coin",
		Fields: graphql.Fields{
			"id":         &graphql.Field{Type: graphql.NewNonNull(graphql.ID)},
			"name":       &graphql.Field{Type: graphql.String},
			"symbol":     &graphql.Field{Type: graphql.String},
			"slug":       &graphql.Field{Type: graphql.String},
			"price":      &graphql.Field{Type: graphql.Float},
			"volume_24h": &graphql.Field{Type: graphql.Float},
		},
	})

	// user and coin are foreign keys resolved on demand
	tradeType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Trade",
		Fields: graphql.Fields{
			"id":     &graphql.Field{Type: graphql.NewNonNull(graphql.ID)},
			"user":   &graphql.Field{Type: userType, Resolve: r.fields.resolveFn("Trade", "user")},
			"coin":   &graphql.Field{Type: coinType, Resolve: r.fields.resolveFn("Trade", "coin")},
			"amount": &graphql.Field{Type: graphql.Float},
			"time":   &graphql.Field{Type: dateTimeType},
		},
	})

	userInputType := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "UserInput",
		Fields: graphql.InputObjectConfigFieldMap{
			"name":     &graphql.InputObjectFieldConfig{Type: graphql.String},
			"userName": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)},
			"password": &graphql.InputObjectFieldConfig{Type: graphql.String},
			"avatar":   &graphql.InputObjectFieldConfig{Type: graphql.String},
			"bio":      &graphql.InputObjectFieldConfig{Type: graphql.String},
			"subLevel": &graphql.InputObjectFieldConfig{Type: subLevelType},
		},
	})

	tradeInputType := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "TradeInput",
		Fields: graphql.InputObjectConfigFieldMap{
			"userId": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.ID)},
			"coinId": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.ID)},
			"amount": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.Float)},
			"time":   &graphql.InputObjectFieldConfig{Type: dateTimeType},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"users": &graphql.Field{
				Type: graphql.NewList(userType),
				Resolve: resolveWith("users", func(p graphql.ResolveParams) (interface{}, error) {
					return r.Users(p.Context)
				}),
			},
			"user": &graphql.Field{
				Type: userType,
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.ID},
				},
				Resolve: resolveWith("user", func(p graphql.ResolveParams) (interface{}, error) {
					id, _ := p.Args["id"].(string)
					u, err := r.User(p.Context, id)
					if u == nil || err != nil {
						return nil, err
					}
					return u, nil
				}),
			},
			"coins": &graphql.Field{
				Type: graphql.NewList(coinType),
				Resolve: resolveWith("coins", func(p graphql.ResolveParams) (interface{}, error) {
					return r.Coins(p.Context)
				}),
			},
			"trades": &graphql.Field{
				Type: graphql.NewList(tradeType),
				Resolve: resolveWith("trades", func(p graphql.ResolveParams) (interface{}, error) {
					return r.Trades(p.Context)
				}),
			},
		},
	})

	mutationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"addUser": &graphql.Field{
				Type: graphql.NewList(userType),
				Args: graphql.FieldConfigArgument{
					"user": &graphql.ArgumentConfig{Type: graphql.NewNonNull(userInputType)},
				},
				Resolve: resolveWith("addUser", func(p graphql.ResolveParams) (interface{}, error) {
					input, _ := p.Args["user"].(map[string]interface{})
					return r.AddUser(p.Context, userInputFrom(input))
				}),
			},
			"addTrade": &graphql.Field{
				Type: tradeType,
				Args: graphql.FieldConfigArgument{
					"trade": &graphql.ArgumentConfig{Type: graphql.NewNonNull(tradeInputType)},
				},
				Resolve: resolveWith("addTrade", func(p graphql.ResolveParams) (interface{}, error) {
					input, _ := p.Args["trade"].(map[string]interface{})
					t, err := r.AddTrade(p.Context, tradeInputFrom(input))
					if t == nil || err != nil {
						return nil, err
					}
					return t, nil
				}),
			},
		},
	})

	subscriptionType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Subscription",
		Fields: graphql.Fields{
			"userAdded": &graphql.Field{
				Type: userType,
				Subscribe: resolveWith("userAdded", func(p graphql.ResolveParams) (interface{}, error) {
					return r.UserAdded(p.Context)
				}),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source, nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query:        queryType,
		Mutation:     mutationType,
		Subscription: subscriptionType,
	})
}

// resolveWith maps resolver errors to coded GraphQL errors for field.
func resolveWith(field string, fn graphql.FieldResolveFn) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		v, err := fn(p)
		if err != nil {
			return nil, toGraphQLError(field, err)
		}
		return v, nil
	}
}

func userInputFrom(m map[string]interface{}) models.UserInput {
	in := models.UserInput{
		Name:     stringArg(m, "name"),
		UserName: stringArg(m, "userName"),
		Password: stringArg(m, "password"),
		Avatar:   stringArg(m, "avatar"),
		Bio:      stringArg(m, "bio"),
	}
	switch l := m["subLevel"].(type) {
	case models.SubLevel:
		in.SubLevel = l
	case string:
		in.SubLevel = models.SubLevel(l)
	}
	return in
}

func tradeInputFrom(m map[string]interface{}) models.TradeInput {
	in := models.TradeInput{
		UserID: stringArg(m, "userId"),
		CoinID: stringArg(m, "coinId"),
	}
	if amount, ok := m["amount"].(float64); ok {
		in.Amount = amount
	}
	if t, ok := m["time"].(time.Time); ok {
		in.Time = &t
	}
	return in
}

func stringArg(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}
