package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alim08/cryptobook/pkg/logger"
	"github.com/alim08/cryptobook/pkg/metrics"
	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/gqlerrors"
	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/graphql-go/graphql/language/source"
	"go.uber.org/zap"
)

// Operation kinds as they appear in a GraphQL document.
const (
	KindQuery        = "query"
	KindMutation     = "mutation"
	KindSubscription = "subscription"
)

// ErrSubscriptionOverHTTP is returned for subscription operations sent to
// Execute; they need a streaming transport.
var ErrSubscriptionOverHTTP = errors.New("subscriptions require a websocket connection")

// Request is one GraphQL operation as sent by a client.
type Request struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName,omitempty"`
	Variables     map[string]interface{} `json:"variables,omitempty"`
}

// Dispatcher routes requests to the schema. The caller's context carries the
// auth.Principal.
type Dispatcher struct {
	schema   graphql.Schema
	resolver *Resolver
}

func NewDispatcher(r *Resolver) (*Dispatcher, error) {
	schema, err := NewSchema(r)
	if err != nil {
		return nil, fmt.Errorf("failed to build schema: %w", err)
	}
	return &Dispatcher{schema: schema, resolver: r}, nil
}

// OperationKind reports whether req selects a query, mutation or
// subscription.
func OperationKind(req Request) (string, error) {
	op, err := selectOperation(req)
	if err != nil {
		return "", err
	}
	return op.Operation, nil
}

func selectOperation(req Request) (*ast.OperationDefinition, error) {
	doc, err := parser.Parse(parser.ParseParams{
		Source: source.NewSource(&source.Source{Body: []byte(req.Query), Name: "GraphQL request"}),
	})
	if err != nil {
		return nil, err
	}

	var selected *ast.OperationDefinition
	for _, def := range doc.Definitions {
		op, ok := def.(*ast.OperationDefinition)
		if !ok {
			continue
		}
		if req.OperationName == "" {
			if selected != nil {
				return nil, errors.New("must provide operation name if query contains multiple operations")
			}
			selected = op
			continue
		}
		if op.Name != nil && op.Name.Value == req.OperationName {
			return op, nil
		}
	}
	if selected == nil {
		if req.OperationName != "" {
			return nil, fmt.Errorf("unknown operation named %q", req.OperationName)
		}
		return nil, errors.New("must provide an operation")
	}
	return selected, nil
}

// rootField names the first top-level field of op, for metric labels. Names
// outside the schema collapse to "invalid".
func (d *Dispatcher) rootField(op *ast.OperationDefinition) string {
	if op == nil || op.SelectionSet == nil || len(op.SelectionSet.Selections) == 0 {
		return "invalid"
	}
	field, ok := op.SelectionSet.Selections[0].(*ast.Field)
	if !ok || field.Name == nil {
		return "invalid"
	}

	var root *graphql.Object
	switch op.Operation {
	case KindQuery:
		root = d.schema.QueryType()
	case KindMutation:
		root = d.schema.MutationType()
	case KindSubscription:
		root = d.schema.SubscriptionType()
	}
	if root == nil {
		return "invalid"
	}
	if _, ok := root.Fields()[field.Name.Value]; !ok {
		return "invalid"
	}
	return field.Name.Value
}

// Execute runs a query or mutation.
func (d *Dispatcher) Execute(ctx context.Context, req Request) *graphql.Result {
	start := time.Now()

	kind, name := "unknown", "invalid"
	if op, err := selectOperation(req); err == nil {
		kind, name = op.Operation, d.rootField(op)
		if kind == KindSubscription {
			return errorResult(ErrSubscriptionOverHTTP)
		}
	}

	result := graphql.Do(graphql.Params{
		Schema:         d.schema,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        ctx,
	})

	d.observe(kind, name, start, result)
	return result
}

// Subscribe starts a subscription operation. Each event becomes one result
// on the returned channel, which is closed when ctx ends or the stream is
// dropped. A request that fails before streaming yields a single result
// carrying the errors.
func (d *Dispatcher) Subscribe(ctx context.Context, req Request) (<-chan *graphql.Result, error) {
	op, err := selectOperation(req)
	if err != nil {
		return nil, err
	}
	if op.Operation != KindSubscription {
		return nil, fmt.Errorf("operation is a %s, not a subscription", op.Operation)
	}

	start := time.Now()
	name := d.rootField(op)
	logger.Log.Debug("graphql subscription started", zap.String("operation", name))

	in := graphql.Subscribe(graphql.Params{
		Schema:         d.schema,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        ctx,
	})

	// relay so the stream's lifetime and outcome are recorded once it ends
	out := make(chan *graphql.Result)
	go func() {
		defer close(out)
		last := &graphql.Result{}
		for res := range in {
			last = res
			select {
			case out <- res:
			case <-ctx.Done():
				d.observe(KindSubscription, name, start, last)
				go drain(in)
				return
			}
		}
		d.observe(KindSubscription, name, start, last)
	}()
	return out, nil
}

func drain(ch <-chan *graphql.Result) {
	for range ch {
	}
}

func (d *Dispatcher) observe(kind, name string, start time.Time, result *graphql.Result) {
	status := "success"
	if result.HasErrors() {
		status = "error"
	}
	elapsed := time.Since(start)
	metrics.GraphQLOperationDuration.WithLabelValues(kind, name, status).Observe(elapsed.Seconds())
	logger.Log.Debug("graphql operation",
		zap.String("kind", kind),
		zap.String("operation", name),
		zap.String("status", status),
		zap.Duration("duration", elapsed))
}

func errorResult(err error) *graphql.Result {
	return &graphql.Result{Errors: []gqlerrors.FormattedError{gqlerrors.FormatError(err)}}
}
