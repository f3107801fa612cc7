package graph

import (
	"context"
)

// UserAdded streams users created after the call. The returned channel is
// closed when ctx ends or the registry drops the subscription.
func (r *Resolver) UserAdded(ctx context.Context) (chan interface{}, error) {
	sub, err := r.registry.Subscribe(ctx, TopicUserAdded)
	if err != nil {
		return nil, err
	}

	out := make(chan interface{})
	go func() {
		defer close(out)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-sub.C():
				if !ok {
					return
				}
				select {
				case out <- v:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
