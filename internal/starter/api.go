package starter

import (
	"context"

	"moff.io/crowdfund/internal/config"
)

type Startable interface {
	Start(ctx context.Context)
}

type Configurable interface {
	Apply(*config.Configuration)
}

// Start applies config.Global to configurable elements, then starts each in
// order. Start blocks for as long as the elements' Start does.
func Start(ctx context.Context, elems ...Startable) {
	for _, ele := range elems {
		if configurable, ok := ele.(Configurable); ok {
			configurable.Apply(config.Global)
		}
		ele.Start(ctx)
	}
}

type Stopable interface {
	Stop()
}

// Stop stops the stopable elements in reverse order.
func Stop(elems ...interface{}) {
	for i := len(elems) - 1; i >= 0; i-- {
		if s, ok := elems[i].(Stopable); ok {
			s.Stop()
		}
	}
}
