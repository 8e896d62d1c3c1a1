package graph

import (
	"context"
	"fmt"
	"time"
)

// nodeTimeout resolves the timeout for nodeID: per-node override first,
// then the engine default. Zero means unlimited.
func (o Options) nodeTimeout(nodeID string) time.Duration {
	if d, ok := o.NodeTimeouts[nodeID]; ok {
		return d
	}
	return o.DefaultNodeTimeout
}

// executeNodeWithTimeout runs node under timeout (0 = unlimited).
//
// The returned error is non-nil only when the node's own deadline fired; a
// cancelled or expired parent context is left for the node to report.
func executeNodeWithTimeout[S any](
	ctx context.Context,
	node Node[S],
	nodeID string,
	state S,
	timeout time.Duration,
) (NodeResult[S], error) {
	if timeout <= 0 {
		return node.Run(ctx, state), nil
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := node.Run(timeoutCtx, state)

	if timeoutCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		return result, &EngineError{
			Message: fmt.Sprintf("node %s exceeded timeout of %v", nodeID, timeout),
			Code:    "NODE_TIMEOUT",
		}
	}

	return result, nil
}
