// Package api names the boundary between this component and Torii, the
// HTTP/WS gateway that is an external collaborator (§1, §6). Nothing in
// this repo implements these interfaces' wire encoding or transport — the
// core only satisfies them, so a gateway process can depend on this module
// without depending on net/http, gorilla/websocket, or any of the other
// transport libraries that boundary would require.
package api

import (
	"context"

	"github.com/hyperledger/iroha-sub011/common"
	"github.com/hyperledger/iroha-sub011/config"
	"github.com/hyperledger/iroha-sub011/core/types"
	"github.com/hyperledger/iroha-sub011/event"
)

// TransactionSubmitter is what a `POST /transaction` handler calls after
// decoding and signature-checking the request body.
type TransactionSubmitter interface {
	Submit(tx *types.Transaction) error
}

// QueryResult is the paginated response shape a `POST /query` handler
// would serialize. The query language itself belongs to the instruction
// schema, which is out of scope (§1); this only names the envelope.
type QueryResult struct {
	Total    int
	PageSize int
	Items    []any
}

// QueryService is what a `POST /query` handler calls once it has decoded
// and signature-checked a query request. Implementations interpret the
// query payload against a world-state-view snapshot.
type QueryService interface {
	Query(ctx context.Context, signedQuery []byte) (QueryResult, error)
}

// EventSubscriber is what a `WS /events` handler subscribes to on behalf
// of a connected client. It is a thin re-export of event.Bus's three
// feeds so Torii never needs to import the event package's Send side.
type EventSubscriber interface {
	SubscribeCommits(ch chan<- event.BlockCommitted) event.Subscription
	SubscribeRejections(ch chan<- event.TransactionRejected) event.Subscription
	SubscribeViewChanges(ch chan<- event.ViewChanged) event.Subscription
}

// BlockStreamer is what a `WS /blocks/stream` handler calls to replay
// history from a given height and then keep streaming new commits.
type BlockStreamer interface {
	BlockRange(from, to uint64) ([]*types.Block, error)
	SubscribeCommits(ch chan<- event.BlockCommitted) event.Subscription
}

// Status is the `GET /status` response body (§6).
type Status struct {
	Peers        int
	Blocks       uint64
	TxsAccepted  uint64
	TxsRejected  uint64
	UptimeMs     int64
	QueueSize    int
	ViewChanges  uint64
}

// StatusProvider is what a `GET /status` handler calls.
type StatusProvider interface {
	Status() Status
}

// HealthChecker is what a `GET /health` handler calls; a non-nil error
// means the process should report unhealthy rather than liveness-fail
// silently.
type HealthChecker interface {
	Healthy() error
}

// ConfigurationService is what `GET/POST /configuration` calls to inspect
// or hot-reload the whitelisted subset of chain parameters (§9).
type ConfigurationService interface {
	Current() config.Hot
	Reload(h config.Hot) error
}

// PeerID re-export spares callers an import of common just to name the
// type most of these methods pass around.
type PeerID = common.PeerID
