package event

import (
	"github.com/hyperledger/iroha-sub011/common"
	"github.com/hyperledger/iroha-sub011/core/types"
	"github.com/hyperledger/iroha-sub011/internal/xerrors"
)

// BlockCommitted fires once a block is applied to the world-state-view.
type BlockCommitted struct {
	Height uint64
	Hash   common.Hash
}

// TransactionRejected fires when a transaction in a committed block carries
// a Rejected verdict, so subscribers can correlate a submitted transaction
// with its on-chain outcome without re-scanning every block.
type TransactionRejected struct {
	Height uint64
	Hash   common.Hash
	Kind   types.VerdictKind
	Reason string
}

// ViewChanged fires once the view-change index advances.
type ViewChanged struct {
	NewIndex uint64
	Reason   xerrors.ViewChangeReason
}

// Bus groups the three feeds a consensus node fires into over its lifetime.
// Construct with a pointer zero value; each feed is independently
// subscribable.
type Bus struct {
	Commits       FeedOf[BlockCommitted]
	Rejections    FeedOf[TransactionRejected]
	ViewChanges   FeedOf[ViewChanged]
}
