package sumeragi

import (
	"github.com/hyperledger/iroha-sub011/common"
)

// SignFunc signs an arbitrary hash, used for view-change proof signatures.
type SignFunc func(common.Hash) common.Signature

// CommitWatchdog starts a timer on proposal send and raises a view change
// for ReasonCommitTimeout if HandleBlockCommitted hasn't fired by the time
// it expires (§4.5 "commit_time ... exceeding triggers view change"). Callers
// invoke this right after a successful ProposeBlock/HandleBlockCreated, and
// are expected to call timer.Stop() themselves (via the returned stop func)
// once a commit for that height lands.
func (s *Sumeragi) CommitWatchdog(sign SignFunc) (stop func()) {
	timer := s.clock.NewTimer(s.cfg.CommitTime)
	doneCh := make(chan struct{})
	go func() {
		select {
		case <-doneCh:
			timer.Stop()
		case <-timer.C():
			if err := s.RaiseViewChange(ReasonCommitTimeout, sign); err != nil {
				s.logger.Warn("sumeragi: raising view change on commit timeout failed", "err", err)
			}
		}
	}()
	return func() { close(doneCh) }
}

// ProxyTailWatchdog runs on the proxy_tail: if aggregation hasn't reached
// quorum within commit_time of the first signature received, raise a view
// change for ReasonProxyTailTimeout.
func (s *Sumeragi) ProxyTailWatchdog(sign SignFunc) (stop func()) {
	timer := s.clock.NewTimer(s.cfg.CommitTime)
	doneCh := make(chan struct{})
	go func() {
		select {
		case <-doneCh:
			timer.Stop()
		case <-timer.C():
			if err := s.RaiseViewChange(ReasonProxyTailTimeout, sign); err != nil {
				s.logger.Warn("sumeragi: raising view change on proxy_tail timeout failed", "err", err)
			}
		}
	}()
	return func() { close(doneCh) }
}

// LeaderWatchdog runs on every non-leader peer: if no BlockCreated arrives
// within tx_receipt_time of a transaction entering the queue, raise a view
// change for ReasonLeaderTimeout (§4.5 "tx_receipt_time ... exceeding
// triggers view change").
func (s *Sumeragi) LeaderWatchdog(sign SignFunc) (stop func()) {
	timer := s.clock.NewTimer(s.cfg.TxReceiptTime)
	doneCh := make(chan struct{})
	go func() {
		select {
		case <-doneCh:
			timer.Stop()
		case <-timer.C():
			if err := s.RaiseViewChange(ReasonLeaderTimeout, sign); err != nil {
				s.logger.Warn("sumeragi: raising view change on leader timeout failed", "err", err)
			}
		}
	}()
	return func() { close(doneCh) }
}
