package approval

import (
	"context"
	"sync"

	"faktoro.io/faktoro-relay/internal/relay"
	"faktoro.io/faktoro-relay/pkg/errors"
	"faktoro.io/faktoro-relay/pkg/log"
)

// Inbox consumes the relay's actionable-head emissions and holds the one
// request currently awaiting the user's decision.
type Inbox struct {
	source <-chan *relay.PendingTransactionRequest

	lock    sync.Mutex
	current *relay.PendingTransactionRequest
}

func NewInbox(source <-chan *relay.PendingTransactionRequest) *Inbox {
	return &Inbox{source: source}
}

func (i *Inbox) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case req, ok := <-i.source:
				if !ok {
					return
				}
				i.lock.Lock()
				i.current = req
				i.lock.Unlock()
				log.Infof("approval - request %v awaiting 2fa approval", req.RequestID)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Current returns the request awaiting approval, if any. A request whose
// session ended is dropped, never served.
func (i *Inbox) Current() (*relay.PendingTransactionRequest, bool) {
	i.lock.Lock()
	defer i.lock.Unlock()
	if i.current == nil {
		return nil, false
	}
	if i.current.Discarded() {
		log.Warnf("approval - request %v discarded with its session", i.current.RequestID)
		i.current = nil
		return nil, false
	}
	return i.current, true
}

// Take hands out the awaiting request by id for resolution.
func (i *Inbox) Take(requestID int64) (*relay.PendingTransactionRequest, error) {
	i.lock.Lock()
	defer i.lock.Unlock()
	if i.current == nil {
		return nil, errors.Errorf("no request awaiting approval")
	}
	if i.current.Discarded() {
		discarded := i.current.RequestID
		i.current = nil
		return nil, errors.Errorf("request %v was discarded with its session", discarded)
	}
	if i.current.RequestID != requestID {
		return nil, errors.Errorf("request %v is not awaiting approval", requestID)
	}
	return i.current, nil
}

// Settle forgets the request once it has been resolved.
func (i *Inbox) Settle(requestID int64) {
	i.lock.Lock()
	defer i.lock.Unlock()
	if i.current != nil && i.current.RequestID == requestID {
		i.current = nil
	}
}
