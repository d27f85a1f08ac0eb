package wallet

import (
	"strings"
	"sync"

	"faktoro.io/faktoro-relay/pkg/errors"
	"faktoro.io/faktoro-relay/pkg/log"
)

// Record is one smart contract wallet known to belong to the user.
type Record struct {
	OwnerAddress string `json:"owner"`
	ChainID      int    `json:"chainId"`
	SCWAddress   string `json:"walletAddress"`
}

func (r Record) Equal(other Record) bool {
	return strings.EqualFold(r.OwnerAddress, other.OwnerAddress) &&
		strings.EqualFold(r.SCWAddress, other.SCWAddress) &&
		r.ChainID == other.ChainID
}

// ActiveListener observes active-wallet changes. The relay session registers
// here so session approvals always carry the current selection.
type ActiveListener interface {
	ActiveWalletChanged(Record)
}

// Registry tracks the user's smart contract wallets and the active selection
// answering session requests. All mutation is serialized through one mutex;
// the invariant is that an active wallet always references a present record.
type Registry struct {
	lock      sync.Mutex
	byOwner   map[string][]Record
	active    *Record
	listeners []ActiveListener
}

func NewRegistry() *Registry {
	return &Registry{
		byOwner: map[string][]Record{},
	}
}

func (r *Registry) SubscribeActive(listener ActiveListener) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.listeners = append(r.listeners, listener)
}

// UpsertWallets replaces the known set for the owner. When nothing is active
// yet, the first record of the first non-empty upsert wins.
func (r *Registry) UpsertWallets(ownerAddress string, records []Record) {
	r.lock.Lock()
	owner := strings.ToLower(ownerAddress)
	r.byOwner[owner] = append([]Record{}, records...)
	var promoted *Record
	if r.active == nil && len(records) > 0 {
		first := records[0]
		r.active = &first
		promoted = &first
	}
	// Active selection must always reference a present record.
	if r.active != nil && !r.containsLocked(*r.active) {
		log.Warnf("active wallet %v dropped from registry, clearing selection", r.active.SCWAddress)
		r.active = nil
	}
	listeners := append([]ActiveListener{}, r.listeners...)
	r.lock.Unlock()

	if promoted != nil {
		for _, l := range listeners {
			l.ActiveWalletChanged(*promoted)
		}
	}
}

// SetActive selects one of the known records and propagates it.
func (r *Registry) SetActive(record Record) error {
	r.lock.Lock()
	if !r.containsLocked(record) {
		r.lock.Unlock()
		return errors.Errorf("wallet %v on chain %v is not registered", record.SCWAddress, record.ChainID)
	}
	r.active = &record
	listeners := append([]ActiveListener{}, r.listeners...)
	r.lock.Unlock()

	for _, l := range listeners {
		l.ActiveWalletChanged(record)
	}
	return nil
}

// Active returns the current selection, if any.
func (r *Registry) Active() (Record, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.active == nil {
		return Record{}, false
	}
	return *r.active, true
}

// Wallets returns all known records across owners.
func (r *Registry) Wallets() []Record {
	r.lock.Lock()
	defer r.lock.Unlock()
	var all []Record
	for _, records := range r.byOwner {
		all = append(all, records...)
	}
	return all
}

// WalletsOf returns the known records for one owner.
func (r *Registry) WalletsOf(ownerAddress string) []Record {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]Record{}, r.byOwner[strings.ToLower(ownerAddress)]...)
}

func (r *Registry) containsLocked(record Record) bool {
	for _, records := range r.byOwner {
		for _, candidate := range records {
			if candidate.Equal(record) {
				return true
			}
		}
	}
	return false
}
