// Package memory keeps listings, wallets and transactions in process memory behind one lock,
// so a settlement touches all three atomically. Used by tests and by development runs
// without a database.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/carbonmax/carbonmax/internal/apperrors"
	"github.com/carbonmax/carbonmax/internal/ledger"
	"github.com/carbonmax/carbonmax/internal/listing"
	"github.com/carbonmax/carbonmax/internal/wallet"
)

// Store is the shared in-memory state.
type Store struct {
	mu           sync.RWMutex
	listings     map[string]listing.Listing
	wallets      map[string]wallet.Wallet
	transactions map[string]ledger.Transaction
	clientTx     map[string]string
	seq          map[string]int64
	next         int64
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		listings:     make(map[string]listing.Listing),
		wallets:      make(map[string]wallet.Wallet),
		transactions: make(map[string]ledger.Transaction),
		clientTx:     make(map[string]string),
		seq:          make(map[string]int64),
	}
}

// Listings returns the listing repository view.
func (s *Store) Listings() listing.Repository { return listingRepo{s} }

// Wallets returns the wallet repository view.
func (s *Store) Wallets() wallet.Repository { return walletRepo{s} }

// Ledger returns the settlement view.
func (s *Store) Ledger() ledger.Ledger { return ledgerView{s} }

// stamp records insertion order so ties on timestamps still list newest first.
func (s *Store) stamp(id string) {
	s.next++
	s.seq[id] = s.next
}

func (s *Store) newer(a, b string, at, bt time.Time) bool {
	if !at.Equal(bt) {
		return at.After(bt)
	}
	return s.seq[a] > s.seq[b]
}

type listingRepo struct{ s *Store }

func (r listingRepo) Create(_ context.Context, l listing.Listing) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.listings[l.ID]; exists {
		return fmt.Errorf("listing %s: %w", l.ID, apperrors.ErrDuplicate)
	}
	r.s.listings[l.ID] = l
	r.s.stamp(l.ID)
	return nil
}

func (r listingRepo) Get(_ context.Context, id string) (listing.Listing, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	l, ok := r.s.listings[id]
	if !ok {
		return listing.Listing{}, fmt.Errorf("listing %s: %w", id, apperrors.ErrNotFound)
	}
	return l, nil
}

func (r listingRepo) List(_ context.Context, q listing.Query) ([]listing.Listing, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []listing.Listing{}
	for _, l := range r.s.listings {
		if q.Matches(l) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return r.s.newer(out[i].ID, out[j].ID, out[i].CreatedAt, out[j].CreatedAt)
	})
	return out, nil
}

func (r listingRepo) TransitionStatus(_ context.Context, id string, from, to listing.Status, verifierID string, at time.Time) (listing.Listing, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.listings[id]
	if !ok {
		return listing.Listing{}, fmt.Errorf("listing %s: %w", id, apperrors.ErrNotFound)
	}
	if l.Status != from || !listing.CanTransition(from, to) {
		return listing.Listing{}, fmt.Errorf("listing %s is %s: %w", id, l.Status, apperrors.ErrInvalidTransition)
	}
	at = at.UTC()
	l.Status = to
	l.VerifiedBy = verifierID
	l.VerifiedAt = &at
	l.UpdatedAt = at
	r.s.listings[id] = l
	return l, nil
}

func (r listingRepo) DecrementQuantity(_ context.Context, id string, amount decimal.Decimal) (listing.Listing, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.listings[id]
	if !ok {
		return listing.Listing{}, fmt.Errorf("listing %s: %w", id, apperrors.ErrNotFound)
	}
	if amount.GreaterThan(l.QuantityRemaining) {
		return listing.Listing{}, fmt.Errorf("listing %s: %w", id, apperrors.ErrInsufficientQuantity)
	}
	l.QuantityRemaining = l.QuantityRemaining.Sub(amount)
	l.UpdatedAt = time.Now().UTC()
	r.s.listings[id] = l
	return l, nil
}

func (r listingRepo) DeletePending(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.listings[id]
	if !ok {
		return fmt.Errorf("listing %s: %w", id, apperrors.ErrNotFound)
	}
	if l.Status != listing.StatusPending {
		return fmt.Errorf("listing %s is %s: %w", id, l.Status, apperrors.ErrInvalidTransition)
	}
	delete(r.s.listings, id)
	delete(r.s.seq, id)
	return nil
}

type walletRepo struct{ s *Store }

// getOrCreateLocked expects s.mu to be held for writing.
func (s *Store) getOrCreateLocked(ownerID string) wallet.Wallet {
	w, ok := s.wallets[ownerID]
	if !ok {
		w = wallet.Wallet{OwnerID: ownerID, Credits: decimal.Zero, Cash: decimal.Zero, UpdatedAt: time.Now().UTC()}
		s.wallets[ownerID] = w
	}
	return w
}

func (r walletRepo) GetOrCreate(_ context.Context, ownerID string) (wallet.Wallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.getOrCreateLocked(ownerID), nil
}

func (r walletRepo) Apply(_ context.Context, ownerID string, delta wallet.Amounts, at time.Time) (wallet.Wallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, err := r.s.getOrCreateLocked(ownerID).Apply(delta)
	if err != nil {
		return wallet.Wallet{}, err
	}
	w.UpdatedAt = at.UTC()
	r.s.wallets[ownerID] = w
	return w, nil
}

type ledgerView struct{ s *Store }

func (v ledgerView) Settle(_ context.Context, st ledger.Settlement) (ledger.Receipt, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.transactions[st.TransactionID]; ok {
		return s.receiptLocked(t), fmt.Errorf("transaction %s: %w", t.ID, apperrors.ErrDuplicate)
	}
	clientKey := st.BuyerID + ":" + st.ClientTxID
	if st.ClientTxID != "" {
		if id, ok := s.clientTx[clientKey]; ok {
			return s.receiptLocked(s.transactions[id]), fmt.Errorf("client transaction %s: %w", st.ClientTxID, apperrors.ErrDuplicate)
		}
	}

	l, ok := s.listings[st.ListingID]
	if !ok {
		return ledger.Receipt{}, fmt.Errorf("listing %s: %w", st.ListingID, apperrors.ErrListingUnavailable)
	}
	buyer := s.getOrCreateLocked(st.BuyerID)
	total, err := ledger.Check(l, buyer, st)
	if err != nil {
		return ledger.Receipt{}, err
	}
	receipt, err := ledger.Apply(l, buyer, s.getOrCreateLocked(l.OwnerID), st, total)
	if err != nil {
		return ledger.Receipt{}, err
	}

	s.listings[l.ID] = receipt.Listing
	s.wallets[receipt.Buyer.OwnerID] = receipt.Buyer
	s.wallets[receipt.Seller.OwnerID] = receipt.Seller
	s.transactions[receipt.Transaction.ID] = receipt.Transaction
	s.stamp(receipt.Transaction.ID)
	if st.ClientTxID != "" {
		s.clientTx[clientKey] = receipt.Transaction.ID
	}
	return receipt, nil
}

// receiptLocked describes an already recorded transaction with the current listing and wallets.
func (s *Store) receiptLocked(t ledger.Transaction) ledger.Receipt {
	return ledger.Receipt{
		Transaction: t,
		Listing:     s.listings[t.ListingID],
		Buyer:       s.wallets[t.BuyerID],
		Seller:      s.wallets[t.SellerID],
	}
}

func (v ledgerView) Get(_ context.Context, id string) (ledger.Transaction, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	t, ok := v.s.transactions[id]
	if !ok {
		return ledger.Transaction{}, fmt.Errorf("transaction %s: %w", id, apperrors.ErrNotFound)
	}
	return t, nil
}

func (v ledgerView) List(_ context.Context, q ledger.Query) ([]ledger.Transaction, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	out := []ledger.Transaction{}
	for _, t := range v.s.transactions {
		if q.Matches(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return v.s.newer(out[i].ID, out[j].ID, out[i].CreatedAt, out[j].CreatedAt)
	})
	return out, nil
}
