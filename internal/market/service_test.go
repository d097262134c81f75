package market_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/carbonmax/carbonmax/internal/apperrors"
	"github.com/carbonmax/carbonmax/internal/ledger"
	"github.com/carbonmax/carbonmax/internal/listing"
	"github.com/carbonmax/carbonmax/internal/logging"
	"github.com/carbonmax/carbonmax/internal/market"
	"github.com/carbonmax/carbonmax/internal/metrics"
	"github.com/carbonmax/carbonmax/internal/notification"
	"github.com/carbonmax/carbonmax/internal/reference"
	"github.com/carbonmax/carbonmax/internal/storage/memory"
	"github.com/carbonmax/carbonmax/internal/wallet"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	store    *memory.Store
	listings *listing.Service
	wallets  *wallet.Service
	market   *market.Service
	broker   *notification.Broker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	broker := notification.NewBroker(logging.Discard())
	t.Cleanup(broker.Shutdown)
	return &fixture{
		store:    store,
		listings: listing.NewService(store.Listings(), reference.Default(), broker, nil, logging.Discard()),
		wallets:  wallet.NewService(store.Wallets(), broker, logging.Discard()),
		market:   market.NewService(store.Ledger(), broker, metrics.New(), logging.Discard()),
		broker:   broker,
	}
}

// verifiedListing creates and verifies a listing owned by seller.
func (f *fixture) verifiedListing(t *testing.T, seller, quantity, price string) listing.Listing {
	t.Helper()
	ctx := context.Background()
	l, err := f.listings.Create(ctx, listing.CreateInput{
		OwnerID:    seller,
		CreditType: "verra",
		Region:     "PB",
		Quantity:   dec(quantity),
		UnitPrice:  dec(price),
	})
	require.NoError(t, err)
	l, err = f.listings.SetStatus(ctx, l.ID, listing.StatusVerified, "admin-1")
	require.NoError(t, err)
	return l
}

func (f *fixture) fund(t *testing.T, owner, cash string) {
	t.Helper()
	_, err := f.wallets.Credit(context.Background(), owner, wallet.Amounts{Cash: dec(cash)})
	require.NoError(t, err)
}

func (f *fixture) wallet(t *testing.T, owner string) wallet.Wallet {
	t.Helper()
	w, err := f.wallets.GetBalance(context.Background(), owner)
	require.NoError(t, err)
	return w
}

func (f *fixture) listing(t *testing.T, id string) listing.Listing {
	t.Helper()
	l, err := f.listings.Get(context.Background(), id)
	require.NoError(t, err)
	return l
}

func TestPurchaseMovesCreditsAndCash(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.verifiedListing(t, "seller-1", "74.25", "800")
	f.fund(t, "buyer-1", "100000")

	sub := f.broker.Subscribe(8, func(e notification.Event) bool { return e.Concerns("seller-1") })
	defer sub.Close()

	receipt, err := f.market.Purchase(ctx, market.PurchaseInput{BuyerID: "buyer-1", ListingID: l.ID, Quantity: dec("74.25")})
	require.NoError(t, err)

	tx := receipt.Transaction
	require.Equal(t, ledger.StatusCompleted, tx.Status)
	require.NotNil(t, tx.CompletedAt)
	require.Equal(t, "seller-1", tx.SellerID)
	require.True(t, tx.TotalValue.Equal(dec("59400")), "total %s", tx.TotalValue)

	require.True(t, f.listing(t, l.ID).QuantityRemaining.IsZero())
	buyer := f.wallet(t, "buyer-1")
	require.True(t, buyer.Cash.Equal(dec("40600")), "buyer cash %s", buyer.Cash)
	require.True(t, buyer.Credits.Equal(dec("74.25")), "buyer credits %s", buyer.Credits)
	seller := f.wallet(t, "seller-1")
	require.True(t, seller.Cash.Equal(dec("59400")), "seller cash %s", seller.Cash)

	txs, err := f.market.ListForAccount(ctx, "buyer-1")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.True(t, txs[0].Quantity.Equal(dec("74.25")))

	marketplace, err := f.listings.ListVerified(ctx, listing.Filter{})
	require.NoError(t, err)
	require.Empty(t, marketplace, "a sold-out listing must leave the marketplace")

	seen := map[notification.Type]bool{}
	for len(sub.C) > 0 {
		seen[(<-sub.C).Type] = true
	}
	require.True(t, seen[notification.TransactionCompleted])
	require.True(t, seen[notification.WalletUpdated])
}

func TestPurchaseInsufficientFundsChangesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.verifiedListing(t, "seller-1", "5", "800")
	f.fund(t, "buyer-1", "1000")

	_, err := f.market.Purchase(ctx, market.PurchaseInput{BuyerID: "buyer-1", ListingID: l.ID, Quantity: dec("2")})
	require.ErrorIs(t, err, apperrors.ErrInsufficientFunds)

	require.True(t, f.wallet(t, "buyer-1").Cash.Equal(dec("1000")))
	require.True(t, f.wallet(t, "buyer-1").Credits.IsZero())
	require.True(t, f.wallet(t, "seller-1").Cash.IsZero())
	require.True(t, f.listing(t, l.ID).QuantityRemaining.Equal(dec("5")))

	txs, err := f.market.ListForAccount(ctx, "buyer-1")
	require.NoError(t, err)
	require.Empty(t, txs)
}

func TestPurchaseBoundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "buyer-1", "100000")

	over := f.verifiedListing(t, "seller-1", "5", "10")
	_, err := f.market.Purchase(ctx, market.PurchaseInput{BuyerID: "buyer-1", ListingID: over.ID, Quantity: dec("5.01")})
	require.ErrorIs(t, err, apperrors.ErrInsufficientQuantity)
	require.True(t, f.listing(t, over.ID).QuantityRemaining.Equal(dec("5")))

	_, err = f.market.Purchase(ctx, market.PurchaseInput{BuyerID: "buyer-1", ListingID: over.ID, Quantity: dec("5")})
	require.NoError(t, err)
	require.True(t, f.listing(t, over.ID).QuantityRemaining.IsZero())

	_, err = f.market.Purchase(ctx, market.PurchaseInput{BuyerID: "buyer-1", ListingID: over.ID, Quantity: dec("1")})
	require.ErrorIs(t, err, apperrors.ErrListingUnavailable)
}

func TestConcurrentPurchasesNeverOversell(t *testing.T) {
	f := newFixture(t)
	l := f.verifiedListing(t, "seller-1", "5", "10")
	f.fund(t, "buyer-1", "1000")
	f.fund(t, "buyer-2", "1000")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, buyer := range []string{"buyer-1", "buyer-2"} {
		wg.Add(1)
		go func(i int, buyer string) {
			defer wg.Done()
			_, errs[i] = f.market.Purchase(context.Background(), market.PurchaseInput{BuyerID: buyer, ListingID: l.ID, Quantity: dec("3")})
		}(i, buyer)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, apperrors.ErrInsufficientQuantity):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, succeeded)
	require.True(t, f.listing(t, l.ID).QuantityRemaining.Equal(dec("2")))

	total := f.wallet(t, "buyer-1").Cash.Add(f.wallet(t, "buyer-2").Cash).Add(f.wallet(t, "seller-1").Cash)
	require.True(t, total.Equal(dec("2000")), "cash must be conserved, got %s", total)
}

func TestPurchaseRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "buyer-1", "1000")
	verified := f.verifiedListing(t, "seller-1", "5", "10")
	pending, err := f.listings.Create(ctx, listing.CreateInput{OwnerID: "seller-1", CreditType: "verra", Quantity: dec("5"), UnitPrice: dec("10")})
	require.NoError(t, err)

	cases := map[string]struct {
		in   market.PurchaseInput
		want error
	}{
		"zero quantity":   {market.PurchaseInput{BuyerID: "buyer-1", ListingID: verified.ID, Quantity: decimal.Zero}, apperrors.ErrValidation},
		"missing listing": {market.PurchaseInput{BuyerID: "buyer-1", ListingID: "nope", Quantity: dec("1")}, apperrors.ErrListingUnavailable},
		"pending listing": {market.PurchaseInput{BuyerID: "buyer-1", ListingID: pending.ID, Quantity: dec("1")}, apperrors.ErrListingUnavailable},
		"own listing":     {market.PurchaseInput{BuyerID: "seller-1", ListingID: verified.ID, Quantity: dec("1")}, apperrors.ErrValidation},
		"missing buyer":   {market.PurchaseInput{ListingID: verified.ID, Quantity: dec("1")}, apperrors.ErrValidation},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.market.Purchase(ctx, tc.in)
			require.ErrorIs(t, err, tc.want)
		})
	}
	require.True(t, f.listing(t, verified.ID).QuantityRemaining.Equal(dec("5")))
}

func TestPurchaseDuplicateClientTx(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.verifiedListing(t, "seller-1", "5", "10")
	f.fund(t, "buyer-1", "1000")

	in := market.PurchaseInput{BuyerID: "buyer-1", ListingID: l.ID, Quantity: dec("1"), ClientTxID: "order-42"}
	first, err := f.market.Purchase(ctx, in)
	require.NoError(t, err)

	again, err := f.market.Purchase(ctx, in)
	require.ErrorIs(t, err, apperrors.ErrDuplicate)
	require.Equal(t, first.Transaction.ID, again.Transaction.ID)
	require.True(t, f.listing(t, l.ID).QuantityRemaining.Equal(dec("4")))
	require.True(t, f.wallet(t, "buyer-1").Cash.Equal(dec("990")))

	// Another buyer may reuse the same client id.
	f.fund(t, "buyer-2", "1000")
	_, err = f.market.Purchase(ctx, market.PurchaseInput{BuyerID: "buyer-2", ListingID: l.ID, Quantity: dec("1"), ClientTxID: "order-42"})
	require.NoError(t, err)
}

func TestGetAndStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.verifiedListing(t, "seller-1", "5", "10")
	f.fund(t, "buyer-1", "1000")

	receipt, err := f.market.Purchase(ctx, market.PurchaseInput{BuyerID: "buyer-1", ListingID: l.ID, Quantity: dec("2")})
	require.NoError(t, err)
	id := receipt.Transaction.ID

	_, err = f.market.Get(ctx, id, "seller-1", false)
	require.NoError(t, err)
	_, err = f.market.Get(ctx, id, "stranger", false)
	require.ErrorIs(t, err, apperrors.ErrForbidden)
	_, err = f.market.Get(ctx, id, "admin-1", true)
	require.NoError(t, err)
	_, err = f.market.Get(ctx, "missing", "admin-1", true)
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	st, err := f.market.Stats(ctx, "seller-1")
	require.NoError(t, err)
	require.Equal(t, 1, st.Total)
	require.Equal(t, 1, st.Completed)
	require.True(t, st.TotalVolume.Equal(dec("20")))
	require.True(t, st.TotalCredits.Equal(dec("2")))

	st, err = f.market.Stats(ctx, "stranger")
	require.NoError(t, err)
	require.Zero(t, st.Total)
}

func TestPurchaseRejectsSubCentQuantity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.verifiedListing(t, "seller-1", "5", "1")

	_, err := f.market.Purchase(ctx, market.PurchaseInput{BuyerID: "buyer-1", ListingID: l.ID, Quantity: dec("0.004")})
	require.ErrorIs(t, err, apperrors.ErrValidation)

	buyer := f.wallet(t, "buyer-1")
	require.True(t, buyer.Credits.IsZero(), "buyer credits %s", buyer.Credits)
	require.True(t, buyer.Cash.IsZero())
	require.True(t, f.listing(t, l.ID).QuantityRemaining.Equal(dec("5")))
}

// lostAckLedger commits the first settlement but reports an infrastructure failure for it.
type lostAckLedger struct {
	ledger.Ledger
	calls int
}

func (l *lostAckLedger) Settle(ctx context.Context, s ledger.Settlement) (ledger.Receipt, error) {
	l.calls++
	receipt, err := l.Ledger.Settle(ctx, s)
	if l.calls == 1 && err == nil {
		return ledger.Receipt{}, apperrors.Unavailable(errors.New("connection reset during commit"))
	}
	return receipt, err
}

func TestPurchaseRetryDoesNotSettleTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.verifiedListing(t, "seller-1", "5", "10")
	f.fund(t, "buyer-1", "1000")

	flaky := &lostAckLedger{Ledger: f.store.Ledger()}
	svc := market.NewService(flaky, nil, nil, logging.Discard())
	receipt, err := svc.Purchase(ctx, market.PurchaseInput{BuyerID: "buyer-1", ListingID: l.ID, Quantity: dec("2")})
	require.NoError(t, err)
	require.Equal(t, 2, flaky.calls)
	require.True(t, receipt.Buyer.Cash.Equal(dec("980")), "receipt buyer cash %s", receipt.Buyer.Cash)

	require.True(t, f.wallet(t, "buyer-1").Cash.Equal(dec("980")))
	require.True(t, f.wallet(t, "seller-1").Cash.Equal(dec("20")))
	require.True(t, f.listing(t, l.ID).QuantityRemaining.Equal(dec("3")))
	txs, err := f.market.ListForAccount(ctx, "buyer-1")
	require.NoError(t, err)
	require.Len(t, txs, 1)
}

func TestSummarizeCountsCompletedVolumeOnly(t *testing.T) {
	st := market.Summarize([]ledger.Transaction{
		{Status: ledger.StatusCompleted, Quantity: dec("2"), TotalValue: dec("1600")},
		{Status: ledger.StatusPending, Quantity: dec("1"), TotalValue: dec("800")},
		{Status: ledger.StatusProcessing, Quantity: dec("1"), TotalValue: dec("800")},
	})
	require.Equal(t, 3, st.Total)
	require.Equal(t, 1, st.Completed)
	require.Equal(t, 1, st.Pending)
	require.Equal(t, 1, st.Processing)
	require.True(t, st.TotalVolume.Equal(dec("1600")), "volume %s", st.TotalVolume)
	require.True(t, st.TotalCredits.Equal(dec("4")))
}
