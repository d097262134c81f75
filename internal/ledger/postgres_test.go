package ledger_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/carbonmax/carbonmax/internal/apperrors"
	"github.com/carbonmax/carbonmax/internal/infra"
	"github.com/carbonmax/carbonmax/internal/ledger"
	"github.com/carbonmax/carbonmax/internal/listing"
	"github.com/carbonmax/carbonmax/internal/logging"
	"github.com/carbonmax/carbonmax/internal/wallet"
)

// testDatabaseEnv names a disposable database the Postgres tests may migrate and write to.
const testDatabaseEnv = "CARBONMAX_TEST_DATABASE_URL"

type pgFixture struct {
	db       *pgxpool.Pool
	ledger   *ledger.PostgresLedger
	listings *listing.PostgresRepository
	wallets  *wallet.PostgresRepository
}

func newPgFixture(t *testing.T) *pgFixture {
	t.Helper()
	url := os.Getenv(testDatabaseEnv)
	if url == "" {
		t.Skipf("%s not set", testDatabaseEnv)
	}
	require.NoError(t, infra.Migrate(url, logging.Discard()))
	db, err := infra.NewPostgresPool(context.Background(), url, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return &pgFixture{
		db:       db,
		ledger:   ledger.NewPostgresLedger(db),
		listings: listing.NewPostgresRepository(db),
		wallets:  wallet.NewPostgresRepository(db),
	}
}

func (f *pgFixture) verifiedListing(t *testing.T, owner, quantity, price string) listing.Listing {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	l := listing.Listing{
		ID:                uuid.NewString(),
		OwnerID:           owner,
		CreditType:        "verra",
		Region:            "PB",
		QuantityRemaining: decimal.RequireFromString(quantity),
		UnitPrice:         decimal.RequireFromString(price),
		Status:            listing.StatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	require.NoError(t, f.listings.Create(ctx, l))
	l, err := f.listings.TransitionStatus(ctx, l.ID, listing.StatusPending, listing.StatusVerified, uuid.NewString(), now)
	require.NoError(t, err)
	return l
}

func (f *pgFixture) fund(t *testing.T, owner, cash string) {
	t.Helper()
	_, err := f.wallets.Apply(context.Background(), owner, wallet.Amounts{Cash: decimal.RequireFromString(cash)}, time.Now())
	require.NoError(t, err)
}

func (f *pgFixture) cash(t *testing.T, owner string) decimal.Decimal {
	t.Helper()
	w, err := f.wallets.GetOrCreate(context.Background(), owner)
	require.NoError(t, err)
	return w.Cash
}

func (f *pgFixture) remaining(t *testing.T, id string) decimal.Decimal {
	t.Helper()
	l, err := f.listings.Get(context.Background(), id)
	require.NoError(t, err)
	return l.QuantityRemaining
}

func settlement(buyer, listingID, quantity, clientTx string) ledger.Settlement {
	return ledger.Settlement{
		TransactionID: uuid.NewString(),
		ClientTxID:    clientTx,
		BuyerID:       buyer,
		ListingID:     listingID,
		Quantity:      decimal.RequireFromString(quantity),
		At:            time.Now().UTC(),
	}
}

func TestPostgresSettleAndDuplicates(t *testing.T) {
	f := newPgFixture(t)
	ctx := context.Background()
	seller, buyer := uuid.NewString(), uuid.NewString()
	l := f.verifiedListing(t, seller, "5", "10")
	f.fund(t, buyer, "1000")

	first := settlement(buyer, l.ID, "2", "order-1")
	receipt, err := f.ledger.Settle(ctx, first)
	require.NoError(t, err)
	require.True(t, receipt.Transaction.TotalValue.Equal(decimal.NewFromInt(20)))
	require.True(t, f.cash(t, buyer).Equal(decimal.NewFromInt(980)))
	require.True(t, f.cash(t, seller).Equal(decimal.NewFromInt(20)))
	require.True(t, f.remaining(t, l.ID).Equal(decimal.NewFromInt(3)))

	again := settlement(buyer, l.ID, "2", "order-1")
	dup, err := f.ledger.Settle(ctx, again)
	require.ErrorIs(t, err, apperrors.ErrDuplicate)
	require.Equal(t, first.TransactionID, dup.Transaction.ID)
	require.True(t, dup.Buyer.Cash.Equal(decimal.NewFromInt(980)), "duplicate receipt carries the current wallet")

	replay := first
	replay.ClientTxID = ""
	dup, err = f.ledger.Settle(ctx, replay)
	require.ErrorIs(t, err, apperrors.ErrDuplicate)
	require.Equal(t, first.TransactionID, dup.Transaction.ID)

	require.True(t, f.cash(t, buyer).Equal(decimal.NewFromInt(980)))
	require.True(t, f.remaining(t, l.ID).Equal(decimal.NewFromInt(3)))
}

func TestPostgresSettleRechecksUnderLock(t *testing.T) {
	f := newPgFixture(t)
	ctx := context.Background()
	seller, buyer := uuid.NewString(), uuid.NewString()
	l := f.verifiedListing(t, seller, "5", "800")
	f.fund(t, buyer, "1000")

	_, err := f.ledger.Settle(ctx, settlement(buyer, l.ID, "2", ""))
	require.ErrorIs(t, err, apperrors.ErrInsufficientFunds)
	_, err = f.ledger.Settle(ctx, settlement(buyer, l.ID, "5.01", ""))
	require.ErrorIs(t, err, apperrors.ErrInsufficientQuantity)

	require.True(t, f.cash(t, buyer).Equal(decimal.NewFromInt(1000)))
	require.True(t, f.cash(t, seller).IsZero())
	require.True(t, f.remaining(t, l.ID).Equal(decimal.NewFromInt(5)))
}

func TestPostgresConcurrentSettlements(t *testing.T) {
	f := newPgFixture(t)
	ctx := context.Background()

	t.Run("one listing never oversells", func(t *testing.T) {
		seller, b1, b2 := uuid.NewString(), uuid.NewString(), uuid.NewString()
		l := f.verifiedListing(t, seller, "5", "10")
		f.fund(t, b1, "1000")
		f.fund(t, b2, "1000")

		errs := make([]error, 2)
		var wg sync.WaitGroup
		for i, buyer := range []string{b1, b2} {
			wg.Add(1)
			go func(i int, buyer string) {
				defer wg.Done()
				_, errs[i] = f.ledger.Settle(ctx, settlement(buyer, l.ID, "3", ""))
			}(i, buyer)
		}
		wg.Wait()

		ok := 0
		for _, err := range errs {
			if err == nil {
				ok++
				continue
			}
			require.ErrorIs(t, err, apperrors.ErrInsufficientQuantity)
		}
		require.Equal(t, 1, ok)
		require.True(t, f.remaining(t, l.ID).Equal(decimal.NewFromInt(2)))
	})

	t.Run("opposite purchases do not deadlock", func(t *testing.T) {
		a, b := uuid.NewString(), uuid.NewString()
		fromA := f.verifiedListing(t, a, "10", "1")
		fromB := f.verifiedListing(t, b, "10", "1")
		f.fund(t, a, "100")
		f.fund(t, b, "100")

		var wg sync.WaitGroup
		errs := make(chan error, 20)
		for i := 0; i < 10; i++ {
			wg.Add(2)
			go func() { defer wg.Done(); _, err := f.ledger.Settle(ctx, settlement(a, fromB.ID, "1", "")); errs <- err }()
			go func() { defer wg.Done(); _, err := f.ledger.Settle(ctx, settlement(b, fromA.ID, "1", "")); errs <- err }()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}
		require.True(t, f.cash(t, a).Add(f.cash(t, b)).Equal(decimal.NewFromInt(200)), "cash must be conserved")
		require.True(t, f.remaining(t, fromA.ID).IsZero())
		require.True(t, f.remaining(t, fromB.ID).IsZero())
	})

	t.Run("same client id settles once", func(t *testing.T) {
		seller, buyer := uuid.NewString(), uuid.NewString()
		l := f.verifiedListing(t, seller, "5", "10")
		f.fund(t, buyer, "1000")

		errs := make([]error, 2)
		var wg sync.WaitGroup
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = f.ledger.Settle(ctx, settlement(buyer, l.ID, "1", "order-race"))
			}(i)
		}
		wg.Wait()

		dups := 0
		for _, err := range errs {
			if errors.Is(err, apperrors.ErrDuplicate) {
				dups++
				continue
			}
			require.NoError(t, err)
		}
		require.Equal(t, 1, dups)
		require.True(t, f.cash(t, buyer).Equal(decimal.NewFromInt(990)))
		require.True(t, f.remaining(t, l.ID).Equal(decimal.NewFromInt(4)))
	})
}

func TestPostgresTransitionStatusCompareAndSet(t *testing.T) {
	f := newPgFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()
	l := listing.Listing{
		ID:                uuid.NewString(),
		OwnerID:           uuid.NewString(),
		CreditType:        "verra",
		QuantityRemaining: decimal.NewFromInt(5),
		UnitPrice:         decimal.NewFromInt(800),
		Status:            listing.StatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	require.NoError(t, f.listings.Create(ctx, l))

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, to := range []listing.Status{listing.StatusVerified, listing.StatusRejected} {
		wg.Add(1)
		go func(i int, to listing.Status) {
			defer wg.Done()
			_, errs[i] = f.listings.TransitionStatus(ctx, l.ID, listing.StatusPending, to, uuid.NewString(), now)
		}(i, to)
	}
	wg.Wait()

	applied := 0
	for _, err := range errs {
		if err == nil {
			applied++
			continue
		}
		require.ErrorIs(t, err, apperrors.ErrInvalidTransition)
	}
	require.Equal(t, 1, applied)

	got, err := f.listings.Get(ctx, l.ID)
	require.NoError(t, err)
	require.NotEqual(t, listing.StatusPending, got.Status)
	require.NotNil(t, got.VerifiedAt)
	require.ErrorIs(t, f.listings.DeletePending(ctx, l.ID), apperrors.ErrInvalidTransition)
}
