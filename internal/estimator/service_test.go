package estimator_test

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/carbonmax/carbonmax/internal/apperrors"
	"github.com/carbonmax/carbonmax/internal/estimator"
	"github.com/carbonmax/carbonmax/internal/listing"
	"github.com/carbonmax/carbonmax/internal/logging"
	"github.com/carbonmax/carbonmax/internal/reference"
	"github.com/carbonmax/carbonmax/internal/storage/memory"
	"github.com/carbonmax/carbonmax/internal/wallet"
)

func newSubmitFixture() (*estimator.Service, *memory.Store) {
	store := memory.NewStore()
	tables := reference.Default()
	listings := listing.NewService(store.Listings(), tables, nil, nil, logging.Discard())
	wallets := wallet.NewService(store.Wallets(), nil, logging.Discard())
	prices := estimator.StaticPriceFeed{Price: decimal.RequireFromString("800")}
	return estimator.NewService(estimator.New(tables), prices, listings, wallets, logging.Discard()), store
}

func tenHectaresOfRice() estimator.FarmProfile {
	return estimator.FarmProfile{
		LandArea:       decimal.RequireFromString("10"),
		CropCode:       "rice",
		SoilCode:       "alluvial",
		PracticeCodes:  []string{"organic"},
		ResidueCode:    "no_burn",
		IrrigationCode: "canal",
	}
}

func TestSubmitListsAndCreditsSeller(t *testing.T) {
	svc, store := newSubmitFixture()
	ctx := context.Background()

	sub, err := svc.Submit(ctx, "seller-1", estimator.SubmitInput{Profile: tenHectaresOfRice(), Region: "PB"})
	require.NoError(t, err)

	require.True(t, sub.Estimate.CreditQuantity.Equal(decimal.RequireFromString("74.25")))
	require.Equal(t, listing.StatusPending, sub.Listing.Status)
	require.Equal(t, "verra", sub.Listing.CreditType)
	require.Equal(t, "rice", sub.Listing.CropCode)
	require.True(t, sub.Listing.UnitPrice.Equal(decimal.RequireFromString("800")))
	require.True(t, sub.Listing.QuantityRemaining.Equal(sub.Estimate.CreditQuantity))

	w, err := store.Wallets().GetOrCreate(ctx, "seller-1")
	require.NoError(t, err)
	require.True(t, w.Credits.Equal(decimal.RequireFromString("74.25")), "wallet credits %s", w.Credits)
	require.True(t, w.Cash.IsZero())
}

func TestSubmitUsesAskingPrice(t *testing.T) {
	svc, _ := newSubmitFixture()
	sub, err := svc.Submit(context.Background(), "seller-1", estimator.SubmitInput{
		Profile:    tenHectaresOfRice(),
		CreditType: "gold",
		UnitPrice:  decimal.RequireFromString("950"),
	})
	require.NoError(t, err)
	require.Equal(t, "gold", sub.Listing.CreditType)
	require.True(t, sub.Listing.UnitPrice.Equal(decimal.RequireFromString("950")))
}

func TestSubmitRejectsZeroEstimate(t *testing.T) {
	svc, store := newSubmitFixture()
	ctx := context.Background()
	tiny := estimator.FarmProfile{
		LandArea:       decimal.RequireFromString("0.001"),
		CropCode:       "vegetables",
		SoilCode:       "laterite",
		ResidueCode:    "burning",
		IrrigationCode: "tubewell",
	}

	_, err := svc.Submit(ctx, "seller-1", estimator.SubmitInput{Profile: tiny})
	require.True(t, errors.Is(err, apperrors.ErrValidation), "got %v", err)

	listed, err := store.Listings().List(ctx, listing.Query{OwnerID: "seller-1"})
	require.NoError(t, err)
	require.Empty(t, listed)
}

func TestSubmitRejectsUnknownRegion(t *testing.T) {
	svc, store := newSubmitFixture()
	ctx := context.Background()

	_, err := svc.Submit(ctx, "seller-1", estimator.SubmitInput{Profile: tenHectaresOfRice(), Region: "ZZ"})
	require.True(t, errors.Is(err, apperrors.ErrValidation), "got %v", err)

	w, err := store.Wallets().GetOrCreate(ctx, "seller-1")
	require.NoError(t, err)
	require.True(t, w.Credits.IsZero())
}

type failingWallets struct{ err error }

func (f failingWallets) Credit(context.Context, string, wallet.Amounts) (wallet.Wallet, error) {
	return wallet.Wallet{}, f.err
}

func TestSubmitWithdrawsListingWhenCreditFails(t *testing.T) {
	store := memory.NewStore()
	tables := reference.Default()
	listings := listing.NewService(store.Listings(), tables, nil, nil, logging.Discard())
	prices := estimator.StaticPriceFeed{Price: decimal.RequireFromString("800")}
	down := apperrors.Unavailable(errors.New("wallet store down"))
	svc := estimator.NewService(estimator.New(tables), prices, listings, failingWallets{err: down}, logging.Discard())
	ctx := context.Background()

	_, err := svc.Submit(ctx, "seller-1", estimator.SubmitInput{Profile: tenHectaresOfRice(), Region: "PB"})
	require.ErrorIs(t, err, apperrors.ErrUnavailable)

	listed, err := store.Listings().List(ctx, listing.Query{OwnerID: "seller-1"})
	require.NoError(t, err)
	require.Empty(t, listed, "a failed submission must not leave a pending listing behind")

	w, err := store.Wallets().GetOrCreate(ctx, "seller-1")
	require.NoError(t, err)
	require.True(t, w.Credits.IsZero())

	// A retry with a working wallet produces exactly one listing.
	retry := estimator.NewService(estimator.New(tables), prices, listings, wallet.NewService(store.Wallets(), nil, logging.Discard()), logging.Discard())
	_, err = retry.Submit(ctx, "seller-1", estimator.SubmitInput{Profile: tenHectaresOfRice(), Region: "PB"})
	require.NoError(t, err)
	listed, err = store.Listings().List(ctx, listing.Query{OwnerID: "seller-1"})
	require.NoError(t, err)
	require.Len(t, listed, 1)
}

func TestRedisPriceFeed(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	ctx := context.Background()

	feed := estimator.NewRedisPriceFeed(client, decimal.RequireFromString("800"), logging.Discard())

	price, err := feed.CurrentPrice(ctx)
	require.NoError(t, err)
	require.True(t, price.Equal(decimal.RequireFromString("800")), "expected fallback, got %s", price)

	require.NoError(t, feed.Publish(ctx, decimal.RequireFromString("825.50")))
	price, err = feed.CurrentPrice(ctx)
	require.NoError(t, err)
	require.True(t, price.Equal(decimal.RequireFromString("825.5")), "got %s", price)

	require.ErrorIs(t, feed.Publish(ctx, decimal.Zero), apperrors.ErrValidation)

	mr.Close()
	price, err = feed.CurrentPrice(ctx)
	require.NoError(t, err)
	require.True(t, price.Equal(decimal.RequireFromString("800")), "expected fallback when redis is down, got %s", price)
}
