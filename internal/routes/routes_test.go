package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/carbonmax/carbonmax/internal/config"
	"github.com/carbonmax/carbonmax/internal/logging"
	"github.com/carbonmax/carbonmax/internal/metrics"
	"github.com/carbonmax/carbonmax/internal/notification"
)

type client struct {
	t   *testing.T
	app *fiber.App
}

func newApp(t *testing.T) *client {
	t.Helper()
	logger := logging.Discard()
	broker := notification.NewBroker(logger)
	t.Cleanup(broker.Shutdown)
	cfg := config.Config{
		AppName:                "carbonmax-test",
		AppEnv:                 "test",
		IdempotencyTTL:         time.Hour,
		JWTSecret:              "access",
		RefreshSecret:          "refresh",
		AccessTokenTTL:         time.Minute,
		RefreshTokenTTL:        time.Hour,
		LoginAttemptsPerMinute: 5,
		MarketPrice:            decimal.NewFromInt(800),
		NearbyRadiusKm:         50,
		AdminEmail:             "admin@carbonmax.test",
		AdminPassword:          "admin-password",
	}
	app := fiber.New()
	err := Setup(context.Background(), app, Deps{Cfg: cfg, Logger: logger, Metrics: metrics.New(), Events: broker, Broker: broker})
	require.NoError(t, err)
	return &client{t: t, app: app}
}

// do sends a JSON request and decodes the JSON response into out when non-nil.
func (c *client) do(method, path, token string, body any, out any) int {
	c.t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if method != http.MethodGet {
		req.Header.Set("Idempotency-Key", uuid.NewString())
	}
	resp, err := c.app.Test(req, -1)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		require.NoError(c.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (c *client) login(email, password string) string {
	c.t.Helper()
	var res struct {
		AccessToken string `json:"access_token"`
	}
	status := c.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": email, "password": password}, &res)
	require.Equal(c.t, http.StatusOK, status)
	return res.AccessToken
}

func (c *client) register(email, role, region string) string {
	c.t.Helper()
	body := map[string]any{"email": email, "password": "password1", "role": role, "profile": map[string]string{"region": region}}
	require.Equal(c.t, http.StatusCreated, c.do(http.MethodPost, "/api/v1/identity/register", "", body, nil))
	return c.login(email, "password1")
}

type walletBody struct {
	Credits decimal.Decimal `json:"credits"`
	Cash    decimal.Decimal `json:"cash"`
}

func TestMarketplaceRoundTrip(t *testing.T) {
	c := newApp(t)
	seller := c.register("farmer@example.com", "seller", "PB")
	buyer := c.register("steel@example.com", "buyer", "HR")
	admin := c.login("admin@carbonmax.test", "admin-password")

	var buyerMe struct {
		UserID string `json:"user_id"`
	}
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/api/v1/me", buyer, nil, &buyerMe))

	profile := map[string]any{
		"land_area":  "10",
		"crop":       "rice",
		"soil":       "alluvial",
		"practices":  []string{"organic"},
		"residue":    "no_burn",
		"irrigation": "canal",
	}
	var preview struct {
		CreditQuantity decimal.Decimal `json:"credit_quantity"`
		ProjectedValue decimal.Decimal `json:"projected_value"`
	}
	require.Equal(t, http.StatusOK, c.do(http.MethodPost, "/api/v1/estimates", buyer, profile, &preview))
	require.True(t, preview.ProjectedValue.Equal(decimal.NewFromInt(59400)))

	require.Equal(t, http.StatusForbidden, c.do(http.MethodPost, "/api/v1/estimates/submit", buyer, profile, nil))

	var sub struct {
		Listing struct {
			ID     string `json:"id"`
			Region string `json:"region"`
		} `json:"listing"`
		Wallet walletBody `json:"wallet"`
	}
	require.Equal(t, http.StatusCreated, c.do(http.MethodPost, "/api/v1/estimates/submit", seller, profile, &sub))
	require.Equal(t, "PB", sub.Listing.Region, "region defaults to the seller's profile")
	require.True(t, sub.Wallet.Credits.Equal(decimal.RequireFromString("74.25")))
	listingID := sub.Listing.ID

	var market struct {
		Count int `json:"count"`
	}
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/api/v1/listings", buyer, nil, &market))
	require.Zero(t, market.Count, "pending listings are hidden")

	require.Equal(t, http.StatusForbidden, c.do(http.MethodPost, "/api/v1/admin/listings/"+listingID+"/verify", seller, nil, nil))
	require.Equal(t, http.StatusOK, c.do(http.MethodPost, "/api/v1/admin/listings/"+listingID+"/verify", admin, nil, nil))
	require.Equal(t, http.StatusConflict, c.do(http.MethodPost, "/api/v1/admin/listings/"+listingID+"/verify", admin, nil, nil))

	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/api/v1/listings?origin=HR&max_distance_km=400", buyer, nil, &market))
	require.Equal(t, 1, market.Count)

	var located struct {
		Origin   string `json:"origin"`
		Listings []struct {
			ID         string   `json:"id"`
			DistanceKm *float64 `json:"distance_km"`
		} `json:"listings"`
	}
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/api/v1/listings", buyer, nil, &located))
	require.Equal(t, "HR", located.Origin, "origin defaults to the buyer's profile region")
	require.Len(t, located.Listings, 1)
	require.NotNil(t, located.Listings[0].DistanceKm)
	require.Greater(t, *located.Listings[0].DistanceKm, 100.0)

	purchase := map[string]any{"listing_id": listingID, "quantity": "2"}
	require.Equal(t, http.StatusUnprocessableEntity, c.do(http.MethodPost, "/api/v1/purchases", buyer, purchase, nil))

	require.Equal(t, http.StatusOK, c.do(http.MethodPost, "/api/v1/admin/wallets/"+buyerMe.UserID+"/credit", admin, map[string]string{"cash": "100000"}, nil))

	var bought struct {
		Transaction struct {
			ID         string          `json:"id"`
			TotalValue decimal.Decimal `json:"total_value"`
		} `json:"transaction"`
		Wallet walletBody `json:"wallet"`
	}
	require.Equal(t, http.StatusCreated, c.do(http.MethodPost, "/api/v1/purchases", buyer, purchase, &bought))
	require.True(t, bought.Transaction.TotalValue.Equal(decimal.NewFromInt(1600)))
	require.True(t, bought.Wallet.Cash.Equal(decimal.NewFromInt(98400)))

	var sellerWallet walletBody
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/api/v1/wallet", seller, nil, &sellerWallet))
	require.True(t, sellerWallet.Cash.Equal(decimal.NewFromInt(1600)))

	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/api/v1/transactions/"+bought.Transaction.ID, seller, nil, nil))

	var overview struct {
		TotalUsers        int             `json:"total_users"`
		TotalTransactions int             `json:"total_transactions"`
		VerifiedCredits   decimal.Decimal `json:"verified_credits"`
	}
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/api/v1/admin/overview", admin, nil, &overview))
	require.Equal(t, 3, overview.TotalUsers)
	require.Equal(t, 1, overview.TotalTransactions)
	require.True(t, overview.VerifiedCredits.Equal(decimal.RequireFromString("72.25")))
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	c := newApp(t)
	require.Equal(t, http.StatusUnauthorized, c.do(http.MethodGet, "/api/v1/wallet", "", nil, nil))
	require.Equal(t, http.StatusUnauthorized, c.do(http.MethodGet, "/api/v1/wallet", "garbage", nil, nil))

	buyer := c.register("buyer@example.com", "buyer", "")
	require.Equal(t, http.StatusOK, c.do(http.MethodPost, "/api/v1/auth/logout", buyer, nil, nil))
	require.Equal(t, http.StatusUnauthorized, c.do(http.MethodGet, "/api/v1/wallet", buyer, nil, nil))
}

func TestUnsafeRequestsNeedIdempotencyKey(t *testing.T) {
	c := newApp(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/identity/register",
		strings.NewReader(`{"email":"a@example.com","password":"password1","role":"buyer"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPublicEndpoints(t *testing.T) {
	c := newApp(t)

	var ref struct {
		Lang    string `json:"lang"`
		Regions []struct {
			Code string `json:"code"`
			Name string `json:"name"`
		} `json:"regions"`
	}
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/api/v1/reference?lang=hi", "", nil, &ref))
	require.Equal(t, "hi", ref.Lang)
	require.Equal(t, "पंजाब", ref.Regions[0].Name)

	var price struct {
		UnitPrice decimal.Decimal `json:"unit_price"`
	}
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/api/v1/market/price", "", nil, &price))
	require.True(t, price.UnitPrice.Equal(decimal.NewFromInt(800)))

	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/healthz", "", nil, nil))
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/api/v1/ping", "", nil, nil))

	resp, err := c.app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	require.Contains(t, string(body), "carbonmax_http_requests_total")
}
