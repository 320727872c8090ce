package router

import (
	"net/http"

	"github.com/estatehub/backend/internal/auth"
	"github.com/estatehub/backend/internal/handlers"
	"github.com/estatehub/backend/internal/middleware"
)

// New returns the /v1 API. Chains: BearerAuth -> (RequireRole on admin
// routes) -> handler. The payment callback authenticates by signature and
// the websocket stream is public.
func New(h *handlers.AuctionHandler, ws http.HandlerFunc, tokens middleware.TokenValidator) http.Handler {
	mux := http.NewServeMux()
	authed := middleware.BearerAuth(tokens)
	admin := func(next http.Handler) http.Handler {
		return authed(middleware.RequireRole(auth.RoleAdmin)(next))
	}

	mux.Handle("POST /v1/auctions", admin(http.HandlerFunc(h.CreateAuction)))
	mux.Handle("GET /v1/auctions/{id}", authed(http.HandlerFunc(h.GetAuction)))
	mux.Handle("POST /v1/auctions/{id}/bids", authed(http.HandlerFunc(h.PlaceBid)))
	mux.Handle("GET /v1/auctions/{id}/bids", authed(http.HandlerFunc(h.ListBids)))
	mux.Handle("POST /v1/auctions/{id}/deposits", authed(http.HandlerFunc(h.RequestDeposit)))
	mux.Handle("POST /v1/auctions/{id}/cancel", admin(http.HandlerFunc(h.CancelAuction)))
	mux.Handle("GET /v1/wallet", authed(http.HandlerFunc(h.GetWallet)))

	mux.HandleFunc("POST /v1/payments/callback", h.PaymentCallback)
	mux.HandleFunc("GET /v1/ws", ws)
	mux.HandleFunc("GET /healthz", handlers.Healthz)
	return mux
}
