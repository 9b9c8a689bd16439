// Package http exposes the auction engine over REST plus a websocket feed.
// Identity arrives as an X-User-Id header set by the upstream gateway.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Server struct {
	srv *http.Server
}

func NewServer(addr string, h *Handler) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/auctions", func(r chi.Router) {
		r.Post("/", h.CreateAuction)
		r.Get("/{auctionId}", h.GetAuction)
		r.Get("/{auctionId}/bids", h.ListBids)
		r.Post("/{auctionId}/bids", h.PlaceBid)
		r.Get("/{auctionId}/relists", h.ListRelists)
	})

	r.Route("/wins", func(r chi.Router) {
		r.Get("/{winId}", h.GetWin)
		r.Post("/{winId}/claim", h.ClaimWin)
		r.Post("/{winId}/pay", h.PayWin)
	})

	r.Get("/ws/auctions/{auctionId}", h.Feed)

	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

func (s *Server) Start() error {
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
