package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/speedhud/gohud/internal/app"
	"github.com/speedhud/gohud/pkg/config"
)

var log = logrus.WithField("component", "server")

// Server is the HUD control plane: a JSON API over the pipeline, a
// websocket push feed and the built-in dashboard page.
type Server struct {
	cfg *config.Config
	app *app.App
	hub *hub
	srv *http.Server
}

func New(cfg *config.Config, application *app.App) *Server {
	return &Server{
		cfg: cfg,
		app: application,
		hub: newHub(application),
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/", s.handleUI)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	api := r.Group("/api")
	api.GET("/status", s.handleStatus)
	api.PUT("/units", s.handleSetUnits)
	api.GET("/config", s.handleConfig)
	api.GET("/live", s.handleLive)

	trips := api.Group("/trips")
	trips.GET("", s.handleTripsList)
	trips.GET("/:tripID", s.handleTripGet)
	trips.GET("/:tripID/points", s.handleTripPoints)

	return r
}

// Start listens on the configured address and serves until ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Server.Listen, err)
	}

	s.hub.start(ctx)
	s.srv = &http.Server{Handler: s.Router()}

	go func() {
		<-ctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shCtx)
	}()
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("http server: %v", err)
		}
	}()

	log.Infof("control plane on http://%s", ln.Addr())
	return nil
}
