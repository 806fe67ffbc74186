package server

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/speedhud/gohud/internal/domain"
)

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"display":     s.app.State().Load(),
		"trip":        s.app.Recorder().CurrentTrip(),
		"odometer_km": math.Round(s.app.Odometer().TotalMeters()/100) / 10,
	})
}

type setUnitsRequest struct {
	Unit string `json:"unit"`
}

func (s *Server) handleSetUnits(c *gin.Context) {
	var req setUnitsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}
	unit, err := domain.ParseUnit(req.Unit)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"display": s.app.SetUnit(unit)})
}

func (s *Server) handleConfig(c *gin.Context) {
	cfg := s.app.Config()
	c.JSON(http.StatusOK, gin.H{
		"source":              cfg.Source.ID,
		"unit":                s.app.State().Load().Unit,
		"window_size":         cfg.Estimator.WindowSize,
		"throttle_distance_m": cfg.Throttle.DistanceM,
		"throttle_interval_s": cfg.Throttle.IntervalS,
		"lookup_enabled":      cfg.Lookup.Enabled,
		"power_gate":          cfg.Power.Enabled,
	})
}

func (s *Server) handleTripsList(c *gin.Context) {
	trips, err := s.app.Recorder().ListTrips(c.Request.Context(), queryLimit(c, 50))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trips": trips})
}

func (s *Server) handleTripGet(c *gin.Context) {
	trip, err := s.app.Recorder().GetTrip(c.Request.Context(), c.Param("tripID"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if trip == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "trip not found"})
		return
	}
	c.JSON(http.StatusOK, trip)
}

func (s *Server) handleTripPoints(c *gin.Context) {
	tripID := c.Param("tripID")
	trip, err := s.app.Recorder().GetTrip(c.Request.Context(), tripID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if trip == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "trip not found"})
		return
	}

	points, err := s.app.Recorder().TripPoints(c.Request.Context(), tripID, queryLimit(c, 2000))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trip_id": tripID, "points": points})
}

func queryLimit(c *gin.Context, def int) int {
	v := c.Query("limit")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
