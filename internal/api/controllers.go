package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"sentinel-core/internal/monitor"
	"sentinel-core/internal/performance"
	"sentinel-core/internal/strategy"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

// getRisk returns the risk gate snapshot.
func (s *Server) getRisk(c *gin.Context) {
	c.JSON(http.StatusOK, s.Engine.RiskStatus())
}

type metricsResponse struct {
	performance.Summary
	System monitor.MetricsSnapshot `json:"system"`
}

// getMetrics returns trade performance plus loop metrics.
func (s *Server) getMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, metricsResponse{
		Summary: s.Engine.Performance(),
		System:  s.Engine.Metrics(),
	})
}

// getTradeHistory returns recent trades newest first. Invalid limits fall
// back to the default.
func (s *Server) getTradeHistory(c *gin.Context) {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	trades := s.Engine.RecentTrades(limit)
	c.JSON(http.StatusOK, gin.H{"trades": trades, "count": len(trades)})
}

func (s *Server) getStrategies(c *gin.Context) {
	c.JSON(http.StatusOK, s.Engine.Strategies())
}

func (s *Server) getAssets(c *gin.Context) {
	c.JSON(http.StatusOK, s.Engine.Assets())
}

type decision struct {
	Asset      string          `json:"asset"`
	Signal     strategy.Signal `json:"signal"`
	StrategyID int             `json:"strategyId"`
	Confidence float64         `json:"confidence"`
	Reason     string          `json:"reason"`
	Timestamp  time.Time       `json:"timestamp"`
}

// getLive is the dashboard's polling view: loop status, the last trade and
// the ten most recent decisions.
func (s *Server) getLive(c *gin.Context) {
	st := s.Engine.SystemStatus()
	m := s.Engine.Metrics()
	recent := s.Engine.RecentTrades(10)

	decisions := make([]decision, 0, len(recent))
	for _, t := range recent {
		decisions = append(decisions, decision{
			Asset:      t.TokenIn + "/" + t.TokenOut,
			Signal:     t.SignalType,
			StrategyID: t.StrategyID,
			Confidence: t.Confidence,
			Reason:     t.Reason,
			Timestamp:  t.Timestamp,
		})
	}

	resp := gin.H{
		"timestamp":       st.ServerTime,
		"status":          "running",
		"currentCycle":    m.TotalCycles,
		"uptime":          m.Uptime,
		"killSwitch":      st.KillSwitch,
		"autoTrading":     st.AutoTrading,
		"assets":          st.Assets,
		"recentDecisions": decisions,
	}
	if len(recent) > 0 {
		last := recent[0]
		resp["lastExecution"] = last.Timestamp
		resp["currentAsset"] = last.AssetID
		resp["currentStrategy"] = last.StrategyID
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) resetKillSwitch(c *gin.Context) {
	s.Engine.ResetKillSwitch(c.Request.Context())
	log.Warn().Str("operator", CurrentOperator(c)).Msg("kill switch reset via API")
	c.JSON(http.StatusOK, s.Engine.RiskStatus())
}

func (s *Server) activateKillSwitch(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "manual activation"
	}
	op := CurrentOperator(c)
	s.Engine.ActivateKillSwitch(c.Request.Context(), reason+" (by "+op+")")
	log.Warn().Str("operator", op).Str("reason", reason).Msg("kill switch activated via API")
	c.JSON(http.StatusOK, s.Engine.RiskStatus())
}
