package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"claimant-consumer/internal/constants"
	"claimant-consumer/internal/orchestrator"
	"claimant-consumer/pkg/health"
)

type stateSource interface {
	State() orchestrator.State
}

type statusResponse struct {
	Service   string    `json:"service"`
	State     string    `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

func registerOpsRoutes(router *gin.Engine, registry *health.CheckerRegistry, orch stateSource) {
	router.GET("/health", func(c *gin.Context) {
		h := registry.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})

	router.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, statusResponse{
			Service:   constants.ServiceName,
			State:     orch.State().String(),
			Timestamp: time.Now().UTC(),
		})
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// orchestratorChecker fails once the consume loop has stopped.
type orchestratorChecker struct {
	orch stateSource
}

func newOrchestratorChecker(orch stateSource) *orchestratorChecker {
	return &orchestratorChecker{orch: orch}
}

func (c *orchestratorChecker) Name() string { return "orchestrator" }

func (c *orchestratorChecker) Check(context.Context) error {
	if s := c.orch.State(); s == orchestrator.StateStopped {
		return fmt.Errorf("consume loop is %s", s)
	}
	return nil
}
