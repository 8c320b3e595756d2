// Package admin 运营侧HTTP接口: 建期、强制开奖、取消、算法开关。
// 与买家侧GraphQL分端口部署，方便在网关层做不同的访问控制。
package admin

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yiyuanduobao/duobao/internal/algorithm"
	"github.com/yiyuanduobao/duobao/internal/lifecycle"
	"github.com/yiyuanduobao/duobao/internal/model"
	"github.com/yiyuanduobao/duobao/internal/repository"
)

// Server 运营侧HTTP服务
type Server struct {
	controller *lifecycle.Controller
	registry   *algorithm.Registry
	engine     *gin.Engine
}

// NewServer 创建运营侧服务
func NewServer(ctrl *lifecycle.Controller, registry *algorithm.Registry) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		controller: ctrl,
		registry:   registry,
		engine:     gin.New(),
	}
	s.engine.Use(gin.Recovery())
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	g := s.engine.Group("/admin")
	{
		g.POST("/rounds", s.createRound)
		g.POST("/rounds/:code/draw", s.forceDraw)
		g.POST("/rounds/:code/cancel", s.cancelRound)
		g.GET("/algorithms", s.listAlgorithms)
		g.PUT("/algorithms/:name/default", s.setDefaultAlgorithm)
		g.PUT("/algorithms/:name/active", s.setAlgorithmActive)
	}
}

// Start 启动运营侧服务
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	log.Printf("运营侧服务已启动, 地址: %s", addr)
	return s.engine.Run(addr)
}

type createRoundRequest struct {
	UnitPrice   int64  `json:"unitPrice" binding:"required"`
	Currency    string `json:"currency"`
	TotalShares int    `json:"totalShares" binding:"required"`
	UserCap     *int   `json:"userCap"` // 为空表示不限购
	BuyoutPrice int64  `json:"buyoutPrice"`
	StartAt     string `json:"startAt" binding:"required"` // RFC3339
	EndAt       string `json:"endAt" binding:"required"`
}

func (s *Server) createRound(c *gin.Context) {
	var req createRoundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("请求参数错误: %v", err)})
		return
	}

	startAt, err := time.Parse(time.RFC3339, req.StartAt)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "开始时间格式错误，应为RFC3339"})
		return
	}
	endAt, err := time.Parse(time.RFC3339, req.EndAt)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "结束时间格式错误，应为RFC3339"})
		return
	}

	userCap := model.UnlimitedCap()
	if req.UserCap != nil {
		if *req.UserCap <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "限购份数必须大于0"})
			return
		}
		userCap = model.CapOf(*req.UserCap)
	}

	currency := req.Currency
	if currency == "" {
		currency = "CNY"
	}

	round, err := s.controller.CreateRound(c.Request.Context(), &model.NewRoundInput{
		UnitPrice:   req.UnitPrice,
		Currency:    currency,
		TotalShares: req.TotalShares,
		UserCap:     userCap,
		BuyoutPrice: req.BuyoutPrice,
		StartAt:     startAt,
		EndAt:       endAt,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, round)
}

func (s *Server) forceDraw(c *gin.Context) {
	code := c.Param("code")

	result, err := s.controller.Draw(c.Request.Context(), code, true)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, repository.ErrRoundNotFound):
			status = http.StatusNotFound
		case errors.Is(err, repository.ErrRoundNotActive):
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	if result == nil {
		// 并发竞争中落败，结果已由别处写入
		c.JSON(http.StatusConflict, gin.H{"error": "开奖已由其他请求完成"})
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) cancelRound(c *gin.Context) {
	code := c.Param("code")

	err := s.controller.Cancel(c.Request.Context(), code)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, repository.ErrRoundNotFound):
			status = http.StatusNotFound
		case errors.Is(err, lifecycle.ErrRoundDrawn):
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "cancelled", "periodCode": code})
}

func (s *Server) listAlgorithms(c *gin.Context) {
	algos, err := s.registry.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, algos)
}

func (s *Server) setDefaultAlgorithm(c *gin.Context) {
	name := c.Param("name")

	if err := s.registry.SetDefault(c.Request.Context(), name); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, repository.ErrAlgorithmNotFound):
			status = http.StatusNotFound
		case errors.Is(err, repository.ErrAlgorithmInactive):
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "default": name})
}

type setActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

func (s *Server) setAlgorithmActive(c *gin.Context) {
	name := c.Param("name")

	var req setActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("请求参数错误: %v", err)})
		return
	}

	if err := s.registry.SetActive(c.Request.Context(), name, *req.Active); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repository.ErrAlgorithmNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "name": name, "active": *req.Active})
}
