package service

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const (
	requestIDHeader = "X-Request-ID"
	maxWebhookBody  = 1 << 20
)

// RouterOptions 控制路由注册
type RouterOptions struct {
	// MockMode 为 true 时注册 /api/wechat/mock_scan
	MockMode bool
	Log      *logrus.Logger
}

type sceneRequest struct {
	Scene string `json:"scene" binding:"required"`
}

type mockScanRequest struct {
	Scene  string `json:"scene" binding:"required"`
	OpenID string `json:"openid"`
}

// NewRouter 注册扫码登录相关的 HTTP 接口
func NewRouter(svc *LoginService, opts RouterOptions) *gin.Engine {
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	r := gin.New()
	r.Use(requestLogger(log), gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.GET("/wechat/get_qr_code", getQRCode(svc))
		api.GET("/wechat/callback", verifyServer(svc))
		api.POST("/wechat/callback", receiveMessage(svc))
		api.POST("/wechat/check_login", checkLogin(svc))
		api.GET("/user/status", requireLogin(svc), userStatus)
		if opts.MockMode {
			api.POST("/wechat/mock_scan", mockScan(svc))
		}
	}
	return r
}

func getQRCode(svc *LoginService) gin.HandlerFunc {
	return func(c *gin.Context) {
		qr, err := svc.IssueQRCode(c.Request.Context())
		if err != nil {
			msg := ErrQRCode.Error()
			if errors.Is(err, ErrAccessToken) {
				msg = ErrAccessToken.Error()
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":      "success",
			"qr_code_url": qr.URL,
			"scene":       qr.Scene,
		})
	}
}

// verifyServer 处理公众号后台配置服务器地址时的校验请求
func verifyServer(svc *LoginService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !checkSignature(c, svc) {
			return
		}
		c.String(http.StatusOK, c.Query("echostr"))
	}
}

// receiveMessage 接收微信推送，签名通过后无论处理结果如何都回复 success
func receiveMessage(svc *LoginService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !checkSignature(c, svc) {
			return
		}
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			svc.log.WithError(err).Warn("读取微信推送失败")
		} else {
			svc.HandleMessage(c.Request.Context(), body)
		}
		c.String(http.StatusOK, "success")
	}
}

func checkSignature(c *gin.Context, svc *LoginService) bool {
	if svc.VerifySignature(c.Query("signature"), c.Query("timestamp"), c.Query("nonce")) {
		return true
	}
	c.String(http.StatusForbidden, "signature check failed")
	c.Abort()
	return false
}

func checkLogin(svc *LoginService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req sceneRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, gin.H{
				"status":       "error",
				"is_logged_in": false,
				"message":      "无效的场景值",
			})
			return
		}

		rec, ok := svc.CheckLogin(req.Scene)
		if !ok {
			c.JSON(http.StatusOK, gin.H{
				"status":       "success",
				"is_logged_in": false,
				"user_info":    nil,
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":       "success",
			"is_logged_in": true,
			"user_info":    rec.Profile,
		})
	}
}

const userIDKey = "user_id"

// requireLogin 要求请求携带已登录的场景值，body 中的 scene 优先，其次是查询参数
func requireLogin(svc *LoginService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req sceneRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			req.Scene = c.Query("scene")
		}
		userID, err := svc.Authenticate(req.Scene)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

func userStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"user_id": c.GetString(userIDKey),
	})
}

func mockScan(svc *LoginService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req mockScanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "缺少 scene"})
			return
		}
		if err := svc.SimulateScan(c.Request.Context(), req.Scene, req.OpenID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "success", "scene": req.Scene})
	}
}

// requestLogger 为每个请求分配 request id 并输出访问日志
func requestLogger(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := c.GetHeader(requestIDHeader)
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Header(requestIDHeader, reqID)

		c.Next()

		entry := log.WithFields(logrus.Fields{
			"request_id": reqID,
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency":    time.Since(start).String(),
			"client_ip":  c.ClientIP(),
		})
		if len(c.Errors) > 0 {
			entry.Warn(c.Errors.String())
			return
		}
		entry.Info("请求完成")
	}
}
