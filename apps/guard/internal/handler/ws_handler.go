package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"EduServer/apps/guard/internal/dto"
	"EduServer/apps/guard/internal/manager"
	"EduServer/apps/guard/internal/middleware"
	"EduServer/apps/guard/internal/realtime"
	"EduServer/apps/guard/internal/repository"
	"EduServer/apps/guard/internal/service"
	"EduServer/pkg/ctxmeta"
	"EduServer/pkg/logger"
	"EduServer/pkg/util"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	// ws 帧内的错误码，不是 HTTP 状态码
	wsMessageInvalidFormatCode = 10001
	wsMessageUnsupportedCode   = 10002

	terminalFlushTimeout = time.Second
)

var (
	errTokenRequired       = errors.New("token is required")
	errFingerprintRequired = errors.New("fingerprint is required")
	errTokenInvalid        = errors.New("token is invalid")
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// 允许任意来源，Web 与桌面端共用
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// Envelope ws 上下行通用帧
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ErrorData type=error 时的 data
type ErrorData struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ackLogoutData 客户端处理完强制下线后回传的时间戳（毫秒）
type ackLogoutData struct {
	At int64 `json:"at"`
}

// wsSession 鉴权后的连接身份
type wsSession struct {
	AccountID   string
	Fingerprint string
	ClientIP    string
	LoginAt     time.Time
	LastAck     time.Time
}

// WSHandler /ws 实时安全通道：每条连接一个对账会话，把事件推给客户端
type WSHandler struct {
	connManager *manager.ConnectionManager
	jwt         *util.JWTManager
	device      service.DeviceService
	store       repository.DocumentStore
	cache       *realtime.BanCache
	grace       time.Duration
}

func NewWSHandler(
	connManager *manager.ConnectionManager,
	jwt *util.JWTManager,
	device service.DeviceService,
	store repository.DocumentStore,
	cache *realtime.BanCache,
	grace time.Duration,
) *WSHandler {
	return &WSHandler{
		connManager: connManager,
		jwt:         jwt,
		device:      device,
		store:       store,
		cache:       cache,
		grace:       grace,
	}
}

// ServeWS GET /ws?token=&fingerprint=&loginAt=&ack=
// loginAt 与 ack 为毫秒时间戳，来自设备登记结果和客户端本地保存的最近一次确认
func (h *WSHandler) ServeWS(c *gin.Context) {
	sess, err := h.authenticate(c)
	if err != nil {
		h.writeAuthError(c, err)
		return
	}

	connCtx := context.Background()
	if traceID := ctxmeta.TraceIDFromGin(c); traceID != "" {
		connCtx = ctxmeta.WithTraceID(connCtx, traceID)
	}
	connCtx = ctxmeta.WithAccountID(connCtx, sess.AccountID)
	connCtx = ctxmeta.WithDeviceID(connCtx, sess.Fingerprint)
	connCtx = ctxmeta.WithClientIP(connCtx, sess.ClientIP)

	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn(connCtx, "WebSocket 升级失败",
			logger.ErrorField("error", err),
		)
		return
	}

	h.handleConnection(connCtx, conn, sess)
}

func (h *WSHandler) authenticate(c *gin.Context) (*wsSession, error) {
	token := strings.TrimSpace(c.Query("token"))
	fingerprint := strings.TrimSpace(c.Query("fingerprint"))
	if token == "" {
		return nil, errTokenRequired
	}
	if fingerprint == "" {
		return nil, errFingerprintRequired
	}
	claims, err := h.jwt.ParseToken(token)
	if err != nil || claims.AccountID == "" {
		return nil, errTokenInvalid
	}

	loginMs, _ := strconv.ParseInt(c.Query("loginAt"), 10, 64)
	ackMs, _ := strconv.ParseInt(c.Query("ack"), 10, 64)
	return &wsSession{
		AccountID:   claims.AccountID,
		Fingerprint: fingerprint,
		ClientIP:    middleware.ClientIPFromGinContext(c),
		LoginAt:     dto.MillisToTime(loginMs),
		LastAck:     dto.MillisToTime(ackMs),
	}, nil
}

// handleConnection 同设备重复连接时新连接替换旧连接。
// 终止事件写出后关闭连接；断开时经异步池把设备标记为离线。
func (h *WSHandler) handleConnection(ctx context.Context, conn *websocket.Conn, sess *wsSession) {
	client := manager.NewClient(conn, sess.AccountID, sess.Fingerprint)
	replaced, ok := h.connManager.Register(client)
	if !ok {
		client.CloseWithReason(websocket.CloseGoingAway, "server_shutdown")
		return
	}
	if replaced != nil {
		replaced.Close()
	}

	security := realtime.NewSession(realtime.SessionConfig{
		AccountID:       sess.AccountID,
		Fingerprint:     sess.Fingerprint,
		LoginAt:         sess.LoginAt,
		LastAckLogoutAt: sess.LastAck,
		GracePeriod:     h.grace,
	}, h.store, h.device, h.cache)

	sessCtx, cancel := context.WithCancel(ctx)
	go func() {
		if err := security.Run(sessCtx); err != nil {
			logger.Warn(ctx, "订阅账号安全文档失败", logger.ErrorField("error", err))
			client.Close()
		}
	}()
	go h.forward(ctx, client, security)

	h.device.MarkPresence(ctx, sess.AccountID, sess.Fingerprint, true)
	logger.Info(ctx, "WebSocket 连接已建立",
		logger.String("client_ip", sess.ClientIP),
		logger.Int("online_count", h.connManager.Count()),
	)

	client.Run(ctx, func(raw []byte) {
		h.handleMessage(ctx, client, security, sess, raw)
	}, func() {
		cancel()
		h.connManager.Unregister(client)
		h.device.MarkPresence(ctx, sess.AccountID, sess.Fingerprint, false)
		logger.Info(ctx, "WebSocket 连接已断开",
			logger.Int("online_count", h.connManager.Count()),
		)
	})
}

// forward 把会话事件写给客户端，终止事件后关闭连接
func (h *WSHandler) forward(ctx context.Context, client *manager.Client, security *realtime.Session) {
	for ev := range security.Events() {
		payload, err := marshalEnvelope(string(ev.Type), ev)
		if err != nil {
			logger.Warn(ctx, "安全事件序列化失败", logger.ErrorField("error", err))
			continue
		}
		if !client.Enqueue(payload) {
			client.Close()
			return
		}
		if ev.Terminal {
			client.Flush(terminalFlushTimeout)
			client.CloseWithReason(websocket.CloseNormalClosure, string(ev.Type))
			return
		}
	}
	// 订阅结束但没有终止事件，让客户端重连
	client.Close()
}

// handleMessage 上行帧：heartbeat 续期在线状态，ack_logout 推进已确认的强制下线时间
func (h *WSHandler) handleMessage(ctx context.Context, client *manager.Client, security *realtime.Session, sess *wsSession, raw []byte) {
	envelope, err := parseEnvelope(raw)
	if err != nil {
		sendErrorFrame(ctx, client, wsMessageInvalidFormatCode, "invalid frame format")
		return
	}

	switch envelope.Type {
	case "heartbeat":
		h.device.MarkPresence(ctx, sess.AccountID, sess.Fingerprint, true)
		sendFrame(ctx, client, "heartbeat_ack", nil)
	case "ack_logout":
		var data ackLogoutData
		if len(envelope.Data) == 0 || json.Unmarshal(envelope.Data, &data) != nil || data.At <= 0 {
			sendErrorFrame(ctx, client, wsMessageInvalidFormatCode, "invalid ack_logout data")
			return
		}
		security.Ack(time.UnixMilli(data.At))
	default:
		sendErrorFrame(ctx, client, wsMessageUnsupportedCode, "unsupported message type")
	}
}

func parseEnvelope(raw []byte) (*Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, err
	}
	envelope.Type = strings.TrimSpace(envelope.Type)
	if envelope.Type == "" {
		return nil, errors.New("type is required")
	}
	return &envelope, nil
}

// marshalEnvelope data=nil 时省略 data 字段
func marshalEnvelope(msgType string, data any) ([]byte, error) {
	envelope := map[string]any{
		"type": msgType,
	}
	if data != nil {
		envelope["data"] = data
	}
	return json.Marshal(envelope)
}

func sendFrame(ctx context.Context, client *manager.Client, msgType string, data any) {
	payload, err := marshalEnvelope(msgType, data)
	if err != nil {
		logger.Warn(ctx, "下行帧序列化失败",
			logger.String("type", msgType),
			logger.ErrorField("error", err),
		)
		return
	}
	if !client.Enqueue(payload) {
		client.Close()
	}
}

func sendErrorFrame(ctx context.Context, client *manager.Client, code int, message string) {
	sendFrame(ctx, client, "error", ErrorData{Code: code, Message: message})
}

// writeAuthError 握手阶段还未升级，用 HTTP JSON 返回
func (h *WSHandler) writeAuthError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errTokenRequired), errors.Is(err, errFingerprintRequired):
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": err.Error(),
		})
	case errors.Is(err, errTokenInvalid):
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":    http.StatusUnauthorized,
			"message": "token invalid or expired",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "internal error",
		})
	}
}
