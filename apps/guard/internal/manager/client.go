package manager

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultSendQueueSize = 64
	wsWriteTimeout       = 5 * time.Second
	wsCloseGrace         = time.Second
)

// MessageHandler 上行帧回调
type MessageHandler func(raw []byte)

// CloseHandler 读写循环退出后执行
type CloseHandler func()

// Client 封装单条 WebSocket 连接，按 账号+设备指纹 标识。
// send 队列削峰，done 统一关闭信号，once 保证 Close 幂等。
type Client struct {
	conn        *websocket.Conn
	accountID   string
	fingerprint string
	send        chan []byte
	pending     atomic.Int64 // 已入队但尚未写完的消息数
	done        chan struct{}
	once        sync.Once
	closeOnce   sync.Once
}

func NewClient(conn *websocket.Conn, accountID, fingerprint string) *Client {
	return &Client{
		conn:        conn,
		accountID:   accountID,
		fingerprint: fingerprint,
		send:        make(chan []byte, defaultSendQueueSize),
		done:        make(chan struct{}),
	}
}

// Key account_id:fingerprint
func (c *Client) Key() string {
	return buildKey(c.accountID, c.fingerprint)
}

func (c *Client) AccountID() string {
	return c.accountID
}

func (c *Client) Fingerprint() string {
	return c.fingerprint
}

func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Enqueue 返回 false 表示连接已关闭或队列已满
func (c *Client) Enqueue(msg []byte) bool {
	if len(msg) == 0 {
		return true
	}
	cloned := append([]byte(nil), msg...)
	c.pending.Add(1)
	select {
	case <-c.done:
	case c.send <- cloned:
		return true
	default:
	}
	c.pending.Add(-1)
	return false
}

// Run 启动写循环并在当前 goroutine 读，直到断连
func (c *Client) Run(ctx context.Context, onMessage MessageHandler, onClose CloseHandler) {
	defer func() {
		c.Close()
		if onClose != nil {
			onClose()
		}
	}()

	go c.writeLoop(ctx)
	c.readLoop(ctx, onMessage)
}

// CloseWithReason 先发送 close 帧再关闭连接，客户端可据此区分主动下线
func (c *Client) CloseWithReason(code int, reason string) {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(code, reason)
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsCloseGrace))
	})
	c.Close()
}

func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *Client) readLoop(ctx context.Context, onMessage MessageHandler) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
		}

		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		if onMessage != nil {
			onMessage(raw)
		}
	}
}

// writeLoop 每次写设置超时，慢连接直接断开
func (c *Client) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			err := c.conn.WriteMessage(websocket.TextMessage, msg)
			c.pending.Add(-1)
			if err != nil {
				c.Close()
				return
			}
		}
	}
}

// Flush 等待已入队的消息全部写出，最多等待 timeout。终止事件发送后关闭前调用。
func (c *Client) Flush(timeout time.Duration) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for c.pending.Load() > 0 {
		select {
		case <-c.done:
			return
		case <-deadline.C:
			return
		case <-tick.C:
		}
	}
}
