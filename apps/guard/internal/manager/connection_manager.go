package manager

import (
	"sync"

	"EduServer/apps/guard/internal/service"

	"github.com/gorilla/websocket"
)

// ConnectionManager 管理所有在线 WebSocket 连接。
// byKey(account_id:fingerprint) 定位单设备，byAccount(account_id -> fingerprint -> client) 按账号广播。
type ConnectionManager struct {
	mu        sync.RWMutex
	byKey     map[string]*Client
	byAccount map[string]map[string]*Client
	shutdown  bool
}

func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		byKey:     make(map[string]*Client),
		byAccount: make(map[string]map[string]*Client),
	}
}

// Register 注册设备连接，返回被替换的旧连接，调用方负责关闭。
// 已停机时返回 ok=false。
func (m *ConnectionManager) Register(client *Client) (replaced *Client, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shutdown {
		return nil, false
	}

	key := client.Key()
	if old, exists := m.byKey[key]; exists && old != client {
		replaced = old
	}

	m.byKey[key] = client
	conns, exists := m.byAccount[client.AccountID()]
	if !exists {
		conns = make(map[string]*Client)
		m.byAccount[client.AccountID()] = conns
	}
	conns[client.Fingerprint()] = client
	return replaced, true
}

// Unregister 只有当前登记的正是该连接时才删除，避免误删并发替换进来的新连接
func (m *ConnectionManager) Unregister(client *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := client.Key()
	current, ok := m.byKey[key]
	if !ok || current != client {
		return
	}

	delete(m.byKey, key)
	if conns, ok := m.byAccount[client.AccountID()]; ok {
		delete(conns, client.Fingerprint())
		if len(conns) == 0 {
			delete(m.byAccount, client.AccountID())
		}
	}
}

func (m *ConnectionManager) SendToDevice(accountID, fingerprint string, msg []byte) bool {
	m.mu.RLock()
	client := m.byKey[buildKey(accountID, fingerprint)]
	m.mu.RUnlock()
	if client == nil {
		return false
	}
	return client.Enqueue(msg)
}

// SendToAccount 返回成功入队的设备数
func (m *ConnectionManager) SendToAccount(accountID string, msg []byte) int {
	sent := 0
	for _, client := range m.accountClients(accountID) {
		if client.Enqueue(msg) {
			sent++
		}
	}
	return sent
}

// CloseDevice 断开某个设备的连接，返回是否存在
func (m *ConnectionManager) CloseDevice(accountID, fingerprint, reason string) bool {
	m.mu.RLock()
	client := m.byKey[buildKey(accountID, fingerprint)]
	m.mu.RUnlock()
	if client == nil {
		return false
	}
	client.CloseWithReason(websocket.ClosePolicyViolation, reason)
	return true
}

// CloseAccount 断开账号下所有连接，返回断开数量
func (m *ConnectionManager) CloseAccount(accountID, reason string) int {
	clients := m.accountClients(accountID)
	for _, client := range clients {
		client.CloseWithReason(websocket.ClosePolicyViolation, reason)
	}
	return len(clients)
}

// HandleAuthState 作为认证状态监听器注册，设备登出时断开其连接
func (m *ConnectionManager) HandleAuthState(ev service.AuthStateEvent) {
	if ev.SignedIn || ev.AccountID == "" {
		return
	}
	if ev.Fingerprint == "" {
		m.CloseAccount(ev.AccountID, "signed_out")
		return
	}
	m.CloseDevice(ev.AccountID, ev.Fingerprint, "signed_out")
}

func (m *ConnectionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byKey)
}

// Shutdown 关闭全部连接并拒绝后续注册
func (m *ConnectionManager) Shutdown() {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return
	}
	m.shutdown = true

	clients := make([]*Client, 0, len(m.byKey))
	for _, client := range m.byKey {
		clients = append(clients, client)
	}
	m.byKey = make(map[string]*Client)
	m.byAccount = make(map[string]map[string]*Client)
	m.mu.Unlock()

	for _, client := range clients {
		client.CloseWithReason(websocket.CloseGoingAway, "server_shutdown")
	}
}

func (m *ConnectionManager) accountClients(accountID string) []*Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conns := m.byAccount[accountID]
	clients := make([]*Client, 0, len(conns))
	for _, client := range conns {
		clients = append(clients, client)
	}
	return clients
}

func buildKey(accountID, fingerprint string) string {
	return accountID + ":" + fingerprint
}
