package realtime

import "sync"

// Subscriber is one live connection able to receive JSON payloads.
type Subscriber interface {
	WriteJSON(v interface{}) error
	Close() error
}

// Hub tracks the live connections of each account (requester or provider)
// so dispatch events can be fanned out to whoever the task concerns.
type Hub struct {
	mu       sync.RWMutex
	accounts map[string]map[Subscriber]struct{}
}

func NewHub() *Hub {
	return &Hub{
		accounts: make(map[string]map[Subscriber]struct{}),
	}
}

func (h *Hub) Register(accountID string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.accounts[accountID] == nil {
		h.accounts[accountID] = make(map[Subscriber]struct{})
	}
	h.accounts[accountID][sub] = struct{}{}
}

func (h *Hub) Unregister(accountID string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.accounts[accountID]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.accounts, accountID)
		}
	}
	_ = sub.Close()
}

// Send writes v to every live connection of the account and reports how many
// deliveries succeeded. Write failures are swallowed; delivery is best-effort.
func (h *Hub) Send(accountID string, v interface{}) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for sub := range h.accounts[accountID] {
		if err := sub.WriteJSON(v); err == nil {
			delivered++
		}
	}
	return delivered
}
