// Package auth is the fail-closed trading authorization state machine:
// wallet connection → auto-sign → time-bounded session → ARM phrase →
// real order. Every gate that is not explicitly open rejects with a
// specific reason, and the 1-Hz tick closes expired gates on its own.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"dydx-ladder/internal/model"
)

// ArmPhrase is the literal a user must type (case-insensitive) to arm
// real-order broadcasts. ArmTTLSecs is how long the arm lasts.
const (
	ArmPhrase  = "ARM"
	ArmTTLSecs = 60

	MinSessionTTLMinutes = 1
	MaxSessionTTLMinutes = 24 * 60
)

// Authorization errors. The messages are user-visible receipt reasons;
// no gate fails silently.
var (
	ErrWalletNotConnected = errors.New("connect wallet first")
	ErrEmptyAddress       = errors.New("wallet address is empty")
	ErrAutoSignDisabled   = errors.New("enable auto-sign first")
	ErrNoSession          = errors.New("no active session")
	ErrSessionExpired     = errors.New("session expired")
	ErrRealModeOff        = errors.New("enable REAL first")
	ErrBadArmPhrase       = errors.New("arm phrase must be: ARM")
	ErrNotArmed           = errors.New("not armed")
	ErrArmExpired         = errors.New("arm expired")
)

// State is a copy of the FSM's externally visible state.
type State struct {
	WalletAddress    string
	WalletConnected  bool
	AutoSignEnabled  bool
	SessionActive    bool
	SessionID        string
	SessionExpiresAt int64 // unix, 0 when no session
	RealMode         bool
	Armed            bool
	ArmExpiresAt     int64 // unix, 0 when disarmed
}

// Manager owns the FSM. Safe for concurrent use: the consumer's UI
// thread issues commands while the 1-Hz tick expires gates.
type Manager struct {
	mu sync.Mutex
	st State
}

// NewManager returns a fully disarmed, disconnected manager.
func NewManager() *Manager { return &Manager{} }

// State returns a snapshot of the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st
}

// ConnectWallet connects a non-empty address. Connecting does not by
// itself enable anything downstream.
func (m *Manager) ConnectWallet(address string) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return ErrEmptyAddress
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.WalletAddress = address
	m.st.WalletConnected = true
	return nil
}

// DisconnectWallet resets every downstream gate: auto-sign, session
// and arm all die with the wallet.
func (m *Manager) DisconnectWallet() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.WalletConnected = false
	m.st.AutoSignEnabled = false
	m.clearSessionLocked()
	m.disarmLocked()
}

// SetAutoSign enables or disables auto-sign. Enabling requires a
// connected wallet; disabling revokes the session.
func (m *Manager) SetAutoSign(enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if enabled && !m.st.WalletConnected {
		return ErrWalletNotConnected
	}
	m.st.AutoSignEnabled = enabled
	if !enabled {
		m.clearSessionLocked()
		m.disarmLocked()
	}
	return nil
}

// CreateSession opens a session for ttlMinutes ∈ [1, 1440], clamping
// out-of-range values into the bounds.
func (m *Manager) CreateSession(nowUnix int64, ttlMinutes int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.st.WalletConnected {
		return "", ErrWalletNotConnected
	}
	if !m.st.AutoSignEnabled {
		return "", ErrAutoSignDisabled
	}
	if ttlMinutes < MinSessionTTLMinutes {
		ttlMinutes = MinSessionTTLMinutes
	}
	if ttlMinutes > MaxSessionTTLMinutes {
		ttlMinutes = MaxSessionTTLMinutes
	}
	m.st.SessionActive = true
	m.st.SessionID = uuid.NewString()
	m.st.SessionExpiresAt = nowUnix + int64(ttlMinutes)*60
	return m.st.SessionID, nil
}

// RevokeSession closes the session and disarms: an armed state may not
// outlive its session.
func (m *Manager) RevokeSession() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearSessionLocked()
	m.disarmLocked()
}

// SetRealMode toggles real-order mode. Turning it off disarms.
func (m *Manager) SetRealMode(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.RealMode = enabled
	if !enabled {
		m.disarmLocked()
	}
}

// Arm validates the phrase and opens the 60-second arm window.
// Requires real mode and a live session.
func (m *Manager) Arm(nowUnix int64, phrase string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.st.RealMode {
		m.disarmLocked()
		return ErrRealModeOff
	}
	if !m.sessionLiveLocked(nowUnix) {
		m.disarmLocked()
		if m.st.SessionActive {
			return ErrSessionExpired
		}
		return ErrNoSession
	}
	if !strings.EqualFold(strings.TrimSpace(phrase), ArmPhrase) {
		m.disarmLocked()
		return ErrBadArmPhrase
	}
	m.st.Armed = true
	m.st.ArmExpiresAt = nowUnix + ArmTTLSecs
	return nil
}

// Disarm closes the arm window.
func (m *Manager) Disarm() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disarmLocked()
}

// AuthorizeRealOrder is the final predicate before the executor:
// live session AND live arm, both within their expiries.
func (m *Manager) AuthorizeRealOrder(nowUnix int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.st.Armed {
		return ErrNotArmed
	}
	if m.st.ArmExpiresAt != 0 && nowUnix >= m.st.ArmExpiresAt {
		return ErrArmExpired
	}
	if !m.st.SessionActive {
		return ErrNoSession
	}
	if m.st.SessionExpiresAt != 0 && nowUnix >= m.st.SessionExpiresAt {
		return ErrSessionExpired
	}
	return nil
}

// Tick expires the session and arm windows, returning a receipt per
// expiration. Call at 1 Hz.
func (m *Manager) Tick(nowUnix int64) []model.Receipt {
	m.mu.Lock()
	defer m.mu.Unlock()

	var receipts []model.Receipt
	if m.st.SessionActive && m.st.SessionExpiresAt != 0 && nowUnix >= m.st.SessionExpiresAt {
		m.clearSessionLocked()
		m.disarmLocked()
		receipts = append(receipts, model.Receipt{
			TSUnix: nowUnix, Kind: "SessionExpired", Status: "expired",
			Comment: ErrSessionExpired.Error(),
		})
	}
	if m.st.Armed && m.st.ArmExpiresAt != 0 && nowUnix >= m.st.ArmExpiresAt {
		m.disarmLocked()
		receipts = append(receipts, model.Receipt{
			TSUnix: nowUnix, Kind: "ArmExpired", Status: "expired",
			Comment: ErrArmExpired.Error(),
		})
	}
	return receipts
}

// WalletStatus renders the wallet line for a settings panel. Computed
// from live state so it cannot drift from the FSM.
func (m *Manager) WalletStatus(network, rpcEndpoint string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.st.WalletConnected {
		return "disconnected"
	}
	rpc := "rpc:default"
	if strings.TrimSpace(rpcEndpoint) != "" {
		rpc = "rpc:custom"
	}
	return fmt.Sprintf("connected | %s | %s", network, rpc)
}

// SignerStatus renders the signer line for a settings panel.
func (m *Manager) SignerStatus(nowUnix int64) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case !m.st.WalletConnected:
		return "inactive"
	case !m.st.AutoSignEnabled:
		return "ready (no session)"
	case m.sessionLiveLocked(nowUnix):
		minsLeft := (m.st.SessionExpiresAt - nowUnix) / 60
		return fmt.Sprintf("session active (%dm left)", minsLeft)
	default:
		return "ready (session not created)"
	}
}

// ArmStatus renders the arm indicator.
func (m *Manager) ArmStatus(nowUnix int64) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.st.RealMode {
		return "REAL OFF"
	}
	if m.st.Armed && (m.st.ArmExpiresAt == 0 || nowUnix < m.st.ArmExpiresAt) {
		return fmt.Sprintf("ARMED (%ds)", m.st.ArmExpiresAt-nowUnix)
	}
	return "NOT ARMED"
}

func (m *Manager) sessionLiveLocked(nowUnix int64) bool {
	return m.st.SessionActive && (m.st.SessionExpiresAt == 0 || nowUnix < m.st.SessionExpiresAt)
}

func (m *Manager) clearSessionLocked() {
	m.st.SessionActive = false
	m.st.SessionID = ""
	m.st.SessionExpiresAt = 0
}

func (m *Manager) disarmLocked() {
	m.st.Armed = false
	m.st.ArmExpiresAt = 0
}
