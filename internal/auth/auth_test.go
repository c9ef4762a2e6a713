package auth

import (
	"errors"
	"testing"
)

func TestAuth_FullSequence(t *testing.T) {
	m := NewManager()
	now := int64(1_000_000)

	// Disconnected: real order rejected "not armed".
	if err := m.AuthorizeRealOrder(now); !errors.Is(err, ErrNotArmed) {
		t.Fatalf("cold authorize = %v, want ErrNotArmed", err)
	}

	if err := m.ConnectWallet("dydx1abc"); err != nil {
		t.Fatal(err)
	}
	if err := m.SetAutoSign(true); err != nil {
		t.Fatal(err)
	}
	if _, err := m.CreateSession(now, 10); err != nil {
		t.Fatal(err)
	}
	m.SetRealMode(true)
	if err := m.Arm(now, "ARM"); err != nil {
		t.Fatal(err)
	}

	// Within 60 s: accepted.
	if err := m.AuthorizeRealOrder(now + 59); err != nil {
		t.Fatalf("authorize within arm window = %v", err)
	}

	// 61 s later: arm expired.
	if err := m.AuthorizeRealOrder(now + 61); !errors.Is(err, ErrArmExpired) {
		t.Fatalf("authorize after arm window = %v, want ErrArmExpired", err)
	}
}

func TestAuth_ArmPhraseCaseInsensitive(t *testing.T) {
	m := armedManager(t, 100)
	for _, phrase := range []string{"arm", "Arm", " ARM "} {
		if err := m.Arm(100, phrase); err != nil {
			t.Errorf("Arm(%q) = %v", phrase, err)
		}
	}
	if err := m.Arm(100, "yes"); !errors.Is(err, ErrBadArmPhrase) {
		t.Fatalf("Arm(yes) = %v, want ErrBadArmPhrase", err)
	}
	if m.State().Armed {
		t.Fatal("bad phrase left the FSM armed")
	}
}

func TestAuth_PreconditionsEnforced(t *testing.T) {
	m := NewManager()
	now := int64(100)

	if err := m.ConnectWallet("  "); !errors.Is(err, ErrEmptyAddress) {
		t.Fatalf("empty address = %v", err)
	}
	if err := m.SetAutoSign(true); !errors.Is(err, ErrWalletNotConnected) {
		t.Fatalf("auto-sign without wallet = %v", err)
	}
	if _, err := m.CreateSession(now, 10); !errors.Is(err, ErrWalletNotConnected) {
		t.Fatalf("session without wallet = %v", err)
	}

	m.ConnectWallet("dydx1abc")
	if _, err := m.CreateSession(now, 10); !errors.Is(err, ErrAutoSignDisabled) {
		t.Fatalf("session without auto-sign = %v", err)
	}

	m.SetAutoSign(true)
	m.SetRealMode(false)
	if err := m.Arm(now, "ARM"); !errors.Is(err, ErrRealModeOff) {
		t.Fatalf("arm without real mode = %v", err)
	}
	m.SetRealMode(true)
	m.RevokeSession()
	if err := m.Arm(now, "ARM"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("arm without session = %v", err)
	}
}

func TestAuth_SessionTTLClamped(t *testing.T) {
	m := NewManager()
	m.ConnectWallet("dydx1abc")
	m.SetAutoSign(true)

	m.CreateSession(0, 0)
	if got := m.State().SessionExpiresAt; got != 60 {
		t.Fatalf("ttl 0 clamped expiry = %d, want 60", got)
	}
	m.CreateSession(0, 100_000)
	if got := m.State().SessionExpiresAt; got != int64(MaxSessionTTLMinutes)*60 {
		t.Fatalf("ttl overflow clamped expiry = %d", got)
	}
}

func TestAuth_DisconnectResetsEverything(t *testing.T) {
	m := armedManager(t, 100)
	m.DisconnectWallet()

	st := m.State()
	if st.WalletConnected || st.AutoSignEnabled || st.SessionActive || st.Armed {
		t.Fatalf("disconnect left state open: %+v", st)
	}
	if st.SessionExpiresAt != 0 || st.ArmExpiresAt != 0 {
		t.Fatalf("expiries not cleared: %+v", st)
	}
}

func TestAuth_DisableAutoSignRevokesSessionAndArm(t *testing.T) {
	m := armedManager(t, 100)
	m.SetAutoSign(false)

	st := m.State()
	if st.SessionActive || st.Armed {
		t.Fatalf("auto-sign off left session/arm: %+v", st)
	}
}

func TestAuth_TickExpiresWithReceipts(t *testing.T) {
	m := armedManager(t, 100)

	// Arm expires at 160, session (10 min) at 700.
	receipts := m.Tick(160)
	if len(receipts) != 1 || receipts[0].Kind != "ArmExpired" {
		t.Fatalf("tick at arm expiry = %+v", receipts)
	}
	if m.State().Armed {
		t.Fatal("tick left FSM armed")
	}

	receipts = m.Tick(700)
	if len(receipts) != 1 || receipts[0].Kind != "SessionExpired" {
		t.Fatalf("tick at session expiry = %+v", receipts)
	}
	if m.State().SessionActive {
		t.Fatal("tick left session active")
	}

	if got := m.Tick(701); len(got) != 0 {
		t.Fatalf("idle tick produced receipts: %+v", got)
	}
}

// TestAuth_SoundnessInvariant drives a scripted walk and checks the
// reachable-state invariants after every step: never Armed without a
// session, never a session without auto-sign + wallet.
func TestAuth_SoundnessInvariant(t *testing.T) {
	m := NewManager()
	now := int64(100)

	steps := []func(){
		func() { m.ConnectWallet("dydx1abc") },
		func() { m.SetAutoSign(true) },
		func() { m.CreateSession(now, 10) },
		func() { m.SetRealMode(true) },
		func() { m.Arm(now, "ARM") },
		func() { m.SetAutoSign(false) },
		func() { m.SetAutoSign(true) },
		func() { m.Arm(now, "ARM") }, // no session anymore → must fail closed
		func() { m.CreateSession(now, 5) },
		func() { m.Arm(now, "ARM") },
		func() { m.RevokeSession() },
		func() { m.DisconnectWallet() },
		func() { m.Arm(now, "ARM") },
	}
	for i, step := range steps {
		step()
		st := m.State()
		if st.Armed && !st.SessionActive {
			t.Fatalf("step %d: Armed without Session: %+v", i, st)
		}
		if st.SessionActive && !st.WalletConnected {
			t.Fatalf("step %d: Session without WalletConnected: %+v", i, st)
		}
		if st.AutoSignEnabled && !st.WalletConnected {
			t.Fatalf("step %d: AutoSign without WalletConnected: %+v", i, st)
		}
	}
}

func TestAuth_StatusStrings(t *testing.T) {
	m := NewManager()
	if got := m.SignerStatus(0); got != "inactive" {
		t.Fatalf("cold signer status = %q", got)
	}
	if got := m.WalletStatus("Testnet", ""); got != "disconnected" {
		t.Fatalf("cold wallet status = %q", got)
	}

	m.ConnectWallet("dydx1abc")
	if got := m.WalletStatus("Testnet", ""); got != "connected | Testnet | rpc:default" {
		t.Fatalf("wallet status = %q", got)
	}
	if got := m.WalletStatus("Mainnet", "https://rpc.example"); got != "connected | Mainnet | rpc:custom" {
		t.Fatalf("wallet status = %q", got)
	}

	if got := m.SignerStatus(0); got != "ready (no session)" {
		t.Fatalf("signer status = %q", got)
	}
	m.SetAutoSign(true)
	m.CreateSession(0, 10)
	if got := m.SignerStatus(60); got != "session active (9m left)" {
		t.Fatalf("signer status = %q", got)
	}
}

func armedManager(t *testing.T, now int64) *Manager {
	t.Helper()
	m := NewManager()
	if err := m.ConnectWallet("dydx1abc"); err != nil {
		t.Fatal(err)
	}
	if err := m.SetAutoSign(true); err != nil {
		t.Fatal(err)
	}
	if _, err := m.CreateSession(now, 10); err != nil {
		t.Fatal(err)
	}
	m.SetRealMode(true)
	if err := m.Arm(now, "ARM"); err != nil {
		t.Fatal(err)
	}
	return m
}
