package settingsfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSettings_RoundTrip(t *testing.T) {
	m := NewManager(t.TempDir())

	s := Settings{
		WalletAddress:     "dydx1abc",
		Network:           Mainnet,
		RPCEndpoint:       "https://rpc.example:443",
		AutoSign:          true,
		SessionTTLMinutes: 120,
	}
	if err := m.Save(s); err != nil {
		t.Fatal(err)
	}
	back, err := m.Load()
	if err != nil {
		t.Fatal(err)
	}
	if back != s {
		t.Fatalf("round trip = %+v, want %+v", back, s)
	}
}

func TestSettings_MissingFileGivesDefaults(t *testing.T) {
	m := NewManager(t.TempDir())
	s, err := m.Load()
	if err != nil {
		t.Fatal(err)
	}
	if s != Defaults() {
		t.Fatalf("got %+v, want defaults", s)
	}
	if s.Network != Testnet || s.SessionTTLMinutes != 30 {
		t.Fatalf("defaults = %+v", s)
	}
}

func TestSettings_CommentsUnknownKeysAndBadValues(t *testing.T) {
	dir := t.TempDir()
	content := strings.Join([]string{
		"# a comment",
		"",
		"wallet_address = dydx1xyz ",
		"network=MAINNET",
		"auto_sign=1",
		"session_ttl_minutes=99999", // out of range, keep default
		"mystery_key=ignored",
		"not a key value line",
	}, "\n")
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := NewManager(dir).Load()
	if err != nil {
		t.Fatal(err)
	}
	if s.WalletAddress != "dydx1xyz" {
		t.Errorf("address = %q", s.WalletAddress)
	}
	if s.Network != Mainnet {
		t.Errorf("network = %v", s.Network)
	}
	if !s.AutoSign {
		t.Error("auto_sign=1 not parsed")
	}
	if s.SessionTTLMinutes != 30 {
		t.Errorf("ttl = %d, want default 30", s.SessionTTLMinutes)
	}
}

func TestSettings_NoSecretsPersisted(t *testing.T) {
	m := NewManager(t.TempDir())
	if err := m.Save(Defaults()); err != nil {
		t.Fatal(err)
	}
	raw, _ := os.ReadFile(m.Path())
	for _, needle := range []string{"mnemonic", "private", "secret"} {
		if strings.Contains(strings.ToLower(string(raw)), needle) {
			t.Fatalf("settings file mentions %q", needle)
		}
	}
}
