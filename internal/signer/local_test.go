package signer

import (
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

const (
	testPrivateKey = "59c6995e998f97a5a0044976f0945388cf9b7e5e5f4f9d2d9d8f1f5b7f6d11d1"
	anvilKey       = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	anvilAddress   = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func clearSignerEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{EnvPrivateKey, EnvLegacyPrivateKey, EnvPrivateKeyFile, EnvKeystorePath, EnvKeystorePassword} {
		t.Setenv(name, "")
	}
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
}

func TestNewLocalSignerFromEnvHex(t *testing.T) {
	clearSignerEnv(t)
	t.Setenv(EnvPrivateKey, anvilKey)
	s, err := NewLocalSignerFromEnv(KeySourceEnv)
	if err != nil {
		t.Fatalf("NewLocalSignerFromEnv failed: %v", err)
	}
	if s.Address() != common.HexToAddress(anvilAddress) {
		t.Fatalf("unexpected address %s", s.Address().Hex())
	}
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(31337),
		To:        ptrAddress(common.HexToAddress("0x0000000000000000000000000000000000000001")),
		Value:     big.NewInt(0),
		Gas:       21_000,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2),
	})
	signed, err := s.SignTx(big.NewInt(31337), tx)
	if err != nil {
		t.Fatalf("SignTx failed: %v", err)
	}
	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(31337)), signed)
	if err != nil || from != s.Address() {
		t.Fatalf("recovered sender %s err=%v", from.Hex(), err)
	}
}

func TestLegacyEnvName(t *testing.T) {
	clearSignerEnv(t)
	t.Setenv(EnvLegacyPrivateKey, testPrivateKey)
	if _, err := NewLocalSignerFromEnv(KeySourceEnv); err != nil {
		t.Fatalf("expected legacy env key to load: %v", err)
	}
}

func TestNewLocalSignerFromEnvFile(t *testing.T) {
	clearSignerEnv(t)
	keyFile := filepath.Join(t.TempDir(), "key.txt")
	if err := os.WriteFile(keyFile, []byte(testPrivateKey+"\n"), 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}
	t.Setenv(EnvPrivateKeyFile, keyFile)

	s, err := NewLocalSignerFromEnv(KeySourceFile)
	if err != nil {
		t.Fatalf("NewLocalSignerFromEnv failed: %v", err)
	}
	if s.Address() == (common.Address{}) {
		t.Fatal("expected non-zero signer address")
	}
}

func TestAutoUsesDefaultKeyFile(t *testing.T) {
	clearSignerEnv(t)
	cfgDir := t.TempDir()
	keyDir := filepath.Join(cfgDir, "savings")
	if err := os.MkdirAll(keyDir, 0o755); err != nil {
		t.Fatalf("create config dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(keyDir, "key.hex"), []byte(testPrivateKey), 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}
	t.Setenv("XDG_CONFIG_HOME", cfgDir)

	if _, err := NewLocalSignerFromEnv(KeySourceAuto); err != nil {
		t.Fatalf("expected auto key-source to use default key path: %v", err)
	}
}

func TestDefaultKeyFilePathUsesXDGConfigHome(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/savings-config-home")
	if got := defaultKeyFilePath(); got != "/tmp/savings-config-home/savings/key.hex" {
		t.Fatalf("unexpected default path %q", got)
	}
}

func TestKeystoreSource(t *testing.T) {
	clearSignerEnv(t)
	pk, err := crypto.HexToECDSA(testPrivateKey)
	if err != nil {
		t.Fatalf("parse key: %v", err)
	}
	key := &keystore.Key{Id: uuid.New(), Address: crypto.PubkeyToAddress(pk.PublicKey), PrivateKey: pk}
	blob, err := keystore.EncryptKey(key, "hunter2", keystore.LightScryptN, keystore.LightScryptP)
	if err != nil {
		t.Fatalf("encrypt key: %v", err)
	}
	path := filepath.Join(t.TempDir(), "agent.json")
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		t.Fatalf("write keystore: %v", err)
	}
	t.Setenv(EnvKeystorePath, path)
	// A key in the environment must not leak into the keystore source.
	t.Setenv(EnvPrivateKey, anvilKey)

	if _, err := NewLocalSignerFromEnv(KeySourceKeystore); err == nil || !strings.Contains(err.Error(), EnvKeystorePassword) {
		t.Fatalf("expected missing password error, got %v", err)
	}
	t.Setenv(EnvKeystorePassword, "wrong")
	if _, err := NewLocalSignerFromEnv(KeySourceKeystore); err == nil {
		t.Fatal("expected decrypt failure with the wrong password")
	}
	t.Setenv(EnvKeystorePassword, "hunter2")
	s, err := NewLocalSignerFromEnv(KeySourceKeystore)
	if err != nil {
		t.Fatalf("keystore source failed: %v", err)
	}
	if s.Address() != key.Address {
		t.Fatalf("unexpected address %s", s.Address().Hex())
	}
}

func TestMissingKeyErrorIncludesHints(t *testing.T) {
	clearSignerEnv(t)
	_, err := NewLocalSignerFromEnv(KeySourceAuto)
	if err == nil {
		t.Fatal("expected missing key error")
	}
	for _, hint := range []string{defaultKeyFileHint, EnvKeystorePath, EnvPrivateKey} {
		if !strings.Contains(err.Error(), hint) {
			t.Fatalf("expected error to mention %q, got: %v", hint, err)
		}
	}
	if _, err := NewLocalSignerFromEnv("hsm"); err == nil {
		t.Fatal("expected unsupported key source error")
	}
}

func TestVerify(t *testing.T) {
	clearSignerEnv(t)
	t.Setenv(EnvPrivateKey, anvilKey)
	s, err := NewLocalSignerFromEnv(KeySourceEnv)
	if err != nil {
		t.Fatalf("NewLocalSignerFromEnv failed: %v", err)
	}
	chainID := big.NewInt(8453)
	tx := types.NewTx(&types.DynamicFeeTx{ChainID: chainID, Gas: 21000, GasFeeCap: big.NewInt(1), GasTipCap: big.NewInt(1)})
	signed, err := s.SignTx(chainID, tx)
	if err != nil {
		t.Fatalf("SignTx failed: %v", err)
	}
	if err := Verify(s, chainID, signed); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	other, err := NewLocalSigner(LocalSignerConfig{PrivateKeyHex: testPrivateKey})
	if err != nil {
		t.Fatalf("NewLocalSigner failed: %v", err)
	}
	if err := Verify(other, chainID, signed); err == nil {
		t.Fatal("expected mismatch error for a different signer")
	}
}

func ptrAddress(v common.Address) *common.Address { return &v }
