package signer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	EnvPrivateKey       = "SAVINGS_PRIVATE_KEY"
	EnvLegacyPrivateKey = "CLAWVAULT_PRIVATE_KEY"
	EnvPrivateKeyFile   = "SAVINGS_PRIVATE_KEY_FILE"
	EnvKeystorePath     = "SAVINGS_KEYSTORE_PATH"
	EnvKeystorePassword = "SAVINGS_KEYSTORE_PASSWORD"

	KeySourceAuto     = "auto"
	KeySourceEnv      = "env"
	KeySourceFile     = "file"
	KeySourceKeystore = "keystore"

	defaultKeyFile     = "savings/key.hex"
	defaultKeyFileHint = "~/.config/savings/key.hex"
)

// LocalSigner holds the agent key in process memory.
type LocalSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

func (s *LocalSigner) Address() common.Address {
	return s.address
}

func (s *LocalSigner) SignTx(chainID *big.Int, tx *types.Transaction) (*types.Transaction, error) {
	if s == nil || s.privateKey == nil {
		return nil, errors.New("local signer is not initialized")
	}
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), s.privateKey)
}

type LocalSignerConfig struct {
	PrivateKeyHex    string
	PrivateKeyFile   string
	KeystorePath     string
	KeystorePassword string
}

// NewLocalSignerFromEnv loads the agent key from the inputs allowed by source:
// env reads SAVINGS_PRIVATE_KEY, file reads SAVINGS_PRIVATE_KEY_FILE or the default
// key file, keystore decrypts SAVINGS_KEYSTORE_PATH. auto tries them in that order.
func NewLocalSignerFromEnv(source string) (*LocalSigner, error) {
	cfg, err := configForSource(source)
	if err != nil {
		return nil, err
	}
	return NewLocalSigner(cfg)
}

func configForSource(source string) (LocalSignerConfig, error) {
	envKey := LocalSignerConfig{PrivateKeyHex: firstEnv(EnvPrivateKey, EnvLegacyPrivateKey)}
	fileKey := LocalSignerConfig{PrivateKeyFile: firstNonEmpty(strings.TrimSpace(os.Getenv(EnvPrivateKeyFile)), existingDefaultKeyFile())}
	keystoreKey := LocalSignerConfig{
		KeystorePath:     strings.TrimSpace(os.Getenv(EnvKeystorePath)),
		KeystorePassword: os.Getenv(EnvKeystorePassword),
	}

	switch strings.ToLower(strings.TrimSpace(source)) {
	case "", KeySourceAuto:
		return LocalSignerConfig{
			PrivateKeyHex:    envKey.PrivateKeyHex,
			PrivateKeyFile:   fileKey.PrivateKeyFile,
			KeystorePath:     keystoreKey.KeystorePath,
			KeystorePassword: keystoreKey.KeystorePassword,
		}, nil
	case KeySourceEnv:
		return envKey, nil
	case KeySourceFile:
		return fileKey, nil
	case KeySourceKeystore:
		return keystoreKey, nil
	default:
		return LocalSignerConfig{}, fmt.Errorf("unsupported key source %q (expected %s|%s|%s|%s)", source, KeySourceAuto, KeySourceEnv, KeySourceFile, KeySourceKeystore)
	}
}

func NewLocalSigner(cfg LocalSignerConfig) (*LocalSigner, error) {
	pk, err := loadPrivateKey(cfg)
	if err != nil {
		return nil, err
	}
	return &LocalSigner{privateKey: pk, address: crypto.PubkeyToAddress(pk.PublicKey)}, nil
}

func loadPrivateKey(cfg LocalSignerConfig) (*ecdsa.PrivateKey, error) {
	switch {
	case strings.TrimSpace(cfg.PrivateKeyHex) != "":
		return parseHexKey(cfg.PrivateKeyHex)
	case cfg.PrivateKeyFile != "":
		buf, err := os.ReadFile(cfg.PrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("read private key file: %w", err)
		}
		return parseHexKey(string(buf))
	case cfg.KeystorePath != "":
		return decryptKeystore(cfg.KeystorePath, cfg.KeystorePassword)
	}
	return nil, fmt.Errorf("missing signing key: set %s, write %s, or set %s", EnvPrivateKey, defaultKeyFileHint, EnvKeystorePath)
}

func decryptKeystore(path, password string) (*ecdsa.PrivateKey, error) {
	if strings.TrimSpace(password) == "" {
		return nil, fmt.Errorf("keystore password is required: set %s", EnvKeystorePassword)
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keystore file: %w", err)
	}
	key, err := keystore.DecryptKey(buf, password)
	if err != nil {
		return nil, fmt.Errorf("decrypt keystore: %w", err)
	}
	return key.PrivateKey, nil
}

func parseHexKey(raw string) (*ecdsa.PrivateKey, error) {
	clean := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if clean == "" {
		return nil, fmt.Errorf("empty private key")
	}
	pk, err := crypto.HexToECDSA(clean)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return pk, nil
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func defaultKeyFilePath() string {
	base := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME"))
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil || strings.TrimSpace(home) == "" {
			return ""
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, defaultKeyFile)
}

// existingDefaultKeyFile returns the default key path only when a regular file is there.
func existingDefaultKeyFile() string {
	path := defaultKeyFilePath()
	if path == "" {
		return ""
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return ""
	}
	return path
}
