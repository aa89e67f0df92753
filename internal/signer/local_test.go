package signer

import (
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Well-known development key, never funded anywhere real.
const (
	devKeyHex  = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	devAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func TestNewLocalSignerFromHex(t *testing.T) {
	for _, raw := range []string{devKeyHex, "0x" + devKeyHex, "  " + devKeyHex + "\n"} {
		s, err := NewLocalSigner(Config{PrivateKeyHex: raw})
		if err != nil {
			t.Fatalf("NewLocalSigner(%q): %v", raw, err)
		}
		if s.Address() != common.HexToAddress(devAddress) {
			t.Fatalf("address = %s, want %s", s.Address().Hex(), devAddress)
		}
	}
}

func TestNewLocalSignerFromKeyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.hex")
	if err := os.WriteFile(path, []byte("0x"+devKeyHex+"\n"), 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}
	s, err := NewLocalSigner(Config{PrivateKeyFile: path})
	if err != nil {
		t.Fatalf("NewLocalSigner: %v", err)
	}
	if s.Address() != common.HexToAddress(devAddress) {
		t.Fatalf("address = %s, want %s", s.Address().Hex(), devAddress)
	}
}

func TestNewLocalSignerFromEnv(t *testing.T) {
	t.Setenv(EnvPrivateKey, devKeyHex)
	s, err := NewLocalSignerFromEnv()
	if err != nil {
		t.Fatalf("NewLocalSignerFromEnv: %v", err)
	}
	if s.Address() != common.HexToAddress(devAddress) {
		t.Fatalf("address = %s, want %s", s.Address().Hex(), devAddress)
	}
}

func TestSignTxRecoversSender(t *testing.T) {
	s, err := NewLocalSigner(Config{PrivateKeyHex: devKeyHex})
	if err != nil {
		t.Fatalf("NewLocalSigner: %v", err)
	}
	chainID := big.NewInt(5000)
	to := common.HexToAddress("0x52908400098527886E0F7030069857D2E4169EE7")
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     0,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2),
		Gas:       21_000,
		To:        &to,
		Value:     big.NewInt(1),
	})
	signed, err := s.SignTx(chainID, tx)
	if err != nil {
		t.Fatalf("SignTx: %v", err)
	}
	sender, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	if err != nil {
		t.Fatalf("recover sender: %v", err)
	}
	if sender != s.Address() {
		t.Fatalf("recovered %s, want %s", sender.Hex(), s.Address().Hex())
	}
}

func TestMissingKeyNamesTheEnvVars(t *testing.T) {
	_, err := NewLocalSigner(Config{})
	if err == nil {
		t.Fatal("expected an error without a key source")
	}
	if !strings.Contains(err.Error(), EnvPrivateKey) {
		t.Fatalf("error should point at %s: %v", EnvPrivateKey, err)
	}
}

func TestBadHexKeyIsRejected(t *testing.T) {
	if _, err := NewLocalSigner(Config{PrivateKeyHex: "zz"}); err == nil {
		t.Fatal("expected an error for a non-hex key")
	}
	if _, err := NewLocalSigner(Config{PrivateKeyHex: "0x"}); err == nil {
		t.Fatal("expected an error for an empty key")
	}
}
