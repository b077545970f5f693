package wallet

import (
	"bytes"
	"context"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	clierr "github.com/SiphoYawe/mina-cli/internal/errors"
)

// Well-known development key (hardhat account 0); never funded on mainnet.
const (
	testKey     = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func TestNormalizeAcceptsOptionalPrefix(t *testing.T) {
	bare, err := Normalize(testKey)
	if err != nil {
		t.Fatalf("Normalize bare failed: %v", err)
	}
	prefixed, err := Normalize("0x" + strings.ToUpper(testKey))
	if err != nil {
		t.Fatalf("Normalize prefixed failed: %v", err)
	}
	if bare != testKey || prefixed != testKey {
		t.Fatalf("normalization mismatch: %q vs %q", bare, prefixed)
	}
}

func TestNormalizeRejectsMalformedKeys(t *testing.T) {
	for _, raw := range []string{"", "0x", "abc123", testKey + "00", "0x" + testKey[:63] + "g"} {
		if _, err := Normalize(raw); !clierr.Is(err, clierr.CodeInvalidKey) {
			t.Fatalf("Normalize(%q) expected invalid key error, got %v", raw, err)
		}
	}
}

func TestLoadPrivateKeyProbesJSONFields(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		name string
		body string
	}{
		{"camel.json", `{"privateKey": "0x` + testKey + `"}`},
		{"snake.json", `{"private_key": "` + testKey + `"}`},
		{"short.json", `{"key": "` + testKey + `"}`},
		{"raw.txt", testKey + "\n"},
	}
	for _, tc := range cases {
		path := filepath.Join(dir, tc.name)
		if err := os.WriteFile(path, []byte(tc.body), 0o600); err != nil {
			t.Fatalf("write %s: %v", tc.name, err)
		}
		key, err := LoadPrivateKey(path)
		if err != nil {
			t.Fatalf("LoadPrivateKey(%s) failed: %v", tc.name, err)
		}
		if key != testKey {
			t.Fatalf("LoadPrivateKey(%s) = %q, want %q", tc.name, key, testKey)
		}
	}
}

func TestLoadPrivateKeyPrefersPrivateKeyField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "both.json")
	body := `{"key": "0000000000000000000000000000000000000000000000000000000000000001", "privateKey": "` + testKey + `"}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}
	key, err := LoadPrivateKey(path)
	if err != nil {
		t.Fatalf("LoadPrivateKey failed: %v", err)
	}
	if key != testKey {
		t.Fatalf("privateKey field should win, got %q", key)
	}
}

func TestLoadPrivateKeyMissingFile(t *testing.T) {
	_, err := LoadPrivateKey(filepath.Join(t.TempDir(), "absent.json"))
	if !clierr.Is(err, clierr.CodeUsage) {
		t.Fatalf("expected usage error for missing file, got %v", err)
	}
}

func TestPromptPrivateKeyReadsLine(t *testing.T) {
	var out bytes.Buffer
	key, err := PromptPrivateKey(strings.NewReader("0x"+testKey+"\n"), &out)
	if err != nil {
		t.Fatalf("PromptPrivateKey failed: %v", err)
	}
	if key != testKey {
		t.Fatalf("unexpected key %q", key)
	}
	if !strings.Contains(out.String(), "private key") {
		t.Fatalf("prompt text missing: %q", out.String())
	}
}

func TestPromptPrivateKeyHandlesEOFWithoutNewline(t *testing.T) {
	var out bytes.Buffer
	key, err := PromptPrivateKey(strings.NewReader(testKey), &out)
	if err != nil {
		t.Fatalf("PromptPrivateKey failed: %v", err)
	}
	if key != testKey {
		t.Fatalf("unexpected key %q", key)
	}
}

func TestAddressOf(t *testing.T) {
	addr, err := AddressOf("0x" + testKey)
	if err != nil {
		t.Fatalf("AddressOf failed: %v", err)
	}
	if addr != common.HexToAddress(testAddress) {
		t.Fatalf("AddressOf = %s, want %s", addr.Hex(), testAddress)
	}
}

func TestNewSignerRejectsUnsupportedChain(t *testing.T) {
	_, err := NewSigner(testKey, 1287)
	if !clierr.Is(err, clierr.CodeUnsupported) {
		t.Fatalf("expected unsupported chain error, got %v", err)
	}
	if !strings.Contains(err.Error(), "42161") {
		t.Fatalf("error should enumerate supported chains: %v", err)
	}
}

type captureBroadcaster struct {
	sent *types.Transaction
}

func (b *captureBroadcaster) SendTransaction(_ context.Context, tx *types.Transaction) error {
	b.sent = tx
	return nil
}

func TestSignerSendTransactionForwardsFields(t *testing.T) {
	signer, err := NewSigner(testKey, 42161)
	if err != nil {
		t.Fatalf("NewSigner failed: %v", err)
	}
	to := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	chainID := big.NewInt(42161)
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     7,
		GasTipCap: big.NewInt(1_000_000_000),
		GasFeeCap: big.NewInt(30_000_000_000),
		Gas:       21000,
		To:        &to,
		Value:     big.NewInt(1),
	})

	backend := &captureBroadcaster{}
	hash, err := signer.SendTransaction(context.Background(), backend, tx)
	if err != nil {
		t.Fatalf("SendTransaction failed: %v", err)
	}
	if backend.sent == nil {
		t.Fatal("transaction was not broadcast")
	}
	if backend.sent.Hash() != hash {
		t.Fatalf("returned hash %s does not match broadcast tx %s", hash.Hex(), backend.sent.Hash().Hex())
	}
	if backend.sent.Nonce() != 7 || backend.sent.Gas() != 21000 {
		t.Fatalf("gas fields must be forwarded untouched: nonce=%d gas=%d", backend.sent.Nonce(), backend.sent.Gas())
	}
	from, err := types.Sender(types.LatestSignerForChainID(chainID), backend.sent)
	if err != nil {
		t.Fatalf("recover sender: %v", err)
	}
	if from != signer.Address() {
		t.Fatalf("signature recovers %s, want %s", from.Hex(), signer.Address().Hex())
	}
}
