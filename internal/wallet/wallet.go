// Package wallet loads, validates and uses the signing key for bridge
// transactions. Keys are held in memory for the life of one invocation and
// never written back to disk.
package wallet

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	clierr "github.com/SiphoYawe/mina-cli/internal/errors"
)

var keyBodyPattern = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// Normalize validates a raw private key string: exactly 64 hex characters
// with an optional 0x prefix. It returns the lowercase bare-hex body.
func Normalize(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	if strings.HasPrefix(clean, "0x") || strings.HasPrefix(clean, "0X") {
		clean = clean[2:]
	}
	if !keyBodyPattern.MatchString(clean) {
		return "", clierr.New(clierr.CodeInvalidKey, "private key must be 64 hex characters with an optional 0x prefix")
	}
	return strings.ToLower(clean), nil
}

// LoadPrivateKey reads a key from path. JSON key files are probed for the
// privateKey, private_key and key fields in that order; anything else is
// treated as the bare key itself.
func LoadPrivateKey(path string) (string, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeUsage, "read private key file", err)
	}
	raw := strings.TrimSpace(string(buf))
	if candidate, ok := probeJSONKey(buf); ok {
		raw = candidate
	}
	return Normalize(raw)
}

func probeJSONKey(buf []byte) (string, bool) {
	var doc map[string]any
	if err := json.Unmarshal(buf, &doc); err != nil {
		return "", false
	}
	for _, field := range []string{"privateKey", "private_key", "key"} {
		if v, ok := doc[field].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

// PromptPrivateKey asks for a key on the terminal. The input is echoed in
// clear text, so this is only suitable for trusted local sessions. An
// already-buffered reader is used as-is so input typed ahead of the prompt
// is not lost to a second buffer.
func PromptPrivateKey(r io.Reader, w io.Writer) (string, error) {
	fmt.Fprint(w, "Enter private key (0x-prefixed or bare hex): ")
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	line, err := br.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", clierr.Wrap(clierr.CodeUsage, "read private key", err)
	}
	return Normalize(line)
}

// AddressOf derives the EVM address controlled by the key.
func AddressOf(key string) (common.Address, error) {
	normalized, err := Normalize(key)
	if err != nil {
		return common.Address{}, err
	}
	pk, err := crypto.HexToECDSA(normalized)
	if err != nil {
		return common.Address{}, clierr.Wrap(clierr.CodeInvalidKey, "parse private key", err)
	}
	return crypto.PubkeyToAddress(pk.PublicKey), nil
}
