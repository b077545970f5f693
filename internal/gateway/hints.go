package gateway

import (
	"errors"
	"strings"

	clierr "github.com/SiphoYawe/mina-cli/internal/errors"
	"github.com/SiphoYawe/mina-cli/internal/httpx"
)

// recoveryHints maps gateway error codes to a next step the user can take.
// Codes outside this table surface with no hint.
var recoveryHints = map[string]string{
	"INSUFFICIENT_FUNDS":    "top up the source wallet or bridge a smaller amount",
	"INSUFFICIENT_BALANCE":  "top up the source wallet or bridge a smaller amount",
	"SLIPPAGE_EXCEEDED":     "raise the tolerance with `mina config set slippage` and retry",
	"QUOTE_EXPIRED":         "fetch a fresh quote and retry",
	"LIQUIDITY_UNAVAILABLE": "try a smaller amount or a different source chain",
	"AMOUNT_TOO_LOW":        "increase the amount above the route minimum",
	"AMOUNT_TOO_HIGH":       "split the transfer into smaller amounts",
	"USER_REJECTED":         "re-run the bridge when ready to sign",
	"NETWORK_ERROR":         "check connectivity and retry",
}

// RecoveryHint looks up the remediation hint for a gateway error code.
func RecoveryHint(code string) (string, bool) {
	hint, ok := recoveryHints[strings.ToUpper(strings.TrimSpace(code))]
	return hint, ok
}

// Normalize extracts a user-facing message, the gateway error code (when one
// exists), and a recovery hint from any error produced on the quote or
// execute path.
func Normalize(err error) (message, code, hint string) {
	if err == nil {
		return "", "", ""
	}
	message = err.Error()
	if cliErr, ok := clierr.As(err); ok {
		message = cliErr.Message
		if cliErr.Cause != nil {
			message = cliErr.Error()
		}
	}
	var apiErr *httpx.APIError
	if errors.As(err, &apiErr) {
		if strings.TrimSpace(apiErr.Message) != "" {
			message = apiErr.Message
		}
		code = apiErr.Code
		if h, ok := RecoveryHint(code); ok {
			hint = h
		}
	}
	return message, code, hint
}
