// Command cardctl generates signing keys and signs or verifies card tokens
// offline, without a database.
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"tessera/internal/config"
	"tessera/internal/credential"
	apperrors "tessera/internal/errors"

	"github.com/spf13/pflag"
)

const usage = `usage: cardctl <command> [flags]

commands:
  keygen   print a new random hex secret
  sign     sign a card id and expiry date
  verify   verify a token against the secret and today's date
`

func main() {
	cfg := config.Load()
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr, cfg.HMACSecretHex, time.Now))
}

func run(args []string, stdout, stderr io.Writer, defaultSecret string, now func() time.Time) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	cmd, args := args[0], args[1:]
	fs := pflag.NewFlagSet(cmd, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	secret := fs.String("secret", defaultSecret, "hex signing secret (defaults to HMAC_SECRET_HEX)")

	signer := credential.NewSigner(now)

	switch cmd {
	case "keygen":
		n := fs.Int("bytes", 32, "secret length in bytes")
		if err := fs.Parse(args); err != nil {
			return 2
		}
		key, err := credential.NewSecret(*n)
		if err != nil {
			fmt.Fprintln(stderr, "keygen:", err)
			return 1
		}
		fmt.Fprintln(stdout, key)
		return 0

	case "sign":
		cardID := fs.String("card", "", "card id")
		expiry := fs.String("expiry", "", "expiry date YYYY-MM-DD")
		if err := fs.Parse(args); err != nil {
			return 2
		}
		token, err := signer.Generate(*cardID, *expiry, *secret)
		if err != nil {
			fmt.Fprintf(stderr, "sign: %s: %v\n", apperrors.CodeOf(err), err)
			return 1
		}
		fmt.Fprintln(stdout, token)
		return 0

	case "verify":
		token := fs.String("token", "", "token to verify")
		if err := fs.Parse(args); err != nil {
			return 2
		}
		claims, err := signer.Verify(*token, *secret)
		if err != nil {
			fmt.Fprintf(stderr, "invalid: %s\n", apperrors.CodeOf(err))
			return 1
		}
		fmt.Fprintf(stdout, "valid card_id=%s expiry_date=%s\n", claims.CardID, claims.ExpiryDate)
		return 0

	default:
		fmt.Fprintf(stderr, "unknown command %q\n%s", cmd, usage)
		return 2
	}
}
