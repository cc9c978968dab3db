package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func fixedNow() time.Time {
	return time.Date(2025, 7, 15, 12, 0, 0, 0, time.UTC)
}

func exec(args ...string) (int, string, string) {
	var out, errOut bytes.Buffer
	code := run(args, &out, &errOut, secret, fixedNow)
	return code, strings.TrimSpace(out.String()), strings.TrimSpace(errOut.String())
}

func TestSignThenVerify(t *testing.T) {
	code, token, _ := exec("sign", "--card", "C-1", "--expiry", "2025-12-31")
	require.Equal(t, 0, code)
	assert.True(t, strings.HasPrefix(token, "UMA25|C-1|2025-12-31|"))

	code, out, _ := exec("verify", "--token", token)
	assert.Equal(t, 0, code)
	assert.Equal(t, "valid card_id=C-1 expiry_date=2025-12-31", out)
}

func TestVerifyRejectsExpiredAndForeignTokens(t *testing.T) {
	_, token, _ := exec("sign", "--card", "C-1", "--expiry", "2025-07-14")
	code, _, errOut := exec("verify", "--token", token)
	assert.Equal(t, 1, code)
	assert.Equal(t, "invalid: token_expired", errOut)

	_, token, _ = exec("sign", "--card", "C-1", "--expiry", "2025-12-31")
	other := strings.Repeat("ff", 32)
	code, _, errOut = exec("verify", "--token", token, "--secret", other)
	assert.Equal(t, 1, code)
	assert.Equal(t, "invalid: signature_invalid", errOut)
}

func TestKeygen(t *testing.T) {
	code, key, _ := exec("keygen", "--bytes", "32")
	require.Equal(t, 0, code)
	assert.Len(t, key, 64)

	code, _, _ = exec("keygen", "--bytes", "4")
	assert.Equal(t, 1, code)
}

func TestSignWithoutSecret(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run([]string{"sign", "--card", "C-1", "--expiry", "2025-12-31"}, &out, &errOut, "", fixedNow)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut.String(), "secret_missing")
}

func TestUsage(t *testing.T) {
	code, _, errOut := exec()
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "usage: cardctl")

	code, _, _ = exec("frobnicate")
	assert.Equal(t, 2, code)
}
