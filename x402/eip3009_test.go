package x402

import (
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testChainID   = int64(338)
	testTokenName = "USD Coin"
	testToken     = "0x3333333333333333333333333333333333333333"
	testPayee     = "0x2222222222222222222222222222222222222222"
)

// signedAuth mints a real signed authorization from a fresh key.
func signedAuth(t *testing.T, value string) (*PaymentAuthorization, string) {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	payer := crypto.PubkeyToAddress(key.PublicKey).Hex()

	now := time.Now().Unix()
	auth := &PaymentAuthorization{
		From:        payer,
		To:          testPayee,
		Value:       value,
		ValidAfter:  now - 60,
		ValidBefore: now + 600,
		Nonce:       RandomNonce(),
		Asset:       testToken,
		Network:     "cronos-testnet",
	}
	require.NoError(t, SignAuthorization(auth, key, testChainID, testTokenName))
	return auth, payer
}

func TestSignAndRecoverAuthorizer(t *testing.T) {
	auth, payer := signedAuth(t, "250000")

	recovered, err := RecoverAuthorizer(auth, testChainID, testTokenName)
	require.NoError(t, err)
	assert.Equal(t, payer, recovered.Hex())
}

func TestRecoverRejectsTamperedSignature(t *testing.T) {
	auth, payer := signedAuth(t, "250000")

	// Flip one byte of the signature; recovery must no longer yield the payer.
	sig, err := hex.DecodeString(strings.TrimPrefix(auth.Signature, "0x"))
	require.NoError(t, err)
	sig[10] ^= 0xff
	auth.Signature = "0x" + hex.EncodeToString(sig)

	recovered, err := RecoverAuthorizer(auth, testChainID, testTokenName)
	if err == nil {
		assert.NotEqual(t, payer, recovered.Hex())
	}
}

func TestRecoverRejectsTamperedMessage(t *testing.T) {
	auth, payer := signedAuth(t, "250000")

	// The signature covers the value; changing it invalidates the recovery.
	auth.Value = "999999"

	recovered, err := RecoverAuthorizer(auth, testChainID, testTokenName)
	if err == nil {
		assert.NotEqual(t, payer, recovered.Hex())
	}
}

func TestHashAuthorizationDependsOnDomain(t *testing.T) {
	auth, _ := signedAuth(t, "250000")

	h1, err := HashAuthorization(auth, testChainID, testTokenName)
	require.NoError(t, err)
	h2, err := HashAuthorization(auth, testChainID+1, testTokenName)
	require.NoError(t, err)
	h3, err := HashAuthorization(auth, testChainID, "Other Token")
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2, "chain id must bind the signature")
	assert.NotEqual(t, h1, h3, "token name must bind the signature")
}

func TestRandomNonceShape(t *testing.T) {
	n1 := RandomNonce()
	n2 := RandomNonce()
	assert.Len(t, n1, 66)
	assert.True(t, strings.HasPrefix(n1, "0x"))
	assert.NotEqual(t, n1, n2)
}
