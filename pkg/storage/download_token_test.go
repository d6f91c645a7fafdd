package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloadSignerRoundTrip(t *testing.T) {
	signer := NewDownloadSigner("secret", time.Hour)
	token, expiresAt, err := signer.Sign("run-1", "run-1/report.csv")
	require.NoError(t, err)
	assert.NotContains(t, token, "/")

	grant, err := signer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "run-1", grant.RunID)
	assert.Equal(t, "run-1/report.csv", grant.Path)
	assert.True(t, grant.ExpiresAt.Equal(expiresAt))
}

func TestDownloadSignerExpiry(t *testing.T) {
	now := time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)
	signer := NewDownloadSigner("secret", time.Minute)
	signer.now = func() time.Time { return now }

	token, _, err := signer.Sign("run-1", "run-1/report.pdf")
	require.NoError(t, err)

	now = now.Add(time.Minute)
	grant, err := signer.Verify(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.Equal(t, "run-1", grant.RunID)
}

func TestDownloadSignerRejects(t *testing.T) {
	signer := NewDownloadSigner("secret", time.Hour)
	token, _, err := signer.Sign("run-1", "run-1/report.csv")
	require.NoError(t, err)

	_, err = NewDownloadSigner("other", time.Hour).Verify(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	body, sig, _ := strings.Cut(token, ".")
	_, err = signer.Verify(body[:len(body)-2] + "AA." + sig)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	for _, garbage := range []string{"", "abc", "a.b.c", "!!.!!"} {
		_, err = signer.Verify(garbage)
		assert.ErrorIs(t, err, ErrTokenInvalid, garbage)
	}

	_, _, err = signer.Sign("run-1", "run-2/report.csv")
	require.Error(t, err)
	_, _, err = NewDownloadSigner("", time.Hour).Sign("run-1", "run-1/report.csv")
	require.Error(t, err)
}
