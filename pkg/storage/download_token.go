package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrTokenInvalid covers malformed, tampered and foreign tokens.
	ErrTokenInvalid = errors.New("invalid download token")
	// ErrTokenExpired is returned for well-signed tokens past their expiry.
	ErrTokenExpired = errors.New("download token expired")
)

// DownloadGrant is what a verified download token entitles its holder to.
type DownloadGrant struct {
	RunID     string
	Path      string
	ExpiresAt time.Time
}

// DownloadSigner issues HMAC-signed tokens for run report downloads. A token names one
// report of one run and carries its own expiry.
type DownloadSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewDownloadSigner builds a signer. A non-positive ttl means 24h.
func NewDownloadSigner(secret string, ttl time.Duration) *DownloadSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &DownloadSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Sign returns a token for the report at rel, which must live in the run's directory.
func (s *DownloadSigner) Sign(runID, rel string) (string, time.Time, error) {
	if len(s.secret) == 0 {
		return "", time.Time{}, errors.New("download signing secret missing")
	}
	if runID == "" || path.Dir(rel) != runID {
		return "", time.Time{}, fmt.Errorf("report %q does not belong to run %q", rel, runID)
	}
	expiresAt := s.now().Add(s.ttl).Truncate(time.Second)
	payload := strings.Join([]string{runID, strconv.FormatInt(expiresAt.Unix(), 10), rel}, "\n")
	enc := base64.RawURLEncoding
	return enc.EncodeToString([]byte(payload)) + "." + enc.EncodeToString(s.mac(payload)), expiresAt, nil
}

// Verify checks the signature and expiry of token.
func (s *DownloadSigner) Verify(token string) (DownloadGrant, error) {
	enc := base64.RawURLEncoding
	body, sig, ok := strings.Cut(token, ".")
	if !ok {
		return DownloadGrant{}, ErrTokenInvalid
	}
	raw, err := enc.DecodeString(body)
	if err != nil {
		return DownloadGrant{}, ErrTokenInvalid
	}
	mac, err := enc.DecodeString(sig)
	if err != nil || !hmac.Equal(mac, s.mac(string(raw))) {
		return DownloadGrant{}, ErrTokenInvalid
	}

	fields := strings.SplitN(string(raw), "\n", 3)
	if len(fields) != 3 || path.Dir(fields[2]) != fields[0] {
		return DownloadGrant{}, ErrTokenInvalid
	}
	exp, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return DownloadGrant{}, ErrTokenInvalid
	}
	grant := DownloadGrant{RunID: fields[0], Path: fields[2], ExpiresAt: time.Unix(exp, 0)}
	if !s.now().Before(grant.ExpiresAt) {
		return grant, ErrTokenExpired
	}
	return grant, nil
}

func (s *DownloadSigner) mac(payload string) []byte {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(payload)) //nolint:errcheck
	return h.Sum(nil)
}
