package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrSignatureMismatch is returned when a signature does not cover the
// manifest it is checked against.
var ErrSignatureMismatch = errors.New("manifest signature mismatch")

// SignatureClaims bind a signature to one manifest by digest.
type SignatureClaims struct {
	jwt.RegisteredClaims
	ManifestSha256 string `json:"manifestSha256"`
	Items          int    `json:"items"`
}

// Digest hashes the canonical JSON form of m.
func Digest(m Manifest) (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Sign returns an RS256 token over the manifest digest. keyPEM holds a
// PKCS#1 or PKCS#8 RSA private key.
func Sign(m Manifest, keyPEM []byte) (string, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(keyPEM)
	if err != nil {
		return "", fmt.Errorf("signing key: %w", err)
	}
	digest, err := Digest(m)
	if err != nil {
		return "", err
	}
	claims := SignatureClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       m.RunID,
			Subject:  "manifest",
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
		ManifestSha256: digest,
		Items:          len(m.Items),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign manifest: %w", err)
	}
	return token, nil
}

// VerifySignature checks token against m. pubPEM may hold an RSA public
// key or a certificate.
func VerifySignature(m Manifest, token string, pubPEM []byte) (*SignatureClaims, error) {
	pub, err := jwt.ParseRSAPublicKeyFromPEM(pubPEM)
	if err != nil {
		return nil, fmt.Errorf("verification key: %w", err)
	}
	claims := &SignatureClaims{}
	_, err = jwt.ParseWithClaims(strings.TrimSpace(token), claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return pub, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureMismatch, err)
	}
	digest, err := Digest(m)
	if err != nil {
		return nil, err
	}
	if claims.ManifestSha256 != digest || claims.ID != m.RunID {
		return nil, ErrSignatureMismatch
	}
	return claims, nil
}

// SignFile signs m with the key at keyPath and writes the token to out.
func SignFile(m Manifest, keyPath, out string) error {
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return err
	}
	token, err := Sign(m, keyPEM)
	if err != nil {
		return err
	}
	return os.WriteFile(out, []byte(token+"\n"), 0o644)
}

// VerifyFile checks the token stored at tokenPath.
func VerifyFile(m Manifest, tokenPath, pubPath string) (*SignatureClaims, error) {
	token, err := os.ReadFile(tokenPath)
	if err != nil {
		return nil, err
	}
	pubPEM, err := os.ReadFile(pubPath)
	if err != nil {
		return nil, err
	}
	return VerifySignature(m, string(token), pubPEM)
}
