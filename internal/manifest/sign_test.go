package manifest

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeKeyPair(t *testing.T, dir string) (keyPath, pubPath string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("MarshalPKIXPublicKey: %v", err)
	}
	keyPath = filepath.Join(dir, "key.pem")
	pubPath = filepath.Join(dir, "pub.pem")
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(pubPath, pubPEM, 0o644); err != nil {
		t.Fatal(err)
	}
	return keyPath, pubPath
}

func TestSignAndVerifyAfterReload(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "sample.ocl")
	if err := os.WriteFile(data, []byte("3150x"), 0o644); err != nil {
		t.Fatal(err)
	}
	keyPath, pubPath := writeKeyPair(t, dir)
	m, err := Build("", []string{data})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	manifestPath := filepath.Join(dir, "manifest.json")
	if err := Save(m, manifestPath); err != nil {
		t.Fatalf("Save: %v", err)
	}
	tokenPath := filepath.Join(dir, "manifest.jwt")
	if err := SignFile(m, keyPath, tokenPath); err != nil {
		t.Fatalf("SignFile: %v", err)
	}

	loaded, err := Load(manifestPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	claims, err := VerifyFile(loaded, tokenPath, pubPath)
	if err != nil {
		t.Fatalf("VerifyFile: %v", err)
	}
	if claims.ID != m.RunID || claims.Items != 1 {
		t.Fatalf("claims = %+v", claims)
	}

	loaded.Items[0].Size++
	if _, err := VerifyFile(loaded, tokenPath, pubPath); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("err = %v, want ErrSignatureMismatch", err)
	}
}

func TestVerifyRejectsOtherKey(t *testing.T) {
	dir := t.TempDir()
	keyPath, _ := writeKeyPair(t, dir)
	_, otherPub := writeKeyPair(t, t.TempDir())
	m := Manifest{RunID: NewRunID(), ShaAlgo: "sha256"}
	keyPEM, _ := os.ReadFile(keyPath)
	token, err := Sign(m, keyPEM)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	pubPEM, _ := os.ReadFile(otherPub)
	if _, err := VerifySignature(m, token, pubPEM); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("err = %v, want ErrSignatureMismatch", err)
	}
}
