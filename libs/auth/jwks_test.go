package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func rsaJWK(kid string, pub *rsa.PublicKey) jwk {
	return jwk{
		Kty: "RSA",
		Kid: kid,
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}

func TestJWKSClientCachesKeys(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey failed: %v", err)
	}
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		enc := rsaJWK("enc-1", &key.PublicKey)
		enc.Use = "enc"
		_ = json.NewEncoder(w).Encode(jwks{Keys: []jwk{rsaJWK("kid-1", &key.PublicKey), enc}})
	}))
	defer srv.Close()

	ctx := context.Background()
	client := NewJWKSClient(srv.URL, time.Minute)
	pub, err := client.Get(ctx, "kid-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if pub.N.Cmp(key.PublicKey.N) != 0 {
		t.Fatal("wrong key returned")
	}
	if _, err := client.Get(ctx, "kid-1"); err != nil {
		t.Fatalf("cached Get failed: %v", err)
	}
	if _, err := client.Get(ctx, "enc-1"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("encryption key must be ignored, got %v", err)
	}
	if _, err := client.Get(ctx, "kid-unknown"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("unknown kids inside the refresh floor must not refetch, got %d fetches", hits.Load())
	}

	v := NewVerifier("unused", client)
	token, err := signRS256(Claims{Sub: "doctor-3", Role: "doctor", Exp: time.Now().Add(time.Hour).Unix()}, key, "kid-1")
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	claims, err := v.Verify(ctx, token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.Sub != "doctor-3" {
		t.Fatalf("unexpected subject %q", claims.Sub)
	}
}

func TestJWKSClientRotationAndStaleFallback(t *testing.T) {
	first, _ := rsa.GenerateKey(rand.Reader, 2048)
	second, _ := rsa.GenerateKey(rand.Reader, 2048)
	var mu sync.Mutex
	keys := []jwk{rsaJWK("kid-1", &first.PublicKey)}
	failing := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if failing {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(jwks{Keys: keys})
	}))
	defer srv.Close()

	ctx := context.Background()
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	client := NewJWKSClient(srv.URL, time.Minute)
	client.now = func() time.Time { return current }

	if _, err := client.Get(ctx, "kid-1"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	// A rotated kid is picked up once the refresh floor has passed.
	mu.Lock()
	keys = append(keys, rsaJWK("kid-2", &second.PublicKey))
	mu.Unlock()
	current = current.Add(minJWKSRefresh)
	if _, err := client.Get(ctx, "kid-2"); err != nil {
		t.Fatalf("rotated key not found: %v", err)
	}

	// An expired set keeps serving known kids while the endpoint is down.
	mu.Lock()
	failing = true
	mu.Unlock()
	current = current.Add(2 * time.Minute)
	if _, err := client.Get(ctx, "kid-1"); err != nil {
		t.Fatalf("stale key should still be served: %v", err)
	}
	if _, err := client.Get(ctx, "kid-3"); err == nil || errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected the fetch error for an unknown kid, got %v", err)
	}
}
