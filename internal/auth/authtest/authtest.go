// ABOUTME: Test helpers for issuing signed tokens and serving a JWKS document
// ABOUTME: Used by auth, mcp, and gateway tests to exercise real key fetching

package authtest

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer is the issuer used by Claims.
const Issuer = "https://issuer.test"

// Key is a signing key pair with its key ID.
type Key struct {
	ID      string
	Method  jwt.SigningMethod
	private any
	public  crypto.PublicKey
}

// NewRSA generates a 2048-bit RS256 key.
func NewRSA(t testing.TB, kid string) *Key {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating rsa key: %v", err)
	}
	return &Key{ID: kid, Method: jwt.SigningMethodRS256, private: priv, public: &priv.PublicKey}
}

// NewEC generates a P-256 ES256 key.
func NewEC(t testing.TB, kid string) *Key {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generating ec key: %v", err)
	}
	return &Key{ID: kid, Method: jwt.SigningMethodES256, private: priv, public: &priv.PublicKey}
}

// NewEd25519 generates an EdDSA key.
func NewEd25519(t testing.TB, kid string) *Key {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generating ed25519 key: %v", err)
	}
	return &Key{ID: kid, Method: jwt.SigningMethodEdDSA, private: priv, public: pub}
}

// Public returns the verification key.
func (k *Key) Public() crypto.PublicKey { return k.public }

// JWK returns the public key in JSON Web Key form.
func (k *Key) JWK() map[string]string {
	enc := base64.RawURLEncoding.EncodeToString
	m := map[string]string{"kid": k.ID, "use": "sig", "alg": k.Method.Alg()}

	switch pub := k.public.(type) {
	case *rsa.PublicKey:
		m["kty"] = "RSA"
		m["n"] = enc(pub.N.Bytes())
		m["e"] = enc(big.NewInt(int64(pub.E)).Bytes())
	case *ecdsa.PublicKey:
		ek, err := pub.ECDH()
		if err != nil {
			panic(err)
		}
		point := ek.Bytes()[1:]
		size := len(point) / 2
		m["kty"] = "EC"
		m["crv"] = pub.Curve.Params().Name
		m["x"] = enc(point[:size])
		m["y"] = enc(point[size:])
	case ed25519.PublicKey:
		m["kty"] = "OKP"
		m["crv"] = "Ed25519"
		m["x"] = enc(pub)
	}
	return m
}

// Sign issues a token for claims with this key's kid in the header.
func (k *Key) Sign(t testing.TB, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(k.Method, claims)
	tok.Header["kid"] = k.ID
	s, err := tok.SignedString(k.private)
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return s
}

// SignWithoutKeyID issues a token for claims with no kid header.
func (k *Key) SignWithoutKeyID(t testing.TB, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(k.Method, claims).SignedString(k.private)
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return s
}

// Claims returns standard claims for subject issued by Issuer, expiring after ttl.
func Claims(subject string, ttl time.Duration) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss": Issuer,
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
}

// Server serves a JWKS document and counts requests.
type Server struct {
	*httptest.Server

	mu     sync.Mutex
	keys   []*Key
	status int
	delay  time.Duration
	hits   atomic.Int64
}

// NewServer starts a JWKS server publishing keys. It is closed on test cleanup.
func NewServer(t testing.TB, keys ...*Key) *Server {
	s := &Server{keys: keys, status: http.StatusOK}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// JWKSURL is the URL of the key set document.
func (s *Server) JWKSURL() string { return s.URL + "/.well-known/jwks.json" }

// Hits reports how many key set requests were served.
func (s *Server) Hits() int64 { return s.hits.Load() }

// SetKeys replaces the published keys.
func (s *Server) SetKeys(keys ...*Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = keys
}

// SetStatus makes the server answer with code instead of the key set.
func (s *Server) SetStatus(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = code
}

// SetDelay makes every response wait d before being written.
func (s *Server) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	s.hits.Add(1)

	s.mu.Lock()
	keys, status, delay := s.keys, s.status, s.delay
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}

	set := struct {
		Keys []map[string]string `json:"keys"`
	}{Keys: make([]map[string]string, 0, len(keys))}
	for _, k := range keys {
		set.Keys = append(set.Keys, k.JWK())
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(set)
}
