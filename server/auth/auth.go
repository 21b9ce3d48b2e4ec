// server/auth/auth.go
package auth

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// operatorStore holds admin credentials (lower-cased name -> bcrypt hash).
type operatorStore struct {
	mu    sync.RWMutex
	users map[string]string
}

func (s *operatorStore) get(username string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.users[strings.ToLower(username)]
	return h, ok
}

type Auth struct {
	users  *operatorStore
	jwtKey []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewAuth builds an authenticator over a fixed operator list. An empty secret
// gets a random per-process key, so tokens do not survive a restart.
func NewAuth(users map[string]string, secret string, ttl time.Duration) *Auth {
	store := &operatorStore{users: make(map[string]string, len(users))}
	for name, hash := range users {
		store.users[strings.ToLower(name)] = hash
	}
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		_, _ = rand.Read(key)
		log.Println("ADMIN: no jwt secret configured, using a random key")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Auth{users: store, jwtKey: key, issuer: "LayerEdgeDefender", ttl: ttl, now: time.Now}
}

// HashPassword returns the bcrypt hash to put under admin.users in config.
func HashPassword(password string) (string, error) {
	if len(password) < 6 {
		return "", errors.New("password too short")
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

type LoginReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
type LoginResp struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

// HandleLogin handles POST /admin/login.
func (a *Auth) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req LoginReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	hash, ok := a.users.get(req.Username)
	if !ok || bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)) != nil {
		log.Printf("ADMIN: failed login for %q", req.Username)
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	signed, err := a.issue(strings.ToLower(req.Username))
	if err != nil {
		http.Error(w, "token error", http.StatusInternalServerError)
		return
	}
	log.Printf("ADMIN: %s logged in", req.Username)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(LoginResp{Token: signed, Username: req.Username})
}

func (a *Auth) issue(subject string) (string, error) {
	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    a.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.jwtKey)
}

// ParseToken validates tok and returns its subject.
func (a *Auth) ParseToken(tok string) (string, error) {
	if tok == "" {
		return "", errors.New("missing token")
	}
	var claims jwt.RegisteredClaims
	t, err := jwt.ParseWithClaims(tok, &claims, func(t *jwt.Token) (interface{}, error) {
		return a.jwtKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil || !t.Valid {
		return "", errors.New("invalid token")
	}
	if claims.Subject == "" {
		return "", errors.New("bad claims")
	}
	if _, ok := a.users.get(claims.Subject); !ok {
		return "", errors.New("unknown operator")
	}
	return claims.Subject, nil
}

// RequireAuth protects admin endpoints with a bearer token.
func (a *Auth) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var tok string
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			tok = strings.TrimPrefix(h, "Bearer ")
		}
		user, err := a.ParseToken(tok)
		if err != nil || user == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
