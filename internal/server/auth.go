package server

import (
	"context"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"github.com/gravitas-games/gridstash/internal/config"
	"github.com/gravitas-games/gridstash/pkg/models"
)

var (
	ErrAccountInactive = errors.New("auth: account not activated")
	ErrAccountBanned   = errors.New("auth: account banned")
	ErrTokenRevoked    = errors.New("auth: token revoked")
)

// TokenValidator turns a bearer token into an authenticated player.
type TokenValidator interface {
	ValidateToken(ctx context.Context, tokenString string) (*models.Player, error)
}

// Claims is the token payload issued by the login service.
type Claims struct {
	UserID      int64  `json:"user_id"`
	Email       string `json:"email"`
	Username    string `json:"username"`
	UserType    string `json:"user_type"`
	AuthMethod  string `json:"auth_method"`
	Permissions int64  `json:"permissions"`
	Activated   int64  `json:"activated"`
	jwt.RegisteredClaims
}

// JWTValidator verifies ECDSA-signed player tokens against the login
// service's published key and the revocation list in redis.
type JWTValidator struct {
	config    *config.Config
	publicKey *ecdsa.PublicKey
	keyMu     sync.RWMutex
	redis     *redis.Client
	logger    logrus.FieldLogger
}

// NewJWTValidator fetches the signing key and keeps it fresh until ctx ends.
func NewJWTValidator(ctx context.Context, cfg *config.Config, redisClient *redis.Client, logger logrus.FieldLogger) (*JWTValidator, error) {
	v := &JWTValidator{
		config: cfg,
		redis:  redisClient,
		logger: logger.WithField("component", "jwt"),
	}
	if err := v.RefreshPublicKey(ctx); err != nil {
		return nil, err
	}
	go v.refreshLoop(ctx, time.Duration(cfg.JWT.PublicKeyRefreshHrs)*time.Hour)
	v.logger.Info("JWT validator initialized.")
	return v, nil
}

// RefreshPublicKey downloads and installs the PEM-encoded signing key.
func (v *JWTValidator) RefreshPublicKey(ctx context.Context) error {
	url := v.config.JWT.PublicKeyURL
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("public key request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch public key from %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch public key from %s: status %d", url, resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("read public key: %w", err)
	}
	key, err := parsePublicKey(raw)
	if err != nil {
		return err
	}

	v.keyMu.Lock()
	v.publicKey = key
	v.keyMu.Unlock()
	v.logger.Infof("Public key refreshed from %s.", url)
	return nil
}

func parsePublicKey(raw []byte) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, errors.New("public key: no PEM block")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("public key: %w", err)
	}
	key, ok := parsed.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key: expected ECDSA, got %T", parsed)
	}
	return key, nil
}

func (v *JWTValidator) refreshLoop(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := v.RefreshPublicKey(ctx); err != nil {
				v.logger.WithError(err).Warn("Public key refresh failed, keeping the previous key.")
			}
		}
	}
}

func (v *JWTValidator) key(*jwt.Token) (interface{}, error) {
	v.keyMu.RLock()
	defer v.keyMu.RUnlock()
	if v.publicKey == nil {
		return nil, errors.New("no signing key loaded")
	}
	return v.publicKey, nil
}

// ValidateToken checks the signature, issuer, expiry, account state and
// revocation list, then builds the player the token belongs to.
func (v *JWTValidator) ValidateToken(ctx context.Context, tokenString string) (*models.Player, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"ES256", "ES384", "ES512"}),
		jwt.WithIssuer(v.config.JWT.Issuer),
	)
	claims := &Claims{}
	if _, err := parser.ParseWithClaims(tokenString, claims, v.key); err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if err := checkAccount(claims); err != nil {
		return nil, err
	}
	if v.revoked(ctx, claims.UserID) {
		return nil, ErrTokenRevoked
	}
	return playerFromClaims(claims), nil
}

// checkAccount rejects accounts that are not activated (0) or banned (-1).
func checkAccount(c *Claims) error {
	switch {
	case c.Activated == -1:
		return ErrAccountBanned
	case c.Activated <= 0:
		return ErrAccountInactive
	}
	return nil
}

// revoked reports whether the user sits on the redis blacklist. Lookup
// failures let the token through.
func (v *JWTValidator) revoked(ctx context.Context, userID int64) bool {
	if v.redis == nil {
		return false
	}
	key := v.config.Redis.BlacklistPrefix + strconv.FormatInt(userID, 10)
	n, err := v.redis.Exists(ctx, key).Result()
	if err != nil {
		v.logger.WithError(err).Warnf("Blacklist lookup for user %d failed.", userID)
		return false
	}
	return n > 0
}

// playerFromClaims builds the player model. The character and its backpack
// are keyed by the user ID so inventories survive reconnects.
func playerFromClaims(claims *Claims) *models.Player {
	id := strconv.FormatInt(claims.UserID, 10)
	player := &models.Player{
		ID:          id,
		Username:    claims.Username,
		Email:       claims.Email,
		UserType:    claims.UserType,
		Permissions: claims.Permissions,
		Activated:   claims.Activated,
		AuthMethod:  claims.AuthMethod,
		CharacterID: id,
	}
	player.InventoryID = player.InventoryKey()
	return player
}

// extractTokenFromHeader looks for a token in the websocket subprotocol
// ("access_token, <token>"), then a bearer Authorization header, then the
// token query parameter.
func extractTokenFromHeader(r *http.Request) string {
	if parts := splitProtocols(r.Header.Get("Sec-WebSocket-Protocol")); len(parts) == 2 && parts[0] == "access_token" {
		return parts[1]
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && token != "" {
		return token
	}
	return r.URL.Query().Get("token")
}

func splitProtocols(header string) []string {
	var out []string
	for _, part := range strings.Split(header, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
