// Package middleware carries the request guards: DID token validation,
// role checks and the active-account check.
package middleware

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cryptoperk/cryptoperk-backend/shared/apperrors"
	"github.com/cryptoperk/cryptoperk-backend/shared/models"
	"github.com/cryptoperk/cryptoperk-backend/shared/utils"
)

// TokenClaim is the decoded claim half of a DID token
type TokenClaim struct {
	Iat int64  `json:"iat"`
	Ext int64  `json:"ext"`
	Iss string `json:"iss"`
	Sub string `json:"sub"`
	Aud string `json:"aud"`
	Nbf int64  `json:"nbf"`
	Tid string `json:"tid"`
	Add string `json:"add"`
}

// Identity is the result of a successful token validation
type Identity struct {
	Issuer        string     `json:"issuer"`
	PublicAddress string     `json:"public_address"`
	Claim         TokenClaim `json:"claim"`
}

// AuthMiddleware validates DID tokens and enforces role and activity gates
type AuthMiddleware struct {
	db *gorm.DB
}

// NewAuthMiddleware creates the middleware over the shared database handle
func NewAuthMiddleware(db *gorm.DB) *AuthMiddleware {
	return &AuthMiddleware{db: db}
}

// ValidateDIDToken decodes and verifies a DID token. The token is a base64
// JSON array [proof, claim] where proof is a hex signature over the
// personal-message hash of the raw claim string. The recovered signer must
// match the address embedded in the claim's iss field.
func ValidateDIDToken(token string) (*Identity, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("malformed token encoding: %w", err)
	}

	var parts [2]string
	if err := json.Unmarshal(raw, &parts); err != nil {
		return nil, fmt.Errorf("malformed token payload: %w", err)
	}
	proof, claimJSON := parts[0], parts[1]

	var claim TokenClaim
	if err := json.Unmarshal([]byte(claimJSON), &claim); err != nil {
		return nil, fmt.Errorf("malformed token claim: %w", err)
	}

	signature, err := hexutil.Decode(proof)
	if err != nil {
		return nil, fmt.Errorf("malformed token proof: %w", err)
	}
	if len(signature) != crypto.SignatureLength {
		return nil, fmt.Errorf("unexpected proof length %d", len(signature))
	}
	// Wallets emit V as 27/28, the recovery code wants 0/1.
	if signature[crypto.RecoveryIDOffset] >= 27 {
		signature[crypto.RecoveryIDOffset] -= 27
	}

	hash := accounts.TextHash([]byte(claimJSON))
	pubKey, err := crypto.SigToPub(hash, signature)
	if err != nil {
		return nil, fmt.Errorf("proof recovery failed: %w", err)
	}
	recovered := crypto.PubkeyToAddress(*pubKey).Hex()

	issParts := strings.Split(claim.Iss, ":")
	issAddress := issParts[len(issParts)-1]
	if !strings.EqualFold(recovered, issAddress) {
		return nil, fmt.Errorf("proof signer does not match issuer")
	}

	now := time.Now().Unix()
	if claim.Ext != 0 && now > claim.Ext {
		return nil, fmt.Errorf("token expired")
	}
	if claim.Nbf != 0 && now < claim.Nbf {
		return nil, fmt.Errorf("token not yet valid")
	}

	return &Identity{
		Issuer:        claim.Iss,
		PublicAddress: recovered,
		Claim:         claim,
	}, nil
}

// RequireAuth validates the bearer DID token and stores the caller's
// identity on the context. A missing or malformed header is a client error;
// a well-formed token that fails validation is an auth failure.
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			utils.BadRequestResponse(c, "Authorization token required")
			c.Abort()
			return
		}
		token := strings.TrimPrefix(authHeader, "Bearer ")

		identity, err := am.validateCached(token)
		if err != nil {
			utils.UnauthorizedResponse(c, "Invalid token")
			c.Abort()
			return
		}

		c.Set("issuer", identity.Issuer)
		c.Set("public_address", identity.PublicAddress)
		c.Next()
	}
}

// validateCached checks the validated-token cache before doing signature
// recovery. Validation results are cached for an hour keyed by token hash.
func (am *AuthMiddleware) validateCached(token string) (*Identity, error) {
	cacheKey := tokenCacheKey(token)
	if cached, err := utils.CacheGet(cacheKey); err == nil {
		var identity Identity
		if err := json.Unmarshal([]byte(cached), &identity); err == nil {
			return &identity, nil
		}
	}

	identity, err := ValidateDIDToken(token)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(identity); err == nil {
		_ = utils.CacheSet(cacheKey, string(data), 1*time.Hour)
	}
	return identity, nil
}

func tokenCacheKey(token string) string {
	hash := sha256.Sum256([]byte(token))
	return "token:" + hex.EncodeToString(hash[:])
}

// RequireRole rejects callers whose persisted role is not in the allowed
// set. The response never reveals which role was required.
func (am *AuthMiddleware) RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := am.contextUser(c)
		if err != nil {
			utils.RespondError(c, err)
			c.Abort()
			return
		}

		for _, role := range roles {
			if user.Role == role {
				c.Next()
				return
			}
		}

		utils.RespondError(c, apperrors.Forbidden())
		c.Abort()
	}
}

// RequireActive rejects callers who are not enrolled or have been fired.
// SuperAdmins always pass.
func (am *AuthMiddleware) RequireActive() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := am.contextUser(c)
		if err != nil {
			utils.RespondError(c, err)
			c.Abort()
			return
		}

		if !user.IsActive() {
			utils.RespondError(c, apperrors.Forbidden())
			c.Abort()
			return
		}
		c.Next()
	}
}

func (am *AuthMiddleware) contextUser(c *gin.Context) (*models.User, error) {
	return CurrentUser(c, am.db)
}

// CurrentUser returns the authenticated caller's user row for handlers.
// RequireAuth must have run on the route.
func CurrentUser(c *gin.Context, db *gorm.DB) (*models.User, error) {
	if cached, ok := c.Get("user"); ok {
		if user, ok := cached.(*models.User); ok {
			return user, nil
		}
	}

	issuer := c.GetString("issuer")
	if issuer == "" {
		return nil, apperrors.Unauthorized("Authentication required")
	}

	var user models.User
	if err := db.Where("issuer = ?", issuer).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Unauthorized("User not found")
		}
		return nil, err
	}

	c.Set("user", &user)
	return &user, nil
}
