package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dgellow/launch-bridge/internal/cookie"
	"github.com/dgellow/launch-bridge/internal/crypto"
	"github.com/dgellow/launch-bridge/internal/idp"
	jsonwriter "github.com/dgellow/launch-bridge/internal/json"
	"github.com/dgellow/launch-bridge/internal/log"
	"github.com/dgellow/launch-bridge/internal/session"
	"github.com/dgellow/launch-bridge/internal/storage"
	"github.com/google/uuid"
)

const (
	loginStateTTL   = 10 * time.Minute
	codeExchangeTTL = 30 * time.Second
)

// AuthHandlers runs the login flow that produces the dashboard session cookie
type AuthHandlers struct {
	provider         idp.Provider
	storage          storage.Storage
	sessionEncryptor crypto.Encryptor
	loginStateToken  crypto.TokenSigner
	csrf             crypto.CSRFProtection
	jar              cookie.Jar
	sessionTTL       time.Duration
}

// NewAuthHandlers creates new auth handlers with dependency injection
func NewAuthHandlers(
	provider idp.Provider,
	storage storage.Storage,
	sessionEncryptor crypto.Encryptor,
	stateKey []byte,
	csrf crypto.CSRFProtection,
	jar cookie.Jar,
	sessionTTL time.Duration,
) *AuthHandlers {
	return &AuthHandlers{
		provider:         provider,
		storage:          storage,
		sessionEncryptor: sessionEncryptor,
		loginStateToken:  crypto.NewTokenSigner(stateKey, loginStateTTL),
		csrf:             csrf,
		jar:              jar,
		sessionTTL:       sessionTTL,
	}
}

// LoginHandler redirects to the identity provider. return_to must be a local path.
func (h *AuthHandlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	returnURL := sanitizeReturnURL(r.URL.Query().Get("return_to"))

	nonce, err := crypto.GenerateSecureToken()
	if err != nil {
		log.LogError("Failed to generate login state nonce: %v", err)
		jsonwriter.WriteInternalServerError(w, "Failed to generate authentication state")
		return
	}

	state, err := h.loginStateToken.Sign(session.AuthorizationState{
		Nonce:     nonce,
		ReturnURL: returnURL,
	})
	if err != nil {
		log.LogError("Failed to sign login state: %v", err)
		jsonwriter.WriteInternalServerError(w, "Failed to generate authentication state")
		return
	}

	http.Redirect(w, r, h.provider.AuthURL(state), http.StatusFound)
}

// CallbackHandler completes the login, records the user and sets the session cookie
func (h *AuthHandlers) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if errMsg := query.Get("error"); errMsg != "" {
		log.LogErrorWithFields("auth", "Identity provider returned an error", map[string]any{
			"error":       errMsg,
			"description": query.Get("error_description"),
		})
		jsonwriter.WriteBadRequest(w, fmt.Sprintf("Authentication failed: %s", errMsg))
		return
	}

	state := query.Get("state")
	code := query.Get("code")
	if state == "" || code == "" {
		log.LogError("Missing state or code in callback")
		jsonwriter.WriteBadRequest(w, "Invalid callback parameters")
		return
	}

	var loginState session.AuthorizationState
	if err := h.loginStateToken.Verify(state, &loginState); err != nil {
		log.LogError("Invalid login state: %v", err)
		jsonwriter.WriteBadRequest(w, "Invalid state parameter")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), codeExchangeTTL)
	defer cancel()

	token, err := h.provider.ExchangeCode(ctx, code)
	if err != nil {
		log.LogError("Failed to exchange code: %v", err)
		jsonwriter.WriteBadGateway(w, "Authentication failed")
		return
	}

	identity, err := h.provider.UserInfo(ctx, token)
	if err != nil {
		log.LogWarnWithFields("auth", "User validation failed", map[string]any{
			"provider": h.provider.Type(),
			"error":    err.Error(),
		})
		jsonwriter.WriteForbidden(w, "Access denied")
		return
	}

	sessionID, err := uuid.NewV7()
	if err != nil {
		jsonwriter.WriteInternalServerError(w, "Failed to create session")
		return
	}
	sess := identity.Session(sessionID.String())

	if err := h.storage.UpsertUser(ctx, sess); err != nil {
		log.LogWarnWithFields("auth", "Failed to track user", map[string]any{
			"user_id": sess.UserID,
			"error":   err.Error(),
		})
	}

	jsonData, err := json.Marshal(session.BrowserCookie{
		Session: sess,
		Expires: time.Now().Add(h.sessionTTL),
	})
	if err != nil {
		log.LogError("Failed to marshal session data: %v", err)
		jsonwriter.WriteInternalServerError(w, "Failed to create session")
		return
	}

	encryptedData, err := h.sessionEncryptor.Encrypt(string(jsonData))
	if err != nil {
		log.LogError("Failed to encrypt session: %v", err)
		jsonwriter.WriteInternalServerError(w, "Failed to create session")
		return
	}

	csrfToken, err := h.csrf.Generate()
	if err != nil {
		log.LogError("Failed to generate CSRF token: %v", err)
		jsonwriter.WriteInternalServerError(w, "Failed to create session")
		return
	}

	h.jar.SetSession(w, encryptedData, h.sessionTTL)
	h.jar.SetCSRF(w, csrfToken, h.sessionTTL)

	log.LogInfoWithFields("auth", "Dashboard session created", map[string]any{
		"user_id":   sess.UserID,
		"provider":  sess.Provider,
		"duration":  h.sessionTTL.String(),
		"returnURL": loginState.ReturnURL,
	})

	http.Redirect(w, r, loginState.ReturnURL, http.StatusFound)
}

// LogoutHandler clears the session cookies
func (h *AuthHandlers) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	h.jar.ClearSession(w)
	w.WriteHeader(http.StatusNoContent)
}

// sanitizeReturnURL only allows local absolute paths so the login flow cannot be
// used as an open redirect
func sanitizeReturnURL(raw string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return "/"
	}
	return raw
}
