package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hyperengineering/goalboard/internal/identity"
	"github.com/hyperengineering/goalboard/internal/observability"
	"github.com/hyperengineering/goalboard/internal/types"
)

// SignInAnonymously handles POST /api/v1/auth/anonymous
func (h *Handler) SignInAnonymously(w http.ResponseWriter, r *http.Request) {
	resp, err := h.issuer.SignInAnonymously()
	if err != nil {
		slog.Error("anonymous sign-in failed", "component", "api", "action", "sign_in", "error", err)
		MapStoreError(w, r, err)
		return
	}
	observability.RecordSignIn("anonymous")

	slog.Info("anonymous session issued",
		"component", "api",
		"action", "sign_in",
		"user_id", resp.UserID,
	)
	writeJSON(w, http.StatusOK, resp)
}

// RedeemToken handles POST /api/v1/auth/token
func (h *Handler) RedeemToken(w http.ResponseWriter, r *http.Request) {
	var req types.RedeemTokenRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64*1024)).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}

	resp, err := h.issuer.RedeemCustomToken(req.Token)
	if err != nil {
		level := slog.LevelWarn
		if !errors.Is(err, identity.ErrInvalidToken) && !errors.Is(err, identity.ErrMissingToken) &&
			!errors.Is(err, identity.ErrCustomTokensDisabled) {
			level = slog.LevelError
		}
		slog.Log(r.Context(), level, "custom token rejected",
			"component", "api",
			"action", "redeem_token",
			"error", err,
		)
		MapStoreError(w, r, err)
		return
	}
	observability.RecordSignIn("custom_token")

	slog.Info("custom token redeemed",
		"component", "api",
		"action", "redeem_token",
		"user_id", resp.UserID,
	)
	writeJSON(w, http.StatusOK, resp)
}
