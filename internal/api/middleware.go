package api

import (
	"context"
	"net/http"
	"strings"

	"pqchat-backend/internal/apperrors"
)

// contextKey é um tipo privado para evitar colisões de chaves no contexto
type contextKey string

const userContextKey = contextKey("user")

// AuthMiddleware é um middleware para validar o token JWT emitido no login
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		unauthorized := func(msg string) {
			h.respondWithStatus(w, http.StatusUnauthorized, apperrors.KindUnauthorized, msg)
		}

		// 1. Obter o header "Authorization"
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			unauthorized("Token de autorização não fornecido")
			return
		}

		// 2. Verificar se o formato é "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			unauthorized("Formato do token inválido")
			return
		}

		// 3. Validar o token
		token, err := h.tokenService.ValidateToken(parts[1])
		if err != nil {
			unauthorized("Token inválido")
			return
		}

		// 4. Obter o UserID do token
		userID, err := h.tokenService.GetUserIDFromToken(token)
		if err != nil {
			unauthorized("Token inválido (claims)")
			return
		}

		// 5. O usuário precisa continuar existindo
		user, err := h.users.GetUserByID(r.Context(), userID)
		if err != nil {
			unauthorized("Usuário do token não encontrado")
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
