// Package apperrors define a taxonomia de erros dos protocolos (registro,
// login, contatos e mensagens) e o mapeamento para status HTTP.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifica uma falha de protocolo
type Kind string

const (
	KindStale        Kind = "stale"
	KindBadSignature Kind = "bad_signature"
	KindReplay       Kind = "replay"
	KindExpired      Kind = "expired"
	KindKEMMismatch  Kind = "kem_mismatch"
	KindHandleTaken  Kind = "handle_taken"
	KindNotAContact  Kind = "not_a_contact"
	KindForbidden    Kind = "forbidden"
	KindNotFound     Kind = "not_found"
	KindValidation   Kind = "validation"
	KindUnauthorized Kind = "unauthorized"
	KindInternal     Kind = "internal"
)

// Error é o resultado etiquetado devolvido na fronteira do protocolo
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is compara apenas o Kind, para que errors.Is(err, ErrStale) funcione
// independentemente da mensagem.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinelas para errors.Is()
var (
	ErrStale        = &Error{Kind: KindStale, Message: "timestamp fora da janela de validade"}
	ErrBadSignature = &Error{Kind: KindBadSignature, Message: "assinatura inválida"}
	ErrReplay       = &Error{Kind: KindReplay, Message: "nonce já utilizado"}
	ErrExpired      = &Error{Kind: KindExpired, Message: "desafio ausente ou expirado"}
	ErrKEMMismatch  = &Error{Kind: KindKEMMismatch, Message: "K' não confere"}
	ErrHandleTaken  = &Error{Kind: KindHandleTaken, Message: "handle já registrado"}
	ErrNotAContact  = &Error{Kind: KindNotAContact, Message: "destinatário não está nos contatos"}
	ErrForbidden    = &Error{Kind: KindForbidden, Message: "operação não permitida"}
	ErrNotFound     = &Error{Kind: KindNotFound, Message: "não encontrado"}
	ErrValidation   = &Error{Kind: KindValidation, Message: "dados inválidos"}
	ErrUnauthorized = &Error{Kind: KindUnauthorized, Message: "handle ou assinatura inválidos"}
	ErrInternal     = &Error{Kind: KindInternal, Message: "erro interno"}
)

// New cria um erro com mensagem própria
func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

// Wrap cria um erro preservando a causa original
func Wrap(kind Kind, message string, cause error) error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Validation é um atalho para erros de campo ausente/malformado
func Validation(message string) error {
	return New(KindValidation, message)
}

// NotFound é um atalho para recursos inexistentes
func NotFound(message string) error {
	return New(KindNotFound, message)
}

// Forbidden é um atalho para a parte errada tentando agir
func Forbidden(message string) error {
	return New(KindForbidden, message)
}

// Internal esconde a causa do chamador mas a preserva para log
func Internal(message string, cause error) error {
	return Wrap(KindInternal, message, cause)
}

// KindOf classifica qualquer erro; erros desconhecidos viram KindInternal
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf devolve a mensagem pública do erro (sem a causa interna)
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return ErrInternal.Message
}

// HTTPStatus mapeia o Kind para o status HTTP da resposta
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation, KindExpired:
		return http.StatusBadRequest
	case KindStale, KindBadSignature, KindReplay, KindKEMMismatch, KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden, KindNotAContact:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindHandleTaken:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// FromStatus reconstrói um erro a partir de uma resposta HTTP de erro.
// Usado pelo cliente quando o corpo não traz o Kind.
func FromStatus(status int, kind Kind, message string) error {
	if kind == "" {
		switch status {
		case http.StatusBadRequest:
			kind = KindValidation
		case http.StatusUnauthorized:
			kind = KindUnauthorized
		case http.StatusForbidden:
			kind = KindForbidden
		case http.StatusNotFound:
			kind = KindNotFound
		case http.StatusConflict:
			kind = KindHandleTaken
		default:
			kind = KindInternal
		}
	}
	return &Error{Kind: kind, Message: message}
}
