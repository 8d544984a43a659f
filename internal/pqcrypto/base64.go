package pqcrypto

import "encoding/base64"

// ToBase64URL codifica em base64 URL-safe sem padding
func ToBase64URL(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

// FromBase64URL aceita base64url com ou sem padding
func FromBase64URL(s string) ([]byte, error) {
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err == nil {
		return data, nil
	}
	return base64.URLEncoding.DecodeString(s)
}
