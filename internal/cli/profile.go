package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"pqchat-backend/internal/client"
	"pqchat-backend/internal/pqcrypto"

	"github.com/BurntSushi/toml"
)

const profileFile = "profile.toml"

// Profile é o estado local de uma identidade: servidor, handle, chaves e token.
// O arquivo contém as chaves secretas e é gravado com permissão 0600.
type Profile struct {
	Server string `toml:"server"`
	Handle string `toml:"handle"`
	Token  string `toml:"token,omitempty"`

	SigningPublicKey string `toml:"signing_public_key"`
	SigningSecretKey string `toml:"signing_secret_key"`
	KEMPublicKey     string `toml:"kem_public_key"`
	KEMSecretKey     string `toml:"kem_secret_key"`
}

func profilePath(home string) string {
	return filepath.Join(home, profileFile)
}

// NewProfile gera chaves novas para handle
func NewProfile(server, handle string) (*Profile, error) {
	id, err := client.NewIdentity(handle)
	if err != nil {
		return nil, err
	}
	return &Profile{
		Server:           server,
		Handle:           handle,
		SigningPublicKey: pqcrypto.ToBase64URL(id.Keys.SigningPublicKey),
		SigningSecretKey: pqcrypto.ToBase64URL(id.Keys.SigningSecretKey),
		KEMPublicKey:     pqcrypto.ToBase64URL(id.Keys.KEMPublicKey),
		KEMSecretKey:     pqcrypto.ToBase64URL(id.Keys.KEMSecretKey),
	}, nil
}

func LoadProfile(home string) (*Profile, error) {
	var p Profile
	if _, err := toml.DecodeFile(profilePath(home), &p); err != nil {
		return nil, fmt.Errorf("falha ao ler perfil (rode 'pqchat init'): %w", err)
	}
	return &p, nil
}

func (p *Profile) Save(home string) error {
	if err := os.MkdirAll(home, 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(profilePath(home), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(p)
}

// Identity reconstrói a identidade a partir das chaves gravadas
func (p *Profile) Identity() (*client.Identity, error) {
	keys := &pqcrypto.IdentityKeys{}
	fields := []struct {
		name string
		in   string
		out  *[]byte
	}{
		{"signing_public_key", p.SigningPublicKey, &keys.SigningPublicKey},
		{"signing_secret_key", p.SigningSecretKey, &keys.SigningSecretKey},
		{"kem_public_key", p.KEMPublicKey, &keys.KEMPublicKey},
		{"kem_secret_key", p.KEMSecretKey, &keys.KEMSecretKey},
	}
	for _, f := range fields {
		b, err := pqcrypto.FromBase64URL(f.in)
		if err != nil || len(b) == 0 {
			return nil, fmt.Errorf("perfil com '%s' inválido", f.name)
		}
		*f.out = b
	}
	return &client.Identity{Handle: p.Handle, Keys: keys}, nil
}

// Client cria o cliente HTTP já com o token salvo
func (p *Profile) Client() (*client.Client, error) {
	return client.New(p.Server, client.WithToken(p.Token))
}
