package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/formweave/pkg/domain"
	"github.com/aretw0/formweave/pkg/ports"
)

// encryptedPrefix marks an answer sealed by this middleware.
const encryptedPrefix = "enc:v1:"

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys is a list of old keys to try when decryption fails.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte
}

type encryptionMiddleware struct {
	next   ports.ConversationStore
	config EncryptionConfig
}

// NewEncryptionMiddleware creates a middleware that encrypts respondent answers using AES-GCM.
// Questions and navigation state stay readable so conversations can be listed and inspected.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	if len(config.ActiveKey) != 32 {
		panic("active key must be 32 bytes (AES-256)")
	}
	return func(next ports.ConversationStore) ports.ConversationStore {
		return &encryptionMiddleware{
			next:   next,
			config: config,
		}
	}
}

func (m *encryptionMiddleware) Save(ctx context.Context, state *domain.ConversationState) error {
	// Work on a copy: the caller keeps using the plain state.
	sealed := state.Clone()
	for i := range sealed.Turns {
		answer, err := m.seal(sealed.Turns[i].Answer)
		if err != nil {
			return fmt.Errorf("failed to encrypt turn %d: %w", i, err)
		}
		sealed.Turns[i].Answer = answer
	}
	return m.next.Save(ctx, sealed)
}

func (m *encryptionMiddleware) Load(ctx context.Context, id string) (*domain.ConversationState, error) {
	state, err := m.next.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	plain := state.Clone()
	for i := range plain.Turns {
		answer, err := m.open(plain.Turns[i].Answer)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt turn %d: %w", i, err)
		}
		plain.Turns[i].Answer = answer
	}
	return plain, nil
}

func (m *encryptionMiddleware) ApplyConversationTurn(ctx context.Context, id string, turn domain.Turn) error {
	answer, err := m.seal(turn.Answer)
	if err != nil {
		return fmt.Errorf("failed to encrypt turn %d: %w", turn.Index, err)
	}
	turn.Answer = answer
	return m.next.ApplyConversationTurn(ctx, id, turn)
}

func (m *encryptionMiddleware) Delete(ctx context.Context, id string) error {
	return m.next.Delete(ctx, id)
}

func (m *encryptionMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func (m *encryptionMiddleware) seal(answer string) (string, error) {
	if answer == "" {
		return "", nil
	}
	ciphertext, err := encrypt([]byte(answer), m.config.ActiveKey)
	if err != nil {
		return "", err
	}
	return encryptedPrefix + base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (m *encryptionMiddleware) open(stored string) (string, error) {
	if stored == "" {
		return "", nil
	}
	encoded, ok := strings.CutPrefix(stored, encryptedPrefix)
	if !ok {
		// Fail secure: a configured store only holds sealed answers.
		return "", errors.New("answer is missing encrypted envelope")
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}

	plainText, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return "", err
	}
	return string(plainText), nil
}

// Helpers

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}

	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}

	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:gcm.NonceSize()]
	ciphertextBytes := ciphertext[gcm.NonceSize():]

	return gcm.Open(nil, nonce, ciphertextBytes, nil)
}
