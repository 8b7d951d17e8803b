package infra

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	wrapping "github.com/hashicorp/go-kms-wrapping/v2"
	aead "github.com/hashicorp/go-kms-wrapping/v2/aead"
	"golang.org/x/crypto/hkdf"
	"google.golang.org/protobuf/proto"

	"environment-key-service/internal/domain"
)

const (
	// MinMasterKeyLength はマスターキーの最小バイト長。
	MinMasterKeyLength = 32

	dataKeyLength = 32 // AES-256
	gcmNonceSize  = 12
	gcmTagSize    = 16
	dataKeyInfo   = "environment-key-service/environment-key-material/v1"
)

// SecretsManager は鍵素材をリソースIDに束縛して暗号化・復号する。
// リソースIDはAES-GCMの追加認証データとして扱うため、別のリソースIDでは復号できない。
// 生成後は状態を変更しないので、複数のgoroutineから同時に利用してよい。
type SecretsManager struct {
	wrapper *aead.Wrapper
}

// NewSecretsManager はマスターキーからデータ暗号化鍵を導出してSecretsManagerを生成する。
func NewSecretsManager(masterKey []byte) (*SecretsManager, error) {
	if len(masterKey) < MinMasterKeyLength {
		return nil, fmt.Errorf("%w: master key must be at least %d bytes, got %d",
			domain.ErrEncryption, MinMasterKeyLength, len(masterKey))
	}

	dataKey := make([]byte, dataKeyLength)
	if _, err := io.ReadFull(hkdf.New(sha256.New, masterKey, nil, []byte(dataKeyInfo)), dataKey); err != nil {
		return nil, fmt.Errorf("%w: deriving data key: %v", domain.ErrEncryption, err)
	}

	fingerprint := sha256.Sum256(dataKey)
	w := aead.NewWrapper()
	if _, err := w.SetConfig(context.Background(), wrapping.WithKeyId(hex.EncodeToString(fingerprint[:8]))); err != nil {
		return nil, fmt.Errorf("%w: configuring wrapper: %v", domain.ErrEncryption, err)
	}
	if err := w.SetAesGcmKeyBytes(dataKey); err != nil {
		return nil, fmt.Errorf("%w: setting data key: %v", domain.ErrEncryption, err)
	}

	return &SecretsManager{wrapper: w}, nil
}

// KeyID はデータ暗号化鍵の識別子（鍵のフィンガープリント）を返す。
func (m *SecretsManager) KeyID() string {
	id, _ := m.wrapper.KeyId(context.Background())
	return id
}

// Encrypt は平文を暗号化し、nonce・認証タグを含む自己完結した文字列を返す。
func (m *SecretsManager) Encrypt(ctx context.Context, plaintext string, resourceID string) (string, error) {
	if resourceID == "" {
		return "", fmt.Errorf("%w: resource id is required", domain.ErrEncryption)
	}

	blob, err := m.wrapper.Encrypt(ctx, []byte(plaintext), wrapping.WithAad([]byte(resourceID)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrEncryption, err)
	}
	raw, err := proto.Marshal(blob)
	if err != nil {
		return "", fmt.Errorf("%w: marshaling blob: %v", domain.ErrEncryption, err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Decrypt は Encrypt の出力を復号する。暗号化時と異なるリソースIDでは必ず失敗する。
func (m *SecretsManager) Decrypt(ctx context.Context, ciphertext string, resourceID string) (string, error) {
	if resourceID == "" {
		return "", fmt.Errorf("%w: resource id is required", domain.ErrDecryption)
	}

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: malformed ciphertext: %v", domain.ErrDecryption, err)
	}
	var blob wrapping.BlobInfo
	if err := proto.Unmarshal(raw, &blob); err != nil {
		return "", fmt.Errorf("%w: malformed ciphertext: %v", domain.ErrDecryption, err)
	}
	// nonce と認証タグに満たないものはwrapperに渡さない
	if len(blob.Ciphertext) < gcmNonceSize+gcmTagSize {
		return "", fmt.Errorf("%w: ciphertext too short", domain.ErrDecryption)
	}

	plaintext, err := m.wrapper.Decrypt(ctx, &blob, wrapping.WithAad([]byte(resourceID)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrDecryption, err)
	}
	return string(plaintext), nil
}
