package infra

import (
	"context"
	"encoding/base64"
	"fmt"

	kms "cloud.google.com/go/kms/apiv1"
	kmspb "cloud.google.com/go/kms/apiv1/kmspb"

	"environment-key-service/config"
)

// KMSClient はCloud KMSクライアントをラップする。
// マスターキーをKMSで暗号化した状態で配布する構成で、起動時の復号にのみ使う。
type KMSClient struct {
	client  *kms.KeyManagementClient
	keyName string
}

// NewKMSClient は指定された鍵名でKMSClientを生成する。
func NewKMSClient(ctx context.Context, keyName string) (*KMSClient, error) {
	if keyName == "" {
		return nil, fmt.Errorf("KMS_KEY_NAME is required")
	}

	client, err := kms.NewKeyManagementClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating KMS client: %w", err)
	}

	return &KMSClient{
		client:  client,
		keyName: keyName,
	}, nil
}

// Encrypt は平文をCloud KMSで暗号化する。
func (c *KMSClient) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	resp, err := c.client.Encrypt(ctx, &kmspb.EncryptRequest{
		Name:      c.keyName,
		Plaintext: plaintext,
	})
	if err != nil {
		return nil, fmt.Errorf("encrypting: %w", err)
	}
	return resp.Ciphertext, nil
}

// Decrypt は暗号文をCloud KMSで復号する。
func (c *KMSClient) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	resp, err := c.client.Decrypt(ctx, &kmspb.DecryptRequest{
		Name:       c.keyName,
		Ciphertext: ciphertext,
	})
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	return resp.Plaintext, nil
}

// Close はKMSクライアントを閉じる。
func (c *KMSClient) Close() error {
	return c.client.Close()
}

// MasterKeyDecrypter はラップされたマスターキーを復号する。
type MasterKeyDecrypter interface {
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// LoadMasterKey は設定からマスターキーを取り出す。
// MASTER_KEY が設定されていればそれを使い、なければ MASTER_KEY_CIPHERTEXT を decrypter で復号する。
func LoadMasterKey(ctx context.Context, cfg *config.Config, decrypter MasterKeyDecrypter) ([]byte, error) {
	if cfg.MasterKey != "" {
		key, err := base64.StdEncoding.DecodeString(cfg.MasterKey)
		if err != nil {
			return nil, fmt.Errorf("decoding MASTER_KEY: %w", err)
		}
		return key, nil
	}

	if cfg.MasterKeyCiphertext == "" {
		return nil, fmt.Errorf("MASTER_KEY or MASTER_KEY_CIPHERTEXT is required")
	}
	if decrypter == nil {
		return nil, fmt.Errorf("MASTER_KEY_CIPHERTEXT requires KMS_KEY_NAME")
	}

	wrapped, err := base64.StdEncoding.DecodeString(cfg.MasterKeyCiphertext)
	if err != nil {
		return nil, fmt.Errorf("decoding MASTER_KEY_CIPHERTEXT: %w", err)
	}
	key, err := decrypter.Decrypt(ctx, wrapped)
	if err != nil {
		return nil, fmt.Errorf("unwrapping master key: %w", err)
	}
	return key, nil
}
