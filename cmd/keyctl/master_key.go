package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"environment-key-service/internal/infra"
)

// masterKeyEncrypter はマスターキーをラップする。*infra.KMSClient が満たす。
type masterKeyEncrypter interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Close() error
}

// newMasterKeyEncrypter はテストで差し替える。
var newMasterKeyEncrypter = func(ctx context.Context, keyName string) (masterKeyEncrypter, error) {
	client, err := infra.NewKMSClient(ctx, keyName)
	if err != nil {
		return nil, err
	}
	return client, nil
}

type wrappedMasterKey struct {
	MasterKeyCiphertext string `json:"master_key_ciphertext"`
}

func masterKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "master-key",
		Short: "Manage the master key",
	}
	cmd.AddCommand(masterKeyWrapCmd())
	return cmd
}

func masterKeyWrapCmd() *cobra.Command {
	var (
		keyName   string
		masterKey string
	)

	cmd := &cobra.Command{
		Use:   "wrap",
		Short: "Wrap a master key with Cloud KMS and print MASTER_KEY_CIPHERTEXT",
		Long: `Wrap a master key with Cloud KMS.
The key is read from --master-key or MASTER_KEY (base64). When neither is set a new random key is generated.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if keyName == "" {
				keyName = os.Getenv("KMS_KEY_NAME")
			}
			if keyName == "" {
				return fmt.Errorf("--kms-key or KMS_KEY_NAME is required")
			}
			if masterKey == "" {
				masterKey = os.Getenv("MASTER_KEY")
			}

			plaintext, err := masterKeyPlaintext(masterKey)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			enc, err := newMasterKeyEncrypter(ctx, keyName)
			if err != nil {
				return err
			}
			defer func() { _ = enc.Close() }()

			wrapped, err := enc.Encrypt(ctx, plaintext)
			if err != nil {
				return fmt.Errorf("wrapping master key: %w", err)
			}

			result := wrappedMasterKey{MasterKeyCiphertext: base64.StdEncoding.EncodeToString(wrapped)}
			body, err := json.Marshal(result)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), body, &result, func(w io.Writer) {
				fmt.Fprintf(w, "MASTER_KEY_CIPHERTEXT=%s\n", result.MasterKeyCiphertext)
			})
		},
	}

	cmd.Flags().StringVar(&keyName, "kms-key", "", "Cloud KMS key name (or set KMS_KEY_NAME)")
	cmd.Flags().StringVar(&masterKey, "master-key", "", "Base64 master key to wrap (or set MASTER_KEY)")
	return cmd
}

// masterKeyPlaintext はbase64のマスターキーを取り出す。空なら新しく生成する。
func masterKeyPlaintext(encoded string) ([]byte, error) {
	if encoded == "" {
		key := make([]byte, infra.MinMasterKeyLength)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generating master key: %w", err)
		}
		return key, nil
	}

	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding master key: %w", err)
	}
	if len(key) < infra.MinMasterKeyLength {
		return nil, fmt.Errorf("master key must be at least %d bytes, got %d", infra.MinMasterKeyLength, len(key))
	}
	return key, nil
}
