package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"environment-key-service/config"
	"environment-key-service/internal/infra"
)

// fakeKMS は固定の接頭辞を付けるだけのラッパー。
type fakeKMS struct {
	keyName string
	closed  bool
}

var fakePrefix = []byte("wrapped:")

func (f *fakeKMS) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	return append(append([]byte{}, fakePrefix...), plaintext...), nil
}

func (f *fakeKMS) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	if !bytes.HasPrefix(ciphertext, fakePrefix) {
		return nil, errors.New("not wrapped by this key")
	}
	return ciphertext[len(fakePrefix):], nil
}

func (f *fakeKMS) Close() error {
	f.closed = true
	return nil
}

func useFakeKMS(t *testing.T) *fakeKMS {
	t.Helper()
	fake := &fakeKMS{}
	prev := newMasterKeyEncrypter
	newMasterKeyEncrypter = func(ctx context.Context, keyName string) (masterKeyEncrypter, error) {
		fake.keyName = keyName
		return fake, nil
	}
	t.Cleanup(func() { newMasterKeyEncrypter = prev })
	return fake
}

func TestMasterKeyWrapCmd_RoundTrip(t *testing.T) {
	fake := useFakeKMS(t)
	master := bytes.Repeat([]byte{0x42}, infra.MinMasterKeyLength)
	keyName := "projects/p/locations/global/keyRings/r/cryptoKeys/master"

	out, err := runKeyctl(t, "master-key", "wrap", "--kms-key", keyName,
		"--master-key", base64.StdEncoding.EncodeToString(master))
	require.NoError(t, err)
	assert.Equal(t, keyName, fake.keyName)
	assert.True(t, fake.closed)

	line := strings.TrimSpace(out)
	require.True(t, strings.HasPrefix(line, "MASTER_KEY_CIPHERTEXT="), out)

	cfg := &config.Config{MasterKeyCiphertext: strings.TrimPrefix(line, "MASTER_KEY_CIPHERTEXT=")}
	got, err := infra.LoadMasterKey(context.Background(), cfg, fake)
	require.NoError(t, err)
	assert.Equal(t, master, got)

	_, err = infra.NewSecretsManager(got)
	assert.NoError(t, err)
}

func TestMasterKeyWrapCmd_GeneratesKeyAsJSON(t *testing.T) {
	fake := useFakeKMS(t)
	t.Setenv("KMS_KEY_NAME", "env-key")
	t.Setenv("MASTER_KEY", "")

	out, err := runKeyctl(t, "-o", "json", "master-key", "wrap")
	require.NoError(t, err)
	assert.Equal(t, "env-key", fake.keyName)

	var resp wrappedMasterKey
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	got, err := infra.LoadMasterKey(context.Background(), &config.Config{MasterKeyCiphertext: resp.MasterKeyCiphertext}, fake)
	require.NoError(t, err)
	assert.Len(t, got, infra.MinMasterKeyLength)
}

func TestMasterKeyWrapCmd_Errors(t *testing.T) {
	useFakeKMS(t)
	t.Setenv("KMS_KEY_NAME", "")
	t.Setenv("MASTER_KEY", "")

	_, err := runKeyctl(t, "master-key", "wrap")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KMS_KEY_NAME")

	_, err = runKeyctl(t, "master-key", "wrap", "--kms-key", "k", "--master-key", base64.StdEncoding.EncodeToString([]byte("short")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least")

	_, err = runKeyctl(t, "master-key", "wrap", "--kms-key", "k", "--master-key", "%%%")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding master key")
}
