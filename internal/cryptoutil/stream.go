package cryptoutil

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/minio/sio"
)

// EncryptedSuffix marks archives sealed with SealArchive.
const EncryptedSuffix = ".enc"

const (
	configMagic = "FFB1"
	configVer   = uint16(1)
	nonceSize   = 12
	headerSize  = len(configMagic) + 2 + nonceSize
)

var errShortEnvelope = errors.New("config cipher too short")

// SealArchive encrypts a whole archive held in memory.
func SealArchive(plain, key []byte) ([]byte, error) {
	buf := &bytes.Buffer{}
	if _, err := sio.Encrypt(buf, bytes.NewReader(plain), sio.Config{Key: key}); err != nil {
		return nil, fmt.Errorf("encrypt archive: %w", err)
	}
	return buf.Bytes(), nil
}

// OpenArchive reverses SealArchive.
func OpenArchive(sealed, key []byte) ([]byte, error) {
	buf := &bytes.Buffer{}
	if _, err := sio.Decrypt(buf, bytes.NewReader(sealed), sio.Config{Key: key}); err != nil {
		return nil, fmt.Errorf("decrypt archive: %w", err)
	}
	return buf.Bytes(), nil
}

// EncryptConfig seals a config payload behind a magic/version/nonce header.
func EncryptConfig(plain []byte, key []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	header := make([]byte, headerSize)
	copy(header, configMagic)
	binary.BigEndian.PutUint16(header[len(configMagic):], configVer)
	nonce := header[len(configMagic)+2:]
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(header, nonce, plain, header[:len(configMagic)+2]), nil
}

// DecryptConfig opens a payload written by EncryptConfig.
func DecryptConfig(ciphertext []byte, key []byte) ([]byte, error) {
	if len(ciphertext) < headerSize {
		return nil, errShortEnvelope
	}
	if string(ciphertext[:len(configMagic)]) != configMagic {
		return nil, fmt.Errorf("invalid config header")
	}
	if ver := binary.BigEndian.Uint16(ciphertext[len(configMagic):]); ver != configVer {
		return nil, fmt.Errorf("unsupported config version %d", ver)
	}
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := ciphertext[len(configMagic)+2 : headerSize]
	return aead.Open(nil, nonce, ciphertext[headerSize:], ciphertext[:len(configMagic)+2])
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
