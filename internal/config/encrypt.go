package config

import (
	"fmt"
	"os"

	"github.com/fitundfun/ffbackup/internal/cryptoutil"
)

// EncryptConfigFile seals a plaintext config file so that service-role
// credentials do not sit on disk in the clear. The output is readable by Load
// when FFB_CONFIG_KEY holds the same key.
func EncryptConfigFile(inputPath, outputPath, key string) error {
	plain, err := os.ReadFile(inputPath)
	if err != nil {
		return err
	}
	parsed, err := cryptoutil.ParseKey(key)
	if err != nil {
		return err
	}
	ciphertext, err := cryptoutil.EncryptConfig(plain, parsed)
	if err != nil {
		return err
	}
	if !isEncryptedPath(outputPath) {
		return fmt.Errorf("output path %s must end in .enc so it is recognised as encrypted", outputPath)
	}
	return os.WriteFile(outputPath, ciphertext, 0o600)
}
