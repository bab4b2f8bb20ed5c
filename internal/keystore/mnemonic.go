package keystore

import (
	"fmt"
	"os"
	"strings"

	"github.com/tyler-smith/go-bip39"

	"github.com/shiftsig/btcsign/internal/config"
)

// readMnemonicFromFile reads a BIP-39 mnemonic from path, trims
// whitespace, and validates it, the same validation shape as
// wallet.ReadMnemonicFromFile/ValidateMnemonic.
func readMnemonicFromFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: read mnemonic file %q: %s", config.ErrKeystoreFailure, path, err)
	}
	mnemonic := strings.TrimSpace(string(data))
	if mnemonic == "" {
		return "", fmt.Errorf("%w: mnemonic file %q is empty", config.ErrKeystoreFailure, path)
	}
	if !bip39.IsMnemonicValid(mnemonic) {
		return "", fmt.Errorf("%w: mnemonic file %q contains an invalid BIP-39 phrase", config.ErrKeystoreFailure, path)
	}
	return mnemonic, nil
}
