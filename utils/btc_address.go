package utils

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
)

// NetParams maps the BTC_NETWORK setting to chain parameters.
func NetParams(network string) *chaincfg.Params {
	switch strings.ToLower(network) {
	case "testnet", "testnet3":
		return &chaincfg.TestNet3Params
	case "regtest":
		return &chaincfg.RegressionNetParams
	default:
		return &chaincfg.MainNetParams
	}
}

// DeriveDepositAddress derives the non-hardened child index of an extended
// public key. Each account gets its own index, so deposits are attributable.
func DeriveDepositAddress(xpub string, index uint32, params *chaincfg.Params) (string, error) {
	masterKey, err := hdkeychain.NewKeyFromString(xpub)
	if err != nil {
		return "", fmt.Errorf("ошибка декодирования мастер-ключа: %w", err)
	}
	if masterKey.IsPrivate() {
		return "", fmt.Errorf("expected an extended public key")
	}

	childKey, err := masterKey.Derive(index)
	if err != nil {
		return "", fmt.Errorf("ошибка получения дочернего ключа для индекса %d: %w", index, err)
	}

	address, err := childKey.Address(params)
	if err != nil {
		return "", fmt.Errorf("ошибка генерации адреса для индекса %d: %w", index, err)
	}
	return address.EncodeAddress(), nil
}

// ValidateBTCAddress reports whether addr is a valid address on the network.
func ValidateBTCAddress(addr string, params *chaincfg.Params) bool {
	decoded, err := btcutil.DecodeAddress(strings.TrimSpace(addr), params)
	if err != nil {
		return false
	}
	return decoded.IsForNet(params)
}
