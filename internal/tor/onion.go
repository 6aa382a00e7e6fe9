package tor

import (
	"encoding/base32"
	"errors"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Onion address constants.
const (
	// OnionSuffix is the common suffix for all onion addresses.
	OnionSuffix = ".onion"

	// OnionV3Version is the version byte for v3 onion addresses.
	OnionV3Version = 0x03
)

// Onion address validation errors.
var (
	// ErrInvalidOnionAddress is returned when a .onion host is not a valid
	// v3 address.
	ErrInvalidOnionAddress = errors.New("invalid onion address")

	// ErrV2AddressDeprecated is returned for v2 addresses, which stopped
	// working in October 2021.
	ErrV2AddressDeprecated = errors.New("v2 onion addresses are deprecated and no longer functional")
)

var (
	// Base32 uses lowercase a-z and digits 2-7.
	onionV3Pattern = regexp.MustCompile(`^[a-z2-7]{56}\.onion$`)
	onionV2Pattern = regexp.MustCompile(`^[a-z2-7]{16}\.onion$`)
)

// checksumPrefix is the prefix used in v3 onion address checksum calculation.
var checksumPrefix = []byte(".onion checksum")

// IsOnionHost reports whether host (with or without a port) is a Tor
// onion service.
func IsOnionHost(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(stripPort(host), "."))
	return strings.HasSuffix(host, OnionSuffix)
}

// RequiresTor reports whether rawURL points to an onion service.
func RequiresTor(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return IsOnionHost(u.Host)
}

// ValidateOnionURL checks the onion host of rawURL. URLs on other hosts
// are always valid.
func ValidateOnionURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || !IsOnionHost(u.Host) {
		return nil
	}

	host := strings.ToLower(u.Hostname())
	// Subdomains of an onion service share its address.
	labels := strings.Split(strings.TrimSuffix(host, OnionSuffix), ".")
	address := labels[len(labels)-1] + OnionSuffix

	switch {
	case IsValidV3Address(address):
		return nil
	case onionV2Pattern.MatchString(address):
		return ErrV2AddressDeprecated
	default:
		return ErrInvalidOnionAddress
	}
}

// IsValidV3Address checks if the given address is a valid v3 onion address.
// It performs both format validation and checksum verification, as Tor
// itself does when connecting.
//
// The address should include the ".onion" suffix.
func IsValidV3Address(address string) bool {
	address = strings.ToLower(address)
	if !onionV3Pattern.MatchString(address) {
		return false
	}

	onionPart := strings.TrimSuffix(address, OnionSuffix)
	decoded, err := base32.StdEncoding.DecodeString(strings.ToUpper(onionPart))
	if err != nil {
		return false
	}

	// 32 bytes ed25519 public key, 2 bytes checksum, 1 byte version.
	if len(decoded) != 35 {
		return false
	}

	pubkey := decoded[:32]
	checksum := decoded[32:34]
	version := decoded[34]
	if version != OnionV3Version {
		return false
	}

	expected := computeV3Checksum(pubkey, version)
	return checksum[0] == expected[0] && checksum[1] == expected[1]
}

// computeV3Checksum returns the first 2 bytes of
// SHA3-256(".onion checksum" || pubkey || version).
func computeV3Checksum(pubkey []byte, version byte) []byte {
	data := make([]byte, 0, len(checksumPrefix)+len(pubkey)+1)
	data = append(data, checksumPrefix...)
	data = append(data, pubkey...)
	data = append(data, version)

	hash := sha3.Sum256(data)
	return hash[:2]
}

func stripPort(host string) string {
	if i := strings.LastIndexByte(host, ':'); i != -1 && !strings.Contains(host[i:], "]") {
		return strings.Trim(host[:i], "[]")
	}
	return strings.Trim(host, "[]")
}
