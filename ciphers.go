package tlsbio

import "sort"

// CipherDescription is a read-only view of a cipher suite.
type CipherDescription struct {
	// Name is the IANA name of the suite.
	Name string

	// ProtocolID is the wire identifier of the suite.
	ProtocolID uint16

	// Bits is the strength of the symmetric key in bits.
	Bits int

	// KeyExchange describes the key exchange. TLS 1.3 suites do
	// not pin one, so this is "any".
	KeyExchange string

	// Authentication describes peer authentication. TLS 1.3 suites
	// do not pin one, so this is "any".
	Authentication string

	// Encryption names the AEAD construction.
	Encryption string

	// MAC describes record authentication.
	MAC string

	// Protocol is the protocol version the suite belongs to.
	Protocol string
}

func tls13Cipher(name string, id uint16, bits int, encryption string) CipherDescription {
	return CipherDescription{
		Name:           name,
		ProtocolID:     id,
		Bits:           bits,
		KeyExchange:    "any",
		Authentication: "any",
		Encryption:     encryption,
		MAC:            "AEAD",
		Protocol:       "TLSv1.3",
	}
}

var cipherByName = map[string]CipherDescription{
	"TLS_AES_128_GCM_SHA256":       tls13Cipher("TLS_AES_128_GCM_SHA256", 0x1301, 128, "AES-128-GCM"),
	"TLS_AES_256_GCM_SHA384":       tls13Cipher("TLS_AES_256_GCM_SHA384", 0x1302, 256, "AES-256-GCM"),
	"TLS_CHACHA20_POLY1305_SHA256": tls13Cipher("TLS_CHACHA20_POLY1305_SHA256", 0x1303, 256, "CHACHA20-POLY1305"),
	"TLS_AES_128_CCM_SHA256":       tls13Cipher("TLS_AES_128_CCM_SHA256", 0x1304, 128, "AES-128-CCM"),
	"TLS_AES_128_CCM_8_SHA256":     tls13Cipher("TLS_AES_128_CCM_8_SHA256", 0x1305, 128, "AES-128-CCM-8"),
}

var cipherByID = func() map[uint16]CipherDescription {
	m := make(map[uint16]CipherDescription, len(cipherByName))
	for _, descr := range cipherByName {
		m[descr.ProtocolID] = descr
	}
	return m
}()

// SupportedCipherNames returns the names of every cipher suite this
// package can negotiate, in lexicographic order.
func SupportedCipherNames() []string {
	names := make([]string, 0, len(cipherByName))
	for name := range cipherByName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CipherDescription looks up a cipher by exact name among the suites
// this connection is configured to negotiate. It returns false when
// the name is unknown or not configured on this connection.
func (c *Conn) CipherDescription(name string) (CipherDescription, bool) {
	descr, ok := cipherByName[name]
	if !ok {
		return CipherDescription{}, false
	}
	if len(c.ctx.suites) == 0 {
		return descr, true
	}
	for _, suite := range c.ctx.suites {
		if uint16(suite) == descr.ProtocolID {
			return descr, true
		}
	}
	return CipherDescription{}, false
}
