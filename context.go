package tlsbio

import (
	"crypto"
	"crypto/x509"
	"net"
	"sync/atomic"
	"time"

	"github.com/bifurcation/mint"
	"github.com/ooni/tlsbio/internal/classify"
	"github.com/ooni/tlsbio/internal/engine"
	"github.com/ooni/tlsbio/internal/engine/mintengine"
	"github.com/ooni/tlsbio/internal/tlsconf"
)

// Certificate is a local certificate chain with its signing key.
type Certificate struct {
	// Chain is the certificate chain, leaf first.
	Chain []*x509.Certificate

	// PrivateKey signs handshake messages for the chain's leaf.
	PrivateKey crypto.Signer
}

// Config configures a Context. The zero value is a valid client
// configuration verifying against the system roots with the default
// cipher policy.
type Config struct {
	// RootCAs overrides the verification roots when non-nil.
	RootCAs *x509.CertPool

	// RootCAsFile loads the verification roots from a PEM bundle
	// on disk. Ignored when RootCAs is set.
	RootCAsFile string

	// InsecureSkipVerify disables chain verification.
	InsecureSkipVerify bool

	// CipherSuites restricts the enabled suites to the named ones.
	// Names must appear in SupportedCipherNames. Empty means all
	// supported suites are enabled.
	CipherSuites []string

	// Certificates holds the local certificate chains. Servers
	// need at least one.
	Certificates []Certificate

	// NextProtos lists the ALPN protocols to offer.
	NextProtos []string

	// AllowEarlyData permits 0-RTT data on resumed sessions.
	AllowEarlyData bool

	// SendSessionTickets makes server connections emit session
	// tickets, enabling later resumption.
	SendSessionTickets bool
}

// Context is the shared configuration that connections are created
// from. It is read-only after construction and safe for concurrent
// use. A Context stays alive until Close has been called and every
// connection created from it has been closed.
type Context struct {
	beginning  time.Time
	config     Config
	factory    engineFactory
	mintCerts  []*mint.Certificate
	refs       int64
	suites     []mint.CipherSuite
	ticketPSKs *mint.PSKMapCache
}

// engineFactory builds the engine for a connection. Tests replace it
// to substitute a scripted engine.
type engineFactory func(transport net.Conn, config mintengine.Config) engine.Engine

func defaultEngineFactory(transport net.Conn, config mintengine.Config) engine.Engine {
	return mintengine.New(transport, config)
}

// NewContext creates a Context from config. It fails with an invalid
// argument error when config names an unknown cipher suite.
func NewContext(config Config) (*Context, error) {
	suites, err := suitesByName(config.CipherSuites)
	if err != nil {
		return nil, err
	}
	if config.RootCAs == nil && config.RootCAsFile != "" {
		pool, err := tlsconf.LoadCABundle(config.RootCAsFile)
		if err != nil {
			return nil, classify.NewInvalidArgument("cannot load CA bundle: " + err.Error())
		}
		config.RootCAs = pool
	}
	mintCerts := make([]*mint.Certificate, 0, len(config.Certificates))
	for _, cert := range config.Certificates {
		if len(cert.Chain) == 0 || cert.PrivateKey == nil {
			return nil, classify.NewInvalidArgument("certificate without chain or key")
		}
		mintCerts = append(mintCerts, &mint.Certificate{
			Chain:      cert.Chain,
			PrivateKey: cert.PrivateKey,
		})
	}
	cache := mint.PSKMapCache{}
	return &Context{
		beginning:  time.Now(),
		config:     config,
		factory:    defaultEngineFactory,
		mintCerts:  mintCerts,
		refs:       1,
		suites:     suites,
		ticketPSKs: &cache,
	}, nil
}

// Close releases the caller's reference to the Context. Connections
// created from it keep their own references and remain usable.
func (ctx *Context) Close() error {
	ctx.release()
	return nil
}

// acquire takes a reference on behalf of a new connection. It fails
// once every reference is gone because the configuration is then
// free to disappear.
func (ctx *Context) acquire() error {
	for {
		refs := atomic.LoadInt64(&ctx.refs)
		if refs <= 0 {
			return classify.NewInvalidArgument("context is closed")
		}
		if atomic.CompareAndSwapInt64(&ctx.refs, refs, refs+1) {
			return nil
		}
	}
}

func (ctx *Context) release() {
	atomic.AddInt64(&ctx.refs, -1)
}

func suitesByName(names []string) ([]mint.CipherSuite, error) {
	if len(names) == 0 {
		return nil, nil
	}
	suites := make([]mint.CipherSuite, 0, len(names))
	for _, name := range names {
		descr, ok := cipherByName[name]
		if !ok {
			return nil, classify.NewInvalidArgument("unknown cipher suite: " + name)
		}
		suites = append(suites, mint.CipherSuite(descr.ProtocolID))
	}
	return suites, nil
}
