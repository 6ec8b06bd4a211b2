// tlsloopback handshakes a client and a server connection over
// crossed in-memory endpoints and echoes a message through them.
package main

import (
	"crypto/x509"
	"flag"
	"fmt"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/bifurcation/mint"
	"github.com/m-lab/go/rtx"
	"github.com/ooni/tlsbio"
	"github.com/ooni/tlsbio/handlers/logger"
	"github.com/ooni/tlsbio/membio"
)

func main() {
	var (
		flagMessage = flag.String("tlsloopback-message", "hello, TLS", "Message to echo")
		flagSNI     = flag.String("tlsloopback-sni", "loopback.local", "SNI to use")
	)
	flag.Parse()
	log.SetHandler(cli.Default)
	log.SetLevel(log.DebugLevel)

	key, cert, err := mint.MakeNewSelfSignedCert(*flagSNI, mint.ECDSA_P256_SHA256)
	rtx.Must(err, "cannot create self signed certificate")
	ctx, err := tlsbio.NewContext(tlsbio.Config{
		Certificates: []tlsbio.Certificate{{
			Chain:      []*x509.Certificate{cert},
			PrivateKey: key,
		}},
		InsecureSkipVerify: true,
	})
	rtx.Must(err, "cannot create context")
	defer ctx.Close()

	handler := logger.NewHandler(log.Log)
	client := newConn(ctx, *flagSNI, handler, true)
	server := newConn(ctx, *flagSNI, handler, false)

	clientInternal, clientNetwork := membio.NewPair()
	serverInternal, serverNetwork := membio.NewPair()
	rtx.Must(client.AttachInternalEndpoint(clientInternal), "cannot attach endpoint")
	rtx.Must(server.AttachInternalEndpoint(serverInternal), "cannot attach endpoint")
	rtx.Must(client.AdoptNetworkEndpoint(clientNetwork), "cannot adopt endpoint")
	rtx.Must(server.AdoptNetworkEndpoint(serverNetwork), "cannot adopt endpoint")
	defer client.Close()
	defer server.Close()

	handshake(client, server, clientNetwork, serverNetwork)
	log.Infof("negotiated %s with %s", client.NegotiatedVersionString(),
		client.CurrentCipherName())

	echo(client, server, clientNetwork, serverNetwork, []byte(*flagMessage))
}

func newConn(ctx *tlsbio.Context, sni string, handler *logger.Handler, client bool) *tlsbio.Conn {
	conn, err := tlsbio.NewConn(ctx, tlsbio.ConnOptions{
		ServerName: sni,
		Handler:    handler,
	})
	rtx.Must(err, "cannot create connection")
	if !client {
		rtx.Must(conn.SetServerMode(), "cannot select server role")
	}
	return conn
}

// pump moves bytes that one side has emitted on its network endpoint
// into the other side's network endpoint, both directions.
func pump(a, b *membio.Endpoint) {
	for _, pair := range [][2]*membio.Endpoint{{a, b}, {b, a}} {
		buffer := make([]byte, 4096)
		for {
			count, err := pair[0].Read(buffer)
			if err != nil || count <= 0 {
				break
			}
			_, err = pair[1].Write(buffer[:count])
			rtx.Must(err, "cannot forward bytes")
		}
	}
}

func handshake(client, server *tlsbio.Conn, clientNet, serverNet *membio.Endpoint) {
	for i := 0; i < 64; i++ {
		clientErr := client.DoHandshake()
		pump(clientNet, serverNet)
		serverErr := server.DoHandshake()
		pump(clientNet, serverNet)
		if clientErr == nil && serverErr == nil {
			return
		}
		if !retriable(clientErr) {
			rtx.Must(clientErr, "client handshake failed")
		}
		if !retriable(serverErr) {
			rtx.Must(serverErr, "server handshake failed")
		}
	}
	log.Fatal("handshake did not converge")
}

func echo(client, server *tlsbio.Conn, clientNet, serverNet *membio.Endpoint, message []byte) {
	_, err := client.Write(message)
	rtx.Must(err, "client write failed")
	pump(clientNet, serverNet)
	for i := 0; i < 64; i++ {
		data, err := server.Read(len(message))
		if err == tlsbio.ErrWantRead {
			pump(clientNet, serverNet)
			continue
		}
		rtx.Must(err, "server read failed")
		if len(data) > 0 {
			fmt.Printf("%s\n", string(data))
			return
		}
	}
	log.Fatal("no data made it through")
}

func retriable(err error) bool {
	return err == nil || err == tlsbio.ErrWantRead || err == tlsbio.ErrWantWrite
}
