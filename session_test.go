package tlsbio

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/bifurcation/mint"
	"github.com/ooni/tlsbio/internal/engine"
	"github.com/ooni/tlsbio/internal/engine/enginetest"
	"github.com/ooni/tlsbio/internal/engine/mintengine"
)

func TestGetSessionWithoutEngine(t *testing.T) {
	tc := newFakeConn(t, &enginetest.Fake{})
	defer tc.conn.Close()
	session, err := tc.conn.GetSession()
	if session != nil || err != nil {
		t.Fatal("expected nil session and nil error")
	}
}

func TestGetSessionIsIndependent(t *testing.T) {
	tc := newFakeConn(t, &enginetest.Fake{
		PSK: mint.PreSharedKey{
			CipherSuite: 0x1301,
			Identity:    []byte("ticket-id"),
			Key:         []byte("secret"),
			ExpiresAt:   time.Now().Add(time.Hour),
		},
		HavePSK: true,
	})
	defer tc.conn.Close()
	if err := tc.conn.DoHandshake(); err != nil {
		t.Fatal(err)
	}
	session, err := tc.conn.GetSession()
	if err != nil {
		t.Fatal(err)
	}
	if session == nil {
		t.Fatal("expected a session")
	}
	if session.CipherSuiteID() != 0x1301 {
		t.Fatal("unexpected cipher suite")
	}
	if session.Expiry().Before(time.Now()) {
		t.Fatal("unexpected expiry")
	}
	tc.fake.PSK.Key[0] = 'X'
	if session.psk.Key[0] == 'X' {
		t.Fatal("session must not alias engine memory")
	}
}

func TestGetSessionDrainsDeliveredRecords(t *testing.T) {
	// a ticket sitting in records the engine has not consumed yet
	// must become visible through GetSession alone
	tc := newFakeConn(t, &enginetest.Fake{
		ReadOutcomes: []enginetest.ReadOutcome{
			{Payload: []byte("tail")},
			{Err: mint.AlertWouldBlock},
		},
		PSK: mint.PreSharedKey{
			CipherSuite: 0x1301,
			Identity:    []byte("ticket-id"),
			Key:         []byte("secret"),
		},
		HavePSK: true,
	})
	defer tc.conn.Close()
	if err := tc.conn.DoHandshake(); err != nil {
		t.Fatal(err)
	}
	session, err := tc.conn.GetSession()
	if err != nil {
		t.Fatal(err)
	}
	if session == nil {
		t.Fatal("expected a session")
	}
	// the application data consumed along the way is not lost
	if tc.conn.Pending() != 4 {
		t.Fatal("expected the drained bytes to be buffered")
	}
	data, err := tc.conn.Read(16)
	if err != nil || string(data) != "tail" {
		t.Fatal("unexpected read result")
	}
}

func TestSetSessionValidation(t *testing.T) {
	session := &Session{psk: mint.PreSharedKey{
		CipherSuite: 0x1301,
		Identity:    []byte("ticket-id"),
		Key:         []byte("secret"),
	}}
	t.Run("nil session", func(t *testing.T) {
		tc := newFakeConn(t, &enginetest.Fake{})
		defer tc.conn.Close()
		var invalidErr *InvalidArgumentError
		if !errors.As(tc.conn.SetSession(nil), &invalidErr) {
			t.Fatal("not the error we expected")
		}
	})
	t.Run("after the handshake started", func(t *testing.T) {
		tc := newFakeConn(t, &enginetest.Fake{})
		defer tc.conn.Close()
		if err := tc.conn.DoHandshake(); err != nil {
			t.Fatal(err)
		}
		var invalidErr *InvalidArgumentError
		if !errors.As(tc.conn.SetSession(session), &invalidErr) {
			t.Fatal("not the error we expected")
		}
	})
	t.Run("unsupported cipher suite", func(t *testing.T) {
		tc := newFakeConn(t, &enginetest.Fake{})
		defer tc.conn.Close()
		bad := &Session{psk: mint.PreSharedKey{CipherSuite: 0x00ff}}
		var protoErr *ProtocolError
		if !errors.As(tc.conn.SetSession(bad), &protoErr) {
			t.Fatal("not the error we expected")
		}
	})
	t.Run("suite not enabled by the context", func(t *testing.T) {
		ctx, err := NewContext(Config{
			CipherSuites: []string{"TLS_AES_256_GCM_SHA384"},
		})
		if err != nil {
			t.Fatal(err)
		}
		fake := &enginetest.Fake{}
		ctx.factory = func(transport net.Conn, config mintengine.Config) engine.Engine {
			return fake
		}
		conn, err := NewConn(ctx, ConnOptions{})
		if err != nil {
			t.Fatal(err)
		}
		defer conn.Close()
		var protoErr *ProtocolError
		if !errors.As(conn.SetSession(session), &protoErr) {
			t.Fatal("not the error we expected")
		}
	})
}

func TestSetSessionSeedsTheEngine(t *testing.T) {
	tc := newFakeConn(t, &enginetest.Fake{})
	defer tc.conn.Close()
	session := &Session{psk: mint.PreSharedKey{
		CipherSuite: 0x1301,
		Identity:    []byte("ticket-id"),
		Key:         []byte("secret"),
	}}
	if err := tc.conn.SetSession(session); err != nil {
		t.Fatal(err)
	}
	if err := tc.conn.DoHandshake(); err != nil {
		t.Fatal(err)
	}
	if !tc.fake.HavePSK {
		t.Fatal("expected the engine to be seeded")
	}
	if string(tc.fake.PSK.Identity) != "ticket-id" {
		t.Fatal("unexpected identity")
	}
}
