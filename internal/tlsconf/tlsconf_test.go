package tlsconf

import (
	"encoding/pem"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/bifurcation/mint"
)

func TestLoadCABundle(t *testing.T) {
	tempdir, err := ioutil.TempDir("", "tlsconf")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tempdir)
	t.Run("missing file", func(t *testing.T) {
		pool, err := LoadCABundle(filepath.Join(tempdir, "missing.pem"))
		if pool != nil || err == nil {
			t.Fatal("expected a failure")
		}
	})
	t.Run("no certificates", func(t *testing.T) {
		path := filepath.Join(tempdir, "junk.pem")
		if err := ioutil.WriteFile(path, []byte("junk"), 0644); err != nil {
			t.Fatal(err)
		}
		pool, err := LoadCABundle(path)
		if pool != nil || err == nil {
			t.Fatal("expected a failure")
		}
	})
	t.Run("valid bundle", func(t *testing.T) {
		_, cert, err := mint.MakeNewSelfSignedCert("ca.local", mint.ECDSA_P256_SHA256)
		if err != nil {
			t.Fatal(err)
		}
		data := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
		path := filepath.Join(tempdir, "bundle.pem")
		if err := ioutil.WriteFile(path, data, 0644); err != nil {
			t.Fatal(err)
		}
		pool, err := LoadCABundle(path)
		if err != nil {
			t.Fatal(err)
		}
		if pool == nil {
			t.Fatal("expected a pool")
		}
	})
}
