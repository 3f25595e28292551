package keys

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestGenerateSignVerify(t *testing.T) {
	k, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	data := []byte("probe")
	sig, err := k.Sign(data)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !k.Verify(data, sig) {
		t.Error("signature should verify")
	}
	if k.Verify([]byte("tampered"), sig) {
		t.Error("signature must not verify for different data")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	k, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	path := filepath.Join(t.TempDir(), "agent.pem")
	if err := k.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("key file mode = %o, want 0600", info.Mode().Perm())
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	sig, err := k.Sign([]byte("x"))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !loaded.Verify([]byte("x"), sig) {
		t.Error("loaded key should verify signatures from the original")
	}
}

func TestLoadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.pem")
	os.WriteFile(path, []byte("not a key"), 0600)

	if _, err := Load(path); err == nil {
		t.Error("Load should reject non-PEM data")
	}
}

func TestPublicJWK(t *testing.T) {
	k, _ := Generate()

	jwk := k.PublicJWK()
	if jwk.Kty != "EC" || jwk.Crv != "P-256" {
		t.Errorf("jwk = %+v", jwk)
	}
	if jwk.X == "" || jwk.Y == "" {
		t.Error("jwk coordinates must be populated")
	}
}

func TestDocument(t *testing.T) {
	k, _ := Generate()

	doc := NewDocument("delve.example.com", k.PublicJWK())
	if doc.ID != "did:web:delve.example.com" {
		t.Errorf("ID = %q", doc.ID)
	}
	if err := doc.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestDocumentValidateFailures(t *testing.T) {
	k, _ := Generate()
	base := NewDocument("delve.example.com", k.PublicJWK())

	t.Run("missing context", func(t *testing.T) {
		doc := base
		doc.Context = nil
		if err := doc.Validate(); err == nil {
			t.Error("should reject missing context")
		}
	})

	t.Run("wrong method", func(t *testing.T) {
		doc := base
		doc.ID = "did:key:z123"
		if err := doc.Validate(); err == nil {
			t.Error("should reject non did:web id")
		}
	})

	t.Run("wrong curve", func(t *testing.T) {
		doc := base
		vm := doc.VerificationMethod[0]
		vm.PublicKeyJwk.Crv = "secp256k1"
		doc.VerificationMethod = []VerificationMethod{vm}
		if err := doc.Validate(); err == nil {
			t.Error("should reject non P-256 keys")
		}
	})
}

func TestDocumentWrite(t *testing.T) {
	k, _ := Generate()
	doc := NewDocument("delve.example.com", k.PublicJWK())

	dir := t.TempDir()
	path, err := doc.Write(dir)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if path != filepath.Join(dir, ".well-known", "did.json") {
		t.Errorf("path = %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	var back Document
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if err := back.Validate(); err != nil {
		t.Errorf("written document should validate: %v", err)
	}
}
