package keys

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// VerificationMethod is one key entry in a DID document.
type VerificationMethod struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	Controller   string `json:"controller"`
	PublicKeyJwk JWK    `json:"publicKeyJwk"`
}

// Document is a did:web DID document for one agent domain.
type Document struct {
	Context            []string             `json:"@context"`
	ID                 string               `json:"id"`
	VerificationMethod []VerificationMethod `json:"verificationMethod"`
	Authentication     []string             `json:"authentication"`
	AssertionMethod    []string             `json:"assertionMethod"`
}

const didContext = "https://www.w3.org/ns/did/v1"

// NewDocument builds the did:web document for a fully qualified domain
// with a single verification key.
func NewDocument(domain string, jwk JWK) Document {
	did := "did:web:" + domain
	keyID := did + "#key-0"

	return Document{
		Context: []string{didContext},
		ID:      did,
		VerificationMethod: []VerificationMethod{{
			ID:           keyID,
			Type:         "JsonWebKey2020",
			Controller:   did,
			PublicKeyJwk: jwk,
		}},
		Authentication:  []string{keyID},
		AssertionMethod: []string{keyID},
	}
}

// Validate checks the structural requirements a resolver relies on.
func (d Document) Validate() error {
	found := false
	for _, c := range d.Context {
		if c == didContext {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("keys: document missing DID context")
	}

	if !strings.HasPrefix(d.ID, "did:web:") {
		return fmt.Errorf("keys: document id %q is not a did:web identifier", d.ID)
	}

	if len(d.VerificationMethod) == 0 {
		return fmt.Errorf("keys: document has no verification method")
	}
	for _, vm := range d.VerificationMethod {
		if vm.PublicKeyJwk.Crv != "P-256" {
			return fmt.Errorf("keys: verification method %s uses curve %q, want P-256", vm.ID, vm.PublicKeyJwk.Crv)
		}
		if !strings.HasPrefix(vm.ID, d.ID) {
			return fmt.Errorf("keys: verification method %s not controlled by %s", vm.ID, d.ID)
		}
	}

	return nil
}

// Write places the document at <dir>/.well-known/did.json, the path
// did:web resolution fetches.
func (d Document) Write(dir string) (string, error) {
	wellKnown := filepath.Join(dir, ".well-known")
	if err := os.MkdirAll(wellKnown, 0755); err != nil {
		return "", fmt.Errorf("keys: creating %s: %w", wellKnown, err)
	}

	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", fmt.Errorf("keys: encoding document: %w", err)
	}

	path := filepath.Join(wellKnown, "did.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("keys: writing %s: %w", path, err)
	}
	return path, nil
}
