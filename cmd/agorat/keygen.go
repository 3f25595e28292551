package agorat

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/agora-at/agorat/pkg/keys"
)

var (
	keygenDomain string
	keygenForce  bool
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a signing key and did:web document",
	Long:  "Keygen creates a P-256 signing keypair under the configured key directory. With --domain it also writes a did:web DID document carrying the public key, ready to serve from /.well-known/did.json.",
	RunE:  runKeygen,
}

func init() {
	keygenCmd.Flags().StringVar(&keygenDomain, "domain", "", "domain for the did:web document")
	keygenCmd.Flags().BoolVar(&keygenForce, "force", false, "overwrite an existing key")
}

func runKeygen(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.Keys.Dir, 0700); err != nil {
		return fmt.Errorf("creating key directory: %w", err)
	}

	keyPath := filepath.Join(cfg.Keys.Dir, keyFileName)
	if _, err := os.Stat(keyPath); err == nil && !keygenForce {
		return fmt.Errorf("key already exists at %s (use --force to overwrite)", keyPath)
	}

	kp, err := keys.Generate()
	if err != nil {
		return fmt.Errorf("generating key: %w", err)
	}
	if err := kp.Save(keyPath); err != nil {
		return fmt.Errorf("saving key: %w", err)
	}
	fmt.Printf("wrote signing key to %s\n", keyPath)

	domain := keygenDomain
	if domain == "" {
		domain = cfg.Keys.Domain
	}
	if domain == "" {
		return nil
	}

	doc := keys.NewDocument(domain, kp.PublicJWK())
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("building did document: %w", err)
	}
	path, err := doc.Write(cfg.Keys.Dir)
	if err != nil {
		return fmt.Errorf("writing did document: %w", err)
	}
	fmt.Printf("wrote did:web document for %s to %s\n", domain, path)
	return nil
}
