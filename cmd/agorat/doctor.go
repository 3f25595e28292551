package agorat

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/agora-at/agorat/pkg/config"
	"github.com/agora-at/agorat/pkg/keys"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose issues with the agorat installation",
	RunE:  runDoctor,
}

type checkResult struct {
	name   string
	ok     bool
	detail string
}

func runDoctor(cmd *cobra.Command, args []string) error {
	fmt.Printf("agorat Doctor v%s\n", version)
	fmt.Printf("Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("Go: %s\n\n", runtime.Version())

	cfg, err := config.Load(configPath())
	if err != nil {
		cfg = config.Default()
	}

	checks := []checkResult{
		checkDataDir(),
		checkConfig(),
		checkDatabase(cfg),
		checkSigningKey(cfg),
		checkATProtoPassword(cfg),
		checkAgoraEndpoint(cfg),
		checkGatewayHealth(cfg),
	}

	passed, failed := 0, 0
	for _, c := range checks {
		status := "✓"
		if !c.ok {
			status = "✗"
			failed++
		} else {
			passed++
		}
		fmt.Printf("  %s %s: %s\n", status, c.name, c.detail)
	}

	fmt.Printf("\n%d passed, %d failed\n", passed, failed)

	if failed > 0 {
		return fmt.Errorf("%d checks failed", failed)
	}
	return nil
}

func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultConfigPath()
}

func checkDataDir() checkResult {
	dir := config.DataDir()
	info, err := os.Stat(dir)
	if err != nil {
		return checkResult{"Data directory", false, fmt.Sprintf("%s does not exist", dir)}
	}
	if !info.IsDir() {
		return checkResult{"Data directory", false, fmt.Sprintf("%s is not a directory", dir)}
	}
	return checkResult{"Data directory", true, dir}
}

func checkConfig() checkResult {
	path := configPath()
	if _, err := os.Stat(path); err != nil {
		return checkResult{"Config file", false, fmt.Sprintf("%s not found (using defaults)", path)}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return checkResult{"Config file", false, fmt.Sprintf("parse error: %s", err)}
	}
	return checkResult{"Config file", true, fmt.Sprintf("%s (port %d)", path, cfg.Gateway.Port)}
}

func checkDatabase(cfg *config.Config) checkResult {
	dsn := cfg.Store.DSN
	if dsn == "" {
		dsn = filepath.Join(config.DataDir(), "agorat.db")
	}
	info, err := os.Stat(dsn)
	if err != nil {
		return checkResult{"Database", false, fmt.Sprintf("%s not found (will be created on first start)", dsn)}
	}
	return checkResult{"Database", true, fmt.Sprintf("%s (%d KB)", dsn, info.Size()/1024)}
}

// checkSigningKey loads the key and runs a sign probe so a corrupt key
// file fails here instead of at the first signed request.
func checkSigningKey(cfg *config.Config) checkResult {
	path := filepath.Join(cfg.Keys.Dir, keyFileName)
	kp, err := keys.Load(path)
	if err != nil {
		return checkResult{"Signing key", false, fmt.Sprintf("%s not usable: %s (run `agorat keygen`)", path, err)}
	}
	sig, err := kp.Sign([]byte("agorat doctor probe"))
	if err != nil || !kp.Verify([]byte("agorat doctor probe"), sig) {
		return checkResult{"Signing key", false, "sign/verify probe failed"}
	}
	return checkResult{"Signing key", true, path}
}

func checkATProtoPassword(cfg *config.Config) checkResult {
	env := cfg.ATProto.PasswordEnv
	if env == "" {
		return checkResult{"AT password", false, "password_env not configured"}
	}
	if os.Getenv(env) == "" {
		return checkResult{"AT password", false, fmt.Sprintf("%s not set", env)}
	}
	return checkResult{"AT password", true, fmt.Sprintf("%s set", env)}
}

func checkAgoraEndpoint(cfg *config.Config) checkResult {
	if cfg.Agora.Endpoint == "" {
		return checkResult{"Agora endpoint", false, "not configured"}
	}
	return checkResult{"Agora endpoint", true, cfg.Agora.Endpoint}
}

func checkGatewayHealth(cfg *config.Config) checkResult {
	url := fmt.Sprintf("http://127.0.0.1:%d/healthz", cfg.Gateway.Port)

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return checkResult{"Gateway", false, "not running"}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return checkResult{"Gateway", true, fmt.Sprintf("running at :%d", cfg.Gateway.Port)}
	}
	return checkResult{"Gateway", false, fmt.Sprintf("unhealthy (status %d)", resp.StatusCode)}
}
