package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vault-cli/entr/internal/config"
)

func newConfigCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage entr configuration",
		Long: `Manage entr configuration settings.

Configuration is stored in ~/.config/entr/config.yaml by default. KDF
settings apply to vaults created or re-keyed afterwards; existing vaults
keep the parameters recorded in their header.

Example:
  entr config path                      # Show config file path
  entr config get clipboard_ttl         # Get clipboard timeout
  entr config set clipboard_ttl 60s     # Set clipboard timeout
  entr config set kdf.iterations 4
  entr config get                       # Show all configuration`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:     "get [key]",
			Aliases: []string{"show"},
			Short:   "Get configuration value(s)",
			Args:    cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				key := ""
				if len(args) == 1 {
					key = args[0]
				}
				return runConfigGet(cmd, a, key)
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Set configuration value",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runConfigSet(cmd, a, args[0], args[1])
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Show configuration file path",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return writeOutput(cmd.OutOrStdout(), "%s\n", a.cfgFile)
			},
		},
	)
	return cmd
}

func runConfigGet(cmd *cobra.Command, a *app, key string) error {
	data, err := yaml.Marshal(a.cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if key == "" {
		return writeString(cmd.OutOrStdout(), string(data))
	}

	var tree map[string]interface{}
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	var node interface{} = tree
	for _, part := range strings.Split(key, ".") {
		m, ok := node.(map[string]interface{})
		if !ok {
			return fmt.Errorf("unknown config key: %s", key)
		}
		if node, ok = m[part]; !ok {
			return fmt.Errorf("unknown config key: %s", key)
		}
	}

	if _, ok := node.(map[string]interface{}); ok {
		out, err := yaml.Marshal(node)
		if err != nil {
			return err
		}
		return writeString(cmd.OutOrStdout(), string(out))
	}
	return writeOutput(cmd.OutOrStdout(), "%v\n", node)
}

var configSetters = map[string]func(c *config.Config, v string) error{
	"vault_path":    func(c *config.Config, v string) error { c.VaultPath = v; return nil },
	"keystore_path": func(c *config.Config, v string) error { c.KeyStorePath = v; return nil },
	"log_level":     func(c *config.Config, v string) error { c.LogLevel = v; return nil },
	"min_password_length": func(c *config.Config, v string) error {
		return setInt(&c.MinPasswordLength, v)
	},
	"clipboard_ttl": func(c *config.Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		c.ClipboardTTL = d
		return nil
	},
	"kdf.strategy": func(c *config.Config, v string) error { c.KDF.Strategy = v; return nil },
	"kdf.memory_kib": func(c *config.Config, v string) error {
		n, err := strconv.ParseUint(v, 10, 32)
		c.KDF.MemoryKiB = uint32(n)
		return err
	},
	"kdf.iterations": func(c *config.Config, v string) error {
		n, err := strconv.ParseUint(v, 10, 32)
		c.KDF.Iterations = uint32(n)
		return err
	},
	"kdf.parallelism": func(c *config.Config, v string) error {
		n, err := strconv.ParseUint(v, 10, 8)
		c.KDF.Parallelism = uint8(n)
		return err
	},
	"kdf.salt_length": func(c *config.Config, v string) error {
		n, err := strconv.ParseUint(v, 10, 8)
		c.KDF.SaltLength = uint8(n)
		return err
	},
	"totp.default_digits":    func(c *config.Config, v string) error { return setInt(&c.TOTP.DefaultDigits, v) },
	"totp.default_period":    func(c *config.Config, v string) error { return setInt(&c.TOTP.DefaultPeriod, v) },
	"totp.default_algorithm": func(c *config.Config, v string) error { c.TOTP.DefaultAlgorithm = v; return nil },
}

func setInt(dst *int, v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

func runConfigSet(cmd *cobra.Command, a *app, key, value string) error {
	set, ok := configSetters[key]
	if !ok {
		return fmt.Errorf("unknown config key: %s", key)
	}

	next := *a.cfg
	if err := set(&next, value); err != nil {
		return fmt.Errorf("%w: %s: %v", config.ErrInvalidConfig, key, err)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	if err := config.SaveConfig(&next, a.cfgFile); err != nil {
		return err
	}
	*a.cfg = next
	return writeOutput(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
}
