package cli

import (
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/turtacn/molx/internal/config"
	"github.com/turtacn/molx/pkg/errors"
)

const redacted = "REDACTED"

// NewConfigCmd creates the config command group.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or validate the effective configuration",
	}
	cmd.AddCommand(newConfigShowCmd(), newConfigValidateCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var section string

	cmd := &cobra.Command{
		Use:     "show",
		Short:   "Print the effective configuration with secrets redacted",
		Example: "  molx config show --section model -o json",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			view, err := configView(cliCtx.Config, section)
			if err != nil {
				return err
			}
			if cliCtx.OutputFormat == "text" {
				return printYAML(cmd, view)
			}
			return PrintResult(cmd, view)
		},
	}
	cmd.Flags().StringVar(&section, "section", "", "only print this top-level section")
	return cmd
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and exit non-zero when it is invalid",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			if err := cliCtx.Config.Validate(); err != nil {
				return errors.Wrap(err, errors.ErrCodeValidation, "invalid configuration")
			}
			source := cliCtx.ConfigPath
			if source == "" {
				source = "defaults and environment"
			}
			PrintSuccess(cmd, "configuration from "+source+" is valid")
			return nil
		},
	}
}

// configView renders cfg as a generic map, with secrets masked, keyed the
// same way as the config file.
func configView(cfg *config.Config, section string) (map[string]interface{}, error) {
	c := *cfg
	if c.MinIO.SecretKey != "" {
		c.MinIO.SecretKey = redacted
	}
	if c.Cache.Password != "" {
		c.Cache.Password = redacted
	}

	raw, err := yaml.Marshal(&c)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "encode config")
	}
	view := map[string]interface{}{}
	if err := yaml.Unmarshal(raw, &view); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "decode config")
	}
	if section == "" {
		return view, nil
	}
	sub, ok := view[section]
	if !ok {
		names := make([]string, 0, len(view))
		for k := range view {
			names = append(names, k)
		}
		sort.Strings(names)
		return nil, errors.Newf(errors.ErrCodeBadRequest, "unknown section %q", section).
			WithDetail("sections: " + strings.Join(names, ", "))
	}
	return map[string]interface{}{section: sub}, nil
}
