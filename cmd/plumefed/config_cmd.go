package main

import (
	"encoding/json"
	"fmt"

	"plume/pkg/config"
	"plume/pkg/utils"

	"github.com/spf13/cobra"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}

	var asJSON bool
	show := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Long:  "Show the configuration after defaults, the config file and PLUME_* variables are applied",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if asJSON {
				data, err := json.MarshalIndent(cfg, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}

			fmt.Println(renderConfig(cfg))
			return nil
		},
	}
	show.Flags().BoolVar(&asJSON, "json", false, "print as JSON")

	cmd.AddCommand(show)
	return cmd
}

func renderConfig(cfg *config.Config) string {
	proxy := cfg.Federation.Proxy
	if proxy == "" {
		proxy = mutedStyle.Render("none")
	}

	t := newTable("SETTING", "VALUE").
		Row("instance.domain", cfg.Instance.Domain).
		Row("instance.base_url", cfg.Instance.BaseURL).
		Row("instance.key_path", cfg.Instance.KeyPath).
		Row("instance.key_id", cfg.Instance.KeyID).
		Row("server.address", cfg.Server.Address).
		Row("federation.proxy", proxy).
		Row("federation.connect_timeout", cfg.Federation.ConnectTimeout.String()).
		Row("federation.response_timeout", cfg.Federation.ResponseTimeout.String()).
		Row("federation.max_response_size", utils.FormatDataSize(cfg.Federation.MaxResponseSize)).
		Row("federation.user_agent", cfg.Federation.UserAgent)

	source := "environment"
	if configFile != "" {
		source = configFile
	}
	return titleStyle.Render("plumefed configuration") + "\n" +
		mutedStyle.Render("source: "+source) + "\n" +
		t.Render()
}
