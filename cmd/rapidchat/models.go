package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/real-zephex/Rapid-Chat-sub000/pkg/models"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/transport/httpsse"
)

var (
	modelsOutput string
	modelsServer string
	modelsToken  string
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42")).
		Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the model catalog",
	Long: `List the models clients can select. Reads the local config, or a running
server's GET /models with --server.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var catalog models.Catalog
		if modelsServer != "" {
			c := &httpsse.Client{BaseURL: modelsServer, Token: modelsToken}
			list, err := c.Models(cmd.Context())
			if err != nil {
				return err
			}
			catalog = list
		} else {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			catalog = cfg.Models
		}
		return printModels(cmd.OutOrStdout(), catalog, modelsOutput)
	},
}

func init() {
	modelsCmd.Flags().StringVarP(&modelsOutput, "output", "o", "table", "output format: table, yaml or json")
	modelsCmd.Flags().StringVar(&modelsServer, "server", "", "list a running server's models instead of the config")
	modelsCmd.Flags().StringVar(&modelsToken, "token", "", "bearer token for --server")
	rootCmd.AddCommand(modelsCmd)
}

func printModels(w io.Writer, catalog models.Catalog, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(catalog)
	case "yaml":
		out, err := yaml.Marshal(catalog)
		if err != nil {
			return err
		}
		_, err = w.Write(out)
		return err
	case "table", "":
	default:
		return fmt.Errorf("unknown output format %q", format)
	}

	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%d model(s)", len(catalog))))
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, strings.Join([]string{
		titleStyle.Render("ID"), titleStyle.Render("Provider"), titleStyle.Render("Vendor model"),
		titleStyle.Render("Attachments"), titleStyle.Render("Features"),
	}, "\t"))
	for _, m := range catalog {
		fmt.Fprintln(tw, strings.Join([]string{
			idStyle.Render(m.ID),
			m.Provider,
			dimStyle.Render(m.VendorModel),
			attachmentSummary(m.Attachments),
			features(m),
		}, "\t"))
	}
	return tw.Flush()
}

func attachmentSummary(mimes []string) string {
	if len(mimes) == 0 {
		return "-"
	}
	kinds := map[string]bool{}
	var out []string
	for _, m := range mimes {
		kind, _, _ := strings.Cut(m, "/")
		if m == "application/pdf" {
			kind = "pdf"
		}
		if !kinds[kind] {
			kinds[kind] = true
			out = append(out, kind)
		}
	}
	return strings.Join(out, ",")
}

func features(m models.ModelInfo) string {
	var out []string
	if m.Reasoning {
		out = append(out, "reasoning")
	}
	if m.Tools {
		out = append(out, "tools")
	}
	if len(out) == 0 {
		return "-"
	}
	return strings.Join(out, ",")
}
