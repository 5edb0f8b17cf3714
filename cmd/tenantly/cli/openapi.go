package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tenantly/tenantly/internal/server"
)

func newOpenAPICmd() *cobra.Command {
	var outputFile string

	cmd := &cobra.Command{
		Use:   "openapi",
		Short: "Generate the OpenAPI specification",
		Long:  `Generate the OpenAPI 3.0 document served at /openapi.json without starting the server.`,
		Example: `  tenantly openapi                # print to stdout
  tenantly openapi -o openapi.json # write to file`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOpenAPI(outputFile)
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write spec to file instead of stdout")

	return cmd
}

func runOpenAPI(outputFile string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	doc, err := server.Document(versionString(), cfg.Auth.APIKeyHeader)
	if err != nil {
		return fmt.Errorf("generate openapi: %w", err)
	}

	var out bytes.Buffer
	if err := json.Indent(&out, doc, "", "  "); err != nil {
		return err
	}
	out.WriteByte('\n')

	if outputFile == "" {
		_, err := os.Stdout.Write(out.Bytes())
		return err
	}
	if err := os.WriteFile(outputFile, out.Bytes(), 0644); err != nil {
		return fmt.Errorf("write %s: %w", outputFile, err)
	}
	fmt.Printf("Wrote %s\n", outputFile)
	return nil
}
