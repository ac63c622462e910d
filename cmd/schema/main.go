package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"driftrace/internal/net/proto"
)

func main() {
	outPath := pflag.String("out", "", "path to write the combined JSON schema")
	splitDir := pflag.String("split-dir", "", "optional directory for one schema file per message type")
	pflag.Parse()

	if *outPath == "" {
		fmt.Fprintln(os.Stderr, "--out is required")
		os.Exit(1)
	}

	if err := writeSchema(*outPath, proto.Schema()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write schema: %v\n", err)
		os.Exit(1)
	}
	if *splitDir != "" {
		for msgType, schema := range proto.Schemas() {
			if err := writeSchema(filepath.Join(*splitDir, msgType+".schema.json"), schema); err != nil {
				fmt.Fprintf(os.Stderr, "failed to write %s schema: %v\n", msgType, err)
				os.Exit(1)
			}
		}
	}
}

func writeSchema(outPath string, schema any) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create schema directory: %w", err)
	}

	tmpPath := outPath + ".tmp"
	if err := os.WriteFile(tmpPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write temp schema: %w", err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("replace schema: %w", err)
	}

	return nil
}
