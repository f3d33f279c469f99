package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/shillcollin/agentkit"
)

func providersCommand(args []string, stdout, stderr io.Writer) error {
	fs := pflag.NewFlagSet("providers", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	envFile := fs.String("env-file", ".env", "dotenv file loaded before reading provider keys")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := loadEnv(*envFile); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROVIDER\tEMBEDDINGS\tCREDENTIALS")
	for _, p := range agentkit.DescribeProviders() {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Name, yesNo(p.Embeddings), setMissing(p.Credentials))
	}
	return tw.Flush()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func setMissing(b bool) string {
	if b {
		return "set"
	}
	return "missing"
}
