// haruki-deobfuscate restores canonical UnityFS containers from obfuscated
// asset files, URLs or whole directories.
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"haruki-asset-deobfuscator/config"
	"haruki-asset-deobfuscator/deobfuscator"
	"haruki-asset-deobfuscator/pipeline"
	"haruki-asset-deobfuscator/utils"

	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	cfg := config.Cfg
	var probeOnly, list bool
	var logLevel string

	flagSet := pflag.NewFlagSet("haruki-deobfuscate", pflag.ContinueOnError)
	flagSet.SetOutput(stdout)
	flagSet.StringVarP(&cfg.Pipeline.OutputDir, "out", "o", cfg.Pipeline.OutputDir, "directory for decoded files")
	flagSet.BoolVar(&probeOnly, "probe-only", false, "only print the scheme of each input")
	flagSet.StringVar(&cfg.Pipeline.DumpFormat, "dump-format", cfg.Pipeline.DumpFormat, "structured dump format: json, msgpack or cbor")
	flagSet.BoolVar(&cfg.Pipeline.ExportEntries, "export-entries", cfg.Pipeline.ExportEntries, "also write the entries of each container")
	flagSet.StringVar(&logLevel, "log-level", cfg.Backend.LogLevel, "log level")
	flagSet.BoolVar(&list, "list", false, "list the known schemes and exit")
	flagSet.Usage = func() {
		_, _ = fmt.Fprintf(stdout, "Usage: haruki-deobfuscate [flags] <file|dir|url>...\n\n")
		flagSet.PrintDefaults()
	}
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	deobfuscator.SetLogLevel(logLevel)
	pipeline.SetLogLevel(logLevel)

	if list {
		return listSchemes(stdout)
	}
	inputs := flagSet.Args()
	if probeOnly {
		return probe(stdout, inputs)
	}
	if len(inputs) == 0 && cfg.Pipeline.InputDir == "" {
		flagSet.Usage()
		return errors.New("no inputs")
	}
	p, err := pipeline.New(cfg)
	if err != nil {
		return err
	}
	summary, err := p.Run(context.Background(), inputs)
	if err != nil {
		return err
	}
	for _, it := range summary.Items {
		switch it.Status {
		case pipeline.StatusFailed:
			_, _ = fmt.Fprintf(stdout, "%s\t%s\t%s\n", it.Status, it.Source, it.Error)
		default:
			_, _ = fmt.Fprintf(stdout, "%s\t%s\t%s\n", it.Status, it.Source, it.Scheme)
		}
	}
	if n := summary.Count(pipeline.StatusFailed); n > 0 {
		return fmt.Errorf("%d inputs failed", n)
	}
	return nil
}

func listSchemes(stdout io.Writer) error {
	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tPRIORITY\tOUTPUT")
	for _, s := range deobfuscator.DefaultCatalog().Schemes() {
		output := "rewritten"
		if s.ProducesStructuredContainer() {
			output = "structured"
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\n", s.Name(), s.Priority(), output)
	}
	return w.Flush()
}

func probe(stdout io.Writer, inputs []string) error {
	d := deobfuscator.NewDispatcher(nil)
	for _, in := range inputs {
		files := []string{in}
		if info, err := os.Stat(in); err != nil {
			return err
		} else if info.IsDir() {
			if files, err = utils.FindFilesMatching(in, nil); err != nil {
				return err
			}
		}
		for _, f := range files {
			data, err := os.ReadFile(f)
			if err != nil {
				return err
			}
			s, err := d.Identify(bytes.NewReader(data), filepath.Base(f))
			if err != nil {
				return err
			}
			name := "-"
			if s != nil {
				name = s.Name()
			}
			_, _ = fmt.Fprintf(stdout, "%s\t%s\n", f, name)
		}
	}
	return nil
}
