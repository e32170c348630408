package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/vvuk/idlebind/ast"
	"github.com/vvuk/idlebind/binder"
	"github.com/vvuk/idlebind/parser"
)

// Execute runs the idlebind CLI with the given version string.
func Execute(version string) {
	cmd := &cli.Command{
		Name:                   "idlebind",
		Usage:                  "Generate paired script/native binding glue from an IDL description",
		Version:                version,
		UseShortOptionHandling: true,
		// Allow `idlebind file.idl` as shorthand for `idlebind gen file.idl`
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.NArg() > 0 && strings.HasSuffix(cmd.Args().First(), ".idl") {
				return generate(cmd.Args().First(), binder.DefaultOptions(), "")
			}
			return cli.DefaultShowRootCommandHelp(cmd)
		},
		Commands: []*cli.Command{
			{
				Name:      "gen",
				Usage:     "Generate <base>.js and <base>.cpp from an IDL file",
				ArgsUsage: "<file.idl>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output base path (default: input path without extension)",
					},
					&cli.StringFlag{
						Name:  "prefix",
						Usage: "Native entry point name prefix",
					},
					&cli.StringFlag{
						Name:    "module",
						Aliases: []string{"m"},
						Usage:   "Identifier wrapping the generated script classes",
					},
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "YAML config file (default: idlebind.yml if present)",
					},
				},
				Action: genAction,
			},
			{
				Name:      "inspect",
				Usage:     "Dump the parsed declaration tree",
				ArgsUsage: "<file.idl>",
				Action:    inspectAction,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%serror:%s %v\n", colorFail(), colorReset(), err)
		os.Exit(1)
	}
}

func genAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() < 1 {
		return fmt.Errorf("usage: idlebind gen [-o base] <file.idl>")
	}
	input := cmd.Args().First()

	opts := binder.DefaultOptions()
	cfgPath := cmd.String("config")
	if cfgPath == "" {
		if _, err := os.Stat("idlebind.yml"); err == nil {
			cfgPath = "idlebind.yml"
		}
	}
	if cfgPath != "" {
		loaded, err := binder.LoadOptions(cfgPath)
		if err != nil {
			return err
		}
		opts = loaded
	}
	if v := cmd.String("prefix"); v != "" {
		opts.Prefix = v
	}
	if v := cmd.String("module"); v != "" {
		opts.ModuleName = v
	}

	output := cmd.String("output")
	if output == "" {
		output = opts.OutputBase
	}
	return generate(input, opts, output)
}

func generate(input string, opts binder.Options, output string) error {
	module, err := ast.ParseFile(&parser.Parser{}, input)
	if err != nil {
		return err
	}
	result, err := binder.Generate(module, opts)
	if err != nil {
		return err
	}

	if output == "" {
		output = strings.TrimSuffix(input, filepath.Ext(input))
	}
	if err := result.WriteFiles(output); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "wrote %s.js and %s.cpp\n", output, output)
	return nil
}

func inspectAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() < 1 {
		return fmt.Errorf("usage: idlebind inspect <file.idl>")
	}
	module, err := ast.ParseFile(&parser.Parser{}, cmd.Args().First())
	if err != nil {
		return err
	}
	conf := spew.ConfigState{Indent: "  ", DisablePointerAddresses: true, DisableCapacities: true}
	conf.Fdump(os.Stdout, module)
	return nil
}

// Color error output only on interactive terminals, honoring NO_COLOR.
func colorEnabled() bool {
	return os.Getenv("NO_COLOR") == "" && term.IsTerminal(int(os.Stderr.Fd()))
}

func colorFail() string {
	if colorEnabled() {
		return "\033[31m"
	}
	return ""
}

func colorReset() string {
	if colorEnabled() {
		return "\033[0m"
	}
	return ""
}
