// Package main provides the CLI entry point for m3l, a compiler front end
// for the M3L schema-modeling language: lex, parse, resolve, and validate
// M3L documents and emit the resulting AST or diagnostics as JSON.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/iyulab/m3l-go/ast"
	"github.com/iyulab/m3l-go/facade"
	"github.com/iyulab/m3l-go/log"
	"github.com/iyulab/m3l-go/profile"
	"github.com/iyulab/m3l-go/version"
)

func main() {
	logCfg := log.NewConfig()
	profileCfg := profile.NewConfig()

	var profiler *profile.Profiler

	rootCmd := &cobra.Command{
		Use:           "m3l",
		Short:         "Compile and validate M3L schema documents",
		Long:          `m3l lexes, parses, resolves, and validates M3L schema-modeling documents embedded in restricted Markdown, emitting the resolved AST or diagnostics as JSON.`,
		Version:       version.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			handler, err := logCfg.NewHandler(os.Stderr)
			if err != nil {
				return fmt.Errorf("configure logging: %w", err)
			}

			slog.SetDefault(slog.New(handler))

			profiler = profileCfg.NewProfiler()

			return profiler.Start()
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			return profiler.Stop()
		},
	}

	logCfg.RegisterFlags(rootCmd.PersistentFlags())
	profileCfg.RegisterFlags(rootCmd.PersistentFlags())

	if err := logCfg.RegisterCompletions(rootCmd); err != nil {
		fmt.Fprintf(os.Stderr, "register log completions: %v\n", err)
	}

	if err := profileCfg.RegisterCompletions(rootCmd); err != nil {
		fmt.Fprintf(os.Stderr, "register profile completions: %v\n", err)
	}

	rootCmd.AddCommand(newParseCmd(), newValidateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

type parseFlags struct {
	projectName    string
	projectVersion string
}

func newParseCmd() *cobra.Command {
	pf := &parseFlags{}

	cmd := &cobra.Command{
		Use:   "parse <file.m3l.md> [file2.m3l.md ...]",
		Short: "Parse and resolve M3L documents into an AST",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runParse(pf, args)
		},
	}

	cmd.Flags().StringVar(&pf.projectName, "project-name", "", "project name override (defaults to first file's namespace)")
	cmd.Flags().StringVar(&pf.projectVersion, "project-version", "", "project version override")

	return cmd
}

func runParse(pf *parseFlags, args []string) error {
	start := time.Now()
	files := make([]*ast.ParsedFile, 0, len(args))

	for _, arg := range args {
		content, err := os.ReadFile(arg)
		if err != nil {
			slog.Error("read source file failed", "file", arg, "error", err)
			return fmt.Errorf("read %s: %w", arg, err)
		}

		files = append(files, facade.ParseOne(string(content), arg))
	}

	var projectInfo *ast.ProjectInfo

	if pf.projectName != "" || pf.projectVersion != "" {
		projectInfo = &ast.ProjectInfo{}
		if pf.projectName != "" {
			projectInfo.Name = &pf.projectName
		}

		if pf.projectVersion != "" {
			projectInfo.Version = &pf.projectVersion
		}
	}

	doc := facade.Resolve(files, projectInfo)
	slog.Info("resolve stage complete",
		"files", len(files), "models", len(doc.Models), "errors", len(doc.Errors),
		"elapsed", time.Since(start))

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ast: %w", err)
	}

	out = append(out, '\n')

	_, err = os.Stdout.Write(out)
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	return nil
}

type validateFlags struct {
	strict bool
}

func newValidateCmd() *cobra.Command {
	vf := &validateFlags{}

	cmd := &cobra.Command{
		Use:   "validate <file.m3l.md> [file2.m3l.md ...]",
		Short: "Resolve M3L documents and report diagnostics",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runValidate(vf, args)
		},
	}

	cmd.Flags().BoolVar(&vf.strict, "strict", false, "enable strict-mode style checks (line length, nesting depth, lookup chains)")

	return cmd
}

func runValidate(vf *validateFlags, args []string) error {
	start := time.Now()
	files := make([]*ast.ParsedFile, 0, len(args))

	for _, arg := range args {
		content, err := os.ReadFile(arg)
		if err != nil {
			slog.Error("read source file failed", "file", arg, "error", err)
			return fmt.Errorf("read %s: %w", arg, err)
		}

		files = append(files, facade.ParseOne(string(content), arg))
	}

	doc := facade.Resolve(files, nil)
	result := facade.RunValidate(doc, ast.ValidateOptions{Strict: vf.strict})
	slog.Info("validate stage complete",
		"files", len(files), "errors", len(result.Errors), "warnings", len(result.Warnings),
		"elapsed", time.Since(start))

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal diagnostics: %w", err)
	}

	out = append(out, '\n')

	_, err = os.Stdout.Write(out)
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	if len(result.Errors) > 0 {
		os.Exit(1)
	}

	return nil
}
