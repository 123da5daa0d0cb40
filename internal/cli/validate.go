package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/samijaber1/aegis-sla/internal/app"
	"github.com/samijaber1/aegis-sla/internal/slaconfig"
	"github.com/spf13/cobra"
	"golang.org/x/sync/semaphore"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool                        `json:"valid"`
	Files  int                         `json:"files"`
	Errors []slaconfig.ValidationError `json:"errors,omitempty"`
}

type validateOptions struct {
	schema      string
	concurrency int64
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &validateOptions{}

	cmd := &cobra.Command{
		Use:   "validate <file-or-dir>...",
		Short: "Validate SLA config snapshots against the schema",
		Long: `Validate YAML or JSON SLA configuration snapshots against the snapshot
JSON schema. Directories are searched for *.yaml, *.yml and *.json files.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, rootOpts, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.schema, "schema", "", "schema file (default "+app.DefaultSchemaFile+")")
	cmd.Flags().Int64Var(&opts.concurrency, "concurrency", 4, "files validated in parallel")

	return cmd
}

func runValidate(cmd *cobra.Command, rootOpts *RootOptions, opts *validateOptions, args []string) error {
	schemaPath := opts.schema
	if schemaPath == "" {
		schemaPath = app.FindSchemaFile()
	}
	if schemaPath == "" {
		return fmt.Errorf("could not find %s, pass --schema", app.DefaultSchemaFile)
	}
	if opts.concurrency < 1 {
		return fmt.Errorf("--concurrency must be at least 1")
	}

	validator, err := slaconfig.NewValidator(schemaPath)
	if err != nil {
		return fmt.Errorf("failed to initialize validator: %w", err)
	}

	files, errs := expandInputs(args)
	errs = append(errs, validateFiles(cmd.Context(), validator, files, opts.concurrency)...)

	sort.SliceStable(errs, func(i, j int) bool { return errs[i].File < errs[j].File })

	result := ValidationResult{Valid: len(errs) == 0, Files: len(files), Errors: errs}
	if rootOpts.Format == "json" {
		if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
			return err
		}
	} else {
		printValidation(cmd, result)
	}

	if !result.Valid {
		return fmt.Errorf("validation failed with %d error(s)", len(errs))
	}
	return nil
}

// expandInputs resolves directories into their snapshot files
func expandInputs(args []string) ([]string, []slaconfig.ValidationError) {
	var files []string
	var errs []slaconfig.ValidationError

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			errs = append(errs, slaconfig.ValidationError{File: arg, Message: err.Error()})
			continue
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}

		err = filepath.WalkDir(arg, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			switch filepath.Ext(path) {
			case ".yaml", ".yml", ".json":
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			errs = append(errs, slaconfig.ValidationError{File: arg, Message: fmt.Sprintf("failed to read directory: %v", err)})
		}
	}

	return files, errs
}

// validateFiles validates files with at most limit in flight
func validateFiles(ctx context.Context, validator *slaconfig.Validator, files []string, limit int64) []slaconfig.ValidationError {
	sem := semaphore.NewWeighted(limit)
	var mu sync.Mutex
	var wg sync.WaitGroup
	var errs []slaconfig.ValidationError

	for _, file := range files {
		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			errs = append(errs, slaconfig.ValidationError{File: file, Message: err.Error()})
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(file string) {
			defer wg.Done()
			defer sem.Release(1)

			fileErrs := validator.ValidateFile(file)

			mu.Lock()
			errs = append(errs, fileErrs...)
			mu.Unlock()
		}(file)
	}

	wg.Wait()
	return errs
}

func printValidation(cmd *cobra.Command, result ValidationResult) {
	if result.Valid {
		fmt.Fprintf(cmd.OutOrStdout(), "✓ All %d snapshot file(s) are valid\n", result.Files)
		return
	}

	w := cmd.ErrOrStderr()
	fmt.Fprintf(w, "✗ Validation failed with %d error(s):\n\n", len(result.Errors))
	for _, err := range result.Errors {
		if err.Path != "" {
			fmt.Fprintf(w, "%s: %s: %s\n", filepath.Base(err.File), err.Path, err.Message)
		} else {
			fmt.Fprintf(w, "%s: %s\n", filepath.Base(err.File), err.Message)
		}
	}
}
