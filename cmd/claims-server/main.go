package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/claimsdesk/claims/internal/domain/claim"
	"github.com/claimsdesk/claims/internal/domain/claimimport"
	"github.com/claimsdesk/claims/internal/domain/patient"
	"github.com/claimsdesk/claims/internal/domain/user"
	"github.com/claimsdesk/claims/internal/platform/auth"
	"github.com/claimsdesk/claims/internal/platform/db"
	"github.com/claimsdesk/claims/migrations"
	"github.com/claimsdesk/claims/pkg/validation"
)

// errImportHadErrors makes the import command exit non-zero without
// printing usage.
var errImportHadErrors = errors.New("import finished with errors")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "claims-server",
		Short:         "Medical claims API and CSV import server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(userCmd())

	return withErrorPrinting(rootCmd)
}

// withErrorPrinting reports command errors on stderr, except for the import
// summary signal which has already been printed.
func withErrorPrinting(root *cobra.Command) *cobra.Command {
	for _, cmd := range allCommands(root) {
		run := cmd.RunE
		if run == nil {
			continue
		}
		cmd.RunE = func(cmd *cobra.Command, args []string) error {
			err := run(cmd, args)
			if err != nil && !errors.Is(err, errImportHadErrors) {
				cmd.PrintErrln("Error:", err)
			}
			return err
		}
	}
	return root
}

func allCommands(cmd *cobra.Command) []*cobra.Command {
	out := []*cobra.Command{cmd}
	for _, sub := range cmd.Commands() {
		out = append(out, allCommands(sub)...)
	}
	return out
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the claims API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			count, err := db.NewMigrator(a.pool, migrations.FS).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	// migrate status
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			statuses, err := db.NewMigrator(a.pool, migrations.FS).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printMigrationStatus(cmd.OutOrStdout(), statuses)
			return nil
		},
	})

	return cmd
}

func printMigrationStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import claims from a CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			ctx := context.Background()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			res := a.importer.Run(ctx, content, filepath.Base(args[0]))
			printImportResult(cmd.OutOrStdout(), res)
			if len(res.Errors) > 0 {
				return errImportHadErrors
			}
			return nil
		},
	}
}

func printImportResult(w io.Writer, res *claimimport.Result) {
	job := res.Job
	fmt.Fprintf(w, "Import %s: %s\n", job.FileName, job.Status)
	if job.ID != uuid.Nil {
		fmt.Fprintf(w, "  id:        %s\n", job.ID)
	}
	fmt.Fprintf(w, "  rows:      %d\n", job.TotalRecords)
	fmt.Fprintf(w, "  processed: %d\n", res.ProcessedCount)
	if len(res.Errors) > 0 {
		fmt.Fprintf(w, "  errors:    %d\n", len(res.Errors))
		for _, msg := range res.Errors {
			fmt.Fprintf(w, "    %s\n", msg)
		}
	}
}

type exportOptions struct {
	status string
	from   string
	to     string
	out    string
}

// filter turns the flags into a claim filter, validating them the way the
// HTTP export endpoint does.
func (o exportOptions) filter() (claim.Filter, error) {
	var f claim.Filter
	if s := strings.TrimSpace(o.status); s != "" {
		s = claim.NormalizeStatus(s)
		if !claim.ValidStatus(s) {
			return f, errors.New(claim.StatusMessage())
		}
		f.Status = s
	}
	for _, d := range []struct {
		flag string
		val  string
		dst  **time.Time
	}{
		{"--from", o.from, &f.From},
		{"--to", o.to, &f.To},
	} {
		if d.val == "" {
			continue
		}
		t, err := time.Parse(patient.DateLayout, d.val)
		if err != nil {
			return f, fmt.Errorf("invalid %s %q (use YYYY-MM-DD)", d.flag, d.val)
		}
		*d.dst = &t
	}
	return f, nil
}

func exportCmd() *cobra.Command {
	var opts exportOptions
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export claims to CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := opts.filter()
			if err != nil {
				return err
			}

			ctx := context.Background()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			var dest string
			var n int
			if opts.out != "" {
				content, rows, err := a.imports.Export(ctx, f)
				if err != nil {
					return err
				}
				if err := os.WriteFile(opts.out, content, 0o640); err != nil {
					return fmt.Errorf("write export: %w", err)
				}
				if err := summarizeExport(cmd.OutOrStdout(), content); err != nil {
					return err
				}
				dest, n = opts.out, rows
			} else {
				obj, rows, err := a.imports.ExportToArchive(ctx, f)
				if err != nil {
					return err
				}
				dest, n = filepath.Join(a.cfg.StorageDir, filepath.FromSlash(obj.Key)), rows
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d claim(s) to %s\n", n, dest)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.status, "status", "", "Only claims with this status")
	cmd.Flags().StringVar(&opts.from, "from", "", "Earliest service date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.to, "to", "", "Latest service date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.out, "out", "", "Write to this path instead of the export archive")
	return cmd
}

// summarizeExport reads a written export back and prints the amount billed
// per status.
func summarizeExport(w io.Writer, content []byte) error {
	rows, err := claimimport.ParseExport(content)
	if err != nil {
		return fmt.Errorf("read back export: %w", err)
	}
	totals := make(map[string]decimal.Decimal, len(claim.Statuses))
	for _, r := range rows {
		totals[r.Status] = totals[r.Status].Add(r.Amount)
	}
	for _, s := range claim.Statuses {
		if v, ok := totals[s]; ok {
			fmt.Fprintf(w, "  %-10s %s\n", s, v.StringFixed(2))
		}
	}
	return nil
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}

	var email, password, role string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			u, err := a.users.CreateUser(ctx, user.Credentials{
				Email:    email,
				Password: password,
				Role:     strings.ToLower(strings.TrimSpace(role)),
			})
			if err != nil {
				if msgs, ok := validation.Messages(err); ok {
					return errors.New(strings.Join(msgs, "; "))
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s user %s (%s)\n", u.Role, u.Email, u.ID)
			return nil
		},
	}
	createCmd.Flags().StringVar(&email, "email", "", "Email address (required)")
	createCmd.Flags().StringVar(&password, "password", "", "Password (required)")
	createCmd.Flags().StringVar(&role, "role", auth.RoleStaff, "Role: admin or staff")
	_ = createCmd.MarkFlagRequired("email")
	_ = createCmd.MarkFlagRequired("password")

	cmd.AddCommand(createCmd)
	return cmd
}
