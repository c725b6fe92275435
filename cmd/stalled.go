package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var stalledCompanyID int64

var stalledCmd = &cobra.Command{
	Use:   "stalled",
	Short: "List stalled expenses",
	Long:  `List pending expenses whose approval chain finished without reaching the threshold. They need an operator or a rule change to move.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listStalled(cmd.Context())
	},
}

type stalledRow struct {
	ID          int64      `db:"id"`
	CompanyID   int64      `db:"company_id"`
	EmployeeID  int64      `db:"employee_id"`
	Category    string     `db:"category"`
	RuleID      *int64     `db:"approval_rule_id"`
	SubmittedAt *time.Time `db:"submitted_at"`
}

const stalledQuery = `
SELECT id, company_id, employee_id, category, approval_rule_id, submitted_at
FROM expenses
WHERE status = 'pending' AND current_approver_id IS NULL
  AND ($1::bigint = 0 OR company_id = $1::bigint)
ORDER BY submitted_at ASC, id ASC`

func listStalled(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, lg, err := bootstrap()
	if err != nil {
		return err
	}
	db, err := initDB(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	var rows []stalledRow
	if err := db.SelectContext(ctx, &rows, stalledQuery, stalledCompanyID); err != nil {
		return fmt.Errorf("query stalled expenses: %w", err)
	}
	lg.Info("stalled expenses", "count", len(rows), "company_id", stalledCompanyID)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCOMPANY\tEMPLOYEE\tCATEGORY\tRULE\tSUBMITTED")
	for _, r := range rows {
		rule, submitted := "-", "-"
		if r.RuleID != nil {
			rule = fmt.Sprint(*r.RuleID)
		}
		if r.SubmittedAt != nil {
			submitted = r.SubmittedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%d\t%d\t%d\t%s\t%s\t%s\n", r.ID, r.CompanyID, r.EmployeeID, r.Category, rule, submitted)
	}
	return w.Flush()
}

func init() {
	stalledCmd.Flags().Int64Var(&stalledCompanyID, "company", 0, "only list expenses of this company")
}
