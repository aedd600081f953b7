package app

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/custodia/recon/pkg/audit"
	"github.com/custodia/recon/pkg/breaks"
	"github.com/custodia/recon/pkg/errors"
	"github.com/custodia/recon/pkg/pipeline"
	"github.com/custodia/recon/pkg/tabular"
	"github.com/custodia/recon/pkg/triage"
)

// PendingFile is written when a run parks at the confirmation gate.
// Candidates are keyed by a stable identifier so a later approve
// invocation can match them against a fresh run.
type PendingFile struct {
	RunID      string             `json:"run_id"`
	Target     string             `json:"target"`
	Source     string             `json:"source"`
	Candidates []PendingCandidate `json:"candidates"`
}

// PendingCandidate is one break awaiting a human decision. A ruling
// on the key applies to every break of that type on the event.
type PendingCandidate struct {
	Key        string `json:"key"`
	EventKey   string `json:"event_key"`
	BreakType  string `json:"break_type"`
	Category   string `json:"category"`
	Confidence int    `json:"confidence"`
	Rationale  string `json:"rationale"`
}

// DecisionsFile carries the reviewer's rulings, keyed the same way as
// the pending file's candidates.
type DecisionsFile struct {
	AcceptedBy string          `json:"accepted_by"`
	Decisions  map[string]bool `json:"decisions"`
}

// NewRunCommand creates the run command.
func (a *App) NewRunCommand() *cobra.Command {
	var (
		targetPath  string
		sourcePath  string
		sheet       string
		outPath     string
		pendingPath string
		autoApprove bool
		rejectAll   bool
		approvedBy  string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Reconcile a ledger extract against a custodian statement",
		Long: `Run executes the full reconciliation pipeline. When triage nominates
breaks for auto-correction the run parks at the confirmation gate: the
pending decisions are written to the --pending file for review, and a
later "recon approve" resumes the run. --auto-approve and --reject-all
resolve the gate immediately instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := a.executeRun(cmd, targetPath, sourcePath, sheet)
			if err != nil {
				return err
			}

			if run.Status() == pipeline.StatusAwaitingConfirmation {
				switch {
				case autoApprove:
					if err := run.Confirm(cmd.Context(), decideAll(run, approvedBy, true)); err != nil {
						return err
					}
				case rejectAll:
					if err := run.Confirm(cmd.Context(), decideAll(run, approvedBy, false)); err != nil {
						return err
					}
				default:
					return a.writePending(run, targetPath, sourcePath, pendingPath)
				}
			}

			return a.writeReport(run, outPath)
		},
	}

	cmd.Flags().StringVarP(&targetPath, "target", "t", "", "internal ledger extract (csv, tsv, or xlsx)")
	cmd.Flags().StringVarP(&sourcePath, "source", "s", "", "custodian statement (csv, tsv, or xlsx)")
	cmd.Flags().StringVar(&sheet, "sheet", "", "worksheet name for xlsx input")
	cmd.Flags().StringVar(&outPath, "out", "report.json", "where to write the audit report")
	cmd.Flags().StringVar(&pendingPath, "pending", "pending.json", "where to write pending decisions when the run parks")
	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "approve every auto-fix candidate without review")
	cmd.Flags().BoolVar(&rejectAll, "reject-all", false, "reject every auto-fix candidate")
	cmd.Flags().StringVar(&approvedBy, "by", "recon-cli", "reviewer recorded on gate decisions")
	_ = cmd.MarkFlagRequired("target")
	_ = cmd.MarkFlagRequired("source")
	cmd.MarkFlagsMutuallyExclusive("auto-approve", "reject-all")

	return cmd
}

// NewApproveCommand creates the approve command.
func (a *App) NewApproveCommand() *cobra.Command {
	var (
		targetPath    string
		sourcePath    string
		sheet         string
		outPath       string
		decisionsPath string
		approvedBy    string
	)

	cmd := &cobra.Command{
		Use:   "approve",
		Short: "Resume a parked run with reviewer decisions",
		Long: `Approve re-executes the pipeline over the same inputs and applies the
decisions file to the confirmation gate. The pipeline is deterministic,
so the fresh run reproduces the parked run's breaks; decisions are
matched by the stable keys listed in the pending file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			decisions, err := readDecisions(decisionsPath)
			if err != nil {
				return err
			}
			if approvedBy != "" {
				decisions.AcceptedBy = approvedBy
			}

			run, err := a.executeRun(cmd, targetPath, sourcePath, sheet)
			if err != nil {
				return err
			}
			if run.Status() != pipeline.StatusAwaitingConfirmation {
				return a.writeReport(run, outPath)
			}

			approvals := translateDecisions(run, decisions)
			if err := run.Confirm(cmd.Context(), approvals); err != nil {
				return err
			}
			if run.Status() == pipeline.StatusAwaitingConfirmation {
				return fmt.Errorf("decisions file left %d candidate(s) undecided", len(pendingCandidates(run)))
			}
			return a.writeReport(run, outPath)
		},
	}

	cmd.Flags().StringVarP(&targetPath, "target", "t", "", "internal ledger extract (csv, tsv, or xlsx)")
	cmd.Flags().StringVarP(&sourcePath, "source", "s", "", "custodian statement (csv, tsv, or xlsx)")
	cmd.Flags().StringVar(&sheet, "sheet", "", "worksheet name for xlsx input")
	cmd.Flags().StringVar(&outPath, "out", "report.json", "where to write the audit report")
	cmd.Flags().StringVarP(&decisionsPath, "decisions", "d", "", "decisions file from the reviewer")
	cmd.Flags().StringVar(&approvedBy, "by", "", "reviewer name (overrides the decisions file)")
	_ = cmd.MarkFlagRequired("target")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("decisions")

	return cmd
}

// NewReportCommand creates the report command.
func (a *App) NewReportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report <report.json>",
		Short: "Verify and summarize a sealed audit report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var r audit.Report
			if err := json.Unmarshal(raw, &r); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}
			if err := audit.Verify(&r); err != nil {
				return fmt.Errorf("hash chain verification failed: %w", err)
			}
			printSummary(cmd, &r)
			return nil
		},
	}
	return cmd
}

// NewVersionCommand creates the version command.
func (a *App) NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("recon %s (commit %s, built %s)\n", a.version, a.commit, a.date)
		},
	}
}

func (a *App) executeRun(cmd *cobra.Command, targetPath, sourcePath, sheet string) (*pipeline.Run, error) {
	if sheet == "" {
		sheet = a.config.Sheet
	}
	target, err := tabular.ReadFile(targetPath, sheet)
	if err != nil {
		return nil, err
	}
	source, err := tabular.ReadFile(sourcePath, sheet)
	if err != nil {
		return nil, err
	}

	p, err := a.Pipeline()
	if err != nil {
		return nil, err
	}
	run := p.NewRun()
	if err := run.Execute(cmd.Context(), target, source); err != nil {
		return nil, err
	}
	return run, nil
}

func (a *App) writeReport(run *pipeline.Run, outPath string) error {
	r := run.Report()
	if r == nil {
		return errors.ErrRunNotResumable
	}
	raw, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(outPath, raw, 0o644); err != nil {
		return err
	}
	a.logger.Info().Str("path", outPath).Str("run_id", r.RunID).Msg("audit report written")
	return nil
}

func (a *App) writePending(run *pipeline.Run, targetPath, sourcePath, pendingPath string) error {
	pf := PendingFile{
		RunID:      run.ID(),
		Target:     targetPath,
		Source:     sourcePath,
		Candidates: pendingCandidates(run),
	}
	raw, err := json.MarshalIndent(pf, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(pendingPath, raw, 0o644); err != nil {
		return err
	}
	a.logger.Info().Str("path", pendingPath).Int("candidates", len(pf.Candidates)).
		Msg("run parked at confirmation gate; decisions file written")
	return nil
}

// pendingCandidates lists the undecided auto-fix candidates with
// stable keys.
func pendingCandidates(run *pipeline.Run) []PendingCandidate {
	tr := run.Triage()
	if tr == nil {
		return nil
	}
	auto := make(map[string]bool, len(tr.AutoCandidates))
	for _, id := range tr.AutoCandidates {
		auto[id] = true
	}
	out := []PendingCandidate{}
	for _, cl := range tr.Classifications {
		if !auto[cl.BreakID] || cl.Decided() {
			continue
		}
		out = append(out, PendingCandidate{
			Key:        candidateKey(cl),
			EventKey:   cl.EventKey,
			BreakType:  string(cl.BreakType),
			Category:   string(cl.Category),
			Confidence: cl.Confidence,
			Rationale:  cl.Rationale,
		})
	}
	return out
}

// candidateKey identifies a break across runs. Break IDs are
// per-run, so decisions are keyed by the event and break type
// instead.
func candidateKey(cl triage.Classification) string {
	return cl.EventKey + "|" + string(cl.BreakType)
}

// translateDecisions maps stable candidate keys onto this run's break
// IDs.
func translateDecisions(run *pipeline.Run, df *DecisionsFile) triage.Approvals {
	approvals := triage.Approvals{
		By:        df.AcceptedBy,
		Decisions: map[string]bool{},
	}
	tr := run.Triage()
	if tr == nil {
		return approvals
	}
	for _, cl := range tr.Classifications {
		if decision, ok := df.Decisions[candidateKey(cl)]; ok {
			approvals.Decisions[cl.BreakID] = decision
		}
	}
	return approvals
}

// decideAll builds a uniform approval batch for every pending auto
// candidate.
func decideAll(run *pipeline.Run, by string, approve bool) triage.Approvals {
	approvals := triage.Approvals{By: by, Decisions: map[string]bool{}}
	tr := run.Triage()
	if tr == nil {
		return approvals
	}
	for _, id := range tr.AutoCandidates {
		approvals.Decisions[id] = approve
	}
	return approvals
}

func readDecisions(path string) (*DecisionsFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var df DecisionsFile
	if err := json.Unmarshal(raw, &df); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if df.AcceptedBy == "" {
		df.AcceptedBy = "recon-cli"
	}
	return &df, nil
}

func printSummary(cmd *cobra.Command, r *audit.Report) {
	m := r.Metrics
	cmd.Printf("run %s (%s)\n", r.RunID, r.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	cmd.Printf("  hash chain   ok (%s)\n", short(r.ChainHead))
	cmd.Printf("  events       %d total, %d clean, %d broken\n", m.EventsTotal, m.EventsClean, m.EventsBroken)
	cmd.Printf("  breaks       %d total", m.BreaksTotal)
	for _, sev := range []breaks.Severity{breaks.SeverityMajor, breaks.SeverityModerate, breaks.SeverityMinor} {
		if n := m.BreaksBySeverity[string(sev)]; n > 0 {
			cmd.Printf(", %d %s", n, sev)
		}
	}
	cmd.Println()
	cmd.Printf("  corrections  %d total, %d auto-applied, %d for review\n", m.CorrectionsTotal, m.AutoApplied, m.ManualReview)
	if m.BreaksTotal > 0 {
		cmd.Printf("  confidence   %.1f mean, %.0f%% auto-corrected\n", m.MeanConfidence, m.AutoCorrectionRatio*100)
	}
	if r.CriticalIssues {
		cmd.Println("  CRITICAL ISSUES:")
		for _, note := range r.Notes {
			cmd.Printf("    - %s\n", note)
		}
	}
}

func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
