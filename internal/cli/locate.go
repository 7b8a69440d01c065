package cli

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"knlsetup/internal/hostenv"
	"knlsetup/internal/pyenv"
	"knlsetup/internal/tui"
)

func newLocateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "locate",
		Short: "Find a Python interpreter suitable for knl",
		Long: "Search PATH and the conventional install locations for a Python that\n" +
			"meets the minimum version, without installing anything.",
		Args: cobra.NoArgs,
		RunE: runLocate,
	}
	addSearchFlags(cmd)
	return cmd
}

type locateResult struct {
	Requirement pyenv.Requirement `json:"requirement"`
	Runtime     *pyenv.Candidate  `json:"runtime,omitempty"`
	Rejected    []pyenv.Rejection `json:"rejected,omitempty"`
}

func runLocate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	s, err := loadSettings(cmd.Flags(), env)
	if err != nil {
		return err
	}
	req, err := requirementFor(s, env)
	if err != nil {
		return err
	}

	locator := s.locator(env)
	locator.Logger = logger()
	cand, err := locator.Locate(ctx, req)

	result := locateResult{Requirement: req}
	var notFound *pyenv.RuntimeNotFoundError
	switch {
	case err == nil:
		result.Runtime = &cand
	case errors.As(err, &notFound):
		result.Rejected = notFound.Rejected
	default:
		return err
	}

	out := cmd.OutOrStdout()
	if outputJSON {
		if werr := writeJSON(out, result); werr != nil {
			return werr
		}
		return err
	}

	if result.Runtime != nil {
		fmt.Fprintf(out, "%s %s\n", tui.LabelStyle.Render("Found:"), result.Runtime)
		fmt.Fprintf(out, "%s %s (%s)\n", tui.LabelStyle.Render("Needs:"), req, req.Origin)
		return nil
	}

	fmt.Fprintf(out, "No Python >= %s was found.\n", req)
	if len(result.Rejected) > 0 {
		fmt.Fprintln(out)
		w := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
		fmt.Fprintln(w, "PATH\tREASON")
		for _, r := range result.Rejected {
			fmt.Fprintf(w, "%s\t%s\n", r.Path, r.Reason)
		}
		w.Flush()
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, tui.PlainMarkdown(pyenv.Instructions(req, env.GOOS)))
	return err
}

// requirementFor picks the minimum Python: flag, env or config first, then
// pyproject.toml, then the built-in default.
func requirementFor(s *settings, env hostenv.Environment) (pyenv.Requirement, error) {
	if minimum := s.pythonMin(); minimum != "" {
		return pyenv.ParseMinimum(minimum)
	}
	return pyenv.RequirementFromManifest(env), nil
}
