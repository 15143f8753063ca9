package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/limberduck/tsccm/internal/config"
	"github.com/limberduck/tsccm/internal/credential"
	"github.com/limberduck/tsccm/internal/exit"
	"github.com/limberduck/tsccm/internal/projector"
	"github.com/limberduck/tsccm/internal/render"
	"github.com/limberduck/tsccm/internal/resource"
	"github.com/limberduck/tsccm/internal/session"
	"github.com/limberduck/tsccm/internal/tenablesc"
)

const noOptionGiven = "No option given!"

// action is the single fetch a command performs per target. A nil action means
// no action flag was given.
type action struct {
	kind resource.Kind
	// derive replaces the projected table before rendering.
	derive func(projector.Table) (projector.Table, error)
}

// runPipeline runs act against every configured target in order. A failed target
// is reported and skipped; the command fails once all targets were attempted.
func runPipeline(cmd *cobra.Command, act *action) error {
	if err := cfg.Validate(); err != nil {
		return exit.Usage(err)
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
	resolver := newResolver(cmd)
	targets := cfg.Targets()

	var failed []string
	for _, target := range targets {
		tlog := log.WithField("target", target.Host)
		if err := runTarget(ctx, out, resolver, target, act, tlog); err != nil {
			failed = append(failed, target.Host)
			fmt.Fprintln(errOut, targetMessage(target.Host, err))
			tlog.WithError(err).Debug("target failed")
		}
	}
	if len(failed) > 0 {
		return exit.Failure(fmt.Errorf("%d of %d targets failed: %s", len(failed), len(targets), strings.Join(failed, ", ")))
	}
	return nil
}

func runTarget(ctx context.Context, out io.Writer, resolver *credential.Resolver, target config.Target, act *action, tlog *logrus.Entry) error {
	res, err := resolver.Prepare(target.Host, cfg.Username, password)
	if err != nil {
		return err
	}
	tlog.WithField("source", res.Source).Debug("credential resolved")

	sess, err := session.Open(ctx, target, cfg.Username, res.Password, "tsccm/"+version, tlog)
	if err != nil {
		return err
	}
	defer sess.Close(ctx)

	if err := res.Commit(); err != nil {
		tlog.WithError(err).Warn("could not save credentials")
	}

	if act == nil {
		fmt.Fprintln(out, noOptionGiven)
		return nil
	}

	fmt.Fprintln(out, targetHeader(out, target.Host))
	raws, err := sess.Fetch(ctx, act.kind)
	if err != nil {
		return err
	}
	if cfg.Format == render.FormatRaw && act.derive == nil {
		return render.RenderRaw(out, raws)
	}
	table, err := projector.Project(act.kind, raws, rt.Location)
	if err != nil {
		return err
	}
	if act.derive != nil {
		if table, err = act.derive(table); err != nil {
			return err
		}
	}
	format := cfg.Format
	if format == render.FormatRaw {
		format = render.FormatJSON
	}
	return render.Render(out, table, render.Options{
		Format:  format,
		SortBy:  sortBy,
		GroupBy: groupBy,
		NoColor: !colorEnabled(out),
	})
}

func targetHeader(w io.Writer, host string) string {
	if !colorEnabled(w) {
		return host
	}
	return lipgloss.NewRenderer(w).NewStyle().Bold(true).Render(host)
}

// targetMessage is the operator-facing line for a failed target.
func targetMessage(host string, err error) string {
	var (
		ce     *tenablesc.ConnectError
		ae     *tenablesc.AuthError
		apiErr *tenablesc.APIError
	)
	switch {
	case errors.As(err, &ce):
		return fmt.Sprintf("Can't reach Tenable.sc API via %s. Please check your connection.", host)
	case errors.As(err, &ae):
		return fmt.Sprintf("Can't login to Tenable.sc API via %s with supplied credentials. Please make sure they are correct.", host)
	case errors.As(err, &apiErr):
		return fmt.Sprintf("Tenable.sc API via %s returned an error: %v", host, apiErr)
	default:
		return fmt.Sprintf("%s: %v", host, err)
	}
}
