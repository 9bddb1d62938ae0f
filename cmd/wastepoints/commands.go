package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pscheid92/wastepoints/internal/app"
	"github.com/pscheid92/wastepoints/internal/domain"
	apperrors "github.com/pscheid92/wastepoints/internal/errors"
)

const passwordEnv = "WASTEPOINTS_PASSWORD"

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

func runLogin(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := newFlagSet("login")
	username := fs.String("username", "", "account username")
	password := fs.String("password", "", "account password (or set "+passwordEnv+", or pipe it on stdin)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	pw, err := resolvePassword(*password, os.Stdin)
	if err != nil {
		return err
	}
	if err := resultError(a.Session.Login(ctx, *username, pw)); err != nil {
		return err
	}

	profile, _ := a.Session.Profile()
	fmt.Fprintf(out, "Signed in as %s.\n", profile.Username)
	return nil
}

func runSignup(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := newFlagSet("signup")
	username := fs.String("username", "", "new account username")
	email := fs.String("email", "", "contact email")
	password := fs.String("password", "", "account password (or set "+passwordEnv+", or pipe it on stdin)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	pw, err := resolvePassword(*password, os.Stdin)
	if err != nil {
		return err
	}

	res := a.Session.Signup(ctx, *username, *email, pw)
	if !res.AccountCreated {
		return resultError(res.Result)
	}
	if !res.OK {
		fmt.Fprintf(out, "Account %s created, but signing in failed: %s\nRun `wastepoints login` to continue.\n", *username, describe(res.Failure))
		return nil
	}
	fmt.Fprintf(out, "Account %s created and signed in.\n", *username)
	return nil
}

func runLogout(ctx context.Context, a *app.App, _ []string, out io.Writer) error {
	a.Session.Logout(ctx)
	fmt.Fprintln(out, "Signed out.")
	return nil
}

func runStatus(_ context.Context, a *app.App, _ []string, out io.Writer) error {
	snap := a.Session.Snapshot()
	if !snap.Authenticated() {
		fmt.Fprintln(out, "Not signed in.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "User:\t%s (#%d)\n", snap.Profile.Username, snap.Profile.ID)
	if snap.Profile.Email != "" {
		fmt.Fprintf(tw, "Email:\t%s\n", snap.Profile.Email)
	}
	fmt.Fprintf(tw, "Points:\t%s\n", formatNumber(snap.Profile.TotalPoints))
	if left, ok := a.Session.TokenExpiry(); ok {
		if left > 0 {
			fmt.Fprintf(tw, "Access token:\texpires in %s\n", left.Round(time.Second))
		} else {
			fmt.Fprintln(tw, "Access token:\texpired, will refresh on next request")
		}
	}
	return tw.Flush()
}

func runSubmit(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := newFlagSet("submit")
	wasteType := fs.String("type", "", "waste type: "+wasteTypeList())
	weight := fs.Float64("kg", 0, "weight in kilograms")
	if err := fs.Parse(args); err != nil {
		return err
	}

	parsed, err := domain.ParseWasteType(*wasteType)
	if err != nil {
		fmt.Fprintf(os.Stderr, "-type must be one of: %s\n", wasteTypeList())
		return errUsage
	}

	res := a.Store.Submit(ctx, parsed, *weight)
	if err := resultError(res.Result); err != nil {
		return err
	}

	fmt.Fprintf(out, "Recorded %s kg of %s for %s points.\n",
		formatNumber(res.Submission.WeightKg), res.Submission.Type, formatNumber(res.Submission.Points))
	if profile, ok := a.Session.Profile(); ok {
		fmt.Fprintf(out, "Total: %s points (%s%% of goal).\n", formatNumber(profile.TotalPoints), formatNumber(a.Store.ProgressToGoal()))
	}
	return nil
}

func runSubmissions(ctx context.Context, a *app.App, _ []string, out io.Writer) error {
	if err := resultError(a.Store.LoadSubmissions(ctx)); err != nil {
		return err
	}

	subs := a.Store.Submissions()
	if len(subs) == 0 {
		fmt.Fprintln(out, "No submissions yet.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tTYPE\tKG\tPOINTS")
	for _, s := range subs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.SubmissionDate.Format(time.DateOnly), s.Type, formatNumber(s.WeightKg), formatNumber(s.Points))
	}
	return tw.Flush()
}

func runStats(ctx context.Context, a *app.App, _ []string, out io.Writer) error {
	if err := resultError(a.Store.Refresh(ctx)); err != nil {
		return err
	}

	sum, ok := a.Store.Summary()
	if !ok {
		return resultError(apperrors.Failed(apperrors.AuthorizationFailure(domain.ErrNotAuthenticated.Error())))
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "User:\t%s\n", sum.Profile.Username)
	fmt.Fprintf(tw, "Points:\t%s\n", formatNumber(sum.Profile.TotalPoints))
	fmt.Fprintf(tw, "Recycled:\t%s kg\n", formatNumber(sum.Profile.TotalWeight))
	if sum.Rank != nil {
		fmt.Fprintf(tw, "Rank:\t#%d\n", *sum.Rank)
	} else {
		fmt.Fprintln(tw, "Rank:\tnot ranked")
	}
	if sum.GoalReached {
		fmt.Fprintf(tw, "Goal:\treached (%s points)\n", formatNumber(sum.Goal))
	} else {
		fmt.Fprintf(tw, "Goal:\t%s%%, %s points to go\n", formatNumber(sum.Progress), formatNumber(sum.PointsToGoal))
	}
	return tw.Flush()
}

func runLeaderboard(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := newFlagSet("leaderboard")
	limit := fs.Int("n", 10, "number of rows to show (0 for all)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := resultError(a.Store.RefreshLeaderboard(ctx)); err != nil {
		return err
	}

	entries := a.Store.Leaderboard()
	if *limit > 0 && len(entries) > *limit {
		entries = entries[:*limit]
	}

	var self int64 = -1
	if profile, ok := a.Session.Profile(); ok {
		self = profile.ID
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tNAME\tPOINTS\tKG\t")
	for _, e := range entries {
		marker := ""
		if e.UserID == self {
			marker = "<- you"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", e.Rank, e.Name, formatNumber(e.TotalPoints), formatNumber(e.TotalWeight), marker)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if rank, ok := a.Store.CurrentRank(); ok && *limit > 0 && rank > *limit {
		fmt.Fprintf(out, "You are #%d.\n", rank)
	}
	return nil
}

// resolvePassword prefers the flag, then the environment, then one line of stdin.
func resolvePassword(flagValue string, stdin io.Reader) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if v, ok := os.LookupEnv(passwordEnv); ok {
		return v, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func resultError(res apperrors.Result) error {
	if res.OK {
		return nil
	}
	return errors.New(describe(res.Failure))
}

// describe renders a failure for the terminal, listing every field message.
func describe(f *apperrors.Error) string {
	if f == nil {
		return "command failed"
	}
	switch f.Kind {
	case apperrors.KindNetwork:
		return "cannot reach the rewards service, check your connection"
	case apperrors.KindAuthorization:
		return "not signed in, run `wastepoints login`"
	case apperrors.KindServer:
		return "the rewards service failed, try again later"
	case apperrors.KindValidation:
		if len(f.Fields) == 0 {
			return f.Message
		}
		var b strings.Builder
		for i, name := range f.FieldNames() {
			if i > 0 {
				b.WriteString("; ")
			}
			if name != apperrors.NonFieldKey {
				b.WriteString(name + ": ")
			}
			b.WriteString(strings.Join(f.Fields[name], " "))
		}
		return b.String()
	default:
		return f.Message
	}
}

func wasteTypeList() string {
	names := make([]string, len(domain.WasteTypes))
	for i, w := range domain.WasteTypes {
		names[i] = string(w)
	}
	return strings.Join(names, ", ")
}

func formatNumber(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
