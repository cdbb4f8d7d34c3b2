package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"password-game/client"
	"password-game/game"
	"password-game/logging"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

var (
	apiURL    string
	username  string
	limit     int
	countdown int
	verbose   bool

	rootCmd = &cobra.Command{
		Use:   "play",
		Short: "Play the password game from a terminal",
	}

	playCmd = &cobra.Command{
		Use:   "run",
		Short: "Start a run; type a password and press enter to check it",
		RunE:  runPlay,
	}

	leaderboardCmd = &cobra.Command{
		Use:     "leaderboard",
		Short:   "Show each player's best run",
		Aliases: []string{"lb"},
		RunE:    runLeaderboard,
	}

	historyCmd = &cobra.Command{
		Use:   "history [username]",
		Short: "Show a player's runs, newest first",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistory,
	}

	deleteCmd = &cobra.Command{
		Use:   "delete [run id]",
		Short: "Delete one of your runs (needs --user)",
		Args:  cobra.ExactArgs(1),
		RunE:  runDelete,
	}

	judgeCmd = &cobra.Command{
		Use:   "judge-test",
		Short: "Check that the server can reach its rule judge",
		RunE:  runJudgeTest,
	}
)

func init() {
	defaultURL := os.Getenv("PASSWORD_GAME_API")
	if defaultURL == "" {
		defaultURL = "http://localhost:5200"
	}
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", defaultURL, "API base URL")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log client events")

	playCmd.Flags().StringVarP(&username, "user", "u", "", "sign in so the run is saved")
	playCmd.Flags().IntVar(&countdown, "countdown", game.DefaultCountdown, "seconds per level")
	deleteCmd.Flags().StringVarP(&username, "user", "u", "", "owner of the run")
	_ = deleteCmd.MarkFlagRequired("user")
	leaderboardCmd.Flags().IntVarP(&limit, "limit", "n", 20, "rows to show")
	historyCmd.Flags().IntVarP(&limit, "limit", "n", 20, "rows to show")

	rootCmd.AddCommand(playCmd, leaderboardCmd, historyCmd, deleteCmd, judgeCmd)
}

func newLogger() *slog.Logger {
	if !verbose {
		return logging.Discard()
	}
	logger, err := logging.New(logging.Options{Level: "debug"})
	if err != nil {
		return logging.Discard()
	}
	return logger
}

func newClient(ctx context.Context, signIn bool) (*client.Client, error) {
	api := client.New(apiURL, newLogger())
	if !signIn {
		return api, nil
	}
	if username == "" {
		return nil, errors.New("--user is required")
	}
	acc, err := api.Login(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	fmt.Printf("signed in as %s (best level %d, %d runs)\n", acc.Username, acc.HighestLevel, acc.TimesPlayed)
	return api, nil
}

func runPlay(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api, err := newClient(ctx, username != "")
	if err != nil {
		return err
	}

	opts := []game.Option{game.WithCountdown(countdown), game.WithLogger(newLogger())}
	if api.SignedIn() {
		opts = append(opts, game.WithSaver(api))
	}
	ctrl := game.NewController(api, opts...)

	fmt.Println("asking the judge for the first rule...")
	if err := ctrl.Start(ctx); err != nil {
		return err
	}
	render(os.Stdout, ctrl.Snapshot())

	go readPasswords(ctx, os.Stdin, ctrl)

	summary, err := ctrl.Run(ctx, time.Second)
	if err != nil {
		ctrl.Quit()
		if errors.Is(err, context.Canceled) {
			fmt.Println("\nquit, nothing saved")
			return nil
		}
		return err
	}

	fmt.Printf("\ntime is up: level %d, %ds total, %.2fs per level\n", summary.Level, summary.TotalTime, summary.AvgTime)
	if summary.LastPassword != "" {
		fmt.Printf("last password: %s\n", summary.LastPassword)
	}
	ctrl.Wait()
	return nil
}

func readPasswords(ctx context.Context, in io.Reader, ctrl *game.Controller) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		password := scanner.Text()
		ctrl.SetDraft(password)
		snap, err := ctrl.SubmitCheck(ctx, password)
		switch {
		case errors.Is(err, game.ErrCheckInFlight):
			fmt.Println("still checking the previous password")
		case errors.Is(err, game.ErrNotActive), errors.Is(err, game.ErrStale):
			return
		case err != nil:
			fmt.Printf("check failed: %v\n", err)
		default:
			render(os.Stdout, snap)
		}
	}
}

func render(w io.Writer, s game.Snapshot) {
	fmt.Fprintf(w, "\n[%s] level %d, %ds left\n", strings.ToUpper(string(s.Status)), s.Level, s.Remaining)
	for i, raw := range s.Rules {
		fmt.Fprintf(w, "  %2d. %s\n", i+1, ruleText(raw))
	}
	for _, r := range s.Results {
		mark := "x"
		if r.Pass {
			mark = "ok"
		}
		fmt.Fprintf(w, "  [%s] %s %s\n", mark, r.Rule, r.Reason)
	}
	fmt.Fprint(w, "> ")
}

// ruleText shows the "rule" field of a rule object, or the raw JSON.
func ruleText(raw json.RawMessage) string {
	var rule struct {
		Rule string `json:"rule"`
	}
	if json.Unmarshal(raw, &rule) == nil && rule.Rule != "" {
		return rule.Rule
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}

func runLeaderboard(cmd *cobra.Command, _ []string) error {
	api, _ := newClient(cmd.Context(), false)
	board, err := api.Leaderboard(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if len(board) == 0 {
		fmt.Println("no runs yet")
		return nil
	}
	for i, e := range board {
		fmt.Printf("%3d. %-24s level %-3d avg %6.2fs  total %6.0fs\n", i+1, e.Username, e.Level, e.AvgTime, e.TotalTime)
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	api, _ := newClient(cmd.Context(), false)
	runs, err := api.History(cmd.Context(), args[0], limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs for", args[0])
		return nil
	}
	for _, r := range runs {
		fmt.Printf("%s  %s  level %-3d avg %6.2fs  %s\n", r.ID, r.PlayedAt.Local().Format(time.DateTime), r.Level, r.AvgTime, r.LastPassword)
	}
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	api, err := newClient(cmd.Context(), true)
	if err != nil {
		return err
	}
	if err := api.DeleteRun(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Println("deleted", args[0])
	return nil
}

func runJudgeTest(cmd *cobra.Command, _ []string) error {
	api, _ := newClient(cmd.Context(), false)
	res, err := api.RuleTest(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("judge %s replied %q\n", res.Model, res.Reply)
	return nil
}
