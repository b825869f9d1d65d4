package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"techtribe-client/internal/apperr"
	"techtribe-client/internal/services"

	"github.com/spf13/cobra"
)

type filterFlags struct {
	minAge, maxAge int
	gender, search string
	skills         []string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.minAge, "min-age", 0, "minimum age")
	cmd.Flags().IntVar(&f.maxAge, "max-age", 0, "maximum age")
	cmd.Flags().StringVar(&f.gender, "gender", "", "gender")
	cmd.Flags().StringSliceVar(&f.skills, "skill", nil, "required skill (repeatable)")
	cmd.Flags().StringVar(&f.search, "search", "", "search names, about and skills")
}

func (f *filterFlags) spec(cmd *cobra.Command) services.FilterSpec {
	spec := services.FilterSpec{Gender: f.gender, Skills: f.skills, SearchTerm: f.search}
	if cmd.Flags().Changed("min-age") {
		spec.MinAge = &f.minAge
	}
	if cmd.Flags().Changed("max-age") {
		spec.MaxAge = &f.maxAge
	}
	return spec
}

func newFeed(ctx context.Context, a *app) (*services.FeedController, error) {
	feed := services.NewFeedController(a.sessions, a.store, a.events, cfg.Feed.SuperlikeBudget)
	if _, err := feed.Refresh(ctx); err != nil {
		feed.Close()
		return nil, err
	}
	return feed, nil
}

func newFeedCommand() *cobra.Command {
	var filters filterFlags

	c := &cobra.Command{
		Use:   "feed",
		Short: "Browse developers you have not decided on yet",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				feed, err := newFeed(ctx, a)
				if err != nil {
					return err
				}
				defer feed.Close()
				feed.SetFilter(filters.spec(cmd))

				view, _ := feed.View()
				out := cmd.OutOrStdout()
				if len(view) == 0 {
					fmt.Fprintln(out, "No new developers to show right now.")
					return nil
				}
				for _, u := range view {
					fmt.Fprintf(out, "%s  %s\n", u.ID, summary(u))
				}
				return nil
			})
		},
	}
	filters.register(c)
	c.AddCommand(newFeedActCommand(), newFeedSwipeCommand())
	return c
}

func newFeedActCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "act <user-id> <like|pass|superlike>",
		Short:     "Decide on one developer",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"like", "pass", "superlike"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				feed, err := newFeed(ctx, a)
				if err != nil {
					return err
				}
				defer feed.Close()

				out, err := feed.Act(ctx, args[0], services.Direction(args[1]))
				if err != nil {
					return err
				}
				if !out.Match {
					fmt.Fprintf(cmd.OutOrStdout(), "Sent %s to %s.\n", args[1], out.Candidate.FullName())
				}
				return nil
			})
		},
	}
}

func newFeedSwipeCommand() *cobra.Command {
	var filters filterFlags

	c := &cobra.Command{
		Use:   "swipe",
		Short: "Swipe through the feed interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				feed, err := newFeed(ctx, a)
				if err != nil {
					return err
				}
				defer feed.Close()
				feed.SetFilter(filters.spec(cmd))
				return swipeLoop(ctx, feed, cmd.InOrStdin(), cmd.OutOrStdout())
			})
		},
	}
	filters.register(c)
	return c
}

// swipeLoop shows one card at a time until the input ends or the user quits
func swipeLoop(ctx context.Context, feed *services.FeedController, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		card, ok := feed.Current()
		if !ok {
			if err := feed.RefillIfExhausted(ctx); err != nil {
				return err
			}
			if card, ok = feed.Current(); !ok {
				fmt.Fprintln(out, "You've seen everyone for now. Check back later!")
				return nil
			}
		}

		fmt.Fprintln(out)
		printUser(out, card)
		fmt.Fprintf(out, "[l]ike  [p]ass  [s]uperlike (%d left)  [q]uit > ", feed.SuperlikesLeft())
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		var dir services.Direction
		switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
		case "l", "like":
			dir = services.Like
		case "p", "pass":
			dir = services.Pass
		case "s", "superlike":
			dir = services.Superlike
		case "q", "quit":
			return nil
		default:
			continue
		}

		if _, err := feed.Act(ctx, card.ID, dir); err != nil {
			// recoverable failures were already reported through the dispatcher
			if errors.Is(err, apperr.ErrAuth) || errors.Is(err, context.Canceled) {
				return err
			}
		}
	}
}
