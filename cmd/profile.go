package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"techtribe-client/internal/media"
	"techtribe-client/internal/models"
	"techtribe-client/internal/services"

	"github.com/spf13/cobra"
)

func newProfileCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "profile",
		Short: "Show your profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				u, err := services.NewProfileService(a.sessions, a.store).FetchProfile(ctx)
				if err != nil {
					return err
				}
				printUser(cmd.OutOrStdout(), *u)
				return nil
			})
		},
	}
	c.AddCommand(newProfileEditCommand(), newProfilePhotoCommand())
	return c
}

func newProfileEditCommand() *cobra.Command {
	var (
		firstName, lastName, gender, about string
		age                                int
		skills, interests                  []string
	)

	c := &cobra.Command{
		Use:   "edit",
		Short: "Edit profile fields",
		RunE: func(cmd *cobra.Command, args []string) error {
			var upd models.ProfileUpdate
			flags := cmd.Flags()
			if flags.Changed("first-name") {
				upd.FirstName = &firstName
			}
			if flags.Changed("last-name") {
				upd.LastName = &lastName
			}
			if flags.Changed("age") {
				upd.Age = &age
			}
			if flags.Changed("gender") {
				upd.Gender = &gender
			}
			if flags.Changed("about") {
				upd.About = &about
			}
			if flags.Changed("skills") {
				upd.Skills = skills
			}
			if flags.Changed("interests") {
				upd.Interests = interests
			}

			return withApp(cmd, func(ctx context.Context, a *app) error {
				u, err := services.NewProfileService(a.sessions, a.store).EditProfile(ctx, upd)
				if err != nil {
					return err
				}
				printUser(cmd.OutOrStdout(), *u)
				return nil
			})
		},
	}

	c.Flags().StringVar(&firstName, "first-name", "", "first name")
	c.Flags().StringVar(&lastName, "last-name", "", "last name")
	c.Flags().IntVar(&age, "age", 0, "age")
	c.Flags().StringVar(&gender, "gender", "", "gender")
	c.Flags().StringVar(&about, "about", "", "about you")
	c.Flags().StringSliceVar(&skills, "skills", nil, "comma-separated skills")
	c.Flags().StringSliceVar(&interests, "interests", nil, "comma-separated interests")
	return c
}

func newProfilePhotoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "photo <file>",
		Short: "Upload a profile photo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				profiles := services.NewProfileService(a.sessions, a.store)
				self, err := profiles.FetchProfile(ctx)
				if err != nil {
					return err
				}
				uploader, err := media.NewPhotoUploader(ctx, cfg.Media, profiles)
				if err != nil {
					return err
				}
				u, err := uploader.UploadFile(ctx, self.ID, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Photo updated: %s\n", u.ProfilePhotoURL)
				return nil
			})
		},
	}
}

func newConnectionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "connections",
		Short: "List your matches",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				conns, err := services.NewConnectionService(a.sessions, a.store).Fetch(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(conns) == 0 {
					fmt.Fprintln(out, "No connections yet. Keep swiping!")
					return nil
				}
				for _, u := range conns {
					fmt.Fprintf(out, "%s  %s\n", u.ID, summary(u))
				}
				return nil
			})
		},
	}
}

func newRequestsCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "requests",
		Short: "List incoming connection requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				// no dispatcher: the listing below already shows every request
				reqs, err := services.NewRequestService(a.sessions, a.store, nil).Fetch(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(reqs) == 0 {
					fmt.Fprintln(out, "No pending requests.")
					return nil
				}
				for _, r := range reqs {
					fmt.Fprintf(out, "%s  [%s] %s\n", r.ID, r.Status, summary(r.FromUser))
				}
				return nil
			})
		},
	}
	c.AddCommand(
		newReviewCommand("accept", "Accept a connection request", models.RequestAccepted),
		newReviewCommand("reject", "Reject a connection request", models.RequestRejected),
	)
	return c
}

func newReviewCommand(use, short string, status models.RequestStatus) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <request-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				svc := services.NewRequestService(a.sessions, a.store, a.events)
				// load the request so an accept can name the new match
				if _, err := svc.Fetch(ctx); err != nil {
					return err
				}
				return svc.Review(ctx, args[0], status)
			})
		},
	}
}

func summary(u models.User) string {
	parts := []string{u.FullName()}
	if u.Age > 0 {
		parts = append(parts, fmt.Sprintf("%d", u.Age))
	}
	if u.Gender != "" {
		parts = append(parts, u.Gender)
	}
	if len(u.Skills) > 0 {
		parts = append(parts, strings.Join(u.Skills, "/"))
	}
	return strings.Join(parts, ", ")
}

func printUser(out io.Writer, u models.User) {
	fmt.Fprintf(out, "%s (%s)\n", u.FullName(), u.ID)
	if u.Age > 0 {
		fmt.Fprintf(out, "  age:       %d\n", u.Age)
	}
	if u.Gender != "" {
		fmt.Fprintf(out, "  gender:    %s\n", u.Gender)
	}
	if u.About != "" {
		fmt.Fprintf(out, "  about:     %s\n", u.About)
	}
	if len(u.Skills) > 0 {
		fmt.Fprintf(out, "  skills:    %s\n", strings.Join(u.Skills, ", "))
	}
	if len(u.Interests) > 0 {
		fmt.Fprintf(out, "  interests: %s\n", strings.Join(u.Interests, ", "))
	}
	if u.ProfilePhotoURL != "" {
		fmt.Fprintf(out, "  photo:     %s\n", u.ProfilePhotoURL)
	}
	var verified []string
	for k, ok := range u.Verifications {
		if ok {
			verified = append(verified, k)
		}
	}
	if len(verified) > 0 {
		sort.Strings(verified)
		fmt.Fprintf(out, "  verified:  %s\n", strings.Join(verified, ", "))
	}
}
