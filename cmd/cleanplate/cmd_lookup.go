package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"cleanplate/internal/establishment/models"
	"cleanplate/internal/establishment/service"
	"cleanplate/internal/search"
	"cleanplate/pkg/requestcontext"
)

func newSearchCmd(c *cli) *cobra.Command {
	var sortBy, borough, grade, cuisine string
	var pages int

	cmd := &cobra.Command{
		Use:   "search <term>",
		Short: "Search restaurants by name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sort, err := search.ParseSort(sortBy)
			if err != nil {
				return err
			}
			b, err := search.ParseBorough(borough)
			if err != nil {
				return err
			}
			g, err := search.ParseGrade(grade)
			if err != nil {
				return err
			}
			cu, err := search.ParseCuisine(cuisine)
			if err != nil {
				return err
			}

			ctrl, err := search.New(c.app.client,
				search.WithPageSize(c.app.cfg.Search.PageSize),
				search.WithDebounce(c.app.cfg.Search.Debounce),
				search.WithLogger(c.app.logger),
				search.WithRecorder(c.app.session),
			)
			if err != nil {
				return err
			}
			defer ctrl.Close()

			// Filters set while idle do not schedule a search.
			ctrl.SetSort(sort)
			ctrl.SetBorough(b)
			ctrl.SetGrade(g)
			ctrl.SetCuisine(cu)

			if err := ctrl.Search(ctx, joinArgs(args)); err != nil {
				return err
			}
			for i := 1; i < pages && ctrl.CanLoadMore(); i++ {
				if err := ctrl.LoadMore(ctx); err != nil {
					return err
				}
			}
			ctrl.Wait()

			snap := ctrl.Snapshot()
			if err := renderEstablishments(cmd.OutOrStdout(), service.ResolveAll(snap.Items, requestcontext.Now(ctx))); err != nil {
				return err
			}
			if snap.CanLoadMore {
				fmt.Fprintf(cmd.OutOrStdout(), "\nMore results available, use --pages %d.\n", snap.Page+1)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sortBy, "sort", "", "relevance, date_desc, grade_asc, name_asc or name_desc")
	cmd.Flags().StringVar(&borough, "borough", "", "borough filter")
	cmd.Flags().StringVar(&grade, "grade", "", "grade filter: A, B, C or P")
	cmd.Flags().StringVar(&cuisine, "cuisine", "", "cuisine filter")
	cmd.Flags().IntVar(&pages, "pages", 1, "number of result pages to fetch")
	return cmd
}

func newShowCmd(c *cli) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "show <camis>",
		Short: "Show an establishment and its inspections",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			lookup := c.app.service.Lookup
			if refresh {
				lookup = c.app.service.Refresh
			}
			d, err := lookup(ctx, args[0], requestcontext.Now(ctx))
			if err != nil {
				return err
			}
			return renderDetail(cmd.OutOrStdout(), d, c.app.favorites.Contains(d.Establishment.CAMIS))
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass the cache")
	return cmd
}

func newRecentCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "recent",
		Short: "List recently graded, closed and re-opened restaurants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			activity, err := c.app.service.RecentActivity(ctx, requestcontext.Now(ctx))
			if err != nil {
				return err
			}
			return renderActivity(cmd.OutOrStdout(), activity)
		},
	}
}

func newReportCmd(c *cli) *cobra.Command {
	var issueType, comments string
	cmd := &cobra.Command{
		Use:   "report <camis>",
		Short: "Report wrong information about an establishment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.service.ReportIssue(cmd.Context(), args[0], issueType, comments); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "Thanks, your report was sent.")
			return err
		},
	}
	cmd.Flags().StringVar(&issueType, "type", "", "issue type, for example \"Wrong grade\"")
	cmd.Flags().StringVar(&comments, "comments", "", "details for the report")
	return cmd
}

func newFavoritesCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "favorites",
		Short: "Manage favorite restaurants",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List favorites",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, ok := c.app.session.SignedIn(); !ok {
				return errNotSignedIn
			}
			return renderEstablishments(cmd.OutOrStdout(), service.ResolveAll(c.app.favorites.List(), requestcontext.Now(cmd.Context())))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <camis>",
		Short: "Add a favorite",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, ok := c.app.session.SignedIn(); !ok {
				return errNotSignedIn
			}
			d, err := c.app.service.Lookup(ctx, args[0], requestcontext.Now(ctx))
			if err != nil {
				return err
			}
			m := c.app.favorites.Add(ctx, d.Establishment)
			if err := m.Wait(ctx); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Added %s to favorites.\n", d.Establishment.Name)
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <camis>",
		Short: "Remove a favorite",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, ok := c.app.session.SignedIn(); !ok {
				return errNotSignedIn
			}
			e := models.Establishment{CAMIS: args[0]}
			for _, f := range c.app.favorites.List() {
				if f.CAMIS == args[0] {
					e = f
					break
				}
			}
			m := c.app.favorites.Remove(ctx, e)
			if err := m.Wait(ctx); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Removed %s from favorites.\n", e.CAMIS)
			return err
		},
	})
	return cmd
}

var errNotSignedIn = errors.New("sign in first with: cleanplate signin <user-id> <identity-token>")
