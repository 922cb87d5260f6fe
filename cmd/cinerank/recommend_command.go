package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rushteam/cinerank/core"
	"github.com/rushteam/cinerank/engine"
	"github.com/rushteam/cinerank/exclusion"
)

type recommendOptions struct {
	user       string
	traktUser  string
	kind       string
	services   []string
	limit      int
	seed       uint64
	vector     string
	vectorFile string
	save       bool
	asJSON     bool
}

func newRecommendCommand(ctx *commandContext) *cobra.Command {
	opts := &recommendOptions{}
	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Recommend titles available on your streaming services",
		Example: `  cinerank recommend --user alice --type movie --services Netflix,Max --vector-file query.json
  cinerank recommend --user alice --trakt-user alice --type tv --vector 0.12,0.08,... --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecommend(cmd, ctx, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.user, "user", "u", "", "User id used for blocked titles and saved lists")
	cmd.Flags().StringVar(&opts.traktUser, "trakt-user", "", "Trakt username whose watch history is excluded")
	cmd.Flags().StringVarP(&opts.kind, "type", "t", "movie", "Content type: movie or tv")
	cmd.Flags().StringSliceVarP(&opts.services, "services", "s", nil, "Subscribed services (empty means any)")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Number of titles to return (default from config)")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 0, "Fixed tie-break seed for reproducible ordering")
	cmd.Flags().StringVar(&opts.vector, "vector", "", "Query embedding as comma separated floats")
	cmd.Flags().StringVar(&opts.vectorFile, "vector-file", "", "Path to a JSON array holding the query embedding")
	cmd.Flags().BoolVar(&opts.save, "save", false, "Save the result as the user's curated list")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Output JSON")
	return cmd
}

func runRecommend(cmd *cobra.Command, ctx *commandContext, opts *recommendOptions) error {
	ct, err := parseContentType(opts.kind)
	if err != nil {
		return err
	}
	vec, err := loadVector(opts)
	if err != nil {
		return err
	}

	c := cmd.Context()
	eng, mgr, err := ctx.engine(c)
	if err != nil {
		return err
	}

	rctx := core.NewRequestContext(opts.user, ct)
	rctx.Services = core.NewServiceFilter(opts.services...)
	rctx.Limit = opts.limit
	rctx.Seed = opts.seed

	req := engine.Request{Vector: vec}
	if opts.traktUser != "" {
		b, err := ctx.tasteBuilder()
		if err != nil {
			return err
		}
		profile, err := b.Build(c, opts.traktUser, ct)
		if err != nil {
			return fmt.Errorf("sync watch history: %w", err)
		}
		rctx.Profile = profile
	}
	req.Session = requestSession(mgr, opts.user, rctx.Profile)

	res, err := eng.Recommend(c, rctx, req)
	switch {
	case core.IsNotFound(err):
		return fmt.Errorf("%w: try fewer services or a broader query", err)
	case core.IsUnavailable(err):
		return fmt.Errorf("%w: please retry later", err)
	case err != nil:
		return err
	}

	if opts.save {
		if err := saveCuratedList(cmd, ctx, opts, res); err != nil {
			return err
		}
	}

	if opts.asJSON {
		views := make([]itemView, 0, len(res.Items))
		for _, it := range res.Items {
			views = append(views, viewOf(it))
		}
		return writeJSON(cmd, map[string]any{
			"request_id": res.RequestID,
			"requested":  res.Requested,
			"pool_size":  res.PoolSize,
			"shortfall":  res.Shortfall(),
			"items":      views,
		})
	}

	out := cmd.OutOrStdout()
	if len(res.Items) == 0 {
		fmt.Fprintln(out, "No titles matched your services. Try removing a service filter.")
		return nil
	}
	fmt.Fprintln(out, renderItems(res.Items))
	if n := res.Shortfall(); n > 0 {
		fmt.Fprintf(out, "Only %d of %d requested titles are available.\n", len(res.Items), res.Requested)
	}
	return nil
}

func loadVector(opts *recommendOptions) ([]float32, error) {
	if opts.vectorFile != "" {
		data, err := os.ReadFile(opts.vectorFile)
		if err != nil {
			return nil, fmt.Errorf("read vector file: %w", err)
		}
		var vec []float32
		if err := json.Unmarshal(data, &vec); err != nil {
			return nil, fmt.Errorf("parse vector file: %w", err)
		}
		return vec, nil
	}
	vec, err := parseVector(opts.vector)
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("a query embedding is required (--vector or --vector-file)")
	}
	return vec, nil
}

func saveCuratedList(cmd *cobra.Command, ctx *commandContext, opts *recommendOptions, res *engine.Result) error {
	if opts.user == "" {
		return fmt.Errorf("--save requires --user")
	}
	p, err := ctx.persistence(cmd.Context())
	if err != nil {
		return err
	}
	items := make([]core.Candidate, 0, len(res.Items))
	for _, it := range res.Items {
		items = append(items, it.Candidate)
	}
	list := &core.CuratedList{
		UserID: opts.user,
		Items:  items,
		Preferences: map[string]any{
			"type":     opts.kind,
			"services": strings.Join(opts.services, ","),
		},
		UpdatedAt: time.Now().UTC(),
	}
	if err := p.UpsertCuratedList(cmd.Context(), list); err != nil {
		return fmt.Errorf("save curated list: %w", err)
	}
	ctx.log().Info("curated list saved", zap.String("user_id", opts.user), zap.Int("items", len(items)))
	return nil
}

// requestSession 为有用户的请求建立会话，并把最近同步的已看列表并入会话排除集合。
func requestSession(mgr *exclusion.Manager, userID string, profile *core.TasteProfile) *exclusion.Session {
	if userID == "" {
		return nil
	}
	s := mgr.NewSession(userID)
	if profile != nil {
		s.SetWatched(profile.Watched)
	}
	return s
}
