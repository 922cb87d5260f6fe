package main

import (
	"fmt"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/rushteam/cinerank/core"
)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// itemView 是结果的展示形态。
type itemView struct {
	ID          core.ExternalID `json:"id"`
	Title       string          `json:"title"`
	Year        int             `json:"release_year,omitempty"`
	Score       float64         `json:"score"`
	Similarity  float64         `json:"similarity"`
	VoteAverage float64         `json:"vote_average"`
	Flatrate    []string        `json:"flatrate"`
	Rent        []string        `json:"rent"`
	TrailerURL  string          `json:"trailer_url,omitempty"`
	DeepLinkURL string          `json:"deep_link_url"`
	PosterURL   string          `json:"poster_url,omitempty"`
}

func viewOf(it *core.Item) itemView {
	return itemView{
		ID:          it.ID,
		Title:       it.Title,
		Year:        it.ReleaseYear,
		Score:       it.HybridScore,
		Similarity:  it.Similarity,
		VoteAverage: it.VoteAverage,
		Flatrate:    it.Flatrate.Names(),
		Rent:        it.Rent.Names(),
		TrailerURL:  it.TrailerURL,
		DeepLinkURL: it.DeepLinkURL,
		PosterURL:   it.PosterURL(),
	}
}

func renderItems(items []*core.Item) string {
	rows := make([][]string, 0, len(items))
	for i, it := range items {
		v := viewOf(it)
		year := ""
		if v.Year > 0 {
			year = strconv.Itoa(v.Year)
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			strconv.FormatInt(int64(v.ID), 10),
			v.Title,
			year,
			strconv.FormatFloat(v.Score, 'f', 3, 64),
			strconv.FormatFloat(v.VoteAverage, 'f', 1, 64),
			strings.Join(v.Flatrate, ", "),
			strings.Join(v.Rent, ", "),
			v.TrailerURL,
		})
	}
	return renderTable(
		[]string{"#", "ID", "Title", "Year", "Score", "Rating", "Stream", "Rent", "Trailer"},
		rows,
		[]columnAlignment{alignRight, alignRight, alignLeft, alignRight, alignRight, alignRight},
	)
}

// parseVector 解析逗号分隔的浮点数列表。
func parseVector(raw string) ([]float32, error) {
	raw = strings.Trim(strings.TrimSpace(raw), "[]")
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]float32, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid vector component %q: %w", p, err)
		}
		out = append(out, float32(f))
	}
	return out, nil
}

func parseContentType(raw string) (core.ContentType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "movie", "movies", "":
		return core.ContentMovie, nil
	case "tv", "series", "show", "shows":
		return core.ContentTV, nil
	default:
		return "", fmt.Errorf("unknown content type %q (use movie or tv)", raw)
	}
}

func parseIDs(args []string) ([]core.ExternalID, error) {
	out := make([]core.ExternalID, 0, len(args))
	for _, a := range args {
		n, err := strconv.ParseInt(strings.TrimSpace(a), 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid title id %q", a)
		}
		out = append(out, core.ExternalID(n))
	}
	return out, nil
}
