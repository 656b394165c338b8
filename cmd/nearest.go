package cmd

import (
	"fmt"
	"io"
	"time"

	"hdql/internal/format"
	"hdql/internal/result"
	"hdql/internal/store"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var flagNearestFormat string

var nearestCmd = &cobra.Command{
	Use:     "nearest <type> <name>",
	Short:   "List the stored entities closest to one entity",
	Example: `  hdql nearest command deps-add -k 5`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := format.Parse(flagNearestFormat)
		if err != nil {
			return err
		}
		st, err := openExisting()
		if err != nil {
			return err
		}
		defer st.Close()

		res, err := nearest(st, args[0], args[1], topK(cmd, flagTopK))
		if err != nil {
			return err
		}
		return writeOutput(cmd, func(w io.Writer) error { return format.Write(w, res, f) })
	},
}

// nearest runs a KNN search seeded with the vector of entityType:name.
// The seed itself is left out of the k results.
func nearest(st *store.SQLiteStore, entityType, name string, k int) (*result.VectorQueryResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	start := time.Now()
	vec, err := st.Vector(entityType, name)
	if err != nil {
		return nil, err
	}
	hits, err := st.Search(vec, k+1)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	seed := store.Key(entityType, name)
	res := &result.VectorQueryResult{
		QueryID: uuid.NewString(),
		Query:   fmt.Sprintf("nearest(%s, k=%d)", seed, k),
	}
	for _, h := range hits {
		if h.Entity.Key() == seed || len(res.Matches) == k {
			continue
		}
		e := h.Entity
		res.Matches = append(res.Matches, result.Match{
			Entity:      &e,
			Score:       1 - h.Distance,
			Distance:    h.Distance,
			Explanation: fmt.Sprintf("cosine distance %.4f from %s", h.Distance, seed),
		})
	}
	res.ExecutionTimeMS = float64(time.Since(start).Microseconds()) / 1000
	return res, nil
}

func init() {
	nearestCmd.Flags().IntVarP(&flagTopK, "top-k", "k", 0, "number of neighbours (default from config)")
	nearestCmd.Flags().StringVarP(&flagNearestFormat, "format", "f", "table", "output format: table, json, yaml or markdown")
	nearestCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "write the result to a file")
	rootCmd.AddCommand(nearestCmd)
}
