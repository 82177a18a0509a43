package pipeline

import (
	"sort"

	"rotationsync/internal/config"
	"rotationsync/internal/warehouse"
)

const (
	JobCurrent    = "cr_24"
	JobHistorical = "cr_hist"
)

// Job is a named sync: which token to fetch with, where to load and how.
// Token holds the configured value and may still need resolving.
type Job struct {
	Name        string
	TableID     string
	Token       string
	Disposition warehouse.Disposition
}

// JobsFrom defines the current-day job (overwrite) and the historical job
// (append) from cfg.
func JobsFrom(cfg config.Config) map[string]Job {
	return map[string]Job{
		JobCurrent: {
			Name:        JobCurrent,
			TableID:     cfg.Jobs.CurrentTable,
			Token:       cfg.Jobs.CurrentToken,
			Disposition: warehouse.WriteTruncate,
		},
		JobHistorical: {
			Name:        JobHistorical,
			TableID:     cfg.Jobs.HistTable,
			Token:       cfg.Jobs.HistToken,
			Disposition: warehouse.WriteAppend,
		},
	}
}

// JobNames lists the keys of jobs in sorted order.
func JobNames(jobs map[string]Job) []string {
	names := make([]string, 0, len(jobs))
	for n := range jobs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
