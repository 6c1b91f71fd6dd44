package jobs

import (
	"encoding/json"
	"fmt"
	"os"
)

type Jobs struct {
	Items []*Job
}

func (j *Jobs) Len() int {
	return len(j.Items)
}

func (j *Jobs) IDs() []string {
	ids := make([]string, 0, len(j.Items))
	for _, job := range j.Items {
		ids = append(ids, job.ID)
	}
	return ids
}

func (j *Jobs) FindByID(id string) *Job {
	for _, job := range j.Items {
		if job.ID == id {
			return job
		}
	}
	return nil
}

// ReportBySource groups a short description of every job by its source tag.
func (j *Jobs) ReportBySource() map[string][]map[string]string {
	report := make(map[string][]map[string]string)
	for _, job := range j.Items {
		entry := map[string]string{
			"title":  job.Title,
			"url":    job.URL,
			"budget": job.Budget,
			"score":  fmt.Sprintf("%d", job.Score),
		}
		if job.ProposalSource != "" {
			entry["proposal_source"] = job.ProposalSource
		}
		report[job.Source] = append(report[job.Source], entry)
	}
	return report
}

func (j *Jobs) DumpToTmpFile() (string, error) {
	file, err := os.CreateTemp("", "jobs_*.json")
	if err != nil {
		return "", err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(j); err != nil {
		return "", err
	}
	return file.Name(), nil
}

// Exclude removes every job for which drop returns true and returns the removed ids.
// The order of the remaining jobs is preserved.
func (j *Jobs) Exclude(drop func(*Job) bool) []string {
	var excluded []string
	kept := j.Items[:0]
	for _, job := range j.Items {
		if drop(job) {
			excluded = append(excluded, job.ID)
			continue
		}
		kept = append(kept, job)
	}
	for i := len(kept); i < len(j.Items); i++ {
		j.Items[i] = nil
	}
	j.Items = kept
	return excluded
}
