package jobs

import "strings"

// DefaultMatchScore is used when a user has no skills on file: without a
// profile there is nothing to compare against, so every job is a coin flip.
const DefaultMatchScore = 50.0

// MatchScore estimates fit between a user's skills and a job's
// requirements on a 0-100 scale: the fraction of the user's skills that
// appear (case-insensitive substring) in any requirement, times 100.
func MatchScore(job ScrapedJob, user User) float64 {
	if len(user.Skills) == 0 {
		return DefaultMatchScore
	}

	reqs := make([]string, 0, len(job.Requirements))
	for _, r := range job.Requirements {
		reqs = append(reqs, strings.ToLower(r))
	}

	matched := 0
	for _, skill := range user.Skills {
		s := strings.ToLower(strings.TrimSpace(skill))
		if s == "" {
			continue
		}
		for _, r := range reqs {
			if strings.Contains(r, s) {
				matched++
				break
			}
		}
	}

	score := float64(matched) / float64(len(user.Skills)) * 100
	if score > 100 {
		score = 100
	}
	return score
}
