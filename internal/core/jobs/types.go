package jobs

import "time"

// Platform identifies one external job-site integration.
type Platform string

const (
	PlatformLinkedIn Platform = "linkedin"
	PlatformInfoJobs Platform = "infojobs"
	PlatformCatho    Platform = "catho"
)

// KnownPlatforms lists the integrations shipped with this engine, in the
// order they are constructed by the orchestrator.
func KnownPlatforms() []Platform {
	return []Platform{PlatformLinkedIn, PlatformInfoJobs, PlatformCatho}
}

// ScrapedJob is a single listing extracted from a platform. Immutable once
// returned by a scraper; MatchScore is attached afterwards by the scoring
// step.
type ScrapedJob struct {
	ID             string    `json:"id"`
	Platform       Platform  `json:"platform"`
	Title          string    `json:"title"`
	Company        string    `json:"company"`
	Location       string    `json:"location"`
	Salary         string    `json:"salary,omitempty"`
	Description    string    `json:"description,omitempty"`
	Requirements   []string  `json:"requirements"`
	JobType        string    `json:"job_type,omitempty"`
	WorkModel      string    `json:"work_model,omitempty"`
	PostedDate     time.Time `json:"posted_date"`
	ApplicationURL string    `json:"application_url"`
	MatchScore     *float64  `json:"match_score,omitempty"`
}

// SearchParams are the semantic parameters of one search. They feed both
// the platform scrapers and the cache key derivation.
type SearchParams struct {
	Keywords  []string `json:"keywords"`
	Locations []string `json:"locations"`
	JobTypes  []string `json:"job_types,omitempty"`
	WorkModel string   `json:"work_model,omitempty"`
	Limit     int      `json:"limit,omitempty"`
}

// User is the profile consumed from the persistence layer, read-only here.
type User struct {
	ID         string   `json:"id"`
	Skills     []string `json:"skills"`
	Industries []string `json:"industries"`
	Locations  []string `json:"locations"`
	Experience string   `json:"experience,omitempty"`
}

// Credentials for one platform login, decrypted just before use.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AutoApplyConfig is consumed from the persistence layer. The engine only
// writes back TodayApplicationCount and LastRunDate.
type AutoApplyConfig struct {
	UserID                string                   `json:"user_id"`
	Tier                  string                   `json:"tier"`
	Credentials           map[Platform]Credentials `json:"credentials"`
	Search                SearchParams             `json:"search"`
	MatchThreshold        float64                  `json:"match_threshold"`
	MaxApplicationsPerDay int                      `json:"max_applications_per_day"`
	TodayApplicationCount int                      `json:"today_application_count"`
	LastRunDate           string                   `json:"last_run_date"` // YYYY-MM-DD
	Headless              bool                     `json:"headless"`
}

// ApplicationResult records one apply attempt. Failures are values, not
// errors: the cycle records them and moves on.
type ApplicationResult struct {
	JobID          string    `json:"job_id"`
	Platform       Platform  `json:"platform"`
	Success        bool      `json:"success"`
	ApplicationID  string    `json:"application_id,omitempty"`
	ApplicationURL string    `json:"application_url,omitempty"`
	Error          string    `json:"error,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Application is the record handed to the external applications
// collaborator after a successful apply.
type Application struct {
	UserID                 string   `json:"user_id"`
	JobID                  string   `json:"job_id"`
	Platform               Platform `json:"platform"`
	Status                 string   `json:"status"`
	Source                 string   `json:"source"`
	ExternalApplicationID  string   `json:"external_application_id,omitempty"`
	ExternalApplicationURL string   `json:"external_application_url,omitempty"`
	MatchScore             float64  `json:"match_score"`
}

// ApplicationStatus of a previously submitted application on the platform.
type ApplicationStatus string

const (
	StatusSubmitted   ApplicationStatus = "submitted"
	StatusInReview    ApplicationStatus = "in_review"
	StatusViewed      ApplicationStatus = "viewed"
	StatusRejected    ApplicationStatus = "rejected"
	StatusUnknown     ApplicationStatus = "unknown"
	StatusNotFound    ApplicationStatus = "not_found"
	StatusUnsupported ApplicationStatus = "unsupported"
)
