package model

// Stats summarises the collection for the dashboard.
type Stats struct {
	TotalPapers          int            `json:"totalPapers"`
	TotalDownloads       int            `json:"totalDownloads"`
	TotalCitations       int            `json:"totalCitations"`
	YearDistribution     map[int]int    `json:"yearDistribution"`
	CategoryDistribution map[string]int `json:"categoryDistribution"`
	RecentUploads        []Paper        `json:"recentUploads"`
}
