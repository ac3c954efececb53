package model

import "time"

const DocumentVersion = "1.0"

// Paper is the metadata record for one uploaded PDF.
type Paper struct {
	ID            int        `json:"id"`
	Title         string     `json:"title"`
	Authors       []string   `json:"authors"`
	Year          int        `json:"year"`
	Journal       string     `json:"journal"`
	ResearchArea  string     `json:"researchArea"`
	Methodology   string     `json:"methodology"`
	StudyType     string     `json:"studyType"`
	Keywords      []string   `json:"keywords"`
	Citations     int        `json:"citations"`
	Downloads     int        `json:"downloads"`
	Abstract      string     `json:"abstract"`
	DOI           string     `json:"doi"`
	PDFURL        string     `json:"pdfUrl,omitempty"`
	PDFPath       string     `json:"pdfPath,omitempty"`
	Thumbnail     string     `json:"thumbnail,omitempty"`
	ThumbnailURL  string     `json:"thumbnailUrl,omitempty"`
	ThumbnailPath string     `json:"thumbnailPath,omitempty"`
	FileSize      int64      `json:"fileSize"`
	PageCount     int        `json:"pageCount,omitempty"`
	UploadTime    *time.Time `json:"uploadTime,omitempty"`
	IsCloudSynced bool       `json:"isCloudSynced"`
	SyncTime      *time.Time `json:"syncTime,omitempty"`
}

// PapersDocument is the on-disk and in-repository shape of the collection.
type PapersDocument struct {
	Papers     []Paper   `json:"papers"`
	LastUpdate time.Time `json:"lastUpdate"`
	TotalCount int       `json:"totalCount"`
	Version    string    `json:"version"`
}

// NewPapersDocument wraps papers and stamps the derived fields.
func NewPapersDocument(papers []Paper, now time.Time) *PapersDocument {
	if papers == nil {
		papers = []Paper{}
	}
	return &PapersDocument{
		Papers:     papers,
		LastUpdate: now,
		TotalCount: len(papers),
		Version:    DocumentVersion,
	}
}

// Touch recomputes totalCount and lastUpdate after a mutation.
func (d *PapersDocument) Touch(now time.Time) {
	if d.Papers == nil {
		d.Papers = []Paper{}
	}
	d.TotalCount = len(d.Papers)
	d.LastUpdate = now
	if d.Version == "" {
		d.Version = DocumentVersion
	}
}

// IndexOf returns the position of the paper with id, or -1.
func (d *PapersDocument) IndexOf(id int) int {
	for i := range d.Papers {
		if d.Papers[i].ID == id {
			return i
		}
	}
	return -1
}

// MaxID returns the largest id in the collection, 0 when empty.
func (d *PapersDocument) MaxID() int {
	maxID := 0
	for _, p := range d.Papers {
		if p.ID > maxID {
			maxID = p.ID
		}
	}
	return maxID
}
