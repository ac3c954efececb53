package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"literature-manager/internal/metrics"
	"literature-manager/internal/model"
)

var (
	ErrNotFound     = errors.New("paper not found")
	ErrInvalidPatch = errors.New("invalid paper patch")
)

// PaperRepository keeps the papers collection in a single JSON document that
// is rewritten in full on every mutation.
type PaperRepository struct {
	path string
	now  func() time.Time

	mu     sync.Mutex
	lastID int
}

func NewPaperRepository(path string) *PaperRepository {
	return &PaperRepository{path: path, now: time.Now}
}

func (r *PaperRepository) Path() string {
	return r.path
}

// Load returns the stored document, or an empty one when the file does not
// exist yet.
func (r *PaperRepository) Load() (*model.PapersDocument, error) {
	raw, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return model.NewPapersDocument(nil, r.now().UTC()), nil
		}
		return nil, fmt.Errorf("read papers document failed: %w", err)
	}

	var doc model.PapersDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode papers document failed: %w", err)
	}
	if doc.Papers == nil {
		doc.Papers = []model.Paper{}
	}
	if doc.Version == "" {
		doc.Version = model.DocumentVersion
	}
	return &doc, nil
}

func (r *PaperRepository) Get(id int) (*model.Paper, error) {
	doc, err := r.Load()
	if err != nil {
		return nil, err
	}
	idx := doc.IndexOf(id)
	if idx < 0 {
		return nil, ErrNotFound
	}
	paper := doc.Papers[idx]
	return &paper, nil
}

// Add assigns the next id and appends paper. Ids are never handed out twice by
// one repository, even after the highest id has been deleted.
func (r *PaperRepository) Add(paper model.Paper) (*model.Paper, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.Load()
	if err != nil {
		return nil, err
	}

	next := doc.MaxID()
	if r.lastID > next {
		next = r.lastID
	}
	next++

	now := r.now().UTC()
	paper.ID = next
	if paper.UploadTime == nil {
		paper.UploadTime = &now
	}
	doc.Papers = append(doc.Papers, paper)
	doc.Touch(now)

	if err := r.save(doc); err != nil {
		return nil, err
	}
	r.lastID = next
	return &paper, nil
}

// Update overlays the top-level fields of patch onto the stored paper. The id
// field is ignored.
func (r *PaperRepository) Update(id int, patch map[string]any) (*model.Paper, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.Load()
	if err != nil {
		return nil, err
	}
	idx := doc.IndexOf(id)
	if idx < 0 {
		return nil, ErrNotFound
	}

	updated, err := ApplyPatch(doc.Papers[idx], patch)
	if err != nil {
		return nil, err
	}
	doc.Papers[idx] = updated
	doc.Touch(r.now().UTC())

	if err := r.save(doc); err != nil {
		return nil, err
	}
	return &updated, nil
}

// Delete removes the paper and returns it. An unknown id leaves the document
// untouched.
func (r *PaperRepository) Delete(id int) (*model.Paper, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.Load()
	if err != nil {
		return nil, err
	}
	idx := doc.IndexOf(id)
	if idx < 0 {
		return nil, ErrNotFound
	}

	removed := doc.Papers[idx]
	doc.Papers = append(doc.Papers[:idx], doc.Papers[idx+1:]...)
	doc.Touch(r.now().UTC())

	if err := r.save(doc); err != nil {
		return nil, err
	}
	if removed.ID > r.lastID {
		r.lastID = removed.ID
	}
	return &removed, nil
}

// ReplaceAll overwrites the collection, used when pulling a shared snapshot.
func (r *PaperRepository) ReplaceAll(papers []model.Paper) (*model.PapersDocument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc := model.NewPapersDocument(append([]model.Paper(nil), papers...), r.now().UTC())
	if err := r.save(doc); err != nil {
		return nil, err
	}
	if maxID := doc.MaxID(); maxID > r.lastID {
		r.lastID = maxID
	}
	return doc, nil
}

// save writes doc to a temp file in the same directory and renames it over
// the target so readers never observe a half-written document.
func (r *PaperRepository) save(doc *model.PapersDocument) error {
	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir failed: %w", err)
	}

	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode papers document failed: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".papers-*.json")
	if err != nil {
		return fmt.Errorf("create temp file failed: %w", err)
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write papers document failed: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync papers document failed: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file failed: %w", err)
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		return fmt.Errorf("replace papers document failed: %w", err)
	}

	success = true
	metrics.PapersTotal.Set(float64(len(doc.Papers)))
	return nil
}

// ApplyPatch merges patch into paper through their JSON representations, so
// patch keys use the document's field names. String values are accepted for
// list, number and boolean fields; see coerceField.
func ApplyPatch(paper model.Paper, patch map[string]any) (model.Paper, error) {
	base, err := json.Marshal(paper)
	if err != nil {
		return paper, fmt.Errorf("encode paper failed: %w", err)
	}
	fields := map[string]any{}
	if err := json.Unmarshal(base, &fields); err != nil {
		return paper, fmt.Errorf("decode paper fields failed: %w", err)
	}
	for k, v := range patch {
		if k == "id" {
			continue
		}
		fields[k] = coerceField(k, v)
	}

	merged, err := json.Marshal(fields)
	if err != nil {
		return paper, fmt.Errorf("encode patched paper failed: %w", err)
	}
	var out model.Paper
	if err := json.Unmarshal(merged, &out); err != nil {
		return paper, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	out.ID = paper.ID
	return out, nil
}

var (
	listFields   = map[string]bool{"authors": true, "keywords": true}
	numberFields = map[string]bool{"year": true, "citations": true, "downloads": true, "fileSize": true, "pageCount": true}
)

// coerceField converts the string forms that HTML forms and the command line
// produce into the field's JSON type: comma-separated lists, decimal integers
// and booleans. A value that does not convert is left for the decoder to
// reject.
func coerceField(key string, v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	s = strings.TrimSpace(s)
	switch {
	case listFields[key]:
		out := []string{}
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	case numberFields[key]:
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	case key == "isCloudSynced":
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
	}
	return v
}
