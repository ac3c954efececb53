package repository

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"literature-manager/internal/model"
)

func newTestRepo(t *testing.T) *PaperRepository {
	t.Helper()
	repo := NewPaperRepository(filepath.Join(t.TempDir(), "data", "papers.json"))
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return fixed }
	return repo
}

func readDocument(t *testing.T, path string) model.PapersDocument {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc model.PapersDocument
	require.NoError(t, json.Unmarshal(raw, &doc))
	return doc
}

func TestLoadMissingFileReturnsEmptyDocument(t *testing.T) {
	repo := newTestRepo(t)

	doc, err := repo.Load()
	require.NoError(t, err)
	assert.Empty(t, doc.Papers)
	assert.NotNil(t, doc.Papers)
	assert.Equal(t, 0, doc.TotalCount)
	assert.Equal(t, model.DocumentVersion, doc.Version)
}

func TestAddAssignsSequentialIDs(t *testing.T) {
	repo := newTestRepo(t)

	for want := 1; want <= 3; want++ {
		p, err := repo.Add(model.Paper{Title: "paper"})
		require.NoError(t, err)
		assert.Equal(t, want, p.ID)
		require.NotNil(t, p.UploadTime)
	}

	doc := readDocument(t, repo.Path())
	assert.Len(t, doc.Papers, 3)
	assert.Equal(t, 3, doc.TotalCount)
	assert.Equal(t, "1.0", doc.Version)
}

func TestAddUsesMaxExistingID(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(repo.Path()), 0o755))
	seed := model.NewPapersDocument([]model.Paper{{ID: 7, Title: "a"}, {ID: 3, Title: "b"}}, time.Now())
	raw, err := json.Marshal(seed)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(repo.Path(), raw, 0o644))

	p, err := repo.Add(model.Paper{Title: "c"})
	require.NoError(t, err)
	assert.Equal(t, 8, p.ID)
}

func TestDeletedIDsAreNotReused(t *testing.T) {
	repo := newTestRepo(t)

	for i := 0; i < 3; i++ {
		_, err := repo.Add(model.Paper{Title: "paper"})
		require.NoError(t, err)
	}
	removed, err := repo.Delete(3)
	require.NoError(t, err)
	assert.Equal(t, 3, removed.ID)

	p, err := repo.Add(model.Paper{Title: "after delete"})
	require.NoError(t, err)
	assert.Equal(t, 4, p.ID)

	doc := readDocument(t, repo.Path())
	assert.Equal(t, len(doc.Papers), doc.TotalCount)
	assert.Equal(t, 3, doc.TotalCount)
}

func TestDeleteNotFoundLeavesDocumentUnchanged(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.Add(model.Paper{Title: "keep"})
	require.NoError(t, err)

	before, err := os.ReadFile(repo.Path())
	require.NoError(t, err)

	_, err = repo.Delete(42)
	assert.ErrorIs(t, err, ErrNotFound)

	after, err := os.ReadFile(repo.Path())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestUpdateMergesFields(t *testing.T) {
	repo := newTestRepo(t)
	added, err := repo.Add(model.Paper{Title: "Old", Authors: []string{"A"}, Year: 2020, Journal: "J"})
	require.NoError(t, err)

	updated, err := repo.Update(added.ID, map[string]any{
		"title":    "New",
		"keywords": []string{"x", "y"},
		"id":       99,
		"year":     2021,
	})
	require.NoError(t, err)
	assert.Equal(t, added.ID, updated.ID)
	assert.Equal(t, "New", updated.Title)
	assert.Equal(t, []string{"A"}, updated.Authors)
	assert.Equal(t, "J", updated.Journal)
	assert.Equal(t, 2021, updated.Year)
	assert.Equal(t, []string{"x", "y"}, updated.Keywords)

	stored, err := repo.Get(added.ID)
	require.NoError(t, err)
	assert.Equal(t, "New", stored.Title)

	doc := readDocument(t, repo.Path())
	assert.Equal(t, 1, doc.TotalCount)
}

func TestUpdateErrors(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.Update(1, map[string]any{"title": "x"})
	assert.ErrorIs(t, err, ErrNotFound)

	added, err := repo.Add(model.Paper{Title: "t"})
	require.NoError(t, err)
	_, err = repo.Update(added.ID, map[string]any{"year": "not a number"})
	assert.ErrorIs(t, err, ErrInvalidPatch)
}

func TestApplyPatchConvertsStringValues(t *testing.T) {
	base := model.Paper{ID: 7, Title: "t", Authors: []string{"old"}, Year: 2000}

	patched, err := ApplyPatch(base, map[string]any{
		"id":            "99",
		"authors":       "Vaswani, Shazeer , ",
		"keywords":      "transformers,attention",
		"year":          " 2017",
		"citations":     "120000",
		"fileSize":      "2048",
		"isCloudSynced": "true",
	})
	require.NoError(t, err)
	assert.Equal(t, 7, patched.ID)
	assert.Equal(t, []string{"Vaswani", "Shazeer"}, patched.Authors)
	assert.Equal(t, []string{"transformers", "attention"}, patched.Keywords)
	assert.Equal(t, 2017, patched.Year)
	assert.Equal(t, 120000, patched.Citations)
	assert.Equal(t, int64(2048), patched.FileSize)
	assert.True(t, patched.IsCloudSynced)

	cleared, err := ApplyPatch(base, map[string]any{"authors": ""})
	require.NoError(t, err)
	assert.Empty(t, cleared.Authors)

	native, err := ApplyPatch(base, map[string]any{"authors": []any{"a"}, "year": float64(1999)})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, native.Authors)
	assert.Equal(t, 1999, native.Year)

	_, err = ApplyPatch(base, map[string]any{"citations": "many"})
	assert.ErrorIs(t, err, ErrInvalidPatch)
}

func TestReplaceAllRaisesIDFloor(t *testing.T) {
	repo := newTestRepo(t)

	doc, err := repo.ReplaceAll([]model.Paper{{ID: 10, Title: "x"}, {ID: 4, Title: "y"}})
	require.NoError(t, err)
	assert.Equal(t, 2, doc.TotalCount)

	_, err = repo.ReplaceAll(nil)
	require.NoError(t, err)

	p, err := repo.Add(model.Paper{Title: "z"})
	require.NoError(t, err)
	assert.Equal(t, 11, p.ID)
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.Add(model.Paper{Title: "t"})
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Dir(repo.Path()))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "papers.json", entries[0].Name())
}

func TestLoadRejectsCorruptDocument(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(repo.Path()), 0o755))
	require.NoError(t, os.WriteFile(repo.Path(), []byte("{not json"), 0o644))

	_, err := repo.Load()
	require.Error(t, err)
	_, err = repo.Add(model.Paper{Title: "t"})
	require.Error(t, err)
}
