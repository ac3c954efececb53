package handler

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"literature-manager/internal/app"
	"literature-manager/internal/search"
	"literature-manager/internal/transport/http/response"
)

type PaperHandler struct {
	ingest  *app.IngestService
	library *app.LibraryService
}

type SearchResult struct {
	Papers     interface{} `json:"papers"`
	TotalCount int         `json:"totalCount"`
}

func NewPaperHandler(ingest *app.IngestService, library *app.LibraryService) *PaperHandler {
	return &PaperHandler{ingest: ingest, library: library}
}

func (h *PaperHandler) List(c *gin.Context) {
	doc, err := h.library.List()
	if err != nil {
		writeError(c, err, "load papers failed")
		return
	}
	response.OK(c, doc)
}

// formOverhead covers the multipart framing and metadata fields around the
// files of one upload request.
const formOverhead = 1 << 20

func (h *PaperHandler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.ingest.MaxFileSize()+formOverhead)
	fh, err := c.FormFile("pdf")
	if err != nil {
		if bodyTooLarge(err) {
			writeError(c, err, "upload failed")
			return
		}
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing pdf file")
		return
	}

	in := lazyUpload(fh)
	in.Metadata = app.Metadata{
		Title:        c.PostForm("title"),
		Authors:      c.PostForm("authors"),
		Year:         formInt(c, "year"),
		Journal:      c.PostForm("journal"),
		ResearchArea: c.PostForm("researchArea"),
		Methodology:  c.PostForm("methodology"),
		StudyType:    c.PostForm("studyType"),
		Keywords:     c.PostForm("keywords"),
		Citations:    formInt(c, "citations"),
		Abstract:     c.PostForm("abstract"),
		DOI:          c.PostForm("doi"),
	}

	paper, err := h.ingest.Ingest(c.Request.Context(), in)
	if err != nil {
		writeError(c, err, "upload failed")
		return
	}
	response.OK(c, paper)
}

func (h *PaperHandler) BatchUpload(c *gin.Context) {
	limit := h.ingest.MaxFileSize()*int64(h.ingest.MaxBatch()) + formOverhead
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	form, err := c.MultipartForm()
	if err != nil {
		if bodyTooLarge(err) {
			writeError(c, err, "batch upload failed")
			return
		}
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid multipart form")
		return
	}
	files := form.File["pdfs"]
	if len(files) == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "no pdf files uploaded")
		return
	}
	if len(files) > h.ingest.MaxBatch() {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest,
			fmt.Sprintf("at most %d files per batch", h.ingest.MaxBatch()))
		return
	}

	inputs := make([]app.UploadInput, 0, len(files))
	for _, fh := range files {
		inputs = append(inputs, lazyUpload(fh))
	}

	results, err := h.ingest.IngestBatch(c.Request.Context(), inputs)
	if err != nil {
		writeError(c, err, "batch upload failed")
		return
	}
	response.OK(c, gin.H{"results": results})
}

func (h *PaperHandler) Update(c *gin.Context) {
	id, ok := paperID(c)
	if !ok {
		return
	}

	var patch map[string]interface{}
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	paper, err := h.library.Update(c.Request.Context(), id, patch)
	if err != nil {
		writeError(c, err, "update paper failed")
		return
	}
	response.OK(c, paper)
}

func (h *PaperHandler) Delete(c *gin.Context) {
	id, ok := paperID(c)
	if !ok {
		return
	}

	paper, err := h.library.Delete(c.Request.Context(), id)
	if err != nil {
		writeError(c, err, "delete paper failed")
		return
	}
	response.OK(c, paper)
}

func (h *PaperHandler) Search(c *gin.Context) {
	filter := search.Filter{
		Search:   strings.TrimSpace(c.Query("q")),
		Category: strings.TrimSpace(c.Query("category")),
		Author:   strings.TrimSpace(c.Query("author")),
	}
	if raw := strings.TrimSpace(c.Query("year")); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "year must be a number")
			return
		}
		filter.Year = year
	}

	papers, err := h.library.Search(filter)
	if err != nil {
		writeError(c, err, "search failed")
		return
	}
	response.OK(c, SearchResult{Papers: papers, TotalCount: len(papers)})
}

func (h *PaperHandler) Stats(c *gin.Context) {
	stats, err := h.library.Stats(c.Request.Context())
	if err != nil {
		writeError(c, err, "compute stats failed")
		return
	}
	response.OK(c, stats)
}

func (h *PaperHandler) Activity(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	events, err := h.library.ListActivity(limit)
	if err != nil {
		writeError(c, err, "list activity failed")
		return
	}
	response.OK(c, events)
}

// lazyUpload defers reading the part until the service has checked its
// declared size, so a batch holds at most one file in memory.
func lazyUpload(fh *multipart.FileHeader) app.UploadInput {
	return app.UploadInput{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

func bodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

func paperID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid paper id")
		return 0, false
	}
	return id, true
}

// formInt reads an optional integer form field; anything unparsable is 0 and
// falls back to the default.
func formInt(c *gin.Context, key string) int {
	n, err := strconv.Atoi(strings.TrimSpace(c.PostForm(key)))
	if err != nil {
		return 0
	}
	return n
}
