package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/shapedtime/classfs/internal/mount"
)

const sourceContentType = "text/x-java-source; charset=utf-8"

// ArchiveListResponse contains the mounted archives
type ArchiveListResponse struct {
	Archives []mount.Archive `json:"archives"`
}

// EntryResponse describes one tree entry
type EntryResponse struct {
	Name          string `json:"name"`
	Path          string `json:"path"`
	QualifiedName string `json:"qualified_name,omitempty"`
	IsDir         bool   `json:"is_dir"`
}

// ListResponse contains the children of a directory
type ListResponse struct {
	Path    string          `json:"path"`
	Entries []EntryResponse `json:"entries"`
}

// listArchives returns the mounted archives
// GET /api/archives
func (s *Server) listArchives(c *gin.Context) {
	c.JSON(http.StatusOK, ArchiveListResponse{Archives: s.fs.Table().Archives()})
}

// list returns the children of a directory
// GET /api/list?path=/app/com/foo
func (s *Server) list(c *gin.Context) {
	p := mount.Clean(c.Query("path"))
	ctx := c.Request.Context()

	n, err := s.fs.Resolve(ctx, p)
	if err != nil {
		fail(c, err)
		return
	}

	response := ListResponse{Path: p, Entries: []EntryResponse{}}

	if n == nil {
		for _, name := range s.fs.Table().Names() {
			response.Entries = append(response.Entries, EntryResponse{
				Name:  name,
				Path:  "/" + name,
				IsDir: true,
			})
		}
		c.JSON(http.StatusOK, response)
		return
	}

	children, err := s.fs.FileSystem().List(ctx, n)
	if err != nil {
		fail(c, err)
		return
	}
	for _, child := range children {
		response.Entries = append(response.Entries, EntryResponse{
			Name:          child.Name(),
			Path:          childMountPath(p, child.Name()),
			QualifiedName: child.QualifiedName(),
			IsDir:         child.IsDir(),
		})
	}

	c.JSON(http.StatusOK, response)
}

// source returns the decompiled source of a file
// GET /api/source?path=/app/com/foo/Bar
func (s *Server) source(c *gin.Context) {
	p := c.Query("path")
	if p == "" {
		errorResponse(c, http.StatusBadRequest, "path parameter is required")
		return
	}

	data, err := s.fs.ReadFile(c.Request.Context(), p)
	if err != nil {
		fail(c, err)
		return
	}

	c.Data(http.StatusOK, sourceContentType, data)
}

// refresh drops every cached archive
// POST /api/refresh
func (s *Server) refresh(c *gin.Context) {
	s.fs.Refresh()
	log.Info().Msg("api: refreshed all archives")
	c.JSON(http.StatusOK, gin.H{"status": "refreshed"})
}

// invalidate drops one cached archive, named by mount name or locator
// POST /api/invalidate?archive=app
// POST /api/invalidate?locator=/opt/app.jar
func (s *Server) invalidate(c *gin.Context) {
	name, locator := c.Query("archive"), c.Query("locator")
	if name == "" && locator == "" {
		errorResponse(c, http.StatusBadRequest, "archive or locator parameter is required")
		return
	}

	var target *mount.Archive
	for _, a := range s.fs.Table().Archives() {
		if (name != "" && a.Name == name) || (locator != "" && a.Locator == locator) {
			target = &a
			break
		}
	}
	if target == nil {
		errorResponse(c, http.StatusNotFound, "archive not mounted")
		return
	}

	s.fs.FileSystem().Invalidate(target.Locator)
	c.JSON(http.StatusOK, gin.H{"status": "invalidated", "archive": target.Name})
}

// stats reports cache sizes
// GET /api/stats
func (s *Server) stats(c *gin.Context) {
	c.JSON(http.StatusOK, s.fs.FileSystem().Stats())
}

func childMountPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}
