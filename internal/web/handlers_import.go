package web

import (
	"mime/multipart"
	"net/http"

	"github.com/akshaychugh/betterreads/internal/library"
	"github.com/akshaychugh/betterreads/internal/logging"
	mw "github.com/akshaychugh/betterreads/internal/web/middleware"
)

// handleVerifyCSV checks only the header of an uploaded export: a cheap
// pre-flight the frontend runs before committing to a full import.
func (s *Server) handleVerifyCSV(w http.ResponseWriter, r *http.Request) {
	file, _, ok := s.uploadedFile(w, r)
	if !ok {
		return
	}
	defer file.Close()

	if err := library.VerifyHeader(file); err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"is_valid": true})
}

// handleImportBooks streams the uploaded export through the import
// pipeline. The file is passed to the importer as a reader; it is never
// buffered whole.
func (s *Server) handleImportBooks(w http.ResponseWriter, r *http.Request) {
	userID, ok := mw.UserID(r.Context())
	if !ok {
		respondErrorMessage(w, http.StatusUnauthorized, "no authenticated user")
		return
	}

	file, header, ok := s.uploadedFile(w, r)
	if !ok {
		return
	}
	defer file.Close()

	logger := logging.WithFields(r.Context(), "file", header.Filename, "size", header.Size)
	logger.Info("import requested")

	report, err := s.importer.ImportLibrary(r.Context(), userID, file)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	// The original client refreshes its shelves straight from the import
	// response, so include them.
	shelfCounts, err := s.stats.ShelfCounts(r.Context(), userID)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":      "books imported successfully",
		"report":       report,
		"shelf_counts": shelfCounts,
	})
}

func (s *Server) handleClearBooks(w http.ResponseWriter, r *http.Request) {
	userID, ok := mw.UserID(r.Context())
	if !ok {
		respondErrorMessage(w, http.StatusUnauthorized, "no authenticated user")
		return
	}

	deleted, err := s.store.DeleteBooks(r.Context(), userID)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

// uploadedFile extracts the "file" part of a multipart upload, bounding the
// body at the configured limit. Writes the error response itself on failure.
func (s *Server) uploadedFile(w http.ResponseWriter, r *http.Request) (multipart.File, *multipart.FileHeader, bool) {
	maxSize := s.cfg.Import.MaxUploadBytes
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		respondErrorMessage(w, http.StatusBadRequest, "file too large or invalid form")
		return nil, nil, false
	}

	f, fh, err := r.FormFile("file")
	if err != nil {
		respondErrorMessage(w, http.StatusBadRequest, "no file uploaded")
		return nil, nil, false
	}
	return f, fh, true
}
