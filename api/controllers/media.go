package controllers

import (
	"io"
	"net/http"
	"strings"

	"github.com/kartmitra/kartmitra-backend/api/responses"
	pkgerrors "github.com/kartmitra/kartmitra-backend/pkg/errors"
	"github.com/kartmitra/kartmitra-backend/pkg/logger"
	"github.com/kartmitra/kartmitra-backend/pkg/storage"
)

var allowedMediaPrefixes = map[string]string{
	"products": "products",
	"returns":  "returns",
	"vendors":  "vendors",
}

// MediaUpload accepts a multipart image and stores it in object storage.
// Return-evidence photos and product images both land here; the kind field
// selects the storage prefix.
func MediaUpload(uploader storage.Uploader, maxUploadMB int, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		maxBytes := storage.MaxBytes(maxUploadMB)
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart form"))
			return
		}

		prefix, ok := allowedMediaPrefixes[strings.TrimSpace(r.FormValue("kind"))]
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "kind must be one of products, returns, vendors"))
			return
		}

		file, _, err := r.FormFile("file")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "file field required"))
			return
		}
		defer file.Close()

		data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unable to read upload"))
			return
		}

		contentType, err := storage.ValidateImage(data, maxBytes)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		url, err := uploader.Upload(r.Context(), prefix, contentType, data)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]string{"url": url})
	}
}
