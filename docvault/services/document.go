package services

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"time"

	"docvault/docvault/auth"
	"docvault/docvault/schema"
	"docvault/docvault/storage"
	"docvault/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	defaultPage  = 1
	defaultLimit = 10

	signedUrlTtl = 30 * time.Minute
)

type DocumentService struct {
	db         *gorm.DB
	store      storage.ObjectStore
	quota      *storage.QuotaEstimator
	jwtManager *auth.JwtManager
	auditLog   auth.AuditLogger
}

func (s *DocumentService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(auth.Middleware(s.jwtManager, s.db, s.auditLog)...)

	r.Post("/", s.Upload)
	r.Get("/", s.List)
	r.Delete("/", s.Delete)
	r.Get("/download", s.Download)
	r.Get("/url", s.SignedUrl)

	return r
}

type DocumentInfo struct {
	Id           uuid.UUID `json:"id"`
	UserId       uuid.UUID `json:"user_id"`
	StorageKey   string    `json:"filepath"`
	FileSize     int64     `json:"file_size"`
	MimeType     string    `json:"mime_type"`
	DocumentType string    `json:"document_type"`
	UploadDate   time.Time `json:"upload_date"`
}

func convertToDocumentInfo(doc *schema.UserDocument) DocumentInfo {
	return DocumentInfo{
		Id:           doc.Id,
		UserId:       doc.UserId,
		StorageKey:   doc.StorageKey,
		FileSize:     doc.FileSize,
		MimeType:     doc.MimeType,
		DocumentType: doc.DocumentType,
		UploadDate:   doc.UploadDate,
	}
}

type listMetadata struct {
	TotalCount int64 `json:"totalCount"`
	TotalPages int64 `json:"totalPages"`
}

type documentListResponse struct {
	List     []DocumentInfo `json:"list"`
	Metadata listMetadata   `json:"metadata"`
}

func (s *DocumentService) Upload(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		utils.WriteErrorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	// No request size cap here; capacity admission is the only size gate, so
	// an upload just under the remaining capacity must reach the check.
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		utils.WriteErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("error parsing upload: %v", err))
		return
	}

	documentType := r.FormValue("document_type")
	if documentType == "" {
		utils.WriteErrorResponse(w, http.StatusUnprocessableEntity, "document_type is required")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		utils.WriteErrorResponse(w, http.StatusBadRequest, "upload must contain a 'file' part")
		return
	}
	defer file.Close()

	doc, err := s.storeDocument(r, user, documentType, file, header)
	if err != nil {
		utils.WriteErrorResponse(w, GetResponseCode(err), fmt.Sprintf("error uploading document: %v", err))
		return
	}

	utils.WriteJsonResponse(w, "document uploaded", convertToDocumentInfo(&doc))
}

// storeDocument enforces the per user capacity before anything is written.
// Usage is recomputed from the object store on every upload so the check
// reflects what is actually stored, not a cached counter.
func (s *DocumentService) storeDocument(r *http.Request, user schema.User, documentType string, file multipart.File, header *multipart.FileHeader) (schema.UserDocument, error) {
	admit, err := s.quota.Admit(r.Context(), user.Id.String(), header.Size)
	if err != nil {
		slog.Error("error computing storage usage", "user_id", user.Id, "error", err)
		return schema.UserDocument{}, CodedError(errors.New("error checking storage usage"), http.StatusInternalServerError)
	}
	if !admit {
		return schema.UserDocument{}, CodedError(ErrQuotaExceeded, http.StatusInsufficientStorage)
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	key := fmt.Sprintf("%v/%v/%v%v", user.Id, documentType, uuid.New(), filepath.Ext(header.Filename))
	if err := s.store.Put(r.Context(), key, file, mimeType); err != nil {
		slog.Error("error writing object", "key", key, "error", err)
		return schema.UserDocument{}, CodedError(errors.New("error storing document"), http.StatusInternalServerError)
	}

	doc := schema.UserDocument{
		Id:           uuid.New(),
		UserId:       user.Id,
		StorageKey:   key,
		FileSize:     header.Size,
		MimeType:     mimeType,
		DocumentType: documentType,
		UploadDate:   time.Now().UTC(),
		Status:       schema.StatusActive,
		CreatedAt:    time.Now().UTC(),
	}

	result := s.db.Create(&doc)
	if result.Error != nil {
		slog.Error("sql error creating document entry", "key", key, "error", result.Error)
		return schema.UserDocument{}, CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}

	return doc, nil
}

func (s *DocumentService) List(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		utils.WriteErrorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	page := utils.QueryInt(r, "page", defaultPage)
	limit := utils.QueryInt(r, "limit", defaultLimit)

	query := s.db.Model(&schema.UserDocument{}).
		Where("user_id = ?", user.Id).
		Where("status <> ?", schema.StatusDeleted)
	if documentType := r.URL.Query().Get("document_type"); documentType != "" {
		query = query.Where("document_type = ?", documentType)
	}

	var totalCount int64
	if result := query.Count(&totalCount); result.Error != nil {
		slog.Error("sql error counting documents", "user_id", user.Id, "error", result.Error)
		utils.WriteErrorResponse(w, http.StatusInternalServerError, "error listing documents")
		return
	}

	var docs []schema.UserDocument
	result := query.Order("upload_date desc").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&docs)
	if result.Error != nil {
		slog.Error("sql error listing documents", "user_id", user.Id, "error", result.Error)
		utils.WriteErrorResponse(w, http.StatusInternalServerError, "error listing documents")
		return
	}

	infos := make([]DocumentInfo, 0, len(docs))
	for _, doc := range docs {
		infos = append(infos, convertToDocumentInfo(&doc))
	}

	res := documentListResponse{
		List: infos,
		Metadata: listMetadata{
			TotalCount: totalCount,
			TotalPages: int64(math.Ceil(float64(totalCount) / float64(limit))),
		},
	}
	utils.WriteJsonResponse(w, "documents fetched", res)
}

func (s *DocumentService) Delete(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		utils.WriteErrorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	documentId, err := uuid.Parse(r.URL.Query().Get("document_id"))
	if err != nil {
		utils.WriteErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("invalid document_id: %v", err))
		return
	}

	var deleted schema.UserDocument
	err = s.db.Transaction(func(txn *gorm.DB) error {
		doc, err := schema.GetUserDocument(documentId, user.Id, txn)
		if err != nil {
			if errors.Is(err, schema.ErrDocumentNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		doc.Status = schema.StatusDeleted
		if result := txn.Save(&doc); result.Error != nil {
			slog.Error("sql error deleting document", "document_id", documentId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		deleted = doc
		return nil
	})
	if err != nil {
		utils.WriteErrorResponse(w, GetResponseCode(err), fmt.Sprintf("error deleting document: %v", err))
		return
	}

	if err := s.store.Delete(r.Context(), deleted.StorageKey); err != nil {
		// The record is already soft deleted; the orphaned object no longer
		// counts toward listings but still occupies quota until cleaned up.
		slog.Error("error deleting object", "key", deleted.StorageKey, "error", err)
	}

	utils.WriteJsonResponse(w, "document deleted", convertToDocumentInfo(&deleted))
}

// gateObjectAccess resolves the requested key and rejects anything outside
// the caller's own prefix. Unknown or malformed keys are treated the same as
// foreign ones.
func (s *DocumentService) gateObjectAccess(r *http.Request) (string, error) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		return "", CodedError(err, http.StatusInternalServerError)
	}

	key := r.URL.Query().Get("filepath")
	if key == "" {
		return "", CodedError(errors.New("filepath is required"), http.StatusUnprocessableEntity)
	}

	if !auth.CanAccessObject(user.Id, key) {
		return "", CodedError(ErrObjectForbidden, http.StatusForbidden)
	}

	return key, nil
}

func (s *DocumentService) Download(w http.ResponseWriter, r *http.Request) {
	key, err := s.gateObjectAccess(r)
	if err != nil {
		utils.WriteErrorResponse(w, GetResponseCode(err), err.Error())
		return
	}

	body, err := s.store.Open(r.Context(), key)
	if err != nil {
		slog.Error("error opening object", "key", key, "error", err)
		utils.WriteErrorResponse(w, http.StatusNotFound, "document not found")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(key)))
	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := io.Copy(w, body); err != nil {
		slog.Error("error streaming object", "key", key, "error", err)
	}
}

type signedUrlResponse struct {
	Url       string `json:"url"`
	ExpiresIn int64  `json:"expires_in"`
}

func (s *DocumentService) SignedUrl(w http.ResponseWriter, r *http.Request) {
	key, err := s.gateObjectAccess(r)
	if err != nil {
		utils.WriteErrorResponse(w, GetResponseCode(err), err.Error())
		return
	}

	url, err := s.store.SignedUrl(r.Context(), key, signedUrlTtl)
	if err != nil {
		slog.Error("error presigning object url", "key", key, "error", err)
		utils.WriteErrorResponse(w, http.StatusInternalServerError, "error generating download url")
		return
	}

	utils.WriteJsonResponse(w, "url generated", signedUrlResponse{
		Url:       url,
		ExpiresIn: int64(signedUrlTtl.Seconds()),
	})
}
