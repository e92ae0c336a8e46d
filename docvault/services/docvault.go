package services

import (
	"log"
	"net/http"
	"os"

	"docvault/docvault/auth"
	"docvault/docvault/storage"
	"docvault/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"
)

type DocVault struct {
	user     UserService
	document DocumentService

	db *gorm.DB
}

func NewDocVault(
	db *gorm.DB, store storage.ObjectStore, google, apple auth.TokenVerifier, auditLog auth.AuditLogger, secret []byte,
) DocVault {
	jwtManager := auth.NewJwtManager(secret)

	return DocVault{
		user: UserService{
			db:         db,
			jwtManager: jwtManager,
			google:     google,
			apple:      apple,
			resolver:   NewIdentityResolver(db),
			auditLog:   auditLog,
		},
		document: DocumentService{
			db:         db,
			store:      store,
			quota:      storage.NewQuotaEstimator(store),
			jwtManager: jwtManager,
			auditLog:   auditLog,
		},
		db: db,
	}
}

func (d *DocVault) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger: log.New(os.Stderr, "", log.LstdFlags), NoColor: false,
	}))

	r.Mount("/user", d.user.Routes())
	r.Mount("/document", d.document.Routes())

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteSuccess(w)
	})

	return r
}
