package tests

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"docvault/docvault/storage"
)

func TestDocumentUploadAndDownload(t *testing.T) {
	env := setupTestEnv(t)

	client := env.newUser(t, "abc")

	content := []byte("important document contents")
	doc, err := client.uploadDocument("passport", "passport.pdf", content)
	if err != nil {
		t.Fatal(err)
	}

	if !strings.HasPrefix(doc.StorageKey, client.userId+"/passport/") {
		t.Fatalf("storage key %v is outside the owner's namespace", doc.StorageKey)
	}
	if !strings.HasSuffix(doc.StorageKey, ".pdf") {
		t.Fatalf("storage key %v should keep the file extension", doc.StorageKey)
	}
	if doc.FileSize != int64(len(content)) || doc.DocumentType != "passport" {
		t.Fatalf("invalid document %+v", doc)
	}

	downloaded, err := client.downloadDocument(doc.StorageKey)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(downloaded, content) {
		t.Fatalf("downloaded content does not match upload")
	}

	url, err := client.documentUrl(doc.StorageKey)
	if err != nil {
		t.Fatal(err)
	}
	if url.Url == "" || url.ExpiresIn != 1800 {
		t.Fatalf("invalid url response %+v", url)
	}
}

func TestDocumentRequiresAuth(t *testing.T) {
	env := setupTestEnv(t)

	client := env.newClient()

	_, err := client.listDocuments(1, 10, "")
	if statusOf(err) != http.StatusUnauthorized {
		t.Fatalf("unauthenticated list should be unauthorized, got %v", err)
	}

	_, err = client.uploadDocument("passport", "a.pdf", []byte("data"))
	if statusOf(err) != http.StatusUnauthorized {
		t.Fatalf("unauthenticated upload should be unauthorized, got %v", err)
	}
}

func TestDocumentAccessIsScopedToOwner(t *testing.T) {
	env := setupTestEnv(t)

	owner := env.newUser(t, "owner")
	other := env.newUser(t, "other")

	doc, err := owner.uploadDocument("passport", "passport.pdf", []byte("secret"))
	if err != nil {
		t.Fatal(err)
	}

	_, err = other.downloadDocument(doc.StorageKey)
	if statusOf(err) != http.StatusForbidden {
		t.Fatalf("foreign download should be forbidden, got %v", err)
	}

	_, err = other.documentUrl(doc.StorageKey)
	if statusOf(err) != http.StatusForbidden {
		t.Fatalf("foreign url request should be forbidden, got %v", err)
	}

	// The other user's listing does not surface the document either.
	docs, err := other.listDocuments(1, 10, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(docs.List) != 0 {
		t.Fatalf("expected empty listing, got %d documents", len(docs.List))
	}
}

func TestDocumentDelete(t *testing.T) {
	env := setupTestEnv(t)

	client := env.newUser(t, "abc")

	doc, err := client.uploadDocument("passport", "passport.pdf", []byte("data"))
	if err != nil {
		t.Fatal(err)
	}

	if err := client.deleteDocument(doc.Id.String()); err != nil {
		t.Fatal(err)
	}

	docs, err := client.listDocuments(1, 10, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(docs.List) != 0 || docs.Metadata.TotalCount != 0 {
		t.Fatalf("deleted document should not be listed, got %+v", docs)
	}

	_, err = client.downloadDocument(doc.StorageKey)
	if statusOf(err) != http.StatusNotFound {
		t.Fatalf("deleted object should not be downloadable, got %v", err)
	}

	err = client.deleteDocument(doc.Id.String())
	if statusOf(err) != http.StatusNotFound {
		t.Fatalf("repeat delete should be not found, got %v", err)
	}
}

func TestDocumentListPaginationAndFilter(t *testing.T) {
	env := setupTestEnv(t)

	client := env.newUser(t, "abc")

	for i := 0; i < 5; i++ {
		docType := "passport"
		if i%2 == 1 {
			docType = "license"
		}
		_, err := client.uploadDocument(docType, fmt.Sprintf("doc%d.pdf", i), []byte("data"))
		if err != nil {
			t.Fatal(err)
		}
	}

	page, err := client.listDocuments(1, 2, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(page.List) != 2 || page.Metadata.TotalCount != 5 || page.Metadata.TotalPages != 3 {
		t.Fatalf("invalid page %+v", page.Metadata)
	}

	last, err := client.listDocuments(3, 2, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(last.List) != 1 {
		t.Fatalf("expected one document on last page, got %d", len(last.List))
	}

	filtered, err := client.listDocuments(1, 10, "passport")
	if err != nil {
		t.Fatal(err)
	}
	if filtered.Metadata.TotalCount != 3 {
		t.Fatalf("expected 3 passports, got %d", filtered.Metadata.TotalCount)
	}

	// A page past the end is empty but keeps the metadata.
	empty, err := client.listDocuments(10, 10, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(empty.List) != 0 || empty.Metadata.TotalCount != 5 {
		t.Fatalf("invalid out of range page %+v", empty)
	}
}

func TestLargeUploadWithinCapacityIsAdmitted(t *testing.T) {
	env := setupTestEnv(t)

	client := env.newUser(t, "abc")

	// There is no request size cap; a large upload into a namespace with
	// room to spare must reach the capacity check and be admitted.
	content := make([]byte, 70<<20)
	doc, err := client.uploadDocument("backup", "archive.bin", content)
	if err != nil {
		t.Fatal(err)
	}
	if doc.FileSize != int64(len(content)) {
		t.Fatalf("expected file size %d, got %d", len(content), doc.FileSize)
	}

	docs, err := client.listDocuments(1, 10, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(docs.List) != 1 {
		t.Fatalf("expected one document, got %d", len(docs.List))
	}
}

func TestUploadRejectedWhenCapacityExhausted(t *testing.T) {
	// Every stored object is reported at exactly the capacity ceiling, so
	// the first upload is admitted against an empty namespace and the second
	// is rejected.
	store := &inflatingStore{
		ObjectStore:  storage.NewMemoryObjectStore(),
		reportedSize: storage.NamespaceCapacityBytes,
	}
	env := setupTestEnvWithStore(t, store)

	client := env.newUser(t, "abc")

	if _, err := client.uploadDocument("passport", "a.pdf", []byte("data")); err != nil {
		t.Fatal(err)
	}

	_, err := client.uploadDocument("passport", "b.pdf", []byte("data"))
	if statusOf(err) != http.StatusInsufficientStorage {
		t.Fatalf("upload over capacity should fail with insufficient storage, got %v", err)
	}

	// Capacity is per user; another account is unaffected.
	other := env.newUser(t, "other")
	if _, err := other.uploadDocument("passport", "c.pdf", []byte("data")); err != nil {
		t.Fatal(err)
	}
}
