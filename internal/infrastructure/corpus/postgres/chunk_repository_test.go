package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func newRepoWithMock(t *testing.T) (*ChunkRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &ChunkRepository{db: db}, mock, func() { _ = db.Close() }
}

func chunkColumns() []string {
	return []string{"id", "document_id", "workspace", "filename", "title", "chunk_index", "char_offset", "text", "metadata"}
}

func TestListChunksScansRowsInDocumentOrder(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	rows := sqlmock.NewRows(chunkColumns()).
		AddRow("c1", "doc-1", "ws", "auth.md", "Auth Guide", 0, 0, "first chunk", []byte(`{"lang":"en"}`)).
		AddRow("c2", "doc-1", "ws", "auth.md", "Auth Guide", 1, 900, "second chunk", []byte(`{}`))

	mock.ExpectQuery("SELECT id, document_id, workspace, filename").
		WithArgs("ws").
		WillReturnRows(rows)

	chunks, err := repo.ListChunks(context.Background(), "ws")
	if err != nil {
		t.Fatalf("ListChunks() error = %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].ID != "c1" || chunks[0].Title != "Auth Guide" || chunks[0].CharOffset != 0 {
		t.Fatalf("unexpected first chunk %+v", chunks[0])
	}
	if chunks[1].ChunkIndex != 1 || chunks[1].CharOffset != 900 {
		t.Fatalf("unexpected second chunk %+v", chunks[1])
	}
	if chunks[0].Metadata["lang"] != "en" {
		t.Fatalf("expected metadata decoded, got %+v", chunks[0].Metadata)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListChunksEmptyWorkspace(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, document_id, workspace, filename").
		WithArgs("empty").
		WillReturnRows(sqlmock.NewRows(chunkColumns()))

	chunks, err := repo.ListChunks(context.Background(), "empty")
	if err != nil {
		t.Fatalf("ListChunks() error = %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("expected no chunks, got %d", len(chunks))
	}
}

func TestListChunksQueryError(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, document_id, workspace, filename").
		WithArgs("ws").
		WillReturnError(errors.New("connection refused"))

	if _, err := repo.ListChunks(context.Background(), "ws"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestEnsureSchemaRunsDDLUnderAdvisoryLock(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS chunks").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
