package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// StudentRepository provides PostgreSQL-backed student and face gallery storage
type StudentRepository struct {
	pool *Pool
}

// NewStudentRepository creates a new PostgreSQL student repository
func NewStudentRepository(pool *Pool) *StudentRepository {
	return &StudentRepository{pool: pool}
}

const studentColumns = `id, name, COALESCE(student_code, ''), department, normalized_name, created_at`

func scanStudent(row rowScanner) (*database.Student, error) {
	var s database.Student
	if err := row.Scan(&s.ID, &s.Name, &s.StudentCode, &s.Department, &s.NormalizedName, &s.CreatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *StudentRepository) listStudents(ctx context.Context, query string, args ...any) ([]database.Student, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	defer rows.Close()

	var students []database.Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		students = append(students, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate students: %w", err)
	}
	return students, nil
}

// GetStudent retrieves a student by ID, returns nil if not found
func (r *StudentRepository) GetStudent(ctx context.Context, id string) (*database.Student, error) {
	s, err := scanStudent(r.pool.QueryRow(ctx, "SELECT "+studentColumns+" FROM students WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get student: %w", err)
	}
	return s, nil
}

// ListStudents returns all students ordered by name
func (r *StudentRepository) ListStudents(ctx context.Context) ([]database.Student, error) {
	return r.listStudents(ctx, "SELECT "+studentColumns+" FROM students ORDER BY name, id")
}

// FindStudentsByName returns students with the given normalized name
func (r *StudentRepository) FindStudentsByName(ctx context.Context, normalizedName string) ([]database.Student, error) {
	return r.listStudents(ctx, "SELECT "+studentColumns+" FROM students WHERE normalized_name = $1 ORDER BY name, id", normalizedName)
}

// CreateStudent stores a new student
func (r *StudentRepository) CreateStudent(ctx context.Context, s *database.Student) error {
	query := `
		INSERT INTO students (id, name, student_code, department, normalized_name)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5)
		RETURNING created_at
	`
	err := r.pool.QueryRow(ctx, query, s.ID, s.Name, s.StudentCode, s.Department, s.NormalizedName).Scan(&s.CreatedAt)
	if err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// DeleteStudent removes a student; encodings, movements and records cascade
func (r *StudentRepository) DeleteStudent(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, "DELETE FROM students WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return database.ErrNotFound
	}
	return nil
}

// SaveEncodings stores face encodings for a student in one transaction
func (r *StudentRepository) SaveEncodings(ctx context.Context, studentID string, embeddings [][]float32) ([]database.StoredEncoding, error) {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer rollback(tx)

	var exists bool
	if err := tx.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM students WHERE id = $1)", studentID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check student exists: %w", err)
	}
	if !exists {
		return nil, database.ErrNotFound
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO student_encodings (student_id, embedding)
		VALUES ($1, $2)
		RETURNING id, created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	saved := make([]database.StoredEncoding, 0, len(embeddings))
	for _, emb := range embeddings {
		enc := database.StoredEncoding{StudentID: studentID, Embedding: emb}
		if err := stmt.QueryRowContext(ctx, studentID, pgvector.NewVector(emb)).Scan(&enc.ID, &enc.CreatedAt); err != nil {
			return nil, fmt.Errorf("insert encoding: %w", err)
		}
		saved = append(saved, enc)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit encodings: %w", err)
	}
	return saved, nil
}

// ListEncodings returns every stored encoding
func (r *StudentRepository) ListEncodings(ctx context.Context) ([]database.StoredEncoding, error) {
	rows, err := r.pool.Query(ctx, "SELECT id, student_id, embedding, created_at FROM student_encodings ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list encodings: %w", err)
	}
	defer rows.Close()

	var encodings []database.StoredEncoding
	for rows.Next() {
		var enc database.StoredEncoding
		var vec pgvector.Vector
		if err := rows.Scan(&enc.ID, &enc.StudentID, &vec, &enc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan encoding: %w", err)
		}
		enc.Embedding = vec.Slice()
		encodings = append(encodings, enc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate encodings: %w", err)
	}
	return encodings, nil
}

// FindNearestEncodings searches encodings by cosine distance using the
// pgvector HNSW index.
func (r *StudentRepository) FindNearestEncodings(ctx context.Context, embedding []float32, limit int, maxDistance float64) ([]database.EncodingMatch, error) {
	tx, err := r.pool.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(tx)

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", database.HNSWEfSearch)); err != nil {
		return nil, fmt.Errorf("set ef_search: %w", err)
	}

	query := `
		SELECT id, student_id, embedding, created_at,
		       embedding <=> $1::vector AS distance
		FROM student_encodings
		WHERE embedding <=> $1::vector <= $2
		ORDER BY distance
		LIMIT $3
	`
	rows, err := tx.QueryContext(ctx, query, pgvector.NewVector(embedding), maxDistance, limit)
	if err != nil {
		return nil, fmt.Errorf("query nearest encodings: %w", err)
	}
	defer rows.Close()

	var matches []database.EncodingMatch
	for rows.Next() {
		var m database.EncodingMatch
		var vec pgvector.Vector
		if err := rows.Scan(&m.Encoding.ID, &m.Encoding.StudentID, &vec, &m.Encoding.CreatedAt, &m.Distance); err != nil {
			return nil, fmt.Errorf("scan encoding: %w", err)
		}
		m.Encoding.Embedding = vec.Slice()
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate encodings: %w", err)
	}
	return matches, nil
}
