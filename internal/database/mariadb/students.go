package mariadb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

const studentColumns = `id, name, COALESCE(student_code, ''), department, normalized_name, created_at`

func scanStudent(row rowScanner) (*database.Student, error) {
	var st database.Student
	if err := row.Scan(&st.ID, &st.Name, &st.StudentCode, &st.Department, &st.NormalizedName, &st.CreatedAt); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Store) listStudents(ctx context.Context, query string, args ...any) ([]database.Student, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	defer rows.Close()

	var students []database.Student
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		students = append(students, *st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate students: %w", err)
	}
	return students, nil
}

// GetStudent retrieves a student by ID, returns nil if not found
func (s *Store) GetStudent(ctx context.Context, id string) (*database.Student, error) {
	st, err := scanStudent(s.db.QueryRowContext(ctx, "SELECT "+studentColumns+" FROM students WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get student: %w", err)
	}
	return st, nil
}

// ListStudents returns all students ordered by name
func (s *Store) ListStudents(ctx context.Context) ([]database.Student, error) {
	return s.listStudents(ctx, "SELECT "+studentColumns+" FROM students ORDER BY name, id")
}

// FindStudentsByName returns students with the given normalized name
func (s *Store) FindStudentsByName(ctx context.Context, normalizedName string) ([]database.Student, error) {
	return s.listStudents(ctx, "SELECT "+studentColumns+" FROM students WHERE normalized_name = ? ORDER BY name, id", normalizedName)
}

// CreateStudent stores a new student
func (s *Store) CreateStudent(ctx context.Context, st *database.Student) error {
	st.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO students (id, name, student_code, department, normalized_name, created_at)
		VALUES (?, ?, NULLIF(?, ''), ?, ?, ?)
	`, st.ID, st.Name, st.StudentCode, st.Department, st.NormalizedName, st.CreatedAt)
	if err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// DeleteStudent removes a student; encodings, movements and records cascade
func (s *Store) DeleteStudent(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM students WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return database.ErrNotFound
	}
	return nil
}

// SaveEncodings stores face encodings for a student in one transaction
func (s *Store) SaveEncodings(ctx context.Context, studentID string, embeddings [][]float32) ([]database.StoredEncoding, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(tx)

	var exists bool
	if err := tx.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM students WHERE id = ?)", studentID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check student exists: %w", err)
	}
	if !exists {
		return nil, database.ErrNotFound
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO student_encodings (student_id, embedding, created_at) VALUES (?, ?, ?)")
	if err != nil {
		return nil, fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Truncate(time.Microsecond)
	saved := make([]database.StoredEncoding, 0, len(embeddings))
	for _, emb := range embeddings {
		data, err := json.Marshal(emb)
		if err != nil {
			return nil, fmt.Errorf("marshal embedding: %w", err)
		}
		result, err := stmt.ExecContext(ctx, studentID, data, now)
		if err != nil {
			return nil, fmt.Errorf("insert encoding: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("encoding id: %w", err)
		}
		saved = append(saved, database.StoredEncoding{ID: id, StudentID: studentID, Embedding: emb, CreatedAt: now})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit encodings: %w", err)
	}
	return saved, nil
}

// ListEncodings returns every stored encoding
func (s *Store) ListEncodings(ctx context.Context) ([]database.StoredEncoding, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, student_id, embedding, created_at FROM student_encodings ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list encodings: %w", err)
	}
	defer rows.Close()

	var encodings []database.StoredEncoding
	for rows.Next() {
		var enc database.StoredEncoding
		var data []byte
		if err := rows.Scan(&enc.ID, &enc.StudentID, &data, &enc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan encoding: %w", err)
		}
		if err := json.Unmarshal(data, &enc.Embedding); err != nil {
			return nil, fmt.Errorf("decode encoding %d: %w", enc.ID, err)
		}
		encodings = append(encodings, enc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate encodings: %w", err)
	}
	return encodings, nil
}
