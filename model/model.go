package model

import (
	"time"

	"github.com/google/uuid"
)

// Status tracks a submission through the grading lifecycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Terminal reports whether no further lifecycle transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Submission represents a submission record stored in the database.
type Submission struct {
	ID                   uuid.UUID  `db:"id" json:"id"`
	Language             string     `db:"language" json:"language"`
	Code                 string     `db:"code" json:"code"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            *time.Time `db:"updated_at" json:"updated_at,omitempty"`
	UserID               uuid.UUID  `db:"user_id" json:"user_id"`
	Status               Status     `db:"status" json:"status"`
	BenchmarkID          *uuid.UUID `db:"benchmark_id" json:"benchmark_id,omitempty"`
	Stdout               *string    `db:"stdout" json:"stdout,omitempty"`
	Stderr               *string    `db:"stderr" json:"stderr,omitempty"`
	ExecDuration         int        `db:"exec_duration" json:"exec_duration"`
	Message              *string    `db:"message" json:"message,omitempty"`
	Error                *string    `db:"error" json:"error,omitempty"`
	LintScore            *int       `db:"lint_score" json:"lint_score,omitempty"`
	QualityScore         *int       `db:"quality_score" json:"quality_score,omitempty"`
	MemUsage             int        `db:"mem_usage" json:"mem_usage"`
	CodeHash             string     `db:"code_hash" json:"code_hash"`
	CyclomaticComplexity int        `db:"cyclomatic_complexity" json:"cyclomatic_complexity"`
}

// SubmissionInput is the incoming API payload before persistence.
// A caller-supplied status is ignored; the server always starts a
// submission at pending.
type SubmissionInput struct {
	Language    string     `json:"language"`
	Code        string     `json:"code"`
	BenchmarkID *uuid.UUID `json:"benchmark_id,omitempty"`
}

// JobMessage is the point-in-time projection of a submission handed to
// the execution worker. It is never persisted.
type JobMessage struct {
	ID       uuid.UUID `json:"id"`
	Language string    `json:"language"`
	Code     string    `json:"code"`
}

// ExecResult is the payload delivered on the result channel once the
// worker has finished (or given up on) a job. The wire keys follow the
// worker's status messages.
type ExecResult struct {
	ID                   uuid.UUID `json:"id"`
	Status               string    `json:"status"`
	Message              string    `json:"message"`
	Error                string    `json:"error"`
	Stdout               string    `json:"stdout"`
	Stderr               string    `json:"stderr"`
	ExecDuration         int       `json:"exec_duration"`
	MemUsage             int       `json:"mem_usage"`
	LintScore            *int      `json:"lint_score,omitempty"`
	QualityScore         *int      `json:"quality_score,omitempty"`
	CyclomaticComplexity int       `json:"cyclomatic_complexity"`
}

// Benchmark is the problem a submission is graded against.
type Benchmark struct {
	ID                   uuid.UUID  `db:"id" json:"id"`
	Title                string     `db:"title" json:"title"`
	Subject              string     `db:"subject" json:"subject"`
	Difficulty           string     `db:"difficulty" json:"difficulty"`
	CreatorID            *uuid.UUID `db:"creator_id" json:"creator_id,omitempty"`
	GitURL               *string    `db:"git_url" json:"git_url,omitempty"`
	MaxCyclomaticComplex int        `db:"max_cyclomatic_complex" json:"max_cyclomatic_complex"`
}

// BenchmarkInput is the incoming API payload for benchmark CRUD.
type BenchmarkInput struct {
	Title                string  `json:"title"`
	Subject              string  `json:"subject"`
	Difficulty           string  `json:"difficulty"`
	GitURL               *string `json:"git_url,omitempty"`
	MaxCyclomaticComplex int     `json:"max_cyclomatic_complex"`
}

// User is a registered account. Password holds the argon2id encoding
// and never leaves the process.
type User struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	Name        string     `db:"name" json:"name"`
	Email       string     `db:"email" json:"email"`
	Password    string     `db:"password" json:"-"`
	Username    string     `db:"username" json:"username"`
	DataVersion int        `db:"data_version" json:"data_version"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// UserInput is the registration / profile update payload.
type UserInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
}

// LoginRequest carries sign-in credentials. Either email or username
// may identify the account.
type LoginRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse is returned on successful register / sign-in.
type AuthResponse struct {
	Token string `json:"token"`
}
