package handler

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/internal/domain"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// jobCursor marks the last job of a page in (created_at DESC, id DESC) order
type jobCursor struct {
	CreatedAt time.Time
	JobID     string
}

func decodeJobCursor(cursorStr string) (*jobCursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor encoding: %w", err)
	}

	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return nil, fmt.Errorf("invalid cursor format")
	}

	var createdAt int64
	if _, err := fmt.Sscanf(parts[0], "%d", &createdAt); err != nil {
		return nil, fmt.Errorf("invalid createdAt in cursor: %w", err)
	}

	return &jobCursor{CreatedAt: time.Unix(0, createdAt).UTC(), JobID: parts[1]}, nil
}

func encodeJobCursor(job *domain.Job) string {
	cs := fmt.Sprintf("%d|%s", job.CreatedAt.UnixNano(), job.ID)
	return base64.RawURLEncoding.EncodeToString([]byte(cs))
}

// after reports whether job sorts after the cursor position
func (c *jobCursor) after(job *domain.Job) bool {
	if job.CreatedAt.Equal(c.CreatedAt) {
		return job.ID < c.JobID
	}
	return job.CreatedAt.Before(c.CreatedAt)
}

// paginate returns one page of jobs, which must already be newest first, and the cursor
// of the next page if there is one
func paginate(jobs []*domain.Job, cursor *jobCursor, pageSize int) ([]*domain.Job, string) {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	start := 0
	if cursor != nil {
		for start < len(jobs) && !cursor.after(jobs[start]) {
			start++
		}
	}

	page := jobs[start:]
	if len(page) <= pageSize {
		return page, ""
	}

	page = page[:pageSize]
	return page, encodeJobCursor(page[len(page)-1])
}
