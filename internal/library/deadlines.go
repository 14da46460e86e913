package library

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Deadline is one tracked research deadline.
type Deadline struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Due          time.Time `json:"due"`
	Priority     string    `json:"priority"`
	Category     string    `json:"category"`
	ReminderDays int       `json:"reminder_days"`
	CreatedAt    time.Time `json:"created_at"`
}

// Deadlines is a mutex-guarded manager over a flat deadlines.json file.
type Deadlines struct {
	mu   sync.Mutex
	path string
	list []Deadline
	now  func() time.Time
}

// OpenDeadlines loads the deadline list from dataDir.
func OpenDeadlines(dataDir string) (*Deadlines, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	d := &Deadlines{
		path: filepath.Join(dataDir, "deadlines.json"),
		now:  time.Now,
	}
	raw, err := os.ReadFile(d.path)
	if errors.Is(err, fs.ErrNotExist) {
		return d, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read deadlines: %w", err)
	}
	if err := json.Unmarshal(raw, &d.list); err != nil {
		return nil, fmt.Errorf("parse deadlines: %w", err)
	}
	return d, nil
}

func (d *Deadlines) save() error {
	raw, err := json.MarshalIndent(d.list, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(d.path, raw, 0o644); err != nil {
		return fmt.Errorf("write deadlines: %w", err)
	}
	return nil
}

// Add stores a deadline and returns its id.
func (d *Deadlines) Add(dl Deadline) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if dl.ID == "" {
		id := uuid.New()
		dl.ID = fmt.Sprintf("deadline_%x", id[:4])
	}
	dl.CreatedAt = d.now()

	d.list = append(d.list, dl)
	if err := d.save(); err != nil {
		return "", err
	}
	return dl.ID, nil
}

// List returns all deadlines sorted by due date, soonest first.
func (d *Deadlines) List() []Deadline {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Deadline, len(d.list))
	copy(out, d.list)
	sort.Slice(out, func(i, j int) bool { return out[i].Due.Before(out[j].Due) })
	return out
}

// Delete removes a deadline, reporting whether it existed.
func (d *Deadlines) Delete(id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, dl := range d.list {
		if dl.ID == id {
			d.list = append(d.list[:i], d.list[i+1:]...)
			return true, d.save()
		}
	}
	return false, nil
}

// Upcoming returns deadlines due within the window from now, sorted by due
// date. A deadline with ReminderDays set is also included once its own
// reminder window has started, even when the caller's window is shorter.
// Past deadlines are excluded.
func (d *Deadlines) Upcoming(now time.Time, window time.Duration) []Deadline {
	cutoff := now.Add(window)
	var out []Deadline
	for _, dl := range d.List() {
		if dl.Due.Before(now) {
			continue
		}
		reminderAt := dl.Due.Add(-time.Duration(dl.ReminderDays) * 24 * time.Hour)
		if !dl.Due.After(cutoff) || (dl.ReminderDays > 0 && !reminderAt.After(now)) {
			out = append(out, dl)
		}
	}
	return out
}
