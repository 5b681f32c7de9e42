package model

import (
	"encoding/json"
	"math"
	"sort"
	"time"
)

// TaskDetail carries the project data of a large task.
type TaskDetail struct {
	TaskID     string      `gorm:"primaryKey" json:"taskId"`
	Owner      string      `gorm:"index" json:"-"`
	Goal       string      `json:"goal"`
	Progress   int         `json:"progress"`
	Subtasks   []Subtask   `gorm:"serializer:json" json:"subtasks"`
	Milestones []Milestone `gorm:"serializer:json" json:"milestones"`
}

type Subtask struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Done      bool       `json:"done"`
	DueDate   *time.Time `json:"dueDate,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	Order     int        `json:"order"`
}

type Milestone struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	TargetDate *time.Time `json:"targetDate,omitempty"`
	Completed  bool       `json:"completed"`
	Order      int        `json:"order"`
}

// NewTaskDetail returns the empty detail created together with a large task.
func NewTaskDetail(taskID, owner string) TaskDetail {
	return TaskDetail{
		TaskID:     taskID,
		Owner:      owner,
		Subtasks:   []Subtask{},
		Milestones: []Milestone{},
	}
}

// NextOrder is one past the highest order shared by subtasks and milestones.
func (d TaskDetail) NextOrder() int {
	highest := -1
	for _, s := range d.Subtasks {
		if s.Order > highest {
			highest = s.Order
		}
	}
	for _, m := range d.Milestones {
		if m.Order > highest {
			highest = m.Order
		}
	}
	return highest + 1
}

// ComputeProgress is the rounded share of done subtasks, 0 without subtasks.
func ComputeProgress(subtasks []Subtask) int {
	if len(subtasks) == 0 {
		return 0
	}
	done := 0
	for _, s := range subtasks {
		if s.Done {
			done++
		}
	}
	return int(math.Round(100 * float64(done) / float64(len(subtasks))))
}

// OpenSubtasks counts subtasks that are not done yet.
func (d TaskDetail) OpenSubtasks() int {
	n := 0
	for _, s := range d.Subtasks {
		if !s.Done {
			n++
		}
	}
	return n
}

func (d TaskDetail) Clone() TaskDetail {
	c := d
	c.Subtasks = make([]Subtask, len(d.Subtasks))
	copy(c.Subtasks, d.Subtasks)
	c.Milestones = make([]Milestone, len(d.Milestones))
	copy(c.Milestones, d.Milestones)
	return c
}

// DetailMap indexes task details by owning task id.
type DetailMap map[string]TaskDetail

func (m DetailMap) Clone() DetailMap {
	c := make(DetailMap, len(m))
	for k, v := range m {
		c[k] = v.Clone()
	}
	return c
}

// Keys returns the task ids in sorted order.
func (m DetailMap) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DetailMapFromList keys each detail by its TaskID; later entries win.
func DetailMapFromList(details []TaskDetail) DetailMap {
	m := make(DetailMap, len(details))
	for _, d := range details {
		m[d.TaskID] = d
	}
	return m
}

// MarshalJSON stores the map as an object keyed by task id.
func (m DetailMap) MarshalJSON() ([]byte, error) {
	obj := make(map[string]TaskDetail, len(m))
	for k, v := range m {
		obj[k] = v
	}
	return json.Marshal(obj)
}

// UnmarshalJSON accepts the object form and re-keys entries missing a TaskID.
func (m *DetailMap) UnmarshalJSON(data []byte) error {
	var obj map[string]TaskDetail
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	out := make(DetailMap, len(obj))
	for k, v := range obj {
		if v.TaskID == "" {
			v.TaskID = k
		}
		out[k] = v
	}
	*m = out
	return nil
}
