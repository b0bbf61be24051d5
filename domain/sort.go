package domain

import "sort"

// SortTasks orders tasks by priority weight descending, then due date
// ascending with undated tasks after all dated ones, then position ascending.
// The sort is stable and idempotent; it is reapplied after every mutation and
// every reload, so any transient drag order is always overwritten.
func SortTasks(tasks []Task) []Task {
	sorted := append([]Task(nil), tasks...)
	sort.SliceStable(sorted, func(i, j int) bool {
		p1 := PriorityWeight(sorted[i].Priority)
		p2 := PriorityWeight(sorted[j].Priority)
		if p1 != p2 {
			return p1 > p2
		}

		d1 := sorted[i].DueDate
		d2 := sorted[j].DueDate
		if d1 == nil && d2 == nil {
			return sorted[i].Position < sorted[j].Position
		}
		if d1 == nil {
			return false
		}
		if d2 == nil {
			return true
		}
		if *d1 != *d2 {
			// ISO dates compare correctly as strings.
			return *d1 < *d2
		}
		return sorted[i].Position < sorted[j].Position
	})
	return sorted
}

// InColumn reports whether the task renders under the given column. A task
// with no status renders under the first column without its stored status
// being mutated.
func InColumn(t Task, column string, columns []string) bool {
	if t.Status == "" {
		return len(columns) > 0 && column == columns[0]
	}
	return t.Status == column
}

// TasksByColumn filters tasks belonging to one column, preserving order.
func TasksByColumn(tasks []Task, column string, columns []string) []Task {
	out := []Task{}
	for _, t := range tasks {
		if InColumn(t, column, columns) {
			out = append(out, t)
		}
	}
	return out
}
