package downloader

import (
	"context"
	"fmt"
	"sort"
)

// Task produces the file for one entry. An error marks the entry failed.
type Task func(ctx context.Context, index int) (string, error)

type BatchProgress struct {
	Total      int
	Completed  int
	Failed     int
	InProgress int
	// Current lists titles of running entries in index order, at most three.
	Current []string
}

type BatchResult struct {
	// Paths is index aligned with the input; failed entries are "".
	Paths       []string
	Completed   int
	Failed      int
	// FailedNames lists failed entries in input order.
	FailedNames []string
}

// Scheduler runs tasks with at most Concurrency in flight. Admission happens
// from a single loop that reacts to completions, so all bookkeeping lives in
// one goroutine.
type Scheduler struct {
	Concurrency int
	OnProgress  func(BatchProgress)
	OnFailure   func(index int, err error)
}

type outcome struct {
	index int
	path  string
	err   error
}

func (s *Scheduler) Run(ctx context.Context, names []string, task Task) BatchResult {
	limit := s.Concurrency
	if limit <= 0 {
		limit = 1
	}
	total := len(names)
	res := BatchResult{Paths: make([]string, total)}
	done := make(chan outcome, total)
	active := make(map[int]string, limit)
	failed := make([]bool, total)
	next := 0

	emit := func() {
		if s.OnProgress == nil {
			return
		}
		s.OnProgress(BatchProgress{
			Total:      total,
			Completed:  res.Completed,
			Failed:     res.Failed,
			InProgress: len(active),
			Current:    currentTitles(active),
		})
	}

	for next < total || len(active) > 0 {
		for next < total && len(active) < limit {
			idx := next
			next++
			active[idx] = names[idx]
			emit()
			go func() {
				done <- runTask(ctx, idx, task)
			}()
		}

		o := <-done
		delete(active, o.index)
		if o.err != nil {
			res.Failed++
			failed[o.index] = true
			if s.OnFailure != nil {
				s.OnFailure(o.index, o.err)
			}
		} else {
			res.Completed++
			res.Paths[o.index] = o.path
		}
		emit()
	}
	for i, f := range failed {
		if f {
			res.FailedNames = append(res.FailedNames, names[i])
		}
	}
	return res
}

func runTask(ctx context.Context, idx int, task Task) (o outcome) {
	o.index = idx
	defer func() {
		if r := recover(); r != nil {
			o.path = ""
			o.err = fmt.Errorf("panic: %v", r)
		}
	}()
	o.path, o.err = task(ctx, idx)
	if o.err == nil && o.path == "" {
		o.err = fmt.Errorf("entry %d produced no file", idx)
	}
	return o
}

func currentTitles(active map[int]string) []string {
	idx := make([]int, 0, len(active))
	for i := range active {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	out := make([]string, 0, maxCurrentTracks)
	for _, i := range idx {
		if len(out) == maxCurrentTracks {
			break
		}
		out = append(out, active[i])
	}
	return out
}
