// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package task

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/event"

	"github.com/a2afabric/fabric/co"
	"github.com/a2afabric/fabric/errs"
	"github.com/a2afabric/fabric/fabric"
	"github.com/a2afabric/fabric/log"
	"github.com/a2afabric/fabric/metrics"
)

var logger = log.WithContext("pkg", "task")

var metricTransitions = metrics.LazyLoadCounterVec("task_transition_count", []string{"to"})

// Transition is one recorded status change.
type Transition struct {
	From   Status    `json:"from"`
	To     Status    `json:"to"`
	At     time.Time `json:"at"`
	Actor  string    `json:"actor,omitempty"`
	Reason string    `json:"reason,omitempty"`
}

// StatusEvent is posted on every transition.
type StatusEvent struct {
	TaskID fabric.TaskID
	Transition
}

type tracked struct {
	delegation *Delegation
	history    []Transition
}

// Tracker owns the delegation state machines and their histories.
type Tracker struct {
	mu    sync.RWMutex
	tasks map[fabric.TaskID]*tracked
	feed  event.Feed
	scope event.SubscriptionScope
	now   func() time.Time
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		tasks: make(map[fabric.TaskID]*tracked),
		now:   time.Now,
	}
}

// SetNowFunc overrides the wall clock. Tests only.
func (t *Tracker) SetNowFunc(now func() time.Time) { t.now = now }

// SubscribeEvents subscribes to status transitions.
func (t *Tracker) SubscribeEvents(ch chan StatusEvent) event.Subscription {
	return t.scope.Track(t.feed.Subscribe(ch))
}

// Track registers a new delegation. It must be PENDING.
func (t *Tracker) Track(d *Delegation) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if d.Status != StatusPending {
		return errs.Errorf(errs.InvalidArgument, "cannot track %s delegation", d.Status)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.tasks[d.TaskID]; ok {
		return errs.Errorf(errs.PreconditionFailed, "task %s already tracked", d.TaskID)
	}
	t.tasks[d.TaskID] = &tracked{delegation: d.Copy()}
	logger.Debug("tracking delegation", "task", d.TaskID, "delegatee", d.DelegateeID)
	return nil
}

// Get returns the delegation.
func (t *Tracker) Get(id fabric.TaskID) (*Delegation, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	tr, ok := t.tasks[id]
	if !ok {
		return nil, errs.Errorf(errs.NotFound, "task %s", id)
	}
	return tr.delegation.Copy(), nil
}

// History returns the recorded transitions of a delegation.
func (t *Tracker) History(id fabric.TaskID) ([]Transition, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	tr, ok := t.tasks[id]
	if !ok {
		return nil, errs.Errorf(errs.NotFound, "task %s", id)
	}
	return append([]Transition(nil), tr.history...), nil
}

// ByStatus returns delegations currently in status.
func (t *Tracker) ByStatus(status Status) []*Delegation {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []*Delegation
	for _, tr := range t.tasks {
		if tr.delegation.Status == status {
			out = append(out, tr.delegation.Copy())
		}
	}
	return out
}

// Accept moves PENDING to ASSIGNED.
func (t *Tracker) Accept(id fabric.TaskID, actor string) error {
	return t.transition(id, StatusAssigned, actor, "", func(s Status) bool {
		return s == StatusPending
	})
}

// Reject moves PENDING to REJECTED.
func (t *Tracker) Reject(id fabric.TaskID, actor, reason string) error {
	return t.transition(id, StatusRejected, actor, reason, func(s Status) bool {
		return s == StatusPending
	})
}

// Progress moves ASSIGNED to IN_PROGRESS.
func (t *Tracker) Progress(id fabric.TaskID, actor string) error {
	return t.transition(id, StatusInProgress, actor, "", func(s Status) bool {
		return s == StatusAssigned
	})
}

// Complete moves IN_PROGRESS to COMPLETED.
func (t *Tracker) Complete(id fabric.TaskID, actor string) error {
	return t.transition(id, StatusCompleted, actor, "", func(s Status) bool {
		return s == StatusInProgress
	})
}

// Fail moves an active delegation to FAILED.
func (t *Tracker) Fail(id fabric.TaskID, actor, reason string) error {
	return t.transition(id, StatusFailed, actor, reason, Status.Active)
}

// Cancel moves any non-terminal delegation to CANCELLED.
func (t *Tracker) Cancel(id fabric.TaskID, actor, reason string) error {
	return t.transition(id, StatusCancelled, actor, reason, func(s Status) bool {
		return !s.Terminal()
	})
}

func (t *Tracker) transition(id fabric.TaskID, to Status, actor, reason string, permitted func(Status) bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	tr, ok := t.tasks[id]
	if !ok {
		return errs.Errorf(errs.NotFound, "task %s", id)
	}
	from := tr.delegation.Status
	if !permitted(from) {
		return errs.Errorf(errs.PreconditionFailed, "task %s: %s -> %s not permitted", id, from, to)
	}
	t.applyLocked(id, tr, to, actor, reason)
	return nil
}

// applyLocked records the transition. Must hold t.mu.
func (t *Tracker) applyLocked(id fabric.TaskID, tr *tracked, to Status, actor, reason string) {
	from := tr.delegation.Status
	tr.delegation.Status = to
	rec := Transition{From: from, To: to, At: t.now(), Actor: actor, Reason: reason}
	tr.history = append(tr.history, rec)
	metricTransitions().AddWithLabel(1, map[string]string{"to": string(to)})
	t.feed.Send(StatusEvent{TaskID: id, Transition: rec})
}

// SweepDeadlines moves non-terminal delegations past their deadline to
// TIMEOUT and returns how many it moved.
func (t *Tracker) SweepDeadlines() int {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	var moved int
	for id, tr := range t.tasks {
		d := tr.delegation
		// at exactly the deadline the delegation is still live
		if d.Status.Terminal() || d.Deadline.IsZero() || !now.After(d.Deadline) {
			continue
		}
		t.applyLocked(id, tr, StatusTimeout, "", "deadline passed")
		moved++
	}
	if moved > 0 {
		logger.Info("timed out delegations", "count", moved)
	}
	return moved
}

// Housekeeping sweeps deadlines every interval until ctx is cancelled.
func (t *Tracker) Housekeeping(ctx context.Context, interval time.Duration) {
	co.Loop(ctx, interval, func() { t.SweepDeadlines() })
}

// Close releases subscriptions.
func (t *Tracker) Close() {
	t.scope.Close()
}
