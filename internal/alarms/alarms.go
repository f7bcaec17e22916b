// Package alarms owns the mapping from logical planner events (class slots,
// task deadlines, pomodoro phase ends) to one-shot wake-ups registered
// against an injected alarm driver.
//
// The driver is write-only: what "should" be scheduled is always recomputed
// from the domain entities, never read back from the driver.
package alarms

import (
	"context"
	"errors"
	"time"
)

// Category partitions the shared integer keyspace so a task and a schedule
// slot with the same row id can never overwrite each other's registration.
type Category uint8

const (
	CategoryClass Category = iota + 1
	CategoryTask
	CategoryPomodoro
)

func (c Category) String() string {
	switch c {
	case CategoryClass:
		return "class"
	case CategoryTask:
		return "task"
	case CategoryPomodoro:
		return "pomodoro"
	default:
		return "unknown"
	}
}

// Key identifies one outstanding registration. The category lives in the
// top byte, the entity id in the low 56 bits.
type Key int64

const entityMask = int64(1)<<56 - 1

func NewKey(c Category, entity int64) Key {
	return Key(int64(c)<<56 | entity&entityMask)
}

func (k Key) Category() Category { return Category(int64(k) >> 56) }
func (k Key) Entity() int64      { return int64(k) & entityMask }

// Registration is one pending wake-up. Registering an existing key replaces
// the previous registration; the old one must never fire afterwards.
type Registration struct {
	Key      Key
	At       time.Time
	Title    string
	Body     string
	Category Category
}

// ErrPermissionDenied signals that the alarm facility refused the
// registration by policy. It is a recoverable status: the schedule is
// skipped and the caller may surface it, but nothing crashes.
var ErrPermissionDenied = errors.New("alarms: registration denied by policy")

// Driver is the host alarm capability the scheduler depends on.
//
// Register delivers exactly once at or after Registration.At (instants in
// the past fire immediately). Cancel of an unknown key is a no-op.
type Driver interface {
	Register(ctx context.Context, r Registration) error
	Cancel(ctx context.Context, key Key) error
}
