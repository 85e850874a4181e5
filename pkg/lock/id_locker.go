// Package lock serializes work per id. The staging area assumes a single
// writer per transfer id; an IdLocker gives concurrent API calls that
// guarantee without one process-wide lock.
package lock

import (
	"sync"

	"github.com/apex/log"
)

type IdLocker struct {
	mapMutex sync.Mutex
	idMap    map[int64]*sync.Mutex
}

func NewIdLocker() *IdLocker {
	return &IdLocker{
		idMap: make(map[int64]*sync.Mutex),
	}
}

func (l *IdLocker) AcquireLock(id int64) {
	l.mapMutex.Lock()
	idMutex, ok := l.idMap[id]
	if !ok {
		idMutex = &sync.Mutex{}
		l.idMap[id] = idMutex
	}
	l.mapMutex.Unlock()
	idMutex.Lock()
}

func (l *IdLocker) ReleaseLock(id int64) {
	l.mapMutex.Lock()
	m, ok := l.idMap[id]
	l.mapMutex.Unlock()
	if !ok {
		log.Errorf("ReleaseLock called on id (%d) with no mutex", id)
		return
	}

	m.Unlock()
}

func (l *IdLocker) WithLock(id int64, f func() error) error {
	l.AcquireLock(id)
	defer l.ReleaseLock(id)
	return f()
}
