//go:build linux

package osdeps

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// pollTimeout bounds how long a single EpollWait call blocks, so RunOne can
// notice context cancellation without a separate wakeup fd.
const pollTimeout = 200 * time.Millisecond

// EpollPoller is the default Linux Poller, built directly on
// golang.org/x/sys/unix epoll syscalls — the same calling convention the
// corpus uses for raw kernel interfaces (see backwardn-u-root's pkg/ipmi,
// which drives /dev/ipmi0 through unix.Syscall directly).
type EpollPoller struct {
	epfd int

	mu       sync.Mutex
	handlers map[int]func()
}

// NewEpollPoller creates a Poller backed by an epoll instance. Callers must
// Close it when done.
func NewEpollPoller() (*EpollPoller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("osdeps: epoll_create1: %w", err)
	}
	return &EpollPoller{epfd: fd, handlers: make(map[int]func())}, nil
}

func (p *EpollPoller) AddFD(fd int, onReadable func()) error {
	p.mu.Lock()
	_, exists := p.handlers[fd]
	p.handlers[fd] = onReadable
	p.mu.Unlock()

	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	op := unix.EPOLL_CTL_ADD
	if exists {
		op = unix.EPOLL_CTL_MOD
	}
	if err := unix.EpollCtl(p.epfd, op, fd, &ev); err != nil {
		return fmt.Errorf("osdeps: epoll_ctl add fd=%d: %w", fd, err)
	}
	return nil
}

func (p *EpollPoller) RemoveFD(fd int) error {
	p.mu.Lock()
	_, exists := p.handlers[fd]
	delete(p.handlers, fd)
	p.mu.Unlock()
	if !exists {
		return nil
	}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil && err != unix.ENOENT {
		return fmt.Errorf("osdeps: epoll_ctl del fd=%d: %w", fd, err)
	}
	return nil
}

func (p *EpollPoller) AddTimer(d time.Duration, fn func()) Timer {
	return newStdTimer(d, fn)
}

func (p *EpollPoller) RunOne(ctx context.Context) error {
	var events [8]unix.EpollEvent
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := unix.EpollWait(p.epfd, events[:], int(pollTimeout/time.Millisecond))
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("osdeps: epoll_wait: %w", err)
		}
		if n == 0 {
			continue // timed out, re-check ctx
		}

		p.mu.Lock()
		fired := make([]func(), 0, n)
		for i := 0; i < n; i++ {
			if h, ok := p.handlers[int(events[i].Fd)]; ok {
				fired = append(fired, h)
			}
		}
		p.mu.Unlock()

		for _, h := range fired {
			h()
		}
		return nil
	}
}

func (p *EpollPoller) Close() error {
	return unix.Close(p.epfd)
}
