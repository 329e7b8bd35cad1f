package connmgr

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/CreatorDev/creator-wifire-app-sub001/lib"
)

// Start runs the poll loop until ctx is done or Shutdown is called. Calling it
// again has no effect.
func (m *Manager) Start(ctx context.Context) {
	m.start.Do(func() {
		m.wg.Add(1)
		go m.poll(ctx)
	})
}

func (m *Manager) poll(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	handles := make([]Handle, 0, len(m.slots))
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		case <-ticker.C:
		}

		handles = m.enabled(handles[:0])
		for _, h := range handles {
			m.receive(h)
		}
	}
}

// receive keeps a panicking handler from taking the poll loop down. The
// connection is disabled without another callback.
func (m *Manager) receive(h Handle) {
	defer func() {
		if v := recover(); v != nil {
			lib.LogPanic(m.log, "connection handler panicked", v)
			m.poolMu.Lock()
			if s := &m.slots[h.index()]; s.handle == h {
				s.enabled = false
			}
			m.poolMu.Unlock()
		}
	}()
	_ = m.Receive(h)
}

func (m *Manager) enabled(dst []Handle) []Handle {
	m.poolMu.Lock()
	defer m.poolMu.Unlock()

	for i := range m.slots {
		if s := &m.slots[i]; s.enabled {
			dst = append(dst, s.handle)
		}
	}
	return dst
}

// Shutdown stops the poll loop, waits for it and deletes every connection.
// Connections cannot be created afterwards.
func (m *Manager) Shutdown() {
	m.stop.Do(func() {
		m.done.SetDone()
		m.cancel()
		m.wg.Wait()

		m.poolMu.Lock()
		m.closed = true
		handles := make([]Handle, 0, len(m.slots))
		for i := range m.slots {
			if h := m.slots[i].handle; h != InvalidHandle {
				handles = append(handles, h)
			}
		}
		m.poolMu.Unlock()

		for _, h := range handles {
			m.DeleteConnection(h)
		}
		m.log.Debug("connection manager stopped", zap.Int("closed", len(handles)))
	})
}
