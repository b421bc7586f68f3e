// Package audit implements AuditEvent: an async, buffered writer that
// records a mutation after its transaction commits, grounded on the
// teacher's channel+ticker+batch Writer.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kollabhq/kollab/internal/auth"
	"github.com/kollabhq/kollab/internal/db"
)

// Entry represents a single audit event to be written.
type Entry struct {
	WorkspaceID uuid.UUID
	ActorID     uuid.UUID
	Action      string
	TargetType  string
	TargetID    uuid.UUID
	Detail      json.RawMessage
	IPAddress   *netip.Addr
	UserAgent   *string
}

// Writer is an async, buffered audit log writer. Entries are sent to an
// internal channel and flushed by a background goroutine, never on the
// request's own goroutine.
type Writer struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	entries chan Entry
	wg      sync.WaitGroup
}

const (
	bufferSize    = 256
	flushInterval = 2 * time.Second
	flushBatch    = 32
)

// NewWriter creates an audit Writer. Call Start to begin processing entries.
func NewWriter(pool *pgxpool.Pool, logger *slog.Logger) *Writer {
	return &Writer{
		pool:    pool,
		logger:  logger,
		entries: make(chan Entry, bufferSize),
	}
}

// Start launches the background goroutine that flushes audit entries to the
// database and returns immediately. The goroutine exits once ctx is
// cancelled or the channel is closed, after flushing what it has buffered.
func (w *Writer) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Close waits for all pending entries to be flushed.
func (w *Writer) Close() {
	close(w.entries)
	w.wg.Wait()
}

// Log enqueues an audit entry for async writing. It never blocks the
// caller; if the buffer is full the entry is dropped and a warning logged.
func (w *Writer) Log(entry Entry) {
	select {
	case w.entries <- entry:
	default:
		w.logger.Warn("audit log buffer full, dropping entry",
			"action", entry.Action, "target_type", entry.TargetType)
	}
}

// LogFromRequest is a convenience method that extracts the actor, IP, and
// user agent from the request context, then enqueues the entry. Handlers
// call this after their transaction has committed (C10: audit writes never
// participate in the mutation's own transaction).
func (w *Writer) LogFromRequest(r *http.Request, workspaceID uuid.UUID, action, targetType string, targetID uuid.UUID, detail json.RawMessage) {
	entry := Entry{
		WorkspaceID: workspaceID,
		Action:      action,
		TargetType:  targetType,
		TargetID:    targetID,
		Detail:      detail,
	}

	if id := auth.FromContext(r.Context()); id != nil {
		entry.ActorID = id.PrincipalID
	}

	ip := clientIP(r)
	if ip.IsValid() {
		entry.IPAddress = &ip
	}

	if ua := r.Header.Get("User-Agent"); ua != "" {
		entry.UserAgent = &ua
	}

	w.Log(entry)
}

// run is the background loop that drains the entries channel.
func (w *Writer) run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]Entry, 0, flushBatch)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		w.flush(batch)
		batch = batch[:0]
	}

	for {
		select {
		case entry, ok := <-w.entries:
			if !ok {
				flush()
				return
			}
			batch = append(batch, entry)
			if len(batch) >= flushBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			for {
				select {
				case entry, ok := <-w.entries:
					if !ok {
						flush()
						return
					}
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}

// flush writes a batch of entries to the database.
func (w *Writer) flush(entries []Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	q := db.New(w.pool)
	for _, e := range entries {
		var detail json.RawMessage
		if e.Detail != nil {
			detail = e.Detail
		}
		if _, err := q.CreateAuditEvent(ctx, db.CreateAuditEventParams{
			WorkspaceID: e.WorkspaceID,
			ActorID:     e.ActorID,
			Action:      e.Action,
			TargetType:  e.TargetType,
			TargetID:    e.TargetID,
			Detail:      detail,
		}); err != nil {
			w.logger.Error("writing audit event", "error", err,
				"action", e.Action, "target_type", e.TargetType, "workspace_id", e.WorkspaceID)
		}
	}
}

// clientIP extracts the client IP address from the request, preferring
// X-Forwarded-For and X-Real-IP headers over RemoteAddr.
func clientIP(r *http.Request) netip.Addr {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		if addr, err := netip.ParseAddr(strings.TrimSpace(parts[0])); err == nil {
			return addr
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if addr, err := netip.ParseAddr(strings.TrimSpace(xri)); err == nil {
			return addr
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	addr, _ := netip.ParseAddr(host)
	return addr
}
