package audit

import (
	"fmt"
	"time"

	"github.com/d-o-hub/memcore/internal/config"
	"github.com/d-o-hub/memcore/internal/logging"
	natsclient "github.com/d-o-hub/memcore/internal/nats"
)

// Recorder is the audit sink every component records through: it always
// writes to the tagged logger and, when configured, also fans out to
// NATS. The logger is the system of record for audit — NATS publish
// failures are themselves logged but never propagate, since audit must
// never be able to fail the operation it's describing.
type Recorder struct {
	log    logging.Logger
	client *natsclient.Client
	cfg    config.AuditConfig
}

// New builds a Recorder. When cfg.NATSEnabled, it dials NATS eagerly and
// returns an error if the connection fails — callers that want audit to
// be best-effort should treat a connection failure as "run without NATS"
// rather than aborting startup, per spec.md's "NATS is additive, not
// required" note.
func New(cfg config.AuditConfig, log logging.Logger) (*Recorder, error) {
	if log == nil {
		log = logging.Noop()
	}
	r := &Recorder{log: log.With("component", "audit"), cfg: cfg}
	if !cfg.NATSEnabled {
		return r, nil
	}
	client, err := natsclient.NewClient(cfg.NATSURL, "memory-audit")
	if err != nil {
		return nil, fmt.Errorf("audit.New: connect to NATS: %w", err)
	}
	r.client = client
	return r, nil
}

// Record writes an audit event: always to the logger, and to NATS when
// configured. fields is redacted by key before either sink sees it.
func (r *Recorder) Record(kind Kind, fields map[string]interface{}) {
	ev := Event{Kind: kind, Fields: redact(fields), Timestamp: time.Now()}
	r.log.Infow("audit event", "kind", ev.Kind, "fields", ev.Fields, "timestamp", ev.Timestamp)

	if r.client == nil {
		return
	}
	subject := r.subjectFor(kind)
	if err := r.client.PublishJSON(subject, ev); err != nil {
		r.log.Warnw("failed to publish audit event", "kind", kind, "subject", subject, "error", err)
	}
}

func (r *Recorder) subjectFor(kind Kind) string {
	prefix := r.cfg.Subject
	if prefix == "" {
		prefix = "memory.audit"
	}
	return fmt.Sprintf("%s.%s", prefix, string(kind))
}

// Close releases the NATS connection, if any.
func (r *Recorder) Close() {
	if r.client != nil {
		r.client.Close()
	}
}
