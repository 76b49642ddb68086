package report

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/crypto/chacha20poly1305"

	"bitacora/internal/audit"
	"bitacora/internal/authz"
	dErrors "bitacora/pkg/domain-errors"
)

// ExportSpec describes one export request.
type ExportSpec struct {
	Filter audit.Filter
	Format Format

	// IncludeSensitiveData skips redaction. Requires the export-sensitive
	// capability; the authorization decision belongs to the collaborator.
	IncludeSensitiveData bool

	Compress bool
	Encrypt  bool

	// MaxRecords bounds the export; zero keeps the default.
	MaxRecords int
}

const defaultExportRecords = 10000

// Artifact is the finished export with its checksum.
type Artifact struct {
	Data        []byte    `json:"data"`
	Format      Format    `json:"format"`
	Checksum    string    `json:"checksum"`
	Compressed  bool      `json:"compressed"`
	Encrypted   bool      `json:"encrypted"`
	Redacted    bool      `json:"redacted"`
	RecordCount int       `json:"record_count"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Export serializes matching records into an artifact. Sensitive sub-fields
// are redacted unless the actor holds the export-sensitive capability; the
// invocation is always recorded, escalated to warning when unredacted
// sensitive data leaves the system.
func (e *Engine) Export(ctx context.Context, spec ExportSpec, actorID string) (Artifact, error) {
	if spec.Format != FormatJSON && spec.Format != FormatCSV {
		return Artifact{}, dErrors.Newf(dErrors.CodeValidation, "unsupported export format %q", spec.Format)
	}

	if spec.IncludeSensitiveData {
		if err := e.authz.Allow(ctx, actorID, authz.CapExportSensitive); err != nil {
			return Artifact{}, err
		}
	}

	limit := spec.MaxRecords
	if limit <= 0 {
		limit = defaultExportRecords
	}
	page, err := e.events.FindMany(ctx, spec.Filter, 1, limit)
	if err != nil {
		return Artifact{}, dErrors.Wrap(err, dErrors.CodeInternal, "export query failed")
	}

	records := page.Data
	redacted := !spec.IncludeSensitiveData
	if redacted {
		for i, event := range records {
			records[i] = redactEvent(event)
		}
	}

	data, err := serializeRecords(records, spec.Format)
	if err != nil {
		return Artifact{}, err
	}

	if spec.Compress {
		data, err = gzipBytes(data)
		if err != nil {
			return Artifact{}, dErrors.Wrap(err, dErrors.CodeInternal, "export compression failed")
		}
	}
	if spec.Encrypt {
		data, err = e.encrypt(data)
		if err != nil {
			return Artifact{}, err
		}
	}

	sum := sha256.Sum256(data)
	now := e.clock()
	artifact := Artifact{
		Data:        data,
		Format:      spec.Format,
		Checksum:    hex.EncodeToString(sum[:]),
		Compressed:  spec.Compress,
		Encrypted:   spec.Encrypt,
		Redacted:    redacted,
		RecordCount: len(records),
		GeneratedAt: now,
	}

	if e.metrics != nil {
		e.metrics.ExportsGenerated.Inc()
	}

	severity := audit.SeverityInfo
	if !redacted {
		severity = audit.SeverityWarning
	}
	e.recordInvocation(ctx, audit.Descriptor{
		Type:        audit.EventExportPerformed,
		Category:    audit.CategoryDataExport,
		Severity:    severity,
		Description: fmt.Sprintf("export of %d audit records as %s", len(records), spec.Format),
		ActorID:     actorID,
		Payload: map[string]any{
			"format":       string(spec.Format),
			"record_count": len(records),
			"redacted":     redacted,
			"encrypted":    spec.Encrypt,
			"checksum":     artifact.Checksum,
		},
		Timestamp: now,
	})

	return artifact, nil
}

func serializeRecords(records []audit.Event, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		data, err := json.Marshal(records)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "export serialization failed")
		}
		return data, nil
	case FormatCSV:
		return renderCSV(Report{Records: records})
	default:
		return nil, dErrors.Newf(dErrors.CodeValidation, "unsupported export format %q", format)
	}
}

// encrypt seals the artifact with XChaCha20-Poly1305, prepending the nonce.
func (e *Engine) encrypt(data []byte) ([]byte, error) {
	if len(e.exportKey) != chacha20poly1305.KeySize {
		return nil, dErrors.New(dErrors.CodeValidation, "export encryption requires a configured 32-byte key")
	}
	aead, err := chacha20poly1305.NewX(e.exportKey)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "export encryption failed")
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "export encryption failed")
	}
	return aead.Seal(nonce, nonce, data, nil), nil
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
