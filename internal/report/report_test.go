package report

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/chacha20poly1305"

	"bitacora/internal/audit"
	"bitacora/internal/audit/store"
	"bitacora/internal/authz"
	dErrors "bitacora/pkg/domain-errors"
)

// =============================================================================
// Report Engine Test Suite
// =============================================================================
// Justification for unit tests: the compliance score and the export
// redaction/encryption pipeline are compliance commitments. The score must be
// reproducible from the severity breakdown, and an export must never leak
// sensitive payload fields to an unauthorized caller.

type invocationSpy struct {
	descriptors []audit.Descriptor
}

func (r *invocationSpy) Record(_ context.Context, d audit.Descriptor) (audit.Event, error) {
	r.descriptors = append(r.descriptors, d)
	return audit.Event{ID: uuid.New()}, nil
}

type stubCodec struct{}

func (stubCodec) Encode(Report) ([]byte, error) { return []byte("binary-document"), nil }

type ReportSuite struct {
	suite.Suite
	events   *store.InMemoryEventStore
	authz    *authz.Static
	recorder *invocationSpy
	engine   *Engine
	now      time.Time
	key      []byte
}

func TestReportSuite(t *testing.T) {
	suite.Run(t, new(ReportSuite))
}

func (s *ReportSuite) SetupTest() {
	s.events = store.NewInMemoryEventStore()
	s.authz = authz.NewStatic()
	s.recorder = &invocationSpy{}
	s.now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	s.key = bytes.Repeat([]byte{0x42}, chacha20poly1305.KeySize)

	var err error
	s.engine, err = NewEngine(s.events, s.authz,
		WithRecorder(s.recorder),
		WithExportKey(s.key),
		WithClock(func() time.Time { return s.now }),
	)
	s.Require().NoError(err)
}

func (s *ReportSuite) seed(count int, event audit.Event) {
	for i := 0; i < count; i++ {
		e := event
		e.ID = uuid.New()
		if e.Timestamp.IsZero() {
			e.Timestamp = s.now.Add(-time.Hour)
		}
		s.Require().NoError(s.events.Create(context.Background(), e))
	}
}

// =============================================================================
// Statistics Tests
// =============================================================================

func (s *ReportSuite) TestStatistics() {
	ctx := context.Background()

	s.seed(6, audit.Event{Type: audit.EventLoginSuccess, Category: audit.CategoryAuthentication, Severity: audit.SeverityInfo, ActorID: "alice"})
	s.seed(3, audit.Event{Type: audit.EventRecordUpdated, Category: audit.CategoryUsers, Severity: audit.SeverityWarning, ActorID: "bob"})
	s.seed(1, audit.Event{
		Type: audit.EventCompliance, Category: audit.CategoryCompliance,
		Severity: audit.SeverityCritical, ActorID: "alice",
		Timestamp: s.now.AddDate(0, 0, -10),
	})

	stats, err := s.engine.Statistics(ctx, audit.Filter{})
	s.Require().NoError(err)

	s.Run("totals are additive across breakdowns", func() {
		s.Equal(10, stats.TotalEvents)
		bySeverity := 0
		for _, count := range stats.BySeverity {
			bySeverity += count
		}
		s.Equal(stats.TotalEvents, bySeverity)
		s.Equal(6, stats.ByType[audit.EventLoginSuccess])
		s.Equal(3, stats.ByCategory[audit.CategoryUsers])
	})

	s.Run("recency windows count only what they contain", func() {
		s.Equal(9, stats.Last24Hours)
		s.Equal(10, stats.Last30Days)
	})

	s.Run("actor ranking is ordered by activity", func() {
		s.Require().NotEmpty(stats.TopActors)
		s.Equal("alice", stats.TopActors[0].Key)
		s.Equal(7, stats.TopActors[0].Count)
	})

	s.Run("daily trend covers the trailing thirty days", func() {
		s.Len(stats.DailyTrend, 30)
		s.Equal(s.now.UTC().Format("2006-01-02"), stats.DailyTrend[29].Date)
	})
}

func (s *ReportSuite) TestComplianceScore() {
	ctx := context.Background()

	s.Run("empty trail scores a clean hundred", func() {
		stats, err := s.engine.Statistics(ctx, audit.Filter{})
		s.Require().NoError(err)
		s.Equal(100.0, stats.ComplianceScore)
	})

	s.Run("critical and error shares each deduct", func() {
		s.seed(8, audit.Event{Type: audit.EventLoginSuccess, Category: audit.CategoryAuthentication, Severity: audit.SeverityInfo})
		s.seed(1, audit.Event{Type: audit.EventLoginFailure, Category: audit.CategoryAuthentication, Severity: audit.SeverityError})
		s.seed(1, audit.Event{Type: audit.EventCompliance, Category: audit.CategoryCompliance, Severity: audit.SeverityCritical})

		stats, err := s.engine.Statistics(ctx, audit.Filter{})
		s.Require().NoError(err)
		s.Equal(85.0, stats.ComplianceScore, "10 for the critical share, 5 for the error share")
	})

	s.Run("shares under the thresholds deduct nothing", func() {
		s.seed(90, audit.Event{Type: audit.EventLoginSuccess, Category: audit.CategoryAuthentication, Severity: audit.SeverityInfo})

		stats, err := s.engine.Statistics(ctx, audit.Filter{})
		s.Require().NoError(err)
		s.Equal(100.0, stats.ComplianceScore, "1% critical and 1% error are within tolerance")
	})
}

// =============================================================================
// Report Generation Tests
// =============================================================================

func (s *ReportSuite) TestGenerate() {
	ctx := context.Background()
	s.seed(2, audit.Event{Type: audit.EventLoginSuccess, Category: audit.CategoryAuthentication, Severity: audit.SeverityInfo, ActorID: "alice", Description: "ok"})

	s.Run("json report carries stats and optional sections", func() {
		rendered, err := s.engine.Generate(ctx, Spec{
			Format:         FormatJSON,
			IncludeSummary: true,
			IncludeRecords: true,
		})
		s.Require().NoError(err)

		var report Report
		s.Require().NoError(json.Unmarshal(rendered.Data, &report))
		s.Equal(2, report.Stats.TotalEvents)
		s.Contains(report.Summary, "2 events recorded")
		s.Len(report.Records, 2)
	})

	s.Run("csv report without records falls back to the severity breakdown", func() {
		rendered, err := s.engine.Generate(ctx, Spec{Format: FormatCSV})
		s.Require().NoError(err)

		lines := strings.Split(strings.TrimSpace(string(rendered.Data)), "\n")
		s.Equal("severity,count", lines[0])
		s.Contains(lines, "info,2")
	})

	s.Run("unknown format is rejected", func() {
		_, err := s.engine.Generate(ctx, Spec{Format: Format("yaml")})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("binary formats need a registered codec", func() {
		_, err := s.engine.Generate(ctx, Spec{Format: FormatSpreadsheet})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))

		engine, err := NewEngine(s.events, s.authz, WithCodec(FormatSpreadsheet, stubCodec{}))
		s.Require().NoError(err)
		rendered, err := engine.Generate(ctx, Spec{Format: FormatSpreadsheet})
		s.Require().NoError(err)
		s.Equal([]byte("binary-document"), rendered.Data)
	})

	s.Run("every generation is recorded", func() {
		var generated int
		for _, d := range s.recorder.descriptors {
			if d.Type == audit.EventReportGenerated {
				generated++
			}
		}
		s.Equal(2, generated, "the json and csv runs above")
	})
}

// =============================================================================
// Export Tests
// =============================================================================

func (s *ReportSuite) sensitiveEvent() audit.Event {
	return audit.Event{
		Type:        audit.EventLoginFailure,
		Category:    audit.CategoryAuthentication,
		Severity:    audit.SeverityWarning,
		Description: "failed authentication for alice",
		ActorID:     "alice",
		Payload: map[string]any{
			"ip_address": "203.0.113.7",
			"token":      "tok-secret",
			"attempts":   float64(3),
		},
	}
}

func (s *ReportSuite) TestExport_Redaction() {
	ctx := context.Background()
	s.seed(1, s.sensitiveEvent())

	s.Run("default export strips sensitive payload keys", func() {
		artifact, err := s.engine.Export(ctx, ExportSpec{Format: FormatJSON}, "analyst")
		s.Require().NoError(err)
		s.True(artifact.Redacted)
		s.Equal(1, artifact.RecordCount)

		var records []audit.Event
		s.Require().NoError(json.Unmarshal(artifact.Data, &records))
		s.Require().Len(records, 1)
		s.NotContains(records[0].Payload, "ip_address")
		s.NotContains(records[0].Payload, "token")
		s.Equal(float64(3), records[0].Payload["attempts"], "non-sensitive fields survive")
	})

	s.Run("sensitive export without the capability is forbidden", func() {
		_, err := s.engine.Export(ctx, ExportSpec{Format: FormatJSON, IncludeSensitiveData: true}, "analyst")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("authorized sensitive export keeps the payload and escalates the record", func() {
		s.authz.Grant("dpo", authz.CapExportSensitive)

		artifact, err := s.engine.Export(ctx, ExportSpec{Format: FormatJSON, IncludeSensitiveData: true}, "dpo")
		s.Require().NoError(err)
		s.False(artifact.Redacted)

		var records []audit.Event
		s.Require().NoError(json.Unmarshal(artifact.Data, &records))
		s.Equal("203.0.113.7", records[0].Payload["ip_address"])

		invocation := s.recorder.descriptors[len(s.recorder.descriptors)-1]
		s.Equal(audit.EventExportPerformed, invocation.Type)
		s.Equal(audit.SeverityWarning, invocation.Severity)
		s.Equal(false, invocation.Payload["redacted"])
	})

	s.Run("unsupported export format is rejected", func() {
		_, err := s.engine.Export(ctx, ExportSpec{Format: FormatPDF}, "analyst")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ReportSuite) TestExport_Packaging() {
	ctx := context.Background()
	s.seed(3, s.sensitiveEvent())

	s.Run("checksum matches the final artifact bytes", func() {
		artifact, err := s.engine.Export(ctx, ExportSpec{Format: FormatJSON}, "analyst")
		s.Require().NoError(err)

		sum := sha256.Sum256(artifact.Data)
		s.Equal(hex.EncodeToString(sum[:]), artifact.Checksum)
	})

	s.Run("compressed and encrypted artifact round-trips", func() {
		artifact, err := s.engine.Export(ctx, ExportSpec{
			Format:   FormatJSON,
			Compress: true,
			Encrypt:  true,
		}, "analyst")
		s.Require().NoError(err)
		s.True(artifact.Compressed)
		s.True(artifact.Encrypted)

		aead, err := chacha20poly1305.NewX(s.key)
		s.Require().NoError(err)
		nonce := artifact.Data[:aead.NonceSize()]
		compressed, err := aead.Open(nil, nonce, artifact.Data[aead.NonceSize():], nil)
		s.Require().NoError(err)

		zr, err := gzip.NewReader(bytes.NewReader(compressed))
		s.Require().NoError(err)
		plain, err := io.ReadAll(zr)
		s.Require().NoError(err)

		var records []audit.Event
		s.Require().NoError(json.Unmarshal(plain, &records))
		s.Len(records, 3)
	})

	s.Run("encryption without a configured key fails", func() {
		engine, err := NewEngine(s.events, s.authz)
		s.Require().NoError(err)
		_, err = engine.Export(ctx, ExportSpec{Format: FormatJSON, Encrypt: true}, "analyst")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("csv export is rendered with the record header", func() {
		artifact, err := s.engine.Export(ctx, ExportSpec{Format: FormatCSV}, "analyst")
		s.Require().NoError(err)
		s.True(strings.HasPrefix(string(artifact.Data),
			"id,timestamp,type,category,severity,state,actor_id,description"))
	})
}
