package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// SeedTarget is the subset of Manager the seeder needs. Defined here so
// tests can substitute a fake.
type SeedTarget interface {
	Add(ctx context.Context, fileName string, data []byte, docType DocumentType, category string, customMetadata map[string]any) (*AddResult, error)
	List(ctx context.Context, filter ListFilter) ([]DocumentSummary, error)
}

// seedDocument is one built-in starter document.
type seedDocument struct {
	fileName string
	category string
	content  string
}

// Seeder ingests a built-in set of starter documents so a fresh knowledge
// base is immediately searchable.
//
// Thread-safe: SeedAll is protected by mu.
type Seeder struct {
	target SeedTarget
	logger *slog.Logger
	mu     sync.Mutex
}

// NewSeeder creates a seeder over the given ingestion target.
func NewSeeder(target SeedTarget, logger *slog.Logger) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{
		target: target,
		logger: logger,
	}
}

// SeedAll ingests every built-in document not already present, matching by
// file name within the document's category. Individual failures are logged
// and skipped; SeedAll errors only when every pending document fails.
//
// Returns the number of documents ingested by this call.
func (s *Seeder) SeedAll(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.target.List(ctx, ListFilter{})
	if err != nil {
		return 0, fmt.Errorf("failed to list existing documents: %w", err)
	}
	present := make(map[string]bool, len(existing))
	for _, doc := range existing {
		present[doc.Category+"/"+doc.FileName] = true
	}

	docs := builtinDocuments()

	attempted := 0
	successCount := 0
	for _, doc := range docs {
		if present[doc.category+"/"+doc.fileName] {
			continue
		}
		attempted++

		result, err := s.target.Add(ctx, doc.fileName, []byte(doc.content), TypeText, doc.category, map[string]any{
			"source": "seed",
		})
		if err != nil {
			s.logger.Error("failed to seed document",
				"file_name", doc.fileName,
				"category", doc.category,
				"error", err)
			continue
		}

		s.logger.Debug("seeded document",
			"file_name", doc.fileName,
			"document_id", result.DocumentID,
			"chunks", result.ChunksCreated)
		successCount++
	}

	if attempted > 0 && successCount == 0 {
		return 0, fmt.Errorf("failed to seed any of %d pending documents", attempted)
	}

	s.logger.Info("seeding complete",
		"total", len(docs),
		"ingested", successCount,
		"already_present", len(docs)-attempted)
	return successCount, nil
}

// builtinDocuments returns the starter corpus. File names double as
// identity for idempotent seeding, so they must stay stable.
func builtinDocuments() []seedDocument {
	return []seedDocument{
		{
			fileName: "contract-review-checklist.txt",
			category: "contracts",
			content: `Contract Review Checklist

Parties and capacity. Confirm the legal names of all parties and that each signatory has authority to bind the entity. Verify registered addresses and company numbers against official registries.

Scope and deliverables. The statement of work must describe deliverables, acceptance criteria, and deadlines in measurable terms. Ambiguous scope language is the most common source of disputes.

Payment terms. Check invoicing schedule, currency, late payment interest, and any set-off rights. Milestone payments should be tied to objectively verifiable events.

Liability and indemnities. Review the liability cap, carve-outs for gross negligence and willful misconduct, and the scope of any indemnity. Uncapped indemnities require escalation before signature.

Termination. Confirm termination for convenience notice periods, termination for cause triggers, and the treatment of accrued fees and work in progress after termination.

Governing law and disputes. Note the governing law, seat of arbitration or competent courts, and any mandatory escalation ladder before formal proceedings.`,
		},
		{
			fileName: "data-protection-basics.txt",
			category: "compliance",
			content: `Data Protection Basics

Lawful basis. Every processing activity needs a documented lawful basis. Consent must be freely given, specific, informed, and revocable; legitimate interest requires a recorded balancing test.

Data minimization. Collect only the personal data needed for the stated purpose and define retention periods up front. Deletion schedules must be enforced in every system that stores the data, including backups.

Data subject rights. Access, rectification, erasure, and portability requests must be answered within the statutory deadline. Maintain a register of requests and responses.

Processors and transfers. Engage processors only under a written agreement covering security measures, sub-processing, and audit rights. Cross-border transfers need an adequacy decision or appropriate safeguards such as standard contractual clauses.

Breach handling. A personal data breach must be assessed immediately and, where required, notified to the supervisory authority within 72 hours of becoming aware of it. Keep an internal breach log regardless of notification.`,
		},
		{
			fileName: "engagement-letter-guidelines.txt",
			category: "general",
			content: `Engagement Letter Guidelines

Every new matter starts with a signed engagement letter before substantive work begins. The letter defines the client, the scope of the engagement, fee arrangements, and the basis on which the firm may withdraw.

Scope. Describe the matter narrowly. Work outside the described scope requires a written scope extension; informal scope creep is a common source of fee disputes and malpractice exposure.

Fees. State the billing model, rates per seniority level, disbursement policy, and invoicing frequency. Estimates are non-binding and the letter must say so explicitly.

Conflicts. Record the conflict check date and result. If a waiver was obtained, attach it. The engagement letter is incomplete without a conflicts section.

Files and confidentiality. State the retention period for the matter file after closing, the client's right to its documents, and the confidentiality obligations that survive the engagement.`,
		},
	}
}
