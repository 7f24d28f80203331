// Package chainhash computes the digests that link ledger entries into
// a tamper-evident chain. Both the journal and the category ledger use
// this one implementation, so the append engines and the verifier can
// never disagree on serialization.
package chainhash

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"io"
	"strconv"
	"time"

	"github.com/taxtrail/compliance-ledger-go/internal/domain"
)

// Genesis is the prev-hash sentinel for the first entry of a chain.
const Genesis = ""

// Sum digests prevHash followed by each field under length-prefixed
// framing, so adjacent fields can never be confused regardless of their
// content. Returns the lowercase hex digest.
func Sum(prevHash string, fields ...string) string {
	h := sha256.New()
	writeFramed(h, prevHash)
	for _, f := range fields {
		writeFramed(h, f)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeFramed(h io.Writer, s string) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(s)))
	h.Write(n[:])
	h.Write([]byte(s))
}

// JournalEntryHash computes the digest of a journal entry from its own
// stored fields plus the previous entry's hash. Postings are digested
// in their stored order.
func JournalEntryHash(prevHash string, e *domain.JournalEntry) string {
	fields := []string{
		e.OrgID,
		e.EventID,
		e.DedupeID,
		e.Type,
		e.OccurredAt.UTC().Format(time.RFC3339Nano),
		e.Source,
	}
	for _, p := range e.Postings {
		fields = append(fields, p.AccountID, strconv.FormatInt(p.Amount, 10), p.Memo)
	}
	return Sum(prevHash, fields...)
}

// CategoryEntryHash computes the digest of a category ledger entry.
func CategoryEntryHash(prevHash string, e *domain.CategoryLedgerEntry) string {
	return Sum(prevHash,
		e.OrgID,
		e.Period,
		string(e.Category),
		string(e.Direction),
		strconv.FormatInt(e.Amount, 10),
		e.EffectiveAt.UTC().Format(time.RFC3339Nano),
	)
}
