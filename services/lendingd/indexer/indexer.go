package indexer

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	"lukechampine.com/blake3"

	"frendlend/core/events"
	"frendlend/core/types"
	"frendlend/native/claims"
)

const defaultQueryLimit = 100

var ErrLoanNotIndexed = errors.New("indexer: loan not indexed")

// Open connects to the configured SQL backend and migrates the schema.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite", "":
		if dsn == "" {
			dsn = "file::memory:?cache=shared"
		}
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("indexer: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("indexer: open %s: %w", driver, err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	return db, nil
}

// Indexer persists committed events and maintains the loan read model.
// Emit queues events for Run; Index writes synchronously.
type Indexer struct {
	db     *gorm.DB
	logger *slog.Logger
	queue  chan events.Event
	nowFn  func() time.Time

	mu  sync.Mutex
	seq uint64
}

// New resumes numbering after the highest sequence already stored.
func New(db *gorm.DB, buffer int, logger *slog.Logger) (*Indexer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if buffer <= 0 {
		buffer = 1
	}
	var last struct{ Max *uint64 }
	if err := db.Model(&EventRecord{}).Select("MAX(sequence) AS max").Scan(&last).Error; err != nil {
		return nil, fmt.Errorf("indexer: load sequence: %w", err)
	}
	idx := &Indexer{db: db, logger: logger, queue: make(chan events.Event, buffer), nowFn: time.Now}
	if last.Max != nil {
		idx.seq = *last.Max
	}
	return idx, nil
}

// Emit implements events.Emitter. It blocks while the queue is full.
func (i *Indexer) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	i.queue <- evt
}

// Run drains the queue until ctx is cancelled. Events still queued at
// cancellation are flushed before returning.
func (i *Indexer) Run(ctx context.Context) error {
	for {
		select {
		case evt := <-i.queue:
			i.indexLogged(ctx, evt)
		case <-ctx.Done():
			for {
				select {
				case evt := <-i.queue:
					i.indexLogged(context.Background(), evt)
				default:
					return nil
				}
			}
		}
	}
}

func (i *Indexer) indexLogged(ctx context.Context, evt events.Event) {
	if _, err := i.Index(ctx, evt); err != nil {
		i.logger.Error("index event", slog.String("type", evt.EventType()), slog.Any("error", err))
	}
}

// Index stores evt and applies it to the loan read model in one database
// transaction.
func (i *Indexer) Index(ctx context.Context, evt events.Event) (*EventRecord, error) {
	rendered := events.ToEvent(evt)
	if rendered == nil {
		return nil, errors.New("indexer: nil event")
	}
	attrs, err := json.Marshal(rendered.Attributes)
	if err != nil {
		return nil, fmt.Errorf("indexer: encode attributes: %w", err)
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	seq := i.seq + 1
	record := &EventRecord{
		ID:          uuid.New(),
		Sequence:    seq,
		Type:        rendered.Type,
		Fingerprint: Fingerprint(seq, rendered),
		OfferID:     optionalUint(rendered.Attr("offerId")),
		ClaimID:     claimIDOf(rendered),
		Token:       rendered.Attr("token"),
		Attributes:  string(attrs),
		CreatedAt:   i.nowFn().UTC(),
	}
	err = i.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(record).Error; err != nil {
			return err
		}
		return applyLoan(tx, rendered, record.CreatedAt)
	})
	if err != nil {
		return nil, fmt.Errorf("indexer: store %s: %w", rendered.Type, err)
	}
	i.seq = seq
	return record, nil
}

// Fingerprint is a blake3 digest over the sequence, type and sorted
// attributes of an event.
func Fingerprint(seq uint64, evt *types.Event) string {
	keys := make([]string, 0, len(evt.Attributes))
	for k := range evt.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(strconv.FormatUint(seq, 10))
	b.WriteByte('|')
	b.WriteString(evt.Type)
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(evt.Attributes[k])
	}
	sum := blake3.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func applyLoan(tx *gorm.DB, evt *types.Event, at time.Time) error {
	switch evt.Type {
	case events.TypeClaimCreated:
		id, err := strconv.ParseUint(evt.Attr("id"), 10, 64)
		if err != nil {
			return fmt.Errorf("claim id: %w", err)
		}
		dueBy, _ := strconv.ParseInt(evt.Attr("dueBy"), 10, 64)
		loan := LoanRecord{
			ClaimID:    id,
			Creditor:   evt.Attr("creditor"),
			Debtor:     evt.Attr("debtor"),
			Token:      evt.Attr("token"),
			Amount:     evt.Attr("amount"),
			PaidAmount: "0",
			Status:     claims.StatusPending.String(),
			DueBy:      dueBy,
			CreatedAt:  at,
			UpdatedAt:  at,
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&loan).Error
	case events.TypeLoanOfferAccepted:
		claimID := optionalUint(evt.Attr("claimId"))
		if claimID == nil {
			return nil
		}
		return tx.Model(&LoanRecord{}).Where("claim_id = ?", *claimID).
			Updates(map[string]any{"offer_id": optionalUint(evt.Attr("offerId")), "updated_at": at}).Error
	case events.TypeClaimPayment, events.TypeClaimStatusChanged:
		id := optionalUint(evt.Attr("id"))
		if id == nil {
			return nil
		}
		updates := map[string]any{"status": evt.Attr("status"), "updated_at": at}
		if paid := evt.Attr("paidAmount"); paid != "" {
			updates["paid_amount"] = paid
		}
		return tx.Model(&LoanRecord{}).Where("claim_id = ?", *id).Updates(updates).Error
	}
	return nil
}

// Filter narrows an event query. Zero fields match everything.
type Filter struct {
	Type          string
	OfferID       *uint64
	ClaimID       *uint64
	AfterSequence uint64
	Limit         int
}

// Events returns stored events in sequence order.
func (i *Indexer) Events(ctx context.Context, f Filter) ([]EventRecord, error) {
	q := i.db.WithContext(ctx).Model(&EventRecord{}).Where("sequence > ?", f.AfterSequence)
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.OfferID != nil {
		q = q.Where("offer_id = ?", *f.OfferID)
	}
	if f.ClaimID != nil {
		q = q.Where("claim_id = ?", *f.ClaimID)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	var out []EventRecord
	if err := q.Order("sequence ASC").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("indexer: query events: %w", err)
	}
	return out, nil
}

// Loan returns the read model for claimID.
func (i *Indexer) Loan(ctx context.Context, claimID uint64) (*LoanRecord, error) {
	var loan LoanRecord
	err := i.db.WithContext(ctx).First(&loan, "claim_id = ?", claimID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrLoanNotIndexed
	}
	if err != nil {
		return nil, fmt.Errorf("indexer: load loan: %w", err)
	}
	return &loan, nil
}

// LoansByAccount lists loans where account is creditor or debtor.
func (i *Indexer) LoansByAccount(ctx context.Context, account string) ([]LoanRecord, error) {
	var out []LoanRecord
	err := i.db.WithContext(ctx).
		Where("LOWER(creditor) = LOWER(?) OR LOWER(debtor) = LOWER(?)", account, account).
		Order("claim_id ASC").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("indexer: list loans: %w", err)
	}
	return out, nil
}

func claimIDOf(evt *types.Event) *uint64 {
	if id := optionalUint(evt.Attr("claimId")); id != nil {
		return id
	}
	if strings.HasPrefix(evt.Type, "claims.") {
		return optionalUint(evt.Attr("id"))
	}
	return nil
}

func optionalUint(raw string) *uint64 {
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}
