package indexer

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

const exportPageSize = 1000

type parquetEvent struct {
	Sequence    int64  `parquet:"name=sequence, type=INT64"`
	Type        string `parquet:"name=type, type=BYTE_ARRAY, convertedtype=UTF8"`
	Fingerprint string `parquet:"name=fingerprint, type=BYTE_ARRAY, convertedtype=UTF8"`
	OfferID     int64  `parquet:"name=offer_id, type=INT64"`
	ClaimID     int64  `parquet:"name=claim_id, type=INT64"`
	Token       string `parquet:"name=token, type=BYTE_ARRAY, convertedtype=UTF8"`
	Attributes  string `parquet:"name=attributes, type=BYTE_ARRAY, convertedtype=UTF8"`
	CreatedAt   string `parquet:"name=created_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// ExportParquet writes every event matching f (ignoring f.Limit) to path and
// returns the number of rows written. Missing offer and claim ids are -1.
func (i *Indexer) ExportParquet(ctx context.Context, path string, f Filter) (int, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("indexer: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetEvent), 1)
	if err != nil {
		file.Close()
		return 0, fmt.Errorf("indexer: parquet schema: %w", err)
	}
	pw.RowGroupSize = 16 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	written := 0
	page := f
	page.Limit = exportPageSize
	for {
		rows, err := i.Events(ctx, page)
		if err != nil {
			file.Close()
			return written, err
		}
		for _, row := range rows {
			if err := pw.Write(toParquet(row)); err != nil {
				file.Close()
				return written, fmt.Errorf("indexer: write parquet row: %w", err)
			}
			written++
			page.AfterSequence = row.Sequence
		}
		if len(rows) < exportPageSize {
			break
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return written, fmt.Errorf("indexer: finalize parquet: %w", err)
	}
	if err := file.Close(); err != nil {
		return written, fmt.Errorf("indexer: close parquet: %w", err)
	}
	return written, nil
}

func toParquet(row EventRecord) *parquetEvent {
	out := &parquetEvent{
		Sequence:    int64(row.Sequence),
		Type:        row.Type,
		Fingerprint: row.Fingerprint,
		OfferID:     -1,
		ClaimID:     -1,
		Token:       row.Token,
		Attributes:  row.Attributes,
		CreatedAt:   row.CreatedAt.UTC().Format(time.RFC3339),
	}
	if row.OfferID != nil {
		out.OfferID = int64(*row.OfferID)
	}
	if row.ClaimID != nil {
		out.ClaimID = int64(*row.ClaimID)
	}
	return out
}
