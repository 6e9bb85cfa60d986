package source

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	psource "github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"fundingboard/internal/model"
)

// memFile is an in-memory parquet file. A file opened for reading hands out
// independent readers from Open so the parquet reader can seek per column.
type memFile struct {
	data   []byte
	reader *bytes.Reader
	buffer *bytes.Buffer
}

func newMemReader(data []byte) *memFile {
	return &memFile{data: data, reader: bytes.NewReader(data)}
}

func newMemWriter() *memFile {
	return &memFile{buffer: &bytes.Buffer{}}
}

func (m *memFile) Create(string) (psource.ParquetFile, error) { return newMemWriter(), nil }

func (m *memFile) Open(string) (psource.ParquetFile, error) {
	if m.reader == nil {
		return nil, errors.New("open on write-only parquet buffer")
	}
	return newMemReader(m.data), nil
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	if m.reader == nil {
		return int64(m.buffer.Len()), nil
	}
	return m.reader.Seek(offset, whence)
}

func (m *memFile) Read(b []byte) (int, error) {
	if m.reader == nil {
		return 0, errors.New("read not supported")
	}
	return m.reader.Read(b)
}

func (m *memFile) Write(b []byte) (int, error) {
	if m.buffer == nil {
		return 0, errors.New("write not supported")
	}
	return m.buffer.Write(b)
}

func (m *memFile) Close() error  { return nil }
func (m *memFile) Bytes() []byte { return m.buffer.Bytes() }

// ParseHistoryParquet reads observations from a parquet file with coin,
// fundingRate and time columns. Rows without a coin are skipped and counted.
func ParseHistoryParquet(data []byte) (res ParseResult, err error) {
	if len(data) == 0 {
		return res, fmt.Errorf("%w: empty parquet file", ErrMissingColumns)
	}
	defer func() {
		// parquet-go panics on some corrupt footers
		if r := recover(); r != nil {
			err = fmt.Errorf("read parquet history: %v", r)
		}
	}()

	pf := newMemReader(data)
	pr, err := reader.NewParquetReader(pf, new(model.Observation), 1)
	if err != nil {
		return res, fmt.Errorf("open parquet history: %w", err)
	}
	defer pr.ReadStop()

	num := int(pr.GetNumRows())
	rows := make([]model.Observation, num)
	if num > 0 {
		if err := pr.Read(&rows); err != nil {
			return res, fmt.Errorf("read parquet history: %w", err)
		}
	}

	res.Observations = make([]model.Observation, 0, len(rows))
	for _, o := range rows {
		if o.Coin == "" || math.IsNaN(o.FundingRate) || math.IsInf(o.FundingRate, 0) {
			res.Dropped++
			continue
		}
		res.Observations = append(res.Observations, o)
	}
	return res, nil
}

// WriteHistoryParquet encodes observations as a snappy-compressed parquet file.
func WriteHistoryParquet(observations []model.Observation) ([]byte, error) {
	mem := newMemWriter()
	pw, err := writer.NewParquetWriter(mem, new(model.Observation), 1)
	if err != nil {
		return nil, fmt.Errorf("create parquet writer: %w", err)
	}
	pw.RowGroupSize = 128 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for i := range observations {
		if err := pw.Write(observations[i]); err != nil {
			return nil, fmt.Errorf("write parquet row: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("finalize parquet: %w", err)
	}
	return mem.Bytes(), nil
}
