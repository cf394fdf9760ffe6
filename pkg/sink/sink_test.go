package sink

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/ajitpratap0/logevents/pkg/compression"
	"github.com/ajitpratap0/logevents/pkg/config"
	"github.com/ajitpratap0/logevents/pkg/errors"
	"github.com/ajitpratap0/logevents/pkg/models"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var runStart = time.Date(2024, 5, 6, 7, 8, 9, 500_000_000, time.UTC)

func fixedClock() time.Time { return runStart }

func records(raw ...string) []models.Record {
	out := make([]models.Record, len(raw))
	for i, r := range raw {
		out[i] = models.Record(r)
	}
	return out
}

func TestObjectName(t *testing.T) {
	assert.Equal(t, "data_download_2024-05-06T07:08:09.500Z.json",
		ObjectName("", runStart, FormatArray, compression.None))
	assert.Equal(t, "exports/data_download_2024-05-06T07:08:09.500Z.jsonl.zst",
		ObjectName("exports/", runStart, FormatJSONL, compression.Zstd))
}

func TestFileSinkArray(t *testing.T) {
	dir := t.TempDir()
	s := NewFileSink(dir, Options{Now: fixedClock}, zaptest.NewLogger(t))
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, models.TableLogEvents, records(`{"logid":1}`, `{"logid":2}`)))
	require.NoError(t, s.Write(ctx, models.TableLogEvents, nil))
	require.NoError(t, s.Write(ctx, models.TableLogEvents, records(`{"logid":3}`)))
	require.NoError(t, s.Close(ctx))

	assert.Equal(t, filepath.Join(dir, "data_download_2024-05-06T07:08:09.500Z.json"), s.Path())
	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.JSONEq(t, `[{"logid":1},{"logid":2},{"logid":3}]`, string(data))
}

func TestFileSinkJSONLCompressed(t *testing.T) {
	dir := t.TempDir()
	s := NewFileSink(dir, Options{Format: FormatJSONL, Compression: compression.Gzip, Now: fixedClock}, zaptest.NewLogger(t))
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, models.TableLogEvents, records(`{"logid":1}`, `{"logid":2}`)))
	require.NoError(t, s.Close(ctx))
	assert.True(t, strings.HasSuffix(s.Path(), ".jsonl.gz"))

	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	data, err := compression.Decompress(raw, compression.Gzip)
	require.NoError(t, err)
	assert.Equal(t, "{\"logid\":1}\n{\"logid\":2}\n", string(data))
}

func TestFileSinkWithoutWritesCreatesNothing(t *testing.T) {
	dir := t.TempDir()
	s := NewFileSink(dir, Options{}, zaptest.NewLogger(t))
	require.NoError(t, s.Close(context.Background()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Empty(t, s.Path())
}

func TestFileSinkEmptyRunWritesEmptyArray(t *testing.T) {
	dir := t.TempDir()
	s := NewFileSink(dir, Options{Now: fixedClock}, zaptest.NewLogger(t))
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, models.TableLogEvents, []models.Record{}))
	require.NoError(t, s.Close(ctx))

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

type fakeUploader struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeUploader) Upload(_ context.Context, input *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	f.input = input
	body, _ := io.ReadAll(input.Body)
	f.body = body
	if f.err != nil {
		return nil, f.err
	}
	return &manager.UploadOutput{Location: "s3://bucket/" + *input.Key}, nil
}

func TestS3SinkUploadsOnClose(t *testing.T) {
	up := &fakeUploader{}
	s := newS3Sink("bucket", up, Options{Prefix: "runs/", Compression: compression.Zstd, Now: fixedClock}, zaptest.NewLogger(t))
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, models.TableLogEvents, records(`{"logid":1}`)))
	assert.Nil(t, up.input, "nothing is uploaded before Close")
	require.NoError(t, s.Close(ctx))

	require.NotNil(t, up.input)
	assert.Equal(t, "bucket", *up.input.Bucket)
	assert.Equal(t, "runs/data_download_2024-05-06T07:08:09.500Z.json.zst", *up.input.Key)
	assert.Equal(t, "application/json", *up.input.ContentType)
	assert.Equal(t, "zstd", *up.input.ContentEncoding)
	assert.Equal(t, "1", up.input.Metadata["records"])

	data, err := compression.Decompress(up.body, compression.Zstd)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"logid":1}]`, string(data))
}

func TestS3SinkUploadError(t *testing.T) {
	up := &fakeUploader{err: assert.AnError}
	s := newS3Sink("bucket", up, Options{}, zaptest.NewLogger(t))
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, models.TableLogEvents, records(`{"logid":1}`)))
	err := s.Close(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeStorage))
}

func TestS3SinkWithoutWritesSkipsUpload(t *testing.T) {
	up := &fakeUploader{}
	s := newS3Sink("bucket", up, Options{}, zaptest.NewLogger(t))
	require.NoError(t, s.Close(context.Background()))
	assert.Nil(t, up.input)
}

type memObject struct {
	bytes.Buffer
	name   string
	meta   objectMeta
	closed bool
}

func (m *memObject) Close() error {
	m.closed = true
	return nil
}

func TestGCSSinkWritesObjectOnClose(t *testing.T) {
	var obj *memObject
	s := newGCSSink("bucket", func(_ context.Context, name string, meta objectMeta) io.WriteCloser {
		obj = &memObject{name: name, meta: meta}
		return obj
	}, Options{Format: FormatJSONL, Now: fixedClock}, zaptest.NewLogger(t))
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, models.TableLogEvents, records(`{"logid":1}`, `{"logid":2}`)))
	require.NoError(t, s.Close(ctx))

	require.NotNil(t, obj)
	assert.True(t, obj.closed)
	assert.Equal(t, "data_download_2024-05-06T07:08:09.500Z.jsonl", obj.name)
	assert.Equal(t, s.ObjectName(), obj.name)
	assert.Equal(t, "application/x-ndjson", obj.meta.ContentType)
	assert.Empty(t, obj.meta.ContentEncoding)
	assert.Equal(t, "2", obj.meta.Metadata["records"])
	assert.Equal(t, "{\"logid\":1}\n{\"logid\":2}\n", obj.String())
}

func TestKafkaSinkPublishesEachRecord(t *testing.T) {
	cfg := mocks.NewTestConfig()
	cfg.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, cfg)

	var values []string
	for i := 0; i < 2; i++ {
		producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
			values = append(values, string(val))
			return nil
		})
	}

	s := newKafkaSink(producer, "logevents", zaptest.NewLogger(t))
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, models.TableLogEvents, records(`{"logid":1}`, `{"logid":2}`)))
	require.NoError(t, s.Write(ctx, models.TableLogEvents, nil))
	require.NoError(t, s.Close(ctx))

	assert.Equal(t, []string{`{"logid":1}`, `{"logid":2}`}, values)
}

func TestKafkaSinkPublishError(t *testing.T) {
	cfg := mocks.NewTestConfig()
	cfg.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, cfg)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	s := newKafkaSink(producer, "logevents", zaptest.NewLogger(t))
	err := s.Write(context.Background(), models.TableLogEvents, records(`{"logid":1}`))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeStorage))
	require.NoError(t, s.Close(context.Background()))
}

func TestRecordKey(t *testing.T) {
	key, ok := recordKey(models.Record(`{"logid": 42, "type": "create"}`))
	assert.True(t, ok)
	assert.Equal(t, "42", key)

	key, ok = recordKey(models.Record(`{"log_id": "a-1"}`))
	assert.True(t, ok)
	assert.Equal(t, "a-1", key)

	_, ok = recordKey(models.Record(`{"type": "create"}`))
	assert.False(t, ok)
}

func TestNewFactory(t *testing.T) {
	ctx := context.Background()
	log := zaptest.NewLogger(t)

	s, err := New(ctx, config.SinkConfig{Type: "none"}, log)
	require.NoError(t, err)
	assert.IsType(t, &Discard{}, s)

	s, err = New(ctx, config.SinkConfig{Type: "file", Directory: t.TempDir(), Format: "jsonl", Compression: "lz4"}, log)
	require.NoError(t, err)
	fs, ok := s.(*FileSink)
	require.True(t, ok)
	assert.Equal(t, compression.LZ4, fs.opts.Compression)

	_, err = New(ctx, config.SinkConfig{Type: "ftp"}, log)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	_, err = New(ctx, config.SinkConfig{Type: "file", Compression: "brotli"}, log)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestDiscardCounts(t *testing.T) {
	d := &Discard{}
	require.NoError(t, d.Write(context.Background(), models.TableLogEvents, records(`{}`, `{}`)))
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, 2, d.Records)
}
