//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/couchcryptid/swmm-fews-adapter/internal/adapter/kafka"
	"github.com/couchcryptid/swmm-fews-adapter/internal/config"
	"github.com/couchcryptid/swmm-fews-adapter/internal/dataset"
	"github.com/couchcryptid/swmm-fews-adapter/internal/domain"
	"github.com/couchcryptid/swmm-fews-adapter/internal/observability"
	"github.com/couchcryptid/swmm-fews-adapter/internal/pipeline"
	"github.com/couchcryptid/swmm-fews-adapter/internal/report"
	"github.com/couchcryptid/swmm-fews-adapter/internal/report/reporttest"
	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const testResultsTopic = "test-swmm-results"

var runStart = time.Date(2020, time.March, 18, 20, 0, 0, 0, time.UTC)

// publishedSummary holds a deserialized message read from the results topic.
type publishedSummary struct {
	Summary kafka.TableSummary
	Key     string
	Headers map[string]string
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node broker for the test and returns its address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	ctr, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("swmm-adapter-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = ctr.Terminate(context.Background()) })

	brokers, err := ctr.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	cc, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer cc.Close()

	require.NoError(t, cc.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

func newConsumer(t *testing.T, broker string) *kafkago.Reader {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testResultsTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

// readSummaries reads n messages from the results topic.
func readSummaries(ctx context.Context, t *testing.T, consumer *kafkago.Reader, n int) []publishedSummary {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	out := make([]publishedSummary, 0, n)
	for len(out) < n {
		msg, err := consumer.ReadMessage(readCtx)
		require.NoError(t, err, "read from results topic")

		headers := make(map[string]string, len(msg.Headers))
		for _, h := range msg.Headers {
			headers[h.Key] = string(h.Value)
		}
		var s kafka.TableSummary
		require.NoError(t, json.Unmarshal(msg.Value, &s), "unmarshal summary")
		out = append(out, publishedSummary{Summary: s, Key: string(msg.Key), Headers: headers})
	}
	return out
}

func testReport() reporttest.Report {
	return reporttest.Report{Tables: []reporttest.Table{
		{Name: "Node J1", Columns: []string{"Inflow", "Depth"}, Units: []string{"CMS", "meters"},
			Rows: reporttest.Series("03/18/2020", 20, 5, 6, 2)},
		{Name: "Link C1", Columns: []string{"Flow"}, Units: []string{"CMS"},
			Rows: reporttest.Series("03/18/2020", 20, 5, 6, 1)},
	}}
}

func testConfig(broker string) *config.Config {
	return &config.Config{
		KafkaBrokers:         []string{broker},
		KafkaResultsTopic:    testResultsTopic,
		KafkaPublishAttempts: 3,
	}
}

// TestPublisherRoundTrip verifies that summaries of a parsed report arrive on
// the results topic with their headers.
func TestPublisherRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testResultsTopic)

	doc, err := report.Parse(testReport().Lines(), discardLogger())
	require.NoError(t, err)

	publishedAt := time.Date(2020, time.March, 19, 6, 0, 0, 0, time.UTC)
	pub := kafka.NewPublisher(testConfig(broker), clockwork.NewFakeClockAt(publishedAt), discardLogger())
	t.Cleanup(func() { _ = pub.Close() })

	n, err := pub.Publish(ctx, "DonRiver-20200319T080000", doc)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got := readSummaries(ctx, t, newConsumer(t, broker), 2)
	byKey := map[string]publishedSummary{}
	for _, s := range got {
		byKey[s.Key] = s
	}

	node, ok := byKey["Node_J1"]
	require.True(t, ok, "expected a summary for Node_J1")
	assert.Equal(t, domain.KindNode, node.Summary.Kind)
	assert.Equal(t, []string{"Inflow", "Depth"}, node.Summary.Columns)
	assert.Equal(t, "meters", node.Summary.Units["Depth"])
	assert.Equal(t, 6, node.Summary.Rows)
	assert.Equal(t, "DonRiver-20200319T080000", node.Summary.RunID)
	require.NotNil(t, node.Summary.FirstTime)
	assert.Equal(t, runStart, node.Summary.FirstTime.UTC())
	assert.Equal(t, "node", node.Headers["table_kind"])
	assert.Equal(t, "2020-03-19T06:00:00Z", node.Headers["published_at"])

	link, ok := byKey["Link_C1"]
	require.True(t, ok, "expected a summary for Link_C1")
	assert.Equal(t, domain.KindLink, link.Summary.Kind)
	require.NotNil(t, link.Summary.LastTime)
	assert.Equal(t, runStart.Add(25*time.Minute), link.Summary.LastTime.UTC())
}

// noDatasets accepts datasets without writing NetCDF files.
type noDatasets struct{ written int }

func (d *noDatasets) WriteDataset(string, *dataset.Dataset) (bool, error) {
	d.written++
	return true, nil
}

// TestPostPublishesToKafka runs the post phase against a report on disk with
// a real publisher.
func TestPostPublishesToKafka(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testResultsTopic)

	dir := t.TempDir()
	ri := &config.RunInfo{
		Dir:             dir,
		DiagnosticFile:  filepath.Join(dir, "diagnostics.xml"),
		WorkDir:         filepath.Join(dir, "model"),
		Start:           runStart,
		End:             runStart.Add(36 * time.Hour),
		Time0:           runStart.Add(12 * time.Hour),
		InputFile:       filepath.Join(dir, "model", "DonRiver.inp"),
		UnitsLookupFile: filepath.Join(dir, "model", "UDUNITS_lookup.csv"),
		NodesOutputFile: filepath.Join(dir, "output", "DonRiver_output_nodes.nc"),
		LinksOutputFile: filepath.Join(dir, "output", "DonRiver_output_links.nc"),
		ReportFile:      filepath.Join(dir, "model", "DonRiver.rpt"),
	}
	require.NoError(t, os.MkdirAll(ri.WorkDir, 0o755))
	require.NoError(t, os.WriteFile(ri.ReportFile, []byte(testReport().String()), 0o644))
	require.NoError(t, os.WriteFile(ri.UnitsLookupFile, []byte(
		"SWMM,UDUNITS,long_name,standard_name\nCMS,m3 s-1,discharge,discharge\nmeters,m,depth,depth\n"), 0o644))

	pub := kafka.NewPublisher(testConfig(broker), nil, discardLogger())
	t.Cleanup(func() { _ = pub.Close() })

	datasets := &noDatasets{}
	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(ri, pipeline.Stages{
		Results:   pipeline.NewFiles(discardLogger()),
		Datasets:  datasets,
		Publisher: pub,
	}, dataset.DefaultAttributes(), nil, discardLogger(), metrics)

	_, err := p.Execute(ctx, pipeline.PhasePost)
	require.NoError(t, err)
	assert.Equal(t, 2, datasets.written)

	got := readSummaries(ctx, t, newConsumer(t, broker), 2)
	for _, s := range got {
		assert.Equal(t, p.RunID(), s.Summary.RunID)
		assert.Contains(t, []string{"Node_J1", "Link_C1"}, s.Key)
	}
}
